package student

import (
	"context"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Implementations live in infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Repository persists students together with their evaluations.
type Repository interface {
	// GetByID returns shared.ErrStudentNotFound when the student is missing.
	GetByID(ctx context.Context, id string) (*Student, error)

	// List returns students matching the filter, ordered by name.
	List(ctx context.Context, filter ListFilter) ([]*Student, error)

	// Save inserts or replaces the student.
	Save(ctx context.Context, s *Student) error

	// Delete removes the student. Evaluations go with the document.
	Delete(ctx context.Context, id string) error
}

// ListFilter narrows List. Zero values match everything.
type ListFilter struct {
	ClassID  string
	Standing Standing
	IDs      []string
}

// Matches reports whether s passes the filter.
func (f ListFilter) Matches(s *Student) bool {
	if f.ClassID != "" && s.ClassID != f.ClassID {
		return false
	}
	if f.Standing != "" && s.Standing != f.Standing {
		return false
	}
	if len(f.IDs) > 0 {
		for _, id := range f.IDs {
			if id == s.ID {
				return true
			}
		}
		return false
	}
	return true
}
