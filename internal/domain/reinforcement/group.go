// Package reinforcement models remedial-support groups: their rosters,
// per-session attendance and the discharge ledger.
package reinforcement

import (
	"fmt"
	"strings"
	"time"

	"github.com/edutracker/edutracker/internal/domain/shared"
)

// DefaultSchedule is used when a group is created without a schedule.
const DefaultSchedule = "to be defined"

// ══════════════════════════════════════════════════════════════════════════════
// GROUP
// ══════════════════════════════════════════════════════════════════════════════

// Group is a time-boxed remedial group bound to a roster and a subject.
type Group struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Subject       string   `json:"subject"`
	CompetencyIDs []string `json:"competency_ids"`

	// MemberIDs is unique and keeps insertion order.
	MemberIDs []string `json:"member_ids"`

	Schedule        string      `json:"schedule"`
	StartDate       shared.Date `json:"start_date"`
	ExpectedEndDate shared.Date `json:"expected_end_date"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewGroupParams holds group creation input.
type NewGroupParams struct {
	ID              string
	Name            string
	Subject         string
	CompetencyIDs   []string
	MemberIDs       []string
	Schedule        string
	StartDate       shared.Date
	ExpectedEndDate shared.Date
}

// NewGroup validates params and builds a group. An empty roster is rejected.
func NewGroup(p NewGroupParams) (*Group, error) {
	const op = "NewGroup"

	if strings.TrimSpace(p.ID) == "" {
		return nil, shared.NewDomainError("group", op, shared.ErrInvalidID, "group id is required")
	}
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return nil, shared.NewValidationError("group", op, "name is required")
	}
	subject := strings.TrimSpace(p.Subject)
	if subject == "" {
		return nil, shared.NewValidationError("group", op, "subject is required")
	}

	members := uniqueIDs(p.MemberIDs)
	if len(members) == 0 {
		return nil, shared.ErrEmptyRoster
	}

	start := p.StartDate
	if start.IsZero() {
		start = shared.NewDate(time.Now())
	}
	if !p.ExpectedEndDate.IsZero() && p.ExpectedEndDate.Before(start) {
		return nil, shared.NewValidationError("group", op, "expected end date is before start date")
	}

	schedule := strings.TrimSpace(p.Schedule)
	if schedule == "" {
		schedule = DefaultSchedule
	}

	now := time.Now().UTC()
	return &Group{
		ID:              p.ID,
		Name:            name,
		Subject:         subject,
		CompetencyIDs:   uniqueIDs(p.CompetencyIDs),
		MemberIDs:       members,
		Schedule:        schedule,
		StartDate:       start,
		ExpectedEndDate: p.ExpectedEndDate,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// Patch is a partial edit. Nil fields are left unchanged.
type Patch struct {
	Name            *string
	Subject         *string
	CompetencyIDs   *[]string
	MemberIDs       *[]string
	Schedule        *string
	StartDate       *shared.Date
	ExpectedEndDate *shared.Date
}

// Apply validates and applies a patch. The group is unchanged on error.
func (g *Group) Apply(p Patch) error {
	const op = "Update"
	next := g.Clone()

	if p.Name != nil {
		if next.Name = strings.TrimSpace(*p.Name); next.Name == "" {
			return shared.NewValidationError("group", op, "name cannot be empty")
		}
	}
	if p.Subject != nil {
		if next.Subject = strings.TrimSpace(*p.Subject); next.Subject == "" {
			return shared.NewValidationError("group", op, "subject cannot be empty")
		}
	}
	if p.CompetencyIDs != nil {
		next.CompetencyIDs = uniqueIDs(*p.CompetencyIDs)
	}
	if p.MemberIDs != nil {
		members := uniqueIDs(*p.MemberIDs)
		if len(members) == 0 {
			return shared.NewDomainError("group", op, shared.ErrEmptyValue, "group must keep at least one member")
		}
		next.MemberIDs = members
	}
	if p.Schedule != nil {
		next.Schedule = strings.TrimSpace(*p.Schedule)
	}
	if p.StartDate != nil && !p.StartDate.IsZero() {
		next.StartDate = *p.StartDate
	}
	if p.ExpectedEndDate != nil {
		next.ExpectedEndDate = *p.ExpectedEndDate
	}
	if !next.ExpectedEndDate.IsZero() && next.ExpectedEndDate.Before(next.StartDate) {
		return shared.NewValidationError("group", op, "expected end date is before start date")
	}

	next.UpdatedAt = time.Now().UTC()
	*g = *next
	return nil
}

// HasMember reports whether studentID is on the roster.
func (g *Group) HasMember(studentID string) bool {
	for _, id := range g.MemberIDs {
		if id == studentID {
			return true
		}
	}
	return false
}

// RemoveMember drops studentID from the roster. Removing an absent ID is a
// no-op and reports false.
func (g *Group) RemoveMember(studentID string) bool {
	for i, id := range g.MemberIDs {
		if id == studentID {
			g.MemberIDs = append(g.MemberIDs[:i:i], g.MemberIDs[i+1:]...)
			g.UpdatedAt = time.Now().UTC()
			return true
		}
	}
	return false
}

// String returns a log-friendly representation.
func (g *Group) String() string {
	return fmt.Sprintf("Group{ID: %s, Name: %s, Subject: %s, Members: %d}", g.ID, g.Name, g.Subject, len(g.MemberIDs))
}

// Clone returns a deep copy.
func (g *Group) Clone() *Group {
	if g == nil {
		return nil
	}
	clone := *g
	clone.MemberIDs = append([]string(nil), g.MemberIDs...)
	clone.CompetencyIDs = append([]string(nil), g.CompetencyIDs...)
	return &clone
}

// uniqueIDs trims, drops blanks and de-duplicates while keeping order.
func uniqueIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
