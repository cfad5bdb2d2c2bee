package reinforcement

import (
	"context"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// ══════════════════════════════════════════════════════════════════════════════

// GroupRepository persists reinforcement groups.
type GroupRepository interface {
	// GetByID returns shared.ErrGroupNotFound when missing.
	GetByID(ctx context.Context, id string) (*Group, error)
	List(ctx context.Context) ([]*Group, error)
	Save(ctx context.Context, g *Group) error
	Delete(ctx context.Context, id string) error
}

// AttendanceRepository persists attendance records, one per (group, date).
type AttendanceRepository interface {
	// ListByGroup returns the group's records ordered by date.
	ListByGroup(ctx context.Context, groupID string) ([]*AttendanceRecord, error)

	// Save replaces any record with the same ID. replaced reports whether one existed.
	Save(ctx context.Context, r *AttendanceRecord) (replaced bool, err error)

	// DeleteByGroup removes every record of a group and returns how many were removed.
	DeleteByGroup(ctx context.Context, groupID string) (int, error)
}

// HistoryRepository is the append-only discharge ledger.
type HistoryRepository interface {
	Append(ctx context.Context, e HistoryEntry) error

	// List returns entries newest first.
	List(ctx context.Context) ([]HistoryEntry, error)
}
