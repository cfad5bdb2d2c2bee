package repository

import (
	"context"
	"slices"
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/edutracker/edutracker/internal/domain/catalog"
	"github.com/edutracker/edutracker/internal/domain/record"
	"github.com/edutracker/edutracker/internal/domain/reinforcement"
	"github.com/edutracker/edutracker/internal/domain/school"
	"github.com/edutracker/edutracker/internal/domain/shared"
	"github.com/edutracker/edutracker/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// STUDENTS
// ══════════════════════════════════════════════════════════════════════════════

// StudentRepository implements student.Repository.
type StudentRepository struct {
	docs documents[student.Student]
}

// NewStudentRepository creates a student repository over store.
func NewStudentRepository(store record.Store) *StudentRepository {
	return &StudentRepository{docs: newDocuments[student.Student](store, record.CollectionStudents, shared.ErrStudentNotFound)}
}

// GetByID implements student.Repository.
func (r *StudentRepository) GetByID(ctx context.Context, id string) (*student.Student, error) {
	return r.docs.get(ctx, id)
}

// List implements student.Repository.
func (r *StudentRepository) List(ctx context.Context, filter student.ListFilter) ([]*student.Student, error) {
	all, err := r.docs.list(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, s := range all {
		if filter.Matches(s) {
			out = append(out, s)
		}
	}
	// Collators are not safe for concurrent use.
	col := collate.New(language.BrazilianPortuguese, collate.IgnoreCase)
	slices.SortStableFunc(out, func(a, b *student.Student) int {
		return col.CompareString(a.Name, b.Name)
	})
	return out, nil
}

// Save implements student.Repository.
func (r *StudentRepository) Save(ctx context.Context, s *student.Student) error {
	return r.docs.put(ctx, s.ID, s)
}

// Delete implements student.Repository.
func (r *StudentRepository) Delete(ctx context.Context, id string) error {
	return r.docs.delete(ctx, id)
}

// ══════════════════════════════════════════════════════════════════════════════
// REINFORCEMENT
// ══════════════════════════════════════════════════════════════════════════════

// GroupRepository implements reinforcement.GroupRepository.
type GroupRepository struct {
	docs documents[reinforcement.Group]
}

// NewGroupRepository creates a group repository over store.
func NewGroupRepository(store record.Store) *GroupRepository {
	return &GroupRepository{docs: newDocuments[reinforcement.Group](store, record.CollectionGroups, shared.ErrGroupNotFound)}
}

// GetByID implements reinforcement.GroupRepository.
func (r *GroupRepository) GetByID(ctx context.Context, id string) (*reinforcement.Group, error) {
	return r.docs.get(ctx, id)
}

// List implements reinforcement.GroupRepository.
func (r *GroupRepository) List(ctx context.Context) ([]*reinforcement.Group, error) {
	return r.docs.list(ctx)
}

// Save implements reinforcement.GroupRepository.
func (r *GroupRepository) Save(ctx context.Context, g *reinforcement.Group) error {
	return r.docs.put(ctx, g.ID, g)
}

// Delete implements reinforcement.GroupRepository.
func (r *GroupRepository) Delete(ctx context.Context, id string) error {
	return r.docs.delete(ctx, id)
}

// AttendanceRepository implements reinforcement.AttendanceRepository.
type AttendanceRepository struct {
	docs documents[reinforcement.AttendanceRecord]
}

// NewAttendanceRepository creates an attendance repository over store.
func NewAttendanceRepository(store record.Store) *AttendanceRepository {
	return &AttendanceRepository{docs: newDocuments[reinforcement.AttendanceRecord](store, record.CollectionAttendance, nil)}
}

// ListByGroup implements reinforcement.AttendanceRepository.
func (r *AttendanceRepository) ListByGroup(ctx context.Context, groupID string) ([]*reinforcement.AttendanceRecord, error) {
	all, err := r.docs.list(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*reinforcement.AttendanceRecord, 0, len(all))
	for _, rec := range all {
		if rec.GroupID == groupID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// Save implements reinforcement.AttendanceRepository.
func (r *AttendanceRepository) Save(ctx context.Context, rec *reinforcement.AttendanceRecord) (bool, error) {
	replaced, err := r.docs.exists(ctx, rec.ID)
	if err != nil {
		return false, err
	}
	return replaced, r.docs.put(ctx, rec.ID, rec)
}

// DeleteByGroup implements reinforcement.AttendanceRepository.
func (r *AttendanceRepository) DeleteByGroup(ctx context.Context, groupID string) (int, error) {
	records, err := r.ListByGroup(ctx, groupID)
	if err != nil {
		return 0, err
	}
	for i, rec := range records {
		if err := r.docs.delete(ctx, rec.ID); err != nil && !shared.IsNotFound(err) {
			return i, err
		}
	}
	return len(records), nil
}

// HistoryRepository implements reinforcement.HistoryRepository.
type HistoryRepository struct {
	docs documents[reinforcement.HistoryEntry]
}

// NewHistoryRepository creates a discharge ledger over store.
func NewHistoryRepository(store record.Store) *HistoryRepository {
	return &HistoryRepository{docs: newDocuments[reinforcement.HistoryEntry](store, record.CollectionHistory, nil)}
}

// Append implements reinforcement.HistoryRepository.
func (r *HistoryRepository) Append(ctx context.Context, e reinforcement.HistoryEntry) error {
	exists, err := r.docs.exists(ctx, e.ID)
	if err != nil {
		return err
	}
	if exists {
		return shared.NewDomainError("history", "Append", shared.ErrAlreadyExists, "history entries are immutable")
	}
	return r.docs.put(ctx, e.ID, &e)
}

// List implements reinforcement.HistoryRepository.
func (r *HistoryRepository) List(ctx context.Context) ([]reinforcement.HistoryEntry, error) {
	all, err := r.docs.list(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]reinforcement.HistoryEntry, 0, len(all))
	for _, e := range all {
		out = append(out, *e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CompletedAt.After(out[j].CompletedAt) })
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG & SCHOOL
// ══════════════════════════════════════════════════════════════════════════════

// CompetencyRepository implements catalog.Repository.
type CompetencyRepository struct {
	docs documents[catalog.Competency]
}

// NewCompetencyRepository creates a catalog repository over store.
func NewCompetencyRepository(store record.Store) *CompetencyRepository {
	return &CompetencyRepository{docs: newDocuments[catalog.Competency](store, record.CollectionCompetencies, shared.ErrCompetencyNotFound)}
}

// Competency implements catalog.Lookup.
func (r *CompetencyRepository) Competency(ctx context.Context, id string) (*catalog.Competency, error) {
	return r.docs.get(ctx, id)
}

// List implements catalog.Repository.
func (r *CompetencyRepository) List(ctx context.Context) ([]*catalog.Competency, error) {
	all, err := r.docs.list(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Code < all[j].Code })
	return all, nil
}

// Save implements catalog.Repository.
func (r *CompetencyRepository) Save(ctx context.Context, c *catalog.Competency) error {
	return r.docs.put(ctx, c.ID, c)
}

// Delete implements catalog.Repository.
func (r *CompetencyRepository) Delete(ctx context.Context, id string) error {
	return r.docs.delete(ctx, id)
}

// ClassRepository implements school.ClassRepository.
type ClassRepository struct {
	docs documents[school.ClassRoom]
}

// NewClassRepository creates a class repository over store.
func NewClassRepository(store record.Store) *ClassRepository {
	return &ClassRepository{docs: newDocuments[school.ClassRoom](store, record.CollectionClasses, shared.ErrClassNotFound)}
}

// GetByID implements school.ClassRepository.
func (r *ClassRepository) GetByID(ctx context.Context, id string) (*school.ClassRoom, error) {
	return r.docs.get(ctx, id)
}

// List implements school.ClassRepository.
func (r *ClassRepository) List(ctx context.Context) ([]*school.ClassRoom, error) {
	return r.docs.list(ctx)
}

// Save implements school.ClassRepository.
func (r *ClassRepository) Save(ctx context.Context, c *school.ClassRoom) error {
	return r.docs.put(ctx, c.ID, c)
}

// Delete implements school.ClassRepository.
func (r *ClassRepository) Delete(ctx context.Context, id string) error {
	return r.docs.delete(ctx, id)
}

// InviteRepository implements school.InviteRepository.
type InviteRepository struct {
	docs documents[school.Invite]
}

// NewInviteRepository creates an invite repository over store.
func NewInviteRepository(store record.Store) *InviteRepository {
	return &InviteRepository{docs: newDocuments[school.Invite](store, record.CollectionInvites, shared.ErrInviteNotFound)}
}

// GetByID implements school.InviteRepository.
func (r *InviteRepository) GetByID(ctx context.Context, id string) (*school.Invite, error) {
	return r.docs.get(ctx, id)
}

// List implements school.InviteRepository.
func (r *InviteRepository) List(ctx context.Context) ([]*school.Invite, error) {
	return r.docs.list(ctx)
}

// Save implements school.InviteRepository.
func (r *InviteRepository) Save(ctx context.Context, i *school.Invite) error {
	return r.docs.put(ctx, i.ID, i)
}

// Delete implements school.InviteRepository.
func (r *InviteRepository) Delete(ctx context.Context, id string) error {
	return r.docs.delete(ctx, id)
}

// ══════════════════════════════════════════════════════════════════════════════
// SET
// ══════════════════════════════════════════════════════════════════════════════

// Set bundles every repository over one store.
type Set struct {
	Students     *StudentRepository
	Groups       *GroupRepository
	Attendance   *AttendanceRepository
	History      *HistoryRepository
	Competencies *CompetencyRepository
	Classes      *ClassRepository
	Invites      *InviteRepository
}

// NewSet builds all repositories over store.
func NewSet(store record.Store) *Set {
	return &Set{
		Students:     NewStudentRepository(store),
		Groups:       NewGroupRepository(store),
		Attendance:   NewAttendanceRepository(store),
		History:      NewHistoryRepository(store),
		Competencies: NewCompetencyRepository(store),
		Classes:      NewClassRepository(store),
		Invites:      NewInviteRepository(store),
	}
}
