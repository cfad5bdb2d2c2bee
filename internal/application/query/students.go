package query

import (
	"context"
	"sort"

	"github.com/edutracker/edutracker/internal/domain/catalog"
	"github.com/edutracker/edutracker/internal/domain/reinforcement"
	"github.com/edutracker/edutracker/internal/domain/shared"
	"github.com/edutracker/edutracker/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

// EvaluationView is an evaluation with its catalog metadata resolved.
type EvaluationView struct {
	student.Evaluation
	CompetencyCode string `json:"competency_code,omitempty"`
	CompetencyName string `json:"competency_name,omitempty"`
}

// StudentProgressDTO is a student with their evaluation history.
type StudentProgressDTO struct {
	ID       string           `json:"id"`
	Name     string           `json:"name"`
	Age      int              `json:"age"`
	Grade    string           `json:"grade"`
	ClassID  string           `json:"class_id"`
	Standing student.Standing `json:"standing"`

	// Evaluations are ordered by bimester, then date.
	Evaluations []EvaluationView `json:"evaluations"`

	// GroupIDs lists the groups the student is currently in.
	GroupIDs []string `json:"group_ids"`
}

// StudentProgressHandler reads students.
type StudentProgressHandler struct {
	students student.Repository
	groups   reinforcement.GroupRepository
	lookup   catalog.Lookup
}

// NewStudentProgressHandler creates the handler. groups and lookup may be nil.
func NewStudentProgressHandler(students student.Repository, groups reinforcement.GroupRepository, lookup catalog.Lookup) *StudentProgressHandler {
	return &StudentProgressHandler{students: students, groups: groups, lookup: lookup}
}

// Handle returns one student's progress. Catalog metadata is best effort.
func (h *StudentProgressHandler) Handle(ctx context.Context, studentID string) (*StudentProgressDTO, error) {
	s, err := h.students.GetByID(ctx, studentID)
	if err != nil {
		return nil, err
	}

	dto := &StudentProgressDTO{
		ID:          s.ID,
		Name:        s.Name,
		Age:         s.Age,
		Grade:       s.Grade,
		ClassID:     s.ClassID,
		Standing:    s.Standing,
		Evaluations: make([]EvaluationView, 0, len(s.Evaluations)),
		GroupIDs:    []string{},
	}

	for _, e := range s.Evaluations {
		v := EvaluationView{Evaluation: e}
		if h.lookup != nil && !e.IsDischarge() {
			c, err := h.lookup.Competency(ctx, e.CompetencyID)
			switch {
			case err == nil:
				v.CompetencyCode = c.Code
				v.CompetencyName = c.Name
			case !shared.IsNotFound(err):
				return nil, err
			}
		}
		dto.Evaluations = append(dto.Evaluations, v)
	}
	sort.SliceStable(dto.Evaluations, func(i, j int) bool {
		a, b := dto.Evaluations[i], dto.Evaluations[j]
		if a.Bimester != b.Bimester {
			return a.Bimester < b.Bimester
		}
		return a.Date.Before(b.Date)
	})

	if h.groups != nil {
		groups, err := h.groups.List(ctx)
		if err != nil {
			return nil, err
		}
		for _, g := range groups {
			if g.HasMember(s.ID) {
				dto.GroupIDs = append(dto.GroupIDs, g.ID)
			}
		}
	}
	return dto, nil
}

// ListStudentsQuery filters the student list.
type ListStudentsQuery struct {
	ClassID  string
	Standing student.Standing
}

// Validate checks the query.
func (q ListStudentsQuery) Validate() error {
	if q.Standing != "" && !q.Standing.IsValid() {
		return shared.NewValidationError("student", "List", "unknown standing "+string(q.Standing))
	}
	return nil
}

// List returns students ordered by name.
func (h *StudentProgressHandler) List(ctx context.Context, q ListStudentsQuery) ([]*student.Student, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return h.students.List(ctx, student.ListFilter{ClassID: q.ClassID, Standing: q.Standing})
}

// ══════════════════════════════════════════════════════════════════════════════
// REINFORCEMENT CANDIDATES
// ══════════════════════════════════════════════════════════════════════════════

// CandidatesHandler lists students who need reinforcement and are not in any
// group.
type CandidatesHandler struct {
	students student.Repository
	groups   reinforcement.GroupRepository
}

// NewCandidatesHandler creates the handler.
func NewCandidatesHandler(students student.Repository, groups reinforcement.GroupRepository) *CandidatesHandler {
	return &CandidatesHandler{students: students, groups: groups}
}

// Handle returns candidates ordered by name, optionally within one class.
func (h *CandidatesHandler) Handle(ctx context.Context, classID string) ([]*student.Student, error) {
	needing, err := h.students.List(ctx, student.ListFilter{
		ClassID:  classID,
		Standing: student.StandingNeedsReinforcement,
	})
	if err != nil {
		return nil, err
	}
	groups, err := h.groups.List(ctx)
	if err != nil {
		return nil, err
	}

	grouped := make(map[string]bool)
	for _, g := range groups {
		for _, id := range g.MemberIDs {
			grouped[id] = true
		}
	}

	out := make([]*student.Student, 0, len(needing))
	for _, s := range needing {
		if !grouped[s.ID] {
			out = append(out, s)
		}
	}
	return out, nil
}
