package student

import (
	"fmt"
	"strings"
	"time"

	"github.com/edutracker/edutracker/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENUMS
// ══════════════════════════════════════════════════════════════════════════════

// Standing is the aggregate progress state of a student.
type Standing string

const (
	// StandingAdequate is the enrollment default.
	StandingAdequate Standing = "adequate"
	// StandingDeveloping means the latest evaluation was partial.
	StandingDeveloping Standing = "developing"
	// StandingNeedsReinforcement flags the student for remedial support.
	StandingNeedsReinforcement Standing = "needs_reinforcement"
)

// IsValid checks the standing is a known value.
func (s Standing) IsValid() bool {
	switch s {
	case StandingAdequate, StandingDeveloping, StandingNeedsReinforcement:
		return true
	default:
		return false
	}
}

// AllStandings lists standings in display order.
func AllStandings() []Standing {
	return []Standing{StandingAdequate, StandingDeveloping, StandingNeedsReinforcement}
}

// Level is the achievement level of a single evaluation.
type Level string

const (
	LevelNotAchieved Level = "not_achieved"
	LevelDeveloping  Level = "developing"
	LevelAchieved    Level = "achieved"
	LevelExceeded    Level = "exceeded"
)

// IsValid checks the level is one of the four known values.
func (l Level) IsValid() bool {
	switch l {
	case LevelNotAchieved, LevelDeveloping, LevelAchieved, LevelExceeded:
		return true
	default:
		return false
	}
}

// AllLevels lists levels from lowest to highest.
func AllLevels() []Level {
	return []Level{LevelNotAchieved, LevelDeveloping, LevelAchieved, LevelExceeded}
}

// ParseLevel validates a raw level value.
func ParseLevel(s string) (Level, error) {
	l := Level(strings.TrimSpace(s))
	if !l.IsValid() {
		return "", shared.ErrInvalidLevel
	}
	return l, nil
}

// Bimester is the school-year period tag.
type Bimester string

const (
	B1 Bimester = "B1"
	B2 Bimester = "B2"
	B3 Bimester = "B3"
	B4 Bimester = "B4"
)

// IsValid checks the bimester tag.
func (b Bimester) IsValid() bool {
	switch b {
	case B1, B2, B3, B4:
		return true
	default:
		return false
	}
}

// BimesterFor maps a date to the bimester of the Brazilian school calendar:
// Jan-Apr B1, May-Jul B2, Aug-Sep B3, Oct-Dec B4.
func BimesterFor(t time.Time) Bimester {
	switch m := t.Month(); {
	case m <= time.April:
		return B1
	case m <= time.July:
		return B2
	case m <= time.September:
		return B3
	default:
		return B4
	}
}

// AssessmentKind is the instrument an evaluation came from.
type AssessmentKind string

const (
	KindTest          AssessmentKind = "test"
	KindProject       AssessmentKind = "project"
	KindParticipation AssessmentKind = "participation"
	KindClasswork     AssessmentKind = "classwork"
	KindOther         AssessmentKind = "other"
)

// IsValid checks the assessment kind.
func (k AssessmentKind) IsValid() bool {
	switch k {
	case KindTest, KindProject, KindParticipation, KindClasswork, KindOther:
		return true
	default:
		return false
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: STUDENT
// ══════════════════════════════════════════════════════════════════════════════

// Student is an enrolled pupil and their evaluation history.
type Student struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Age     int    `json:"age"`
	Grade   string `json:"grade"`
	ClassID string `json:"class_id"`

	// Standing is only ever written by ApplyEvaluation, ApplyDischarge or
	// enrollment.
	Standing Standing `json:"standing"`

	// Evaluations holds at most one entry per (competency, bimester).
	Evaluations []Evaluation `json:"evaluations"`

	EnrolledAt time.Time `json:"enrolled_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// NewStudentParams holds enrollment input.
type NewStudentParams struct {
	ID      string
	Name    string
	Age     int
	Grade   string
	ClassID string
}

// NewStudent enrolls a student with the default standing.
func NewStudent(params NewStudentParams) (*Student, error) {
	if strings.TrimSpace(params.ID) == "" {
		return nil, shared.NewDomainError("student", "New", shared.ErrInvalidID, "student id is required")
	}

	name := strings.TrimSpace(params.Name)
	if name == "" || len(name) > 200 {
		return nil, shared.NewValidationError("student", "New", "name must be 1-200 chars")
	}

	if params.Age < 0 || params.Age > 120 {
		return nil, shared.NewDomainError("student", "New", shared.ErrValueOutOfRange, "age out of range")
	}

	now := time.Now().UTC()

	return &Student{
		ID:          params.ID,
		Name:        name,
		Age:         params.Age,
		Grade:       strings.TrimSpace(params.Grade),
		ClassID:     params.ClassID,
		Standing:    StandingAdequate,
		Evaluations: []Evaluation{},
		EnrolledAt:  now,
		UpdatedAt:   now,
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN METHODS
// ══════════════════════════════════════════════════════════════════════════════

// UpsertEvaluation stores e keyed by (competency, bimester). An existing entry
// for the same key is replaced in place and keeps its position.
func (s *Student) UpsertEvaluation(e Evaluation) (overwritten bool) {
	for i := range s.Evaluations {
		if s.Evaluations[i].sameSlot(e) {
			s.Evaluations[i] = e
			s.UpdatedAt = time.Now().UTC()
			return true
		}
	}
	s.Evaluations = append(s.Evaluations, e)
	s.UpdatedAt = time.Now().UTC()
	return false
}

// ApplyEvaluation stores e and overwrites the standing from its level.
// It returns the previous standing and whether an evaluation was replaced.
func (s *Student) ApplyEvaluation(e Evaluation) (previous Standing, overwritten bool) {
	previous = s.Standing
	overwritten = s.UpsertEvaluation(e)
	s.Standing = DeriveStanding(e.Level)
	return previous, overwritten
}

// ApplyDischarge stores the final evaluation and sets the exit standing.
func (s *Student) ApplyDischarge(e Evaluation) (previous Standing) {
	previous = s.Standing
	s.UpsertEvaluation(e)
	s.Standing = DischargeStanding(e.Level)
	return previous
}

// Evaluation returns the stored evaluation for a slot.
func (s *Student) Evaluation(competencyID string, b Bimester) (Evaluation, bool) {
	for _, e := range s.Evaluations {
		if e.CompetencyID == competencyID && e.Bimester == b {
			return e, true
		}
	}
	return Evaluation{}, false
}

// LatestEvaluation returns the most recently recorded evaluation.
func (s *Student) LatestEvaluation() (Evaluation, bool) {
	var (
		latest Evaluation
		found  bool
	)
	for _, e := range s.Evaluations {
		if !found || e.RecordedAt.After(latest.RecordedAt) {
			latest = e
			found = true
		}
	}
	return latest, found
}

// NeedsReinforcement reports whether the student is a reinforcement candidate.
func (s *Student) NeedsReinforcement() bool {
	return s.Standing == StandingNeedsReinforcement
}

// String returns a log-friendly representation.
func (s *Student) String() string {
	return fmt.Sprintf("Student{ID: %s, Name: %s, Standing: %s, Evaluations: %d}",
		s.ID, s.Name, s.Standing, len(s.Evaluations))
}

// Clone returns a deep copy.
func (s *Student) Clone() *Student {
	if s == nil {
		return nil
	}
	clone := *s
	clone.Evaluations = make([]Evaluation, len(s.Evaluations))
	copy(clone.Evaluations, s.Evaluations)
	return &clone
}
