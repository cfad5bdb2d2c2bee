package student

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/edutracker/edutracker/internal/domain/shared"
)

// DischargeCompetencyID is the sentinel competency of final discharge
// evaluations. Discharges from a specific group are filed under
// DischargeCompetencyFor so each group keeps its own slot.
const DischargeCompetencyID = "discharge"

// DischargeCompetencyFor returns the discharge slot of groupID.
func DischargeCompetencyFor(groupID string) string {
	if groupID == "" {
		return DischargeCompetencyID
	}
	return DischargeCompetencyID + ":" + groupID
}

// evaluationNamespace seeds deterministic evaluation IDs.
var evaluationNamespace = uuid.MustParse("6f1c3b9e-2d4a-4f5e-9a7b-0c8d1e2f3a4b")

// Evaluation is one competency assessment result for a student.
type Evaluation struct {
	ID           string         `json:"id"`
	StudentID    string         `json:"student_id"`
	CompetencyID string         `json:"competency_id"`
	Level        Level          `json:"level"`
	Bimester     Bimester       `json:"bimester"`
	Kind         AssessmentKind `json:"kind"`
	Score        *float64       `json:"score,omitempty"`
	MaxScore     *float64       `json:"max_score,omitempty"`
	Feedback     string         `json:"feedback,omitempty"`
	Date         shared.Date    `json:"date"`
	RecordedAt   time.Time      `json:"recorded_at"`
}

func (e Evaluation) sameSlot(other Evaluation) bool {
	return e.CompetencyID == other.CompetencyID && e.Bimester == other.Bimester
}

// IsDischarge reports whether e closes a reinforcement participation.
func (e Evaluation) IsDischarge() bool {
	return e.CompetencyID == DischargeCompetencyID ||
		strings.HasPrefix(e.CompetencyID, DischargeCompetencyID+":")
}

// EvaluationID returns the stable ID of a (student, competency, bimester) slot,
// so an overwrite keeps the identifier of the evaluation it replaces.
func EvaluationID(studentID, competencyID string, b Bimester) string {
	return uuid.NewSHA1(evaluationNamespace, []byte(studentID+"|"+competencyID+"|"+string(b))).String()
}

// NewEvaluationParams holds the input of a single assessment.
type NewEvaluationParams struct {
	StudentID    string
	CompetencyID string
	Level        Level
	// Bimester defaults to the bimester of Date when empty.
	Bimester Bimester
	// Kind defaults to KindOther when empty.
	Kind     AssessmentKind
	Score    *float64
	MaxScore *float64
	Feedback string
	// Date defaults to today.
	Date shared.Date
}

// NewEvaluation validates params and builds an Evaluation. Nothing is stored.
func NewEvaluation(p NewEvaluationParams) (Evaluation, error) {
	const op = "NewEvaluation"

	if strings.TrimSpace(p.StudentID) == "" {
		return Evaluation{}, shared.NewDomainError("student", op, shared.ErrInvalidID, "student id is required")
	}
	if strings.TrimSpace(p.CompetencyID) == "" {
		return Evaluation{}, shared.NewDomainError("student", op, shared.ErrInvalidID, "competency id is required")
	}
	if !p.Level.IsValid() {
		return Evaluation{}, shared.ErrInvalidLevel
	}

	date := p.Date
	if date.IsZero() {
		date = shared.NewDate(time.Now())
	}

	bimester := p.Bimester
	if bimester == "" {
		bimester = BimesterFor(date.Time())
	}
	if !bimester.IsValid() {
		return Evaluation{}, shared.ErrInvalidBimester
	}

	kind := p.Kind
	if kind == "" {
		kind = KindOther
	}
	if !kind.IsValid() {
		return Evaluation{}, shared.NewDomainError("student", op, shared.ErrInvalidInput, "unknown assessment kind")
	}

	if err := validateScore(p.Score, p.MaxScore); err != nil {
		return Evaluation{}, err
	}

	return Evaluation{
		ID:           EvaluationID(p.StudentID, p.CompetencyID, bimester),
		StudentID:    p.StudentID,
		CompetencyID: p.CompetencyID,
		Level:        p.Level,
		Bimester:     bimester,
		Kind:         kind,
		Score:        p.Score,
		MaxScore:     p.MaxScore,
		Feedback:     strings.TrimSpace(p.Feedback),
		Date:         date,
		RecordedAt:   time.Now().UTC(),
	}, nil
}

func validateScore(score, max *float64) error {
	if max != nil && *max <= 0 {
		return shared.NewDomainError("student", "ValidateScore", shared.ErrValueOutOfRange, "max score must be positive")
	}
	if score == nil {
		return nil
	}
	if *score < 0 {
		return shared.NewDomainError("student", "ValidateScore", shared.ErrValueOutOfRange, "score cannot be negative")
	}
	if max != nil && *score > *max {
		return shared.ErrScoreAboveMax
	}
	return nil
}
