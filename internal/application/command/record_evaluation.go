package command

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/edutracker/edutracker/internal/domain/shared"
	"github.com/edutracker/edutracker/internal/domain/student"
	"github.com/edutracker/edutracker/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD EVALUATION
// Stores one assessment and re-derives the student's standing from it.
// ══════════════════════════════════════════════════════════════════════════════

// RecordEvaluationCommand is one assessment of one student.
type RecordEvaluationCommand struct {
	StudentID    string `json:"student_id" validate:"required"`
	CompetencyID string `json:"competency_id" validate:"required"`
	Level        string `json:"level" validate:"required,oneof=not_achieved developing achieved exceeded"`
	// Bimester is inferred from Date when empty.
	Bimester string   `json:"bimester" validate:"omitempty,oneof=B1 B2 B3 B4"`
	Kind     string   `json:"kind" validate:"omitempty,oneof=test project participation classwork other"`
	Score    *float64 `json:"score" validate:"omitempty,gte=0"`
	MaxScore *float64 `json:"max_score" validate:"omitempty,gt=0"`
	Feedback string   `json:"feedback" validate:"max=2000"`
	Date     string   `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

// params converts the command into domain input. Struct tags must already
// have passed.
func (c RecordEvaluationCommand) params() (student.NewEvaluationParams, error) {
	var date shared.Date
	if c.Date != "" {
		d, err := shared.ParseDate(c.Date)
		if err != nil {
			return student.NewEvaluationParams{}, err
		}
		date = d
	}
	return student.NewEvaluationParams{
		StudentID:    c.StudentID,
		CompetencyID: c.CompetencyID,
		Level:        student.Level(c.Level),
		Bimester:     student.Bimester(c.Bimester),
		Kind:         student.AssessmentKind(c.Kind),
		Score:        c.Score,
		MaxScore:     c.MaxScore,
		Feedback:     c.Feedback,
		Date:         date,
	}, nil
}

// RecordEvaluationResult reports what the evaluation changed.
type RecordEvaluationResult struct {
	Evaluation  student.Evaluation `json:"evaluation"`
	Overwritten bool               `json:"overwritten"`
	Previous    student.Standing   `json:"previous_standing"`
	Standing    student.Standing   `json:"standing"`
}

// StandingChanged reports whether the standing moved.
func (r RecordEvaluationResult) StandingChanged() bool {
	return r.Previous != r.Standing
}

// RecordEvaluationHandler handles RecordEvaluationCommand.
type RecordEvaluationHandler struct {
	students  student.Repository
	publisher shared.EventPublisher
	logger    *slog.Logger
}

// NewRecordEvaluationHandler creates the handler.
func NewRecordEvaluationHandler(students student.Repository, publisher shared.EventPublisher, l *slog.Logger) *RecordEvaluationHandler {
	if publisher == nil {
		publisher = shared.NopPublisher{}
	}
	return &RecordEvaluationHandler{students: students, publisher: publisher, logger: logger.OrDefault(l)}
}

// Handle validates, stores the evaluation and overwrites the standing.
// Nothing is written when validation fails.
func (h *RecordEvaluationHandler) Handle(ctx context.Context, cmd RecordEvaluationCommand) (*RecordEvaluationResult, error) {
	if err := validateStruct("record_evaluation", cmd); err != nil {
		return nil, err
	}
	params, err := cmd.params()
	if err != nil {
		return nil, err
	}
	eval, err := student.NewEvaluation(params)
	if err != nil {
		return nil, err
	}

	s, err := h.students.GetByID(ctx, cmd.StudentID)
	if err != nil {
		return nil, err
	}

	previous, overwritten := s.ApplyEvaluation(eval)
	if err := h.students.Save(ctx, s); err != nil {
		return nil, fmt.Errorf("record_evaluation: save student: %w", err)
	}

	res := &RecordEvaluationResult{
		Evaluation:  eval,
		Overwritten: overwritten,
		Previous:    previous,
		Standing:    s.Standing,
	}
	publishEvaluation(h.publisher, h.logger, res)
	return res, nil
}

func publishEvaluation(p shared.EventPublisher, l *slog.Logger, res *RecordEvaluationResult) {
	e := res.Evaluation
	events := []shared.Event{
		shared.NewEvaluationRecordedEvent(e.StudentID, e.CompetencyID, string(e.Bimester), string(e.Level), res.Overwritten),
	}
	if res.StandingChanged() {
		events = append(events, shared.NewStandingChangedEvent(e.StudentID, string(res.Previous), string(res.Standing)))
	}
	publishAll(p, l, events...)
}

// publishAll publishes events and logs failures. Events never fail a command.
func publishAll(p shared.EventPublisher, l *slog.Logger, events ...shared.Event) {
	for _, e := range events {
		if err := p.Publish(e); err != nil {
			l.Warn("event publish failed",
				slog.String("event_type", string(e.EventType())),
				slog.String("aggregate_id", e.AggregateID()),
				logger.Err(err))
		}
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// RECORD CLASS EVALUATIONS (batch)
// ══════════════════════════════════════════════════════════════════════════════

// ClassEvaluationRow is one student's line in a class batch. A row without a
// level is skipped.
type ClassEvaluationRow struct {
	StudentID string   `json:"student_id" validate:"required"`
	Level     string   `json:"level" validate:"omitempty,oneof=not_achieved developing achieved exceeded"`
	Score     *float64 `json:"score" validate:"omitempty,gte=0"`
	Feedback  string   `json:"feedback" validate:"max=2000"`
}

// RecordClassEvaluationsCommand evaluates a whole class on one competency.
type RecordClassEvaluationsCommand struct {
	ClassID      string               `json:"class_id" validate:"required"`
	CompetencyID string               `json:"competency_id" validate:"required"`
	Bimester     string               `json:"bimester" validate:"omitempty,oneof=B1 B2 B3 B4"`
	Kind         string               `json:"kind" validate:"omitempty,oneof=test project participation classwork other"`
	MaxScore     *float64             `json:"max_score" validate:"omitempty,gt=0"`
	Date         string               `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Rows         []ClassEvaluationRow `json:"rows" validate:"required,min=1,dive"`
}

// RecordClassEvaluationsResult summarises a batch.
type RecordClassEvaluationsResult struct {
	Recorded []RecordEvaluationResult `json:"recorded"`
	Skipped  []string                 `json:"skipped"`
}

// RecordClassEvaluationsHandler handles the batch. Every row is validated
// and every student loaded before the first write.
type RecordClassEvaluationsHandler struct {
	students  student.Repository
	publisher shared.EventPublisher
	logger    *slog.Logger
}

// NewRecordClassEvaluationsHandler creates the handler.
func NewRecordClassEvaluationsHandler(students student.Repository, publisher shared.EventPublisher, l *slog.Logger) *RecordClassEvaluationsHandler {
	if publisher == nil {
		publisher = shared.NopPublisher{}
	}
	return &RecordClassEvaluationsHandler{students: students, publisher: publisher, logger: logger.OrDefault(l)}
}

// Handle records the batch.
func (h *RecordClassEvaluationsHandler) Handle(ctx context.Context, cmd RecordClassEvaluationsCommand) (*RecordClassEvaluationsResult, error) {
	const op = "record_class_evaluations"
	if err := validateStruct(op, cmd); err != nil {
		return nil, err
	}

	type pending struct {
		s    *student.Student
		eval student.Evaluation
	}
	var (
		plan []pending
		res  = &RecordClassEvaluationsResult{Recorded: []RecordEvaluationResult{}, Skipped: []string{}}
	)

	for _, row := range cmd.Rows {
		if row.Level == "" {
			res.Skipped = append(res.Skipped, row.StudentID)
			continue
		}
		single := RecordEvaluationCommand{
			StudentID:    row.StudentID,
			CompetencyID: cmd.CompetencyID,
			Level:        row.Level,
			Bimester:     cmd.Bimester,
			Kind:         cmd.Kind,
			Score:        row.Score,
			MaxScore:     cmd.MaxScore,
			Feedback:     row.Feedback,
			Date:         cmd.Date,
		}
		params, err := single.params()
		if err != nil {
			return nil, err
		}
		eval, err := student.NewEvaluation(params)
		if err != nil {
			return nil, shared.WrapError("evaluation", op, shared.ErrValidation,
				fmt.Sprintf("row for student %s", row.StudentID), err)
		}

		s, err := h.students.GetByID(ctx, row.StudentID)
		if err != nil {
			return nil, err
		}
		if s.ClassID != cmd.ClassID {
			return nil, shared.NewValidationError("evaluation", op,
				fmt.Sprintf("student %s is not in class %s", row.StudentID, cmd.ClassID))
		}
		plan = append(plan, pending{s: s, eval: eval})
	}

	for _, p := range plan {
		previous, overwritten := p.s.ApplyEvaluation(p.eval)
		if err := h.students.Save(ctx, p.s); err != nil {
			return res, fmt.Errorf("%s: save student %s: %w", op, p.s.ID, err)
		}
		r := RecordEvaluationResult{
			Evaluation:  p.eval,
			Overwritten: overwritten,
			Previous:    previous,
			Standing:    p.s.Standing,
		}
		res.Recorded = append(res.Recorded, r)
		publishEvaluation(h.publisher, h.logger, &r)
	}
	return res, nil
}
