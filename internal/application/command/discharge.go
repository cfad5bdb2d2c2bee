package command

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/edutracker/edutracker/internal/domain/reinforcement"
	"github.com/edutracker/edutracker/internal/domain/shared"
	"github.com/edutracker/edutracker/internal/domain/student"
	"github.com/edutracker/edutracker/pkg/logger"
)

// ErrRosterRemovalPending means a discharge was recorded but the student is
// still on the group roster. Retry with RemoveFromRosterHandler.
var ErrRosterRemovalPending = shared.NewDomainError("reinforcement", "Discharge",
	shared.ErrPartialFailure, "student discharged but still on the group roster")

// ══════════════════════════════════════════════════════════════════════════════
// DISCHARGE STUDENT
// ══════════════════════════════════════════════════════════════════════════════

// DischargeStudentCommand takes a student out of a reinforcement group with
// a final evaluation.
type DischargeStudentCommand struct {
	GroupID    string   `json:"-" validate:"required"`
	StudentID  string   `json:"student_id" validate:"required"`
	FinalLevel string   `json:"final_level" validate:"required,oneof=not_achieved developing achieved exceeded"`
	FinalScore *float64 `json:"final_score" validate:"omitempty,gte=0"`
	MaxScore   *float64 `json:"max_score" validate:"omitempty,gt=0"`
	Feedback   string   `json:"feedback" validate:"max=2000"`
}

// DischargeResult reports the outcome of a discharge. It is returned together
// with ErrRosterRemovalPending when only the roster update failed.
type DischargeResult struct {
	Evaluation        student.Evaluation         `json:"evaluation"`
	Previous          student.Standing           `json:"previous_standing"`
	Standing          student.Standing           `json:"standing"`
	History           reinforcement.HistoryEntry `json:"history"`
	RemovedFromRoster bool                       `json:"removed_from_roster"`
}

// DischargeStudentHandler handles DischargeStudentCommand.
type DischargeStudentHandler struct {
	students  student.Repository
	groups    reinforcement.GroupRepository
	history   reinforcement.HistoryRepository
	publisher shared.EventPublisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewDischargeStudentHandler creates the handler.
func NewDischargeStudentHandler(
	students student.Repository,
	groups reinforcement.GroupRepository,
	history reinforcement.HistoryRepository,
	publisher shared.EventPublisher,
	l *slog.Logger,
) *DischargeStudentHandler {
	if publisher == nil {
		publisher = shared.NopPublisher{}
	}
	return &DischargeStudentHandler{
		students:  students,
		groups:    groups,
		history:   history,
		publisher: publisher,
		logger:    logger.OrDefault(l),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Handle runs the discharge in order: final evaluation, exit standing,
// student save, history append, roster removal. Membership is not required,
// so a repeated discharge succeeds and appends another history entry.
func (h *DischargeStudentHandler) Handle(ctx context.Context, cmd DischargeStudentCommand) (*DischargeResult, error) {
	const op = "discharge_student"
	if err := validateStruct(op, cmd); err != nil {
		return nil, err
	}

	g, err := h.groups.GetByID(ctx, cmd.GroupID)
	if err != nil {
		return nil, err
	}
	s, err := h.students.GetByID(ctx, cmd.StudentID)
	if err != nil {
		return nil, err
	}

	now := h.now()
	eval, err := student.NewEvaluation(student.NewEvaluationParams{
		StudentID:    s.ID,
		CompetencyID: student.DischargeCompetencyFor(g.ID),
		Level:        student.Level(cmd.FinalLevel),
		Bimester:     student.BimesterFor(now),
		Kind:         student.KindOther,
		Score:        cmd.FinalScore,
		MaxScore:     cmd.MaxScore,
		Feedback:     cmd.Feedback,
		Date:         shared.NewDate(now),
	})
	if err != nil {
		return nil, err
	}

	previous := s.ApplyDischarge(eval)
	if err := h.students.Save(ctx, s); err != nil {
		return nil, fmt.Errorf("%s: save student: %w", op, err)
	}

	entry := reinforcement.NewHistoryEntry(uuid.NewString(), s.ID, s.Name, g, cmd.FinalLevel, now)
	if err := h.history.Append(ctx, entry); err != nil {
		return nil, fmt.Errorf("%s: append history: %w", op, err)
	}

	res := &DischargeResult{
		Evaluation: eval,
		Previous:   previous,
		Standing:   s.Standing,
		History:    entry,
	}
	events := []shared.Event{shared.NewStudentDischargedEvent(s.ID, g.ID, g.Name, cmd.FinalLevel)}
	if previous != s.Standing {
		events = append(events, shared.NewStandingChangedEvent(s.ID, string(previous), string(s.Standing)))
	}

	if g.RemoveMember(s.ID) {
		if err := h.groups.Save(ctx, g); err != nil {
			h.logger.Warn("discharge recorded but roster update failed",
				logger.StudentID(s.ID), logger.GroupID(g.ID), logger.Err(err))
			events = append(events, shared.NewRosterRemovalPendingEvent(g.ID, s.ID, err.Error()))
			publishAll(h.publisher, h.logger, events...)
			return res, shared.WrapError("reinforcement", op, ErrRosterRemovalPending,
				fmt.Sprintf("remove %s from group %s", s.ID, g.ID), err)
		}
	}
	res.RemovedFromRoster = true

	publishAll(h.publisher, h.logger, events...)
	return res, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// REMOVE FROM ROSTER
// ══════════════════════════════════════════════════════════════════════════════

// RemoveFromRosterHandler takes a student off a group roster. Removing an
// absent student succeeds.
type RemoveFromRosterHandler struct {
	groups    reinforcement.GroupRepository
	publisher shared.EventPublisher
	logger    *slog.Logger
}

// NewRemoveFromRosterHandler creates the handler.
func NewRemoveFromRosterHandler(groups reinforcement.GroupRepository, publisher shared.EventPublisher, l *slog.Logger) *RemoveFromRosterHandler {
	if publisher == nil {
		publisher = shared.NopPublisher{}
	}
	return &RemoveFromRosterHandler{groups: groups, publisher: publisher, logger: logger.OrDefault(l)}
}

// Handle removes studentID and reports whether the roster changed.
func (h *RemoveFromRosterHandler) Handle(ctx context.Context, groupID, studentID string) (bool, error) {
	const op = "remove_from_roster"
	if studentID == "" {
		return false, shared.NewDomainError("group", op, shared.ErrInvalidID, "student id is required")
	}
	g, err := h.groups.GetByID(ctx, groupID)
	if err != nil {
		return false, err
	}
	if !g.RemoveMember(studentID) {
		return false, nil
	}
	if err := h.groups.Save(ctx, g); err != nil {
		return false, fmt.Errorf("%s: save: %w", op, err)
	}
	publishAll(h.publisher, h.logger,
		shared.NewGroupChangedEvent(shared.EventGroupUpdated, g.ID, g.Name, len(g.MemberIDs)))
	return true, nil
}
