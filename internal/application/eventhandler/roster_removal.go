package eventhandler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/edutracker/edutracker/internal/domain/shared"
	"github.com/edutracker/edutracker/pkg/logger"
	"github.com/edutracker/edutracker/pkg/retry"
)

// RosterRemover takes a student off a group roster idempotently.
type RosterRemover interface {
	Handle(ctx context.Context, groupID, studentID string) (bool, error)
}

// RosterRemovalRetryHandler finishes discharges whose roster update failed.
type RosterRemovalRetryHandler struct {
	remover RosterRemover
	retrier *retry.Retrier
	logger  *slog.Logger
}

// NewRosterRemovalRetryHandler creates the handler.
func NewRosterRemovalRetryHandler(remover RosterRemover, l *slog.Logger) *RosterRemovalRetryHandler {
	return &RosterRemovalRetryHandler{
		remover: remover,
		retrier: retry.New(
			retry.WithMaxAttempts(4),
			retry.WithInitialDelay(200*time.Millisecond),
			retry.WithRetryIf(func(err error) bool { return !shared.IsNotFound(err) }),
		),
		logger: logger.OrDefault(l).With(logger.Component("roster_removal_retry")),
	}
}

// Handle implements shared.EventHandler for reinforcement.roster_removal_pending.
func (h *RosterRemovalRetryHandler) Handle(event shared.Event) error {
	if event.EventType() != shared.EventRosterRemovalPending {
		return nil
	}
	groupID := event.AggregateID()
	studentID, _ := event.Payload()["student_id"].(string)
	if studentID == "" {
		return fmt.Errorf("roster removal event for group %s has no student_id", groupID)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := h.retrier.Do(ctx, func(ctx context.Context) error {
		_, err := h.remover.Handle(ctx, groupID, studentID)
		return err
	})
	switch {
	case shared.IsNotFound(err):
		h.logger.Info("group gone; nothing to remove", logger.GroupID(groupID), logger.StudentID(studentID))
		return nil
	case err != nil:
		return fmt.Errorf("remove %s from %s: %w", studentID, groupID, err)
	}
	h.logger.Info("pending roster removal completed", logger.GroupID(groupID), logger.StudentID(studentID))
	return nil
}
