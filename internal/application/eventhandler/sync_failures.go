package eventhandler

import (
	"log/slog"

	"github.com/edutracker/edutracker/internal/domain/shared"
	"github.com/edutracker/edutracker/pkg/logger"
)

// LogSyncFailures returns a handler that logs parked outbox tasks at error
// level. Operators requeue them with `edutrackctl outbox retry`.
func LogSyncFailures(l *slog.Logger) shared.EventHandler {
	log := logger.OrDefault(l).With(logger.Component("sync_failures"))
	return func(event shared.Event) error {
		if event.EventType() != shared.EventSyncTaskFailed {
			return nil
		}
		p := event.Payload()
		log.Error("remote mirror task parked",
			logger.TaskID(event.AggregateID()),
			slog.Any("collection", p["collection"]),
			slog.Any("record_id", p["record_id"]),
			slog.Any("attempts", p["attempts"]),
			slog.Any("last_error", p["last_error"]),
		)
		return nil
	}
}

// Register wires the handlers to bus.
func Register(bus shared.EventSubscriber, risk *AttendanceRiskHandler, roster *RosterRemovalRetryHandler, l *slog.Logger) error {
	if risk != nil {
		if err := bus.Subscribe(shared.EventAttendanceRecorded, risk.Handle); err != nil {
			return err
		}
	}
	if roster != nil {
		if err := bus.Subscribe(shared.EventRosterRemovalPending, roster.Handle); err != nil {
			return err
		}
	}
	return bus.Subscribe(shared.EventSyncTaskFailed, LogSyncFailures(l))
}
