package command

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/edutracker/edutracker/internal/domain/reinforcement"
	"github.com/edutracker/edutracker/internal/domain/shared"
	"github.com/edutracker/edutracker/pkg/logger"
)

// RecordAttendanceCommand lists who attended one session of a group. An
// empty list is a session nobody attended.
type RecordAttendanceCommand struct {
	GroupID    string   `json:"-" validate:"required"`
	Date       string   `json:"date" validate:"required,datetime=2006-01-02"`
	PresentIDs []string `json:"present_ids"`
}

// RecordAttendanceResult wraps the stored record.
type RecordAttendanceResult struct {
	Record   *reinforcement.AttendanceRecord `json:"record"`
	Replaced bool                            `json:"replaced"`
}

// RecordAttendanceHandler handles RecordAttendanceCommand.
type RecordAttendanceHandler struct {
	groups     reinforcement.GroupRepository
	attendance reinforcement.AttendanceRepository
	publisher  shared.EventPublisher
	logger     *slog.Logger
}

// NewRecordAttendanceHandler creates the handler.
func NewRecordAttendanceHandler(groups reinforcement.GroupRepository, attendance reinforcement.AttendanceRepository, publisher shared.EventPublisher, l *slog.Logger) *RecordAttendanceHandler {
	if publisher == nil {
		publisher = shared.NopPublisher{}
	}
	return &RecordAttendanceHandler{groups: groups, attendance: attendance, publisher: publisher, logger: logger.OrDefault(l)}
}

// Handle upserts the record for (group, date). Every present ID must be a
// current member.
func (h *RecordAttendanceHandler) Handle(ctx context.Context, cmd RecordAttendanceCommand) (*RecordAttendanceResult, error) {
	const op = "record_attendance"
	if err := validateStruct(op, cmd); err != nil {
		return nil, err
	}
	date, err := shared.ParseDate(cmd.Date)
	if err != nil {
		return nil, err
	}

	g, err := h.groups.GetByID(ctx, cmd.GroupID)
	if err != nil {
		return nil, err
	}
	rec, err := reinforcement.NewAttendanceRecord(g, date, cmd.PresentIDs)
	if err != nil {
		return nil, err
	}

	replaced, err := h.attendance.Save(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("%s: save: %w", op, err)
	}

	publishAll(h.publisher, h.logger,
		shared.NewAttendanceRecordedEvent(g.ID, date.String(), rec.PresentIDs, replaced))
	return &RecordAttendanceResult{Record: rec, Replaced: replaced}, nil
}
