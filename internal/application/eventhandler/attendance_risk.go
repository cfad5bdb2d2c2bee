// Package eventhandler reacts to domain events.
package eventhandler

import (
	"context"
	"log/slog"
	"time"

	"github.com/edutracker/edutracker/internal/domain/reinforcement"
	"github.com/edutracker/edutracker/internal/domain/shared"
	"github.com/edutracker/edutracker/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ATTENDANCE RISK
// Warns about group members whose attendance fell under the at-risk threshold.
// ══════════════════════════════════════════════════════════════════════════════

// RiskAlert is one at-risk member.
type RiskAlert struct {
	GroupID   string `json:"group_id"`
	GroupName string `json:"group_name"`
	StudentID string `json:"student_id"`
	Rate      int    `json:"rate"`
	Sessions  int    `json:"sessions"`
}

// AttendanceRiskHandler checks attendance after every session and on demand.
type AttendanceRiskHandler struct {
	groups     reinforcement.GroupRepository
	attendance reinforcement.AttendanceRepository
	logger     *slog.Logger
	timeout    time.Duration
}

// NewAttendanceRiskHandler creates the handler.
func NewAttendanceRiskHandler(groups reinforcement.GroupRepository, attendance reinforcement.AttendanceRepository, l *slog.Logger) *AttendanceRiskHandler {
	return &AttendanceRiskHandler{
		groups:     groups,
		attendance: attendance,
		logger:     logger.OrDefault(l).With(logger.Component("attendance_risk")),
		timeout:    10 * time.Second,
	}
}

// Handle implements shared.EventHandler for attendance.recorded. The event
// may come from another process, so only the aggregate ID is used.
func (h *AttendanceRiskHandler) Handle(event shared.Event) error {
	if event.EventType() != shared.EventAttendanceRecorded {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	g, err := h.groups.GetByID(ctx, event.AggregateID())
	if shared.IsNotFound(err) {
		// Deleted since.
		return nil
	}
	if err != nil {
		return err
	}
	_, err = h.check(ctx, g)
	return err
}

// Scan checks every group and returns the at-risk members.
func (h *AttendanceRiskHandler) Scan(ctx context.Context) ([]RiskAlert, error) {
	groups, err := h.groups.List(ctx)
	if err != nil {
		return nil, err
	}
	var alerts []RiskAlert
	for _, g := range groups {
		found, err := h.check(ctx, g)
		if err != nil {
			return alerts, err
		}
		alerts = append(alerts, found...)
	}
	h.logger.Info("attendance scan done", slog.Int("groups", len(groups)), slog.Int("at_risk", len(alerts)))
	return alerts, nil
}

func (h *AttendanceRiskHandler) check(ctx context.Context, g *reinforcement.Group) ([]RiskAlert, error) {
	records, err := h.attendance.ListByGroup(ctx, g.ID)
	if err != nil {
		return nil, err
	}
	var alerts []RiskAlert
	for _, id := range g.MemberIDs {
		rate := reinforcement.AttendanceRate(records, id)
		if !reinforcement.IsAtRisk(rate) {
			continue
		}
		alerts = append(alerts, RiskAlert{
			GroupID:   g.ID,
			GroupName: g.Name,
			StudentID: id,
			Rate:      rate.Int(),
			Sessions:  len(records),
		})
		h.logger.Warn("student at risk of dropping out",
			logger.GroupID(g.ID),
			logger.StudentID(id),
			slog.Int("rate", rate.Int()),
			slog.Int("sessions", len(records)),
		)
	}
	return alerts, nil
}
