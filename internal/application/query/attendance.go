// Package query contains the read side of the application.
package query

import (
	"context"
	"errors"

	"github.com/edutracker/edutracker/internal/domain/reinforcement"
	"github.com/edutracker/edutracker/internal/domain/shared"
	"github.com/edutracker/edutracker/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// ATTENDANCE RATE
// ══════════════════════════════════════════════════════════════════════════════

// GetAttendanceRateQuery asks for one member's attendance in one group.
type GetAttendanceRateQuery struct {
	GroupID   string
	StudentID string
}

// Validate checks the query.
func (q GetAttendanceRateQuery) Validate() error {
	if q.GroupID == "" || q.StudentID == "" {
		return shared.NewDomainError("attendance", "Rate", shared.ErrInvalidID, "group id and student id are required")
	}
	return nil
}

// AttendanceRateDTO is a student's attendance in a group.
type AttendanceRateDTO struct {
	GroupID   string `json:"group_id"`
	StudentID string `json:"student_id"`

	// Rate is round(100 × Present / Sessions), or 100 with no sessions.
	Rate     int  `json:"rate"`
	Present  int  `json:"present"`
	Sessions int  `json:"sessions"`
	AtRisk   bool `json:"at_risk"`
}

// GetAttendanceRateHandler handles GetAttendanceRateQuery.
type GetAttendanceRateHandler struct {
	attendance reinforcement.AttendanceRepository
}

// NewGetAttendanceRateHandler creates the handler.
func NewGetAttendanceRateHandler(attendance reinforcement.AttendanceRepository) *GetAttendanceRateHandler {
	return &GetAttendanceRateHandler{attendance: attendance}
}

// Handle computes the rate. An unknown group has no sessions and rates 100.
func (h *GetAttendanceRateHandler) Handle(ctx context.Context, q GetAttendanceRateQuery) (*AttendanceRateDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	records, err := h.attendance.ListByGroup(ctx, q.GroupID)
	if err != nil {
		return nil, err
	}
	dto := rateOf(records, q.StudentID)
	dto.GroupID = q.GroupID
	return &dto, nil
}

func rateOf(records []*reinforcement.AttendanceRecord, studentID string) AttendanceRateDTO {
	present := 0
	for _, r := range records {
		if r.WasPresent(studentID) {
			present++
		}
	}
	rate := reinforcement.AttendanceRate(records, studentID)
	return AttendanceRateDTO{
		StudentID: studentID,
		Rate:      rate.Int(),
		Present:   present,
		Sessions:  len(records),
		AtRisk:    reinforcement.IsAtRisk(rate),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// GROUP ATTENDANCE REPORT
// ══════════════════════════════════════════════════════════════════════════════

// GroupAttendanceDTO reports every current member of a group.
type GroupAttendanceDTO struct {
	GroupID   string                            `json:"group_id"`
	GroupName string                            `json:"group_name"`
	Sessions  []*reinforcement.AttendanceRecord `json:"sessions"`
	Members   []MemberAttendanceDTO             `json:"members"`
	AtRisk    int                               `json:"at_risk"`
}

// MemberAttendanceDTO is one line of the report.
type MemberAttendanceDTO struct {
	AttendanceRateDTO
	Name string `json:"name"`
}

// GroupAttendanceHandler builds attendance reports.
type GroupAttendanceHandler struct {
	groups     reinforcement.GroupRepository
	attendance reinforcement.AttendanceRepository
	students   student.Repository
}

// NewGroupAttendanceHandler creates the handler.
func NewGroupAttendanceHandler(groups reinforcement.GroupRepository, attendance reinforcement.AttendanceRepository, students student.Repository) *GroupAttendanceHandler {
	return &GroupAttendanceHandler{groups: groups, attendance: attendance, students: students}
}

// Handle reports one group.
func (h *GroupAttendanceHandler) Handle(ctx context.Context, groupID string) (*GroupAttendanceDTO, error) {
	g, err := h.groups.GetByID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return h.report(ctx, g)
}

// All reports every group, in repository order.
func (h *GroupAttendanceHandler) All(ctx context.Context) ([]*GroupAttendanceDTO, error) {
	groups, err := h.groups.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*GroupAttendanceDTO, 0, len(groups))
	for _, g := range groups {
		dto, err := h.report(ctx, g)
		if err != nil {
			return nil, err
		}
		out = append(out, dto)
	}
	return out, nil
}

func (h *GroupAttendanceHandler) report(ctx context.Context, g *reinforcement.Group) (*GroupAttendanceDTO, error) {
	records, err := h.attendance.ListByGroup(ctx, g.ID)
	if err != nil {
		return nil, err
	}
	names, err := studentNames(ctx, h.students, g.MemberIDs)
	if err != nil {
		return nil, err
	}

	dto := &GroupAttendanceDTO{
		GroupID:   g.ID,
		GroupName: g.Name,
		Sessions:  records,
		Members:   make([]MemberAttendanceDTO, 0, len(g.MemberIDs)),
	}
	for _, id := range g.MemberIDs {
		m := MemberAttendanceDTO{AttendanceRateDTO: rateOf(records, id), Name: names[id]}
		m.GroupID = g.ID
		if m.AtRisk {
			dto.AtRisk++
		}
		dto.Members = append(dto.Members, m)
	}
	return dto, nil
}

// studentNames resolves display names. Unknown IDs are left out of the map.
func studentNames(ctx context.Context, students student.Repository, ids []string) (map[string]string, error) {
	names := make(map[string]string, len(ids))
	if students == nil || len(ids) == 0 {
		return names, nil
	}
	found, err := students.List(ctx, student.ListFilter{IDs: ids})
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}
	for _, s := range found {
		names[s.ID] = s.Name
	}
	return names, nil
}
