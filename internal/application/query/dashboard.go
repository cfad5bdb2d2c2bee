package query

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/edutracker/edutracker/internal/domain/reinforcement"
	"github.com/edutracker/edutracker/internal/domain/school"
	"github.com/edutracker/edutracker/internal/domain/shared"
	"github.com/edutracker/edutracker/internal/domain/student"
)

// DashboardDTO summarises the school.
type DashboardDTO struct {
	Students   int                      `json:"students"`
	ByStanding map[student.Standing]int `json:"by_standing"`
	Classes    int                      `json:"classes"`
	Groups     int                      `json:"groups"`
	Discharges int                      `json:"discharges"`

	// AdequatePercent is round(100 × adequate / students), 0 with no students.
	AdequatePercent int `json:"adequate_percent"`

	// AtRiskMembers counts group members under the attendance threshold.
	AtRiskMembers int `json:"at_risk_members"`
}

// DashboardHandler computes DashboardDTO.
type DashboardHandler struct {
	students   student.Repository
	classes    school.ClassRepository
	groups     reinforcement.GroupRepository
	attendance reinforcement.AttendanceRepository
	history    reinforcement.HistoryRepository
}

// NewDashboardHandler creates the handler.
func NewDashboardHandler(
	students student.Repository,
	classes school.ClassRepository,
	groups reinforcement.GroupRepository,
	attendance reinforcement.AttendanceRepository,
	history reinforcement.HistoryRepository,
) *DashboardHandler {
	return &DashboardHandler{
		students:   students,
		classes:    classes,
		groups:     groups,
		attendance: attendance,
		history:    history,
	}
}

// Handle reads every collection concurrently and aggregates.
func (h *DashboardHandler) Handle(ctx context.Context) (*DashboardDTO, error) {
	var (
		students []*student.Student
		classes  []*school.ClassRoom
		groups   []*reinforcement.Group
		history  []reinforcement.HistoryEntry
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		students, err = h.students.List(gctx, student.ListFilter{})
		return err
	})
	g.Go(func() (err error) {
		classes, err = h.classes.List(gctx)
		return err
	})
	g.Go(func() (err error) {
		groups, err = h.groups.List(gctx)
		return err
	})
	g.Go(func() (err error) {
		history, err = h.history.List(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	dto := &DashboardDTO{
		Students:   len(students),
		ByStanding: make(map[student.Standing]int, 3),
		Classes:    len(classes),
		Groups:     len(groups),
		Discharges: len(history),
	}
	for _, st := range student.AllStandings() {
		dto.ByStanding[st] = 0
	}
	for _, s := range students {
		dto.ByStanding[s.Standing]++
	}
	dto.AdequatePercent = shared.NewPercentage(dto.ByStanding[student.StandingAdequate], len(students), 0).Int()

	for _, grp := range groups {
		records, err := h.attendance.ListByGroup(ctx, grp.ID)
		if err != nil {
			return nil, err
		}
		for _, id := range grp.MemberIDs {
			if reinforcement.IsAtRisk(reinforcement.AttendanceRate(records, id)) {
				dto.AtRiskMembers++
			}
		}
	}
	return dto, nil
}
