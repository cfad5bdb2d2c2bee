package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edutracker/edutracker/config"
	"github.com/edutracker/edutracker/internal/application/command"
	"github.com/edutracker/edutracker/internal/application/query"
	"github.com/edutracker/edutracker/internal/domain/record"
	"github.com/edutracker/edutracker/internal/infrastructure/persistence/memory"
	"github.com/edutracker/edutracker/pkg/logger"
)

func localConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Name: "edutracker", Environment: config.EnvDevelopment, Location: time.UTC},
		Sync: config.SyncConfig{
			ResyncMode:       "overwrite",
			DispatchInterval: time.Second,
			MaxAttempts:      3,
			BatchSize:        10,
		},
		Scheduler: config.SchedulerConfig{
			Enabled:        true,
			Resync:         "0 3 * * *",
			AttendanceScan: "@every 1h",
		},
	}
}

func TestBuildLocalOnly(t *testing.T) {
	ctx := context.Background()
	a, err := Build(ctx, localConfig(), logger.Nop(), Options{})
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.DB)
	assert.Nil(t, a.Redis)
	assert.Nil(t, a.Dispatcher)
	assert.Nil(t, a.Resyncer)
	assert.Nil(t, a.Handlers.Resync)
	assert.Nil(t, a.Handlers.SyncStatus)
	assert.Same(t, a.Local, a.Store)

	st, err := a.Handlers.EnrollStudent.Handle(ctx, command.EnrollStudentCommand{ID: "s1", Name: "Ana"})
	require.NoError(t, err)

	res, err := a.Handlers.RecordEvaluation.Handle(ctx, command.RecordEvaluationCommand{
		StudentID: st.ID, CompetencyID: "EF05MA03", Level: "not_achieved", Bimester: "B2",
	})
	require.NoError(t, err)
	assert.Equal(t, "needs_reinforcement", string(res.Standing))

	candidates, err := a.Handlers.Candidates.Handle(ctx, "")
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "s1", candidates[0].ID)
}

func TestNewSchedulerSkipsSyncJobsWithoutRemote(t *testing.T) {
	a, err := Build(context.Background(), localConfig(), logger.Nop(), Options{})
	require.NoError(t, err)
	defer a.Close()

	s, err := a.NewScheduler(SchedulerOptions{Drain: true, Resync: true, AttendanceScan: true})
	require.NoError(t, err)

	names := []string{}
	for _, j := range s.ListJobs() {
		names = append(names, j.Name)
	}
	assert.Equal(t, []string{"attendance_risk_scan"}, names)
}

func TestNewSchedulerRejectsBadSchedule(t *testing.T) {
	cfg := localConfig()
	cfg.Scheduler.AttendanceScan = "every hour"

	a, err := Build(context.Background(), cfg, logger.Nop(), Options{})
	require.NoError(t, err)
	defer a.Close()

	_, err = a.NewScheduler(SchedulerOptions{AttendanceScan: true})
	assert.Error(t, err)
}

func TestNewSchedulerEmptyScheduleDisablesJob(t *testing.T) {
	cfg := localConfig()
	cfg.Scheduler.AttendanceScan = ""

	a, err := Build(context.Background(), cfg, logger.Nop(), Options{})
	require.NoError(t, err)
	defer a.Close()

	s, err := a.NewScheduler(SchedulerOptions{AttendanceScan: true})
	require.NoError(t, err)
	assert.Empty(t, s.ListJobs())
}

func TestBuildRejectsUnknownResyncMode(t *testing.T) {
	cfg := localConfig()
	cfg.Sync.ResyncMode = "replace"

	_, err := Build(context.Background(), cfg, logger.Nop(), Options{})
	assert.Error(t, err)
}

// ══════════════════════════════════════════════════════════════════════════════
// Restart against a remote store
// ══════════════════════════════════════════════════════════════════════════════

func buildWithRemote(t *testing.T, remote record.Store) *App {
	t.Helper()
	a, err := Build(context.Background(), localConfig(), logger.Nop(), Options{remote: remote})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	require.NotNil(t, a.Dispatcher)
	return a
}

func drainAll(t *testing.T, a *App) {
	t.Helper()
	for i := 0; i < 10; i++ {
		res, err := a.Dispatcher.DrainOnce(context.Background())
		require.NoError(t, err)
		if res.Claimed == 0 {
			return
		}
	}
	t.Fatal("outbox did not drain")
}

// seedGroupLifecycle creates a group of two, records one session with only
// s1 present and discharges s1, then mirrors everything to the remote.
func seedGroupLifecycle(t *testing.T, a *App) string {
	t.Helper()
	ctx := context.Background()
	for _, id := range []string{"s1", "s2"} {
		_, err := a.Handlers.EnrollStudent.Handle(ctx, command.EnrollStudentCommand{ID: id, Name: id})
		require.NoError(t, err)
	}
	g, err := a.Handlers.CreateGroup.Handle(ctx, command.CreateGroupCommand{
		Name: "Reforço Matemática", Subject: "Matemática", MemberIDs: []string{"s1", "s2"},
	})
	require.NoError(t, err)
	_, err = a.Handlers.RecordAttendance.Handle(ctx, command.RecordAttendanceCommand{
		GroupID: g.ID, Date: "2024-03-04", PresentIDs: []string{"s1"},
	})
	require.NoError(t, err)
	_, err = a.Handlers.Discharge.Handle(ctx, command.DischargeStudentCommand{
		GroupID: g.ID, StudentID: "s1", FinalLevel: "achieved",
	})
	require.NoError(t, err)

	drainAll(t, a)
	return g.ID
}

func TestRestartedProcessSeesGroupsAttendanceAndHistory(t *testing.T) {
	ctx := context.Background()
	remote := memory.NewStore()

	first := buildWithRemote(t, remote)
	groupID := seedGroupLifecycle(t, first)
	require.NoError(t, first.Close())

	restarted := buildWithRemote(t, remote)

	g, err := restarted.Repos.Groups.GetByID(ctx, groupID)
	require.NoError(t, err)
	assert.Equal(t, []string{"s2"}, g.MemberIDs)

	records, err := restarted.Repos.Attendance.ListByGroup(ctx, groupID)
	require.NoError(t, err)
	assert.Len(t, records, 1)

	history, err := restarted.Handlers.DischargeHistory.Handle(ctx, query.DischargeHistoryQuery{})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "s1", history[0].StudentID)

	for _, c := range record.AllCollections() {
		assert.Equal(t, remote.Len(c), restarted.Local.Len(c), c.String())
	}
}

// A worker started before the group existed still scans it.
func TestRiskScanSeesGroupsRecordedByAnotherProcess(t *testing.T) {
	ctx := context.Background()
	remote := memory.NewStore()

	worker := buildWithRemote(t, remote)
	api := buildWithRemote(t, remote)
	groupID := seedGroupLifecycle(t, api)

	alerts, err := worker.riskScanner().Scan(ctx)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, groupID, alerts[0].GroupID)
	assert.Equal(t, "s2", alerts[0].StudentID)
	assert.Equal(t, 0, alerts[0].Rate)
}
