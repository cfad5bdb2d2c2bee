package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/edutracker/edutracker/internal/application/eventhandler"
	"github.com/edutracker/edutracker/internal/domain/record"
	"github.com/edutracker/edutracker/internal/infrastructure/dualwrite"
	"github.com/edutracker/edutracker/internal/infrastructure/scheduler"
	"github.com/edutracker/edutracker/internal/infrastructure/scheduler/jobs"
	"github.com/edutracker/edutracker/pkg/logger"
)

// SchedulerOptions pick the jobs a process runs.
type SchedulerOptions struct {
	Drain          bool
	Resync         bool
	AttendanceScan bool
}

// NewScheduler registers the selected jobs on their configured schedules.
// Sync jobs are skipped without a remote store, and an empty schedule
// disables its job.
func (a *App) NewScheduler(opts SchedulerOptions) (*scheduler.Scheduler, error) {
	cfg := a.Config
	log := a.Logger.With(logger.Component("scheduler"))

	sc := scheduler.DefaultConfig()
	sc.Logger = a.Logger
	if cfg.App.Location != nil {
		sc.Timezone = cfg.App.Location
	}
	if cfg.Scheduler.Tick > 0 {
		sc.Tick = cfg.Scheduler.Tick
	}
	s := scheduler.New(sc)

	register := func(job scheduler.Job, spec string) error {
		if spec == "" {
			log.Info("job disabled", slog.String("job", job.Name()))
			return nil
		}
		schedule, err := scheduler.ParseSchedule(spec)
		if err != nil {
			return fmt.Errorf("schedule for %s: %w", job.Name(), err)
		}
		return s.Register(job, schedule)
	}

	if opts.Drain && a.Dispatcher != nil {
		job := jobs.NewDrainOutboxJob(a.Dispatcher, jobs.DrainOutboxConfig{}, a.Logger)
		if err := register(job, everySpec(cfg.Sync.DispatchInterval)); err != nil {
			return nil, err
		}
	}

	if opts.Resync && a.Resyncer != nil {
		mode, err := dualwrite.ParseMode(cfg.Sync.ResyncMode)
		if err != nil {
			return nil, err
		}
		var locker jobs.Locker
		if a.Redis != nil {
			locker = a.Redis
		}
		job := jobs.NewResyncJob(a.Resyncer, locker, jobs.ResyncConfig{Mode: mode}, a.Logger)
		if err := register(job, cfg.Scheduler.Resync); err != nil {
			return nil, err
		}
	}

	if opts.AttendanceScan {
		if err := register(jobs.NewAttendanceScanJob(a.riskScanner(), a.Logger), cfg.Scheduler.AttendanceScan); err != nil {
			return nil, err
		}
	}

	s.OnJobComplete(func(r scheduler.JobResult) {
		if !r.Success() {
			log.Warn("job failed", slog.String("job", r.JobName), slog.String("error", r.Err))
		}
	})
	return s, nil
}

// riskScanner scans the local cache. With a remote store, groups and
// attendance are pulled first, since another process records them.
func (a *App) riskScanner() jobs.RiskScanner {
	if a.warmer == nil {
		return a.Risk
	}
	return &refreshingScanner{
		scanner: a.Risk,
		refresh: dualwrite.NewResyncer(dualwrite.ResyncerDeps{
			Local:       a.Local,
			Remote:      a.warmer.Remote(),
			Logger:      a.Logger,
			Collections: []record.Collection{record.CollectionGroups, record.CollectionAttendance},
		}),
		logger: a.Logger.With(logger.Component("attendance-scan")),
	}
}

type refreshingScanner struct {
	scanner jobs.RiskScanner
	refresh *dualwrite.Resyncer
	logger  *slog.Logger
}

// Scan refreshes groups and attendance, then scans. A failed refresh scans
// the cache as it is.
func (s *refreshingScanner) Scan(ctx context.Context) ([]eventhandler.RiskAlert, error) {
	if _, err := s.refresh.Resync(ctx, dualwrite.ModeOverwrite); err != nil {
		s.logger.Warn("group refresh failed; scanning cached groups", logger.Err(err))
	}
	return s.scanner.Scan(ctx)
}

func everySpec(d time.Duration) string {
	if d <= 0 {
		return ""
	}
	return "@every " + d.String()
}
