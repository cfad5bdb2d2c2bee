// Package main is the entry point of the edutracker background worker.
//
// The worker runs the scheduled jobs:
//   - drain_outbox mirrors queued local writes to the remote store
//   - resync refreshes the local cache from the remote store
//   - attendance_risk_scan logs reinforcement members at dropout risk
//
// It shares the Redis outbox with the API processes, so remote mirroring
// keeps going while API replicas restart.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/edutracker/edutracker/config"
	"github.com/edutracker/edutracker/internal/app"
	"github.com/edutracker/edutracker/internal/infrastructure/scheduler"
	"github.com/edutracker/edutracker/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. Configuration
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if !cfg.Scheduler.Enabled {
		return errors.New("SCHEDULER_ENABLED=false: nothing for the worker to do")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. Logging
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	slog.SetDefault(log)
	log.Info("starting edutracker worker",
		slog.String("env", string(cfg.App.Environment)),
		slog.String("timezone", cfg.App.Timezone),
	)
	if !cfg.RemoteEnabled() {
		log.Warn("no remote store configured; only the attendance scan will run")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. Stores, dual-write layer, handlers
	// ─────────────────────────────────────────────────────────────────────────
	a, err := app.Build(ctx, cfg, log, app.Options{})
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn("shutdown: close backends", logger.Err(err))
		}
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 4. Scheduler
	// ─────────────────────────────────────────────────────────────────────────
	sched, err := a.NewScheduler(app.SchedulerOptions{Drain: true, Resync: true, AttendanceScan: true})
	if err != nil {
		return err
	}
	for _, job := range sched.ListJobs() {
		log.Info("job registered",
			slog.String("job", job.Name),
			slog.String("schedule", job.Schedule),
			slog.Time("next_run", job.NextRun),
		)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. Run until signalled
	// ─────────────────────────────────────────────────────────────────────────
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	<-ctx.Done()
	log.Info("shutdown signal received")

	stopped := make(chan error, 1)
	go func() { stopped <- sched.Stop() }()

	select {
	case err := <-stopped:
		if err != nil && !errors.Is(err, scheduler.ErrSchedulerNotRunning) {
			return err
		}
	case <-time.After(cfg.App.ShutdownTimeout):
		log.Warn("shutdown timeout exceeded; abandoning running jobs")
	}

	logMetrics(log, sched.Metrics())
	log.Info("edutracker worker stopped")
	return nil
}

func setupLogger(cfg *config.Config) *slog.Logger {
	lc := logger.DefaultConfig()
	lc.Level = logger.ParseLevel(cfg.Log.Level)
	if strings.EqualFold(cfg.Log.Format, string(logger.FormatText)) {
		lc.Format = logger.FormatText
	}
	return logger.New(lc).With(slog.String("service", "worker"))
}

func logMetrics(log *slog.Logger, m scheduler.MetricsSnapshot) {
	log.Info("scheduler metrics",
		slog.Int64("executions", m.Executions),
		slog.Int64("failures", m.Failures),
		slog.Float64("success_rate", m.SuccessRate),
		slog.Duration("average_duration", m.AverageDuration),
	)
}
