// Package main is the entry point of the edutracker HTTP API.
//
// The API serves the REST surface over the local record cache. With a remote
// store configured it also drains the outbox, so writes reach Postgres even
// when no worker runs.
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

	"golang.org/x/sync/errgroup"

	"github.com/edutracker/edutracker/config"
	"github.com/edutracker/edutracker/internal/app"
	httpapi "github.com/edutracker/edutracker/internal/interface/http"
	"github.com/edutracker/edutracker/internal/interface/http/handlers"
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

	// ─────────────────────────────────────────────────────────────────────────
	// 2. Logging
	// ─────────────────────────────────────────────────────────────────────────
	log := newLogger(cfg)
	slog.SetDefault(log)
	log.Info("starting edutracker API",
		slog.String("env", string(cfg.App.Environment)),
		slog.String("version", cfg.App.Version),
		slog.Bool("remote", cfg.RemoteEnabled()),
		slog.Bool("redis", cfg.Redis.Enabled),
	)

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
	// 4. Health checks
	// ─────────────────────────────────────────────────────────────────────────
	health := handlers.NewCompositeHealthChecker(cfg.App.Version)
	if a.DB != nil {
		health.AddCheck("postgres", handlers.NewPingCheck(a.DB))
	}
	if a.Redis != nil {
		health.AddCheck("redis", handlers.NewPingCheck(a.Redis))
	}
	health.AddCheck("outbox", handlers.NewOutboxCheck(a.Outbox, 0))

	// ─────────────────────────────────────────────────────────────────────────
	// 5. HTTP server
	// ─────────────────────────────────────────────────────────────────────────
	h := a.Handlers
	server := httpapi.NewServer(httpapi.Config{
		Host:            cfg.HTTP.Host,
		Port:            cfg.HTTP.Port,
		ReadTimeout:     cfg.HTTP.ReadTimeout,
		WriteTimeout:    cfg.HTTP.WriteTimeout,
		IdleTimeout:     cfg.HTTP.IdleTimeout,
		RequestTimeout:  cfg.HTTP.WriteTimeout,
		MaxRequestBytes: cfg.HTTP.MaxRequestBytes,
		Version:         cfg.App.Version,
	}, httpapi.Dependencies{
		EnrollStudent:    h.EnrollStudent,
		DeleteStudent:    h.DeleteStudent,
		RecordEvaluation: h.RecordEvaluation,
		ClassEvaluations: h.ClassEvaluations,
		CreateGroup:      h.CreateGroup,
		UpdateGroup:      h.UpdateGroup,
		DeleteGroup:      h.DeleteGroup,
		RecordAttendance: h.RecordAttendance,
		Discharge:        h.Discharge,
		RemoveFromRoster: h.RemoveFromRoster,
		Resync:           h.Resync,
		SaveCompetency:   h.SaveCompetency,
		SaveClass:        h.SaveClass,
		Invites:          h.Invites,

		Progress:         h.Progress,
		Candidates:       h.Candidates,
		AttendanceRate:   h.AttendanceRate,
		GroupAttendance:  h.GroupAttendance,
		DischargeHistory: h.DischargeHistory,
		Dashboard:        h.Dashboard,
		SyncStatus:       h.SyncStatus,
		Catalog:          h.Catalog,

		Health: health,
		Logger: log,
	})

	// ─────────────────────────────────────────────────────────────────────────
	// 6. In-process outbox drain
	// ─────────────────────────────────────────────────────────────────────────
	sched, err := a.NewScheduler(app.SchedulerOptions{Drain: true})
	if err != nil {
		return err
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. Run until signalled
	// ─────────────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error { return sched.Run(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down", slog.String("reason", context.Cause(gctx).Error()))

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.App.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("edutracker API stopped")
	return nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	lc := logger.DefaultConfig()
	lc.Level = logger.ParseLevel(cfg.Log.Level)
	if strings.EqualFold(cfg.Log.Format, string(logger.FormatText)) {
		lc.Format = logger.FormatText
	}
	lc.AddSource = cfg.IsDevelopment()
	return logger.New(lc).With(slog.String("service", "api"))
}
