// Package app assembles edutracker from configuration: stores, the
// dual-write layer, the event bus, and the command and query handlers. The
// API server, the worker and the CLI all start from Build.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/edutracker/edutracker/config"
	"github.com/edutracker/edutracker/internal/application/command"
	"github.com/edutracker/edutracker/internal/application/eventhandler"
	"github.com/edutracker/edutracker/internal/application/query"
	"github.com/edutracker/edutracker/internal/domain/record"
	"github.com/edutracker/edutracker/internal/domain/shared"
	"github.com/edutracker/edutracker/internal/infrastructure/dualwrite"
	"github.com/edutracker/edutracker/internal/infrastructure/messaging"
	"github.com/edutracker/edutracker/internal/infrastructure/persistence/memory"
	"github.com/edutracker/edutracker/internal/infrastructure/persistence/postgres"
	redisstore "github.com/edutracker/edutracker/internal/infrastructure/persistence/redis"
	"github.com/edutracker/edutracker/internal/infrastructure/persistence/repository"
	"github.com/edutracker/edutracker/pkg/logger"
)

// eventBus is what both bus implementations offer.
type eventBus interface {
	shared.EventBus
	Close() error
}

// ══════════════════════════════════════════════════════════════════════════════
// APP
// ══════════════════════════════════════════════════════════════════════════════

// App is a wired edutracker process.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	// DB and Redis are nil when not configured.
	DB    *postgres.Connection
	Redis *redisstore.Client

	// Local is the in-process cache. Store is what repositories write to:
	// the dual-write store when a remote is configured, Local otherwise.
	Local  *memory.Store
	Store  record.Store
	Outbox dualwrite.Outbox

	// Dispatcher and Resyncer are nil without a remote store.
	Dispatcher *dualwrite.Dispatcher
	Resyncer   *dualwrite.Resyncer

	// warmer merges every collection into the empty cache at startup.
	warmer *dualwrite.Resyncer

	Bus      eventBus
	Repos    *repository.Set
	Handlers *Handlers
	Risk     *eventhandler.AttendanceRiskHandler

	closers []func() error
}

// Options tweak Build for a specific process.
type Options struct {
	// SkipMigrations leaves the schema alone even with AutoMigrate set. The
	// CLI migrates explicitly.
	SkipMigrations bool

	// SkipWarmup does not pull the remote into the cache at startup.
	SkipWarmup bool

	// remote replaces the Postgres record store in tests.
	remote record.Store
}

// Build connects to every configured backend and wires the handlers. On
// error, whatever was opened is closed again.
func Build(ctx context.Context, cfg *config.Config, log *slog.Logger, opts Options) (*App, error) {
	a := &App{Config: cfg, Logger: logger.OrDefault(log)}
	if err := a.build(ctx, opts); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context, opts Options) (err error) {
	cfg := a.Config

	// ─────────────────────────────────────────────────────────────────────────
	// 1. Remote record store (PostgreSQL)
	// ─────────────────────────────────────────────────────────────────────────
	if cfg.RemoteEnabled() {
		pgCfg := postgres.DefaultConfig(cfg.Database.URL)
		pgCfg.MaxConns = cfg.Database.MaxConns
		pgCfg.MinConns = cfg.Database.MinConns
		pgCfg.MaxConnLifetime = cfg.Database.MaxConnLifetime
		pgCfg.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

		a.Logger.Info("connecting to database")
		a.DB, err = postgres.NewConnection(ctx, pgCfg)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		a.closers = append(a.closers, func() error { a.DB.Close(); return nil })

		if cfg.Database.AutoMigrate && !opts.SkipMigrations {
			n, err := postgres.NewMigrator(a.DB).Migrate(ctx)
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			a.Logger.Info("database schema is up to date", slog.Int("applied", n))
		}
	} else {
		a.Logger.Warn("DATABASE_URL not set; records live in this process only")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. Redis (durable outbox, resync lock, cross-process events)
	// ─────────────────────────────────────────────────────────────────────────
	if cfg.Redis.Enabled {
		a.Redis, err = redisstore.NewClient(redisConfig(cfg.Redis))
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		a.closers = append(a.closers, a.Redis.Close)
		if err := a.Redis.Ping(ctx); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		a.Logger.Info("redis connection established", slog.String("addr", cfg.Redis.Host))
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. Event bus
	// ─────────────────────────────────────────────────────────────────────────
	busCfg := messaging.DefaultInMemoryEventBusConfig()
	busCfg.Logger = a.Logger
	if a.Redis != nil && cfg.Redis.EventBus {
		a.Bus, err = messaging.NewRedisEventBus(ctx, messaging.RedisEventBusConfig{
			Client:  a.Redis.Redis(),
			Channel: cfg.Redis.KeyPrefix + "events",
			Local:   busCfg,
			Logger:  a.Logger,
		})
		if err != nil {
			return fmt.Errorf("event bus: %w", err)
		}
	} else {
		a.Bus = messaging.NewInMemoryEventBus(busCfg)
	}
	a.closers = append(a.closers, a.Bus.Close)

	// ─────────────────────────────────────────────────────────────────────────
	// 4. Dual-write layer
	// ─────────────────────────────────────────────────────────────────────────
	a.Local = memory.NewStore()
	if a.Redis != nil {
		a.Outbox = redisstore.NewOutbox(a.Redis)
	} else {
		a.Outbox = dualwrite.NewMemoryOutbox()
	}

	remote := opts.remote
	var state dualwrite.StateStore
	if remote == nil && a.DB != nil {
		remote = postgres.NewRecordStore(a.DB)
		state = postgres.NewSyncStateStore(a.DB)
	}

	a.Store = a.Local
	if remote != nil {
		a.Store = dualwrite.NewStore(a.Local, a.Outbox, dualwrite.WithLogger(a.Logger))
		a.Dispatcher = dualwrite.NewDispatcher(a.Outbox, remote, dualwrite.DispatcherConfig{
			BatchSize:   cfg.Sync.BatchSize,
			MaxAttempts: cfg.Sync.MaxAttempts,
		}, dualwrite.WithPublisher(a.Bus), dualwrite.WithDispatcherLogger(a.Logger))
		a.Resyncer = dualwrite.NewResyncer(dualwrite.ResyncerDeps{
			Local:     a.Local,
			Remote:    remote,
			Outbox:    a.Outbox,
			State:     state,
			Publisher: a.Bus,
			Logger:    a.Logger,
		})
		a.warmer = dualwrite.NewResyncer(dualwrite.ResyncerDeps{
			Local:       a.Local,
			Remote:      remote,
			State:       state,
			Publisher:   a.Bus,
			Logger:      a.Logger,
			Collections: record.AllCollections(),
		})

		if !opts.SkipWarmup {
			a.warmUp(ctx)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. Repositories, handlers, subscriptions
	// ─────────────────────────────────────────────────────────────────────────
	a.Repos = repository.NewSet(a.Store)
	mode, err := dualwrite.ParseMode(cfg.Sync.ResyncMode)
	if err != nil {
		return err
	}
	a.Handlers = NewHandlers(a.Repos, a.Bus, a.Logger, SyncDeps{
		Outbox:     a.Outbox,
		Dispatcher: a.Dispatcher,
		Resyncer:   a.Resyncer,
		Mode:       mode,
	})

	a.Risk = eventhandler.NewAttendanceRiskHandler(a.Repos.Groups, a.Repos.Attendance, a.Logger)
	roster := eventhandler.NewRosterRemovalRetryHandler(a.Handlers.RemoveFromRoster, a.Logger)
	if err := eventhandler.Register(a.Bus, a.Risk, roster, a.Logger); err != nil {
		return fmt.Errorf("subscribe handlers: %w", err)
	}

	return nil
}

// warmUp fills the empty cache from every remote collection, groups and
// their attendance and history included. Merge keeps queued outbox tasks from
// a previous run. A failure leaves the cache empty; the scheduled resync
// retries the resync collections.
func (a *App) warmUp(ctx context.Context) {
	res, err := a.warmer.Resync(ctx, dualwrite.ModeMerge)
	if err != nil {
		a.Logger.Warn("initial resync failed; starting with an empty cache", logger.Err(err))
		return
	}
	a.Logger.Info("cache warmed from remote", slog.Any("pulled", res.Pulled))
}

// Close releases every backend in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func redisConfig(c config.RedisConfig) redisstore.Config {
	rc := redisstore.DefaultConfig()
	rc.Host = c.Host
	rc.Port = c.Port
	rc.Password = c.Password
	rc.DB = c.DB
	if c.PoolSize > 0 {
		rc.PoolSize = c.PoolSize
	}
	if c.DialTimeout > 0 {
		rc.DialTimeout = c.DialTimeout
	}
	if c.ReadTimeout > 0 {
		rc.ReadTimeout = c.ReadTimeout
	}
	if c.WriteTimeout > 0 {
		rc.WriteTimeout = c.WriteTimeout
	}
	if c.KeyPrefix != "" {
		rc.KeyPrefix = c.KeyPrefix
	}
	return rc
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// Handlers bundles every command and query handler.
type Handlers struct {
	EnrollStudent    *command.EnrollStudentHandler
	DeleteStudent    *command.DeleteStudentHandler
	RecordEvaluation *command.RecordEvaluationHandler
	ClassEvaluations *command.RecordClassEvaluationsHandler
	CreateGroup      *command.CreateGroupHandler
	UpdateGroup      *command.UpdateGroupHandler
	DeleteGroup      *command.DeleteGroupHandler
	RecordAttendance *command.RecordAttendanceHandler
	Discharge        *command.DischargeStudentHandler
	RemoveFromRoster *command.RemoveFromRosterHandler
	SaveCompetency   *command.SaveCompetencyHandler
	SaveClass        *command.SaveClassHandler
	Invites          *command.InviteHandler

	// Resync and SyncStatus are nil without a remote store.
	Resync     *command.ResyncHandler
	SyncStatus *query.SyncStatusHandler

	Progress         *query.StudentProgressHandler
	Candidates       *query.CandidatesHandler
	AttendanceRate   *query.GetAttendanceRateHandler
	GroupAttendance  *query.GroupAttendanceHandler
	DischargeHistory *query.DischargeHistoryHandler
	Dashboard        *query.DashboardHandler
	Catalog          *query.CatalogHandler
}

// SyncDeps are the optional dual-write collaborators of the handlers.
type SyncDeps struct {
	Outbox     dualwrite.Outbox
	Dispatcher *dualwrite.Dispatcher
	Resyncer   *dualwrite.Resyncer
	Mode       dualwrite.Mode
}

// NewHandlers builds the handlers over repos.
func NewHandlers(repos *repository.Set, pub shared.EventPublisher, l *slog.Logger, sync SyncDeps) *Handlers {
	h := &Handlers{
		EnrollStudent:    command.NewEnrollStudentHandler(repos.Students, repos.Classes),
		DeleteStudent:    command.NewDeleteStudentHandler(repos.Students, repos.Groups, l),
		RecordEvaluation: command.NewRecordEvaluationHandler(repos.Students, pub, l),
		ClassEvaluations: command.NewRecordClassEvaluationsHandler(repos.Students, pub, l),
		CreateGroup:      command.NewCreateGroupHandler(repos.Groups, repos.Students, pub, l),
		UpdateGroup:      command.NewUpdateGroupHandler(repos.Groups, repos.Students, pub, l),
		DeleteGroup:      command.NewDeleteGroupHandler(repos.Groups, repos.Attendance, pub, l),
		RecordAttendance: command.NewRecordAttendanceHandler(repos.Groups, repos.Attendance, pub, l),
		Discharge:        command.NewDischargeStudentHandler(repos.Students, repos.Groups, repos.History, pub, l),
		RemoveFromRoster: command.NewRemoveFromRosterHandler(repos.Groups, pub, l),
		SaveCompetency:   command.NewSaveCompetencyHandler(repos.Competencies),
		SaveClass:        command.NewSaveClassHandler(repos.Classes),
		Invites:          command.NewInviteHandler(repos.Invites),

		Progress:         query.NewStudentProgressHandler(repos.Students, repos.Groups, repos.Competencies),
		Candidates:       query.NewCandidatesHandler(repos.Students, repos.Groups),
		AttendanceRate:   query.NewGetAttendanceRateHandler(repos.Attendance),
		GroupAttendance:  query.NewGroupAttendanceHandler(repos.Groups, repos.Attendance, repos.Students),
		DischargeHistory: query.NewDischargeHistoryHandler(repos.History),
		Dashboard:        query.NewDashboardHandler(repos.Students, repos.Classes, repos.Groups, repos.Attendance, repos.History),
		Catalog:          query.NewCatalogHandler(repos.Competencies, repos.Classes, repos.Invites, repos.Groups),
	}
	if sync.Resyncer != nil {
		h.Resync = command.NewResyncHandler(sync.Resyncer, sync.Mode)
	}
	if sync.Outbox != nil && (sync.Dispatcher != nil || sync.Resyncer != nil) {
		h.SyncStatus = query.NewSyncStatusHandler(sync.Outbox, sync.Dispatcher, sync.Resyncer)
	}
	return h
}
