package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/edutracker/edutracker/internal/infrastructure/dualwrite"
	redisstore "github.com/edutracker/edutracker/internal/infrastructure/persistence/redis"
	"github.com/edutracker/edutracker/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RESYNC JOB
// ══════════════════════════════════════════════════════════════════════════════

// Resyncer pulls the remote store into the local cache.
type Resyncer interface {
	Resync(ctx context.Context, mode dualwrite.Mode) (*dualwrite.ResyncResult, error)
}

// Locker serialises a resource across worker replicas.
type Locker interface {
	WithLock(ctx context.Context, resource string, ttl time.Duration, fn func(ctx context.Context) error) error
}

// ResyncConfig tunes the scheduled resync.
type ResyncConfig struct {
	Mode    dualwrite.Mode
	LockTTL time.Duration
}

const resyncLock = "resync"

// ResyncJob refreshes the local cache from the remote store. With a Locker,
// at most one replica resyncs at a time and the others skip the run.
type ResyncJob struct {
	resyncer Resyncer
	locker   Locker
	config   ResyncConfig
	logger   *slog.Logger

	lastResult atomic.Value // *dualwrite.ResyncResult
	skipped    atomic.Int64
}

// NewResyncJob creates the job. locker may be nil.
func NewResyncJob(r Resyncer, locker Locker, cfg ResyncConfig, l *slog.Logger) *ResyncJob {
	if cfg.Mode == "" {
		cfg.Mode = dualwrite.ModeOverwrite
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = redisstore.TTLDistributedLock
	}
	return &ResyncJob{
		resyncer: r,
		locker:   locker,
		config:   cfg,
		logger:   logger.OrDefault(l).With(slog.String("job", "resync")),
	}
}

// Name implements scheduler.Job.
func (j *ResyncJob) Name() string { return "resync" }

// Description implements scheduler.Job.
func (j *ResyncJob) Description() string {
	return "Pull the remote store into the local cache (" + string(j.config.Mode) + ")"
}

// Run implements scheduler.Job.
func (j *ResyncJob) Run(ctx context.Context) error {
	if j.locker == nil {
		return j.resync(ctx)
	}
	err := j.locker.WithLock(ctx, resyncLock, j.config.LockTTL, j.resync)
	if errors.Is(err, redisstore.ErrLockHeld) {
		j.skipped.Add(1)
		j.logger.Info("resync running elsewhere; skipped")
		return nil
	}
	return err
}

func (j *ResyncJob) resync(ctx context.Context) error {
	res, err := j.resyncer.Resync(ctx, j.config.Mode)
	if err != nil {
		return err
	}
	j.lastResult.Store(res)
	return nil
}

// LastResult returns the last resync this job completed, or nil.
func (j *ResyncJob) LastResult() *dualwrite.ResyncResult {
	if v := j.lastResult.Load(); v != nil {
		return v.(*dualwrite.ResyncResult)
	}
	return nil
}

// Skipped counts runs skipped because another replica held the lock.
func (j *ResyncJob) Skipped() int64 { return j.skipped.Load() }
