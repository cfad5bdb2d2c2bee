// Package jobs holds the scheduled jobs of the edutracker worker.
package jobs

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/edutracker/edutracker/internal/infrastructure/dualwrite"
	"github.com/edutracker/edutracker/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// DRAIN OUTBOX JOB
// ══════════════════════════════════════════════════════════════════════════════

// Drainer is one outbox drain cycle.
type Drainer interface {
	DrainOnce(ctx context.Context) (dualwrite.DrainResult, error)
}

// DrainOutboxConfig tunes a drain run.
type DrainOutboxConfig struct {
	// MaxBatches bounds the cycles of one run, so a deep backlog cannot hold
	// the job forever.
	MaxBatches int
}

// DrainStats summarises the last run.
type DrainStats struct {
	StartedAt time.Time
	Duration  time.Duration
	Batches   int
	Total     dualwrite.DrainResult
}

// DrainOutboxJob pushes queued mutations to the remote store.
type DrainOutboxJob struct {
	drainer Drainer
	config  DrainOutboxConfig
	logger  *slog.Logger

	lastRunStats atomic.Value // *DrainStats
}

// NewDrainOutboxJob creates the job.
func NewDrainOutboxJob(d Drainer, cfg DrainOutboxConfig, l *slog.Logger) *DrainOutboxJob {
	if cfg.MaxBatches <= 0 {
		cfg.MaxBatches = 10
	}
	return &DrainOutboxJob{
		drainer: d,
		config:  cfg,
		logger:  logger.OrDefault(l).With(slog.String("job", "drain_outbox")),
	}
}

// Name implements scheduler.Job.
func (j *DrainOutboxJob) Name() string { return "drain_outbox" }

// Description implements scheduler.Job.
func (j *DrainOutboxJob) Description() string {
	return "Mirror queued local writes to the remote store"
}

// Run drains batches until the queue has nothing due, the circuit defers
// the batch, or MaxBatches is reached.
func (j *DrainOutboxJob) Run(ctx context.Context) error {
	stats := &DrainStats{StartedAt: time.Now()}
	defer func() {
		stats.Duration = time.Since(stats.StartedAt)
		j.lastRunStats.Store(stats)
	}()

	for stats.Batches < j.config.MaxBatches {
		res, err := j.drainer.DrainOnce(ctx)
		stats.Batches++
		stats.Total.Claimed += res.Claimed
		stats.Total.Acked += res.Acked
		stats.Total.Retried += res.Retried
		stats.Total.Failed += res.Failed
		stats.Total.Deferred += res.Deferred
		if err != nil {
			return err
		}
		if res.Claimed == 0 || res.Acked == 0 {
			break
		}
	}

	if stats.Total.Claimed > 0 {
		j.logger.Info("outbox drained",
			slog.Int("batches", stats.Batches),
			slog.Int("acked", stats.Total.Acked),
			slog.Int("retried", stats.Total.Retried),
			slog.Int("failed", stats.Total.Failed),
			slog.Int("deferred", stats.Total.Deferred),
		)
	}
	return nil
}

// LastRunStats returns the stats of the last run, or nil.
func (j *DrainOutboxJob) LastRunStats() *DrainStats {
	if v := j.lastRunStats.Load(); v != nil {
		return v.(*DrainStats)
	}
	return nil
}
