package dualwrite

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/edutracker/edutracker/internal/domain/record"
	"github.com/edutracker/edutracker/internal/domain/shared"
	"github.com/edutracker/edutracker/pkg/circuitbreaker"
	"github.com/edutracker/edutracker/pkg/logger"
	"github.com/edutracker/edutracker/pkg/retry"
)

// DispatcherConfig tunes outbox draining.
type DispatcherConfig struct {
	BatchSize   int
	MaxAttempts int
}

// DefaultDispatcherConfig returns the production defaults.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		BatchSize:   50,
		MaxAttempts: 8,
	}
}

// DrainResult summarises one drain cycle.
type DrainResult struct {
	Claimed int `json:"claimed"`
	Acked   int `json:"acked"`
	Retried int `json:"retried"`
	Failed  int `json:"failed"`
	// Deferred counts tasks put back untouched because the circuit was open.
	Deferred int `json:"deferred"`
}

// Dispatcher moves outbox tasks to the remote store. It is driven by the
// worker's drain_outbox job.
type Dispatcher struct {
	outbox    Outbox
	remote    record.Store
	breaker   *circuitbreaker.CircuitBreaker
	backoff   *retry.Retrier
	publisher shared.EventPublisher
	cfg       DispatcherConfig
	logger    *slog.Logger
	now       func() time.Time
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithBreaker replaces the default remote-store circuit breaker.
func WithBreaker(cb *circuitbreaker.CircuitBreaker) DispatcherOption {
	return func(d *Dispatcher) { d.breaker = cb }
}

// WithPublisher sets where task failures are announced.
func WithPublisher(p shared.EventPublisher) DispatcherOption {
	return func(d *Dispatcher) { d.publisher = p }
}

// WithDispatcherLogger sets the logger.
func WithDispatcherLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.logger = l }
}

// WithDispatcherClock overrides the clock.
func WithDispatcherClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) { d.now = now }
}

// NewDispatcher creates a dispatcher draining outbox into remote.
func NewDispatcher(outbox Outbox, remote record.Store, cfg DispatcherConfig, opts ...DispatcherOption) *Dispatcher {
	def := DefaultDispatcherConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}

	d := &Dispatcher{
		outbox:    outbox,
		remote:    remote,
		publisher: shared.NopPublisher{},
		cfg:       cfg,
		backoff:   retry.OutboxBackoff(cfg.MaxAttempts),
		logger:    slog.Default(),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.publisher == nil {
		d.publisher = shared.NopPublisher{}
	}
	d.logger = d.logger.With(logger.Component("outbox-dispatcher"))
	if d.breaker == nil {
		d.breaker = circuitbreaker.RemoteStoreBreaker(func(name string, from, to circuitbreaker.State) {
			d.logger.Warn("circuit state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		})
	}
	return d
}

// Breaker exposes the remote-store breaker for status reporting.
func (d *Dispatcher) Breaker() *circuitbreaker.CircuitBreaker {
	return d.breaker
}

// DrainOnce claims one batch of due tasks and pushes each to the remote.
func (d *Dispatcher) DrainOnce(ctx context.Context) (DrainResult, error) {
	var res DrainResult

	tasks, err := d.outbox.Claim(ctx, d.cfg.BatchSize, d.now())
	if err != nil {
		return res, err
	}
	res.Claimed = len(tasks)

	for i, task := range tasks {
		if ctx.Err() != nil {
			// Hand the rest back untouched.
			if err := d.outbox.Retry(context.WithoutCancel(ctx), task); err != nil {
				d.release(ctx, tasks[i+1:])
				return res, err
			}
			res.Deferred++
			continue
		}
		if err := d.dispatch(ctx, task, &res); err != nil {
			// The current task may have reached the remote already; sending
			// it again is harmless because stale revisions are ignored.
			d.release(ctx, tasks[i:])
			return res, err
		}
	}

	if res.Claimed > 0 {
		d.logger.Debug("drain cycle done",
			slog.Int("claimed", res.Claimed),
			slog.Int("acked", res.Acked),
			slog.Int("retried", res.Retried),
			slog.Int("failed", res.Failed),
			slog.Int("deferred", res.Deferred),
		)
	}
	return res, nil
}

// release puts claimed tasks back as due now after an outbox error. Whatever
// cannot be handed back stays in flight until its claim lease runs out.
func (d *Dispatcher) release(ctx context.Context, tasks []Task) {
	ctx = context.WithoutCancel(ctx)
	now := d.now()
	for _, task := range tasks {
		task.NextAttemptAt = now
		if err := d.outbox.Retry(ctx, task); err != nil {
			d.logger.Warn("claimed task not handed back; waiting for lease expiry",
				logger.TaskID(task.ID), logger.Err(err))
		}
	}
}

// dispatch sends one task. The returned error is an outbox failure; remote
// failures are absorbed into the task state.
func (d *Dispatcher) dispatch(ctx context.Context, task Task, res *DrainResult) error {
	sendErr := d.breaker.Execute(ctx, func(ctx context.Context) error {
		return d.send(ctx, task)
	})

	now := d.now()
	switch {
	case sendErr == nil:
		if err := task.Transition(StateRemoteAcked, now); err != nil {
			return err
		}
		res.Acked++
		return d.outbox.Ack(ctx, task)

	case errors.Is(sendErr, circuitbreaker.ErrCircuitOpen), errors.Is(sendErr, circuitbreaker.ErrTooManyRequests):
		task.NextAttemptAt = now.Add(d.backoff.Delay(max(task.Attempts, 1)))
		res.Deferred++
		return d.outbox.Retry(ctx, task)
	}

	task.Attempts++
	task.LastError = sendErr.Error()
	log := d.logger.With(
		logger.TaskID(task.ID),
		logger.Collection(string(task.Collection)),
		logger.RecordID(task.RecordID),
		slog.Int("attempts", task.Attempts),
		logger.Err(sendErr),
	)

	if task.Attempts >= d.cfg.MaxAttempts {
		if err := task.Transition(StateRemoteFailed, now); err != nil {
			return err
		}
		res.Failed++
		log.Warn("remote mirror gave up; task parked")
		if err := d.publisher.Publish(shared.NewSyncTaskFailedEvent(
			task.ID, string(task.Collection), task.RecordID, task.Attempts, task.LastError,
		)); err != nil {
			log.Warn("failed to publish task failure", slog.String("publish_error", err.Error()))
		}
		return d.outbox.Fail(ctx, task)
	}

	if err := task.Transition(StateRemotePending, now); err != nil {
		return err
	}
	task.NextAttemptAt = now.Add(d.backoff.Delay(task.Attempts))
	res.Retried++
	log.Info("remote mirror failed; retry scheduled", slog.Time("next_attempt_at", task.NextAttemptAt))
	return d.outbox.Retry(ctx, task)
}

func (d *Dispatcher) send(ctx context.Context, task Task) error {
	switch task.Op {
	case OpPut:
		if task.Record == nil {
			return shared.NewDomainError("sync", "Dispatch", shared.ErrInvalidInput, "put task without record")
		}
		_, err := d.remote.Put(ctx, *task.Record)
		return err
	case OpDelete:
		err := d.remote.Delete(ctx, task.Collection, task.RecordID)
		if shared.IsNotFound(err) {
			return nil
		}
		return err
	default:
		return shared.NewDomainError("sync", "Dispatch", shared.ErrInvalidInput, "unknown op "+string(task.Op))
	}
}
