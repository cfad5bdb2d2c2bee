// Package retry runs operations with exponential backoff and jitter. It backs
// remote-store writes and outbox redelivery.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// ── Error markers ───────────────────────────────────────────────────────────

type retryableError struct{ err error }

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// Retryable marks err as transient.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &retryableError{err: err}
}

// IsRetryable reports whether err was marked with Retryable.
func IsRetryable(err error) bool {
	var r *retryableError
	return errors.As(err, &r)
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent stops the loop even when RetryIf would accept err.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// strip removes the outermost marker so callers see their own error.
func strip(err error) error {
	var p *permanentError
	if errors.As(err, &p) {
		return p.err
	}
	var r *retryableError
	if errors.As(err, &r) {
		return r.err
	}
	return err
}

// ── Retrier ─────────────────────────────────────────────────────────────────

// Config tunes a Retrier. The delay doubles after every attempt.
type Config struct {
	// MaxAttempts includes the first call.
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	// Jitter in [0,1] spreads each delay by ±Jitter.
	Jitter float64
	// RetryIf defaults to IsRetryable.
	RetryIf func(error) bool
}

// Option adjusts a Config.
type Option func(*Config)

func WithMaxAttempts(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.MaxAttempts = n
		}
	}
}

func WithInitialDelay(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.InitialDelay = d
		}
	}
}

func WithMaxDelay(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.MaxDelay = d
		}
	}
}

func WithJitter(j float64) Option {
	return func(c *Config) {
		if j >= 0 && j <= 1 {
			c.Jitter = j
		}
	}
}

// WithRetryIf replaces the retry predicate.
func WithRetryIf(fn func(error) bool) Option {
	return func(c *Config) { c.RetryIf = fn }
}

// Retrier runs an operation until it succeeds or gives up.
type Retrier struct {
	cfg Config
}

// New creates a Retrier: three attempts from 100ms up to 30s by default.
func New(opts ...Option) *Retrier {
	cfg := Config{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Jitter:       0.1,
		RetryIf:      IsRetryable,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.RetryIf == nil {
		cfg.RetryIf = IsRetryable
	}
	return &Retrier{cfg: cfg}
}

// Do calls op until it returns nil, a non-retryable error, or the attempts
// run out. Markers are stripped from the returned error.
func (r *Retrier) Do(ctx context.Context, op func(ctx context.Context) error) error {
	var last error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if last != nil {
				return strip(last)
			}
			return err
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		last = err

		var p *permanentError
		if errors.As(err, &p) || !r.cfg.RetryIf(err) || attempt >= r.cfg.MaxAttempts {
			return strip(err)
		}

		t := time.NewTimer(r.Delay(attempt))
		select {
		case <-ctx.Done():
			t.Stop()
			return strip(last)
		case <-t.C:
		}
	}
}

// Delay is the wait after the given 1-based attempt.
func (r *Retrier) Delay(attempt int) time.Duration {
	d := r.cfg.InitialDelay
	for i := 1; i < attempt && d < r.cfg.MaxDelay; i++ {
		d *= 2
	}
	d = min(d, r.cfg.MaxDelay)
	if r.cfg.Jitter > 0 {
		d += time.Duration(float64(d) * r.cfg.Jitter * (rand.Float64()*2 - 1))
	}
	return max(d, 0)
}

// Do runs op with a one-off Retrier.
func Do(ctx context.Context, op func(ctx context.Context) error, opts ...Option) error {
	return New(opts...).Do(ctx, op)
}

// ── Presets ─────────────────────────────────────────────────────────────────

// RemoteStoreRetrier covers dropped connections inside a single remote call.
func RemoteStoreRetrier() *Retrier {
	return New(
		WithMaxAttempts(3),
		WithInitialDelay(200*time.Millisecond),
		WithMaxDelay(5*time.Second),
		WithJitter(0.2),
	)
}

// OutboxBackoff spaces redelivery of a failed outbox task across drain
// cycles. Only Delay is used; the outbox counts attempts.
func OutboxBackoff(maxAttempts int) *Retrier {
	return New(
		WithMaxAttempts(maxAttempts),
		WithInitialDelay(time.Second),
		WithMaxDelay(5*time.Minute),
	)
}
