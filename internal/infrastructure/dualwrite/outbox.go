package dualwrite

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/edutracker/edutracker/internal/domain/record"
)

// Outbox is the durable queue of remote mutations.
type Outbox interface {
	// Enqueue stores a task in remote_pending state, due immediately.
	Enqueue(ctx context.Context, task Task) error

	// Claim removes up to limit due tasks from the queue and returns them.
	// Claimed tasks stay in flight until Ack, Retry or Fail, or until their
	// claim lease expires, after which they are due again.
	Claim(ctx context.Context, limit int, now time.Time) ([]Task, error)

	// Ack marks an in-flight task remote_acked and forgets it.
	Ack(ctx context.Context, task Task) error

	// Retry puts an in-flight task back, due at task.NextAttemptAt.
	Retry(ctx context.Context, task Task) error

	// Fail parks an in-flight task in the failed list.
	Fail(ctx context.Context, task Task) error

	// Failed lists parked tasks, oldest first.
	Failed(ctx context.Context, limit int) ([]Task, error)

	// RequeueFailed moves every parked task back to the queue.
	RequeueFailed(ctx context.Context, now time.Time) (int, error)

	// Discard drops queued and parked tasks for the given collections.
	Discard(ctx context.Context, collections []record.Collection) (int, error)

	// Stats reports queue depth and counters.
	Stats(ctx context.Context) (OutboxStats, error)
}

// OutboxStats is the observable state of an outbox.
type OutboxStats struct {
	Depth    int   `json:"depth"`
	InFlight int   `json:"in_flight"`
	Failed   int   `json:"failed"`
	Acked    int64 `json:"acked"`
}

// ══════════════════════════════════════════════════════════════════════════════
// MEMORY OUTBOX
// ══════════════════════════════════════════════════════════════════════════════

// DefaultClaimLease is how long a claimed task may stay unsettled before it
// can be claimed again.
const DefaultClaimLease = 5 * time.Minute

// MemoryOutbox is a process-local Outbox. Tasks do not survive a restart.
type MemoryOutbox struct {
	mu       sync.Mutex
	queue    []Task
	inFlight map[string]claimed
	failed   []Task
	acked    int64
	lease    time.Duration
}

type claimed struct {
	task  Task
	until time.Time
}

// MemoryOutboxOption configures a MemoryOutbox.
type MemoryOutboxOption func(*MemoryOutbox)

// WithClaimLease overrides DefaultClaimLease.
func WithClaimLease(d time.Duration) MemoryOutboxOption {
	return func(o *MemoryOutbox) {
		if d > 0 {
			o.lease = d
		}
	}
}

// NewMemoryOutbox creates an empty outbox.
func NewMemoryOutbox(opts ...MemoryOutboxOption) *MemoryOutbox {
	o := &MemoryOutbox{inFlight: make(map[string]claimed), lease: DefaultClaimLease}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Enqueue implements Outbox.
func (o *MemoryOutbox) Enqueue(_ context.Context, task Task) error {
	if task.State == StateLocalWritten {
		if err := task.Transition(StateRemotePending, task.UpdatedAt); err != nil {
			return err
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.queue = append(o.queue, task)
	return nil
}

// Claim implements Outbox. Due tasks are returned in enqueue order, after
// any whose lease has expired.
func (o *MemoryOutbox) Claim(_ context.Context, limit int, now time.Time) ([]Task, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	var expired []Task
	for id, c := range o.inFlight {
		if !c.until.After(now) {
			expired = append(expired, c.task)
			delete(o.inFlight, id)
		}
	}
	sort.SliceStable(expired, func(i, j int) bool { return expired[i].CreatedAt.Before(expired[j].CreatedAt) })
	queue := append(expired, o.queue...)

	var (
		out  []Task
		rest = make([]Task, 0, len(queue))
	)
	for _, t := range queue {
		if len(out) < limit && !t.NextAttemptAt.After(now) {
			out = append(out, t)
			o.inFlight[t.ID] = claimed{task: t, until: now.Add(o.lease)}
			continue
		}
		rest = append(rest, t)
	}
	o.queue = rest
	return out, nil
}

// Ack implements Outbox.
func (o *MemoryOutbox) Ack(_ context.Context, task Task) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inFlight, task.ID)
	o.acked++
	return nil
}

// Retry implements Outbox.
func (o *MemoryOutbox) Retry(_ context.Context, task Task) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inFlight, task.ID)
	o.queue = append(o.queue, task)
	return nil
}

// Fail implements Outbox.
func (o *MemoryOutbox) Fail(_ context.Context, task Task) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inFlight, task.ID)
	o.failed = append(o.failed, task)
	return nil
}

// Failed implements Outbox.
func (o *MemoryOutbox) Failed(_ context.Context, limit int) ([]Task, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := append([]Task(nil), o.failed...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// RequeueFailed implements Outbox.
func (o *MemoryOutbox) RequeueFailed(_ context.Context, now time.Time) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	n := len(o.failed)
	for _, t := range o.failed {
		if err := t.Transition(StateRemotePending, now); err != nil {
			return 0, err
		}
		t.Attempts = 0
		t.NextAttemptAt = now
		o.queue = append(o.queue, t)
	}
	o.failed = nil
	return n, nil
}

// Discard implements Outbox.
func (o *MemoryOutbox) Discard(_ context.Context, collections []record.Collection) (int, error) {
	drop := make(map[record.Collection]bool, len(collections))
	for _, c := range collections {
		drop[c] = true
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	removed := 0
	keep := func(tasks []Task) []Task {
		out := tasks[:0]
		for _, t := range tasks {
			if drop[t.Collection] {
				removed++
				continue
			}
			out = append(out, t)
		}
		return out
	}
	o.queue = keep(o.queue)
	o.failed = keep(o.failed)
	return removed, nil
}

// Stats implements Outbox.
func (o *MemoryOutbox) Stats(_ context.Context) (OutboxStats, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return OutboxStats{
		Depth:    len(o.queue),
		InFlight: len(o.inFlight),
		Failed:   len(o.failed),
		Acked:    o.acked,
	}, nil
}

var _ Outbox = (*MemoryOutbox)(nil)
