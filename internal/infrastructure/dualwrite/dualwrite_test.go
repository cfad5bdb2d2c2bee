package dualwrite

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edutracker/edutracker/internal/domain/record"
	"github.com/edutracker/edutracker/internal/domain/shared"
	"github.com/edutracker/edutracker/internal/infrastructure/persistence/memory"
	"github.com/edutracker/edutracker/pkg/circuitbreaker"
	"github.com/edutracker/edutracker/pkg/logger"
)

var t0 = time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

// flakyStore fails every call while down is set.
type flakyStore struct {
	*memory.Store
	mu   sync.Mutex
	down bool
	puts int
}

func newFlaky() *flakyStore {
	return &flakyStore{Store: memory.NewStore(memory.WithClock(func() time.Time { return t0 }))}
}

func (f *flakyStore) setDown(v bool) {
	f.mu.Lock()
	f.down = v
	f.mu.Unlock()
}

func (f *flakyStore) err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return shared.ErrRemoteUnavailable
	}
	return nil
}

func (f *flakyStore) Put(ctx context.Context, rec record.Record) (record.Record, error) {
	if err := f.err(); err != nil {
		return record.Record{}, err
	}
	f.mu.Lock()
	f.puts++
	f.mu.Unlock()
	return f.Store.Put(ctx, rec)
}

func (f *flakyStore) Delete(ctx context.Context, c record.Collection, id string) error {
	if err := f.err(); err != nil {
		return err
	}
	return f.Store.Delete(ctx, c, id)
}

func (f *flakyStore) List(ctx context.Context, c record.Collection) ([]record.Record, error) {
	if err := f.err(); err != nil {
		return nil, err
	}
	return f.Store.List(ctx, c)
}

type capturePublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (p *capturePublisher) Publish(e shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func mustRecord(t *testing.T, c record.Collection, id string, v any) record.Record {
	t.Helper()
	rec, err := record.New(c, id, v)
	require.NoError(t, err)
	return rec
}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time           { return c.now }
func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// ══════════════════════════════════════════════════════════════════════════════
// Task state machine
// ══════════════════════════════════════════════════════════════════════════════

func TestTaskTransitions(t *testing.T) {
	tests := []struct {
		from, to TaskState
		ok       bool
	}{
		{StateLocalWritten, StateRemotePending, true},
		{StateLocalWritten, StateRemoteAcked, false},
		{StateRemotePending, StateRemotePending, true},
		{StateRemotePending, StateRemoteAcked, true},
		{StateRemotePending, StateRemoteFailed, true},
		{StateRemoteAcked, StateRemotePending, false},
		{StateRemoteFailed, StateRemotePending, true},
		{StateRemoteFailed, StateRemoteAcked, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			task := Task{ID: "t", State: tt.from}
			err := task.Transition(tt.to, t0)
			if tt.ok {
				require.NoError(t, err)
				assert.Equal(t, tt.to, task.State)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, shared.ErrStateTransition)
			assert.Equal(t, tt.from, task.State)
		})
	}
	assert.True(t, StateRemoteAcked.IsTerminal())
	assert.False(t, StateRemotePending.IsTerminal())
}

// ══════════════════════════════════════════════════════════════════════════════
// Store
// ══════════════════════════════════════════════════════════════════════════════

func TestStore_PutEnqueuesAndReadsLocally(t *testing.T) {
	ctx := context.Background()
	local := memory.NewStore()
	outbox := NewMemoryOutbox()
	s := NewStore(local, outbox, WithLogger(logger.Nop()), WithClock(func() time.Time { return t0 }))

	stored, err := s.Put(ctx, mustRecord(t, record.CollectionStudents, "s1", map[string]string{"name": "Ana"}))
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Revision)

	got, err := s.Get(ctx, record.CollectionStudents, "s1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Ana"}`, string(got.Data))

	require.NoError(t, s.Delete(ctx, record.CollectionStudents, "s1"))

	tasks, err := outbox.Claim(ctx, 10, t0)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, OpPut, tasks[0].Op)
	assert.Equal(t, StateRemotePending, tasks[0].State)
	require.NotNil(t, tasks[0].Record)
	assert.Equal(t, int64(1), tasks[0].Record.Revision)
	assert.Equal(t, OpDelete, tasks[1].Op)
	assert.Nil(t, tasks[1].Record)
}

type brokenOutbox struct{ *MemoryOutbox }

func (brokenOutbox) Enqueue(context.Context, Task) error { return errors.New("redis down") }

func TestStore_EnqueueFailureDoesNotFailWrite(t *testing.T) {
	ctx := context.Background()
	local := memory.NewStore()
	s := NewStore(local, brokenOutbox{NewMemoryOutbox()}, WithLogger(logger.Nop()))

	_, err := s.Put(ctx, mustRecord(t, record.CollectionGroups, "g1", map[string]int{"n": 1}))
	require.NoError(t, err)
	assert.Equal(t, 1, local.Len(record.CollectionGroups))
}

func TestStore_DeleteMissingIsNotQueued(t *testing.T) {
	ctx := context.Background()
	outbox := NewMemoryOutbox()
	s := NewStore(memory.NewStore(), outbox, WithLogger(logger.Nop()))

	err := s.Delete(ctx, record.CollectionStudents, "ghost")
	assert.True(t, shared.IsNotFound(err))

	stats, _ := outbox.Stats(ctx)
	assert.Zero(t, stats.Depth)
}

// ══════════════════════════════════════════════════════════════════════════════
// Dispatcher
// ══════════════════════════════════════════════════════════════════════════════

func newTestDispatcher(outbox Outbox, remote record.Store, clk *clock, pub shared.EventPublisher, maxAttempts int) *Dispatcher {
	cb := circuitbreaker.New("test",
		circuitbreaker.WithFailureThreshold(100),
		circuitbreaker.WithClock(clk.Now),
	)
	return NewDispatcher(outbox, remote,
		DispatcherConfig{BatchSize: 10, MaxAttempts: maxAttempts},
		WithBreaker(cb),
		WithPublisher(pub),
		WithDispatcherLogger(logger.Nop()),
		WithDispatcherClock(clk.Now),
	)
}

func TestDispatcher_AcksWhenRemoteIsUp(t *testing.T) {
	ctx := context.Background()
	clk := &clock{now: t0}
	outbox := NewMemoryOutbox()
	remote := newFlaky()
	local := NewStore(memory.NewStore(), outbox, WithLogger(logger.Nop()), WithClock(clk.Now))

	_, err := local.Put(ctx, mustRecord(t, record.CollectionStudents, "s1", map[string]string{"name": "Ana"}))
	require.NoError(t, err)

	d := newTestDispatcher(outbox, remote, clk, &capturePublisher{}, 3)
	res, err := d.DrainOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, DrainResult{Claimed: 1, Acked: 1}, res)

	got, err := remote.Get(ctx, record.CollectionStudents, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Revision)

	stats, _ := outbox.Stats(ctx)
	assert.Equal(t, OutboxStats{Acked: 1}, stats)
}

// A remote outage never reaches the local writer and the task is retried with
// backoff until it succeeds.
func TestDispatcher_RetriesThenAcks(t *testing.T) {
	ctx := context.Background()
	clk := &clock{now: t0}
	outbox := NewMemoryOutbox()
	remote := newFlaky()
	remote.setDown(true)
	local := NewStore(memory.NewStore(), outbox, WithLogger(logger.Nop()), WithClock(clk.Now))

	_, err := local.Put(ctx, mustRecord(t, record.CollectionStudents, "s1", map[string]string{"name": "Ana"}))
	require.NoError(t, err, "local write must succeed while remote is down")

	d := newTestDispatcher(outbox, remote, clk, &capturePublisher{}, 5)

	res, err := d.DrainOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Retried)

	// not due yet
	res, err = d.DrainOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Claimed)

	remote.setDown(false)
	clk.Advance(10 * time.Minute)

	res, err = d.DrainOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Acked)
	assert.Equal(t, 1, remote.Len(record.CollectionStudents))
}

func TestDispatcher_ParksAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	clk := &clock{now: t0}
	outbox := NewMemoryOutbox()
	remote := newFlaky()
	remote.setDown(true)
	pub := &capturePublisher{}

	require.NoError(t, outbox.Enqueue(ctx, NewPutTask(mustRecord(t, record.CollectionGroups, "g1", map[string]int{"n": 1}), clk.Now())))

	d := newTestDispatcher(outbox, remote, clk, pub, 2)
	for i := 0; i < 2; i++ {
		_, err := d.DrainOnce(ctx)
		require.NoError(t, err)
		clk.Advance(time.Hour)
	}

	failed, err := outbox.Failed(ctx, 0)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, StateRemoteFailed, failed[0].State)
	assert.Equal(t, 2, failed[0].Attempts)
	assert.Contains(t, failed[0].LastError, "remote store is unavailable")

	require.Len(t, pub.events, 1)
	assert.Equal(t, shared.EventSyncTaskFailed, pub.events[0].EventType())

	// operator requeue
	remote.setDown(false)
	n, err := outbox.RequeueFailed(ctx, clk.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	res, err := d.DrainOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Acked)
}

// An older write retried after a newer one was mirrored must not roll the
// remote back, and an overwrite resync afterwards keeps the newer value.
func TestDispatcher_RetriedOlderWriteDoesNotRollBackRemote(t *testing.T) {
	ctx := context.Background()
	clk := &clock{now: t0}
	outbox := NewMemoryOutbox()
	remote := newFlaky()
	remote.setDown(true)
	local := memory.NewStore()
	dw := NewStore(local, outbox, WithLogger(logger.Nop()), WithClock(clk.Now))
	d := newTestDispatcher(outbox, remote, clk, &capturePublisher{}, 5)

	_, err := dw.Put(ctx, mustRecord(t, record.CollectionStudents, "s1", map[string]string{"standing": "needs_reinforcement"}))
	require.NoError(t, err)
	res, err := d.DrainOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, res.Retried)

	remote.setDown(false)
	_, err = dw.Put(ctx, mustRecord(t, record.CollectionStudents, "s1", map[string]string{"standing": "adequate"}))
	require.NoError(t, err)
	res, err = d.DrainOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, res.Acked)

	// the first write comes due only now
	clk.Advance(time.Hour)
	res, err = d.DrainOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, res.Acked)

	got, err := remote.Get(ctx, record.CollectionStudents, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Revision)
	assert.JSONEq(t, `{"standing":"adequate"}`, string(got.Data))

	r := NewResyncer(ResyncerDeps{Local: local, Remote: remote, Outbox: outbox, Logger: logger.Nop(), Now: clk.Now})
	_, err = r.Resync(ctx, ModeOverwrite)
	require.NoError(t, err)

	got, err = local.Get(ctx, record.CollectionStudents, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Revision)
	assert.JSONEq(t, `{"standing":"adequate"}`, string(got.Data))
}

// ackOnceBroken fails the first Ack, like a Redis blip after the remote write.
type ackOnceBroken struct {
	*MemoryOutbox
	failed bool
}

func (o *ackOnceBroken) Ack(ctx context.Context, task Task) error {
	if !o.failed {
		o.failed = true
		return errors.New("redis: connection reset")
	}
	return o.MemoryOutbox.Ack(ctx, task)
}

func TestDispatcher_OutboxErrorHandsBackClaimedTasks(t *testing.T) {
	ctx := context.Background()
	clk := &clock{now: t0}
	outbox := &ackOnceBroken{MemoryOutbox: NewMemoryOutbox()}
	remote := newFlaky()
	dw := NewStore(memory.NewStore(), outbox, WithLogger(logger.Nop()), WithClock(clk.Now))
	for _, id := range []string{"s1", "s2", "s3"} {
		_, err := dw.Put(ctx, mustRecord(t, record.CollectionStudents, id, map[string]string{"id": id}))
		require.NoError(t, err)
	}

	d := newTestDispatcher(outbox, remote, clk, &capturePublisher{}, 3)
	_, err := d.DrainOnce(ctx)
	require.Error(t, err)

	stats, err := outbox.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutboxStats{Depth: 3}, stats)

	res, err := d.DrainOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Acked)
	assert.Equal(t, 3, remote.Len(record.CollectionStudents))

	stats, err = outbox.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutboxStats{Acked: 3}, stats)
}

func TestMemoryOutbox_ExpiredClaimIsReclaimed(t *testing.T) {
	ctx := context.Background()
	o := NewMemoryOutbox(WithClaimLease(time.Minute))
	require.NoError(t, o.Enqueue(ctx, NewDeleteTask(record.CollectionStudents, "s1", t0)))

	claimed, err := o.Claim(ctx, 10, t0)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	none, err := o.Claim(ctx, 10, t0.Add(30*time.Second))
	require.NoError(t, err)
	assert.Empty(t, none)

	again, err := o.Claim(ctx, 10, t0.Add(2*time.Minute))
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, claimed[0].ID, again[0].ID)

	stats, _ := o.Stats(ctx)
	assert.Equal(t, OutboxStats{InFlight: 1}, stats)
}

func TestDispatcher_DeleteOfMissingRemoteRecordAcks(t *testing.T) {
	ctx := context.Background()
	clk := &clock{now: t0}
	outbox := NewMemoryOutbox()
	require.NoError(t, outbox.Enqueue(ctx, NewDeleteTask(record.CollectionInvites, "never-synced", t0)))

	d := newTestDispatcher(outbox, newFlaky(), clk, &capturePublisher{}, 3)
	res, err := d.DrainOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Acked)
}

func TestDispatcher_OpenCircuitDefersWithoutCountingAttempts(t *testing.T) {
	ctx := context.Background()
	clk := &clock{now: t0}
	outbox := NewMemoryOutbox()
	remote := newFlaky()
	remote.setDown(true)

	cb := circuitbreaker.New("test",
		circuitbreaker.WithFailureThreshold(1),
		circuitbreaker.WithTimeout(time.Hour),
		circuitbreaker.WithClock(clk.Now),
	)
	d := NewDispatcher(outbox, remote, DispatcherConfig{BatchSize: 10, MaxAttempts: 5},
		WithBreaker(cb), WithDispatcherLogger(logger.Nop()), WithDispatcherClock(clk.Now))

	require.NoError(t, outbox.Enqueue(ctx, NewPutTask(mustRecord(t, record.CollectionStudents, "a", 1), t0)))
	require.NoError(t, outbox.Enqueue(ctx, NewPutTask(mustRecord(t, record.CollectionStudents, "b", 2), t0)))

	res, err := d.DrainOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Retried)
	assert.Equal(t, 1, res.Deferred)
	assert.True(t, cb.IsOpen())

	clk.Advance(10 * time.Minute)
	tasks, err := outbox.Claim(ctx, 10, clk.Now())
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	attempts := map[string]int{}
	for _, task := range tasks {
		attempts[task.RecordID] = task.Attempts
	}
	assert.Equal(t, map[string]int{"a": 1, "b": 0}, attempts)
}

// ══════════════════════════════════════════════════════════════════════════════
// Resync
// ══════════════════════════════════════════════════════════════════════════════

func seedRemote(t *testing.T, remote *flakyStore) {
	t.Helper()
	ctx := context.Background()
	for _, rec := range []record.Record{
		mustRecord(t, record.CollectionStudents, "s1", map[string]string{"name": "Remote Ana"}),
		mustRecord(t, record.CollectionStudents, "s2", map[string]string{"name": "Remote Bia"}),
		mustRecord(t, record.CollectionClasses, "c1", map[string]string{"name": "5A"}),
	} {
		_, err := remote.Store.Put(ctx, rec)
		require.NoError(t, err)
	}
}

// After an overwrite resync the local resync collections equal the remote
// ones, whatever was written locally before.
func TestResync_OverwriteReplacesLocal(t *testing.T) {
	ctx := context.Background()
	clk := &clock{now: t0}
	remote := newFlaky()
	seedRemote(t, remote)

	local := memory.NewStore()
	outbox := NewMemoryOutbox()
	dw := NewStore(local, outbox, WithLogger(logger.Nop()), WithClock(clk.Now))

	// local-only, never acknowledged remotely
	_, err := dw.Put(ctx, mustRecord(t, record.CollectionStudents, "s9", map[string]string{"name": "Local only"}))
	require.NoError(t, err)
	_, err = dw.Put(ctx, mustRecord(t, record.CollectionStudents, "s1", map[string]string{"name": "Local edit"}))
	require.NoError(t, err)
	// groups are not part of resync
	_, err = dw.Put(ctx, mustRecord(t, record.CollectionGroups, "g1", map[string]int{"n": 1}))
	require.NoError(t, err)

	pub := &capturePublisher{}
	r := NewResyncer(ResyncerDeps{
		Local: local, Remote: remote, Outbox: outbox,
		Publisher: pub, Logger: logger.Nop(), Now: clk.Now,
	})

	res, err := r.Resync(ctx, ModeOverwrite)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"students": 2, "classes": 1, "competencies": 0, "invites": 0}, res.Pulled)
	assert.Equal(t, 2, res.Discarded)

	for _, c := range record.ResyncCollections() {
		want, err := remote.Store.List(ctx, c)
		require.NoError(t, err)
		got, err := local.List(ctx, c)
		require.NoError(t, err)
		if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
			t.Errorf("%s mismatch (-remote +local):\n%s", c, diff)
		}
	}
	assert.Equal(t, 1, local.Len(record.CollectionGroups))

	// only the group task is left to mirror
	stats, _ := outbox.Stats(ctx)
	assert.Equal(t, 1, stats.Depth)

	last, err := r.LastResync(ctx)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, ModeOverwrite, last.Mode)

	require.Len(t, pub.events, 1)
	assert.Equal(t, shared.EventResyncCompleted, pub.events[0].EventType())
}

func TestResync_MergeKeepsNewerAndLocalOnly(t *testing.T) {
	ctx := context.Background()
	remote := newFlaky()
	seedRemote(t, remote) // s1, s2 at revision 1

	local := memory.NewStore()
	for i := 0; i < 2; i++ {
		// s1 reaches revision 2 locally
		_, err := local.Put(ctx, mustRecord(t, record.CollectionStudents, "s1", map[string]string{"name": "Local edit"}))
		require.NoError(t, err)
	}
	_, err := local.Put(ctx, mustRecord(t, record.CollectionStudents, "s9", map[string]string{"name": "Local only"}))
	require.NoError(t, err)

	r := NewResyncer(ResyncerDeps{Local: local, Remote: remote, Logger: logger.Nop()})
	_, err = r.Resync(ctx, ModeMerge)
	require.NoError(t, err)

	got, err := local.List(ctx, record.CollectionStudents)
	require.NoError(t, err)
	names := map[string]string{}
	for _, rec := range got {
		var v map[string]string
		require.NoError(t, rec.Decode(&v))
		names[rec.ID] = v["name"]
	}
	assert.Equal(t, map[string]string{
		"s1": "Local edit",
		"s2": "Remote Bia",
		"s9": "Local only",
	}, names)
}

func TestResync_PullFailureLeavesLocalUntouched(t *testing.T) {
	ctx := context.Background()
	remote := newFlaky()
	seedRemote(t, remote)
	remote.setDown(true)

	local := memory.NewStore()
	_, err := local.Put(ctx, mustRecord(t, record.CollectionStudents, "s9", 1))
	require.NoError(t, err)

	r := NewResyncer(ResyncerDeps{Local: local, Remote: remote, Logger: logger.Nop()})
	_, err = r.Resync(ctx, ModeOverwrite)
	require.Error(t, err)
	assert.True(t, shared.IsExternalService(err))
	assert.Equal(t, 1, local.Len(record.CollectionStudents))

	last, err := r.LastResync(ctx)
	require.NoError(t, err)
	assert.Nil(t, last)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeOverwrite, m)

	m, err = ParseMode("merge")
	require.NoError(t, err)
	assert.Equal(t, ModeMerge, m)

	_, err = ParseMode("upsert")
	assert.True(t, shared.IsValidation(err))
}

func TestStatusOf(t *testing.T) {
	ctx := context.Background()
	outbox := NewMemoryOutbox()
	require.NoError(t, outbox.Enqueue(ctx, NewDeleteTask(record.CollectionStudents, "s1", t0)))

	clk := &clock{now: t0}
	d := newTestDispatcher(outbox, newFlaky(), clk, nil, 3)
	st, err := StatusOf(ctx, outbox, d, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Outbox.Depth)
	assert.Equal(t, "closed", st.Breaker)
	assert.Nil(t, st.LastResync)
}
