package redis

import (
	"context"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edutracker/edutracker/internal/domain/record"
	"github.com/edutracker/edutracker/internal/infrastructure/dualwrite"
)

// newTestClient connects to REDIS_ADDR ("host:port") under a throwaway key
// prefix, or skips.
func newTestClient(t *testing.T) *Client {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	host, portStr, ok := strings.Cut(addr, ":")
	require.True(t, ok, "REDIS_ADDR must be host:port")
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.Host, cfg.Port = host, port
	cfg.KeyPrefix = "edutracker-test:" + uuid.NewString() + ":"

	c, err := NewClient(cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx := context.Background()
		keys, _ := c.rdb.Keys(ctx, cfg.KeyPrefix+"*").Result()
		if len(keys) > 0 {
			c.rdb.Del(ctx, keys...)
		}
		_ = c.Close()
	})
	return c
}

func putTask(t *testing.T, c record.Collection, id string, now time.Time) dualwrite.Task {
	t.Helper()
	rec, err := record.New(c, id, map[string]string{"id": id})
	require.NoError(t, err)
	return dualwrite.NewPutTask(rec, now)
}

func TestOutbox_Lifecycle(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	o := NewOutbox(c)
	now := time.Now().UTC().Truncate(time.Millisecond)

	a := putTask(t, record.CollectionStudents, "s1", now)
	b := putTask(t, record.CollectionGroups, "g1", now)
	require.NoError(t, o.Enqueue(ctx, a))
	require.NoError(t, o.Enqueue(ctx, b))

	claimed, err := o.Claim(ctx, 10, now)
	require.NoError(t, err)
	require.Len(t, claimed, 2)
	assert.Equal(t, dualwrite.StateRemotePending, claimed[0].State)

	// nothing left to claim
	again, err := o.Claim(ctx, 10, now)
	require.NoError(t, err)
	assert.Empty(t, again)

	stats, err := o.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, dualwrite.OutboxStats{InFlight: 2}, stats)

	first, second := claimed[0], claimed[1]
	require.NoError(t, first.Transition(dualwrite.StateRemoteAcked, now))
	require.NoError(t, o.Ack(ctx, first))

	second.Attempts = 3
	require.NoError(t, second.Transition(dualwrite.StateRemoteFailed, now))
	require.NoError(t, o.Fail(ctx, second))

	stats, err = o.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, dualwrite.OutboxStats{Failed: 1, Acked: 1}, stats)

	failed, err := o.Failed(ctx, 10)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, 3, failed[0].Attempts)

	n, err := o.RequeueFailed(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	claimed, err = o.Claim(ctx, 10, now)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Zero(t, claimed[0].Attempts)
}

func TestOutbox_RetryRespectsDueTime(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	o := NewOutbox(c)
	now := time.Now().UTC()

	require.NoError(t, o.Enqueue(ctx, putTask(t, record.CollectionStudents, "s1", now)))
	claimed, err := o.Claim(ctx, 1, now)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	task := claimed[0]
	task.Attempts = 1
	task.NextAttemptAt = now.Add(time.Minute)
	require.NoError(t, o.Retry(ctx, task))

	none, err := o.Claim(ctx, 1, now)
	require.NoError(t, err)
	assert.Empty(t, none)

	later, err := o.Claim(ctx, 1, now.Add(2*time.Minute))
	require.NoError(t, err)
	require.Len(t, later, 1)
	assert.Equal(t, 1, later[0].Attempts)
}

func TestOutbox_ExpiredClaimIsReclaimed(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	o := NewOutbox(c, WithClaimLease(time.Minute))
	now := time.Now().UTC()

	require.NoError(t, o.Enqueue(ctx, putTask(t, record.CollectionStudents, "s1", now)))
	claimed, err := o.Claim(ctx, 10, now)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	// the claimer never settles it
	none, err := o.Claim(ctx, 10, now.Add(30*time.Second))
	require.NoError(t, err)
	assert.Empty(t, none)

	again, err := o.Claim(ctx, 10, now.Add(2*time.Minute))
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, claimed[0].ID, again[0].ID)

	require.NoError(t, o.Ack(ctx, again[0]))
	stats, err := o.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, dualwrite.OutboxStats{Acked: 1}, stats)
}

func TestOutbox_Discard(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	o := NewOutbox(c)
	now := time.Now().UTC()

	require.NoError(t, o.Enqueue(ctx, putTask(t, record.CollectionStudents, "s1", now)))
	require.NoError(t, o.Enqueue(ctx, putTask(t, record.CollectionClasses, "c1", now)))
	require.NoError(t, o.Enqueue(ctx, putTask(t, record.CollectionGroups, "g1", now)))

	n, err := o.Discard(ctx, record.ResyncCollections())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	left, err := o.Claim(ctx, 10, now)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, record.CollectionGroups, left[0].Collection)
}

func TestLock(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	lock, err := c.TryLock(ctx, "resync", time.Minute)
	require.NoError(t, err)

	_, err = c.TryLock(ctx, "resync", time.Minute)
	assert.ErrorIs(t, err, ErrLockHeld)

	require.NoError(t, lock.Release(ctx))

	ran := false
	require.NoError(t, c.WithLock(ctx, "resync", time.Minute, func(context.Context) error {
		ran = true
		return nil
	}))
	assert.True(t, ran)
}
