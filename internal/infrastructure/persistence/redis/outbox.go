package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/edutracker/edutracker/internal/domain/record"
	"github.com/edutracker/edutracker/internal/infrastructure/dualwrite"
)

// Outbox is a dualwrite.Outbox kept in Redis, so queued remote writes survive
// restarts and can be drained by any worker replica.
//
// Layout:
//
//	outbox:tasks     HASH  task id → task JSON
//	outbox:due       ZSET  task id scored by next attempt (unix ms)
//	outbox:inflight  ZSET  claimed task ids scored by lease expiry (unix ms)
//	outbox:failed    ZSET  parked task ids scored by creation (unix ms)
//	outbox:acked     INT   acknowledged task counter
type Outbox struct {
	c     *Client
	lease time.Duration
}

// OutboxOption configures an Outbox.
type OutboxOption func(*Outbox)

// WithClaimLease sets how long a claimed task may stay unsettled before
// another dispatcher can claim it.
func WithClaimLease(d time.Duration) OutboxOption {
	return func(o *Outbox) {
		if d > 0 {
			o.lease = d
		}
	}
}

// NewOutbox creates a Redis outbox.
func NewOutbox(c *Client, opts ...OutboxOption) *Outbox {
	o := &Outbox{c: c, lease: dualwrite.DefaultClaimLease}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// claimScript first returns tasks whose lease expired to the due set, then
// pops due ids and leases them in one step, so two dispatchers never claim
// the same task and a crashed one never strands it.
//
// KEYS: due, inflight, tasks. ARGV: now ms, limit, lease expiry ms.
var claimScript = redis.NewScript(`
local stale = redis.call("ZRANGEBYSCORE", KEYS[2], "-inf", ARGV[1])
for _, id in ipairs(stale) do
	redis.call("ZREM", KEYS[2], id)
	if redis.call("HEXISTS", KEYS[3], id) == 1 then
		redis.call("ZADD", KEYS[1], ARGV[1], id)
	end
end
local ids = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1], "LIMIT", 0, tonumber(ARGV[2]))
local out = {}
for _, id in ipairs(ids) do
	redis.call("ZREM", KEYS[1], id)
	local t = redis.call("HGET", KEYS[3], id)
	if t then
		redis.call("ZADD", KEYS[2], ARGV[3], id)
		table.insert(out, t)
	end
end
return out
`)

func score(t time.Time) float64 {
	return float64(t.UnixMilli())
}

func encodeTask(task dualwrite.Task) (string, error) {
	b, err := json.Marshal(task)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return string(b), nil
}

func decodeTask(s string) (dualwrite.Task, error) {
	var task dualwrite.Task
	if err := json.Unmarshal([]byte(s), &task); err != nil {
		return task, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return task, nil
}

// Enqueue implements dualwrite.Outbox.
func (o *Outbox) Enqueue(ctx context.Context, task dualwrite.Task) error {
	if task.State == dualwrite.StateLocalWritten {
		if err := task.Transition(dualwrite.StateRemotePending, task.UpdatedAt); err != nil {
			return err
		}
	}
	data, err := encodeTask(task)
	if err != nil {
		return err
	}
	_, err = o.c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, o.c.key(keyOutboxTasks), task.ID, data)
		p.ZAdd(ctx, o.c.key(keyOutboxDue), redis.Z{Score: score(task.NextAttemptAt), Member: task.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", task.Key(), err)
	}
	return nil
}

// Claim implements dualwrite.Outbox.
func (o *Outbox) Claim(ctx context.Context, limit int, now time.Time) ([]dualwrite.Task, error) {
	if limit <= 0 {
		return nil, nil
	}
	keys := []string{o.c.key(keyOutboxDue), o.c.key(keyOutboxInFlight), o.c.key(keyOutboxTasks)}
	raw, err := claimScript.Run(ctx, o.c.rdb, keys,
		strconv.FormatInt(now.UnixMilli(), 10), limit,
		strconv.FormatInt(now.Add(o.lease).UnixMilli(), 10),
	).StringSlice()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("claim: %w", err)
	}

	tasks := make([]dualwrite.Task, 0, len(raw))
	for _, s := range raw {
		task, err := decodeTask(s)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// Ack implements dualwrite.Outbox.
func (o *Outbox) Ack(ctx context.Context, task dualwrite.Task) error {
	_, err := o.c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZRem(ctx, o.c.key(keyOutboxInFlight), task.ID)
		p.HDel(ctx, o.c.key(keyOutboxTasks), task.ID)
		p.Incr(ctx, o.c.key(keyOutboxAcked))
		return nil
	})
	return err
}

// Retry implements dualwrite.Outbox.
func (o *Outbox) Retry(ctx context.Context, task dualwrite.Task) error {
	data, err := encodeTask(task)
	if err != nil {
		return err
	}
	_, err = o.c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, o.c.key(keyOutboxTasks), task.ID, data)
		p.ZRem(ctx, o.c.key(keyOutboxInFlight), task.ID)
		p.ZAdd(ctx, o.c.key(keyOutboxDue), redis.Z{Score: score(task.NextAttemptAt), Member: task.ID})
		return nil
	})
	return err
}

// Fail implements dualwrite.Outbox.
func (o *Outbox) Fail(ctx context.Context, task dualwrite.Task) error {
	data, err := encodeTask(task)
	if err != nil {
		return err
	}
	_, err = o.c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, o.c.key(keyOutboxTasks), task.ID, data)
		p.ZRem(ctx, o.c.key(keyOutboxInFlight), task.ID)
		p.ZAdd(ctx, o.c.key(keyOutboxFailed), redis.Z{Score: score(task.CreatedAt), Member: task.ID})
		return nil
	})
	return err
}

// Failed implements dualwrite.Outbox.
func (o *Outbox) Failed(ctx context.Context, limit int) ([]dualwrite.Task, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	ids, err := o.c.rdb.ZRange(ctx, o.c.key(keyOutboxFailed), 0, stop).Result()
	if err != nil {
		return nil, err
	}
	return o.load(ctx, ids)
}

func (o *Outbox) load(ctx context.Context, ids []string) ([]dualwrite.Task, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	vals, err := o.c.rdb.HMGet(ctx, o.c.key(keyOutboxTasks), ids...).Result()
	if err != nil {
		return nil, err
	}
	tasks := make([]dualwrite.Task, 0, len(vals))
	for _, v := range vals {
		s, ok := v.(string)
		if !ok {
			// deleted between calls
			continue
		}
		task, err := decodeTask(s)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// RequeueFailed implements dualwrite.Outbox.
func (o *Outbox) RequeueFailed(ctx context.Context, now time.Time) (int, error) {
	tasks, err := o.Failed(ctx, 0)
	if err != nil {
		return 0, err
	}
	for _, task := range tasks {
		if err := task.Transition(dualwrite.StateRemotePending, now); err != nil {
			return 0, err
		}
		task.Attempts = 0
		task.NextAttemptAt = now
		data, err := encodeTask(task)
		if err != nil {
			return 0, err
		}
		_, err = o.c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.HSet(ctx, o.c.key(keyOutboxTasks), task.ID, data)
			p.ZRem(ctx, o.c.key(keyOutboxFailed), task.ID)
			p.ZAdd(ctx, o.c.key(keyOutboxDue), redis.Z{Score: score(now), Member: task.ID})
			return nil
		})
		if err != nil {
			return 0, err
		}
	}
	return len(tasks), nil
}

// Discard implements dualwrite.Outbox. In-flight tasks are left alone.
func (o *Outbox) Discard(ctx context.Context, collections []record.Collection) (int, error) {
	drop := make(map[record.Collection]bool, len(collections))
	for _, c := range collections {
		drop[c] = true
	}
	inFlight, err := o.c.rdb.ZRange(ctx, o.c.key(keyOutboxInFlight), 0, -1).Result()
	if err != nil {
		return 0, err
	}
	busy := make(map[string]bool, len(inFlight))
	for _, id := range inFlight {
		busy[id] = true
	}

	var victims []string
	iter := o.c.rdb.HScan(ctx, o.c.key(keyOutboxTasks), 0, "", 200).Iterator()
	for iter.Next(ctx) {
		id := iter.Val()
		if !iter.Next(ctx) {
			break
		}
		if busy[id] {
			continue
		}
		task, err := decodeTask(iter.Val())
		if err != nil {
			return 0, err
		}
		if drop[task.Collection] {
			victims = append(victims, id)
		}
	}
	if err := iter.Err(); err != nil {
		return 0, err
	}
	if len(victims) == 0 {
		return 0, nil
	}

	members := make([]interface{}, len(victims))
	for i, id := range victims {
		members[i] = id
	}
	_, err = o.c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HDel(ctx, o.c.key(keyOutboxTasks), victims...)
		p.ZRem(ctx, o.c.key(keyOutboxDue), members...)
		p.ZRem(ctx, o.c.key(keyOutboxFailed), members...)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(victims), nil
}

// Stats implements dualwrite.Outbox.
func (o *Outbox) Stats(ctx context.Context) (dualwrite.OutboxStats, error) {
	var (
		due      *redis.IntCmd
		inFlight *redis.IntCmd
		failed   *redis.IntCmd
		acked    *redis.StringCmd
	)
	_, err := o.c.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		due = p.ZCard(ctx, o.c.key(keyOutboxDue))
		inFlight = p.ZCard(ctx, o.c.key(keyOutboxInFlight))
		failed = p.ZCard(ctx, o.c.key(keyOutboxFailed))
		acked = p.Get(ctx, o.c.key(keyOutboxAcked))
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return dualwrite.OutboxStats{}, err
	}

	stats := dualwrite.OutboxStats{
		Depth:    int(due.Val()),
		InFlight: int(inFlight.Val()),
		Failed:   int(failed.Val()),
	}
	if n, err := acked.Int64(); err == nil {
		stats.Acked = n
	}
	return stats, nil
}

var _ dualwrite.Outbox = (*Outbox)(nil)
