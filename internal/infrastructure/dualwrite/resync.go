package dualwrite

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/edutracker/edutracker/internal/domain/record"
	"github.com/edutracker/edutracker/internal/domain/shared"
	"github.com/edutracker/edutracker/pkg/logger"
)

// Mode selects how remote records are applied to the local cache.
type Mode string

const (
	// ModeOverwrite replaces each local collection with the remote one.
	// Local changes that were never acknowledged remotely are lost.
	ModeOverwrite Mode = "overwrite"
	// ModeMerge keeps the newer of local and remote per record and keeps
	// local-only records.
	ModeMerge Mode = "merge"
)

// ParseMode parses a resync mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeOverwrite, ModeMerge:
		return Mode(s), nil
	case "":
		return ModeOverwrite, nil
	}
	return "", shared.NewValidationError("sync", "ParseMode", fmt.Sprintf("unknown resync mode %q", s))
}

// ResyncResult describes a completed resync.
type ResyncResult struct {
	Mode      Mode           `json:"mode"`
	Pulled    map[string]int `json:"pulled"`
	Discarded int            `json:"discarded"`
	Duration  time.Duration  `json:"duration"`
	At        time.Time      `json:"at"`
}

// ── State ───────────────────────────────────────────────────────────────────

// StateStore remembers the last successful resync.
type StateStore interface {
	LastResync(ctx context.Context) (*ResyncResult, error)
	MarkResynced(ctx context.Context, res ResyncResult) error
}

// MemoryStateStore is a process-local StateStore.
type MemoryStateStore struct {
	mu   sync.RWMutex
	last *ResyncResult
}

// NewMemoryStateStore creates an empty state store.
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{}
}

// LastResync implements StateStore. Nil means never.
func (s *MemoryStateStore) LastResync(context.Context) (*ResyncResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return nil, nil
	}
	cp := *s.last
	return &cp, nil
}

// MarkResynced implements StateStore.
func (s *MemoryStateStore) MarkResynced(_ context.Context, res ResyncResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = &res
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// RESYNCER
// ══════════════════════════════════════════════════════════════════════════════

// Resyncer pulls remote collections into the local cache.
type Resyncer struct {
	local       record.Store
	remote      record.Store
	outbox      Outbox
	state       StateStore
	publisher   shared.EventPublisher
	collections []record.Collection
	logger      *slog.Logger
	now         func() time.Time
}

// ResyncerDeps are the collaborators of a Resyncer. Outbox, State and
// Publisher are optional.
type ResyncerDeps struct {
	// Local must be the raw cache, not the dual-write Store, so pulled
	// records are not mirrored back.
	Local     record.Store
	Remote    record.Store
	Outbox    Outbox
	State     StateStore
	Publisher shared.EventPublisher
	Logger    *slog.Logger
	Now       func() time.Time

	// Collections defaults to record.ResyncCollections.
	Collections []record.Collection
}

// NewResyncer creates a resyncer over deps.Collections.
func NewResyncer(deps ResyncerDeps) *Resyncer {
	collections := deps.Collections
	if len(collections) == 0 {
		collections = record.ResyncCollections()
	}
	r := &Resyncer{
		local:       deps.Local,
		remote:      deps.Remote,
		outbox:      deps.Outbox,
		state:       deps.State,
		publisher:   deps.Publisher,
		collections: collections,
		logger:      logger.OrDefault(deps.Logger).With(logger.Component("resync")),
		now:         deps.Now,
	}
	if r.state == nil {
		r.state = NewMemoryStateStore()
	}
	if r.publisher == nil {
		r.publisher = shared.NopPublisher{}
	}
	if r.now == nil {
		r.now = func() time.Time { return time.Now().UTC() }
	}
	return r
}

// Remote returns the store this resyncer pulls from.
func (r *Resyncer) Remote() record.Store {
	return r.remote
}

// Collections returns the collections this resyncer pulls.
func (r *Resyncer) Collections() []record.Collection {
	return append([]record.Collection(nil), r.collections...)
}

// LastResync returns the last successful resync, or nil.
func (r *Resyncer) LastResync(ctx context.Context) (*ResyncResult, error) {
	return r.state.LastResync(ctx)
}

// Resync pulls every resync collection and applies it in mode. Nothing local
// changes unless every pull succeeds.
func (r *Resyncer) Resync(ctx context.Context, mode Mode) (*ResyncResult, error) {
	if mode == "" {
		mode = ModeOverwrite
	}
	start := r.now()

	pulled := make([][]record.Record, len(r.collections))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range r.collections {
		g.Go(func() error {
			recs, err := r.remote.List(gctx, c)
			if err != nil {
				return shared.WrapError("sync", "Resync", shared.ErrExternalService,
					fmt.Sprintf("pull %s", c), err)
			}
			pulled[i] = recs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		r.logger.Warn("resync aborted; local cache untouched", logger.Err(err))
		return nil, err
	}

	res := ResyncResult{Mode: mode, Pulled: make(map[string]int, len(r.collections))}

	if mode == ModeOverwrite && r.outbox != nil {
		n, err := r.outbox.Discard(ctx, r.collections)
		if err != nil {
			return nil, fmt.Errorf("discard queued tasks: %w", err)
		}
		res.Discarded = n
	}

	for i, c := range r.collections {
		var err error
		switch mode {
		case ModeOverwrite:
			err = r.overwrite(ctx, c, pulled[i])
		case ModeMerge:
			err = r.merge(ctx, c, pulled[i])
		default:
			return nil, shared.NewValidationError("sync", "Resync", fmt.Sprintf("unknown resync mode %q", mode))
		}
		if err != nil {
			return nil, fmt.Errorf("apply %s: %w", c, err)
		}
		res.Pulled[string(c)] = len(pulled[i])
	}

	res.At = r.now()
	res.Duration = res.At.Sub(start)
	if err := r.state.MarkResynced(ctx, res); err != nil {
		r.logger.Warn("failed to record resync state", logger.Err(err))
	}
	if err := r.publisher.Publish(shared.NewResyncCompletedEvent(string(mode), res.Pulled, res.Duration)); err != nil {
		r.logger.Warn("failed to publish resync event", logger.Err(err))
	}

	r.logger.Info("resync completed",
		slog.String("mode", string(mode)),
		slog.Any("pulled", res.Pulled),
		slog.Int("discarded", res.Discarded),
		logger.Latency(res.Duration),
	)
	return &res, nil
}

func (r *Resyncer) overwrite(ctx context.Context, c record.Collection, recs []record.Record) error {
	if rp, ok := r.local.(record.Replacer); ok {
		return rp.ReplaceCollection(ctx, c, recs)
	}
	return replaceByDiff(ctx, r.local, c, recs)
}

func (r *Resyncer) merge(ctx context.Context, c record.Collection, recs []record.Record) error {
	for _, remote := range recs {
		local, err := r.local.Get(ctx, c, remote.ID)
		switch {
		case shared.IsNotFound(err):
		case err != nil:
			return err
		case !remote.NewerThan(local):
			continue
		}
		remote.Collection = c
		if _, err := r.local.Put(ctx, remote); err != nil {
			return err
		}
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// STATUS
// ══════════════════════════════════════════════════════════════════════════════

// Status is the observable state of the sync layer.
type Status struct {
	Outbox     OutboxStats   `json:"outbox"`
	Breaker    string        `json:"breaker"`
	LastResync *ResyncResult `json:"last_resync,omitempty"`
}

// StatusOf collects the sync status. The dispatcher may be nil when this
// process does not drain.
func StatusOf(ctx context.Context, outbox Outbox, d *Dispatcher, r *Resyncer) (Status, error) {
	var st Status
	stats, err := outbox.Stats(ctx)
	if err != nil {
		return st, err
	}
	st.Outbox = stats
	st.Breaker = "n/a"
	if d != nil {
		st.Breaker = d.Breaker().State().String()
	}
	if r != nil {
		last, err := r.LastResync(ctx)
		if err != nil {
			return st, err
		}
		st.LastResync = last
	}
	return st, nil
}
