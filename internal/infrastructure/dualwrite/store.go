package dualwrite

import (
	"context"
	"log/slog"
	"time"

	"github.com/edutracker/edutracker/internal/domain/record"
	"github.com/edutracker/edutracker/internal/domain/shared"
	"github.com/edutracker/edutracker/pkg/logger"
)

// Store is a record.Store that writes the local cache synchronously and
// enqueues an outbox task for the remote mirror. Reads are served locally.
type Store struct {
	local  record.Store
	outbox Outbox
	logger *slog.Logger
	now    func() time.Time
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// WithClock overrides the clock.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// NewStore wraps local with an outbox-backed remote mirror.
func NewStore(local record.Store, outbox Outbox, opts ...StoreOption) *Store {
	s := &Store{
		local:  local,
		outbox: outbox,
		logger: slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(logger.Component("dualwrite"))
	return s
}

// Local returns the wrapped local store.
func (s *Store) Local() record.Store {
	return s.local
}

// Get implements record.Store.
func (s *Store) Get(ctx context.Context, collection record.Collection, id string) (record.Record, error) {
	return s.local.Get(ctx, collection, id)
}

// List implements record.Store.
func (s *Store) List(ctx context.Context, collection record.Collection) ([]record.Record, error) {
	return s.local.List(ctx, collection)
}

// Put implements record.Store. Only a local failure is returned.
func (s *Store) Put(ctx context.Context, rec record.Record) (record.Record, error) {
	stored, err := s.local.Put(ctx, rec)
	if err != nil {
		return record.Record{}, err
	}
	s.enqueue(ctx, NewPutTask(stored, s.now()))
	return stored, nil
}

// Delete implements record.Store. Only a local failure is returned.
func (s *Store) Delete(ctx context.Context, collection record.Collection, id string) error {
	if err := s.local.Delete(ctx, collection, id); err != nil {
		return err
	}
	s.enqueue(ctx, NewDeleteTask(collection, id, s.now()))
	return nil
}

// ReplaceCollection forwards to the local store when it supports it. Used by
// resync only; nothing is mirrored.
func (s *Store) ReplaceCollection(ctx context.Context, collection record.Collection, records []record.Record) error {
	if r, ok := s.local.(record.Replacer); ok {
		return r.ReplaceCollection(ctx, collection, records)
	}
	return replaceByDiff(ctx, s.local, collection, records)
}

// enqueue hands the task to the outbox. The request context may already be
// cancelled once the local write is done, so the enqueue is detached from it.
func (s *Store) enqueue(ctx context.Context, task Task) {
	if err := s.outbox.Enqueue(context.WithoutCancel(ctx), task); err != nil {
		s.logger.Warn("remote mirror not queued; local write kept",
			logger.TaskID(task.ID),
			logger.Collection(string(task.Collection)),
			logger.RecordID(task.RecordID),
			logger.Err(err),
		)
	}
}

// replaceByDiff emulates ReplaceCollection on stores that lack it. Every
// held record is deleted first, since Put keeps a held record that is newer
// than the replacement.
func replaceByDiff(ctx context.Context, store record.Store, collection record.Collection, records []record.Record) error {
	existing, err := store.List(ctx, collection)
	if err != nil {
		return err
	}
	for _, rec := range existing {
		if err := store.Delete(ctx, collection, rec.ID); err != nil && !shared.IsNotFound(err) {
			return err
		}
	}
	for _, rec := range records {
		rec.Collection = collection
		if _, err := store.Put(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

var (
	_ record.Store    = (*Store)(nil)
	_ record.Replacer = (*Store)(nil)
)
