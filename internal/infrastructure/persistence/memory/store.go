// Package memory implements record.Store in process memory. It serves as the
// local cache of the dual-write layer and as the store used in tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/edutracker/edutracker/internal/domain/record"
)

// Store is a mutex-guarded map of collections. Reads return copies, so
// callers never share mutable state with the store.
type Store struct {
	mu          sync.RWMutex
	collections map[record.Collection]map[string]record.Record
	now         func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used for UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		collections: make(map[record.Collection]map[string]record.Record),
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get implements record.Store.
func (s *Store) Get(_ context.Context, collection record.Collection, id string) (record.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.collections[collection][id]
	if !ok {
		return record.Record{}, record.ErrNotFound
	}
	return copyRecord(rec), nil
}

// List implements record.Store.
func (s *Store) List(_ context.Context, collection record.Collection) ([]record.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	col := s.collections[collection]
	out := make([]record.Record, 0, len(col))
	for _, rec := range col {
		out = append(out, copyRecord(rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Put implements record.Store. A zero Revision is replaced by the next local
// revision of the record. A non-zero one is stored only if it is newer than
// what is held; otherwise the held record is returned unchanged.
func (s *Store) Put(_ context.Context, rec record.Record) (record.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	col, ok := s.collections[rec.Collection]
	if !ok {
		col = make(map[string]record.Record)
		s.collections[rec.Collection] = col
	}

	stored := copyRecord(rec)
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = s.now()
	}
	held, exists := col[rec.ID]
	switch {
	case stored.Revision == 0:
		stored.Revision = held.Revision + 1
	case exists && !stored.NewerThan(held):
		return copyRecord(held), nil
	}
	col[rec.ID] = stored
	return copyRecord(stored), nil
}

// Delete implements record.Store.
func (s *Store) Delete(_ context.Context, collection record.Collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.collections[collection][id]; !ok {
		return record.ErrNotFound
	}
	delete(s.collections[collection], id)
	return nil
}

// ReplaceCollection implements record.Replacer. The swap is atomic for readers.
func (s *Store) ReplaceCollection(_ context.Context, collection record.Collection, records []record.Record) error {
	col := make(map[string]record.Record, len(records))
	for _, rec := range records {
		rec.Collection = collection
		col[rec.ID] = copyRecord(rec)
	}

	s.mu.Lock()
	s.collections[collection] = col
	s.mu.Unlock()
	return nil
}

// Len returns the number of records in a collection.
func (s *Store) Len(collection record.Collection) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.collections[collection])
}

func copyRecord(r record.Record) record.Record {
	if r.Data != nil {
		data := make([]byte, len(r.Data))
		copy(data, r.Data)
		r.Data = data
	}
	return r
}
