// Package record defines the generic Record Store contract that every
// persistence backend implements. It knows nothing about students or groups:
// records are identifier-keyed JSON documents grouped in collections.
package record

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/edutracker/edutracker/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// COLLECTIONS
// ══════════════════════════════════════════════════════════════════════════════

// Collection names a set of records of one kind.
type Collection string

const (
	CollectionStudents     Collection = "students"
	CollectionClasses      Collection = "classes"
	CollectionCompetencies Collection = "competencies"
	CollectionInvites      Collection = "invites"
	CollectionGroups       Collection = "groups"
	CollectionAttendance   Collection = "attendance"
	CollectionHistory      Collection = "history"
)

// AllCollections lists every known collection in dependency order.
func AllCollections() []Collection {
	return []Collection{
		CollectionClasses,
		CollectionCompetencies,
		CollectionStudents,
		CollectionInvites,
		CollectionGroups,
		CollectionAttendance,
		CollectionHistory,
	}
}

// ResyncCollections are the collections a full resync replaces wholesale.
func ResyncCollections() []Collection {
	return []Collection{
		CollectionStudents,
		CollectionClasses,
		CollectionCompetencies,
		CollectionInvites,
	}
}

// IsValid checks the collection is a known one.
func (c Collection) IsValid() bool {
	for _, known := range AllCollections() {
		if c == known {
			return true
		}
	}
	return false
}

// String returns the collection name.
func (c Collection) String() string {
	return string(c)
}

// ParseCollection validates a collection name.
func ParseCollection(s string) (Collection, error) {
	c := Collection(s)
	if !c.IsValid() {
		return "", shared.NewDomainError("record", "ParseCollection", shared.ErrInvalidInput,
			fmt.Sprintf("unknown collection %q", s))
	}
	return c, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// RECORD
// ══════════════════════════════════════════════════════════════════════════════

// Record is a single stored document.
type Record struct {
	Collection Collection      `json:"collection"`
	ID         string          `json:"id"`
	Data       json.RawMessage `json:"data"`
	// Revision increases by one on every local write of the record.
	Revision  int64     `json:"revision"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New encodes v as the record payload.
func New(collection Collection, id string, v interface{}) (Record, error) {
	if id == "" {
		return Record{}, shared.NewValidationError("record", "New", "record id is required")
	}
	data, err := json.Marshal(v)
	if err != nil {
		return Record{}, fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}
	return Record{Collection: collection, ID: id, Data: data}, nil
}

// Decode unmarshals the payload into v.
func (r Record) Decode(v interface{}) error {
	if err := json.Unmarshal(r.Data, v); err != nil {
		return fmt.Errorf("decode %s/%s: %w", r.Collection, r.ID, err)
	}
	return nil
}

// Key returns "collection/id".
func (r Record) Key() string {
	return string(r.Collection) + "/" + r.ID
}

// NewerThan reports whether r should win a merge against other: higher
// revision wins, ties go to the later UpdatedAt.
func (r Record) NewerThan(other Record) bool {
	if r.Revision != other.Revision {
		return r.Revision > other.Revision
	}
	return r.UpdatedAt.After(other.UpdatedAt)
}

// ══════════════════════════════════════════════════════════════════════════════
// STORE
// ══════════════════════════════════════════════════════════════════════════════

// ErrNotFound is returned by Get and Delete for a missing record.
var ErrNotFound = shared.NewDomainError("record", "Get", shared.ErrNotFound, "record not found")

// Store is the generic Record Store. Implementations carry no business rules.
type Store interface {
	// Get returns a single record or ErrNotFound.
	Get(ctx context.Context, collection Collection, id string) (Record, error)

	// List returns every record of a collection, ordered by ID.
	List(ctx context.Context, collection Collection) ([]Record, error)

	// Put inserts or replaces a record and returns what is stored. A zero
	// Revision assigns the next one. A record carrying its own Revision only
	// replaces a stored one it is NewerThan; a stale one leaves the store
	// unchanged and the stored record is returned without error.
	Put(ctx context.Context, rec Record) (Record, error)

	// Delete removes a record. Deleting a missing record returns ErrNotFound.
	Delete(ctx context.Context, collection Collection, id string) error
}

// Replacer is implemented by stores that can swap a whole collection at once.
type Replacer interface {
	ReplaceCollection(ctx context.Context, collection Collection, records []Record) error
}
