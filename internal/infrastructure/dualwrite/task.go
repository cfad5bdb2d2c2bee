// Package dualwrite keeps the local cache authoritative for the running
// process and mirrors every mutation to the remote store through an outbox.
//
// Each mutation becomes a Task that moves through
//
//	local_written → remote_pending → remote_acked | remote_failed
//
// The local write never waits for the remote one. A Dispatcher drains the
// outbox with backoff; a Resyncer pulls remote collections back into the
// local cache.
package dualwrite

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/edutracker/edutracker/internal/domain/record"
	"github.com/edutracker/edutracker/internal/domain/shared"
)

// TaskState is the remote-sync state of one mutation.
type TaskState string

const (
	StateLocalWritten  TaskState = "local_written"
	StateRemotePending TaskState = "remote_pending"
	StateRemoteAcked   TaskState = "remote_acked"
	StateRemoteFailed  TaskState = "remote_failed"
)

// IsTerminal reports whether no further automatic transition happens.
func (s TaskState) IsTerminal() bool {
	return s == StateRemoteAcked || s == StateRemoteFailed
}

var transitions = map[TaskState][]TaskState{
	StateLocalWritten:  {StateRemotePending},
	StateRemotePending: {StateRemotePending, StateRemoteAcked, StateRemoteFailed},
	// operator requeue
	StateRemoteFailed: {StateRemotePending},
}

// CanTransition reports whether from → to is allowed.
func CanTransition(from, to TaskState) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Op is the mutation kind.
type Op string

const (
	OpPut    Op = "put"
	OpDelete Op = "delete"
)

// Task is one queued remote mutation.
type Task struct {
	ID         string            `json:"id"`
	Op         Op                `json:"op"`
	Collection record.Collection `json:"collection"`
	RecordID   string            `json:"record_id"`
	// Record is the full record for puts, nil for deletes.
	Record *record.Record `json:"record,omitempty"`

	State     TaskState `json:"state"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"last_error,omitempty"`

	CreatedAt     time.Time `json:"created_at"`
	NextAttemptAt time.Time `json:"next_attempt_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// NewPutTask creates a task mirroring a stored record.
func NewPutTask(rec record.Record, now time.Time) Task {
	r := rec
	return Task{
		ID:            uuid.NewString(),
		Op:            OpPut,
		Collection:    rec.Collection,
		RecordID:      rec.ID,
		Record:        &r,
		State:         StateLocalWritten,
		CreatedAt:     now,
		NextAttemptAt: now,
		UpdatedAt:     now,
	}
}

// NewDeleteTask creates a task mirroring a local delete.
func NewDeleteTask(collection record.Collection, id string, now time.Time) Task {
	return Task{
		ID:            uuid.NewString(),
		Op:            OpDelete,
		Collection:    collection,
		RecordID:      id,
		State:         StateLocalWritten,
		CreatedAt:     now,
		NextAttemptAt: now,
		UpdatedAt:     now,
	}
}

// Transition moves the task to state to, or fails if the move is not allowed.
func (t *Task) Transition(to TaskState, now time.Time) error {
	if !CanTransition(t.State, to) {
		return shared.NewDomainError("sync", "Transition", shared.ErrStateTransition,
			fmt.Sprintf("task %s: %s -> %s", t.ID, t.State, to))
	}
	t.State = to
	t.UpdatedAt = now
	return nil
}

// Key returns the record key the task targets.
func (t Task) Key() string {
	return string(t.Collection) + "/" + t.RecordID
}
