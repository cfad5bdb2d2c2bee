package query

import (
	"context"

	"github.com/edutracker/edutracker/internal/infrastructure/dualwrite"
)

// SyncStatusHandler reports the dual-write layer. dispatcher and resyncer may
// be nil in processes that do not run them.
type SyncStatusHandler struct {
	outbox     dualwrite.Outbox
	dispatcher *dualwrite.Dispatcher
	resyncer   *dualwrite.Resyncer
}

// NewSyncStatusHandler creates the handler.
func NewSyncStatusHandler(outbox dualwrite.Outbox, dispatcher *dualwrite.Dispatcher, resyncer *dualwrite.Resyncer) *SyncStatusHandler {
	return &SyncStatusHandler{outbox: outbox, dispatcher: dispatcher, resyncer: resyncer}
}

// Handle returns queue depth, failures, breaker state and the last resync.
func (h *SyncStatusHandler) Handle(ctx context.Context) (dualwrite.Status, error) {
	return dualwrite.StatusOf(ctx, h.outbox, h.dispatcher, h.resyncer)
}

// FailedTasks lists parked tasks, oldest first.
func (h *SyncStatusHandler) FailedTasks(ctx context.Context, limit int) ([]dualwrite.Task, error) {
	return h.outbox.Failed(ctx, limit)
}
