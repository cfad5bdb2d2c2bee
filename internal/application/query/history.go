package query

import (
	"context"

	"github.com/edutracker/edutracker/internal/domain/reinforcement"
)

// DischargeHistoryQuery filters the ledger. Empty fields match everything.
type DischargeHistoryQuery struct {
	StudentID string
	GroupID   string
	Limit     int
}

// DischargeHistoryHandler reads the discharge ledger.
type DischargeHistoryHandler struct {
	history reinforcement.HistoryRepository
}

// NewDischargeHistoryHandler creates the handler.
func NewDischargeHistoryHandler(history reinforcement.HistoryRepository) *DischargeHistoryHandler {
	return &DischargeHistoryHandler{history: history}
}

// Handle returns matching entries, newest first.
func (h *DischargeHistoryHandler) Handle(ctx context.Context, q DischargeHistoryQuery) ([]reinforcement.HistoryEntry, error) {
	all, err := h.history.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]reinforcement.HistoryEntry, 0, len(all))
	for _, e := range all {
		if q.StudentID != "" && e.StudentID != q.StudentID {
			continue
		}
		if q.GroupID != "" && e.GroupID != q.GroupID {
			continue
		}
		out = append(out, e)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}
