package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/edutracker/edutracker/internal/infrastructure/dualwrite"
)

const lastResyncKey = "last_resync"

// SyncStateStore keeps resync bookkeeping in the sync_state table, so
// /api/v1/sync/status survives restarts.
type SyncStateStore struct {
	conn *Connection
}

// NewSyncStateStore creates a SyncStateStore.
func NewSyncStateStore(conn *Connection) *SyncStateStore {
	return &SyncStateStore{conn: conn}
}

// LastResync implements dualwrite.StateStore.
func (s *SyncStateStore) LastResync(ctx context.Context) (*dualwrite.ResyncResult, error) {
	var raw []byte
	err := s.conn.QueryRow(ctx, "SELECT value FROM sync_state WHERE key = $1", lastResyncKey).Scan(&raw)
	if IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load sync state: %w", err)
	}

	var res dualwrite.ResyncResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("decode sync state: %w", err)
	}
	return &res, nil
}

// MarkResynced implements dualwrite.StateStore.
func (s *SyncStateStore) MarkResynced(ctx context.Context, res dualwrite.ResyncResult) error {
	raw, err := json.Marshal(res)
	if err != nil {
		return err
	}
	_, err = s.conn.Exec(ctx, `
		INSERT INTO sync_state (key, value, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`, lastResyncKey, raw)
	if err != nil {
		return fmt.Errorf("save sync state: %w", err)
	}
	return nil
}

var _ dualwrite.StateStore = (*SyncStateStore)(nil)
