package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/edutracker/edutracker/internal/domain/record"
	"github.com/edutracker/edutracker/internal/domain/shared"
	"github.com/edutracker/edutracker/pkg/retry"
)

// RecordStore is the remote record.Store. Revision and updated_at travel with
// the record so merge resyncs can compare them.
type RecordStore struct {
	conn    *Connection
	retrier *retry.Retrier
}

// NewRecordStore creates a RecordStore on conn.
func NewRecordStore(conn *Connection) *RecordStore {
	return &RecordStore{conn: conn, retrier: retry.RemoteStoreRetrier()}
}

// do runs op, retrying dropped connections only.
func (s *RecordStore) do(ctx context.Context, op string, c record.Collection, fn func(ctx context.Context, table string) error) error {
	table, err := tableFor(c)
	if err != nil {
		return shared.WrapError("postgres", op, shared.ErrInvalidInput, "unknown collection", err)
	}
	err = s.retrier.Do(ctx, func(ctx context.Context) error {
		err := fn(ctx, table)
		if err != nil && IsConnectionError(err) {
			return retry.Retryable(err)
		}
		return err
	})
	switch {
	case err == nil:
		return nil
	case shared.IsNotFound(err):
		return err
	case IsConnectionError(err):
		return shared.WrapError("postgres", op, shared.ErrServiceUnavailable, fmt.Sprintf("%s on %s", op, table), err)
	default:
		return shared.WrapError("postgres", op, shared.ErrExternalService, fmt.Sprintf("%s on %s", op, table), err)
	}
}

func scanRecord(c record.Collection, row pgx.Row) (record.Record, error) {
	rec := record.Record{Collection: c}
	var data []byte
	if err := row.Scan(&rec.ID, &data, &rec.Revision, &rec.UpdatedAt); err != nil {
		return record.Record{}, err
	}
	rec.Data = data
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return rec, nil
}

// Get implements record.Store.
func (s *RecordStore) Get(ctx context.Context, c record.Collection, id string) (record.Record, error) {
	var rec record.Record
	err := s.do(ctx, "Get", c, func(ctx context.Context, table string) error {
		row := s.conn.QueryRow(ctx,
			fmt.Sprintf("SELECT id, payload, revision, updated_at FROM %s WHERE id = $1", table), id)
		r, err := scanRecord(c, row)
		if IsNoRows(err) {
			return record.ErrNotFound
		}
		rec = r
		return err
	})
	return rec, err
}

// List implements record.Store.
func (s *RecordStore) List(ctx context.Context, c record.Collection) ([]record.Record, error) {
	var out []record.Record
	err := s.do(ctx, "List", c, func(ctx context.Context, table string) error {
		rows, err := s.conn.Query(ctx,
			fmt.Sprintf("SELECT id, payload, revision, updated_at FROM %s ORDER BY id", table))
		if err != nil {
			return err
		}
		defer rows.Close()

		out = out[:0]
		for rows.Next() {
			rec, err := scanRecord(c, rows)
			if err != nil {
				return err
			}
			out = append(out, rec)
		}
		return rows.Err()
	})
	return out, err
}

// Put implements record.Store. A zero Revision bumps the stored revision; a
// zero UpdatedAt takes the database clock. A record carrying its own revision
// only replaces a row it is newer than, so a mirror write that arrives late
// cannot roll the row back. The row as stored is returned either way.
func (s *RecordStore) Put(ctx context.Context, rec record.Record) (record.Record, error) {
	var stored record.Record
	err := s.do(ctx, "Put", rec.Collection, func(ctx context.Context, table string) error {
		var updatedAt *time.Time
		if !rec.UpdatedAt.IsZero() {
			t := rec.UpdatedAt
			updatedAt = &t
		}
		query := fmt.Sprintf(`
			WITH upserted AS (
				INSERT INTO %[1]s (id, payload, revision, updated_at)
				VALUES ($1, $2, CASE WHEN $3::BIGINT = 0 THEN 1 ELSE $3::BIGINT END, COALESCE($4, NOW()))
				ON CONFLICT (id) DO UPDATE SET
					payload = EXCLUDED.payload,
					revision = CASE WHEN $3::BIGINT = 0 THEN %[1]s.revision + 1 ELSE $3::BIGINT END,
					updated_at = EXCLUDED.updated_at
				WHERE $3::BIGINT = 0
					OR (%[1]s.revision, %[1]s.updated_at) < (EXCLUDED.revision, EXCLUDED.updated_at)
				RETURNING id, payload, revision, updated_at
			)
			SELECT id, payload, revision, updated_at FROM upserted
			UNION ALL
			SELECT id, payload, revision, updated_at FROM %[1]s
			WHERE id = $1 AND NOT EXISTS (SELECT 1 FROM upserted)
		`, table)
		r, err := scanRecord(rec.Collection, s.conn.QueryRow(ctx, query,
			rec.ID, []byte(rec.Data), rec.Revision, updatedAt))
		stored = r
		return err
	})
	return stored, err
}

// Delete implements record.Store.
func (s *RecordStore) Delete(ctx context.Context, c record.Collection, id string) error {
	return s.do(ctx, "Delete", c, func(ctx context.Context, table string) error {
		tag, err := s.conn.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = $1", table), id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return record.ErrNotFound
		}
		return nil
	})
}

// ReplaceCollection implements record.Replacer in one transaction.
func (s *RecordStore) ReplaceCollection(ctx context.Context, c record.Collection, records []record.Record) error {
	return s.do(ctx, "ReplaceCollection", c, func(ctx context.Context, table string) error {
		return s.conn.WithTx(ctx, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s", table)); err != nil {
				return err
			}
			now := time.Now().UTC()
			_, err := tx.CopyFrom(ctx,
				pgx.Identifier{table},
				[]string{"id", "payload", "revision", "updated_at"},
				pgx.CopyFromSlice(len(records), func(i int) ([]any, error) {
					rec := records[i]
					if rec.Revision == 0 {
						rec.Revision = 1
					}
					if rec.UpdatedAt.IsZero() {
						rec.UpdatedAt = now
					}
					return []any{rec.ID, []byte(rec.Data), rec.Revision, rec.UpdatedAt}, nil
				}),
			)
			return err
		})
	})
}

var (
	_ record.Store    = (*RecordStore)(nil)
	_ record.Replacer = (*RecordStore)(nil)
)
