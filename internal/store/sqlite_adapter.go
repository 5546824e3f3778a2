package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/slopoverlord/slopoverlord/internal/apperr"
)

// SQLiteAdapter is the embedded-SQL-engine Adapter backend.
type SQLiteAdapter struct {
	db *sql.DB
}

// NewSQLiteAdapter wraps an already-open, already-migrated *sql.DB.
func NewSQLiteAdapter(db *sql.DB) *SQLiteAdapter {
	return &SQLiteAdapter{db: db}
}

// OpenSQLiteAdapter opens and migrates the database at path in one step.
func OpenSQLiteAdapter(path string) (*SQLiteAdapter, error) {
	db, err := OpenSQLite(path)
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return NewSQLiteAdapter(db), nil
}

func (a *SQLiteAdapter) AppendEnvelope(ctx context.Context, row EnvelopeRow) (int64, error) {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindInternal, "begin append tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	var maxPos sql.NullInt64
	if err := tx.QueryRowContext(ctx,
		`SELECT MAX(position) FROM events WHERE channel_id = ?`, row.ChannelID,
	).Scan(&maxPos); err != nil {
		return 0, apperr.Wrap(apperr.KindInternal, "query max position", err)
	}
	position := int64(0)
	if maxPos.Valid {
		position = maxPos.Int64 + 1
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO events (channel_id, position, message_id, type, ts, payload_blob) VALUES (?, ?, ?, ?, ?, ?)`,
		row.ChannelID, position, row.MessageID, row.Type, row.Ts.UTC().Format(time.RFC3339Nano), row.Payload,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, apperr.Wrap(apperr.KindDuplicateMessageID, row.MessageID, err)
		}
		return 0, apperr.Wrap(apperr.KindInternal, "insert envelope", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, apperr.Wrap(apperr.KindInternal, "commit append tx", err)
	}
	return position, nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "unique")
}

func (a *SQLiteAdapter) ScanEnvelopes(ctx context.Context, channelID string, fromPosition int64, limit int) ([]EnvelopeRow, error) {
	q := `SELECT channel_id, position, message_id, type, ts, payload_blob FROM events
	      WHERE channel_id = ? AND position >= ? ORDER BY position ASC`
	args := []any{channelID, fromPosition}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := a.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "scan envelopes", err)
	}
	defer rows.Close()

	var out []EnvelopeRow
	for rows.Next() {
		var r EnvelopeRow
		var tsStr string
		if err := rows.Scan(&r.ChannelID, &r.Position, &r.MessageID, &r.Type, &tsStr, &r.Payload); err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "scan envelope row", err)
		}
		r.Ts, err = time.Parse(time.RFC3339Nano, tsStr)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "parse envelope ts", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (a *SQLiteAdapter) LatestPosition(ctx context.Context, channelID string) (int64, error) {
	var maxPos sql.NullInt64
	if err := a.db.QueryRowContext(ctx,
		`SELECT MAX(position) FROM events WHERE channel_id = ?`, channelID,
	).Scan(&maxPos); err != nil {
		return 0, apperr.Wrap(apperr.KindInternal, "query latest position", err)
	}
	if !maxPos.Valid {
		return -1, nil
	}
	return maxPos.Int64, nil
}

func (a *SQLiteAdapter) PutAggregate(ctx context.Context, kind, id string, data []byte) error {
	_, err := a.db.ExecContext(ctx,
		`INSERT INTO aggregates (kind, id, data, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (kind, id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		kind, id, data, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "put aggregate", err)
	}
	return nil
}

func (a *SQLiteAdapter) GetAggregate(ctx context.Context, kind, id string) ([]byte, bool, error) {
	var data []byte
	err := a.db.QueryRowContext(ctx,
		`SELECT data FROM aggregates WHERE kind = ? AND id = ?`, kind, id,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, apperr.Wrap(apperr.KindInternal, "get aggregate", err)
	}
	return data, true, nil
}

func (a *SQLiteAdapter) DeleteAggregate(ctx context.Context, kind, id string) error {
	if _, err := a.db.ExecContext(ctx, `DELETE FROM aggregates WHERE kind = ? AND id = ?`, kind, id); err != nil {
		return apperr.Wrap(apperr.KindInternal, "delete aggregate", err)
	}
	return nil
}

func (a *SQLiteAdapter) ListAggregates(ctx context.Context, kind string) ([]string, [][]byte, error) {
	rows, err := a.db.QueryContext(ctx, `SELECT id, data FROM aggregates WHERE kind = ?`, kind)
	if err != nil {
		return nil, nil, apperr.Wrap(apperr.KindInternal, "list aggregates", err)
	}
	defer rows.Close()

	var ids []string
	var docs [][]byte
	for rows.Next() {
		var id string
		var data []byte
		if err := rows.Scan(&id, &data); err != nil {
			return nil, nil, apperr.Wrap(apperr.KindInternal, "scan aggregate row", err)
		}
		ids = append(ids, id)
		docs = append(docs, data)
	}
	return ids, docs, rows.Err()
}

func (a *SQLiteAdapter) Close() error {
	return a.db.Close()
}
