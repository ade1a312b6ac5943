// Package events persists the telemetry queue in the local SQLite database.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/marketkeeper/internal/client/models"
	"github.com/dmitrijs2005/marketkeeper/internal/common"
	"github.com/dmitrijs2005/marketkeeper/internal/dbx"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Insert(ctx context.Context, e *models.TelemetryEvent) (int64, error) {
	props := []byte("{}")
	if len(e.Properties) > 0 {
		b, err := json.Marshal(e.Properties)
		if err != nil {
			return 0, fmt.Errorf("encode event properties: %w", err)
		}
		props = b
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO telemetry_events (event_type, session_id, user_id, properties, enqueued_at, delivered)
		VALUES (?, ?, ?, ?, ?, 0)`,
		e.EventType, e.SessionID, e.UserID, string(props), dbx.Millis(e.EnqueuedAt))
	if err != nil {
		return 0, common.StorageError("insert event", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, common.StorageError("insert event", err)
	}
	e.LocalID = id
	return id, nil
}

func (r *SQLiteRepository) Pending(ctx context.Context, limit int) ([]models.TelemetryEvent, error) {
	query := `SELECT local_id, event_type, session_id, user_id, properties, enqueued_at
		FROM telemetry_events WHERE delivered = 0 ORDER BY local_id`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, common.StorageError("pending events", err)
	}
	defer rows.Close()

	var result []models.TelemetryEvent
	for rows.Next() {
		var (
			e        models.TelemetryEvent
			props    string
			enqueued int64
		)
		if err := rows.Scan(&e.LocalID, &e.EventType, &e.SessionID, &e.UserID, &props, &enqueued); err != nil {
			return nil, common.StorageError("scan event", err)
		}
		if props != "" && props != "{}" {
			if err := json.Unmarshal([]byte(props), &e.Properties); err != nil {
				return nil, common.StorageError(fmt.Sprintf("decode event %d", e.LocalID), err)
			}
		}
		e.EnqueuedAt = dbx.FromMillis(enqueued)
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, common.StorageError("iterate events", err)
	}
	return result, nil
}

func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM telemetry_events WHERE delivered = 0`).Scan(&n); err != nil {
		return 0, common.StorageError("count events", err)
	}
	return n, nil
}

func (r *SQLiteRepository) Acknowledge(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")

	err := dbx.InTx(ctx, r.db, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := tx.ExecContext(ctx, `UPDATE telemetry_events SET delivered = 1 WHERE local_id IN (`+placeholders+`)`, args...); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM telemetry_events WHERE delivered = 1`)
		return err
	})
	if err != nil {
		return common.StorageError("acknowledge events", err)
	}
	return nil
}

func (r *SQLiteRepository) PurgeDelivered(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM telemetry_events WHERE delivered = 1`)
	if err != nil {
		return 0, common.StorageError("purge delivered events", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (r *SQLiteRepository) TrimOldest(ctx context.Context, limit int) (int64, error) {
	if limit <= 0 {
		return 0, nil
	}
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM telemetry_events WHERE local_id IN (
			SELECT local_id FROM telemetry_events WHERE delivered = 0
			ORDER BY local_id DESC LIMIT -1 OFFSET ?
		)`, limit)
	if err != nil {
		return 0, common.StorageError("trim events", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
