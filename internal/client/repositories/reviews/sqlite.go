// Package reviews stores order reviews in the local SQLite database.
package reviews

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/dmitrijs2005/marketkeeper/internal/client/models"
	"github.com/dmitrijs2005/marketkeeper/internal/common"
	"github.com/dmitrijs2005/marketkeeper/internal/dbx"
)

const columns = `id, order_id, rater_id, ratee_id, rating, comment, created_at, last_synced_at`

// SQLiteRepository implements Repository over a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db  dbx.DBTX
	now func() time.Time
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

// Upsert drops any other review of the same order first, then writes rv
// keyed by id. Both statements share one transaction.
func (r *SQLiteRepository) Upsert(ctx context.Context, rv *models.Review) error {
	rv.LastSyncedAt = r.now().UTC().Truncate(time.Millisecond)

	err := dbx.InTx(ctx, r.db, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM reviews WHERE order_id = ? AND id <> ?`, rv.OrderID, rv.ID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO reviews (`+columns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				order_id = excluded.order_id,
				rater_id = excluded.rater_id,
				ratee_id = excluded.ratee_id,
				rating = excluded.rating,
				comment = excluded.comment,
				created_at = excluded.created_at,
				last_synced_at = excluded.last_synced_at`,
			rv.ID, rv.OrderID, rv.RaterID, rv.RateeID, rv.Rating, rv.Comment,
			dbx.Millis(rv.CreatedAt), dbx.Millis(rv.LastSyncedAt))
		return err
	})
	if err != nil {
		return common.StorageError("upsert review "+rv.ID, err)
	}
	return nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.Review, error) {
	return r.one(ctx, "get review "+id, `SELECT `+columns+` FROM reviews WHERE id = ?`, id)
}

func (r *SQLiteRepository) GetByOrder(ctx context.Context, orderID string) (*models.Review, error) {
	return r.one(ctx, "review for order "+orderID, `SELECT `+columns+` FROM reviews WHERE order_id = ?`, orderID)
}

func (r *SQLiteRepository) GetByRatee(ctx context.Context, rateeID string) ([]models.Review, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+columns+` FROM reviews WHERE ratee_id = ? ORDER BY created_at DESC, id`, rateeID)
	if err != nil {
		return nil, common.StorageError("reviews for "+rateeID, err)
	}
	defer rows.Close()

	var result []models.Review
	for rows.Next() {
		rv, err := scan(rows)
		if err != nil {
			return nil, common.StorageError("scan review", err)
		}
		result = append(result, *rv)
	}
	if err := rows.Err(); err != nil {
		return nil, common.StorageError("iterate reviews", err)
	}
	return result, nil
}

func (r *SQLiteRepository) one(ctx context.Context, op, query string, arg string) (*models.Review, error) {
	rv, err := scan(r.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, common.StorageError(op, err)
	}
	return rv, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(s scanner) (*models.Review, error) {
	var (
		rv                models.Review
		created, lastSync int64
	)
	if err := s.Scan(&rv.ID, &rv.OrderID, &rv.RaterID, &rv.RateeID, &rv.Rating, &rv.Comment, &created, &lastSync); err != nil {
		return nil, err
	}
	rv.CreatedAt = dbx.FromMillis(created)
	rv.LastSyncedAt = dbx.FromMillis(lastSync)
	return &rv, nil
}
