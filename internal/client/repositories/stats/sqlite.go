// Package stats answers aggregate queries over the local store.
package stats

import (
	"context"

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

func (r *SQLiteRepository) AverageRating(ctx context.Context, accountID string) (models.RatingSummary, error) {
	s := models.RatingSummary{AccountID: accountID}
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(AVG(rating), 0), COUNT(*) FROM reviews WHERE ratee_id = ?`, accountID).
		Scan(&s.Average, &s.Count)
	if err != nil {
		return models.RatingSummary{}, common.StorageError("average rating", err)
	}
	return s, nil
}

func (r *SQLiteRepository) OrderCountsByStatus(ctx context.Context, accountID string) (map[models.OrderStatus]int, error) {
	query := `SELECT status, COUNT(*) FROM orders`
	var args []any
	if accountID != "" {
		query += ` WHERE buyer_id = ? OR seller_id = ?`
		args = append(args, accountID, accountID)
	}
	query += ` GROUP BY status`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, common.StorageError("order counts", err)
	}
	defer rows.Close()

	counts := make(map[models.OrderStatus]int, len(models.OrderStatuses))
	for _, s := range models.OrderStatuses {
		counts[s] = 0
	}
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, common.StorageError("scan order count", err)
		}
		counts[models.OrderStatus(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, common.StorageError("iterate order counts", err)
	}
	return counts, nil
}

func (r *SQLiteRepository) SellerSummary(ctx context.Context, sellerID string) (models.SellerSummary, error) {
	s := models.SellerSummary{SellerID: sellerID}
	err := r.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM listings WHERE seller_id = ?),
			COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'completed' THEN amount_cents ELSE 0 END), 0)
		FROM orders WHERE seller_id = ?`, sellerID, sellerID).
		Scan(&s.ListingCount, &s.OrderCount, &s.CompletedCount, &s.CompletedRevenueCents)
	if err != nil {
		return models.SellerSummary{}, common.StorageError("seller summary", err)
	}
	if s.CompletedCount > 0 {
		s.AverageCompletedOrderCents = float64(s.CompletedRevenueCents) / float64(s.CompletedCount)
	}
	return s, nil
}

func (r *SQLiteRepository) ProfileStats(ctx context.Context, accountID string) (models.ProfileStats, error) {
	rating, err := r.AverageRating(ctx, accountID)
	if err != nil {
		return models.ProfileStats{}, err
	}
	counts, err := r.OrderCountsByStatus(ctx, accountID)
	if err != nil {
		return models.ProfileStats{}, err
	}
	seller, err := r.SellerSummary(ctx, accountID)
	if err != nil {
		return models.ProfileStats{}, err
	}
	return models.ProfileStats{UserID: accountID, Rating: rating, OrdersByStatus: counts, Seller: seller}, nil
}
