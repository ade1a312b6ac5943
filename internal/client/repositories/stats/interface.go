package stats

import (
	"context"

	"github.com/dmitrijs2005/marketkeeper/internal/client/models"
)

// Repository computes aggregates over the cached domain tables.
type Repository interface {
	AverageRating(ctx context.Context, accountID string) (models.RatingSummary, error)

	// OrderCountsByStatus counts the orders an account takes part in, as
	// buyer or seller, grouped by status. Every status is present in the
	// result. An empty accountID counts all cached orders.
	OrderCountsByStatus(ctx context.Context, accountID string) (map[models.OrderStatus]int, error)

	SellerSummary(ctx context.Context, sellerID string) (models.SellerSummary, error)

	// ProfileStats combines the three aggregates above.
	ProfileStats(ctx context.Context, accountID string) (models.ProfileStats, error)
}
