package reviews

import (
	"context"

	"github.com/dmitrijs2005/marketkeeper/internal/client/models"
)

// Repository persists Review rows. The store holds at most one review per
// order.
type Repository interface {
	// Upsert inserts or fully replaces the review. A stored review for the
	// same order under another id is overwritten.
	Upsert(ctx context.Context, rv *models.Review) error

	// GetByID returns (nil, nil) when the review is not cached.
	GetByID(ctx context.Context, id string) (*models.Review, error)

	// GetByOrder returns (nil, nil) when the order has no cached review.
	GetByOrder(ctx context.Context, orderID string) (*models.Review, error)

	// GetByRatee returns the reviews an account received, newest first.
	GetByRatee(ctx context.Context, rateeID string) ([]models.Review, error)
}
