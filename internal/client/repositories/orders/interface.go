package orders

import (
	"context"

	"github.com/dmitrijs2005/marketkeeper/internal/client/models"
)

// Repository persists Order rows mirrored from the backend and serves the
// joined views the order screens need.
type Repository interface {
	// Upsert inserts or fully replaces the order. Its listing, buyer and
	// seller must already be stored.
	Upsert(ctx context.Context, o *models.Order) error

	// GetByID returns (nil, nil) when the order is not cached.
	GetByID(ctx context.Context, id string) (*models.Order, error)

	GetByBuyer(ctx context.Context, buyerID string) ([]models.Order, error)
	GetBySeller(ctx context.Context, sellerID string) ([]models.Order, error)
	GetByStatus(ctx context.Context, status models.OrderStatus) ([]models.Order, error)

	// List returns orders matching f, newest first.
	List(ctx context.Context, f models.OrderFilter) ([]models.Order, error)

	// ForAccount returns orders where the account is buyer or seller.
	ForAccount(ctx context.Context, accountID string) ([]models.Order, error)

	// Details returns the order joined with its buyer, seller and listing,
	// or (nil, nil) when it is not cached.
	Details(ctx context.Context, id string) (*models.OrderDetails, error)

	// DetailsList is the joined form of List.
	DetailsList(ctx context.Context, f models.OrderFilter) ([]models.OrderDetails, error)

	DeleteByID(ctx context.Context, id string) error
}
