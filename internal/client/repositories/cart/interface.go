package cart

import (
	"context"

	"github.com/dmitrijs2005/marketkeeper/internal/client/models"
)

// Repository is the local-only shopping cart. Its rows are never synced.
type Repository interface {
	// Add puts quantity units of the listing in the cart; adding a listing
	// that is already there increases its quantity.
	Add(ctx context.Context, listingID string, quantity int) (*models.CartItem, error)

	// SetQuantity overwrites the quantity; zero or less removes the line.
	SetQuantity(ctx context.Context, listingID string, quantity int) error

	Remove(ctx context.Context, listingID string) error

	// List returns the cart lines joined with their listings, oldest first.
	List(ctx context.Context) ([]models.CartItem, error)

	// TotalCents sums price times quantity over the cart.
	TotalCents(ctx context.Context) (int64, error)

	Clear(ctx context.Context) error
}
