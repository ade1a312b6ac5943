package listings

import (
	"context"

	"github.com/dmitrijs2005/marketkeeper/internal/client/models"
)

// Repository persists Listing rows mirrored from the backend.
type Repository interface {
	// Upsert inserts or fully replaces the listing. The seller account must
	// already be stored.
	Upsert(ctx context.Context, l *models.Listing) error

	// EnsureStub inserts a placeholder listing unless one exists. The seller
	// must already be stored.
	EnsureStub(ctx context.Context, id, sellerID string) error

	// GetByID returns (nil, nil) when the listing is not cached.
	GetByID(ctx context.Context, id string) (*models.Listing, error)

	// GetBySeller returns the seller's listings, newest first.
	GetBySeller(ctx context.Context, sellerID string) ([]models.Listing, error)

	// List returns listings matching f, newest first.
	List(ctx context.Context, f models.ListingFilter) ([]models.Listing, error)

	DeleteByID(ctx context.Context, id string) error
}
