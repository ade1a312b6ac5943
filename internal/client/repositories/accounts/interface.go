package accounts

import (
	"context"

	"github.com/dmitrijs2005/marketkeeper/internal/client/models"
)

// Repository persists Account rows mirrored from the backend.
type Repository interface {
	// Upsert inserts the account or fully replaces the row with the same id,
	// stamping LastSyncedAt.
	Upsert(ctx context.Context, a *models.Account) error

	// EnsureStub inserts a placeholder row for id unless one exists, so that
	// records referencing an account the backend did not embed can be stored.
	EnsureStub(ctx context.Context, id string) error

	// GetByID returns (nil, nil) when the account is not cached.
	GetByID(ctx context.Context, id string) (*models.Account, error)

	// GetByEmails returns the cached accounts registered under any of emails,
	// which must be lower-case.
	GetByEmails(ctx context.Context, emails []string) ([]models.Account, error)

	// DeleteByID removes the account together with its listings, orders and
	// reviews.
	DeleteByID(ctx context.Context, id string) error
}
