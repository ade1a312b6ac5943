package events

import (
	"context"

	"github.com/dmitrijs2005/marketkeeper/internal/client/models"
)

// Repository is the durable telemetry queue.
type Repository interface {
	// Insert stores e and returns its local id.
	Insert(ctx context.Context, e *models.TelemetryEvent) (int64, error)

	// Pending returns up to limit undelivered events, oldest first. A limit
	// of zero or less returns all of them.
	Pending(ctx context.Context, limit int) ([]models.TelemetryEvent, error)

	// Count returns the number of undelivered events.
	Count(ctx context.Context) (int, error)

	// Acknowledge marks the events delivered and removes every delivered row
	// in one transaction.
	Acknowledge(ctx context.Context, ids []int64) error

	// PurgeDelivered removes rows left marked delivered.
	PurgeDelivered(ctx context.Context) (int64, error)

	// TrimOldest deletes the oldest undelivered events beyond limit and
	// reports how many were dropped.
	TrimOldest(ctx context.Context, limit int) (int64, error)
}
