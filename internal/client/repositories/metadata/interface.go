package metadata

import (
	"context"
)

// Repository is a small key/value table for client bookkeeping such as the
// sealed session credentials.
type Repository interface {
	// Get returns (nil, nil) for a missing key.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) (map[string][]byte, error)
	Clear(ctx context.Context) error
}
