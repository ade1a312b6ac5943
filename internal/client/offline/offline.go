// Package offline implements the two read strategies shared by the domain
// services: cache-first with background refresh, and connectivity-gated
// fetch with cache fallback.
package offline

import (
	"context"
	"time"
)

// Origin tells where a Result came from.
type Origin int

const (
	// OriginRemote is fresh data from the backend, already written through.
	OriginRemote Origin = iota
	// OriginCache is a cache-first hit; a background refresh may follow.
	OriginCache
	// OriginCacheFallback is cached data served because the backend failed.
	OriginCacheFallback
	// OriginOffline is cached data served without trying the backend.
	OriginOffline
)

func (o Origin) String() string {
	switch o {
	case OriginRemote:
		return "remote"
	case OriginCache:
		return "cache"
	case OriginCacheFallback:
		return "cache-fallback"
	case OriginOffline:
		return "offline"
	}
	return "unknown"
}

// Stale is true when the data did not come from the backend just now, so
// the caller should show a cached-data indicator.
func (o Origin) Stale() bool {
	return o == OriginCacheFallback || o == OriginOffline
}

// Result is a read outcome.
type Result[T any] struct {
	Data   T
	Origin Origin
}

// Source binds one read to the local store and the backend.
type Source[T any] interface {
	// Local returns the cached value and whether there was one.
	Local(ctx context.Context) (T, bool, error)
	// Remote fetches the value from the backend.
	Remote(ctx context.Context) (T, error)
	// Save writes a fetched value through to the local store.
	Save(ctx context.Context, v T) error
}

// Funcs adapts three functions to Source. A nil SaveFn skips the write.
type Funcs[T any] struct {
	LocalFn  func(ctx context.Context) (T, bool, error)
	RemoteFn func(ctx context.Context) (T, error)
	SaveFn   func(ctx context.Context, v T) error
}

func (f Funcs[T]) Local(ctx context.Context) (T, bool, error) { return f.LocalFn(ctx) }
func (f Funcs[T]) Remote(ctx context.Context) (T, error)      { return f.RemoteFn(ctx) }

func (f Funcs[T]) Save(ctx context.Context, v T) error {
	if f.SaveFn == nil {
		return nil
	}
	return f.SaveFn(ctx, v)
}

// Topic is the notify topic of offline updates.
const Topic = "offline"

// Update announces that a background refresh stored fresh data for Key.
// Data holds the value the refresh produced.
type Update struct {
	Key  string
	Data any
	At   time.Time
}
