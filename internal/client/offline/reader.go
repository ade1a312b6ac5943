package offline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/marketkeeper/internal/client/notify"
	"github.com/dmitrijs2005/marketkeeper/internal/client/worker"
	"github.com/dmitrijs2005/marketkeeper/internal/common"
	"github.com/dmitrijs2005/marketkeeper/internal/logging"
)

// Submitter runs background tasks.
type Submitter interface {
	Submit(name string, fn worker.Task) error
}

// CacheFirstReader serves cached data at once and refreshes it in the
// background. Refreshes for one key never overlap.
type CacheFirstReader[T any] struct {
	pool Submitter
	bus  *notify.Bus[Update]
	log  logging.Logger

	mu       sync.Mutex
	inflight map[string]struct{}
}

func NewCacheFirstReader[T any](pool Submitter, bus *notify.Bus[Update], log logging.Logger) *CacheFirstReader[T] {
	if log == nil {
		log = logging.NewNop()
	}
	return &CacheFirstReader[T]{
		pool:     pool,
		bus:      bus,
		log:      log.With("component", "cache-first"),
		inflight: map[string]struct{}{},
	}
}

// Read returns the cached value for key when there is one and schedules a
// refresh that saves fresh data and publishes an Update. On a miss it
// fetches in the foreground and writes the result through. A local read
// failure counts as a miss.
func (r *CacheFirstReader[T]) Read(ctx context.Context, key string, src Source[T]) (Result[T], error) {
	v, ok, err := src.Local(ctx)
	if err != nil {
		r.log.Warn(ctx, "local read failed, treating as miss", "key", key, "error", err)
		ok = false
	}
	if ok {
		r.refreshLater(ctx, key, src)
		return Result[T]{Data: v, Origin: OriginCache}, nil
	}

	fresh, err := src.Remote(ctx)
	if err != nil {
		if errors.Is(err, common.ErrNetwork) {
			return Result[T]{}, fmt.Errorf("%w: %w", common.ErrCacheMiss, err)
		}
		return Result[T]{}, err
	}
	if err := src.Save(ctx, fresh); err != nil {
		r.log.Warn(ctx, "write-through failed", "key", key, "error", err)
	}
	return Result[T]{Data: fresh, Origin: OriginRemote}, nil
}

func (r *CacheFirstReader[T]) refreshLater(ctx context.Context, key string, src Source[T]) {
	r.mu.Lock()
	if _, busy := r.inflight[key]; busy {
		r.mu.Unlock()
		return
	}
	r.inflight[key] = struct{}{}
	r.mu.Unlock()

	task := func(poolCtx context.Context) error {
		defer r.done(key)
		return r.refresh(poolCtx, key, src)
	}
	if err := r.pool.Submit("refresh "+key, task); err != nil {
		r.done(key)
		r.log.Warn(ctx, "background refresh not scheduled", "key", key, "error", err)
	}
}

func (r *CacheFirstReader[T]) done(key string) {
	r.mu.Lock()
	delete(r.inflight, key)
	r.mu.Unlock()
}

func (r *CacheFirstReader[T]) refresh(ctx context.Context, key string, src Source[T]) error {
	fresh, err := src.Remote(ctx)
	if err != nil {
		return fmt.Errorf("refresh %s: %w", key, err)
	}
	if err := src.Save(ctx, fresh); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	if r.bus != nil {
		r.bus.Publish(Topic, Update{Key: key, Data: fresh, At: time.Now()})
	}
	return nil
}
