package offline

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/marketkeeper/internal/client/connectivity"
	"github.com/dmitrijs2005/marketkeeper/internal/common"
	"github.com/dmitrijs2005/marketkeeper/internal/logging"
)

// GatedFetcher reads from the backend only when it is reachable and falls
// back to the local store otherwise.
//
//	checking -> online-fetch -> success
//	                         -> cache-fallback -> success | error
//	checking -> offline      -> success | error
type GatedFetcher[T any] struct {
	checker connectivity.Checker
	log     logging.Logger
}

func NewGatedFetcher[T any](checker connectivity.Checker, log logging.Logger) *GatedFetcher[T] {
	if log == nil {
		log = logging.NewNop()
	}
	return &GatedFetcher[T]{checker: checker, log: log.With("component", "gated-fetch")}
}

// Fetch runs one read. Offline, the backend is never contacted. Online, a
// fetch that failed on the network or the server side falls back to the
// cache. Auth and validation failures are returned as is so the caller can
// react to them. Without cached data the error matches common.ErrCacheMiss,
// plus the backend error when there was one.
func (g *GatedFetcher[T]) Fetch(ctx context.Context, src Source[T]) (Result[T], error) {
	if !g.checker.Online(ctx) {
		return g.fromCache(ctx, src, OriginOffline, nil)
	}

	v, err := src.Remote(ctx)
	if err != nil {
		if !servedFromCache(err) {
			return Result[T]{}, err
		}
		g.log.Info(ctx, "remote fetch failed, falling back to cache", "error", err)
		return g.fromCache(ctx, src, OriginCacheFallback, err)
	}

	if err := src.Save(ctx, v); err != nil {
		g.log.Warn(ctx, "write-through failed", "error", err)
	}
	return Result[T]{Data: v, Origin: OriginRemote}, nil
}

func (g *GatedFetcher[T]) fromCache(ctx context.Context, src Source[T], origin Origin, remoteErr error) (Result[T], error) {
	v, ok, err := src.Local(ctx)
	if err != nil {
		g.log.Warn(ctx, "local read failed, treating as miss", "error", err)
		ok = false
	}
	if !ok {
		if remoteErr != nil {
			return Result[T]{}, fmt.Errorf("%w: %w", common.ErrCacheMiss, remoteErr)
		}
		return Result[T]{}, common.ErrCacheMiss
	}
	return Result[T]{Data: v, Origin: origin}, nil
}

// servedFromCache reports whether a remote failure may be answered from the
// local store.
func servedFromCache(err error) bool {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, common.ErrAuth):
		return false
	case errors.Is(err, common.ErrNotFound):
		return true
	case errors.Is(err, common.ErrValidation):
		return false
	}
	return errors.Is(err, common.ErrNetwork) || errors.Is(err, common.ErrServer)
}
