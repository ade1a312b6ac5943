package pipeline

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/marketkeeper/internal/common"
	"github.com/dmitrijs2005/marketkeeper/internal/logging"
	"github.com/sethvargo/go-retry"
	"golang.org/x/oauth2"
)

// Handler performs a request.
type Handler func(ctx context.Context, req *Request) (*Response, error)

// Interceptor wraps a Handler.
type Interceptor func(next Handler) Handler

// Chain wraps h so that interceptors[0] is the outermost.
func Chain(h Handler, interceptors ...Interceptor) Handler {
	for i := len(interceptors) - 1; i >= 0; i-- {
		h = interceptors[i](h)
	}
	return h
}

// Session is what the auth and recovery stages need from the session
// manager.
type Session interface {
	oauth2.TokenSource
	AccessToken() string
	Expired(leeway time.Duration) bool
	Refresh(ctx context.Context, stale string) (*oauth2.Token, error)
}

// expiryLeeway triggers a proactive refresh shortly before the access token
// expires.
const expiryLeeway = 5 * time.Second

// Auth sets the bearer header from the session unless the caller already set
// Authorization. A token known to be expired is refreshed first; if that
// fails the request goes out with the old token and the 401 path decides.
func Auth(sess Session, log logging.Logger) Interceptor {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *Request) (*Response, error) {
			if req.Header.Get(common.AuthorizationHeader) != "" {
				return next(ctx, req)
			}

			if sess.Expired(expiryLeeway) {
				if _, err := sess.Refresh(ctx, sess.AccessToken()); err != nil {
					log.Debug(ctx, "proactive refresh failed", "error", err)
				}
			}

			tok, err := sess.Token()
			if err != nil {
				// anonymous call, e.g. login
				return next(ctx, req)
			}

			out := req.Clone()
			hr := http.Request{Header: out.Header}
			tok.SetAuthHeader(&hr)
			return next(ctx, out)
		}
	}
}

// Recover replays a request once after a 401. When the session already
// holds a different token than the one the request carried, another caller
// refreshed in the meantime and the request is replayed without refreshing
// again. The session repeats that check inside the shared refresh, so a
// refresh landing in between is not followed by a second one. The refresh
// endpoint and requests with a caller-supplied Authorization header are
// never recovered.
func Recover(sess Session, log logging.Logger) Interceptor {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *Request) (*Response, error) {
			resp, err := next(ctx, req)
			if err != nil || resp.Status != http.StatusUnauthorized {
				return resp, err
			}
			if req.Path == common.RefreshPath || req.Header.Get(common.AuthorizationHeader) != "" {
				return resp, nil
			}

			used := bearerOf(resp.Request)
			current := sess.AccessToken()
			if used == "" || current == "" || used == current {
				if _, rerr := sess.Refresh(ctx, used); rerr != nil {
					log.Info(ctx, "401 recovery failed", "path", req.Path, "error", rerr)
					if errors.Is(rerr, common.ErrAuth) {
						return resp, nil
					}
					return nil, rerr
				}
			}

			return next(ctx, req)
		}
	}
}

func bearerOf(req *Request) string {
	if req == nil {
		return ""
	}
	h := req.Header.Get(common.AuthorizationHeader)
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return h[7:]
	}
	return ""
}

// Retry repeats the call up to retries more times while it fails with a
// network error. Application errors (any HTTP status) are not retried.
func Retry(retries int, base time.Duration, log logging.Logger) Interceptor {
	return func(next Handler) Handler {
		if retries <= 0 {
			return next
		}
		return func(ctx context.Context, req *Request) (*Response, error) {
			b := retry.NewExponential(base)
			b = retry.WithJitterPercent(20, b)
			b = retry.WithMaxRetries(uint64(retries), b)

			var (
				resp    *Response
				attempt int
			)
			err := retry.Do(ctx, b, func(ctx context.Context) error {
				attempt++
				var err error
				resp, err = next(ctx, req)
				if errors.Is(err, common.ErrNetwork) {
					log.Debug(ctx, "transient failure", "path", req.Path, "attempt", attempt, "error", err)
					return retry.RetryableError(err)
				}
				return err
			})
			if err != nil {
				return nil, err
			}
			return resp, nil
		}
	}
}

// ResponseCache stores 2xx GET responses and serves a stored response when
// the live call fails with a network error or a non-2xx status other than
// 401 and 403, provided the entry is at most staleness old.
func ResponseCache(c Cache, staleness time.Duration, now func() time.Time, log logging.Logger) Interceptor {
	if now == nil {
		now = time.Now
	}
	return func(next Handler) Handler {
		return func(ctx context.Context, req *Request) (*Response, error) {
			if req.NoCache || !strings.EqualFold(req.Method, http.MethodGet) {
				return next(ctx, req)
			}
			key := req.CacheKey()

			resp, err := next(ctx, req)
			if err == nil && resp.OK() {
				c.Put(key, CacheEntry{Status: resp.Status, Header: resp.Header.Clone(), Body: resp.Body, StoredAt: now()})
				return resp, nil
			}

			if !servableOnError(resp, err) {
				return resp, err
			}
			e, ok := c.Get(key)
			if !ok {
				return resp, err
			}
			if age := now().Sub(e.StoredAt); age > staleness {
				log.Debug(ctx, "cached response too old", "key", key, "age", age)
				return resp, err
			}

			log.Info(ctx, "serving cached response", "key", key, "stored_at", e.StoredAt)
			return &Response{
				Status:    e.Status,
				Header:    e.Header.Clone(),
				Body:      e.Body,
				FromCache: true,
				CachedAt:  e.StoredAt,
				Request:   req,
			}, nil
		}
	}
}

func servableOnError(resp *Response, err error) bool {
	if err != nil {
		return errors.Is(err, common.ErrNetwork)
	}
	return resp.Status != http.StatusUnauthorized && resp.Status != http.StatusForbidden
}

// Logging records every dispatched request. It never alters the exchange.
func Logging(log logging.Logger) Interceptor {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *Request) (*Response, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			args := []any{"method", req.Method, "path", req.Path, "duration", time.Since(start)}
			if len(req.Query) > 0 {
				args = append(args, "query", req.Query.Encode())
			}
			if err != nil {
				log.Info(ctx, "request failed", append(args, "error", err)...)
				return resp, err
			}
			log.Info(ctx, "request", append(args, "status", resp.Status, "bytes", len(resp.Body))...)
			return resp, nil
		}
	}
}
