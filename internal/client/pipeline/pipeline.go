// Package pipeline wraps every backend call in an ordered chain:
// response cache, 401 recovery, transient retry, auth injection and
// optional logging around the HTTP dispatch. Do maps the final status to
// the client error taxonomy.
package pipeline

import (
	"context"
	"net/http"
	"time"

	"github.com/dmitrijs2005/marketkeeper/internal/logging"
)

// Options configures a Pipeline. Zero values pick the defaults shown.
type Options struct {
	BaseURL string
	// Timeout bounds each dispatch, 30s.
	Timeout time.Duration
	// RetryCount is the number of additional attempts after a network
	// failure, 2. Negative disables retries.
	RetryCount int
	// RetryBase is the first backoff step, 200ms.
	RetryBase time.Duration

	// Session enables auth injection and 401 recovery when set.
	Session Session

	// Cache enables response caching when set.
	Cache Cache
	// Staleness is the oldest cached response served on error, 7 days.
	Staleness time.Duration

	LogRequests bool
	Logger      logging.Logger

	HTTPClient *http.Client
	Now        func() time.Time
}

// Pipeline performs backend calls.
type Pipeline struct {
	handler   Handler
	transport *Transport
	cache     Cache
}

func New(opts Options) (*Pipeline, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RetryCount == 0 {
		opts.RetryCount = 2
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = 200 * time.Millisecond
	}
	if opts.Staleness <= 0 {
		opts.Staleness = 7 * 24 * time.Hour
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	log := opts.Logger.With("component", "pipeline")

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	c := *client
	c.Timeout = opts.Timeout

	tr, err := NewTransport(opts.BaseURL, &c)
	if err != nil {
		return nil, err
	}

	var chain []Interceptor
	if opts.Cache != nil {
		chain = append(chain, ResponseCache(opts.Cache, opts.Staleness, opts.Now, log))
	}
	if opts.Session != nil {
		chain = append(chain, Recover(opts.Session, log))
	}
	chain = append(chain, Retry(opts.RetryCount, opts.RetryBase, log))
	if opts.Session != nil {
		chain = append(chain, Auth(opts.Session, log))
	}
	if opts.LogRequests {
		chain = append(chain, Logging(log))
	}

	return &Pipeline{
		handler:   Chain(tr.Handle, chain...),
		transport: tr,
		cache:     opts.Cache,
	}, nil
}

// Do runs req through the chain. Non-2xx results become errors via
// Classify; the response is returned alongside for inspection.
func (p *Pipeline) Do(ctx context.Context, req *Request) (*Response, error) {
	if req.Header == nil {
		req.Header = http.Header{}
	}
	resp, err := p.handler(ctx, req)
	if err != nil {
		return nil, err
	}
	if cerr := Classify(resp); cerr != nil {
		return resp, cerr
	}
	return resp, nil
}

// Purge empties the response cache, if any.
func (p *Pipeline) Purge() {
	if p.cache != nil {
		p.cache.Purge()
	}
}

// URL reports where req would be sent.
func (p *Pipeline) URL(req *Request) string {
	return p.transport.URL(req)
}
