package pipeline

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Request is an outbound REST call relative to the pipeline's base URL.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	// Body is JSON-encoded when non-nil.
	Body   any
	Header http.Header
	// NoCache skips the response cache in both directions.
	NoCache bool
}

// Clone returns a copy whose Header and Query can be changed freely.
func (r *Request) Clone() *Request {
	c := *r
	c.Header = r.Header.Clone()
	if c.Header == nil {
		c.Header = http.Header{}
	}
	if r.Query != nil {
		c.Query = make(url.Values, len(r.Query))
		for k, v := range r.Query {
			c.Query[k] = append([]string(nil), v...)
		}
	}
	return &c
}

// CacheKey is method, path and the query sorted by key.
func (r *Request) CacheKey() string {
	var b strings.Builder
	b.WriteString(strings.ToUpper(r.Method))
	b.WriteByte(' ')
	b.WriteString(r.Path)
	if len(r.Query) > 0 {
		b.WriteByte('?')
		b.WriteString(r.Query.Encode())
	}
	return b.String()
}

// Response is what came back from the backend, or from the cache.
type Response struct {
	Status    int
	Header    http.Header
	Body      []byte
	FromCache bool
	CachedAt  time.Time

	// Request is the request as dispatched, including injected headers.
	Request *Request
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// Decode unmarshals the JSON body into v. An empty body leaves v untouched.
func (r *Response) Decode(v any) error {
	if len(r.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("decode %s response: %w", r.requestPath(), err)
	}
	return nil
}

func (r *Response) requestPath() string {
	if r.Request == nil {
		return "backend"
	}
	return r.Request.Path
}
