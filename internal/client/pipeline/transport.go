package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/dmitrijs2005/marketkeeper/internal/common"
)

// Transport dispatches requests over HTTP. Connection failures and
// timeouts come back matching common.ErrNetwork; every HTTP status is a
// successful exchange at this level.
type Transport struct {
	base   *url.URL
	client *http.Client
}

func NewTransport(baseURL string, client *http.Client) (*Transport, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Transport{base: u, client: client}, nil
}

// URL resolves req against the base URL.
func (t *Transport) URL(req *Request) string {
	u := *t.base
	u.Path = t.base.Path + "/" + strings.TrimLeft(req.Path, "/")
	if len(req.Query) > 0 {
		u.RawQuery = req.Query.Encode()
	}
	return u.String()
}

func (t *Transport) Handle(ctx context.Context, req *Request) (*Response, error) {
	var body io.Reader
	if req.Body != nil {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encode %s body: %w", req.Path, err)
		}
		body = bytes.NewReader(b)
	}

	hr, err := http.NewRequestWithContext(ctx, req.Method, t.URL(req), body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			hr.Header.Add(k, v)
		}
	}
	hr.Header.Set("Accept", "application/json")
	if req.Body != nil {
		hr.Header.Set("Content-Type", "application/json")
	}

	res, err := t.client.Do(hr)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, common.NetworkError(err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, common.NetworkError(fmt.Errorf("read body: %w", err))
	}

	return &Response{Status: res.StatusCode, Header: res.Header, Body: data, Request: req}, nil
}
