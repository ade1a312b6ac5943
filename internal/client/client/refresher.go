package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/dmitrijs2005/marketkeeper/internal/client/pipeline"
	"github.com/dmitrijs2005/marketkeeper/internal/common"
	"golang.org/x/oauth2"
)

// Refresher exchanges refresh tokens. It must run over a pipeline without a
// session, otherwise a rejected refresh would recurse into itself.
type Refresher struct {
	p *pipeline.Pipeline
}

func NewRefresher(p *pipeline.Pipeline) *Refresher {
	return &Refresher{p: p}
}

// Refresh returns a new token pair. A 400, 401 or 403 from the endpoint
// means the refresh token is no longer valid and yields an error matching
// common.ErrAuth; network and server failures are returned as they are.
func (r *Refresher) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	req := &pipeline.Request{
		Method:  http.MethodPost,
		Path:    RefreshPath,
		Body:    map[string]string{"refresh_token": refreshToken},
		NoCache: true,
	}

	resp, err := r.p.Do(ctx, req)
	if err != nil {
		if resp != nil && rejected(resp.Status) && !errors.Is(err, common.ErrAuth) {
			return nil, fmt.Errorf("%w: %w", common.ErrAuth, err)
		}
		return nil, err
	}

	var out TokenResponse
	if err := resp.Decode(&out); err != nil {
		return nil, err
	}
	if out.AccessToken == "" {
		return nil, fmt.Errorf("%w: refresh response without access token", common.ErrServer)
	}
	return out.Token(), nil
}

func rejected(status int) bool {
	return status == http.StatusBadRequest || status == http.StatusUnauthorized || status == http.StatusForbidden
}
