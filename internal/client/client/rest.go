package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/dmitrijs2005/marketkeeper/internal/client/models"
	"github.com/dmitrijs2005/marketkeeper/internal/client/pipeline"
	"github.com/dmitrijs2005/marketkeeper/internal/common"
)

// Endpoint paths.
const (
	LoginPath           = "/auth/login"
	RefreshPath         = common.RefreshPath
	MePath              = "/auth/me"
	ListingsPath        = "/listings"
	PriceSuggestionPath = "/listings/price-suggestion"
	OrdersPath          = "/orders"
	ReviewsPath         = "/reviews"
	UserReviewsPath     = "/reviews/users/"
	EventsPath          = "/events"
	ContactsMatchPath   = "/contacts/match"
)

// RESTClient implements API. Login goes through anon, a pipeline without
// session handling, so a rejected password never triggers a refresh.
type RESTClient struct {
	p    *pipeline.Pipeline
	anon *pipeline.Pipeline
}

var _ API = (*RESTClient)(nil)

func NewRESTClient(authed, anon *pipeline.Pipeline) *RESTClient {
	return &RESTClient{p: authed, anon: anon}
}

func (c *RESTClient) do(ctx context.Context, p *pipeline.Pipeline, req *pipeline.Request, out any) error {
	resp, err := p.Do(ctx, req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return resp.Decode(out)
}

func get(path string, q url.Values) *pipeline.Request {
	return &pipeline.Request{Method: http.MethodGet, Path: path, Query: q}
}

func send(method, path string, body any) *pipeline.Request {
	return &pipeline.Request{Method: method, Path: path, Body: body}
}

func (c *RESTClient) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	body := map[string]string{"email": email, "password": password}

	var out struct {
		TokenResponse
		Account *models.Account `json:"account"`
	}
	if err := c.do(ctx, c.anon, send(http.MethodPost, LoginPath, body), &out); err != nil {
		return nil, err
	}
	if out.AccessToken == "" {
		return nil, fmt.Errorf("%w: login response without access token", common.ErrServer)
	}
	return &LoginResult{Token: out.Token(), Account: out.Account}, nil
}

func (c *RESTClient) Me(ctx context.Context) (*models.Account, error) {
	var out models.Account
	if err := c.do(ctx, c.p, get(MePath, nil), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *RESTClient) ListListings(ctx context.Context, f models.ListingFilter) ([]models.ListingPayload, error) {
	q := url.Values{}
	setIf(q, "seller_id", f.SellerID)
	setIf(q, "category", f.Category)
	setIf(q, "q", f.Query)
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}

	var out []models.ListingPayload
	if err := c.do(ctx, c.p, get(ListingsPath, q), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *RESTClient) GetListing(ctx context.Context, id string) (*models.ListingPayload, error) {
	var out models.ListingPayload
	if err := c.do(ctx, c.p, get(ListingsPath+"/"+url.PathEscape(id), nil), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *RESTClient) CreateListing(ctx context.Context, l models.NewListing) (*models.ListingPayload, error) {
	var out models.ListingPayload
	if err := c.do(ctx, c.p, send(http.MethodPost, ListingsPath, l), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *RESTClient) PriceSuggestion(ctx context.Context, category string) (*models.PriceSuggestion, error) {
	var out models.PriceSuggestion
	q := url.Values{"category": {category}}
	if err := c.do(ctx, c.p, get(PriceSuggestionPath, q), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *RESTClient) ListOrders(ctx context.Context, f models.OrderFilter) ([]models.OrderPayload, error) {
	q := url.Values{}
	setIf(q, "buyer_id", f.BuyerID)
	setIf(q, "seller_id", f.SellerID)
	setIf(q, "status", string(f.Status))

	var out []models.OrderPayload
	if err := c.do(ctx, c.p, get(OrdersPath, q), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *RESTClient) GetOrder(ctx context.Context, id string) (*models.OrderPayload, error) {
	var out models.OrderPayload
	if err := c.do(ctx, c.p, get(OrdersPath+"/"+url.PathEscape(id), nil), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateOrder places an order. The idempotency key lets the backend
// recognise a retried submission.
func (c *RESTClient) CreateOrder(ctx context.Context, listingID, idempotencyKey string) (*models.OrderPayload, error) {
	req := send(http.MethodPost, OrdersPath, map[string]string{"listing_id": listingID})
	req.Header = http.Header{}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	var out models.OrderPayload
	if err := c.do(ctx, c.p, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *RESTClient) UpdateOrderStatus(ctx context.Context, id string, status models.OrderStatus) (*models.OrderPayload, error) {
	body := map[string]models.OrderStatus{"status": status}

	var out models.OrderPayload
	if err := c.do(ctx, c.p, send(http.MethodPatch, OrdersPath+"/"+url.PathEscape(id), body), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *RESTClient) UserReviews(ctx context.Context, userID string) ([]models.ReviewPayload, error) {
	var out []models.ReviewPayload
	if err := c.do(ctx, c.p, get(UserReviewsPath+url.PathEscape(userID), nil), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *RESTClient) CreateReview(ctx context.Context, r models.NewReview) (*models.ReviewPayload, error) {
	var out models.ReviewPayload
	if err := c.do(ctx, c.p, send(http.MethodPost, ReviewsPath, r), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SendEvents delivers one telemetry batch. Any error means the whole batch
// has to be sent again.
func (c *RESTClient) SendEvents(ctx context.Context, batch []models.EventPayload) error {
	body := map[string][]models.EventPayload{"events": batch}
	return c.do(ctx, c.p, send(http.MethodPost, EventsPath, body), nil)
}

// MatchContacts returns the accounts registered under the given email
// hashes, keyed by hash.
func (c *RESTClient) MatchContacts(ctx context.Context, hashes []string) (map[string]models.Account, error) {
	var out struct {
		Matches []struct {
			Hash    string         `json:"hash"`
			Account models.Account `json:"account"`
		} `json:"matches"`
	}
	if err := c.do(ctx, c.p, send(http.MethodPost, ContactsMatchPath, map[string][]string{"hashes": hashes}), &out); err != nil {
		return nil, err
	}

	res := make(map[string]models.Account, len(out.Matches))
	for _, m := range out.Matches {
		res[m.Hash] = m.Account
	}
	return res, nil
}

func setIf(q url.Values, k, v string) {
	if v != "" {
		q.Set(k, v)
	}
}

// IsUnavailable reports errors after which cached data is an acceptable
// answer: network failures and server errors.
func IsUnavailable(err error) bool {
	return errors.Is(err, common.ErrNetwork) || errors.Is(err, common.ErrServer)
}
