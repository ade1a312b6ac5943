package client

import (
	"context"

	"github.com/dmitrijs2005/marketkeeper/internal/client/models"
	"golang.org/x/oauth2"
)

// API is the backend surface the services depend on.
type API interface {
	Login(ctx context.Context, email, password string) (*LoginResult, error)
	Me(ctx context.Context) (*models.Account, error)

	ListListings(ctx context.Context, f models.ListingFilter) ([]models.ListingPayload, error)
	GetListing(ctx context.Context, id string) (*models.ListingPayload, error)
	CreateListing(ctx context.Context, l models.NewListing) (*models.ListingPayload, error)
	PriceSuggestion(ctx context.Context, category string) (*models.PriceSuggestion, error)

	ListOrders(ctx context.Context, f models.OrderFilter) ([]models.OrderPayload, error)
	GetOrder(ctx context.Context, id string) (*models.OrderPayload, error)
	CreateOrder(ctx context.Context, listingID, idempotencyKey string) (*models.OrderPayload, error)
	UpdateOrderStatus(ctx context.Context, id string, status models.OrderStatus) (*models.OrderPayload, error)

	UserReviews(ctx context.Context, userID string) ([]models.ReviewPayload, error)
	CreateReview(ctx context.Context, r models.NewReview) (*models.ReviewPayload, error)

	SendEvents(ctx context.Context, batch []models.EventPayload) error
	MatchContacts(ctx context.Context, hashes []string) (map[string]models.Account, error)
}

// TokenResponse is the body of /auth/login and /auth/refresh.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Token converts the response. The expiry is left to the session manager,
// which decodes it from the access token when possible.
func (t TokenResponse) Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    "Bearer",
	}
}

// LoginResult is a successful login.
type LoginResult struct {
	Token   *oauth2.Token
	Account *models.Account
}
