package services

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/marketkeeper/internal/client/client"
	"github.com/dmitrijs2005/marketkeeper/internal/client/models"
	"github.com/dmitrijs2005/marketkeeper/internal/client/store"
)

// CartService is the shopping cart. It lives on the device only.
type CartService interface {
	Add(ctx context.Context, listingID string, quantity int) (*models.CartItem, error)
	SetQuantity(ctx context.Context, listingID string, quantity int) error
	Remove(ctx context.Context, listingID string) error
	Items(ctx context.Context) ([]models.CartItem, error)
	TotalCents(ctx context.Context) (int64, error)
	Clear(ctx context.Context) error
}

type cartService struct {
	api   client.API
	store *store.Store
}

func NewCartService(api client.API, st *store.Store) CartService {
	return &cartService{api: api, store: st}
}

// Add needs the listing in the local store. A listing that is not cached is
// fetched once so the cart line can reference it.
func (s *cartService) Add(ctx context.Context, listingID string, quantity int) (*models.CartItem, error) {
	l, err := s.store.Listings.GetByID(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if l == nil || l.LastSyncedAt.IsZero() {
		p, err := s.api.GetListing(ctx, listingID)
		if err != nil {
			return nil, fmt.Errorf("fetch listing %s: %w", listingID, err)
		}
		if err := s.store.SaveListingGraph(ctx, *p); err != nil {
			return nil, err
		}
	}
	return s.store.Cart.Add(ctx, listingID, quantity)
}

func (s *cartService) SetQuantity(ctx context.Context, listingID string, quantity int) error {
	return s.store.Cart.SetQuantity(ctx, listingID, quantity)
}

func (s *cartService) Remove(ctx context.Context, listingID string) error {
	return s.store.Cart.Remove(ctx, listingID)
}

func (s *cartService) Items(ctx context.Context) ([]models.CartItem, error) {
	return s.store.Cart.List(ctx)
}

func (s *cartService) TotalCents(ctx context.Context) (int64, error) {
	return s.store.Cart.TotalCents(ctx)
}

func (s *cartService) Clear(ctx context.Context) error {
	return s.store.Cart.Clear(ctx)
}
