package services

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/marketkeeper/internal/client/client"
	"github.com/dmitrijs2005/marketkeeper/internal/client/models"
	"github.com/dmitrijs2005/marketkeeper/internal/client/offline"
	"github.com/dmitrijs2005/marketkeeper/internal/client/store"
)

// ListingKey is the update key of a single listing.
func ListingKey(id string) string { return "listing:" + id }

type ListingService interface {
	// Browse lists listings through the connectivity gate.
	Browse(ctx context.Context, f models.ListingFilter) (offline.Result[[]models.ListingPayload], error)
	// Listing returns one listing, cache-first.
	Listing(ctx context.Context, id string) (offline.Result[*models.ListingPayload], error)
	Create(ctx context.Context, l models.NewListing) (*models.ListingPayload, error)
	SuggestPrice(ctx context.Context, category string) (*models.PriceSuggestion, error)
}

type listingService struct {
	api    client.API
	store  *store.Store
	gate   *offline.GatedFetcher[[]models.ListingPayload]
	reader *offline.CacheFirstReader[*models.ListingPayload]
}

func NewListingService(api client.API, st *store.Store, gate *offline.GatedFetcher[[]models.ListingPayload], reader *offline.CacheFirstReader[*models.ListingPayload]) ListingService {
	return &listingService{api: api, store: st, gate: gate, reader: reader}
}

func (s *listingService) Browse(ctx context.Context, f models.ListingFilter) (offline.Result[[]models.ListingPayload], error) {
	return s.gate.Fetch(ctx, offline.Funcs[[]models.ListingPayload]{
		LocalFn: func(ctx context.Context) ([]models.ListingPayload, bool, error) {
			ls, err := s.store.Listings.List(ctx, f)
			if err != nil {
				return nil, false, err
			}
			out := make([]models.ListingPayload, 0, len(ls))
			for _, l := range ls {
				if l.LastSyncedAt.IsZero() {
					continue
				}
				out = append(out, models.ListingPayload{Listing: l})
			}
			return out, len(out) > 0, nil
		},
		RemoteFn: func(ctx context.Context) ([]models.ListingPayload, error) {
			return s.api.ListListings(ctx, f)
		},
		SaveFn: func(ctx context.Context, v []models.ListingPayload) error {
			return s.store.SaveListingGraph(ctx, v...)
		},
	})
}

func (s *listingService) Listing(ctx context.Context, id string) (offline.Result[*models.ListingPayload], error) {
	return s.reader.Read(ctx, ListingKey(id), offline.Funcs[*models.ListingPayload]{
		LocalFn: func(ctx context.Context) (*models.ListingPayload, bool, error) {
			l, err := s.store.Listings.GetByID(ctx, id)
			if err != nil || l == nil {
				return nil, false, err
			}
			// stubs written for unembedded parents carry no data yet
			if l.LastSyncedAt.IsZero() {
				return nil, false, nil
			}
			p := &models.ListingPayload{Listing: *l}
			if seller, err := s.store.Accounts.GetByID(ctx, l.SellerID); err == nil {
				p.Seller = seller
			}
			return p, true, nil
		},
		RemoteFn: func(ctx context.Context) (*models.ListingPayload, error) {
			return s.api.GetListing(ctx, id)
		},
		SaveFn: func(ctx context.Context, v *models.ListingPayload) error {
			return s.store.SaveListingGraph(ctx, *v)
		},
	})
}

func (s *listingService) Create(ctx context.Context, l models.NewListing) (*models.ListingPayload, error) {
	p, err := s.api.CreateListing(ctx, l)
	if err != nil {
		return nil, err
	}
	if err := s.store.SaveListingGraph(ctx, *p); err != nil {
		return nil, fmt.Errorf("cache listing: %w", err)
	}
	return p, nil
}

// SuggestPrice is served by the backend only; the response cache covers
// short outages.
func (s *listingService) SuggestPrice(ctx context.Context, category string) (*models.PriceSuggestion, error) {
	return s.api.PriceSuggestion(ctx, category)
}
