package store

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/marketkeeper/internal/client/models"
	"github.com/dmitrijs2005/marketkeeper/internal/client/repositories/accounts"
	"github.com/dmitrijs2005/marketkeeper/internal/client/repositories/listings"
	"github.com/dmitrijs2005/marketkeeper/internal/client/repositories/orders"
	"github.com/dmitrijs2005/marketkeeper/internal/client/repositories/reviews"
)

// graph writes a record after the parents its foreign keys point at.
// Embedded parents are upserted; missing ones get a stub row.
type graph struct {
	accounts accounts.Repository
	listings listings.Repository
	orders   orders.Repository
	reviews  reviews.Repository
}

func (g graph) account(ctx context.Context, embedded *models.Account, id string) error {
	if embedded != nil && embedded.ID == id {
		return g.accounts.Upsert(ctx, embedded)
	}
	return g.accounts.EnsureStub(ctx, id)
}

func (g graph) listing(ctx context.Context, p *models.ListingPayload) error {
	if err := g.account(ctx, p.Seller, p.SellerID); err != nil {
		return err
	}
	return g.listings.Upsert(ctx, &p.Listing)
}

func (g graph) order(ctx context.Context, p *models.OrderPayload) error {
	if err := g.account(ctx, p.Buyer, p.BuyerID); err != nil {
		return err
	}
	if err := g.account(ctx, p.Seller, p.SellerID); err != nil {
		return err
	}
	if p.Listing != nil && p.Listing.ID == p.ListingID {
		if err := g.listing(ctx, p.Listing); err != nil {
			return err
		}
	} else if err := g.listings.EnsureStub(ctx, p.ListingID, p.SellerID); err != nil {
		return err
	}
	return g.orders.Upsert(ctx, &p.Order)
}

// errOrderUnknown marks a review whose order is neither embedded nor cached.
// Reviews carry no listing or seller of their order, so no stub can be made.
var errOrderUnknown = errors.New("review order unknown")

func (g graph) review(ctx context.Context, p *models.ReviewPayload) error {
	embedded := p.Order != nil && p.Order.ID == p.OrderID
	if !embedded {
		o, err := g.orders.GetByID(ctx, p.OrderID)
		if err != nil {
			return err
		}
		if o == nil {
			return errOrderUnknown
		}
	}

	if err := g.account(ctx, p.Rater, p.RaterID); err != nil {
		return err
	}
	if err := g.account(ctx, p.Ratee, p.RateeID); err != nil {
		return err
	}
	if embedded {
		if err := g.order(ctx, p.Order); err != nil {
			return err
		}
	}
	return g.reviews.Upsert(ctx, &p.Review)
}
