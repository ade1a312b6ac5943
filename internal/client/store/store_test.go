package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitrijs2005/marketkeeper/internal/client/models"
	"github.com/dmitrijs2005/marketkeeper/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "market.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func account(id string) *models.Account {
	return &models.Account{ID: id, Email: id + "@x", DisplayName: "name " + id}
}

func orderPayload(id, listingID, buyer, seller string, status models.OrderStatus) models.OrderPayload {
	return models.OrderPayload{
		Order:  models.Order{ID: id, ListingID: listingID, BuyerID: buyer, SellerID: seller, Status: status, AmountCents: 500},
		Buyer:  account(buyer),
		Seller: account(seller),
		Listing: &models.ListingPayload{
			Listing: models.Listing{ID: listingID, SellerID: seller, Title: "item " + listingID, PriceCents: 500},
		},
	}
}

func TestSaveOrderGraph_WritesParentsFirst(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveOrderGraph(ctx, orderPayload("O1", "L1", "B", "S", models.OrderPaid)))

	d, err := s.Orders.Details(ctx, "O1")
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, "name B", d.Buyer.DisplayName)
	assert.Equal(t, "name S", d.Seller.DisplayName)
	assert.Equal(t, "item L1", d.Listing.Title)
}

func TestSaveOrderGraph_StubsMissingParents(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	p := models.OrderPayload{Order: models.Order{ID: "O1", ListingID: "L9", BuyerID: "B", SellerID: "S", Status: models.OrderCreated}}
	require.NoError(t, s.SaveOrderGraph(ctx, p))

	c, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, Counts{Accounts: 2, Listings: 1, Orders: 1}, c)

	// a later full payload replaces the stubs
	require.NoError(t, s.SaveOrderGraph(ctx, orderPayload("O1", "L9", "B", "S", models.OrderPaid)))
	l, err := s.Listings.GetByID(ctx, "L9")
	require.NoError(t, err)
	assert.Equal(t, "item L9", l.Title)
}

func TestSaveOrderGraph_IsAtomic(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	good := orderPayload("O1", "L1", "B", "S", models.OrderPaid)
	bad := orderPayload("O2", "L2", "B", "S", "lost")

	err := s.SaveOrderGraph(ctx, good, bad)
	require.ErrorIs(t, err, common.ErrStorage)

	c, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Zero(t, c.Orders)
	assert.Zero(t, c.Accounts)
}

func TestSaveReviewGraph(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	op := orderPayload("O1", "L1", "B", "S", models.OrderCompleted)
	require.NoError(t, s.SaveReviewGraph(ctx, models.ReviewPayload{
		Review: models.Review{ID: "R1", OrderID: "O1", RaterID: "B", RateeID: "S", Rating: 5},
		Rater:  account("B"),
		Ratee:  account("S"),
		Order:  &op,
	}))

	got, err := s.Reviews.GetByRatee(ctx, "S")
	require.NoError(t, err)
	require.Len(t, got, 1)

	// a review whose order is neither embedded nor cached is skipped alone
	op2 := orderPayload("O2", "L1", "B", "S", models.OrderCompleted)
	require.NoError(t, s.SaveOrderGraph(ctx, orderPayload("O3", "L1", "S", "B", models.OrderCompleted)))
	require.NoError(t, s.SaveReviewGraph(ctx,
		models.ReviewPayload{
			Review: models.Review{ID: "R2", OrderID: "ghost", RaterID: "X", RateeID: "S", Rating: 3},
		},
		models.ReviewPayload{
			Review: models.Review{ID: "R3", OrderID: "O2", RaterID: "B", RateeID: "S", Rating: 4},
			Order:  &op2,
		},
		models.ReviewPayload{
			Review: models.Review{ID: "R4", OrderID: "O3", RaterID: "S", RateeID: "B", Rating: 2},
		},
	))

	got, err = s.Reviews.GetByRatee(ctx, "S")
	require.NoError(t, err)
	assert.Len(t, got, 2)
	ghost, err := s.Reviews.GetByID(ctx, "R2")
	require.NoError(t, err)
	assert.Nil(t, ghost)
	acc, err := s.Accounts.GetByID(ctx, "X")
	require.NoError(t, err)
	assert.Nil(t, acc)

	// a cached order is enough without embedding it
	byOrder, err := s.Reviews.GetByID(ctx, "R4")
	require.NoError(t, err)
	require.NotNil(t, byOrder)
	assert.Equal(t, "O3", byOrder.OrderID)
}

func TestSaveListingGraph(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveListingGraph(ctx,
		models.ListingPayload{Listing: models.Listing{ID: "L1", SellerID: "S", Title: "A"}, Seller: account("S")},
		models.ListingPayload{Listing: models.Listing{ID: "L2", SellerID: "S", Title: "B"}},
	))

	got, err := s.Listings.GetBySeller(ctx, "S")
	require.NoError(t, err)
	assert.Len(t, got, 2)

	seller, err := s.Accounts.GetByID(ctx, "S")
	require.NoError(t, err)
	assert.Equal(t, "name S", seller.DisplayName)
}

func TestClearAll_KeepsTelemetryAndMetadata(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveOrderGraph(ctx, orderPayload("O1", "L1", "B", "S", models.OrderPaid)))
	_, err := s.Cart.Add(ctx, "L1", 1)
	require.NoError(t, err)
	_, err = s.Events.Insert(ctx, &models.TelemetryEvent{EventType: "x", SessionID: "s", EnqueuedAt: time.Now()})
	require.NoError(t, err)
	require.NoError(t, s.Metadata.Set(ctx, "salt", []byte("abc")))

	require.NoError(t, s.ClearAll(ctx))

	c, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, Counts{Events: 1}, c)

	v, err := s.Metadata.Get(ctx, "salt")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), v)
}

func TestSaveAccount(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveAccount(ctx, *account("U1")))
	got, err := s.Accounts.GetByID(ctx, "U1")
	require.NoError(t, err)
	assert.Equal(t, "U1@x", got.Email)
}
