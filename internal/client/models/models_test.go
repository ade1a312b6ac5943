package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderStatus_Partition(t *testing.T) {
	tests := []struct {
		status OrderStatus
		active bool
		final  bool
	}{
		{OrderCreated, true, false},
		{OrderPaid, true, false},
		{OrderShipped, true, false},
		{OrderCompleted, false, true},
		{OrderCancelled, false, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.True(t, tt.status.Valid())
			assert.Equal(t, tt.active, tt.status.IsActive())
			assert.Equal(t, tt.final, tt.status.IsFinal())
		})
	}
	assert.Len(t, OrderStatuses, 5)
}

func TestParseOrderStatus(t *testing.T) {
	s, err := ParseOrderStatus("shipped")
	require.NoError(t, err)
	assert.Equal(t, OrderShipped, s)

	_, err = ParseOrderStatus("refunded")
	require.Error(t, err)
	assert.False(t, OrderStatus("").Valid())
}

func TestPriceSuggestion_OptionalPercentiles(t *testing.T) {
	var full PriceSuggestion
	require.NoError(t, json.Unmarshal([]byte(`{"category":"bikes","currency":"EUR","sample_size":12,"p25":1000,"p50":1500,"p75":2100}`), &full))
	require.True(t, full.HasRange())
	assert.EqualValues(t, 1500, *full.P50)

	var sparse PriceSuggestion
	require.NoError(t, json.Unmarshal([]byte(`{"category":"bikes","currency":"EUR","sample_size":1}`), &sparse))
	assert.False(t, sparse.HasRange())
	assert.Nil(t, sparse.P25)

	b, err := json.Marshal(sparse)
	require.NoError(t, err)
	assert.NotContains(t, string(b), "p25")
}

func TestOrderPayload_DecodesEmbeddedParents(t *testing.T) {
	raw := `{
		"id":"O1","listing_id":"L1","buyer_id":"B","seller_id":"S","status":"paid","amount_cents":500,
		"buyer":{"id":"B","email":"b@x","display_name":"Bob"},
		"seller":{"id":"S","email":"s@x","display_name":"Sue"},
		"listing":{"id":"L1","seller_id":"S","title":"Lamp","price_cents":500,"currency":"EUR","status":"sold"}
	}`
	var p OrderPayload
	require.NoError(t, json.Unmarshal([]byte(raw), &p))

	assert.Equal(t, "O1", p.ID)
	assert.Equal(t, OrderPaid, p.Status)
	require.NotNil(t, p.Buyer)
	assert.Equal(t, "Bob", p.Buyer.DisplayName)
	require.NotNil(t, p.Listing)
	assert.Equal(t, "Lamp", p.Listing.Title)
	assert.Nil(t, p.Listing.Seller)
}

func TestTelemetryEvent_Payload(t *testing.T) {
	at := time.UnixMilli(1_700_000_000_123)
	e := TelemetryEvent{LocalID: 7, EventType: "view", SessionID: "s", EnqueuedAt: at}

	p := e.Payload()
	assert.EqualValues(t, 7, p.ClientEventID)
	assert.EqualValues(t, 1_700_000_000_123, p.OccurredAt)

	b, err := json.Marshal(p)
	require.NoError(t, err)
	assert.NotContains(t, string(b), "user_id")
}

func TestCartItem_LineTotal(t *testing.T) {
	assert.Zero(t, CartItem{Quantity: 3}.LineTotalCents())
	assert.EqualValues(t, 750, CartItem{Quantity: 3, Listing: &Listing{PriceCents: 250}}.LineTotalCents())
}

func TestOrderPayload_DetailsRoundTrip(t *testing.T) {
	p := OrderPayload{Order: Order{ID: "o1", ListingID: "l1", BuyerID: "b", SellerID: "s"}}
	d := p.Details()
	assert.Equal(t, "b", d.Buyer.ID)
	assert.Equal(t, "s", d.Seller.ID)
	assert.Equal(t, "l1", d.Listing.ID)

	d.Listing.Title = "Lamp"
	back := PayloadFromDetails(d)
	require.NotNil(t, back.Listing)
	assert.Equal(t, "Lamp", back.Listing.Title)
	assert.Equal(t, "s", back.Listing.Seller.ID)
	assert.Equal(t, d, back.Details())
}
