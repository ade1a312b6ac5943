package models

import (
	"fmt"
	"time"
)

// OrderStatus is the closed set of order lifecycle states.
type OrderStatus string

const (
	OrderCreated   OrderStatus = "created"
	OrderPaid      OrderStatus = "paid"
	OrderShipped   OrderStatus = "shipped"
	OrderCompleted OrderStatus = "completed"
	OrderCancelled OrderStatus = "cancelled"
)

// OrderStatuses lists every status in lifecycle order.
var OrderStatuses = []OrderStatus{OrderCreated, OrderPaid, OrderShipped, OrderCompleted, OrderCancelled}

// Valid reports whether s is one of the known statuses.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderCreated, OrderPaid, OrderShipped, OrderCompleted, OrderCancelled:
		return true
	}
	return false
}

// IsActive is true for orders still in progress.
func (s OrderStatus) IsActive() bool {
	return s == OrderCreated || s == OrderPaid || s == OrderShipped
}

// IsFinal is true for completed and cancelled orders, whose status the
// client must not change any more.
func (s OrderStatus) IsFinal() bool {
	return s == OrderCompleted || s == OrderCancelled
}

// ParseOrderStatus validates a raw status string.
func ParseOrderStatus(raw string) (OrderStatus, error) {
	s := OrderStatus(raw)
	if !s.Valid() {
		return "", fmt.Errorf("unknown order status %q", raw)
	}
	return s, nil
}

// Order links a buyer to a purchased listing.
type Order struct {
	ID          string      `json:"id"`
	ListingID   string      `json:"listing_id"`
	BuyerID     string      `json:"buyer_id"`
	SellerID    string      `json:"seller_id"`
	Status      OrderStatus `json:"status"`
	AmountCents int64       `json:"amount_cents"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`

	LastSyncedAt time.Time `json:"-"`
}

// OrderFilter narrows order queries. Zero fields are ignored.
type OrderFilter struct {
	BuyerID  string
	SellerID string
	Status   OrderStatus
}

// OrderDetails is an order joined with its buyer, seller and listing.
type OrderDetails struct {
	Order   Order
	Buyer   Account
	Seller  Account
	Listing Listing
}
