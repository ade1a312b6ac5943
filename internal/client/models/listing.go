package models

import "time"

// ListingStatus values as reported by the backend.
const (
	ListingActive = "active"
	ListingSold   = "sold"
)

// Listing is an item offered for sale by a seller account.
type Listing struct {
	ID          string    `json:"id"`
	SellerID    string    `json:"seller_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Category    string    `json:"category,omitempty"`
	PriceCents  int64     `json:"price_cents"`
	Currency    string    `json:"currency"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`

	LastSyncedAt time.Time `json:"-"`
}

// ListingFilter narrows listing queries. Zero fields are ignored.
type ListingFilter struct {
	SellerID string
	Category string
	Query    string
	Limit    int
}

// NewListing is the body of POST /listings.
type NewListing struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
	PriceCents  int64  `json:"price_cents"`
	Currency    string `json:"currency"`
}

// PriceSuggestion is the backend's price guidance for a category. The
// percentiles are absent when the backend has too few comparable sales.
type PriceSuggestion struct {
	Category   string `json:"category"`
	Currency   string `json:"currency"`
	SampleSize int    `json:"sample_size"`
	P25        *int64 `json:"p25,omitempty"`
	P50        *int64 `json:"p50,omitempty"`
	P75        *int64 `json:"p75,omitempty"`
}

// HasRange reports whether all three percentiles were supplied.
func (p PriceSuggestion) HasRange() bool {
	return p.P25 != nil && p.P50 != nil && p.P75 != nil
}
