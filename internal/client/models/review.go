package models

import "time"

// Review is the rating one party of an order leaves for the other. There is
// at most one review per order.
type Review struct {
	ID        string    `json:"id"`
	OrderID   string    `json:"order_id"`
	RaterID   string    `json:"rater_id"`
	RateeID   string    `json:"ratee_id"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`

	LastSyncedAt time.Time `json:"-"`
}

// NewReview is the body of POST /reviews.
type NewReview struct {
	OrderID string `json:"order_id"`
	Rating  int    `json:"rating"`
	Comment string `json:"comment,omitempty"`
}
