package models

// RatingSummary is the average of the reviews an account received.
type RatingSummary struct {
	AccountID string
	Average   float64
	Count     int
}

// SellerSummary aggregates a seller's listings and orders.
type SellerSummary struct {
	SellerID                   string
	ListingCount               int
	OrderCount                 int
	CompletedCount             int
	CompletedRevenueCents      int64
	AverageCompletedOrderCents float64
}

// ProfileStats is what the profile screen shows for an account.
type ProfileStats struct {
	UserID         string
	Rating         RatingSummary
	OrdersByStatus map[OrderStatus]int
	Seller         SellerSummary
}
