package models

import "time"

// CartItem is a line of the local shopping cart. The cart never leaves the
// device.
type CartItem struct {
	ID        string
	ListingID string
	Quantity  int
	AddedAt   time.Time

	// Listing is filled by joined reads.
	Listing *Listing
}

// LineTotalCents is price times quantity, or 0 without a joined listing.
func (c CartItem) LineTotalCents() int64 {
	if c.Listing == nil {
		return 0
	}
	return c.Listing.PriceCents * int64(c.Quantity)
}
