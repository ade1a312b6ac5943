package models

// The backend embeds the related entities of a record so that the client can
// satisfy its foreign keys when writing the record through to the store.

// ListingPayload is a listing as returned by /listings.
type ListingPayload struct {
	Listing
	Seller *Account `json:"seller,omitempty"`
}

// OrderPayload is an order as returned by /orders.
type OrderPayload struct {
	Order
	Buyer   *Account        `json:"buyer,omitempty"`
	Seller  *Account        `json:"seller,omitempty"`
	Listing *ListingPayload `json:"listing,omitempty"`
}

// ReviewPayload is a review as returned by /reviews.
type ReviewPayload struct {
	Review
	Rater *Account      `json:"rater,omitempty"`
	Ratee *Account      `json:"ratee,omitempty"`
	Order *OrderPayload `json:"order,omitempty"`
}

// Details flattens the payload into the joined form. Parents the backend
// did not embed are left with only their ids.
func (p OrderPayload) Details() OrderDetails {
	d := OrderDetails{Order: p.Order}
	d.Buyer.ID, d.Seller.ID, d.Listing.ID = p.BuyerID, p.SellerID, p.ListingID
	if p.Buyer != nil {
		d.Buyer = *p.Buyer
	}
	if p.Seller != nil {
		d.Seller = *p.Seller
	}
	if p.Listing != nil {
		d.Listing = p.Listing.Listing
	}
	return d
}

// PayloadFromDetails is the inverse of OrderPayload.Details.
func PayloadFromDetails(d OrderDetails) OrderPayload {
	buyer, seller := d.Buyer, d.Seller
	listingSeller := d.Seller
	return OrderPayload{
		Order:   d.Order,
		Buyer:   &buyer,
		Seller:  &seller,
		Listing: &ListingPayload{Listing: d.Listing, Seller: &listingSeller},
	}
}
