package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/dmitrijs2005/marketkeeper/internal/client/models"
	"github.com/dmitrijs2005/marketkeeper/internal/client/offline"
)

const browseLimit = 20

func originTag(o offline.Origin) string {
	if o == offline.OriginRemote {
		return ""
	}
	return " [" + o.String() + "]"
}

func formatMoney(cents int64, currency string) string {
	sign := ""
	if cents < 0 {
		sign, cents = "-", -cents
	}
	return strings.TrimSpace(fmt.Sprintf("%s%d.%02d %s", sign, cents/100, cents%100, currency))
}

func (a *App) table() *tabwriter.Writer {
	return tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
}

// Listings browses listings, optionally filtered by a search query.
func (a *App) Listings(ctx context.Context, query string) error {
	res, err := a.core.Listings.Browse(ctx, models.ListingFilter{Query: query, Limit: browseLimit})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%d listing(s)%s\n", len(res.Data), originTag(res.Origin))

	tw := a.table()
	for _, l := range res.Data {
		seller := l.SellerID
		if l.Seller != nil && l.Seller.DisplayName != "" {
			seller = l.Seller.DisplayName
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", l.ID, l.Title, formatMoney(l.PriceCents, l.Currency), l.Status, seller)
	}
	return tw.Flush()
}

// Orders lists the orders the user takes part in.
func (a *App) Orders(ctx context.Context) error {
	res, err := a.core.Orders.Orders(ctx, models.OrderFilter{})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%d order(s)%s\n", len(res.Data), originTag(res.Origin))

	tw := a.table()
	for _, o := range res.Data {
		title, currency := o.ListingID, ""
		if o.Listing != nil {
			title, currency = o.Listing.Title, o.Listing.Currency
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", o.ID, o.Status, title, formatMoney(o.AmountCents, currency))
	}
	return tw.Flush()
}

// Reviews lists the reviews userID received.
func (a *App) Reviews(ctx context.Context, userID string) error {
	res, err := a.core.Reviews.ForUser(ctx, userID)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%d review(s) for %s%s\n", len(res.Data), userID, originTag(res.Origin))

	tw := a.table()
	for _, r := range res.Data {
		rater := r.RaterID
		if r.Rater != nil && r.Rater.DisplayName != "" {
			rater = r.Rater.DisplayName
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.ID, strings.Repeat("*", r.Rating), rater, r.Comment)
	}
	return tw.Flush()
}

// Stats shows profile stats for userID, or for the signed-in user when
// userID is empty.
func (a *App) Stats(ctx context.Context, userID string) error {
	if userID == "" {
		id, err := a.core.Auth.CurrentUserID(ctx)
		if err != nil {
			return err
		}
		userID = id
	}

	res, err := a.core.Profile.Stats(ctx, userID)
	if err != nil {
		return err
	}
	s := res.Data

	fmt.Fprintf(a.out, "Profile %s%s\n", userID, originTag(res.Origin))
	fmt.Fprintf(a.out, "  rating:   %.2f (%d reviews)\n", s.Rating.Average, s.Rating.Count)
	for _, st := range models.OrderStatuses {
		if n := s.OrdersByStatus[st]; n > 0 {
			fmt.Fprintf(a.out, "  %-9s %d\n", string(st)+":", n)
		}
	}
	fmt.Fprintf(a.out, "  listings: %d, sold: %d of %d orders, revenue %s\n",
		s.Seller.ListingCount, s.Seller.CompletedCount, s.Seller.OrderCount, formatMoney(s.Seller.CompletedRevenueCents, ""))
	return nil
}

// Cart shows the cart with line totals.
func (a *App) Cart(ctx context.Context) error {
	items, err := a.core.Cart.Items(ctx)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Fprintln(a.out, "Cart is empty")
		return nil
	}

	total, err := a.core.Cart.TotalCents(ctx)
	if err != nil {
		return err
	}

	currency := ""
	tw := a.table()
	for _, it := range items {
		title := it.ListingID
		if it.Listing != nil {
			title, currency = it.Listing.Title, it.Listing.Currency
		}
		fmt.Fprintf(tw, "%s\tx%d\t%s\n", title, it.Quantity, formatMoney(it.LineTotalCents(), currency))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Total: %s\n", formatMoney(total, currency))
	return nil
}

// CartAdd puts one item of listingID in the cart.
func (a *App) CartAdd(ctx context.Context, listingID string) error {
	it, err := a.core.Cart.Add(ctx, listingID, 1)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "In cart: %s x%d\n", listingID, it.Quantity)
	return nil
}

// Track queues a telemetry event.
func (a *App) Track(ctx context.Context, event string) error {
	if err := a.core.Track(ctx, event, map[string]any{"source": "cli"}); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Queued %s\n", event)
	return nil
}

// Flush delivers queued telemetry now.
func (a *App) Flush(ctx context.Context) error {
	rep, err := a.core.Telemetry.Flush(ctx)
	if rep.Skipped {
		fmt.Fprintln(a.out, "A flush is already running")
		return nil
	}
	fmt.Fprintf(a.out, "Sent %d event(s) in %d batch(es)\n", rep.Sent, rep.Batches)
	if err != nil {
		return fmt.Errorf("%d event(s) kept for later: %w", rep.Remaining, err)
	}
	return nil
}

// Status prints connectivity, session and local store state.
func (a *App) Status(ctx context.Context) error {
	pending, err := a.core.Telemetry.Pending(ctx)
	if err != nil {
		return err
	}
	counts, err := a.core.Store.Counts(ctx)
	if err != nil {
		return err
	}
	done, failed := a.core.Pool.Stats()

	fmt.Fprintf(a.out, "online:        %t\n", a.core.Online.Online(ctx))
	fmt.Fprintf(a.out, "signed in:     %t\n", a.isLoggedIn())
	fmt.Fprintf(a.out, "session:       %s\n", a.core.Telemetry.SessionID())
	fmt.Fprintf(a.out, "telemetry:     %d pending\n", pending)
	fmt.Fprintf(a.out, "background:    %d done, %d failed\n", done, failed)
	fmt.Fprintf(a.out, "cached:        %d accounts, %d listings, %d orders, %d reviews, %d cart items\n",
		counts.Accounts, counts.Listings, counts.Orders, counts.Reviews, counts.CartItems)
	return nil
}
