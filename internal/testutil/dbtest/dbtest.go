// Package dbtest opens migrated throwaway databases and seeds rows for
// repository tests.
package dbtest

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitrijs2005/marketkeeper/internal/client/localdb"
	"github.com/stretchr/testify/require"
)

// Open returns a migrated database in a per-test temp directory.
func Open(t *testing.T) *sql.DB {
	t.Helper()
	db, err := localdb.Open(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func now() int64 { return time.Now().UnixMilli() }

// SeedAccount inserts a bare account row.
func SeedAccount(t *testing.T, db *sql.DB, id string) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO accounts (id, email, display_name, last_synced_at) VALUES (?, ?, ?, ?)`,
		id, id+"@example.com", "user "+id, now())
	require.NoError(t, err)
}

// SeedListing inserts a listing owned by sellerID, which must exist.
func SeedListing(t *testing.T, db *sql.DB, id, sellerID string, priceCents int64) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO listings (id, seller_id, title, price_cents, currency, last_synced_at) VALUES (?, ?, ?, ?, 'EUR', ?)`,
		id, sellerID, "listing "+id, priceCents, now())
	require.NoError(t, err)
}

// SeedOrder inserts an order; the listing and both accounts must exist.
func SeedOrder(t *testing.T, db *sql.DB, id, listingID, buyerID, sellerID, status string, amountCents int64) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO orders (id, listing_id, buyer_id, seller_id, status, amount_cents, created_at, updated_at, last_synced_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, listingID, buyerID, sellerID, status, amountCents, now(), now(), now())
	require.NoError(t, err)
}

// SeedReview inserts a review for orderID.
func SeedReview(t *testing.T, db *sql.DB, id, orderID, raterID, rateeID string, rating int) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO reviews (id, order_id, rater_id, ratee_id, rating, last_synced_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, orderID, raterID, rateeID, rating, now())
	require.NoError(t, err)
}

// Count returns the number of rows in table.
func Count(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM `+table).Scan(&n))
	return n
}
