// Package cart keeps the shopping cart in the local SQLite database.
package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/marketkeeper/internal/client/models"
	"github.com/dmitrijs2005/marketkeeper/internal/client/repositories/listings"
	"github.com/dmitrijs2005/marketkeeper/internal/common"
	"github.com/dmitrijs2005/marketkeeper/internal/dbx"
	"github.com/google/uuid"
)

// ErrInvalidQuantity is returned by Add for non-positive quantities.
var ErrInvalidQuantity = errors.New("quantity must be positive")

type SQLiteRepository struct {
	db  dbx.DBTX
	now func() time.Time
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

func (r *SQLiteRepository) Add(ctx context.Context, listingID string, quantity int) (*models.CartItem, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	item := &models.CartItem{}
	var added int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO cart_items (id, listing_id, quantity, added_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(listing_id) DO UPDATE SET quantity = cart_items.quantity + excluded.quantity
		RETURNING id, listing_id, quantity, added_at`,
		uuid.NewString(), listingID, quantity, dbx.Millis(r.now())).
		Scan(&item.ID, &item.ListingID, &item.Quantity, &added)
	if err != nil {
		return nil, common.StorageError("add to cart "+listingID, err)
	}
	item.AddedAt = dbx.FromMillis(added)
	return item, nil
}

func (r *SQLiteRepository) SetQuantity(ctx context.Context, listingID string, quantity int) error {
	if quantity <= 0 {
		return r.Remove(ctx, listingID)
	}
	res, err := r.db.ExecContext(ctx, `UPDATE cart_items SET quantity = ? WHERE listing_id = ?`, quantity, listingID)
	if err != nil {
		return common.StorageError("set cart quantity "+listingID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return common.StorageError("set cart quantity "+listingID, err)
	}
	if n == 0 {
		return fmt.Errorf("listing %s is not in the cart: %w", listingID, common.ErrNotFound)
	}
	return nil
}

func (r *SQLiteRepository) Remove(ctx context.Context, listingID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM cart_items WHERE listing_id = ?`, listingID); err != nil {
		return common.StorageError("remove from cart "+listingID, err)
	}
	return nil
}

func (r *SQLiteRepository) List(ctx context.Context) ([]models.CartItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT c.id, c.listing_id, c.quantity, c.added_at, `+listings.SelectColumns("l")+`
		FROM cart_items c JOIN listings l ON l.id = c.listing_id
		ORDER BY c.added_at, c.id`)
	if err != nil {
		return nil, common.StorageError("list cart", err)
	}
	defer rows.Close()

	var result []models.CartItem
	for rows.Next() {
		var (
			item  models.CartItem
			added int64
			lt    listings.Target
		)
		dest := append([]any{&item.ID, &item.ListingID, &item.Quantity, &added}, lt.Dest()...)
		if err := rows.Scan(dest...); err != nil {
			return nil, common.StorageError("scan cart item", err)
		}
		item.AddedAt = dbx.FromMillis(added)
		l := lt.Listing()
		item.Listing = &l
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, common.StorageError("iterate cart", err)
	}
	return result, nil
}

func (r *SQLiteRepository) TotalCents(ctx context.Context) (int64, error) {
	var total int64
	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(c.quantity * l.price_cents), 0)
		FROM cart_items c JOIN listings l ON l.id = c.listing_id`).Scan(&total)
	if err != nil {
		return 0, common.StorageError("cart total", err)
	}
	return total, nil
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM cart_items`); err != nil {
		return common.StorageError("clear cart", err)
	}
	return nil
}
