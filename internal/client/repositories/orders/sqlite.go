// Package orders stores marketplace orders in the local SQLite database.
package orders

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/dmitrijs2005/marketkeeper/internal/client/models"
	"github.com/dmitrijs2005/marketkeeper/internal/client/repositories/accounts"
	"github.com/dmitrijs2005/marketkeeper/internal/client/repositories/listings"
	"github.com/dmitrijs2005/marketkeeper/internal/common"
	"github.com/dmitrijs2005/marketkeeper/internal/dbx"
)

var columnNames = []string{
	"id", "listing_id", "buyer_id", "seller_id", "status",
	"amount_cents", "created_at", "updated_at", "last_synced_at",
}

func selectColumns(alias string) string {
	qualified := make([]string, len(columnNames))
	for i, c := range columnNames {
		qualified[i] = alias + "." + c
	}
	return strings.Join(qualified, ", ")
}

const detailsFrom = `
	FROM orders o
	JOIN accounts b ON b.id = o.buyer_id
	JOIN accounts s ON s.id = o.seller_id
	JOIN listings l ON l.id = o.listing_id`

// SQLiteRepository implements Repository over a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db  dbx.DBTX
	now func() time.Time
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

func (r *SQLiteRepository) Upsert(ctx context.Context, o *models.Order) error {
	o.LastSyncedAt = r.now().UTC().Truncate(time.Millisecond)

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO orders (`+strings.Join(columnNames, ", ")+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			listing_id = excluded.listing_id,
			buyer_id = excluded.buyer_id,
			seller_id = excluded.seller_id,
			status = excluded.status,
			amount_cents = excluded.amount_cents,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			last_synced_at = excluded.last_synced_at`,
		o.ID, o.ListingID, o.BuyerID, o.SellerID, string(o.Status), o.AmountCents,
		dbx.Millis(o.CreatedAt), dbx.Millis(o.UpdatedAt), dbx.Millis(o.LastSyncedAt))
	if err != nil {
		return common.StorageError("upsert order "+o.ID, err)
	}
	return nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.Order, error) {
	var t target
	err := r.db.QueryRowContext(ctx, `SELECT `+selectColumns("o")+` FROM orders o WHERE o.id = ?`, id).Scan(t.dest()...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, common.StorageError("get order "+id, err)
	}
	o := t.order()
	return &o, nil
}

func (r *SQLiteRepository) GetByBuyer(ctx context.Context, buyerID string) ([]models.Order, error) {
	return r.List(ctx, models.OrderFilter{BuyerID: buyerID})
}

func (r *SQLiteRepository) GetBySeller(ctx context.Context, sellerID string) ([]models.Order, error) {
	return r.List(ctx, models.OrderFilter{SellerID: sellerID})
}

func (r *SQLiteRepository) GetByStatus(ctx context.Context, status models.OrderStatus) ([]models.Order, error) {
	return r.List(ctx, models.OrderFilter{Status: status})
}

func (r *SQLiteRepository) ForAccount(ctx context.Context, accountID string) ([]models.Order, error) {
	return r.query(ctx, `SELECT `+selectColumns("o")+` FROM orders o
		WHERE o.buyer_id = ? OR o.seller_id = ?
		ORDER BY o.created_at DESC, o.id`, accountID, accountID)
}

func (r *SQLiteRepository) List(ctx context.Context, f models.OrderFilter) ([]models.Order, error) {
	where, args := filterClause(f)
	return r.query(ctx, `SELECT `+selectColumns("o")+` FROM orders o`+where+` ORDER BY o.created_at DESC, o.id`, args...)
}

func (r *SQLiteRepository) Details(ctx context.Context, id string) (*models.OrderDetails, error) {
	var t detailsTarget
	err := r.db.QueryRowContext(ctx, detailsSelect()+` WHERE o.id = ?`, id).Scan(t.dest()...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, common.StorageError("order details "+id, err)
	}
	d := t.details()
	return &d, nil
}

func (r *SQLiteRepository) DetailsList(ctx context.Context, f models.OrderFilter) ([]models.OrderDetails, error) {
	where, args := filterClause(f)
	rows, err := r.db.QueryContext(ctx, detailsSelect()+where+` ORDER BY o.created_at DESC, o.id`, args...)
	if err != nil {
		return nil, common.StorageError("list order details", err)
	}
	defer rows.Close()

	var result []models.OrderDetails
	for rows.Next() {
		var t detailsTarget
		if err := rows.Scan(t.dest()...); err != nil {
			return nil, common.StorageError("scan order details", err)
		}
		result = append(result, t.details())
	}
	if err := rows.Err(); err != nil {
		return nil, common.StorageError("iterate order details", err)
	}
	return result, nil
}

func (r *SQLiteRepository) DeleteByID(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM orders WHERE id = ?`, id); err != nil {
		return common.StorageError("delete order "+id, err)
	}
	return nil
}

func (r *SQLiteRepository) query(ctx context.Context, query string, args ...any) ([]models.Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, common.StorageError("list orders", err)
	}
	defer rows.Close()

	var result []models.Order
	for rows.Next() {
		var t target
		if err := rows.Scan(t.dest()...); err != nil {
			return nil, common.StorageError("scan order", err)
		}
		result = append(result, t.order())
	}
	if err := rows.Err(); err != nil {
		return nil, common.StorageError("iterate orders", err)
	}
	return result, nil
}

func filterClause(f models.OrderFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	if f.BuyerID != "" {
		where = append(where, "o.buyer_id = ?")
		args = append(args, f.BuyerID)
	}
	if f.SellerID != "" {
		where = append(where, "o.seller_id = ?")
		args = append(args, f.SellerID)
	}
	if f.Status != "" {
		where = append(where, "o.status = ?")
		args = append(args, string(f.Status))
	}
	if len(where) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(where, " AND "), args
}

func detailsSelect() string {
	return `SELECT ` + selectColumns("o") + `, ` +
		accounts.SelectColumns("b") + `, ` +
		accounts.SelectColumns("s") + `, ` +
		listings.SelectColumns("l") + detailsFrom
}

type target struct {
	o                          models.Order
	status                     string
	created, updated, lastSync int64
}

func (t *target) dest() []any {
	return []any{&t.o.ID, &t.o.ListingID, &t.o.BuyerID, &t.o.SellerID, &t.status,
		&t.o.AmountCents, &t.created, &t.updated, &t.lastSync}
}

func (t *target) order() models.Order {
	o := t.o
	o.Status = models.OrderStatus(t.status)
	o.CreatedAt = dbx.FromMillis(t.created)
	o.UpdatedAt = dbx.FromMillis(t.updated)
	o.LastSyncedAt = dbx.FromMillis(t.lastSync)
	return o
}

type detailsTarget struct {
	order         target
	buyer, seller accounts.Target
	listing       listings.Target
}

func (t *detailsTarget) dest() []any {
	d := t.order.dest()
	d = append(d, t.buyer.Dest()...)
	d = append(d, t.seller.Dest()...)
	return append(d, t.listing.Dest()...)
}

func (t *detailsTarget) details() models.OrderDetails {
	return models.OrderDetails{
		Order:   t.order.order(),
		Buyer:   t.buyer.Account(),
		Seller:  t.seller.Account(),
		Listing: t.listing.Listing(),
	}
}
