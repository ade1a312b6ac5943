// Package listings stores marketplace listings in the local SQLite database.
package listings

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/dmitrijs2005/marketkeeper/internal/client/models"
	"github.com/dmitrijs2005/marketkeeper/internal/common"
	"github.com/dmitrijs2005/marketkeeper/internal/dbx"
)

var columnNames = []string{
	"id", "seller_id", "title", "description", "category",
	"price_cents", "currency", "status", "created_at", "last_synced_at",
}

var columns = strings.Join(columnNames, ", ")

// SelectColumns lists the columns Scan expects, qualified with alias.
func SelectColumns(alias string) string {
	qualified := make([]string, len(columnNames))
	for i, c := range columnNames {
		qualified[i] = alias + "." + c
	}
	return strings.Join(qualified, ", ")
}

// SQLiteRepository implements Repository over a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db  dbx.DBTX
	now func() time.Time
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

func (r *SQLiteRepository) Upsert(ctx context.Context, l *models.Listing) error {
	l.LastSyncedAt = r.now().UTC().Truncate(time.Millisecond)

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO listings (`+columns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			seller_id = excluded.seller_id,
			title = excluded.title,
			description = excluded.description,
			category = excluded.category,
			price_cents = excluded.price_cents,
			currency = excluded.currency,
			status = excluded.status,
			created_at = excluded.created_at,
			last_synced_at = excluded.last_synced_at`,
		l.ID, l.SellerID, l.Title, l.Description, l.Category,
		l.PriceCents, l.Currency, l.Status, dbx.Millis(l.CreatedAt), dbx.Millis(l.LastSyncedAt))
	if err != nil {
		return common.StorageError("upsert listing "+l.ID, err)
	}
	return nil
}

func (r *SQLiteRepository) EnsureStub(ctx context.Context, id, sellerID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO listings (id, seller_id, title, price_cents, last_synced_at) VALUES (?, ?, '', 0, 0)
		ON CONFLICT(id) DO NOTHING`, id, sellerID)
	if err != nil {
		return common.StorageError("stub listing "+id, err)
	}
	return nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.Listing, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+columns+` FROM listings WHERE id = ?`, id)
	l, err := Scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, common.StorageError("get listing "+id, err)
	}
	return l, nil
}

func (r *SQLiteRepository) GetBySeller(ctx context.Context, sellerID string) ([]models.Listing, error) {
	return r.List(ctx, models.ListingFilter{SellerID: sellerID})
}

func (r *SQLiteRepository) List(ctx context.Context, f models.ListingFilter) ([]models.Listing, error) {
	var (
		where []string
		args  []any
	)
	if f.SellerID != "" {
		where = append(where, "seller_id = ?")
		args = append(args, f.SellerID)
	}
	if f.Category != "" {
		where = append(where, "category = ?")
		args = append(args, f.Category)
	}
	if f.Query != "" {
		where = append(where, "(title LIKE ? OR description LIKE ?)")
		like := "%" + f.Query + "%"
		args = append(args, like, like)
	}

	query := `SELECT ` + columns + ` FROM listings`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, common.StorageError("list listings", err)
	}
	defer rows.Close()

	var result []models.Listing
	for rows.Next() {
		l, err := Scan(rows)
		if err != nil {
			return nil, common.StorageError("scan listing", err)
		}
		result = append(result, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, common.StorageError("iterate listings", err)
	}
	return result, nil
}

func (r *SQLiteRepository) DeleteByID(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM listings WHERE id = ?`, id); err != nil {
		return common.StorageError("delete listing "+id, err)
	}
	return nil
}

// Scanner is implemented by *sql.Row and *sql.Rows.
type Scanner interface {
	Scan(dest ...any) error
}

// Scan reads one row laid out as SelectColumns.
func Scan(s Scanner) (*models.Listing, error) {
	var t Target
	if err := s.Scan(t.Dest()...); err != nil {
		return nil, err
	}
	l := t.Listing()
	return &l, nil
}

// Target collects the listing columns of a wider joined row.
type Target struct {
	l                 models.Listing
	created, lastSync int64
}

// Dest returns scan destinations in SelectColumns order.
func (t *Target) Dest() []any {
	return []any{&t.l.ID, &t.l.SellerID, &t.l.Title, &t.l.Description, &t.l.Category,
		&t.l.PriceCents, &t.l.Currency, &t.l.Status, &t.created, &t.lastSync}
}

// Listing returns the scanned listing.
func (t *Target) Listing() models.Listing {
	l := t.l
	l.CreatedAt = dbx.FromMillis(t.created)
	l.LastSyncedAt = dbx.FromMillis(t.lastSync)
	return l
}
