// Package accounts stores marketplace accounts in the local SQLite database.
package accounts

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

var columnNames = []string{"id", "email", "display_name", "avatar_url", "created_at", "last_synced_at"}

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

func (r *SQLiteRepository) Upsert(ctx context.Context, a *models.Account) error {
	a.LastSyncedAt = r.now().UTC().Truncate(time.Millisecond)

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO accounts (`+columns+`) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			email = excluded.email,
			display_name = excluded.display_name,
			avatar_url = excluded.avatar_url,
			created_at = excluded.created_at,
			last_synced_at = excluded.last_synced_at`,
		a.ID, a.Email, a.DisplayName, a.AvatarURL, dbx.Millis(a.CreatedAt), dbx.Millis(a.LastSyncedAt))
	if err != nil {
		return common.StorageError("upsert account "+a.ID, err)
	}
	return nil
}

func (r *SQLiteRepository) EnsureStub(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO accounts (id, last_synced_at) VALUES (?, 0) ON CONFLICT(id) DO NOTHING`, id)
	if err != nil {
		return common.StorageError("stub account "+id, err)
	}
	return nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+columns+` FROM accounts WHERE id = ?`, id)
	a, err := Scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, common.StorageError("get account "+id, err)
	}
	return a, nil
}

func (r *SQLiteRepository) GetByEmails(ctx context.Context, emails []string) ([]models.Account, error) {
	if len(emails) == 0 {
		return nil, nil
	}
	args := make([]any, len(emails))
	for i, e := range emails {
		args[i] = e
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(emails)), ",")

	rows, err := r.db.QueryContext(ctx, `SELECT `+columns+` FROM accounts WHERE lower(email) IN (`+placeholders+`) ORDER BY email`, args...)
	if err != nil {
		return nil, common.StorageError("accounts by email", err)
	}
	defer rows.Close()

	var result []models.Account
	for rows.Next() {
		a, err := Scan(rows)
		if err != nil {
			return nil, common.StorageError("scan account", err)
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, common.StorageError("iterate accounts", err)
	}
	return result, nil
}

func (r *SQLiteRepository) DeleteByID(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id); err != nil {
		return common.StorageError("delete account "+id, err)
	}
	return nil
}

// Scanner is implemented by *sql.Row and *sql.Rows.
type Scanner interface {
	Scan(dest ...any) error
}

// Scan reads one row laid out as SelectColumns.
func Scan(s Scanner) (*models.Account, error) {
	var t Target
	if err := s.Scan(t.Dest()...); err != nil {
		return nil, err
	}
	a := t.Account()
	return &a, nil
}

// Target collects the account columns of a wider joined row.
type Target struct {
	a                 models.Account
	created, lastSync int64
}

// Dest returns scan destinations in SelectColumns order.
func (t *Target) Dest() []any {
	return []any{&t.a.ID, &t.a.Email, &t.a.DisplayName, &t.a.AvatarURL, &t.created, &t.lastSync}
}

// Account returns the scanned account.
func (t *Target) Account() models.Account {
	a := t.a
	a.CreatedAt = dbx.FromMillis(t.created)
	a.LastSyncedAt = dbx.FromMillis(t.lastSync)
	return a
}
