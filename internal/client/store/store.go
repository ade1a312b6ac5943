// Package store is the local relational store: it owns the SQLite handle,
// exposes the per-table repositories and writes backend records together
// with the parents they reference.
package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/dmitrijs2005/marketkeeper/internal/client/localdb"
	"github.com/dmitrijs2005/marketkeeper/internal/client/models"
	"github.com/dmitrijs2005/marketkeeper/internal/client/repositories/accounts"
	"github.com/dmitrijs2005/marketkeeper/internal/client/repositories/cart"
	"github.com/dmitrijs2005/marketkeeper/internal/client/repositories/events"
	"github.com/dmitrijs2005/marketkeeper/internal/client/repositories/listings"
	"github.com/dmitrijs2005/marketkeeper/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/marketkeeper/internal/client/repositories/orders"
	"github.com/dmitrijs2005/marketkeeper/internal/client/repositories/reviews"
	"github.com/dmitrijs2005/marketkeeper/internal/client/repositories/stats"
	"github.com/dmitrijs2005/marketkeeper/internal/common"
	"github.com/dmitrijs2005/marketkeeper/internal/dbx"
	"github.com/dmitrijs2005/marketkeeper/internal/logging"
)

// Store bundles the repositories over one database.
type Store struct {
	db  *sql.DB
	log logging.Logger

	Accounts accounts.Repository
	Listings listings.Repository
	Orders   orders.Repository
	Reviews  reviews.Repository
	Stats    stats.Repository
	Cart     cart.Repository
	Events   events.Repository
	Metadata metadata.Repository
}

// Counts reports the row count of every table, for diagnostics.
type Counts struct {
	Accounts  int
	Listings  int
	Orders    int
	Reviews   int
	CartItems int
	Events    int
}

// Open opens and migrates the database file at path.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := localdb.Open(ctx, path)
	if err != nil {
		return nil, common.StorageError("open store", err)
	}
	return New(db), nil
}

// New wraps an already migrated database.
func New(db *sql.DB) *Store {
	return &Store{
		db:       db,
		log:      logging.NewNop(),
		Accounts: accounts.NewSQLiteRepository(db),
		Listings: listings.NewSQLiteRepository(db),
		Orders:   orders.NewSQLiteRepository(db),
		Reviews:  reviews.NewSQLiteRepository(db),
		Stats:    stats.NewSQLiteRepository(db),
		Cart:     cart.NewSQLiteRepository(db),
		Events:   events.NewSQLiteRepository(db),
		Metadata: metadata.NewSQLiteRepository(db),
	}
}

// SetLogger replaces the logger, which reports records skipped by the graph
// writers.
func (s *Store) SetLogger(l logging.Logger) {
	if l != nil {
		s.log = l.With("component", "store")
	}
}

// DB exposes the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error { return s.db.Close() }

// ClearAll removes every cached domain row and the cart. The telemetry queue
// and metadata are kept.
func (s *Store) ClearAll(ctx context.Context) error {
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		for _, table := range []string{"cart_items", "reviews", "orders", "listings", "accounts"} {
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return common.StorageError("clear all", err)
	}
	return nil
}

func (s *Store) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM accounts),
			(SELECT COUNT(*) FROM listings),
			(SELECT COUNT(*) FROM orders),
			(SELECT COUNT(*) FROM reviews),
			(SELECT COUNT(*) FROM cart_items),
			(SELECT COUNT(*) FROM telemetry_events WHERE delivered = 0)`).
		Scan(&c.Accounts, &c.Listings, &c.Orders, &c.Reviews, &c.CartItems, &c.Events)
	if err != nil {
		return Counts{}, common.StorageError("counts", err)
	}
	return c, nil
}

// SaveListingGraph writes the listings and their sellers in one transaction.
func (s *Store) SaveListingGraph(ctx context.Context, items ...models.ListingPayload) error {
	return s.inGraphTx(ctx, func(g graph) error {
		for i := range items {
			if err := g.listing(ctx, &items[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// SaveOrderGraph writes the orders with their buyers, sellers and listings in
// one transaction.
func (s *Store) SaveOrderGraph(ctx context.Context, items ...models.OrderPayload) error {
	return s.inGraphTx(ctx, func(g graph) error {
		for i := range items {
			if err := g.order(ctx, &items[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// SaveReviewGraph writes the reviews with their raters, ratees and orders in
// one transaction. A review whose order is neither embedded nor cached is
// skipped and logged; the rest are still written.
func (s *Store) SaveReviewGraph(ctx context.Context, items ...models.ReviewPayload) error {
	return s.inGraphTx(ctx, func(g graph) error {
		for i := range items {
			err := g.review(ctx, &items[i])
			if errors.Is(err, errOrderUnknown) {
				s.log.Warn(ctx, "review skipped, order not cached", "review", items[i].ID, "order", items[i].OrderID)
				continue
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// SaveAccount upserts a single account.
func (s *Store) SaveAccount(ctx context.Context, a models.Account) error {
	return s.Accounts.Upsert(ctx, &a)
}

func (s *Store) inGraphTx(ctx context.Context, fn func(g graph) error) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return fn(graph{
			accounts: accounts.NewSQLiteRepository(tx),
			listings: listings.NewSQLiteRepository(tx),
			orders:   orders.NewSQLiteRepository(tx),
			reviews:  reviews.NewSQLiteRepository(tx),
		})
	})
}
