package accounts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/marketkeeper/internal/client/models"
	"github.com/dmitrijs2005/marketkeeper/internal/common"
	"github.com/dmitrijs2005/marketkeeper/internal/testutil/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsert_InsertThenReplace(t *testing.T) {
	db := dbtest.Open(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, r.Upsert(ctx, &models.Account{ID: "U1", Email: "a@x", DisplayName: "Ann", AvatarURL: "http://img", CreatedAt: created}))
	require.NoError(t, r.Upsert(ctx, &models.Account{ID: "U1", Email: "b@x", DisplayName: "Bea"}))

	got, err := r.GetByID(ctx, "U1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "b@x", got.Email)
	assert.Equal(t, "Bea", got.DisplayName)
	// full replace: fields absent from the second upsert are not kept
	assert.Empty(t, got.AvatarURL)
	assert.True(t, got.CreatedAt.IsZero())
	assert.WithinDuration(t, time.Now(), got.LastSyncedAt, time.Minute)
	assert.Equal(t, 1, dbtest.Count(t, db, "accounts"))
}

func TestUpsert_DoesNotCascadeToChildren(t *testing.T) {
	db := dbtest.Open(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	dbtest.SeedAccount(t, db, "S")
	dbtest.SeedListing(t, db, "L1", "S", 100)

	require.NoError(t, r.Upsert(ctx, &models.Account{ID: "S", DisplayName: "renamed"}))
	assert.Equal(t, 1, dbtest.Count(t, db, "listings"))
}

func TestEnsureStub_NeverOverwrites(t *testing.T) {
	db := dbtest.Open(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	require.NoError(t, r.EnsureStub(ctx, "U1"))
	stub, err := r.GetByID(ctx, "U1")
	require.NoError(t, err)
	require.NotNil(t, stub)
	assert.True(t, stub.LastSyncedAt.IsZero())

	require.NoError(t, r.Upsert(ctx, &models.Account{ID: "U1", DisplayName: "Ann"}))
	require.NoError(t, r.EnsureStub(ctx, "U1"))

	got, err := r.GetByID(ctx, "U1")
	require.NoError(t, err)
	assert.Equal(t, "Ann", got.DisplayName)
	assert.Equal(t, 1, dbtest.Count(t, db, "accounts"))
}

func TestGetByID_Missing(t *testing.T) {
	r := NewSQLiteRepository(dbtest.Open(t))

	got, err := r.GetByID(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGetByEmails(t *testing.T) {
	db := dbtest.Open(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	require.NoError(t, r.Upsert(ctx, &models.Account{ID: "1", Email: "a@x"}))
	require.NoError(t, r.Upsert(ctx, &models.Account{ID: "2", Email: "b@x"}))
	require.NoError(t, r.Upsert(ctx, &models.Account{ID: "3", Email: "c@x"}))

	got, err := r.GetByEmails(ctx, []string{"c@x", "a@x", "zzz"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "1", got[0].ID)
	assert.Equal(t, "3", got[1].ID)

	none, err := r.GetByEmails(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestDeleteByID_CascadesToListingsOrdersReviews(t *testing.T) {
	db := dbtest.Open(t)
	r := NewSQLiteRepository(db)
	ctx := context.Background()

	dbtest.SeedAccount(t, db, "U1")
	dbtest.SeedAccount(t, db, "B")
	dbtest.SeedListing(t, db, "L1", "U1", 100)
	dbtest.SeedListing(t, db, "L2", "U1", 200)
	dbtest.SeedListing(t, db, "L3", "B", 300)
	dbtest.SeedOrder(t, db, "O1", "L1", "B", "U1", "completed", 100)
	dbtest.SeedOrder(t, db, "O2", "L2", "B", "U1", "paid", 200)
	dbtest.SeedOrder(t, db, "O3", "L3", "B", "B", "paid", 300)
	dbtest.SeedReview(t, db, "R1", "O1", "B", "U1", 5)

	require.NoError(t, r.DeleteByID(ctx, "U1"))

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM listings WHERE seller_id = 'U1'`).Scan(&n))
	assert.Zero(t, n)
	assert.Equal(t, 1, dbtest.Count(t, db, "listings"))
	assert.Equal(t, 1, dbtest.Count(t, db, "orders"))
	assert.Zero(t, dbtest.Count(t, db, "reviews"))
	assert.Equal(t, 1, dbtest.Count(t, db, "accounts"))
}

func TestErrorsAreStorageErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	r := NewSQLiteRepository(db)
	ctx := context.Background()
	boom := errors.New("disk I/O error")

	mock.ExpectExec("INSERT INTO accounts").WillReturnError(boom)
	err = r.Upsert(ctx, &models.Account{ID: "x"})
	require.ErrorIs(t, err, common.ErrStorage)
	require.ErrorIs(t, err, boom)

	mock.ExpectQuery("SELECT (.+) FROM accounts WHERE id").WillReturnError(boom)
	_, err = r.GetByID(ctx, "x")
	require.ErrorIs(t, err, common.ErrStorage)

	mock.ExpectExec("DELETE FROM accounts").WillReturnError(boom)
	require.ErrorIs(t, r.DeleteByID(ctx, "x"), common.ErrStorage)

	require.NoError(t, mock.ExpectationsWereMet())
}
