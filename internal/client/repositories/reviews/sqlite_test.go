package reviews

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

func setup(t *testing.T) (*SQLiteRepository, func(string) int) {
	t.Helper()
	db := dbtest.Open(t)
	dbtest.SeedAccount(t, db, "S")
	dbtest.SeedAccount(t, db, "B")
	dbtest.SeedListing(t, db, "L1", "S", 100)
	dbtest.SeedListing(t, db, "L2", "S", 100)
	dbtest.SeedOrder(t, db, "O1", "L1", "B", "S", "completed", 100)
	dbtest.SeedOrder(t, db, "O2", "L2", "B", "S", "completed", 100)
	return NewSQLiteRepository(db), func(table string) int { return dbtest.Count(t, db, table) }
}

func TestUpsert_SameOrderNeverHoldsTwoReviews(t *testing.T) {
	r, count := setup(t)
	ctx := context.Background()

	require.NoError(t, r.Upsert(ctx, &models.Review{ID: "R1", OrderID: "O1", RaterID: "B", RateeID: "S", Rating: 2}))
	require.NoError(t, r.Upsert(ctx, &models.Review{ID: "R2", OrderID: "O1", RaterID: "B", RateeID: "S", Rating: 5}))

	assert.Equal(t, 1, count("reviews"))

	got, err := r.GetByOrder(ctx, "O1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "R2", got.ID)
	assert.Equal(t, 5, got.Rating)

	old, err := r.GetByID(ctx, "R1")
	require.NoError(t, err)
	assert.Nil(t, old)
}

func TestUpsert_SameIDReplaces(t *testing.T) {
	r, count := setup(t)
	ctx := context.Background()

	require.NoError(t, r.Upsert(ctx, &models.Review{ID: "R1", OrderID: "O1", RaterID: "B", RateeID: "S", Rating: 3, Comment: "ok"}))
	require.NoError(t, r.Upsert(ctx, &models.Review{ID: "R1", OrderID: "O1", RaterID: "B", RateeID: "S", Rating: 4}))

	assert.Equal(t, 1, count("reviews"))
	got, err := r.GetByID(ctx, "R1")
	require.NoError(t, err)
	assert.Equal(t, 4, got.Rating)
	assert.Empty(t, got.Comment)
}

func TestUpsert_RatingRangeEnforced(t *testing.T) {
	r, _ := setup(t)

	err := r.Upsert(context.Background(), &models.Review{ID: "R1", OrderID: "O1", RaterID: "B", RateeID: "S", Rating: 6})
	require.ErrorIs(t, err, common.ErrStorage)
}

func TestGetByRatee(t *testing.T) {
	r, _ := setup(t)
	ctx := context.Background()
	at := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, r.Upsert(ctx, &models.Review{ID: "R1", OrderID: "O1", RaterID: "B", RateeID: "S", Rating: 4, CreatedAt: at}))
	require.NoError(t, r.Upsert(ctx, &models.Review{ID: "R2", OrderID: "O2", RaterID: "B", RateeID: "S", Rating: 5, CreatedAt: at.Add(time.Hour)}))

	got, err := r.GetByRatee(ctx, "S")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "R2", got[0].ID)
	assert.Equal(t, at, got[1].CreatedAt)

	none, err := r.GetByRatee(ctx, "B")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestUpsert_RollsBackOnInsertError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM reviews").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO reviews").WillReturnError(errors.New("constraint"))
	mock.ExpectRollback()

	err = NewSQLiteRepository(db).Upsert(context.Background(), &models.Review{ID: "R", OrderID: "O"})
	require.ErrorIs(t, err, common.ErrStorage)
	require.NoError(t, mock.ExpectationsWereMet())
}
