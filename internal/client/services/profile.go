package services

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/marketkeeper/internal/client/client"
	"github.com/dmitrijs2005/marketkeeper/internal/client/models"
	"github.com/dmitrijs2005/marketkeeper/internal/client/offline"
	"github.com/dmitrijs2005/marketkeeper/internal/client/store"
)

// StatsKey is the update key of an account's profile stats.
func StatsKey(userID string) string { return "stats:" + userID }

// ProfileService serves profile aggregates computed over the local store.
type ProfileService interface {
	Stats(ctx context.Context, userID string) (offline.Result[models.ProfileStats], error)
}

type profileService struct {
	api    client.API
	store  *store.Store
	auth   AuthService
	reader *offline.CacheFirstReader[models.ProfileStats]
}

func NewProfileService(api client.API, st *store.Store, auth AuthService, reader *offline.CacheFirstReader[models.ProfileStats]) ProfileService {
	return &profileService{api: api, store: st, auth: auth, reader: reader}
}

// Stats answers from the cached aggregates. The refresh pulls the
// account's reviews, and its orders when it is the signed-in account, then
// recomputes the aggregates.
func (s *profileService) Stats(ctx context.Context, userID string) (offline.Result[models.ProfileStats], error) {
	return s.reader.Read(ctx, StatsKey(userID), offline.Funcs[models.ProfileStats]{
		LocalFn: func(ctx context.Context) (models.ProfileStats, bool, error) {
			st, err := s.store.Stats.ProfileStats(ctx, userID)
			if err != nil {
				return models.ProfileStats{}, false, err
			}
			return st, hasActivity(st), nil
		},
		RemoteFn: func(ctx context.Context) (models.ProfileStats, error) {
			if err := s.pull(ctx, userID); err != nil {
				return models.ProfileStats{}, err
			}
			return s.store.Stats.ProfileStats(ctx, userID)
		},
	})
}

func (s *profileService) pull(ctx context.Context, userID string) error {
	me, err := s.auth.CurrentUserID(ctx)
	if err != nil {
		return err
	}

	if me == userID {
		orders, err := s.api.ListOrders(ctx, models.OrderFilter{})
		if err != nil {
			return err
		}
		if err := s.store.SaveOrderGraph(ctx, orders...); err != nil {
			return fmt.Errorf("cache orders: %w", err)
		}
	}

	reviews, err := s.api.UserReviews(ctx, userID)
	if err != nil {
		return err
	}
	return s.store.SaveReviewGraph(ctx, reviews...)
}

func hasActivity(st models.ProfileStats) bool {
	if st.Rating.Count > 0 || st.Seller.ListingCount > 0 {
		return true
	}
	for _, n := range st.OrdersByStatus {
		if n > 0 {
			return true
		}
	}
	return false
}
