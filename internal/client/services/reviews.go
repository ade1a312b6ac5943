package services

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/marketkeeper/internal/client/client"
	"github.com/dmitrijs2005/marketkeeper/internal/client/models"
	"github.com/dmitrijs2005/marketkeeper/internal/client/offline"
	"github.com/dmitrijs2005/marketkeeper/internal/client/store"
	"github.com/dmitrijs2005/marketkeeper/internal/common"
)

// ReviewsKey is the update key of a user's received reviews.
func ReviewsKey(userID string) string { return "reviews:" + userID }

type ReviewService interface {
	// ForUser returns the reviews userID received, cache-first.
	ForUser(ctx context.Context, userID string) (offline.Result[[]models.ReviewPayload], error)
	Submit(ctx context.Context, r models.NewReview) (*models.ReviewPayload, error)
}

type reviewService struct {
	api    client.API
	store  *store.Store
	reader *offline.CacheFirstReader[[]models.ReviewPayload]
}

func NewReviewService(api client.API, st *store.Store, reader *offline.CacheFirstReader[[]models.ReviewPayload]) ReviewService {
	return &reviewService{api: api, store: st, reader: reader}
}

func (s *reviewService) ForUser(ctx context.Context, userID string) (offline.Result[[]models.ReviewPayload], error) {
	return s.reader.Read(ctx, ReviewsKey(userID), offline.Funcs[[]models.ReviewPayload]{
		LocalFn: func(ctx context.Context) ([]models.ReviewPayload, bool, error) {
			rs, err := s.store.Reviews.GetByRatee(ctx, userID)
			if err != nil {
				return nil, false, err
			}
			out := make([]models.ReviewPayload, 0, len(rs))
			for _, r := range rs {
				out = append(out, models.ReviewPayload{Review: r})
			}
			return out, len(out) > 0, nil
		},
		RemoteFn: func(ctx context.Context) ([]models.ReviewPayload, error) {
			return s.api.UserReviews(ctx, userID)
		},
		SaveFn: func(ctx context.Context, v []models.ReviewPayload) error {
			return s.store.SaveReviewGraph(ctx, v...)
		},
	})
}

func (s *reviewService) Submit(ctx context.Context, r models.NewReview) (*models.ReviewPayload, error) {
	fields := map[string][]string{}
	if r.OrderID == "" {
		fields["order_id"] = []string{"required"}
	}
	if r.Rating < 1 || r.Rating > 5 {
		fields["rating"] = []string{"must be between 1 and 5"}
	}
	if len(fields) > 0 {
		return nil, &common.ValidationError{Status: 400, Fields: fields}
	}

	rv, err := s.api.CreateReview(ctx, r)
	if err != nil {
		return nil, err
	}
	if err := s.store.SaveReviewGraph(ctx, *rv); err != nil {
		return nil, fmt.Errorf("cache review: %w", err)
	}
	return rv, nil
}
