package services

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/marketkeeper/internal/client/client"
	"github.com/dmitrijs2005/marketkeeper/internal/client/models"
	"github.com/dmitrijs2005/marketkeeper/internal/client/offline"
	"github.com/dmitrijs2005/marketkeeper/internal/client/store"
	"github.com/dmitrijs2005/marketkeeper/internal/common"
	"github.com/dmitrijs2005/marketkeeper/internal/logging"
	"github.com/google/uuid"
)

// OrderService reads orders through the connectivity gate and writes them
// remote-first.
type OrderService interface {
	Orders(ctx context.Context, f models.OrderFilter) (offline.Result[[]models.OrderPayload], error)
	ActiveOrders(ctx context.Context) (offline.Result[[]models.OrderPayload], error)
	Order(ctx context.Context, id string) (offline.Result[models.OrderPayload], error)
	Place(ctx context.Context, listingID string) (*models.OrderPayload, error)
	UpdateStatus(ctx context.Context, id string, status models.OrderStatus) (*models.OrderPayload, error)
}

type orderService struct {
	api   client.API
	store *store.Store
	list  *offline.GatedFetcher[[]models.OrderPayload]
	one   *offline.GatedFetcher[models.OrderPayload]
	log   logging.Logger
}

func NewOrderService(api client.API, st *store.Store, list *offline.GatedFetcher[[]models.OrderPayload], one *offline.GatedFetcher[models.OrderPayload], log logging.Logger) OrderService {
	if log == nil {
		log = logging.NewNop()
	}
	return &orderService{api: api, store: st, list: list, one: one, log: log.With("component", "orders")}
}

func (s *orderService) Orders(ctx context.Context, f models.OrderFilter) (offline.Result[[]models.OrderPayload], error) {
	return s.list.Fetch(ctx, offline.Funcs[[]models.OrderPayload]{
		LocalFn: func(ctx context.Context) ([]models.OrderPayload, bool, error) {
			ds, err := s.store.Orders.DetailsList(ctx, f)
			if err != nil {
				return nil, false, err
			}
			out := make([]models.OrderPayload, 0, len(ds))
			for _, d := range ds {
				out = append(out, models.PayloadFromDetails(d))
			}
			return out, len(out) > 0, nil
		},
		RemoteFn: func(ctx context.Context) ([]models.OrderPayload, error) {
			return s.api.ListOrders(ctx, f)
		},
		SaveFn: func(ctx context.Context, v []models.OrderPayload) error {
			return s.store.SaveOrderGraph(ctx, v...)
		},
	})
}

// ActiveOrders is Orders narrowed to created, paid and shipped.
func (s *orderService) ActiveOrders(ctx context.Context) (offline.Result[[]models.OrderPayload], error) {
	res, err := s.Orders(ctx, models.OrderFilter{})
	if err != nil {
		return res, err
	}
	active := res.Data[:0:0]
	for _, o := range res.Data {
		if o.Status.IsActive() {
			active = append(active, o)
		}
	}
	res.Data = active
	return res, nil
}

func (s *orderService) Order(ctx context.Context, id string) (offline.Result[models.OrderPayload], error) {
	return s.one.Fetch(ctx, offline.Funcs[models.OrderPayload]{
		LocalFn: func(ctx context.Context) (models.OrderPayload, bool, error) {
			d, err := s.store.Orders.Details(ctx, id)
			if err != nil || d == nil {
				return models.OrderPayload{}, false, err
			}
			return models.PayloadFromDetails(*d), true, nil
		},
		RemoteFn: func(ctx context.Context) (models.OrderPayload, error) {
			p, err := s.api.GetOrder(ctx, id)
			if err != nil {
				return models.OrderPayload{}, err
			}
			return *p, nil
		},
		SaveFn: func(ctx context.Context, v models.OrderPayload) error {
			return s.store.SaveOrderGraph(ctx, v)
		},
	})
}

// Place orders a listing. The idempotency key is generated per call.
func (s *orderService) Place(ctx context.Context, listingID string) (*models.OrderPayload, error) {
	if listingID == "" {
		return nil, &common.ValidationError{Status: 400, Fields: map[string][]string{"listing_id": {"required"}}}
	}
	o, err := s.api.CreateOrder(ctx, listingID, uuid.NewString())
	if err != nil {
		return nil, err
	}
	if err := s.store.SaveOrderGraph(ctx, *o); err != nil {
		return nil, fmt.Errorf("cache placed order: %w", err)
	}
	s.log.Info(ctx, "order placed", "order", o.ID, "listing", listingID)
	return o, nil
}

// UpdateStatus moves an order to status. Orders known to be completed or
// cancelled are refused locally with common.ErrFinalStatus.
func (s *orderService) UpdateStatus(ctx context.Context, id string, status models.OrderStatus) (*models.OrderPayload, error) {
	if !status.Valid() {
		return nil, &common.ValidationError{Status: 400, Fields: map[string][]string{"status": {fmt.Sprintf("unknown status %q", status)}}}
	}

	cur, err := s.store.Orders.GetByID(ctx, id)
	if err != nil {
		s.log.Warn(ctx, "cached order unreadable", "order", id, "error", err)
	}
	if cur != nil && cur.Status.IsFinal() {
		return nil, fmt.Errorf("%w: order %s is %s", common.ErrFinalStatus, id, cur.Status)
	}

	o, err := s.api.UpdateOrderStatus(ctx, id, status)
	if err != nil {
		return nil, err
	}
	if err := s.store.SaveOrderGraph(ctx, *o); err != nil {
		return nil, fmt.Errorf("cache order update: %w", err)
	}
	return o, nil
}
