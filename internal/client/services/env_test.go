package services

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/marketkeeper/internal/client/client"
	"github.com/dmitrijs2005/marketkeeper/internal/client/connectivity"
	"github.com/dmitrijs2005/marketkeeper/internal/client/models"
	"github.com/dmitrijs2005/marketkeeper/internal/client/notify"
	"github.com/dmitrijs2005/marketkeeper/internal/client/offline"
	"github.com/dmitrijs2005/marketkeeper/internal/client/pipeline"
	"github.com/dmitrijs2005/marketkeeper/internal/client/securestore"
	"github.com/dmitrijs2005/marketkeeper/internal/client/session"
	"github.com/dmitrijs2005/marketkeeper/internal/client/store"
	"github.com/dmitrijs2005/marketkeeper/internal/client/worker"
	"github.com/dmitrijs2005/marketkeeper/internal/logging"
	"github.com/dmitrijs2005/marketkeeper/internal/testutil/dbtest"
	"github.com/dmitrijs2005/marketkeeper/internal/testutil/fakeapi"
	"github.com/stretchr/testify/require"
)

// env is a fully wired client against the fake backend.
type env struct {
	api     *fakeapi.Server
	store   *store.Store
	sess    *session.Manager
	online  *connectivity.Static
	pool    *worker.Pool
	updates *notify.Bus[offline.Update]
	cache   *pipeline.LRUCache

	auth     AuthService
	orders   OrderService
	reviews  ReviewService
	listings ListingService
	profile  ProfileService
	cart     CartService
	contacts ContactService
}

func newEnv(t *testing.T) *env {
	t.Helper()
	log := logging.NewNop()

	api := fakeapi.New()
	t.Cleanup(api.Close)

	anon, err := pipeline.New(pipeline.Options{BaseURL: api.URL, RetryCount: -1})
	require.NoError(t, err)
	sess := session.NewManager(securestore.NewMemory(), client.NewRefresher(anon), nil, log)

	cache, err := pipeline.NewLRUCache(64)
	require.NoError(t, err)
	authed, err := pipeline.New(pipeline.Options{BaseURL: api.URL, Session: sess, Cache: cache, RetryCount: -1})
	require.NoError(t, err)
	rest := client.NewRESTClient(authed, anon)

	st := store.New(dbtest.Open(t))
	online := connectivity.NewStatic(true)
	pool := worker.NewPool(2, 32, log)
	t.Cleanup(func() { _ = pool.Shutdown(context.Background()) })
	bus := notify.NewBus[offline.Update](log, 16)

	e := &env{api: api, store: st, sess: sess, online: online, pool: pool, updates: bus, cache: cache}
	e.auth = NewAuthService(rest, st, sess, offline.NewCacheFirstReader[*models.Account](pool, bus, log), authed.Purge, log)
	e.orders = NewOrderService(rest, st, offline.NewGatedFetcher[[]models.OrderPayload](online, log), offline.NewGatedFetcher[models.OrderPayload](online, log), log)
	e.reviews = NewReviewService(rest, st, offline.NewCacheFirstReader[[]models.ReviewPayload](pool, bus, log))
	e.listings = NewListingService(rest, st, offline.NewGatedFetcher[[]models.ListingPayload](online, log), offline.NewCacheFirstReader[*models.ListingPayload](pool, bus, log))
	e.profile = NewProfileService(rest, st, e.auth, offline.NewCacheFirstReader[models.ProfileStats](pool, bus, log))
	e.cart = NewCartService(rest, st)
	e.contacts = NewContactService(rest, st, offline.NewGatedFetcher[[]models.ContactMatch](online, log))
	return e
}

// waitUpdate blocks until an Update for key arrives.
func waitUpdate(t *testing.T, sub *notify.Subscription[offline.Update], key string) offline.Update {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case u := <-sub.C:
			if u.Key == key {
				return u
			}
		case <-deadline:
			t.Fatalf("no update for %s", key)
		}
	}
}

// market seeds two accounts and one listing by bob, and signs ann in.
type market struct {
	ann, bob models.Account
	lamp     models.Listing
}

func (e *env) seed(t *testing.T) market {
	t.Helper()
	m := market{
		ann: e.api.AddAccount("ann@example.com", "pw", "Ann"),
		bob: e.api.AddAccount("Bob@Example.com", "pw", "Bob"),
	}
	m.lamp = e.api.AddListing(m.bob.ID, "Desk lamp", "home", 2500)
	_, err := e.auth.Login(context.Background(), "ann@example.com", "pw")
	require.NoError(t, err)
	return m
}
