// Package app wires the marketplace client core together and owns its
// lifecycle. Init builds every component and restores the persisted
// session; Shutdown stops them in reverse order.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/dmitrijs2005/marketkeeper/internal/client/client"
	"github.com/dmitrijs2005/marketkeeper/internal/client/config"
	"github.com/dmitrijs2005/marketkeeper/internal/client/connectivity"
	"github.com/dmitrijs2005/marketkeeper/internal/client/models"
	"github.com/dmitrijs2005/marketkeeper/internal/client/notify"
	"github.com/dmitrijs2005/marketkeeper/internal/client/offline"
	"github.com/dmitrijs2005/marketkeeper/internal/client/pipeline"
	"github.com/dmitrijs2005/marketkeeper/internal/client/securestore"
	"github.com/dmitrijs2005/marketkeeper/internal/client/services"
	"github.com/dmitrijs2005/marketkeeper/internal/client/session"
	"github.com/dmitrijs2005/marketkeeper/internal/client/store"
	"github.com/dmitrijs2005/marketkeeper/internal/client/telemetry"
	"github.com/dmitrijs2005/marketkeeper/internal/client/worker"
	"github.com/dmitrijs2005/marketkeeper/internal/logging"
)

// Option adjusts Init.
type Option func(*options)

type options struct {
	logger    logging.Logger
	logOutput io.Writer
	checker   connectivity.Checker
}

// WithLogger replaces the configured logger.
func WithLogger(l logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithLogOutput redirects the configured logger, stderr by default.
func WithLogOutput(w io.Writer) Option {
	return func(o *options) { o.logOutput = w }
}

// WithConnectivity replaces the probing monitor; the monitor is then not
// started.
func WithConnectivity(c connectivity.Checker) Option {
	return func(o *options) { o.checker = c }
}

// Core is the initialized client.
type Core struct {
	Config *config.Config
	Log    logging.Logger

	Store     *store.Store
	Session   *session.Manager
	API       client.API
	Online    connectivity.Checker
	Pool      *worker.Pool
	Updates   *notify.Bus[offline.Update]
	Status    *notify.Bus[connectivity.Status]
	Telemetry *telemetry.Buffer

	Auth     services.AuthService
	Listings services.ListingService
	Orders   services.OrderService
	Reviews  services.ReviewService
	Profile  services.ProfileService
	Cart     services.CartService
	Contacts services.ContactService

	monitor    *connectivity.Monitor
	sessionBus *notify.Bus[session.Event]
	cancel     context.CancelFunc
	watcher    sync.WaitGroup
	closeOnce  sync.Once
}

// Init builds the core from cfg and starts its background loops. They run
// until Shutdown or until ctx is done.
func Init(ctx context.Context, cfg *config.Config, opts ...Option) (*Core, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	log := o.logger
	if log == nil {
		l, err := logging.New(cfg.LogBackend, cfg.Debug, o.logOutput)
		if err != nil {
			return nil, err
		}
		log = l
	}

	st, err := store.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	st.SetLogger(log)

	c := &Core{Config: cfg, Log: log, Store: st}
	if err := c.wire(ctx, &o); err != nil {
		_ = st.Close()
		return nil, err
	}

	if err := c.Session.Load(ctx); err != nil {
		log.Warn(ctx, "persisted session not restored", "error", err)
	}
	if c.Session.Authenticated() {
		if id, err := c.Auth.CurrentUserID(ctx); err == nil {
			c.Telemetry.SetUser(id)
		}
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel
	c.watchSession(runCtx)
	if c.monitor != nil {
		c.monitor.Start(runCtx)
	}
	c.Telemetry.Start(runCtx)

	log.Info(ctx, "client core ready", "base_url", cfg.BaseURL, "authenticated", c.Session.Authenticated())
	return c, nil
}

func (c *Core) wire(ctx context.Context, o *options) error {
	cfg, log := c.Config, c.Log

	secrets, err := securestore.NewSealed(ctx, c.Store.Metadata, []byte(cfg.SecretKey))
	if err != nil {
		return fmt.Errorf("open secure store: %w", err)
	}

	anon, err := pipeline.New(pipeline.Options{
		BaseURL:     cfg.BaseURL,
		Timeout:     cfg.RequestTimeout,
		RetryCount:  cfg.RetryCount,
		LogRequests: cfg.LogRequests,
		Logger:      log,
	})
	if err != nil {
		return err
	}

	c.sessionBus = notify.NewBus[session.Event](log, 0)
	c.Session = session.NewManager(secrets, client.NewRefresher(anon), c.sessionBus, log)

	cache, err := pipeline.NewLRUCache(cfg.CacheEntries)
	if err != nil {
		return err
	}
	authed, err := pipeline.New(pipeline.Options{
		BaseURL:     cfg.BaseURL,
		Timeout:     cfg.RequestTimeout,
		RetryCount:  cfg.RetryCount,
		Session:     c.Session,
		Cache:       cache,
		Staleness:   cfg.CacheStaleness,
		LogRequests: cfg.LogRequests,
		Logger:      log,
	})
	if err != nil {
		return err
	}
	rest := client.NewRESTClient(authed, anon)
	c.API = rest

	c.Status = notify.NewBus[connectivity.Status](log, 0)
	if o.checker != nil {
		c.Online = o.checker
	} else {
		c.monitor = connectivity.NewMonitor(cfg.BaseURL, cfg.OnlineCheckInterval, c.Status, log)
		c.Online = c.monitor
	}

	c.Pool = worker.NewPool(cfg.Workers, cfg.Workers*16, log)
	c.Updates = notify.NewBus[offline.Update](log, 0)

	c.Auth = services.NewAuthService(rest, c.Store, c.Session,
		offline.NewCacheFirstReader[*models.Account](c.Pool, c.Updates, log), authed.Purge, log)
	c.Listings = services.NewListingService(rest, c.Store,
		offline.NewGatedFetcher[[]models.ListingPayload](c.Online, log),
		offline.NewCacheFirstReader[*models.ListingPayload](c.Pool, c.Updates, log))
	c.Orders = services.NewOrderService(rest, c.Store,
		offline.NewGatedFetcher[[]models.OrderPayload](c.Online, log),
		offline.NewGatedFetcher[models.OrderPayload](c.Online, log), log)
	c.Reviews = services.NewReviewService(rest, c.Store,
		offline.NewCacheFirstReader[[]models.ReviewPayload](c.Pool, c.Updates, log))
	c.Profile = services.NewProfileService(rest, c.Store, c.Auth,
		offline.NewCacheFirstReader[models.ProfileStats](c.Pool, c.Updates, log))
	c.Cart = services.NewCartService(rest, c.Store)
	c.Contacts = services.NewContactService(rest, c.Store,
		offline.NewGatedFetcher[[]models.ContactMatch](c.Online, log))

	c.Telemetry = telemetry.NewBuffer(c.Store.Events, rest, telemetry.Options{
		FlushThreshold: cfg.TelemetryBatchSize,
		MaxBatch:       cfg.TelemetryMaxBatch,
		FlushInterval:  cfg.TelemetryFlushInterval,
		RetentionCap:   cfg.TelemetryRetentionCap,
	}, log)
	return nil
}

// watchSession reacts to session changes. A session the backend revoked
// takes the cached data of its account with it; a user logout has already
// done that through AuthService.Logout.
func (c *Core) watchSession(ctx context.Context) {
	sub := c.Session.Subscribe()
	c.watcher.Add(1)
	go func() {
		defer c.watcher.Done()
		defer sub.Unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub.C:
				if !ok {
					return
				}
				if ev.Kind != session.Cleared {
					continue
				}
				c.Telemetry.SetUser("")
				if ev.Reason == "logout" {
					continue
				}
				c.Log.Warn(ctx, "session ended by backend, clearing local data", "reason", ev.Reason)
				if err := c.Auth.ClearLocalData(ctx); err != nil {
					c.Log.Error(ctx, "clear local data", "error", err)
				}
			}
		}
	}()
}

// Login signs in and attributes later telemetry to the account.
func (c *Core) Login(ctx context.Context, email, password string) (*models.Account, error) {
	acc, err := c.Auth.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	c.Telemetry.SetUser(acc.ID)
	return acc, nil
}

// Logout ends the session and clears the cached data of the account.
func (c *Core) Logout(ctx context.Context) error {
	return c.Auth.Logout(ctx)
}

// Track queues a telemetry event.
func (c *Core) Track(ctx context.Context, eventType string, props map[string]any) error {
	_, err := c.Telemetry.Enqueue(ctx, telemetry.Event{Type: eventType, Properties: props})
	return err
}

// Shutdown stops the background loops, makes a last telemetry flush,
// drains the worker pool and closes the store. Safe to call twice.
func (c *Core) Shutdown(ctx context.Context) error {
	var errs []error
	c.closeOnce.Do(func() {
		if err := c.Telemetry.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("telemetry: %w", err))
		}
		if c.monitor != nil {
			c.monitor.Stop()
		}
		c.cancel()
		c.watcher.Wait()

		if err := c.Pool.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("worker pool: %w", err))
		}
		c.Updates.Close()
		c.Status.Close()
		c.sessionBus.Close()

		if err := c.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
		c.Log.Info(ctx, "client core stopped")
		if s, ok := c.Log.(interface{ Sync() error }); ok {
			_ = s.Sync()
		}
	})
	return errors.Join(errs...)
}
