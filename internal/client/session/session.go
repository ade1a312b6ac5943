// Package session owns the access/refresh token pair. Refreshes are
// single-flight: concurrent callers share one call to the refresh endpoint
// and observe the same outcome.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/marketkeeper/internal/client/notify"
	"github.com/dmitrijs2005/marketkeeper/internal/client/securestore"
	"github.com/dmitrijs2005/marketkeeper/internal/common"
	"github.com/dmitrijs2005/marketkeeper/internal/logging"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// Keys under which the tokens are persisted in the protected store.
const (
	KeyAccess  = "access"
	KeyRefresh = "refresh"
)

// Topic is the notify topic carrying session Events.
const Topic = "session"

// Refresher exchanges a refresh token for a new token pair. It returns an
// error matching common.ErrAuth when the backend rejects the refresh token
// and common.ErrNetwork when the backend could not be reached.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// EventKind tells subscribers what happened to the session.
type EventKind int

const (
	SignedIn EventKind = iota + 1
	Refreshed
	Cleared
)

func (k EventKind) String() string {
	switch k {
	case SignedIn:
		return "signed-in"
	case Refreshed:
		return "refreshed"
	case Cleared:
		return "cleared"
	}
	return "unknown"
}

// Event is published on Topic after every session change.
type Event struct {
	Kind   EventKind
	Reason string
}

// Manager holds the current session. The zero value is not usable; build it
// with NewManager.
//
// Every login, restore and clear starts a new generation. A refresh only
// installs its result when the generation it started from is still current,
// so a logout or a new login is never undone by a refresh finishing late.
type Manager struct {
	store     securestore.Store
	refresher Refresher
	bus       *notify.Bus[Event]
	log       logging.Logger

	mu  sync.RWMutex
	tok *oauth2.Token
	gen uint64

	// wmu serialises changes of the session together with their persistence.
	wmu sync.Mutex

	group     singleflight.Group
	refreshes atomic.Int64
}

func NewManager(store securestore.Store, refresher Refresher, bus *notify.Bus[Event], log logging.Logger) *Manager {
	if log == nil {
		log = logging.NewNop()
	}
	if bus == nil {
		bus = notify.NewBus[Event](log, 0)
	}
	return &Manager{
		store:     store,
		refresher: refresher,
		bus:       bus,
		log:       log.With("component", "session"),
	}
}

// Load restores a persisted session. A missing session is not an error.
func (m *Manager) Load(ctx context.Context) error {
	m.wmu.Lock()
	defer m.wmu.Unlock()

	access, ok, err := m.store.Get(ctx, KeyAccess)
	if err != nil {
		return fmt.Errorf("load access token: %w", err)
	}
	if !ok || access == "" {
		return nil
	}
	refresh, _, err := m.store.Get(ctx, KeyRefresh)
	if err != nil {
		return fmt.Errorf("load refresh token: %w", err)
	}

	tok := normalize(&oauth2.Token{AccessToken: access, RefreshToken: refresh})
	m.install(tok, true)

	m.log.Debug(ctx, "session restored", "expires", tok.Expiry)
	return nil
}

// SetSession installs a token pair obtained by login and persists it.
func (m *Manager) SetSession(ctx context.Context, tok *oauth2.Token) error {
	if tok == nil || tok.AccessToken == "" {
		return fmt.Errorf("%w: empty access token", common.ErrAuth)
	}
	tok = normalize(tok)

	m.wmu.Lock()
	if err := m.persist(ctx, tok); err != nil {
		m.wmu.Unlock()
		return err
	}
	m.install(tok, true)
	m.wmu.Unlock()

	m.bus.Publish(Topic, Event{Kind: SignedIn})
	return nil
}

// install swaps the in-memory token. Callers hold wmu.
func (m *Manager) install(tok *oauth2.Token, newGeneration bool) {
	m.mu.Lock()
	m.tok = tok
	if newGeneration {
		m.gen++
	}
	m.mu.Unlock()
}

func (m *Manager) snapshot() (*oauth2.Token, uint64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.tok == nil {
		return nil, m.gen
	}
	c := *m.tok
	return &c, m.gen
}

// AccessToken returns the current access token or "". It never blocks on
// the network.
func (m *Manager) AccessToken() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.tok == nil {
		return ""
	}
	return m.tok.AccessToken
}

// Token implements oauth2.TokenSource over the current session without
// refreshing it.
func (m *Manager) Token() (*oauth2.Token, error) {
	t := m.Session()
	if t == nil {
		return nil, common.ErrNoSession
	}
	return t, nil
}

// Session returns a copy of the current token pair, or nil.
func (m *Manager) Session() *oauth2.Token {
	t, _ := m.snapshot()
	return t
}

func (m *Manager) Authenticated() bool {
	return m.AccessToken() != ""
}

// Expired reports whether the access token is known to expire within
// leeway. Tokens without a decodable expiry never count as expired.
func (m *Manager) Expired(leeway time.Duration) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.tok == nil || m.tok.Expiry.IsZero() {
		return false
	}
	return time.Now().Add(leeway).After(m.tok.Expiry)
}

// Refreshes returns how many refresh calls reached the Refresher.
func (m *Manager) Refreshes() int64 {
	return m.refreshes.Load()
}

// Refresh obtains a new token pair to replace the access token stale. When
// the session already holds a different access token, someone refreshed in
// the meantime and that token is returned without another call. An empty
// stale always refreshes.
//
// Concurrent calls share one in-flight refresh. The shared call runs on a
// context detached from any single caller, so a caller giving up does not
// fail it for the others; each caller still stops waiting when its own ctx
// is done.
//
// A rejected refresh token clears the session and returns an error matching
// common.ErrAuth. A network failure keeps the session and returns an error
// matching common.ErrNetwork.
func (m *Manager) Refresh(ctx context.Context, stale string) (*oauth2.Token, error) {
	ch := m.group.DoChan("refresh", func() (any, error) {
		return m.refresh(context.WithoutCancel(ctx), stale)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		c := *res.Val.(*oauth2.Token)
		return &c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *Manager) refresh(ctx context.Context, stale string) (*oauth2.Token, error) {
	cur, gen := m.snapshot()
	if cur == nil || cur.RefreshToken == "" {
		m.clearGeneration(ctx, gen, "no refresh token")
		return nil, fmt.Errorf("%w: no refresh token", common.ErrAuth)
	}
	if stale != "" && cur.AccessToken != stale {
		m.log.Debug(ctx, "session already refreshed")
		return cur, nil
	}

	m.refreshes.Add(1)
	fresh, err := m.refresher.Refresh(ctx, cur.RefreshToken)
	if err != nil {
		if errors.Is(err, common.ErrAuth) {
			if m.clearGeneration(ctx, gen, "refresh rejected") {
				m.log.Warn(ctx, "refresh token rejected, session cleared", "error", err)
			}
			return nil, err
		}
		m.log.Warn(ctx, "refresh failed, keeping session", "error", err)
		return nil, err
	}

	if fresh.RefreshToken == "" {
		fresh.RefreshToken = cur.RefreshToken
	}
	fresh = normalize(fresh)

	m.wmu.Lock()
	now, nowGen := m.snapshot()
	if nowGen != gen {
		m.wmu.Unlock()
		m.log.Info(ctx, "session changed during refresh, result dropped")
		if now == nil {
			return nil, fmt.Errorf("%w: %w", common.ErrAuth, common.ErrNoSession)
		}
		return now, nil
	}
	if err := m.persist(ctx, fresh); err != nil {
		m.log.Warn(ctx, "refreshed tokens not persisted", "error", err)
	}
	m.install(fresh, false)
	m.wmu.Unlock()

	m.bus.Publish(Topic, Event{Kind: Refreshed})
	m.log.Debug(ctx, "session refreshed", "expires", fresh.Expiry)
	return fresh, nil
}

// Clear wipes the session from memory and the protected store. Idempotent.
func (m *Manager) Clear(ctx context.Context) error {
	m.wmu.Lock()
	had, err := m.wipe(ctx)
	m.wmu.Unlock()

	if had {
		m.bus.Publish(Topic, Event{Kind: Cleared, Reason: "logout"})
	}
	return err
}

// clearGeneration clears the session only while gen is current and reports
// whether it did.
func (m *Manager) clearGeneration(ctx context.Context, gen uint64, reason string) bool {
	m.wmu.Lock()
	if _, now := m.snapshot(); now != gen {
		m.wmu.Unlock()
		return false
	}
	had, _ := m.wipe(ctx)
	m.wmu.Unlock()

	if had {
		m.bus.Publish(Topic, Event{Kind: Cleared, Reason: reason})
	}
	return true
}

// wipe drops the token and starts a new generation. Callers hold wmu.
func (m *Manager) wipe(ctx context.Context) (bool, error) {
	m.mu.Lock()
	had := m.tok != nil
	m.tok = nil
	m.gen++
	m.mu.Unlock()

	err := errors.Join(m.store.Delete(ctx, KeyAccess), m.store.Delete(ctx, KeyRefresh))
	if err != nil {
		m.log.Warn(ctx, "failed to wipe stored tokens", "error", err)
	}
	return had, err
}

// Subscribe returns a subscription to session Events.
func (m *Manager) Subscribe() *notify.Subscription[Event] {
	return m.bus.Subscribe(Topic)
}

func (m *Manager) persist(ctx context.Context, tok *oauth2.Token) error {
	if err := m.store.Set(ctx, KeyAccess, tok.AccessToken); err != nil {
		return fmt.Errorf("persist access token: %w", err)
	}
	if err := m.store.Set(ctx, KeyRefresh, tok.RefreshToken); err != nil {
		return fmt.Errorf("persist refresh token: %w", err)
	}
	return nil
}

func normalize(tok *oauth2.Token) *oauth2.Token {
	c := *tok
	if c.TokenType == "" {
		c.TokenType = "Bearer"
	}
	if c.Expiry.IsZero() {
		c.Expiry = ExpiryOf(c.AccessToken)
	}
	return &c
}

// ExpiryOf decodes the exp claim of a JWT access token without verifying
// its signature. Opaque tokens yield the zero time.
func ExpiryOf(access string) time.Time {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(access, &claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}
