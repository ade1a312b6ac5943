package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/marketkeeper/internal/client/notify"
	"github.com/dmitrijs2005/marketkeeper/internal/client/securestore"
	"github.com/dmitrijs2005/marketkeeper/internal/common"
	"github.com/dmitrijs2005/marketkeeper/internal/logging"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type fakeRefresher struct {
	calls atomic.Int32
	delay time.Duration
	err   error
	gate  chan struct{}
}

func (f *fakeRefresher) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	n := f.calls.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &oauth2.Token{
		AccessToken:  fmt.Sprintf("access-%d", n),
		RefreshToken: fmt.Sprintf("refresh-%d", n),
	}, nil
}

func newManager(t *testing.T, r Refresher) (*Manager, *securestore.Memory) {
	t.Helper()
	store := securestore.NewMemory()
	m := NewManager(store, r, notify.NewBus[Event](logging.NewNop(), 4), logging.NewNop())
	require.NoError(t, m.SetSession(context.Background(), &oauth2.Token{AccessToken: "access-0", RefreshToken: "refresh-0"}))
	return m, store
}

func TestRefresh_SingleFlight(t *testing.T) {
	r := &fakeRefresher{delay: 100 * time.Millisecond}
	m, _ := newManager(t, r)

	const n = 25
	var wg sync.WaitGroup
	results := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok, err := m.Refresh(context.Background(), "")
			errs[i] = err
			if tok != nil {
				results[i] = tok.AccessToken
			}
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, r.calls.Load())
	assert.EqualValues(t, 1, m.Refreshes())
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "access-1", results[i])
	}
	assert.Equal(t, "access-1", m.AccessToken())
}

func TestRefresh_PersistsBothTokens(t *testing.T) {
	m, store := newManager(t, &fakeRefresher{})

	_, err := m.Refresh(context.Background(), "")
	require.NoError(t, err)

	access, _, _ := store.Get(context.Background(), KeyAccess)
	refresh, _, _ := store.Get(context.Background(), KeyRefresh)
	assert.Equal(t, "access-1", access)
	assert.Equal(t, "refresh-1", refresh)
}

func TestRefresh_RejectedTokenClearsSession(t *testing.T) {
	r := &fakeRefresher{err: fmt.Errorf("%w: refresh token expired", common.ErrAuth)}
	m, store := newManager(t, r)
	sub := m.Subscribe()
	defer sub.Unsubscribe()

	_, err := m.Refresh(context.Background(), "")
	require.ErrorIs(t, err, common.ErrAuth)

	assert.False(t, m.Authenticated())
	_, ok, _ := store.Get(context.Background(), KeyAccess)
	assert.False(t, ok)

	ev := <-sub.C
	assert.Equal(t, Cleared, ev.Kind)
	assert.Equal(t, "refresh rejected", ev.Reason)
}

func TestRefresh_NetworkFailureKeepsSession(t *testing.T) {
	r := &fakeRefresher{err: common.NetworkError(errors.New("connection refused"))}
	m, _ := newManager(t, r)

	_, err := m.Refresh(context.Background(), "")
	require.ErrorIs(t, err, common.ErrNetwork)
	assert.Equal(t, "access-0", m.AccessToken())

	// the next call starts a fresh attempt
	_, err = m.Refresh(context.Background(), "")
	require.Error(t, err)
	assert.EqualValues(t, 2, r.calls.Load())
}

func TestRefresh_WithoutSession(t *testing.T) {
	r := &fakeRefresher{}
	m := NewManager(securestore.NewMemory(), r, nil, nil)

	_, err := m.Refresh(context.Background(), "")
	require.ErrorIs(t, err, common.ErrAuth)
	assert.Zero(t, r.calls.Load())
}

func TestRefresh_CallerCancellationDoesNotAbortSharedRefresh(t *testing.T) {
	r := &fakeRefresher{gate: make(chan struct{})}
	m, _ := newManager(t, r)

	ctx, cancel := context.WithCancel(context.Background())
	impatient := make(chan error, 1)
	go func() {
		_, err := m.Refresh(ctx, "")
		impatient <- err
	}()

	require.Eventually(t, func() bool { return r.calls.Load() == 1 }, time.Second, time.Millisecond)

	patient := make(chan string, 1)
	go func() {
		tok, err := m.Refresh(context.Background(), "")
		if err == nil {
			patient <- tok.AccessToken
		} else {
			patient <- err.Error()
		}
	}()

	cancel()
	require.ErrorIs(t, <-impatient, context.Canceled)

	// let the second caller attach to the in-flight refresh
	time.Sleep(20 * time.Millisecond)
	close(r.gate)
	assert.Equal(t, "access-1", <-patient)
	assert.EqualValues(t, 1, r.calls.Load())
}

// refreshInFlight starts a refresh that blocks inside the refresher until
// the returned release func is called.
func refreshInFlight(t *testing.T, m *Manager, r *fakeRefresher) (release func() error) {
	t.Helper()
	done := make(chan error, 1)
	go func() {
		_, err := m.Refresh(context.Background(), "")
		done <- err
	}()
	require.Eventually(t, func() bool { return r.calls.Load() == 1 }, time.Second, time.Millisecond)
	return func() error {
		close(r.gate)
		return <-done
	}
}

func TestRefresh_LogoutDuringRefreshWins(t *testing.T) {
	r := &fakeRefresher{gate: make(chan struct{})}
	m, store := newManager(t, r)
	ctx := context.Background()

	release := refreshInFlight(t, m, r)
	require.NoError(t, m.Clear(ctx))

	err := release()
	require.ErrorIs(t, err, common.ErrAuth)
	require.ErrorIs(t, err, common.ErrNoSession)

	assert.False(t, m.Authenticated())
	_, ok, _ := store.Get(ctx, KeyAccess)
	assert.False(t, ok)
	_, ok, _ = store.Get(ctx, KeyRefresh)
	assert.False(t, ok)
}

func TestRefresh_LoginDuringRefreshWins(t *testing.T) {
	r := &fakeRefresher{gate: make(chan struct{})}
	m, store := newManager(t, r)
	ctx := context.Background()

	release := refreshInFlight(t, m, r)
	require.NoError(t, m.SetSession(ctx, &oauth2.Token{AccessToken: "other-access", RefreshToken: "other-refresh"}))

	require.NoError(t, release())
	assert.Equal(t, "other-access", m.AccessToken())
	access, _, _ := store.Get(ctx, KeyAccess)
	refresh, _, _ := store.Get(ctx, KeyRefresh)
	assert.Equal(t, "other-access", access)
	assert.Equal(t, "other-refresh", refresh)
}

func TestRefresh_RejectionAfterNewLoginKeepsNewSession(t *testing.T) {
	r := &fakeRefresher{gate: make(chan struct{}), err: fmt.Errorf("%w: revoked", common.ErrAuth)}
	m, _ := newManager(t, r)
	sub := m.Subscribe()
	defer sub.Unsubscribe()
	ctx := context.Background()

	release := refreshInFlight(t, m, r)
	require.NoError(t, m.SetSession(ctx, &oauth2.Token{AccessToken: "other-access", RefreshToken: "other-refresh"}))
	require.ErrorIs(t, release(), common.ErrAuth)

	assert.Equal(t, "other-access", m.AccessToken())
	assert.Equal(t, SignedIn, (<-sub.C).Kind)
	select {
	case ev := <-sub.C:
		t.Fatalf("unexpected event %v", ev.Kind)
	default:
	}
}

func TestRefresh_StaleTokenAlreadyReplaced(t *testing.T) {
	r := &fakeRefresher{}
	m, _ := newManager(t, r)
	ctx := context.Background()

	tok, err := m.Refresh(ctx, "access-0")
	require.NoError(t, err)
	assert.Equal(t, "access-1", tok.AccessToken)

	// a second 401 carrying the old token must not refresh again
	tok, err = m.Refresh(ctx, "access-0")
	require.NoError(t, err)
	assert.Equal(t, "access-1", tok.AccessToken)
	assert.EqualValues(t, 1, r.calls.Load())

	_, err = m.Refresh(ctx, "access-1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, r.calls.Load())
}

func TestClear_IsIdempotent(t *testing.T) {
	m, store := newManager(t, &fakeRefresher{})
	ctx := context.Background()

	require.NoError(t, m.Clear(ctx))
	require.NoError(t, m.Clear(ctx))

	assert.Empty(t, m.AccessToken())
	_, err := m.Token()
	require.ErrorIs(t, err, common.ErrNoSession)
	_, ok, _ := store.Get(ctx, KeyRefresh)
	assert.False(t, ok)
}

func TestLoad_RestoresPersistedSession(t *testing.T) {
	ctx := context.Background()
	store := securestore.NewMemory()
	require.NoError(t, store.Set(ctx, KeyAccess, "a"))
	require.NoError(t, store.Set(ctx, KeyRefresh, "r"))

	m := NewManager(store, &fakeRefresher{}, nil, nil)
	require.NoError(t, m.Load(ctx))

	tok, err := m.Token()
	require.NoError(t, err)
	assert.Equal(t, "a", tok.AccessToken)
	assert.Equal(t, "r", tok.RefreshToken)
	assert.Equal(t, "Bearer", tok.TokenType)

	empty := NewManager(securestore.NewMemory(), nil, nil, nil)
	require.NoError(t, empty.Load(ctx))
	assert.False(t, empty.Authenticated())
}

func TestSetSession_DecodesJWTExpiry(t *testing.T) {
	exp := time.Now().Add(30 * time.Second).Truncate(time.Second)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "U1",
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("server-key"))
	require.NoError(t, err)

	m := NewManager(securestore.NewMemory(), nil, nil, nil)
	require.NoError(t, m.SetSession(context.Background(), &oauth2.Token{AccessToken: signed, RefreshToken: "r"}))

	assert.True(t, m.Session().Expiry.Equal(exp))
	assert.False(t, m.Expired(0))
	assert.True(t, m.Expired(time.Minute))

	assert.True(t, ExpiryOf("opaque-token").IsZero())
}

func TestSetSession_Validation(t *testing.T) {
	m := NewManager(securestore.NewMemory(), nil, nil, nil)
	require.ErrorIs(t, m.SetSession(context.Background(), &oauth2.Token{}), common.ErrAuth)
	require.ErrorIs(t, m.SetSession(context.Background(), nil), common.ErrAuth)
}

func TestManager_IsTokenSource(t *testing.T) {
	var _ oauth2.TokenSource = (*Manager)(nil)
}

func TestEventKind_String(t *testing.T) {
	assert.Equal(t, "signed-in", SignedIn.String())
	assert.Equal(t, "refreshed", Refreshed.String())
	assert.Equal(t, "cleared", Cleared.String())
	assert.Equal(t, "unknown", EventKind(0).String())
}
