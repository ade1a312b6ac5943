package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitrijs2005/marketkeeper/internal/client/config"
	"github.com/dmitrijs2005/marketkeeper/internal/client/connectivity"
	"github.com/dmitrijs2005/marketkeeper/internal/common"
	"github.com/dmitrijs2005/marketkeeper/internal/logging"
	"github.com/dmitrijs2005/marketkeeper/internal/testutil/fakeapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, baseURL string) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.BaseURL = baseURL
	cfg.DatabasePath = filepath.Join(t.TempDir(), "data", "market.db")
	cfg.RetryCount = -1
	cfg.TelemetryFlushInterval = time.Hour
	return cfg
}

func start(t *testing.T, cfg *config.Config) *Core {
	t.Helper()
	c, err := Init(context.Background(), cfg, WithLogger(logging.NewNop()), WithConnectivity(connectivity.NewStatic(true)))
	require.NoError(t, err)
	return c
}

func TestInit_LoginTrackShutdown(t *testing.T) {
	api := fakeapi.New()
	defer api.Close()
	ann := api.AddAccount("ann@example.com", "pw", "Ann")

	c := start(t, testConfig(t, api.URL))
	ctx := context.Background()

	assert.False(t, c.Session.Authenticated())
	acc, err := c.Login(ctx, "ann@example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, ann.ID, acc.ID)

	me, err := c.Auth.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, ann.ID, me.Data.ID)

	require.NoError(t, c.Track(ctx, "screen_view", map[string]any{"screen": "home"}))
	require.NoError(t, c.Shutdown(ctx))
	require.NoError(t, c.Shutdown(ctx))

	events := api.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "screen_view", events[0].EventType)
	assert.Equal(t, ann.ID, events[0].UserID)
}

func TestInit_RestoresSession(t *testing.T) {
	api := fakeapi.New()
	defer api.Close()
	api.AddAccount("ann@example.com", "pw", "Ann")
	cfg := testConfig(t, api.URL)
	ctx := context.Background()

	c := start(t, cfg)
	_, err := c.Login(ctx, "ann@example.com", "pw")
	require.NoError(t, err)
	require.NoError(t, c.Shutdown(ctx))

	c = start(t, cfg)
	defer c.Shutdown(ctx)
	assert.True(t, c.Session.Authenticated())
	_, err = c.API.Me(ctx)
	require.NoError(t, err)
}

func TestInit_WrongSecretDoesNotRestoreSession(t *testing.T) {
	api := fakeapi.New()
	defer api.Close()
	api.AddAccount("ann@example.com", "pw", "Ann")
	cfg := testConfig(t, api.URL)
	ctx := context.Background()

	c := start(t, cfg)
	_, err := c.Login(ctx, "ann@example.com", "pw")
	require.NoError(t, err)
	require.NoError(t, c.Shutdown(ctx))

	cfg.SecretKey = "another device secret"
	c = start(t, cfg)
	defer c.Shutdown(ctx)
	assert.False(t, c.Session.Authenticated())
}

func TestRevokedSessionClearsLocalData(t *testing.T) {
	api := fakeapi.New()
	defer api.Close()
	api.AddAccount("ann@example.com", "pw", "Ann")

	c := start(t, testConfig(t, api.URL))
	defer c.Shutdown(context.Background())
	ctx := context.Background()

	_, err := c.Login(ctx, "ann@example.com", "pw")
	require.NoError(t, err)
	counts, err := c.Store.Counts(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, counts.Accounts)

	api.ExpireAccessTokens()
	api.RevokeRefreshTokens()

	_, err = c.API.Me(ctx)
	require.ErrorIs(t, err, common.ErrAuth)
	assert.False(t, c.Session.Authenticated())

	require.Eventually(t, func() bool {
		counts, err := c.Store.Counts(ctx)
		return err == nil && counts.Accounts == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestLogout(t *testing.T) {
	api := fakeapi.New()
	defer api.Close()
	api.AddAccount("ann@example.com", "pw", "Ann")

	c := start(t, testConfig(t, api.URL))
	defer c.Shutdown(context.Background())
	ctx := context.Background()

	_, err := c.Login(ctx, "ann@example.com", "pw")
	require.NoError(t, err)
	require.NoError(t, c.Logout(ctx))

	assert.False(t, c.Session.Authenticated())
	_, err = c.Auth.CurrentUserID(ctx)
	assert.ErrorIs(t, err, common.ErrNoSession)
}

func TestInit_UnknownLogBackend(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.LogBackend = "syslog"
	_, err := Init(context.Background(), cfg)
	require.Error(t, err)
}

func TestInit_MonitorTracksBackend(t *testing.T) {
	api := fakeapi.New()
	defer api.Close()

	cfg := testConfig(t, api.URL)
	cfg.OnlineCheckInterval = 20 * time.Millisecond
	c, err := Init(context.Background(), cfg, WithLogger(logging.NewNop()))
	require.NoError(t, err)
	defer c.Shutdown(context.Background())

	assert.True(t, c.Online.Online(context.Background()))
}
