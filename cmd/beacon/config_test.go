package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/beacon/event"
	"github.com/xraph/beacon/ratelimit"
	"github.com/xraph/beacon/session"
	"github.com/xraph/beacon/store/sqlite"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := loadConfig()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, backendMemory, cfg.Store)
	assert.Equal(t, backendMemory, cfg.Limiter)
	assert.Equal(t, ratelimit.DefaultLimit, cfg.RateLimit)
	assert.Equal(t, ratelimit.DefaultWindow, cfg.RateWindow)
	assert.Equal(t, session.DefaultCookieName, cfg.CookieName)
	assert.Empty(t, cfg.AdminToken)
	assert.Empty(t, cfg.ProducerSecrets)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 7, cfg.Defaults.CountDays)
}

func TestLoadConfig_Env(t *testing.T) {
	t.Setenv("BEACON_ADDR", ":9090")
	t.Setenv("BEACON_STORE", "Redis")
	t.Setenv("BEACON_RATE_LIMIT", "25")
	t.Setenv("BEACON_RATE_WINDOW", "30s")
	t.Setenv("BEACON_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("BEACON_PRODUCER_SECRETS", "bksec_one,bksec_two")

	cfg, err := loadConfig()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, backendRedis, cfg.Store)
	assert.Equal(t, 25, cfg.RateLimit)
	assert.Equal(t, 30*time.Second, cfg.RateWindow)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, []string{"bksec_one", "bksec_two"}, cfg.ProducerSecrets)
}

func TestLoadConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "beacon.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
admin_token: secret
allowed_types:
  - page_view
  - search
defaults:
  count_days: 14
`), 0o600))
	t.Setenv("BEACON_CONFIG", path)

	cfg, err := loadConfig()
	require.NoError(t, err)

	assert.Equal(t, "secret", cfg.AdminToken)
	assert.Equal(t, []string{"page_view", "search"}, cfg.AllowedTypes)
	assert.Equal(t, 14, cfg.Defaults.CountDays)
}

func TestLoadConfig_UnknownBackend(t *testing.T) {
	t.Setenv("BEACON_LIMITER", "memcached")

	_, err := loadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "memcached")
}

func TestLoadConfig_SQLiteDefaultsDSN(t *testing.T) {
	t.Setenv("BEACON_STORE", "sqlite")

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, backendSQLite, cfg.Store)
	assert.Equal(t, defaultSQLiteDSN, cfg.DatabaseURL)
}

func TestLoadConfig_DatabaseURLRequired(t *testing.T) {
	for _, backend := range []string{backendPostgres, backendMongo} {
		t.Run(backend, func(t *testing.T) {
			t.Setenv("BEACON_STORE", backend)

			_, err := loadConfig()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "database_url")
		})
	}
}

func TestLoadConfig_LimiterOnlyMemoryOrRedis(t *testing.T) {
	t.Setenv("BEACON_LIMITER", "sqlite")

	_, err := loadConfig()
	require.Error(t, err)
}

func TestOpenStore_SQLite(t *testing.T) {
	ctx := context.Background()
	cfg := Config{
		Store:       backendSQLite,
		DatabaseURL: "file:" + filepath.Join(t.TempDir(), "beacon.db"),
	}

	st, err := openStore(ctx, cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	assert.IsType(t, &sqlite.Store{}, st)

	require.NoError(t, st.Insert(ctx, &event.Event{Type: "page_view"}))
	counts, err := st.CountByType(ctx, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, []event.TypeCount{{Type: "page_view", Total: 1}}, counts)
}
