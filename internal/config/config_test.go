package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// clearEnv blanks every variable Load reads so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"SERVICE_NAME", "CONSUMER_NAME", "APP_ENV", "NODE_ENV", "PORT", "LOG_LEVEL",
		"MERCADOPAGO_ACCESS_TOKEN", "MERCADOPAGO_PUBLIC_KEY", "MERCADOPAGO_WEBHOOK_SECRET", "MERCADOPAGO_BASE_URL",
		"GATEWAY_FAKE", "GATEWAY_TIMEOUT", "SIGNATURE_TOLERANCE", "SIGNATURE_ENFORCE_FRESHNESS",
		"SUCCESS_URL", "FAILURE_URL", "PENDING_URL", "WEBHOOK_URL", "APP_BASE_URL",
		"EVENTOS_API_URL", "EVENTOS_API_TOKEN", "SYNC_TIMEOUT",
		"STORAGE_BACKEND", "STORAGE_DIR", "DATABASE_URL", "HISTORY_PATH", "AUDIT_PATH",
		"REDIS_URL", "REDIS_PREFIX", "DEDUP_TTL",
		"WATCHER_ENABLED", "SETTLE_DELAY", "RETRY_BACKOFF", "SWEEP_INTERVAL", "POLL_INTERVAL",
		"MAX_ATTEMPTS", "REPROCESS_CONCURRENCY",
	} {
		t.Setenv(k, "")
	}
}

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("MERCADOPAGO_WEBHOOK_SECRET", "whsec")
	t.Setenv("GATEWAY_FAKE", "true")

	cfg, errs := Load("")
	require.Empty(t, errs)
	require.Equal(t, DefaultName, cfg.Name)
	require.Equal(t, DefaultPort, cfg.Port)
	require.Equal(t, BackendFile, cfg.StorageBackend)
	require.Equal(t, DefaultStorageDir, cfg.StorageDir)
	require.Equal(t, DefaultDedupTTL, cfg.DedupTTL)
	require.Equal(t, DefaultSettleDelay, cfg.SettleDelay)
	require.Equal(t, DefaultRetryBackoff, cfg.RetryBackoff)
	require.Equal(t, DefaultSignatureTolerance, cfg.SignatureTolerance)
	require.Equal(t, DefaultSyncTimeout, cfg.SyncTimeout)
	require.Equal(t, DefaultGatewayTimeout, cfg.GatewayTimeout)
	require.True(t, cfg.WatcherEnabled)
	require.True(t, cfg.UseFakeGateway)
	require.False(t, cfg.EnforceFreshness)
	require.False(t, cfg.IsProduction())
}

func TestLoad_FileThenEnv(t *testing.T) {
	clearEnv(t)
	path := writeYAML(t, `
name: reconciler-a
port: 4000
mercadopago_access_token: file-token
mercadopago_webhook_secret: file-secret
storage_backend: postgres
database_url: postgres://file
settle_delay: 250ms
max_attempts: 3
watcher_enabled: false
`)
	t.Setenv("PORT", "5000")
	t.Setenv("MERCADOPAGO_ACCESS_TOKEN", "env-token")
	t.Setenv("SETTLE_DELAY", "2s")

	cfg, errs := Load(path)
	require.Empty(t, errs)
	require.Equal(t, "reconciler-a", cfg.Name)
	require.Equal(t, 5000, cfg.Port)
	require.Equal(t, "env-token", cfg.MercadoPagoAccessToken)
	require.Equal(t, "file-secret", cfg.MercadoPagoWebhookSecret)
	require.Equal(t, BackendPostgres, cfg.StorageBackend)
	require.Equal(t, "postgres://file", cfg.DatabaseURL)
	require.Equal(t, 2*time.Second, cfg.SettleDelay)
	require.Equal(t, 3, cfg.MaxAttempts)
	require.False(t, cfg.WatcherEnabled)
}

func TestLoad_CollectsErrors(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "abc")
	t.Setenv("DEDUP_TTL", "soon")
	t.Setenv("STORAGE_BACKEND", "mongo")

	_, errs := Load("")
	require.Len(t, errs, 5)
	require.ErrorIs(t, errs[0], ErrInvalidPort)
	require.ErrorContains(t, errs[1], "DEDUP_TTL")
	require.ErrorIs(t, errs[2], ErrMissingWebhookSecret)
	require.ErrorIs(t, errs[3], ErrMissingAccessToken)
	require.ErrorIs(t, errs[4], ErrInvalidBackend)
}

func TestLoad_PostgresNeedsDatabaseURL(t *testing.T) {
	clearEnv(t)
	t.Setenv("MERCADOPAGO_WEBHOOK_SECRET", "whsec")
	t.Setenv("MERCADOPAGO_ACCESS_TOKEN", "token")
	t.Setenv("STORAGE_BACKEND", "POSTGRES")

	_, errs := Load("")
	require.Len(t, errs, 1)
	require.ErrorIs(t, errs[0], ErrMissingDatabaseURL)
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)

	cfg, errs := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Nil(t, cfg)
	require.Len(t, errs, 1)
}
