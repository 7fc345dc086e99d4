// Package config loads service settings from an optional .env file, an
// optional YAML file and environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
)

type Config struct {
	Name     string `koanf:"name"`
	Env      string `koanf:"env"`
	Port     int    `koanf:"port"`
	LogLevel string `koanf:"log_level"`

	// Gateway
	MercadoPagoAccessToken   string        `koanf:"mercadopago_access_token"`
	MercadoPagoPublicKey     string        `koanf:"mercadopago_public_key"`
	MercadoPagoWebhookSecret string        `koanf:"mercadopago_webhook_secret"`
	MercadoPagoBaseURL       string        `koanf:"mercadopago_base_url"`
	UseFakeGateway           bool          `koanf:"gateway_fake"`
	GatewayTimeout           time.Duration `koanf:"gateway_timeout"`
	SignatureTolerance       time.Duration `koanf:"signature_tolerance"`
	EnforceFreshness         bool          `koanf:"signature_enforce_freshness"`

	// Checkout
	SuccessURL string `koanf:"success_url"`
	FailureURL string `koanf:"failure_url"`
	PendingURL string `koanf:"pending_url"`
	WebhookURL string `koanf:"webhook_url"`
	AppBaseURL string `koanf:"app_base_url"`

	// Downstream events API
	EventosAPIURL   string        `koanf:"eventos_api_url"`
	EventosAPIToken string        `koanf:"eventos_api_token"`
	SyncTimeout     time.Duration `koanf:"sync_timeout"`

	// Storage
	StorageBackend string `koanf:"storage_backend"`
	StorageDir     string `koanf:"storage_dir"`
	DatabaseURL    string `koanf:"database_url"`
	HistoryPath    string `koanf:"history_path"`
	AuditPath      string `koanf:"audit_path"`

	// Dedup
	RedisURL    string        `koanf:"redis_url"`
	RedisPrefix string        `koanf:"redis_prefix"`
	DedupTTL    time.Duration `koanf:"dedup_ttl"`

	// Reconciliation
	WatcherEnabled       bool          `koanf:"watcher_enabled"`
	SettleDelay          time.Duration `koanf:"settle_delay"`
	RetryBackoff         time.Duration `koanf:"retry_backoff"`
	SweepInterval        time.Duration `koanf:"sweep_interval"`
	PollInterval         time.Duration `koanf:"poll_interval"`
	MaxAttempts          int           `koanf:"max_attempts"`
	ReprocessConcurrency int           `koanf:"reprocess_concurrency"`
}

var (
	ErrMissingWebhookSecret = errors.New("MERCADOPAGO_WEBHOOK_SECRET is required")
	ErrMissingAccessToken   = errors.New("MERCADOPAGO_ACCESS_TOKEN is required unless GATEWAY_FAKE is set")
	ErrMissingDatabaseURL   = errors.New("DATABASE_URL is required for the postgres backend")
	ErrInvalidBackend       = errors.New("STORAGE_BACKEND must be file or postgres")
	ErrInvalidPort          = errors.New("PORT must be a valid integer")
)

const (
	DefaultName                 = "payment-reconciler"
	DefaultEnv                  = "development"
	DefaultPort                 = 3000
	DefaultLogLevel             = "info"
	DefaultMercadoPagoBaseURL   = "https://api.mercadopago.com"
	DefaultGatewayTimeout       = 5 * time.Second
	DefaultSignatureTolerance   = 300 * time.Second
	DefaultSyncTimeout          = 10 * time.Second
	DefaultStorageBackend       = BackendFile
	DefaultStorageDir           = "payments"
	DefaultHistoryPath          = "data/history.jsonl"
	DefaultAuditPath            = "data/audit.jsonl"
	DefaultRedisPrefix          = "payment-reconciler:claim:"
	DefaultDedupTTL             = 5 * time.Second
	DefaultSettleDelay          = time.Second
	DefaultRetryBackoff         = 30 * time.Second
	DefaultSweepInterval        = time.Minute
	DefaultPollInterval         = 5 * time.Second
	DefaultMaxAttempts          = 10
	DefaultReprocessConcurrency = 4
	DefaultAppBaseURL           = "http://localhost:3000"
)

// Load reads .env (if present), then configFilePath (if given), then the
// environment. It returns the config and every validation error found.
func Load(configFilePath string) (*Config, []error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, []error{fmt.Errorf("failed to load .env: %w", err)}
	}

	k := koanf.New(".")
	if configFilePath != "" {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", configFilePath, err)}
		}
	}

	var errs []error
	intVal := func(env, key string, def int) int {
		v, err := getEnvInt(env, k, key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}
	durVal := func(env, key string, def time.Duration) time.Duration {
		v, err := getEnvDuration(env, k, key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}

	port, err := getEnvInt("PORT", k, "port", DefaultPort)
	if err != nil {
		errs = append(errs, ErrInvalidPort)
	}

	cfg := &Config{
		Name:     getEnvOrDefault([]string{"SERVICE_NAME", "CONSUMER_NAME"}, k.String("name"), DefaultName),
		Env:      getEnvOrDefault([]string{"APP_ENV", "NODE_ENV"}, k.String("env"), DefaultEnv),
		Port:     port,
		LogLevel: getEnvOrDefault([]string{"LOG_LEVEL"}, k.String("log_level"), DefaultLogLevel),

		MercadoPagoAccessToken:   getEnvOrKoanf("MERCADOPAGO_ACCESS_TOKEN", k, "mercadopago_access_token"),
		MercadoPagoPublicKey:     getEnvOrKoanf("MERCADOPAGO_PUBLIC_KEY", k, "mercadopago_public_key"),
		MercadoPagoWebhookSecret: getEnvOrKoanf("MERCADOPAGO_WEBHOOK_SECRET", k, "mercadopago_webhook_secret"),
		MercadoPagoBaseURL:       getEnvOrDefault([]string{"MERCADOPAGO_BASE_URL"}, k.String("mercadopago_base_url"), DefaultMercadoPagoBaseURL),
		UseFakeGateway:           getEnvBool("GATEWAY_FAKE", k, "gateway_fake", false),
		GatewayTimeout:           durVal("GATEWAY_TIMEOUT", "gateway_timeout", DefaultGatewayTimeout),
		SignatureTolerance:       durVal("SIGNATURE_TOLERANCE", "signature_tolerance", DefaultSignatureTolerance),
		EnforceFreshness:         getEnvBool("SIGNATURE_ENFORCE_FRESHNESS", k, "signature_enforce_freshness", false),

		SuccessURL: getEnvOrKoanf("SUCCESS_URL", k, "success_url"),
		FailureURL: getEnvOrKoanf("FAILURE_URL", k, "failure_url"),
		PendingURL: getEnvOrKoanf("PENDING_URL", k, "pending_url"),
		WebhookURL: getEnvOrKoanf("WEBHOOK_URL", k, "webhook_url"),
		AppBaseURL: getEnvOrDefault([]string{"APP_BASE_URL"}, k.String("app_base_url"), DefaultAppBaseURL),

		EventosAPIURL:   getEnvOrKoanf("EVENTOS_API_URL", k, "eventos_api_url"),
		EventosAPIToken: getEnvOrKoanf("EVENTOS_API_TOKEN", k, "eventos_api_token"),
		SyncTimeout:     durVal("SYNC_TIMEOUT", "sync_timeout", DefaultSyncTimeout),

		StorageBackend: strings.ToLower(getEnvOrDefault([]string{"STORAGE_BACKEND"}, k.String("storage_backend"), DefaultStorageBackend)),
		StorageDir:     getEnvOrDefault([]string{"STORAGE_DIR"}, k.String("storage_dir"), DefaultStorageDir),
		DatabaseURL:    getEnvOrKoanf("DATABASE_URL", k, "database_url"),
		HistoryPath:    getEnvOrDefault([]string{"HISTORY_PATH"}, k.String("history_path"), DefaultHistoryPath),
		AuditPath:      getEnvOrDefault([]string{"AUDIT_PATH"}, k.String("audit_path"), DefaultAuditPath),

		RedisURL:    getEnvOrKoanf("REDIS_URL", k, "redis_url"),
		RedisPrefix: getEnvOrDefault([]string{"REDIS_PREFIX"}, k.String("redis_prefix"), DefaultRedisPrefix),
		DedupTTL:    durVal("DEDUP_TTL", "dedup_ttl", DefaultDedupTTL),

		WatcherEnabled:       getEnvBool("WATCHER_ENABLED", k, "watcher_enabled", true),
		SettleDelay:          durVal("SETTLE_DELAY", "settle_delay", DefaultSettleDelay),
		RetryBackoff:         durVal("RETRY_BACKOFF", "retry_backoff", DefaultRetryBackoff),
		SweepInterval:        durVal("SWEEP_INTERVAL", "sweep_interval", DefaultSweepInterval),
		PollInterval:         durVal("POLL_INTERVAL", "poll_interval", DefaultPollInterval),
		MaxAttempts:          intVal("MAX_ATTEMPTS", "max_attempts", DefaultMaxAttempts),
		ReprocessConcurrency: intVal("REPROCESS_CONCURRENCY", "reprocess_concurrency", DefaultReprocessConcurrency),
	}

	return cfg, append(errs, cfg.Validate()...)
}

// Validate reports every missing or inconsistent setting.
func (c *Config) Validate() []error {
	var errs []error
	if c.MercadoPagoWebhookSecret == "" {
		errs = append(errs, ErrMissingWebhookSecret)
	}
	if c.MercadoPagoAccessToken == "" && !c.UseFakeGateway {
		errs = append(errs, ErrMissingAccessToken)
	}
	switch c.StorageBackend {
	case BackendFile:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, ErrMissingDatabaseURL)
		}
	default:
		errs = append(errs, ErrInvalidBackend)
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, ErrInvalidPort)
	}
	return errs
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnvOrKoanf(envKey string, k *koanf.Koanf, koanfKey string) string {
	if val := os.Getenv(envKey); val != "" {
		return val
	}
	return k.String(koanfKey)
}

func getEnvOrDefault(envKeys []string, koanfVal string, defaultVal string) string {
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			return val
		}
	}
	if koanfVal != "" {
		return koanfVal
	}
	return defaultVal
}

func getEnvInt(envKey string, k *koanf.Koanf, koanfKey string, defaultVal int) (int, error) {
	if val := os.Getenv(envKey); val != "" {
		n, err := strconv.Atoi(val)
		if err != nil {
			return defaultVal, fmt.Errorf("%s must be an integer: %w", envKey, err)
		}
		return n, nil
	}
	if k.Exists(koanfKey) {
		return k.Int(koanfKey), nil
	}
	return defaultVal, nil
}

func getEnvDuration(envKey string, k *koanf.Koanf, koanfKey string, defaultVal time.Duration) (time.Duration, error) {
	raw := os.Getenv(envKey)
	if raw == "" && k.Exists(koanfKey) {
		raw = k.String(koanfKey)
	}
	if raw == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return defaultVal, fmt.Errorf("%s must be a duration: %w", envKey, err)
	}
	if d < 0 {
		return defaultVal, fmt.Errorf("%s must not be negative", envKey)
	}
	return d, nil
}

func getEnvBool(envKey string, k *koanf.Koanf, koanfKey string, defaultVal bool) bool {
	v := defaultVal
	if k.Exists(koanfKey) {
		v = k.Bool(koanfKey)
	}
	switch strings.ToLower(os.Getenv(envKey)) {
	case "true", "1", "yes", "on":
		v = true
	case "false", "0", "no", "off":
		v = false
	}
	return v
}
