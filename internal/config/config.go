// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, database paths, channel credentials,
// relay timing, rate limiting, and observability.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Backend modes selectable via BACKEND_MODE.
const (
	BackendLocal  = "local"
	BackendRemote = "remote"
)

// ErrBackendConfig marks a backend-selection validation failure. It is fatal
// at startup and checkable with errors.Is.
var ErrBackendConfig = errors.New("backend configuration invalid")

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-relay-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// ChannelConfig defines the Telegram message channel used by the local backend.
type ChannelConfig struct {
	BotToken string        // TELEGRAM_BOT_TOKEN
	ChatID   string        // TELEGRAM_CHAT_ID (destination + expected responder)
	BaseURL  string        // TELEGRAM_API_BASE_URL (override for tests/proxies)
	Wait     time.Duration // CHANNEL_WAIT long-poll duration per fetch
}

// RemoteConfig defines the credentials of a remote coordinating deployment.
type RemoteConfig struct {
	URL    string // CLOUDFLARE_WORKER_URL
	APIKey string // CLOUDFLARE_API_KEY
	UserID string // CLOUDFLARE_USER_ID
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// App
	DBPath      string // SQLite path
	BackendMode string // local|remote
	Channel     ChannelConfig
	Remote      RemoteConfig
	ServeAPIKey string // shared secret guarding the exposed surface; empty disables

	// Relay timing
	RequestTimeoutDefault time.Duration // REQUEST_TIMEOUT_DEFAULT (wait budget)
	PollInterval          time.Duration // POLL_INTERVAL (store/clock re-check cadence)
	CollectionWindow      time.Duration // COLLECTION_WINDOW (multi-part silence window)

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// App
		DBPath:      getenv("DB_PATH", "relay.db"),
		BackendMode: strings.ToLower(getenv("BACKEND_MODE", BackendLocal)),
		Channel: ChannelConfig{
			BotToken: getenv("TELEGRAM_BOT_TOKEN", ""),
			ChatID:   getenv("TELEGRAM_CHAT_ID", ""),
			BaseURL:  getenv("TELEGRAM_API_BASE_URL", ""),
			Wait:     getdur("CHANNEL_WAIT", 30*time.Second),
		},
		Remote: RemoteConfig{
			URL:    getenv("CLOUDFLARE_WORKER_URL", ""),
			APIKey: getenv("CLOUDFLARE_API_KEY", ""),
			UserID: getenv("CLOUDFLARE_USER_ID", ""),
		},
		ServeAPIKey: getenv("API_KEY", ""),

		// Relay timing
		RequestTimeoutDefault: getdur("REQUEST_TIMEOUT_DEFAULT", 300*time.Second),
		PollInterval:          getdur("POLL_INTERVAL", 2*time.Second),
		CollectionWindow:      getdur("COLLECTION_WINDOW", 3*time.Second),

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Idempotency
		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-relay-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if err := validateBackend(&cfg); err != nil {
		return cfg, err
	}
	if cfg.RequestTimeoutDefault <= 0 {
		return cfg, errors.New("REQUEST_TIMEOUT_DEFAULT must be > 0")
	}
	if cfg.PollInterval <= 0 {
		return cfg, errors.New("POLL_INTERVAL must be > 0")
	}
	if cfg.CollectionWindow <= 0 {
		return cfg, errors.New("COLLECTION_WINDOW must be > 0")
	}
	if cfg.Channel.Wait <= 0 {
		return cfg, errors.New("CHANNEL_WAIT must be > 0")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// validateBackend checks the mode-specific credential requirements. All
// failures wrap ErrBackendConfig.
func validateBackend(cfg *Config) error {
	switch cfg.BackendMode {
	case BackendLocal:
		if strings.TrimSpace(cfg.Channel.BotToken) == "" || strings.TrimSpace(cfg.Channel.ChatID) == "" {
			return fmt.Errorf("%w: local mode requires TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID", ErrBackendConfig)
		}
	case BackendRemote:
		if strings.TrimSpace(cfg.Remote.URL) == "" ||
			strings.TrimSpace(cfg.Remote.APIKey) == "" ||
			strings.TrimSpace(cfg.Remote.UserID) == "" {
			return fmt.Errorf("%w: remote mode requires CLOUDFLARE_WORKER_URL, CLOUDFLARE_API_KEY and CLOUDFLARE_USER_ID", ErrBackendConfig)
		}
	default:
		return fmt.Errorf("%w: BACKEND_MODE must be local or remote, got %q", ErrBackendConfig, cfg.BackendMode)
	}
	return nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
