// Package config handles application configuration and environment loading.
package config

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// AuthConfig holds bearer-token configuration for write endpoints.
type AuthConfig struct {
	JWTSecret string // HS256 shared secret for deployments without an IdP
	IssuerURL string // OIDC issuer URL; takes precedence over JWTSecret
	Audience  string // required "aud" claim when set
}

// Enabled reports whether any token validation is configured.
func (a *AuthConfig) Enabled() bool {
	return a.JWTSecret != "" || a.IssuerURL != ""
}

// TelemetryConfig selects and tunes the acquisition telemetry source.
type TelemetryConfig struct {
	DSN     string        // SQLite telemetry database
	URL     string        // REST facade base URL, alternative to DSN
	Timeout time.Duration // per request
	Retries int           // bounded attempts
	RPS     float64       // client rate limit
}

// Config holds the configuration for the catalog, the completion engine and
// the HTTP adapter.
type Config struct {
	CatalogPath    string // SQLite catalog file
	ReadPoolSize   int    // read pool max open connections
	InstrumentFile string // YAML instrument profile; empty selects the built-in TolTEC profile
	PollSchedule   string // cron spec of the completion poller
	ListenAddr     string // HTTP listen address (default ":8080")
	LogLevel       string // debug, info, warn, error (default "info")
	LogFormat      string // json (default) or text
	Env            string // "development" (default) or "production"

	Telemetry TelemetryConfig

	// Rate limiting
	RateLimitRPS   float64
	RateLimitBurst int

	// CORS
	CORSAllowedOrigins []string

	Auth AuthConfig

	// S3 fields are optional; nil when not configured.
	S3KeyID    *string
	S3Secret   *string
	S3Endpoint *string
	S3Region   *string

	AzureAccountURL string
	AzureAccountKey string
	GCSEndpoint     string
	GCSKeyFile      string

	// Warnings collects non-fatal warnings generated during config loading.
	// These are logged by the caller after the logger is initialised.
	Warnings []string
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds the process logger from LogLevel and LogFormat.
func (c *Config) NewLogger(w *os.File) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if strings.EqualFold(c.LogFormat, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// IsProduction returns true when the server is running in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// HasS3Config returns true if the S3 credentials are set. Endpoint and
// region are optional for AWS proper.
func (c *Config) HasS3Config() bool {
	return c.S3KeyID != nil && c.S3Secret != nil
}

// LoadFromEnv loads configuration from environment variables.
// Storage and auth variables are optional; the app can start without them.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		CatalogPath:    os.Getenv("DPDB_CATALOG_PATH"),
		InstrumentFile: os.Getenv("DPDB_INSTRUMENT_FILE"),
		PollSchedule:   os.Getenv("DPDB_POLL_SCHEDULE"),
		ListenAddr:     os.Getenv("LISTEN_ADDR"),
		LogLevel:       os.Getenv("LOG_LEVEL"),
		LogFormat:      os.Getenv("LOG_FORMAT"),
		Env:            os.Getenv("ENV"),
		Telemetry: TelemetryConfig{
			DSN: os.Getenv("DPDB_TELEMETRY_DSN"),
			URL: os.Getenv("DPDB_TELEMETRY_URL"),
		},
		Auth: AuthConfig{
			JWTSecret: os.Getenv("JWT_SECRET"),
			IssuerURL: os.Getenv("OIDC_ISSUER_URL"),
			Audience:  os.Getenv("OIDC_AUDIENCE"),
		},
		AzureAccountURL: os.Getenv("AZURE_STORAGE_ACCOUNT_URL"),
		AzureAccountKey: os.Getenv("AZURE_STORAGE_KEY"),
		GCSEndpoint:     os.Getenv("GCS_ENDPOINT"),
		GCSKeyFile:      os.Getenv("GCS_CREDENTIALS_FILE"),
	}

	cfg.ReadPoolSize = envInt(cfg, "DPDB_READ_POOL_SIZE", 4)
	cfg.Telemetry.Timeout = envDuration(cfg, "DPDB_TELEMETRY_TIMEOUT", 10*time.Second)
	cfg.Telemetry.Retries = envInt(cfg, "DPDB_TELEMETRY_RETRIES", 3)
	cfg.Telemetry.RPS = envFloat(cfg, "DPDB_TELEMETRY_RPS", 5)
	cfg.RateLimitRPS = envFloat(cfg, "RATE_LIMIT_RPS", 50)
	cfg.RateLimitBurst = envInt(cfg, "RATE_LIMIT_BURST", 100)

	// S3 fields are optional; only set if present
	if v := os.Getenv("S3_KEY_ID"); v != "" {
		cfg.S3KeyID = &v
	}
	if v := os.Getenv("S3_SECRET"); v != "" {
		cfg.S3Secret = &v
	}
	if v := os.Getenv("S3_ENDPOINT"); v != "" {
		cfg.S3Endpoint = &v
	}
	if v := os.Getenv("S3_REGION"); v != "" {
		cfg.S3Region = &v
	}

	// CORS
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		origins := strings.Split(v, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		cfg.CORSAllowedOrigins = compactNonEmpty(origins)
	}

	// Defaults
	if cfg.CatalogPath == "" {
		cfg.CatalogPath = "dpdb.sqlite"
	}
	if cfg.PollSchedule == "" {
		cfg.PollSchedule = "@every 5s"
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "json"
	}
	if len(cfg.CORSAllowedOrigins) == 0 {
		cfg.CORSAllowedOrigins = []string{"*"}
	}

	if cfg.Telemetry.DSN != "" && cfg.Telemetry.URL != "" {
		return nil, fmt.Errorf("DPDB_TELEMETRY_DSN and DPDB_TELEMETRY_URL are mutually exclusive")
	}
	if (cfg.S3KeyID == nil) != (cfg.S3Secret == nil) {
		cfg.Warnings = append(cfg.Warnings, "S3_KEY_ID and S3_SECRET must be set together; S3 verification is disabled")
		cfg.S3KeyID, cfg.S3Secret = nil, nil
	}
	if !cfg.Auth.Enabled() {
		cfg.Warnings = append(cfg.Warnings, "write endpoints are unauthenticated: set JWT_SECRET or OIDC_ISSUER_URL")
	}

	// Production mode: insecure defaults are fatal errors.
	if cfg.IsProduction() {
		if !cfg.Auth.Enabled() {
			return nil, fmt.Errorf("bearer auth must be configured in production (set JWT_SECRET or OIDC_ISSUER_URL)")
		}
		if len(cfg.CORSAllowedOrigins) == 1 && cfg.CORSAllowedOrigins[0] == "*" {
			return nil, fmt.Errorf("CORS wildcard (*) is not allowed in production (ENV=production)")
		}
	}

	return cfg, nil
}

func envInt(cfg *Config, key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("%s=%q is not a positive integer, using %d", key, v, def))
		return def
	}
	return n
}

func envFloat(cfg *Config, key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("%s=%q is not a positive number, using %g", key, v, def))
		return def
	}
	return f
}

func envDuration(cfg *Config, key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("%s=%q is not a positive duration, using %s", key, v, def))
		return def
	}
	return d
}

func compactNonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// LoadDotEnv reads a .env file and sets any variables not already in the environment.
// Lines must be in KEY=VALUE format. Comments (#) and blank lines are skipped.
func LoadDotEnv(path string) error {
	f, err := os.Open(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		if os.IsNotExist(err) {
			return nil // .env not found is not an error
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(strings.TrimPrefix(key, "export "))
		value = stripQuotes(strings.TrimSpace(value))
		// Only set if not already in the environment (env vars take precedence)
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("setenv %s: %w", key, err)
			}
		}
	}
	return scanner.Err()
}

// stripQuotes removes surrounding double or single quotes from a value.
func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
