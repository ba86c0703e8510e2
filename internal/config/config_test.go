package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toltec-dpdb/internal/completion"
	"toltec-dpdb/internal/domain"
	"toltec-dpdb/internal/testutil"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"DPDB_CATALOG_PATH", "DPDB_READ_POOL_SIZE", "DPDB_TELEMETRY_DSN", "DPDB_TELEMETRY_URL",
		"DPDB_TELEMETRY_TIMEOUT", "DPDB_TELEMETRY_RETRIES", "DPDB_TELEMETRY_RPS",
		"DPDB_INSTRUMENT_FILE", "DPDB_POLL_SCHEDULE", "LISTEN_ADDR", "JWT_SECRET",
		"OIDC_ISSUER_URL", "OIDC_AUDIENCE", "CORS_ALLOWED_ORIGINS", "RATE_LIMIT_RPS",
		"RATE_LIMIT_BURST", "LOG_LEVEL", "LOG_FORMAT", "ENV", "S3_ENDPOINT", "S3_REGION",
		"S3_KEY_ID", "S3_SECRET", "AZURE_STORAGE_ACCOUNT_URL", "GCS_ENDPOINT",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "dpdb.sqlite", cfg.CatalogPath)
	assert.Equal(t, 4, cfg.ReadPoolSize)
	assert.Equal(t, "@every 5s", cfg.PollSchedule)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, 10*time.Second, cfg.Telemetry.Timeout)
	assert.Equal(t, 3, cfg.Telemetry.Retries)
	assert.Equal(t, 5.0, cfg.Telemetry.RPS)
	assert.Equal(t, 50.0, cfg.RateLimitRPS)
	assert.Equal(t, 100, cfg.RateLimitBurst)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Nil(t, cfg.S3KeyID)
	assert.False(t, cfg.HasS3Config())
	assert.False(t, cfg.Auth.Enabled())
	assert.Len(t, cfg.Warnings, 1)
}

func TestLoadFromEnv_AllVarsSet(t *testing.T) {
	clearEnv(t)
	t.Setenv("DPDB_CATALOG_PATH", "/tmp/cat.sqlite")
	t.Setenv("DPDB_READ_POOL_SIZE", "8")
	t.Setenv("DPDB_TELEMETRY_URL", "http://tel:9000")
	t.Setenv("DPDB_TELEMETRY_TIMEOUT", "2s")
	t.Setenv("S3_KEY_ID", "key")
	t.Setenv("S3_SECRET", "secret")
	t.Setenv("S3_ENDPOINT", "minio:9000")
	t.Setenv("JWT_SECRET", "s")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example,")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/cat.sqlite", cfg.CatalogPath)
	assert.Equal(t, 8, cfg.ReadPoolSize)
	assert.Equal(t, "http://tel:9000", cfg.Telemetry.URL)
	assert.Equal(t, 2*time.Second, cfg.Telemetry.Timeout)
	assert.True(t, cfg.HasS3Config())
	require.NotNil(t, cfg.S3Endpoint)
	assert.Equal(t, "minio:9000", *cfg.S3Endpoint)
	assert.True(t, cfg.Auth.Enabled())
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
	assert.Empty(t, cfg.Warnings)
}

func TestLoadFromEnv_InvalidNumbersWarn(t *testing.T) {
	clearEnv(t)
	t.Setenv("DPDB_READ_POOL_SIZE", "many")
	t.Setenv("DPDB_TELEMETRY_TIMEOUT", "-1s")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.ReadPoolSize)
	assert.Equal(t, 10*time.Second, cfg.Telemetry.Timeout)
	assert.Len(t, cfg.Warnings, 3)
}

func TestLoadFromEnv_PartialS3IsDropped(t *testing.T) {
	clearEnv(t)
	t.Setenv("S3_KEY_ID", "key")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.False(t, cfg.HasS3Config())
	assert.Nil(t, cfg.S3KeyID)
}

func TestLoadFromEnv_Errors(t *testing.T) {
	t.Run("two telemetry sources", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("DPDB_TELEMETRY_DSN", "tel.sqlite")
		t.Setenv("DPDB_TELEMETRY_URL", "http://tel")
		_, err := LoadFromEnv()
		assert.Error(t, err)
	})
	t.Run("production without auth", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ENV", "production")
		t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example")
		_, err := LoadFromEnv()
		assert.Error(t, err)
	})
	t.Run("production with wildcard cors", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ENV", "production")
		t.Setenv("JWT_SECRET", "s")
		_, err := LoadFromEnv()
		assert.Error(t, err)
	})
}

func TestSlogLevel(t *testing.T) {
	for in, want := range map[string]string{"debug": "DEBUG", "WARN": "WARN", "error": "ERROR", "": "INFO", "bogus": "INFO"} {
		cfg := &Config{LogLevel: in}
		assert.Equal(t, want, cfg.SlogLevel().String(), in)
	}
}

func TestLoadDotEnv(t *testing.T) {
	t.Setenv("TEST_PRECEDENCE_KEY", "from_env")
	t.Setenv("TEST_KEY", "")
	t.Setenv("TEST_QUOTED", "")

	envFile := filepath.Join(t.TempDir(), ".env")
	content := "# comment\n\nTEST_KEY=test_value\nexport TEST_QUOTED=\"quoted value\"\nTEST_PRECEDENCE_KEY=from_file\nnot a pair\n"
	require.NoError(t, os.WriteFile(envFile, []byte(content), 0o644))

	require.NoError(t, LoadDotEnv(envFile))
	assert.Equal(t, "test_value", os.Getenv("TEST_KEY"))
	assert.Equal(t, "quoted value", os.Getenv("TEST_QUOTED"))
	assert.Equal(t, "from_env", os.Getenv("TEST_PRECEDENCE_KEY"))

	assert.NoError(t, LoadDotEnv("/nonexistent/.env"))
}

func TestLoadProfile_DefaultWhenEmpty(t *testing.T) {
	p, err := LoadProfile("")
	require.NoError(t, err)
	assert.Equal(t, "toltec", p.Name)
	assert.Equal(t, completion.DefaultConfig().ExpectedParts, p.WatcherConfig().ExpectedParts)
	require.NoError(t, p.Validate())
	locs := p.DomainLocations()
	require.Len(t, locs, 1)
	assert.Equal(t, domain.LocationFilesystem, locs[0].Type)
}

func TestParseProfile(t *testing.T) {
	raw := `
name: toltec
expected_parts: 13
disabled_parts: [5]
validation_timeout: 45s
retry_on_incomplete: false
groups:
  - {name: a1100, first: 0, last: 6}
  - {name: a1400, first: 7, last: 10}
  - {name: a2000, first: 11, last: 12}
locations:
  - {label: lmt, type: filesystem, root_uri: "file:///data_lmt", priority: 0}
  - {label: archive, type: s3, root_uri: "s3://toltec-archive", priority: 1}
`
	p, err := ParseProfile([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, p.ValidationTimeout)
	assert.False(t, p.RetryOnIncomplete)
	assert.Equal(t, []int{5}, p.WatcherConfig().DisabledParts)
	require.Len(t, p.DomainLocations(), 2)
	assert.Equal(t, 1, p.DomainLocations()[1].Priority)

	_, err = completion.NewWatcher(p.WatcherConfig(), testutil.NewFakeTelemetry(), nil)
	require.NoError(t, err)
}

func TestParseProfile_Rejects(t *testing.T) {
	base := "name: x\nexpected_parts: 2\ngroups:\n  - {name: g, first: 0, last: 1}\n"
	tests := []struct {
		name string
		raw  string
	}{
		{"unknown key", base + "colour: red\n"},
		{"missing name", "expected_parts: 2\ngroups:\n  - {name: g, first: 0, last: 1}\n"},
		{"gap in groups", "name: x\nexpected_parts: 3\ngroups:\n  - {name: g, first: 0, last: 1}\n"},
		{"disabled out of range", base + "disabled_parts: [2]\n"},
		{"all disabled", base + "disabled_parts: [0, 1]\n"},
		{"bad location type", base + "locations:\n  - {label: l, type: ftp, root_uri: ftp://x}\n"},
		{"duplicate location", base + "locations:\n  - {label: l, type: filesystem, root_uri: /a}\n  - {label: l, type: filesystem, root_uri: /b}\n"},
		{"bad duration", base + "validation_timeout: soon\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseProfile([]byte(tt.raw))
			assert.Error(t, err)
		})
	}
}

func TestLoadProfile_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "instrument.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: x\nexpected_parts: 1\ngroups:\n  - {name: g, first: 0, last: 0}\n"), 0o644))
	p, err := LoadProfile(path)
	require.NoError(t, err)
	assert.Equal(t, completion.DefaultValidationTimeout, p.ValidationTimeout)
	assert.True(t, p.RetryOnIncomplete)

	_, err = LoadProfile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
