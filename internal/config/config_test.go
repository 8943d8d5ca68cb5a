package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("FileOverridesDefaults", func(t *testing.T) {
		path := writeConfig(t, `
server:
  port: 9100
privacy:
  preserve_structure: true
  disable_name_masking: true
  match_timeout: 250ms
  custom_rules:
    - name: diary_id
      pattern: '(?<=diary-)\d{4}'
logging:
  level: debug
  format: console
batch:
  worker_count: 8
  output_format: parquet
`)
		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, 9100, cfg.Server.Port)
		assert.True(t, cfg.Privacy.PreserveStructure)
		assert.True(t, cfg.Privacy.DisableNameMasking)
		assert.False(t, cfg.Privacy.DisablePathMasking)
		assert.Equal(t, 250*time.Millisecond, cfg.Privacy.MatchTimeout)
		require.Len(t, cfg.Privacy.CustomRules, 1)
		assert.Equal(t, "diary_id", cfg.Privacy.CustomRules[0].Name)
		assert.Equal(t, "debug", cfg.Logging.Level)
		assert.Equal(t, 8, cfg.Batch.WorkerCount)
		assert.Equal(t, "parquet", cfg.Batch.OutputFormat)

		// untouched sections keep their defaults
		assert.Equal(t, "memory", cfg.Telemetry.Backend)
		assert.Equal(t, GetDefaults().Upstream.OpenAI, cfg.Upstream.OpenAI)
	})

	t.Run("EnvironmentOverridesFile", func(t *testing.T) {
		path := writeConfig(t, "server:\n  port: 9100\n")
		t.Setenv("SENTINEL_SERVER_PORT", "9200")
		t.Setenv("SENTINEL_PRIVACY_DISABLE_PATH_MASKING", "true")

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, 9200, cfg.Server.Port)
		assert.True(t, cfg.Privacy.DisablePathMasking)
	})

	t.Run("InvalidFile", func(t *testing.T) {
		path := writeConfig(t, "server: [not, a, map")
		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("InvalidValues", func(t *testing.T) {
		path := writeConfig(t, "logging:\n  level: verbose\n")
		_, err := Load(path)
		assert.ErrorContains(t, err, "invalid log level")
	})
}

func TestValidate(t *testing.T) {
	require.NoError(t, Validate(GetDefaults()))

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"Port", func(c *Config) { c.Server.Port = 70000 }, "invalid server port"},
		{"LogFormat", func(c *Config) { c.Logging.Format = "xml" }, "invalid log format"},
		{"RateLimit", func(c *Config) { c.RateLimit.RequestsPerMin = 0 }, "invalid rate limit"},
		{"TelemetryBackend", func(c *Config) { c.Telemetry.Backend = "statsd" }, "invalid telemetry backend"},
		{"AuditWithoutDatabase", func(c *Config) {
			c.Audit.Enabled = true
			c.Audit.DatabaseURL = ""
		}, "database_url"},
		{"BatchFormat", func(c *Config) { c.Batch.OutputFormat = "csv" }, "invalid batch output format"},
		{"CustomRuleWithoutPattern", func(c *Config) {
			c.Privacy.CustomRules = []CustomRuleConfig{{Name: "ticket"}}
		}, "custom rule 0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaults()
			tt.mutate(cfg)
			assert.ErrorContains(t, Validate(cfg), tt.want)
		})
	}

	t.Run("RateLimitIgnoredWhenDisabled", func(t *testing.T) {
		cfg := GetDefaults()
		cfg.RateLimit.Enabled = false
		cfg.RateLimit.RequestsPerMin = 0
		assert.NoError(t, Validate(cfg))
	})
}
