package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Loader reads configuration from file, .env and environment variables and
// can watch the file for changes.
type Loader struct {
	v  *viper.Viper
	mu sync.Mutex
}

// NewLoader creates a loader with the standard search paths
func NewLoader() *Loader {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/journal-sentinel/")
	v.AddConfigPath("$HOME/.journal-sentinel/")

	// Environment variable overrides
	v.SetEnvPrefix("SENTINEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	registerDefaults(v, GetDefaults())

	return &Loader{v: v}
}

// Load is a shortcut for NewLoader().Load(configPath)
func Load(configPath string) (*Config, error) {
	return NewLoader().Load(configPath)
}

// Load loads configuration from file and environment variables
func (l *Loader) Load(configPath string) (*Config, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	// A missing .env is normal outside development
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	if configPath != "" {
		l.v.SetConfigFile(configPath)
	}

	if err := l.v.ReadInConfig(); err != nil {
		// Config file not found is not an error - we'll use defaults
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return l.decode()
}

func (l *Loader) decode() (*Config, error) {
	config := GetDefaults()
	if err := l.v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Watch starts watching the configuration file for changes. Invalid
// revisions are reported to onError and the previous config stays in effect.
func (l *Loader) Watch(callback func(*Config), onError func(error)) {
	l.v.OnConfigChange(func(e fsnotify.Event) {
		l.mu.Lock()
		newConfig, err := l.decode()
		l.mu.Unlock()
		if err != nil {
			if onError != nil {
				onError(fmt.Errorf("reload %s: %w", e.Name, err))
			}
			return
		}
		callback(newConfig)
	})
	l.v.WatchConfig()
}

// Validate validates a configuration
func Validate(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	switch config.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", config.Logging.Level)
	}

	if config.Logging.Format != "json" && config.Logging.Format != "console" {
		return fmt.Errorf("invalid log format: %s (must be json or console)", config.Logging.Format)
	}

	if config.RateLimit.Enabled && config.RateLimit.RequestsPerMin <= 0 {
		return fmt.Errorf("invalid rate limit: %d requests per minute", config.RateLimit.RequestsPerMin)
	}

	if config.Telemetry.Enabled && config.Telemetry.Backend != "memory" && config.Telemetry.Backend != "redis" {
		return fmt.Errorf("invalid telemetry backend: %s (must be memory or redis)", config.Telemetry.Backend)
	}

	if config.Audit.Enabled && config.Audit.DatabaseURL == "" {
		return fmt.Errorf("audit is enabled but no database_url is set")
	}

	if config.Batch.OutputFormat != "jsonl" && config.Batch.OutputFormat != "parquet" {
		return fmt.Errorf("invalid batch output format: %s (must be jsonl or parquet)", config.Batch.OutputFormat)
	}

	for i, rule := range config.Privacy.CustomRules {
		if rule.Name == "" || rule.Pattern == "" {
			return fmt.Errorf("custom rule %d needs both name and pattern", i)
		}
	}

	return nil
}

// registerDefaults makes the commonly overridden keys known to viper so that
// AutomaticEnv picks them up without a config file.
func registerDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.max_body_bytes", d.Server.MaxBodyBytes)
	v.SetDefault("privacy.enabled", d.Privacy.Enabled)
	v.SetDefault("privacy.preserve_structure", d.Privacy.PreserveStructure)
	v.SetDefault("privacy.disable_name_masking", d.Privacy.DisableNameMasking)
	v.SetDefault("privacy.disable_path_masking", d.Privacy.DisablePathMasking)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("upstream.openai", d.Upstream.OpenAI)
	v.SetDefault("upstream.anthropic", d.Upstream.Anthropic)
	v.SetDefault("upstream.ollama", d.Upstream.Ollama)
	v.SetDefault("rate_limit.enabled", d.RateLimit.Enabled)
	v.SetDefault("rate_limit.requests_per_min", d.RateLimit.RequestsPerMin)
	v.SetDefault("rate_limit.trust_forwarded_for", d.RateLimit.TrustForwardedFor)
	v.SetDefault("telemetry.enabled", d.Telemetry.Enabled)
	v.SetDefault("telemetry.backend", d.Telemetry.Backend)
	v.SetDefault("telemetry.redis_url", d.Telemetry.RedisURL)
	v.SetDefault("audit.enabled", d.Audit.Enabled)
	v.SetDefault("audit.database_url", d.Audit.DatabaseURL)
	v.SetDefault("batch.worker_count", d.Batch.WorkerCount)
	v.SetDefault("batch.output_format", d.Batch.OutputFormat)
}
