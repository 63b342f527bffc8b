package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gavelhq/gavel/internal/domain/tier"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "gavel.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// The YAML file is optional; a missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "GAVEL_PORT")
	setString(&cfg.Server.CORSOrigin, "GAVEL_CORS_ORIGIN")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "GAVEL_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "GAVEL_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "GAVEL_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "GAVEL_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "GAVEL_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setInt64(&cfg.GitHub.AppID, "GAVEL_GITHUB_APP_ID")
	setString(&cfg.GitHub.PrivateKey, "GAVEL_GITHUB_PRIVATE_KEY")
	setString(&cfg.GitHub.PrivateKeyFile, "GAVEL_GITHUB_PRIVATE_KEY_FILE")
	setString(&cfg.GitHub.WebhookSecret, "GAVEL_GITHUB_WEBHOOK_SECRET")
	setString(&cfg.GitHub.APIBaseURL, "GAVEL_GITHUB_API_BASE_URL")
	setString(&cfg.AI.ProxyURL, "GAVEL_AI_PROXY_URL")
	setString(&cfg.AI.MasterKey, "GAVEL_AI_MASTER_KEY")
	setTier(&cfg.AI.DefaultTier, "GAVEL_AI_DEFAULT_TIER")
	setTier(&cfg.AI.MaxTier, "GAVEL_AI_MAX_TIER")
	setInt(&cfg.AI.MaxOutputTokens, "GAVEL_AI_MAX_OUTPUT_TOKENS")
	setString(&cfg.AI.SmartModel, "GAVEL_AI_SMART_MODEL")
	setString(&cfg.AI.CheapModel, "GAVEL_AI_CHEAP_MODEL")
	setString(&cfg.AI.LocalModel, "GAVEL_AI_LOCAL_MODEL")
	setBool(&cfg.Agents.Security.Enabled, "GAVEL_AGENT_SECURITY_ENABLED")
	setInt(&cfg.Agents.Security.MaxContextFiles, "GAVEL_AGENT_SECURITY_MAX_FILES")
	setBool(&cfg.Agents.Performance.Enabled, "GAVEL_AGENT_PERFORMANCE_ENABLED")
	setInt(&cfg.Agents.Performance.MaxContextFiles, "GAVEL_AGENT_PERFORMANCE_MAX_FILES")
	setBool(&cfg.Agents.Architecture.Enabled, "GAVEL_AGENT_ARCHITECTURE_ENABLED")
	setInt(&cfg.Agents.Architecture.MaxContextFiles, "GAVEL_AGENT_ARCHITECTURE_MAX_FILES")
	setDuration(&cfg.Review.AgentTimeout, "GAVEL_REVIEW_AGENT_TIMEOUT")
	setInt(&cfg.Review.MaxParallel, "GAVEL_REVIEW_MAX_PARALLEL")
	setInt64(&cfg.Cache.MaxSizeMB, "GAVEL_CACHE_SIZE_MB")
	setInt(&cfg.Breaker.MaxFailures, "GAVEL_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "GAVEL_BREAKER_TIMEOUT")
	setString(&cfg.Logging.Level, "GAVEL_LOG_LEVEL")
	setString(&cfg.Logging.Service, "GAVEL_LOG_SERVICE")
	setBool(&cfg.Otel.Enabled, "GAVEL_OTEL_ENABLED")
	setString(&cfg.Otel.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.NATS.URL == "" {
		return errors.New("nats.url is required")
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if !cfg.AI.DefaultTier.Valid() {
		return fmt.Errorf("ai.default_tier %q is not a known tier", cfg.AI.DefaultTier)
	}
	if !cfg.AI.MaxTier.Valid() {
		return fmt.Errorf("ai.max_tier %q is not a known tier", cfg.AI.MaxTier)
	}
	if cfg.Review.AgentTimeout <= 0 {
		return errors.New("review.agent_timeout must be positive")
	}
	if cfg.Review.MaxParallel < 1 {
		return errors.New("review.max_parallel must be >= 1")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

func setTier(dst *tier.Tier, key string) {
	if v := os.Getenv(key); v != "" {
		if t, err := tier.Parse(v); err == nil {
			*dst = t
		}
	}
}
