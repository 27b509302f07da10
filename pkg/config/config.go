// Package config loads harvester configuration from a YAML file and
// GRAPH_HARVEST_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g.
// GRAPH_HARVEST_TENANT_CLIENT_SECRET.
const EnvPrefix = "GRAPH_HARVEST"

// Load loads the configuration. An explicit configPath must exist; without
// one the standard locations are searched and a missing file is not an
// error.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")

		v.AddConfigPath(".")

		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".graph-harvest"))
		}

		v.AddConfigPath("/etc/graph-harvest/")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values. Every key is registered
// so that AutomaticEnv can override it.
func setDefaults(v *viper.Viper) {
	v.SetDefault("tenant.tenant_id", "")
	v.SetDefault("tenant.client_id", "")
	v.SetDefault("tenant.client_secret", "")
	v.SetDefault("tenant.authority_host", "")

	v.SetDefault("graph.base_url", "https://graph.microsoft.com/")
	v.SetDefault("graph.api_version", "beta")
	v.SetDefault("graph.page_size", 999)
	v.SetDefault("graph.timeout", "60s")
	v.SetDefault("graph.requests_per_second", 0)
	v.SetDefault("graph.chase", true)
	v.SetDefault("graph.max_pages", 0)

	v.SetDefault("retry.enabled", true)
	v.SetDefault("retry.max_attempts", 5)
	v.SetDefault("retry.wait_min", "3s")
	v.SetDefault("retry.wait_max", "5s")

	v.SetDefault("concurrency.enabled", true)
	v.SetDefault("concurrency.max_workers", 10)

	v.SetDefault("partition.days", 30)
	v.SetDefault("partition.alphabet", "abcdefghijklmnopqrstuvwxyz")

	v.SetDefault("output.file", "")

	v.SetDefault("logging.enabled", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("throttle.shared", false)
	v.SetDefault("throttle.redis_addr", "")
	v.SetDefault("throttle.redis_password", "")
	v.SetDefault("throttle.redis_db", 0)

	v.SetDefault("metrics.addr", "")

	v.SetDefault("token.refresh_margin", "10m")
}

// validate checks if the configuration is valid. Tenant credentials are
// checked by the auth package when the credential source is built.
func validate(cfg *Config) error {
	if cfg.Graph.BaseURL == "" {
		return fmt.Errorf("graph.base_url is required")
	}

	if cfg.Graph.PageSize < 1 || cfg.Graph.PageSize > 999 {
		return fmt.Errorf("graph.page_size must be between 1 and 999 (got %d)", cfg.Graph.PageSize)
	}

	if cfg.Graph.Timeout < 0 {
		return fmt.Errorf("graph.timeout must not be negative")
	}

	if cfg.Graph.RequestsPerSecond < 0 {
		return fmt.Errorf("graph.requests_per_second must not be negative")
	}

	if cfg.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be >= 1 (got %d)", cfg.Retry.MaxAttempts)
	}

	if cfg.Retry.WaitMin < 0 || cfg.Retry.WaitMax < cfg.Retry.WaitMin {
		return fmt.Errorf("retry.wait_min must be <= retry.wait_max")
	}

	if cfg.Concurrency.MaxWorkers < 1 {
		return fmt.Errorf("concurrency.max_workers must be >= 1 (got %d)", cfg.Concurrency.MaxWorkers)
	}

	if cfg.Partition.Days < 1 {
		return fmt.Errorf("partition.days must be >= 1 (got %d)", cfg.Partition.Days)
	}

	validLevels := map[string]bool{
		"trace": true,
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[cfg.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s", cfg.Logging.Level)
	}

	validFormats := map[string]bool{
		"console": true,
		"json":    true,
	}
	if !validFormats[cfg.Logging.Format] {
		return fmt.Errorf("invalid logging format: %s", cfg.Logging.Format)
	}

	if cfg.Token.RefreshMargin < 0 {
		return fmt.Errorf("token.refresh_margin must not be negative")
	}

	return nil
}
