package config

import "time"

// Config represents the complete configuration structure.
type Config struct {
	Tenant      TenantConfig      `mapstructure:"tenant"`
	Graph       GraphConfig       `mapstructure:"graph"`
	Retry       RetryConfig       `mapstructure:"retry"`
	Concurrency ConcurrencyConfig `mapstructure:"concurrency"`
	Partition   PartitionConfig   `mapstructure:"partition"`
	Output      OutputConfig      `mapstructure:"output"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Throttle    ThrottleConfig    `mapstructure:"throttle"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Token       TokenConfig       `mapstructure:"token"`
}

// TenantConfig holds the app registration used for the client-credentials
// grant.
type TenantConfig struct {
	TenantID      string `mapstructure:"tenant_id"`
	ClientID      string `mapstructure:"client_id"`
	ClientSecret  string `mapstructure:"client_secret"`
	AuthorityHost string `mapstructure:"authority_host"`
}

// GraphConfig holds Graph endpoint and request settings.
type GraphConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	APIVersion        string        `mapstructure:"api_version"`
	PageSize          int           `mapstructure:"page_size"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Chase             bool          `mapstructure:"chase"`
	MaxPages          int           `mapstructure:"max_pages"`
}

// RetryConfig holds throttling retry settings.
type RetryConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	WaitMin     time.Duration `mapstructure:"wait_min"`
	WaitMax     time.Duration `mapstructure:"wait_max"`
}

// ConcurrencyConfig controls partitioned fan-out.
type ConcurrencyConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	MaxWorkers int  `mapstructure:"max_workers"`
}

// PartitionConfig controls how collections are split.
type PartitionConfig struct {
	Days     int    `mapstructure:"days"`
	Alphabet string `mapstructure:"alphabet"`
}

// OutputConfig names the result file.
type OutputConfig struct {
	File string `mapstructure:"file"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Level   string `mapstructure:"level"`
	Format  string `mapstructure:"format"`
}

// ThrottleConfig controls the shared back-off gate.
type ThrottleConfig struct {
	Shared        bool   `mapstructure:"shared"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// TokenConfig controls credential refresh.
type TokenConfig struct {
	RefreshMargin time.Duration `mapstructure:"refresh_margin"`
}
