package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate runs Load from an empty directory so no stray config.yaml is
// picked up.
func isolate(t *testing.T) {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "https://graph.microsoft.com/", cfg.Graph.BaseURL)
	assert.Equal(t, "beta", cfg.Graph.APIVersion)
	assert.Equal(t, 999, cfg.Graph.PageSize)
	assert.Equal(t, 60*time.Second, cfg.Graph.Timeout)
	assert.True(t, cfg.Graph.Chase)
	assert.True(t, cfg.Retry.Enabled)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, 3*time.Second, cfg.Retry.WaitMin)
	assert.Equal(t, 5*time.Second, cfg.Retry.WaitMax)
	assert.True(t, cfg.Concurrency.Enabled)
	assert.Equal(t, 30, cfg.Partition.Days)
	assert.Equal(t, 10*time.Minute, cfg.Token.RefreshMargin)
	assert.False(t, cfg.Throttle.Shared)
}

func TestLoad_FileAndEnv(t *testing.T) {
	isolate(t)

	path := filepath.Join(t.TempDir(), "harvest.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
tenant:
  tenant_id: contoso
  client_id: app
graph:
  page_size: 500
  timeout: 2m
concurrency:
  max_workers: 4
logging:
  format: json
`), 0o600))

	t.Setenv("GRAPH_HARVEST_TENANT_CLIENT_SECRET", "s3cret")
	t.Setenv("GRAPH_HARVEST_CONCURRENCY_MAX_WORKERS", "8")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "contoso", cfg.Tenant.TenantID)
	assert.Equal(t, "app", cfg.Tenant.ClientID)
	assert.Equal(t, "s3cret", cfg.Tenant.ClientSecret)
	assert.Equal(t, 500, cfg.Graph.PageSize)
	assert.Equal(t, 2*time.Minute, cfg.Graph.Timeout)
	assert.Equal(t, 8, cfg.Concurrency.MaxWorkers, "env overrides file")
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_ExplicitPathMissing(t *testing.T) {
	isolate(t)

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config")
}

func TestLoad_InvalidValue(t *testing.T) {
	isolate(t)
	t.Setenv("GRAPH_HARVEST_GRAPH_PAGE_SIZE", "1000")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "graph.page_size")
}

func validConfig() *Config {
	return &Config{
		Graph:       GraphConfig{BaseURL: "https://graph.microsoft.com/", PageSize: 999},
		Retry:       RetryConfig{MaxAttempts: 5, WaitMin: 3 * time.Second, WaitMax: 5 * time.Second},
		Concurrency: ConcurrencyConfig{MaxWorkers: 10},
		Partition:   PartitionConfig{Days: 30},
		Logging:     LoggingConfig{Level: "info", Format: "console"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantKey string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "empty base url", mutate: func(c *Config) { c.Graph.BaseURL = "" }, wantKey: "graph.base_url"},
		{name: "zero page size", mutate: func(c *Config) { c.Graph.PageSize = 0 }, wantKey: "graph.page_size"},
		{name: "zero attempts", mutate: func(c *Config) { c.Retry.MaxAttempts = 0 }, wantKey: "retry.max_attempts"},
		{name: "inverted waits", mutate: func(c *Config) { c.Retry.WaitMin = time.Minute }, wantKey: "retry.wait_min"},
		{name: "zero workers", mutate: func(c *Config) { c.Concurrency.MaxWorkers = 0 }, wantKey: "concurrency.max_workers"},
		{name: "zero days", mutate: func(c *Config) { c.Partition.Days = 0 }, wantKey: "partition.days"},
		{name: "bad level", mutate: func(c *Config) { c.Logging.Level = "loud" }, wantKey: "logging level"},
		{name: "bad format", mutate: func(c *Config) { c.Logging.Format = "xml" }, wantKey: "logging format"},
		{name: "negative margin", mutate: func(c *Config) { c.Token.RefreshMargin = -time.Second }, wantKey: "token.refresh_margin"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := validate(cfg)
			if tt.wantKey == "" {
				if err != nil {
					t.Errorf("validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("validate() = nil, want error mentioning %q", tt.wantKey)
			}
			if !strings.Contains(err.Error(), tt.wantKey) {
				t.Errorf("validate() error = %v, want mention of %q", err, tt.wantKey)
			}
		})
	}
}
