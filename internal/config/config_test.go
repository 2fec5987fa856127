package config_test

import (
	"testing"
	"time"

	testify "github.com/stretchr/testify/assert"

	"github.com/kode4food/argyll/worker/internal/assert"
	"github.com/kode4food/argyll/worker/internal/assert/helpers"
	"github.com/kode4food/argyll/worker/internal/config"
)

func TestConfigValidation(t *testing.T) {
	as := assert.New(t)

	t.Run("valid_default_config", func(t *testing.T) {
		cfg := config.NewDefaultConfig()
		as.ConfigValid(cfg)
	})

	t.Run("valid_test_config", func(t *testing.T) {
		cfg := helpers.NewTestConfig()
		as.ConfigValid(cfg)
	})

	tests := []struct {
		name          string
		configMod     func(*config.Config)
		errorContains string
	}{
		{
			name: "invalid_api_port_zero",
			configMod: func(c *config.Config) {
				c.APIPort = 0
			},
			errorContains: "invalid API port",
		},
		{
			name: "invalid_api_port_too_high",
			configMod: func(c *config.Config) {
				c.APIPort = 70000
			},
			errorContains: "invalid API port",
		},
		{
			name: "invalid_sandbox_mode",
			configMod: func(c *config.Config) {
				c.SandboxMode = "docker"
			},
			errorContains: "invalid sandbox mode",
		},
		{
			name: "zero_code_timeout",
			configMod: func(c *config.Config) {
				c.CodeTimeout = 0
			},
			errorContains: "code timeout must be positive",
		},
		{
			name: "zero_max_pause",
			configMod: func(c *config.Config) {
				c.MaxPauseDuration = 0
			},
			errorContains: "max pause duration must be positive",
		},
		{
			name: "negative_retry_attempts",
			configMod: func(c *config.Config) {
				c.Retry.MaxAttempts = -1
			},
			errorContains: "retry max attempts",
		},
		{
			name: "zero_retry_interval",
			configMod: func(c *config.Config) {
				c.Retry.Interval = 0
			},
			errorContains: "retry interval must be positive",
		},
		{
			name: "zero_exponential",
			configMod: func(c *config.Config) {
				c.Retry.Exponential = 0
			},
			errorContains: "retry exponential",
		},
		{
			name: "bad_store_type",
			configMod: func(c *config.Config) {
				c.StepStore.Type = "postgres"
			},
			errorContains: "invalid step store type",
		},
		{
			name: "zero_file_size",
			configMod: func(c *config.Config) {
				c.MaxFileSize = 0
			},
			errorContains: "max file size must be positive",
		},
		{
			name: "unknown expression language",
			configMod: func(c *config.Config) {
				c.Expressions = "python"
			},
			errorContains: "invalid expression language",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := helpers.NewTestConfig()
			tt.configMod(cfg)
			as.ConfigInvalid(cfg, tt.errorContains)
		})
	}
}

func TestDefaultConfigValues(t *testing.T) {
	as := assert.New(t)

	cfg := config.NewDefaultConfig()

	as.Equal(config.DefaultAPIPort, cfg.APIPort)
	as.Equal("0.0.0.0", cfg.APIHost)
	as.Equal(config.SandboxIsolated, cfg.SandboxMode)
	as.Equal(config.DefaultCodeTimeout, cfg.CodeTimeout)
	as.Equal(config.ExpressionExpr, cfg.Expressions)
	as.Equal(time.Second, cfg.ProgressDebounce)
	as.Equal(config.StoreMemory, cfg.StepStore.Type)
	as.Equal(config.DefaultRetryExponential, cfg.Retry.Exponential)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("API_PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("SANDBOX_MODE", "direct")
	t.Setenv("EXPRESSION_LANGUAGE", "ale")
	t.Setenv("CODE_TIMEOUT", "1500ms")
	t.Setenv("RETRY_INTERVAL", "250")
	t.Setenv("RETRY_MAX_ATTEMPTS", "0")
	t.Setenv("STEP_STORE_TYPE", "redis")
	t.Setenv("STEP_STORE_REDIS_ADDR", "redis:6379")
	t.Setenv("STEP_STORE_REDIS_DB", "3")
	t.Setenv("FILE_BUCKET_URL", "file:///tmp/files")
	t.Setenv("CONNECTIONS_URL", "https://api.example.com")
	t.Setenv("RUN_ARCHIVE_URL", "mem://")
	t.Setenv("RUN_ARCHIVE_PREFIX", "archive")

	cfg := config.NewDefaultConfig()
	testify.NoError(t, cfg.LoadFromEnv())

	testify.Equal(t, 9090, cfg.APIPort)
	testify.Equal(t, "debug", cfg.LogLevel)
	testify.Equal(t, config.SandboxDirect, cfg.SandboxMode)
	testify.Equal(t, config.ExpressionAle, cfg.Expressions)
	testify.Equal(t, 1500*time.Millisecond, cfg.CodeTimeout)
	testify.Equal(t, 250*time.Millisecond, cfg.Retry.Interval)
	testify.Equal(t, 0, cfg.Retry.MaxAttempts)
	testify.Equal(t, config.StoreRedis, cfg.StepStore.Type)
	testify.Equal(t, "redis:6379", cfg.StepStore.Addr)
	testify.Equal(t, 3, cfg.StepStore.DB)
	testify.Equal(t, "file:///tmp/files", cfg.FileBucketURL)
	testify.Equal(t, "https://api.example.com", cfg.ConnectionsURL)
	testify.Equal(t, "mem://", cfg.RunArchiveURL)
	testify.Equal(t, "archive", cfg.RunArchivePrefix)
	testify.NoError(t, cfg.Validate())
}

func TestLoadFromEnvErrors(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"API_PORT", "abc"},
		{"API_PORT", "70000"},
		{"RETRY_EXPONENTIAL", "0"},
		{"CODE_TIMEOUT", "soon"},
		{"MAX_FILE_SIZE", "-5"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			cfg := config.NewDefaultConfig()
			testify.Error(t, cfg.LoadFromEnv())
		})
	}
}
