package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

type (
	// Config holds configuration settings for the worker
	Config struct {
		// API Server
		APIHost  string
		APIPort  int
		LogLevel string

		// Controller
		ControllerURL  string
		ConnectionsURL string
		WorkerToken    string

		// Code
		CodeDirectory string
		SandboxMode   SandboxMode
		CodeTimeout   time.Duration
		Expressions   ExpressionLanguage

		// Execution
		MaxPauseDuration time.Duration
		Retry            RetryConfig
		ProgressDebounce time.Duration

		// Stores & Services
		StepStore          StoreConfig
		FileBucketURL      string
		FilePublicURL      string
		MaxFileSize        int
		ConnectionCacheTTL time.Duration
		RunArchiveURL      string
		RunArchivePrefix   string

		ShutdownTimeout time.Duration
	}

	// SandboxMode selects how code units are executed
	SandboxMode string

	// ExpressionLanguage selects the language of {{ }} template tokens
	ExpressionLanguage string

	// RetryConfig configures the exponential retry of failed steps
	RetryConfig struct {
		MaxAttempts int
		Interval    time.Duration
		Exponential int
	}

	// StoreType selects the step store backend
	StoreType string

	// StoreConfig configures the step and run key-value stores
	StoreConfig struct {
		Type       StoreType
		Addr       string
		Password   string
		DB         int
		Prefix     string
		TTL        time.Duration
		MaxRetries int
	}
)

const (
	SandboxDirect   SandboxMode = "direct"
	SandboxIsolated SandboxMode = "isolated"

	ExpressionExpr ExpressionLanguage = "expr"
	ExpressionJS   ExpressionLanguage = "js"
	ExpressionAle  ExpressionLanguage = "ale"

	StoreMemory StoreType = "memory"
	StoreRedis  StoreType = "redis"
)

const (
	DefaultAPIPort = 8081
	DefaultAPIHost = "0.0.0.0"
	MaxTCPPort     = 65535

	DefaultControllerURL  = "ws://localhost:8080/v1/worker/ws"
	DefaultConnectionsURL = "http://localhost:8080"
	DefaultCodeDirectory  = "codes"
	DefaultSandboxMode    = SandboxIsolated
	DefaultCodeTimeout    = 30 * time.Second
	MaxCodeTimeout        = time.Hour
	DefaultExpressions    = ExpressionExpr

	DefaultMaxPauseDuration = 30 * 24 * time.Hour
	DefaultRetryMaxAttempts = 4
	DefaultRetryInterval    = 2 * time.Second
	DefaultRetryExponential = 2
	DefaultProgressDebounce = time.Second
	MaxRetryMaxAttempts     = 100
	MaxRetryExponential     = 10

	DefaultRedisEndpoint   = "localhost:6379"
	DefaultRedisPrefix     = "argyll-worker"
	DefaultRedisDB         = 0
	DefaultStepTTL         = 7 * 24 * time.Hour
	DefaultStoreMaxRetries = 3
	MaxStoreMaxRetries     = 100

	DefaultFileBucketURL      = "mem://"
	DefaultMaxFileSize        = 10 * 1024 * 1024
	MaxMaxFileSize            = 1024 * 1024 * 1024
	DefaultConnectionCacheTTL = time.Minute
	DefaultRunArchivePrefix   = "runs"
	DefaultShutdownTimeout    = 10 * time.Second
)

var (
	ErrInvalidAPIPort     = errors.New("invalid API port")
	ErrInvalidSandboxMode = errors.New("invalid sandbox mode")
	ErrInvalidCodeTimeout = errors.New("code timeout must be positive")
	ErrInvalidExpressions = errors.New("invalid expression language")
	ErrInvalidMaxPause    = errors.New("max pause duration must be positive")
	ErrInvalidRetryMax    = errors.New(
		"retry max attempts cannot be negative",
	)
	ErrInvalidRetryInterval = errors.New(
		"retry interval must be positive",
	)
	ErrInvalidRetryExponential = errors.New(
		"retry exponential must be at least 1",
	)
	ErrInvalidDebounce  = errors.New("progress debounce cannot be negative")
	ErrInvalidStoreType = errors.New("invalid step store type")
	ErrInvalidFileSize  = errors.New("max file size must be positive")
	ErrInvalidDuration  = errors.New("invalid duration")
)

// NewDefaultConfig creates a configuration with sensible defaults for all
// worker settings, stores, and retry behavior
func NewDefaultConfig() *Config {
	return &Config{
		APIHost:          DefaultAPIHost,
		APIPort:          DefaultAPIPort,
		LogLevel:         "info",
		ControllerURL:    DefaultControllerURL,
		ConnectionsURL:   DefaultConnectionsURL,
		CodeDirectory:    DefaultCodeDirectory,
		SandboxMode:      DefaultSandboxMode,
		CodeTimeout:      DefaultCodeTimeout,
		Expressions:      DefaultExpressions,
		MaxPauseDuration: DefaultMaxPauseDuration,
		Retry: RetryConfig{
			MaxAttempts: DefaultRetryMaxAttempts,
			Interval:    DefaultRetryInterval,
			Exponential: DefaultRetryExponential,
		},
		ProgressDebounce: DefaultProgressDebounce,
		StepStore: StoreConfig{
			Type:       StoreMemory,
			Addr:       DefaultRedisEndpoint,
			DB:         DefaultRedisDB,
			Prefix:     DefaultRedisPrefix,
			TTL:        DefaultStepTTL,
			MaxRetries: DefaultStoreMaxRetries,
		},
		FileBucketURL:      DefaultFileBucketURL,
		MaxFileSize:        DefaultMaxFileSize,
		ConnectionCacheTTL: DefaultConnectionCacheTTL,
		RunArchivePrefix:   DefaultRunArchivePrefix,
		ShutdownTimeout:    DefaultShutdownTimeout,
	}
}

// LoadFromEnv populates configuration values from environment variables.
// Returns an error if any env var cannot be parsed.
func (c *Config) LoadFromEnv() error {
	loadEnvString("API_HOST", &c.APIHost)
	loadEnvString("LOG_LEVEL", &c.LogLevel)
	loadEnvString("CONTROLLER_URL", &c.ControllerURL)
	loadEnvString("CONNECTIONS_URL", &c.ConnectionsURL)
	loadEnvString("WORKER_TOKEN", &c.WorkerToken)
	loadEnvString("CODE_DIRECTORY", &c.CodeDirectory)
	loadEnvString("SANDBOX_MODE", &c.SandboxMode)
	loadEnvString("EXPRESSION_LANGUAGE", &c.Expressions)
	loadEnvString("FILE_BUCKET_URL", &c.FileBucketURL)
	loadEnvString("FILE_PUBLIC_URL", &c.FilePublicURL)
	loadEnvString("RUN_ARCHIVE_URL", &c.RunArchiveURL)
	loadEnvString("RUN_ARCHIVE_PREFIX", &c.RunArchivePrefix)
	LoadStoreConfigFromEnv(&c.StepStore, "STEP_STORE")

	if err := loadEnvInt("API_PORT", &c.APIPort, 0, MaxTCPPort); err != nil {
		return err
	}
	if err := loadEnvInt(
		"RETRY_MAX_ATTEMPTS", &c.Retry.MaxAttempts, -1, MaxRetryMaxAttempts,
	); err != nil {
		return err
	}
	if err := loadEnvInt(
		"RETRY_EXPONENTIAL", &c.Retry.Exponential, 0, MaxRetryExponential,
	); err != nil {
		return err
	}
	if err := loadEnvInt(
		"MAX_FILE_SIZE", &c.MaxFileSize, 0, MaxMaxFileSize,
	); err != nil {
		return err
	}
	if err := loadEnvInt(
		"STEP_STORE_MAX_RETRIES", &c.StepStore.MaxRetries, -1,
		MaxStoreMaxRetries,
	); err != nil {
		return err
	}

	for key, dst := range map[string]*time.Duration{
		"CODE_TIMEOUT":         &c.CodeTimeout,
		"MAX_PAUSE_DURATION":   &c.MaxPauseDuration,
		"RETRY_INTERVAL":       &c.Retry.Interval,
		"PROGRESS_DEBOUNCE":    &c.ProgressDebounce,
		"STEP_STORE_TTL":       &c.StepStore.TTL,
		"CONNECTION_CACHE_TTL": &c.ConnectionCacheTTL,
		"SHUTDOWN_TIMEOUT":     &c.ShutdownTimeout,
	} {
		if err := loadEnvDuration(key, dst); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	if c.APIPort <= 0 || c.APIPort > MaxTCPPort {
		return fmt.Errorf("%w: %d", ErrInvalidAPIPort, c.APIPort)
	}

	if c.SandboxMode != SandboxDirect && c.SandboxMode != SandboxIsolated {
		return fmt.Errorf("%w: %s", ErrInvalidSandboxMode, c.SandboxMode)
	}

	switch c.Expressions {
	case ExpressionExpr, ExpressionJS, ExpressionAle:
	default:
		return fmt.Errorf("%w: %s", ErrInvalidExpressions, c.Expressions)
	}

	if c.CodeTimeout <= 0 || c.CodeTimeout > MaxCodeTimeout {
		return ErrInvalidCodeTimeout
	}

	if c.MaxPauseDuration <= 0 {
		return ErrInvalidMaxPause
	}

	if c.Retry.MaxAttempts < 0 {
		return ErrInvalidRetryMax
	}

	if c.Retry.Interval <= 0 {
		return ErrInvalidRetryInterval
	}

	if c.Retry.Exponential < 1 {
		return ErrInvalidRetryExponential
	}

	if c.ProgressDebounce < 0 {
		return ErrInvalidDebounce
	}

	if c.StepStore.Type != StoreMemory && c.StepStore.Type != StoreRedis {
		return fmt.Errorf("%w: %s", ErrInvalidStoreType, c.StepStore.Type)
	}

	if c.MaxFileSize <= 0 {
		return ErrInvalidFileSize
	}

	return nil
}

// LoadStoreConfigFromEnv loads store configuration from environment
// variables with the given prefix (e.g., "STEP_STORE")
func LoadStoreConfigFromEnv(s *StoreConfig, prefix string) {
	loadEnvString(prefix+"_TYPE", &s.Type)
	loadEnvString(prefix+"_REDIS_ADDR", &s.Addr)
	loadEnvString(prefix+"_REDIS_PASSWORD", &s.Password)
	loadEnvString(prefix+"_REDIS_PREFIX", &s.Prefix)
	if dbStr := os.Getenv(prefix + "_REDIS_DB"); dbStr != "" {
		db, err := strconv.Atoi(dbStr)
		if err == nil {
			s.DB = db
		}
	}
}

func loadEnvString[T ~string](key string, dst *T) {
	if v := os.Getenv(key); v != "" {
		*dst = T(v)
	}
}

// loadEnvInt reads key from the environment, parses it as an integer, and
// sets *dst if the value is in the range (min, max]. Returns an error if
// the value cannot be parsed or falls outside the valid range.
func loadEnvInt[T ~int | ~int64](key string, dst *T, min, max T) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %q", key, s)
	}
	tv := T(v)
	if tv <= min || tv > max {
		return fmt.Errorf("invalid %s: %d out of range [%d, %d]",
			key, tv, min+1, max)
	}
	*dst = tv
	return nil
}

// loadEnvDuration accepts Go duration strings ("1500ms", "2s") or a bare
// integer number of milliseconds
func loadEnvDuration(key string, dst *time.Duration) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil && ms >= 0 {
		*dst = time.Duration(ms) * time.Millisecond
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return fmt.Errorf("%w: %s=%q", ErrInvalidDuration, key, s)
	}
	*dst = d
	return nil
}
