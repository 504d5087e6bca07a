package internal

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment variable the client reads
const EnvPrefix = "MANUALQA_"

// Config holds application configuration. It is fixed once the request
// pipeline has been built.
type Config struct {
	APIBaseURL       string `koanf:"api_url"`
	RequestTimeout   int    `koanf:"timeout"`        // seconds
	UploadTimeout    int    `koanf:"upload_timeout"` // seconds
	MaxRequestSize   string `koanf:"max_request_size"`
	RateLimitMaxWait int    `koanf:"rate_limit_max_wait"` // seconds
	ProxyURL         string `koanf:"proxy"`

	// Capability resolution
	Runtime         string `koanf:"runtime"`
	DataDir         string `koanf:"data_dir"`
	KeyringService  string `koanf:"keyring_service"`
	RecorderCommand string `koanf:"recorder"`

	Trace bool `koanf:"trace"`

	// Logging configuration
	LogLevel    string `koanf:"log_level"`
	EnableDebug bool   `koanf:"debug"`
	QuietMode   bool   `koanf:"quiet"`
	LogFile     string `koanf:"log_file"`

	maxRequestBytes int64
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		APIBaseURL:       "https://api.manualqa.app/v1",
		RequestTimeout:   30,
		UploadTimeout:    120,
		MaxRequestSize:   "25M",
		RateLimitMaxWait: 30,
		DataDir:          defaultDataDir(),
		KeyringService:   "manualqa",

		// Logging defaults
		LogLevel:    "info",
		EnableDebug: false,
		QuietMode:   false,
		LogFile:     "", // Empty means stderr
	}
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil && dir != "" {
		return filepath.Join(dir, "manualqa")
	}
	return ".manualqa"
}

// DefaultConfigPath is where LoadConfig looks when no path is given
func DefaultConfigPath() string {
	return filepath.Join(defaultDataDir(), "config.yaml")
}

// LoadConfig layers the defaults, an optional YAML file and MANUALQA_*
// environment variables, in that order.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	k := koanf.New(".")

	explicit := path != ""
	if !explicit {
		path = DefaultConfigPath()
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		// A missing default file is fine; a missing explicit one is not
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: load %s: %v", ErrInvalidConfig, path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("%w: environment: %v", ErrInvalidConfig, err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	return cfg, nil
}

// GetEnvWithDefault returns environment variable value or default
func GetEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// ValidateConfig validates the configuration values. Every failure wraps
// ErrInvalidConfig and is fatal.
func (c *Config) ValidateConfig() error {
	u, err := url.Parse(c.APIBaseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%w: api url must be an absolute http(s) URL, got %q", ErrInvalidConfig, c.APIBaseURL)
	}

	if c.RequestTimeout < 1 {
		return fmt.Errorf("%w: invalid request timeout: %d (must be > 0)", ErrInvalidConfig, c.RequestTimeout)
	}

	if c.UploadTimeout < c.RequestTimeout {
		return fmt.Errorf("%w: upload timeout (%d) must not be shorter than request timeout (%d)", ErrInvalidConfig, c.UploadTimeout, c.RequestTimeout)
	}

	if c.RateLimitMaxWait < 0 {
		return fmt.Errorf("%w: invalid rate limit max wait: %d (must be >= 0)", ErrInvalidConfig, c.RateLimitMaxWait)
	}

	size, err := ParseByteSize(c.MaxRequestSize)
	if err != nil {
		return fmt.Errorf("%w: max request size: %v", ErrInvalidConfig, err)
	}
	if size <= 0 {
		return fmt.Errorf("%w: max request size must be positive", ErrInvalidConfig)
	}
	c.maxRequestBytes = size

	if c.DataDir == "" {
		return fmt.Errorf("%w: data directory cannot be empty", ErrInvalidConfig)
	}

	return nil
}

// MaxRequestBytes is the parsed MaxRequestSize. ValidateConfig must have run.
func (c *Config) MaxRequestBytes() int64 {
	if c.maxRequestBytes == 0 {
		if size, err := ParseByteSize(c.MaxRequestSize); err == nil {
			c.maxRequestBytes = size
		}
	}
	return c.maxRequestBytes
}

// Timeout is the per-attempt timeout for ordinary requests
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

// UploadTimeoutDuration is the per-attempt timeout for large uploads
func (c *Config) UploadTimeoutDuration() time.Duration {
	return time.Duration(c.UploadTimeout) * time.Second
}

// RateLimitCeiling is the longest 429 wait the pipeline accepts before failing fast
func (c *Config) RateLimitCeiling() time.Duration {
	return time.Duration(c.RateLimitMaxWait) * time.Second
}
