// Package config loads the CLI configuration from a YAML file, a .env file
// and the environment, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/Sternrassler/fount-client/pkg/client"
	"github.com/Sternrassler/fount-client/pkg/logging"
	"github.com/Sternrassler/fount-client/pkg/pagination"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

// Environment variables.
const (
	EnvAPIKey    = "FOUNT_API_KEY"
	EnvBaseURL   = "FOUNT_BASE_URL"
	EnvLogLevel  = "FOUNT_LOG_LEVEL"
	EnvLogPretty = "FOUNT_LOG_PRETTY"
	EnvRedisURL  = "REDIS_URL"
)

// ErrMissingAPIKey is returned by Validate when no token is configured.
var ErrMissingAPIKey = errors.New("api key is required (set " + EnvAPIKey + ")")

// Config is the CLI configuration.
type Config struct {
	APIKey    string  `yaml:"api_key"`
	BaseURL   string  `yaml:"base_url"`
	RateLimit float64 `yaml:"rate_limit"`

	LogLevel  string `yaml:"log_level"`
	LogPretty bool   `yaml:"log_pretty"`

	// RedisURL enables the shared rate limit store, e.g. redis://localhost:6379/0.
	// A bare host:port is accepted too.
	RedisURL string `yaml:"redis_url"`

	Fetch FetchConfig `yaml:"fetch"`
}

// FetchConfig mirrors pagination.Config.
type FetchConfig struct {
	PerPage          int           `yaml:"per_page"`
	BatchSize        int           `yaml:"batch_size"`
	Workers          int           `yaml:"workers"`
	Retries          int           `yaml:"retries"`
	RetryDelay       time.Duration `yaml:"retry_delay"`
	RateLimitDelay   time.Duration `yaml:"rate_limit_delay"`
	Timeout          time.Duration `yaml:"timeout"`
	OnErrors         string        `yaml:"on_errors"`
	MinimalHandshake bool          `yaml:"minimal_handshake"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	fetch := pagination.DefaultConfig()
	return Config{
		BaseURL:  client.DefaultBaseURL,
		LogLevel: string(logging.LevelInfo),
		Fetch: FetchConfig{
			PerPage:        fetch.PerPage,
			BatchSize:      fetch.BatchSize,
			Workers:        fetch.Workers,
			Retries:        fetch.Retries,
			RetryDelay:     fetch.RetryDelay,
			RateLimitDelay: fetch.RateLimitDelay,
			Timeout:        fetch.Timeout,
			OnErrors:       string(fetch.OnErrors),
		},
	}
}

// Load reads path (if not empty), then envFile (if it exists), then the
// environment. Variables already set in the environment win over envFile.
func Load(path, envFile string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvAPIKey); v != "" {
		c.APIKey = v
	}
	if v := os.Getenv(EnvBaseURL); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvLogPretty); v != "" {
		pretty, err := cast.ToBoolE(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvLogPretty, err)
		}
		c.LogPretty = pretty
	}
	if v := os.Getenv(EnvRedisURL); v != "" {
		c.RedisURL = v
	}
	return nil
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.APIKey == "" {
		return ErrMissingAPIKey
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if _, err := c.PaginationConfig(); err != nil {
		return err
	}
	if c.RedisURL != "" {
		if _, err := c.RedisOptions(); err != nil {
			return err
		}
	}
	return nil
}

// ClientConfig returns the transport configuration.
func (c Config) ClientConfig() client.Config {
	cfg := client.DefaultConfig(c.APIKey)
	if c.BaseURL != "" {
		cfg.BaseURL = c.BaseURL
	}
	cfg.RateLimit = c.RateLimit
	return cfg
}

// PaginationConfig returns the validated fetch configuration.
func (c Config) PaginationConfig() (pagination.Config, error) {
	policy, err := pagination.ParseErrorPolicy(c.Fetch.OnErrors)
	if err != nil {
		return pagination.Config{}, err
	}
	cfg := pagination.Config{
		PerPage:          c.Fetch.PerPage,
		BatchSize:        c.Fetch.BatchSize,
		Workers:          c.Fetch.Workers,
		Retries:          c.Fetch.Retries,
		RetryDelay:       c.Fetch.RetryDelay,
		RateLimitDelay:   c.Fetch.RateLimitDelay,
		Timeout:          c.Fetch.Timeout,
		OnErrors:         policy,
		MinimalHandshake: c.Fetch.MinimalHandshake,
	}
	if err := cfg.Validate(); err != nil {
		return pagination.Config{}, err
	}
	return cfg, nil
}

// LoggingConfig returns the logger configuration. Logs go to stderr so that
// stdout carries only query output.
func (c Config) LoggingConfig() logging.Config {
	cfg := logging.DefaultConfig()
	if level, err := logging.ParseLevel(c.LogLevel); err == nil {
		cfg.Level = level
	}
	cfg.Pretty = c.LogPretty
	return cfg
}

// RedisOptions parses RedisURL.
func (c Config) RedisOptions() (*redis.Options, error) {
	if !strings.Contains(c.RedisURL, "://") {
		return &redis.Options{Addr: c.RedisURL}, nil
	}
	opts, err := redis.ParseURL(c.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", EnvRedisURL, err)
	}
	return opts, nil
}
