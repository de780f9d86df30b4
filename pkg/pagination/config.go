package pagination

import (
	"fmt"
	"time"

	"github.com/Sternrassler/fount-client/pkg/query"
	"github.com/Sternrassler/fount-client/pkg/ratelimit"
	"github.com/rs/zerolog"
)

// ErrorPolicy decides what a fetch returns when some pages failed.
type ErrorPolicy string

const (
	// OnErrorsWarn returns the pages that succeeded and reports failures in Result.Warning.
	OnErrorsWarn ErrorPolicy = "warn"

	// OnErrorsRaise fails the whole fetch with a *FetchError if any page failed.
	OnErrorsRaise ErrorPolicy = "raise"
)

// ParseErrorPolicy converts "warn" or "raise" to an ErrorPolicy.
func ParseErrorPolicy(s string) (ErrorPolicy, error) {
	switch ErrorPolicy(s) {
	case OnErrorsWarn, OnErrorsRaise:
		return ErrorPolicy(s), nil
	default:
		return "", fmt.Errorf("unknown error policy %q (want %q or %q)", s, OnErrorsWarn, OnErrorsRaise)
	}
}

// Config holds batch fetcher configuration
type Config struct {
	// PerPage is the page size used when the query does not set one.
	PerPage int

	// BatchSize is the number of consecutive pages a worker requests together.
	BatchSize int

	// Workers is the number of batches in flight.
	// At most BatchSize*Workers requests run at once.
	Workers int

	// Retries is the number of extra attempts for a transient page failure.
	Retries int

	// RetryDelay is the pause between attempts.
	RetryDelay time.Duration

	// RateLimitDelay is the pause after a 429 response.
	RateLimitDelay time.Duration

	// Timeout per page attempt. NewBatchFetcher defaults it;
	// WithTimeout(0) disables it for one fetch.
	Timeout time.Duration

	// OnErrors is the error policy for failed pages.
	OnErrors ErrorPolicy

	// Verbose logs progress when Progress is nil.
	Verbose bool

	// MinimalHandshake requests a single record for the handshake and
	// fetches the first page again with the real page size.
	MinimalHandshake bool

	// Progress receives page completions (default: NopProgress).
	Progress Progress

	// Tracker, when set, rejects fetches that need more requests than the
	// rate limit has left.
	Tracker *ratelimit.Tracker
}

// DefaultConfig returns safe default configuration for the Fount
func DefaultConfig() Config {
	return Config{
		PerPage:        100,
		BatchSize:      10,
		Workers:        2,
		Retries:        3,
		RetryDelay:     250 * time.Millisecond,
		RateLimitDelay: time.Second,
		Timeout:        30 * time.Second,
		OnErrors:       OnErrorsWarn,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.PerPage <= 0 || c.PerPage > query.MaxPerPage {
		return fmt.Errorf("per_page must be between 1 and %d (got %d)", query.MaxPerPage, c.PerPage)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be > 0 (got %d)", c.BatchSize)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("n_workers must be > 0 (got %d)", c.Workers)
	}
	if c.Retries < 0 {
		return fmt.Errorf("retries must be >= 0 (got %d)", c.Retries)
	}
	if c.RetryDelay < 0 || c.RateLimitDelay < 0 || c.Timeout < 0 {
		return fmt.Errorf("delays and timeout must be >= 0")
	}
	if _, err := ParseErrorPolicy(string(c.OnErrors)); err != nil {
		return err
	}
	return nil
}

func (c Config) progress(logger zerolog.Logger) Progress {
	if c.Progress != nil {
		return c.Progress
	}
	if c.Verbose {
		return NewLogProgress(logger, 0)
	}
	return NopProgress{}
}

// Option overrides configuration for a single fetch.
type Option func(*Config)

// WithPerPage sets the default page size.
func WithPerPage(n int) Option {
	return func(c *Config) { c.PerPage = n }
}

// WithBatchSize sets the number of pages per batch.
func WithBatchSize(n int) Option {
	return func(c *Config) { c.BatchSize = n }
}

// WithWorkers sets the number of concurrent workers.
func WithWorkers(n int) Option {
	return func(c *Config) { c.Workers = n }
}

// WithRetries sets the number of retries per page.
func WithRetries(n int) Option {
	return func(c *Config) { c.Retries = n }
}

// WithErrorPolicy sets the error policy.
func WithErrorPolicy(p ErrorPolicy) Option {
	return func(c *Config) { c.OnErrors = p }
}

// WithTimeout sets the per-page timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

// WithVerbose enables progress logging.
func WithVerbose(v bool) Option {
	return func(c *Config) { c.Verbose = v }
}

// WithProgress sets the progress reporter.
func WithProgress(p Progress) Option {
	return func(c *Config) { c.Progress = p }
}
