package pagination

import (
	"context"
	"time"

	"github.com/Sternrassler/fount-client/pkg/client"
	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// PageFetcher is the interface the Fount client must implement for single-page fetching
type PageFetcher interface {
	// FetchPage performs one request and returns the parsed page.
	// Errors should carry a client.ErrorClass (see client.ClassOf).
	FetchPage(ctx context.Context, req client.Request) (*client.Page, error)
}

// Outcome is the result of requesting one page.
// Err == nil means success; Total and TotalPages are only set for the handshake page.
type Outcome struct {
	Page       int
	Records    []client.Record
	Total      int
	TotalPages int
	Attempts   int
	Err        error
}

// OK reports whether the page was fetched.
func (o Outcome) OK() bool {
	return o.Err == nil
}

// PageRequester fetches single pages, retrying transient failures.
type PageRequester struct {
	fetcher        PageFetcher
	retries        int
	retryDelay     time.Duration
	rateLimitDelay time.Duration
	timeout        time.Duration
	logger         zerolog.Logger
}

// NewPageRequester creates a page requester using the retry settings of cfg.
func NewPageRequester(fetcher PageFetcher, cfg Config, logger zerolog.Logger) *PageRequester {
	return &PageRequester{
		fetcher:        fetcher,
		retries:        cfg.Retries,
		retryDelay:     cfg.RetryDelay,
		rateLimitDelay: cfg.RateLimitDelay,
		timeout:        cfg.Timeout,
		logger:         logger,
	}
}

// Request fetches one page and never returns an error directly:
// failures after retries are reported in the Outcome.
func (r *PageRequester) Request(ctx context.Context, req client.Request) Outcome {
	page, attempts, err := r.fetch(ctx, req)
	outcome := Outcome{
		Page:     req.Page(),
		Attempts: attempts,
		Err:      err,
	}
	if err == nil {
		outcome.Records = page.Records
	}
	return outcome
}

// fetch runs the request with retries and returns the last page or error.
// A not found response is an empty page.
func (r *PageRequester) fetch(ctx context.Context, req client.Request) (*client.Page, int, error) {
	var (
		page     *client.Page
		lastErr  error
		attempts int
	)

	operation := func() error {
		attempts++

		attemptCtx, cancel := r.attemptContext(ctx)
		defer cancel()

		p, err := r.fetcher.FetchPage(attemptCtx, req)
		if err == nil {
			page = p
			return nil
		}

		if client.IsNotFound(err) {
			page = &client.Page{}
			return nil
		}

		// parent cancelled or expired: stop without retrying
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}

		lastErr = err
		if !client.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		errClass := client.ClassOf(err)
		fountRetriesTotal.WithLabelValues(string(errClass)).Inc()
		r.logger.Warn().
			Err(err).
			Str("endpoint", req.Endpoint).
			Int("page", req.Page()).
			Int("attempt", attempts).
			Str("error_class", string(errClass)).
			Dur("backoff", wait).
			Msg("Retrying page request")
	}

	policy := &classBackOff{
		delay:          r.retryDelay,
		rateLimitDelay: r.rateLimitDelay,
		lastErr:        &lastErr,
	}
	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(r.retries)), ctx)

	if err := backoff.RetryNotify(operation, b, notify); err != nil {
		if client.IsRetryable(err) {
			errClass := client.ClassOf(err)
			fountRetryExhaustedTotal.WithLabelValues(string(errClass)).Inc()
			r.logger.Warn().
				Err(err).
				Str("endpoint", req.Endpoint).
				Int("page", req.Page()).
				Int("attempts", attempts).
				Str("error_class", string(errClass)).
				Msg("Page request failed after retries")
		}
		return nil, attempts, err
	}

	return page, attempts, nil
}

func (r *PageRequester) attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}

// classBackOff waits RetryDelay between attempts, or RateLimitDelay after a 429.
type classBackOff struct {
	delay          time.Duration
	rateLimitDelay time.Duration
	lastErr        *error
}

func (b *classBackOff) NextBackOff() time.Duration {
	if b.lastErr != nil && client.ClassOf(*b.lastErr) == client.ErrorClassRateLimit {
		return b.rateLimitDelay
	}
	return b.delay
}

func (b *classBackOff) Reset() {}
