// Package client provides the Fount HTTP transport with bearer authentication,
// request pacing, rate limit tracking and error classification.
package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/fount-client/pkg/ratelimit"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Prometheus metrics for Fount client operations.
var (
	fountRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fount_requests_total",
		Help: "Total Fount requests by endpoint and status",
	}, []string{"endpoint", "status"})

	fountRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fount_request_duration_seconds",
		Help:    "Fount request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"endpoint"})

	fountErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fount_errors_total",
		Help: "Total Fount errors by class",
	}, []string{"class"})
)

const (
	// DefaultBaseURL is the Fount API v2 root.
	DefaultBaseURL = "https://fount.wppbav.com/api/v2/"

	// DefaultUserAgent is sent when Config.UserAgent is empty.
	DefaultUserAgent = "fount-client-go"

	defaultErrorMessage = "An error occurred with the Fount."
)

// Client is the Fount HTTP client.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	tracker    *ratelimit.Tracker
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL of the Fount API (default: DefaultBaseURL).
	BaseURL string

	// Token is the Fount bearer token (REQUIRED).
	Token string

	// UserAgent header (default: DefaultUserAgent).
	UserAgent string

	// Timeout is the upper bound for a single HTTP exchange.
	// The fetch engine applies its own per-page timeout on top.
	Timeout time.Duration

	// RateLimit paces requests per second; 0 disables pacing.
	RateLimit float64

	// RateBurst is the burst size for RateLimit (default: 1).
	RateBurst int

	// Tracker receives X-RateLimit-* headers (default: in-memory tracker).
	Tracker *ratelimit.Tracker

	// Transport allows injecting a custom HTTP transport (for tests/stubs).
	Transport http.RoundTripper
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(token string) Config {
	return Config{
		BaseURL:   DefaultBaseURL,
		Token:     token,
		UserAgent: DefaultUserAgent,
		Timeout:   30 * time.Second,
		RateLimit: 0,
		RateBurst: 1,
	}
}

// New creates a new Fount client.
func New(cfg Config) (*Client, error) {
	if cfg.Token == "" {
		return nil, ErrMissingToken
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RateLimit < 0 {
		return nil, fmt.Errorf("rate_limit must be >= 0 (got %v)", cfg.RateLimit)
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 1
	}

	logger := log.With().Str("component", "fount-client").Logger()

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}

	tracker := cfg.Tracker
	if tracker == nil {
		tracker = ratelimit.NewTracker(nil, logger)
	}

	return &Client{
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: cfg.Transport,
		},
		limiter: rate.NewLimiter(limit, cfg.RateBurst),
		tracker: tracker,
		config:  cfg,
		logger:  logger,
	}, nil
}

// Request identifies one Fount GET request.
type Request struct {
	// Endpoint is the resource name, e.g. "brands" or "brandscape-data".
	Endpoint string

	// ItemID requests a single resource: <endpoint>/<item_id>.
	ItemID string

	// Params are the encoded query parameters.
	Params url.Values
}

// Path returns the request path relative to the base URL.
func (r Request) Path() string {
	path := strings.Trim(r.Endpoint, "/")
	if r.ItemID != "" {
		path += "/" + url.PathEscape(r.ItemID)
	}
	return path
}

// Page returns the page number encoded in Params, or 0.
func (r Request) Page() int {
	page, _ := strconv.Atoi(r.Params.Get("page"))
	return page
}

// FetchPage performs one GET request and parses the Fount response envelope.
// Failures are returned as *Error with a class the caller can retry on.
func (c *Client) FetchPage(ctx context.Context, req Request) (*Page, error) {
	startTime := time.Now()
	defer func() {
		fountRequestDuration.WithLabelValues(req.Endpoint).Observe(time.Since(startTime).Seconds())
	}()

	if err := c.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("rate limiter: %w", ctx.Err())
		}
		// the wait would outlast the deadline
		return nil, &Error{Class: ErrorClassNetwork, Message: "rate limiter", Err: err}
	}

	fullURL := strings.TrimSuffix(c.config.BaseURL, "/") + "/" + req.Path()
	if len(req.Params) > 0 {
		fullURL += "?" + req.Params.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Authorization", "Bearer "+c.config.Token)
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.config.UserAgent)
	httpReq.Header.Set("X-Request-Id", uuid.NewString())

	c.logger.Debug().
		Str("endpoint", req.Endpoint).
		Int("page", req.Page()).
		Msg("Executing Fount request")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		fountErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		fountRequestsTotal.WithLabelValues(req.Endpoint, "network_error").Inc()
		return nil, &Error{
			Class:   ErrorClassNetwork,
			Message: "request failed",
			URL:     fullURL,
			Err:     err,
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		fountErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return nil, &Error{
			StatusCode: resp.StatusCode,
			Class:      ErrorClassNetwork,
			Message:    "read body",
			URL:        fullURL,
			Err:        err,
		}
	}

	if err := c.tracker.UpdateFromHeaders(ctx, resp.Header); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to update rate limit from headers")
	}

	fountRequestsTotal.WithLabelValues(req.Endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errClass := classifyStatus(resp.StatusCode)
		if errClass == "" {
			errClass = ErrorClassServer
		}
		fountErrorsTotal.WithLabelValues(string(errClass)).Inc()

		c.logger.Debug().
			Str("endpoint", req.Endpoint).
			Int("status", resp.StatusCode).
			Str("error_class", string(errClass)).
			Msg("Fount request error")

		return nil, &Error{
			StatusCode: resp.StatusCode,
			Class:      errClass,
			Message:    errorMessage(body),
			URL:        fullURL,
		}
	}

	page, err := parsePage(body)
	if err != nil {
		fountErrorsTotal.WithLabelValues(string(ErrorClassServer)).Inc()
		return nil, &Error{
			StatusCode: resp.StatusCode,
			Class:      ErrorClassServer,
			Message:    "decode response",
			URL:        fullURL,
			Err:        err,
		}
	}

	if state, ok, _ := ratelimit.ParseHeaders(resp.Header); ok {
		page.RateLimit = state
	}

	return page, nil
}

// Tracker returns the rate limit tracker fed by this client.
func (c *Client) Tracker() *ratelimit.Tracker {
	return c.tracker
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
