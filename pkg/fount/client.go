// Package fount is the high-level Fount client: it validates queries, adds
// default includes, fetches all pages and flattens the records.
package fount

import (
	"context"
	"errors"
	"fmt"

	"github.com/Sternrassler/fount-client/pkg/client"
	"github.com/Sternrassler/fount-client/pkg/flatten"
	"github.com/Sternrassler/fount-client/pkg/pagination"
	"github.com/Sternrassler/fount-client/pkg/query"
	"github.com/Sternrassler/fount-client/pkg/ratelimit"
)

// Config holds the configuration of a Client.
type Config struct {
	// HTTP is the transport configuration; Token is required.
	HTTP client.Config

	// Fetch holds the pagination defaults.
	Fetch pagination.Config

	// Rules are checked before every query (default: DefaultRules).
	// Use an empty, non-nil slice to disable them.
	Rules []query.Rule
}

// DefaultConfig returns the default configuration for token.
func DefaultConfig(token string) Config {
	return Config{
		HTTP:  client.DefaultConfig(token),
		Fetch: pagination.DefaultConfig(),
	}
}

// Client queries the Fount.
type Client struct {
	http    *client.Client
	fetcher *pagination.BatchFetcher
	rules   []query.Rule
}

// New creates a Client.
func New(cfg Config) (*Client, error) {
	httpClient, err := client.New(cfg.HTTP)
	if err != nil {
		return nil, err
	}

	if cfg.Fetch.Tracker == nil {
		cfg.Fetch.Tracker = httpClient.Tracker()
	}
	if err := cfg.Fetch.Validate(); err != nil {
		return nil, fmt.Errorf("invalid fetch config: %w", err)
	}

	rules := cfg.Rules
	if rules == nil {
		rules = DefaultRules()
	}

	return &Client{
		http:    httpClient,
		fetcher: pagination.NewBatchFetcher(httpClient, cfg.Fetch),
		rules:   rules,
	}, nil
}

// RawQuery validates q and fetches every page of it as is.
func (c *Client) RawQuery(ctx context.Context, q query.Query, opts ...pagination.Option) (*pagination.Result, error) {
	valid, err := query.New(q, c.rules...)
	if err != nil {
		return nil, err
	}
	return c.fetcher.FetchAllPages(ctx, valid, opts...)
}

// Query is RawQuery with the endpoint's default includes added.
// Include query.NoDefault to suppress them.
func (c *Client) Query(ctx context.Context, q query.Query, opts ...pagination.Option) (*pagination.Result, error) {
	q.Include = query.DefaultInclude(q.Include, DefaultIncludes(q.Endpoint))
	return c.RawQuery(ctx, q, opts...)
}

// Records runs Query and returns the records in page order.
// Pages that failed under the warn policy are left out; use Query to inspect them.
func (c *Client) Records(ctx context.Context, q query.Query, opts ...pagination.Option) ([]client.Record, error) {
	result, err := c.Query(ctx, q, opts...)
	if err != nil {
		return nil, err
	}
	return result.Records(), nil
}

// Table runs Query and flattens the records. If flat.Prefix is empty the
// endpoint's clash prefix is used ("global" for brandscape-data).
func (c *Client) Table(ctx context.Context, q query.Query, flat flatten.Options, opts ...pagination.Option) (*flatten.Table, error) {
	records, err := c.Records(ctx, q, opts...)
	if err != nil {
		return nil, err
	}
	if flat.Prefix == "" {
		flat.Prefix = FlattenPrefix(q.Endpoint)
	}
	return flatten.NewTable(records, flat)
}

// Item fetches a single resource by id. Filters in q still apply.
func (c *Client) Item(ctx context.Context, endpoint, id string, q query.Query) (client.Record, error) {
	q.Endpoint = endpoint
	q.ItemID = id
	records, err := c.Records(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s/%s: %w", endpoint, id, ErrNotFound)
	}
	return records[0], nil
}

// RateLimit returns the last rate limit state reported by the Fount.
func (c *Client) RateLimit(ctx context.Context) (ratelimit.State, error) {
	return c.http.Tracker().State(ctx)
}

// Close releases idle connections.
func (c *Client) Close() error {
	return c.http.Close()
}

// ErrNotFound is returned by Item when the resource does not exist.
var ErrNotFound = errors.New("not found")
