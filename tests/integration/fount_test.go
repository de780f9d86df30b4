//go:build integration

package integration

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"

	"github.com/Sternrassler/fount-client/internal/testutil"
	"github.com/Sternrassler/fount-client/pkg/fount"
	"github.com/Sternrassler/fount-client/pkg/query"
	"github.com/Sternrassler/fount-client/pkg/ratelimit"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const token = "integration-token"

// setupRedis creates a Redis container for integration testing.
func setupRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get Redis endpoint: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{Addr: endpoint})

	cleanup := func() {
		redisClient.Close()
		container.Terminate(ctx)
	}

	return redisClient, cleanup
}

// testTransport sends requests for the real Fount host to the mock server.
type testTransport struct {
	mock *testutil.MockFount
}

func (t *testTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	mockURL, err := url.Parse(t.mock.URL())
	if err != nil {
		return nil, err
	}
	req.URL.Scheme = mockURL.Scheme
	req.URL.Host = mockURL.Host
	return http.DefaultTransport.RoundTrip(req)
}

// newClient builds a Fount client that stores its rate limit state in Redis.
func newClient(t *testing.T, mock *testutil.MockFount, redisClient *redis.Client) *fount.Client {
	t.Helper()

	tracker := ratelimit.NewTracker(ratelimit.NewRedisStore(redisClient), zerolog.Nop())

	cfg := fount.DefaultConfig(token)
	cfg.HTTP.Transport = &testTransport{mock: mock}
	cfg.HTTP.Tracker = tracker
	cfg.Fetch.Tracker = tracker
	cfg.Fetch.RetryDelay = 0

	c, err := fount.New(cfg)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

// TestFullFetchFlow covers handshake, batched pages and the rate limit state in Redis.
func TestFullFetchFlow(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	mock := testutil.NewMockFount(token)
	defer mock.Close()
	mock.SeedBrands(fount.Brands, 95)
	mock.SetRateLimit(300, 300)

	c := newClient(t, mock, redisClient)
	ctx := context.Background()

	records, err := c.Records(ctx, query.Query{Endpoint: fount.Brands, PerPage: 10})
	if err != nil {
		t.Fatalf("Records() error = %v", err)
	}
	if len(records) != 95 {
		t.Fatalf("Records() returned %d records, want 95", len(records))
	}
	for i, record := range records {
		if got := record["id"]; got != float64(i+1) {
			t.Fatalf("record %d has id %v, want %d", i, got, i+1)
		}
	}

	if got := mock.RequestCount(); got != 10 {
		t.Errorf("RequestCount() = %d, want 10", got)
	}

	remaining, err := redisClient.Get(ctx, ratelimit.RedisKeyRemaining).Int()
	if err != nil {
		t.Fatalf("Failed to read remaining from Redis: %v", err)
	}
	// Concurrent responses may be stored out of order.
	if remaining < 290 || remaining > 299 {
		t.Errorf("remaining in Redis = %d, want between 290 and 299", remaining)
	}
}

// TestSharedBudget shows a second process refusing a fetch the shared quota cannot cover.
func TestSharedBudget(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	mock := testutil.NewMockFount(token)
	defer mock.Close()
	mock.SeedBrands(fount.Brands, 250)
	mock.SetRateLimit(300, 5)

	ctx := context.Background()
	first := newClient(t, mock, redisClient)
	second := newClient(t, mock, redisClient)

	if _, err := first.Item(ctx, fount.Brands, "1", query.Query{}); err != nil {
		t.Fatalf("Item() error = %v", err)
	}

	state, err := second.RateLimit(ctx)
	if err != nil {
		t.Fatalf("RateLimit() error = %v", err)
	}
	if state.Remaining != 4 {
		t.Errorf("second client sees remaining = %d, want 4", state.Remaining)
	}

	_, err = second.Records(ctx, query.Query{Endpoint: fount.Brands, PerPage: 10})
	if !errors.Is(err, ratelimit.ErrBudgetExceeded) {
		t.Fatalf("Records() error = %v, want ErrBudgetExceeded", err)
	}

	// Handshake only: the remaining 24 pages were never requested.
	if got := mock.RequestCount(); got != 2 {
		t.Errorf("RequestCount() = %d, want 2", got)
	}
}

// TestBrandscapeTable runs a brandscape-data query end to end.
func TestBrandscapeTable(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	mock := testutil.NewMockFount(token)
	defer mock.Close()
	mock.SetRecords(fount.BrandscapeData, []map[string]any{
		{"id": 1, "brand_name": "Swatch", "country_code": "CH", "year_number": 2024, "brand": map[string]any{"name": "Swatch"}},
		{"id": 2, "brand_name": "Rolex", "country_code": "CH", "year_number": 2023, "brand": map[string]any{"name": "Rolex"}},
	})

	c := newClient(t, mock, redisClient)

	records, err := c.Records(context.Background(), query.Query{
		Endpoint: fount.BrandscapeData,
		Filters:  map[string]any{"country_code": "CH", "year_number": 2024},
	})
	if err != nil {
		t.Fatalf("Records() error = %v", err)
	}
	if len(records) != 1 || records[0]["brand_name"] != "Swatch" {
		t.Fatalf("Records() = %v, want only Swatch 2024", records)
	}

	req := mock.Requests()[0]
	if got := req.Query.Get("include"); got != "study,brand,category,audience" {
		t.Errorf("include = %q", got)
	}
	if got := req.Header.Get("Authorization"); got != "Bearer "+token {
		t.Errorf("Authorization = %q", got)
	}
}
