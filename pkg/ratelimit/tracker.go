package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// ErrBudgetExceeded is returned when a fetch needs more requests than the quota has left.
var ErrBudgetExceeded = errors.New("rate limit budget exceeded")

// Prometheus metrics for rate limit tracking.
var (
	fountRateLimitRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fount_rate_limit_remaining",
		Help: "Number of requests remaining in the current Fount rate limit window",
	})

	fountBudgetRejectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fount_rate_limit_budget_rejections_total",
		Help: "Total number of fetches rejected because they exceed the remaining quota",
	})
)

// Tracker records the Fount rate limit state and checks fetch budgets against it.
type Tracker struct {
	store  Store
	logger zerolog.Logger
}

// NewTracker creates a new rate limit tracker. A nil store uses a MemoryStore.
func NewTracker(store Store, logger zerolog.Logger) *Tracker {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Tracker{
		store:  store,
		logger: logger,
	}
}

// State returns the current rate limit state.
func (t *Tracker) State(ctx context.Context) (State, error) {
	state, err := t.store.Load(ctx)
	if err != nil {
		return State{}, fmt.Errorf("load rate limit state: %w", err)
	}
	return state, nil
}

// UpdateFromHeaders parses the rate limit headers and stores the new state.
// Responses without rate limit headers leave the state untouched.
func (t *Tracker) UpdateFromHeaders(ctx context.Context, headers http.Header) error {
	state, ok, err := ParseHeaders(headers)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	if err := t.store.Save(ctx, state); err != nil {
		return err
	}

	fountRateLimitRemaining.Set(float64(state.Remaining))

	if state.NeedsThrottling() {
		t.logger.Warn().
			Int("remaining", state.Remaining).
			Int("limit", state.Limit).
			Msg("Fount rate limit running low")
	} else {
		t.logger.Debug().
			Int("remaining", state.Remaining).
			Int("limit", state.Limit).
			Msg("Fount rate limit state updated")
	}

	return nil
}

// CheckBudget returns ErrBudgetExceeded if pages more requests would exceed the quota.
func (t *Tracker) CheckBudget(ctx context.Context, pages int) error {
	state, err := t.State(ctx)
	if err != nil {
		return err
	}

	if state.Allows(pages) {
		return nil
	}

	fountBudgetRejectionsTotal.Inc()
	t.logger.Error().
		Int("pages", pages).
		Int("remaining", state.Remaining).
		Int("limit", state.Limit).
		Msg("Fetch exceeds rate limit budget")

	return fmt.Errorf("%w: %d pages requested, %d remaining (limit %d)",
		ErrBudgetExceeded, pages, state.Remaining, state.Limit)
}
