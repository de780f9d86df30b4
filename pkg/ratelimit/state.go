// Package ratelimit tracks the Fount API request quota.
// It reads the X-RateLimit-Limit and X-RateLimit-Remaining headers so a fetch
// can be rejected before it schedules more pages than the quota allows.
package ratelimit

import (
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// Fount rate limit headers.
const (
	HeaderLimit     = "X-RateLimit-Limit"
	HeaderRemaining = "X-RateLimit-Remaining"
)

// Window is the length of the Fount rate limit window.
// State older than one window no longer says anything about the quota.
const Window = time.Minute

// ThresholdWarning is the remaining quota below which requests are logged as throttled.
const ThresholdWarning = 20

// State represents the last observed Fount rate limit state.
type State struct {
	// Limit is the number of requests allowed per window (X-RateLimit-Limit).
	Limit int `json:"limit"`

	// Remaining is the number of requests left in the window (X-RateLimit-Remaining).
	Remaining int `json:"remaining"`

	// LastUpdate is when the headers were observed.
	LastUpdate time.Time `json:"last_update"`
}

// ParseHeaders extracts the rate limit state from response headers.
// ok is false when the response carries no rate limit headers.
func ParseHeaders(headers http.Header) (state State, ok bool, err error) {
	remainStr := headers.Get(HeaderRemaining)
	if remainStr == "" {
		return State{}, false, nil
	}

	remain, err := strconv.Atoi(remainStr)
	if err != nil {
		return State{}, false, fmt.Errorf("parse %s header: %w", HeaderRemaining, err)
	}

	limit := 0
	if limitStr := headers.Get(HeaderLimit); limitStr != "" {
		limit, err = strconv.Atoi(limitStr)
		if err != nil {
			return State{}, false, fmt.Errorf("parse %s header: %w", HeaderLimit, err)
		}
	}

	return State{
		Limit:      limit,
		Remaining:  remain,
		LastUpdate: time.Now(),
	}, true, nil
}

// Known reports whether the state was ever populated from headers.
func (s State) Known() bool {
	return !s.LastUpdate.IsZero()
}

// IsStale returns true if the state data is older than the given duration.
func (s State) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// Allows reports whether n more requests fit in the remaining quota.
// Unknown or stale state allows everything.
func (s State) Allows(n int) bool {
	if !s.Known() || s.IsStale(Window) {
		return true
	}
	return n <= s.Remaining
}

// NeedsThrottling returns true if the remaining quota is below the warning threshold.
func (s State) NeedsThrottling() bool {
	return s.Known() && s.Remaining < ThresholdWarning
}
