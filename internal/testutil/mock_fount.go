// Package testutil provides testing utilities for the Fount client.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/spf13/cast"
)

// APIPrefix is the path under which the mock serves the API.
const APIPrefix = "/api/v2/"

// RecordedRequest is a request received by the mock.
type RecordedRequest struct {
	Endpoint string
	ItemID   string
	Query    url.Values
	Header   http.Header
}

// Page returns the requested page number (1 if absent).
func (r RecordedRequest) Page() int {
	page, err := strconv.Atoi(r.Query.Get("page"))
	if err != nil || page < 1 {
		return 1
	}
	return page
}

type pageFailure struct {
	status    int
	remaining int
}

// MockFount is a configurable mock Fount server for testing.
// It paginates in-memory datasets the way the real API does.
type MockFount struct {
	server *httptest.Server
	mu     sync.RWMutex

	token    string
	datasets map[string][]map[string]any
	failures map[string]map[int]*pageFailure
	delay    time.Duration

	rateLimit     int
	rateRemaining int

	requests []RecordedRequest
}

// NewMockFount creates a new mock Fount server accepting token.
// An empty token accepts any request.
func NewMockFount(token string) *MockFount {
	mock := &MockFount{
		token:    token,
		datasets: make(map[string][]map[string]any),
		failures: make(map[string]map[int]*pageFailure),
	}
	mock.server = httptest.NewServer(http.HandlerFunc(mock.handle))
	return mock
}

// URL returns the API base URL of the mock.
func (m *MockFount) URL() string {
	return m.server.URL + APIPrefix
}

// Close shuts down the mock server.
func (m *MockFount) Close() {
	m.server.Close()
}

// SetRecords serves records for endpoint.
func (m *MockFount) SetRecords(endpoint string, records []map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.datasets[endpoint] = records
}

// SeedBrands serves n generated brand records with ids 1..n and returns them.
func (m *MockFount) SeedBrands(endpoint string, n int) []map[string]any {
	faker := gofakeit.New(int64(n))
	records := make([]map[string]any, n)
	for i := range records {
		records[i] = map[string]any{
			"id":   i + 1,
			"name": faker.Company(),
			"company": map[string]any{
				"id":   faker.Number(1, 500),
				"name": faker.Company(),
			},
			"country_code": faker.CountryAbr(),
		}
	}
	m.SetRecords(endpoint, records)
	return records
}

// FailPage makes page of endpoint answer with status the next times requests.
// times < 0 fails forever.
func (m *MockFount) FailPage(endpoint string, page, times, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failures[endpoint] == nil {
		m.failures[endpoint] = make(map[int]*pageFailure)
	}
	m.failures[endpoint][page] = &pageFailure{status: status, remaining: times}
}

// SetRateLimit sends X-RateLimit headers; remaining decreases with every request
// and the mock answers 429 once it is exhausted.
func (m *MockFount) SetRateLimit(limit, remaining int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rateLimit = limit
	m.rateRemaining = remaining
}

// SetDelay delays every response.
func (m *MockFount) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// Requests returns a copy of the received requests.
func (m *MockFount) Requests() []RecordedRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]RecordedRequest(nil), m.requests...)
}

// RequestCount returns the number of requests made to the server.
func (m *MockFount) RequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.requests)
}

// Reset clears the request log.
func (m *MockFount) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
}

func (m *MockFount) handle(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, APIPrefix), "/")
	endpoint, itemID, _ := strings.Cut(path, "/")
	req := RecordedRequest{
		Endpoint: endpoint,
		ItemID:   itemID,
		Query:    r.URL.Query(),
		Header:   r.Header.Clone(),
	}

	m.mu.Lock()
	m.requests = append(m.requests, req)
	delay := m.delay
	limited := m.rateLimit > 0
	limit, remaining := m.rateLimit, m.rateRemaining
	if limited {
		m.rateRemaining--
		remaining = m.rateRemaining
	}
	failure := m.nextFailure(endpoint, req.Page())
	records, known := m.datasets[endpoint]
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if limited {
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(max(remaining, 0)))
		if remaining < 0 {
			writeMessage(w, http.StatusTooManyRequests, "Too Many Attempts.")
			return
		}
	}

	if m.token != "" && r.Header.Get("Authorization") != "Bearer "+m.token {
		writeMessage(w, http.StatusUnauthorized, "Unauthenticated.")
		return
	}

	if failure != 0 {
		writeMessage(w, failure, http.StatusText(failure))
		return
	}

	if !known {
		writeMessage(w, http.StatusNotFound, "Not found.")
		return
	}

	matched := filterRecords(records, req.Query)

	if itemID != "" {
		for _, record := range matched {
			if cast.ToString(record["id"]) == itemID {
				writeJSON(w, http.StatusOK, map[string]any{"data": record})
				return
			}
		}
		writeMessage(w, http.StatusNotFound, "Not found.")
		return
	}

	perPage := 25
	if v := req.Query.Get("per_page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeMessage(w, http.StatusUnprocessableEntity, "The per page must be at least 1.")
			return
		}
		if n > 1000 {
			writeMessage(w, http.StatusUnprocessableEntity, "The per page may not be greater than 1000.")
			return
		}
		perPage = n
	}

	page := req.Page()
	start := min((page-1)*perPage, len(matched))
	end := min(start+perPage, len(matched))
	data := append([]map[string]any{}, matched[start:end]...)

	writeJSON(w, http.StatusOK, map[string]any{
		"data": data,
		"meta": map[string]any{
			"current_page": page,
			"last_page":    max((len(matched)+perPage-1)/perPage, 1),
			"per_page":     perPage,
			"total":        len(matched),
		},
	})
}

// nextFailure must be called with mu held.
func (m *MockFount) nextFailure(endpoint string, page int) int {
	failure := m.failures[endpoint][page]
	if failure == nil || failure.remaining == 0 {
		return 0
	}
	if failure.remaining > 0 {
		failure.remaining--
	}
	return failure.status
}

// filterRecords applies filter[key]=a,b as "record[key] is one of a, b".
// Filters on keys a record does not have are ignored.
func filterRecords(records []map[string]any, query url.Values) []map[string]any {
	filters := make(map[string][]string)
	for key, values := range query {
		if !strings.HasPrefix(key, "filter[") || !strings.HasSuffix(key, "]") || len(values) == 0 {
			continue
		}
		name := strings.TrimSuffix(strings.TrimPrefix(key, "filter["), "]")
		filters[name] = strings.Split(values[0], ",")
	}
	if len(filters) == 0 {
		return records
	}

	var matched []map[string]any
	for _, record := range records {
		ok := true
		for name, allowed := range filters {
			value, has := record[name]
			if !has {
				continue
			}
			found := false
			for _, a := range allowed {
				if cast.ToString(value) == a {
					found = true
					break
				}
			}
			if !found {
				ok = false
				break
			}
		}
		if ok {
			matched = append(matched, record)
		}
	}
	return matched
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"message": message})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		fmt.Fprintf(w, `{"message": %q}`, err.Error())
	}
}
