package pagination

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Sternrassler/fount-client/pkg/client"
)

// fakeFount serves total records over pages and records every request.
type fakeFount struct {
	total int

	// failures maps a page to the number of failing attempts; -1 fails forever.
	failures map[int]int
	failErr  error

	// failPerPage fails every request with that page size.
	failPerPage int

	// shortPage returns shortRecords records on that page and nothing after it.
	shortPage    int
	shortRecords int

	// delay returns how long a page takes.
	delay func(page int) time.Duration

	// item is returned for item requests.
	item client.Record

	mu       sync.Mutex
	requests []client.Request

	inFlight    int32
	maxInFlight int32
}

func newFakeFount(total int) *fakeFount {
	return &fakeFount{
		total:    total,
		failures: make(map[int]int),
		failErr:  &client.Error{StatusCode: 500, Class: client.ErrorClassServer, Message: "boom"},
	}
}

func (f *fakeFount) FetchPage(ctx context.Context, req client.Request) (*client.Page, error) {
	n := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		peak := atomic.LoadInt32(&f.maxInFlight)
		if n <= peak || atomic.CompareAndSwapInt32(&f.maxInFlight, peak, n) {
			break
		}
	}

	f.mu.Lock()
	f.requests = append(f.requests, req)
	page := req.Page()
	if page == 0 {
		page = 1
	}
	remaining, failing := f.failures[page]
	if failing && remaining > 0 {
		f.failures[page] = remaining - 1
	}
	f.mu.Unlock()

	if f.delay != nil {
		select {
		case <-time.After(f.delay(page)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if failing && remaining != 0 {
		return nil, f.failErr
	}
	if f.failPerPage > 0 && req.Params.Get("per_page") == strconv.Itoa(f.failPerPage) {
		return nil, f.failErr
	}

	if req.ItemID != "" {
		return &client.Page{Records: []client.Record{f.item}, Single: true}, nil
	}

	perPage, _ := strconv.Atoi(req.Params.Get("per_page"))
	if perPage == 0 {
		perPage = 25
	}

	first := (page-1)*perPage + 1
	last := min(page*perPage, f.total)
	if f.shortPage > 0 {
		switch {
		case page == f.shortPage:
			last = first + f.shortRecords - 1
		case page > f.shortPage:
			last = first - 1
		}
	}

	records := make([]client.Record, 0, max(last-first+1, 0))
	for id := first; id <= last; id++ {
		records = append(records, client.Record{"id": id})
	}

	return &client.Page{
		Records:     records,
		HasMeta:     true,
		Total:       f.total,
		CurrentPage: page,
		LastPage:    (f.total + perPage - 1) / perPage,
		PerPage:     perPage,
	}, nil
}

func (f *fakeFount) requestedPages() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	pages := make([]int, 0, len(f.requests))
	for _, req := range f.requests {
		pages = append(pages, req.Page())
	}
	return pages
}

// sortedPages returns the requested pages in ascending order.
func (f *fakeFount) sortedPages() []int {
	pages := f.requestedPages()
	sort.Ints(pages)
	return pages
}

func (f *fakeFount) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func ids(records []client.Record) []int {
	out := make([]int, len(records))
	for i, r := range records {
		out[i] = r["id"].(int)
	}
	return out
}

func seq(from, to int) []int {
	out := make([]int, 0, to-from+1)
	for i := from; i <= to; i++ {
		out = append(out, i)
	}
	return out
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RetryDelay = 0
	cfg.RateLimitDelay = 0
	cfg.Timeout = 5 * time.Second
	return cfg
}

// recordingProgress remembers what it was told.
type recordingProgress struct {
	mu       sync.Mutex
	total    int
	advanced int
}

func (p *recordingProgress) SetTotal(n int) {
	p.mu.Lock()
	p.total = n
	p.mu.Unlock()
}

func (p *recordingProgress) Advance(k int) {
	p.mu.Lock()
	p.advanced += k
	p.mu.Unlock()
}
