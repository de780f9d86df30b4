package pagination

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/Sternrassler/fount-client/pkg/client"
	"github.com/hashicorp/go-multierror"
)

// PageFailure is a page that could not be fetched.
type PageFailure struct {
	Page int
	Err  error
}

// FetchError lists every page that failed in a fetch.
type FetchError struct {
	Endpoint string
	Failures []PageFailure
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	var merr *multierror.Error
	for _, f := range e.Failures {
		merr = multierror.Append(merr, fmt.Errorf("page %d: %w", f.Page, f.Err))
	}
	if merr == nil {
		return fmt.Sprintf("fetch %s failed", e.Endpoint)
	}

	merr.ErrorFormat = func(errs []error) string {
		lines := make([]string, len(errs))
		for i, err := range errs {
			lines[i] = "\t* " + err.Error()
		}
		return fmt.Sprintf("%d page(s) of %s failed:\n%s", len(errs), e.Endpoint, strings.Join(lines, "\n"))
	}
	return merr.Error()
}

// Unwrap returns the page errors for errors.Is/As.
func (e *FetchError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f.Err
	}
	return errs
}

// Pages returns the failed page numbers in ascending order.
func (e *FetchError) Pages() []int {
	pages := make([]int, len(e.Failures))
	for i, f := range e.Failures {
		pages[i] = f.Page
	}
	return pages
}

// Result is the outcome of a paginated fetch.
type Result struct {
	Endpoint string

	// Pages holds the records of every successful page, ordered by page number.
	Pages [][]client.Record

	// PageNumbers[i] is the page number of Pages[i].
	PageNumbers []int

	// Failures lists pages that failed after retries (warn policy only).
	Failures []PageFailure

	// TotalCount is the number of records the server reported.
	TotalCount int

	Plan Plan

	// Warning is a *FetchError when some pages failed under the warn policy.
	Warning error
}

// Records returns the records of all pages concatenated in page order.
func (r *Result) Records() []client.Record {
	n := 0
	for _, page := range r.Pages {
		n += len(page)
	}
	records := make([]client.Record, 0, n)
	for _, page := range r.Pages {
		records = append(records, page...)
	}
	return records
}

// Collector gathers page outcomes from concurrent workers.
type Collector struct {
	mu       sync.Mutex
	outcomes map[int]Outcome
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{outcomes: make(map[int]Outcome)}
}

// Add records the outcome of a page. It is safe for concurrent use.
func (c *Collector) Add(o Outcome) {
	c.mu.Lock()
	c.outcomes[o.Page] = o
	c.mu.Unlock()
}

// Len returns the number of outcomes collected.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.outcomes)
}

// Result orders the outcomes by page number and applies the error policy.
// Outcomes for pages after stopPage are dropped; stopPage <= 0 keeps all.
// A fetch with failures and no successful page always returns a *FetchError.
func (c *Collector) Result(endpoint string, plan Plan, policy ErrorPolicy, stopPage int) (*Result, error) {
	c.mu.Lock()
	pages := make([]int, 0, len(c.outcomes))
	for page := range c.outcomes {
		if stopPage > 0 && page > stopPage {
			fountPagesTotal.WithLabelValues(endpoint, "discarded").Inc()
			continue
		}
		pages = append(pages, page)
	}
	sort.Ints(pages)

	result := &Result{
		Endpoint:   endpoint,
		TotalCount: plan.TotalCount,
		Plan:       plan,
	}
	for _, page := range pages {
		outcome := c.outcomes[page]
		if outcome.OK() {
			result.Pages = append(result.Pages, outcome.Records)
			result.PageNumbers = append(result.PageNumbers, page)
			continue
		}
		result.Failures = append(result.Failures, PageFailure{Page: page, Err: outcome.Err})
	}
	c.mu.Unlock()

	if len(result.Failures) == 0 {
		return result, nil
	}

	fetchErr := &FetchError{Endpoint: endpoint, Failures: result.Failures}
	if len(result.Pages) == 0 || policy == OnErrorsRaise {
		return nil, fetchErr
	}

	result.Warning = fetchErr
	return result, nil
}
