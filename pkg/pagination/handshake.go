package pagination

import (
	"context"
	"errors"
	"fmt"

	"github.com/Sternrassler/fount-client/pkg/client"
	"github.com/Sternrassler/fount-client/pkg/query"
)

// ErrHandshake wraps the error of a failed first request. No pages are fetched after it.
var ErrHandshake = errors.New("handshake failed")

// Plan is the page range and concurrency of a fetch, computed after the handshake.
type Plan struct {
	FirstPage int
	LastPage  int
	PerPage   int
	BatchSize int
	Workers   int

	// TotalCount and TotalPages are what the server reported.
	TotalCount int
	TotalPages int

	// HandshakeReused is true when the handshake page is the first result page.
	HandshakeReused bool
}

// NewPlan computes the last page to fetch. With maxPages set the plan
// never extends past reportedTotalPages; it always includes firstPage.
func NewPlan(firstPage, maxPages, reportedTotalPages int) Plan {
	if firstPage < 1 {
		firstPage = 1
	}

	last := reportedTotalPages
	if maxPages > 0 {
		last = min(firstPage+maxPages-1, reportedTotalPages)
	}
	if last < firstPage {
		last = firstPage
	}

	return Plan{
		FirstPage:  firstPage,
		LastPage:   last,
		TotalPages: reportedTotalPages,
	}
}

// Pages returns the number of pages in the plan.
func (p Plan) Pages() int {
	return p.LastPage - p.FirstPage + 1
}

// remaining returns the first page the scheduler must fetch.
func (p Plan) remaining() int {
	if p.HandshakeReused {
		return p.FirstPage + 1
	}
	return p.FirstPage
}

// handshake is the outcome of the first request.
type handshake struct {
	first Outcome
	plan  Plan

	// done means no further pages are needed.
	done bool
}

// resolve performs the first request for q and derives the fetch plan.
// Any error it returns is fatal for the fetch.
func (bf *BatchFetcher) resolve(ctx context.Context, requester *PageRequester, q query.Query, cfg Config) (*handshake, error) {
	firstPage := max(q.Page, 1)

	// item by id and single page queries take exactly one request
	if q.ItemID != "" || q.IsSinglePage() {
		single := q
		if q.ItemID == "" && q.PerPage == 0 {
			single = q.WithPage(0, cfg.PerPage, 0)
		}
		page, err := bf.handshakeRequest(ctx, requester, single)
		if err != nil {
			return nil, err
		}
		plan := NewPlan(firstPage, 1, firstPage)
		plan.PerPage = single.PerPage
		plan.TotalCount = page.Total
		plan.HandshakeReused = true
		return &handshake{
			first: handshakeOutcome(firstPage, page),
			plan:  plan,
			done:  true,
		}, nil
	}

	perPage := q.PerPage
	if perPage == 0 {
		perPage = cfg.PerPage
	}

	handshakePerPage := perPage
	if cfg.MinimalHandshake {
		handshakePerPage = 1
	}

	page, err := bf.handshakeRequest(ctx, requester, q.WithPage(firstPage, handshakePerPage, 0))
	if err != nil {
		return nil, err
	}

	totalCount, totalPages := reportedTotals(page, handshakePerPage, perPage, firstPage)

	plan := NewPlan(firstPage, q.MaxPages, totalPages)
	plan.PerPage = perPage
	plan.BatchSize = cfg.BatchSize
	plan.Workers = cfg.Workers
	plan.TotalCount = totalCount
	plan.HandshakeReused = !cfg.MinimalHandshake

	hs := &handshake{
		first: handshakeOutcome(firstPage, page),
		plan:  plan,
	}
	hs.first.TotalPages = totalPages

	switch {
	case len(page.Records) == 0:
		// nothing matched
		hs.plan.HandshakeReused = true
		hs.plan.LastPage = firstPage
		hs.done = true
	case page.Single:
		hs.plan.HandshakeReused = true
		hs.plan.LastPage = firstPage
		hs.done = true
	case plan.HandshakeReused && (len(page.Records) < perPage || plan.LastPage == firstPage || len(page.Records) == totalCount):
		hs.plan.LastPage = firstPage
		hs.done = true
	}

	return hs, nil
}

func (bf *BatchFetcher) handshakeRequest(ctx context.Context, requester *PageRequester, q query.Query) (*client.Page, error) {
	req := client.Request{
		Endpoint: q.Endpoint,
		ItemID:   q.ItemID,
		Params:   q.Params(),
	}

	page, _, err := requester.fetch(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrHandshake, err)
	}
	return page, nil
}

func handshakeOutcome(pageNum int, page *client.Page) Outcome {
	return Outcome{
		Page:    pageNum,
		Records: page.Records,
		Total:   page.Total,
	}
}

// reportedTotals reads the total record count and the total number of pages
// of size perPage from the handshake response.
func reportedTotals(page *client.Page, handshakePerPage, perPage, firstPage int) (totalCount, totalPages int) {
	switch {
	case page.HasMeta && page.Total > 0:
		totalCount = page.Total
	case page.HasMeta && page.LastPage > 0:
		// no total: estimate from the last page at the handshake page size
		totalCount = page.LastPage * handshakePerPage
	default:
		// no metadata: only the records we already have
		totalCount = (firstPage-1)*handshakePerPage + len(page.Records)
	}

	totalPages = (totalCount + perPage - 1) / perPage
	return totalCount, totalPages
}
