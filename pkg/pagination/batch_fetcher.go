package pagination

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Sternrassler/fount-client/pkg/client"
	"github.com/Sternrassler/fount-client/pkg/query"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// BatchFetcher handles parallel fetching of multiple pages
type BatchFetcher struct {
	fetcher PageFetcher
	config  Config
	logger  zerolog.Logger
}

// NewBatchFetcher creates a new batch fetcher.
// Zero PerPage, BatchSize, Workers, Timeout and OnErrors are replaced by
// their DefaultConfig values. Zero Retries and delays are kept.
func NewBatchFetcher(fetcher PageFetcher, config Config) *BatchFetcher {
	defaults := DefaultConfig()
	if config.PerPage <= 0 {
		config.PerPage = defaults.PerPage
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.Workers <= 0 {
		config.Workers = defaults.Workers
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.OnErrors == "" {
		config.OnErrors = defaults.OnErrors
	}

	return &BatchFetcher{
		fetcher: fetcher,
		config:  config,
		logger:  log.With().Str("component", "pagination").Logger(),
	}
}

// Config returns the fetcher's default configuration.
func (bf *BatchFetcher) Config() Config {
	return bf.config
}

// FetchAllPages fetches every page of q using a pool of workers.
//
// The first page is requested alone to validate the query and read the
// reported totals; its failure aborts the fetch with ErrHandshake. The
// remaining pages are split into batches and fetched concurrently. Pages
// that fail after retries are handled by the configured ErrorPolicy.
func (bf *BatchFetcher) FetchAllPages(ctx context.Context, q query.Query, opts ...Option) (*Result, error) {
	cfg := bf.config
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	logger := bf.logger.With().
		Str("fetch_id", uuid.NewString()).
		Str("endpoint", q.Endpoint).
		Logger()
	requester := NewPageRequester(bf.fetcher, cfg, logger)

	hs, err := bf.resolve(ctx, requester, q, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("Handshake failed")
		return nil, err
	}
	plan := hs.plan

	logger.Info().
		Int("first_page", plan.FirstPage).
		Int("last_page", plan.LastPage).
		Int("total_pages", plan.TotalPages).
		Int("total", plan.TotalCount).
		Bool("single", hs.done).
		Msg("Starting parallel page fetch")

	if !hs.done && cfg.Tracker != nil {
		if err := cfg.Tracker.CheckBudget(ctx, plan.LastPage-plan.remaining()+1); err != nil {
			return nil, err
		}
	}

	progress := cfg.progress(logger)
	progress.SetTotal(plan.Pages())

	collector := NewCollector()
	if plan.HandshakeReused {
		collector.Add(hs.first)
		fountPagesTotal.WithLabelValues(q.Endpoint, "success").Inc()
		progress.Advance(1)
	}

	stopPage := int64(math.MaxInt64)
	if !hs.done {
		if err := bf.fetchRemaining(ctx, requester, q, plan, collector, progress, &stopPage, logger); err != nil {
			return nil, err
		}
	}

	stop := int(atomic.LoadInt64(&stopPage))
	if stop == math.MaxInt64 {
		stop = 0
	}

	result, err := collector.Result(q.Endpoint, plan, cfg.OnErrors, stop)
	fountFetchDuration.WithLabelValues(q.Endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		logger.Error().
			Err(err).
			Dur("duration", time.Since(start)).
			Msg("Fetch failed")
		return nil, err
	}

	if result.Warning != nil {
		logger.Warn().
			Ints("failed_pages", result.Warning.(*FetchError).Pages()).
			Err(result.Warning).
			Msg("Returning partial results")
	}

	logger.Info().
		Int("pages", len(result.Pages)).
		Int("failed", len(result.Failures)).
		Int("total", plan.Pages()).
		Dur("duration", time.Since(start)).
		Msg("Fetch complete")

	return result, nil
}

// fetchRemaining fetches the pages after the handshake in batches.
// Page failures are collected, never returned; only cancellation of ctx
// stops the workers early.
func (bf *BatchFetcher) fetchRemaining(
	ctx context.Context,
	requester *PageRequester,
	q query.Query,
	plan Plan,
	collector *Collector,
	progress Progress,
	stopPage *int64,
	logger zerolog.Logger,
) error {
	batches := partition(plan.remaining(), plan.LastPage, plan.BatchSize)
	if len(batches) == 0 {
		return nil
	}

	batchQueue := make(chan []int, len(batches))
	for _, batch := range batches {
		batchQueue <- batch
	}
	close(batchQueue)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < plan.Workers; i++ {
		workerID := i
		g.Go(func() error {
			return bf.worker(gctx, workerID, requester, q, plan, batchQueue, collector, progress, stopPage, logger)
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("fetch %s: %w", q.Endpoint, err)
	}
	return nil
}

// worker processes batches from the queue. The pages of a batch are requested
// concurrently and the worker waits for all of them before taking the next batch.
func (bf *BatchFetcher) worker(
	ctx context.Context,
	workerID int,
	requester *PageRequester,
	q query.Query,
	plan Plan,
	batchQueue <-chan []int,
	collector *Collector,
	progress Progress,
	stopPage *int64,
	logger zerolog.Logger,
) error {
	pagesProcessed := 0

	for batch := range batchQueue {
		// Check context cancellation
		if err := ctx.Err(); err != nil {
			logger.Debug().
				Int("worker_id", workerID).
				Int("pages_processed", pagesProcessed).
				Msg("Worker stopping (context cancelled)")
			return err
		}

		var wg sync.WaitGroup
		for _, pageNum := range batch {
			if int64(pageNum) > atomic.LoadInt64(stopPage) {
				break
			}

			wg.Add(1)
			go func(pageNum int) {
				defer wg.Done()

				outcome := requester.Request(ctx, client.Request{
					Endpoint: q.Endpoint,
					Params:   q.WithPage(pageNum, plan.PerPage, 0).Params(),
				})
				outcome.Page = pageNum

				if outcome.OK() {
					fountPagesTotal.WithLabelValues(q.Endpoint, "success").Inc()
					if len(outcome.Records) < plan.PerPage {
						lowerStop(stopPage, int64(pageNum))
						logger.Debug().
							Int("page", pageNum).
							Int("records", len(outcome.Records)).
							Msg("Short page, no data after it")
					}
				} else {
					fountPagesTotal.WithLabelValues(q.Endpoint, "failure").Inc()
					logger.Warn().
						Err(outcome.Err).
						Int("worker_id", workerID).
						Int("page", pageNum).
						Msg("Page fetch failed")
				}

				collector.Add(outcome)
				progress.Advance(1)
			}(pageNum)
		}
		wg.Wait()
		pagesProcessed += len(batch)
	}

	if pagesProcessed > 0 {
		logger.Debug().
			Int("worker_id", workerID).
			Int("pages_processed", pagesProcessed).
			Msg("Worker completed")
	}
	return ctx.Err()
}

// lowerStop sets *stop to page if page is lower.
func lowerStop(stop *int64, page int64) {
	for {
		current := atomic.LoadInt64(stop)
		if page >= current || atomic.CompareAndSwapInt64(stop, current, page) {
			return
		}
	}
}

// partition splits [first, last] into consecutive batches of at most size pages.
func partition(first, last, size int) [][]int {
	if last < first || size <= 0 {
		return nil
	}
	batches := make([][]int, 0, (last-first)/size+1)
	for start := first; start <= last; start += size {
		end := min(start+size-1, last)
		batch := make([]int, 0, end-start+1)
		for page := start; page <= end; page++ {
			batch = append(batch, page)
		}
		batches = append(batches, batch)
	}
	return batches
}
