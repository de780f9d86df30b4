// Package pagination provides parallel batch fetching for paginated Fount endpoints.
//
// The Fount reports the total number of records in the "meta" member of every
// list response. This package requests the first page (the handshake) to read
// that total, then fetches the remaining pages with a pool of workers that
// take batches of consecutive pages from a shared queue.
//
// Example usage:
//
//	fetcher := pagination.NewBatchFetcher(fountClient, pagination.DefaultConfig())
//	result, err := fetcher.FetchAllPages(ctx, query.Query{
//		Endpoint: "brands",
//		Filters:  map[string]any{"country_codes": "UK"},
//	})
//	records := result.Records()
//
// The batch fetcher:
//   - Fails fast if the handshake fails (validation errors are never retried)
//   - Caps the page range at the reported total, even when MaxPages is larger
//   - Runs Workers batches of BatchSize pages at a time (default 2 x 10)
//   - Retries transient page failures, treats 404 as an empty page
//   - Stops launching pages once a page comes back short
//   - Returns pages in page order and applies the warn/raise error policy
package pagination
