package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Sternrassler/fount-client/pkg/flatten"
	"github.com/Sternrassler/fount-client/pkg/fount"
	"github.com/Sternrassler/fount-client/pkg/pagination"
	"github.com/Sternrassler/fount-client/pkg/query"
	"github.com/spf13/cobra"
)

const (
	outputJSON = "json"
	outputCSV  = "csv"
)

type queryOptions struct {
	filters         []string
	fields          []string
	include         []string
	metricKeys      []string
	metricGroupKeys []string
	sort            string
	updatedSince    string

	page     int
	perPage  int
	maxPages int

	workers   int
	batchSize int
	retries   int
	onErrors  string
	verbose   bool
	raw       bool

	output string
	expand bool
}

func newQueryCmd(global *globalOptions) *cobra.Command {
	opts := &queryOptions{}

	cmd := &cobra.Command{
		Use:   "query ENDPOINT [ID]",
		Short: "Fetch all pages of an endpoint",
		Example: `  fount query brands --filter country_code=CH
  fount query brandscape-data --filter brands=7,8 --output csv --expand
  fount query studies 3`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, global, opts, args)
		},
	}

	flags := cmd.Flags()
	flags.StringArrayVarP(&opts.filters, "filter", "f", nil, "filter as key=value; comma separated values form a list")
	flags.StringSliceVar(&opts.fields, "fields", nil, "attributes to return")
	flags.StringSliceVar(&opts.include, "include", nil, "related resources to embed ("+query.NoDefault+" drops the defaults)")
	flags.StringSliceVar(&opts.metricKeys, "metric-keys", nil, "brandscape-data metric keys")
	flags.StringSliceVar(&opts.metricGroupKeys, "metric-group-keys", nil, "brandscape-data metric group keys")
	flags.StringVar(&opts.sort, "sort", "", "sort field, prefix with - for descending")
	flags.StringVar(&opts.updatedSince, "updated-since", "", "only records updated since this RFC 3339 time")

	flags.IntVar(&opts.page, "page", 0, "first page to fetch")
	flags.IntVar(&opts.perPage, "per-page", 0, "records per page (default from config)")
	flags.IntVar(&opts.maxPages, "max-pages", 0, "stop after this many pages")

	flags.IntVar(&opts.workers, "workers", 0, "batches in flight (default from config)")
	flags.IntVar(&opts.batchSize, "batch", 0, "pages per batch (default from config)")
	flags.IntVar(&opts.retries, "retries", -1, "retries per page (default from config)")
	flags.StringVar(&opts.onErrors, "on-errors", "", "what to do when pages fail: warn or raise")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "show a progress bar on stderr")
	flags.BoolVar(&opts.raw, "raw", false, "send the query without default includes")

	flags.StringVarP(&opts.output, "output", "o", outputJSON, "output format: json or csv")
	flags.BoolVar(&opts.expand, "expand", false, "csv: one row per element of list fields")

	return cmd
}

func runQuery(cmd *cobra.Command, global *globalOptions, opts *queryOptions, args []string) error {
	if opts.output != outputJSON && opts.output != outputCSV {
		return fmt.Errorf("unknown output format %q (want %q or %q)", opts.output, outputJSON, outputCSV)
	}
	if !fount.IsEndpoint(args[0]) {
		return fmt.Errorf("unknown endpoint %q (known: %s)", args[0], strings.Join(fount.Endpoints, ", "))
	}

	q, err := opts.query(args)
	if err != nil {
		return err
	}
	fetchOpts, err := opts.fetchOptions(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	cfg, err := global.loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	s, err := global.newSession(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	fetch := s.client.Query
	if opts.raw {
		fetch = s.client.RawQuery
	}
	result, err := fetch(ctx, q, fetchOpts...)
	if err != nil {
		return err
	}
	return writeRecords(cmd.OutOrStdout(), opts, q.Endpoint, result)
}

func (o *queryOptions) query(args []string) (query.Query, error) {
	filters, err := parseFilters(o.filters)
	if err != nil {
		return query.Query{}, err
	}

	q := query.Query{
		Endpoint:        args[0],
		Filters:         filters,
		Fields:          o.fields,
		Include:         o.include,
		MetricKeys:      o.metricKeys,
		MetricGroupKeys: o.metricGroupKeys,
		Sort:            o.sort,
		Page:            o.page,
		PerPage:         o.perPage,
		MaxPages:        o.maxPages,
	}
	if len(args) > 1 {
		q.ItemID = args[1]
	}
	if o.updatedSince != "" {
		since, err := time.Parse(time.RFC3339, o.updatedSince)
		if err != nil {
			return query.Query{}, fmt.Errorf("--updated-since: %w", err)
		}
		q.UpdatedSince = since
	}
	return q, nil
}

func (o *queryOptions) fetchOptions(stderr io.Writer) ([]pagination.Option, error) {
	var opts []pagination.Option
	if o.workers > 0 {
		opts = append(opts, pagination.WithWorkers(o.workers))
	}
	if o.batchSize > 0 {
		opts = append(opts, pagination.WithBatchSize(o.batchSize))
	}
	if o.retries >= 0 {
		opts = append(opts, pagination.WithRetries(o.retries))
	}
	if o.onErrors != "" {
		policy, err := pagination.ParseErrorPolicy(o.onErrors)
		if err != nil {
			return nil, err
		}
		opts = append(opts, pagination.WithErrorPolicy(policy))
	}
	if o.verbose {
		opts = append(opts, pagination.WithProgress(pagination.NewBarProgress(stderr)))
	}
	return opts, nil
}

// parseFilters turns key=value flags into query filters.
func parseFilters(raw []string) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	filters := make(map[string]any, len(raw))
	for _, item := range raw {
		key, value, ok := strings.Cut(item, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid filter %q (want key=value)", item)
		}
		if strings.Contains(value, ",") {
			filters[key] = strings.Split(value, ",")
		} else {
			filters[key] = value
		}
	}
	return filters, nil
}

func writeRecords(w io.Writer, opts *queryOptions, endpoint string, result *pagination.Result) error {
	records := result.Records()

	if opts.output == outputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}

	table, err := flatten.NewTable(records, flatten.Options{
		Prefix: fount.FlattenPrefix(endpoint),
		Expand: opts.expand,
	})
	if err != nil {
		return err
	}
	return table.WriteCSV(w)
}
