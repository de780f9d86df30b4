package query

import (
	"github.com/samber/lo"
)

// MergeFilters returns a new filter map holding fallback and primary.
// Keys present in primary win. Empty fallback values are dropped.
// Neither input is modified.
func MergeFilters(fallback, primary map[string]any) map[string]any {
	merged := make(map[string]any, len(fallback)+len(primary))
	for key, value := range fallback {
		if _, ok := encodeValue(value); ok {
			merged[key] = value
		}
	}
	for key, value := range primary {
		merged[key] = value
	}
	if len(merged) == 0 {
		return nil
	}
	return merged
}

// Merge returns a copy of primary whose unset fields are taken from fallback.
// Filters are merged with MergeFilters.
func Merge(fallback, primary Query) Query {
	out := primary.clone()

	out.Filters = MergeFilters(fallback.Filters, primary.Filters)

	if out.Endpoint == "" {
		out.Endpoint = fallback.Endpoint
	}
	if out.ItemID == "" {
		out.ItemID = fallback.ItemID
	}
	if len(out.Fields) == 0 {
		out.Fields = append([]string(nil), fallback.Fields...)
	}
	if len(out.Include) == 0 {
		out.Include = append([]string(nil), fallback.Include...)
	}
	if len(out.MetricKeys) == 0 {
		out.MetricKeys = append([]string(nil), fallback.MetricKeys...)
	}
	if len(out.MetricGroupKeys) == 0 {
		out.MetricGroupKeys = append([]string(nil), fallback.MetricGroupKeys...)
	}
	if out.Sort == "" {
		out.Sort = fallback.Sort
	}
	if out.Page == 0 {
		out.Page = fallback.Page
	}
	if out.PerPage == 0 {
		out.PerPage = fallback.PerPage
	}
	if out.MaxPages == 0 {
		out.MaxPages = fallback.MaxPages
	}
	if out.UpdatedSince.IsZero() {
		out.UpdatedSince = fallback.UpdatedSince
	}

	return out
}

// NoDefault in an include list suppresses the endpoint's default includes.
const NoDefault = "no_default"

// DefaultInclude returns include with defaults added, without duplicates.
// If include contains NoDefault the result has neither defaults nor NoDefault.
func DefaultInclude(include, defaults []string) []string {
	if lo.Contains(include, NoDefault) {
		rest := lo.Filter(include, func(item string, _ int) bool {
			return item != NoDefault
		})
		if len(rest) == 0 {
			return nil
		}
		return lo.Uniq(rest)
	}
	combined := append(append([]string(nil), include...), defaults...)
	if len(combined) == 0 {
		return nil
	}
	return lo.Uniq(combined)
}
