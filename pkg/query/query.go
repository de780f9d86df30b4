// Package query builds validated Fount query descriptors and encodes them
// into request parameters.
package query

import (
	"maps"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/huandu/xstrings"
	"github.com/spf13/cast"
)

// MaxPerPage is the largest page size the Fount accepts.
const MaxPerPage = 1000

// UpdatedSinceLayout is the format of the updated_since filter value.
const UpdatedSinceLayout = "2006-01-02 15:04:05"

// Query describes one logical Fount query.
// A Query is a value: transforms such as WithPage return a copy.
type Query struct {
	// Endpoint is the Fount resource, e.g. "brands" or "brandscape-data".
	Endpoint string `validate:"required"`

	// ItemID requests a single resource by identifier.
	ItemID string

	// Filters are sent as filter[<key>]. Values are scalars or slices.
	Filters map[string]any

	// Fields restricts the returned attributes (fields[<endpoint>]).
	Fields []string

	// Include lists related resources to embed.
	Include []string

	// MetricKeys and MetricGroupKeys select brandscape-data metrics.
	MetricKeys      []string
	MetricGroupKeys []string

	// Sort orders the response; prefix with "-" for descending.
	Sort string

	Page     int `validate:"gte=0"`
	PerPage  int `validate:"gte=0,lte=1000"`
	MaxPages int `validate:"gte=0"`

	// UpdatedSince is sent as filter[updated_since] when set.
	UpdatedSince time.Time
}

// IsSinglePage reports whether the query denotes exactly one page:
// either MaxPages is 1, or a page is requested without pagination settings.
func (q Query) IsSinglePage() bool {
	return q.MaxPages == 1 || (q.Page > 0 && q.PerPage == 0 && q.MaxPages == 0)
}

// WithPage returns a copy of q with the given page settings.
// Zero arguments keep the current value.
func (q Query) WithPage(page, perPage, maxPages int) Query {
	out := q.clone()
	if page > 0 {
		out.Page = page
	}
	if perPage > 0 {
		out.PerPage = perPage
	}
	if maxPages > 0 {
		out.MaxPages = maxPages
	}
	return out
}

func (q Query) clone() Query {
	out := q
	out.Filters = maps.Clone(q.Filters)
	out.Fields = append([]string(nil), q.Fields...)
	out.Include = append([]string(nil), q.Include...)
	out.MetricKeys = append([]string(nil), q.MetricKeys...)
	out.MetricGroupKeys = append([]string(nil), q.MetricGroupKeys...)
	return out
}

// Params encodes the query as Fount request parameters.
// ItemID and MaxPages are never encoded; every other field is, including
// for item requests.
func (q Query) Params() url.Values {
	params := url.Values{}

	for key, value := range q.Filters {
		if encoded, ok := encodeValue(value); ok {
			params.Set("filter["+key+"]", encoded)
		}
	}
	if !q.UpdatedSince.IsZero() && params.Get("filter[updated_since]") == "" {
		params.Set("filter[updated_since]", q.UpdatedSince.UTC().Format(UpdatedSinceLayout))
	}

	if len(q.Fields) > 0 {
		params.Set("fields["+xstrings.ToSnakeCase(q.Endpoint)+"]", strings.Join(q.Fields, ","))
	}
	if len(q.Include) > 0 {
		params.Set("include", strings.Join(q.Include, ","))
	}
	if len(q.MetricKeys) > 0 {
		params.Set("metric_keys", strings.Join(q.MetricKeys, ","))
	}
	if len(q.MetricGroupKeys) > 0 {
		params.Set("metric_group_keys", strings.Join(q.MetricGroupKeys, ","))
	}
	if q.Sort != "" {
		params.Set("sort", q.Sort)
	}
	if q.Page > 0 {
		params.Set("page", strconv.Itoa(q.Page))
	}
	if q.PerPage > 0 {
		params.Set("per_page", strconv.Itoa(q.PerPage))
	}

	return params
}

// encodeValue renders a filter value. Slices are joined with ",".
// ok is false for values that should not be sent at all.
func encodeValue(value any) (string, bool) {
	if value == nil {
		return "", false
	}

	switch v := value.(type) {
	case string:
		return v, v != ""
	case time.Time:
		return v.UTC().Format(UpdatedSinceLayout), !v.IsZero()
	case bool:
		// the Fount expects 1/0 flags
		if v {
			return "1", true
		}
		return "0", true
	}

	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		if rv.Len() == 0 {
			return "", false
		}
		parts := make([]string, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			parts = append(parts, cast.ToString(rv.Index(i).Interface()))
		}
		return strings.Join(parts, ","), true
	}

	return cast.ToString(value), true
}
