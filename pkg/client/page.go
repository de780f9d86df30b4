package client

import (
	"fmt"

	"github.com/Sternrassler/fount-client/pkg/ratelimit"
	"github.com/tidwall/gjson"
)

// Record is one JSON object from a Fount "data" array.
type Record = map[string]any

// Page is a parsed Fount response envelope:
//
//	{"data": [...], "meta": {"current_page": 1, "last_page": 3, "per_page": 25, "total": 70}}
type Page struct {
	// Records holds the objects in "data". A single-object response yields one record.
	Records []Record

	// Single is true when "data" was an object (item by id) rather than a list.
	Single bool

	// HasMeta is true when the response carried pagination metadata.
	HasMeta bool

	Total       int
	CurrentPage int
	LastPage    int
	PerPage     int

	// RateLimit is the quota reported with this response, if any.
	RateLimit ratelimit.State
}

// parsePage decodes the Fount envelope.
func parsePage(body []byte) (*Page, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: invalid json", ErrMalformedResponse)
	}

	page := &Page{}

	data := gjson.GetBytes(body, "data")
	switch {
	case data.IsArray():
		items := data.Array()
		page.Records = make([]Record, 0, len(items))
		for i, item := range items {
			record, ok := item.Value().(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: data[%d] is not an object", ErrMalformedResponse, i)
			}
			page.Records = append(page.Records, record)
		}
	case data.IsObject():
		record, _ := data.Value().(map[string]any)
		page.Records = []Record{record}
		page.Single = true
	default:
		return nil, fmt.Errorf("%w: missing data", ErrMalformedResponse)
	}

	meta := gjson.GetBytes(body, "meta")
	if meta.IsObject() {
		page.HasMeta = true
		page.Total = int(meta.Get("total").Int())
		page.CurrentPage = int(meta.Get("current_page").Int())
		page.LastPage = int(meta.Get("last_page").Int())
		page.PerPage = int(meta.Get("per_page").Int())
	}

	return page, nil
}

// errorMessage extracts the "message" member of an error body.
func errorMessage(body []byte) string {
	if msg := gjson.GetBytes(body, "message"); msg.Exists() && msg.String() != "" {
		return msg.String()
	}
	return defaultErrorMessage
}
