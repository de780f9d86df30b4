// Package flatten turns nested Fount records into flat rows and tables.
package flatten

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Sternrassler/fount-client/pkg/client"
	"github.com/nqd/flat"
)

// Row is a flat record: nested keys are joined with the separator.
type Row = map[string]any

// Options controls flattening.
type Options struct {
	// Separator joins parent and child keys (default "_").
	Separator string

	// Prefix is prepended to nested keys that clash with a top-level key,
	// e.g. with Prefix "global" a nested "brand" next to "brand_id" becomes
	// "global_brand_...". Empty ignores clashes.
	Prefix string

	// Expand turns lists of objects into one row per element.
	// With several lists the rows are their cartesian product.
	Expand bool
}

func (o Options) separator() string {
	if o.Separator == "" {
		return "_"
	}
	return o.Separator
}

// Record flattens one record. Without Expand it always returns one row.
func Record(record client.Record, opts Options) ([]Row, error) {
	row, err := flatRow(record, "", opts)
	if err != nil {
		return nil, err
	}
	if !opts.Expand {
		return []Row{row}, nil
	}
	return expand(row, opts)
}

// Records flattens records in order.
func Records(records []client.Record, opts Options) ([]Row, error) {
	rows := make([]Row, 0, len(records))
	for i, record := range records {
		flattened, err := Record(record, opts)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		rows = append(rows, flattened...)
	}
	return rows, nil
}

func flatRow(record map[string]any, parent string, opts Options) (Row, error) {
	if len(record) == 0 {
		return Row{}, nil
	}

	sep := opts.separator()
	flattened, err := flat.Flatten(prefixClashes(record, opts.Prefix, sep), &flat.Options{
		Delimiter: sep,
		Safe:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("flatten: %w", err)
	}
	if parent == "" {
		return flattened, nil
	}

	row := make(Row, len(flattened))
	for key, value := range flattened {
		row[parent+sep+key] = value
	}
	return row, nil
}

// prefixClashes renames nested objects whose key starts a scalar key of the
// same level, so their flattened keys cannot overwrite it.
func prefixClashes(record map[string]any, prefix, sep string) map[string]any {
	if prefix == "" {
		return record
	}

	var scalars []string
	for key, value := range record {
		if _, nested := value.(map[string]any); !nested {
			scalars = append(scalars, key)
		}
	}

	out := make(map[string]any, len(record))
	for key, value := range record {
		nested, ok := value.(map[string]any)
		if !ok {
			out[key] = value
			continue
		}

		newKey := key
		for _, scalar := range scalars {
			if strings.HasPrefix(scalar, key) {
				newKey = prefix + sep + key
				break
			}
		}
		out[newKey] = prefixClashes(nested, prefix, sep)
	}
	return out
}

// expand replaces each list of objects in row with one row per element.
func expand(row Row, opts Options) ([]Row, error) {
	var listKeys []string
	for key, value := range row {
		if list, ok := value.([]any); ok && len(list) > 0 {
			listKeys = append(listKeys, key)
		}
	}
	if len(listKeys) == 0 {
		return []Row{row}, nil
	}
	sort.Strings(listKeys)

	base := make(Row, len(row))
	for key, value := range row {
		base[key] = value
	}
	for _, key := range listKeys {
		delete(base, key)
	}

	rows := []Row{base}
	for _, key := range listKeys {
		var parts []Row
		for _, item := range row[key].([]any) {
			itemRows, err := expandItem(key, item, opts)
			if err != nil {
				return nil, err
			}
			parts = append(parts, itemRows...)
		}

		next := make([]Row, 0, len(rows)*len(parts))
		for _, r := range rows {
			for _, part := range parts {
				merged := make(Row, len(r)+len(part))
				for k, v := range r {
					merged[k] = v
				}
				for k, v := range part {
					merged[k] = v
				}
				next = append(next, merged)
			}
		}
		rows = next
	}
	return rows, nil
}

func expandItem(key string, item any, opts Options) ([]Row, error) {
	nested, ok := item.(map[string]any)
	if !ok {
		return []Row{{key: item}}, nil
	}
	row, err := flatRow(nested, key, opts)
	if err != nil {
		return nil, err
	}
	return expand(row, opts)
}
