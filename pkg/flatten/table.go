package flatten

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/Sternrassler/fount-client/pkg/client"
	"github.com/spf13/cast"
)

// Table is a set of flat rows with a stable column order.
type Table struct {
	Columns []string
	Rows    []Row
}

// NewTable flattens records into a table. Columns appear in the order they
// are first seen; keys of one row are taken alphabetically, with "id" first.
func NewTable(records []client.Record, opts Options) (*Table, error) {
	rows, err := Records(records, opts)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var columns []string
	for _, row := range rows {
		for _, key := range sortedKeys(row) {
			if !seen[key] {
				seen[key] = true
				columns = append(columns, key)
			}
		}
	}

	return &Table{Columns: columns, Rows: rows}, nil
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// Column returns the values of one column; missing cells are nil.
func (t *Table) Column(name string) []any {
	values := make([]any, len(t.Rows))
	for i, row := range t.Rows {
		values[i] = row[name]
	}
	return values
}

// WriteCSV writes the table with a header line.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	record := make([]string, len(t.Columns))
	for _, row := range t.Rows {
		for i, column := range t.Columns {
			record[i] = cell(row[column])
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func cell(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case []any, map[string]any:
		encoded, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(encoded)
	default:
		return cast.ToString(v)
	}
}

func sortedKeys(row Row) []string {
	keys := make([]string, 0, len(row))
	for key := range row {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i] == "id" || keys[j] == "id" {
			return keys[i] == "id" && keys[j] != "id"
		}
		return keys[i] < keys[j]
	})
	return keys
}
