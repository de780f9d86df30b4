package flatten

import (
	"fmt"

	"github.com/Sternrassler/fount-client/pkg/client"
	"github.com/mitchellh/mapstructure"
)

// Decode copies a record into out, a pointer to a struct with json tags.
// Numbers and strings are converted where the target type needs it.
func Decode(record client.Record, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("create decoder: %w", err)
	}
	if err := decoder.Decode(record); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	return nil
}

// DecodeAll decodes every record into a T.
func DecodeAll[T any](records []client.Record) ([]T, error) {
	out := make([]T, len(records))
	for i, record := range records {
		if err := Decode(record, &out[i]); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
	}
	return out, nil
}
