package source

import (
	"context"
	"fmt"
)

// List is an in-memory source wrapping records the caller already has.
type List struct {
	records []map[string]any
}

// NewList wraps records in a source. The records are used as-is, not copied.
func NewList(records ...map[string]any) *List {
	return &List{records: records}
}

// Records returns the wrapped records.
func (l *List) Records(_ context.Context) ([]map[string]any, error) {
	return l.records, nil
}

// Name identifies the source type.
func (l *List) Name() string { return "list" }

var _ Source = (*List)(nil)

func init() {
	Register("list", newListFromOptions)
}

// newListFromOptions builds a list source from a "records" option holding a
// list of objects.
func newListFromOptions(options map[string]any) (Source, error) {
	raw, ok := options["records"]
	if !ok {
		return nil, fmt.Errorf("list source requires a records option")
	}

	items, ok := raw.([]any)
	if !ok {
		if typed, ok := raw.([]map[string]any); ok {
			return NewList(typed...), nil
		}
		return nil, fmt.Errorf("list source records must be a list of objects, got %T", raw)
	}

	records := make([]map[string]any, 0, len(items))
	for i, item := range items {
		rec, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("list source record %d is not an object, got %T", i, item)
		}
		records = append(records, rec)
	}
	return NewList(records...), nil
}
