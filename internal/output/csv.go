package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
)

// CSVWriter writes records as CSV rows under a fixed header. The columns
// are locked in at the first write: either the configured order, or the
// first record's keys sorted. Keys outside the header are dropped.
type CSVWriter struct {
	w           *csv.Writer
	columns     []string
	wroteHeader bool
}

// NewCSVWriter creates a CSV writer. A nil columns slice derives the
// header from the first record.
func NewCSVWriter(w io.Writer, columns []string) *CSVWriter {
	return &CSVWriter{
		w:       csv.NewWriter(w),
		columns: columns,
	}
}

// Write emits one record as a CSV row, writing the header first if
// needed.
func (w *CSVWriter) Write(record map[string]any) error {
	if !w.wroteHeader {
		if len(w.columns) == 0 {
			w.columns = sortedKeys(record)
		}
		if err := w.w.Write(w.columns); err != nil {
			return err
		}
		w.wroteHeader = true
	}

	row := make([]string, len(w.columns))
	for i, col := range w.columns {
		row[i] = formatCell(record[col])
	}
	return w.w.Write(row)
}

// WriteAll emits a batch of records.
func (w *CSVWriter) WriteAll(records []map[string]any) error {
	for _, record := range records {
		if err := w.Write(record); err != nil {
			return err
		}
	}
	return nil
}

// Flush writes any buffered rows.
func (w *CSVWriter) Flush() error {
	w.w.Flush()
	return w.w.Error()
}

// Close flushes the writer.
func (w *CSVWriter) Close() error {
	return w.Flush()
}

func sortedKeys(record map[string]any) []string {
	keys := make([]string, 0, len(record))
	for k := range record {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// formatCell renders a value for a CSV cell. Scalars print naturally,
// nil becomes empty, and composite values fall back to JSON.
func formatCell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
