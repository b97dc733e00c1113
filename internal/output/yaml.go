package output

import (
	"bufio"
	"io"

	"gopkg.in/yaml.v3"
)

// YAMLWriter buffers records and emits them as a YAML list.
type YAMLWriter struct {
	w       *bufio.Writer
	records []map[string]any
}

// NewYAMLWriter creates a YAML writer.
func NewYAMLWriter(w io.Writer) *YAMLWriter {
	return &YAMLWriter{
		w: bufio.NewWriter(w),
	}
}

// Write buffers a single record.
func (w *YAMLWriter) Write(record map[string]any) error {
	w.records = append(w.records, record)
	return nil
}

// WriteAll buffers a batch of records.
func (w *YAMLWriter) WriteAll(records []map[string]any) error {
	w.records = append(w.records, records...)
	return nil
}

// Flush writes the buffered records as a YAML list.
func (w *YAMLWriter) Flush() error {
	out := w.records
	if out == nil {
		out = []map[string]any{}
	}

	encoder := yaml.NewEncoder(w.w)
	encoder.SetIndent(2)

	if err := encoder.Encode(out); err != nil {
		return err
	}
	if err := encoder.Close(); err != nil {
		return err
	}
	return w.w.Flush()
}

// Close flushes and closes the writer.
func (w *YAMLWriter) Close() error {
	return w.Flush()
}
