package output

import (
	"bufio"
	"encoding/json"
	"io"
)

// JSONWriter buffers records and emits them as a single JSON array.
type JSONWriter struct {
	w       *bufio.Writer
	pretty  bool
	indent  string
	records []map[string]any
}

// NewJSONWriter creates a JSON writer.
func NewJSONWriter(w io.Writer, pretty bool, indent string) *JSONWriter {
	return &JSONWriter{
		w:      bufio.NewWriter(w),
		pretty: pretty,
		indent: indent,
	}
}

// Write buffers a single record.
func (w *JSONWriter) Write(record map[string]any) error {
	w.records = append(w.records, record)
	return nil
}

// WriteAll buffers a batch of records.
func (w *JSONWriter) WriteAll(records []map[string]any) error {
	w.records = append(w.records, records...)
	return nil
}

// Flush writes the buffered records. The output is always an array, even
// for zero or one record.
func (w *JSONWriter) Flush() error {
	out := w.records
	if out == nil {
		out = []map[string]any{}
	}

	var (
		data []byte
		err  error
	)
	if w.pretty {
		data, err = json.MarshalIndent(out, "", w.indent)
	} else {
		data, err = json.Marshal(out)
	}
	if err != nil {
		return err
	}

	if _, err := w.w.Write(data); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

// Close flushes and closes the writer.
func (w *JSONWriter) Close() error {
	return w.Flush()
}

// JSONLWriter writes newline-delimited JSON, one record per line. Lines
// are flushed as they are written, so output streams while a batch runs.
type JSONLWriter struct {
	w *bufio.Writer
}

// NewJSONLWriter creates a JSONL writer.
func NewJSONLWriter(w io.Writer) *JSONLWriter {
	return &JSONLWriter{
		w: bufio.NewWriter(w),
	}
}

// Write writes a single record as a JSON line.
func (w *JSONLWriter) Write(record map[string]any) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}

	if _, err := w.w.Write(data); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

// WriteAll writes a batch of records as JSON lines.
func (w *JSONLWriter) WriteAll(records []map[string]any) error {
	for _, record := range records {
		if err := w.Write(record); err != nil {
			return err
		}
	}
	return nil
}

// Flush flushes the buffer.
func (w *JSONLWriter) Flush() error {
	return w.w.Flush()
}

// Close flushes the writer.
func (w *JSONLWriter) Close() error {
	return w.Flush()
}
