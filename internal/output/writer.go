// Package output writes extraction records to a destination in JSON,
// JSONL, YAML, or CSV form.
package output

import (
	"fmt"
	"io"
	"strings"
)

// Format identifies an output serialization.
type Format string

const (
	FormatJSON  Format = "json"
	FormatJSONL Format = "jsonl"
	FormatYAML  Format = "yaml"
	FormatCSV   Format = "csv"
)

// ParseFormat validates a format name from a flag or config value.
func ParseFormat(name string) (Format, error) {
	switch f := Format(strings.ToLower(name)); f {
	case FormatJSON, FormatJSONL, FormatYAML, FormatCSV:
		return f, nil
	}
	return "", fmt.Errorf("unsupported output format: %s (use json, jsonl, yaml, or csv)", name)
}

// Writer serializes extraction records.
type Writer interface {
	// Write emits a single record.
	Write(record map[string]any) error

	// WriteAll emits a batch of records.
	WriteAll(records []map[string]any) error

	// Flush ensures all buffered data is written.
	Flush() error

	// Close releases resources.
	Close() error
}

// WriterOption configures a writer.
type WriterOption func(*writerConfig)

type writerConfig struct {
	pretty  bool
	indent  string
	columns []string
}

// WithPretty toggles indented JSON output.
func WithPretty(enabled bool) WriterOption {
	return func(c *writerConfig) {
		c.pretty = enabled
	}
}

// WithIndent sets the indentation string for pretty JSON.
func WithIndent(indent string) WriterOption {
	return func(c *writerConfig) {
		c.indent = indent
	}
}

// WithColumns fixes the CSV column order. Without it, the columns come
// from the first record's keys in sorted order.
func WithColumns(columns []string) WriterOption {
	return func(c *writerConfig) {
		c.columns = columns
	}
}

// NewWriter creates a writer for the specified format.
func NewWriter(w io.Writer, format Format, opts ...WriterOption) (Writer, error) {
	cfg := &writerConfig{
		pretty: true,
		indent: "  ",
	}
	for _, opt := range opts {
		opt(cfg)
	}

	switch format {
	case FormatJSON:
		return NewJSONWriter(w, cfg.pretty, cfg.indent), nil
	case FormatJSONL:
		return NewJSONLWriter(w), nil
	case FormatYAML:
		return NewYAMLWriter(w), nil
	case FormatCSV:
		return NewCSVWriter(w, cfg.columns), nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}
