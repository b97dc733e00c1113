package source

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// File reads records from a JSONL, JSON, or CSV file. The format is
// inferred from the file extension unless set explicitly.
type File struct {
	path   string
	format string
}

// NewFile creates a file source with the format inferred from the path's
// extension (.jsonl/.ndjson, .json, .csv).
func NewFile(path string) *File {
	return &File{path: path, format: formatFromExt(path)}
}

// NewFileWithFormat creates a file source with an explicit format, for
// paths whose extension lies ("data.txt" holding JSONL, pipes, etc.).
func NewFileWithFormat(path, format string) *File {
	return &File{path: path, format: strings.ToLower(format)}
}

// Name identifies the source type.
func (f *File) Name() string { return "file" }

var _ Source = (*File)(nil)

// Records reads and decodes the whole file.
func (f *File) Records(_ context.Context) ([]map[string]any, error) {
	file, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input file: %w", err)
	}
	defer file.Close()

	switch f.format {
	case "jsonl", "ndjson":
		return readJSONL(file)
	case "json":
		return readJSON(file)
	case "csv":
		return readCSV(file)
	}
	return nil, fmt.Errorf("unsupported input format %q for %s (use jsonl, json, or csv)", f.format, f.path)
}

func formatFromExt(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl":
		return "jsonl"
	case ".ndjson":
		return "ndjson"
	case ".json":
		return "json"
	case ".csv":
		return "csv"
	}
	return ""
}

// readJSONL decodes one JSON object per line. Blank lines are skipped.
func readJSONL(r io.Reader) ([]map[string]any, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var records []map[string]any
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var rec map[string]any
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return nil, fmt.Errorf("line %d: invalid JSON object: %w", line, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	return records, nil
}

// readJSON decodes either a top-level array of objects or a single object.
func readJSON(r io.Reader) ([]map[string]any, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}

	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var records []map[string]any
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("invalid JSON array of objects: %w", err)
		}
		return records, nil
	}

	var rec map[string]any
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("invalid JSON object: %w", err)
	}
	return []map[string]any{rec}, nil
}

// readCSV treats the first row as the header; every cell stays a string,
// coercion is the extraction layer's job.
func readCSV(r io.Reader) ([]map[string]any, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	var records []map[string]any
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV row: %w", err)
		}
		rec := make(map[string]any, len(header))
		for i, name := range header {
			if i < len(row) {
				rec[name] = row[i]
			} else {
				rec[name] = ""
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

func init() {
	Register("file", newFileFromOptions)
	Register("jsonl", fixedFormatFactory("jsonl"))
	Register("json", fixedFormatFactory("json"))
	Register("csv", fixedFormatFactory("csv"))
}

func newFileFromOptions(options map[string]any) (Source, error) {
	path, ok := stringOption(options, "path")
	if !ok || path == "" {
		return nil, fmt.Errorf("file source requires a path option")
	}
	if format, ok := stringOption(options, "format"); ok && format != "" {
		return NewFileWithFormat(path, format), nil
	}
	return NewFile(path), nil
}

func fixedFormatFactory(format string) Factory {
	return func(options map[string]any) (Source, error) {
		path, ok := stringOption(options, "path")
		if !ok || path == "" {
			return nil, fmt.Errorf("%s source requires a path option", format)
		}
		return NewFileWithFormat(path, format), nil
	}
}
