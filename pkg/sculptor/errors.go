package sculptor

import (
	"fmt"
)

// ErrorKey marks records whose extraction failed during batch processing.
// The value is the error message; schema fields on such records hold the
// null sentinel. Batch output always has one record per input, so callers
// check this key instead of losing the rest of the batch to one failure.
const ErrorKey = "_error"

// ConfigError reports a malformed or incomplete configuration object.
// It is always raised before any network call is attempted, so a bad
// config can never partially succeed.
type ConfigError struct {
	Path    string // source file, empty when built in memory
	Message string
}

func (e *ConfigError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("config %s: %s", e.Path, e.Message)
	}
	return "config: " + e.Message
}

func configErrorf(path, format string, args ...any) *ConfigError {
	return &ConfigError{Path: path, Message: fmt.Sprintf(format, args...)}
}

// TransportError wraps a completion-endpoint failure with the record that
// was being processed. The endpoint's own client already applied its retry
// policy; this layer does not retry transport failures.
type TransportError struct {
	Provider string
	Record   map[string]any
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error from %s: %v", e.Provider, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// MalformedOutputError reports that the model kept returning content that
// could not be used as a JSON object, even after corrective retries.
type MalformedOutputError struct {
	Attempts int
	Content  string // raw content of the last attempt
	Err      error  // last parse or validation error
}

func (e *MalformedOutputError) Error() string {
	return fmt.Sprintf("malformed model output after %d attempts: %v (response: %s)", e.Attempts, e.Err, truncateForError(e.Content))
}

func (e *MalformedOutputError) Unwrap() error { return e.Err }

// truncateForError truncates content for error messages.
func truncateForError(s string) string {
	if len(s) <= 200 {
		return s
	}
	return s[:200] + "..."
}
