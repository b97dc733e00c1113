// Package source provides input sources that produce records for
// extraction: in-memory lists, JSON/JSONL/CSV files, the Hacker News search
// API, and web pages. A source yields plain records and nothing else;
// schema, prompting, and extraction live in pkg/sculptor.
package source

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Source produces records for extraction.
type Source interface {
	// Records yields every record the source produces. Implementations
	// that perform network or file IO honor ctx.
	Records(ctx context.Context) ([]map[string]any, error)

	// Name identifies the source type.
	Name() string
}

// Factory builds a source from configuration options. Option keys are
// source-specific and documented on each source's constructor.
type Factory func(options map[string]any) (Source, error)

var (
	mu       sync.RWMutex
	registry = make(map[string]Factory)
)

// Register makes a source type available to New. Registering an existing
// name replaces the factory.
func Register(name string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()
	registry[name] = factory
}

// New builds a registered source by type name.
func New(name string, options map[string]any) (Source, error) {
	mu.RLock()
	factory, ok := registry[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown source type: %s (available: %s)", name, strings.Join(Available(), ", "))
	}
	return factory(options)
}

// Available returns the registered source type names, sorted.
func Available() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsRegistered reports whether a source type name is registered.
func IsRegistered(name string) bool {
	mu.RLock()
	defer mu.RUnlock()
	_, ok := registry[name]
	return ok
}

// --- option decoding helpers ---

func stringOption(options map[string]any, key string) (string, bool) {
	if v, ok := options[key]; ok {
		if s, ok := v.(string); ok {
			return s, true
		}
	}
	return "", false
}

func intOption(options map[string]any, key string) (int, bool) {
	switch v := options[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

func boolOption(options map[string]any, key string) (bool, bool) {
	if v, ok := options[key].(bool); ok {
		return v, true
	}
	return false, false
}

// stringsOption accepts either a []string, a []any of strings, or a single
// comma-separated string.
func stringsOption(options map[string]any, key string) ([]string, bool) {
	switch v := options[key].(type) {
	case []string:
		return v, true
	case []any:
		out := make([]string, 0, len(v))
		for _, el := range v {
			s, ok := el.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	case string:
		parts := strings.Split(v, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts, true
	}
	return nil, false
}
