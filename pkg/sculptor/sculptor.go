// Package sculptor extracts structured, schema-conformant records from
// unstructured text by delegating the extraction to an LLM completion
// endpoint, then validating and coercing the model's JSON response into
// typed fields.
//
// A Sculptor holds one schema and one model configuration and exposes
// single-record and batched parallel extraction. Pipelines chain several
// sculptors with inter-stage filters so expensive models only see records
// a cheaper stage already deemed relevant.
package sculptor

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/jmylchreest/sculptor/pkg/llm"
	"github.com/jmylchreest/sculptor/pkg/schema"
)

// DefaultRetries is the number of corrective attempts made after a model
// returns output that cannot be used as a JSON object.
const DefaultRetries = 2

// ProgressFunc receives batch progress updates. It is called from worker
// goroutines and must be safe for concurrent use.
type ProgressFunc func(done, total int)

// Sculptor performs schema-driven extraction against one model.
// The schema must not change once extraction has started; configure it
// fully (via Add, WithSchema, or FromConfig) before the first Sculpt call.
type Sculptor struct {
	provider llm.Provider
	schema   *schema.Schema

	systemPrompt string
	instructions string
	template     string
	inputKeys    []string

	maxTokens    int
	temperature  float64
	retries      int
	workers      int
	mergeInput   bool
	strictOutput bool
	policy       schema.Policy
	maxContent   int
	sink         DiagnosticSink
	progress     ProgressFunc

	compileOnce sync.Once
	compiled    *jsonschema.Schema
	compileErr  error
}

// Option configures a Sculptor.
type Option func(*Sculptor)

// New creates a Sculptor that sends requests through the given provider.
func New(provider llm.Provider, opts ...Option) *Sculptor {
	s := &Sculptor{
		provider:   provider,
		schema:     schema.New(),
		retries:    DefaultRetries,
		workers:    1,
		mergeInput: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add declares a new extractable field. It fails with a
// schema.ViolationError when the name collides with an existing field or
// the field type is unrecognized.
func (s *Sculptor) Add(name, fieldType, description string, opts ...schema.FieldOption) error {
	f, err := schema.NewField(name, fieldType, description, opts...)
	if err != nil {
		return err
	}
	return s.schema.Add(f)
}

// Schema returns the sculptor's schema.
func (s *Sculptor) Schema() *schema.Schema {
	return s.schema
}

// Provider returns the underlying completion provider.
func (s *Sculptor) Provider() llm.Provider {
	return s.provider
}

// Sculpt extracts one record. When input merging is enabled (the default),
// the result is the original record's keys unioned with the extracted
// fields, extraction winning on conflict; otherwise only the extracted
// fields are returned.
//
// Unlike batch extraction, failures are returned directly: a
// *TransportError when the endpoint failed and a *MalformedOutputError when
// the model kept producing unusable output.
func (s *Sculptor) Sculpt(ctx context.Context, record map[string]any) (map[string]any, error) {
	result, err := s.invoke(ctx, record)
	if err != nil {
		return nil, err
	}
	return mergeRecord(record, result, s.mergeInput), nil
}

// compiledSchema lazily compiles the schema's JSON Schema form for strict
// output validation. Compiled once; Add must not be called after this.
func (s *Sculptor) compiledSchema() (*jsonschema.Schema, error) {
	s.compileOnce.Do(func() {
		raw, err := json.Marshal(s.schema.ToJSONSchema())
		if err != nil {
			s.compileErr = err
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("schema.json", bytes.NewReader(raw)); err != nil {
			s.compileErr = err
			return
		}
		s.compiled, s.compileErr = compiler.Compile("schema.json")
	})
	return s.compiled, s.compileErr
}

// mergeRecord unions the original record with extracted fields, extraction
// winning on key conflicts. The original is never mutated.
func mergeRecord(record, result map[string]any, merge bool) map[string]any {
	if !merge {
		return result
	}
	out := make(map[string]any, len(record)+len(result))
	for k, v := range record {
		out[k] = v
	}
	for k, v := range result {
		out[k] = v
	}
	return out
}
