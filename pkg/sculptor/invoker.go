package sculptor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jmylchreest/sculptor/internal/logger"
	"github.com/jmylchreest/sculptor/pkg/llm"
	"github.com/jmylchreest/sculptor/pkg/schema"
)

// invoke sends one completion request for the record and turns the response
// into a coerced extraction result. Failure handling is layered:
//
//   - Transport failures are wrapped in *TransportError with the record
//     attached and returned immediately; the provider's client already
//     applied its own retry policy and this layer adds none.
//   - Responses that are not a single JSON object (or, in strict mode, that
//     violate the output schema) are retried with corrective feedback up to
//     the configured bound, then reported as *MalformedOutputError.
//   - Individual fields that fail coercion become their default or the null
//     sentinel plus a diagnostic; one bad field never discards an otherwise
//     successful extraction.
func (s *Sculptor) invoke(ctx context.Context, record map[string]any) (map[string]any, error) {
	requestID := uuid.NewString()

	systemMsg := BuildSystemMessage(s.schema, s.systemPrompt, s.instructions)
	jsonSchema := s.schema.ToJSONSchema()

	var validator func(map[string]any) error
	if s.strictOutput {
		compiled, err := s.compiledSchema()
		if err != nil {
			return nil, fmt.Errorf("failed to compile output schema: %w", err)
		}
		validator = func(obj map[string]any) error {
			if err := compiled.Validate(map[string]any(obj)); err != nil {
				return fmt.Errorf("previous response did not match the required schema: %w", err)
			}
			return nil
		}
	}

	attempts := s.retries + 1
	var lastErr error
	var lastContent string

	for attempt := 0; attempt < attempts; attempt++ {
		userMsg := BuildUserMessage(record, s.template, s.inputKeys, lastErr, s.maxContent)

		logger.Debug("sculpt attempt",
			"request_id", requestID,
			"attempt", attempt+1,
			"max_attempts", attempts,
			"provider", s.provider.Name(),
			"model", s.provider.Model())

		resp, err := s.provider.Execute(ctx, llm.Request{
			Messages: []llm.Message{
				{Role: llm.RoleSystem, Content: systemMsg},
				{Role: llm.RoleUser, Content: userMsg},
			},
			MaxTokens:   s.maxTokens,
			Temperature: s.temperature,
			JSONSchema:  jsonSchema,
			StrictMode:  s.strictOutput,
		})
		if err != nil {
			return nil, &TransportError{Provider: s.provider.Name(), Record: record, Err: err}
		}

		logger.Debug("completion received",
			"request_id", requestID,
			"model", resp.Model,
			"finish_reason", resp.FinishReason,
			"input_tokens", resp.Usage.InputTokens,
			"output_tokens", resp.Usage.OutputTokens,
			"duration", resp.Duration)

		lastContent = resp.Content

		parsed, perr := decodeObject(resp.Content)
		if perr == nil && validator != nil {
			perr = validator(parsed)
		}
		if perr != nil {
			lastErr = perr
			logger.Warn("unusable completion payload",
				"request_id", requestID,
				"attempt", attempt+1,
				"error", perr)
			continue
		}

		return s.coerceFields(ctx, requestID, parsed), nil
	}

	return nil, &MalformedOutputError{Attempts: attempts, Content: lastContent, Err: lastErr}
}

// coerceFields coerces the parsed object into the schema's fields one field
// at a time, in schema order, so the result always carries every declared
// field. A failed field is replaced by its default (or the null sentinel)
// and reported through the diagnostics sink.
func (s *Sculptor) coerceFields(ctx context.Context, requestID string, parsed map[string]any) map[string]any {
	out := make(map[string]any, s.schema.Len())
	for _, f := range s.schema.Fields() {
		raw := parsed[f.Name]
		val, err := schema.CoerceWithPolicy(raw, f, s.policy)
		if err == nil && val != nil && len(f.Validators) > 0 {
			if verr := f.CheckValue(val); verr != nil {
				err = verr
			}
		}
		if err != nil {
			s.diagnose(ctx, Diagnostic{
				RequestID: requestID,
				Field:     f.Name,
				Value:     raw,
				Message:   err.Error(),
				Time:      time.Now(),
			})
			val = f.Default
		}
		out[f.Name] = val
	}
	return out
}

func (s *Sculptor) diagnose(ctx context.Context, d Diagnostic) {
	logger.Debug("field coercion failed",
		"request_id", d.RequestID,
		"field", d.Field,
		"error", d.Message)
	if s.sink != nil {
		s.sink.OnDiagnostic(ctx, d)
	}
}

// decodeObject parses model output as a single JSON object. Markdown code
// fences are stripped first since some models wrap JSON despite being told
// not to. The error text doubles as corrective feedback for the next
// attempt's prompt.
func decodeObject(content string) (map[string]any, error) {
	cleaned := stripMarkdownCodeBlock(content)
	if cleaned == "" {
		return nil, fmt.Errorf("previous response was empty; return only a JSON object")
	}

	var v any
	if err := json.Unmarshal([]byte(cleaned), &v); err != nil {
		return nil, fmt.Errorf("previous response was not valid JSON; return only a JSON object (%v)", err)
	}

	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("previous response was %s; return only a JSON object", jsonTypeName(v))
	}
	return obj, nil
}

func jsonTypeName(v any) string {
	switch v.(type) {
	case []any:
		return "a JSON array"
	case string:
		return "a JSON string"
	case float64:
		return "a JSON number"
	case bool:
		return "a JSON boolean"
	case nil:
		return "JSON null"
	}
	return "not a JSON object"
}

// stripMarkdownCodeBlock removes markdown code block wrappers from JSON
// responses. Some models wrap their output in ```json ... ``` blocks.
func stripMarkdownCodeBlock(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "```json") {
		s = strings.TrimPrefix(s, "```json")
	} else if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
	} else {
		return s
	}

	s = strings.TrimSuffix(s, "```")

	return strings.TrimSpace(s)
}
