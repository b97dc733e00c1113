package schema

import (
	"strings"
)

// ToPromptDescription generates the natural-language field list included in
// the system message. Fields appear in insertion order.
func (s *Schema) ToPromptDescription() string {
	var sb strings.Builder

	sb.WriteString("## Fields to Extract\n")
	for _, f := range s.fields {
		writeFieldDescription(&sb, f)
	}
	return sb.String()
}

// writeFieldDescription writes one field's line(s) to the builder.
func writeFieldDescription(sb *strings.Builder, f Field) {
	sb.WriteString("- ")
	sb.WriteString(f.Name)
	sb.WriteString(" (")
	sb.WriteString(typeLabel(f))
	sb.WriteString(")")

	if f.Description != "" {
		sb.WriteString(": ")
		sb.WriteString(f.Description)
	}
	sb.WriteString("\n")

	if values := enumValues(f); len(values) > 0 {
		sb.WriteString("  Allowed values: ")
		sb.WriteString(enumList(values))
		sb.WriteString("\n")
	}
	if len(f.Examples) > 0 {
		sb.WriteString("  Examples: ")
		sb.WriteString(strings.Join(f.Examples, ", "))
		sb.WriteString("\n")
	}
}

// typeLabel renders a human-readable type for the prompt, e.g.
// "array of enum" or "string | number".
func typeLabel(f Field) string {
	switch f.Type {
	case TypeArray:
		if f.Items != nil {
			return "array of " + typeLabel(*f.Items)
		}
		return "array"
	case TypeAnyOf:
		return anyOfList(f.AnyOf)
	default:
		return string(f.Type)
	}
}

// enumValues returns the allowed values for enum fields and enum-constrained
// arrays, nil otherwise.
func enumValues(f Field) []string {
	switch {
	case f.Type == TypeEnum:
		return f.Enum
	case f.Type == TypeArray && f.Items != nil && f.Items.Type == TypeEnum:
		return f.Items.Enum
	}
	return nil
}

// ToJSONSchema converts the schema to JSON Schema form for providers that
// support schema-constrained decoding and for strict output validation.
func (s *Schema) ToJSONSchema() map[string]any {
	properties := make(map[string]any, len(s.fields))
	required := make([]string, 0, len(s.fields))

	for _, f := range s.fields {
		properties[f.Name] = fieldToJSONSchema(f)
		required = append(required, f.Name)
	}

	return map[string]any{
		"type":                 "object",
		"properties":           properties,
		"required":             required,
		"additionalProperties": false,
	}
}

// fieldToJSONSchema converts one field to JSON Schema form.
func fieldToJSONSchema(f Field) map[string]any {
	var out map[string]any

	switch f.Type {
	case TypeEnum:
		out = map[string]any{"type": "string", "enum": toAnySlice(f.Enum)}
	case TypeArray:
		items := map[string]any{"type": "string"}
		if f.Items != nil {
			items = fieldToJSONSchema(*f.Items)
		}
		out = map[string]any{"type": "array", "items": items}
	case TypeObject:
		// Open mapping: extracted objects pass through uninterpreted.
		out = map[string]any{"type": "object", "additionalProperties": true}
	case TypeAnyOf:
		candidates := make([]any, len(f.AnyOf))
		for i, c := range f.AnyOf {
			candidates[i] = fieldToJSONSchema(c)
		}
		out = map[string]any{"anyOf": candidates}
	default:
		out = map[string]any{"type": string(f.Type)}
	}

	if f.Description != "" {
		out["description"] = f.Description
	}
	if f.Default != nil {
		out["default"] = f.Default
	}
	return out
}

func toAnySlice(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
