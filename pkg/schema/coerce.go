package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Policy controls the coercion decisions that are deliberately configurable.
type Policy struct {
	// StrictEnums rejects unknown enum tokens inside arrays instead of
	// dropping them. The default (lenient) policy filters invalid tokens
	// out; neither policy ever substitutes a fabricated value.
	StrictEnums bool
}

// Coerce converts a raw JSON-decoded value into the semantic type demanded
// by the field using the default lenient policy. See CoerceWithPolicy.
func Coerce(raw any, f Field) (any, error) {
	return CoerceWithPolicy(raw, f, Policy{})
}

// CoerceWithPolicy converts a raw JSON-decoded value into the semantic type
// demanded by the field. A JSON null becomes the field's default when one is
// declared, otherwise the nil sentinel. Values that cannot be coerced fail
// with ViolationError; the caller decides whether that aborts anything.
func CoerceWithPolicy(raw any, f Field, p Policy) (any, error) {
	if raw == nil {
		if f.Default != nil {
			return f.Default, nil
		}
		return nil, nil
	}

	switch f.Type {
	case TypeString:
		return coerceString(raw, f)
	case TypeNumber:
		return coerceNumber(raw, f)
	case TypeInteger:
		return coerceInteger(raw, f)
	case TypeBoolean:
		if b, ok := raw.(bool); ok {
			return b, nil
		}
		return nil, violation(f, raw, "expected boolean, got %s", typeName(raw))
	case TypeEnum:
		return coerceEnum(raw, f)
	case TypeArray:
		return coerceArray(raw, f, p)
	case TypeObject:
		if m, ok := raw.(map[string]any); ok {
			return m, nil
		}
		return nil, violation(f, raw, "expected object, got %s", typeName(raw))
	case TypeAnyOf:
		return coerceAnyOf(raw, f, p)
	}
	return nil, violation(f, raw, "unknown field type %q", f.Type)
}

func coerceString(raw any, f Field) (any, error) {
	switch v := raw.(type) {
	case string:
		return v, nil
	case bool:
		return strconv.FormatBool(v), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case json.Number:
		return v.String(), nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	}
	return nil, violation(f, raw, "expected string, got %s", typeName(raw))
}

func coerceNumber(raw any, f Field) (any, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		n, err := v.Float64()
		if err != nil {
			return nil, violation(f, raw, "not a valid number: %q", v.String())
		}
		return n, nil
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, violation(f, raw, "non-numeric string %q", v)
		}
		return n, nil
	}
	return nil, violation(f, raw, "expected number, got %s", typeName(raw))
}

func coerceInteger(raw any, f Field) (any, error) {
	switch v := raw.(type) {
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		return floatToInt(v, f, raw)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, nil
		}
		fl, err := v.Float64()
		if err != nil {
			return nil, violation(f, raw, "not a valid integer: %q", v.String())
		}
		return floatToInt(fl, f, raw)
	case string:
		trimmed := strings.TrimSpace(v)
		if n, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
			return n, nil
		}
		fl, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return nil, violation(f, raw, "non-numeric string %q", v)
		}
		return floatToInt(fl, f, raw)
	}
	return nil, violation(f, raw, "expected integer, got %s", typeName(raw))
}

// floatToInt converts integral floats only; fractional values are a
// violation, never rounded.
func floatToInt(v float64, f Field, raw any) (any, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) || math.Trunc(v) != v {
		return nil, violation(f, raw, "number %v is not an integer", v)
	}
	if v < math.MinInt64 || v > math.MaxInt64 {
		return nil, violation(f, raw, "number %v overflows integer range", v)
	}
	return int64(v), nil
}

func coerceEnum(raw any, f Field) (any, error) {
	s, ok := raw.(string)
	if !ok {
		return nil, violation(f, raw, "expected one of %s, got %s", enumList(f.Enum), typeName(raw))
	}
	for _, allowed := range f.Enum {
		if s == allowed {
			return s, nil
		}
	}
	return nil, violation(f, raw, "value %q is not one of %s", s, enumList(f.Enum))
}

func coerceArray(raw any, f Field, p Policy) (any, error) {
	arr, ok := raw.([]any)
	if !ok {
		return nil, violation(f, raw, "expected array, got %s", typeName(raw))
	}

	item := *f.Items
	if item.Name == "" {
		item.Name = f.Name + "[]"
	}
	enumItems := item.Type == TypeEnum

	out := make([]any, 0, len(arr))
	for i, el := range arr {
		coerced, err := CoerceWithPolicy(el, item, p)
		if err != nil {
			// Lenient policy filters unknown enum tokens instead of
			// failing the whole array.
			if enumItems && !p.StrictEnums {
				continue
			}
			return nil, violation(f, el, "item %d: %v", i, errMessage(err))
		}
		if coerced == nil && enumItems {
			continue
		}
		out = append(out, coerced)
	}
	return out, nil
}

func coerceAnyOf(raw any, f Field, p Policy) (any, error) {
	for _, candidate := range f.AnyOf {
		cand := candidate
		if cand.Name == "" {
			cand.Name = f.Name
		}
		if coerced, err := CoerceWithPolicy(raw, cand, p); err == nil {
			return coerced, nil
		}
	}
	return nil, violation(f, raw, "value does not match any candidate type (%s)", anyOfList(f.AnyOf))
}

func violation(f Field, value any, format string, args ...any) error {
	return ViolationError{Field: f.Name, Message: fmt.Sprintf(format, args...), Value: value}
}

// errMessage strips the field prefix from nested violations so array item
// errors read cleanly.
func errMessage(err error) string {
	if v, ok := err.(ViolationError); ok {
		return v.Message
	}
	return err.Error()
}

func typeName(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, int, int64, json.Number:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	case nil:
		return "null"
	}
	return fmt.Sprintf("%T", v)
}

func enumList(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = strconv.Quote(v)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

func anyOfList(candidates []Field) string {
	types := make([]string, len(candidates))
	for i, c := range candidates {
		types[i] = string(c.Type)
	}
	return strings.Join(types, " | ")
}
