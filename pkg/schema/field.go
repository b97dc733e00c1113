// Package schema provides typed field declarations for LLM extraction and
// validation/coercion of model output against them.
package schema

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// FieldType identifies the kind of value a field holds.
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeNumber  FieldType = "number"
	TypeInteger FieldType = "integer"
	TypeBoolean FieldType = "boolean"
	TypeArray   FieldType = "array"
	TypeObject  FieldType = "object"
	TypeEnum    FieldType = "enum"
	TypeAnyOf   FieldType = "anyOf"
)

// ParseFieldType resolves a type tag from configuration to a known FieldType.
// The set is closed: unrecognized tags must fail at load time, not at
// extraction time.
func ParseFieldType(s string) (FieldType, error) {
	switch t := FieldType(s); t {
	case TypeString, TypeNumber, TypeInteger, TypeBoolean, TypeArray, TypeObject, TypeEnum, TypeAnyOf:
		return t, nil
	}
	return "", fmt.Errorf("unknown field type %q", s)
}

// Field declares a single extractable field.
type Field struct {
	Name        string    `json:"name,omitempty" yaml:"name,omitempty"`
	Type        FieldType `json:"type" yaml:"type"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Enum        []string  `json:"enum,omitempty" yaml:"enum,omitempty"`             // Allowed values for enum fields
	Items       *Field    `json:"items,omitempty" yaml:"items,omitempty"`           // Element spec for array fields
	AnyOf       []Field   `json:"any_of,omitempty" yaml:"any_of,omitempty"`         // Candidate specs for anyOf fields, tried in order
	Validators  []string  `json:"validators,omitempty" yaml:"validators,omitempty"` // Post-coercion validation tags
	Default     any       `json:"default,omitempty" yaml:"default,omitempty"`       // Substitute for null or failed values
	Examples    []string  `json:"examples,omitempty" yaml:"examples,omitempty"`     // Example values shown to the model
}

// FieldOption configures optional constraints on a field.
type FieldOption func(*Field)

// WithEnum sets the allowed values for an enum field (or for the items of an
// enum-constrained array).
func WithEnum(values ...string) FieldOption {
	return func(f *Field) { f.Enum = values }
}

// WithItems sets the element spec for an array field.
func WithItems(item Field) FieldOption {
	return func(f *Field) { f.Items = &item }
}

// WithAnyOf sets the candidate specs for an anyOf field. Candidates are tried
// in the order given.
func WithAnyOf(candidates ...Field) FieldOption {
	return func(f *Field) { f.AnyOf = candidates }
}

// WithValidators attaches validator tags (e.g. "url", "email", "min=0")
// checked after coercion.
func WithValidators(tags ...string) FieldOption {
	return func(f *Field) { f.Validators = tags }
}

// WithDefault sets the value substituted when the model returns null or the
// raw value fails coercion.
func WithDefault(v any) FieldOption {
	return func(f *Field) { f.Default = v }
}

// WithExamples attaches example values included in the field's prompt
// description.
func WithExamples(examples ...string) FieldOption {
	return func(f *Field) { f.Examples = examples }
}

// NewField builds a field from a type tag and options, enforcing the
// per-field invariants.
func NewField(name, typeTag, description string, opts ...FieldOption) (Field, error) {
	t, err := ParseFieldType(typeTag)
	if err != nil {
		return Field{}, ViolationError{Field: name, Message: err.Error()}
	}
	f := Field{Name: name, Type: t, Description: description}
	for _, opt := range opts {
		opt(&f)
	}
	if err := f.check(); err != nil {
		return Field{}, err
	}
	return f, nil
}

// check enforces field invariants: non-empty name, enum values present where
// required, item spec present for arrays, candidates present for anyOf.
func (f Field) check() error {
	if f.Name == "" {
		return ViolationError{Field: f.Name, Message: "field name must not be empty"}
	}
	if _, err := ParseFieldType(string(f.Type)); err != nil {
		return ViolationError{Field: f.Name, Message: err.Error()}
	}
	switch f.Type {
	case TypeEnum:
		if len(f.Enum) == 0 {
			return ViolationError{Field: f.Name, Message: "enum field requires at least one allowed value"}
		}
	case TypeArray:
		if f.Items == nil {
			return ViolationError{Field: f.Name, Message: "array field requires an item spec"}
		}
		item := *f.Items
		if item.Name == "" {
			item.Name = f.Name + "[]"
		}
		if err := item.check(); err != nil {
			return err
		}
	case TypeAnyOf:
		if len(f.AnyOf) == 0 {
			return ViolationError{Field: f.Name, Message: "anyOf field requires at least one candidate"}
		}
		for _, c := range f.AnyOf {
			cand := c
			if cand.Name == "" {
				cand.Name = f.Name
			}
			if err := cand.check(); err != nil {
				return err
			}
		}
	}
	return nil
}

// validate is shared across all validator checks; validator.Validate is safe
// for concurrent use.
var validate = validator.New()

// CheckValue runs the field's validator tags against a coerced value.
// Fields without validators always pass.
func (f Field) CheckValue(value any) error {
	if len(f.Validators) == 0 || value == nil {
		return nil
	}
	if err := validate.Var(value, strings.Join(f.Validators, ",")); err != nil {
		return ViolationError{
			Field:   f.Name,
			Message: fmt.Sprintf("failed validation %q", strings.Join(f.Validators, ",")),
			Value:   value,
		}
	}
	return nil
}

// ViolationError reports a schema violation: a bad field declaration, a
// duplicate field name, or a raw value that cannot be coerced to its
// declared type.
type ViolationError struct {
	Field   string
	Message string
	Value   any
}

func (e ViolationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}
