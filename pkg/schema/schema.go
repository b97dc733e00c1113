package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Schema is an ordered collection of field declarations. Insertion order is
// preserved: it defines the order fields are described to the model, and the
// model conditions on earlier fields when reasoning about later ones.
//
// A Schema must not be mutated once an extraction run has started; all
// methods except Add are safe for concurrent readers.
type Schema struct {
	fields []Field
	index  map[string]int
}

// New returns an empty schema.
func New() *Schema {
	return &Schema{index: make(map[string]int)}
}

// FromFields builds a schema from a list of fields, preserving order.
func FromFields(fields ...Field) (*Schema, error) {
	s := New()
	for _, f := range fields {
		if err := s.Add(f); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Add appends a field to the schema. It fails with ViolationError when the
// field is invalid or its name collides with an existing field.
func (s *Schema) Add(f Field) error {
	if err := f.check(); err != nil {
		return err
	}
	if s.index == nil {
		s.index = make(map[string]int)
	}
	if _, exists := s.index[f.Name]; exists {
		return ViolationError{Field: f.Name, Message: "duplicate field name"}
	}
	s.index[f.Name] = len(s.fields)
	s.fields = append(s.fields, f)
	return nil
}

// Get returns the field with the given name.
func (s *Schema) Get(name string) (Field, bool) {
	if s == nil || s.index == nil {
		return Field{}, false
	}
	i, ok := s.index[name]
	if !ok {
		return Field{}, false
	}
	return s.fields[i], true
}

// Fields returns the fields in insertion order. The returned slice is a copy.
func (s *Schema) Fields() []Field {
	if s == nil {
		return nil
	}
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// Names returns the field names in insertion order.
func (s *Schema) Names() []string {
	if s == nil {
		return nil
	}
	names := make([]string, len(s.fields))
	for i, f := range s.fields {
		names[i] = f.Name
	}
	return names
}

// Len returns the number of fields.
func (s *Schema) Len() int {
	if s == nil {
		return 0
	}
	return len(s.fields)
}

// Clone returns an independent copy of the schema.
func (s *Schema) Clone() *Schema {
	out := New()
	for _, f := range s.fields {
		out.index[f.Name] = len(out.fields)
		out.fields = append(out.fields, f)
	}
	return out
}

// FromFile loads a schema from a JSON or YAML file.
func FromFile(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		return FromJSON(data)
	case ".yaml", ".yml":
		return FromYAML(data)
	default:
		return nil, fmt.Errorf("unsupported schema file format: %s", ext)
	}
}

// FromJSON parses a schema from JSON data. Both a name-keyed object (key
// order preserved) and a list of named field specs are accepted.
func FromJSON(data []byte) (*Schema, error) {
	s := New()
	if err := s.UnmarshalJSON(data); err != nil {
		return nil, fmt.Errorf("failed to parse JSON schema: %w", err)
	}
	return s, nil
}

// FromYAML parses a schema from YAML data. Both a name-keyed mapping (key
// order preserved) and a list of named field specs are accepted.
func FromYAML(data []byte) (*Schema, error) {
	s := New()
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML schema: %w", err)
	}
	return s, nil
}

// FromMap builds a schema from an already-decoded configuration mapping.
// Go maps carry no key order, so fields are added in name order to keep the
// result deterministic; use FromYAML/FromJSON or Add when order matters.
func FromMap(m map[string]Field) (*Schema, error) {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	s := New()
	for _, name := range names {
		f := m[name]
		f.Name = name
		if err := s.Add(f); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// UnmarshalYAML decodes either a name-keyed mapping (document order
// preserved via the node tree) or a sequence of named field specs.
func (s *Schema) UnmarshalYAML(node *yaml.Node) error {
	*s = *New()

	switch node.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			keyNode, valNode := node.Content[i], node.Content[i+1]
			var f Field
			if err := valNode.Decode(&f); err != nil {
				return err
			}
			f.Name = keyNode.Value
			if err := s.Add(f); err != nil {
				return err
			}
		}
	case yaml.SequenceNode:
		var fields []Field
		if err := node.Decode(&fields); err != nil {
			return err
		}
		for _, f := range fields {
			if err := s.Add(f); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("schema must be a mapping of field name to spec, or a list of specs")
	}
	return nil
}

// UnmarshalJSON decodes either a name-keyed object or an array of named
// field specs. Object keys are consumed in document order.
func (s *Schema) UnmarshalJSON(data []byte) error {
	*s = *New()

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return fmt.Errorf("empty schema")
	}

	if trimmed[0] == '[' {
		var fields []Field
		if err := json.Unmarshal(trimmed, &fields); err != nil {
			return err
		}
		for _, f := range fields {
			if err := s.Add(f); err != nil {
				return err
			}
		}
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("schema must be an object of field name to spec, or an array of specs")
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		name, _ := keyTok.(string)
		var f Field
		if err := dec.Decode(&f); err != nil {
			return err
		}
		f.Name = name
		if err := s.Add(f); err != nil {
			return err
		}
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}

// MarshalYAML encodes the schema as a name-keyed mapping in insertion order.
func (s Schema) MarshalYAML() (any, error) {
	root := &yaml.Node{Kind: yaml.MappingNode}
	for _, f := range s.fields {
		keyNode := &yaml.Node{Kind: yaml.ScalarNode, Value: f.Name}
		val := f
		val.Name = "" // the mapping key carries the name
		valNode := &yaml.Node{}
		if err := valNode.Encode(val); err != nil {
			return nil, err
		}
		root.Content = append(root.Content, keyNode, valNode)
	}
	return root, nil
}

// MarshalJSON encodes the schema as a name-keyed object in insertion order.
func (s Schema) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range s.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		nameJSON, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(nameJSON)
		buf.WriteByte(':')
		val := f
		val.Name = ""
		fieldJSON, err := json.Marshal(val)
		if err != nil {
			return nil, err
		}
		buf.Write(fieldJSON)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// FromStruct builds a schema from a struct type using reflection. Field
// order follows struct declaration order. Recognized tags: json (field
// name), description, enum (comma-separated allowed values), validate
// (validator tags), examples (comma-separated).
func FromStruct[T any]() (*Schema, error) {
	var zero T
	t := reflect.TypeOf(zero)
	if t == nil {
		return nil, fmt.Errorf("schema must be created from a struct type, got nil interface")
	}
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("schema must be created from a struct type, got %v", t.Kind())
	}

	s := New()
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		f, err := fieldFromStructField(sf)
		if err != nil {
			return nil, err
		}
		if err := s.Add(f); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// fieldFromStructField maps one struct field to a schema field.
func fieldFromStructField(sf reflect.StructField) (Field, error) {
	f := Field{
		Name:        jsonName(sf),
		Description: sf.Tag.Get("description"),
	}
	if tag := sf.Tag.Get("validate"); tag != "" {
		f.Validators = strings.Split(tag, ",")
	}
	if tag := sf.Tag.Get("examples"); tag != "" {
		f.Examples = strings.Split(tag, ",")
	}
	enumTag := sf.Tag.Get("enum")

	ft := sf.Type
	if ft.Kind() == reflect.Ptr {
		ft = ft.Elem()
	}

	switch ft.Kind() {
	case reflect.String:
		f.Type = TypeString
		if enumTag != "" {
			f.Type = TypeEnum
			f.Enum = strings.Split(enumTag, ",")
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		f.Type = TypeInteger
	case reflect.Float32, reflect.Float64:
		f.Type = TypeNumber
	case reflect.Bool:
		f.Type = TypeBoolean
	case reflect.Slice:
		f.Type = TypeArray
		item, err := fieldFromType(ft.Elem())
		if err != nil {
			return Field{}, fmt.Errorf("field %s: %w", sf.Name, err)
		}
		if enumTag != "" && item.Type == TypeString {
			item.Type = TypeEnum
			item.Enum = strings.Split(enumTag, ",")
		}
		f.Items = &item
	case reflect.Map, reflect.Struct:
		f.Type = TypeObject
	default:
		return Field{}, fmt.Errorf("unsupported field type %v for field %s", ft.Kind(), sf.Name)
	}

	return f, nil
}

// fieldFromType maps a reflect.Type to an (unnamed) schema field.
func fieldFromType(t reflect.Type) (Field, error) {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	var f Field
	switch t.Kind() {
	case reflect.String:
		f.Type = TypeString
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		f.Type = TypeInteger
	case reflect.Float32, reflect.Float64:
		f.Type = TypeNumber
	case reflect.Bool:
		f.Type = TypeBoolean
	case reflect.Slice:
		item, err := fieldFromType(t.Elem())
		if err != nil {
			return Field{}, err
		}
		f.Type = TypeArray
		f.Items = &item
	case reflect.Map, reflect.Struct:
		f.Type = TypeObject
	default:
		return Field{}, fmt.Errorf("unsupported type %v", t.Kind())
	}
	return f, nil
}

// jsonName returns the JSON field name from struct tags.
func jsonName(sf reflect.StructField) string {
	tag := sf.Tag.Get("json")
	if tag == "" || tag == "-" {
		return sf.Name
	}
	if name, _, _ := strings.Cut(tag, ","); name != "" {
		return name
	}
	return sf.Name
}
