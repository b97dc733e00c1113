package schema

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// TestToJSONSchema_CompilesAndValidates runs the generated schema through a
// real JSON Schema compiler and checks sample payloads against it.
func TestToJSONSchema_CompilesAndValidates(t *testing.T) {
	s := New()
	if err := s.Add(Field{Name: "name", Type: TypeString, Description: "System name"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Add(Field{Name: "level", Type: TypeEnum, Enum: []string{"ANI", "AGI", "ASI"}}); err != nil {
		t.Fatal(err)
	}
	if err := s.Add(Field{Name: "score", Type: TypeAnyOf, AnyOf: []Field{{Type: TypeNumber}, {Type: TypeString}}}); err != nil {
		t.Fatal(err)
	}
	if err := s.Add(Field{Name: "capabilities", Type: TypeArray, Items: &Field{Type: TypeEnum, Enum: []string{"planning", "coding"}}}); err != nil {
		t.Fatal(err)
	}

	raw, err := json.Marshal(s.ToJSONSchema())
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(raw)); err != nil {
		t.Fatalf("AddResource failed: %v", err)
	}
	compiled, err := compiler.Compile("schema.json")
	if err != nil {
		t.Fatalf("generated schema does not compile: %v", err)
	}

	valid := map[string]any{
		"name":         "Skynet",
		"level":        "ASI",
		"score":        9.5,
		"capabilities": []any{"planning"},
	}
	if err := compiled.Validate(valid); err != nil {
		t.Errorf("valid document rejected: %v", err)
	}

	badEnum := map[string]any{
		"name":         "Skynet",
		"level":        "SUPER",
		"score":        9.5,
		"capabilities": []any{},
	}
	if err := compiled.Validate(badEnum); err == nil {
		t.Error("invalid enum member accepted")
	}

	extraKey := map[string]any{
		"name":         "Skynet",
		"level":        "ASI",
		"score":        "9/10",
		"capabilities": []any{},
		"surprise":     true,
	}
	if err := compiled.Validate(extraKey); err == nil {
		t.Error("additional property accepted despite additionalProperties=false")
	}
}
