package filter

import (
	"errors"
	"strings"
	"testing"
)

// --- Compile ---

func TestCompile_Valid(t *testing.T) {
	exprs := []string{
		`level == "AGI"`,
		`level in ["AGI", "ASI"]`,
		`score >= 10 && !is_comment`,
		`score >= 10 and not is_comment`,
		`(a || b) && c`,
		`name not in ["HAL", "GLaDOS"]`,
		`title contains "launch"`,
		`meta.source == "hackernews"`,
		`count != null`,
		`-3.5 < score`,
	}

	for _, expr := range exprs {
		t.Run(expr, func(t *testing.T) {
			if _, err := Compile(expr); err != nil {
				t.Errorf("Compile(%q) returned unexpected error: %v", expr, err)
			}
		})
	}
}

func TestCompile_Invalid(t *testing.T) {
	tests := []struct {
		name string
		expr string
	}{
		{name: "empty", expr: ""},
		{name: "blank", expr: "   "},
		{name: "single equals", expr: `level = "AGI"`},
		{name: "single ampersand", expr: "a & b"},
		{name: "single pipe", expr: "a | b"},
		{name: "unterminated string", expr: `level == "AGI`},
		{name: "unclosed paren", expr: "(a == 1"},
		{name: "unclosed list", expr: `level in ["AGI"`},
		{name: "trailing input", expr: "a == 1 b"},
		{name: "dangling operator", expr: "score >="},
		{name: "bad escape", expr: `name == "a\q"`},
		{name: "not without in", expr: "level not contains 'x'"},
		{name: "malformed number", expr: "score > 1.2.3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.expr)
			if err == nil {
				t.Fatalf("Compile(%q) expected error, got nil", tt.expr)
			}
			var serr *SyntaxError
			if !errors.As(err, &serr) {
				t.Errorf("Compile(%q) expected *SyntaxError, got %T: %v", tt.expr, err, err)
			}
		})
	}
}

func TestCompile_UnknownPredicate(t *testing.T) {
	_, err := Compile("@no_such_predicate")
	if err == nil {
		t.Fatal("Compile() expected error for unregistered predicate, got nil")
	}
	if !strings.Contains(err.Error(), "no_such_predicate") {
		t.Errorf("error should name the missing predicate, got: %v", err)
	}
}

// --- Eval ---

func TestEval_Comparisons(t *testing.T) {
	record := map[string]any{
		"level":      "AGI",
		"score":      float64(42),
		"count":      3,
		"is_comment": false,
		"title":      "Skynet launch day",
		"tags":       []any{"ai", "safety"},
		"meta":       map[string]any{"source": "hackernews"},
	}

	tests := []struct {
		expr string
		want bool
	}{
		{expr: `level == "AGI"`, want: true},
		{expr: `level == "ANI"`, want: false},
		{expr: `level != "ANI"`, want: true},
		{expr: `level in ["AGI", "ASI"]`, want: true},
		{expr: `level in ["ANI"]`, want: false},
		{expr: `level not in ["ANI"]`, want: true},
		{expr: `score > 10`, want: true},
		{expr: `score >= 42`, want: true},
		{expr: `score < 42`, want: false},
		{expr: `score <= 41.5`, want: false},
		{expr: `count == 3`, want: true},
		{expr: `count == 3.0`, want: true},
		{expr: `is_comment == false`, want: true},
		{expr: `!is_comment`, want: true},
		{expr: `not is_comment`, want: true},
		{expr: `title contains "launch"`, want: true},
		{expr: `title contains "landing"`, want: false},
		{expr: `"ai" in tags`, want: true},
		{expr: `tags contains "safety"`, want: true},
		{expr: `"Skynet" in title`, want: true},
		{expr: `meta.source == "hackernews"`, want: true},
		{expr: `meta.source == "reddit"`, want: false},
		{expr: `level == "AGI" && score > 10`, want: true},
		{expr: `level == "ANI" || score > 10`, want: true},
		{expr: `level == "ANI" && score > 10`, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			f, err := Compile(tt.expr)
			if err != nil {
				t.Fatalf("Compile(%q) returned unexpected error: %v", tt.expr, err)
			}
			if got := f.Eval(record); got != tt.want {
				t.Errorf("Eval(%q): expected %v, got %v", tt.expr, tt.want, got)
			}
		})
	}
}

func TestEval_MissingFieldsReadAsNull(t *testing.T) {
	record := map[string]any{"present": "yes"}

	tests := []struct {
		expr string
		want bool
	}{
		{expr: "absent == null", want: true},
		{expr: "absent != null", want: false},
		{expr: "present != null", want: true},
		{expr: `absent == "anything"`, want: false},
		{expr: "absent > 0", want: false},
		{expr: "absent", want: false},
		{expr: "!absent", want: true},
		{expr: "missing.nested.path == null", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			f, err := Compile(tt.expr)
			if err != nil {
				t.Fatalf("Compile(%q) returned unexpected error: %v", tt.expr, err)
			}
			if got := f.Eval(record); got != tt.want {
				t.Errorf("Eval(%q): expected %v, got %v", tt.expr, tt.want, got)
			}
		})
	}
}

func TestEval_TypeMismatchIsFalseNotError(t *testing.T) {
	record := map[string]any{
		"score": "not a number",
		"tags":  "not a list",
	}

	tests := []string{
		"score > 10",
		"score == 10",
		`10 in tags`,
		`score in [1, 2, 3]`,
	}

	for _, expr := range tests {
		t.Run(expr, func(t *testing.T) {
			f, err := Compile(expr)
			if err != nil {
				t.Fatalf("Compile(%q) returned unexpected error: %v", expr, err)
			}
			if f.Eval(record) {
				t.Errorf("Eval(%q): expected false for mismatched types", expr)
			}
		})
	}
}

func TestEval_Precedence(t *testing.T) {
	// || binds looser than &&: a || b && c is a || (b && c).
	f := MustCompile("a || b && c")

	record := map[string]any{"a": true, "b": true, "c": false}
	if !f.Eval(record) {
		t.Error("a=true should satisfy a || (b && c)")
	}

	record = map[string]any{"a": false, "b": true, "c": false}
	if f.Eval(record) {
		t.Error("b && c is false, so the whole expression should be false")
	}

	grouped := MustCompile("(a || b) && c")
	if grouped.Eval(map[string]any{"a": true, "b": false, "c": false}) {
		t.Error("(a || b) && c should be false when c is false")
	}
}

func TestEval_TruthyBareFields(t *testing.T) {
	tests := []struct {
		name   string
		record map[string]any
		want   bool
	}{
		{name: "true bool", record: map[string]any{"flag": true}, want: true},
		{name: "false bool", record: map[string]any{"flag": false}, want: false},
		{name: "nonempty string", record: map[string]any{"flag": "yes"}, want: true},
		{name: "empty string", record: map[string]any{"flag": ""}, want: false},
		{name: "nonzero number", record: map[string]any{"flag": 0.5}, want: true},
		{name: "zero number", record: map[string]any{"flag": float64(0)}, want: false},
		{name: "nonempty list", record: map[string]any{"flag": []any{1}}, want: true},
		{name: "empty list", record: map[string]any{"flag": []any{}}, want: false},
		{name: "null", record: map[string]any{"flag": nil}, want: false},
	}

	f := MustCompile("flag")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.Eval(tt.record); got != tt.want {
				t.Errorf("Eval(flag): expected %v, got %v", tt.want, got)
			}
		})
	}
}

// --- Named predicates ---

func TestRegisteredPredicate(t *testing.T) {
	Register("high_threat", func(record map[string]any) bool {
		level, _ := record["level"].(string)
		return level == "AGI" || level == "ASI"
	})

	f, err := Compile(`@high_threat && score > 5`)
	if err != nil {
		t.Fatalf("Compile() returned unexpected error: %v", err)
	}

	if !f.Eval(map[string]any{"level": "ASI", "score": float64(10)}) {
		t.Error("expected ASI record with score 10 to pass")
	}
	if f.Eval(map[string]any{"level": "ANI", "score": float64(10)}) {
		t.Error("expected ANI record to fail @high_threat")
	}
	if f.Eval(map[string]any{"level": "ASI", "score": float64(1)}) {
		t.Error("expected low score to fail the conjunction")
	}
}

func TestNames_Sorted(t *testing.T) {
	Register("zz_test_pred", func(map[string]any) bool { return true })
	Register("aa_test_pred", func(map[string]any) bool { return true })

	names := Names()
	for i := 1; i < len(names); i++ {
		if names[i-1] > names[i] {
			t.Fatalf("Names() not sorted: %v", names)
		}
	}
}

// --- String ---

func TestFilterString_ReturnsSource(t *testing.T) {
	src := `level in ["AGI", "ASI"]`
	f := MustCompile(src)
	if f.String() != src {
		t.Errorf("String(): expected %q, got %q", src, f.String())
	}
}
