package sculptor

import (
	"errors"
	"strings"
	"testing"

	"github.com/jmylchreest/sculptor/pkg/schema"
)

// --- template rendering ---

func TestRenderTemplate(t *testing.T) {
	record := map[string]any{
		"text":  "HAL 9000 goes rogue",
		"score": float64(42),
		"ok":    true,
	}

	tests := []struct {
		name     string
		template string
		want     string
	}{
		{
			name:     "single placeholder",
			template: "Text: {text}",
			want:     "Text: HAL 9000 goes rogue",
		},
		{
			name:     "missing key becomes empty string",
			template: "Text: {missing}",
			want:     "Text: ",
		},
		{
			name:     "multiple placeholders",
			template: "{text} scored {score}",
			want:     "HAL 9000 goes rogue scored 42",
		},
		{
			name:     "boolean value",
			template: "flag={ok}",
			want:     "flag=true",
		},
		{
			name:     "escaped braces",
			template: "literal {{text}} stays",
			want:     "literal {text} stays",
		},
		{
			name:     "unterminated brace kept as-is",
			template: "broken {text",
			want:     "broken {text",
		},
		{
			name:     "adjacent placeholders",
			template: "{text}{score}",
			want:     "HAL 9000 goes rogue42",
		},
		{
			name:     "no placeholders",
			template: "plain text",
			want:     "plain text",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RenderTemplate(tt.template, record)
			if got != tt.want {
				t.Errorf("RenderTemplate(%q) = %q, want %q", tt.template, got, tt.want)
			}
		})
	}
}

// --- user message ---

func TestBuildUserMessage_Template(t *testing.T) {
	record := map[string]any{"title": "Skynet", "url": "http://example.com"}

	got := BuildUserMessage(record, "Title: {title}\nLink: {url}", nil, nil, 0)
	want := "Title: Skynet\nLink: http://example.com"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestBuildUserMessage_DefaultKeyValueLines(t *testing.T) {
	record := map[string]any{"b": "second", "a": "first"}

	// Without explicit input keys the lines are sorted for determinism.
	got := BuildUserMessage(record, "", nil, nil, 0)
	want := "a: first\nb: second"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestBuildUserMessage_InputKeysOrderAndRestriction(t *testing.T) {
	record := map[string]any{
		"title":  "Skynet",
		"text":   "self-aware defense network",
		"secret": "should not appear",
	}

	got := BuildUserMessage(record, "", []string{"text", "title", "absent"}, nil, 0)
	want := "text: self-aware defense network\ntitle: Skynet\nabsent: "
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if strings.Contains(got, "secret") {
		t.Errorf("message leaked a key outside input_keys: %q", got)
	}
}

func TestBuildUserMessage_InputKeysRestrictTemplate(t *testing.T) {
	record := map[string]any{"text": "body", "secret": "hidden"}

	got := BuildUserMessage(record, "{text} {secret}", []string{"text"}, nil, 0)
	if strings.Contains(got, "hidden") {
		t.Errorf("template read a key outside input_keys: %q", got)
	}
	if !strings.HasPrefix(got, "body") {
		t.Errorf("expected template to render allowed key, got %q", got)
	}
}

func TestBuildUserMessage_PreviousErrorSection(t *testing.T) {
	record := map[string]any{"text": "body"}
	prevErr := errors.New("previous response was not valid JSON; return only a JSON object")

	got := BuildUserMessage(record, "", nil, prevErr, 0)

	if !strings.Contains(got, "## Previous Attempt Errors") {
		t.Errorf("expected error section header, got %q", got)
	}
	if !strings.Contains(got, prevErr.Error()) {
		t.Errorf("expected error text in message, got %q", got)
	}
	if !strings.Contains(got, "Return only a single valid JSON object.") {
		t.Errorf("expected corrective directive, got %q", got)
	}
	// The error section must come after the record content.
	if strings.Index(got, "text: body") > strings.Index(got, "## Previous Attempt Errors") {
		t.Errorf("error section should follow the record content: %q", got)
	}
}

func TestBuildUserMessage_Truncation(t *testing.T) {
	record := map[string]any{"text": strings.Repeat("x", 500)}

	got := BuildUserMessage(record, "{text}", nil, nil, 100)

	if !strings.Contains(got, "[Content truncated due to length...]") {
		t.Errorf("expected truncation marker, got %q", got)
	}
	if !strings.HasPrefix(got, strings.Repeat("x", 100)) {
		t.Errorf("expected first 100 bytes kept, got %q", got[:120])
	}
}

func TestBuildUserMessage_TruncationKeepsErrorSection(t *testing.T) {
	record := map[string]any{"text": strings.Repeat("x", 500)}
	prevErr := errors.New("previous response was empty; return only a JSON object")

	got := BuildUserMessage(record, "{text}", nil, prevErr, 100)

	if !strings.Contains(got, "## Previous Attempt Errors") {
		t.Errorf("truncation must not cut the error section: %q", got)
	}
}

// --- system message ---

func TestBuildSystemMessage_FieldOrderAndDirective(t *testing.T) {
	s := schema.New()
	mustAdd(t, s, mustField(t, "title", "string", "the headline"))
	mustAdd(t, s, mustField(t, "level", "enum", "capability class", schema.WithEnum("ANI", "AGI", "ASI")))
	mustAdd(t, s, mustField(t, "reason", "string", "why"))

	got := BuildSystemMessage(s, "", "")

	if !strings.Contains(got, "You are a data extraction assistant.") {
		t.Errorf("expected default system prompt, got %q", got)
	}
	if !strings.Contains(got, "## Fields to Extract") {
		t.Errorf("expected field section header, got %q", got)
	}

	// Declaration order carries through to the description and the key list.
	ti := strings.Index(got, "- title")
	li := strings.Index(got, "- level")
	ri := strings.Index(got, "- reason")
	if ti < 0 || li < 0 || ri < 0 || !(ti < li && li < ri) {
		t.Errorf("field descriptions out of declaration order: title=%d level=%d reason=%d", ti, li, ri)
	}

	if !strings.Contains(got, `Allowed values: ["ANI", "AGI", "ASI"]`) {
		t.Errorf("expected enum values in description, got %q", got)
	}
	if !strings.Contains(got, "Return a single JSON object with exactly these keys: title, level, reason.") {
		t.Errorf("expected key directive, got %q", got)
	}
}

func TestBuildSystemMessage_CustomPromptAndInstructions(t *testing.T) {
	s := schema.New()
	mustAdd(t, s, mustField(t, "title", "string", ""))

	got := BuildSystemMessage(s, "You label AI incidents.", "Ignore marketing copy.")

	if !strings.HasPrefix(got, "You label AI incidents.") {
		t.Errorf("custom prompt should lead the message, got %q", got)
	}
	if strings.Contains(got, "You are a data extraction assistant.") {
		t.Errorf("default prompt should be replaced, got %q", got)
	}
	if !strings.Contains(got, "## Instructions\nIgnore marketing copy.") {
		t.Errorf("expected instructions section, got %q", got)
	}
}

// --- helpers ---

func mustField(t *testing.T, name, typeTag, description string, opts ...schema.FieldOption) schema.Field {
	t.Helper()
	f, err := schema.NewField(name, typeTag, description, opts...)
	if err != nil {
		t.Fatalf("NewField(%s) failed: %v", name, err)
	}
	return f
}

func mustAdd(t *testing.T, s *schema.Schema, f schema.Field) {
	t.Helper()
	if err := s.Add(f); err != nil {
		t.Fatalf("Add(%s) failed: %v", f.Name, err)
	}
}
