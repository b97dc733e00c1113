package sculptor

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/jmylchreest/sculptor/internal/logger"
	"github.com/jmylchreest/sculptor/pkg/schema"
)

// defaultSystemPrompt is used when a config or option does not supply one.
const defaultSystemPrompt = `You are a data extraction assistant. Extract structured data from the provided content.

Respond with ONLY valid JSON matching the requested fields. No explanations.

Rules:
1. Extract only what the field descriptions ask for
2. If a value cannot be determined, use null
3. Numbers: extract the numeric value only (no units or symbols)
4. Be precise and extract exactly what is requested`

// BuildSystemMessage assembles the system message: the system prompt, the
// field descriptions in schema declaration order, optional instructions,
// and the directive to answer with a single JSON object.
//
// Field order matters: the model conditions on earlier fields when filling
// later ones, so schemas place explanation fields last.
func BuildSystemMessage(s *schema.Schema, systemPrompt, instructions string) string {
	if systemPrompt == "" {
		systemPrompt = defaultSystemPrompt
	}

	var b strings.Builder
	b.WriteString(systemPrompt)
	b.WriteString("\n\n")
	b.WriteString(s.ToPromptDescription())

	if instructions != "" {
		b.WriteString("\n## Instructions\n")
		b.WriteString(instructions)
		b.WriteString("\n")
	}

	b.WriteString("\nReturn a single JSON object with exactly these keys: ")
	b.WriteString(strings.Join(s.Names(), ", "))
	b.WriteString(". Do not include any other text.")

	return b.String()
}

// BuildUserMessage renders the user message for one record. With a template,
// {key} placeholders are substituted from the record; without one, each
// input key is emitted as a "key: value" line. inputKeys restricts which
// record keys the message may draw from (empty means all keys).
//
// Include previous errors for self-correction: when previousErr is non-nil
// the message carries an error section so the model can fix its last answer.
func BuildUserMessage(record map[string]any, template string, inputKeys []string, previousErr error, maxContent int) string {
	visible := restrictRecord(record, inputKeys)

	var body string
	if template != "" {
		body = RenderTemplate(template, visible)
	} else {
		body = keyValueLines(visible, inputKeys)
	}

	var b strings.Builder
	b.WriteString(truncateContent(body, maxContent))

	if previousErr != nil {
		b.WriteString("\n\n## Previous Attempt Errors\n")
		b.WriteString("The previous response could not be used:\n")
		b.WriteString(previousErr.Error())
		b.WriteString("\n\nCorrect these errors. Return only a single valid JSON object.")
	}

	return b.String()
}

// RenderTemplate substitutes {key} placeholders with record values.
// Missing keys substitute an empty string rather than failing. "{{" and
// "}}" emit literal braces; an unterminated "{" is kept as-is.
func RenderTemplate(template string, record map[string]any) string {
	var b strings.Builder
	for i := 0; i < len(template); {
		c := template[i]
		switch {
		case c == '{' && i+1 < len(template) && template[i+1] == '{':
			b.WriteByte('{')
			i += 2
		case c == '}' && i+1 < len(template) && template[i+1] == '}':
			b.WriteByte('}')
			i += 2
		case c == '{':
			end := strings.IndexByte(template[i+1:], '}')
			if end < 0 {
				b.WriteString(template[i:])
				return b.String()
			}
			key := template[i+1 : i+1+end]
			if v, ok := record[key]; ok {
				b.WriteString(formatValue(v))
			}
			i += end + 2
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String()
}

func restrictRecord(record map[string]any, inputKeys []string) map[string]any {
	if len(inputKeys) == 0 {
		return record
	}
	out := make(map[string]any, len(inputKeys))
	for _, k := range inputKeys {
		if v, ok := record[k]; ok {
			out[k] = v
		}
	}
	return out
}

// keyValueLines is the default user message body: one "key: value" line per
// input key. With explicit keys the given order is kept (missing keys render
// empty); otherwise keys are sorted for a deterministic prompt.
func keyValueLines(record map[string]any, inputKeys []string) string {
	keys := inputKeys
	if len(keys) == 0 {
		keys = make([]string, 0, len(record))
		for k := range record {
			keys = append(keys, k)
		}
		sort.Strings(keys)
	}

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(formatValue(record[k]))
	}
	return b.String()
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case json.Number:
		return x.String()
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// truncateContent limits content size to avoid token limits.
// maxLen of 0 means no limit.
func truncateContent(content string, maxLen int) string {
	if maxLen <= 0 || len(content) <= maxLen {
		return content
	}
	logger.Warn("content truncated due to length",
		"original_bytes", len(content),
		"max_bytes", maxLen,
		"truncated_bytes", len(content)-maxLen)
	return content[:maxLen] + "\n\n[Content truncated due to length...]"
}
