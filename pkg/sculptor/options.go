package sculptor

import (
	"github.com/jmylchreest/sculptor/pkg/schema"
)

// WithSchema replaces the sculptor's schema.
func WithSchema(s *schema.Schema) Option {
	return func(sc *Sculptor) {
		if s != nil {
			sc.schema = s
		}
	}
}

// WithSystemPrompt overrides the built-in system prompt.
func WithSystemPrompt(prompt string) Option {
	return func(sc *Sculptor) { sc.systemPrompt = prompt }
}

// WithInstructions adds task-specific instructions to the system message.
func WithInstructions(instructions string) Option {
	return func(sc *Sculptor) { sc.instructions = instructions }
}

// WithTemplate sets the user message template. {key} placeholders are
// substituted from the record; missing keys become empty strings.
func WithTemplate(template string) Option {
	return func(sc *Sculptor) { sc.template = template }
}

// WithInputKeys restricts which record keys the prompt may draw from and
// fixes their order in the default "key: value" message body.
func WithInputKeys(keys ...string) Option {
	return func(sc *Sculptor) { sc.inputKeys = keys }
}

// WithMaxTokens sets the maximum output tokens per completion.
func WithMaxTokens(n int) Option {
	return func(sc *Sculptor) { sc.maxTokens = n }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(sc *Sculptor) { sc.temperature = t }
}

// WithRetries sets how many corrective attempts follow a malformed
// response. Zero disables retries; negative values are treated as zero.
func WithRetries(n int) Option {
	return func(sc *Sculptor) {
		if n < 0 {
			n = 0
		}
		sc.retries = n
	}
}

// WithWorkers sets the default concurrency for SculptBatch.
func WithWorkers(n int) Option {
	return func(sc *Sculptor) { sc.workers = n }
}

// WithMergeInput controls whether extraction results are merged onto the
// input record (default true) or returned alone.
func WithMergeInput(merge bool) Option {
	return func(sc *Sculptor) { sc.mergeInput = merge }
}

// WithStrictOutput asks the provider to enforce the schema server-side and
// validates each response against the schema before coercion; responses
// that fail validation are retried with corrective feedback.
func WithStrictOutput(strict bool) Option {
	return func(sc *Sculptor) { sc.strictOutput = strict }
}

// WithStrictEnums rejects arrays containing unknown enum tokens instead of
// silently dropping the bad tokens (the lenient default).
func WithStrictEnums(strict bool) Option {
	return func(sc *Sculptor) { sc.policy.StrictEnums = strict }
}

// WithDiagnostics routes per-field coercion failures to the given sink.
func WithDiagnostics(sink DiagnosticSink) Option {
	return func(sc *Sculptor) { sc.sink = sink }
}

// WithMaxContentBytes truncates the rendered user message to at most n
// bytes before sending. Zero means no limit.
func WithMaxContentBytes(n int) Option {
	return func(sc *Sculptor) { sc.maxContent = n }
}

// WithProgress sets the default progress callback for SculptBatch.
func WithProgress(fn ProgressFunc) Option {
	return func(sc *Sculptor) { sc.progress = fn }
}
