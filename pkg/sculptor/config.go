package sculptor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/sculptor/pkg/filter"
	"github.com/jmylchreest/sculptor/pkg/llm"
	"github.com/jmylchreest/sculptor/pkg/schema"
)

// Config describes one sculptor. Zero values defer to the sculptor
// defaults; pointer fields distinguish "absent" from an explicit zero.
type Config struct {
	Provider     string         `yaml:"provider,omitempty" json:"provider,omitempty"`
	Model        string         `yaml:"model" json:"model"`
	APIKey       string         `yaml:"api_key,omitempty" json:"api_key,omitempty"`
	BaseURL      string         `yaml:"base_url,omitempty" json:"base_url,omitempty"`
	Schema       *schema.Schema `yaml:"schema,omitempty" json:"schema,omitempty"`
	Instructions string         `yaml:"instructions,omitempty" json:"instructions,omitempty"`
	SystemPrompt string         `yaml:"system_prompt,omitempty" json:"system_prompt,omitempty"`
	Template     string         `yaml:"template,omitempty" json:"template,omitempty"`
	InputKeys    []string       `yaml:"input_keys,omitempty" json:"input_keys,omitempty"`
	MaxTokens    int            `yaml:"max_tokens,omitempty" json:"max_tokens,omitempty"`
	Temperature  float64        `yaml:"temperature,omitempty" json:"temperature,omitempty"`
	Retries      *int           `yaml:"retries,omitempty" json:"retries,omitempty"`
	Workers      int            `yaml:"n_workers,omitempty" json:"n_workers,omitempty"`
	MergeInput   *bool          `yaml:"merge_input,omitempty" json:"merge_input,omitempty"`
	StrictEnums  bool           `yaml:"strict_enums,omitempty" json:"strict_enums,omitempty"`
	StrictOutput bool           `yaml:"strict_output,omitempty" json:"strict_output,omitempty"`
	MaxContent   int            `yaml:"max_content_bytes,omitempty" json:"max_content_bytes,omitempty"`
}

// StageConfig is one pipeline step: a sculptor plus an optional filter
// expression compiled by pkg/filter.
type StageConfig struct {
	Sculptor Config `yaml:"sculptor" json:"sculptor"`
	Filter   string `yaml:"filter,omitempty" json:"filter,omitempty"`
}

// PipelineConfig is the top-level shape of a multi-stage config file.
type PipelineConfig struct {
	Steps []StageConfig `yaml:"steps" json:"steps"`
}

// ProviderName returns the configured provider, defaulting to "openai".
func (c *Config) ProviderName() string {
	if c.Provider == "" {
		return "openai"
	}
	return c.Provider
}

// Validate checks the config for problems that must fail fast, without
// touching the network.
func (c *Config) Validate() error {
	if c.Model == "" {
		return configErrorf("", "model is required")
	}
	if provider := c.ProviderName(); !llm.IsRegistered(provider) {
		return configErrorf("", "unknown provider %q (available: %s)", provider, strings.Join(llm.AvailableProviders(), ", "))
	}
	if c.Retries != nil && *c.Retries < 0 {
		return configErrorf("", "retries must be >= 0")
	}
	if c.Workers < 0 {
		return configErrorf("", "n_workers must be >= 0")
	}
	return nil
}

// LoadConfig reads a sculptor config from a YAML or JSON file. Schema field
// types are resolved while decoding, so an unrecognized type tag surfaces
// here rather than mid-run.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, configErrorf(path, "read: %v", err)
	}
	var cfg Config
	if err := unmarshalByExt(path, data, &cfg); err != nil {
		return nil, configErrorf(path, "%v", err)
	}
	return &cfg, nil
}

// LoadPipelineConfig reads a pipeline config from a YAML or JSON file.
func LoadPipelineConfig(path string) (*PipelineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, configErrorf(path, "read: %v", err)
	}
	var cfg PipelineConfig
	if err := unmarshalByExt(path, data, &cfg); err != nil {
		return nil, configErrorf(path, "%v", err)
	}
	return &cfg, nil
}

func unmarshalByExt(path string, data []byte, v any) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, v)
	case ".json":
		return json.Unmarshal(data, v)
	}
	return fmt.Errorf("unsupported config format %q (use .yaml, .yml, or .json)", filepath.Ext(path))
}

// FromConfig builds a Sculptor from a decoded configuration object. All
// validation, credential resolution, and provider construction happen here,
// before any network call is attempted.
func FromConfig(cfg *Config) (*Sculptor, error) {
	if cfg == nil {
		return nil, configErrorf("", "nil config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	providerName := cfg.ProviderName()

	apiKey, err := resolveEnvVars(cfg.APIKey)
	if err != nil {
		return nil, configErrorf("", "api_key: %v", err)
	}
	if apiKey == "" {
		apiKey = llm.APIKeyFromEnv(providerName)
	}

	baseURL, err := resolveEnvVars(cfg.BaseURL)
	if err != nil {
		return nil, configErrorf("", "base_url: %v", err)
	}

	provider, err := llm.NewProvider(providerName, llm.ProviderConfig{
		APIKey:  apiKey,
		BaseURL: baseURL,
		Model:   cfg.Model,
	})
	if err != nil {
		return nil, configErrorf("", "provider %s: %v", providerName, err)
	}

	opts := []Option{
		WithSystemPrompt(cfg.SystemPrompt),
		WithInstructions(cfg.Instructions),
		WithTemplate(cfg.Template),
		WithInputKeys(cfg.InputKeys...),
		WithMaxTokens(cfg.MaxTokens),
		WithTemperature(cfg.Temperature),
		WithStrictEnums(cfg.StrictEnums),
		WithStrictOutput(cfg.StrictOutput),
		WithMaxContentBytes(cfg.MaxContent),
	}
	if cfg.Schema != nil {
		opts = append(opts, WithSchema(cfg.Schema))
	}
	if cfg.Retries != nil {
		opts = append(opts, WithRetries(*cfg.Retries))
	}
	if cfg.Workers > 0 {
		opts = append(opts, WithWorkers(cfg.Workers))
	}
	if cfg.MergeInput != nil {
		opts = append(opts, WithMergeInput(*cfg.MergeInput))
	}

	return New(provider, opts...), nil
}

// FromConfigFile loads a config file and builds a Sculptor from it.
func FromConfigFile(path string) (*Sculptor, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	s, err := FromConfig(cfg)
	if err != nil {
		return nil, attachPath(path, err)
	}
	return s, nil
}

// PipelineFromConfig builds a Pipeline from a decoded configuration object.
// Stage filters are compiled here, so a bad expression fails before any
// network call.
func PipelineFromConfig(cfg *PipelineConfig) (*Pipeline, error) {
	if cfg == nil {
		return nil, configErrorf("", "nil pipeline config")
	}
	if len(cfg.Steps) == 0 {
		return nil, configErrorf("", "pipeline has no steps")
	}

	p := NewPipeline()
	for i := range cfg.Steps {
		step := &cfg.Steps[i]

		s, err := FromConfig(&step.Sculptor)
		if err != nil {
			return nil, stepError(i, err)
		}

		var pred filter.Predicate
		if step.Filter != "" {
			f, err := filter.Compile(step.Filter)
			if err != nil {
				return nil, configErrorf("", "step %d filter: %v", i, err)
			}
			pred = f.Eval
		}

		p.Add(s, pred)
	}
	return p, nil
}

// PipelineFromConfigFile loads a pipeline config file and builds a Pipeline.
func PipelineFromConfigFile(path string) (*Pipeline, error) {
	cfg, err := LoadPipelineConfig(path)
	if err != nil {
		return nil, err
	}
	p, err := PipelineFromConfig(cfg)
	if err != nil {
		return nil, attachPath(path, err)
	}
	return p, nil
}

// PipelineFromFile builds a pipeline from either config shape: a "steps"
// file becomes a multi-stage pipeline, a plain sculptor config becomes a
// single stage with no filter.
func PipelineFromFile(path string) (*Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, configErrorf(path, "read: %v", err)
	}

	var probe struct {
		Steps []map[string]any `yaml:"steps" json:"steps"`
	}
	if err := unmarshalByExt(path, data, &probe); err != nil {
		return nil, configErrorf(path, "%v", err)
	}

	if len(probe.Steps) > 0 {
		return PipelineFromConfigFile(path)
	}

	s, err := FromConfigFile(path)
	if err != nil {
		return nil, err
	}
	return NewPipeline().Add(s, nil), nil
}

var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// resolveEnvVars expands ${ENV_VAR} references. An unset variable is an
// error: better to fail here than send an empty credential to an endpoint.
func resolveEnvVars(value string) (string, error) {
	if value == "" {
		return "", nil
	}
	var missing []string
	out := envPattern.ReplaceAllStringFunc(value, func(match string) string {
		name := match[2 : len(match)-1]
		v, ok := os.LookupEnv(name)
		if !ok {
			missing = append(missing, name)
		}
		return v
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("environment variable %s is not set", strings.Join(missing, ", "))
	}
	return out, nil
}

// stepError prefixes a stage's config error with its step index without
// double-wrapping the "config:" prefix.
func stepError(i int, err error) error {
	if ce, ok := err.(*ConfigError); ok {
		return configErrorf(ce.Path, "step %d: %s", i, ce.Message)
	}
	return configErrorf("", "step %d: %v", i, err)
}

// attachPath adds the source file to a ConfigError raised after loading.
func attachPath(path string, err error) error {
	if ce, ok := err.(*ConfigError); ok && ce.Path == "" {
		ce.Path = path
	}
	return err
}
