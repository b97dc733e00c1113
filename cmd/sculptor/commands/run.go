package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jmylchreest/sculptor/internal/logger"
	"github.com/jmylchreest/sculptor/internal/output"
	"github.com/jmylchreest/sculptor/pkg/sculptor"
	"github.com/jmylchreest/sculptor/pkg/source"
)

var runCmd = &cobra.Command{
	Use:   "run <config>",
	Short: "Run an extraction or pipeline over input records",
	Long: `Run the extractor or pipeline described by a config file over records
from a file or a registered source.

The config file defines the provider, the schema of fields to extract,
and (for pipelines) the stages and filters. Records come from --input
(a JSONL, JSON, or CSV file) or --source (hackernews, web).

Examples:
  # File input, JSON array output on stdout
  sculptor run extractor.yaml -i records.jsonl

  # Pipeline over Hacker News stories, JSONL to a file
  sculptor run pipeline.yaml --source hackernews --query "ai" \
      --limit 100 -o results.jsonl --format jsonl

  # Web pages as records, four extraction workers
  sculptor run extractor.yaml --source web -u https://example.com/a \
      -u https://example.com/b --workers 4`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	flags := runCmd.Flags()

	// Input settings
	flags.StringP("input", "i", "", "input file with one record per line/row (jsonl, json, csv)")
	flags.String("input-format", "", "override the input format inferred from the extension")
	flags.String("source", "", "input source type: "+strings.Join(source.Available(), ", "))
	flags.String("query", "", "search query (hackernews source)")
	flags.String("tags", "", "comma-separated tags (hackernews source)")
	flags.Int("limit", 0, "max records to pull from the source (0=source default)")
	flags.Bool("include-comments", false, "also fetch comment threads (hackernews source)")
	flags.StringSliceP("url", "u", nil, "page URL(s) to fetch (web source, can be repeated)")
	flags.Bool("render", false, "render JavaScript with a headless browser (web source)")

	// Output settings
	flags.StringP("output", "o", "", "output file (default: stdout)")
	flags.String("format", "json", "output format: json, jsonl, yaml, csv")
	flags.Bool("pretty", true, "indent JSON output")

	// Extraction settings
	flags.IntP("workers", "w", 0, "concurrent extraction workers (0=config value)")
	flags.Int("retries", -1, "corrective retries after malformed output (-1=config value)")
	flags.String("max-content", "", "max substituted content size, e.g. 100KB (empty=config value)")
	flags.Bool("progress", false, "log progress while the batch runs")

	// Bind to viper
	_ = viper.BindPFlag("workers", flags.Lookup("workers"))
	_ = viper.BindPFlag("format", flags.Lookup("format"))
}

type runOverrides struct {
	workers    int
	retries    int
	maxContent int
}

func runRun(cmd *cobra.Command, args []string) error {
	logger.Init(logger.Options{
		Debug: viper.GetBool("debug"),
		Quiet: viper.GetBool("quiet"),
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	configPath := args[0]
	logger.Debug("run command starting", "config", configPath)

	// Parse overrides before touching the network
	var overrides runOverrides
	overrides.workers, _ = cmd.Flags().GetInt("workers")
	overrides.retries, _ = cmd.Flags().GetInt("retries")

	maxContentStr, _ := cmd.Flags().GetString("max-content")
	if strings.TrimSpace(maxContentStr) != "" && maxContentStr != "0" {
		size, err := humanize.ParseBytes(maxContentStr)
		if err != nil {
			logError("invalid max-content %q: %v", maxContentStr, err)
			return err
		}
		overrides.maxContent = int(size)
	}
	logger.Debug("overrides parsed",
		"workers", overrides.workers,
		"retries", overrides.retries,
		"max_content", overrides.maxContent)

	// Build the pipeline from the config file
	pipe, err := loadPipeline(configPath, overrides)
	if err != nil {
		logError("%v", err)
		return err
	}
	logger.Debug("pipeline built", "stages", pipe.Len())

	// Build the input source
	src, err := buildSource(cmd)
	if err != nil {
		logError("%v", err)
		return err
	}
	logger.Debug("input source ready", "type", src.Name())

	records, err := src.Records(ctx)
	if err != nil {
		logError("failed to read records: %v", err)
		return err
	}
	logger.Info("records loaded", "source", src.Name(), "count", len(records))

	// Run the pipeline
	var batchOpts []sculptor.BatchOption
	if overrides.workers > 0 {
		batchOpts = append(batchOpts, sculptor.WithBatchWorkers(overrides.workers))
	}
	if progress, _ := cmd.Flags().GetBool("progress"); progress {
		batchOpts = append(batchOpts, sculptor.WithBatchProgress(func(done, total int) {
			logger.Info("extraction progress", "done", done, "total", total)
		}))
	}

	results := pipe.Process(ctx, records, batchOpts...)

	errorCount := 0
	for _, rec := range results {
		if _, ok := rec[sculptor.ErrorKey]; ok {
			errorCount++
		}
	}
	logger.Info("extraction complete",
		"input", len(records),
		"output", len(results),
		"dropped", len(records)-len(results),
		"errors", errorCount)

	// Write results
	if err := writeResults(cmd, results); err != nil {
		logError("failed to write output: %v", err)
		return err
	}

	if err := context.Cause(ctx); err != nil {
		logger.Warn("run interrupted", "reason", err)
	}
	return nil
}

// loadPipeline reads either a pipeline config (with steps) or a single
// extractor config, applies CLI overrides, and builds the pipeline.
func loadPipeline(path string, overrides runOverrides) (*sculptor.Pipeline, error) {
	pipeCfg, err := sculptor.LoadPipelineConfig(path)
	if err != nil {
		return nil, err
	}
	if len(pipeCfg.Steps) > 0 {
		for i := range pipeCfg.Steps {
			applyOverrides(&pipeCfg.Steps[i].Sculptor, overrides)
		}
		return sculptor.PipelineFromConfig(pipeCfg)
	}

	cfg, err := sculptor.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	applyOverrides(cfg, overrides)
	s, err := sculptor.FromConfig(cfg)
	if err != nil {
		return nil, err
	}
	return sculptor.NewPipeline().Add(s, nil), nil
}

func applyOverrides(cfg *sculptor.Config, overrides runOverrides) {
	if overrides.workers > 0 {
		cfg.Workers = overrides.workers
	}
	if overrides.retries >= 0 {
		retries := overrides.retries
		cfg.Retries = &retries
	}
	if overrides.maxContent > 0 {
		cfg.MaxContent = overrides.maxContent
	}
}

// buildSource picks the input source from flags: a file path, or a
// registered source type configured by its flags.
func buildSource(cmd *cobra.Command) (source.Source, error) {
	inputPath, _ := cmd.Flags().GetString("input")
	sourceType, _ := cmd.Flags().GetString("source")

	switch {
	case inputPath != "" && sourceType != "":
		return nil, fmt.Errorf("--input and --source are mutually exclusive")
	case inputPath != "":
		if format, _ := cmd.Flags().GetString("input-format"); format != "" {
			return source.NewFileWithFormat(inputPath, format), nil
		}
		return source.NewFile(inputPath), nil
	case sourceType != "":
		return source.New(sourceType, sourceOptions(cmd))
	}
	return nil, fmt.Errorf("provide --input FILE or --source TYPE")
}

// sourceOptions collects the source-specific flags that were set.
func sourceOptions(cmd *cobra.Command) map[string]any {
	options := map[string]any{}
	flags := cmd.Flags()

	if query, _ := flags.GetString("query"); query != "" {
		options["query"] = query
	}
	if tags, _ := flags.GetString("tags"); tags != "" {
		options["tags"] = tags
	}
	if flags.Changed("limit") {
		limit, _ := flags.GetInt("limit")
		options["limit"] = limit
	}
	if flags.Changed("include-comments") {
		include, _ := flags.GetBool("include-comments")
		options["include_comments"] = include
	}
	if urls, _ := flags.GetStringSlice("url"); len(urls) > 0 {
		options["urls"] = urls
	}
	if flags.Changed("render") {
		render, _ := flags.GetBool("render")
		options["render"] = render
	}
	return options
}

func writeResults(cmd *cobra.Command, results []map[string]any) error {
	outFile := os.Stdout
	if outPath, _ := cmd.Flags().GetString("output"); outPath != "" {
		f, err := os.Create(outPath) //#nosec G304 -- CLI tool writes to user-specified output file
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		outFile = f
	}

	formatStr, _ := cmd.Flags().GetString("format")
	format, err := output.ParseFormat(formatStr)
	if err != nil {
		return err
	}

	pretty, _ := cmd.Flags().GetBool("pretty")
	writer, err := output.NewWriter(outFile, format, output.WithPretty(pretty))
	if err != nil {
		return err
	}
	if err := writer.WriteAll(results); err != nil {
		return err
	}
	return writer.Close()
}
