// Package commands implements the CLI commands for sculptor.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "sculptor",
	Short: "LLM-powered structured extraction from unstructured records",
	Long: `Sculptor turns unstructured records into validated, structured data
using LLMs.

Define a schema for the fields you want, point it at records (files, the
Hacker News API, web pages), and get typed output in JSON, JSONL, YAML,
or CSV. Configs can describe a single extractor or a multi-stage pipeline
with filters between stages.

Examples:
  # Extract fields from a JSONL file of records
  sculptor run extractor.yaml -i records.jsonl

  # Two-stage triage pipeline, writing survivors to a file
  sculptor run pipeline.yaml -i reports.jsonl -o triaged.json

  # Pull records straight from Hacker News
  sculptor run extractor.yaml --source hackernews --query "ai safety" --limit 50

  # Check a config without touching any provider
  sculptor validate pipeline.yaml`,
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "settings file (default $HOME/.sculptor.yaml)")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "suppress progress output")

	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
}

func initConfig() {
	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath(".")
		viper.SetConfigName(".sculptor")
		viper.SetConfigType("yaml")
	}

	// Environment variables
	viper.SetEnvPrefix("SCULPTOR")
	viper.AutomaticEnv()

	// Also check common API key env vars
	_ = viper.BindEnv("api_key", "OPENAI_API_KEY", "ANTHROPIC_API_KEY")

	// Read config file (ignore error if not found)
	_ = viper.ReadInConfig()
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// logError prints an error message to stderr.
func logError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}
