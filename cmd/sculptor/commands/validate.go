package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jmylchreest/sculptor/internal/logger"
	"github.com/jmylchreest/sculptor/pkg/sculptor"
)

var validateCmd = &cobra.Command{
	Use:   "validate <config>",
	Short: "Check an extraction or pipeline config without running it",
	Long: `Validate a config file: schema field types, provider names, filter
expressions, and credential placeholders are all checked up front, the
same way run does before its first provider call. Nothing is sent to any
provider.

Examples:
  sculptor validate extractor.yaml
  sculptor validate pipeline.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	logger.Init(logger.Options{
		Debug: viper.GetBool("debug"),
		Quiet: viper.GetBool("quiet"),
	})

	configPath := args[0]
	logger.Debug("validating config", "path", configPath)

	pipe, err := sculptor.PipelineFromFile(configPath)
	if err != nil {
		logError("%v", err)
		return err
	}

	fmt.Printf("%s: valid (%d stage(s))\n", configPath, pipe.Len())
	for i, stage := range pipe.Stages() {
		provider := stage.Sculptor.Provider()
		filtered := ""
		if stage.Filter != nil {
			filtered = ", filtered"
		}
		fmt.Printf("  stage %d: %s/%s, %d field(s)%s\n",
			i, provider.Name(), provider.Model(), stage.Sculptor.Schema().Len(), filtered)
	}
	return nil
}
