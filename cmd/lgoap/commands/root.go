package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dyluth/lgoap/internal/config"
	"github.com/dyluth/lgoap/internal/printer"
)

var (
	version string
	commit  string
	date    string

	configPath string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "lgoap",
	Short: "lgoap - Layered goal-oriented action planning runtime",
	Long: `lgoap compiles blackboard schemas and layered goal/action domains from an
lgoap.yml file, plans them with iterative-deepening A* and runs planning
agents that execute their plans task by task.`,
	Version: version,
	// Prevent silent success when unknown flags are passed to root command
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
	FParseErrWhitelist: cobra.FParseErrWhitelist{},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	// Silence Cobra's default error and usage printing
	// We print formatted colored errors directly in the printer package
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "lgoap.yml", "Path to the lgoap.yml authoring file")
}

// loadBundle loads and compiles the authoring file, printing a formatted error on failure.
func loadBundle() (*config.File, *config.Bundle, error) {
	f, err := config.Load(configPath)
	if err != nil {
		return nil, nil, printer.ErrorWithContext(
			"Failed to load configuration",
			err.Error(),
			map[string]string{"Config": configPath},
			[]string{"Check the file exists and is valid YAML", "Use --config to point at another file"},
		)
	}

	b, err := f.Build()
	if err != nil {
		return nil, nil, printer.ErrorWithContext(
			"Failed to compile configuration",
			err.Error(),
			map[string]string{"Config": configPath},
			[]string{"Fix the reported schema or domain declaration and run 'lgoap validate' again"},
		)
	}

	return f, b, nil
}
