package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dyluth/lgoap/internal/printer"
	"github.com/dyluth/lgoap/internal/scaffold"
)

var (
	forceInit bool
)

var initCmd = &cobra.Command{
	Use:   "init [DIR]",
	Short: "Initialize a new lgoap project",
	Long: `Initialize a new lgoap project with an example domain.

Creates:
  • lgoap.yml    - Schemas and a three-layer hunting domain
  • settings.yml - Runtime settings for 'lgoap run --settings settings.yml'

DIR defaults to the current directory.

Use --force to reinitialize an existing project (WARNING: overwrites both files).`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&forceInit, "force", false, "Overwrite existing lgoap.yml and settings.yml")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}

	if !forceInit {
		if err := scaffold.CheckExisting(dir); err != nil {
			return printer.ErrorWithContext(
				"project already initialized",
				err.Error(),
				map[string]string{"Directory": dir},
				[]string{"Use 'lgoap init --force' to overwrite the existing files"},
			)
		}
	}

	paths, err := scaffold.Initialize(dir, forceInit)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	printer.Success("Initialized lgoap project\n")
	printer.Println("\nCreated:")
	for _, p := range paths {
		printer.Printf("  ✓ %s\n", p)
	}
	printer.Println("\nNext steps:")
	printer.Printf("  1. Run 'lgoap plan -c %s --steps 4' to step through a plan\n", paths[0])
	printer.Printf("  2. Run 'lgoap run -c %s --settings %s' to start the agents\n", paths[0], paths[1])

	return nil
}
