package commands

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/dyluth/lgoap/internal/printer"
	"github.com/dyluth/lgoap/pkg/domain"
	"github.com/dyluth/lgoap/pkg/function"
)

var validateVerbose bool

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Compile and describe an lgoap.yml file",
	Long: `Compile every schema and the domain of an lgoap.yml file and print their
layouts. With --verbose, every compiled function collection is decoded back
from the domain buffer and printed.`,
	Args: cobra.NoArgs,
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().BoolVarP(&validateVerbose, "verbose", "v", false, "Decode and print every compiled collection")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	f, b, err := loadBundle()
	if err != nil {
		return err
	}

	for _, s := range f.Schemas {
		printer.Schema(b.Schemas[s.Name])
	}
	printer.Domain(b.Domain)

	if validateVerbose {
		if err := printCollections(b.Domain); err != nil {
			return printer.Error("Failed to decode domain", err.Error(), nil)
		}
	}

	printer.Success("%s is valid\n", configPath)
	return nil
}

func printCollections(d *domain.Domain) error {
	s := d.Schema()

	line := func(label string, c function.Collection) error {
		ops, err := function.DecodeCollection(s, c)
		if err != nil {
			return err
		}
		if len(ops) == 0 {
			return nil
		}
		parts := make([]string, len(ops))
		for i, op := range ops {
			parts[i] = op.String()
		}
		printer.Printf("      %-12s %s\n", label+":", strings.Join(parts, "; "))
		return nil
	}

	for g := 1; g < d.GoalCount(); g++ {
		printer.Printf("    goal %s\n", d.ElementName(0, g))
		if err := line("insistence", d.Insistence(g)); err != nil {
			return err
		}
		if _, target := d.Target(1, g); target != nil {
			if err := line("target", target); err != nil {
				return err
			}
		}
	}

	for layer := 1; layer < d.LayerCount(); layer++ {
		for i := 0; i < d.ElementCount(layer); i++ {
			printer.Printf("    layer %d action %s\n", layer, d.ElementName(layer, i))
			for _, c := range []struct {
				label string
				c     function.Collection
			}{
				{"pre", d.Precondition(layer, i)},
				{"cost", d.Cost(layer, i)},
				{"effect", d.Effect(layer, i)},
			} {
				if err := line(c.label, c.c); err != nil {
					return err
				}
			}
			if layer+1 < d.LayerCount() {
				if kind, target := d.Target(layer+1, i); kind == domain.TargetReal {
					if err := line("target", target); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}
