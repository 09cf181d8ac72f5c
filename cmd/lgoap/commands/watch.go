package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dyluth/lgoap/internal/plans"
	"github.com/dyluth/lgoap/internal/printer"
	"github.com/dyluth/lgoap/internal/watch"
)

var (
	watchOutputFormat string
	watchLayer        int
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream plan commits in real time",
	Long: `Stream the plans agents commit as they replan.

Agents publish a plan event for every layer each time they save their plans
(lgoap run --save-plans).

Output Formats:
  default - Human-readable output with timestamps
  json    - Line-delimited JSON for programmatic processing

Examples:
  # Watch every agent
  lgoap watch --redis-url redis://localhost:6379/0

  # Only goal changes, as JSON
  lgoap watch --layer 0 --output json > goals.jsonl`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	addRedisFlags(watchCmd.Flags())
	watchCmd.Flags().StringVarP(&watchOutputFormat, "output", "o", "default", "Output format (default or json)")
	watchCmd.Flags().IntVar(&watchLayer, "layer", -1, "Show only this layer")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	var format watch.OutputFormat
	switch watchOutputFormat {
	case "default":
		format = watch.OutputFormatDefault
	case "json":
		format = watch.OutputFormatJSON
	default:
		return printer.Error(
			"invalid output format",
			fmt.Sprintf("Unknown format: %s", watchOutputFormat),
			[]string{"Valid formats: default, json"},
		)
	}

	ctx, stop := signal.NotifyContext(cmdContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rs := redisSettings(cmd)
	client, err := connectRedis(ctx, rs)
	if err != nil {
		return err
	}
	defer client.Close()

	if format == watch.OutputFormatDefault {
		printer.Info("Watching plans in namespace '%s' (Ctrl+C to stop)\n", rs.Namespace)
	}

	out, errOut := printer.Writers()
	return watch.StreamPlans(ctx, client, format, &plans.Criteria{Layer: watchLayer}, out, errOut)
}
