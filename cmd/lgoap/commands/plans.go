package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/dyluth/lgoap/internal/config"
	"github.com/dyluth/lgoap/internal/plans"
	"github.com/dyluth/lgoap/internal/printer"
	"github.com/dyluth/lgoap/internal/resolver"
)

var (
	plansOutputFormat string
	plansSince        string
	plansUntil        string
	plansLayer        int
	plansResult       string
	plansAction       string
)

var plansCmd = &cobra.Command{
	Use:   "plans [AGENT_ID]",
	Short: "Inspect plans saved by running agents",
	Long: `Inspect the plan records agents write to Redis when run with --save-plans.

List Mode (no AGENT_ID):
  Displays the current plan of every layer of every agent as a table or JSONL stream.

Get Mode (with AGENT_ID):
  Displays the plan records of one agent as pretty-printed JSON.
  Supports short IDs (e.g., "3f2a9c" instead of the full UUID).

Filters (list mode only):
  --since, --until  - Commit time bounds (duration like 10m or RFC3339)
  --layer           - Only this layer (0 = goals)
  --result          - Only this plan result (new_plan, unchanged, not_required)
  --action          - Only plans containing an action matching this glob

Examples:
  # List every plan in the default namespace
  lgoap plans --redis-url redis://localhost:6379/0

  # Goal-layer plans committed in the last five minutes, for jq
  lgoap plans --layer 0 --since 5m --output jsonl | jq .actions

  # One agent by short ID
  lgoap plans 3f2a9c`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPlans,
}

func init() {
	addRedisFlags(plansCmd.Flags())
	plansCmd.Flags().StringVarP(&plansOutputFormat, "output", "o", "default", "Output format: default or jsonl (ignored in get mode)")
	plansCmd.Flags().StringVar(&plansSince, "since", "", "Show plans committed after time (duration or RFC3339)")
	plansCmd.Flags().StringVar(&plansUntil, "until", "", "Show plans committed before time (duration or RFC3339)")
	plansCmd.Flags().IntVar(&plansLayer, "layer", -1, "Show only this layer")
	plansCmd.Flags().StringVar(&plansResult, "result", "", "Show only plans with this result")
	plansCmd.Flags().StringVar(&plansAction, "action", "", "Show only plans with an action matching this glob")
	rootCmd.AddCommand(plansCmd)
}

// addRedisFlags registers the connection flags shared by the commands that
// read from Redis.
func addRedisFlags(fs *pflag.FlagSet) {
	fs.String("redis-url", "redis://localhost:6379/0", "Redis URL the agents write to")
	fs.String("namespace", "default", "Redis key namespace")
}

// redisSettings resolves the connection flags, falling back to LGOAP_REDIS_*
// environment variables for flags left unset.
func redisSettings(cmd *cobra.Command) config.RedisSettings {
	v := config.NewViper()
	v.BindPFlag("redis.url", cmd.Flags().Lookup("redis-url"))
	v.BindPFlag("redis.namespace", cmd.Flags().Lookup("namespace"))
	return config.RedisSettings{URL: v.GetString("redis.url"), Namespace: v.GetString("redis.namespace")}
}

func runPlans(cmd *cobra.Command, args []string) error {
	ctx := cmdContext(cmd)
	out, errOut := printer.Writers()

	var format plans.OutputFormat
	if len(args) == 0 {
		switch plansOutputFormat {
		case "default":
			format = plans.OutputFormatDefault
		case "jsonl":
			format = plans.OutputFormatJSONL
		default:
			return printer.Error(
				"invalid output format",
				fmt.Sprintf("Unknown format: %s", plansOutputFormat),
				[]string{"Valid formats: default, jsonl"},
			)
		}
	}

	filters := &plans.Criteria{Layer: plansLayer, Result: plansResult, ActionGlob: plansAction}
	if err := filters.ParseRange(plansSince, plansUntil, time.Now()); err != nil {
		return printer.Error("invalid time filter", err.Error(), []string{"Use a duration like 10m or an RFC3339 timestamp"})
	}

	rs := redisSettings(cmd)
	client, err := connectRedis(ctx, rs)
	if err != nil {
		return err
	}
	defer client.Close()

	if len(args) == 0 {
		return plans.ListPlans(ctx, client, format, filters, out, errOut)
	}

	agentID, err := resolver.ResolveAgentID(ctx, client, args[0])
	if err != nil {
		switch e := err.(type) {
		case *resolver.NotFoundError:
			return printer.ErrorWithContext(
				fmt.Sprintf("no plan found for agent '%s'", args[0]),
				"No agent with a stored plan matches this ID.",
				map[string]string{"Namespace": rs.Namespace},
				[]string{"List agents with plans:\n  lgoap plans", "Agents only store plans when run with --save-plans"},
			)
		case *resolver.AmbiguousError:
			return printer.Error(fmt.Sprintf("ambiguous short ID '%s'", args[0]), e.Error(), e.Suggestions())
		default:
			return printer.Error("failed to resolve agent ID", err.Error(), nil)
		}
	}

	return plans.GetPlans(ctx, client, agentID, out)
}
