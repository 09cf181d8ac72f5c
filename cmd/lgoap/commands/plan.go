package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/dyluth/lgoap/internal/printer"
	"github.com/dyluth/lgoap/pkg/planner"
)

var (
	planAssignments []string
	planSteps       int
	planMaxFScore   float32
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Run one planning pass and print the plans",
	Long: `Create a blackboard for the domain's schema, apply --set overrides, run a
synchronous planning pass and print the result of every layer.

With --steps N, the current task is then completed successfully N times,
applying each action's effect and replanning as an agent would.

Examples:
  lgoap plan --set ammo=0
  lgoap plan --set hasTarget=true --set home=1,0,4 --steps 5`,
	Args: cobra.NoArgs,
	RunE: runPlan,
}

func init() {
	planCmd.Flags().StringArrayVar(&planAssignments, "set", nil, "Blackboard override as key=value (repeatable)")
	planCmd.Flags().IntVar(&planSteps, "steps", 0, "Number of tasks to complete after the first pass")
	planCmd.Flags().Float32Var(&planMaxFScore, "max-f-score", 0, "Search bound (0 = default, negative = unbounded)")
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	_, b, err := loadBundle()
	if err != nil {
		return err
	}

	bb := b.Schema.NewInstance()
	defer bb.Dispose()

	for _, a := range planAssignments {
		if err := applyAssignment(bb, a); err != nil {
			return printer.Error("Invalid --set value", err.Error(), []string{"Run 'lgoap validate' to list the schema's keys and types"})
		}
	}

	p, err := planner.New(b.Domain, bb, planner.Settings{MaxFScore: planMaxFScore, Synchronous: true}, nil)
	if err != nil {
		return printer.Error("Failed to create planner", err.Error(), nil)
	}
	defer p.Dispose()

	ctx := cmdContext(cmd)

	p.StartPlanning(0, false)
	settle(ctx, p)
	printer.Step("Initial pass\n")
	printer.Plans(b.Domain, p.Plans())

	for step := 1; step <= planSteps; step++ {
		layer, action, ok := p.CurrentTask()
		if !ok {
			printer.Info("Nothing left to execute after %d step(s)\n", step-1)
			break
		}

		printer.Step("Step %d: %s completes\n", step, b.Domain.ElementName(layer, action))
		p.OnTaskExecutionComplete(true)
		settle(ctx, p)
		printer.Plans(b.Domain, p.Plans())
	}

	s := p.Stats()
	printer.Success("%d pass(es), %d search(es), %d node(s) expanded\n", s.Passes, s.Searches, s.Nodes)
	return nil
}

// maxSettlePasses bounds settle when every commit requests another pass.
const maxSettlePasses = 16

// settle commits passes until the planner stops requesting new ones. A commit
// can request another pass when it completes an already refined abstract action.
func settle(ctx context.Context, p *planner.Planner) {
	for i := 0; i < maxSettlePasses && p.State() == planner.StatePlanning; i++ {
		p.Update(ctx)
	}
}
