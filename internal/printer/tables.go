package printer

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/dyluth/lgoap/pkg/blackboard"
	"github.com/dyluth/lgoap/pkg/domain"
	"github.com/dyluth/lgoap/pkg/planner"
)

// Schema prints a compiled schema's key layout.
func Schema(s *blackboard.Schema) {
	bold.Fprintf(stdout, "Schema %s", s.Name())
	if p := s.Parent(); p != nil {
		fmt.Fprintf(stdout, " (extends %s)", p.Name())
	}
	fmt.Fprintf(stdout, ": %d keys, %d bytes\n", len(s.Keys()), s.Size())

	w := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "  KEY\tTYPE\tOFFSET\tTRAITS")
	for _, k := range s.Keys() {
		fmt.Fprintf(w, "  %s\t%s\t%d\t%s\n", k.Name, k.Type, k.Handle, traits(k.Traits))
	}
	w.Flush()
}

func traits(t blackboard.Traits) string {
	var names []string
	if t.Has(blackboard.TraitInstanceSynced) {
		names = append(names, "synced")
	}
	if t.Has(blackboard.TraitNotifyOnUnexpectedChange) {
		names = append(names, "notify")
	}
	if len(names) == 0 {
		return "-"
	}
	return strings.Join(names, ",")
}

// Domain prints a compiled domain's layers and elements.
func Domain(d *domain.Domain) {
	bold.Fprintf(stdout, "Domain %s", d.Name())
	fmt.Fprintf(stdout, ": %d layers, %d bytes\n", d.LayerCount(), len(d.Bytes()))

	for layer := 0; layer < d.LayerCount(); layer++ {
		names := make([]string, d.ElementCount(layer))
		for i := range names {
			names[i] = d.ElementName(layer, i)
			if layer > 0 && d.Abstract(layer, i) {
				names[i] += "*"
			}
		}

		fallback := make([]string, 0, len(d.Fallback(layer)))
		for _, i := range d.Fallback(layer) {
			fallback = append(fallback, d.ElementName(layer, i))
		}

		fmt.Fprintf(stdout, "  layer %d (max %d, fallback [%s]): %s\n",
			layer, d.MaxPlanLength(layer), strings.Join(fallback, ", "), strings.Join(names, ", "))
	}
}

// Plans prints one line per layer: the result and the plan with its cursor
// element in brackets.
func Plans(d *domain.Domain, plans []planner.Plan) {
	for layer, p := range plans {
		steps := make([]string, len(p.Actions))
		for i, a := range p.Actions {
			steps[i] = d.ElementName(layer, a)
			if i == p.Cursor {
				steps[i] = "[" + steps[i] + "]"
			}
		}
		plan := strings.Join(steps, " → ")
		if p.Fallback {
			plan += " (fallback)"
		}
		fmt.Fprintf(stdout, "  layer %d  %s  %s\n", layer, resultColor(p.Result).Sprintf("%-12s", p.Result), plan)
	}
}

func resultColor(r planner.Result) *color.Color {
	switch r {
	case planner.ResultNewPlan:
		return green
	case planner.ResultUnchanged:
		return cyan
	case planner.ResultNotRequired:
		return yellow
	default:
		return red
	}
}
