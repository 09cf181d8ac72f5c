package plans

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/dyluth/lgoap/pkg/blackboard"
)

// OutputFormat specifies how to format the plan list output.
type OutputFormat string

const (
	// OutputFormatDefault uses a table format with truncated plans
	OutputFormatDefault OutputFormat = "default"

	// OutputFormatJSONL outputs complete plan records as line-delimited JSON
	OutputFormatJSONL OutputFormat = "jsonl"
)

// ListPlans retrieves the stored plans of every agent in the client's
// namespace and writes the records matching filters to w.
// Records are sorted by commit time, then agent, then layer.
// Agents whose plan disappears or cannot be decoded mid-scan are skipped with
// a warning on warn.
func ListPlans(ctx context.Context, client *blackboard.Client, format OutputFormat, filters *Criteria, w, warn io.Writer) error {
	ids, err := client.ScanAgents(ctx, "")
	if err != nil {
		return err
	}

	var records []blackboard.PlanRecord
	for _, id := range ids {
		agentRecords, err := client.GetPlans(ctx, id)
		if err != nil {
			if !blackboard.IsNotFound(err) {
				fmt.Fprintf(warn, "⚠️  Skipping plan of agent %s: %v\n", id, err)
			}
			continue
		}

		for i := range agentRecords {
			if filters.Matches(&agentRecords[i]) {
				records = append(records, agentRecords[i])
			}
		}
	}

	sort.SliceStable(records, func(i, j int) bool {
		a, b := &records[i], &records[j]
		if a.CommittedAtMs != b.CommittedAtMs {
			return a.CommittedAtMs < b.CommittedAtMs
		}
		if a.AgentID != b.AgentID {
			return a.AgentID < b.AgentID
		}
		return a.Layer < b.Layer
	})

	switch format {
	case OutputFormatDefault:
		FormatTable(w, records, client.Namespace())
	case OutputFormatJSONL:
		if err := FormatJSONL(w, records); err != nil {
			return fmt.Errorf("failed to format JSONL output: %w", err)
		}
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}

	return nil
}
