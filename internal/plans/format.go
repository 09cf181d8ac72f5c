package plans

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dyluth/lgoap/pkg/blackboard"
)

// FormatTable writes plan records as a formatted table to the provided writer.
// The table includes columns: AGENT, LAYER, RESULT, CURSOR, AGE and ACTIONS (truncated).
// Returns the number of records formatted.
func FormatTable(w io.Writer, records []blackboard.PlanRecord, namespace string) int {
	if len(records) == 0 {
		fmt.Fprintf(w, "No plans found in namespace '%s'\n", namespace)
		return 0
	}

	fmt.Fprintf(w, "Plans in namespace '%s':\n\n", namespace)

	fmt.Fprintf(w, "%-10s %-5s %-13s %-6s %-8s %s\n",
		"AGENT", "LAYER", "RESULT", "CURSOR", "AGE", "ACTIONS")
	fmt.Fprintf(w, "%-10s %-5s %-13s %-6s %-8s %s\n",
		"----------", "-----", "-------------", "------", "--------", "----------------------------------------")

	for i := range records {
		r := &records[i]
		fmt.Fprintf(w, "%-10s %-5d %-13s %-6s %-8s %s\n",
			formatID(r.AgentID),
			r.Layer,
			formatResult(r),
			formatCursor(r),
			formatTimestamp(r.CommittedAtMs),
			formatActions(r.Actions),
		)
	}

	countMsg := "plan"
	if len(records) != 1 {
		countMsg = "plans"
	}
	fmt.Fprintf(w, "\n%d %s found\n", len(records), countMsg)

	return len(records)
}

// FormatJSONL writes plan records as line-delimited JSON (JSONL) to the provided writer.
// Each record is written as a single JSON object on its own line.
func FormatJSONL(w io.Writer, records []blackboard.PlanRecord) error {
	for i := range records {
		data, err := json.Marshal(&records[i])
		if err != nil {
			return fmt.Errorf("failed to marshal plan record to JSON: %w", err)
		}

		if _, err := fmt.Fprintf(w, "%s\n", data); err != nil {
			return fmt.Errorf("failed to write JSONL output: %w", err)
		}
	}

	return nil
}

// FormatSingleJSON writes the plan records of one agent as a pretty-printed JSON array.
func FormatSingleJSON(w io.Writer, records []blackboard.PlanRecord) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal plan records to JSON: %w", err)
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write JSON output: %w", err)
	}

	fmt.Fprintln(w)
	return nil
}

// formatID truncates an agent ID to its first 8 characters for compact display.
func formatID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatResult(r *blackboard.PlanRecord) string {
	if r.Fallback {
		return r.Result + "*"
	}
	return r.Result
}

// formatCursor shows the 1-based position of the executing action, or "-"
// once the plan has run to completion.
func formatCursor(r *blackboard.PlanRecord) string {
	if len(r.Actions) == 0 || r.Cursor >= len(r.Actions) {
		return "-"
	}
	return fmt.Sprintf("%d/%d", r.Cursor+1, len(r.Actions))
}

// formatActions joins the plan with arrows and truncates to 40 characters.
// Empty plans return "-".
func formatActions(actions []string) string {
	if len(actions) == 0 {
		return "-"
	}

	joined := strings.Join(actions, " → ")
	if n := len([]rune(joined)); n > 40 {
		return string([]rune(joined)[:37]) + "..."
	}
	return joined
}

// formatTimestamp formats a Unix timestamp in milliseconds as a relative age
// like "2m ago".
func formatTimestamp(timestampMs int64) string {
	if timestampMs == 0 {
		return "-"
	}

	diff := time.Since(time.UnixMilli(timestampMs))

	switch {
	case diff < time.Minute:
		return fmt.Sprintf("%ds ago", int(diff.Seconds()))
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
	}
}
