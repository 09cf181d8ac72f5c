package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dyluth/lgoap/internal/plans"
	"github.com/dyluth/lgoap/pkg/blackboard"
)

// OutputFormat specifies how streamed plan events are written.
type OutputFormat string

const (
	// OutputFormatDefault writes one human-readable line per event
	OutputFormatDefault OutputFormat = "default"

	// OutputFormatJSON writes one JSON object per line
	OutputFormatJSON OutputFormat = "json"
)

type formatter interface {
	FormatPlan(r *blackboard.PlanRecord) error
}

// newFormatter returns the formatter for format, or an error for unknown formats.
func newFormatter(format OutputFormat, w io.Writer) (formatter, error) {
	switch format {
	case OutputFormatDefault:
		return &defaultFormatter{writer: w}, nil
	case OutputFormatJSON:
		return &jsonFormatter{encoder: json.NewEncoder(w)}, nil
	default:
		return nil, fmt.Errorf("unknown output format: %s", format)
	}
}

type defaultFormatter struct {
	writer io.Writer
}

func (f *defaultFormatter) FormatPlan(r *blackboard.PlanRecord) error {
	ts := time.UnixMilli(r.CommittedAtMs).Format("15:04:05")
	if r.CommittedAtMs == 0 {
		ts = "--:--:--"
	}

	icon := "📋"
	switch {
	case r.Fallback:
		icon = "⚠️ "
	case r.Result == "unchanged" || r.Result == "not_required":
		icon = "⏸️ "
	}

	actions := "-"
	if len(r.Actions) > 0 {
		parts := make([]string, len(r.Actions))
		for i, a := range r.Actions {
			if i == r.Cursor {
				a = "[" + a + "]"
			}
			parts[i] = a
		}
		actions = strings.Join(parts, " → ")
	}

	suffix := ""
	if r.Fallback {
		suffix = " (fallback)"
	}

	_, err := fmt.Fprintf(f.writer, "[%s] %s Plan committed: agent=%s layer=%d result=%s plan=%s%s\n",
		ts, icon, shortID(r.AgentID), r.Layer, r.Result, actions, suffix)
	return err
}

type jsonFormatter struct {
	encoder *json.Encoder
}

func (f *jsonFormatter) FormatPlan(r *blackboard.PlanRecord) error {
	return f.encoder.Encode(r)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// StreamPlans writes every plan commit published in the client's namespace
// that matches filters, until ctx is cancelled. Undecodable events are
// reported on warn and skipped.
func StreamPlans(ctx context.Context, client *blackboard.Client, format OutputFormat, filters *plans.Criteria, w, warn io.Writer) error {
	f, err := newFormatter(format, w)
	if err != nil {
		return err
	}

	sub, err := client.SubscribePlanEvents(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to plan events: %w", err)
	}
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return nil

		case r, ok := <-sub.Events():
			if !ok {
				return nil
			}
			if !filters.Matches(r) {
				continue
			}
			if err := f.FormatPlan(r); err != nil {
				return fmt.Errorf("failed to write plan event: %w", err)
			}

		case err, ok := <-sub.Errors():
			if ok {
				fmt.Fprintf(warn, "⚠️  %v\n", err)
			}
		}
	}
}

// PollForPlan polls for the stored plan of an agent.
// Returns the plan records or an error if timeout occurs.
// Polls every 200ms for the specified timeout duration.
func PollForPlan(ctx context.Context, client *blackboard.Client, agentID string, timeout time.Duration) ([]blackboard.PlanRecord, error) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	timeoutCh := time.After(timeout)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case <-timeoutCh:
			return nil, fmt.Errorf("timeout waiting for plan after %v", timeout)

		case <-ticker.C:
			records, err := client.GetPlans(ctx, agentID)
			if err != nil {
				if blackboard.IsNotFound(err) {
					continue
				}
				return nil, fmt.Errorf("failed to query for plan: %w", err)
			}

			return records, nil
		}
	}
}
