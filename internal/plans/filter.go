package plans

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/dyluth/lgoap/pkg/blackboard"
)

// Criteria defines filtering criteria for plan records.
// All filters are ANDed together.
type Criteria struct {
	SinceTimestampMs int64  // Unix timestamp in milliseconds, 0 = no filter
	UntilTimestampMs int64  // Unix timestamp in milliseconds, 0 = no filter
	Layer            int    // Exact layer, negative = no filter
	Result           string // Exact plan result, empty = no filter
	ActionGlob       string // Glob matched against every action name, empty = no filter
}

// AllPlans matches every record.
func AllPlans() *Criteria {
	return &Criteria{Layer: -1}
}

// Matches returns true if the record matches all filter criteria.
// A nil Criteria matches everything.
func (c *Criteria) Matches(r *blackboard.PlanRecord) bool {
	if c == nil {
		return true
	}

	if c.SinceTimestampMs > 0 && r.CommittedAtMs < c.SinceTimestampMs {
		return false
	}
	if c.UntilTimestampMs > 0 && r.CommittedAtMs > c.UntilTimestampMs {
		return false
	}

	if c.Layer >= 0 && r.Layer != c.Layer {
		return false
	}

	if c.Result != "" && r.Result != c.Result {
		return false
	}

	if c.ActionGlob != "" {
		for _, a := range r.Actions {
			if matched, err := filepath.Match(c.ActionGlob, a); err == nil && matched {
				return true
			}
		}
		return false
	}

	return true
}

// HasFilters returns true if any filters are active.
func (c *Criteria) HasFilters() bool {
	return c != nil && (c.SinceTimestampMs > 0 ||
		c.UntilTimestampMs > 0 ||
		c.Layer >= 0 ||
		c.Result != "" ||
		c.ActionGlob != "")
}

// ParseTime parses a time specification into a Unix timestamp (milliseconds).
// Supports Go durations ("1h30m", relative to now, in the past) and RFC3339
// timestamps ("2026-10-18T13:00:00Z").
func ParseTime(spec string, now time.Time) (int64, error) {
	if spec == "" {
		return 0, fmt.Errorf("empty time specification")
	}

	if t, err := time.Parse(time.RFC3339, spec); err == nil {
		return t.UnixMilli(), nil
	}

	if d, err := time.ParseDuration(spec); err == nil {
		return now.Add(-d).UnixMilli(), nil
	}

	return 0, fmt.Errorf("invalid time specification: %s (use duration like '1h30m' or RFC3339 like '2026-10-18T13:00:00Z')", spec)
}

// ParseRange parses the --since and --until flags into c.
// Validates that since < until if both are specified.
func (c *Criteria) ParseRange(since, until string, now time.Time) error {
	var err error

	if since != "" {
		if c.SinceTimestampMs, err = ParseTime(since, now); err != nil {
			return fmt.Errorf("invalid --since: %w", err)
		}
	}

	if until != "" {
		if c.UntilTimestampMs, err = ParseTime(until, now); err != nil {
			return fmt.Errorf("invalid --until: %w", err)
		}
	}

	if c.SinceTimestampMs > 0 && c.UntilTimestampMs > 0 && c.SinceTimestampMs >= c.UntilTimestampMs {
		return fmt.Errorf("--since must be before --until")
	}

	return nil
}
