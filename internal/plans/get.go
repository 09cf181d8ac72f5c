package plans

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/dyluth/lgoap/pkg/blackboard"
)

// GetPlans retrieves the plan records of one agent and writes them as
// pretty-printed JSON to the writer.
func GetPlans(ctx context.Context, client *blackboard.Client, agentID string, w io.Writer) error {
	if _, err := uuid.Parse(agentID); err != nil {
		return fmt.Errorf("invalid agent ID format: must be a valid UUID")
	}

	records, err := client.GetPlans(ctx, agentID)
	if err != nil {
		if blackboard.IsNotFound(err) {
			return &PlanNotFoundError{AgentID: agentID}
		}
		return fmt.Errorf("failed to fetch plans: %w", err)
	}

	if err := FormatSingleJSON(w, records); err != nil {
		return fmt.Errorf("failed to format plans: %w", err)
	}

	return nil
}

// PlanNotFoundError reports an agent without a stored plan.
type PlanNotFoundError struct {
	AgentID string
}

func (e *PlanNotFoundError) Error() string {
	return fmt.Sprintf("no plan stored for agent '%s'", e.AgentID)
}

// IsNotFound returns true if the error is a PlanNotFoundError.
func IsNotFound(err error) bool {
	_, ok := err.(*PlanNotFoundError)
	return ok
}
