// Package testutil holds helpers shared by tests that need Redis or the
// example project.
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/lgoap/pkg/blackboard"
)

// NewClient starts a miniredis server and returns a blackboard client for
// namespace connected to it. Both are closed when the test ends.
func NewClient(t *testing.T, namespace string) (*blackboard.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	client, err := blackboard.NewClient(&redis.Options{Addr: mr.Addr()}, namespace)
	require.NoError(t, err, "Failed to create blackboard client")
	t.Cleanup(func() { client.Close() })

	return client, mr
}

// SavePlan stores a single-layer new_plan record for agentID.
func SavePlan(t *testing.T, client *blackboard.Client, agentID string, layer int, actions ...string) blackboard.PlanRecord {
	t.Helper()

	r := blackboard.PlanRecord{AgentID: agentID, Layer: layer, Result: "new_plan", Actions: actions}
	require.NoError(t, client.SavePlan(context.Background(), agentID, []blackboard.PlanRecord{r}))
	return r
}

// ProjectRoot returns the directory holding go.mod, walking up from the
// test's working directory.
func ProjectRoot() string {
	root, err := os.Getwd()
	if err != nil {
		return "."
	}

	for {
		if _, err := os.Stat(filepath.Join(root, "go.mod")); err == nil {
			return root
		}
		parent := filepath.Dir(root)
		if parent == root {
			return "."
		}
		root = parent
	}
}

// ExampleConfig returns the path of the bundled example authoring file.
func ExampleConfig() string {
	return filepath.Join(ProjectRoot(), "examples", "hunter", "lgoap.yml")
}
