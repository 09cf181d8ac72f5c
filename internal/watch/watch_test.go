package watch

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/lgoap/internal/plans"
	"github.com/dyluth/lgoap/internal/testutil"
	"github.com/dyluth/lgoap/pkg/blackboard"
)

func setupClient(t *testing.T) *blackboard.Client {
	client, _ := testutil.NewClient(t, "test-ns")
	return client
}

// syncBuffer is a bytes.Buffer safe for the streaming goroutine and the test to share.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestPollForPlan(t *testing.T) {
	client := setupClient(t)
	ctx := context.Background()

	t.Run("returns plan when stored after delay", func(t *testing.T) {
		agentID := uuid.NewString()
		go func() {
			time.Sleep(300 * time.Millisecond)
			records := []blackboard.PlanRecord{{AgentID: agentID, Layer: 0, Result: "new_plan", Actions: []string{"Hunt"}}}
			client.SavePlan(context.Background(), agentID, records)
		}()

		start := time.Now()
		records, err := PollForPlan(ctx, client, agentID, 2*time.Second)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, []string{"Hunt"}, records[0].Actions)
		assert.GreaterOrEqual(t, time.Since(start), 300*time.Millisecond)
	})

	t.Run("times out", func(t *testing.T) {
		_, err := PollForPlan(ctx, client, uuid.NewString(), 300*time.Millisecond)
		assert.ErrorContains(t, err, "timeout waiting for plan")
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := PollForPlan(cctx, client, uuid.NewString(), 2*time.Second)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestFormatters(t *testing.T) {
	record := &blackboard.PlanRecord{
		AgentID:       "abcdef12-0000-4000-8000-000000000001",
		Layer:         1,
		Result:        "new_plan",
		Actions:       []string{"Scout", "Engage"},
		Cursor:        1,
		CommittedAtMs: time.Date(2026, 10, 18, 9, 30, 5, 0, time.Local).UnixMilli(),
	}

	t.Run("default formats plan commits", func(t *testing.T) {
		var buf bytes.Buffer
		f, err := newFormatter(OutputFormatDefault, &buf)
		require.NoError(t, err)
		require.NoError(t, f.FormatPlan(record))

		out := buf.String()
		assert.Contains(t, out, "[09:30:05] 📋 Plan committed")
		assert.Contains(t, out, "agent=abcdef12")
		assert.Contains(t, out, "layer=1")
		assert.Contains(t, out, "plan=Scout → [Engage]")
	})

	t.Run("default marks fallback plans", func(t *testing.T) {
		var buf bytes.Buffer
		f, err := newFormatter(OutputFormatDefault, &buf)
		require.NoError(t, err)
		require.NoError(t, f.FormatPlan(&blackboard.PlanRecord{AgentID: "a", Result: "new_plan", Fallback: true}))

		out := buf.String()
		assert.Contains(t, out, "[--:--:--]")
		assert.Contains(t, out, "plan=- (fallback)")
	})

	t.Run("json writes one object per line", func(t *testing.T) {
		var buf bytes.Buffer
		f, err := newFormatter(OutputFormatJSON, &buf)
		require.NoError(t, err)
		require.NoError(t, f.FormatPlan(record))
		require.NoError(t, f.FormatPlan(record))

		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		require.Len(t, lines, 2)
		var got blackboard.PlanRecord
		require.NoError(t, json.Unmarshal([]byte(lines[0]), &got))
		assert.Equal(t, *record, got)
	})

	t.Run("unknown format", func(t *testing.T) {
		_, err := newFormatter("xml", &bytes.Buffer{})
		assert.ErrorContains(t, err, "unknown output format")
	})
}

func TestStreamPlans(t *testing.T) {
	client := setupClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := &syncBuffer{}
	done := make(chan error, 1)
	go func() {
		done <- StreamPlans(ctx, client, OutputFormatDefault, &plans.Criteria{Layer: 1}, out, out)
	}()

	agentID := uuid.NewString()
	records := []blackboard.PlanRecord{
		{AgentID: agentID, Layer: 0, Result: "new_plan", Actions: []string{"Hunt"}},
		{AgentID: agentID, Layer: 1, Result: "new_plan", Actions: []string{"Scout"}},
	}

	// The subscription may not be confirmed yet, so publish until it is seen
	deadline := time.Now().Add(2 * time.Second)
	for !strings.Contains(out.String(), "plan=[Scout]") {
		require.True(t, time.Now().Before(deadline), "timed out waiting for plan event")
		require.NoError(t, client.SavePlan(context.Background(), agentID, records))
		time.Sleep(50 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("StreamPlans did not stop")
	}

	assert.NotContains(t, out.String(), "Hunt", "layer 0 is filtered out")
}

func TestStreamPlans_UnknownFormat(t *testing.T) {
	client := setupClient(t)
	err := StreamPlans(context.Background(), client, "xml", nil, &bytes.Buffer{}, &bytes.Buffer{})
	assert.ErrorContains(t, err, "unknown output format")
}
