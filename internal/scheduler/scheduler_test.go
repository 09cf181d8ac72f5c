package scheduler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/dyluth/lgoap/internal/agent"
	"github.com/dyluth/lgoap/internal/config"
	"github.com/dyluth/lgoap/internal/executor"
	"github.com/dyluth/lgoap/pkg/blackboard"
	"github.com/dyluth/lgoap/pkg/planner"
)

const frame = 16 * time.Millisecond

const squadConfig = `version: "1.0"
schemas:
  - name: squad
    backends: [interpreter, redis_sync]
    keys:
      - name: alarm
        type: bool
        synced: true
      - name: hasTarget
        type: bool
domain:
  name: acquire
  schema: squad
  goals:
    - name: Hunt
      insistence:
        - weight: 1
      target: hasTarget
  layers:
    - max_plan_length: 2
      fallback: [Wait]
      actions:
        - name: Acquire
          cost:
            - weight: 1
          effect: ["hasTarget = true"]
          task: wait(1h)
        - name: Wait
          task: wait(1h)
`

func bundle(t *testing.T) *config.Bundle {
	t.Helper()
	f, err := config.Parse([]byte(squadConfig))
	require.NoError(t, err)
	b, err := f.Build()
	require.NoError(t, err)
	return b
}

func agents(t *testing.T, b *config.Bundle, tasks *executor.Registry, n int) []*agent.Agent {
	t.Helper()
	if tasks == nil {
		tasks = b.Tasks
	}
	out := make([]*agent.Agent, n)
	for i := range out {
		a, err := agent.New("squad-"+string(rune('a'+i)), b.Domain, tasks, planner.Settings{Synchronous: true}, zaptest.NewLogger(t))
		require.NoError(t, err)
		t.Cleanup(a.Close)
		out[i] = a
	}
	return out
}

func redisClient(t *testing.T) (*blackboard.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := blackboard.NewClient(&redis.Options{Addr: mr.Addr()}, "test")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func TestNew_Errors(t *testing.T) {
	as := agents(t, bundle(t), nil, 1)

	_, err := New(nil, Options{TickRate: frame})
	assert.ErrorContains(t, err, "at least one agent")

	_, err = New(as, Options{})
	assert.ErrorContains(t, err, "tick rate must be positive")

	_, err = New(as, Options{TickRate: frame, SavePlans: true})
	assert.ErrorContains(t, err, "requires a blackboard client")
}

func TestFrame_TicksEveryAgent(t *testing.T) {
	as := agents(t, bundle(t), nil, 3)
	s, err := New(as, Options{TickRate: frame, Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)

	s.Frame(context.Background(), frame)

	assert.Equal(t, uint64(1), s.Frames())
	for _, a := range as {
		assert.Equal(t, uint64(1), a.Ticks())
		name, running := a.Driver().Running()
		assert.True(t, running)
		assert.Equal(t, "Acquire", name)
	}
}

func TestFrame_SavesChangedPlans(t *testing.T) {
	client, _ := redisClient(t)
	as := agents(t, bundle(t), nil, 2)

	s, err := New(as, Options{TickRate: frame, Client: client, SavePlans: true, Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)

	ctx := context.Background()
	s.Frame(ctx, frame)

	for _, a := range as {
		records, err := client.GetPlans(ctx, a.ID().String())
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, []string{"Hunt"}, records[0].Actions)
		assert.Equal(t, []string{"Acquire"}, records[1].Actions)
		assert.Equal(t, "new_plan", records[1].Result)
	}

	// Nothing changed: the stored records are left alone
	sub, err := client.SubscribePlanEvents(ctx)
	require.NoError(t, err)
	defer sub.Close()

	s.Frame(ctx, frame)
	select {
	case ev := <-sub.Events():
		t.Fatalf("unexpected plan event for agent %s", ev.AgentID)
	case <-time.After(100 * time.Millisecond):
	}
}

type panicTask struct{}

func (panicTask) Begin(*executor.Handle)  {}
func (panicTask) Tick(time.Duration) bool { panic("boom") }
func (panicTask) Abort()                  {}

func TestFrame_RecoversAgentPanic(t *testing.T) {
	b := bundle(t)

	tasks := executor.NewRegistry()
	require.NoError(t, tasks.Register("Acquire", func() executor.Task { return panicTask{} }))
	require.NoError(t, tasks.Bind("Wait", "wait(1h)"))

	as := append(agents(t, b, tasks, 1), agents(t, b, nil, 1)...)
	s, err := New(as, Options{TickRate: frame, Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)

	s.Frame(context.Background(), frame)

	assert.Equal(t, uint64(1), s.Errors())
	assert.Equal(t, uint64(1), s.Frames())
	assert.Equal(t, uint64(1), as[1].Ticks(), "the other agent still ran")
}

func TestFrame_DrainsRemoteSyncedWrites(t *testing.T) {
	client, mr := redisClient(t)
	peer, err := blackboard.NewClient(&redis.Options{Addr: mr.Addr()}, "test")
	require.NoError(t, err)
	defer peer.Close()

	ctx := context.Background()

	// This process
	local := bundle(t)
	bridge := blackboard.NewSyncBridge(client, local.Schema, zaptest.NewLogger(t))
	require.NoError(t, bridge.Start(ctx))
	defer bridge.Close()

	as := agents(t, local, nil, 2)
	s, err := New(as, Options{TickRate: frame, Bridge: bridge, Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)

	// Another process raises the alarm
	remote := bundle(t)
	remoteBridge := blackboard.NewSyncBridge(peer, remote.Schema, zaptest.NewLogger(t))
	require.NoError(t, remoteBridge.Start(ctx))
	defer remoteBridge.Close()

	sentry := remote.Schema.NewInstance()
	defer sentry.Dispose()
	require.NoError(t, sentry.SetBool("alarm", true, true))

	require.Eventually(t, func() bool { return bridge.Pending() > 0 }, 2*time.Second, 10*time.Millisecond)

	s.Frame(ctx, frame)

	for _, a := range as {
		alarm, err := a.Blackboard().GetBool("alarm")
		require.NoError(t, err)
		assert.True(t, alarm, a.Name())
	}
}

func TestRun_ServesHealthAndStops(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	as := agents(t, bundle(t), nil, 1)
	s, err := New(as, Options{TickRate: time.Millisecond, Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)
	h := NewHealthServer("127.0.0.1:0", nil, s, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, s, h) }()

	require.Eventually(t, func() bool { return s.Frames() > 2 }, 2*time.Second, time.Millisecond)

	httpClient := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}

	resp, err := httpClient.Get("http://" + h.Addr() + "/healthz")
	require.NoError(t, err)
	var health HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "disabled", health.Redis)
	assert.Equal(t, 1, health.Agents)
	assert.Positive(t, health.Frames)

	resp, err = httpClient.Get("http://" + h.Addr() + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), "lgoap_scheduler_frame_duration_seconds")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRun_ListenFailure(t *testing.T) {
	as := agents(t, bundle(t), nil, 1)
	s, err := New(as, Options{TickRate: frame})
	require.NoError(t, err)

	err = Run(context.Background(), s, NewHealthServer("256.0.0.1:0", nil, s, nil))
	assert.ErrorContains(t, err, "failed to listen")
}

func TestHealthCheckEndpoint(t *testing.T) {
	t.Run("method not allowed", func(t *testing.T) {
		h := NewHealthServer(":0", nil, nil, nil)
		w := httptest.NewRecorder()
		h.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/healthz", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	})

	t.Run("healthy with Redis", func(t *testing.T) {
		client, _ := redisClient(t)
		h := NewHealthServer(":0", client, nil, nil)

		w := httptest.NewRecorder()
		h.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

		var response HealthResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "connected", response.Redis)
	})

	t.Run("unhealthy when Redis unavailable", func(t *testing.T) {
		client, mr := redisClient(t)
		mr.Close()
		h := NewHealthServer(":0", client, nil, nil)

		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		w := httptest.NewRecorder()
		h.Handler().ServeHTTP(w, req.WithContext(ctx))

		var response HealthResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, "unhealthy", response.Status)
		assert.Equal(t, "disconnected", response.Redis)
		assert.NotEmpty(t, response.Error)
	})
}
