package planner

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/dyluth/lgoap/pkg/blackboard"
	"github.com/dyluth/lgoap/pkg/domain"
	"github.com/dyluth/lgoap/pkg/function"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func hunterSchema(t *testing.T) *blackboard.Schema {
	t.Helper()
	s, err := blackboard.NewCompiler().Compile(&blackboard.SchemaDeclaration{
		Name: "hunter",
		Keys: []blackboard.KeyDeclaration{
			{Name: "hasTarget", Type: blackboard.KeyTypeBool},
			{Name: "inRange", Type: blackboard.KeyTypeBool},
			{Name: "hungry", Type: blackboard.KeyTypeBool},
			{Name: "ammo", Type: blackboard.KeyTypeInt, Default: int32(3)},
		},
	})
	require.NoError(t, err)
	return s
}

func is(key string) []function.Decorator {
	return []function.Decorator{{Condition: function.BoolEquals{Key: key, Value: true}}}
}

func becomes(key string) []function.Effector {
	return []function.Effector{function.SetBool{Key: key, Value: true}}
}

func costs(w float32) []function.ScoreCalculator {
	return []function.ScoreCalculator{function.Weighted(w)}
}

var hasAmmo = function.Decorator{Condition: function.IntCompare{Key: "ammo", Cmp: function.Greater, Value: 0}}

func compile(t *testing.T, decl *domain.Declaration) *domain.Domain {
	t.Helper()
	d, err := domain.NewCompiler().Compile(decl)
	require.NoError(t, err)
	return d
}

// acquireDomain: goal Hunt wants hasTarget; Acquire achieves it at cost 1.
func acquireDomain(t *testing.T, s *blackboard.Schema) *domain.Domain {
	return compile(t, &domain.Declaration{
		Name:   "acquire",
		Schema: s,
		Goals:  []domain.Goal{{Name: "Hunt", Insistence: costs(1), Target: is("hasTarget")}},
		Layers: []domain.Layer{{
			MaxPlanLength: 3,
			Fallback:      []string{"Wait"},
			Actions: []domain.Action{
				{Name: "Acquire", Precondition: []function.Decorator{hasAmmo}, Cost: costs(1), Effect: becomes("hasTarget")},
				{Name: "Wait"},
			},
		}},
	})
}

// chaseDomain needs two steps; Teleport does both at once but costs more.
func chaseDomain(t *testing.T, s *blackboard.Schema) *domain.Domain {
	return compile(t, &domain.Declaration{
		Name:   "chase",
		Schema: s,
		Goals: []domain.Goal{{
			Name:       "Hunt",
			Insistence: []function.ScoreCalculator{{Condition: function.BoolEquals{Key: "hungry", Value: true}, Weight: 5}},
			Target:     append(is("hasTarget"), is("inRange")...),
		}},
		Layers: []domain.Layer{{
			MaxPlanLength: 3,
			Fallback:      []string{"Wait"},
			Actions: []domain.Action{
				{Name: "Wait", Cost: costs(1)},
				{Name: "Teleport", Cost: costs(5), Effect: append(becomes("hasTarget"), becomes("inRange")...)},
				{Name: "Acquire", Cost: costs(1), Effect: becomes("hasTarget")},
				{Name: "Approach", Precondition: append(is("hasTarget"), hasAmmo), Cost: costs(1), Effect: becomes("inRange")},
			},
		}},
	})
}

// layeredDomain refines the abstract Engage through a second layer.
func layeredDomain(t *testing.T, s *blackboard.Schema) *domain.Domain {
	return compile(t, &domain.Declaration{
		Name:   "layered",
		Schema: s,
		Goals:  []domain.Goal{{Name: "Hunt", Insistence: costs(1), Target: is("hasTarget")}},
		Layers: []domain.Layer{
			{
				MaxPlanLength: 2,
				Fallback:      []string{"Rest"},
				Actions: []domain.Action{
					{Name: "Engage", Abstract: true, Cost: costs(1), Effect: becomes("hasTarget"), Target: is("inRange")},
					{Name: "Rest"},
				},
			},
			{
				MaxPlanLength: 2,
				Actions: []domain.Action{
					{Name: "Approach", Cost: costs(1), Effect: becomes("inRange")},
				},
			},
		},
	})
}

// standbyDomain falls back to the concrete Rest on the abstract layer; the
// refinement layer has a fallback of its own.
func standbyDomain(t *testing.T, s *blackboard.Schema) *domain.Domain {
	return compile(t, &domain.Declaration{
		Name:   "standby",
		Schema: s,
		Goals: []domain.Goal{{
			Name:       "Hunt",
			Insistence: []function.ScoreCalculator{{Condition: function.BoolEquals{Key: "hungry", Value: true}, Weight: 5}},
			Target:     is("hasTarget"),
		}},
		Layers: []domain.Layer{
			{
				MaxPlanLength: 2,
				Fallback:      []string{"Rest"},
				Actions: []domain.Action{
					{Name: "Engage", Abstract: true, Precondition: []function.Decorator{hasAmmo}, Cost: costs(1), Effect: becomes("hasTarget"), Target: is("inRange")},
					{Name: "Rest"},
				},
			},
			{
				MaxPlanLength: 2,
				Fallback:      []string{"Hold"},
				Actions: []domain.Action{
					{Name: "Approach", Cost: costs(1), Effect: becomes("inRange")},
					{Name: "Hold"},
				},
			},
		},
	})
}

func newPlanner(t *testing.T, d *domain.Domain, settings Settings) (*Planner, *blackboard.Instance) {
	t.Helper()
	bb := d.Schema().NewInstance()
	t.Cleanup(bb.Dispose)

	p, err := New(d, bb, settings, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(p.Dispose)
	return p, bb
}

func syncSettings() Settings { return Settings{Synchronous: true} }

func planNow(t *testing.T, p *Planner, layer int) {
	t.Helper()
	p.StartPlanning(layer, false)
	require.True(t, p.Update(context.Background()))
	require.Equal(t, StateNormal, p.State())
}

// waitCommit polls Update until a pass is committed.
func waitCommit(t *testing.T, p *Planner) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !p.Update(context.Background()) {
		require.True(t, time.Now().Before(deadline), "timed out waiting for a commit")
		time.Sleep(time.Millisecond)
	}
}

func TestPlanner_AcquireExample(t *testing.T) {
	p, _ := newPlanner(t, acquireDomain(t, hunterSchema(t)), syncSettings())

	planNow(t, p, 0)

	plans := p.Plans()
	require.Len(t, plans, 2)
	assert.Equal(t, Plan{Result: ResultNewPlan, Actions: []int{1}}, plans[0], "goal Hunt selected")
	assert.Equal(t, Plan{Result: ResultNewPlan, Actions: []int{0}}, plans[1])

	layer, action, ok := p.CurrentTask()
	require.True(t, ok)
	assert.Equal(t, 1, layer)
	assert.Equal(t, "Acquire", p.Domain().ElementName(layer, action))
}

func TestPlanner_TargetAlreadySatisfied(t *testing.T) {
	p, bb := newPlanner(t, acquireDomain(t, hunterSchema(t)), syncSettings())
	require.NoError(t, bb.SetBool("hasTarget", true, true))

	planNow(t, p, 0)

	plans := p.Plans()
	assert.Equal(t, ResultNewPlan, plans[0].Result)
	assert.Equal(t, ResultNotRequired, plans[1].Result)
	assert.Empty(t, plans[1].Actions)

	_, _, ok := p.CurrentTask()
	assert.False(t, ok)
}

func TestPlanner_SearchFindsCheapestChain(t *testing.T) {
	p, bb := newPlanner(t, chaseDomain(t, hunterSchema(t)), syncSettings())
	require.NoError(t, bb.SetBool("hungry", true, true))

	planNow(t, p, 0)

	plans := p.Plans()
	d := p.Domain()
	names := make([]string, 0, len(plans[1].Actions))
	for _, a := range plans[1].Actions {
		names = append(names, d.ElementName(1, a))
	}
	assert.Equal(t, []string{"Acquire", "Approach"}, names)
	assert.False(t, plans[1].Fallback)
	assert.Positive(t, p.Stats().Nodes)
	assert.Equal(t, 1, p.Stats().Searches)
}

func TestPlanner_FallbackGoal(t *testing.T) {
	p, _ := newPlanner(t, chaseDomain(t, hunterSchema(t)), syncSettings())

	// Nothing is hungry, so no goal scores above the sentinel
	planNow(t, p, 0)

	plans := p.Plans()
	assert.Equal(t, Plan{Result: ResultNewPlan, Actions: []int{0}, Fallback: true}, plans[0])
	assert.Equal(t, Plan{Result: ResultNewPlan, Actions: []int{0}, Fallback: true}, plans[1])
	assert.Equal(t, 0, p.Stats().Searches)

	// Re-validation keeps the fallback plan and its cursor
	version := p.Version()
	planNow(t, p, 0)
	assert.Equal(t, version, p.Version())
	assert.Equal(t, ResultNewPlan, p.Plans()[1].Result, "the live plan is left untouched")
}

func TestPlanner_SearchFailureUsesFallback(t *testing.T) {
	s := hunterSchema(t)

	t.Run("no action reaches the target", func(t *testing.T) {
		p, bb := newPlanner(t, acquireDomain(t, s), syncSettings())
		require.NoError(t, bb.SetInt("ammo", 0, true))

		planNow(t, p, 0)
		assert.Equal(t, Plan{Result: ResultNewPlan, Actions: []int{1}, Fallback: true}, p.Plans()[1])
	})

	t.Run("threshold above max f-score", func(t *testing.T) {
		p, _ := newPlanner(t, acquireDomain(t, s), Settings{Synchronous: true, MaxFScore: 0.5})

		planNow(t, p, 0)
		assert.True(t, p.Plans()[1].Fallback)
	})
}

func TestPlanner_TaskCompletion(t *testing.T) {
	p, bb := newPlanner(t, chaseDomain(t, hunterSchema(t)), syncSettings())
	require.NoError(t, bb.SetBool("hungry", true, true))
	planNow(t, p, 0)

	version := p.Version()
	p.OnTaskExecutionComplete(true)

	got, err := bb.GetBool("hasTarget")
	require.NoError(t, err)
	assert.True(t, got, "effect applied to the live blackboard")
	assert.Equal(t, 1, p.Plans()[1].Cursor)
	assert.Greater(t, p.Version(), version)
	assert.Equal(t, StateNormal, p.State(), "next precondition holds, nothing to replan")

	_, action, ok := p.CurrentTask()
	require.True(t, ok)
	assert.Equal(t, "Approach", p.Domain().ElementName(1, action))

	// Finishing the plan satisfies the goal and restarts goal selection
	p.OnTaskExecutionComplete(true)
	assert.Equal(t, StatePlanning, p.State())
	require.True(t, p.Update(context.Background()))
	assert.Equal(t, 0, p.Stats().LastStart)
	assert.Equal(t, ResultNotRequired, p.Plans()[1].Result)
}

func TestPlanner_TaskFailureReplansLayer(t *testing.T) {
	p, bb := newPlanner(t, chaseDomain(t, hunterSchema(t)), syncSettings())
	require.NoError(t, bb.SetBool("hungry", true, true))
	planNow(t, p, 0)

	p.OnTaskExecutionComplete(false)
	assert.Equal(t, StatePlanning, p.State())

	require.True(t, p.Update(context.Background()))
	assert.Equal(t, 1, p.Stats().LastStart)
	assert.Equal(t, 2, p.Stats().Passes)
}

func TestPlanner_BrokenPreconditionReplans(t *testing.T) {
	p, bb := newPlanner(t, chaseDomain(t, hunterSchema(t)), syncSettings())
	require.NoError(t, bb.SetBool("hungry", true, true))
	planNow(t, p, 0)

	// Approach needs ammo; it runs out while Acquire executes
	require.NoError(t, bb.SetInt("ammo", 0, false))
	p.OnTaskExecutionComplete(true)

	assert.Equal(t, StatePlanning, p.State())
	require.True(t, p.Update(context.Background()))
	assert.Equal(t, 1, p.Stats().LastStart)
}

func TestPlanner_ReplayAvoidsSearch(t *testing.T) {
	p, _ := newPlanner(t, layeredDomain(t, hunterSchema(t)), syncSettings())
	planNow(t, p, 0)

	plans := p.Plans()
	require.Len(t, plans, 3)
	assert.Equal(t, []int{0}, plans[1].Actions, "Engage")
	assert.Equal(t, []int{0}, plans[2].Actions, "Approach")
	assert.Equal(t, 2, p.Stats().Searches)

	version := p.Version()
	planNow(t, p, 0)

	stats := p.Stats()
	assert.Equal(t, 2, stats.Searches, "no new search")
	assert.Equal(t, 2, stats.Replays)
	assert.Equal(t, version, p.Version())
}

func TestPlanner_RefinementCompletesParent(t *testing.T) {
	p, bb := newPlanner(t, layeredDomain(t, hunterSchema(t)), syncSettings())
	planNow(t, p, 0)

	layer, action, ok := p.CurrentTask()
	require.True(t, ok)
	assert.Equal(t, 2, layer)
	assert.Equal(t, "Approach", p.Domain().ElementName(layer, action))

	p.OnTaskExecutionComplete(true)

	inRange, err := bb.GetBool("inRange")
	require.NoError(t, err)
	assert.True(t, inRange)
	hasTarget, err := bb.GetBool("hasTarget")
	require.NoError(t, err)
	assert.True(t, hasTarget, "the completed abstract action's effect is applied")

	// The goal is done: its cursor moved past the end and the layers below were cleared
	plans := p.Plans()
	assert.Equal(t, 1, plans[0].Cursor)
	assert.Equal(t, ResultInvalid, plans[1].Result)
	assert.Equal(t, ResultInvalid, plans[2].Result)
	assert.Equal(t, StatePlanning, p.State())
	assert.Equal(t, 0, p.pending)
}

func TestPlanner_AbstractActionIsNeverCurrent(t *testing.T) {
	p, bb := newPlanner(t, layeredDomain(t, hunterSchema(t)), syncSettings())
	planNow(t, p, 0)

	// The refinement has not been planned yet
	p.execution[2].reset(ResultInvalid)

	_, _, ok := p.CurrentTask()
	assert.False(t, ok, "Engage only completes through its refinement")

	hasTarget, err := bb.GetBool("hasTarget")
	require.NoError(t, err)
	assert.False(t, hasTarget)
}

func TestPlanner_UnsatisfiedRefinementKeepsParentPending(t *testing.T) {
	s := hunterSchema(t)
	d := compile(t, &domain.Declaration{
		Name:   "layered",
		Schema: s,
		Goals:  []domain.Goal{{Name: "Hunt", Insistence: costs(1), Target: is("hasTarget")}},
		Layers: []domain.Layer{
			{
				MaxPlanLength: 1,
				Actions: []domain.Action{
					{Name: "Engage", Abstract: true, Cost: costs(1), Effect: becomes("hasTarget"),
						Target: append(is("inRange"), hasAmmo)},
				},
			},
			{
				MaxPlanLength: 1,
				Actions: []domain.Action{
					{Name: "Approach", Cost: costs(1), Effect: becomes("inRange")},
				},
			},
		},
	})
	p, bb := newPlanner(t, d, syncSettings())
	planNow(t, p, 0)

	// The magazine empties while Approach runs
	require.NoError(t, bb.SetInt("ammo", 0, true))
	p.OnTaskExecutionComplete(true)

	assert.Equal(t, StatePlanning, p.State())
	assert.Equal(t, 1, p.pending, "Engage's layer is replanned")

	_, _, ok := p.CurrentTask()
	assert.False(t, ok, "Engage is not exposed as a task")

	hasTarget, err := bb.GetBool("hasTarget")
	require.NoError(t, err)
	assert.False(t, hasTarget, "Engage's effect is not applied")
}

func TestPlanner_AbstractTargetAlreadyHolds(t *testing.T) {
	p, bb := newPlanner(t, layeredDomain(t, hunterSchema(t)), syncSettings())
	require.NoError(t, bb.SetBool("inRange", true, true))

	p.StartPlanning(0, false)
	require.True(t, p.Update(context.Background()))

	hasTarget, err := bb.GetBool("hasTarget")
	require.NoError(t, err)
	assert.True(t, hasTarget, "Engage completes at commit: its refinement has nothing to do")

	plans := p.Plans()
	assert.Equal(t, 1, plans[0].Cursor, "the goal is done")
	assert.Equal(t, StatePlanning, p.State())
	assert.Equal(t, 0, p.pending)
}

func TestPlanner_ConcreteFallbackRuns(t *testing.T) {
	s := hunterSchema(t)

	t.Run("sentinel goal", func(t *testing.T) {
		p, _ := newPlanner(t, standbyDomain(t, s), syncSettings())

		// Nothing is hungry, so the sentinel wins
		planNow(t, p, 0)

		plans := p.Plans()
		assert.Equal(t, Plan{Result: ResultNewPlan, Actions: []int{1}, Fallback: true}, plans[1])
		assert.Equal(t, ResultNotRequired, plans[2].Result, "Rest is concrete, nothing refines it")

		layer, action, ok := p.CurrentTask()
		require.True(t, ok)
		assert.Equal(t, 1, layer)
		assert.Equal(t, "Rest", p.Domain().ElementName(layer, action))
	})

	t.Run("commit falls back", func(t *testing.T) {
		p, bb := newPlanner(t, standbyDomain(t, s), Settings{})
		require.NoError(t, bb.SetBool("hungry", true, true))

		release := make(chan struct{})
		p.runPass = func(ctx context.Context, ps *pass) {
			<-release
			ps.run(ctx)
		}

		p.StartPlanning(0, false)
		p.Update(context.Background())

		// Engage was planned against a snapshot that still had ammo
		require.NoError(t, bb.SetInt("ammo", 0, false))
		close(release)
		waitCommit(t, p)

		plans := p.Plans()
		assert.Equal(t, Plan{Result: ResultNewPlan, Actions: []int{1}, Fallback: true}, plans[1])
		assert.Equal(t, ResultNotRequired, plans[2].Result)

		layer, action, ok := p.CurrentTask()
		require.True(t, ok)
		assert.Equal(t, "Rest", p.Domain().ElementName(layer, action))
	})
}

func TestPlanner_CoalescesPendingRequests(t *testing.T) {
	p, _ := newPlanner(t, layeredDomain(t, hunterSchema(t)), syncSettings())
	planNow(t, p, 0)
	require.Equal(t, 1, p.Stats().Passes)

	p.StartPlanning(0, false)
	p.StartPlanning(1, false)
	require.True(t, p.Update(context.Background()))

	stats := p.Stats()
	assert.Equal(t, 2, stats.Passes, "two requests, one pass")
	assert.Equal(t, 1, stats.LastStart, "the later request wins")
}

func TestPlanner_CoalescesBehindRunningPass(t *testing.T) {
	p, _ := newPlanner(t, layeredDomain(t, hunterSchema(t)), Settings{})

	release := make(chan struct{})
	p.runPass = func(ctx context.Context, ps *pass) {
		<-release
		ps.run(ctx)
	}

	p.StartPlanning(0, false)
	assert.False(t, p.Update(context.Background()), "dispatched, not finished")
	assert.Equal(t, StatePlanning, p.State())

	p.StartPlanning(2, false) // dropped
	p.StartPlanning(2, true)
	p.StartPlanning(1, true) // latest wins
	close(release)

	waitCommit(t, p)
	assert.Equal(t, 2, p.Stats().Passes, "the queued request started right after the commit")
	assert.Equal(t, 1, p.Stats().LastStart)

	waitCommit(t, p)
	assert.Equal(t, StateNormal, p.State())
	assert.Equal(t, 2, p.Stats().Commits)
}

func TestPlanner_CommitFallsBackWhenStateMoved(t *testing.T) {
	p, bb := newPlanner(t, acquireDomain(t, hunterSchema(t)), Settings{})

	release := make(chan struct{})
	p.runPass = func(ctx context.Context, ps *pass) {
		<-release
		ps.run(ctx)
	}

	p.StartPlanning(0, false)
	p.Update(context.Background())

	// The pass planned Acquire against a snapshot that still had ammo
	require.NoError(t, bb.SetInt("ammo", 0, false))
	close(release)
	waitCommit(t, p)

	assert.Equal(t, Plan{Result: ResultNewPlan, Actions: []int{1}, Fallback: true}, p.Plans()[1])
}

func TestPlanner_DisposeJoinsRunningPass(t *testing.T) {
	d := acquireDomain(t, hunterSchema(t))
	bb := d.Schema().NewInstance()
	defer bb.Dispose()

	p, err := New(d, bb, Settings{}, nil)
	require.NoError(t, err)

	started := make(chan struct{})
	p.runPass = func(ctx context.Context, ps *pass) {
		close(started)
		<-ctx.Done()
	}

	p.StartPlanning(0, false)
	p.Update(context.Background())
	<-started

	p.Dispose()
	assert.False(t, p.Update(context.Background()))
	p.StartPlanning(0, true)
	assert.Equal(t, StateNormal, p.State())
}

func TestPlanner_PlanRecords(t *testing.T) {
	p, _ := newPlanner(t, acquireDomain(t, hunterSchema(t)), syncSettings())
	planNow(t, p, 0)

	agent := uuid.New().String()
	now := time.UnixMilli(1700000000000)
	records := p.PlanRecords(agent, now)
	require.Len(t, records, 2)

	assert.Equal(t, blackboard.PlanRecord{
		AgentID: agent, Layer: 0, Result: "new_plan", Actions: []string{"Hunt"}, CommittedAtMs: 1700000000000,
	}, records[0])
	assert.Equal(t, []string{"Acquire"}, records[1].Actions)
	for i := range records {
		assert.NoError(t, records[i].Validate())
	}
}

func TestNew_Errors(t *testing.T) {
	d := acquireDomain(t, hunterSchema(t))

	other, err := blackboard.NewCompiler().Compile(&blackboard.SchemaDeclaration{
		Name: "other",
		Keys: []blackboard.KeyDeclaration{{Name: "x", Type: blackboard.KeyTypeBool}},
	})
	require.NoError(t, err)
	bb := other.NewInstance()
	defer bb.Dispose()

	_, err = New(d, bb, Settings{}, nil)
	assert.Error(t, err)
	_, err = New(nil, bb, Settings{}, nil)
	assert.Error(t, err)
	_, err = New(d, nil, Settings{}, nil)
	assert.Error(t, err)
}

func TestResult_String(t *testing.T) {
	assert.Equal(t, "invalid", ResultInvalid.String())
	assert.Equal(t, "not_required", ResultNotRequired.String())
	assert.Equal(t, "unchanged", ResultUnchanged.String())
	assert.Equal(t, "new_plan", ResultNewPlan.String())
	assert.Equal(t, "planning", StatePlanning.String())
}
