// Package planner maintains one plan per layer of a compiled domain for a
// single agent.
//
// A Planner is driven from its agent's goroutine: StartPlanning requests a
// pass from a layer downwards, Update dispatches and polls it once per tick,
// and the commit step (UsePlannerResults) installs the results into the
// execution plans. The execution driver reports task outcomes through
// OnTaskExecutionComplete, which advances cursors and requests replanning.
//
// Passes run on a background goroutine against a snapshot of the blackboard,
// so the live blackboard may move on while a pass is in flight; the commit
// step re-checks the first action of every new plan against the live state.
// Settings.Synchronous runs passes inline inside Update for deterministic
// tests and tools.
package planner

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dyluth/lgoap/pkg/blackboard"
	"github.com/dyluth/lgoap/pkg/domain"
	"github.com/dyluth/lgoap/pkg/function"
)

// DefaultMaxFScore bounds the search threshold when Settings leave it unset.
const DefaultMaxFScore = 1000

// Settings tune a Planner.
type Settings struct {
	// MaxFScore stops the search once the IDA* threshold would exceed it.
	// Zero selects DefaultMaxFScore; a negative value removes the bound.
	MaxFScore float32

	// Synchronous runs passes inline inside Update instead of on a goroutine
	Synchronous bool
}

// Stats are counters for inspection and tests.
type Stats struct {
	Passes    int // passes dispatched
	Commits   int // passes committed
	Searches  int // layers that ran IDA*
	Replays   int // layers kept by replaying the live plan
	Nodes     int // search nodes expanded
	LastStart int // start layer of the most recent pass
}

type job struct {
	cancel  context.CancelFunc
	done    chan struct{}
	started time.Time
}

// Planner is the per-agent planning state machine. It is not safe for
// concurrent use: every method must be called from the owning agent's goroutine.
type Planner struct {
	domain   *domain.Domain
	bb       blackboard.Memory
	settings Settings
	logger   *zap.Logger

	state   State
	pending int // start layer of the next pass while Planning and not dispatched
	rerun   int // start layer requested while a pass was running, or -1
	job     *job
	ready   bool // a finished pass awaits commit

	pass      *pass
	runPass   func(context.Context, *pass)
	execution []Plan
	version   uint64
	stats     Stats
	disposed  bool
}

// New creates a planner for one agent. bb is the agent's live blackboard and
// must be laid out by the domain's schema.
func New(d *domain.Domain, bb blackboard.Memory, settings Settings, logger *zap.Logger) (*Planner, error) {
	if d == nil {
		return nil, fmt.Errorf("domain cannot be nil")
	}
	if bb == nil {
		return nil, fmt.Errorf("blackboard cannot be nil")
	}
	if bb.Schema() != d.Schema() {
		return nil, fmt.Errorf("blackboard schema %q does not match domain %q schema %q",
			bb.Schema().Name(), d.Name(), d.Schema().Name())
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	maxF := settings.MaxFScore
	switch {
	case maxF == 0:
		maxF = DefaultMaxFScore
	case maxF < 0:
		maxF = 0
	}

	p := &Planner{
		domain:    d,
		bb:        bb,
		settings:  settings,
		logger:    logger.With(zap.String("domain", d.Name())),
		rerun:     -1,
		pass:      newPass(d, maxF),
		runPass:   func(ctx context.Context, ps *pass) { ps.run(ctx) },
		execution: make([]Plan, d.LayerCount()),
	}
	return p, nil
}

// Domain returns the compiled domain being planned.
func (p *Planner) Domain() *domain.Domain { return p.domain }

// State returns Normal or Planning.
func (p *Planner) State() State { return p.state }

// Stats returns the planner's counters.
func (p *Planner) Stats() Stats { return p.stats }

// Version changes whenever the current task may have changed: on every commit
// that alters a plan and on every cursor advance.
func (p *Planner) Version() uint64 { return p.version }

// Plans returns copies of the execution plans, indexed by layer.
func (p *Planner) Plans() []Plan {
	out := make([]Plan, len(p.execution))
	for i := range p.execution {
		out[i] = p.execution[i].Clone()
	}
	return out
}

// StartPlanning requests a pass from layer downwards.
//
// In Normal state a pass becomes pending and is dispatched by the next Update.
// A request made while a pass is pending replaces its start layer, so any
// number of requests before dispatch produce one pass. Once a pass is running
// it has already captured its snapshot and cannot see state the request
// reacts to, so a coalescing request is remembered and starts one new pass
// right after the running one commits; a non-coalescing request is dropped.
func (p *Planner) StartPlanning(layer int, coalesce bool) {
	if p.disposed {
		return
	}
	layer = min(max(layer, 0), p.domain.LayerCount()-1)

	switch {
	case p.state == StateNormal:
		p.state = StatePlanning
		p.pending = layer
		p.logger.Debug("Planning requested", zap.Int("layer", layer))
	case p.job == nil && !p.ready:
		p.pending = layer
		coalescedRequests.Inc()
		p.logger.Debug("Pending pass retargeted", zap.Int("layer", layer))
	case coalesce:
		p.rerun = layer
		coalescedRequests.Inc()
		p.logger.Debug("Replan queued behind running pass", zap.Int("layer", layer))
	default:
		p.logger.Debug("Planning request dropped while planning", zap.Int("layer", layer))
	}
}

// Update advances the state machine once: it joins a finished pass and commits
// it, then dispatches the pending pass if any. ctx bounds background passes
// and should outlive the tick. It reports whether a pass was committed.
func (p *Planner) Update(ctx context.Context) bool {
	if p.disposed {
		return false
	}

	committed := false
	if p.job != nil {
		select {
		case <-p.job.done:
		default:
			return false
		}
		passDuration.WithLabelValues("async").Observe(time.Since(p.job.started).Seconds())
		p.job.cancel()
		p.job = nil
		p.ready = true
	}

	if p.ready {
		committed = p.UsePlannerResults()
		if p.rerun >= 0 {
			p.StartPlanning(p.rerun, true)
			p.rerun = -1
		}
	}

	if p.state == StatePlanning && p.job == nil && !p.ready {
		p.dispatch(ctx)
		if p.ready {
			committed = p.UsePlannerResults() || committed
		}
	}
	return committed
}

func (p *Planner) dispatch(ctx context.Context) {
	ps := p.pass
	ps.prepare(p.pending, p.bb, p.execution)
	p.stats.Passes++
	p.stats.LastStart = p.pending

	if p.settings.Synchronous {
		started := time.Now()
		p.runPass(ctx, ps)
		passDuration.WithLabelValues("sync").Observe(time.Since(started).Seconds())
		p.ready = true
		return
	}

	jobCtx, cancel := context.WithCancel(ctx)
	j := &job{cancel: cancel, done: make(chan struct{}), started: time.Now()}
	run := p.runPass
	go func() {
		defer close(j.done)
		run(jobCtx, ps)
	}()
	p.job = j
}

// UsePlannerResults commits a finished pass into the execution plans and
// returns to Normal. It returns false when no finished pass is waiting.
//
// NotRequired layers get an empty plan and Unchanged layers keep their live
// plan and cursor. A new plan is installed only if its first action still
// holds on the live blackboard; otherwise that layer and every layer below it
// receive their fallback plans.
func (p *Planner) UsePlannerResults() bool {
	if !p.ready {
		return false
	}
	p.ready = false
	p.state = StateNormal

	ps := p.pass
	p.stats.Commits++
	p.stats.Searches += ps.searched
	p.stats.Replays += ps.replayed
	p.stats.Nodes += ps.nodes

	changed := false
	for layer := ps.start; layer < len(p.execution); layer++ {
		out := &ps.out[layer]
		live := &p.execution[layer]

		switch out.Result {
		case ResultNotRequired:
			if live.Result != ResultNotRequired {
				changed = true
			}
			live.reset(ResultNotRequired)
			continue
		case ResultUnchanged:
			continue
		case ResultNewPlan:
		default:
			continue
		}

		if layer > 0 && !out.Fallback {
			first := out.Actions[0]
			if !function.Decorate(p.bb, p.domain.Precondition(layer, first)) {
				commitFallbacks.Inc()
				p.logger.Debug("First action no longer holds, falling back",
					zap.Int("layer", layer),
					zap.String("action", p.domain.ElementName(layer, first)))
				p.cascadeFallback(layer)
				changed = true
				break
			}
		}
		live.set(out)
		changed = true
	}

	if changed {
		p.version++
	}
	p.completeRefined()
	p.logger.Debug("Plans committed",
		zap.Int("start_layer", ps.start),
		zap.Bool("changed", changed),
		zap.Int("searched", ps.searched),
		zap.Int("replayed", ps.replayed),
		zap.Int("nodes", ps.nodes))
	return true
}

// cascadeFallback installs the fallback plan of layer and of every layer below
// it that refines an abstract fallback action. Layers under a concrete parent
// are NotRequired.
func (p *Planner) cascadeFallback(layer int) {
	for ; layer < len(p.execution); layer++ {
		live := &p.execution[layer]
		if !p.refinesFallback(layer) {
			live.reset(ResultNotRequired)
			continue
		}
		fb := p.domain.Fallback(layer)
		if len(fb) == 0 {
			live.reset(ResultNotRequired)
			continue
		}
		live.reset(ResultNewPlan)
		live.Actions = append(live.Actions, fb...)
		live.Fallback = true
	}
}

// refinesFallback reports whether the live parent of layer is a goal or an
// abstract action.
func (p *Planner) refinesFallback(layer int) bool {
	parent, ok := p.execution[layer-1].Current()
	if !ok {
		return false
	}
	kind, _ := p.domain.Target(layer, parent)
	return kind != domain.TargetFake
}

// CurrentTask returns the action being executed: the current element of the
// deepest action layer with a live plan. It reports false when that element is
// abstract, since an abstract action only completes through its refinement.
func (p *Planner) CurrentTask() (layer, action int, ok bool) {
	layer, action, ok = p.deepest()
	if !ok || p.domain.Abstract(layer, action) {
		return 0, 0, false
	}
	return layer, action, true
}

// deepest returns the current element of the deepest action layer with a live plan.
func (p *Planner) deepest() (layer, action int, ok bool) {
	for layer = len(p.execution) - 1; layer >= 1; layer-- {
		if action, ok = p.execution[layer].Current(); ok {
			return layer, action, true
		}
	}
	return 0, 0, false
}

// completeRefined finishes the deepest current action when it is abstract and
// its refinement was NotRequired because the target already holds.
func (p *Planner) completeRefined() {
	layer, action, ok := p.deepest()
	if !ok || !p.domain.Abstract(layer, action) || p.execution[layer+1].Result != ResultNotRequired {
		return
	}
	if _, target := p.domain.Target(layer+1, action); !function.Decorate(p.bb, target) {
		return
	}

	function.Execute(p.bb, p.domain.Effect(layer, action), true)
	p.logger.Debug("Abstract action already refined",
		zap.Int("layer", layer),
		zap.String("action", p.domain.ElementName(layer, action)))
	p.advance(layer)
}

// OnTaskExecutionComplete reports the outcome of the current task.
//
// A failure replans the task's layer. A success applies the action's effect to
// the live blackboard and advances the cursor: a next action whose
// precondition no longer holds replans the layer; finishing the plan checks
// the parent's target, replanning the parent layer when it does not hold and
// otherwise completing the parent in turn. Finishing the goal restarts
// planning from layer 0.
func (p *Planner) OnTaskExecutionComplete(success bool) {
	if p.disposed {
		return
	}

	layer, action, ok := p.CurrentTask()
	if !ok {
		p.StartPlanning(0, true)
		return
	}

	name := p.domain.ElementName(layer, action)
	if !success {
		p.logger.Debug("Task failed", zap.Int("layer", layer), zap.String("action", name))
		p.StartPlanning(layer, true)
		return
	}

	function.Execute(p.bb, p.domain.Effect(layer, action), true)
	p.logger.Debug("Task succeeded", zap.Int("layer", layer), zap.String("action", name))
	p.advance(layer)
}

// advance moves the cursor of layer past its current element, whose effect
// has already been applied.
func (p *Planner) advance(layer int) {
	plan := &p.execution[layer]
	plan.Cursor++
	p.version++

	// Lower layers refined the element just finished
	for below := layer + 1; below < len(p.execution); below++ {
		p.execution[below].reset(ResultInvalid)
	}

	if plan.Cursor < len(plan.Actions) {
		next := plan.Actions[plan.Cursor]
		if layer > 0 && !function.Decorate(p.bb, p.domain.Precondition(layer, next)) {
			p.StartPlanning(layer, true)
			return
		}
		if layer+1 < len(p.execution) {
			p.StartPlanning(layer+1, true)
		}
		return
	}

	if layer == 0 {
		p.StartPlanning(0, true)
		return
	}

	parent, ok := p.execution[layer-1].Current()
	if !ok {
		p.StartPlanning(0, true)
		return
	}

	kind, target := p.domain.Target(layer, parent)
	if kind == domain.TargetReal && !function.Decorate(p.bb, target) {
		p.StartPlanning(layer-1, true)
		return
	}

	if layer-1 > 0 {
		function.Execute(p.bb, p.domain.Effect(layer-1, parent), true)
	}
	p.advance(layer - 1)
}

// PlanRecords describes the execution plans for publishing.
func (p *Planner) PlanRecords(agentID string, now time.Time) []blackboard.PlanRecord {
	records := make([]blackboard.PlanRecord, len(p.execution))
	for layer := range p.execution {
		plan := &p.execution[layer]
		names := make([]string, len(plan.Actions))
		for i, a := range plan.Actions {
			names[i] = p.domain.ElementName(layer, a)
		}
		result := plan.Result
		if result == ResultInvalid {
			result = ResultNotRequired
		}
		records[layer] = blackboard.PlanRecord{
			AgentID:       agentID,
			Layer:         layer,
			Result:        result.String(),
			Actions:       names,
			Cursor:        min(plan.Cursor, len(plan.Actions)),
			Fallback:      plan.Fallback,
			CommittedAtMs: now.UnixMilli(),
		}
	}
	return records
}

// Dispose cancels and joins any running pass. The planner cannot be used afterwards.
func (p *Planner) Dispose() {
	if p.disposed {
		return
	}
	if p.job != nil {
		p.job.cancel()
		<-p.job.done
		p.job = nil
	}
	p.disposed = true
	p.ready = false
	p.state = StateNormal
}
