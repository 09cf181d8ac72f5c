package planner

import (
	"context"
	"math"

	"github.com/dyluth/lgoap/pkg/blackboard"
	"github.com/dyluth/lgoap/pkg/domain"
	"github.com/dyluth/lgoap/pkg/function"
)

// cancelCheckInterval is how many search nodes are expanded between context checks.
const cancelCheckInterval = 1024

// pass is the working set of one planning pass. While a background job runs,
// the job owns it exclusively; the planner only touches it after joining.
type pass struct {
	domain    *domain.Domain
	maxFScore float32

	start int
	base  *blackboard.Snapshot // blackboard at dispatch time
	live  []Plan               // execution plans at dispatch time
	out   []Plan               // results, indexed by layer; only [start:] is written

	// scratch[layer] holds maxPlanLength+1 snapshots reused by every search of that layer
	scratch [][]*blackboard.Snapshot
	path    []int

	nodes    int
	searched int
	replayed int
}

func newPass(d *domain.Domain, maxFScore float32) *pass {
	n := d.LayerCount()
	p := &pass{
		domain:    d,
		maxFScore: maxFScore,
		base:      d.Schema().NewSnapshot(),
		live:      make([]Plan, n),
		out:       make([]Plan, n),
		scratch:   make([][]*blackboard.Snapshot, n),
	}

	longest := 0
	for layer := 1; layer < n; layer++ {
		depth := d.MaxPlanLength(layer)
		p.scratch[layer] = make([]*blackboard.Snapshot, depth+1)
		for i := range p.scratch[layer] {
			p.scratch[layer][i] = d.Schema().NewSnapshot()
		}
		longest = max(longest, depth)
	}
	p.path = make([]int, longest)
	return p
}

// prepare captures the inputs of a pass on the owning goroutine.
func (p *pass) prepare(start int, bb blackboard.Memory, execution []Plan) {
	p.start = start
	p.base.CopyFrom(bb)
	for i := range execution {
		p.live[i].set(&execution[i])
	}
	for i := range p.out {
		p.out[i].reset(ResultInvalid)
	}
	p.nodes, p.searched, p.replayed = 0, 0, 0
}

// effective returns the plan a layer will have once this pass commits:
// the live plan above the start layer or when unchanged, otherwise the new one.
func (p *pass) effective(layer int) *Plan {
	if layer < p.start || p.out[layer].Result == ResultUnchanged {
		return &p.live[layer]
	}
	return &p.out[layer]
}

// run plans every layer from start to the bottom of the hierarchy.
func (p *pass) run(ctx context.Context) {
	fallingBack := false

	for layer := p.start; layer < p.domain.LayerCount(); layer++ {
		out := &p.out[layer]

		if layer == 0 {
			fallingBack = p.selectGoal() == 0
			continue
		}
		if fallingBack {
			if !p.refinesFallback(layer) {
				out.reset(ResultNotRequired)
				layerResults.WithLabelValues(out.Result.String(), "parent").Inc()
				continue
			}
			if p.out[layer-1].Result == ResultUnchanged && p.live[layer].Fallback && p.live[layer].Live() {
				out.set(&p.live[layer])
				out.Result = ResultUnchanged
				continue
			}
			p.installFallback(layer, "fallback")
			continue
		}

		parent, ok := p.effective(layer - 1).Current()
		if !ok {
			out.reset(ResultNotRequired)
			layerResults.WithLabelValues(out.Result.String(), "parent").Inc()
			continue
		}

		kind, target := p.domain.Target(layer, parent)
		switch kind {
		case domain.TargetFake:
			out.reset(ResultNotRequired)
			layerResults.WithLabelValues(out.Result.String(), "target").Inc()
			continue
		case domain.TargetFallback:
			fallingBack = true
			p.installFallback(layer, "fallback")
			continue
		}

		start := p.scratch[layer][0]
		start.CopyFrom(p.base)
		if function.Unsatisfied(start, target) == 0 {
			out.reset(ResultNotRequired)
			layerResults.WithLabelValues(out.Result.String(), "target").Inc()
			continue
		}

		if layer != p.start && p.out[layer-1].Result == ResultUnchanged && p.live[layer].Live() {
			if p.replay(layer, target) {
				out.set(&p.live[layer])
				out.Result = ResultUnchanged
				p.replayed++
				layerResults.WithLabelValues(out.Result.String(), "replay").Inc()
				continue
			}
			start.CopyFrom(p.base)
		}

		p.searched++
		if n, ok := p.search(ctx, layer, target); ok {
			out.reset(ResultNewPlan)
			out.Actions = append(out.Actions, p.path[:n]...)
			layerResults.WithLabelValues(out.Result.String(), "search").Inc()
			continue
		}
		p.installFallback(layer, "fallback")
	}

	searchNodes.Add(float64(p.nodes))
}

// selectGoal scores every goal against the base snapshot and writes layer 0.
// The sentinel at index 0 scores 0; a goal must score strictly more to win,
// and earlier goals win ties.
func (p *pass) selectGoal() int {
	best, bestScore := 0, float32(0)
	for g := 1; g < p.domain.GoalCount(); g++ {
		if s := function.Score(p.base, p.domain.Insistence(g)); s > bestScore {
			best, bestScore = g, s
		}
	}

	out := &p.out[0]
	if cur, ok := p.live[0].Current(); ok && cur == best {
		out.set(&p.live[0])
		out.Result = ResultUnchanged
	} else {
		out.reset(ResultNewPlan)
		out.Actions = append(out.Actions, best)
		out.Fallback = best == 0
	}
	layerResults.WithLabelValues(out.Result.String(), "goal").Inc()
	return best
}

// refinesFallback reports whether layer sits under a goal or an abstract
// action, the only parents a fallback plan refines.
func (p *pass) refinesFallback(layer int) bool {
	parent, ok := p.effective(layer - 1).Current()
	if !ok {
		return false
	}
	kind, _ := p.domain.Target(layer, parent)
	return kind != domain.TargetFake
}

func (p *pass) installFallback(layer int, source string) {
	out := &p.out[layer]
	fb := p.domain.Fallback(layer)
	if len(fb) == 0 {
		out.reset(ResultNotRequired)
	} else {
		out.reset(ResultNewPlan)
		out.Actions = append(out.Actions, fb...)
		out.Fallback = true
	}
	layerResults.WithLabelValues(out.Result.String(), source).Inc()
}

// replay re-simulates the remaining actions of the live plan from the base state.
// The plan survives if every precondition holds in turn and the target is reached.
func (p *pass) replay(layer int, target function.Collection) bool {
	mem := p.scratch[layer][0]
	for _, a := range p.live[layer].Remaining() {
		if !function.Decorate(mem, p.domain.Precondition(layer, a)) {
			return false
		}
		function.Execute(mem, p.domain.Effect(layer, a), true)
	}
	return function.Unsatisfied(mem, target) == 0
}

// search runs IDA* from scratch[layer][0] towards target. On success the plan
// is p.path[:n]. It gives up when the depth bound or maxFScore is exhausted,
// or when ctx is cancelled.
func (p *pass) search(ctx context.Context, layer int, target function.Collection) (n int, ok bool) {
	s := searcher{
		pass:     p,
		ctx:      ctx,
		layer:    layer,
		target:   target,
		actions:  p.domain.ElementCount(layer),
		maxDepth: p.domain.MaxPlanLength(layer),
		snaps:    p.scratch[layer],
	}

	threshold := float32(function.Unsatisfied(s.snaps[0], target))
	for {
		if p.maxFScore > 0 && threshold > p.maxFScore {
			return 0, false
		}
		s.next = float32(math.Inf(1))
		if depth, found := s.dfs(0, 0, threshold); found {
			return depth, true
		}
		if s.cancelled || math.IsInf(float64(s.next), 1) {
			return 0, false
		}
		threshold = s.next
	}
}

type searcher struct {
	*pass
	ctx       context.Context
	layer     int
	target    function.Collection
	actions   int
	maxDepth  int
	snaps     []*blackboard.Snapshot
	next      float32
	cancelled bool
}

// dfs explores from snaps[depth] with accumulated cost g. It returns the plan
// length when a node satisfying the target is reached.
func (s *searcher) dfs(depth int, g, threshold float32) (int, bool) {
	mem := s.snaps[depth]
	h := function.Unsatisfied(mem, s.target)
	f := g + float32(h)
	if f > threshold {
		s.next = min(s.next, f)
		return 0, false
	}
	if h == 0 {
		return depth, true
	}
	if depth == s.maxDepth {
		return 0, false
	}

	child := s.snaps[depth+1]
	for a := 0; a < s.actions; a++ {
		if !function.Decorate(mem, s.domain.Precondition(s.layer, a)) {
			continue
		}

		s.nodes++
		if s.nodes%cancelCheckInterval == 0 && s.ctx.Err() != nil {
			s.cancelled = true
		}
		if s.cancelled {
			return 0, false
		}

		cost := max(function.Score(mem, s.domain.Cost(s.layer, a)), 0)
		child.CopyFrom(mem)
		function.Execute(child, s.domain.Effect(s.layer, a), true)
		s.path[depth] = a

		if n, ok := s.dfs(depth+1, g+cost, threshold); ok {
			return n, true
		}
	}
	return 0, false
}
