package domain

import (
	"encoding/binary"
	"fmt"

	"github.com/dyluth/lgoap/pkg/blackboard"
	"github.com/dyluth/lgoap/pkg/function"
)

// TargetKind classifies the target a layer plans towards.
type TargetKind uint8

const (
	// TargetReal carries decorators to satisfy
	TargetReal TargetKind = iota + 1

	// TargetFake marks a concrete parent: nothing below it needs planning
	TargetFake

	// TargetFallback marks the sentinel goal: every layer installs its fallback plan
	TargetFallback
)

// String returns the name of the target kind.
func (k TargetKind) String() string {
	switch k {
	case TargetReal:
		return "real"
	case TargetFake:
		return "fake"
	case TargetFallback:
		return "fallback"
	default:
		return fmt.Sprintf("target(%d)", uint8(k))
	}
}

type target struct {
	kind       TargetKind
	decorators function.Collection
}

type action struct {
	abstract bool
	pre      function.Collection
	cost     function.Collection
	effect   function.Collection
}

type layer struct {
	maxPlanLength int
	fallback      []int
	targets       []target
	actions       []action
}

// Domain is a compiled goal/action hierarchy. It is immutable and safe to
// share between agents. Collections returned by its accessors alias the
// underlying buffer and must not be modified.
type Domain struct {
	name        string
	schema      *blackboard.Schema
	buf         []byte
	goals       []function.Collection
	layers      []layer // layers[0] is action layer 1
	goalNames   []string
	actionNames [][]string
}

// Load parses a domain buffer compiled against schema s. Every collection is
// checked, and every key handle must resolve in s. Element names are
// synthesised ("goal#1", "action#2"); Compile replaces them with the authored names.
func Load(s *blackboard.Schema, buf []byte) (*Domain, error) {
	if s == nil {
		return nil, fmt.Errorf("schema cannot be nil")
	}
	r := &reader{buf: buf}

	total := r.u32()
	layerCount := int(r.u32())
	goalCount := int(r.u32())
	if r.err != nil || total != len(buf) {
		return nil, fmt.Errorf("header total %d for %d bytes: %w", total, len(buf), ErrMalformedBuffer)
	}
	if layerCount < 1 || goalCount < 1 {
		return nil, fmt.Errorf("%d layers and %d goals: %w", layerCount, goalCount, ErrMalformedBuffer)
	}

	d := &Domain{schema: s, buf: buf}
	for i := 0; i < goalCount; i++ {
		d.goals = append(d.goals, r.collection(s, function.KindScoreCalculator))
	}

	parents := goalCount
	for li := 1; li < layerCount; li++ {
		start := r.off
		size := r.u32()
		l := layer{maxPlanLength: int(r.u16())}
		fallbackLen := int(r.u16())
		for i := 0; i < fallbackLen; i++ {
			l.fallback = append(l.fallback, int(r.u16()))
		}

		targetCount := int(r.u32())
		if r.err == nil && targetCount != parents {
			return nil, fmt.Errorf("layer %d has %d targets for %d parents: %w", li, targetCount, parents, ErrMalformedBuffer)
		}
		for i := 0; i < targetCount && r.err == nil; i++ {
			kind := TargetKind(r.u8())
			if kind < TargetReal || kind > TargetFallback {
				r.fail("layer %d target %d has kind %d", li, i, kind)
			}
			l.targets = append(l.targets, target{kind: kind, decorators: r.collection(s, function.KindDecorator)})
		}

		actionCount := int(r.u32())
		for i := 0; i < actionCount && r.err == nil; i++ {
			flags := r.u8()
			l.actions = append(l.actions, action{
				abstract: flags&flagAbstract != 0,
				pre:      r.collection(s, function.KindDecorator),
				cost:     r.collection(s, function.KindScoreCalculator),
				effect:   r.collection(s, function.KindEffector),
			})
		}

		if r.err != nil {
			return nil, r.err
		}
		if r.off-start != size {
			return nil, fmt.Errorf("layer %d size %d, parsed %d: %w", li, size, r.off-start, ErrMalformedBuffer)
		}
		if l.maxPlanLength < 1 || len(l.fallback) > l.maxPlanLength {
			return nil, fmt.Errorf("layer %d max plan length %d with fallback of %d: %w", li, l.maxPlanLength, len(l.fallback), ErrMalformedBuffer)
		}
		for _, a := range l.fallback {
			if a >= len(l.actions) {
				return nil, fmt.Errorf("layer %d fallback action %d out of range: %w", li, a, ErrMalformedBuffer)
			}
		}

		d.layers = append(d.layers, l)
		parents = len(l.actions)
	}

	if r.err != nil {
		return nil, r.err
	}
	if r.off != len(buf) {
		return nil, fmt.Errorf("%d trailing bytes: %w", len(buf)-r.off, ErrMalformedBuffer)
	}

	d.goalNames = make([]string, goalCount)
	d.goalNames[0] = DefaultFallbackGoal
	for i := 1; i < goalCount; i++ {
		d.goalNames[i] = fmt.Sprintf("goal#%d", i)
	}
	d.actionNames = make([][]string, len(d.layers))
	for li, l := range d.layers {
		d.actionNames[li] = make([]string, len(l.actions))
		for i := range l.actions {
			d.actionNames[li][i] = fmt.Sprintf("action#%d", i)
		}
	}
	return d, nil
}

// Name returns the declaration name.
func (d *Domain) Name() string { return d.name }

// Schema returns the schema the domain was compiled against.
func (d *Domain) Schema() *blackboard.Schema { return d.schema }

// Bytes returns the compiled buffer. Callers must treat it as read-only.
func (d *Domain) Bytes() []byte { return d.buf }

// LayerCount returns the number of layers including the goal layer.
func (d *Domain) LayerCount() int { return len(d.layers) + 1 }

// GoalCount returns the number of goals including the fallback sentinel at index 0.
func (d *Domain) GoalCount() int { return len(d.goals) }

// Insistence returns the score-calculator collection of goal g.
func (d *Domain) Insistence(g int) function.Collection { return d.goals[g] }

// ElementCount returns the number of goals (layer 0) or actions (layer >= 1).
func (d *Domain) ElementCount(layer int) int {
	if layer == 0 {
		return len(d.goals)
	}
	return len(d.layers[layer-1].actions)
}

// ElementName returns the name of goal or action i of layer.
func (d *Domain) ElementName(layer, i int) string {
	if layer == 0 {
		return d.goalNames[i]
	}
	return d.actionNames[layer-1][i]
}

// ElementIndex finds an element by name, or returns -1.
func (d *Domain) ElementIndex(layer int, name string) int {
	names := d.goalNames
	if layer > 0 {
		names = d.actionNames[layer-1]
	}
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}

// MaxPlanLength returns the plan bound of a layer. The goal layer always holds one goal.
func (d *Domain) MaxPlanLength(layer int) int {
	if layer == 0 {
		return 1
	}
	return d.layers[layer-1].maxPlanLength
}

// Fallback returns the fallback plan of an action layer. The goal layer falls back to the sentinel.
func (d *Domain) Fallback(layer int) []int {
	if layer == 0 {
		return []int{0}
	}
	return d.layers[layer-1].fallback
}

// Target returns the target layer plans towards when parent is the current element of layer-1.
func (d *Domain) Target(layer, parent int) (TargetKind, function.Collection) {
	t := d.layers[layer-1].targets[parent]
	return t.kind, t.decorators
}

// Abstract reports whether action i of layer is refined by the next layer.
func (d *Domain) Abstract(layer, i int) bool { return d.layers[layer-1].actions[i].abstract }

// Precondition returns the decorator collection of action i of layer.
func (d *Domain) Precondition(layer, i int) function.Collection {
	return d.layers[layer-1].actions[i].pre
}

// Cost returns the score-calculator collection of action i of layer.
func (d *Domain) Cost(layer, i int) function.Collection { return d.layers[layer-1].actions[i].cost }

// Effect returns the effector collection of action i of layer.
func (d *Domain) Effect(layer, i int) function.Collection { return d.layers[layer-1].actions[i].effect }

// reader walks the buffer, remembering the first error.
type reader struct {
	buf []byte
	off int
	err error
}

func (r *reader) fail(format string, args ...any) {
	if r.err == nil {
		r.err = fmt.Errorf(fmt.Sprintf(format, args...)+": %w", ErrMalformedBuffer)
	}
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.off+n > len(r.buf) {
		r.fail("read of %d bytes at offset %d overruns %d", n, r.off, len(r.buf))
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) u8() uint8 {
	if b := r.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (r *reader) u16() uint16 {
	if b := r.take(2); b != nil {
		return binary.LittleEndian.Uint16(b)
	}
	return 0
}

func (r *reader) u32() int {
	if b := r.take(4); b != nil {
		return int(binary.LittleEndian.Uint32(b))
	}
	return 0
}

// collection reads one function collection and checks it against s.
func (r *reader) collection(s *blackboard.Schema, kind function.Kind) function.Collection {
	if r.err != nil {
		return nil
	}
	if r.off+function.CollectionHeaderSize > len(r.buf) {
		r.fail("collection header at offset %d overruns buffer", r.off)
		return nil
	}
	size := int(binary.LittleEndian.Uint32(r.buf[r.off:]))
	c := function.Collection(r.take(size))
	if c == nil {
		return nil
	}
	if err := function.Check(c, kind); err != nil {
		r.err = fmt.Errorf("collection at offset %d: %v: %w", r.off-size, err, ErrMalformedBuffer)
		return nil
	}
	if _, err := function.DecodeCollection(s, c); err != nil {
		r.err = fmt.Errorf("collection at offset %d does not match schema %q: %w", r.off-size, s.Name(), err)
		return nil
	}
	return c
}
