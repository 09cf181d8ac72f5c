package planner

import "fmt"

// Result tags the outcome of planning one layer.
type Result uint8

const (
	// ResultInvalid marks a layer that has never been planned
	ResultInvalid Result = iota

	// ResultNotRequired means the layer has nothing to do: its target holds or its parent is concrete
	ResultNotRequired

	// ResultUnchanged means the live plan is still valid and keeps its cursor
	ResultUnchanged

	// ResultNewPlan replaces the live plan
	ResultNewPlan
)

// String returns the lower-case name used in logs and plan records.
func (r Result) String() string {
	switch r {
	case ResultInvalid:
		return "invalid"
	case ResultNotRequired:
		return "not_required"
	case ResultUnchanged:
		return "unchanged"
	case ResultNewPlan:
		return "new_plan"
	default:
		return fmt.Sprintf("result(%d)", uint8(r))
	}
}

// Plan is the bounded action sequence of one layer. For layer 0 it holds the
// selected goal; for action layers, action indices into the domain layer.
type Plan struct {
	Result  Result
	Actions []int
	Cursor  int

	// Fallback is set when the actions are the layer's authored fallback plan
	Fallback bool
}

// Live reports whether the plan has a current element.
func (p *Plan) Live() bool {
	return (p.Result == ResultNewPlan || p.Result == ResultUnchanged) && p.Cursor < len(p.Actions)
}

// Current returns the element under the cursor.
func (p *Plan) Current() (int, bool) {
	if !p.Live() {
		return 0, false
	}
	return p.Actions[p.Cursor], true
}

// Remaining returns the actions from the cursor to the end.
func (p *Plan) Remaining() []int {
	if p.Cursor >= len(p.Actions) {
		return nil
	}
	return p.Actions[p.Cursor:]
}

// Clone returns a deep copy.
func (p Plan) Clone() Plan {
	p.Actions = append([]int(nil), p.Actions...)
	return p
}

// set replaces p with a copy of src, reusing p's action storage.
func (p *Plan) set(src *Plan) {
	p.Result = src.Result
	p.Actions = append(p.Actions[:0], src.Actions...)
	p.Cursor = src.Cursor
	p.Fallback = src.Fallback
}

func (p *Plan) reset(r Result) {
	p.Result = r
	p.Actions = p.Actions[:0]
	p.Cursor = 0
	p.Fallback = false
}

// State is the planner's scheduling state.
type State uint8

const (
	// StateNormal means no pass is pending or running
	StateNormal State = iota

	// StatePlanning means a pass is pending, running or awaiting commit
	StatePlanning
)

// String returns the lower-case state name used in logs.
func (s State) String() string {
	if s == StatePlanning {
		return "planning"
	}
	return "normal"
}
