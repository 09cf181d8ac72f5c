// Package domain compiles a layered goal/action hierarchy into one contiguous
// byte buffer and exposes a read-only view over it for the planner.
//
// Layer 0 holds the goals. Layer k >= 1 holds the actions that refine the
// selected element of layer k-1: layer 1 plans towards the selected goal's
// target, layer 2 towards the target of the current abstract action of
// layer 1, and so on. Goal index 0 is always a sentinel fallback goal with no
// insistence; selecting it installs every layer's fallback plan.
//
// Buffer layout (little-endian):
//
//	[u32 total_size][u32 layer_count][u32 goal_count]
//	goal_count x [insistence collection]
//	(layer_count-1) x action layer:
//	    [u32 layer_size][u16 max_plan_length][u16 fallback_len][u16 fallback]...
//	    [u32 target_count] target_count x ([u8 target_kind][decorator collection])
//	    [u32 action_count] action_count x ([u8 flags][pre][cost][effect])
//
// layer_count includes the goal layer.
package domain

import (
	"github.com/dyluth/lgoap/pkg/blackboard"
	"github.com/dyluth/lgoap/pkg/function"
)

// DefaultFallbackGoal names the sentinel goal when a declaration does not.
const DefaultFallbackGoal = "Fallback"

// Goal is an authored layer-0 element.
type Goal struct {
	Name string

	// Insistence is summed to rank goals; the highest strictly positive score wins
	Insistence []function.ScoreCalculator

	// Target is the done-condition layer 1 plans towards
	Target []function.Decorator
}

// Action is an authored element of an action layer.
type Action struct {
	Name string

	// Abstract actions are refined by the next layer, planning towards Target
	Abstract bool

	Precondition []function.Decorator
	Cost         []function.ScoreCalculator
	Effect       []function.Effector

	// Target is only meaningful for abstract actions
	Target []function.Decorator
}

// Layer is one authored action layer.
type Layer struct {
	// MaxPlanLength bounds the search depth and every plan of the layer
	MaxPlanLength int

	// Fallback names the actions installed when search fails or the fallback goal wins
	Fallback []string

	Actions []Action
}

// Declaration is the authored input to the domain compiler.
type Declaration struct {
	Name string

	// Schema every collection is compiled against
	Schema *blackboard.Schema

	// FallbackGoal names the sentinel goal at index 0 (DefaultFallbackGoal if empty)
	FallbackGoal string

	Goals  []Goal
	Layers []Layer
}
