// Package executor runs the planner's current action as a task and reports
// its outcome back to the planner.
package executor

import (
	"errors"
	"time"

	bt "github.com/joeycumines/go-behaviortree"
)

// Task is the execution of one planned action.
//
// Begin is called once when the action becomes current, Tick once per frame
// while the task runs, and Abort when a new plan replaces the action before
// it completed. A task reports its outcome through the Handle; returning
// false from Tick without completing counts as success.
//
// Tasks run on the agent's goroutine and must call Handle.Complete from it.
type Task interface {
	Begin(h *Handle)
	Tick(dt time.Duration) bool
	Abort()
}

// Factory creates a fresh task for each execution of an action.
type Factory func() Task

// Handle connects a running task to the driver that began it.
type Handle struct {
	driver *Driver
	done   bool
}

// Complete reports the task's outcome. Only the first call counts, and calls
// on a handle whose task has been aborted are ignored.
func (h *Handle) Complete(success bool) {
	if h == nil || h.done {
		return
	}
	h.done = true
	if h.driver != nil {
		h.driver.complete(h, success)
	}
}

// Done reports whether Complete has been called.
func (h *Handle) Done() bool { return h.done }

// BehaviourTask runs a behaviour tree node as a task: Running keeps the task
// alive, Success and Failure complete it, and a tick error is a failure.
type BehaviourTask struct {
	node    bt.Node
	handle  *Handle
	elapsed time.Duration
	err     error
}

// NewBehaviourTask wraps node.
func NewBehaviourTask(node bt.Node) *BehaviourTask {
	return &BehaviourTask{node: node}
}

// Begin implements Task.
func (t *BehaviourTask) Begin(h *Handle) {
	t.handle = h
	t.elapsed = 0
	t.err = nil
}

// Tick implements Task.
func (t *BehaviourTask) Tick(dt time.Duration) bool {
	t.elapsed += dt

	status, err := t.node.Tick()
	if err != nil {
		t.err = err
		t.handle.Complete(false)
		return false
	}

	switch status {
	case bt.Running:
		return true
	case bt.Success:
		t.handle.Complete(true)
	default:
		t.handle.Complete(false)
	}
	return false
}

// Abort implements Task.
func (t *BehaviourTask) Abort() {}

// Elapsed returns the time ticked since Begin.
func (t *BehaviourTask) Elapsed() time.Duration { return t.elapsed }

// Err returns the error of the last failed tick.
func (t *BehaviourTask) Err() error { return t.err }

// Instant completes successfully on its first tick.
func Instant() Task {
	return NewBehaviourTask(bt.New(func([]bt.Node) (bt.Status, error) {
		return bt.Success, nil
	}))
}

// ErrTaskFailed is reported by the Fail task.
var ErrTaskFailed = errors.New("task failed")

// Fail fails on its first tick.
func Fail() Task {
	return NewBehaviourTask(bt.New(func([]bt.Node) (bt.Status, error) {
		return bt.Failure, ErrTaskFailed
	}))
}

// Wait returns a factory for tasks that succeed once d has been ticked.
func Wait(d time.Duration) Factory {
	return func() Task {
		t := &BehaviourTask{}
		t.node = bt.New(func([]bt.Node) (bt.Status, error) {
			if t.elapsed >= d {
				return bt.Success, nil
			}
			return bt.Running, nil
		})
		return t
	}
}
