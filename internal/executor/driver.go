package executor

import (
	"time"

	"go.uber.org/zap"

	"github.com/dyluth/lgoap/pkg/domain"
)

// Planner is the part of planner.Planner the driver consumes.
type Planner interface {
	Domain() *domain.Domain
	Version() uint64
	CurrentTask() (layer, action int, ok bool)
	OnTaskExecutionComplete(success bool)
}

// Stats count the driver's task lifecycle events.
type Stats struct {
	Begun     int
	Succeeded int
	Failed    int
	Aborted   int
}

// Driver executes the planner's current task.
//
// On every Tick it aborts the running task if the planner's plans changed,
// begins the current task when nothing is running and ticks the running
// task. After a task completes, nothing new begins until the planner
// reports a change. Actions without a registered factory fail immediately.
// The driver stays idle while no concrete action is current, such as while an
// abstract action waits for its refinement to be planned.
type Driver struct {
	planner  Planner
	registry *Registry
	logger   *zap.Logger

	current Task
	handle  *Handle
	name    string
	seen    uint64
	idle    bool
	started bool
	stats   Stats
}

// NewDriver creates a driver for one agent's planner.
func NewDriver(p Planner, r *Registry, logger *zap.Logger) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{planner: p, registry: r, logger: logger}
}

// Running returns the action name of the running task, if any.
func (d *Driver) Running() (string, bool) {
	return d.name, d.current != nil
}

// Stats returns the driver's counters.
func (d *Driver) Stats() Stats { return d.stats }

// Tick advances the running task by dt.
func (d *Driver) Tick(dt time.Duration) {
	if v := d.planner.Version(); v != d.seen || !d.started {
		d.started = true
		d.seen = v
		d.idle = false
		d.Abort()
	}

	if d.current == nil && !d.idle {
		d.begin()
	}

	if d.current != nil {
		task, h := d.current, d.handle
		if !task.Tick(dt) && !h.done {
			h.Complete(true)
		}
	}
}

// Abort stops the running task without reporting an outcome.
func (d *Driver) Abort() {
	if d.current == nil {
		return
	}
	d.logger.Debug("Aborting task", zap.String("action", d.name))
	d.handle.driver = nil
	d.current.Abort()
	d.current, d.handle, d.name = nil, nil, ""
	d.stats.Aborted++
}

func (d *Driver) begin() {
	layer, action, ok := d.planner.CurrentTask()
	if !ok {
		d.idle = true
		return
	}

	dom := d.planner.Domain()
	name := dom.ElementName(layer, action)

	if dom.Abstract(layer, action) {
		d.idle = true
		d.logger.Debug("Waiting for refinement", zap.String("action", name), zap.Int("layer", layer))
		return
	}

	factory, ok := d.registry.Lookup(name)
	if !ok {
		d.idle = true
		d.logger.Warn("No task registered for action", zap.String("action", name), zap.Int("layer", layer))
		d.stats.Failed++
		d.planner.OnTaskExecutionComplete(false)
		return
	}

	d.current = factory()
	d.handle = &Handle{driver: d}
	d.name = name
	d.stats.Begun++
	d.logger.Debug("Beginning task", zap.String("action", name), zap.Int("layer", layer))
	d.current.Begin(d.handle)
}

// complete is called once per handle by Handle.Complete.
func (d *Driver) complete(h *Handle, success bool) {
	if h != d.handle {
		return
	}
	d.logger.Debug("Task complete", zap.String("action", d.name), zap.Bool("success", success))
	if success {
		d.stats.Succeeded++
	} else {
		d.stats.Failed++
	}

	d.current, d.handle, d.name = nil, nil, ""
	d.idle = true
	d.planner.OnTaskExecutionComplete(success)
}
