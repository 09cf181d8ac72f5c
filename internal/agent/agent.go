// Package agent ties one blackboard instance, its planner and its execution
// driver into a unit the scheduler ticks.
package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dyluth/lgoap/internal/executor"
	"github.com/dyluth/lgoap/pkg/blackboard"
	"github.com/dyluth/lgoap/pkg/domain"
	"github.com/dyluth/lgoap/pkg/planner"
)

// Agent is a planning agent. It is not safe for concurrent use: the
// scheduler ticks each agent from one goroutine at a time.
type Agent struct {
	id      uuid.UUID
	name    string
	bb      *blackboard.Instance
	planner *planner.Planner
	driver  *executor.Driver
	logger  *zap.Logger

	ticks    uint64
	replans  uint64
	disposed bool
}

// New creates an agent with a fresh blackboard instance of d's schema and
// requests its first planning pass.
func New(name string, d *domain.Domain, tasks *executor.Registry, settings planner.Settings, logger *zap.Logger) (*Agent, error) {
	if d == nil {
		return nil, fmt.Errorf("agent %q: domain cannot be nil", name)
	}
	if tasks == nil {
		return nil, fmt.Errorf("agent %q: task registry cannot be nil", name)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	id := uuid.New()
	logger = logger.With(zap.String("agent", name), zap.String("agent_id", id.String()))

	bb := d.Schema().NewInstance()
	p, err := planner.New(d, bb, settings, logger.Named("planner"))
	if err != nil {
		bb.Dispose()
		return nil, fmt.Errorf("agent %q: %w", name, err)
	}

	a := &Agent{
		id:      id,
		name:    name,
		bb:      bb,
		planner: p,
		driver:  executor.NewDriver(p, tasks, logger.Named("driver")),
		logger:  logger,
	}
	p.StartPlanning(0, false)

	logger.Debug("Agent created", zap.String("domain", d.Name()))
	return a, nil
}

// ID returns the agent's unique id.
func (a *Agent) ID() uuid.UUID { return a.id }

// Name returns the agent's name.
func (a *Agent) Name() string { return a.name }

// Blackboard returns the agent's live blackboard. Writes from outside the
// agent's tasks should pass expected=false so notify keys trigger a replan.
func (a *Agent) Blackboard() *blackboard.Instance { return a.bb }

// Planner returns the agent's planner.
func (a *Agent) Planner() *planner.Planner { return a.planner }

// Driver returns the agent's execution driver.
func (a *Agent) Driver() *executor.Driver { return a.driver }

// Ticks returns the number of completed ticks.
func (a *Agent) Ticks() uint64 { return a.ticks }

// Replans returns the number of replans triggered by unexpected changes.
func (a *Agent) Replans() uint64 { return a.replans }

// Tick runs one frame: replan on unexpected blackboard changes, poll and
// commit the planner, then advance the running task by dt.
func (a *Agent) Tick(ctx context.Context, dt time.Duration) error {
	if a.disposed {
		return fmt.Errorf("agent %q is closed", a.name)
	}

	if a.bb.HasUnexpectedChanges() {
		a.logger.Debug("Unexpected blackboard changes, replanning",
			zap.Int("changes", len(a.bb.UnexpectedChanges())))
		a.planner.StartPlanning(0, true)
		a.bb.ClearUnexpectedChanges()
		a.replans++
	}

	a.planner.Update(ctx)
	a.driver.Tick(dt)
	a.ticks++
	return nil
}

// PlanRecords describes the agent's execution plans.
func (a *Agent) PlanRecords(now time.Time) []blackboard.PlanRecord {
	return a.planner.PlanRecords(a.id.String(), now)
}

// Close aborts the running task and releases the planner and blackboard.
func (a *Agent) Close() {
	if a.disposed {
		return
	}
	a.disposed = true
	a.driver.Abort()
	a.planner.Dispose()
	a.bb.Dispose()
	a.logger.Debug("Agent closed", zap.Uint64("ticks", a.ticks))
}
