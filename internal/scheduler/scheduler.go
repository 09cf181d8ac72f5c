// Package scheduler ticks a set of agents at a fixed rate, feeds remote
// synced writes into their blackboards and publishes their plans.
package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dyluth/lgoap/internal/agent"
	"github.com/dyluth/lgoap/pkg/blackboard"
)

// Options configures a Scheduler. Bridge and Client are optional.
type Options struct {
	TickRate time.Duration

	// Bridge delivers remote instance-synced writes; drained once per frame
	Bridge *blackboard.SyncBridge

	// Client receives plan records when SavePlans is set
	Client    *blackboard.Client
	SavePlans bool

	Logger *zap.Logger
}

// Scheduler owns its agents' goroutine. Every agent shares one schema's
// instance-synced keys, so agents are ticked one after another.
type Scheduler struct {
	agents []*agent.Agent
	opts   Options
	logger *zap.Logger

	// planner version last saved per agent
	saved map[*agent.Agent]uint64

	frames atomic.Uint64
	errors atomic.Uint64
}

// New creates a scheduler for agents.
func New(agents []*agent.Agent, opts Options) (*Scheduler, error) {
	if len(agents) == 0 {
		return nil, fmt.Errorf("at least one agent is required")
	}
	if opts.TickRate <= 0 {
		return nil, fmt.Errorf("tick rate must be positive, got %s", opts.TickRate)
	}
	if opts.SavePlans && opts.Client == nil {
		return nil, fmt.Errorf("saving plans requires a blackboard client")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Scheduler{
		agents: agents,
		opts:   opts,
		logger: opts.Logger,
		saved:  make(map[*agent.Agent]uint64, len(agents)),
	}, nil
}

// Agents returns the scheduled agents.
func (s *Scheduler) Agents() []*agent.Agent { return s.agents }

// Frames returns the number of completed frames. Safe for concurrent use.
func (s *Scheduler) Frames() uint64 { return s.frames.Load() }

// Errors returns the number of failed agent ticks. Safe for concurrent use.
func (s *Scheduler) Errors() uint64 { return s.errors.Load() }

// Run ticks every agent once per tick period until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	agentsGauge.Set(float64(len(s.agents)))
	s.logger.Info("Scheduler started",
		zap.Int("agents", len(s.agents)),
		zap.Duration("tick_rate", s.opts.TickRate))

	ticker := time.NewTicker(s.opts.TickRate)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler stopped", zap.Uint64("frames", s.Frames()))
			return nil
		case now := <-ticker.C:
			s.Frame(ctx, now.Sub(last))
			last = now
		}
	}
}

// Frame applies pending remote writes, ticks every agent by dt and saves
// the plans that changed. A failing agent is logged and skipped.
func (s *Scheduler) Frame(ctx context.Context, dt time.Duration) {
	start := time.Now()

	if s.opts.Bridge != nil {
		if n := s.opts.Bridge.Drain(); n > 0 {
			syncedApplied.Add(float64(n))
			s.logger.Debug("Applied remote synced writes", zap.Int("count", n))
		}
	}

	for _, a := range s.agents {
		if err := s.tick(ctx, a, dt); err != nil {
			s.errors.Add(1)
			agentErrors.Inc()
			s.logger.Error("Agent tick failed", zap.String("agent", a.Name()), zap.Error(err))
		}
	}

	if s.opts.SavePlans {
		s.savePlans(ctx)
	}

	s.frames.Add(1)
	frameDuration.Observe(time.Since(start).Seconds())
}

func (s *Scheduler) tick(ctx context.Context, a *agent.Agent, dt time.Duration) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return a.Tick(ctx, dt)
}

func (s *Scheduler) savePlans(ctx context.Context) {
	now := time.Now()
	for _, a := range s.agents {
		v := a.Planner().Version()
		if seen, ok := s.saved[a]; ok && seen == v {
			continue
		}

		if err := s.opts.Client.SavePlan(ctx, a.ID().String(), a.PlanRecords(now)); err != nil {
			planSaves.WithLabelValues("error").Inc()
			s.logger.Warn("Failed to save plan", zap.String("agent", a.Name()), zap.Error(err))
			continue
		}
		planSaves.WithLabelValues("success").Inc()
		s.saved[a] = v
	}
}

// Run runs the scheduler and, when h is not nil, its health server until ctx
// is cancelled or either fails.
func Run(ctx context.Context, s *Scheduler, h *HealthServer) error {
	g, gctx := errgroup.WithContext(ctx)

	if h != nil {
		if err := h.Start(); err != nil {
			return err
		}
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return h.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		return s.Run(gctx)
	})

	return g.Wait()
}
