package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dyluth/lgoap/internal/agent"
	"github.com/dyluth/lgoap/internal/config"
	"github.com/dyluth/lgoap/internal/observability"
	"github.com/dyluth/lgoap/internal/printer"
	"github.com/dyluth/lgoap/internal/scheduler"
	"github.com/dyluth/lgoap/pkg/blackboard"
	"github.com/dyluth/lgoap/pkg/planner"
)

var (
	settingsPath string
	runDuration  time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run planning agents",
	Long: `Run a scheduler ticking one or more agents of the configured domain.

Runtime settings come from --settings (YAML), LGOAP_* environment variables
(e.g. LGOAP_SCHEDULER_AGENTS=4, LGOAP_REDIS_URL=redis://localhost:6379/0)
and the flags below, in increasing precedence.

With a Redis URL, instance-synced keys are shared with every other process
using the same namespace. /healthz and /metrics are served on the health address.`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&settingsPath, "settings", "", "Path to a runtime settings YAML file")
	runCmd.Flags().DurationVar(&runDuration, "duration", 0, "Stop after this long (0 = until interrupted)")
	runCmd.Flags().Int("agents", 1, "Number of agents")
	runCmd.Flags().Duration("tick-rate", 100*time.Millisecond, "Scheduler tick period")
	runCmd.Flags().String("health-addr", ":8080", "Address of the /healthz and /metrics server (empty disables it)")
	runCmd.Flags().String("redis-url", "", "Redis URL for synced keys and plan records")
	runCmd.Flags().String("namespace", "default", "Redis key namespace")
	runCmd.Flags().Bool("save-plans", false, "Write plan records to Redis")
	runCmd.Flags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.AddCommand(runCmd)
}

var runFlagKeys = map[string]string{
	"agents":      "scheduler.agents",
	"tick-rate":   "scheduler.tick_rate",
	"health-addr": "scheduler.health_addr",
	"save-plans":  "scheduler.save_plans",
	"redis-url":   "redis.url",
	"namespace":   "redis.namespace",
	"log-level":   "logger.level",
}

func runRun(cmd *cobra.Command, args []string) error {
	v := config.NewViper()
	for flag, key := range runFlagKeys {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return fmt.Errorf("failed to bind --%s: %w", flag, err)
		}
	}

	settings, err := config.LoadSettings(v, settingsPath)
	if err != nil {
		return printer.Error("Invalid runtime settings", err.Error(), []string{"Check --settings and LGOAP_* environment variables"})
	}

	observability.InitializeLogger(settings.Logger)
	logger := observability.Logger()
	defer logger.Sync()

	_, b, err := loadBundle()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmdContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if runDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, runDuration)
		defer cancel()
	}

	opts := scheduler.Options{
		TickRate:  settings.Scheduler.TickRate,
		SavePlans: settings.Scheduler.SavePlans,
		Logger:    logger.Named("scheduler"),
	}

	var client *blackboard.Client
	if settings.Redis.URL != "" {
		client, err = connectRedis(ctx, settings.Redis)
		if err != nil {
			return err
		}
		defer client.Close()
		opts.Client = client

		if b.Schema.Backends()&blackboard.BackendRedisSync != 0 {
			bridge := blackboard.NewSyncBridge(client, b.Schema, logger.Named("sync"))
			if err := bridge.Start(ctx); err != nil {
				return printer.Error("Failed to start Redis sync", err.Error(), nil)
			}
			defer bridge.Close()
			opts.Bridge = bridge
		} else {
			logger.Info("Schema does not require redis_sync, synced keys stay local", zap.String("schema", b.Schema.Name()))
		}
	}

	plannerSettings := planner.Settings{
		MaxFScore:   settings.Planner.MaxFScore,
		Synchronous: settings.Planner.Synchronous,
	}
	agents := make([]*agent.Agent, 0, settings.Scheduler.Agents)
	defer func() {
		for _, a := range agents {
			a.Close()
		}
	}()
	for i := 0; i < settings.Scheduler.Agents; i++ {
		a, err := agent.New(fmt.Sprintf("%s-%d", b.Domain.Name(), i+1), b.Domain, b.Tasks, plannerSettings, logger.Named("agent"))
		if err != nil {
			return printer.Error("Failed to create agent", err.Error(), nil)
		}
		agents = append(agents, a)
	}

	s, err := scheduler.New(agents, opts)
	if err != nil {
		return printer.Error("Failed to create scheduler", err.Error(), nil)
	}

	var health *scheduler.HealthServer
	if settings.Scheduler.HealthAddr != "" {
		health = scheduler.NewHealthServer(settings.Scheduler.HealthAddr, client, s, logger.Named("health"))
	}

	printer.Step("Running %d agent(s) of %s every %s\n", len(agents), b.Domain.Name(), settings.Scheduler.TickRate)
	if err := scheduler.Run(ctx, s, health); err != nil {
		return printer.Error("Scheduler failed", err.Error(), nil)
	}

	printer.Success("Stopped after %d frame(s), %d failed tick(s)\n", s.Frames(), s.Errors())
	return nil
}

func connectRedis(ctx context.Context, rs config.RedisSettings) (*blackboard.Client, error) {
	opts, err := redis.ParseURL(rs.URL)
	if err != nil {
		return nil, printer.Error("Invalid Redis URL", err.Error(), []string{"Use the form redis://host:port/db"})
	}

	if err := config.ValidateNamespace(rs.Namespace); err != nil {
		return nil, printer.Error("Invalid namespace", err.Error(), []string{"Use --namespace with a lowercase name like 'default'"})
	}

	client, err := blackboard.NewClient(opts, rs.Namespace)
	if err != nil {
		return nil, printer.Error("Failed to create Redis client", err.Error(), nil)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx); err != nil {
		client.Close()
		return nil, printer.ErrorWithContext(
			"Redis is not reachable",
			err.Error(),
			map[string]string{"URL": rs.URL},
			[]string{"Start Redis or unset --redis-url"},
		)
	}
	return client, nil
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
