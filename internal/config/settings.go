package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable that overrides a setting,
// e.g. LGOAP_SCHEDULER_TICK_RATE.
const EnvPrefix = "LGOAP"

const (
	// MaxNamespaceLength bounds the Redis namespace
	MaxNamespaceLength = 63
)

var (
	// NamespacePattern is the pattern for valid Redis namespaces.
	// Lowercase alphanumeric, hyphens allowed (but not at start/end). Colons
	// would break the lgoap:{namespace}:... key layout.
	NamespacePattern = regexp.MustCompile(`^[a-z0-9]([-a-z0-9]*[a-z0-9])?$`)
)

// ValidateNamespace checks if a Redis namespace is valid.
func ValidateNamespace(name string) error {
	if name == "" {
		return fmt.Errorf("namespace cannot be empty")
	}

	if len(name) > MaxNamespaceLength {
		return fmt.Errorf("namespace too long: %d characters (max: %d)", len(name), MaxNamespaceLength)
	}

	if !NamespacePattern.MatchString(name) {
		return fmt.Errorf("invalid namespace '%s': must be lowercase alphanumeric with hyphens (not at start/end)", name)
	}

	return nil
}

// Settings holds the runtime settings of the lgoap process.
type Settings struct {
	Logger    LoggerSettings    `mapstructure:"logger" yaml:"logger"`
	Scheduler SchedulerSettings `mapstructure:"scheduler" yaml:"scheduler"`
	Redis     RedisSettings     `mapstructure:"redis" yaml:"redis"`
	Planner   PlannerSettings   `mapstructure:"planner" yaml:"planner"`
}

// LoggerSettings configures the zap logger.
type LoggerSettings struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Format     string `mapstructure:"format" yaml:"format"` // console or json
	LogFile    string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize    int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// SchedulerSettings configures the agent tick loop.
type SchedulerSettings struct {
	TickRate   time.Duration `mapstructure:"tick_rate" yaml:"tick_rate"`
	Agents     int           `mapstructure:"agents" yaml:"agents"`
	HealthAddr string        `mapstructure:"health_addr" yaml:"health_addr"`
	SavePlans  bool          `mapstructure:"save_plans" yaml:"save_plans"`
}

// RedisSettings configures instance-synced key sharing. An empty URL disables it.
type RedisSettings struct {
	URL       string `mapstructure:"url" yaml:"url"`
	Namespace string `mapstructure:"namespace" yaml:"namespace"`
}

// PlannerSettings mirrors planner.Settings.
type PlannerSettings struct {
	MaxFScore   float32 `mapstructure:"max_f_score" yaml:"max_f_score"`
	Synchronous bool    `mapstructure:"synchronous" yaml:"synchronous"`
}

// SetDefaults initializes default values for every setting.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Scheduler --
	v.SetDefault("scheduler.tick_rate", "100ms")
	v.SetDefault("scheduler.agents", 1)
	v.SetDefault("scheduler.health_addr", ":8080")
	v.SetDefault("scheduler.save_plans", false)

	// -- Redis --
	v.SetDefault("redis.url", "")
	v.SetDefault("redis.namespace", "default")

	// -- Planner --
	v.SetDefault("planner.max_f_score", 0)
	v.SetDefault("planner.synchronous", false)
}

// NewViper returns a viper instance with defaults and LGOAP_* environment
// overrides bound.
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// LoadSettings reads the optional settings file into v and unmarshals the result.
func LoadSettings(v *viper.Viper, path string) (*Settings, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading settings file: %w", err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}

	return &s, nil
}

// Validate checks the settings' ranges.
func (s *Settings) Validate() error {
	switch s.Logger.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logger.format must be console or json, got %q", s.Logger.Format)
	}

	if s.Scheduler.TickRate <= 0 {
		return fmt.Errorf("scheduler.tick_rate must be positive, got %s", s.Scheduler.TickRate)
	}

	if s.Scheduler.Agents < 1 {
		return fmt.Errorf("scheduler.agents must be at least 1, got %d", s.Scheduler.Agents)
	}

	if s.Scheduler.SavePlans && s.Redis.URL == "" {
		return fmt.Errorf("scheduler.save_plans requires redis.url")
	}

	if s.Redis.URL != "" {
		if err := ValidateNamespace(s.Redis.Namespace); err != nil {
			return fmt.Errorf("redis.namespace: %w", err)
		}
	}

	return nil
}
