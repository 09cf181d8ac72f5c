package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSettings_Defaults(t *testing.T) {
	s, err := LoadSettings(NewViper(), "")
	require.NoError(t, err)

	assert.Equal(t, "info", s.Logger.Level)
	assert.Equal(t, "console", s.Logger.Format)
	assert.Equal(t, 100*time.Millisecond, s.Scheduler.TickRate)
	assert.Equal(t, 1, s.Scheduler.Agents)
	assert.Equal(t, ":8080", s.Scheduler.HealthAddr)
	assert.Empty(t, s.Redis.URL)
	assert.Equal(t, "default", s.Redis.Namespace)
	assert.Zero(t, s.Planner.MaxFScore)
	assert.False(t, s.Planner.Synchronous)
}

func TestLoadSettings_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	content := `logger:
  level: debug
  format: json
scheduler:
  tick_rate: 50ms
  agents: 4
planner:
  max_f_score: 250
  synchronous: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	s, err := LoadSettings(NewViper(), path)
	require.NoError(t, err)

	assert.Equal(t, "debug", s.Logger.Level)
	assert.Equal(t, "json", s.Logger.Format)
	assert.Equal(t, 50*time.Millisecond, s.Scheduler.TickRate)
	assert.Equal(t, 4, s.Scheduler.Agents)
	assert.Equal(t, float32(250), s.Planner.MaxFScore)
	assert.True(t, s.Planner.Synchronous)
	assert.Equal(t, 100, s.Logger.MaxSize, "unset values keep their defaults")
}

func TestLoadSettings_Environment(t *testing.T) {
	t.Setenv("LGOAP_SCHEDULER_AGENTS", "8")
	t.Setenv("LGOAP_REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("LGOAP_REDIS_NAMESPACE", "arena")

	s, err := LoadSettings(NewViper(), "")
	require.NoError(t, err)

	assert.Equal(t, 8, s.Scheduler.Agents)
	assert.Equal(t, "redis://localhost:6379/0", s.Redis.URL)
	assert.Equal(t, "arena", s.Redis.Namespace)
}

func TestLoadSettings_MissingFile(t *testing.T) {
	_, err := LoadSettings(NewViper(), "/nonexistent/settings.yaml")
	assert.ErrorContains(t, err, "error reading settings file")
}

func TestSettings_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(s *Settings)
		want   string
	}{
		{"format", func(s *Settings) { s.Logger.Format = "xml" }, "logger.format"},
		{"tick rate", func(s *Settings) { s.Scheduler.TickRate = 0 }, "scheduler.tick_rate"},
		{"agents", func(s *Settings) { s.Scheduler.Agents = 0 }, "scheduler.agents"},
		{"save plans without redis", func(s *Settings) { s.Scheduler.SavePlans = true }, "requires redis.url"},
		{"namespace", func(s *Settings) {
			s.Redis.URL = "redis://localhost:6379"
			s.Redis.Namespace = ""
		}, "redis.namespace: namespace cannot be empty"},
		{"namespace with colon", func(s *Settings) {
			s.Redis.URL = "redis://localhost:6379"
			s.Redis.Namespace = "a:b"
		}, "invalid namespace 'a:b'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := LoadSettings(NewViper(), "")
			require.NoError(t, err)
			tt.mutate(s)
			assert.ErrorContains(t, s.Validate(), tt.want)
		})
	}
}

func TestValidateNamespace(t *testing.T) {
	valid := []string{"default", "a", "arena-2", strings.Repeat("x", MaxNamespaceLength)}
	for _, name := range valid {
		assert.NoError(t, ValidateNamespace(name), name)
	}

	invalid := []string{"", "-arena", "arena-", "Arena", "a_b", "a:b", strings.Repeat("x", MaxNamespaceLength+1)}
	for _, name := range invalid {
		assert.Error(t, ValidateNamespace(name), name)
	}
}
