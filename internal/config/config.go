package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dyluth/lgoap/internal/executor"
	"github.com/dyluth/lgoap/pkg/blackboard"
)

// FileVersion is the only authoring file version understood by Load.
const FileVersion = "1.0"

// File represents the top-level lgoap.yml authoring file
type File struct {
	Version string   `yaml:"version"`
	Schemas []Schema `yaml:"schemas"`
	Domain  Domain   `yaml:"domain"`
}

// Schema represents one blackboard schema declaration
type Schema struct {
	Name     string   `yaml:"name"`
	Parent   string   `yaml:"parent,omitempty"`   // Name of another schema in the same file
	Backends []string `yaml:"backends,omitempty"` // "interpreter" and/or "redis_sync" (default: interpreter)
	Keys     []Key    `yaml:"keys"`
}

// Key represents one blackboard key
type Key struct {
	Name    string `yaml:"name"`
	Type    string `yaml:"type"`              // bool, enum, float, int, object, quaternion, vector3
	Default any    `yaml:"default,omitempty"` // Scalar, or a [x, y, z] list for vectors and rotations
	Synced  bool   `yaml:"synced,omitempty"`  // Share the value across every instance of the schema
	Notify  bool   `yaml:"notify,omitempty"`  // Record unexpected changes (triggers a replan)
}

// Domain represents the layered goal/action hierarchy
type Domain struct {
	Name         string  `yaml:"name"`
	Schema       string  `yaml:"schema"`
	FallbackGoal string  `yaml:"fallback_goal,omitempty"`
	Goals        []Goal  `yaml:"goals"`
	Layers       []Layer `yaml:"layers"`
}

// Goal represents one layer-0 element
type Goal struct {
	Name       string  `yaml:"name"`
	Insistence []Score `yaml:"insistence"`
	Target     string  `yaml:"target"` // Condition string, e.g. "hasTarget && ammo > 0"
}

// Score contributes Weight when When holds (always, if When is empty)
type Score struct {
	When   string  `yaml:"when,omitempty"`
	Weight float32 `yaml:"weight"`
}

// Layer represents one action layer
type Layer struct {
	MaxPlanLength int      `yaml:"max_plan_length"`
	Fallback      []string `yaml:"fallback,omitempty"`
	Actions       []Action `yaml:"actions"`
}

// Action represents one action and the task that executes it
type Action struct {
	Name         string   `yaml:"name"`
	Abstract     bool     `yaml:"abstract,omitempty"`
	Precondition string   `yaml:"precondition,omitempty"`
	Cost         []Score  `yaml:"cost,omitempty"`
	Effect       []string `yaml:"effect,omitempty"` // e.g. "ammo -= 1", "hasTarget = true"
	Target       string   `yaml:"target,omitempty"` // Abstract actions only
	Task         string   `yaml:"task,omitempty"`   // instant (default), fail or wait(<duration>)
}

// Validate checks the file's structure. Conditions and effects are checked
// against the compiled schema by Build.
func (f *File) Validate() error {
	if f.Version != FileVersion {
		return fmt.Errorf("unsupported version: %s (expected %q)", f.Version, FileVersion)
	}

	if len(f.Schemas) == 0 {
		return fmt.Errorf("no schemas defined: at least one schema is required")
	}

	names := make(map[string]bool, len(f.Schemas))
	for _, s := range f.Schemas {
		if s.Name == "" {
			return fmt.Errorf("schema name cannot be empty")
		}
		if names[s.Name] {
			return fmt.Errorf("schema %q is declared more than once", s.Name)
		}
		names[s.Name] = true
	}

	for _, s := range f.Schemas {
		if err := s.validate(names); err != nil {
			return fmt.Errorf("schema %q: %w", s.Name, err)
		}
	}

	if err := f.Domain.validate(names); err != nil {
		return fmt.Errorf("domain %q: %w", f.Domain.Name, err)
	}

	return nil
}

func (s *Schema) validate(schemas map[string]bool) error {
	if s.Parent != "" && !schemas[s.Parent] {
		return fmt.Errorf("parent schema %q is not declared", s.Parent)
	}

	if _, err := parseBackends(s.Backends); err != nil {
		return err
	}

	for i, k := range s.Keys {
		if k.Name == "" {
			return fmt.Errorf("keys[%d]: name cannot be empty", i)
		}
		t, err := blackboard.ParseKeyType(k.Type)
		if err != nil {
			return fmt.Errorf("key %q: %w", k.Name, err)
		}
		if _, err := keyDefault(t, k.Default); err != nil {
			return fmt.Errorf("key %q: %w", k.Name, err)
		}
	}

	return nil
}

func (d *Domain) validate(schemas map[string]bool) error {
	if d.Name == "" {
		return fmt.Errorf("name is required")
	}
	if d.Schema == "" {
		return fmt.Errorf("schema is required")
	}
	if !schemas[d.Schema] {
		return fmt.Errorf("schema %q is not declared", d.Schema)
	}
	if len(d.Layers) == 0 {
		return fmt.Errorf("at least one action layer is required")
	}

	for i, l := range d.Layers {
		for _, a := range l.Actions {
			if _, err := executor.ParseTask(a.Task); err != nil {
				return fmt.Errorf("layers[%d].actions %q: %w", i, a.Name, err)
			}
		}
	}

	return nil
}

// Load reads and validates an lgoap.yml authoring file
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	return Parse(data)
}

// Parse decodes and validates an authoring file held in memory
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &f, nil
}
