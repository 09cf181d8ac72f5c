package executor

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Registry maps action names to task factories.
// It is safe for concurrent use; agents share one registry.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register binds an action name to a factory.
func (r *Registry) Register(action string, f Factory) error {
	if action == "" {
		return fmt.Errorf("action name cannot be empty")
	}
	if f == nil {
		return fmt.Errorf("action %q: factory cannot be nil", action)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[action]; exists {
		return fmt.Errorf("action %q is already registered", action)
	}
	r.factories[action] = f
	return nil
}

// Bind parses a built-in task spec and registers it for action.
func (r *Registry) Bind(action, spec string) error {
	f, err := ParseTask(spec)
	if err != nil {
		return fmt.Errorf("action %q: %w", action, err)
	}
	return r.Register(action, f)
}

// Lookup returns the factory bound to action.
func (r *Registry) Lookup(action string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[action]
	return f, ok
}

// Actions returns the registered action names in sorted order.
func (r *Registry) Actions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParseTask parses a built-in task spec: "instant" (the default for an empty
// spec), "fail" or "wait(<duration>)" with a time.ParseDuration duration.
func ParseTask(spec string) (Factory, error) {
	spec = strings.TrimSpace(spec)

	switch spec {
	case "", "instant":
		return Instant, nil
	case "fail":
		return Fail, nil
	}

	if arg, ok := strings.CutPrefix(spec, "wait("); ok {
		arg, ok = strings.CutSuffix(arg, ")")
		if !ok {
			return nil, fmt.Errorf("task %q: missing closing parenthesis", spec)
		}
		d, err := time.ParseDuration(strings.TrimSpace(arg))
		if err != nil {
			return nil, fmt.Errorf("task %q: %w", spec, err)
		}
		if d < 0 {
			return nil, fmt.Errorf("task %q: duration cannot be negative", spec)
		}
		return Wait(d), nil
	}

	return nil, fmt.Errorf("unknown task %q (expected instant, fail or wait(<duration>))", spec)
}
