package config

import (
	"fmt"
	"math"

	"github.com/dyluth/lgoap/internal/executor"
	"github.com/dyluth/lgoap/pkg/blackboard"
	"github.com/dyluth/lgoap/pkg/domain"
	"github.com/dyluth/lgoap/pkg/function"
)

// Bundle is everything compiled from one authoring file.
type Bundle struct {
	// Schemas by name, including ancestors of the domain's schema
	Schemas map[string]*blackboard.Schema

	// Schema the domain was compiled against
	Schema *blackboard.Schema

	Domain *domain.Domain

	// Tasks binds every concrete action to its task
	Tasks *executor.Registry
}

// Build compiles the file's schemas and domain and binds the action tasks.
func (f *File) Build() (*Bundle, error) {
	decls := make(map[string]*blackboard.SchemaDeclaration, len(f.Schemas))
	for _, s := range f.Schemas {
		decl, err := s.declaration()
		if err != nil {
			return nil, fmt.Errorf("schema %q: %w", s.Name, err)
		}
		decls[s.Name] = decl
	}
	for _, s := range f.Schemas {
		if s.Parent != "" {
			decls[s.Name].Parent = decls[s.Parent]
		}
	}

	compiler := blackboard.NewCompiler()
	schemas := make(map[string]*blackboard.Schema, len(decls))
	for _, s := range f.Schemas {
		compiled, err := compiler.Compile(decls[s.Name])
		if err != nil {
			return nil, fmt.Errorf("failed to compile schema: %w", err)
		}
		schemas[s.Name] = compiled
	}

	schema, ok := schemas[f.Domain.Schema]
	if !ok {
		return nil, fmt.Errorf("domain %q: schema %q is not declared", f.Domain.Name, f.Domain.Schema)
	}

	decl, err := f.Domain.declaration(schema)
	if err != nil {
		return nil, fmt.Errorf("domain %q: %w", f.Domain.Name, err)
	}

	d, err := domain.NewCompiler().Compile(decl)
	if err != nil {
		return nil, fmt.Errorf("failed to compile domain: %w", err)
	}

	tasks, err := f.Domain.tasks()
	if err != nil {
		return nil, fmt.Errorf("domain %q: %w", f.Domain.Name, err)
	}

	return &Bundle{Schemas: schemas, Schema: schema, Domain: d, Tasks: tasks}, nil
}

func (s *Schema) declaration() (*blackboard.SchemaDeclaration, error) {
	backends, err := parseBackends(s.Backends)
	if err != nil {
		return nil, err
	}

	keys := make([]blackboard.KeyDeclaration, 0, len(s.Keys))
	for _, k := range s.Keys {
		t, err := blackboard.ParseKeyType(k.Type)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k.Name, err)
		}
		def, err := keyDefault(t, k.Default)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k.Name, err)
		}

		var traits blackboard.Traits
		if k.Synced {
			traits |= blackboard.TraitInstanceSynced
		}
		if k.Notify {
			traits |= blackboard.TraitNotifyOnUnexpectedChange
		}

		keys = append(keys, blackboard.KeyDeclaration{Name: k.Name, Type: t, Traits: traits, Default: def})
	}

	return &blackboard.SchemaDeclaration{Name: s.Name, Backends: backends, Keys: keys}, nil
}

func (d *Domain) declaration(s *blackboard.Schema) (*domain.Declaration, error) {
	decl := &domain.Declaration{
		Name:         d.Name,
		Schema:       s,
		FallbackGoal: d.FallbackGoal,
		Goals:        make([]domain.Goal, 0, len(d.Goals)),
		Layers:       make([]domain.Layer, 0, len(d.Layers)),
	}

	for _, g := range d.Goals {
		insistence, err := scores(s, g.Insistence)
		if err != nil {
			return nil, fmt.Errorf("goal %q insistence: %w", g.Name, err)
		}
		target, err := conditions(s, g.Target)
		if err != nil {
			return nil, fmt.Errorf("goal %q target: %w", g.Name, err)
		}
		decl.Goals = append(decl.Goals, domain.Goal{Name: g.Name, Insistence: insistence, Target: target})
	}

	for i, l := range d.Layers {
		layer := domain.Layer{
			MaxPlanLength: l.MaxPlanLength,
			Fallback:      l.Fallback,
			Actions:       make([]domain.Action, 0, len(l.Actions)),
		}
		for _, a := range l.Actions {
			action, err := a.declaration(s)
			if err != nil {
				return nil, fmt.Errorf("layers[%d] action %q: %w", i, a.Name, err)
			}
			layer.Actions = append(layer.Actions, action)
		}
		decl.Layers = append(decl.Layers, layer)
	}

	return decl, nil
}

func (a *Action) declaration(s *blackboard.Schema) (domain.Action, error) {
	pre, err := conditions(s, a.Precondition)
	if err != nil {
		return domain.Action{}, fmt.Errorf("precondition: %w", err)
	}
	cost, err := scores(s, a.Cost)
	if err != nil {
		return domain.Action{}, fmt.Errorf("cost: %w", err)
	}
	effect, err := function.ParseEffectors(s, a.Effect)
	if err != nil {
		return domain.Action{}, fmt.Errorf("effect: %w", err)
	}
	target, err := conditions(s, a.Target)
	if err != nil {
		return domain.Action{}, fmt.Errorf("target: %w", err)
	}

	return domain.Action{
		Name:         a.Name,
		Abstract:     a.Abstract,
		Precondition: pre,
		Cost:         cost,
		Effect:       effect,
		Target:       target,
	}, nil
}

// tasks binds the concrete actions. An action name that appears in several
// layers must use the same task everywhere.
func (d *Domain) tasks() (*executor.Registry, error) {
	r := executor.NewRegistry()
	bound := make(map[string]string)

	for _, l := range d.Layers {
		for _, a := range l.Actions {
			if a.Abstract {
				continue
			}
			if prev, ok := bound[a.Name]; ok {
				if prev != a.Task {
					return nil, fmt.Errorf("action %q is bound to both %q and %q", a.Name, prev, a.Task)
				}
				continue
			}
			if err := r.Bind(a.Name, a.Task); err != nil {
				return nil, err
			}
			bound[a.Name] = a.Task
		}
	}

	return r, nil
}

func conditions(s *blackboard.Schema, src string) ([]function.Decorator, error) {
	if src == "" {
		return nil, nil
	}
	return function.ParseConditions(s, src)
}

func scores(s *blackboard.Schema, in []Score) ([]function.ScoreCalculator, error) {
	out := make([]function.ScoreCalculator, 0, len(in))
	for _, sc := range in {
		if sc.When == "" {
			out = append(out, function.Weighted(sc.Weight))
			continue
		}
		d, err := function.ParseCondition(s, sc.When)
		if err != nil {
			return nil, err
		}
		out = append(out, function.ScoreCalculator{Condition: d.Condition, Invert: d.Invert, Weight: sc.Weight})
	}
	return out, nil
}

func parseBackends(names []string) (blackboard.Backend, error) {
	var b blackboard.Backend
	for _, name := range names {
		switch name {
		case "interpreter":
			b |= blackboard.BackendInterpreter
		case "redis_sync":
			b |= blackboard.BackendRedisSync
		default:
			return 0, fmt.Errorf("unknown backend %q (expected interpreter or redis_sync)", name)
		}
	}
	return b, nil
}

// keyDefault converts a YAML-decoded default into the Go type blackboard
// expects for t.
func keyDefault(t blackboard.KeyType, v any) (any, error) {
	if v == nil {
		return nil, nil
	}

	switch t {
	case blackboard.KeyTypeBool:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("default %v is not a bool", v)
		}
		return b, nil

	case blackboard.KeyTypeEnum8:
		n, ok := v.(int)
		if !ok || n < 0 || n > math.MaxUint8 {
			return nil, fmt.Errorf("default %v is not an enum value in [0, 255]", v)
		}
		return uint8(n), nil

	case blackboard.KeyTypeInt:
		n, ok := v.(int)
		if !ok || n < math.MinInt32 || n > math.MaxInt32 {
			return nil, fmt.Errorf("default %v is not a 32-bit integer", v)
		}
		return int32(n), nil

	case blackboard.KeyTypeFloat:
		f, ok := number(v)
		if !ok {
			return nil, fmt.Errorf("default %v is not a number", v)
		}
		return f, nil

	case blackboard.KeyTypeObjectRef:
		return v, nil

	case blackboard.KeyTypeVector3, blackboard.KeyTypeQuaternion:
		list, ok := v.([]any)
		if !ok || len(list) != 3 {
			return nil, fmt.Errorf("default %v is not a list of three numbers", v)
		}
		var c [3]float32
		for i, item := range list {
			if c[i], ok = number(item); !ok {
				return nil, fmt.Errorf("default %v is not a list of three numbers", v)
			}
		}
		if t == blackboard.KeyTypeVector3 {
			return blackboard.Vector3{X: c[0], Y: c[1], Z: c[2]}, nil
		}
		return blackboard.Rotation{Pitch: c[0], Yaw: c[1], Roll: c[2]}, nil
	}

	return nil, fmt.Errorf("unsupported key type %s", t)
}

func number(v any) (float32, bool) {
	switch n := v.(type) {
	case int:
		return float32(n), true
	case float64:
		return float32(n), true
	default:
		return 0, false
	}
}
