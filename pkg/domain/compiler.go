package domain

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/dyluth/lgoap/pkg/function"
)

// Compiler turns declarations into compiled domains. Results are cached per
// declaration: compiling the same declaration again returns the same Domain.
// Declarations must not be mutated after they have been compiled.
//
// The compiler is safe for concurrent use.
type Compiler struct {
	mu    sync.Mutex
	cache map[*Declaration]*Domain
}

// NewCompiler creates an empty compiler.
func NewCompiler() *Compiler {
	return &Compiler{cache: make(map[*Declaration]*Domain)}
}

// Compile validates decl and lays it out into a single buffer.
// A failed validation returns ValidationErrors, which wraps ErrInvalidDomain.
func (c *Compiler) Compile(decl *Declaration) (*Domain, error) {
	if decl == nil {
		return nil, fmt.Errorf("domain declaration cannot be nil: %w", ErrInvalidDomain)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if d, ok := c.cache[decl]; ok {
		return d, nil
	}

	parts, errs := compileParts(decl)
	if len(errs) > 0 {
		return nil, errs
	}

	d, err := Load(decl.Schema, encode(parts))
	if err != nil {
		return nil, fmt.Errorf("domain %q: %w", decl.Name, err)
	}
	d.name = decl.Name
	d.goalNames = parts.goalNames
	d.actionNames = parts.actionNames

	c.cache[decl] = d
	return d, nil
}

// Validate collects every problem in decl instead of stopping at the first one.
// An empty result means Compile will succeed.
func Validate(decl *Declaration) []ValidationError {
	if decl == nil {
		return []ValidationError{{Path: "domain", Err: fmt.Errorf("declaration cannot be nil")}}
	}
	_, errs := compileParts(decl)
	return errs
}

type compiledGoal struct {
	insistence function.Collection
	target     function.Collection
}

type compiledAction struct {
	flags  uint8
	pre    function.Collection
	cost   function.Collection
	effect function.Collection
	target function.Collection
}

type compiledLayer struct {
	maxPlanLength int
	fallback      []uint16
	actions       []compiledAction
}

type parts struct {
	goals       []compiledGoal
	layers      []compiledLayer
	goalNames   []string
	actionNames [][]string
}

const flagAbstract uint8 = 1

// compileParts compiles every collection of decl, collecting errors.
func compileParts(decl *Declaration) (*parts, ValidationErrors) {
	var errs ValidationErrors
	fail := func(path string, format string, args ...any) {
		errs = append(errs, ValidationError{Path: path, Err: fmt.Errorf(format, args...)})
	}
	wrap := func(path string, err error) {
		errs = append(errs, ValidationError{Path: path, Err: err})
	}

	if decl.Name == "" {
		fail("name", "domain name cannot be empty")
	}
	if decl.Schema == nil {
		fail("schema", "schema cannot be nil")
		return nil, errs
	}
	if len(decl.Layers) == 0 {
		fail("layers", "at least one action layer is required")
	}
	if len(decl.Layers)+1 > math.MaxUint16 {
		fail("layers", "too many layers: %d", len(decl.Layers))
	}

	s := decl.Schema
	p := &parts{}

	fallbackName := decl.FallbackGoal
	if fallbackName == "" {
		fallbackName = DefaultFallbackGoal
	}
	p.goalNames = append(p.goalNames, fallbackName)
	p.goals = append(p.goals, compiledGoal{insistence: function.Empty(), target: function.Empty()})

	seen := map[string]bool{fallbackName: true}
	for i, g := range decl.Goals {
		path := fmt.Sprintf("goals[%d]", i)
		if g.Name == "" {
			fail(path+".name", "goal name cannot be empty")
		} else if seen[g.Name] {
			fail(path+".name", "duplicate goal %q", g.Name)
		}
		seen[g.Name] = true

		insistence, err := function.CompileScoreCalculators(s, g.Insistence)
		if err != nil {
			wrap(path+".insistence", err)
		}
		target, err := function.CompileDecorators(s, g.Target)
		if err != nil {
			wrap(path+".target", err)
		}
		p.goalNames = append(p.goalNames, g.Name)
		p.goals = append(p.goals, compiledGoal{insistence: insistence, target: target})
	}

	for li, l := range decl.Layers {
		layerPath := fmt.Sprintf("layers[%d]", li)
		last := li == len(decl.Layers)-1

		if l.MaxPlanLength < 1 || l.MaxPlanLength > math.MaxUint16 {
			fail(layerPath+".max_plan_length", "must be between 1 and %d, got %d", math.MaxUint16, l.MaxPlanLength)
		}
		if len(l.Actions) == 0 {
			fail(layerPath+".actions", "layer has no actions")
		}

		cl := compiledLayer{maxPlanLength: l.MaxPlanLength}
		names := make([]string, 0, len(l.Actions))
		index := make(map[string]int, len(l.Actions))

		for ai, a := range l.Actions {
			path := fmt.Sprintf("%s.actions[%d]", layerPath, ai)
			if a.Name == "" {
				fail(path+".name", "action name cannot be empty")
			} else if _, dup := index[a.Name]; dup {
				fail(path+".name", "duplicate action %q", a.Name)
			} else {
				index[a.Name] = ai
			}
			if a.Abstract && last {
				fail(path, "abstract action %q in the last layer has nothing to refine it", a.Name)
			}
			if !a.Abstract && len(a.Target) > 0 {
				fail(path+".target", "target on concrete action %q is never planned", a.Name)
			}

			ca := compiledAction{}
			if a.Abstract {
				ca.flags |= flagAbstract
			}
			var err error
			if ca.pre, err = function.CompileDecorators(s, a.Precondition); err != nil {
				wrap(path+".precondition", err)
			}
			if ca.cost, err = function.CompileScoreCalculators(s, a.Cost); err != nil {
				wrap(path+".cost", err)
			}
			if ca.effect, err = function.CompileEffectors(s, a.Effect); err != nil {
				wrap(path+".effect", err)
			}
			if ca.target, err = function.CompileDecorators(s, a.Target); err != nil {
				wrap(path+".target", err)
			}
			cl.actions = append(cl.actions, ca)
			names = append(names, a.Name)
		}

		if len(l.Fallback) > l.MaxPlanLength {
			fail(layerPath+".fallback", "fallback plan of %d actions exceeds max plan length %d", len(l.Fallback), l.MaxPlanLength)
		}
		for fi, name := range l.Fallback {
			ai, ok := index[name]
			if !ok {
				fail(fmt.Sprintf("%s.fallback[%d]", layerPath, fi), "unknown action %q", name)
				continue
			}
			cl.fallback = append(cl.fallback, uint16(ai))
		}

		p.layers = append(p.layers, cl)
		p.actionNames = append(p.actionNames, names)
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return p, nil
}

// encode lays out compiled parts into the domain buffer format.
func encode(p *parts) []byte {
	buf := make([]byte, 12, 256)
	binary.LittleEndian.PutUint32(buf[4:], uint32(len(p.layers)+1))
	binary.LittleEndian.PutUint32(buf[8:], uint32(len(p.goals)))

	for _, g := range p.goals {
		buf = append(buf, g.insistence...)
	}

	for li, l := range p.layers {
		start := len(buf)
		buf = binary.LittleEndian.AppendUint32(buf, 0) // patched below
		buf = binary.LittleEndian.AppendUint16(buf, uint16(l.maxPlanLength))
		buf = binary.LittleEndian.AppendUint16(buf, uint16(len(l.fallback)))
		for _, a := range l.fallback {
			buf = binary.LittleEndian.AppendUint16(buf, a)
		}

		// Targets are indexed by the elements of the layer above
		if li == 0 {
			buf = binary.LittleEndian.AppendUint32(buf, uint32(len(p.goals)))
			for gi, g := range p.goals {
				kind := TargetReal
				if gi == 0 {
					kind = TargetFallback
				}
				buf = append(buf, byte(kind))
				buf = append(buf, g.target...)
			}
		} else {
			parent := p.layers[li-1]
			buf = binary.LittleEndian.AppendUint32(buf, uint32(len(parent.actions)))
			for _, a := range parent.actions {
				if a.flags&flagAbstract != 0 {
					buf = append(buf, byte(TargetReal))
					buf = append(buf, a.target...)
				} else {
					buf = append(buf, byte(TargetFake))
					buf = append(buf, function.Empty()...)
				}
			}
		}

		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(l.actions)))
		for _, a := range l.actions {
			buf = append(buf, a.flags)
			buf = append(buf, a.pre...)
			buf = append(buf, a.cost...)
			buf = append(buf, a.effect...)
		}

		binary.LittleEndian.PutUint32(buf[start:], uint32(len(buf)-start))
	}

	binary.LittleEndian.PutUint32(buf, uint32(len(buf)))
	return buf
}
