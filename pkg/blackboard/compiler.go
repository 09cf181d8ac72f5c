package blackboard

import (
	"bytes"
	"fmt"
	"math"
	"sync"
	"weak"
)

// sizeBuckets is the layout order: larger keys first so no padding is needed.
var sizeBuckets = []int{12, 4, 1}

// Compiler turns schema declarations into compiled schemas.
// Results are cached per declaration, so compiling the same declaration again
// is a no-op that returns the existing Schema. Declarations must not be
// mutated after they have been compiled.
//
// The compiler is safe for concurrent use.
type Compiler struct {
	mu    sync.Mutex
	cache map[*SchemaDeclaration]*Schema
}

// NewCompiler creates an empty compiler.
func NewCompiler() *Compiler {
	return &Compiler{cache: make(map[*SchemaDeclaration]*Schema)}
}

// Compile flattens decl and its ancestors into a Schema.
//
// Errors (all wrapped, test with errors.Is):
//   - ErrCyclicHierarchy if the parent chain revisits a declaration
//   - ErrUnsupportedBackend if a schema requires a backend its parent lacks
//   - ErrInvalidKey for empty names, invalid type tags or mismatched defaults
//   - ErrDuplicateKey if a name appears twice in the flattened chain
func (c *Compiler) Compile(decl *SchemaDeclaration) (*Schema, error) {
	if decl == nil {
		return nil, fmt.Errorf("schema declaration cannot be nil")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Walk the chain before recursing so a cycle cannot recurse forever
	seen := make(map[*SchemaDeclaration]bool)
	for d := decl; d != nil; d = d.Parent {
		if seen[d] {
			return nil, fmt.Errorf("schema %q: %w via %q", decl.Name, ErrCyclicHierarchy, d.Name)
		}
		seen[d] = true
	}

	return c.compileLocked(decl)
}

func (c *Compiler) compileLocked(decl *SchemaDeclaration) (*Schema, error) {
	if s, ok := c.cache[decl]; ok {
		return s, nil
	}

	var parent *Schema
	if decl.Parent != nil {
		p, err := c.compileLocked(decl.Parent)
		if err != nil {
			return nil, err
		}
		parent = p
	}

	backends := decl.Backends
	if backends == 0 {
		backends = BackendInterpreter
	}
	if parent != nil && backends&^parent.backends != 0 {
		return nil, fmt.Errorf("schema %q requires backends %b but parent %q only supports %b: %w",
			decl.Name, backends, parent.name, parent.backends, ErrUnsupportedBackend)
	}

	// Flatten root -> leaf
	var chain []*SchemaDeclaration
	for d := decl; d != nil; d = d.Parent {
		chain = append([]*SchemaDeclaration{d}, chain...)
	}

	var flat []KeyDeclaration
	owner := make(map[string]string)
	for _, d := range chain {
		for _, k := range d.Keys {
			if err := k.Validate(); err != nil {
				return nil, fmt.Errorf("schema %q: %w: %v", d.Name, ErrInvalidKey, err)
			}
			if prev, exists := owner[k.Name]; exists {
				return nil, fmt.Errorf("schema %q: key %q already declared by %q: %w", d.Name, k.Name, prev, ErrDuplicateKey)
			}
			owner[k.Name] = d.Name
			flat = append(flat, k)
		}
	}

	s := layout(decl.Name, flat)
	if len(s.template) > math.MaxUint16 {
		return nil, fmt.Errorf("schema %q: layout of %d bytes exceeds %d: %w", decl.Name, len(s.template), math.MaxUint16, ErrInvalidKey)
	}
	s.parent = parent
	s.backends = backends

	c.cache[decl] = s
	return s, nil
}

// layout assigns offsets bucket by bucket and writes defaults into the template.
func layout(name string, flat []KeyDeclaration) *Schema {
	s := &Schema{
		name:      name,
		byName:    make(map[string]*KeyInfo, len(flat)),
		objects:   NewObjectTable(),
		listeners: make(map[uint64]weak.Pointer[Instance]),
		hooks:     make(map[uint64]SyncHook),
	}

	total := 0
	for _, k := range flat {
		total += k.Type.Size()
	}
	s.template = make(buffer, total)
	s.byHandle = make([]*KeyInfo, total)

	offset := 0
	for _, size := range sizeBuckets {
		for _, k := range flat {
			if k.Type.Size() != size {
				continue
			}
			info := &KeyInfo{
				Name:   k.Name,
				Type:   k.Type,
				Traits: k.Traits,
				Handle: KeyHandle(offset),
			}
			s.keys = append(s.keys, info)
			s.byName[k.Name] = info
			if offset < total {
				s.byHandle[offset] = info
			}
			if k.Traits.Has(TraitInstanceSynced) {
				s.synced = true
			}
			s.writeDefault(info, k.Default)
			offset += size
		}
	}

	s.canonical = bytes.Clone(s.template)
	for _, h := range s.pinned {
		s.objects.Retain(h)
	}
	return s
}

func (s *Schema) writeDefault(k *KeyInfo, v any) {
	if v == nil {
		return
	}

	switch k.Type {
	case KeyTypeBool:
		s.template.putBool(k.Handle, v.(bool))
	case KeyTypeEnum8:
		s.template.putEnum(k.Handle, v.(uint8))
	case KeyTypeFloat:
		s.template.putFloat(k.Handle, v.(float32))
	case KeyTypeInt:
		s.template.putInt(k.Handle, v.(int32))
	case KeyTypeObjectRef:
		h := s.objects.Add(v)
		s.pinned = append(s.pinned, h)
		s.template.putObject(k.Handle, h)
	case KeyTypeQuaternion:
		s.template.putRotation(k.Handle, v.(Rotation))
	case KeyTypeVector3:
		s.template.putVector(k.Handle, v.(Vector3))
	}
}
