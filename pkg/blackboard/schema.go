package blackboard

import (
	"bytes"
	"fmt"
	"sync"
	"weak"
)

// Schema is a compiled, flattened key set with a fixed byte layout.
// It is shared read-only by every Instance created from it. The only mutable
// state is the canonical copy of instance-synced values and the listener registry,
// both guarded by mu.
type Schema struct {
	name     string
	parent   *Schema
	backends Backend

	keys     []*KeyInfo // ordered by handle
	byName   map[string]*KeyInfo
	byHandle []*KeyInfo // indexed by handle; nil for bytes that do not start a key
	template buffer
	objects  *ObjectTable
	pinned   []ObjectHandle
	synced   bool

	mu        sync.Mutex
	canonical buffer
	listeners map[uint64]weak.Pointer[Instance]
	nextID    uint64
	hooks     map[uint64]SyncHook
	nextHook  uint64
	released  bool
}

// SyncHook observes local writes to instance-synced keys. value is a private copy.
type SyncHook func(key *KeyInfo, value []byte)

// Name returns the declaration name of the schema.
func (s *Schema) Name() string { return s.name }

// Parent returns the compiled parent schema, or nil for a root schema.
func (s *Schema) Parent() *Schema { return s.parent }

// Backends returns the capabilities the schema was compiled for.
func (s *Schema) Backends() Backend { return s.backends }

// Size returns the template size in bytes.
func (s *Schema) Size() int { return len(s.template) }

// Objects returns the object table backing ObjectRef keys of this schema.
func (s *Schema) Objects() *ObjectTable { return s.objects }

// Template returns a copy of the default-value template.
func (s *Schema) Template() []byte {
	return bytes.Clone(s.template)
}

// Keys returns the compiled keys ordered by handle.
func (s *Schema) Keys() []*KeyInfo {
	out := make([]*KeyInfo, len(s.keys))
	copy(out, s.keys)
	return out
}

// Key returns the compiled data of the named key.
func (s *Schema) Key(name string) (*KeyInfo, error) {
	k, ok := s.byName[name]
	if !ok {
		return nil, fmt.Errorf("schema %q: %w: %q", s.name, ErrKeyNotFound, name)
	}
	return k, nil
}

// Handle resolves a key name to its handle, for use with the unchecked accessors.
func (s *Schema) Handle(name string) (KeyHandle, error) {
	k, err := s.Key(name)
	if err != nil {
		return 0, err
	}
	return k.Handle, nil
}

// KeyAt returns the key starting at handle h, or nil.
func (s *Schema) KeyAt(h KeyHandle) *KeyInfo {
	if int(h) >= len(s.byHandle) {
		return nil
	}
	return s.byHandle[h]
}

// lookup resolves name and checks its type, for the validated accessors.
func (s *Schema) lookup(name string, t KeyType) (*KeyInfo, error) {
	k, err := s.Key(name)
	if err != nil {
		return nil, err
	}
	if k.Type != t {
		return nil, fmt.Errorf("schema %q: key %q is %s, not %s: %w", s.name, name, k.Type, t, ErrTypeMismatch)
	}
	return k, nil
}

// SyncedValue returns a copy of the canonical bytes of an instance-synced key.
func (s *Schema) SyncedValue(h KeyHandle) []byte {
	k := s.KeyAt(h)
	if k == nil {
		return nil
	}
	start, end := k.Range()

	s.mu.Lock()
	defer s.mu.Unlock()
	return bytes.Clone(s.canonical[start:end])
}

// Listeners returns the number of live registered instances.
func (s *Schema) Listeners() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, p := range s.listeners {
		if p.Value() == nil {
			delete(s.listeners, id)
			continue
		}
		n++
	}
	return n
}

// OnSyncedWrite registers a hook called after every local write that changes an
// instance-synced key. The returned function unregisters the hook.
func (s *Schema) OnSyncedWrite(hook SyncHook) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextHook++
	id := s.nextHook
	s.hooks[id] = hook
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.hooks, id)
	}
}

// NewInstance allocates a blackboard buffer conforming to the schema.
// The buffer starts as a copy of the canonical bytes: the template plus the
// current value of every instance-synced key.
func (s *Schema) NewInstance() *Instance {
	s.mu.Lock()
	defer s.mu.Unlock()

	inst := &Instance{schema: s}
	inst.buf = bytes.Clone(s.canonical)
	for _, k := range s.keys {
		if k.Type == KeyTypeObjectRef {
			s.objects.Retain(inst.buf.objectAt(k.Handle))
		}
	}

	s.nextID++
	inst.id = s.nextID
	if s.synced {
		s.listeners[inst.id] = weak.Make(inst)
	}
	return inst
}

// NewSnapshot allocates a plain buffer initialised with the template.
func (s *Schema) NewSnapshot() *Snapshot {
	return &Snapshot{cells: cells{buf: bytes.Clone(s.template)}, schema: s}
}

// ApplySynced writes value into the canonical copy of an instance-synced key and
// into every registered instance. It is the entry point for values that
// originate outside this process; hooks are not invoked.
func (s *Schema) ApplySynced(h KeyHandle, value []byte) error {
	k := s.KeyAt(h)
	if k == nil {
		return fmt.Errorf("schema %q: %w: handle %d", s.name, ErrKeyNotFound, h)
	}
	if !k.Traits.Has(TraitInstanceSynced) {
		return fmt.Errorf("schema %q: key %q is not instance-synced", s.name, k.Name)
	}
	if len(value) != k.Size() {
		return fmt.Errorf("schema %q: key %q expects %d bytes, got %d: %w", s.name, k.Name, k.Size(), len(value), ErrTypeMismatch)
	}

	s.broadcast(nil, k, value)
	return nil
}

// broadcast stores value as the canonical copy of k and pushes it to every
// listener except from. from is nil for remote updates.
func (s *Schema) broadcast(from *Instance, k *KeyInfo, value []byte) {
	start, end := k.Range()

	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return
	}

	if k.Type == KeyTypeObjectRef {
		old := s.canonical.objectAt(k.Handle)
		next := buffer(value).objectAt(0)
		s.objects.Retain(next)
		s.objects.Release(old)
	}
	copy(s.canonical[start:end], value)

	for id, p := range s.listeners {
		target := p.Value()
		if target == nil {
			delete(s.listeners, id)
			continue
		}
		if target == from {
			continue
		}
		target.receiveSynced(k, value)
	}

	var hooks []SyncHook
	if from != nil {
		hooks = make([]SyncHook, 0, len(s.hooks))
		for _, h := range s.hooks {
			hooks = append(hooks, h)
		}
	}
	s.mu.Unlock()

	for _, hook := range hooks {
		hook(k, bytes.Clone(value))
	}
}

func (s *Schema) deregister(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.listeners, id)
}

// Release unpins default object references and drops the listener registry.
// Instances created earlier keep working but no longer receive synced writes.
func (s *Schema) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released {
		return
	}
	s.released = true
	for _, h := range s.pinned {
		s.objects.Release(h)
	}
	s.pinned = nil
	for _, k := range s.keys {
		if k.Type == KeyTypeObjectRef {
			s.objects.Release(s.canonical.objectAt(k.Handle))
		}
	}
	s.listeners = map[uint64]weak.Pointer[Instance]{}
}
