package blackboard

import "sync"

// ObjectHandle is the 4-byte value stored in an ObjectRef slot. Zero means nil.
type ObjectHandle uint32

// ObjectTable keeps Go values alive while they are referenced only through
// handles written into blackboard buffers. Every slot write retains the new
// handle and releases the old one; an object is dropped when its count reaches zero.
//
// The table is safe for concurrent use.
type ObjectTable struct {
	mu      sync.Mutex
	next    ObjectHandle
	entries map[ObjectHandle]*objectEntry
}

type objectEntry struct {
	value any
	refs  int
}

// NewObjectTable creates an empty table.
func NewObjectTable() *ObjectTable {
	return &ObjectTable{entries: make(map[ObjectHandle]*objectEntry)}
}

// Add registers obj with a reference count of one and returns its handle.
// A nil obj maps to the nil handle and is not stored.
func (t *ObjectTable) Add(obj any) ObjectHandle {
	if obj == nil {
		return 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.next++
	if t.next == 0 {
		t.next = 1
	}
	h := t.next
	t.entries[h] = &objectEntry{value: obj, refs: 1}
	return h
}

// Retain increments the reference count of h. Unknown and nil handles are ignored.
func (t *ObjectTable) Retain(h ObjectHandle) {
	if h == 0 {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if e, ok := t.entries[h]; ok {
		e.refs++
	}
}

// Release decrements the reference count of h and forgets the object at zero.
func (t *ObjectTable) Release(h ObjectHandle) {
	if h == 0 {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[h]
	if !ok {
		return
	}
	e.refs--
	if e.refs <= 0 {
		delete(t.entries, h)
	}
}

// Resolve returns the object behind h, or nil.
func (t *ObjectTable) Resolve(h ObjectHandle) any {
	if h == 0 {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if e, ok := t.entries[h]; ok {
		return e.value
	}
	return nil
}

// Refs reports the current reference count of h (0 if unknown).
func (t *ObjectTable) Refs(h ObjectHandle) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	if e, ok := t.entries[h]; ok {
		return e.refs
	}
	return 0
}

// Len returns the number of live objects.
func (t *ObjectTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
