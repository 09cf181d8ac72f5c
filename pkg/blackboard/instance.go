package blackboard

import (
	"bytes"
	"fmt"
	"slices"
	"unsafe"
)

// Memory is the read/write surface shared by Instance and Snapshot.
// The compiled function engine executes against it using pre-resolved handles.
type Memory interface {
	Schema() *Schema
	Bytes() []byte

	BoolAt(h KeyHandle) bool
	EnumAt(h KeyHandle) uint8
	FloatAt(h KeyHandle) float32
	IntAt(h KeyHandle) int32
	ObjectAt(h KeyHandle) ObjectHandle
	VectorAt(h KeyHandle) Vector3
	RotationAt(h KeyHandle) Rotation

	SetBoolAt(h KeyHandle, v bool, expected bool)
	SetEnumAt(h KeyHandle, v uint8, expected bool)
	SetFloatAt(h KeyHandle, v float32, expected bool)
	SetIntAt(h KeyHandle, v int32, expected bool)
	SetObjectAt(h KeyHandle, v ObjectHandle, expected bool)
	SetVectorAt(h KeyHandle, v Vector3, expected bool)
	SetRotationAt(h KeyHandle, v Rotation, expected bool)
}

var (
	_ Memory = (*Instance)(nil)
	_ Memory = (*Snapshot)(nil)
)

// cells provides the unchecked getters common to every buffer-backed memory.
type cells struct {
	buf buffer
}

// Bytes returns the underlying buffer. Callers must treat it as read-only.
func (c *cells) Bytes() []byte { return c.buf }

func (c *cells) BoolAt(h KeyHandle) bool           { return c.buf.boolAt(h) }
func (c *cells) EnumAt(h KeyHandle) uint8          { return c.buf.enumAt(h) }
func (c *cells) FloatAt(h KeyHandle) float32       { return c.buf.floatAt(h) }
func (c *cells) IntAt(h KeyHandle) int32           { return c.buf.intAt(h) }
func (c *cells) ObjectAt(h KeyHandle) ObjectHandle { return c.buf.objectAt(h) }
func (c *cells) VectorAt(h KeyHandle) Vector3      { return c.buf.vectorAt(h) }
func (c *cells) RotationAt(h KeyHandle) Rotation   { return c.buf.rotationAt(h) }

// Instance is one agent's live blackboard.
//
// An Instance is owned by a single agent and is not safe for concurrent use.
// Writes to instance-synced keys fan out to the other instances of the schema
// through the schema's listener registry.
type Instance struct {
	cells
	schema     *Schema
	id         uint64
	unexpected []KeyHandle
	disposed   bool
}

// Schema returns the compiled schema the instance conforms to.
func (i *Instance) Schema() *Schema { return i.schema }

// ID returns the instance's registry id, unique within its schema.
func (i *Instance) ID() uint64 { return i.id }

// Disposed reports whether Dispose has been called.
func (i *Instance) Disposed() bool { return i.disposed }

// Dispose deregisters the instance, releases its object references and drops
// the buffer. Safe to call multiple times.
func (i *Instance) Dispose() {
	if i.disposed {
		return
	}
	i.disposed = true
	i.schema.deregister(i.id)
	for _, k := range i.schema.keys {
		if k.Type == KeyTypeObjectRef {
			i.schema.objects.Release(i.buf.objectAt(k.Handle))
		}
	}
	i.buf = nil
	i.unexpected = nil
}

// UnexpectedChanges returns the handles of notifying keys changed by incidental
// writes since the last ClearUnexpectedChanges. Each handle appears once.
func (i *Instance) UnexpectedChanges() []KeyHandle {
	return slices.Clone(i.unexpected)
}

// HasUnexpectedChanges reports whether any unexpected change is pending.
func (i *Instance) HasUnexpectedChanges() bool {
	return len(i.unexpected) > 0
}

// ClearUnexpectedChanges empties the unexpected-change list.
func (i *Instance) ClearUnexpectedChanges() {
	i.unexpected = i.unexpected[:0]
}

func (i *Instance) record(h KeyHandle) {
	if slices.Contains(i.unexpected, h) {
		return
	}
	i.unexpected = append(i.unexpected, h)
}

// written runs the post-write bookkeeping for key h.
func (i *Instance) written(h KeyHandle, changed, expected bool) {
	if !changed {
		return
	}
	k := i.schema.byHandle[h]
	if k.Traits.Has(TraitInstanceSynced) {
		start, end := k.Range()
		i.schema.broadcast(i, k, i.buf[start:end])
	}
	if !expected && k.Traits.Has(TraitNotifyOnUnexpectedChange) {
		i.record(h)
	}
}

// receiveSynced applies a value broadcast by another writer of an instance-synced key.
func (i *Instance) receiveSynced(k *KeyInfo, value []byte) {
	if i.disposed {
		return
	}
	start, end := k.Range()
	if bytes.Equal(i.buf[start:end], value) {
		return
	}
	if k.Type == KeyTypeObjectRef {
		old := i.buf.objectAt(k.Handle)
		i.schema.objects.Retain(buffer(value).objectAt(0))
		i.schema.objects.Release(old)
	}
	copy(i.buf[start:end], value)
	if k.Traits.Has(TraitNotifyOnUnexpectedChange) {
		i.record(k.Handle)
	}
}

// Unchecked setters. Handles must come from this instance's schema.

func (i *Instance) SetBoolAt(h KeyHandle, v bool, expected bool) {
	i.written(h, i.buf.putBool(h, v), expected)
}

func (i *Instance) SetEnumAt(h KeyHandle, v uint8, expected bool) {
	i.written(h, i.buf.putEnum(h, v), expected)
}

func (i *Instance) SetFloatAt(h KeyHandle, v float32, expected bool) {
	i.written(h, i.buf.putFloat(h, v), expected)
}

func (i *Instance) SetIntAt(h KeyHandle, v int32, expected bool) {
	i.written(h, i.buf.putInt(h, v), expected)
}

func (i *Instance) SetVectorAt(h KeyHandle, v Vector3, expected bool) {
	i.written(h, i.buf.putVector(h, v), expected)
}

func (i *Instance) SetRotationAt(h KeyHandle, v Rotation, expected bool) {
	i.written(h, i.buf.putRotation(h, v), expected)
}

// SetObjectAt stores an existing handle, retaining it for this slot.
func (i *Instance) SetObjectAt(h KeyHandle, v ObjectHandle, expected bool) {
	i.schema.objects.Retain(v)
	i.storeObject(h, v, expected)
}

// storeObject writes v, whose reference is already owned by the slot, and releases the old handle.
func (i *Instance) storeObject(h KeyHandle, v ObjectHandle, expected bool) {
	old := i.buf.objectAt(h)
	changed := i.buf.putObject(h, v)
	i.schema.objects.Release(old)
	i.written(h, changed, expected)
}

// Validated accessors by name.

func (i *Instance) key(name string, t KeyType) (*KeyInfo, error) {
	if i.disposed {
		return nil, ErrDisposed
	}
	return i.schema.lookup(name, t)
}

// GetBool returns the value of a bool key.
func (i *Instance) GetBool(name string) (bool, error) {
	k, err := i.key(name, KeyTypeBool)
	if err != nil {
		return false, err
	}
	return i.BoolAt(k.Handle), nil
}

// SetBool writes a bool key. expected=false marks the write as incidental.
func (i *Instance) SetBool(name string, v bool, expected bool) error {
	k, err := i.key(name, KeyTypeBool)
	if err != nil {
		return err
	}
	i.SetBoolAt(k.Handle, v, expected)
	return nil
}

// GetEnum returns the raw byte of an enum key.
func (i *Instance) GetEnum(name string) (uint8, error) {
	k, err := i.key(name, KeyTypeEnum8)
	if err != nil {
		return 0, err
	}
	return i.EnumAt(k.Handle), nil
}

// SetEnum writes the raw byte of an enum key.
func (i *Instance) SetEnum(name string, v uint8, expected bool) error {
	k, err := i.key(name, KeyTypeEnum8)
	if err != nil {
		return err
	}
	i.SetEnumAt(k.Handle, v, expected)
	return nil
}

// GetFloat returns the value of a float key.
func (i *Instance) GetFloat(name string) (float32, error) {
	k, err := i.key(name, KeyTypeFloat)
	if err != nil {
		return 0, err
	}
	return i.FloatAt(k.Handle), nil
}

// SetFloat writes a float key.
func (i *Instance) SetFloat(name string, v float32, expected bool) error {
	k, err := i.key(name, KeyTypeFloat)
	if err != nil {
		return err
	}
	i.SetFloatAt(k.Handle, v, expected)
	return nil
}

// GetInt returns the value of an int key.
func (i *Instance) GetInt(name string) (int32, error) {
	k, err := i.key(name, KeyTypeInt)
	if err != nil {
		return 0, err
	}
	return i.IntAt(k.Handle), nil
}

// SetInt writes an int key.
func (i *Instance) SetInt(name string, v int32, expected bool) error {
	k, err := i.key(name, KeyTypeInt)
	if err != nil {
		return err
	}
	i.SetIntAt(k.Handle, v, expected)
	return nil
}

// GetObject resolves the object referenced by an ObjectRef key (nil if unset).
func (i *Instance) GetObject(name string) (any, error) {
	k, err := i.key(name, KeyTypeObjectRef)
	if err != nil {
		return nil, err
	}
	return i.schema.objects.Resolve(i.ObjectAt(k.Handle)), nil
}

// SetObject stores obj in an ObjectRef key. A nil obj clears the reference.
func (i *Instance) SetObject(name string, obj any, expected bool) error {
	k, err := i.key(name, KeyTypeObjectRef)
	if err != nil {
		return err
	}
	i.storeObject(k.Handle, i.schema.objects.Add(obj), expected)
	return nil
}

// GetVector returns the value of a vector3 key.
func (i *Instance) GetVector(name string) (Vector3, error) {
	k, err := i.key(name, KeyTypeVector3)
	if err != nil {
		return Vector3{}, err
	}
	return i.VectorAt(k.Handle), nil
}

// SetVector writes a vector3 key.
func (i *Instance) SetVector(name string, v Vector3, expected bool) error {
	k, err := i.key(name, KeyTypeVector3)
	if err != nil {
		return err
	}
	i.SetVectorAt(k.Handle, v, expected)
	return nil
}

// GetQuaternion returns the Euler rotation stored in a quaternion key.
func (i *Instance) GetQuaternion(name string) (Rotation, error) {
	k, err := i.key(name, KeyTypeQuaternion)
	if err != nil {
		return Rotation{}, err
	}
	return i.RotationAt(k.Handle), nil
}

// SetQuaternion writes a quaternion key.
func (i *Instance) SetQuaternion(name string, v Rotation, expected bool) error {
	k, err := i.key(name, KeyTypeQuaternion)
	if err != nil {
		return err
	}
	i.SetRotationAt(k.Handle, v, expected)
	return nil
}

// Enum is the set of Go integer types an enum key may be read into.
type Enum interface {
	~int8 | ~uint8 | ~int16 | ~uint16 | ~int32 | ~uint32 | ~int64 | ~uint64 | ~int | ~uint
}

// GetEnumAs reads an enum key into a typed enumeration.
// Enum keys are one byte wide; wider Go types fail with ErrInvalidEnumWidth.
func GetEnumAs[T Enum](i *Instance, name string) (T, error) {
	var zero T
	if unsafe.Sizeof(zero) != 1 {
		return zero, fmt.Errorf("key %q: %T is %d bytes: %w", name, zero, unsafe.Sizeof(zero), ErrInvalidEnumWidth)
	}
	v, err := i.GetEnum(name)
	if err != nil {
		return zero, err
	}
	return T(v), nil
}

// SetEnumAs writes a typed enumeration into an enum key.
func SetEnumAs[T Enum](i *Instance, name string, v T, expected bool) error {
	if unsafe.Sizeof(v) != 1 {
		return fmt.Errorf("key %q: %T is %d bytes: %w", name, v, unsafe.Sizeof(v), ErrInvalidEnumWidth)
	}
	return i.SetEnum(name, uint8(v), expected)
}

// Snapshot is a plain copy of a blackboard used for search-time simulation.
// It has no listeners, takes no object references and ignores the expected flag.
type Snapshot struct {
	cells
	schema *Schema
}

// Schema returns the schema the snapshot was created from.
func (s *Snapshot) Schema() *Schema { return s.schema }

// CopyFrom overwrites the snapshot with the bytes of m, which must share the schema layout.
func (s *Snapshot) CopyFrom(m Memory) {
	copy(s.buf, m.Bytes())
}

func (s *Snapshot) SetBoolAt(h KeyHandle, v bool, _ bool)         { s.buf.putBool(h, v) }
func (s *Snapshot) SetEnumAt(h KeyHandle, v uint8, _ bool)        { s.buf.putEnum(h, v) }
func (s *Snapshot) SetFloatAt(h KeyHandle, v float32, _ bool)     { s.buf.putFloat(h, v) }
func (s *Snapshot) SetIntAt(h KeyHandle, v int32, _ bool)         { s.buf.putInt(h, v) }
func (s *Snapshot) SetObjectAt(h KeyHandle, v ObjectHandle, _ bool) { s.buf.putObject(h, v) }
func (s *Snapshot) SetVectorAt(h KeyHandle, v Vector3, _ bool)    { s.buf.putVector(h, v) }
func (s *Snapshot) SetRotationAt(h KeyHandle, v Rotation, _ bool) { s.buf.putRotation(h, v) }
