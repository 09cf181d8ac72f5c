package blackboard

import (
	"fmt"
	"math"
)

// KeyType is the type tag of a blackboard key.
// The zero value is deliberately invalid so that unset declarations fail compilation.
type KeyType uint8

const (
	// KeyTypeInvalid marks an unset or unknown type tag
	KeyTypeInvalid KeyType = iota

	// KeyTypeBool stores a single byte, 0 or 1
	KeyTypeBool

	// KeyTypeEnum8 stores a single-byte enumeration value
	KeyTypeEnum8

	// KeyTypeFloat stores a little-endian float32
	KeyTypeFloat

	// KeyTypeInt stores a little-endian int32
	KeyTypeInt

	// KeyTypeObjectRef stores a uint32 handle into the schema's object table (0 = nil)
	KeyTypeObjectRef

	// KeyTypeQuaternion stores a rotation as three float32 Euler angles (degrees)
	KeyTypeQuaternion

	// KeyTypeVector3 stores three float32 components
	KeyTypeVector3
)

// Size returns the number of bytes a key of this type occupies in the template.
// Invalid types report 0.
func (t KeyType) Size() int {
	switch t {
	case KeyTypeBool, KeyTypeEnum8:
		return 1
	case KeyTypeFloat, KeyTypeInt, KeyTypeObjectRef:
		return 4
	case KeyTypeQuaternion, KeyTypeVector3:
		return 12
	default:
		return 0
	}
}

// String returns the authoring name of the type.
func (t KeyType) String() string {
	switch t {
	case KeyTypeBool:
		return "bool"
	case KeyTypeEnum8:
		return "enum8"
	case KeyTypeFloat:
		return "float"
	case KeyTypeInt:
		return "int"
	case KeyTypeObjectRef:
		return "object"
	case KeyTypeQuaternion:
		return "quaternion"
	case KeyTypeVector3:
		return "vector3"
	default:
		return "invalid"
	}
}

// Validate checks if the KeyType is a valid enum value.
func (t KeyType) Validate() error {
	if t.Size() == 0 {
		return fmt.Errorf("unknown key type: %d", uint8(t))
	}
	return nil
}

// ParseKeyType converts an authoring name ("bool", "vector3", ...) into a KeyType.
func ParseKeyType(s string) (KeyType, error) {
	switch s {
	case "bool", "boolean":
		return KeyTypeBool, nil
	case "enum", "enum8":
		return KeyTypeEnum8, nil
	case "float":
		return KeyTypeFloat, nil
	case "int", "integer":
		return KeyTypeInt, nil
	case "object", "objectref":
		return KeyTypeObjectRef, nil
	case "quaternion", "rotation":
		return KeyTypeQuaternion, nil
	case "vector", "vector3":
		return KeyTypeVector3, nil
	default:
		return KeyTypeInvalid, fmt.Errorf("unknown key type: %q", s)
	}
}

// Traits are per-key behaviour flags.
type Traits uint8

const (
	// TraitInstanceSynced shares the key's value across every instance of a schema
	TraitInstanceSynced Traits = 1 << iota

	// TraitNotifyOnUnexpectedChange records incidental writes that change the value
	TraitNotifyOnUnexpectedChange
)

// Has reports whether all bits of other are set.
func (t Traits) Has(other Traits) bool {
	return t&other == other
}

// Backend is a bitmask of runtime capabilities a schema requires.
type Backend uint8

const (
	// BackendInterpreter is the in-process function interpreter
	BackendInterpreter Backend = 1 << iota

	// BackendRedisSync mirrors instance-synced keys through Redis
	BackendRedisSync
)

// BackendAll is every known backend.
const BackendAll = BackendInterpreter | BackendRedisSync

// Vector3 is the value of a KeyTypeVector3 key.
type Vector3 struct {
	X, Y, Z float32
}

// Rotation is the value of a KeyTypeQuaternion key, stored as Euler angles in degrees.
type Rotation struct {
	Pitch, Yaw, Roll float32
}

// Quaternion converts the Euler angles (applied yaw, pitch, roll) into a unit quaternion.
func (r Rotation) Quaternion() (x, y, z, w float32) {
	const toRad = math.Pi / 360 // half-angle in radians
	cp, sp := math.Cos(float64(r.Pitch)*toRad), math.Sin(float64(r.Pitch)*toRad)
	cy, sy := math.Cos(float64(r.Yaw)*toRad), math.Sin(float64(r.Yaw)*toRad)
	cr, sr := math.Cos(float64(r.Roll)*toRad), math.Sin(float64(r.Roll)*toRad)

	w = float32(cr*cp*cy + sr*sp*sy)
	x = float32(sr*cp*cy - cr*sp*sy)
	y = float32(cr*sp*cy + sr*cp*sy)
	z = float32(cr*cp*sy - sr*sp*cy)
	return x, y, z, w
}

// KeyDeclaration is one authored blackboard slot.
//
// Default must hold a Go value matching Type: bool, uint8, float32, int32,
// any object (ObjectRef), Rotation or Vector3. A nil Default means the zero value.
type KeyDeclaration struct {
	Name    string  `json:"name"`    // Unique within the flattened schema
	Type    KeyType `json:"type"`    // Type tag, must not be KeyTypeInvalid
	Traits  Traits  `json:"traits"`  // Optional behaviour flags
	Default any     `json:"default"` // Default value written into the template
}

// Validate checks the declaration in isolation (name, type tag, default value type).
func (k *KeyDeclaration) Validate() error {
	if k.Name == "" {
		return fmt.Errorf("key name cannot be empty")
	}

	if err := k.Type.Validate(); err != nil {
		return fmt.Errorf("key %q: %w", k.Name, err)
	}

	if k.Default == nil {
		return nil
	}

	ok := false
	switch k.Type {
	case KeyTypeBool:
		_, ok = k.Default.(bool)
	case KeyTypeEnum8:
		_, ok = k.Default.(uint8)
	case KeyTypeFloat:
		_, ok = k.Default.(float32)
	case KeyTypeInt:
		_, ok = k.Default.(int32)
	case KeyTypeObjectRef:
		ok = true
	case KeyTypeQuaternion:
		_, ok = k.Default.(Rotation)
	case KeyTypeVector3:
		_, ok = k.Default.(Vector3)
	}
	if !ok {
		return fmt.Errorf("key %q: default value %T does not match type %s", k.Name, k.Default, k.Type)
	}

	return nil
}

// SchemaDeclaration is the authored input to the schema compiler.
// Parent forms a single-inheritance chain; parent keys precede child keys.
type SchemaDeclaration struct {
	Name     string
	Parent   *SchemaDeclaration
	Backends Backend
	Keys     []KeyDeclaration
}

// KeyHandle is the pre-resolved location of a key: its byte offset in the template.
// Handles are assigned at compile time and never change.
type KeyHandle uint16

// KeyInfo is the compiled data of one key.
type KeyInfo struct {
	Name   string
	Type   KeyType
	Traits Traits
	Handle KeyHandle
}

// Size returns the byte size of the key.
func (k *KeyInfo) Size() int {
	return k.Type.Size()
}

// Range returns the half-open byte range [start, end) the key occupies.
func (k *KeyInfo) Range() (start, end int) {
	return int(k.Handle), int(k.Handle) + k.Type.Size()
}
