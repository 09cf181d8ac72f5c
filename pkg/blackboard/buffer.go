package blackboard

import (
	"encoding/binary"
	"math"
)

// buffer is the raw little-endian storage shared by Instance, Snapshot and the
// schema template. Accessors take pre-resolved handles and do no bounds or type
// checking beyond what the slice itself enforces.
type buffer []byte

func (b buffer) boolAt(h KeyHandle) bool {
	return b[h] != 0
}

func (b buffer) putBool(h KeyHandle, v bool) bool {
	var n byte
	if v {
		n = 1
	}
	if b[h] == n {
		return false
	}
	b[h] = n
	return true
}

func (b buffer) enumAt(h KeyHandle) uint8 {
	return b[h]
}

func (b buffer) putEnum(h KeyHandle, v uint8) bool {
	if b[h] == v {
		return false
	}
	b[h] = v
	return true
}

func (b buffer) uint32At(h KeyHandle) uint32 {
	return binary.LittleEndian.Uint32(b[h:])
}

func (b buffer) putUint32(h KeyHandle, v uint32) bool {
	if binary.LittleEndian.Uint32(b[h:]) == v {
		return false
	}
	binary.LittleEndian.PutUint32(b[h:], v)
	return true
}

func (b buffer) intAt(h KeyHandle) int32 {
	return int32(b.uint32At(h))
}

func (b buffer) putInt(h KeyHandle, v int32) bool {
	return b.putUint32(h, uint32(v))
}

func (b buffer) floatAt(h KeyHandle) float32 {
	return math.Float32frombits(b.uint32At(h))
}

func (b buffer) putFloat(h KeyHandle, v float32) bool {
	return b.putUint32(h, math.Float32bits(v))
}

func (b buffer) objectAt(h KeyHandle) ObjectHandle {
	return ObjectHandle(b.uint32At(h))
}

func (b buffer) putObject(h KeyHandle, v ObjectHandle) bool {
	return b.putUint32(h, uint32(v))
}

func (b buffer) float3At(h KeyHandle) (float32, float32, float32) {
	return b.floatAt(h), b.floatAt(h + 4), b.floatAt(h + 8)
}

func (b buffer) putFloat3(h KeyHandle, x, y, z float32) bool {
	changed := b.putFloat(h, x)
	changed = b.putFloat(h+4, y) || changed
	changed = b.putFloat(h+8, z) || changed
	return changed
}

func (b buffer) vectorAt(h KeyHandle) Vector3 {
	x, y, z := b.float3At(h)
	return Vector3{X: x, Y: y, Z: z}
}

func (b buffer) putVector(h KeyHandle, v Vector3) bool {
	return b.putFloat3(h, v.X, v.Y, v.Z)
}

func (b buffer) rotationAt(h KeyHandle) Rotation {
	p, y, r := b.float3At(h)
	return Rotation{Pitch: p, Yaw: y, Roll: r}
}

func (b buffer) putRotation(h KeyHandle, v Rotation) bool {
	return b.putFloat3(h, v.Pitch, v.Yaw, v.Roll)
}
