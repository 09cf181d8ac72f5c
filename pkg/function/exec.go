package function

import (
	"encoding/binary"
	"math"

	"github.com/dyluth/lgoap/pkg/blackboard"
)

// Execution walks collections that passed Check (or came from a Compile*
// function) against memory of the schema they were compiled for. Operands
// are read straight from the payload; nothing is allocated.

// Decorate AND-combines a decorator collection in order, short-circuiting on
// the first failure. An empty collection holds.
func Decorate(m blackboard.Memory, c Collection) bool {
	off := CollectionHeaderSize
	for i, n := 0, c.Count(); i < n; i++ {
		b := Block(c[off:])
		size := b.Size()
		if !holds(m, b, 0) {
			return false
		}
		off += size
	}
	return true
}

// Unsatisfied counts the decorators of c that do not hold. It is the planner's
// heuristic: zero exactly when Decorate would return true.
func Unsatisfied(m blackboard.Memory, c Collection) int {
	failing := 0
	off := CollectionHeaderSize
	for i, n := 0, c.Count(); i < n; i++ {
		b := Block(c[off:])
		if !holds(m, b, 0) {
			failing++
		}
		off += b.Size()
	}
	return failing
}

// Score sums the weights of the score calculators whose condition holds.
// An empty collection scores 0.
func Score(m blackboard.Memory, c Collection) float32 {
	var total float32
	off := CollectionHeaderSize
	for i, n := 0, c.Count(); i < n; i++ {
		b := Block(c[off:])
		if holds(m, b, weightSize) {
			total += math.Float32frombits(binary.LittleEndian.Uint32(b[BlockHeaderSize:]))
		}
		off += b.Size()
	}
	return total
}

// Execute applies every effector of c in order. expected is passed through to
// the blackboard setters.
func Execute(m blackboard.Memory, c Collection, expected bool) {
	off := CollectionHeaderSize
	for i, n := 0, c.Count(); i < n; i++ {
		b := Block(c[off:])
		apply(m, b.Tag(), b[BlockHeaderSize:], expected)
		off += b.Size()
	}
}

// holds evaluates the condition of b, whose condition payload starts skip bytes into the payload.
func holds(m blackboard.Memory, b Block, skip int) bool {
	return evaluate(m, b.Tag(), b[BlockHeaderSize+skip:]) != b.Inverted()
}

func handleAt(p []byte, off int) blackboard.KeyHandle {
	return blackboard.KeyHandle(binary.LittleEndian.Uint16(p[off:]))
}

func evaluate(m blackboard.Memory, t Tag, p []byte) bool {
	switch t {
	case TagAlways:
		return true
	case TagIsSet:
		return isSet(m, handleAt(p, 0), keyType(p[2]))
	case TagBoolEquals:
		return m.BoolAt(handleAt(p, 0)) == (p[2] != 0)
	case TagEnumEquals:
		return m.EnumAt(handleAt(p, 0)) == p[2]
	case TagEnumHasFlags:
		return m.EnumAt(handleAt(p, 0))&p[2] == p[2]
	case TagIntCompare:
		return compareInt(m.IntAt(handleAt(p, 0)), Comparison(p[2]), int32(binary.LittleEndian.Uint32(p[4:])))
	case TagFloatCompare:
		return compareFloat(m.FloatAt(handleAt(p, 0)), Comparison(p[2]), math.Float32frombits(binary.LittleEndian.Uint32(p[4:])))
	case TagObjectEquals:
		return m.ObjectAt(handleAt(p, 0)) == m.ObjectAt(handleAt(p, 2))
	default:
		return false
	}
}

func isSet(m blackboard.Memory, h blackboard.KeyHandle, t blackboard.KeyType) bool {
	switch t {
	case blackboard.KeyTypeBool:
		return m.BoolAt(h)
	case blackboard.KeyTypeEnum8:
		return m.EnumAt(h) != 0
	case blackboard.KeyTypeFloat:
		return m.FloatAt(h) != 0
	case blackboard.KeyTypeInt:
		return m.IntAt(h) != 0
	case blackboard.KeyTypeObjectRef:
		return m.ObjectAt(h) != 0
	case blackboard.KeyTypeVector3:
		return m.VectorAt(h) != blackboard.Vector3{}
	case blackboard.KeyTypeQuaternion:
		return m.RotationAt(h) != blackboard.Rotation{}
	default:
		return false
	}
}

func apply(m blackboard.Memory, t Tag, p []byte, expected bool) {
	h := handleAt(p, 0)
	switch t {
	case TagSetBool:
		m.SetBoolAt(h, p[2] != 0, expected)
	case TagSetEnum:
		m.SetEnumAt(h, p[2], expected)
	case TagEnumSetFlags:
		m.SetEnumAt(h, m.EnumAt(h)|p[2], expected)
	case TagEnumClearFlags:
		m.SetEnumAt(h, m.EnumAt(h)&^p[2], expected)
	case TagSetInt:
		m.SetIntAt(h, int32(binary.LittleEndian.Uint32(p[4:])), expected)
	case TagAddInt:
		m.SetIntAt(h, m.IntAt(h)+int32(binary.LittleEndian.Uint32(p[4:])), expected)
	case TagSetFloat:
		m.SetFloatAt(h, math.Float32frombits(binary.LittleEndian.Uint32(p[4:])), expected)
	case TagAddFloat:
		m.SetFloatAt(h, m.FloatAt(h)+math.Float32frombits(binary.LittleEndian.Uint32(p[4:])), expected)
	case TagCopyKey:
		copyKey(m, h, handleAt(p, 2), keyType(p[4]), expected)
	case TagClearKey:
		clearKey(m, h, keyType(p[2]), expected)
	}
}

func copyKey(m blackboard.Memory, from, to blackboard.KeyHandle, t blackboard.KeyType, expected bool) {
	switch t {
	case blackboard.KeyTypeBool:
		m.SetBoolAt(to, m.BoolAt(from), expected)
	case blackboard.KeyTypeEnum8:
		m.SetEnumAt(to, m.EnumAt(from), expected)
	case blackboard.KeyTypeFloat:
		m.SetFloatAt(to, m.FloatAt(from), expected)
	case blackboard.KeyTypeInt:
		m.SetIntAt(to, m.IntAt(from), expected)
	case blackboard.KeyTypeObjectRef:
		m.SetObjectAt(to, m.ObjectAt(from), expected)
	case blackboard.KeyTypeVector3:
		m.SetVectorAt(to, m.VectorAt(from), expected)
	case blackboard.KeyTypeQuaternion:
		m.SetRotationAt(to, m.RotationAt(from), expected)
	}
}

func clearKey(m blackboard.Memory, h blackboard.KeyHandle, t blackboard.KeyType, expected bool) {
	switch t {
	case blackboard.KeyTypeBool:
		m.SetBoolAt(h, false, expected)
	case blackboard.KeyTypeEnum8:
		m.SetEnumAt(h, 0, expected)
	case blackboard.KeyTypeFloat:
		m.SetFloatAt(h, 0, expected)
	case blackboard.KeyTypeInt:
		m.SetIntAt(h, 0, expected)
	case blackboard.KeyTypeObjectRef:
		m.SetObjectAt(h, 0, expected)
	case blackboard.KeyTypeVector3:
		m.SetVectorAt(h, blackboard.Vector3{}, expected)
	case blackboard.KeyTypeQuaternion:
		m.SetRotationAt(h, blackboard.Rotation{}, expected)
	}
}
