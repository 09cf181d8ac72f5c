package function

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/dyluth/lgoap/pkg/blackboard"
)

// Decode turns a block back into its typed operation, naming keys through schema s.
func Decode(s *blackboard.Schema, b Block) (Op, error) {
	if len(b) < BlockHeaderSize || b.Size() > len(b) || b.Size() != BlockHeaderSize+payloadSize(b.Kind(), b.Tag()) {
		return nil, fmt.Errorf("block of %d bytes: %w", len(b), ErrMalformed)
	}

	p := b.Payload()
	switch b.Kind() {
	case KindDecorator:
		c, err := decodeCondition(s, b.Tag(), p)
		if err != nil {
			return nil, err
		}
		return Decorator{Condition: c, Invert: b.Inverted()}, nil
	case KindScoreCalculator:
		c, err := decodeCondition(s, b.Tag(), p[weightSize:])
		if err != nil {
			return nil, err
		}
		w := math.Float32frombits(binary.LittleEndian.Uint32(p))
		return ScoreCalculator{Condition: c, Invert: b.Inverted(), Weight: w}, nil
	case KindEffector:
		return decodeEffector(s, b.Tag(), p)
	}
	return nil, fmt.Errorf("unknown block kind %d: %w", b.Kind(), ErrMalformed)
}

// DecodeCollection checks c and decodes every block in order.
func DecodeCollection(s *blackboard.Schema, c Collection) ([]Op, error) {
	if err := Check(c, 0); err != nil {
		return nil, err
	}
	ops := make([]Op, 0, c.Count())
	for b := range c.Blocks() {
		op, err := Decode(s, b)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, nil
}

func keyName(s *blackboard.Schema, p []byte, off int) (string, error) {
	h := handleAt(p, off)
	k := s.KeyAt(h)
	if k == nil {
		return "", fmt.Errorf("schema %q has no key at handle %d: %w", s.Name(), h, blackboard.ErrKeyNotFound)
	}
	return k.Name, nil
}

func decodeCondition(s *blackboard.Schema, t Tag, p []byte) (Condition, error) {
	if t == TagAlways {
		return Always{}, nil
	}

	name, err := keyName(s, p, 0)
	if err != nil {
		return nil, err
	}

	switch t {
	case TagIsSet:
		return IsSet{Key: name}, nil
	case TagBoolEquals:
		return BoolEquals{Key: name, Value: p[2] != 0}, nil
	case TagEnumEquals:
		return EnumEquals{Key: name, Value: p[2]}, nil
	case TagEnumHasFlags:
		return EnumHasFlags{Key: name, Flags: p[2]}, nil
	case TagIntCompare:
		return IntCompare{Key: name, Cmp: Comparison(p[2]), Value: int32(binary.LittleEndian.Uint32(p[4:]))}, nil
	case TagFloatCompare:
		return FloatCompare{Key: name, Cmp: Comparison(p[2]), Value: math.Float32frombits(binary.LittleEndian.Uint32(p[4:]))}, nil
	case TagObjectEquals:
		other, err := keyName(s, p, 2)
		if err != nil {
			return nil, err
		}
		return ObjectEquals{A: name, B: other}, nil
	}
	return nil, fmt.Errorf("unknown condition tag %d: %w", t, ErrMalformed)
}

func decodeEffector(s *blackboard.Schema, t Tag, p []byte) (Effector, error) {
	name, err := keyName(s, p, 0)
	if err != nil {
		return nil, err
	}

	switch t {
	case TagSetBool:
		return SetBool{Key: name, Value: p[2] != 0}, nil
	case TagSetEnum:
		return SetEnum{Key: name, Value: p[2]}, nil
	case TagEnumSetFlags:
		return EnumSetFlags{Key: name, Flags: p[2]}, nil
	case TagEnumClearFlags:
		return EnumClearFlags{Key: name, Flags: p[2]}, nil
	case TagSetInt:
		return SetInt{Key: name, Value: int32(binary.LittleEndian.Uint32(p[4:]))}, nil
	case TagAddInt:
		return AddInt{Key: name, Delta: int32(binary.LittleEndian.Uint32(p[4:]))}, nil
	case TagSetFloat:
		return SetFloat{Key: name, Value: math.Float32frombits(binary.LittleEndian.Uint32(p[4:]))}, nil
	case TagAddFloat:
		return AddFloat{Key: name, Delta: math.Float32frombits(binary.LittleEndian.Uint32(p[4:]))}, nil
	case TagCopyKey:
		to, err := keyName(s, p, 2)
		if err != nil {
			return nil, err
		}
		return CopyKey{From: name, To: to}, nil
	case TagClearKey:
		return ClearKey{Key: name}, nil
	}
	return nil, fmt.Errorf("unknown effector tag %d: %w", t, ErrMalformed)
}
