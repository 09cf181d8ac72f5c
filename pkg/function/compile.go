package function

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/dyluth/lgoap/pkg/blackboard"
)

// CompileDecorators resolves ds against schema s and encodes them in order.
//
// Unknown keys fail with blackboard.ErrKeyNotFound and keys of the wrong type
// with blackboard.ErrTypeMismatch (test with errors.Is).
func CompileDecorators(s *blackboard.Schema, ds []Decorator) (Collection, error) {
	b := newBuilder()
	for i, d := range ds {
		if d.Condition == nil {
			return nil, fmt.Errorf("decorator %d: nil condition: %w", i, ErrInvalidOperation)
		}
		if err := checkCondition(s, d.Condition); err != nil {
			return nil, fmt.Errorf("decorator %d (%s): %w", i, d, err)
		}
		p := b.block(KindDecorator, d.Condition.tag(), d.Invert)
		encodeCondition(s, d.Condition, p)
	}
	return b.finish(), nil
}

// CompileScoreCalculators resolves cs against schema s and encodes them in order.
func CompileScoreCalculators(s *blackboard.Schema, cs []ScoreCalculator) (Collection, error) {
	b := newBuilder()
	for i, c := range cs {
		if c.Condition == nil {
			return nil, fmt.Errorf("score calculator %d: nil condition: %w", i, ErrInvalidOperation)
		}
		if math.IsNaN(float64(c.Weight)) || math.IsInf(float64(c.Weight), 0) {
			return nil, fmt.Errorf("score calculator %d: weight must be finite: %w", i, ErrInvalidOperation)
		}
		if err := checkCondition(s, c.Condition); err != nil {
			return nil, fmt.Errorf("score calculator %d (%s): %w", i, c, err)
		}
		p := b.block(KindScoreCalculator, c.Condition.tag(), c.Invert)
		binary.LittleEndian.PutUint32(p, math.Float32bits(c.Weight))
		encodeCondition(s, c.Condition, p[weightSize:])
	}
	return b.finish(), nil
}

// CompileEffectors resolves es against schema s and encodes them in order.
func CompileEffectors(s *blackboard.Schema, es []Effector) (Collection, error) {
	b := newBuilder()
	for i, e := range es {
		if e == nil {
			return nil, fmt.Errorf("effector %d: nil: %w", i, ErrInvalidOperation)
		}
		if err := checkEffector(s, e); err != nil {
			return nil, fmt.Errorf("effector %d (%s): %w", i, e, err)
		}
		p := b.block(KindEffector, e.tag(), false)
		encodeEffector(s, e, p)
	}
	return b.finish(), nil
}

func resolve(s *blackboard.Schema, name string, types ...blackboard.KeyType) (*blackboard.KeyInfo, error) {
	k, err := s.Key(name)
	if err != nil {
		return nil, err
	}
	if len(types) == 0 {
		return k, nil
	}
	for _, t := range types {
		if k.Type == t {
			return k, nil
		}
	}
	return nil, fmt.Errorf("key %q is %s, expected %s: %w", name, k.Type, types[0], blackboard.ErrTypeMismatch)
}

func checkCondition(s *blackboard.Schema, c Condition) error {
	var err error
	switch c := c.(type) {
	case Always:
	case IsSet:
		_, err = resolve(s, c.Key)
	case BoolEquals:
		_, err = resolve(s, c.Key, blackboard.KeyTypeBool)
	case EnumEquals:
		_, err = resolve(s, c.Key, blackboard.KeyTypeEnum8)
	case EnumHasFlags:
		_, err = resolve(s, c.Key, blackboard.KeyTypeEnum8)
	case IntCompare:
		if err = c.Cmp.Validate(); err != nil {
			return fmt.Errorf("%v: %w", err, ErrInvalidOperation)
		}
		_, err = resolve(s, c.Key, blackboard.KeyTypeInt)
	case FloatCompare:
		if err = c.Cmp.Validate(); err != nil {
			return fmt.Errorf("%v: %w", err, ErrInvalidOperation)
		}
		_, err = resolve(s, c.Key, blackboard.KeyTypeFloat)
	case ObjectEquals:
		if _, err = resolve(s, c.A, blackboard.KeyTypeObjectRef); err == nil {
			_, err = resolve(s, c.B, blackboard.KeyTypeObjectRef)
		}
	default:
		err = fmt.Errorf("unknown condition %T: %w", c, ErrInvalidOperation)
	}
	return err
}

func checkEffector(s *blackboard.Schema, e Effector) error {
	var err error
	switch e := e.(type) {
	case SetBool:
		_, err = resolve(s, e.Key, blackboard.KeyTypeBool)
	case SetEnum:
		_, err = resolve(s, e.Key, blackboard.KeyTypeEnum8)
	case SetInt:
		_, err = resolve(s, e.Key, blackboard.KeyTypeInt)
	case SetFloat:
		_, err = resolve(s, e.Key, blackboard.KeyTypeFloat)
	case AddInt:
		_, err = resolve(s, e.Key, blackboard.KeyTypeInt)
	case AddFloat:
		_, err = resolve(s, e.Key, blackboard.KeyTypeFloat)
	case EnumSetFlags:
		_, err = resolve(s, e.Key, blackboard.KeyTypeEnum8)
	case EnumClearFlags:
		_, err = resolve(s, e.Key, blackboard.KeyTypeEnum8)
	case CopyKey:
		var from *blackboard.KeyInfo
		if from, err = resolve(s, e.From); err == nil {
			_, err = resolve(s, e.To, from.Type)
		}
	case ClearKey:
		_, err = resolve(s, e.Key)
	default:
		err = fmt.Errorf("unknown effector %T: %w", e, ErrInvalidOperation)
	}
	return err
}

// handle returns the handle of a key already checked by checkCondition/checkEffector.
func handle(s *blackboard.Schema, name string) *blackboard.KeyInfo {
	k, _ := s.Key(name)
	return k
}

func putHandle(p []byte, k *blackboard.KeyInfo) {
	binary.LittleEndian.PutUint16(p, uint16(k.Handle))
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}

func encodeCondition(s *blackboard.Schema, c Condition, p []byte) {
	switch c := c.(type) {
	case IsSet:
		k := handle(s, c.Key)
		putHandle(p, k)
		p[2] = byte(k.Type)
	case BoolEquals:
		putHandle(p, handle(s, c.Key))
		p[2] = boolByte(c.Value)
	case EnumEquals:
		putHandle(p, handle(s, c.Key))
		p[2] = c.Value
	case EnumHasFlags:
		putHandle(p, handle(s, c.Key))
		p[2] = c.Flags
	case IntCompare:
		putHandle(p, handle(s, c.Key))
		p[2] = byte(c.Cmp)
		binary.LittleEndian.PutUint32(p[4:], uint32(c.Value))
	case FloatCompare:
		putHandle(p, handle(s, c.Key))
		p[2] = byte(c.Cmp)
		binary.LittleEndian.PutUint32(p[4:], math.Float32bits(c.Value))
	case ObjectEquals:
		putHandle(p, handle(s, c.A))
		putHandle(p[2:], handle(s, c.B))
	}
}

func encodeEffector(s *blackboard.Schema, e Effector, p []byte) {
	switch e := e.(type) {
	case SetBool:
		putHandle(p, handle(s, e.Key))
		p[2] = boolByte(e.Value)
	case SetEnum:
		putHandle(p, handle(s, e.Key))
		p[2] = e.Value
	case EnumSetFlags:
		putHandle(p, handle(s, e.Key))
		p[2] = e.Flags
	case EnumClearFlags:
		putHandle(p, handle(s, e.Key))
		p[2] = e.Flags
	case SetInt:
		putHandle(p, handle(s, e.Key))
		binary.LittleEndian.PutUint32(p[4:], uint32(e.Value))
	case AddInt:
		putHandle(p, handle(s, e.Key))
		binary.LittleEndian.PutUint32(p[4:], uint32(e.Delta))
	case SetFloat:
		putHandle(p, handle(s, e.Key))
		binary.LittleEndian.PutUint32(p[4:], math.Float32bits(e.Value))
	case AddFloat:
		putHandle(p, handle(s, e.Key))
		binary.LittleEndian.PutUint32(p[4:], math.Float32bits(e.Delta))
	case CopyKey:
		from := handle(s, e.From)
		putHandle(p, from)
		putHandle(p[2:], handle(s, e.To))
		p[4] = byte(from.Type)
	case ClearKey:
		k := handle(s, e.Key)
		putHandle(p, k)
		p[2] = byte(k.Type)
	}
}
