package function

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dyluth/lgoap/pkg/blackboard"
)

// ParseEffector lowers one authored effect statement:
//
//	key = literal      SetBool / SetEnum / SetInt / SetFloat by key type
//	key = other        CopyKey when other names a key of the same type
//	key += n           AddInt / AddFloat
//	key -= n           AddInt / AddFloat with the negated delta
//	key |= n           EnumSetFlags
//	key &^= n          EnumClearFlags
//	clear(key)         ClearKey
func ParseEffector(s *blackboard.Schema, src string) (Effector, error) {
	src = strings.TrimSpace(src)

	if inner, ok := strings.CutPrefix(src, "clear("); ok && strings.HasSuffix(inner, ")") {
		name := strings.TrimSpace(strings.TrimSuffix(inner, ")"))
		if _, err := s.Key(name); err != nil {
			return nil, err
		}
		return ClearKey{Key: name}, nil
	}

	// Longest operators first so "&^=" is not read as "="
	for _, op := range []string{"&^=", "+=", "-=", "|=", "="} {
		lhs, rhs, found := strings.Cut(src, op)
		if !found {
			continue
		}
		name, value := strings.TrimSpace(lhs), strings.TrimSpace(rhs)
		if name == "" || value == "" {
			break
		}
		k, err := s.Key(name)
		if err != nil {
			return nil, err
		}
		e, err := effectorFor(s, k, op, value)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", src, err)
		}
		return e, nil
	}

	return nil, fmt.Errorf("%q: expected an assignment or clear(key): %w", src, ErrUnsupportedExpression)
}

// ParseEffectors lowers each statement in order.
func ParseEffectors(s *blackboard.Schema, srcs []string) ([]Effector, error) {
	out := make([]Effector, 0, len(srcs))
	for _, src := range srcs {
		e, err := ParseEffector(s, src)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func effectorFor(s *blackboard.Schema, k *blackboard.KeyInfo, op, value string) (Effector, error) {
	if op == "=" {
		if other, err := s.Key(value); err == nil {
			if other.Type != k.Type {
				return nil, fmt.Errorf("cannot copy %s key %q into %s key %q: %w", other.Type, other.Name, k.Type, k.Name, blackboard.ErrTypeMismatch)
			}
			return CopyKey{From: other.Name, To: k.Name}, nil
		}
	}

	switch k.Type {
	case blackboard.KeyTypeBool:
		if op != "=" {
			break
		}
		v, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("invalid bool %q: %w", value, ErrUnsupportedExpression)
		}
		return SetBool{Key: k.Name, Value: v}, nil

	case blackboard.KeyTypeEnum8:
		v, err := strconv.ParseUint(value, 0, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid enum value %q: %w", value, ErrUnsupportedExpression)
		}
		switch op {
		case "=":
			return SetEnum{Key: k.Name, Value: uint8(v)}, nil
		case "|=":
			return EnumSetFlags{Key: k.Name, Flags: uint8(v)}, nil
		case "&^=":
			return EnumClearFlags{Key: k.Name, Flags: uint8(v)}, nil
		}

	case blackboard.KeyTypeInt:
		v, err := strconv.ParseInt(value, 0, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid int %q: %w", value, ErrUnsupportedExpression)
		}
		switch op {
		case "=":
			return SetInt{Key: k.Name, Value: int32(v)}, nil
		case "+=":
			return AddInt{Key: k.Name, Delta: int32(v)}, nil
		case "-=":
			return AddInt{Key: k.Name, Delta: -int32(v)}, nil
		}

	case blackboard.KeyTypeFloat:
		v, err := strconv.ParseFloat(value, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid float %q: %w", value, ErrUnsupportedExpression)
		}
		switch op {
		case "=":
			return SetFloat{Key: k.Name, Value: float32(v)}, nil
		case "+=":
			return AddFloat{Key: k.Name, Delta: float32(v)}, nil
		case "-=":
			return AddFloat{Key: k.Name, Delta: -float32(v)}, nil
		}
	}

	return nil, fmt.Errorf("operator %s not supported on %s key %q: %w", op, k.Type, k.Name, ErrUnsupportedExpression)
}
