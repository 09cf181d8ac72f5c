// Package function compiles condition, effect and utility functions over a
// blackboard schema into self-describing byte blocks, and interprets them.
//
// Every function is one block:
//
//	[u32 block_size][u8 kind][u8 tag][u16 flags][payload]
//
// and a Collection is an ordered run of blocks behind an 8-byte header:
//
//	[u32 total_size][u32 count][block]...
//
// The payload shape is fixed per (kind, tag). Key operands are stored as
// pre-resolved blackboard handles, so execution never looks anything up by name.
package function

import (
	"fmt"

	"github.com/dyluth/lgoap/pkg/blackboard"
)

// Kind identifies how a block participates in evaluation.
type Kind uint8

const (
	// KindDecorator is a boolean condition
	KindDecorator Kind = iota + 1

	// KindScoreCalculator adds a weight when its condition holds
	KindScoreCalculator

	// KindEffector mutates the blackboard
	KindEffector
)

// String returns the name of the kind.
func (k Kind) String() string {
	switch k {
	case KindDecorator:
		return "decorator"
	case KindScoreCalculator:
		return "score"
	case KindEffector:
		return "effector"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Tag selects the operation inside a kind. Decorators and score calculators
// share the condition tags; effectors have their own tag space.
type Tag uint8

// Condition tags.
const (
	TagAlways Tag = iota + 1
	TagIsSet
	TagBoolEquals
	TagEnumEquals
	TagEnumHasFlags
	TagIntCompare
	TagFloatCompare
	TagObjectEquals
)

// Effector tags.
const (
	TagSetBool Tag = iota + 1
	TagSetEnum
	TagSetInt
	TagSetFloat
	TagAddInt
	TagAddFloat
	TagEnumSetFlags
	TagEnumClearFlags
	TagCopyKey
	TagClearKey
)

// flagInvert in the block header negates a condition's result.
const flagInvert uint16 = 1

// Comparison is the operator of IntCompare and FloatCompare.
type Comparison uint8

const (
	Equal Comparison = iota + 1
	NotEqual
	Less
	LessOrEqual
	Greater
	GreaterOrEqual
)

// String returns the operator symbol.
func (c Comparison) String() string {
	switch c {
	case Equal:
		return "=="
	case NotEqual:
		return "!="
	case Less:
		return "<"
	case LessOrEqual:
		return "<="
	case Greater:
		return ">"
	case GreaterOrEqual:
		return ">="
	default:
		return fmt.Sprintf("cmp(%d)", uint8(c))
	}
}

// Validate checks if the Comparison is a valid enum value.
func (c Comparison) Validate() error {
	if c < Equal || c > GreaterOrEqual {
		return fmt.Errorf("invalid comparison: %d", uint8(c))
	}
	return nil
}

// ParseComparison converts an operator symbol into a Comparison.
func ParseComparison(op string) (Comparison, error) {
	switch op {
	case "==":
		return Equal, nil
	case "!=":
		return NotEqual, nil
	case "<":
		return Less, nil
	case "<=":
		return LessOrEqual, nil
	case ">":
		return Greater, nil
	case ">=":
		return GreaterOrEqual, nil
	default:
		return 0, fmt.Errorf("unknown comparison operator %q", op)
	}
}

func compareInt(a int32, c Comparison, b int32) bool {
	switch c {
	case Equal:
		return a == b
	case NotEqual:
		return a != b
	case Less:
		return a < b
	case LessOrEqual:
		return a <= b
	case Greater:
		return a > b
	case GreaterOrEqual:
		return a >= b
	}
	return false
}

func compareFloat(a float32, c Comparison, b float32) bool {
	switch c {
	case Equal:
		return a == b
	case NotEqual:
		return a != b
	case Less:
		return a < b
	case LessOrEqual:
		return a <= b
	case Greater:
		return a > b
	case GreaterOrEqual:
		return a >= b
	}
	return false
}

// Op is any decoded operation: a Decorator, a ScoreCalculator or an Effector.
type Op interface {
	Kind() Kind
	String() string
}

// Condition is the closed set of boolean tests a Decorator or ScoreCalculator wraps.
type Condition interface {
	tag() Tag
	String() string
}

// Always holds unconditionally.
type Always struct{}

// IsSet holds when a key differs from its type's zero value.
type IsSet struct {
	Key string
}

// BoolEquals holds when a bool key equals Value.
type BoolEquals struct {
	Key   string
	Value bool
}

// EnumEquals holds when an enum key equals Value.
type EnumEquals struct {
	Key   string
	Value uint8
}

// EnumHasFlags holds when every bit of Flags is set in an enum key.
type EnumHasFlags struct {
	Key   string
	Flags uint8
}

// IntCompare compares an int key against a literal.
type IntCompare struct {
	Key   string
	Cmp   Comparison
	Value int32
}

// FloatCompare compares a float key against a literal.
type FloatCompare struct {
	Key   string
	Cmp   Comparison
	Value float32
}

// ObjectEquals holds when two ObjectRef keys reference the same object.
type ObjectEquals struct {
	A, B string
}

func (Always) tag() Tag       { return TagAlways }
func (IsSet) tag() Tag        { return TagIsSet }
func (BoolEquals) tag() Tag   { return TagBoolEquals }
func (EnumEquals) tag() Tag   { return TagEnumEquals }
func (EnumHasFlags) tag() Tag { return TagEnumHasFlags }
func (IntCompare) tag() Tag   { return TagIntCompare }
func (FloatCompare) tag() Tag { return TagFloatCompare }
func (ObjectEquals) tag() Tag { return TagObjectEquals }

func (Always) String() string         { return "true" }
func (c IsSet) String() string        { return c.Key }
func (c BoolEquals) String() string   { return fmt.Sprintf("%s == %t", c.Key, c.Value) }
func (c EnumEquals) String() string   { return fmt.Sprintf("%s == %d", c.Key, c.Value) }
func (c EnumHasFlags) String() string { return fmt.Sprintf("hasFlags(%s, %d)", c.Key, c.Flags) }
func (c IntCompare) String() string   { return fmt.Sprintf("%s %s %d", c.Key, c.Cmp, c.Value) }
func (c FloatCompare) String() string { return fmt.Sprintf("%s %s %g", c.Key, c.Cmp, c.Value) }
func (c ObjectEquals) String() string { return fmt.Sprintf("%s == %s", c.A, c.B) }

// Decorator is a boolean condition, optionally inverted.
type Decorator struct {
	Condition Condition
	Invert    bool
}

// Kind implements Op.
func (Decorator) Kind() Kind { return KindDecorator }

func (d Decorator) String() string {
	if d.Condition == nil {
		return "<nil>"
	}
	if d.Invert {
		return "!(" + d.Condition.String() + ")"
	}
	return d.Condition.String()
}

// ScoreCalculator contributes Weight when its (optionally inverted) condition holds.
type ScoreCalculator struct {
	Condition Condition
	Invert    bool
	Weight    float32
}

// Kind implements Op.
func (ScoreCalculator) Kind() Kind { return KindScoreCalculator }

func (s ScoreCalculator) String() string {
	return fmt.Sprintf("%g if %s", s.Weight, Decorator{Condition: s.Condition, Invert: s.Invert})
}

// Weighted returns a ScoreCalculator that always contributes w.
func Weighted(w float32) ScoreCalculator {
	return ScoreCalculator{Condition: Always{}, Weight: w}
}

// Effector is the closed set of blackboard mutations.
type Effector interface {
	Op
	tag() Tag
}

// SetBool writes a literal into a bool key.
type SetBool struct {
	Key   string
	Value bool
}

// SetEnum writes a literal into an enum key.
type SetEnum struct {
	Key   string
	Value uint8
}

// SetInt writes a literal into an int key.
type SetInt struct {
	Key   string
	Value int32
}

// SetFloat writes a literal into a float key.
type SetFloat struct {
	Key   string
	Value float32
}

// AddInt adds Delta to an int key.
type AddInt struct {
	Key   string
	Delta int32
}

// AddFloat adds Delta to a float key.
type AddFloat struct {
	Key   string
	Delta float32
}

// EnumSetFlags sets the bits of Flags in an enum key.
type EnumSetFlags struct {
	Key   string
	Flags uint8
}

// EnumClearFlags clears the bits of Flags in an enum key.
type EnumClearFlags struct {
	Key   string
	Flags uint8
}

// CopyKey copies the value of From into To. Both keys must share a type.
type CopyKey struct {
	From, To string
}

// ClearKey resets a key to its type's zero value.
type ClearKey struct {
	Key string
}

func (SetBool) tag() Tag        { return TagSetBool }
func (SetEnum) tag() Tag        { return TagSetEnum }
func (SetInt) tag() Tag         { return TagSetInt }
func (SetFloat) tag() Tag       { return TagSetFloat }
func (AddInt) tag() Tag         { return TagAddInt }
func (AddFloat) tag() Tag       { return TagAddFloat }
func (EnumSetFlags) tag() Tag   { return TagEnumSetFlags }
func (EnumClearFlags) tag() Tag { return TagEnumClearFlags }
func (CopyKey) tag() Tag        { return TagCopyKey }
func (ClearKey) tag() Tag       { return TagClearKey }

func (SetBool) Kind() Kind        { return KindEffector }
func (SetEnum) Kind() Kind        { return KindEffector }
func (SetInt) Kind() Kind         { return KindEffector }
func (SetFloat) Kind() Kind       { return KindEffector }
func (AddInt) Kind() Kind         { return KindEffector }
func (AddFloat) Kind() Kind       { return KindEffector }
func (EnumSetFlags) Kind() Kind   { return KindEffector }
func (EnumClearFlags) Kind() Kind { return KindEffector }
func (CopyKey) Kind() Kind        { return KindEffector }
func (ClearKey) Kind() Kind       { return KindEffector }

func (e SetBool) String() string        { return fmt.Sprintf("%s = %t", e.Key, e.Value) }
func (e SetEnum) String() string        { return fmt.Sprintf("%s = %d", e.Key, e.Value) }
func (e SetInt) String() string         { return fmt.Sprintf("%s = %d", e.Key, e.Value) }
func (e SetFloat) String() string       { return fmt.Sprintf("%s = %g", e.Key, e.Value) }
func (e AddInt) String() string         { return fmt.Sprintf("%s += %d", e.Key, e.Delta) }
func (e AddFloat) String() string       { return fmt.Sprintf("%s += %g", e.Key, e.Delta) }
func (e EnumSetFlags) String() string   { return fmt.Sprintf("%s |= %d", e.Key, e.Flags) }
func (e EnumClearFlags) String() string { return fmt.Sprintf("%s &^= %d", e.Key, e.Flags) }
func (e CopyKey) String() string        { return fmt.Sprintf("%s = %s", e.To, e.From) }
func (e ClearKey) String() string       { return fmt.Sprintf("clear(%s)", e.Key) }

// keyType is used by payloads that must dispatch on the operand's type at execution.
func keyType(b byte) blackboard.KeyType { return blackboard.KeyType(b) }
