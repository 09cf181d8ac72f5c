package function

import (
	"fmt"
	"math"

	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"

	"github.com/dyluth/lgoap/pkg/blackboard"
)

// ParseConditions lowers an authored condition string into decorators.
//
// The source uses expr-lang syntax restricted to what the operation set can
// express: a conjunction (&& / and) of terms, where each term is one of
//
//	flag                 bool key is true, any other key is non-zero
//	!term, not term      inverted term
//	key <op> literal     op in == != < <= > >= (literal may come first)
//	obj == other         two ObjectRef keys (== nil / != nil test IsSet)
//	hasFlags(key, n)     every bit of n set in an enum key
//	true, false
//
// Key names and types are resolved against s. Anything else fails with
// ErrUnsupportedExpression.
func ParseConditions(s *blackboard.Schema, src string) ([]Decorator, error) {
	tree, err := parser.Parse(src)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %q: %w", src, err)
	}

	var terms []ast.Node
	splitConjunction(tree.Node, &terms)

	out := make([]Decorator, 0, len(terms))
	for _, term := range terms {
		d, err := lower(s, term)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", src, err)
		}
		out = append(out, d)
	}
	return out, nil
}

// ParseCondition lowers a single term. A conjunction is rejected.
func ParseCondition(s *blackboard.Schema, src string) (Decorator, error) {
	ds, err := ParseConditions(s, src)
	if err != nil {
		return Decorator{}, err
	}
	if len(ds) != 1 {
		return Decorator{}, fmt.Errorf("%q: expected a single condition, got %d: %w", src, len(ds), ErrUnsupportedExpression)
	}
	return ds[0], nil
}

func splitConjunction(n ast.Node, out *[]ast.Node) {
	if b, ok := n.(*ast.BinaryNode); ok && (b.Operator == "&&" || b.Operator == "and") {
		splitConjunction(b.Left, out)
		splitConjunction(b.Right, out)
		return
	}
	*out = append(*out, n)
}

func unsupported(n ast.Node, why string) error {
	return fmt.Errorf("%s in %T: %w", why, n, ErrUnsupportedExpression)
}

func lower(s *blackboard.Schema, n ast.Node) (Decorator, error) {
	switch n := n.(type) {
	case *ast.BoolNode:
		return Decorator{Condition: Always{}, Invert: !n.Value}, nil

	case *ast.IdentifierNode:
		k, err := s.Key(n.Value)
		if err != nil {
			return Decorator{}, err
		}
		if k.Type == blackboard.KeyTypeBool {
			return Decorator{Condition: BoolEquals{Key: k.Name, Value: true}}, nil
		}
		return Decorator{Condition: IsSet{Key: k.Name}}, nil

	case *ast.UnaryNode:
		if n.Operator != "!" && n.Operator != "not" {
			return Decorator{}, unsupported(n, "operator "+n.Operator)
		}
		d, err := lower(s, n.Node)
		if err != nil {
			return Decorator{}, err
		}
		d.Invert = !d.Invert
		return d, nil

	case *ast.CallNode:
		return lowerCall(s, n)

	case *ast.BinaryNode:
		return lowerComparison(s, n)
	}
	return Decorator{}, unsupported(n, "expression")
}

func lowerCall(s *blackboard.Schema, n *ast.CallNode) (Decorator, error) {
	callee, ok := n.Callee.(*ast.IdentifierNode)
	if !ok || callee.Value != "hasFlags" || len(n.Arguments) != 2 {
		return Decorator{}, unsupported(n, "call")
	}
	key, ok := n.Arguments[0].(*ast.IdentifierNode)
	if !ok {
		return Decorator{}, unsupported(n, "hasFlags key")
	}
	flags, ok := intLiteral(n.Arguments[1])
	if !ok || flags < 0 || flags > math.MaxUint8 {
		return Decorator{}, unsupported(n, "hasFlags mask")
	}
	if _, err := resolve(s, key.Value, blackboard.KeyTypeEnum8); err != nil {
		return Decorator{}, err
	}
	return Decorator{Condition: EnumHasFlags{Key: key.Value, Flags: uint8(flags)}}, nil
}

// mirror returns the operator that keeps the meaning when operands are swapped.
var mirror = map[Comparison]Comparison{
	Equal:          Equal,
	NotEqual:       NotEqual,
	Less:           Greater,
	LessOrEqual:    GreaterOrEqual,
	Greater:        Less,
	GreaterOrEqual: LessOrEqual,
}

func lowerComparison(s *blackboard.Schema, n *ast.BinaryNode) (Decorator, error) {
	cmp, err := ParseComparison(n.Operator)
	if err != nil {
		return Decorator{}, unsupported(n, "operator "+n.Operator)
	}

	left, right := n.Left, n.Right
	if _, ok := left.(*ast.IdentifierNode); !ok {
		left, right = right, left
		cmp = mirror[cmp]
	}
	ident, ok := left.(*ast.IdentifierNode)
	if !ok {
		return Decorator{}, unsupported(n, "comparison without a key")
	}
	k, err := s.Key(ident.Value)
	if err != nil {
		return Decorator{}, err
	}

	equality := cmp == Equal || cmp == NotEqual
	negate := cmp == NotEqual

	switch k.Type {
	case blackboard.KeyTypeBool:
		v, ok := right.(*ast.BoolNode)
		if !ok || !equality {
			return Decorator{}, unsupported(n, "bool comparison")
		}
		return Decorator{Condition: BoolEquals{Key: k.Name, Value: v.Value}, Invert: negate}, nil

	case blackboard.KeyTypeEnum8:
		v, ok := intLiteral(right)
		if !ok || !equality || v < 0 || v > math.MaxUint8 {
			return Decorator{}, unsupported(n, "enum comparison")
		}
		return Decorator{Condition: EnumEquals{Key: k.Name, Value: uint8(v)}, Invert: negate}, nil

	case blackboard.KeyTypeInt:
		v, ok := intLiteral(right)
		if !ok || v < math.MinInt32 || v > math.MaxInt32 {
			return Decorator{}, unsupported(n, "int comparison")
		}
		return Decorator{Condition: IntCompare{Key: k.Name, Cmp: cmp, Value: int32(v)}}, nil

	case blackboard.KeyTypeFloat:
		v, ok := numberLiteral(right)
		if !ok {
			return Decorator{}, unsupported(n, "float comparison")
		}
		return Decorator{Condition: FloatCompare{Key: k.Name, Cmp: cmp, Value: float32(v)}}, nil

	case blackboard.KeyTypeObjectRef:
		if !equality {
			return Decorator{}, unsupported(n, "object comparison")
		}
		if _, isNil := right.(*ast.NilNode); isNil {
			return Decorator{Condition: IsSet{Key: k.Name}, Invert: !negate}, nil
		}
		other, ok := right.(*ast.IdentifierNode)
		if !ok {
			return Decorator{}, unsupported(n, "object comparison")
		}
		if _, err := resolve(s, other.Value, blackboard.KeyTypeObjectRef); err != nil {
			return Decorator{}, err
		}
		return Decorator{Condition: ObjectEquals{A: k.Name, B: other.Value}, Invert: negate}, nil
	}

	return Decorator{}, unsupported(n, fmt.Sprintf("comparison on %s key %q", k.Type, k.Name))
}

func intLiteral(n ast.Node) (int, bool) {
	switch n := n.(type) {
	case *ast.IntegerNode:
		return n.Value, true
	case *ast.UnaryNode:
		if n.Operator == "-" {
			if v, ok := intLiteral(n.Node); ok {
				return -v, true
			}
		}
	}
	return 0, false
}

func numberLiteral(n ast.Node) (float64, bool) {
	switch n := n.(type) {
	case *ast.IntegerNode:
		return float64(n.Value), true
	case *ast.FloatNode:
		return n.Value, true
	case *ast.UnaryNode:
		if n.Operator == "-" {
			if v, ok := numberLiteral(n.Node); ok {
				return -v, true
			}
		}
	}
	return 0, false
}
