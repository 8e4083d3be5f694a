package value

import (
	"fmt"

	"github.com/hatlesswizard/jstaintfold/pkg/ast"
)

// Lift converts a concrete payload back into the literal tree fragment
// that reproduces it at the output. Any payload kind it cannot lift is an
// internal invariant violation, not a value error, so Lift panics with a
// *LiftError rather than returning one; pkg/eval recovers this into an
// InternalInvariant diagnostic at the one place (Repr) that calls it.
type LiftError struct {
	Kind Kind
}

func (e *LiftError) Error() string {
	return fmt.Sprintf("value: cannot lift payload kind %d to a literal", e.Kind)
}

func Lift(p *Payload) ast.Node {
	if p == nil {
		panic(&LiftError{})
	}
	switch p.Kind {
	case Undefined:
		return ast.Ident("undefined")
	case Null:
		return &ast.NullLiteral{}
	case Bool:
		return &ast.BooleanLiteral{Value: p.Bool}
	case Number:
		return &ast.NumericLiteral{Value: p.Number}
	case BigInt:
		return &ast.BigIntLiteral{Value: p.Big.String()}
	case String:
		return &ast.StringLiteral{Value: p.Str}
	case Regex:
		return &ast.RegExpLiteral{Pattern: p.RegexPattern, Flags: p.RegexFlags}
	case Array:
		elems := make([]ast.Node, len(p.Array))
		for i, el := range p.Array {
			elems[i] = Repr(el)
		}
		return &ast.ArrayExpression{Elements: elems}
	case Function:
		if p.Fn == nil {
			panic(&LiftError{Kind: p.Kind})
		}
		return p.Fn.Residual()
	default:
		panic(&LiftError{Kind: p.Kind})
	}
}

// Repr is the sole path by which a carrier becomes output tree: carrier.Node
// if present, otherwise Lift(carrier.Value). A carrier with neither is
// ill-formed; Repr panics with *LiftError in that case too, since it
// denotes the same InternalInvariant class of bug.
func Repr(c *Carrier) ast.Node {
	if c == nil {
		panic(&LiftError{})
	}
	if c.Node != nil {
		return c.Node
	}
	if c.Value == nil {
		panic(&LiftError{})
	}
	return Lift(c.Value)
}
