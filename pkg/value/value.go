// Package value defines TaintedValue (here, Carrier), the universal value
// carrier: every value the evaluator produces is either a concrete payload
// or a residual tree fragment, tagged with a taint bit.
package value

import (
	"math/big"

	"github.com/hatlesswizard/jstaintfold/pkg/ast"
)

// Kind tags the concrete payload a Carrier holds when it is untainted.
type Kind int

const (
	Undefined Kind = iota
	Null
	Bool
	Number
	BigInt
	String
	Regex
	Array
	Function
)

// Closure is implemented by the evaluator's function-value type. It is
// declared here, not in pkg/eval, so Payload can hold one without pkg/eval
// importing pkg/value creating a cycle: pkg/eval depends on pkg/value, and
// pkg/value only depends on the interface shape, not the implementation.
type Closure interface {
	// Residual returns the already-simplified function body fragment this
	// closure lifts to when it appears in output.
	Residual() ast.Node
}

// Payload is the concrete tagged-union value: Undefined | Null | Bool |
// Number | BigInt | String | Regex | Array | Function. Only the field
// matching Kind is meaningful.
type Payload struct {
	Kind Kind

	Bool   bool
	Number float64
	Big    *big.Int
	Str    string

	RegexPattern string
	RegexFlags   string

	// Array holds an ordered sequence of carriers. Elements are themselves
	// carriers so that an in-place mutation of one element never requires
	// replacing the whole array payload.
	Array []*Carrier

	Fn Closure
}

// Carrier is TaintedValue: its invariant is enforced by construction
// helpers (Concrete, Tainted) rather than by exported field mutation.
// Callers should prefer those over building a Carrier by hand.
type Carrier struct {
	Value   *Payload
	Node    ast.Node
	Tainted bool
}

// Concrete builds an untainted carrier around a payload. Node is left nil;
// Repr derives it lazily via Lift.
func Concrete(p *Payload) *Carrier {
	return &Carrier{Value: p, Tainted: false}
}

// TaintedNode builds a tainted carrier whose residual is node. Value is
// left nil, per the §3 invariant that an untainted Node is not
// authoritative once Tainted is set.
func TaintedNode(node ast.Node) *Carrier {
	return &Carrier{Node: node, Tainted: true}
}

// Undef is the canonical untainted undefined value.
func Undef() *Carrier { return Concrete(&Payload{Kind: Undefined}) }

// Null is the canonical untainted null value.
func NullValue() *Carrier { return Concrete(&Payload{Kind: Null}) }

func Bool_(b bool) *Carrier { return Concrete(&Payload{Kind: Bool, Bool: b}) }

func Num(n float64) *Carrier { return Concrete(&Payload{Kind: Number, Number: n}) }

func Str(s string) *Carrier { return Concrete(&Payload{Kind: String, Str: s}) }

func BigIntVal(b *big.Int) *Carrier { return Concrete(&Payload{Kind: BigInt, Big: b}) }

func RegexVal(pattern, flags string) *Carrier {
	return Concrete(&Payload{Kind: Regex, RegexPattern: pattern, RegexFlags: flags})
}

func ArrayVal(elems []*Carrier) *Carrier {
	return Concrete(&Payload{Kind: Array, Array: elems})
}

func FunctionVal(fn Closure) *Carrier {
	return Concrete(&Payload{Kind: Function, Fn: fn})
}

// IsUndefined reports whether c is the untainted undefined value.
func (c *Carrier) IsUndefined() bool {
	return c != nil && !c.Tainted && c.Value != nil && c.Value.Kind == Undefined
}

// IsNullish reports whether c is untainted null or undefined, the values
// against which optional-member short-circuiting and ?? test.
func (c *Carrier) IsNullish() bool {
	return c != nil && !c.Tainted && c.Value != nil && (c.Value.Kind == Null || c.Value.Kind == Undefined)
}

// Truthy computes JavaScript truthiness for an untainted carrier. Callers
// must not call this on a tainted carrier; the evaluator always checks
// Tainted first.
func (c *Carrier) Truthy() bool {
	if c.Value == nil {
		return false
	}
	switch c.Value.Kind {
	case Undefined, Null:
		return false
	case Bool:
		return c.Value.Bool
	case Number:
		return c.Value.Number != 0 && !isNaN(c.Value.Number)
	case BigInt:
		return c.Value.Big != nil && c.Value.Big.Sign() != 0
	case String:
		return c.Value.Str != ""
	case Regex, Array, Function:
		return true
	default:
		return false
	}
}

func isNaN(f float64) bool { return f != f }
