package eval

import (
	"math"
	"math/big"
	"strconv"

	"github.com/hatlesswizard/jstaintfold/pkg/value"
)

// toNumber implements the source language's ToNumber coercion for the
// payload kinds this dialect supports.
func toNumber(p *value.Payload) float64 {
	switch p.Kind {
	case value.Undefined:
		return math.NaN()
	case value.Null:
		return 0
	case value.Bool:
		if p.Bool {
			return 1
		}
		return 0
	case value.Number:
		return p.Number
	case value.String:
		s := p.Str
		if s == "" {
			return 0
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	case value.BigInt:
		f, _ := new(big.Float).SetInt(p.Big).Float64()
		return f
	default:
		return math.NaN()
	}
}

// toStr implements ToString for the payload kinds this dialect supports.
func toStr(p *value.Payload) string {
	switch p.Kind {
	case value.Undefined:
		return "undefined"
	case value.Null:
		return "null"
	case value.Bool:
		if p.Bool {
			return "true"
		}
		return "false"
	case value.Number:
		return formatNumber(p.Number)
	case value.String:
		return p.Str
	case value.BigInt:
		return p.Big.String()
	default:
		return ""
	}
}

func formatNumber(f float64) string {
	if math.IsNaN(f) {
		return "NaN"
	}
	if math.IsInf(f, 1) {
		return "Infinity"
	}
	if math.IsInf(f, -1) {
		return "-Infinity"
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e21 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func toInt32(f float64) int32 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return int32(uint32(int64(math.Trunc(f))))
}

func toUint32(f float64) uint32 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return uint32(int64(math.Trunc(f)))
}

// looseEquals implements `==`/`!=` for the payload kinds this dialect
// supports, abstract equality between number and string included.
func looseEquals(a, b *value.Payload) bool {
	if a.Kind == b.Kind {
		return strictEquals(a, b)
	}
	if (a.Kind == value.Null && b.Kind == value.Undefined) || (a.Kind == value.Undefined && b.Kind == value.Null) {
		return true
	}
	if a.Kind == value.Number && b.Kind == value.String {
		return a.Number == toNumber(b)
	}
	if a.Kind == value.String && b.Kind == value.Number {
		return toNumber(a) == b.Number
	}
	if a.Kind == value.Bool {
		return looseEquals(&value.Payload{Kind: value.Number, Number: toNumber(a)}, b)
	}
	if b.Kind == value.Bool {
		return looseEquals(a, &value.Payload{Kind: value.Number, Number: toNumber(b)})
	}
	return false
}

// strictEquals implements `===`/`!==`, distinguishing number and string
// identities.
func strictEquals(a, b *value.Payload) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case value.Undefined, value.Null:
		return true
	case value.Bool:
		return a.Bool == b.Bool
	case value.Number:
		return a.Number == b.Number
	case value.String:
		return a.Str == b.Str
	case value.BigInt:
		return a.Big != nil && b.Big != nil && a.Big.Cmp(b.Big) == 0
	case value.Regex:
		return false
	case value.Array:
		return &a.Array == &b.Array
	case value.Function:
		return a.Fn == b.Fn
	default:
		return false
	}
}

// applyBinary computes the concrete result of a binary operator over two
// untainted payloads.
func applyBinary(op string, l, r *value.Payload) (*value.Payload, error) {
	switch op {
	case "+":
		if l.Kind == value.String || r.Kind == value.String {
			return &value.Payload{Kind: value.String, Str: toStr(l) + toStr(r)}, nil
		}
		if l.Kind == value.BigInt && r.Kind == value.BigInt {
			return &value.Payload{Kind: value.BigInt, Big: new(big.Int).Add(l.Big, r.Big)}, nil
		}
		return &value.Payload{Kind: value.Number, Number: toNumber(l) + toNumber(r)}, nil
	case "-":
		if l.Kind == value.BigInt && r.Kind == value.BigInt {
			return &value.Payload{Kind: value.BigInt, Big: new(big.Int).Sub(l.Big, r.Big)}, nil
		}
		return &value.Payload{Kind: value.Number, Number: toNumber(l) - toNumber(r)}, nil
	case "*":
		if l.Kind == value.BigInt && r.Kind == value.BigInt {
			return &value.Payload{Kind: value.BigInt, Big: new(big.Int).Mul(l.Big, r.Big)}, nil
		}
		return &value.Payload{Kind: value.Number, Number: toNumber(l) * toNumber(r)}, nil
	case "/":
		if l.Kind == value.BigInt && r.Kind == value.BigInt {
			if r.Big.Sign() == 0 {
				return nil, notImplementedErr("bigint division by zero")
			}
			return &value.Payload{Kind: value.BigInt, Big: new(big.Int).Quo(l.Big, r.Big)}, nil
		}
		return &value.Payload{Kind: value.Number, Number: toNumber(l) / toNumber(r)}, nil
	case "%":
		if l.Kind == value.BigInt && r.Kind == value.BigInt {
			if r.Big.Sign() == 0 {
				return nil, notImplementedErr("bigint modulo by zero")
			}
			return &value.Payload{Kind: value.BigInt, Big: new(big.Int).Rem(l.Big, r.Big)}, nil
		}
		return &value.Payload{Kind: value.Number, Number: math.Mod(toNumber(l), toNumber(r))}, nil
	case "**":
		return &value.Payload{Kind: value.Number, Number: math.Pow(toNumber(l), toNumber(r))}, nil
	case "&":
		return &value.Payload{Kind: value.Number, Number: float64(toInt32(toNumber(l)) & toInt32(toNumber(r)))}, nil
	case "|":
		return &value.Payload{Kind: value.Number, Number: float64(toInt32(toNumber(l)) | toInt32(toNumber(r)))}, nil
	case "^":
		return &value.Payload{Kind: value.Number, Number: float64(toInt32(toNumber(l)) ^ toInt32(toNumber(r)))}, nil
	case "<<":
		return &value.Payload{Kind: value.Number, Number: float64(toInt32(toNumber(l)) << (toUint32(toNumber(r)) & 31))}, nil
	case ">>":
		return &value.Payload{Kind: value.Number, Number: float64(toInt32(toNumber(l)) >> (toUint32(toNumber(r)) & 31))}, nil
	case ">>>":
		return &value.Payload{Kind: value.Number, Number: float64(toUint32(toNumber(l)) >> (toUint32(toNumber(r)) & 31))}, nil
	case "==":
		return &value.Payload{Kind: value.Bool, Bool: looseEquals(l, r)}, nil
	case "!=":
		return &value.Payload{Kind: value.Bool, Bool: !looseEquals(l, r)}, nil
	case "===":
		return &value.Payload{Kind: value.Bool, Bool: strictEquals(l, r)}, nil
	case "!==":
		return &value.Payload{Kind: value.Bool, Bool: !strictEquals(l, r)}, nil
	case "<":
		return compare(l, r, func(a, b float64) bool { return a < b }, func(a, b string) bool { return a < b }), nil
	case "<=":
		return compare(l, r, func(a, b float64) bool { return a <= b }, func(a, b string) bool { return a <= b }), nil
	case ">":
		return compare(l, r, func(a, b float64) bool { return a > b }, func(a, b string) bool { return a > b }), nil
	case ">=":
		return compare(l, r, func(a, b float64) bool { return a >= b }, func(a, b string) bool { return a >= b }), nil
	case "in":
		return applyIn(l, r)
	case "instanceof":
		// No class/prototype model is supported, and it's unclear what
		// instanceof should even mean against a user-declared function
		// handle in a dialect with no prototype chain. Rather than guess
		// at a reference-type-only partial answer, every instanceof is
		// left NotImplemented.
		return nil, notImplementedErr("operator instanceof")
	case "|>":
		return nil, notImplementedErr("pipeline operator")
	default:
		return nil, notImplementedErr("binary operator " + op)
	}
}

// applyIn implements `in` for the array-only object model this dialect
// supports: a numeric (or numeric-string) left operand is membership-tested
// against the right operand's indices. Any other right operand shape (no
// general object model) is NotImplemented rather than guessed.
func applyIn(l, r *value.Payload) (*value.Payload, error) {
	if r.Kind != value.Array {
		return nil, notImplementedErr("operator in (non-array right operand)")
	}
	idx, ok := indexOfCarrier(&value.Carrier{Value: l})
	if !ok {
		return &value.Payload{Kind: value.Bool, Bool: false}, nil
	}
	return &value.Payload{Kind: value.Bool, Bool: idx >= 0 && idx < len(r.Array)}, nil
}

func compare(l, r *value.Payload, numOp func(a, b float64) bool, strOp func(a, b string) bool) *value.Payload {
	if l.Kind == value.String && r.Kind == value.String {
		return &value.Payload{Kind: value.Bool, Bool: strOp(l.Str, r.Str)}
	}
	ln, rn := toNumber(l), toNumber(r)
	if math.IsNaN(ln) || math.IsNaN(rn) {
		return &value.Payload{Kind: value.Bool, Bool: false}
	}
	return &value.Payload{Kind: value.Bool, Bool: numOp(ln, rn)}
}

// applyUnary computes the concrete result of a unary operator over an
// untainted operand payload.
func applyUnary(op string, carrier *value.Carrier) (*value.Carrier, error) {
	p := carrier.Value
	switch op {
	case "typeof":
		return value.Str(typeOf(p)), nil
	case "!":
		return value.Bool_(!carrier.Truthy()), nil
	case "+":
		return value.Num(toNumber(p)), nil
	case "-":
		if p.Kind == value.BigInt {
			return value.BigIntVal(new(big.Int).Neg(p.Big)), nil
		}
		return value.Num(-toNumber(p)), nil
	case "~":
		if p.Kind == value.BigInt {
			return value.BigIntVal(new(big.Int).Not(p.Big)), nil
		}
		return value.Num(float64(^toInt32(toNumber(p)))), nil
	case "void":
		return value.Undef(), nil
	default:
		return nil, notImplementedErr("unary operator " + op)
	}
}

func typeOf(p *value.Payload) string {
	if p == nil {
		return "undefined"
	}
	switch p.Kind {
	case value.Undefined:
		return "undefined"
	case value.Null:
		return "object"
	case value.Bool:
		return "boolean"
	case value.Number:
		return "number"
	case value.BigInt:
		return "bigint"
	case value.String:
		return "string"
	case value.Regex, value.Array:
		return "object"
	case value.Function:
		return "function"
	default:
		return "undefined"
	}
}
