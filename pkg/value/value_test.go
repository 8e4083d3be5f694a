package value

import (
	"math/big"
	"testing"

	"github.com/hatlesswizard/jstaintfold/pkg/ast"
)

func TestTruthy(t *testing.T) {
	tests := []struct {
		name string
		c    *Carrier
		want bool
	}{
		{"undefined", Undef(), false},
		{"null", NullValue(), false},
		{"false", Bool_(false), false},
		{"true", Bool_(true), true},
		{"zero", Num(0), false},
		{"nan", Num(nan()), false},
		{"nonzero number", Num(1), true},
		{"empty string", Str(""), false},
		{"nonempty string", Str("x"), true},
		{"zero bigint", BigIntVal(big.NewInt(0)), false},
		{"nonzero bigint", BigIntVal(big.NewInt(5)), true},
		{"array always truthy", ArrayVal(nil), true},
		{"regex always truthy", RegexVal("a", ""), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.c.Truthy(); got != tt.want {
				t.Errorf("Truthy() = %v, want %v", got, tt.want)
			}
		})
	}
}

func nan() float64 {
	var z float64
	return z / z
}

func TestIsNullish(t *testing.T) {
	if !Undef().IsNullish() {
		t.Error("undefined should be nullish")
	}
	if !NullValue().IsNullish() {
		t.Error("null should be nullish")
	}
	if Num(0).IsNullish() {
		t.Error("0 should not be nullish")
	}
	if TaintedNode(ast.Ident("x")).IsNullish() {
		t.Error("a tainted carrier is never nullish")
	}
}

func TestIsUndefined(t *testing.T) {
	if !Undef().IsUndefined() {
		t.Error("Undef() should report IsUndefined")
	}
	if NullValue().IsUndefined() {
		t.Error("null should not report IsUndefined")
	}
}

func TestReprPrefersNodeOverValue(t *testing.T) {
	node := ast.Ident("residual")
	c := &Carrier{Node: node, Value: &Payload{Kind: Number, Number: 5}}
	if got := Repr(c); got != node {
		t.Errorf("Repr preferred Value over Node; got %#v, want %#v", got, node)
	}
}

func TestReprLiftsValueWhenNodeAbsent(t *testing.T) {
	c := Num(4)
	got, ok := Repr(c).(*ast.NumericLiteral)
	if !ok || got.Value != 4 {
		t.Errorf("Repr(Num(4)) = %#v, want NumericLiteral{4}", Repr(c))
	}
}

func TestReprPanicsOnIllFormedCarrier(t *testing.T) {
	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected Repr to panic on a carrier with neither Node nor Value")
		}
		if _, ok := r.(*LiftError); !ok {
			t.Errorf("expected panic value to be *LiftError, got %T", r)
		}
	}()
	Repr(&Carrier{})
}

func TestLiftRoundTripsEveryPayloadKind(t *testing.T) {
	tests := []struct {
		name string
		c    *Carrier
	}{
		{"undefined", Undef()},
		{"null", NullValue()},
		{"bool", Bool_(true)},
		{"number", Num(3.5)},
		{"bigint", BigIntVal(big.NewInt(42))},
		{"string", Str("hi")},
		{"regex", RegexVal("a+", "g")},
		{"array", ArrayVal([]*Carrier{Num(1), Str("x")})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if node := Repr(tt.c); node == nil {
				t.Errorf("Repr(%v) returned nil node", tt.name)
			}
		})
	}
}

func TestLiftPanicsOnFunctionWithNilClosure(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected Lift to panic on a Function payload with a nil Fn")
		}
	}()
	Lift(&Payload{Kind: Function})
}
