package env

import (
	"testing"

	"github.com/hatlesswizard/jstaintfold/pkg/value"
)

func TestAssignMemberPlainWrite(t *testing.T) {
	e := New(nil)
	e.DeclareAs("a", value.ArrayVal([]*value.Carrier{value.Num(1), value.Num(2)}))
	obj, owner, _ := e.Lookup("a")

	policy := e.AssignMember("a", obj, owner, value.Num(1), value.Num(99))
	if policy != WritePlain {
		t.Fatalf("policy = %v, want WritePlain", policy)
	}
	if obj.Value.Array[1].Value.Number != 99 {
		t.Errorf("expected index 1 updated to 99, got %v", obj.Value.Array[1])
	}
}

func TestAssignMemberGrowsArrayWithUndefinedHoles(t *testing.T) {
	e := New(nil)
	e.DeclareAs("a", value.ArrayVal(nil))
	obj, owner, _ := e.Lookup("a")

	e.AssignMember("a", obj, owner, value.Num(2), value.Num(7))
	if len(obj.Value.Array) != 3 {
		t.Fatalf("expected array grown to length 3, got %d", len(obj.Value.Array))
	}
	if !obj.Value.Array[0].IsUndefined() || !obj.Value.Array[1].IsUndefined() {
		t.Error("expected padding slots to read as untainted undefined")
	}
	if obj.Value.Array[2].Value.Number != 7 {
		t.Errorf("expected index 2 set to 7, got %v", obj.Value.Array[2])
	}
}

func TestAssignMemberObjectTaintedNoOp(t *testing.T) {
	e := New(nil)
	e.DeclareAs("a", value.TaintedNode(nil))
	obj, owner, _ := e.Lookup("a")

	policy := e.AssignMember("a", obj, owner, value.Num(0), value.Num(1))
	if policy != WriteNoOpObjectTainted {
		t.Fatalf("policy = %v, want WriteNoOpObjectTainted", policy)
	}
}

func TestAssignMemberKeyTaintedNoOp(t *testing.T) {
	e := New(nil)
	e.DeclareAs("a", value.ArrayVal([]*value.Carrier{value.Num(1)}))
	obj, owner, _ := e.Lookup("a")

	policy := e.AssignMember("a", obj, owner, value.TaintedNode(nil), value.Num(1))
	if policy != WriteNoOpKeyTainted {
		t.Fatalf("policy = %v, want WriteNoOpKeyTainted", policy)
	}
	if obj.Value.Array[0].Value.Number != 1 {
		t.Error("expected the array untouched when the key is unresolvable")
	}
}

func TestAssignMemberNonNumericStringKeyNoOp(t *testing.T) {
	e := New(nil)
	e.DeclareAs("a", value.ArrayVal([]*value.Carrier{value.Num(1)}))
	obj, owner, _ := e.Lookup("a")

	policy := e.AssignMember("a", obj, owner, value.Str("foo"), value.Num(1))
	if policy != WriteNoOpKeyTainted {
		t.Fatalf("policy = %v, want WriteNoOpKeyTainted for a non-numeric key", policy)
	}
}

func TestAssignMemberNumericStringKeyResolves(t *testing.T) {
	e := New(nil)
	e.DeclareAs("a", value.ArrayVal([]*value.Carrier{value.Num(1), value.Num(2)}))
	obj, owner, _ := e.Lookup("a")

	policy := e.AssignMember("a", obj, owner, value.Str("1"), value.Num(50))
	if policy != WritePlain {
		t.Fatalf("policy = %v, want WritePlain", policy)
	}
	if obj.Value.Array[1].Value.Number != 50 {
		t.Errorf("expected numeric-string key \"1\" to resolve to index 1, got %v", obj.Value.Array[1])
	}
}

func TestAssignMemberTaintParentWritesDegradesToReference(t *testing.T) {
	root := New(nil)
	root.DeclareAs("a", value.ArrayVal([]*value.Carrier{value.Num(1)}))
	child := New(root)
	child.TaintParentWrites = true
	obj, owner, _ := root.Lookup("a")

	policy := child.AssignMember("a", obj, owner, value.Num(0), value.Num(99))
	if policy != WriteTaintedParentRef {
		t.Fatalf("policy = %v, want WriteTaintedParentRef", policy)
	}
	degraded, _, _ := root.Lookup("a")
	if !degraded.Tainted {
		t.Error("expected the ancestor's object binding degraded to tainted")
	}
	if !obj.Value.Array[0].Tainted {
		t.Error("expected the written slot itself to be a tainted reference")
	}
}

func TestAssignNestedMemberWalksIntermediateSteps(t *testing.T) {
	e := New(nil)
	inner := value.ArrayVal([]*value.Carrier{value.Num(10), value.Num(20)})
	e.DeclareAs("a", value.ArrayVal([]*value.Carrier{inner}))
	obj, owner, _ := e.Lookup("a")

	policy := e.AssignNestedMember("a", obj, owner, []*value.Carrier{value.Num(0), value.Num(1)}, value.Num(999))
	if policy != WritePlain {
		t.Fatalf("policy = %v, want WritePlain", policy)
	}
	if obj.Value.Array[0].Value.Array[1].Value.Number != 999 {
		t.Errorf("expected nested index [0][1] updated to 999, got %v", obj.Value.Array[0].Value.Array[1])
	}
}

func TestAssignNestedMemberTaintsIntermediateOnUnresolvableKey(t *testing.T) {
	e := New(nil)
	inner := value.ArrayVal([]*value.Carrier{value.Num(10)})
	e.DeclareAs("a", value.ArrayVal([]*value.Carrier{inner}))
	obj, owner, _ := e.Lookup("a")

	policy := e.AssignNestedMember("a", obj, owner, []*value.Carrier{value.TaintedNode(nil), value.Num(0)}, value.Num(1))
	if policy != WriteNoOpKeyTainted {
		t.Fatalf("policy = %v, want WriteNoOpKeyTainted", policy)
	}
	if !obj.Tainted {
		t.Error("expected the root object to be tainted in place when an intermediate key is unresolvable")
	}
}

func TestAssignNestedMemberAutoVivifiesMissingIntermediateArray(t *testing.T) {
	e := New(nil)
	e.DeclareAs("a", value.ArrayVal(nil))
	obj, owner, _ := e.Lookup("a")

	policy := e.AssignNestedMember("a", obj, owner, []*value.Carrier{value.Num(0), value.Num(0)}, value.Num(5))
	if policy != WritePlain {
		t.Fatalf("policy = %v, want WritePlain", policy)
	}
	if obj.Value.Array[0].Value.Array[0].Value.Number != 5 {
		t.Error("expected an intermediate array auto-vivified then written through")
	}
}
