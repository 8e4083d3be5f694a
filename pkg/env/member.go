package env

import (
	"math"
	"strconv"

	"github.com/hatlesswizard/jstaintfold/pkg/ast"
	"github.com/hatlesswizard/jstaintfold/pkg/value"
)

// MemberWrite describes which of assign_member's four policies fired, so
// the Evaluator can choose the matching residual shape.
type MemberWrite int

const (
	// WriteNoOpObjectTainted: the object carrier was tainted; no store
	// happened (policy a).
	WriteNoOpObjectTainted MemberWrite = iota
	// WriteNoOpKeyTainted: the key carrier was tainted (or not a concrete
	// index into our array-only object model); no store happened, and the
	// caller is expected to additionally taint the path (policy b).
	WriteNoOpKeyTainted
	// WriteTaintedParentRef: taint_parent_writes was set and the object
	// lives in an ancestor scope; a tainted reference was stored at the
	// key and the ancestor's object binding was degraded to a
	// reference-only tainted-appearing node (policy c).
	WriteTaintedParentRef
	// WritePlain: a plain indexed store happened (policy d).
	WritePlain
)

// indexOf resolves a key carrier to a concrete non-negative integer array
// index. Only Number and numeric String payloads resolve; anything else
// (including a tainted carrier) fails, matching the array-only object
// model this evaluator supports.
func indexOf(key *value.Carrier) (int, bool) {
	if key == nil || key.Tainted || key.Value == nil {
		return 0, false
	}
	var f float64
	switch key.Value.Kind {
	case value.Number:
		f = key.Value.Number
	case value.String:
		n, err := strconv.ParseFloat(key.Value.Str, 64)
		if err != nil {
			return 0, false
		}
		f = n
	default:
		return 0, false
	}
	if f < 0 || f != math.Trunc(f) || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int(f), true
}

// ensureLen grows arr so index i is addressable, padding new slots with
// untainted undefined (array holes read as untainted undefined).
func ensureLen(arr []*value.Carrier, i int) []*value.Carrier {
	for len(arr) <= i {
		arr = append(arr, value.Undef())
	}
	return arr
}

// AssignMember implements assign_member. objCarrier must be the raw
// carrier fetched via Lookup (so its Payload pointer is shared with
// whatever scope owns objName); objOwner is that owning scope.
func (e *Environment) AssignMember(objName string, objCarrier *value.Carrier, objOwner *Environment, key *value.Carrier, rhs *value.Carrier) MemberWrite {
	if objCarrier.Tainted {
		return WriteNoOpObjectTainted
	}
	idx, ok := indexOf(key)
	if !ok {
		return WriteNoOpKeyTainted
	}
	if objCarrier.Value == nil || objCarrier.Value.Kind != value.Array {
		objCarrier.Value = &value.Payload{Kind: value.Array}
	}
	if e.TaintParentWrites && objOwner != e {
		objCarrier.Value.Array = ensureLen(objCarrier.Value.Array, idx)
		objCarrier.Value.Array[idx] = value.TaintedNode(&ast.MemberExpression{
			Object:   ast.Ident(objName),
			Property: &ast.NumericLiteral{Value: float64(idx)},
			Computed: true,
		})
		objOwner.record[objName] = &value.Carrier{Value: objCarrier.Value, Node: ast.Ident(objName), Tainted: true}
		return WriteTaintedParentRef
	}
	objCarrier.Value.Array = ensureLen(objCarrier.Value.Array, idx)
	objCarrier.Value.Array[idx] = rhs
	return WritePlain
}

// AssignNestedMember implements assign_nested_member: walks path (a
// sequence of key carriers) from objCarrier, taints the
// sub-object in place and returns as soon as a step's key is tainted, and
// otherwise applies AssignMember's policy at the final step.
func (e *Environment) AssignNestedMember(objName string, objCarrier *value.Carrier, objOwner *Environment, path []*value.Carrier, rhs *value.Carrier) MemberWrite {
	if len(path) == 0 {
		return WriteNoOpKeyTainted
	}
	cur := objCarrier
	for i := 0; i < len(path)-1; i++ {
		if cur.Tainted {
			return WriteNoOpObjectTainted
		}
		idx, ok := indexOf(path[i])
		if !ok {
			cur.Tainted = true
			return WriteNoOpKeyTainted
		}
		if cur.Value == nil || cur.Value.Kind != value.Array {
			cur.Value = &value.Payload{Kind: value.Array}
		}
		cur.Value.Array = ensureLen(cur.Value.Array, idx)
		cur = cur.Value.Array[idx]
	}
	last := path[len(path)-1]
	return e.AssignMember(objName, cur, objOwner, last, rhs)
}
