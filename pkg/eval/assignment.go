package eval

import (
	"strings"

	"github.com/hatlesswizard/jstaintfold/pkg/ast"
	"github.com/hatlesswizard/jstaintfold/pkg/diag"
	"github.com/hatlesswizard/jstaintfold/pkg/env"
	"github.com/hatlesswizard/jstaintfold/pkg/value"
)

// evalAssignment implements the assignment-expression arm for both of its
// supported target shapes.
func (ev *Evaluator) evalAssignment(v *ast.AssignmentExpression, e *env.Environment) (*value.Carrier, error) {
	switch target := v.Left.(type) {
	case *ast.Identifier:
		return ev.assignIdentifier(v, target, e)
	case *ast.MemberExpression:
		return ev.assignMember(v, target, e)
	default:
		return nil, notImplementedErr("assignment target")
	}
}

// baseOperator strips a compound assignment's trailing `=` to recover the
// binary operator it applies (`+=` -> `+`); plain `=` has no base operator.
func baseOperator(op string) string {
	return strings.TrimSuffix(op, "=")
}

// assignIdentifier implements the Identifier-target case of the
// assignment arm: tainted RHS or a tainted existing LHS under a compound
// operator always residualizes; a pure `=` with an untainted RHS stores the
// value directly.
func (ev *Evaluator) assignIdentifier(v *ast.AssignmentExpression, target *ast.Identifier, e *env.Environment) (*value.Carrier, error) {
	rhs, err := ev.EvalExpr(v.Right, e)
	if err != nil {
		return nil, err
	}

	if v.Operator == "=" {
		if rhs.Tainted {
			residual := &ast.AssignmentExpression{Operator: "=", Left: target, Right: value.Repr(rhs)}
			if err := e.Assign(target.Name, value.TaintedNode(ast.Ident(target.Name))); err != nil {
				return nil, err
			}
			return value.TaintedNode(residual), nil
		}
		if err := e.Assign(target.Name, rhs); err != nil {
			return nil, err
		}
		return rhs, nil
	}

	// Compound operator: the existing value participates, so it must
	// resolve first to check whether the existing LHS is already tainted.
	cur, err := e.Resolve(target.Name)
	if err != nil {
		return nil, err
	}
	if cur.Tainted || rhs.Tainted {
		residual := &ast.AssignmentExpression{Operator: v.Operator, Left: target, Right: value.Repr(rhs)}
		if err := e.Assign(target.Name, value.TaintedNode(ast.Ident(target.Name))); err != nil {
			return nil, err
		}
		return value.TaintedNode(residual), nil
	}
	p, err := applyBinary(baseOperator(v.Operator), cur.Value, rhs.Value)
	if err != nil {
		return nil, err
	}
	newCarrier := value.Concrete(p)
	if err := e.Assign(target.Name, newCarrier); err != nil {
		return nil, err
	}
	return newCarrier, nil
}

// memberStep is one key in a flattened member-access path, preserving
// whether it was written in dot or computed form so the residual can be
// rebuilt in the same shape.
type memberStep struct {
	key      *value.Carrier
	computed bool
}

// flattenMemberPath walks a (possibly nested) MemberExpression chain down
// to its root identifier, evaluating every key along the way, so the
// assignment residual can reflect the simplified path in one pass (e.g.
// a[2+2][1] folds to a[4][1]).
func (ev *Evaluator) flattenMemberPath(m *ast.MemberExpression, e *env.Environment) (*ast.Identifier, []memberStep, error) {
	var steps []memberStep
	var cur ast.Node = m
	for {
		mx, ok := cur.(*ast.MemberExpression)
		if !ok {
			break
		}
		key, err := ev.evalKeyNode(mx.Property, mx.Computed, e)
		if err != nil {
			return nil, nil, err
		}
		steps = append([]memberStep{{key: key, computed: mx.Computed}}, steps...)
		cur = mx.Object
	}
	root, ok := cur.(*ast.Identifier)
	if !ok {
		return nil, nil, notImplementedErr("assignment to a nested member with a non-identifier root")
	}
	return root, steps, nil
}

// memberPathNode rebuilds the simplified object[key1][key2]... residual
// form from a root identifier and its flattened steps.
func memberPathNode(root ast.Node, steps []memberStep) ast.Node {
	node := root
	for _, s := range steps {
		node = buildMemberResidual(node, s.key, s.computed, false)
	}
	return node
}

// readMemberPath walks objCarrier by keys without mutating anything, to
// find the value already stored at the target leaf (needed for a compound
// operator, and to detect a tainted existing stored value at the leaf).
// blocked is true when the path cannot be resolved concretely (a tainted
// object/key anywhere along it); the caller must then treat the whole
// assignment as ambiguous. An absent or out-of-range
// slot is not blocked; it reads as untainted undefined, matching evalMember's
// read semantics for the same shape.
func readMemberPath(obj *value.Carrier, keys []*value.Carrier) (leaf *value.Carrier, blocked bool) {
	cur := obj
	for _, k := range keys {
		if cur.Tainted || k.Tainted {
			return nil, true
		}
		if cur.Value == nil || cur.Value.Kind != value.Array {
			return value.Undef(), false
		}
		idx, ok := indexOfCarrier(k)
		if !ok {
			return nil, true
		}
		if idx >= len(cur.Value.Array) {
			return value.Undef(), false
		}
		cur = cur.Value.Array[idx]
	}
	return cur, false
}

// assignMember implements the member-target case of the assignment arm,
// following its five-way case matrix.
func (ev *Evaluator) assignMember(v *ast.AssignmentExpression, target *ast.MemberExpression, e *env.Environment) (*value.Carrier, error) {
	root, steps, err := ev.flattenMemberPath(target, e)
	if err != nil {
		return nil, err
	}
	objCarrier, owner, ok := e.Lookup(root.Name)
	if !ok {
		return nil, diag.NewReferenceUnresolved(root.Name)
	}
	rhs, err := ev.EvalExpr(v.Right, e)
	if err != nil {
		return nil, err
	}

	pathNode := memberPathNode(root, steps)
	keys := make([]*value.Carrier, len(steps))
	for i, s := range steps {
		keys[i] = s.key
	}

	leaf, blocked := readMemberPath(objCarrier, keys)

	// Cases 1 and 2: the root or some path key is tainted. No value is
	// stored (env's WriteNoOpObjectTainted/WriteNoOpKeyTainted policies);
	// instead the deepest reachable sub-object, the one indexed by the first
	// key that is not a concrete index, is tainted in place and given a
	// reference node for its path. A tainted root is left as it is.
	if blocked {
		ev.storeAssignMember(e, root, objCarrier, owner, keys, value.TaintedNode(pathNode))
		cur := objCarrier
		for i, k := range keys {
			if cur.Tainted {
				break
			}
			idx, ok := indexOfCarrier(k)
			if !ok {
				cur.Tainted = true
				cur.Node = memberPathNode(root, steps[:i])
				break
			}
			if cur.Value == nil || cur.Value.Kind != value.Array || idx >= len(cur.Value.Array) {
				break
			}
			cur = cur.Value.Array[idx]
		}
		residual := &ast.AssignmentExpression{Operator: v.Operator, Left: pathNode, Right: value.Repr(rhs)}
		return value.TaintedNode(residual), nil
	}

	// Cases 3 and 4: path fully concrete, but the stored leaf or the RHS is
	// tainted, so taint propagates through the store.
	if leaf.Tainted || rhs.Tainted {
		var storeNode ast.Node
		if v.Operator == "=" {
			storeNode = value.Repr(rhs)
		} else {
			storeNode = &ast.BinaryExpression{Left: value.Repr(leaf), Operator: baseOperator(v.Operator), Right: value.Repr(rhs)}
		}
		ev.storeAssignMember(e, root, objCarrier, owner, keys, value.TaintedNode(storeNode))
		residual := &ast.AssignmentExpression{Operator: v.Operator, Left: pathNode, Right: value.Repr(rhs)}
		return value.TaintedNode(residual), nil
	}

	// Case 5: everything concrete.
	var newPayload *value.Payload
	if v.Operator == "=" {
		newPayload = rhs.Value
	} else {
		p, err := applyBinary(baseOperator(v.Operator), leaf.Value, rhs.Value)
		if err != nil {
			return nil, err
		}
		newPayload = p
	}
	newCarrier := value.Concrete(newPayload)
	ev.storeAssignMember(e, root, objCarrier, owner, keys, newCarrier)
	residual := &ast.AssignmentExpression{Operator: v.Operator, Left: pathNode, Right: value.Repr(rhs)}
	return &value.Carrier{Value: newPayload, Node: residual}, nil
}

// storeAssignMember dispatches to env's single- or multi-key member write
// depending on path depth; AssignMember's policy return value needs no
// further handling here since every caller already derived its own residual
// independently of which policy fired.
func (ev *Evaluator) storeAssignMember(e *env.Environment, root *ast.Identifier, objCarrier *value.Carrier, owner *env.Environment, keys []*value.Carrier, stored *value.Carrier) {
	if len(keys) == 1 {
		e.AssignMember(root.Name, objCarrier, owner, keys[0], stored)
		return
	}
	e.AssignNestedMember(root.Name, objCarrier, owner, keys, stored)
}
