package eval

import (
	"math/big"
	"strconv"

	"github.com/hatlesswizard/jstaintfold/pkg/ast"
	"github.com/hatlesswizard/jstaintfold/pkg/diag"
	"github.com/hatlesswizard/jstaintfold/pkg/env"
	"github.com/hatlesswizard/jstaintfold/pkg/value"
)

func (ev *Evaluator) evalBigIntLiteral(v *ast.BigIntLiteral) (*value.Carrier, error) {
	n, ok := new(big.Int).SetString(v.Value, 10)
	if !ok {
		return nil, diag.NewInternalInvariant("malformed bigint literal %q", v.Value)
	}
	return value.BigIntVal(n), nil
}

// evalBinary implements the binary-expression arm.
func (ev *Evaluator) evalBinary(v *ast.BinaryExpression, e *env.Environment) (*value.Carrier, error) {
	l, err := ev.EvalExpr(v.Left, e)
	if err != nil {
		return nil, err
	}
	r, err := ev.EvalExpr(v.Right, e)
	if err != nil {
		return nil, err
	}
	if l.Tainted || r.Tainted {
		return value.TaintedNode(&ast.BinaryExpression{Left: value.Repr(l), Operator: v.Operator, Right: value.Repr(r)}), nil
	}
	p, err := applyBinary(v.Operator, l.Value, r.Value)
	if err != nil {
		return nil, err
	}
	return value.Concrete(p), nil
}

// evalLogical implements the logical-expression arm: `&&`, `||`, `??`
// short-circuit without evaluating the right side when the left untainted
// operand already determines the outcome.
func (ev *Evaluator) evalLogical(v *ast.LogicalExpression, e *env.Environment) (*value.Carrier, error) {
	l, err := ev.EvalExpr(v.Left, e)
	if err != nil {
		return nil, err
	}
	if !l.Tainted {
		switch v.Operator {
		case "&&":
			if !l.Truthy() {
				return l, nil
			}
		case "||":
			if l.Truthy() {
				return l, nil
			}
		case "??":
			if !l.IsNullish() {
				return l, nil
			}
		}
		r, err := ev.EvalExpr(v.Right, e)
		if err != nil {
			return nil, err
		}
		return r, nil
	}
	r, err := ev.EvalExpr(v.Right, e)
	if err != nil {
		return nil, err
	}
	return value.TaintedNode(&ast.LogicalExpression{Left: value.Repr(l), Operator: v.Operator, Right: value.Repr(r)}), nil
}

// evalUnary implements the unary-expression arm, including `throw` as a
// runtime throw and `void` always yielding `undefined`.
func (ev *Evaluator) evalUnary(v *ast.UnaryExpression, e *env.Environment) (*value.Carrier, error) {
	if v.Operator == "void" {
		if _, err := ev.EvalExpr(v.Argument, e); err != nil {
			return nil, err
		}
		return value.Undef(), nil
	}
	arg, err := ev.EvalExpr(v.Argument, e)
	if err != nil {
		return nil, err
	}
	if v.Operator == "throw" {
		return nil, &runtimeThrow{value: arg}
	}
	if arg.Tainted {
		return value.TaintedNode(&ast.UnaryExpression{Operator: v.Operator, Argument: value.Repr(arg), Prefix: v.Prefix}), nil
	}
	return applyUnary(v.Operator, arg)
}

// evalUpdate implements the update-expression arm for both identifier
// and member-access operands.
func (ev *Evaluator) evalUpdate(v *ast.UpdateExpression, e *env.Environment) (*value.Carrier, error) {
	switch target := v.Argument.(type) {
	case *ast.Identifier:
		cur, err := e.Resolve(target.Name)
		if err != nil {
			return nil, err
		}
		if cur.Tainted {
			residual := &ast.UpdateExpression{Operator: v.Operator, Argument: value.Repr(cur), Prefix: v.Prefix}
			_ = e.Assign(target.Name, value.TaintedNode(ast.Ident(target.Name)))
			return value.TaintedNode(residual), nil
		}
		oldP := cur.Value
		delta := 1.0
		if v.Operator == "--" {
			delta = -1.0
		}
		newP := &value.Payload{Kind: value.Number, Number: toNumber(oldP) + delta}
		if oldP.Kind == value.BigInt {
			step := big.NewInt(1)
			if v.Operator == "--" {
				step = big.NewInt(-1)
			}
			newP = &value.Payload{Kind: value.BigInt, Big: new(big.Int).Add(oldP.Big, step)}
		}
		newCarrier := value.Concrete(newP)
		if err := e.Assign(target.Name, newCarrier); err != nil {
			return nil, err
		}
		if v.Prefix {
			return newCarrier, nil
		}
		return value.Concrete(oldP), nil
	case *ast.MemberExpression:
		return ev.evalUpdateMember(v, target, e)
	default:
		return nil, notImplementedErr("update expression target")
	}
}

func (ev *Evaluator) evalUpdateMember(v *ast.UpdateExpression, target *ast.MemberExpression, e *env.Environment) (*value.Carrier, error) {
	rootID, ok := target.Object.(*ast.Identifier)
	if !ok {
		return nil, notImplementedErr("update expression on nested member target")
	}
	objCarrier, owner, ok := e.Lookup(rootID.Name)
	if !ok {
		return nil, diag.NewReferenceUnresolved(rootID.Name)
	}
	key, err := ev.memberKey(target, e)
	if err != nil {
		return nil, err
	}
	if objCarrier.Tainted || key.Tainted {
		if key.Tainted && !objCarrier.Tainted {
			owner.SetTaint(rootID.Name, true)
		}
		residual := &ast.UpdateExpression{Operator: v.Operator, Argument: &ast.MemberExpression{Object: rootID, Property: value.Repr(key), Computed: target.Computed}, Prefix: v.Prefix}
		return value.TaintedNode(residual), nil
	}
	idx, ok := indexOfCarrier(key)
	if !ok || objCarrier.Value == nil || objCarrier.Value.Kind != value.Array || idx >= len(objCarrier.Value.Array) {
		return nil, notImplementedErr("update on non-indexable member")
	}
	elem := objCarrier.Value.Array[idx]
	if elem.Tainted {
		residual := &ast.UpdateExpression{Operator: v.Operator, Argument: &ast.MemberExpression{Object: rootID, Property: value.Repr(key), Computed: target.Computed}, Prefix: v.Prefix}
		return value.TaintedNode(residual), nil
	}
	delta := 1.0
	if v.Operator == "--" {
		delta = -1.0
	}
	newCarrier := value.Num(toNumber(elem.Value) + delta)
	objCarrier.Value.Array[idx] = newCarrier
	if v.Prefix {
		return newCarrier, nil
	}
	return value.Concrete(elem.Value), nil
}

// evalSequence implements the comma operator: evaluate each
// sub-expression in order; the last carrier's value/taint wins, but the
// residual node always lists every fragment.
func (ev *Evaluator) evalSequence(v *ast.SequenceExpression, e *env.Environment) (*value.Carrier, error) {
	carriers := make([]*value.Carrier, 0, len(v.Expressions))
	for _, expr := range v.Expressions {
		c, err := ev.EvalExpr(expr, e)
		if err != nil {
			return nil, err
		}
		carriers = append(carriers, c)
	}
	last := carriers[len(carriers)-1]
	frags := make([]ast.Node, len(carriers))
	for i, c := range carriers {
		frags[i] = value.Repr(c)
	}
	return &value.Carrier{Value: last.Value, Node: &ast.SequenceExpression{Expressions: frags}, Tainted: last.Tainted}, nil
}

// evalConditional implements the ternary arm.
func (ev *Evaluator) evalConditional(v *ast.ConditionalExpression, e *env.Environment) (*value.Carrier, error) {
	test, err := ev.EvalExpr(v.Test, e)
	if err != nil {
		return nil, err
	}
	if !test.Tainted {
		if test.Truthy() {
			return ev.EvalExpr(v.Consequent, e)
		}
		return ev.EvalExpr(v.Alternate, e)
	}

	consEnv := env.New(e)
	consEnv.TaintParentWrites = true
	cons, err := ev.EvalExpr(v.Consequent, consEnv)
	if err != nil {
		return nil, err
	}
	altEnv := env.New(e)
	altEnv.TaintParentWrites = true
	alt, err := ev.EvalExpr(v.Alternate, altEnv)
	if err != nil {
		return nil, err
	}
	leakLocals(consEnv, e)
	leakLocals(altEnv, e)
	residual := &ast.ConditionalExpression{Test: value.Repr(test), Consequent: value.Repr(cons), Alternate: value.Repr(alt)}
	return value.TaintedNode(residual), nil
}

// leakLocals declares every name introduced in a discarded branch's local
// scope into the parent as a tainted reference.
func leakLocals(branch *env.Environment, parent *env.Environment) {
	for _, name := range branch.Names() {
		if _, owner, ok := parent.Lookup(name); ok && owner == parent {
			parent.SetTaint(name, true)
			continue
		}
		parent.Declare(name)
		parent.SetTaint(name, true)
	}
}

func (ev *Evaluator) evalArray(v *ast.ArrayExpression, e *env.Environment) (*value.Carrier, error) {
	elems := make([]*value.Carrier, len(v.Elements))
	for i, el := range v.Elements {
		if el == nil {
			elems[i] = value.Undef()
			continue
		}
		c, err := ev.EvalExpr(el, e)
		if err != nil {
			return nil, err
		}
		elems[i] = c
	}
	return value.ArrayVal(elems), nil
}

// memberKey evaluates a MemberExpression's property, using the bare
// identifier name as the key when the access is dotted. Used by the
// update-expression arm, which only ever targets a plain (non-optional)
// member.
func (ev *Evaluator) memberKey(n *ast.MemberExpression, e *env.Environment) (*value.Carrier, error) {
	if !n.Computed {
		id := n.Property.(*ast.Identifier)
		return value.Str(id.Name), nil
	}
	return ev.EvalExpr(n.Property, e)
}

func indexOfCarrier(key *value.Carrier) (int, bool) {
	if key.Tainted || key.Value == nil {
		return 0, false
	}
	switch key.Value.Kind {
	case value.Number:
		f := key.Value.Number
		if f < 0 || f != float64(int(f)) {
			return 0, false
		}
		return int(f), true
	case value.String:
		n, err := strconv.Atoi(key.Value.Str)
		if err != nil || n < 0 {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// evalMember implements the member/optional-member arm.
func (ev *Evaluator) evalMember(v ast.Node, e *env.Environment, optional bool) (*value.Carrier, error) {
	var objNode, propNode ast.Node
	var computed bool
	switch m := v.(type) {
	case *ast.MemberExpression:
		objNode, propNode, computed = m.Object, m.Property, m.Computed
	case *ast.OptionalMemberExpression:
		objNode, propNode, computed = m.Object, m.Property, m.Computed
	}

	obj, err := ev.EvalExpr(objNode, e)
	if err != nil {
		return nil, err
	}
	if optional && !obj.Tainted && obj.IsNullish() {
		return value.Undef(), nil
	}
	if obj.Tainted {
		key, err := ev.evalKeyNode(propNode, computed, e)
		if err != nil {
			return nil, err
		}
		return value.TaintedNode(buildMemberResidual(value.Repr(obj), key, computed, optional)), nil
	}

	keyCarrier, err := ev.evalKeyNode(propNode, computed, e)
	if err != nil {
		return nil, err
	}
	if keyCarrier.Tainted {
		return value.TaintedNode(buildMemberResidual(value.Repr(obj), keyCarrier, computed, optional)), nil
	}
	idx, ok := indexOfCarrier(keyCarrier)
	if !ok || obj.Value == nil || obj.Value.Kind != value.Array || idx >= len(obj.Value.Array) || obj.Value.Array[idx] == nil {
		return value.Undef(), nil
	}
	return obj.Value.Array[idx], nil
}

func (ev *Evaluator) evalKeyNode(propNode ast.Node, computed bool, e *env.Environment) (*value.Carrier, error) {
	if !computed {
		id := propNode.(*ast.Identifier)
		return value.Str(id.Name), nil
	}
	return ev.EvalExpr(propNode, e)
}

// buildMemberResidual prefers a named identifier key form when the key is
// a valid-identifier string, falling back to computed form otherwise.
func buildMemberResidual(objNode ast.Node, key *value.Carrier, computed bool, optional bool) ast.Node {
	propNode := value.Repr(key)
	useComputed := computed
	if s, ok := propNode.(*ast.StringLiteral); ok && isValidIdentifierName(s.Value) {
		propNode = ast.Ident(s.Value)
		useComputed = false
	} else if computed {
		useComputed = true
	}
	if optional {
		return &ast.OptionalMemberExpression{Object: objNode, Property: propNode, Computed: useComputed}
	}
	return &ast.MemberExpression{Object: objNode, Property: propNode, Computed: useComputed}
}

func isValidIdentifierName(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		isLetter := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '_' || r == '$'
		isDigit := r >= '0' && r <= '9'
		if i == 0 && !isLetter {
			return false
		}
		if i > 0 && !isLetter && !isDigit {
			return false
		}
	}
	return true
}

func (ev *Evaluator) evalFunctionExpression(v *ast.FunctionExpression, e *env.Environment) (*value.Carrier, error) {
	name := ""
	if v.ID != nil {
		name = v.ID.Name
	}
	if v.Generator || v.Async {
		return nil, notImplementedErr("generator/async function")
	}
	closure, err := ev.buildClosure(name, v.Params, v.Body, e)
	if err != nil {
		return nil, err
	}
	fnCarrier := value.FunctionVal(closure)
	if name != "" {
		e.Declare(name)
		_ = e.Assign(name, fnCarrier)
	}
	return fnCarrier, nil
}

// evalCall implements the call-expression arm.
func (ev *Evaluator) evalCall(v *ast.CallExpression, e *env.Environment) (*value.Carrier, error) {
	callee, err := ev.EvalExpr(v.Callee, e)
	if err != nil {
		return nil, err
	}
	args := make([]*value.Carrier, len(v.Arguments))
	for i, a := range v.Arguments {
		c, err := ev.EvalExpr(a, e)
		if err != nil {
			return nil, err
		}
		args[i] = c
	}
	if callee.Tainted {
		return value.TaintedNode(callResidual(value.Repr(callee), args)), nil
	}
	if callee.Value == nil || callee.Value.Kind != value.Function {
		return nil, notImplementedErr("call of non-function value")
	}
	closure, ok := callee.Value.Fn.(*Closure)
	if !ok {
		return nil, diag.NewInternalInvariant("call target is not an evaluator closure")
	}
	ret, err := ev.Invoke(closure, args)
	if err != nil {
		return nil, err
	}
	residualCall := callResidual(value.Repr(callee), args)
	if !ret.Tainted {
		return &value.Carrier{Value: ret.Value, Node: &ast.SequenceExpression{Expressions: []ast.Node{residualCall, value.Repr(ret)}}}, nil
	}
	return value.TaintedNode(residualCall), nil
}

func callResidual(calleeNode ast.Node, args []*value.Carrier) ast.Node {
	argNodes := make([]ast.Node, len(args))
	for i, a := range args {
		argNodes[i] = value.Repr(a)
	}
	return &ast.CallExpression{Callee: calleeNode, Arguments: argNodes}
}
