package ast

import "reflect"

// isNilNode reports whether a Node interface value holds either no value
// or a typed nil pointer (e.g. a nil *BlockStatement passed in as Node for
// an absent TryStatement.Finalizer). Both must compare as "absent".
func isNilNode(n Node) bool {
	if n == nil {
		return true
	}
	v := reflect.ValueOf(n)
	switch v.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Slice, reflect.Map, reflect.Chan, reflect.Func:
		return v.IsNil()
	default:
		return false
	}
}

// Equivalent implements the tree-equivalence predicate the evaluator uses
// to detect a loop's fixed point during tainted-loop simplification. It is
// structural: two trees compare equal when
// they have the same shape and the same literal/operator/name payloads,
// with one deliberate normalization carried over from the design notes
// (§9): a computed member expression with a string key that happens to be
// a valid identifier is treated as equivalent to the dot form of the same
// access, since the simplifier may legally emit either.
func Equivalent(a, b Node) bool {
	aNil, bNil := isNilNode(a), isNilNode(b)
	if aNil || bNil {
		return aNil && bNil
	}

	if am, bm, ok := asMemberPair(a, b); ok {
		return equivalentMember(am, bm)
	}

	switch av := a.(type) {
	case *Program:
		bv, ok := b.(*Program)
		return ok && equivalentNodeSlice(av.Body, bv.Body)
	case *ExpressionStatement:
		bv, ok := b.(*ExpressionStatement)
		return ok && Equivalent(av.Expression, bv.Expression)
	case *BlockStatement:
		bv, ok := b.(*BlockStatement)
		return ok && equivalentNodeSlice(av.Body, bv.Body)
	case *EmptyStatement:
		_, ok := b.(*EmptyStatement)
		return ok
	case *VariableDeclaration:
		bv, ok := b.(*VariableDeclaration)
		if !ok || av.Kind != bv.Kind || len(av.Declarations) != len(bv.Declarations) {
			return false
		}
		for i := range av.Declarations {
			if !Equivalent(av.Declarations[i], bv.Declarations[i]) {
				return false
			}
		}
		return true
	case *VariableDeclarator:
		bv, ok := b.(*VariableDeclarator)
		return ok && Equivalent(av.ID, bv.ID) && Equivalent(av.Init, bv.Init)
	case *Identifier:
		bv, ok := b.(*Identifier)
		return ok && av.Name == bv.Name
	case *StringLiteral:
		bv, ok := b.(*StringLiteral)
		return ok && av.Value == bv.Value
	case *NumericLiteral:
		bv, ok := b.(*NumericLiteral)
		return ok && av.Value == bv.Value
	case *BooleanLiteral:
		bv, ok := b.(*BooleanLiteral)
		return ok && av.Value == bv.Value
	case *NullLiteral:
		_, ok := b.(*NullLiteral)
		return ok
	case *BigIntLiteral:
		bv, ok := b.(*BigIntLiteral)
		return ok && av.Value == bv.Value
	case *RegExpLiteral:
		bv, ok := b.(*RegExpLiteral)
		return ok && av.Pattern == bv.Pattern && av.Flags == bv.Flags
	case *BinaryExpression:
		bv, ok := b.(*BinaryExpression)
		return ok && av.Operator == bv.Operator && Equivalent(av.Left, bv.Left) && Equivalent(av.Right, bv.Right)
	case *LogicalExpression:
		bv, ok := b.(*LogicalExpression)
		return ok && av.Operator == bv.Operator && Equivalent(av.Left, bv.Left) && Equivalent(av.Right, bv.Right)
	case *UnaryExpression:
		bv, ok := b.(*UnaryExpression)
		return ok && av.Operator == bv.Operator && av.Prefix == bv.Prefix && Equivalent(av.Argument, bv.Argument)
	case *UpdateExpression:
		bv, ok := b.(*UpdateExpression)
		return ok && av.Operator == bv.Operator && av.Prefix == bv.Prefix && Equivalent(av.Argument, bv.Argument)
	case *SequenceExpression:
		bv, ok := b.(*SequenceExpression)
		return ok && equivalentNodeSlice(av.Expressions, bv.Expressions)
	case *AssignmentExpression:
		bv, ok := b.(*AssignmentExpression)
		return ok && av.Operator == bv.Operator && Equivalent(av.Left, bv.Left) && Equivalent(av.Right, bv.Right)
	case *ConditionalExpression:
		bv, ok := b.(*ConditionalExpression)
		return ok && Equivalent(av.Test, bv.Test) && Equivalent(av.Consequent, bv.Consequent) && Equivalent(av.Alternate, bv.Alternate)
	case *IfStatement:
		bv, ok := b.(*IfStatement)
		return ok && Equivalent(av.Test, bv.Test) && Equivalent(av.Consequent, bv.Consequent) && Equivalent(av.Alternate, bv.Alternate)
	case *WhileStatement:
		bv, ok := b.(*WhileStatement)
		return ok && Equivalent(av.Test, bv.Test) && Equivalent(av.Body, bv.Body)
	case *DoWhileStatement:
		bv, ok := b.(*DoWhileStatement)
		return ok && Equivalent(av.Test, bv.Test) && Equivalent(av.Body, bv.Body)
	case *ForStatement:
		bv, ok := b.(*ForStatement)
		return ok && Equivalent(av.Init, bv.Init) && Equivalent(av.Test, bv.Test) &&
			Equivalent(av.Update, bv.Update) && Equivalent(av.Body, bv.Body)
	case *ArrayExpression:
		bv, ok := b.(*ArrayExpression)
		return ok && equivalentNodeSlice(av.Elements, bv.Elements)
	case *FunctionDeclaration:
		bv, ok := b.(*FunctionDeclaration)
		return ok && equivalentFunction(av.ID, av.Params, av.Body, bv.ID, bv.Params, bv.Body)
	case *FunctionExpression:
		bv, ok := b.(*FunctionExpression)
		return ok && equivalentFunction(av.ID, av.Params, av.Body, bv.ID, bv.Params, bv.Body)
	case *CallExpression:
		bv, ok := b.(*CallExpression)
		return ok && Equivalent(av.Callee, bv.Callee) && equivalentNodeSlice(av.Arguments, bv.Arguments)
	case *ReturnStatement:
		bv, ok := b.(*ReturnStatement)
		return ok && Equivalent(av.Argument, bv.Argument)
	case *TryStatement:
		bv, ok := b.(*TryStatement)
		return ok && Equivalent(av.Block, bv.Block) && equivalentCatch(av.Handler, bv.Handler) && Equivalent(av.Finalizer, bv.Finalizer)
	case *CatchClause:
		bv, ok := b.(*CatchClause)
		return ok && equivalentCatch(av, bv)
	case *LabeledStatement:
		bv, ok := b.(*LabeledStatement)
		return ok && av.Label == bv.Label && Equivalent(av.Body, bv.Body)
	case *BreakStatement:
		bv, ok := b.(*BreakStatement)
		return ok && av.Label == bv.Label
	default:
		return false
	}
}

func equivalentNodeSlice(a, b []Node) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !Equivalent(a[i], b[i]) {
			return false
		}
	}
	return true
}

func equivalentFunction(aID *Identifier, aParams []Node, aBody *BlockStatement, bID *Identifier, bParams []Node, bBody *BlockStatement) bool {
	if !Equivalent(identOrNil(aID), identOrNil(bID)) {
		return false
	}
	if !equivalentNodeSlice(aParams, bParams) {
		return false
	}
	return Equivalent(aBody, bBody)
}

func identOrNil(id *Identifier) Node {
	if id == nil {
		return nil
	}
	return id
}

func equivalentCatch(a, b *CatchClause) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return Equivalent(a.Param, b.Param) && Equivalent(a.Body, b.Body)
}

// asMemberPair returns both sides as MemberExpression-shaped views when at
// least one side is a member access (computed or dotted, optional or not),
// so the dot/computed normalization in equivalentMember can apply.
func asMemberPair(a, b Node) (memberView, memberView, bool) {
	av, aok := toMemberView(a)
	bv, bok := toMemberView(b)
	if aok && bok {
		return av, bv, true
	}
	return memberView{}, memberView{}, false
}

type memberView struct {
	object   Node
	property Node
	computed bool
	optional bool
}

func toMemberView(n Node) (memberView, bool) {
	switch v := n.(type) {
	case *MemberExpression:
		return memberView{object: v.Object, property: v.Property, computed: v.Computed}, true
	case *OptionalMemberExpression:
		return memberView{object: v.Object, property: v.Property, computed: v.Computed, optional: true}, true
	default:
		return memberView{}, false
	}
}

func equivalentMember(a, b memberView) bool {
	if a.optional != b.optional {
		return false
	}
	if !Equivalent(a.object, b.object) {
		return false
	}
	return equivalentKey(a.property, a.computed, b.property, b.computed)
}

// equivalentKey treats `obj["foo"]` (computed, string literal "foo") as
// equivalent to `obj.foo` (dotted, identifier foo): both name the same
// property and either may be the simplifier's residual choice.
func equivalentKey(a Node, aComputed bool, b Node, bComputed bool) bool {
	if aComputed == bComputed {
		return Equivalent(a, b)
	}
	var identNode, strNode Node
	if aComputed {
		strNode, identNode = a, b
	} else {
		identNode, strNode = a, b
	}
	id, ok := identNode.(*Identifier)
	if !ok {
		return false
	}
	lit, ok := strNode.(*StringLiteral)
	if !ok {
		return false
	}
	return id.Name == lit.Value
}
