package eval

import (
	"testing"

	"github.com/hatlesswizard/jstaintfold/pkg/ast"
	"github.com/hatlesswizard/jstaintfold/pkg/env"
	"github.com/hatlesswizard/jstaintfold/pkg/value"
)

func newTestEval() (*Evaluator, *env.Environment) {
	ev := New()
	root := env.New(nil)
	ctx := &Context{Env: root, Kind: KindProgram}
	ev.stack.Push(ctx)
	return ev, root
}

func TestEvalBinaryFoldsConcrete(t *testing.T) {
	ev, e := newTestEval()
	c, err := ev.EvalExpr(&ast.BinaryExpression{
		Left: &ast.NumericLiteral{Value: 2}, Operator: "*", Right: &ast.NumericLiteral{Value: 3},
	}, e)
	if err != nil {
		t.Fatalf("EvalExpr: %v", err)
	}
	if c.Tainted || c.Value.Number != 6 {
		t.Errorf("2*3 = %#v, want untainted 6", c)
	}
}

func TestEvalBinaryTaintedOperandResidualizes(t *testing.T) {
	ev, e := newTestEval()
	e.DeclareAs("x", value.TaintedNode(ast.Ident("x")))
	c, err := ev.EvalExpr(&ast.BinaryExpression{
		Left: ast.Ident("x"), Operator: "+", Right: &ast.NumericLiteral{Value: 1},
	}, e)
	if err != nil {
		t.Fatalf("EvalExpr: %v", err)
	}
	if !c.Tainted {
		t.Fatal("expected a tainted operand to residualize the whole binary expression")
	}
	bin, ok := c.Node.(*ast.BinaryExpression)
	if !ok || bin.Operator != "+" {
		t.Errorf("expected a residual BinaryExpression, got %#v", c.Node)
	}
}

func TestEvalLogicalShortCircuitsWithoutEvaluatingRight(t *testing.T) {
	ev, e := newTestEval()
	// `false && y` must not evaluate the right side; y stays
	// undeclared, so evaluating it would raise ReferenceUnresolved if the
	// short-circuit were broken.
	c, err := ev.EvalExpr(&ast.LogicalExpression{
		Left: &ast.BooleanLiteral{Value: false}, Operator: "&&", Right: ast.Ident("y"),
	}, e)
	if err != nil {
		t.Fatalf("EvalExpr: %v", err)
	}
	if c.Tainted || c.Value.Kind != value.Bool || c.Value.Bool {
		t.Errorf("false && y = %#v, want untainted false", c)
	}
}

func TestEvalLogicalNullishCoalescing(t *testing.T) {
	ev, e := newTestEval()
	c, err := ev.EvalExpr(&ast.LogicalExpression{
		Left: &ast.NullLiteral{}, Operator: "??", Right: &ast.NumericLiteral{Value: 5},
	}, e)
	if err != nil {
		t.Fatalf("EvalExpr: %v", err)
	}
	if c.Value.Number != 5 {
		t.Errorf("null ?? 5 = %#v, want 5", c)
	}
}

func TestEvalLogicalTaintedLeftStillEvaluatesRight(t *testing.T) {
	ev, e := newTestEval()
	e.DeclareAs("x", value.TaintedNode(ast.Ident("x")))
	c, err := ev.EvalExpr(&ast.LogicalExpression{
		Left: ast.Ident("x"), Operator: "||", Right: &ast.NumericLiteral{Value: 2},
	}, e)
	if err != nil {
		t.Fatalf("EvalExpr: %v", err)
	}
	if !c.Tainted {
		t.Error("expected a tainted left operand to taint the whole logical expression")
	}
}

func TestEvalUnaryThrowProducesRuntimeThrow(t *testing.T) {
	ev, e := newTestEval()
	_, err := ev.EvalExpr(&ast.UnaryExpression{Operator: "throw", Argument: &ast.StringLiteral{Value: "boom"}}, e)
	if err == nil {
		t.Fatal("expected throw to produce an error")
	}
	if _, ok := err.(*runtimeThrow); !ok {
		t.Errorf("expected *runtimeThrow, got %T", err)
	}
}

func TestEvalUnaryVoidAlwaysUndefined(t *testing.T) {
	ev, e := newTestEval()
	c, err := ev.EvalExpr(&ast.UnaryExpression{Operator: "void", Argument: &ast.NumericLiteral{Value: 99}}, e)
	if err != nil {
		t.Fatalf("EvalExpr: %v", err)
	}
	if !c.IsUndefined() {
		t.Errorf("void 99 = %#v, want undefined", c)
	}
}

func TestEvalUpdatePrefixAndPostfixIdentifier(t *testing.T) {
	ev, e := newTestEval()
	e.DeclareAs("x", value.Num(5))

	c, err := ev.EvalExpr(&ast.UpdateExpression{Operator: "++", Argument: ast.Ident("x"), Prefix: true}, e)
	if err != nil {
		t.Fatalf("EvalExpr: %v", err)
	}
	if c.Value.Number != 6 {
		t.Errorf("prefix ++x = %v, want 6", c.Value.Number)
	}

	c, err = ev.EvalExpr(&ast.UpdateExpression{Operator: "++", Argument: ast.Ident("x"), Prefix: false}, e)
	if err != nil {
		t.Fatalf("EvalExpr: %v", err)
	}
	if c.Value.Number != 6 {
		t.Errorf("postfix x++ return value = %v, want old value 6", c.Value.Number)
	}
	stored, _ := e.Resolve("x")
	if stored.Value.Number != 7 {
		t.Errorf("x after x++ = %v, want 7", stored.Value.Number)
	}
}

func TestEvalUpdateTaintedIdentifierResidualizes(t *testing.T) {
	ev, e := newTestEval()
	e.DeclareAs("x", value.TaintedNode(ast.Ident("x")))
	c, err := ev.EvalExpr(&ast.UpdateExpression{Operator: "++", Argument: ast.Ident("x"), Prefix: true}, e)
	if err != nil {
		t.Fatalf("EvalExpr: %v", err)
	}
	if !c.Tainted {
		t.Error("expected ++ on a tainted identifier to residualize")
	}
}

func TestEvalSequenceValueAndTaintFromLast(t *testing.T) {
	ev, e := newTestEval()
	c, err := ev.EvalExpr(&ast.SequenceExpression{Expressions: []ast.Node{
		&ast.NumericLiteral{Value: 1}, &ast.NumericLiteral{Value: 2}, &ast.NumericLiteral{Value: 3},
	}}, e)
	if err != nil {
		t.Fatalf("EvalExpr: %v", err)
	}
	if c.Value.Number != 3 {
		t.Errorf("(1, 2, 3) = %v, want 3", c.Value.Number)
	}
	seq, ok := c.Node.(*ast.SequenceExpression)
	if !ok || len(seq.Expressions) != 3 {
		t.Errorf("expected the residual to preserve all three fragments, got %#v", c.Node)
	}
}

func TestEvalConditionalUntaintedTestShortCircuits(t *testing.T) {
	ev, e := newTestEval()
	c, err := ev.EvalExpr(&ast.ConditionalExpression{
		Test: &ast.BooleanLiteral{Value: true}, Consequent: &ast.NumericLiteral{Value: 1}, Alternate: ast.Ident("undeclared"),
	}, e)
	if err != nil {
		t.Fatalf("EvalExpr: %v", err)
	}
	if c.Value.Number != 1 {
		t.Errorf("true ? 1 : undeclared = %#v, want 1", c)
	}
}

func TestEvalConditionalTaintedTestEvaluatesBothBranches(t *testing.T) {
	ev, e := newTestEval()
	e.DeclareAs("t", value.TaintedNode(ast.Ident("t")))
	c, err := ev.EvalExpr(&ast.ConditionalExpression{
		Test: ast.Ident("t"), Consequent: &ast.NumericLiteral{Value: 1}, Alternate: &ast.NumericLiteral{Value: 2},
	}, e)
	if err != nil {
		t.Fatalf("EvalExpr: %v", err)
	}
	if !c.Tainted {
		t.Error("expected a tainted test to taint the whole conditional")
	}
}

func TestEvalArrayWithElisionReadsUndefined(t *testing.T) {
	ev, e := newTestEval()
	c, err := ev.EvalExpr(&ast.ArrayExpression{Elements: []ast.Node{
		&ast.NumericLiteral{Value: 1}, nil, &ast.NumericLiteral{Value: 3},
	}}, e)
	if err != nil {
		t.Fatalf("EvalExpr: %v", err)
	}
	if len(c.Value.Array) != 3 || !c.Value.Array[1].IsUndefined() {
		t.Errorf("expected elision at index 1 to read as undefined, got %#v", c.Value.Array)
	}
}

func TestEvalMemberPlainIndex(t *testing.T) {
	ev, e := newTestEval()
	e.DeclareAs("a", value.ArrayVal([]*value.Carrier{value.Num(10), value.Num(20)}))
	c, err := ev.EvalExpr(&ast.MemberExpression{Object: ast.Ident("a"), Property: &ast.NumericLiteral{Value: 1}, Computed: true}, e)
	if err != nil {
		t.Fatalf("EvalExpr: %v", err)
	}
	if c.Value.Number != 20 {
		t.Errorf("a[1] = %#v, want 20", c)
	}
}

func TestEvalMemberOutOfRangeReadsUndefined(t *testing.T) {
	ev, e := newTestEval()
	e.DeclareAs("a", value.ArrayVal([]*value.Carrier{value.Num(10)}))
	c, err := ev.EvalExpr(&ast.MemberExpression{Object: ast.Ident("a"), Property: &ast.NumericLiteral{Value: 5}, Computed: true}, e)
	if err != nil {
		t.Fatalf("EvalExpr: %v", err)
	}
	if !c.IsUndefined() {
		t.Errorf("a[5] out of range = %#v, want undefined", c)
	}
}

func TestEvalOptionalMemberShortCircuitsOnNullish(t *testing.T) {
	ev, e := newTestEval()
	e.DeclareAs("a", value.NullValue())
	c, err := ev.EvalExpr(&ast.OptionalMemberExpression{Object: ast.Ident("a"), Property: ast.Ident("b"), Computed: false}, e)
	if err != nil {
		t.Fatalf("EvalExpr: %v", err)
	}
	if !c.IsUndefined() {
		t.Errorf("a?.b with a == null = %#v, want undefined", c)
	}
}

func TestEvalMemberTaintedObjectResidualizes(t *testing.T) {
	ev, e := newTestEval()
	e.DeclareAs("a", value.TaintedNode(ast.Ident("a")))
	c, err := ev.EvalExpr(&ast.MemberExpression{Object: ast.Ident("a"), Property: ast.Ident("b"), Computed: false}, e)
	if err != nil {
		t.Fatalf("EvalExpr: %v", err)
	}
	if !c.Tainted {
		t.Error("expected a tainted object to taint the member access")
	}
}

func TestEvalCallFoldsPureFunction(t *testing.T) {
	ev, e := newTestEval()
	fnDecl := &ast.FunctionDeclaration{
		ID:     ast.Ident("double"),
		Params: []ast.Node{ast.Ident("n")},
		Body: &ast.BlockStatement{Body: []ast.Node{
			&ast.ReturnStatement{Argument: &ast.BinaryExpression{Left: ast.Ident("n"), Operator: "*", Right: &ast.NumericLiteral{Value: 2}}},
		}},
	}
	if _, err := ev.EvalStmt(fnDecl, e); err != nil {
		t.Fatalf("EvalStmt(fnDecl): %v", err)
	}

	c, err := ev.EvalExpr(&ast.CallExpression{Callee: ast.Ident("double"), Arguments: []ast.Node{&ast.NumericLiteral{Value: 21}}}, e)
	if err != nil {
		t.Fatalf("EvalExpr(call): %v", err)
	}
	if c.Value.Number != 42 {
		t.Errorf("double(21) = %#v, want 42", c)
	}
}

func TestEvalCallOfNonFunctionIsNotImplemented(t *testing.T) {
	ev, e := newTestEval()
	e.DeclareAs("x", value.Num(1))
	if _, err := ev.EvalExpr(&ast.CallExpression{Callee: ast.Ident("x")}, e); err == nil {
		t.Fatal("expected calling a non-function value to be NotImplemented")
	}
}

func TestIsValidIdentifierName(t *testing.T) {
	tests := []struct {
		s    string
		want bool
	}{
		{"", false},
		{"foo", true},
		{"_foo", true},
		{"$foo", true},
		{"1foo", false},
		{"foo1", true},
		{"foo-bar", false},
	}
	for _, tt := range tests {
		if got := isValidIdentifierName(tt.s); got != tt.want {
			t.Errorf("isValidIdentifierName(%q) = %v, want %v", tt.s, got, tt.want)
		}
	}
}
