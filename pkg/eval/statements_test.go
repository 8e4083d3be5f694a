package eval

import (
	"testing"

	"github.com/hatlesswizard/jstaintfold/pkg/ast"
	"github.com/hatlesswizard/jstaintfold/pkg/value"
)

func TestEvalVariableDeclarationStoresAndResiduals(t *testing.T) {
	ev, e := newTestEval()
	out, err := ev.EvalStmt(&ast.VariableDeclaration{
		Kind: "var",
		Declarations: []*ast.VariableDeclarator{
			{ID: ast.Ident("x"), Init: &ast.NumericLiteral{Value: 5}},
		},
	}, e)
	if err != nil {
		t.Fatalf("EvalStmt: %v", err)
	}
	stored, err := e.Resolve("x")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if stored.Value.Number != 5 {
		t.Errorf("x = %v, want 5", stored.Value.Number)
	}
	decl, ok := out.Residual.(*ast.VariableDeclaration)
	if !ok || len(decl.Declarations) != 1 {
		t.Fatalf("expected a VariableDeclaration residual, got %#v", out.Residual)
	}
}

func TestEvalVariableDeclarationRejectsLet(t *testing.T) {
	ev, e := newTestEval()
	_, err := ev.EvalStmt(&ast.VariableDeclaration{
		Kind:         "let",
		Declarations: []*ast.VariableDeclarator{{ID: ast.Ident("x")}},
	}, e)
	if err == nil {
		t.Fatal("expected block-scoped declarations to be NotImplemented")
	}
}

func TestEvalIfStatementUntaintedTestTakesOneBranch(t *testing.T) {
	ev, e := newTestEval()
	out, err := ev.EvalStmt(&ast.IfStatement{
		Test:       &ast.BooleanLiteral{Value: true},
		Consequent: &ast.ExpressionStatement{Expression: &ast.NumericLiteral{Value: 1}},
		Alternate:  &ast.ExpressionStatement{Expression: &ast.NumericLiteral{Value: 2}},
	}, e)
	if err != nil {
		t.Fatalf("EvalStmt: %v", err)
	}
	es, ok := out.Residual.(*ast.ExpressionStatement)
	if !ok {
		t.Fatalf("expected an ExpressionStatement residual, got %#v", out.Residual)
	}
	lit, ok := es.Expression.(*ast.NumericLiteral)
	if !ok || lit.Value != 1 {
		t.Errorf("expected the consequent branch's residual, got %#v", es.Expression)
	}
}

func TestEvalIfStatementTaintedTestKeepsBothBranches(t *testing.T) {
	ev, e := newTestEval()
	e.DeclareAs("t", value.TaintedNode(ast.Ident("t")))
	e.Declare("x")
	out, err := ev.EvalStmt(&ast.IfStatement{
		Test: ast.Ident("t"),
		Consequent: &ast.BlockStatement{Body: []ast.Node{
			&ast.ExpressionStatement{Expression: &ast.AssignmentExpression{Operator: "=", Left: ast.Ident("x"), Right: &ast.NumericLiteral{Value: 1}}},
		}},
		Alternate: &ast.BlockStatement{Body: []ast.Node{
			&ast.ExpressionStatement{Expression: &ast.AssignmentExpression{Operator: "=", Left: ast.Ident("x"), Right: &ast.NumericLiteral{Value: 2}}},
		}},
	}, e)
	if err != nil {
		t.Fatalf("EvalStmt: %v", err)
	}
	ifStmt, ok := out.Residual.(*ast.IfStatement)
	if !ok || ifStmt.Alternate == nil {
		t.Fatalf("expected both branches preserved in the residual, got %#v", out.Residual)
	}
	stored, _ := e.Resolve("x")
	if !stored.Tainted {
		t.Error("expected x to be tainted in the outer scope after an ambiguous if wrote to it in both branches")
	}
}

func TestEvalReturnStatementSetsFunctionContext(t *testing.T) {
	ev, e := newTestEval()
	fnEnv := *e // shallow scope reuse is fine, just need a function ctx below it
	_ = fnEnv
	ctx := &Context{Env: e, Kind: KindFunction}
	ev.stack.Push(ctx)
	out, err := ev.EvalStmt(&ast.ReturnStatement{Argument: &ast.NumericLiteral{Value: 7}}, e)
	ev.stack.Pop()
	if err != nil {
		t.Fatalf("EvalStmt: %v", err)
	}
	if out.Ctrl != CtrlReturn {
		t.Error("expected a return statement to raise CtrlReturn")
	}
	if ctx.ReturnValue.Value.Number != 7 {
		t.Errorf("ReturnValue = %#v, want 7", ctx.ReturnValue)
	}
}

func TestEvalReturnStatementOutsideFunctionIsInternalInvariant(t *testing.T) {
	ev, e := newTestEval()
	if _, err := ev.EvalStmt(&ast.ReturnStatement{Argument: &ast.NumericLiteral{Value: 1}}, e); err == nil {
		t.Fatal("expected a return outside any function context to be an InternalInvariant")
	}
}

func TestEvalBreakStatementUnlabeledTargetsInnermostLoop(t *testing.T) {
	ev, e := newTestEval()
	loopCtx := &Context{Env: e, Kind: KindWhile}
	ev.stack.Push(loopCtx)
	out, err := ev.EvalStmt(&ast.BreakStatement{}, e)
	ev.stack.Pop()
	if err != nil {
		t.Fatalf("EvalStmt: %v", err)
	}
	if out.Ctrl != CtrlBreak {
		t.Error("expected CtrlBreak")
	}
}

func TestEvalBreakStatementUnresolvedLabelErrors(t *testing.T) {
	ev, e := newTestEval()
	if _, err := ev.EvalStmt(&ast.BreakStatement{Label: "missing"}, e); err == nil {
		t.Fatal("expected an unresolvable break label to error")
	}
}

func TestEvalLabeledStatementAbsorbsMatchingBreak(t *testing.T) {
	ev, e := newTestEval()
	out, err := ev.EvalStmt(&ast.LabeledStatement{
		Label: "outer",
		Body:  &ast.BlockStatement{Body: []ast.Node{&ast.BreakStatement{Label: "outer"}}},
	}, e)
	if err != nil {
		t.Fatalf("EvalStmt: %v", err)
	}
	if out.Ctrl != CtrlNone {
		t.Error("expected the labeled statement to absorb a break targeting its own label")
	}
}

func TestEvalTryStatementCatchesRuntimeThrow(t *testing.T) {
	ev, e := newTestEval()
	out, err := ev.EvalStmt(&ast.TryStatement{
		Block: &ast.BlockStatement{Body: []ast.Node{
			&ast.ExpressionStatement{Expression: &ast.UnaryExpression{Operator: "throw", Argument: &ast.StringLiteral{Value: "boom"}}},
		}},
		Handler: &ast.CatchClause{
			Param: ast.Ident("e"),
			Body:  &ast.BlockStatement{},
		},
	}, e)
	if err != nil {
		t.Fatalf("expected the throw to be caught, got error: %v", err)
	}
	tryStmt, ok := out.Residual.(*ast.TryStatement)
	if !ok || tryStmt.Handler == nil {
		t.Fatalf("expected a TryStatement residual with a handler, got %#v", out.Residual)
	}
}

func TestEvalTryStatementWithoutHandlerPropagatesThrow(t *testing.T) {
	ev, e := newTestEval()
	_, err := ev.EvalStmt(&ast.TryStatement{
		Block: &ast.BlockStatement{Body: []ast.Node{
			&ast.ExpressionStatement{Expression: &ast.UnaryExpression{Operator: "throw", Argument: &ast.StringLiteral{Value: "boom"}}},
		}},
		Finalizer: &ast.BlockStatement{},
	}, e)
	if err == nil {
		t.Fatal("expected a throw with no handler to propagate past the try statement")
	}
}

func TestEvalTryStatementNoExceptionStillRunsFinalizer(t *testing.T) {
	ev, e := newTestEval()
	e.Declare("ran")
	out, err := ev.EvalStmt(&ast.TryStatement{
		Block: &ast.BlockStatement{},
		Finalizer: &ast.BlockStatement{Body: []ast.Node{
			&ast.ExpressionStatement{Expression: &ast.AssignmentExpression{Operator: "=", Left: ast.Ident("ran"), Right: &ast.BooleanLiteral{Value: true}}},
		}},
	}, e)
	if err != nil {
		t.Fatalf("EvalStmt: %v", err)
	}
	if out.Residual.(*ast.TryStatement).Finalizer == nil {
		t.Error("expected the finalizer residual to be present")
	}
	stored, _ := e.Resolve("ran")
	if !stored.Value.Bool {
		t.Error("expected the finalizer to have executed even with no exception")
	}
}
