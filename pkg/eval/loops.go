package eval

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/hatlesswizard/jstaintfold/pkg/ast"
	"github.com/hatlesswizard/jstaintfold/pkg/diag"
	"github.com/hatlesswizard/jstaintfold/pkg/env"
	"github.com/hatlesswizard/jstaintfold/pkg/printer"
	"github.com/hatlesswizard/jstaintfold/pkg/value"
)

// loopShape normalizes while/do-while/for into one driver (evalLoop): all
// three share the same two-mode execution (concrete unroll, then tainted
// fixed-point simplification), differing only in when the test is checked
// and whether an update step exists.
type loopShape struct {
	kind    Kind
	test    ast.Node // nil means "always true" (a bare `for(;;)`)
	body    ast.Node
	update  ast.Node // non-nil only for a for-loop
	doWhile bool
}

func asBlock(n ast.Node) *ast.BlockStatement {
	if b, ok := n.(*ast.BlockStatement); ok {
		return b
	}
	return &ast.BlockStatement{Body: []ast.Node{n}}
}

// flattenInto appends n's statements to *acc, unwrapping a bare block so
// a fully-concrete loop unrolls into a flat statement sequence rather
// than nested braces per iteration.
func flattenInto(acc *[]ast.Node, n ast.Node) {
	if n == nil {
		return
	}
	if b, ok := n.(*ast.BlockStatement); ok {
		*acc = append(*acc, b.Body...)
		return
	}
	*acc = append(*acc, n)
}

// evalLoop drives the shared while/do-while/for machinery.
func (ev *Evaluator) evalLoop(shape loopShape, e *env.Environment) (*StmtOutcome, error) {
	loopEnv := env.New(e)
	ctx := &Context{Env: loopEnv, Kind: shape.kind}
	ev.stack.Push(ctx)
	defer ev.stack.Pop()

	var unrolled []ast.Node
	var exitOutcome *StmtOutcome
	indeterminate := false
	first := true

	for {
		if shape.doWhile && first {
			// do-while always runs the body once before its first test.
		} else if shape.test != nil {
			testC, err := ev.EvalExpr(shape.test, loopEnv)
			if err != nil {
				return nil, err
			}
			if testC.Tainted {
				indeterminate = true
				break
			}
			if !testC.Truthy() {
				break
			}
		}
		first = false

		bodyOut, err := ev.EvalStmt(shape.body, loopEnv)
		if err != nil {
			return nil, err
		}
		flattenInto(&unrolled, bodyOut.Residual)
		if bodyOut.Ctrl != CtrlNone {
			exitOutcome = bodyOut
			break
		}
		if loopEnv.TaintParentWrites {
			indeterminate = true
			break
		}
		if shape.update != nil {
			if _, err := ev.EvalExpr(shape.update, loopEnv); err != nil {
				return nil, err
			}
		}
		if shape.doWhile {
			if shape.test == nil {
				continue
			}
			testC, err := ev.EvalExpr(shape.test, loopEnv)
			if err != nil {
				return nil, err
			}
			if testC.Tainted {
				indeterminate = true
				break
			}
			if !testC.Truthy() {
				break
			}
		}
	}

	if !indeterminate {
		var residual ast.Node
		if len(unrolled) == 1 {
			residual = unrolled[0]
		} else if len(unrolled) > 1 {
			residual = &ast.BlockStatement{Body: unrolled}
		}
		if exitOutcome != nil && exitOutcome.Ctrl == CtrlBreak && exitOutcome.Label == "" {
			return &StmtOutcome{Residual: residual}, nil
		}
		if exitOutcome != nil {
			return &StmtOutcome{Residual: residual, Ctrl: exitOutcome.Ctrl, Label: exitOutcome.Label}, nil
		}
		return &StmtOutcome{Residual: residual}, nil
	}

	return ev.simplifyLoopToFixedPoint(shape, loopEnv)
}

// simplifyLoopToFixedPoint implements the tainted-simplification sub-mode:
// repeatedly re-evaluate test and body under an ambiguous-flow
// environment, clearing its local record between passes, until both
// reach a tree-equivalent fixed point.
func (ev *Evaluator) simplifyLoopToFixedPoint(shape loopShape, loopEnv *env.Environment) (*StmtOutcome, error) {
	loopEnv.TaintParentWrites = true
	loopEnv.IgnoreReferenceException = true

	if cachedTest, cachedBody, ok := ev.loopCache.Get(shape.body); ok {
		return loopResidual(shape.kind, cachedTest, cachedBody), nil
	}
	persistKey := ""
	if ev.persist != nil {
		persistKey = loopBodyHash(&ast.ForStatement{Test: shape.test, Update: shape.update, Body: shape.body})
		if cachedTest, cachedBody, ok, err := ev.persist.Get(persistKey); err == nil && ok {
			ev.loopCache.Put(shape.body, cachedTest, cachedBody)
			return loopResidual(shape.kind, cachedTest, cachedBody), nil
		}
	}

	var prevTest, prevBody ast.Node
	var curTest ast.Node
	var curBody *ast.BlockStatement

	for pass := 0; pass < maxLoopFixedPointPasses; pass++ {
		loopEnv.ClearLocal()

		if shape.test != nil {
			testC, err := ev.EvalExpr(shape.test, loopEnv)
			if err != nil {
				return nil, err
			}
			curTest = value.Repr(testC)
		}

		bodyBlock, _, err := ev.evalBlockCollect(asBlock(shape.body), loopEnv)
		if err != nil {
			return nil, err
		}
		curBody = bodyBlock

		if shape.update != nil {
			if _, err := ev.EvalExpr(shape.update, loopEnv); err != nil {
				return nil, err
			}
		}

		if pass > 0 && ast.Equivalent(prevBody, curBody) && ast.Equivalent(prevTest, curTest) {
			break
		}
		prevTest, prevBody = curTest, curBody
		if pass == maxLoopFixedPointPasses-1 {
			return nil, diag.NewInternalInvariant("loop fixed-point simplification did not converge")
		}
	}

	ev.loopCache.Put(shape.body, curTest, curBody)
	if ev.persist != nil {
		_ = ev.persist.Put(persistKey, curTest, curBody)
	}
	return loopResidual(shape.kind, curTest, curBody), nil
}

// loopBodyHash renders a loop's original, pre-simplification test, update
// and body (passed in together as one for-statement node) through
// pkg/printer to derive a stable cross-process lookup key for
// PersistentLoopCache: a loop's fixed point depends only on its source
// text, never on the call site's concrete environment (the taint gate
// forces every crossing write to a reference the moment the loop goes
// ambiguous), so two processes parsing the same source converge on the
// same key.
func loopBodyHash(body ast.Node) string {
	text := printer.PrintStatements([]ast.Node{body})
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func loopResidual(kind Kind, test ast.Node, body *ast.BlockStatement) *StmtOutcome {
	switch kind {
	case KindFor:
		return &StmtOutcome{Residual: &ast.ForStatement{Test: test, Body: body}}
	case KindDoWhile:
		return &StmtOutcome{Residual: &ast.DoWhileStatement{Test: test, Body: body}}
	default:
		return &StmtOutcome{Residual: &ast.WhileStatement{Test: test, Body: body}}
	}
}

func (ev *Evaluator) evalWhileStatement(v *ast.WhileStatement, e *env.Environment) (*StmtOutcome, error) {
	return ev.evalLoop(loopShape{kind: KindWhile, test: v.Test, body: v.Body}, e)
}

func (ev *Evaluator) evalDoWhileStatement(v *ast.DoWhileStatement, e *env.Environment) (*StmtOutcome, error) {
	return ev.evalLoop(loopShape{kind: KindDoWhile, test: v.Test, body: v.Body, doWhile: true}, e)
}

// evalForStatement implements the for-loop's init/update handling on top
// of the shared driver: init runs once against the enclosing scope so its
// declarations leak outward, before the loop's own environment is
// created.
func (ev *Evaluator) evalForStatement(v *ast.ForStatement, e *env.Environment) (*StmtOutcome, error) {
	var initResidual ast.Node
	if v.Init != nil {
		switch init := v.Init.(type) {
		case *ast.VariableDeclaration:
			out, err := ev.evalVariableDeclaration(init, e)
			if err != nil {
				return nil, err
			}
			initResidual = out.Residual
		default:
			c, err := ev.EvalExpr(v.Init, e)
			if err != nil {
				return nil, err
			}
			initResidual = &ast.ExpressionStatement{Expression: value.Repr(c)}
		}
	}

	out, err := ev.evalLoop(loopShape{kind: KindFor, test: v.Test, body: v.Body, update: v.Update}, e)
	if err != nil {
		return nil, err
	}
	if initResidual == nil {
		return out, nil
	}
	if forStmt, ok := out.Residual.(*ast.ForStatement); ok {
		forStmt.Init = initResidual
		return out, nil
	}
	// The loop fully unrolled (or ran zero times): emit init followed by
	// whatever concrete residual remains.
	stmts := []ast.Node{initResidual}
	flattenInto(&stmts, out.Residual)
	out.Residual = &ast.BlockStatement{Body: stmts}
	return out, nil
}
