package eval

import (
	"github.com/hatlesswizard/jstaintfold/pkg/ast"
	"github.com/hatlesswizard/jstaintfold/pkg/diag"
	"github.com/hatlesswizard/jstaintfold/pkg/env"
	"github.com/hatlesswizard/jstaintfold/pkg/value"
)

// maxLoopFixedPointPasses bounds the tainted-loop simplification pass; a
// loop body that never reaches a tree-equivalent fixed point within this
// many passes is an evaluator bug, not a legitimate input, so it surfaces
// as InternalInvariant rather than hanging.
const maxLoopFixedPointPasses = 64

// EvalStmt evaluates a statement node, returning its residual fragment
// (nil if none) and any non-local control it raised.
func (ev *Evaluator) EvalStmt(n ast.Node, e *env.Environment) (*StmtOutcome, error) {
	if err := ev.enter(); err != nil {
		return nil, err
	}
	defer ev.exit()

	switch v := n.(type) {
	case *ast.ExpressionStatement:
		c, err := ev.EvalExpr(v.Expression, e)
		if err != nil {
			return nil, err
		}
		return &StmtOutcome{Residual: &ast.ExpressionStatement{Expression: value.Repr(c)}}, nil
	case *ast.EmptyStatement:
		return &StmtOutcome{}, nil
	case *ast.BlockStatement:
		block, outcome, err := ev.evalBlockCollect(v, e)
		if err != nil {
			return nil, err
		}
		outcome.Residual = block
		return outcome, nil
	case *ast.VariableDeclaration:
		return ev.evalVariableDeclaration(v, e)
	case *ast.IfStatement:
		return ev.evalIfStatement(v, e)
	case *ast.WhileStatement:
		return ev.evalWhileStatement(v, e)
	case *ast.DoWhileStatement:
		return ev.evalDoWhileStatement(v, e)
	case *ast.ForStatement:
		return ev.evalForStatement(v, e)
	case *ast.FunctionDeclaration:
		return ev.evalFunctionDeclaration(v, e)
	case *ast.ReturnStatement:
		return ev.evalReturnStatement(v, e)
	case *ast.TryStatement:
		return ev.evalTryStatement(v, e)
	case *ast.LabeledStatement:
		return ev.evalLabeledStatement(v, e)
	case *ast.BreakStatement:
		return ev.evalBreakStatement(v, e)
	default:
		// A bare expression reaching here (e.g. the lowerer's best-effort
		// fallback) is evaluated as an expression statement.
		c, err := ev.EvalExpr(n, e)
		if err != nil {
			return nil, err
		}
		return &StmtOutcome{Residual: &ast.ExpressionStatement{Expression: value.Repr(c)}}, nil
	}
}

// evalBlockCollect runs every statement of block in e in order, stopping
// as soon as one raises non-local control, and returns the residual block
// (the already-executed prefix) alongside that control so the caller
// (block statement, loop body, try body, function body) can decide
// whether to propagate it.
func (ev *Evaluator) evalBlockCollect(block *ast.BlockStatement, e *env.Environment) (*ast.BlockStatement, *StmtOutcome, error) {
	body := make([]ast.Node, 0, len(block.Body))
	for i, stmt := range block.Body {
		outcome, err := ev.EvalStmt(stmt, e)
		if err != nil {
			// error_state: the already-collected prefix plus the faulting
			// original statement.
			body = append(body, stmt)
			body = append(body, block.Body[i+1:]...)
			return &ast.BlockStatement{Body: body}, &StmtOutcome{}, err
		}
		if outcome.Residual != nil {
			body = append(body, outcome.Residual)
		}
		if outcome.Ctrl != CtrlNone {
			return &ast.BlockStatement{Body: body}, outcome, nil
		}
	}
	return &ast.BlockStatement{Body: body}, &StmtOutcome{}, nil
}

func (ev *Evaluator) evalVariableDeclaration(v *ast.VariableDeclaration, e *env.Environment) (*StmtOutcome, error) {
	if v.Kind != "var" {
		return nil, notImplementedErr("block-scoped (" + v.Kind + ") declaration")
	}
	decls := make([]*ast.VariableDeclarator, 0, len(v.Declarations))
	for _, d := range v.Declarations {
		id, ok := d.ID.(*ast.Identifier)
		if !ok {
			return nil, notImplementedErr("destructuring declarator")
		}
		e.Declare(id.Name)
		if d.Init == nil {
			decls = append(decls, &ast.VariableDeclarator{ID: id})
			continue
		}
		c, err := ev.EvalExpr(d.Init, e)
		if err != nil {
			return nil, err
		}
		if err := e.Assign(id.Name, c); err != nil {
			return nil, err
		}
		decls = append(decls, &ast.VariableDeclarator{ID: id, Init: value.Repr(c)})
	}
	return &StmtOutcome{Residual: &ast.VariableDeclaration{Kind: "var", Declarations: decls}}, nil
}

func (ev *Evaluator) evalFunctionDeclaration(v *ast.FunctionDeclaration, e *env.Environment) (*StmtOutcome, error) {
	if v.Generator || v.Async {
		return nil, notImplementedErr("generator/async function declaration")
	}
	name := ""
	if v.ID != nil {
		name = v.ID.Name
	}
	closure, err := ev.buildClosure(name, v.Params, v.Body, e)
	if err != nil {
		return nil, err
	}
	fnCarrier := value.FunctionVal(closure)
	e.Declare(name)
	_ = e.Assign(name, fnCarrier)
	return &StmtOutcome{Residual: &ast.FunctionDeclaration{ID: v.ID, Params: v.Params, Body: closure.residual.Body}}, nil
}

// evalIfStatement implements the if-statement arm, including the
// else-if recursion rule for a tainted outer test.
func (ev *Evaluator) evalIfStatement(v *ast.IfStatement, e *env.Environment) (*StmtOutcome, error) {
	test, err := ev.EvalExpr(v.Test, e)
	if err != nil {
		return nil, err
	}
	if !test.Tainted {
		if test.Truthy() {
			out, err := ev.EvalStmt(v.Consequent, e)
			if err != nil {
				return nil, err
			}
			return out, nil
		}
		if v.Alternate == nil {
			return &StmtOutcome{}, nil
		}
		return ev.EvalStmt(v.Alternate, e)
	}

	consEnv := env.New(e)
	consEnv.TaintParentWrites = true
	consOut, err := ev.EvalStmt(v.Consequent, consEnv)
	if err != nil {
		return nil, err
	}
	leakLocals(consEnv, e)

	var altResidual ast.Node
	var altOut *StmtOutcome
	hasAlt := v.Alternate != nil
	if hasAlt {
		if nestedIf, ok := v.Alternate.(*ast.IfStatement); ok {
			altEnv := env.New(e)
			altEnv.TaintParentWrites = true
			out, err := ev.evalIfStatement(nestedIf, altEnv)
			if err != nil {
				return nil, err
			}
			leakLocals(altEnv, e)
			altOut = out
			altResidual = out.Residual
		} else {
			altEnv := env.New(e)
			altEnv.TaintParentWrites = true
			out, err := ev.EvalStmt(v.Alternate, altEnv)
			if err != nil {
				return nil, err
			}
			leakLocals(altEnv, e)
			altOut = out
			altResidual = out.Residual
		}
	}

	residual := &ast.IfStatement{Test: value.Repr(test), Consequent: consOut.Residual, Alternate: altResidual}
	outcome := &StmtOutcome{Residual: residual}
	// Both arms of an ambiguous test may independently raise the same
	// non-local control (e.g. both branches return, or both break the same
	// label): the if as a whole then definitely raises it too, regardless
	// of which arm the tainted test actually takes, so it propagates past
	// this if instead of being silently absorbed here.
	if hasAlt && consOut.Ctrl != CtrlNone && consOut.Ctrl == altOut.Ctrl && consOut.Label == altOut.Label {
		outcome.Ctrl, outcome.Label = consOut.Ctrl, consOut.Label
	}
	return outcome, nil
}

func (ev *Evaluator) evalReturnStatement(v *ast.ReturnStatement, e *env.Environment) (*StmtOutcome, error) {
	var arg *value.Carrier
	if v.Argument != nil {
		c, err := ev.EvalExpr(v.Argument, e)
		if err != nil {
			return nil, err
		}
		arg = c
	} else {
		arg = value.Undef()
	}
	fnCtx := ev.stack.FindFunction()
	if fnCtx == nil {
		return nil, diag.NewInternalInvariant("return statement outside a function context")
	}
	// e.IsTaintedEnv(fnCtx.Env) alone misses the case where e is the
	// function's own environment (a top-level statement in the body):
	// that walk stops at fnCtx.Env without ever looking at its own flag, so
	// a prior tainted return's mark on fnCtx.Env itself must be checked too.
	ambiguous := e.IsTaintedEnv(fnCtx.Env) || fnCtx.Env.TaintParentWrites
	if ambiguous {
		arg = value.TaintedNode(value.Repr(arg))
		fnCtx.Env.TaintParentWrites = true
	}
	if ambiguous && fnCtx.ReturnValue != nil {
		// A return already recorded for this function context means an
		// earlier, equally uncertain branch may have fired instead of this
		// one: merge into it rather than clobbering it with this value.
		fnCtx.ReturnValue = value.TaintedNode(value.Repr(fnCtx.ReturnValue))
	} else {
		fnCtx.ReturnValue = arg
	}
	return &StmtOutcome{Residual: &ast.ReturnStatement{Argument: value.Repr(arg)}, Ctrl: CtrlReturn}, nil
}

func (ev *Evaluator) evalBreakStatement(v *ast.BreakStatement, e *env.Environment) (*StmtOutcome, error) {
	target := ev.stack.FindBreakTarget(v.Label)
	if target == nil {
		return nil, diag.NewReferenceUnresolved("break target " + v.Label)
	}
	// As with a return, e.IsTaintedEnv(target.Env) alone can't see a target
	// environment that is already tainted in its own right, and for a
	// labeled break the target is the label's context, not the loop it
	// encloses. Every loop context between here and the target needs
	// marking too, or that loop's own drive loop never learns its exit is
	// ambiguous.
	if e.IsTaintedEnv(target.Env) || target.Env.TaintParentWrites {
		ev.stack.MarkAmbiguousControlTarget(target)
	}
	return &StmtOutcome{Residual: &ast.BreakStatement{Label: v.Label}, Ctrl: CtrlBreak, Label: v.Label}, nil
}

func (ev *Evaluator) evalLabeledStatement(v *ast.LabeledStatement, e *env.Environment) (*StmtOutcome, error) {
	ctx := &Context{Env: e, Kind: KindLabel, Label: v.Label}
	ev.stack.Push(ctx)
	out, err := ev.EvalStmt(v.Body, e)
	ev.stack.Pop()
	if err != nil {
		return nil, err
	}
	residual := &ast.LabeledStatement{Label: v.Label, Body: out.Residual}
	if out.Ctrl == CtrlBreak && out.Label == v.Label {
		return &StmtOutcome{Residual: residual}, nil
	}
	return &StmtOutcome{Residual: residual, Ctrl: out.Ctrl, Label: out.Label}, nil
}

// evalTryStatement implements the try/catch/finally arm. An
// InternalInvariant always re-raises unchanged; everything else, whether
// a runtime throw or a user-catchable diagnostic, is catchable from
// within the try body.
func (ev *Evaluator) evalTryStatement(v *ast.TryStatement, e *env.Environment) (*StmtOutcome, error) {
	block, outcome, err := ev.evalBlockCollect(v.Block, e)
	var catchResidual *ast.CatchClause
	finalCtrl, finalLabel := CtrlNone, ""
	var pendingErr error

	if err != nil {
		_, isThrow := err.(*runtimeThrow)
		if !isThrow && !diag.Catchable(err) {
			return nil, err
		}
		if !isThrow {
			ev.occ.Record(err, v.Handler != nil)
		}
		if v.Handler == nil {
			pendingErr = err
		} else {
			catchEnv := env.New(e)
			var paramName string
			if v.Handler.Param != nil {
				paramName = v.Handler.Param.(*ast.Identifier).Name
			}
			var errCarrier *value.Carrier
			if rt, ok := err.(*runtimeThrow); ok {
				errCarrier = rt.value
			} else {
				errCarrier = value.TaintedNode(ast.Ident(paramName))
			}
			if paramName != "" {
				catchEnv.DeclareAs(paramName, errCarrier)
			}
			cctx := &Context{Env: catchEnv, Kind: KindCatch}
			ev.stack.Push(cctx)
			catchBlock, catchOut, cerr := ev.evalBlockCollect(v.Handler.Body, catchEnv)
			ev.stack.Pop()
			if cerr != nil {
				return nil, cerr
			}
			catchResidual = &ast.CatchClause{Param: v.Handler.Param, Body: catchBlock}
			finalCtrl, finalLabel = catchOut.Ctrl, catchOut.Label
		}
	} else {
		finalCtrl, finalLabel = outcome.Ctrl, outcome.Label
		// No exception escaped: the catch block is simplified
		// as-if-never-executed, under the same isolation the function-body
		// simplifier uses.
		if v.Handler != nil {
			catchEnv := env.New(nil)
			catchEnv.IgnoreReferenceException = true
			var paramName string
			if v.Handler.Param != nil {
				paramName = v.Handler.Param.(*ast.Identifier).Name
				catchEnv.DeclareAs(paramName, value.TaintedNode(ast.Ident(paramName)))
			}
			cctx := &Context{Env: catchEnv, Kind: KindCatch}
			ev.stack.Push(cctx)
			catchBlock, _, cerr := ev.evalBlockCollect(v.Handler.Body, catchEnv)
			ev.stack.Pop()
			if cerr != nil {
				return nil, cerr
			}
			catchResidual = &ast.CatchClause{Param: v.Handler.Param, Body: catchBlock}
		}
	}

	var finalizerResidual *ast.BlockStatement
	if v.Finalizer != nil {
		finBlock, _, ferr := ev.evalBlockCollect(v.Finalizer, e)
		if ferr != nil {
			return nil, ferr
		}
		finalizerResidual = finBlock
	}

	if pendingErr != nil {
		return nil, pendingErr
	}

	return &StmtOutcome{
		Residual: &ast.TryStatement{Block: block, Handler: catchResidual, Finalizer: finalizerResidual},
		Ctrl:     finalCtrl,
		Label:    finalLabel,
	}, nil
}
