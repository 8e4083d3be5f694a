package eval

import (
	"github.com/hatlesswizard/jstaintfold/pkg/ast"
	"github.com/hatlesswizard/jstaintfold/pkg/env"
	"github.com/hatlesswizard/jstaintfold/pkg/value"
)

// Closure is the callable value the function declaration/expression arm
// builds. It carries no back-pointer to the Evaluator: Invoke takes the
// Evaluator explicitly as an argument, so the closure itself is just data
// (name, params, captured body, lexical parent, and the
// separately-simplified residual it lifts to).
type Closure struct {
	Name   string
	Params []ast.Node
	Body   *ast.BlockStatement
	Parent *env.Environment

	// residual is the body simplified in isolation at declaration time: a
	// sandbox run with ignore_reference_exception set and parameters
	// pre-bound as tainted references. It is fixed once and does not
	// change per call.
	residual *ast.FunctionExpression
}

// Residual implements value.Closure.
func (c *Closure) Residual() ast.Node { return c.residual }

// Invoke is the callable half of a function value: push a function
// context, bind params (and `arguments`, tainted) into its local record,
// evaluate the body in return mode, pop the context, and yield the
// recorded return carrier (forcing tainted if the function body ran
// under any ambiguous-flow taint).
func (ev *Evaluator) Invoke(c *Closure, args []*value.Carrier) (*value.Carrier, error) {
	callEnv := env.New(c.Parent)
	for i, p := range c.Params {
		id, ok := p.(*ast.Identifier)
		if !ok {
			continue
		}
		var arg *value.Carrier
		if i < len(args) {
			arg = args[i]
		} else {
			arg = value.Undef()
		}
		callEnv.DeclareAs(id.Name, arg)
	}
	callEnv.DeclareAs("arguments", value.TaintedNode(ast.Ident("arguments")))

	ctx := &Context{Env: callEnv, Kind: KindFunction}
	ev.stack.Push(ctx)
	_, _, err := ev.evalBlockCollect(c.Body, callEnv)
	ev.stack.Pop()
	if err != nil {
		return nil, err
	}

	ret := ctx.ReturnValue
	if ret == nil {
		ret = value.Undef()
	}
	if callEnv.TaintParentWrites && !ret.Tainted {
		ret = value.TaintedNode(value.Repr(ret))
	}
	return ret, nil
}

// buildClosure implements the two-step function arm for both
// FunctionDeclaration and FunctionExpression.
func (ev *Evaluator) buildClosure(name string, params []ast.Node, body *ast.BlockStatement, parentEnv *env.Environment) (*Closure, error) {
	for _, p := range params {
		if _, ok := p.(*ast.Identifier); !ok {
			return nil, notImplementedErr("non-identifier function parameter")
		}
	}
	c := &Closure{Name: name, Params: params, Body: body, Parent: parentEnv}

	sandbox := env.New(nil)
	sandbox.IgnoreReferenceException = true
	for _, p := range params {
		id := p.(*ast.Identifier)
		sandbox.DeclareAs(id.Name, value.TaintedNode(ast.Ident(id.Name)))
	}
	sandbox.DeclareAs("arguments", value.TaintedNode(ast.Ident("arguments")))

	ctx := &Context{Env: sandbox, Kind: KindFunction}
	ev.stack.Push(ctx)
	residualBody, _, err := ev.evalBlockCollect(body, sandbox)
	ev.stack.Pop()
	if err != nil {
		return nil, err
	}

	var idNode *ast.Identifier
	if name != "" {
		idNode = ast.Ident(name)
	}
	c.residual = &ast.FunctionExpression{ID: idNode, Params: params, Body: residualBody}
	return c, nil
}
