// Package eval implements the taint-propagating abstract interpreter: the
// recursive evaluator that walks a pkg/ast tree, folds everything it can,
// and rewrites the rest into minimal residual form. It is grounded on the
// teacher's recursive tracer dispatch style and, for the dispatch shape
// itself (a type-switch returning a result plus an error, recursing into
// children before composing), on the funvibe-funxy interpreter's
// Eval(node, env) pattern from the retrieval pack.
package eval

import (
	"github.com/hatlesswizard/jstaintfold/pkg/env"
	"github.com/hatlesswizard/jstaintfold/pkg/value"
)

// Kind names the structural role of one entry on the Callstack.
type Kind int

const (
	KindProgram Kind = iota
	KindBlock
	KindIf
	KindConditional
	KindWhile
	KindDoWhile
	KindFor
	KindFunction
	KindLabel
	KindCatch
	KindSwitch
)

// Context is one ExecutionContext: an environment paired with the
// structural kind of scope that owns it, plus whatever bookkeeping that
// kind needs. Label is set for KindLabel and KindFunction may carry a
// pending ReturnValue once a return statement inside it has fired.
type Context struct {
	Env   *env.Environment
	Kind  Kind
	Label string

	// ReturnValue is set by a return statement once it has located this
	// context as the innermost enclosing function. Only meaningful when
	// Kind == KindFunction.
	ReturnValue *value.Carrier
}

// Callstack is the ordered sequence of Contexts; non-local control
// (return/break/label) walks it to find its target.
type Callstack struct {
	frames []*Context
}

// NewCallstack returns an empty stack.
func NewCallstack() *Callstack { return &Callstack{} }

func (c *Callstack) Push(ctx *Context) { c.frames = append(c.frames, ctx) }

func (c *Callstack) Pop() *Context {
	n := len(c.frames)
	if n == 0 {
		return nil
	}
	top := c.frames[n-1]
	c.frames = c.frames[:n-1]
	return top
}

func (c *Callstack) Top() *Context {
	if len(c.frames) == 0 {
		return nil
	}
	return c.frames[len(c.frames)-1]
}

// FindFunction returns the innermost KindFunction context, used by a
// return statement.
func (c *Callstack) FindFunction() *Context {
	for i := len(c.frames) - 1; i >= 0; i-- {
		if c.frames[i].Kind == KindFunction {
			return c.frames[i]
		}
	}
	return nil
}

// loopKinds are the Callstack kinds an unlabeled break may target.
var loopKinds = map[Kind]bool{
	KindWhile: true, KindDoWhile: true, KindFor: true, KindSwitch: true,
}

// FindBreakTarget returns the innermost context an (optionally labeled)
// break statement resolves to: the nearest loop/switch context for an
// unlabeled break, or the nearest context whose Label matches for a
// labeled one.
func (c *Callstack) FindBreakTarget(label string) *Context {
	for i := len(c.frames) - 1; i >= 0; i-- {
		f := c.frames[i]
		if label == "" {
			if loopKinds[f.Kind] {
				return f
			}
			continue
		}
		if f.Kind == KindLabel && f.Label == label {
			return f
		}
	}
	return nil
}

// MarkAmbiguousControlTarget marks every loop environment between the
// innermost context (inclusive) and target (inclusive) as written under
// ambiguity. A labeled break's target is the KindLabel context, which may
// sit one or more loop contexts above the loop the break actually exits,
// none of which otherwise learn that their own exit condition is uncertain,
// since only target.Env would be marked.
func (c *Callstack) MarkAmbiguousControlTarget(target *Context) {
	for i := len(c.frames) - 1; i >= 0; i-- {
		f := c.frames[i]
		if loopKinds[f.Kind] {
			f.Env.TaintParentWrites = true
		}
		if f == target {
			target.Env.TaintParentWrites = true
			return
		}
	}
}
