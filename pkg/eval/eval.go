package eval

import (
	"github.com/hatlesswizard/jstaintfold/pkg/ast"
	"github.com/hatlesswizard/jstaintfold/pkg/diag"
	"github.com/hatlesswizard/jstaintfold/pkg/env"
	"github.com/hatlesswizard/jstaintfold/pkg/value"
)

// maxEvalDepth guards the purely-recursive evaluator against runaway
// input (pathologically deep expression nesting, or a bug turning a loop
// into unbounded recursion) the way pkg/tracer guards its own
// recursive call-graph walk with a depth counter.
const maxEvalDepth = 4000

func notImplementedErr(construct string) error { return diag.NewNotImplemented(construct) }

// CtrlKind discriminates the non-local control outcome of evaluating a
// statement, replacing an ambient "return_stmt" flag and stack-unwind
// exceptions with an explicit result discriminant: Normal(carrier?) |
// Returning(carrier) | Breaking(label?).
type CtrlKind int

const (
	CtrlNone CtrlKind = iota
	CtrlReturn
	CtrlBreak
)

// StmtOutcome is the result of evaluating one statement: its residual
// fragment (nil if it produced none, e.g. a branch of an untainted
// conditional that was not taken) plus any non-local control it raised.
type StmtOutcome struct {
	Residual ast.Node
	Ctrl     CtrlKind
	Label    string
}

// Evaluator is the recursive partial evaluator: it owns exactly one
// Callstack and recursion depth counter, and it is not safe for
// concurrent use, since a single evaluation is strictly single-threaded.
type Evaluator struct {
	stack     *Callstack
	depth     int
	loopCache *fixedPointCache
	persist   PersistentLoopCache
	occ       diag.Occurrences
}

// Occurrences returns the trail of diagnostics raised during Run, in raise
// order, for the CLI to report once evaluation finishes or fails.
func (ev *Evaluator) Occurrences() []diag.Occurrence {
	return ev.occ.All()
}

// PersistentLoopCache is an optional secondary tier behind the in-memory
// fixedPointCache: the CLI wires pkg/fixedpointstore.Store in here (via
// SetPersistentLoopCache) when invoked with -cache, so a loop fixed point
// already proven stable in a prior process survives a restart. The
// evaluator core has no compile-time dependency on sqlite3 or any other
// storage backend, only on this two-method shape.
type PersistentLoopCache interface {
	Get(hash string) (test ast.Node, body *ast.BlockStatement, ok bool, err error)
	Put(hash string, test ast.Node, body *ast.BlockStatement) error
}

// New returns a ready-to-use Evaluator with an empty callstack.
func New() *Evaluator {
	return &Evaluator{stack: NewCallstack(), loopCache: newFixedPointCache(256)}
}

// SetPersistentLoopCache wires an optional on-disk tier behind the
// in-memory loop fixed-point cache. Passing nil disables it (the default).
func (ev *Evaluator) SetPersistentLoopCache(c PersistentLoopCache) {
	ev.persist = c
}

// Run evaluates a whole Program and returns its residual top-level
// statement list, ready for the code generator. A *value.LiftError panic
// escaping from value.Repr/value.Lift (an ill-formed carrier, or an
// unsupported value type reaching ValueLift) is recovered here and
// reported as an InternalInvariant rather than crashing the process; any
// other panic is not ours to interpret and propagates.
func (ev *Evaluator) Run(prog *ast.Program) (out []ast.Node, err error) {
	defer func() {
		if r := recover(); r != nil {
			le, ok := r.(*value.LiftError)
			if !ok {
				panic(r)
			}
			err = diag.NewInternalInvariant("value lift failed: %v", le)
			ev.occ.Record(err, false)
			out = append(out, prog.Body...)
		}
	}()

	root := env.New(nil)
	// The program root has no enclosing scope to resolve a free name
	// against, and obfuscated (or any real-world) source constantly
	// references globals the evaluator never sees declared: window,
	// document, unresolved callees, host builtins. Treating those as fatal
	// would abort folding of the entire remainder of the program on the
	// first such reference. Instead, an unresolved top-level name is
	// locally declared as a tainted reference and evaluation continues,
	// the same tolerance a function body's isolated simplification already
	// gets.
	root.IgnoreReferenceException = true
	ctx := &Context{Env: root, Kind: KindProgram}
	ev.stack.Push(ctx)
	defer ev.stack.Pop()

	out = make([]ast.Node, 0, len(prog.Body))
	for i, stmt := range prog.Body {
		res, err := ev.EvalStmt(stmt, root)
		if err != nil {
			// Fatal error at top level: return the accumulated prefix plus
			// the original failing statement, then the untouched remainder
			// verbatim.
			ev.occ.Record(err, false)
			out = append(out, stmt)
			out = append(out, prog.Body[i+1:]...)
			return out, err
		}
		if res.Residual != nil {
			out = append(out, res.Residual)
		}
	}
	return out, nil
}

func (ev *Evaluator) enter() error {
	ev.depth++
	if ev.depth > maxEvalDepth {
		return diag.NewInternalInvariant("max evaluation depth exceeded")
	}
	return nil
}

func (ev *Evaluator) exit() { ev.depth-- }

// EvalExpr evaluates an expression node to a carrier, dispatching to one
// arm per tree shape.
func (ev *Evaluator) EvalExpr(n ast.Node, e *env.Environment) (*value.Carrier, error) {
	if err := ev.enter(); err != nil {
		return nil, err
	}
	defer ev.exit()

	switch v := n.(type) {
	case *ast.Identifier:
		return ev.evalIdentifier(v, e)
	case *ast.StringLiteral:
		return value.Str(v.Value), nil
	case *ast.NumericLiteral:
		return value.Num(v.Value), nil
	case *ast.BooleanLiteral:
		return value.Bool_(v.Value), nil
	case *ast.NullLiteral:
		return value.NullValue(), nil
	case *ast.BigIntLiteral:
		return ev.evalBigIntLiteral(v)
	case *ast.RegExpLiteral:
		return value.RegexVal(v.Pattern, v.Flags), nil
	case *ast.BinaryExpression:
		return ev.evalBinary(v, e)
	case *ast.LogicalExpression:
		return ev.evalLogical(v, e)
	case *ast.UnaryExpression:
		return ev.evalUnary(v, e)
	case *ast.UpdateExpression:
		return ev.evalUpdate(v, e)
	case *ast.SequenceExpression:
		return ev.evalSequence(v, e)
	case *ast.AssignmentExpression:
		return ev.evalAssignment(v, e)
	case *ast.ConditionalExpression:
		return ev.evalConditional(v, e)
	case *ast.ArrayExpression:
		return ev.evalArray(v, e)
	case *ast.MemberExpression:
		return ev.evalMember(v, e, false)
	case *ast.OptionalMemberExpression:
		return ev.evalMember(v, e, true)
	case *ast.FunctionExpression:
		return ev.evalFunctionExpression(v, e)
	case *ast.CallExpression:
		return ev.evalCall(v, e)
	default:
		return nil, diag.NewInternalInvariant("unhandled expression node %T", n)
	}
}

func (ev *Evaluator) evalIdentifier(v *ast.Identifier, e *env.Environment) (*value.Carrier, error) {
	if v.Name == "undefined" {
		return value.Undef(), nil
	}
	return e.Resolve(v.Name)
}
