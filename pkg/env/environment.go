// Package env implements Environment, the scope record: a name-to-carrier
// mapping with a parent link, taint-write and taint-read gates, and
// member-path writes. It is grounded on the teacher's pkg/tracer/scope.go
// ScopeManager (parent-chain lookup, shadow-aware declaration) generalized
// from a write-once taint tracker into a read/write/member-write gated
// model.
package env

import (
	"github.com/hatlesswizard/jstaintfold/pkg/ast"
	"github.com/hatlesswizard/jstaintfold/pkg/diag"
	"github.com/hatlesswizard/jstaintfold/pkg/value"
)

// Environment is one scope: a record plus a parent link. The three gate
// fields are set by the Evaluator when it creates a scope for an
// ambiguous-flow construct (conditional, if, loop, try/catch).
type Environment struct {
	record                   map[string]*value.Carrier
	parent                   *Environment
	TaintParentWrites        bool
	TaintParentReads         bool
	IgnoreReferenceException bool
}

// New creates a scope with the given parent (nil for the root/global
// scope). A child scope inherits its parent's IgnoreReferenceException:
// once the program root tolerates an unresolved free identifier, every
// scope reachable from it does too, so a nested ambiguous branch that
// happens to read an unresolved name doesn't abort evaluation just
// because it wasn't itself marked tolerant. Callers that need a scope
// isolated from this inheritance (a function-body sandbox, a loop's
// fixed-point simplification) pass a nil parent or set the field
// explicitly afterward.
func New(parent *Environment) *Environment {
	e := &Environment{record: make(map[string]*value.Carrier), parent: parent}
	if parent != nil {
		e.IgnoreReferenceException = parent.IgnoreReferenceException
	}
	return e
}

// Parent returns the enclosing scope, or nil at the root.
func (e *Environment) Parent() *Environment { return e.parent }

// Declare idempotently inserts an undefined, untainted entry for name. A
// pre-existing entry is silently tolerated, since the obfuscated source
// model permits redeclaration.
func (e *Environment) Declare(name string) {
	if _, ok := e.record[name]; ok {
		return
	}
	e.record[name] = value.Undef()
}

// DeclareAs idempotently inserts carrier c for name if name is not already
// declared locally; used for parameter binding and catch-clause binding
// where the initial value is known at declaration time.
func (e *Environment) DeclareAs(name string, c *value.Carrier) {
	if _, ok := e.record[name]; ok {
		return
	}
	e.record[name] = c
}

// owningScope walks the chain from e upward and returns the scope whose
// own record holds name, or nil if no scope in the chain does.
func (e *Environment) owningScope(name string) *Environment {
	for s := e; s != nil; s = s.parent {
		if _, ok := s.record[name]; ok {
			return s
		}
	}
	return nil
}

// Lookup returns the raw stored carrier for name and the scope that owns
// it, without the reference-normalization Resolve applies. The Evaluator
// uses this when it needs the actual stored value (e.g. to read an array's
// elements for member access or to compute an update expression's new
// value), not a read-taint-gated view of it.
func (e *Environment) Lookup(name string) (*value.Carrier, *Environment, bool) {
	owner := e.owningScope(name)
	if owner == nil {
		return nil, nil, false
	}
	return owner.record[name], owner, true
}

// Resolve looks up name along the scope chain: found in self, return
// as-is; found in an ancestor under taint_parent_reads, return a fresh
// tainted reference; found in an ancestor otherwise, return the carrier
// with Node normalized to a bare identifier reference (so the caller sees
// "identifier X", not X's current residual form). Unresolved raises
// ReferenceUnresolved unless IgnoreReferenceException is set, in which
// case name is locally declared as a tainted reference and returned.
func (e *Environment) Resolve(name string) (*value.Carrier, error) {
	owner := e.owningScope(name)
	if owner == nil {
		if e.IgnoreReferenceException {
			c := value.TaintedNode(ast.Ident(name))
			e.record[name] = c
			return c, nil
		}
		return nil, diag.NewReferenceUnresolved(name)
	}
	if owner == e {
		return owner.record[name], nil
	}
	if e.TaintParentReads {
		return value.TaintedNode(ast.Ident(name)), nil
	}
	stored := owner.record[name]
	return &value.Carrier{Value: stored.Value, Node: ast.Ident(name), Tainted: stored.Tainted}, nil
}

// Assign stores c for name: if the writer (e) has TaintParentWrites set
// and the owning scope differs from e, the parent never receives a
// concrete value, only a tainted reference is stored. Otherwise carrier
// is stored verbatim. If name is undeclared
// anywhere in the chain, it is declared at the root (global) scope, the
// same implicit-global behavior the source language exhibits for a bare
// assignment to an undeclared name.
func (e *Environment) Assign(name string, c *value.Carrier) error {
	owner := e.owningScope(name)
	if owner == nil {
		owner = e.root()
	}
	if e.TaintParentWrites && owner != e {
		owner.record[name] = value.TaintedNode(ast.Ident(name))
		return nil
	}
	owner.record[name] = c
	return nil
}

func (e *Environment) root() *Environment {
	s := e
	for s.parent != nil {
		s = s.parent
	}
	return s
}

// SetTaint flips the taint bit on the resolved entry without altering its
// value/node.
func (e *Environment) SetTaint(name string, tainted bool) error {
	c, owner, ok := e.Lookup(name)
	if !ok {
		return diag.NewReferenceUnresolved(name)
	}
	owner.record[name] = &value.Carrier{Value: c.Value, Node: c.Node, Tainted: tainted}
	return nil
}

// IsTaintedEnv reports whether any scope between e (inclusive) and limit
// (exclusive, or the root) has TaintParentWrites set.
func (e *Environment) IsTaintedEnv(limit *Environment) bool {
	for s := e; s != nil && s != limit; s = s.parent {
		if s.TaintParentWrites {
			return true
		}
	}
	return false
}

// CopyChainFlattened returns a parent-shadowing snapshot of name to
// carrier across the whole chain, innermost scope's binding winning.
func (e *Environment) CopyChainFlattened() map[string]*value.Carrier {
	out := make(map[string]*value.Carrier)
	scopes := []*Environment{}
	for s := e; s != nil; s = s.parent {
		scopes = append(scopes, s)
	}
	for i := len(scopes) - 1; i >= 0; i-- {
		for name, c := range scopes[i].record {
			out[name] = c
		}
	}
	return out
}

// Names returns the names declared directly in e's own record, for loop
// simplification's "clear the loop's local record" step.
func (e *Environment) Names() []string {
	names := make([]string, 0, len(e.record))
	for name := range e.record {
		names = append(names, name)
	}
	return names
}

// ClearLocal empties e's own record in place (parent links and gate flags
// are untouched), used between fixed-point simplification passes over an
// ambiguous loop body to keep stale concrete values from one pass from
// poisoning the next.
func (e *Environment) ClearLocal() {
	e.record = make(map[string]*value.Carrier)
}
