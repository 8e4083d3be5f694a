// Package diag defines the three diagnostic kinds the evaluator can raise:
// NotImplemented, ReferenceUnresolved, and InternalInvariant. Each is a
// distinct Go error type so callers (in particular pkg/eval's
// try/catch handling) can distinguish them with errors.As rather than
// string matching, matching the small typed-error-struct style used by
// securego/gosec's errors.go/issue.go rather than pulling in a generic
// error-wrapping library.
package diag

import (
	"fmt"

	"github.com/google/uuid"
)

// NotImplemented marks a tree shape or operator outside the supported
// subset: block-scoped declarators, destructuring, generators/async,
// unsupported update targets, the `|>` operator. Always fatal to the
// current evaluation.
type NotImplemented struct {
	ID        string
	Construct string
}

func NewNotImplemented(construct string) *NotImplemented {
	return &NotImplemented{ID: uuid.NewString(), Construct: construct}
}

func (e *NotImplemented) Error() string {
	return fmt.Sprintf("not implemented: %s", e.Construct)
}

// ReferenceUnresolved marks an identifier absent from the entire scope
// chain while ignore_reference_exception is false, or a break/label
// targeting a missing label. User-catchable from within a try body;
// fatal outside one.
type ReferenceUnresolved struct {
	ID   string
	Name string
}

func NewReferenceUnresolved(name string) *ReferenceUnresolved {
	return &ReferenceUnresolved{ID: uuid.NewString(), Name: name}
}

func (e *ReferenceUnresolved) Error() string {
	return fmt.Sprintf("reference unresolved: %s", e.Name)
}

// InternalInvariant marks a violated evaluator invariant: a carrier with
// neither value nor node, an unexpected popped context, an unsupported
// value type reaching ValueLift. Always fatal; never caught by a user
// try.
type InternalInvariant struct {
	ID      string
	Message string
}

func NewInternalInvariant(format string, args ...interface{}) *InternalInvariant {
	return &InternalInvariant{ID: uuid.NewString(), Message: fmt.Sprintf(format, args...)}
}

func (e *InternalInvariant) Error() string {
	return fmt.Sprintf("internal invariant violated: %s", e.Message)
}

// Catchable reports whether err is a diagnostic a user `try` may recover
// from: NotImplemented and ReferenceUnresolved are; InternalInvariant is
// not, and neither is any non-diagnostic error value (a runtime throw is
// handled separately by pkg/eval, which always treats it as catchable).
func Catchable(err error) bool {
	switch err.(type) {
	case *NotImplemented, *ReferenceUnresolved:
		return true
	case *InternalInvariant:
		return false
	default:
		return false
	}
}

// Occurrence is one entry in an Occurrences trail: a diagnostic's ID, its
// error text, and whether it was caught by a user try/catch or allowed to
// surface fatally. The tree dialect carries no source location fields, so
// there is no line/column to record here, unlike gosec's Error/Issue
// struct-per-finding (which does have a source file to point at).
type Occurrence struct {
	ID      string
	Message string
	Caught  bool
}

// Occurrences accumulates one Occurrence per diagnostic raised during a
// single evaluator run, for the CLI to report once evaluation finishes
// (or fails). Not safe for concurrent use, matching the evaluator's own
// single-threaded model.
type Occurrences struct {
	entries []Occurrence
}

// Record appends one Occurrence for err, which must be one of this
// package's diagnostic types; non-diagnostic errors (a runtime throw) are
// recorded with an empty ID.
func (o *Occurrences) Record(err error, caught bool) {
	occ := Occurrence{Message: err.Error(), Caught: caught}
	switch e := err.(type) {
	case *NotImplemented:
		occ.ID = e.ID
	case *ReferenceUnresolved:
		occ.ID = e.ID
	case *InternalInvariant:
		occ.ID = e.ID
	}
	o.entries = append(o.entries, occ)
}

// All returns the recorded trail in raise order.
func (o *Occurrences) All() []Occurrence {
	return o.entries
}
