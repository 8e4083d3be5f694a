package eval

import "github.com/hatlesswizard/jstaintfold/pkg/value"

// runtimeThrow represents a `throw` executed by evaluated code. It is
// distinct from the diag package's three diagnostic kinds: a runtime
// throw is always user-catchable regardless of how it was produced,
// unlike InternalInvariant.
type runtimeThrow struct {
	value *value.Carrier
}

func (r *runtimeThrow) Error() string { return "uncaught throw" }
