// Package errs defines the four error classes of spec §7, mirroring the
// teacher's sentinel-error style (infrastructure/state.ErrNotFound,
// infrastructure/resilience.ErrCircuitOpen).
package errs

import "fmt"

// Kind classifies a control-plane failure per spec §7.
type Kind string

const (
	// KindInvalidInput marks bad input: never mutates state.
	KindInvalidInput Kind = "invalid_input"
	// KindCapacity marks contention/capacity failures handled locally
	// (cache full, cooldown active, cold nodes unavailable).
	KindCapacity Kind = "capacity"
	// KindCollaborator marks an external collaborator failure (predictor
	// timeout, dashboard send failure, persistence write failure).
	KindCollaborator Kind = "collaborator"
	// KindInvariant marks a fatal logic-bug invariant violation.
	KindInvariant Kind = "invariant"
)

// Error is the typed error every component-level failure is wrapped in.
type Error struct {
	Kind      Kind
	Component string
	Op        string
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s.%s: %v", e.Kind, e.Component, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s.%s", e.Kind, e.Component, e.Op)
}

func (e *Error) Unwrap() error { return e.Err }

func InvalidInput(component, op string, err error) error {
	return &Error{Kind: KindInvalidInput, Component: component, Op: op, Err: err}
}

func Capacity(component, op string, err error) error {
	return &Error{Kind: KindCapacity, Component: component, Op: op, Err: err}
}

func Collaborator(component, op string, err error) error {
	return &Error{Kind: KindCollaborator, Component: component, Op: op, Err: err}
}

func Invariant(component, op string, err error) error {
	return &Error{Kind: KindInvariant, Component: component, Op: op, Err: err}
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	e, ok := err.(*Error)
	return ok && e.Kind == kind
}
