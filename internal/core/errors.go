package core

import "fmt"

// Kind classifies a core error per the propagation rules in the error
// handling design: argument errors are synchronous, aborted/failed
// surface on the affected promise, connection-lost/invalid-state are
// their own kinds. Silent rejection is deliberately not a Kind — it is
// modeled as a value simply being dropped, never surfaced as an error.
type Kind string

const (
	KindArgument         Kind = "argument_error"
	KindOperationAborted Kind = "operation_aborted"
	KindOperationFailed  Kind = "operation_failed"
	KindConnectionLost   Kind = "connection_lost"
	KindInvalidState     Kind = "invalid_state"
)

// CoreError is the control core's result-type error: a typed kind plus
// a human-readable message, so callers branch on Kind rather than
// string-matching.
type CoreError struct {
	Kind    Kind
	Message string
}

func (e *CoreError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is reports whether target is a CoreError with the same Kind, so
// callers can use errors.Is(err, &CoreError{Kind: KindArgument}).
func (e *CoreError) Is(target error) bool {
	other, ok := target.(*CoreError)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}

func argumentError(format string, args ...any) error {
	return &CoreError{Kind: KindArgument, Message: fmt.Sprintf(format, args...)}
}

func invalidStateError(format string, args ...any) error {
	return &CoreError{Kind: KindInvalidState, Message: fmt.Sprintf(format, args...)}
}

func abortedError(format string, args ...any) error {
	return &CoreError{Kind: KindOperationAborted, Message: fmt.Sprintf(format, args...)}
}

func failedError(format string, args ...any) error {
	return &CoreError{Kind: KindOperationFailed, Message: fmt.Sprintf(format, args...)}
}

func connectionLostError(format string, args ...any) error {
	return &CoreError{Kind: KindConnectionLost, Message: fmt.Sprintf(format, args...)}
}
