package agent

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput is matched by every *InputError.
	ErrInvalidInput = errors.New("agent: invalid input")

	// ErrNoTerminalEvent is returned by Run when the event stream closed
	// without run_end or run_error.
	ErrNoTerminalEvent = errors.New("agent: turn ended without a terminal event")

	errIncompleteStream = errors.New("agent: model stream ended without a final response")
)

// InputError reports a rejected turn request.
type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("agent: invalid %s: %s", e.Field, e.Reason)
}

func (e *InputError) Unwrap() error { return ErrInvalidInput }
