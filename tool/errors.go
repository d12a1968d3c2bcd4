package tool

import (
	"errors"
	"fmt"
)

// ErrToolNotFound is returned when a lookup references an unregistered tool.
type ErrToolNotFound struct {
	Name string
}

func (e *ErrToolNotFound) Error() string {
	return fmt.Sprintf("tool: not found: %s", e.Name)
}

// ErrToolAlreadyRegistered is returned when registering a tool with a duplicate name.
type ErrToolAlreadyRegistered struct {
	Name string
}

func (e *ErrToolAlreadyRegistered) Error() string {
	return fmt.Sprintf("tool: already registered: %s", e.Name)
}

// ErrInvalidSchema is returned when a tool's parameter schema does not compile.
type ErrInvalidSchema struct {
	Name string
	Err  error
}

func (e *ErrInvalidSchema) Error() string {
	return fmt.Sprintf("tool: invalid schema for %s: %v", e.Name, e.Err)
}

func (e *ErrInvalidSchema) Unwrap() error { return e.Err }

// InvalidArgumentsError marks a handler failure caused by the caller's
// arguments rather than the tool itself. Dispatch reports it as
// tool_invalid_arguments.
type InvalidArgumentsError struct {
	Err error
}

func (e *InvalidArgumentsError) Error() string { return e.Err.Error() }

func (e *InvalidArgumentsError) Unwrap() error { return e.Err }

// InvalidArguments wraps err so Dispatch classifies it as invalid input.
func InvalidArguments(err error) error {
	if err == nil {
		return nil
	}
	return &InvalidArgumentsError{Err: err}
}

// InvalidArgumentsf formats an invalid-input error.
func InvalidArgumentsf(format string, args ...any) error {
	return &InvalidArgumentsError{Err: fmt.Errorf(format, args...)}
}

func isInvalidArguments(err error) bool {
	var ia *InvalidArgumentsError
	return errors.As(err, &ia)
}
