package workflow

import (
	"errors"
	"fmt"

	"github.com/dftm/dftm-calendar/internal/models"
)

var (
	// ErrValidation matches every *ValidationError.
	ErrValidation = errors.New("validation failed")

	// ErrPrecondition matches every *PreconditionError.
	ErrPrecondition = errors.New("precondition failed")

	// ErrNotFound is wrapped by the not-found errors of the stores
	// backing a UserResolver.
	ErrNotFound = errors.New("not found")
)

// ValidationError reports a malformed or unrecognized input value.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// PreconditionError reports a transition the state machine
// does not allow from the task's current status.
type PreconditionError struct {
	Action Action
	Status models.Status
	Reason string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("cannot %s task in status %s: %s", e.Action, e.Status, e.Reason)
}

func (e *PreconditionError) Is(target error) bool {
	return target == ErrPrecondition
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
