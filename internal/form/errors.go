package form

import (
	"errors"
	"fmt"
)

var (
	// ErrWrongStage is returned when the current address is not the one the stage expects.
	ErrWrongStage = errors.New("page is not at the expected stage")
	// ErrNoChoicesFound is returned when the choice stage shows no selectable options.
	ErrNoChoicesFound = errors.New("no choices found")
	// ErrActivationFailed is returned when an element could not be clicked.
	ErrActivationFailed = errors.New("element activation failed")
	// ErrFormNotPresent is returned when the form container never became visible.
	ErrFormNotPresent = errors.New("form not present")
)

// StageError is returned by Walker.Run. It names the stage that failed and
// carries the diagnostic snapshot taken right after the failure, if any.
type StageError struct {
	Stage      string
	Err        error
	Diagnostic *Diagnostic
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
