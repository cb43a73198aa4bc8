package protest

import (
	"errors"
	"fmt"
)

// RuntimeError marks a fault of the harness itself rather than of the
// pipeline under test: a broken plan file, a missing cheetah launcher,
// a vector that cannot be fetched. It maps to exit code 2.
type RuntimeError struct {
	Err error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime error: %v", e.Err)
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// NewRuntimeError wraps err as a RuntimeError.
func NewRuntimeError(err error) *RuntimeError {
	return &RuntimeError{Err: err}
}

// IsRuntimeError reports whether err is or wraps a RuntimeError.
func IsRuntimeError(err error) bool {
	var runtimeErr *RuntimeError
	return err != nil && errors.As(err, &runtimeErr)
}

// ScenarioFailureError marks a validation verdict: cheetah ran, but a
// signal it should have recovered was missed or a data product is
// inconsistent with the input vector. It maps to exit code 1.
type ScenarioFailureError struct {
	Message string
}

func (e *ScenarioFailureError) Error() string {
	return fmt.Sprintf("scenario failure: %s", e.Message)
}

// NewScenarioFailureError builds a ScenarioFailureError from a verdict
// message.
func NewScenarioFailureError(message string) *ScenarioFailureError {
	return &ScenarioFailureError{Message: message}
}

// IsScenarioFailureError reports whether err is or wraps a
// ScenarioFailureError.
func IsScenarioFailureError(err error) bool {
	var sfe *ScenarioFailureError
	return err != nil && errors.As(err, &sfe)
}
