package dynamo

import (
	"errors"
	"fmt"
)

// Domain errors shared across the controller stack.
var (
	// ErrBadStep indicates a non-positive discretization step.
	ErrBadStep = errors.New("dynamo: time step must be positive")

	// ErrBadHorizon indicates a prediction horizon shorter than one step.
	ErrBadHorizon = errors.New("dynamo: horizon must cover at least one step")

	// ErrBadPeriods indicates a closed-loop run of fewer than one period.
	ErrBadPeriods = errors.New("dynamo: run must cover at least one control period")

	// ErrInvalidState indicates a state vector with NaN or Inf components.
	ErrInvalidState = errors.New("dynamo: invalid state (NaN or Inf detected)")

	// ErrDimensionMismatch indicates mismatched state/control dimensions.
	ErrDimensionMismatch = errors.New("dynamo: dimension mismatch between state and system")

	// ErrContextCanceled indicates the run was interrupted.
	ErrContextCanceled = errors.New("dynamo: run canceled by context")
)

// PeriodError wraps an error with the control period it occurred in.
type PeriodError struct {
	Period  int
	Time    float64
	State   State
	Wrapped error
}

func (e *PeriodError) Error() string {
	return fmt.Sprintf("period %d (t=%.3f): %v", e.Period, e.Time, e.Wrapped)
}

func (e *PeriodError) Unwrap() error {
	return e.Wrapped
}
