package optics

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is matching. Every typed error below reports one of
// them through its Is method, so callers can branch on the kind without
// caring about the concrete context.
var (
	// ErrInput marks bad caller input detected before any work is scheduled.
	ErrInput = errors.New("optics: invalid input")

	// ErrNumerical marks a non-finite value produced during accumulation.
	// Seeing it means input validation was bypassed; it is never retried.
	ErrNumerical = errors.New("optics: numerical failure")

	// ErrValidation marks an encoded pattern that violates its contract.
	ErrValidation = errors.New("optics: pattern validation failed")
)

// InputError reports an invalid configuration parameter or point source.
// Index is the catalog position of the offending source, or -1.
type InputError struct {
	Field  string
	Index  int
	Reason string
}

func (e *InputError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("optics: invalid input: source %d %s: %s", e.Index, e.Field, e.Reason)
	}
	return fmt.Sprintf("optics: invalid input: %s: %s", e.Field, e.Reason)
}

func (e *InputError) Is(target error) bool { return target == ErrInput }

// NumericalError reports a non-finite field value with its pixel, and the
// source index when one can be attributed (-1 otherwise).
type NumericalError struct {
	Stage  string
	X, Y   int
	Source int
	Value  complex128
}

func (e *NumericalError) Error() string {
	if e.Source >= 0 {
		return fmt.Sprintf("optics: numerical failure in %s at pixel (%d,%d) from source %d: %v", e.Stage, e.X, e.Y, e.Source, e.Value)
	}
	return fmt.Sprintf("optics: numerical failure in %s at pixel (%d,%d): %v", e.Stage, e.X, e.Y, e.Value)
}

func (e *NumericalError) Is(target error) bool { return target == ErrNumerical }

// ValidationError reports an encoded pattern that is misshapen, non-finite,
// or outside its encoding's range. X and Y are -1 for whole-pattern faults.
type ValidationError struct {
	Reason string
	X, Y   int
	Value  float64
}

func (e *ValidationError) Error() string {
	if e.X >= 0 {
		return fmt.Sprintf("optics: pattern validation failed at pixel (%d,%d) value %g: %s", e.X, e.Y, e.Value, e.Reason)
	}
	return "optics: pattern validation failed: " + e.Reason
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }
