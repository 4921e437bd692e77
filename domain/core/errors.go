package core

import (
	"errors"
	"fmt"
)

// Error kinds shared by every stage of a power analysis
var (
	// ErrInvalidArgument covers bad counts, dimensions and labels. It is
	// always raised before any expensive work starts.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrFitFailure means the model fitting routine did not converge or
	// produced a degenerate fit.
	ErrFitFailure = errors.New("model fit failed")

	// ErrConcurrencyFault means a replicate worker panicked or failed in a
	// way unrelated to fitting.
	ErrConcurrencyFault = errors.New("concurrency fault")
)

// Error constructors with context
func NewInvalidArgumentError(field string, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidArgument, field, reason)
}

func NewDimensionError(param string, got, want int) error {
	return fmt.Errorf("%w: %s has length %d, model expects %d", ErrInvalidArgument, param, got, want)
}

func NewFitFailureError(reason string, cause error) error {
	if cause == nil {
		return fmt.Errorf("%w: %s", ErrFitFailure, reason)
	}
	return fmt.Errorf("%w: %s: %v", ErrFitFailure, reason, cause)
}

func NewConcurrencyFaultError(worker int, cause any) error {
	return fmt.Errorf("%w: worker %d: %v", ErrConcurrencyFault, worker, cause)
}

// Error checking helpers
func IsInvalidArgument(err error) bool {
	return errors.Is(err, ErrInvalidArgument)
}

func IsFitFailure(err error) bool {
	return errors.Is(err, ErrFitFailure)
}

func IsConcurrencyFault(err error) bool {
	return errors.Is(err, ErrConcurrencyFault)
}
