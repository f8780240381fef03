package models

import (
	"errors"
	"fmt"
)

// Run-level error kinds. Per-sample failures are data, not errors.
var (
	ErrConfiguration    = errors.New("configuration error")
	ErrExecution        = errors.New("execution error")
	ErrCancelled        = errors.New("run cancelled")
	ErrTimeout          = errors.New("time budget exceeded")
	ErrStrategyInternal = errors.New("strategy internal error")
)

// RunError carries a run-terminating error together with its kind.
// errors.Is matches both the kind sentinel and the wrapped cause.
type RunError struct {
	Kind error
	Err  error
}

func (e *RunError) Error() string {
	if e.Err == nil {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%v: %v", e.Kind, e.Err)
}

func (e *RunError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewRunError wraps err under the given kind
func NewRunError(kind, err error) *RunError {
	return &RunError{Kind: kind, Err: err}
}

// NewConfigurationError formats a configuration error
func NewConfigurationError(format string, args ...any) error {
	return &RunError{Kind: ErrConfiguration, Err: fmt.Errorf(format, args...)}
}

// NewStrategyError formats a numerical breakdown inside a strategy
func NewStrategyError(format string, args ...any) error {
	return &RunError{Kind: ErrStrategyInternal, Err: fmt.Errorf(format, args...)}
}

// StatusFromError maps a run's terminal error to its final status
func StatusFromError(err error) RunStatus {
	switch {
	case err == nil:
		return RunStatusSuccess
	case errors.Is(err, ErrConfiguration):
		return RunStatusConfigurationError
	case errors.Is(err, ErrCancelled):
		return RunStatusUserCancellation
	case errors.Is(err, ErrTimeout):
		return RunStatusTimeoutExceeded
	case errors.Is(err, ErrExecution):
		return RunStatusExecutionError
	default:
		return RunStatusStrategyInternalError
	}
}
