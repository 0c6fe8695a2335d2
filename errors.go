package taskgrid

import "errors"

// InvalidArgumentError reports a call rejected before any state changed:
// nil or duplicate units, empty handles, self-edges, and similar misuse.
type InvalidArgumentError struct {
	Reason string
}

func (e *InvalidArgumentError) Error() string { return e.Reason }

// RuntimeError reports a failure detected while the engine is live: a cycle
// closing edge, mutation of an executing engine, or worker-body failures
// aggregated by Wait. When it aggregates worker failures, Errs holds the
// individual errors and the reason joins their messages newline-separated.
type RuntimeError struct {
	Reason string
	Errs   []error
}

func (e *RuntimeError) Error() string { return e.Reason }

// Unwrap exposes the aggregated worker failures, if any.
func (e *RuntimeError) Unwrap() []error { return e.Errs }

// IsInvalidArgument reports whether err is (or wraps) an InvalidArgumentError.
func IsInvalidArgument(err error) bool {
	var target *InvalidArgumentError
	return errors.As(err, &target)
}

// IsRuntime reports whether err is (or wraps) a RuntimeError.
func IsRuntime(err error) bool {
	var target *RuntimeError
	return errors.As(err, &target)
}
