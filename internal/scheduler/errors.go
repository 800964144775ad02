package scheduler

import (
	"errors"
	"fmt"
)

// StageError wraps a stage evaluation failure with the node that produced it
// and the full parameter path that led there, so a failed combination is
// diagnosable inside a large sweep.
type StageError struct {
	NodeID string
	Err    error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage evaluation failed at %s: %v", e.NodeID, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// SkipError marks a node that was never evaluated because an ancestor failed
// or the run was cancelled. It is deliberately distinct from StageError: a
// skipped leaf is a symptom, not a cause.
type SkipError struct {
	NodeID     string
	AncestorID string
	Cause      error
}

func (e *SkipError) Error() string {
	return fmt.Sprintf("%s skipped due to upstream failure of %s", e.NodeID, e.AncestorID)
}

func (e *SkipError) Unwrap() error { return e.Cause }

// AllFailedError is the summary error returned when every leaf of a run
// failed. The first fresh stage failure is carried as the root cause.
type AllFailedError struct {
	Leaves int
	Cause  error
}

func (e *AllFailedError) Error() string {
	return fmt.Sprintf("all %d leaves failed: %v", e.Leaves, e.Cause)
}

func (e *AllFailedError) Unwrap() error { return e.Cause }

// SchedulingError reports that the worker pool became unavailable. It is
// fatal and aborts the run.
type SchedulingError struct {
	Err error
}

func (e *SchedulingError) Error() string {
	return fmt.Sprintf("scheduling failed: %v", e.Err)
}

func (e *SchedulingError) Unwrap() error { return e.Err }

// IsSkip reports whether err marks a skipped-by-ancestor (or cancelled) node.
func IsSkip(err error) bool {
	var se *SkipError
	return errors.As(err, &se)
}
