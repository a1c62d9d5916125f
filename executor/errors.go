package executor

import (
	"fmt"
	"time"
)

// ProcessingError is a fatal failure while a node was producing output. Row
// is the number of the input row being processed, or zero if unknown.
type ProcessingError struct {
	NodeID int
	Row    int
	Err    error
}

// Error returns a string representation of the error.
func (e ProcessingError) Error() string {
	if e.Row > 0 {
		return fmt.Sprintf("node %d failed at row %d: %v", e.NodeID, e.Row, e.Err)
	}
	return fmt.Sprintf("node %d failed: %v", e.NodeID, e.Err)
}

// Unwrap returns the underlying error.
func (e ProcessingError) Unwrap() error {
	return e.Err
}

// Is returns true if the target error is a ProcessingError.
func (e ProcessingError) Is(target error) bool {
	_, ok := target.(ProcessingError)
	return ok
}

// UnsupportedOperationError is returned when an iterator is asked to do
// something its configuration cannot support, such as seeking backward with no
// buffer bound.
type UnsupportedOperationError struct {
	Op     string
	Reason string
}

// Error returns a string representation of the error.
func (e UnsupportedOperationError) Error() string {
	return fmt.Sprintf("unsupported operation %s: %s", e.Op, e.Reason)
}

// Is returns true if the target error is an UnsupportedOperationError.
func (e UnsupportedOperationError) Is(target error) bool {
	_, ok := target.(UnsupportedOperationError)
	return ok
}

// OutOfSequenceError is returned when a producer emits a batch that does not
// begin immediately after its previous batch.
type OutOfSequenceError struct {
	Producer string
	Expected int
	Got      int
}

// Error returns a string representation of the error.
func (e OutOfSequenceError) Error() string {
	return fmt.Sprintf("%s produced a batch beginning at row %d, expected row %d", e.Producer, e.Got, e.Expected)
}

// Is returns true if the target error is an OutOfSequenceError.
func (e OutOfSequenceError) Is(target error) bool {
	_, ok := target.(OutOfSequenceError)
	return ok
}

// RetryBudgetError is returned by the driver when a plan stays blocked longer
// than its retry policy allows.
type RetryBudgetError struct {
	Retries int
	Elapsed time.Duration
}

// Error returns a string representation of the error.
func (e RetryBudgetError) Error() string {
	return fmt.Sprintf("gave up after %d unproductive retries in %s", e.Retries, e.Elapsed)
}

// Is returns true if the target error is a RetryBudgetError.
func (e RetryBudgetError) Is(target error) bool {
	_, ok := target.(RetryBudgetError)
	return ok
}
