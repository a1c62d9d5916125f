package buffer

import (
	"fmt"
)

/*
Errors returned by the buffer package. All of them describe violations of the
buffer's sequencing contract; none is recoverable by retrying.
*/

////////////////////////////////////////////////////////////////////////////////

// OutOfSequenceError is returned when rows are appended anywhere other than
// immediately after the buffer's frontier, or the row count is moved forward
// past rows the buffer does not hold.
type OutOfSequenceError struct {
	Expected int
	Got      int
}

// Error returns a string representation of the error.
func (e OutOfSequenceError) Error() string {
	return fmt.Sprintf("out of sequence: expected row %d, got %d", e.Expected, e.Got)
}

// Is returns true if the target error is an OutOfSequenceError.
func (e OutOfSequenceError) Is(target error) bool {
	_, ok := target.(OutOfSequenceError)
	return ok
}

// UseAfterRemoveError is returned by any operation on a removed buffer.
type UseAfterRemoveError struct {
	BufferID string
}

// Error returns a string representation of the error.
func (e UseAfterRemoveError) Error() string {
	return fmt.Sprintf("buffer %s has been removed", e.BufferID)
}

// Is returns true if the target error is a UseAfterRemoveError.
func (e UseAfterRemoveError) Is(target error) bool {
	_, ok := target.(UseAfterRemoveError)
	return ok
}

// RowNotBufferedError is returned when a cursor reads a row that precedes the
// buffer's origin, i.e. a row that was purged or never saved.
type RowNotBufferedError struct {
	Row    int
	Origin int
}

// Error returns a string representation of the error.
func (e RowNotBufferedError) Error() string {
	return fmt.Sprintf("row %d is not buffered (buffer begins after row %d)", e.Row, e.Origin)
}

// Is returns true if the target error is a RowNotBufferedError.
func (e RowNotBufferedError) Is(target error) bool {
	_, ok := target.(RowNotBufferedError)
	return ok
}

// ArityError is returned when a row does not match the buffer's schema.
type ArityError struct {
	Row      int
	Expected int
	Got      int
}

// Error returns a string representation of the error.
func (e ArityError) Error() string {
	return fmt.Sprintf("row %d has %d values, schema has %d", e.Row, e.Got, e.Expected)
}

// Is returns true if the target error is an ArityError.
func (e ArityError) Is(target error) bool {
	_, ok := target.(ArityError)
	return ok
}

// UnsupportedValueError is returned when a value cannot be written to spill
// storage.
type UnsupportedValueError struct {
	Value any
}

// Error returns a string representation of the error.
func (e UnsupportedValueError) Error() string {
	return fmt.Sprintf("cannot spill value of type %T", e.Value)
}

// Is returns true if the target error is an UnsupportedValueError.
func (e UnsupportedValueError) Is(target error) bool {
	_, ok := target.(UnsupportedValueError)
	return ok
}
