package expr

import (
	"fmt"
	"strings"

	"github.com/fedquery/fq/util"
)

// UnknownColumnError is returned when a criteria refers to a column that is
// not in scope.
type UnknownColumnError struct {
	Name      string
	Available map[string]int
}

// Error returns a string representation of the error.
func (e UnknownColumnError) Error() string {
	sb := &strings.Builder{}
	sb.WriteString(fmt.Sprintf("column %s not found", e.Name))
	if len(e.Available) > 0 {
		sb.WriteString(". Available columns: ")
		sb.WriteString(strings.Join(util.Okeys(e.Available), ", "))
	}
	return sb.String()
}

// Is returns true if the target error is an UnknownColumnError.
func (e UnknownColumnError) Is(target error) bool {
	_, ok := target.(UnknownColumnError)
	return ok
}

// UnknownSubqueryError is returned when a criteria refers to a subquery that
// is not in scope.
type UnknownSubqueryError struct {
	Name string
}

// Error returns a string representation of the error.
func (e UnknownSubqueryError) Error() string {
	return fmt.Sprintf("subquery $%s not found", e.Name)
}

// Is returns true if the target error is an UnknownSubqueryError.
func (e UnknownSubqueryError) Is(target error) bool {
	_, ok := target.(UnknownSubqueryError)
	return ok
}

// TypeMismatchError is returned when two values of incomparable types are
// compared.
type TypeMismatchError struct {
	Left  any
	Right any
}

// Error returns a string representation of the error.
func (e TypeMismatchError) Error() string {
	return fmt.Sprintf("cannot compare %T to %T", e.Left, e.Right)
}

// Is returns true if the target error is a TypeMismatchError.
func (e TypeMismatchError) Is(target error) bool {
	_, ok := target.(TypeMismatchError)
	return ok
}
