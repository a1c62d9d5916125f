package expr

import (
	"context"
	"fmt"
	"strings"

	"github.com/fedquery/fq/batch"
)

/*
Package expr implements row criteria. A Criteria is an unbound tree that refers
to columns by name. Binding it against a scope resolves every column to a
position once, producing a Predicate that can be evaluated per row without name
lookups.

Evaluation follows SQL three-valued logic. A comparison involving null yields
Unknown, which is treated as "not selected" by consumers but propagates through
not/and/or as SQL does. A predicate may also return Defer, meaning it cannot
decide yet because something it depends on (a buffered subquery) is not ready.
Defer is not an error: the caller must retry the same row later.
*/

////////////////////////////////////////////////////////////////////////////////

// Verdict is the outcome of evaluating a predicate against a row.
type Verdict uint8

const (
	// Reject means the row does not satisfy the predicate.
	Reject Verdict = iota
	// Accept means the row satisfies the predicate.
	Accept
	// Unknown means the outcome involves a null.
	Unknown
	// Defer means the predicate could not be evaluated yet.
	Defer
)

// String returns a string representation of the verdict.
func (v Verdict) String() string {
	switch v {
	case Reject:
		return "reject"
	case Accept:
		return "accept"
	case Unknown:
		return "unknown"
	case Defer:
		return "defer"
	default:
		return fmt.Sprintf("verdict(%d)", uint8(v))
	}
}

// Predicate is a bound criteria.
type Predicate interface {
	Evaluate(ctx context.Context, row batch.Row) (Verdict, error)
	String() string
}

// Criteria is an unbound criteria tree.
type Criteria interface {
	Bind(scope Scope) (Predicate, error)
	String() string
}

// Subquery is a replayable source of rows, such as a buffered batch
// iterator. NextTuple reports StatusBlocked when the next row is not ready and
// StatusExhausted when there are no more rows.
type Subquery interface {
	SetPosition(n int) error
	NextTuple(ctx context.Context) (batch.Row, batch.Status, error)
}

// Scope supplies the names a criteria may refer to.
type Scope struct {
	// Columns maps lower-cased column names to row positions.
	Columns map[string]int

	// Subqueries maps subquery names, without the leading "$", to sources.
	Subqueries map[string]Subquery
}

// NewScope returns a scope over the columns of a schema.
func NewScope(schema batch.Schema) Scope {
	return Scope{Columns: schema.Lookup()}
}

// WithSubqueries returns a copy of the scope with the given subqueries.
func (s Scope) WithSubqueries(subqueries map[string]Subquery) Scope {
	s.Subqueries = subqueries
	return s
}

func (s Scope) column(name string) (int, error) {
	idx, ok := s.Columns[strings.ToLower(name)]
	if !ok {
		return 0, UnknownColumnError{Name: name, Available: s.Columns}
	}
	return idx, nil
}

func (s Scope) subquery(name string) (Subquery, error) {
	sq, ok := s.Subqueries[name]
	if !ok {
		return nil, UnknownSubqueryError{Name: name}
	}
	return sq, nil
}

// Selected reports whether a verdict selects the row.
func Selected(v Verdict) bool {
	return v == Accept
}
