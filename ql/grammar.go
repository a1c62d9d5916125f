package ql

import (
	"fmt"
	"strconv"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
	"github.com/relvacode/iso8601"
)

/*
This file contains a participle grammar for row criteria, the language used to
express select-node predicates in plans and on the command line:

	id >= 10 and (name glob "sensors/**" or name is null)
	kind not in ("a", "b") and ts < timestamp "2024-01-01T00:00:00Z"
	id in $ids

"in $name" refers to a subquery bound at execution time.
*/

////////////////////////////////////////////////////////////////////////////////

var (
	Options = []participle.Option{ // nolint:gochecknoglobals
		participle.Lexer(
			lexer.MustSimple([]lexer.SimpleRule{
				{Name: "Variable", Pattern: `\$[a-zA-Z_][a-zA-Z0-9_]*`},
				{Name: "Word", Pattern: `[a-zA-Z_][a-zA-Z0-9_\.]*`},
				{Name: "QuotedString", Pattern: `"(?:\\.|[^"])*"`},
				{Name: "whitespace", Pattern: `\s+`},
				{Name: "Operators", Pattern: `,|[()]`},
				{Name: "BinaryOperator", Pattern: `!=|<>|<=|>=|=|<|>`},
				{Name: "Float", Pattern: `[-+]?\d*\.\d+([eE][-+]?\d+)?`},
				{Name: "Integer", Pattern: `[-+]?[0-9]+`},
			}),
		),
		participle.Unquote("QuotedString"),
		participle.Elide("whitespace"),
		participle.UseLookahead(2),
	}
)

// Expression is a disjunction of conjunctions.
type Expression struct {
	Or []*OrCondition `@@ ( "or" @@ )*`
}

// OrCondition is a conjunction of terms.
type OrCondition struct {
	And []*Condition `@@ ( "and" @@ )*`
}

// Condition is an optionally negated term.
type Condition struct {
	Not  bool `@"not"?`
	Term Term `@@`
}

// Term is a parenthesized subexpression or a predicate on a column.
type Term struct {
	Subexpression *Expression `  "(" @@ ")"`
	Predicate     *Predicate  `| @@`
}

// Predicate is a test applied to a column.
type Predicate struct {
	Column     string      `@Word`
	Comparison *Comparison `( @@`
	Null       *NullTest   `| @@`
	Membership *Membership `| @@ )`
}

// Comparison compares a column to a value.
type Comparison struct {
	Op    string `@BinaryOperator`
	Value Value  `@@`
}

// NullTest tests a column for null.
type NullTest struct {
	Is     bool `@"is"`
	Negate bool `@"not"? "null"`
}

// Membership is an in-list, subquery or glob test.
type Membership struct {
	Negate   bool     `@"not"?`
	List     []*Value `( "in" "(" @@ ( "," @@ )* ")"`
	Subquery *string  `| "in" @Variable`
	Glob     *string  `| "glob" @QuotedString )`
}

// Timestamp represents a timestamp literal.
type Timestamp struct {
	Nanoseconds *int64  `( @Integer`
	Datestring  *string `| @QuotedString )`
}

// Value represents a literal.
type Value struct {
	Timestamp *Timestamp `  "timestamp" @@`
	Text      *string    `| @QuotedString`
	Float     *float64   `| @Float`
	Integer   *int64     `| @Integer`
	Bool      *string    `| @("true" | "false")`
	Null      bool       `| @"null"`
}

// Value returns the Go value of the literal.
func (v Value) Value() (any, error) {
	switch {
	case v.Timestamp != nil:
		return v.Timestamp.Time()
	case v.Text != nil:
		return *v.Text, nil
	case v.Float != nil:
		return *v.Float, nil
	case v.Integer != nil:
		return *v.Integer, nil
	case v.Bool != nil:
		return *v.Bool == "true", nil
	case v.Null:
		return nil, nil
	default:
		return nil, fmt.Errorf("invalid value")
	}
}

// String returns the string representation of the value.
func (v Value) String() string {
	switch {
	case v.Timestamp != nil:
		if v.Timestamp.Nanoseconds != nil {
			return "timestamp " + strconv.FormatInt(*v.Timestamp.Nanoseconds, 10)
		}
		return "timestamp " + strconv.Quote(*v.Timestamp.Datestring)
	case v.Text != nil:
		return strconv.Quote(*v.Text)
	case v.Float != nil:
		return strconv.FormatFloat(*v.Float, 'g', -1, 64)
	case v.Integer != nil:
		return strconv.FormatInt(*v.Integer, 10)
	case v.Bool != nil:
		return *v.Bool
	default:
		return "null"
	}
}

// NewParser returns a new criteria parser.
func NewParser() *participle.Parser[Expression] {
	return participle.MustBuild[Expression](Options...)
}

func parseTimestamp(s string) (int64, error) {
	t, err := iso8601.Parse([]byte(s))
	if err != nil {
		return 0, fmt.Errorf("failed to parse timestamp: %w", err)
	}
	return t.UnixNano(), nil
}
