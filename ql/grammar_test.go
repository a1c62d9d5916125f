package ql_test

import (
	"testing"
	"time"

	"github.com/alecthomas/participle/v2"
	"github.com/fedquery/fq/expr"
	"github.com/fedquery/fq/ql"
	"github.com/stretchr/testify/require"
)

func TestValue(t *testing.T) {
	parser, err := participle.Build[ql.Value](ql.Options...)
	require.NoError(t, err)
	cases := []struct {
		assertion string
		input     string
		expected  any
	}{
		{"integer", "10", int64(10)},
		{"negative integer", "-3", int64(-3)},
		{"float", "10.5", 10.5},
		{"scientific notation", "1.0e6", 1e6},
		{"string", `"a"`, "a"},
		{"escaped string", `"a\"b"`, `a"b`},
		{"true", "true", true},
		{"false", "false", false},
		{"null", "null", nil},
		{"timestamp string", `timestamp "2024-01-02T03:04:05Z"`, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)},
		{"timestamp nanos", "timestamp 1000", time.Unix(0, 1000).UTC()},
	}
	for _, c := range cases {
		t.Run(c.assertion, func(t *testing.T) {
			ast, err := parser.ParseString("", c.input)
			require.NoError(t, err)
			value, err := ast.Value()
			require.NoError(t, err)
			require.Equal(t, c.expected, value)
		})
	}
}

func TestParse(t *testing.T) {
	cases := []struct {
		assertion string
		input     string
		expected  expr.Criteria
	}{
		{
			"single comparison",
			"a = 10",
			expr.Compare{Column: "a", Op: expr.OpEq, Value: int64(10)},
		},
		{
			"dotted column",
			"t.a >= 1.5",
			expr.Compare{Column: "t.a", Op: expr.OpGe, Value: 1.5},
		},
		{
			"not equals spelled two ways",
			"a != 1 or a <> 2",
			expr.Or{
				expr.Compare{Column: "a", Op: expr.OpNe, Value: int64(1)},
				expr.Compare{Column: "a", Op: expr.OpNe, Value: int64(2)},
			},
		},
		{
			"and binds tighter than or",
			"a = 1 or b = 2 and c = 3",
			expr.Or{
				expr.Compare{Column: "a", Op: expr.OpEq, Value: int64(1)},
				expr.And{
					expr.Compare{Column: "b", Op: expr.OpEq, Value: int64(2)},
					expr.Compare{Column: "c", Op: expr.OpEq, Value: int64(3)},
				},
			},
		},
		{
			"parentheses",
			"(a = 1 or b = 2) and c = 3",
			expr.And{
				expr.Or{
					expr.Compare{Column: "a", Op: expr.OpEq, Value: int64(1)},
					expr.Compare{Column: "b", Op: expr.OpEq, Value: int64(2)},
				},
				expr.Compare{Column: "c", Op: expr.OpEq, Value: int64(3)},
			},
		},
		{
			"not",
			"not (a < 3)",
			expr.Not{Term: expr.Compare{Column: "a", Op: expr.OpLt, Value: int64(3)}},
		},
		{"is null", "a is null", expr.IsNull{Column: "a"}},
		{"is not null", "a is not null", expr.IsNull{Column: "a", Negate: true}},
		{
			"in list",
			`a in (1, "x", null)`,
			expr.In{Column: "a", Values: []any{int64(1), "x", nil}},
		},
		{
			"not in list",
			"a not in (1)",
			expr.In{Column: "a", Values: []any{int64(1)}, Negate: true},
		},
		{"glob", `a glob "x/**"`, expr.Glob{Column: "a", Pattern: "x/**"}},
		{"not glob", `a not glob "x/*"`, expr.Glob{Column: "a", Pattern: "x/*", Negate: true}},
		{"subquery", "a in $ids", expr.InSubquery{Column: "a", Name: "ids"}},
		{"not in subquery", "a not in $ids", expr.InSubquery{Column: "a", Name: "ids", Negate: true}},
		{
			"bool and timestamp",
			`ok = true and ts > timestamp "2024-01-01T00:00:00Z"`,
			expr.And{
				expr.Compare{Column: "ok", Op: expr.OpEq, Value: true},
				expr.Compare{Column: "ts", Op: expr.OpGt, Value: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
			},
		},
	}
	for _, c := range cases {
		t.Run(c.assertion, func(t *testing.T) {
			criteria, err := ql.Parse(c.input)
			require.NoError(t, err)
			require.Equal(t, c.expected, criteria)
		})
	}
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		assertion string
		input     string
	}{
		{"empty", ""},
		{"missing value", "a ="},
		{"dangling and", "a = 1 and"},
		{"unclosed paren", "(a = 1"},
		{"bad timestamp", `a = timestamp "yesterday"`},
		{"unquoted glob", "a glob x"},
	}
	for _, c := range cases {
		t.Run(c.assertion, func(t *testing.T) {
			_, err := ql.Parse(c.input)
			require.Error(t, err)
		})
	}
}

func TestRoundTrip(t *testing.T) {
	inputs := []string{
		"a = 10",
		`(a = 1 or (b > 2.5 and c is not null))`,
		`not (name glob "x/*")`,
		`id not in (1, 2, null)`,
		`ts <= timestamp "2024-01-01T00:00:00Z"`,
		"id in $ids",
	}
	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			first := ql.MustParse(input)
			second, err := ql.Parse(first.String())
			require.NoError(t, err)
			require.Equal(t, first, second)
		})
	}
}
