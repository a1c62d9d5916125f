package ql

import (
	"fmt"
	"time"

	"github.com/fedquery/fq/expr"
)

/*
Compilation turns a parsed expression into an unbound expr.Criteria.
Single-element conjunctions and disjunctions are collapsed, so "a = 1" compiles
to a bare comparison rather than a one-term or of a one-term and.
*/

////////////////////////////////////////////////////////////////////////////////

// Time returns the timestamp as a UTC time.
func (t Timestamp) Time() (time.Time, error) {
	if t.Nanoseconds != nil {
		return time.Unix(0, *t.Nanoseconds).UTC(), nil
	}
	nanos, err := parseTimestamp(*t.Datestring)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(0, nanos).UTC(), nil
}

// Parse parses and compiles criteria text.
func Parse(text string) (expr.Criteria, error) {
	ast, err := NewParser().ParseString("", text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse criteria: %w", err)
	}
	return Compile(ast)
}

// MustParse is like Parse but panics on error.
func MustParse(text string) expr.Criteria {
	c, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return c
}

// Compile compiles a parsed expression.
func Compile(e *Expression) (expr.Criteria, error) {
	terms := make(expr.Or, 0, len(e.Or))
	for _, or := range e.Or {
		term, err := compileConjunction(or)
		if err != nil {
			return nil, err
		}
		terms = append(terms, term)
	}
	if len(terms) == 1 {
		return terms[0], nil
	}
	return terms, nil
}

func compileConjunction(c *OrCondition) (expr.Criteria, error) {
	terms := make(expr.And, 0, len(c.And))
	for _, cond := range c.And {
		term, err := compileCondition(cond)
		if err != nil {
			return nil, err
		}
		terms = append(terms, term)
	}
	if len(terms) == 1 {
		return terms[0], nil
	}
	return terms, nil
}

func compileCondition(c *Condition) (expr.Criteria, error) {
	var term expr.Criteria
	var err error
	if c.Term.Subexpression != nil {
		term, err = Compile(c.Term.Subexpression)
	} else {
		term, err = compilePredicate(c.Term.Predicate)
	}
	if err != nil {
		return nil, err
	}
	if c.Not {
		return expr.Not{Term: term}, nil
	}
	return term, nil
}

func compilePredicate(p *Predicate) (expr.Criteria, error) {
	switch {
	case p.Comparison != nil:
		op, err := expr.ParseOp(p.Comparison.Op)
		if err != nil {
			return nil, err
		}
		value, err := p.Comparison.Value.Value()
		if err != nil {
			return nil, err
		}
		return expr.Compare{Column: p.Column, Op: op, Value: value}, nil
	case p.Null != nil:
		return expr.IsNull{Column: p.Column, Negate: p.Null.Negate}, nil
	case p.Membership != nil:
		m := p.Membership
		switch {
		case m.Subquery != nil:
			return expr.InSubquery{Column: p.Column, Name: (*m.Subquery)[1:], Negate: m.Negate}, nil
		case m.Glob != nil:
			return expr.Glob{Column: p.Column, Pattern: *m.Glob, Negate: m.Negate}, nil
		default:
			values := make([]any, len(m.List))
			for i, v := range m.List {
				value, err := v.Value()
				if err != nil {
					return nil, err
				}
				values[i] = value
			}
			return expr.In{Column: p.Column, Values: values, Negate: m.Negate}, nil
		}
	default:
		return nil, fmt.Errorf("invalid predicate on %s", p.Column)
	}
}
