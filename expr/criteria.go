package expr

import (
	"context"
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fedquery/fq/batch"
)

////////////////////////////////////////////////////////////////////////////////

// Op is a comparison operator.
type Op string

const (
	OpEq Op = "="
	OpNe Op = "!="
	OpLt Op = "<"
	OpLe Op = "<="
	OpGt Op = ">"
	OpGe Op = ">="
)

// ParseOp parses a comparison operator.
func ParseOp(s string) (Op, error) {
	switch op := Op(s); op {
	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe:
		return op, nil
	case "<>":
		return OpNe, nil
	default:
		return "", fmt.Errorf("unrecognized operator %q", s)
	}
}

func (op Op) apply(c int) bool {
	switch op {
	case OpEq:
		return c == 0
	case OpNe:
		return c != 0
	case OpLt:
		return c < 0
	case OpLe:
		return c <= 0
	case OpGt:
		return c > 0
	case OpGe:
		return c >= 0
	default:
		return false
	}
}

////////////////////////////////////////////////////////////////////////////////

// Compare compares a column to a literal.
type Compare struct {
	Column string
	Op     Op
	Value  any
}

// Bind implements Criteria.
func (c Compare) Bind(scope Scope) (Predicate, error) {
	idx, err := scope.column(c.Column)
	if err != nil {
		return nil, err
	}
	return &comparePredicate{Compare: c, idx: idx}, nil
}

// String implements Criteria.
func (c Compare) String() string {
	return fmt.Sprintf("%s %s %s", c.Column, c.Op, formatValue(c.Value))
}

type comparePredicate struct {
	Compare
	idx int
}

func (p *comparePredicate) Evaluate(_ context.Context, row batch.Row) (Verdict, error) {
	v := row[p.idx]
	if v == nil || p.Value == nil {
		return Unknown, nil
	}
	c, err := compare(v, p.Value)
	if err != nil {
		return Reject, fmt.Errorf("failed to evaluate %s: %w", p, err)
	}
	return truth(p.Op.apply(c)), nil
}

////////////////////////////////////////////////////////////////////////////////

// And is satisfied when every term is.
type And []Criteria

// Bind implements Criteria.
func (a And) Bind(scope Scope) (Predicate, error) {
	terms, err := bindAll(scope, a)
	if err != nil {
		return nil, err
	}
	return &andPredicate{terms: terms, text: a.String()}, nil
}

// String implements Criteria.
func (a And) String() string {
	return join(a, " and ")
}

type andPredicate struct {
	terms []Predicate
	text  string
}

func (p *andPredicate) Evaluate(ctx context.Context, row batch.Row) (Verdict, error) {
	out := Accept
	for _, term := range p.terms {
		v, err := term.Evaluate(ctx, row)
		if err != nil {
			return Reject, err
		}
		switch v {
		case Defer, Reject:
			return v, nil
		case Unknown:
			out = Unknown
		}
	}
	return out, nil
}

func (p *andPredicate) String() string { return p.text }

// Or is satisfied when any term is.
type Or []Criteria

// Bind implements Criteria.
func (o Or) Bind(scope Scope) (Predicate, error) {
	terms, err := bindAll(scope, o)
	if err != nil {
		return nil, err
	}
	return &orPredicate{terms: terms, text: o.String()}, nil
}

// String implements Criteria.
func (o Or) String() string {
	return join(o, " or ")
}

type orPredicate struct {
	terms []Predicate
	text  string
}

func (p *orPredicate) Evaluate(ctx context.Context, row batch.Row) (Verdict, error) {
	out := Reject
	for _, term := range p.terms {
		v, err := term.Evaluate(ctx, row)
		if err != nil {
			return Reject, err
		}
		switch v {
		case Defer, Accept:
			return v, nil
		case Unknown:
			out = Unknown
		}
	}
	return out, nil
}

func (p *orPredicate) String() string { return p.text }

// Not negates its term. The negation of Unknown is Unknown.
type Not struct {
	Term Criteria
}

// Bind implements Criteria.
func (n Not) Bind(scope Scope) (Predicate, error) {
	term, err := n.Term.Bind(scope)
	if err != nil {
		return nil, err
	}
	return &notPredicate{term: term, text: n.String()}, nil
}

// String implements Criteria.
func (n Not) String() string {
	return "not (" + n.Term.String() + ")"
}

type notPredicate struct {
	term Predicate
	text string
}

func (p *notPredicate) Evaluate(ctx context.Context, row batch.Row) (Verdict, error) {
	v, err := p.term.Evaluate(ctx, row)
	if err != nil {
		return Reject, err
	}
	return not(v), nil
}

func (p *notPredicate) String() string { return p.text }

////////////////////////////////////////////////////////////////////////////////

// IsNull tests a column for null.
type IsNull struct {
	Column string
	Negate bool
}

// Bind implements Criteria.
func (n IsNull) Bind(scope Scope) (Predicate, error) {
	idx, err := scope.column(n.Column)
	if err != nil {
		return nil, err
	}
	return &isNullPredicate{IsNull: n, idx: idx}, nil
}

// String implements Criteria.
func (n IsNull) String() string {
	if n.Negate {
		return n.Column + " is not null"
	}
	return n.Column + " is null"
}

type isNullPredicate struct {
	IsNull
	idx int
}

func (p *isNullPredicate) Evaluate(_ context.Context, row batch.Row) (Verdict, error) {
	return truth((row[p.idx] == nil) != p.Negate), nil
}

// In tests a column for membership in a literal list.
type In struct {
	Column string
	Values []any
	Negate bool
}

// Bind implements Criteria.
func (in In) Bind(scope Scope) (Predicate, error) {
	idx, err := scope.column(in.Column)
	if err != nil {
		return nil, err
	}
	return &inPredicate{In: in, idx: idx}, nil
}

// String implements Criteria.
func (in In) String() string {
	values := make([]string, len(in.Values))
	for i, v := range in.Values {
		values[i] = formatValue(v)
	}
	neg := ""
	if in.Negate {
		neg = "not "
	}
	return fmt.Sprintf("%s %sin (%s)", in.Column, neg, strings.Join(values, ", "))
}

type inPredicate struct {
	In
	idx int
}

func (p *inPredicate) Evaluate(_ context.Context, row batch.Row) (Verdict, error) {
	v, err := member(row[p.idx], p.Values)
	if err != nil {
		return Reject, fmt.Errorf("failed to evaluate %s: %w", p, err)
	}
	if p.Negate {
		return not(v), nil
	}
	return v, nil
}

// member implements SQL "in" semantics over a list of values.
func member(v any, values []any) (Verdict, error) {
	if v == nil {
		return Unknown, nil
	}
	out := Reject
	for _, candidate := range values {
		if candidate == nil {
			out = Unknown
			continue
		}
		c, err := compare(v, candidate)
		if err != nil {
			return Reject, err
		}
		if c == 0 {
			return Accept, nil
		}
	}
	return out, nil
}

// Glob matches a string column against a doublestar pattern.
type Glob struct {
	Column  string
	Pattern string
	Negate  bool
}

// Bind implements Criteria.
func (g Glob) Bind(scope Scope) (Predicate, error) {
	idx, err := scope.column(g.Column)
	if err != nil {
		return nil, err
	}
	if !doublestar.ValidatePattern(g.Pattern) {
		return nil, fmt.Errorf("invalid glob pattern %q", g.Pattern)
	}
	return &globPredicate{Glob: g, idx: idx}, nil
}

// String implements Criteria.
func (g Glob) String() string {
	neg := ""
	if g.Negate {
		neg = "not "
	}
	return fmt.Sprintf("%s %sglob %s", g.Column, neg, formatValue(g.Pattern))
}

type globPredicate struct {
	Glob
	idx int
}

func (p *globPredicate) Evaluate(_ context.Context, row batch.Row) (Verdict, error) {
	v := row[p.idx]
	if v == nil {
		return Unknown, nil
	}
	s, ok := v.(string)
	if !ok {
		return Reject, fmt.Errorf("failed to evaluate %s: %w", p, TypeMismatchError{Left: v, Right: p.Pattern})
	}
	matched, err := doublestar.Match(p.Pattern, s)
	if err != nil {
		return Reject, fmt.Errorf("failed to evaluate %s: %w", p, err)
	}
	if p.Negate {
		return truth(!matched), nil
	}
	return truth(matched), nil
}

////////////////////////////////////////////////////////////////////////////////

// PredicateFunc adapts a function to a Criteria that binds to itself. It is
// used to inject computed predicates into a plan.
type PredicateFunc struct {
	Name string
	Func func(ctx context.Context, row batch.Row) (Verdict, error)
}

// Bind implements Criteria.
func (f PredicateFunc) Bind(Scope) (Predicate, error) {
	return f, nil
}

// Evaluate implements Predicate.
func (f PredicateFunc) Evaluate(ctx context.Context, row batch.Row) (Verdict, error) {
	return f.Func(ctx, row)
}

// String implements Criteria.
func (f PredicateFunc) String() string {
	return f.Name + "()"
}

// True is satisfied by every row.
type True struct{}

// Bind implements Criteria.
func (True) Bind(Scope) (Predicate, error) {
	return True{}, nil
}

// Evaluate implements Predicate.
func (True) Evaluate(context.Context, batch.Row) (Verdict, error) {
	return Accept, nil
}

// String implements Criteria.
func (True) String() string {
	return "true"
}

func bindAll(scope Scope, terms []Criteria) ([]Predicate, error) {
	out := make([]Predicate, len(terms))
	for i, term := range terms {
		p, err := term.Bind(scope)
		if err != nil {
			return nil, err
		}
		out[i] = p
	}
	return out, nil
}

func join(terms []Criteria, sep string) string {
	parts := make([]string, len(terms))
	for i, term := range terms {
		parts[i] = term.String()
	}
	return "(" + strings.Join(parts, sep) + ")"
}
