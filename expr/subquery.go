package expr

import (
	"context"
	"fmt"

	"github.com/fedquery/fq/batch"
)

/*
InSubquery tests a column for membership in the first column of a named
subquery. The subquery is rescanned from row 1 for each evaluation, so it must
be replayable (a batch iterator with an eager buffer). If the subquery is not
ready the predicate defers; the row is retried later and the scan restarts,
reading already-produced rows from the subquery's buffer.
*/

////////////////////////////////////////////////////////////////////////////////

// InSubquery tests a column for membership in a subquery's results.
type InSubquery struct {
	Column string
	Name   string
	Negate bool
}

// Bind implements Criteria.
func (in InSubquery) Bind(scope Scope) (Predicate, error) {
	idx, err := scope.column(in.Column)
	if err != nil {
		return nil, err
	}
	sq, err := scope.subquery(in.Name)
	if err != nil {
		return nil, err
	}
	return &inSubqueryPredicate{InSubquery: in, idx: idx, source: sq}, nil
}

// String implements Criteria.
func (in InSubquery) String() string {
	neg := ""
	if in.Negate {
		neg = "not "
	}
	return fmt.Sprintf("%s %sin $%s", in.Column, neg, in.Name)
}

type inSubqueryPredicate struct {
	InSubquery
	idx    int
	source Subquery
}

func (p *inSubqueryPredicate) Evaluate(ctx context.Context, row batch.Row) (Verdict, error) {
	v, err := p.scan(ctx, row[p.idx])
	if err != nil {
		return Reject, fmt.Errorf("failed to evaluate %s: %w", p, err)
	}
	if p.Negate {
		return not(v), nil
	}
	return v, nil
}

func (p *inSubqueryPredicate) scan(ctx context.Context, v any) (Verdict, error) {
	if err := p.source.SetPosition(1); err != nil {
		return Reject, err
	}
	out := Reject
	for {
		tuple, status, err := p.source.NextTuple(ctx)
		if err != nil {
			return Reject, err
		}
		switch status {
		case batch.StatusBlocked:
			return Defer, nil
		case batch.StatusExhausted:
			return out, nil
		}
		if v == nil {
			return Unknown, nil
		}
		if len(tuple) == 0 || tuple[0] == nil {
			out = Unknown
			continue
		}
		c, err := compare(v, tuple[0])
		if err != nil {
			return Reject, err
		}
		if c == 0 {
			return Accept, nil
		}
	}
}
