package executor_test

import (
	"context"
	"errors"
	"testing"

	"github.com/fedquery/fq/batch"
	"github.com/fedquery/fq/buffer"
	"github.com/fedquery/fq/executor"
	"github.com/fedquery/fq/expr"
	"github.com/fedquery/fq/ql"
	"github.com/stretchr/testify/require"
)

var names = batch.Schema{batch.NewElement("name", batch.String)} // nolint:gochecknoglobals

func TestSelectNode(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		assertion string
		criteria  string
		elements  batch.Schema
		batches   []*batch.Batch
		expected  []batch.Row
	}{
		{
			"matches rows across batches",
			"id = 2 or id = 4",
			names,
			[]*batch.Batch{
				batch.New(1, rowRange(1, 3), false),
				batch.New(4, rowRange(4, 5), true),
			},
			[]batch.Row{{"r2"}, {"r4"}},
		},
		{
			"all columns by default",
			"id > 3",
			nil,
			chunked(5, 2),
			rowRange(4, 5),
		},
		{
			"projection reorders columns",
			"id = 1",
			batch.Schema{elements[1], elements[0]},
			chunked(3, 3),
			[]batch.Row{{"r1", int64(1)}},
		},
		{
			"nothing matches",
			"name = \"zz\"",
			nil,
			chunked(7, 3),
			[]batch.Row{},
		},
		{
			"empty child",
			"id = 1",
			nil,
			[]*batch.Batch{batch.Empty(1, true)},
			[]batch.Row{},
		},
		{
			"null handling",
			"name is not null and id != 2",
			nil,
			[]*batch.Batch{batch.New(1, []batch.Row{{int64(1), nil}, row(2), row(3)}, true)},
			[]batch.Row{row(3)},
		},
	}
	for _, c := range cases {
		t.Run(c.assertion, func(t *testing.T) {
			mock := executor.NewMockNode(elements, c.batches...)
			node := executor.NewSelectNode(1, ql.MustParse(c.criteria), c.elements, mock)
			batches := drain(ctx, t, node)
			require.Equal(t, c.expected, collect(batches))
			require.True(t, batches[len(batches)-1].Terminal())
		})
	}
}

func TestSelectNodeBatchSize(t *testing.T) {
	ctx := context.Background()
	mock := executor.NewMockNode(elements, chunked(10, 10)...)
	node := executor.NewSelectNode(1, expr.True{}, nil, mock, executor.WithBatchSize(4))
	batches := drain(ctx, t, node)
	require.Len(t, batches, 3)
	require.Equal(t, []int{4, 4, 2}, []int{batches[0].Len(), batches[1].Len(), batches[2].Len()})
	require.Equal(t, rowRange(1, 10), collect(batches))
}

// deferOnce defers the first evaluation of row id and otherwise matches even
// ids. It counts evaluations per id.
func deferOnce(id int64, evaluations map[int64]int) expr.Criteria {
	deferred := false
	return expr.PredicateFunc{Name: "even", Func: func(_ context.Context, row batch.Row) (expr.Verdict, error) {
		v := row[0].(int64)
		evaluations[v]++
		if v == id && !deferred {
			deferred = true
			return expr.Defer, nil
		}
		if v%2 == 0 {
			return expr.Accept, nil
		}
		return expr.Reject, nil
	}}
}

func TestSelectNodeResumesAtBlockedRow(t *testing.T) {
	ctx := context.Background()
	evaluations := map[int64]int{}
	mock := executor.NewMockNode(elements, batch.New(1, rowRange(1, 5), true))
	node := executor.NewSelectNode(1, deferOnce(3, evaluations), names, mock)

	res, err := node.NextBatch(ctx)
	require.NoError(t, err)
	require.True(t, res.Blocked())
	blockedRow, ok := node.Blocked()
	require.True(t, ok)
	require.Equal(t, 3, blockedRow)
	require.Equal(t, map[int64]int{1: 1, 2: 1, 3: 1}, evaluations)

	res, err = node.NextBatch(ctx)
	require.NoError(t, err)
	require.False(t, res.Blocked())
	b := res.Batch()
	require.True(t, b.Terminal())
	require.Equal(t, 1, b.BeginRow())
	require.Equal(t, []batch.Row{{"r2"}, {"r4"}}, b.Rows())

	// row 3 was evaluated again, rows 1 and 2 were not, and the child was
	// not pulled again.
	require.Equal(t, map[int64]int{1: 1, 2: 1, 3: 2, 4: 1, 5: 1}, evaluations)
	require.Equal(t, 1, mock.Calls())
	_, ok = node.Blocked()
	require.False(t, ok)
}

func TestSelectNodeNoDuplicatesAcrossBatches(t *testing.T) {
	ctx := context.Background()
	evaluations := map[int64]int{}
	mock := executor.NewMockNode(elements, chunked(9, 3)...)
	node := executor.NewSelectNode(1, deferOnce(5, evaluations), nil, mock, executor.WithBatchSize(2))
	batches := drain(ctx, t, node)
	require.Equal(t, []batch.Row{row(2), row(4), row(6), row(8)}, collect(batches))
	require.Equal(t, 3, mock.Calls())
	require.Equal(t, 2, evaluations[5])
	require.Equal(t, 1, evaluations[4])
}

func TestSelectNodeErrors(t *testing.T) {
	ctx := context.Background()
	t.Run("non-contiguous child", func(t *testing.T) {
		mock := executor.NewMockNode(elements,
			batch.New(1, rowRange(1, 3), false),
			batch.New(5, rowRange(5, 6), true),
		)
		node := executor.NewSelectNode(1, expr.True{}, nil, mock)
		_, err := node.NextBatch(ctx)
		require.NoError(t, err)
		_, err = node.NextBatch(ctx)
		require.ErrorIs(t, err, executor.OutOfSequenceError{})
		require.True(t, mock.Closed())
	})
	t.Run("evaluation failure carries the row", func(t *testing.T) {
		mock := executor.NewMockNode(elements, chunked(3, 3)...)
		node := executor.NewSelectNode(7, ql.MustParse("name > 1"), nil, mock)
		_, err := node.NextBatch(ctx)
		require.ErrorIs(t, err, executor.ProcessingError{})
		require.ErrorIs(t, err, expr.TypeMismatchError{})
		var perr executor.ProcessingError
		require.True(t, errors.As(err, &perr))
		require.Equal(t, 7, perr.NodeID)
		require.Equal(t, 1, perr.Row)
		require.True(t, mock.Closed())
	})
	t.Run("unknown column", func(t *testing.T) {
		mock := executor.NewMockNode(elements, chunked(3, 3)...)
		node := executor.NewSelectNode(1, ql.MustParse("missing = 1"), nil, mock)
		_, err := node.NextBatch(ctx)
		require.ErrorIs(t, err, expr.UnknownColumnError{})
		require.Equal(t, 0, mock.Calls())
	})
	t.Run("unknown output element", func(t *testing.T) {
		mock := executor.NewMockNode(elements, chunked(3, 3)...)
		node := executor.NewSelectNode(1, expr.True{},
			batch.Schema{batch.NewElement("missing", batch.Int)}, mock)
		_, err := node.NextBatch(ctx)
		require.ErrorIs(t, err, expr.UnknownColumnError{})
	})
	t.Run("child failure", func(t *testing.T) {
		boom := errors.New("boom")
		mock := executor.NewMockNode(elements, chunked(6, 3)...).FailBefore(1, boom)
		node := executor.NewSelectNode(1, expr.True{}, nil, mock)
		_, err := node.NextBatch(ctx)
		require.NoError(t, err)
		_, err = node.NextBatch(ctx)
		require.ErrorIs(t, err, boom)
		require.True(t, mock.Closed())
	})
}

func TestSelectNodeReset(t *testing.T) {
	ctx := context.Background()
	evaluations := map[int64]int{}
	mock := executor.NewMockNode(elements, chunked(6, 4)...)
	node := executor.NewSelectNode(1, deferOnce(5, evaluations), nil, mock)

	// block part way through, then reset and run from the start.
	_, err := node.NextBatch(ctx)
	require.NoError(t, err)
	res, err := node.NextBatch(ctx)
	require.NoError(t, err)
	require.True(t, res.Blocked())

	node.Reset()
	_, ok := node.Blocked()
	require.False(t, ok)
	require.Equal(t, 1, mock.Resets())
	require.Equal(t, []batch.Row{row(2), row(4), row(6)}, collect(drain(ctx, t, node)))
}

func TestSelectNodeClone(t *testing.T) {
	ctx := context.Background()
	criteria := ql.MustParse("id >= 3")
	original := executor.NewSelectNode(1, criteria, names, executor.NewMockNode(elements, chunked(4, 2)...))
	first := collect(drain(ctx, t, original))

	mock := executor.NewMockNode(elements, chunked(4, 2)...)
	clone := original.Clone(mock)
	require.Equal(t, original.String(), clone.String())
	require.Equal(t, first, collect(drain(ctx, t, clone)))
	require.Equal(t, []batch.Row{{"r3"}, {"r4"}}, first)
	require.NoError(t, clone.Close(ctx))
	require.True(t, mock.Closed())
}

func TestSelectNodeSubquery(t *testing.T) {
	ctx := context.Background()
	buffers := buffer.NewManager()
	sub := executor.NewMockNode(names, batch.New(1, []batch.Row{{"r2"}, {"r4"}}, true)).BlockBefore(0, 1)
	it := executor.NewBatchIterator(sub)
	require.NoError(t, it.SetBuffer(buffers.Create(names), false))

	child := executor.NewMockNode(elements, chunked(5, 5)...)
	node := executor.NewSelectNode(1, ql.MustParse("name in $names"), names, child,
		executor.WithSubquery("names", it))

	res, err := node.NextBatch(ctx)
	require.NoError(t, err)
	require.True(t, res.Blocked())
	blockedRow, ok := node.Blocked()
	require.True(t, ok)
	require.Equal(t, 1, blockedRow)

	batches := drain(ctx, t, node)
	require.Equal(t, []batch.Row{{"r2"}, {"r4"}}, collect(batches))
	require.Equal(t, 2, sub.Calls())
	require.Equal(t, 1, child.Calls())

	require.Equal(t, 1, buffers.Len())
	require.NoError(t, node.Close(ctx))
	require.NoError(t, node.Close(ctx))
	require.Equal(t, 0, buffers.Len())
	require.True(t, sub.Closed())
	require.True(t, child.Closed())
}

func TestSelectNodeCloseWhileBlocked(t *testing.T) {
	ctx := context.Background()
	mock := executor.NewMockNode(elements, chunked(3, 3)...)
	node := executor.NewSelectNode(1, deferOnce(2, map[int64]int{}), nil, mock)
	res, err := node.NextBatch(ctx)
	require.NoError(t, err)
	require.True(t, res.Blocked())
	require.NoError(t, node.Close(ctx))
	_, ok := node.Blocked()
	require.False(t, ok)
	require.True(t, mock.Closed())
}

func TestSelectNodeString(t *testing.T) {
	node := executor.NewSelectNode(1, ql.MustParse("id = 1"), nil, executor.NewMockNode(elements))
	require.Equal(t, "[select id = 1 [mock]]", node.String())
}
