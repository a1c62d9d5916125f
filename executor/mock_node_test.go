package executor_test

import (
	"context"
	"errors"
	"testing"

	"github.com/fedquery/fq/batch"
	"github.com/fedquery/fq/executor"
	"github.com/stretchr/testify/require"
)

func TestMockNode(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	mock := executor.NewMockNode(elements, chunked(4, 2)...).BlockBefore(0, 1).FailBefore(2, boom)

	res, err := mock.NextBatch(ctx)
	require.NoError(t, err)
	require.True(t, res.Blocked())

	require.Equal(t, rowRange(1, 4), collect(drain(ctx, t, mock)))
	_, err = mock.NextBatch(ctx)
	require.ErrorIs(t, err, boom)

	mock.Reset()
	require.Equal(t, rowRange(1, 4), collect(drain(ctx, t, mock)))
	require.Equal(t, 1, mock.Resets())
}

func TestMockNodeAppendsTerminalBatch(t *testing.T) {
	ctx := context.Background()
	mock := executor.NewMockNode(elements, batch.New(1, rowRange(1, 2), false))
	batches := drain(ctx, t, mock)
	require.Len(t, batches, 2)
	require.Equal(t, 3, batches[1].BeginRow())
	require.True(t, batches[1].Terminal())
}
