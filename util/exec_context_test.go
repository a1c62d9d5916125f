package util_test

import (
	"context"
	"testing"

	"github.com/fedquery/fq/util"
	"github.com/stretchr/testify/require"
)

func TestWithContext(t *testing.T) {
	ctx := context.Background()
	t.Run("inc context value", func(t *testing.T) {
		ctx := util.WithContext(ctx, "test")
		util.IncContextValue(ctx, "test", 1)
		util.IncContextValue(ctx, "test", 1)
		report, err := util.ReportFromContext(ctx)
		require.NoError(t, err)
		require.JSONEq(t,
			`{"name":"test","values":{"test":2},"data":{},"children":null}`,
			string(report),
		)
	})

	t.Run("set value", func(t *testing.T) {
		ctx := util.WithContext(ctx, "test")
		util.SetContextValue(ctx, "test", 10)
		require.Equal(t, float64(10), util.FromContext(ctx).Value("test"))
	})

	t.Run("set data", func(t *testing.T) {
		ctx := util.WithContext(ctx, "test")
		util.SetContextData(ctx, "test", "data")
		report, err := util.ReportFromContext(ctx)
		require.NoError(t, err)
		require.JSONEq(t,
			`{"name":"test","values":{},"data":{"test":"data"},"children":null}`,
			string(report),
		)
	})

	t.Run("with child context", func(t *testing.T) {
		pctx := util.WithContext(ctx, "test")
		ctx, _ := util.WithChildContext(pctx, "child")
		util.IncContextValue(ctx, "rows", 3)
		report, err := util.ReportFromContext(pctx)
		require.NoError(t, err)
		require.JSONEq(t,
			`{"name":"test","values":{},"data":{},"children":[{"name":"child","values":{"rows":3},"data":{},"children":null}]}`,
			string(report),
		)
	})

	t.Run("recording without a context is harmless", func(t *testing.T) {
		util.IncContextValue(ctx, "ignored", 1)
		require.Equal(t, float64(0), util.FromContext(ctx).Value("ignored"))
	})
}
