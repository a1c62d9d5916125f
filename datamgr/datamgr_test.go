package datamgr_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/fedquery/fq/batch"
	"github.com/fedquery/fq/datamgr"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestCommandCanonical(t *testing.T) {
	a := datamgr.NewCommand("select  a,\n\tb from   t", nil)
	b := datamgr.NewCommand(" select a, b from t ", nil)
	c := datamgr.NewCommand("select a, b from u", nil)
	require.Equal(t, "select a, b from t", a.Canonical())
	require.Equal(t, a.Fingerprint(), b.Fingerprint())
	require.NotEqual(t, a.Fingerprint(), c.Fingerprint())
}

func drain(t *testing.T, src datamgr.TupleSource) []*batch.Batch {
	t.Helper()
	ctx := context.Background()
	var out []*batch.Batch
	for i := 0; i < 100; i++ {
		res, err := src.NextBatch(ctx)
		require.NoError(t, err)
		if res.Blocked() {
			continue
		}
		out = append(out, res.Batch())
		if res.Batch().Terminal() {
			return out
		}
	}
	t.Fatal("source did not terminate")
	return nil
}

func intRows(n int) []batch.Row {
	rows := make([]batch.Row, n)
	for i := range rows {
		rows[i] = batch.Row{int64(i + 1)}
	}
	return rows
}

func TestRowSource(t *testing.T) {
	cases := []struct {
		assertion string
		rows      int
		batchSize int
		expected  []string
	}{
		{"uneven", 5, 2, []string{"[batch 1-2]", "[batch 3-4]", "[batch 5-5 terminal]"}},
		{"even", 4, 2, []string{"[batch 1-2]", "[batch 3-4 terminal]"}},
		{"single batch", 3, 10, []string{"[batch 1-3 terminal]"}},
		{"empty", 0, 10, []string{"[batch 1-0 terminal]"}},
	}
	for _, c := range cases {
		t.Run(c.assertion, func(t *testing.T) {
			src := datamgr.NewRowSource(intRows(c.rows), datamgr.WithBatchSize(c.batchSize))
			batches := drain(t, src)
			actual := make([]string, len(batches))
			for i, b := range batches {
				actual[i] = b.String()
			}
			require.Equal(t, c.expected, actual)
		})
	}
}

func TestRowSourceBlocking(t *testing.T) {
	ctx := context.Background()
	src := datamgr.NewRowSource(intRows(4), datamgr.WithBatchSize(2), datamgr.WithBlockBefore(3, 2))
	res, err := src.NextBatch(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, res.Batch().BeginRow())
	for i := 0; i < 2; i++ {
		res, err = src.NextBatch(ctx)
		require.NoError(t, err)
		require.True(t, res.Blocked())
	}
	res, err = src.NextBatch(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, res.Batch().BeginRow())
	require.True(t, res.Batch().Terminal())

	require.NoError(t, src.Close(ctx))
	require.True(t, src.Closed())
	_, err = src.NextBatch(ctx)
	require.ErrorIs(t, err, datamgr.ErrSourceClosed)
}

const fixture = `{
  "warehouse": {
    "Orders": {
      "schema": [
        {"name": "id", "type": "int"},
        {"name": "price", "type": "float"},
        {"name": "status", "type": "string"},
        {"name": "paid", "type": "bool"},
        {"name": "ts", "type": "timestamp"}
      ],
      "rows": [
        [1, 9.5, "open", false, "2024-01-01T00:00:00Z"],
        [2, 3, null, true, null]
      ]
    }
  }
}`

func TestMemoryManager(t *testing.T) {
	ctx := context.Background()
	m := datamgr.NewMemoryManager(1)
	require.NoError(t, m.LoadTables(strings.NewReader(fixture)))
	require.Equal(t, []string{"warehouse"}, m.Sources())
	require.Equal(t, []string{"orders"}, m.Tables("warehouse"))

	table, ok := m.Table("warehouse", "orders")
	require.True(t, ok)
	require.Equal(t, batch.Row{
		int64(1), 9.5, "open", false, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}, table.Rows[0])
	require.Equal(t, batch.Row{int64(2), 3.0, nil, true, nil}, table.Rows[1])

	t.Run("full rows", func(t *testing.T) {
		src, err := m.RegisterRequest(ctx, "r1", datamgr.NewCommand("orders", nil), "warehouse", 1)
		require.NoError(t, err)
		batches := drain(t, src)
		require.Len(t, batches, 2)
		require.Equal(t, table.Rows[1], batches[1].Row(2))
	})
	t.Run("projection", func(t *testing.T) {
		projected := batch.Schema{batch.NewElement("status", batch.String), batch.NewElement("id", batch.Int)}
		src, err := m.RegisterRequest(ctx, "r2", datamgr.NewCommand("ORDERS", projected), "warehouse", 1)
		require.NoError(t, err)
		batches := drain(t, src)
		require.Equal(t, batch.Row{"open", int64(1)}, batches[0].Row(1))
	})
	t.Run("unknown source", func(t *testing.T) {
		_, err := m.RegisterRequest(ctx, "r3", datamgr.NewCommand("orders", nil), "lake", 1)
		require.ErrorIs(t, err, datamgr.UnknownSourceError{})
	})
	t.Run("unknown table", func(t *testing.T) {
		_, err := m.RegisterRequest(ctx, "r4", datamgr.NewCommand("customers", nil), "warehouse", 1)
		require.ErrorIs(t, err, datamgr.UnknownCommandError{})
	})
	t.Run("unknown projected column", func(t *testing.T) {
		projected := batch.Schema{batch.NewElement("nope", batch.String)}
		_, err := m.RegisterRequest(ctx, "r5", datamgr.NewCommand("orders", projected), "warehouse", 1)
		require.Error(t, err)
	})
}

func TestMemoryManagerConcurrentRegistration(t *testing.T) {
	ctx := context.Background()
	m := datamgr.NewMemoryManager(4)
	schema := batch.Schema{batch.NewElement("id", batch.Int)}
	m.AddTable("lake", "t0", datamgr.Table{Schema: schema, Rows: intRows(3)})

	g := &errgroup.Group{}
	g.Go(func() error {
		for i := 1; i <= 200; i++ {
			m.AddTable("lake", fmt.Sprintf("t%d", i), datamgr.Table{Schema: schema, Rows: intRows(i)})
		}
		return nil
	})
	for w := 0; w < 4; w++ {
		g.Go(func() error {
			for i := 0; i < 200; i++ {
				id := fmt.Sprintf("w%d-%d", w, i)
				if _, err := m.RegisterRequest(ctx, id, datamgr.NewCommand("t0", nil), "lake", 1); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.Len(t, m.Tables("lake"), 201)
}

func TestLoadTablesErrors(t *testing.T) {
	cases := []struct {
		assertion string
		input     string
	}{
		{"malformed json", `{`},
		{"arity", `{"s": {"t": {"schema": [{"name": "a", "type": "int"}], "rows": [[1, 2]]}}}`},
		{"type", `{"s": {"t": {"schema": [{"name": "a", "type": "int"}], "rows": [["x"]]}}}`},
		{"fractional int", `{"s": {"t": {"schema": [{"name": "a", "type": "int"}], "rows": [[1.5]]}}}`},
		{"bad timestamp", `{"s": {"t": {"schema": [{"name": "a", "type": "timestamp"}], "rows": [["soon"]]}}}`},
		{"unknown type", `{"s": {"t": {"schema": [{"name": "a", "type": "blob"}], "rows": []}}}`},
	}
	for _, c := range cases {
		t.Run(c.assertion, func(t *testing.T) {
			m := datamgr.NewMemoryManager(10)
			require.Error(t, m.LoadTables(strings.NewReader(c.input)))
		})
	}
}
