package batch_test

import (
	"testing"

	"github.com/fedquery/fq/batch"
	"github.com/stretchr/testify/require"
)

func rows(vals ...int64) []batch.Row {
	out := make([]batch.Row, len(vals))
	for i, v := range vals {
		out[i] = batch.Row{v}
	}
	return out
}

func TestBatchBounds(t *testing.T) {
	cases := []struct {
		assertion string
		batch     *batch.Batch
		begin     int
		end       int
		length    int
	}{
		{"single row", batch.New(1, rows(1), false), 1, 1, 1},
		{"three rows offset", batch.New(4, rows(4, 5, 6), false), 4, 6, 3},
		{"empty terminal", batch.Empty(7, true), 7, 6, 0},
	}
	for _, c := range cases {
		t.Run(c.assertion, func(t *testing.T) {
			require.Equal(t, c.begin, c.batch.BeginRow())
			require.Equal(t, c.end, c.batch.EndRow())
			require.Equal(t, c.length, c.batch.Len())
		})
	}
}

func TestBatchRowAccess(t *testing.T) {
	b := batch.New(3, rows(30, 40, 50), true)
	require.True(t, b.Terminal())
	require.False(t, b.Contains(2))
	require.True(t, b.Contains(3))
	require.True(t, b.Contains(5))
	require.False(t, b.Contains(6))
	require.Equal(t, batch.Row{int64(40)}, b.Row(4))
	require.Panics(t, func() { b.Row(6) })
}

func TestBatchFollows(t *testing.T) {
	first := batch.New(1, rows(1, 2, 3), false)
	second := batch.New(4, rows(4, 5), true)
	require.True(t, first.Follows(nil))
	require.True(t, second.Follows(first))
	require.False(t, second.Follows(nil))
	require.False(t, batch.New(5, rows(5), false).Follows(first))
	require.True(t, batch.Empty(4, true).Follows(first))
}

func TestInvalidBeginRowPanics(t *testing.T) {
	require.Panics(t, func() { batch.New(0, nil, true) })
}

func TestRowProject(t *testing.T) {
	row := batch.Row{int64(1), "a", true}
	require.Equal(t, batch.Row{true, int64(1)}, row.Project([]int{2, 0}))
	require.Equal(t, "[1 a true]", row.String())
	require.Equal(t, "[null]", batch.Row{nil}.String())
}

func TestResult(t *testing.T) {
	require.True(t, batch.Blocked.Blocked())
	require.Equal(t, batch.StatusBlocked, batch.Blocked.Status())
	b := batch.Empty(1, true)
	res := batch.Ready(b)
	require.False(t, res.Blocked())
	require.Equal(t, batch.StatusReady, res.Status())
	require.Same(t, b, res.Batch())
}

func TestSchema(t *testing.T) {
	s := batch.Schema{
		batch.NewElement("id", batch.Int),
		batch.NewElement("Name", batch.String),
	}
	require.Equal(t, 1, s.Index("name"))
	require.Equal(t, -1, s.Index("missing"))
	require.Equal(t, map[string]int{"id": 0, "name": 1}, s.Lookup())
	sub, err := s.Select("name", "id")
	require.NoError(t, err)
	require.Equal(t, []string{"Name", "id"}, sub.Names())
	_, err = s.Select("nope")
	require.Error(t, err)
	require.Equal(t, "(id int, Name string)", s.String())
}

func TestParseType(t *testing.T) {
	for _, typ := range []batch.Type{batch.Int, batch.Float, batch.String, batch.Bool, batch.Timestamp} {
		parsed, err := batch.ParseType(typ.String())
		require.NoError(t, err)
		require.Equal(t, typ, parsed)
	}
	_, err := batch.ParseType("blob")
	require.Error(t, err)
}
