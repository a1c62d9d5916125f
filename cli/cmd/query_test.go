package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fedquery/fq/batch"
	"github.com/fedquery/fq/datamgr"
	"github.com/stretchr/testify/require"
)

func testTables(t *testing.T) *datamgr.MemoryManager {
	t.Helper()
	dm := datamgr.NewMemoryManager(2)
	require.NoError(t, dm.LoadTables(strings.NewReader(`{
	  "warehouse": {
	    "items": {
	      "schema": [{"name": "id", "type": "int"}, {"name": "name", "type": "string"}],
	      "rows": [[1, "bolt"], [2, "nut"], [3, null]]
	    }
	  }
	}`)))
	return dm
}

func TestBuildQuery(t *testing.T) {
	dm := testTables(t)
	cases := []struct {
		assertion string
		criteria  string
		columns   []string
		limit     int
		offset    int
		output    string
	}{
		{
			"bare table",
			"", nil, -1, 0,
			`[access (warehouse "items" id,name)]`,
		},
		{
			"projection without criteria",
			"", []string{"name"}, -1, 0,
			`[access (warehouse "items" name)]`,
		},
		{
			"criteria",
			"id > 1", []string{"name"}, -1, 0,
			`[select ("id > 1" name) [access (warehouse "items" id,name)]]`,
		},
		{
			"limit and offset",
			"id > 1", nil, 5, 1,
			`[limit 5 offset 1 [select ("id > 1") [access (warehouse "items" id,name)]]]`,
		},
	}
	for _, c := range cases {
		t.Run(c.assertion, func(t *testing.T) {
			node, err := buildQuery(dm, "warehouse.items", c.criteria, c.columns, c.limit, c.offset)
			require.NoError(t, err)
			require.Equal(t, c.output, node.String())
			require.Equal(t, 1, node.ID)
		})
	}

	_, err := buildQuery(dm, "items", "", nil, -1, 0)
	require.Error(t, err)
	_, err = buildQuery(dm, "warehouse.missing", "", nil, -1, 0)
	require.Error(t, err)
	_, err = buildQuery(dm, "warehouse.items", "", []string{"nope"}, -1, 0)
	require.Error(t, err)
}

func TestResultSetJSON(t *testing.T) {
	outputJSON = true
	defer func() { outputJSON = false }()
	results := &resultSet{
		schema: batch.Schema{batch.NewElement("id", batch.Int), batch.NewElement("name", batch.String)},
		rows:   []batch.Row{{int64(1), "bolt"}, {int64(3), nil}},
	}
	buf := &bytes.Buffer{}
	require.NoError(t, results.print(buf))
	require.Equal(t, "{\"id\":1,\"name\":\"bolt\"}\n{\"id\":3,\"name\":null}\n", buf.String())
}

func TestResultSetSink(t *testing.T) {
	results := &resultSet{}
	sink := results.sink()
	require.NoError(t, sink(batch.New(1, []batch.Row{{int64(1)}}, false)))
	require.NoError(t, sink(batch.Empty(2, true)))
	require.Equal(t, []batch.Row{{int64(1)}}, results.rows)
}
