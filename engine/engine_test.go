package engine_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fedquery/fq/batch"
	"github.com/fedquery/fq/datamgr"
	"github.com/fedquery/fq/engine"
	"github.com/fedquery/fq/executor"
	"github.com/fedquery/fq/plan"
	"github.com/fedquery/fq/storage"
	"github.com/stretchr/testify/require"
)

var schema = batch.Schema{ // nolint:gochecknoglobals
	batch.NewElement("id", batch.Int),
	batch.NewElement("name", batch.String),
}

func testManager(n int) *datamgr.MemoryManager {
	dm := datamgr.NewMemoryManager(3)
	rows := make([]batch.Row, n)
	for i := range rows {
		rows[i] = batch.Row{int64(i + 1), fmt.Sprintf("n%d", i+1)}
	}
	dm.AddTable("warehouse", "items", datamgr.Table{Schema: schema, Rows: rows})
	dm.AddTable("catalog", "wanted", datamgr.Table{
		Schema: batch.Schema{batch.NewElement("name", batch.String)},
		Rows:   []batch.Row{{"n2"}, {"n4"}, {"n8"}, {"n16"}, {"n32"}},
	})
	return dm
}

const subqueryPlan = `{
  "type": "select",
  "criteria": "name in $wanted",
  "elements": ["id"],
  "subqueries": {
    "wanted": {
      "type": "access",
      "source": "catalog",
      "command": "wanted",
      "projected": [{"name": "name", "type": "string"}]
    }
  },
  "children": [{
    "type": "access",
    "source": "warehouse",
    "command": "items",
    "projected": [{"name": "id", "type": "int"}, {"name": "name", "type": "string"}]
  }]
}`

func loadPlan(t *testing.T, s string) *plan.Node {
	t.Helper()
	node, err := plan.Load(strings.NewReader(s))
	require.NoError(t, err)
	return node
}

func collector() (*[]batch.Row, executor.Sink) {
	rows := &[]batch.Row{}
	mtx := &sync.Mutex{}
	return rows, func(b *batch.Batch) error {
		mtx.Lock()
		defer mtx.Unlock()
		*rows = append(*rows, b.Rows()...)
		return nil
	}
}

// countingStore counts pages written to the wrapped store.
type countingStore struct {
	storage.Provider
	mtx  sync.Mutex
	puts int
}

func (s *countingStore) Put(ctx context.Context, id string, data []byte) error {
	s.mtx.Lock()
	s.puts++
	s.mtx.Unlock()
	return s.Provider.Put(ctx, id, data)
}

func TestEngineExecute(t *testing.T) {
	ctx := context.Background()
	e := engine.New(testManager(20), engine.WithBatchSize(4))
	defer e.Close(ctx)

	rows, sink := collector()
	stats, err := e.Execute(ctx, loadPlan(t, subqueryPlan), sink)
	require.NoError(t, err)
	require.Equal(t, []batch.Row{{int64(2)}, {int64(4)}, {int64(8)}, {int64(16)}}, *rows)
	require.Equal(t, 0, e.Buffers().Len())

	require.Len(t, stats.Children, 1)
	require.Equal(t, "select 1", stats.Children[0].Name)
	require.Equal(t, float64(4), stats.Children[0].Value("rows_out"))
	report, err := stats.Report()
	require.NoError(t, err)
	require.Contains(t, string(report), `"name":"access 2"`)
}

func TestEngineSpillsSubqueryBuffers(t *testing.T) {
	ctx := context.Background()
	dm := testManager(10)
	wanted := make([]batch.Row, 40)
	for i := range wanted {
		wanted[i] = batch.Row{fmt.Sprintf("n%d", 40-i)}
	}
	dm.AddTable("catalog", "wanted", datamgr.Table{
		Schema: batch.Schema{batch.NewElement("name", batch.String)},
		Rows:   wanted,
	})
	dir, err := storage.NewDirectoryStore(t.TempDir())
	require.NoError(t, err)
	store := &countingStore{Provider: dir}
	e := engine.New(dm,
		engine.WithSpillStore(store),
		engine.WithPageRows(4),
		engine.WithPageCacheSize(2),
		engine.WithMemoryLimitRows(8),
	)
	defer e.Close(ctx)

	rows, sink := collector()
	_, err = e.Execute(ctx, loadPlan(t, subqueryPlan), sink)
	require.NoError(t, err)
	require.Len(t, *rows, 10)
	require.Positive(t, store.puts)
	require.Equal(t, int64(0), e.Buffers().ResidentRows())
}

func TestEngineExecuteErrors(t *testing.T) {
	ctx := context.Background()
	e := engine.New(testManager(3))
	defer e.Close(ctx)
	_, sink := collector()
	cases := []struct {
		assertion string
		plan      string
	}{
		{
			"unknown table",
			`{"type": "access", "source": "warehouse", "command": "nope",
			  "projected": [{"name": "id", "type": "int"}]}`,
		},
		{
			"unknown source",
			`{"type": "access", "source": "nowhere", "command": "items",
			  "projected": [{"name": "id", "type": "int"}]}`,
		},
		{
			"unknown subquery",
			`{"type": "select", "criteria": "name in $missing", "children": [{"type": "access",
			  "source": "warehouse", "command": "items", "projected": [{"name": "name", "type": "string"}]}]}`,
		},
	}
	for _, c := range cases {
		t.Run(c.assertion, func(t *testing.T) {
			_, err := e.Execute(ctx, loadPlan(t, c.plan), sink)
			require.Error(t, err)
		})
	}
}

func TestEngineExecuteAll(t *testing.T) {
	ctx := context.Background()
	e := engine.New(testManager(30), engine.WithWorkers(2))
	defer e.Close(ctx)
	queries := []engine.Query{}
	results := []*[]batch.Row{}
	for i := 0; i < 5; i++ {
		rows, sink := collector()
		results = append(results, rows)
		queries = append(queries, engine.Query{
			Name: fmt.Sprintf("q%d", i),
			Plan: loadPlan(t, fmt.Sprintf(`{
			  "type": "limit", "limit": %d,
			  "children": [{"type": "access", "source": "warehouse", "command": "items",
			    "projected": [{"name": "id", "type": "int"}]}]
			}`, i+1)),
			Sink: sink,
		})
	}
	require.NoError(t, e.ExecuteAll(ctx, queries...))
	for i, rows := range results {
		require.Len(t, *rows, i+1)
	}
}

func TestEngineExecuteAllCompileFailure(t *testing.T) {
	ctx := context.Background()
	e := engine.New(testManager(8))
	defer e.Close(ctx)
	rows, sink := collector()
	queries := []engine.Query{
		{Name: "good", Plan: loadPlan(t, subqueryPlan), Sink: sink},
		{Name: "bad", Plan: loadPlan(t, `{"type": "access", "source": "nowhere", "command": "items",
		  "projected": [{"name": "id", "type": "int"}]}`), Sink: sink},
	}
	err := e.ExecuteAll(ctx, queries...)
	require.ErrorContains(t, err, "query bad")
	require.Empty(t, *rows)
	require.Zero(t, e.Buffers().Len())

	require.NoError(t, e.ExecuteAll(ctx, queries[0]))
	require.Len(t, *rows, 3)
	require.Zero(t, e.Buffers().Len())
}

func TestLoadConfig(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "fq.json")
	require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf(`{
	  "batchSize": 7,
	  "workers": 3,
	  "logLevel": "debug",
	  "buffer": {"pageRows": 16, "pageCacheSize": 4, "memoryLimitRows": 64},
	  "spill": {"type": "sqlite", "path": %q},
	  "retry": {"backoff": "2ms", "maxBackoff": "40ms", "maxIdleRetries": 9, "budget": "1m"}
	}`, filepath.Join(dir, "spill.db"))), 0600))

	config, err := engine.LoadConfig(path)
	require.NoError(t, err)
	opts, err := config.Options(ctx)
	require.NoError(t, err)
	e := engine.New(testManager(1), opts...)
	defer e.Close(ctx)

	options := e.Options()
	require.Equal(t, 7, options.BatchSize)
	require.Equal(t, 3, options.Workers)
	require.Equal(t, "DEBUG", options.LogLevel.String())
	require.Equal(t, 16, options.PageRows)
	require.Equal(t, 4, options.PageCacheSize)
	require.Equal(t, 64, options.MemoryLimitRows)
	require.IsType(t, &storage.SQLStore{}, options.SpillStore)
	require.Equal(t, executor.RetryPolicy{
		Backoff:        2 * time.Millisecond,
		MaxBackoff:     40 * time.Millisecond,
		MaxIdleRetries: 9,
		Budget:         time.Minute,
	}, options.RetryPolicy)
}

func TestConfigDefaults(t *testing.T) {
	ctx := context.Background()
	opts, err := (&engine.Config{}).Options(ctx)
	require.NoError(t, err)
	require.Empty(t, opts)
	e := engine.New(testManager(1), opts...)
	require.Equal(t, executor.DefaultRetryPolicy, e.Options().RetryPolicy)
	require.Equal(t, executor.DefaultBatchSize, e.Options().BatchSize)
	require.NoError(t, e.Close(ctx))
}

func TestConfigErrors(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		assertion string
		config    string
	}{
		{"bad duration", `{"retry": {"backoff": "soon"}}`},
		{"numeric duration", `{"retry": {"backoff": 5}}`},
		{"bad log level", `{"logLevel": "loud"}`},
		{"unknown spill store", `{"spill": {"type": "tape"}}`},
		{"directory without path", `{"spill": {"type": "directory"}}`},
		{"s3 without bucket", `{"spill": {"type": "s3", "endpoint": "localhost:9000"}}`},
	}
	for _, c := range cases {
		t.Run(c.assertion, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "fq.json")
			require.NoError(t, os.WriteFile(path, []byte(c.config), 0600))
			config, err := engine.LoadConfig(path)
			if err == nil {
				_, err = config.Options(ctx)
			}
			require.Error(t, err)
		})
	}
	_, err := engine.LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}
