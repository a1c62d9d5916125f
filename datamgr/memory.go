package datamgr

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fedquery/fq/batch"
	"github.com/fedquery/fq/util/log"
	"github.com/goccy/go-json"
	"golang.org/x/exp/maps"
)

/*
MemoryManager is a data manager over named in-memory tables, grouped by source.
A command's text is the name of a table in the requested source. If the command
projects columns, the rows returned are narrowed to those columns by name.

Tables can be loaded from JSON documents of the form

	{
	  "warehouse": {
	    "orders": {
	      "schema": [{"name": "id", "type": "int"}, {"name": "ts", "type": "timestamp"}],
	      "rows": [[1, "2024-01-01T00:00:00Z"], [2, null]]
	    }
	  }
	}

Timestamps are RFC 3339 strings.
*/

////////////////////////////////////////////////////////////////////////////////

// Table is a named set of rows with a schema.
type Table struct {
	Schema batch.Schema
	Rows   []batch.Row
}

// MemoryManager serves in-memory tables.
type MemoryManager struct {
	mtx       *sync.RWMutex
	sources   map[string]map[string]Table
	batchSize int
}

// NewMemoryManager returns a new, empty memory manager.
func NewMemoryManager(batchSize int) *MemoryManager {
	return &MemoryManager{
		mtx:       &sync.RWMutex{},
		sources:   make(map[string]map[string]Table),
		batchSize: batchSize,
	}
}

// AddTable adds or replaces a table.
func (m *MemoryManager) AddTable(source, name string, table Table) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	tables, ok := m.sources[source]
	if !ok {
		tables = make(map[string]Table)
		m.sources[source] = tables
	}
	tables[strings.ToLower(name)] = table
}

// Table returns a table.
func (m *MemoryManager) Table(source, name string) (Table, bool) {
	m.mtx.RLock()
	defer m.mtx.RUnlock()
	t, ok := m.sources[source][strings.ToLower(name)]
	return t, ok
}

// Sources returns the sorted names of the sources served.
func (m *MemoryManager) Sources() []string {
	m.mtx.RLock()
	defer m.mtx.RUnlock()
	names := maps.Keys(m.sources)
	slices.Sort(names)
	return names
}

// Tables returns the sorted names of the tables in a source.
func (m *MemoryManager) Tables(source string) []string {
	m.mtx.RLock()
	defer m.mtx.RUnlock()
	names := maps.Keys(m.sources[source])
	slices.Sort(names)
	return names
}

// RegisterRequest implements DataManager.
func (m *MemoryManager) RegisterRequest(
	ctx context.Context,
	requestID string,
	command Command,
	sourceName string,
	nodeID int,
) (TupleSource, error) {
	m.mtx.RLock()
	tables, known := m.sources[sourceName]
	table, ok := tables[strings.ToLower(command.Canonical())]
	m.mtx.RUnlock()
	if !known {
		return nil, UnknownSourceError{Source: sourceName, Command: command}
	}
	if !ok {
		return nil, UnknownCommandError{Command: command}
	}
	rows := table.Rows
	if len(command.Projected) > 0 {
		indexes := make([]int, len(command.Projected))
		for i, e := range command.Projected {
			idx := table.Schema.Index(e.Name)
			if idx < 0 {
				return nil, fmt.Errorf("column %s not found in %s.%s", e.Name, sourceName, command.Canonical())
			}
			indexes[i] = idx
		}
		rows = make([]batch.Row, len(table.Rows))
		for i, row := range table.Rows {
			rows[i] = row.Project(indexes)
		}
	}
	log.Debugw(ctx, "registered request",
		"request", requestID, "node", nodeID, "source", sourceName, "command", command.String(), "rows", len(rows))
	return NewRowSource(rows, WithBatchSize(m.batchSize)), nil
}

type tableDocument struct {
	Schema batch.Schema `json:"schema"`
	Rows   [][]any      `json:"rows"`
}

// LoadTables reads tables from a JSON document.
func (m *MemoryManager) LoadTables(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read tables: %w", err)
	}
	var doc map[string]map[string]tableDocument
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("failed to decode tables: %w", err)
	}
	for source, tables := range doc {
		for name, td := range tables {
			rows, err := convertRows(td.Schema, td.Rows)
			if err != nil {
				return fmt.Errorf("failed to load table %s.%s: %w", source, name, err)
			}
			m.AddTable(source, name, Table{Schema: td.Schema, Rows: rows})
		}
	}
	return nil
}

func convertRows(schema batch.Schema, raw [][]any) ([]batch.Row, error) {
	rows := make([]batch.Row, len(raw))
	for i, values := range raw {
		if len(values) != len(schema) {
			return nil, fmt.Errorf("row %d has %d values, schema has %d", i+1, len(values), len(schema))
		}
		row := make(batch.Row, len(values))
		for j, v := range values {
			converted, err := ConvertValue(schema[j].Type, v)
			if err != nil {
				return nil, fmt.Errorf("row %d column %s: %w", i+1, schema[j].Name, err)
			}
			row[j] = converted
		}
		rows[i] = row
	}
	return rows, nil
}

// ConvertValue converts a decoded JSON value to the Go representation of
// the given type.
func ConvertValue(typ batch.Type, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch typ {
	case batch.Int:
		if n, ok := v.(json.Number); ok {
			return n.Int64()
		}
	case batch.Float:
		if n, ok := v.(json.Number); ok {
			return n.Float64()
		}
	case batch.String:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case batch.Bool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case batch.Timestamp:
		if s, ok := v.(string); ok {
			t, err := time.Parse(time.RFC3339Nano, s)
			if err != nil {
				return nil, fmt.Errorf("invalid timestamp %q: %w", s, err)
			}
			return t.UTC(), nil
		}
	}
	return nil, fmt.Errorf("cannot convert %v to %s", v, typ)
}
