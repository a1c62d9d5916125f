package datamgrtest

import (
	"context"
	"slices"
	"sync"

	"github.com/fedquery/fq/batch"
	"github.com/fedquery/fq/datamgr"
	"golang.org/x/exp/maps"
)

/*
HardcodedDataManager is a data manager for tests. It maps canonical command
text to canned rows. Each request is recorded in the command history before it
is resolved.

When a command has no registered rows the manager either fails the request or,
if commands need not be registered, answers with a single row of nulls shaped
like the command's projection. If valid sources are set, a request against any
other source fails.
*/

////////////////////////////////////////////////////////////////////////////////

// HardcodedDataManager serves canned rows keyed by command text.
type HardcodedDataManager struct {
	mtx                  *sync.Mutex
	data                 map[string][]batch.Row
	validSources         map[string]bool
	mustRegisterCommands bool
	blockOnce            bool
	batchSize            int
	history              []datamgr.Command
	sources              []*datamgr.RowSource
}

// Option configures a HardcodedDataManager.
type Option func(*HardcodedDataManager)

// WithMustRegisterCommands sets whether unregistered commands fail. The
// default is true.
func WithMustRegisterCommands(must bool) Option {
	return func(m *HardcodedDataManager) {
		m.mustRegisterCommands = must
	}
}

// WithBlockOnce makes every returned source block once before its first
// batch.
func WithBlockOnce() Option {
	return func(m *HardcodedDataManager) {
		m.blockOnce = true
	}
}

// WithBatchSize sets the batch size of returned sources.
func WithBatchSize(n int) Option {
	return func(m *HardcodedDataManager) {
		m.batchSize = n
	}
}

// WithValidSources restricts the sources requests may target.
func WithValidSources(sources ...string) Option {
	return func(m *HardcodedDataManager) {
		m.validSources = make(map[string]bool, len(sources))
		for _, s := range sources {
			m.validSources[s] = true
		}
	}
}

// New returns a new HardcodedDataManager.
func New(opts ...Option) *HardcodedDataManager {
	m := &HardcodedDataManager{
		mtx:                  &sync.Mutex{},
		data:                 make(map[string][]batch.Row),
		mustRegisterCommands: true,
		batchSize:            datamgr.DefaultBatchSize,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AddData registers rows for a command.
func (m *HardcodedDataManager) AddData(command string, rows ...batch.Row) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.data[datamgr.Command{Text: command}.Canonical()] = rows
}

// ClearData removes all registered rows and the command history.
func (m *HardcodedDataManager) ClearData() {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.data = make(map[string][]batch.Row)
	m.history = nil
	m.sources = nil
}

// SetBlockOnce sets whether returned sources block once.
func (m *HardcodedDataManager) SetBlockOnce(blockOnce bool) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.blockOnce = blockOnce
}

// SetMustRegisterCommands sets whether unregistered commands fail.
func (m *HardcodedDataManager) SetMustRegisterCommands(must bool) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.mustRegisterCommands = must
}

// CommandHistory returns the commands requested so far, in order.
func (m *HardcodedDataManager) CommandHistory() []datamgr.Command {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return slices.Clone(m.history)
}

// Commands returns the sorted registered command texts.
func (m *HardcodedDataManager) Commands() []string {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	keys := maps.Keys(m.data)
	slices.Sort(keys)
	return keys
}

// Sources returns the sources handed out so far, in order.
func (m *HardcodedDataManager) Sources() []*datamgr.RowSource {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return slices.Clone(m.sources)
}

// RegisterRequest implements datamgr.DataManager.
func (m *HardcodedDataManager) RegisterRequest(
	_ context.Context,
	_ string,
	command datamgr.Command,
	sourceName string,
	_ int,
) (datamgr.TupleSource, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	if sourceName != "" && m.validSources != nil && !m.validSources[sourceName] {
		return nil, datamgr.UnknownSourceError{Source: sourceName, Command: command}
	}
	m.history = append(m.history, command)
	rows, ok := m.data[command.Canonical()]
	if !ok {
		if m.mustRegisterCommands {
			return nil, datamgr.UnknownCommandError{Command: command}
		}
		rows = []batch.Row{make(batch.Row, len(command.Projected))}
	}
	opts := []datamgr.RowSourceOption{datamgr.WithBatchSize(m.batchSize)}
	if m.blockOnce {
		opts = append(opts, datamgr.WithBlockBefore(1, 1))
	}
	source := datamgr.NewRowSource(rows, opts...)
	m.sources = append(m.sources, source)
	return source, nil
}
