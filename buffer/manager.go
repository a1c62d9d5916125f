package buffer

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/fedquery/fq/batch"
	"github.com/fedquery/fq/storage"
	"github.com/fedquery/fq/util"
	"github.com/fedquery/fq/util/log"
	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
)

/*
The manager creates tuple buffers and accounts for the rows they hold in
memory. Each buffer stores rows in fixed-size pages. When the total number of
resident rows across all live buffers exceeds the manager's limit, a buffer
that has just appended data writes its own sealed pages to the spill provider
until the total is back under the limit or it has nothing left to spill. Pages
read back from the provider are held in a shared LRU cache.

A buffer only ever spills its own pages, so the single-writer discipline of
each buffer is preserved even when many jobs share one manager.
*/

////////////////////////////////////////////////////////////////////////////////

const (
	// DefaultPageRows is the default number of rows per page.
	DefaultPageRows = 256

	// DefaultPageCacheSize is the default number of spilled pages cached in
	// memory.
	DefaultPageCacheSize = 64
)

// Manager creates and tracks tuple buffers.
type Manager struct {
	store     storage.Provider
	cache     *util.LRU[string, []batch.Row]
	pageRows  int
	limitRows int64
	resident  atomic.Int64
	buffers   *xsync.MapOf[string, *TupleBuffer]
}

// ManagerOption is a function that configures a manager.
type ManagerOption func(*managerConfig)

type managerConfig struct {
	store     storage.Provider
	pageRows  int
	cacheSize int
	limitRows int
}

// WithSpillStore sets the provider spilled pages are written to. The default
// is an in-memory store.
func WithSpillStore(store storage.Provider) ManagerOption {
	return func(c *managerConfig) {
		c.store = store
	}
}

// WithPageRows sets the number of rows per page.
func WithPageRows(n int) ManagerOption {
	return func(c *managerConfig) {
		c.pageRows = n
	}
}

// WithPageCacheSize sets the number of spilled pages cached in memory.
func WithPageCacheSize(n int) ManagerOption {
	return func(c *managerConfig) {
		c.cacheSize = n
	}
}

// WithMemoryLimitRows sets the number of rows the manager's buffers may hold
// in memory before spilling. Zero disables spilling.
func WithMemoryLimitRows(n int) ManagerOption {
	return func(c *managerConfig) {
		c.limitRows = n
	}
}

// NewManager constructs a new buffer manager.
func NewManager(opts ...ManagerOption) *Manager {
	cfg := managerConfig{
		pageRows:  DefaultPageRows,
		cacheSize: DefaultPageCacheSize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.store == nil {
		cfg.store = storage.NewMemStore()
	}
	if cfg.pageRows < 1 {
		cfg.pageRows = DefaultPageRows
	}
	if cfg.cacheSize < 1 {
		cfg.cacheSize = 1
	}
	return &Manager{
		store:     cfg.store,
		cache:     util.NewLRU[string, []batch.Row](cfg.cacheSize),
		pageRows:  cfg.pageRows,
		limitRows: int64(cfg.limitRows),
		buffers:   xsync.NewMapOf[string, *TupleBuffer](),
	}
}

// Create returns a new, empty tuple buffer with the given schema.
func (m *Manager) Create(schema batch.Schema) *TupleBuffer {
	b := newTupleBuffer(m, uuid.NewString(), schema)
	m.buffers.Store(b.id, b)
	return b
}

// Buffer returns the live buffer with the given id.
func (m *Manager) Buffer(id string) (*TupleBuffer, bool) {
	return m.buffers.Load(id)
}

// Len returns the number of live buffers.
func (m *Manager) Len() int {
	return m.buffers.Size()
}

// ResidentRows returns the number of rows held in memory across all live
// buffers.
func (m *Manager) ResidentRows() int64 {
	return m.resident.Load()
}

// Store returns the spill provider.
func (m *Manager) Store() storage.Provider {
	return m.store
}

// Close removes every live buffer.
func (m *Manager) Close(ctx context.Context) error {
	var errs []error
	m.buffers.Range(func(id string, b *TupleBuffer) bool {
		if err := b.Remove(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to remove buffer %s: %w", id, err))
		}
		return true
	})
	return errors.Join(errs...)
}

func (m *Manager) overLimit() bool {
	return m.limitRows > 0 && m.resident.Load() > m.limitRows
}

func (m *Manager) release(b *TupleBuffer) {
	m.buffers.Delete(b.id)
}

// spill writes rows to the provider under key.
func (m *Manager) spill(ctx context.Context, key string, rows []batch.Row) error {
	data, err := encodeRows(rows)
	if err != nil {
		return err
	}
	if err := m.store.Put(ctx, key, data); err != nil {
		return fmt.Errorf("failed to spill page %s: %w", key, err)
	}
	log.Debugw(ctx, "spilled page", "key", key, "rows", len(rows), "bytes", len(data))
	return nil
}

// load reads a spilled page, through the cache.
func (m *Manager) load(ctx context.Context, key string) ([]batch.Row, error) {
	if rows, ok := m.cache.Get(key); ok {
		return rows, nil
	}
	data, err := m.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to load page %s: %w", key, err)
	}
	rows, err := decodeRows(data)
	if err != nil {
		return nil, err
	}
	m.cache.Put(key, rows)
	return rows, nil
}

// discard deletes a spilled page.
func (m *Manager) discard(ctx context.Context, key string) error {
	m.cache.Delete(key)
	if err := m.store.Delete(ctx, key); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
		return fmt.Errorf("failed to delete page %s: %w", key, err)
	}
	return nil
}
