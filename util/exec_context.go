package util

import (
	"context"
	"fmt"
	"sync"

	"github.com/goccy/go-json"
)

/*
An execution context is a tree of named counters that travels with a query in
its context.Context. Each operator adds a child for itself and records what it
did (batches and rows out, times blocked, elapsed durations). When execution
finishes the tree is rendered to JSON for "explain" style output.
*/

////////////////////////////////////////////////////////////////////////////////

type contextKey int

const (
	// ContextKey is the context key under which the execution context lives.
	ContextKey contextKey = iota
)

// Context is a node in the execution context tree.
type Context struct {
	Name     string             `json:"name"`
	Values   map[string]float64 `json:"values"`
	Data     map[string]string  `json:"data"`
	Children []*Context         `json:"children"`

	mtx *sync.Mutex
}

func newContext(name string) *Context {
	return &Context{
		Name:   name,
		Values: make(map[string]float64),
		Data:   make(map[string]string),
		mtx:    &sync.Mutex{},
	}
}

// WithContext installs a fresh root execution context.
func WithContext(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, ContextKey, newContext(name))
}

// WithChildContext adds a named child beneath the current execution context
// and returns a context carrying the child.
func WithChildContext(ctx context.Context, name string) (context.Context, *Context) {
	c := fromContext(ctx)
	child := newContext(name)
	c.mtx.Lock()
	c.Children = append(c.Children, child)
	c.mtx.Unlock()
	return context.WithValue(ctx, ContextKey, child), child
}

// IncContextValue increments a named counter.
func IncContextValue(ctx context.Context, name string, inc float64) {
	fromContext(ctx).Inc(name, inc)
}

// SetContextValue sets a named value.
func SetContextValue(ctx context.Context, name string, value float64) {
	fromContext(ctx).Set(name, value)
}

// SetContextData sets a named string datum.
func SetContextData(ctx context.Context, key string, data string) {
	c := fromContext(ctx)
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.Data[key] = data
}

// FromContext returns the execution context carried by ctx. If there is none,
// a detached context is returned so that callers may record unconditionally.
func FromContext(ctx context.Context) *Context {
	return fromContext(ctx)
}

func fromContext(ctx context.Context) *Context {
	if c, ok := ctx.Value(ContextKey).(*Context); ok {
		return c
	}
	return newContext("")
}

// Inc increments a named counter.
func (c *Context) Inc(name string, inc float64) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.Values[name] += inc
}

// Set sets a named value.
func (c *Context) Set(name string, value float64) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.Values[name] = value
}

// Value returns a named value.
func (c *Context) Value(name string) float64 {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.Values[name]
}

// ReportFromContext renders the execution context carried by ctx as JSON.
func ReportFromContext(ctx context.Context) ([]byte, error) {
	return fromContext(ctx).Report()
}

// Report renders the tree rooted at c as JSON.
func (c *Context) Report() ([]byte, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal exec context to JSON: %w", err)
	}
	return data, nil
}
