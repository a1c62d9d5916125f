package storage

import (
	"context"
	"errors"
)

/*
The storage provider interface describes the minimal set of operations the
tuple buffer layer needs from secondary storage when it spills pages out of
memory. Objects are small, written once, read any number of times and deleted
when the owning buffer is removed or truncated.
*/

////////////////////////////////////////////////////////////////////////////////

// ErrObjectNotFound is returned when an object is not found.
var ErrObjectNotFound = errors.New("object not found")

// Provider is the interface for a storage provider.
type Provider interface {
	Put(ctx context.Context, id string, data []byte) error
	Get(ctx context.Context, id string) ([]byte, error)
	Delete(ctx context.Context, id string) error
	String() string
}
