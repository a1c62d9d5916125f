package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

/*
DirectoryStore stores spilled pages as files in a local directory, typically a
scratch directory on fast local disk.
*/

////////////////////////////////////////////////////////////////////////////////

// DirectoryStore is a provider backed by a local directory.
type DirectoryStore struct {
	root string
}

// NewDirectoryStore creates a new DirectoryStore, creating the root directory
// if it does not exist.
func NewDirectoryStore(root string) (*DirectoryStore, error) {
	if err := os.MkdirAll(root, 0700); err != nil {
		return nil, fmt.Errorf("failed to create spill directory: %w", err)
	}
	return &DirectoryStore{root: root}, nil
}

// Put stores an object in the directory.
func (d *DirectoryStore) Put(_ context.Context, id string, data []byte) error {
	if err := os.WriteFile(filepath.Join(d.root, id), data, 0600); err != nil {
		return fmt.Errorf("write failure: %w", err)
	}
	return nil
}

// Get retrieves an object from the directory.
func (d *DirectoryStore) Get(_ context.Context, id string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(d.root, id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return data, nil
}

// Delete removes an object from the directory. Deleting a missing object is
// not an error.
func (d *DirectoryStore) Delete(_ context.Context, id string) error {
	err := os.Remove(filepath.Join(d.root, id))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("deletion failure: %w", err)
	}
	return nil
}

func (d *DirectoryStore) String() string {
	return fmt.Sprintf("directory(%s)", d.root)
}
