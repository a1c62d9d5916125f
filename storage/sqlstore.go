package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
)

/*
SQLStore keeps spilled pages as blobs in a SQL table. It is written against
sqlite but uses only portable statements.
*/

////////////////////////////////////////////////////////////////////////////////

// SQLStore is a provider backed by a database table.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore returns a provider using db, creating the backing table if
// necessary.
func NewSQLStore(ctx context.Context, db *sql.DB) (*SQLStore, error) {
	s := &SQLStore{db: db}
	if err := s.initialize(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// OpenSQLiteStore opens (or creates) a sqlite database at path and returns a
// provider over it.
func OpenSQLiteStore(ctx context.Context, path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return NewSQLStore(ctx, db)
}

func (s *SQLStore) initialize(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
	create table if not exists spill (
		id text primary key,
		data blob not null
	);
	`)
	if err != nil {
		return fmt.Errorf("failed to initialize spill table: %w", err)
	}
	return nil
}

// Put stores an object, replacing any existing object with the same id.
func (s *SQLStore) Put(ctx context.Context, id string, data []byte) error {
	_, err := s.db.ExecContext(ctx,
		`insert or replace into spill (id, data) values ($1, $2)`, id, data)
	if err != nil {
		return fmt.Errorf("failed to store object: %w", err)
	}
	return nil
}

// Get retrieves an object.
func (s *SQLStore) Get(ctx context.Context, id string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `select data from spill where id = $1`, id).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("failed to read object: %w", err)
	}
	return data, nil
}

// Delete removes an object.
func (s *SQLStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `delete from spill where id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) String() string {
	return "sql"
}
