// Package sqlite provides the embedded store for the pipeline.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// Store wraps the embedded SQLite database. It is acquired once per run and
// closed on completion; the pipeline is a single sequential writer.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the database at path, enables foreign key
// enforcement, and applies the schema.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Single sequential writer; a second connection would only contend.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// DB exposes the underlying handle for query consumers.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Path returns the on-disk location of the store.
func (s *Store) Path() string {
	return s.path
}

// Begin starts a batch transaction.
func (s *Store) Begin(ctx context.Context) (*sql.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return tx, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}
	return nil
}
