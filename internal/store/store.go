// Package store persists articles and audiofiles in SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/articast/articast/internal/core"
)

const dirPermissions = 0o755

// Store owns the database handle shared by the repositories.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path, enables WAL and
// foreign keys, and applies pending migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		err := os.MkdirAll(dir, dirPermissions)
		if err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	err = db.PingContext(ctx)
	if err != nil {
		closeErr := db.Close()
		if closeErr != nil {
			return nil, fmt.Errorf("failed to ping sqlite database: %w (close: %w)", err, closeErr)
		}

		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	err = runMigrations(db)
	if err != nil {
		closeErr := db.Close()
		if closeErr != nil {
			return nil, fmt.Errorf("%w (close: %w)", err, closeErr)
		}

		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	err := s.db.Close()
	if err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	return nil
}

// Articles returns the article repository backed by this store.
func (s *Store) Articles() core.ArticleRepository {
	return &articleRepository{db: s.db}
}

// Audiofiles returns the audiofile repository backed by this store.
func (s *Store) Audiofiles() core.AudiofileRepository {
	return &audiofileRepository{db: s.db}
}

// isUniqueViolation reports whether err is a SQLite unique constraint
// failure on the named column.
func isUniqueViolation(err error, column string) bool {
	if err == nil {
		return false
	}

	message := err.Error()

	return strings.Contains(message, "UNIQUE constraint failed") &&
		strings.Contains(message, column)
}
