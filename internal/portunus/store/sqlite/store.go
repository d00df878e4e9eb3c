// Package sqlite is the SQLite-backed Store. Reads go straight to the
// pool; every write goes through the single-writer db.Worker.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sirupsen/logrus"

	dbpkg "github.com/BrandonDHaskell/Portunus/biometric/internal/db"
	"github.com/BrandonDHaskell/Portunus/biometric/internal/portunus/store"
)

type Store struct {
	db     *sql.DB
	writer *dbpkg.Worker
	owned  bool
}

// New wraps an open, migrated database. The caller keeps ownership of
// db and writer.
func New(db *sql.DB, writer *dbpkg.Worker) *Store {
	return &Store{db: db, writer: writer}
}

// Open opens the database at path, migrates it and starts a writer. Close
// releases both.
func Open(ctx context.Context, path string, logger logrus.FieldLogger) (*Store, error) {
	conn, err := dbpkg.Open(ctx, dbpkg.Config{Path: path, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", store.ErrUnavailable, err)
	}
	return &Store{db: conn, writer: dbpkg.NewWorker(conn), owned: true}, nil
}

// DB exposes the underlying handle for seeding and tests.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	s.writer.Close()
	return s.db.Close()
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, store.ErrUnavailable, err)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ store.Store = (*Store)(nil)
