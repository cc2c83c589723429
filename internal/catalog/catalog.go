// Package catalog is the transactional artifact store: rules, commands,
// skills, settings, and the three append-only log tables, backed by
// modernc.org/sqlite (pure Go, no cgo), per spec §4.3.
package catalog

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/mkern/rulesync/internal/rserr"
)

// Store wraps the sqlite connection. All mutating operations acquire mu,
// matching spec §4.3's "single exclusive lock on the connection" rule —
// real filesystem/DB work is still dispatched by callers onto a worker
// goroutine so the caller's event loop is never blocked (spec §5).
type Store struct {
	mu       sync.Mutex
	db       *sql.DB
	poisoned bool
}

// Open opens or creates a SQLite database at path, running every pending
// migration. If the existing database has an incompatible schema, it is
// deleted and recreated — mirroring the teacher's db.Open fallback.
func Open(path string) (*Store, error) {
	store, err := openDB(path)
	if err != nil {
		msg := err.Error()
		if strings.Contains(msg, "no such column") || strings.Contains(msg, "no such table") || strings.Contains(msg, "SQL logic error") {
			if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
				return nil, rserr.Wrapf(rserr.KindIo, rmErr, "remove incompatible catalog: %v", rmErr)
			}
			os.Remove(path + "-wal")
			os.Remove(path + "-shm")
			return openDB(path)
		}
		return nil, err
	}
	return store, nil
}

func openDB(path string) (*Store, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, rserr.Wrapf(rserr.KindIo, err, "create catalog directory: %v", err)
		}
	}

	escaped := strings.ReplaceAll(path, " ", "%20")
	connStr := "file:" + escaped + "?_pragma=busy_timeout(5000)"
	if path == ":memory:" {
		connStr = path
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, rserr.Wrapf(rserr.KindDatabase, err, "open catalog: %v", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil && path != ":memory:" {
		db.Close()
		return nil, rserr.Wrapf(rserr.KindDatabase, err, "enable WAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, rserr.Wrapf(rserr.KindDatabase, err, "enable foreign keys: %v", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, rserr.Wrapf(rserr.KindDatabase, err, "migrate catalog: %v", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying connection, for callers (migration backups)
// that need raw file-level access.
func (s *Store) DB() *sql.DB { return s.db }

// lock acquires the store's exclusive lock, surfacing DatabasePoisoned if a
// previous operation left the store unusable.
func (s *Store) lock() error {
	s.mu.Lock()
	if s.poisoned {
		s.mu.Unlock()
		return rserr.New(rserr.KindDatabasePoisoned, "catalog lock poisoned, restart required")
	}
	return nil
}

func (s *Store) unlock() { s.mu.Unlock() }

// withTx runs fn inside a transaction under the store's exclusive lock.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return rserr.Wrapf(rserr.KindDatabase, err, "begin transaction: %v", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return rserr.Wrapf(rserr.KindDatabase, err, "commit transaction: %v", err)
	}
	return nil
}

// withConn runs fn against the raw connection under the store's exclusive
// lock, for read paths that don't need transactional semantics.
func (s *Store) withConn(fn func(db *sql.DB) error) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.unlock()
	return fn(s.db)
}
