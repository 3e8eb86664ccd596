// Package storage is the sqlite snippet database: articles, snippets,
// categories, intersections and the navigation rings between snippets.
//
// A Store is single-writer. Readers on other connections see either the
// state before or after a write transaction (WAL mode).
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/avast/retry-go"
	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/deidaraiorek/snippethunt/internal/storage/migrations"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

const (
	timeLayout = "2006-01-02 15:04:05"

	txAttempts = 5
	txDelay    = 50 * time.Millisecond
)

type Store struct {
	db     *sql.DB
	path   string
	logger *zap.Logger

	// maxSnippetLength caps the stored snippet HTML, in characters. Zero
	// disables the cap.
	maxSnippetLength int
}

type Option func(*Store)

// WithMaxSnippetLength caps stored snippet HTML at n characters. Snippets
// that do not fit are dropped after insertion.
func WithMaxSnippetLength(n int) Option {
	return func(s *Store) { s.maxSnippetLength = n }
}

// Open opens (creating if needed) the database at path and applies the
// embedded migrations.
func Open(path string, logger *zap.Logger, opts ...Option) (*Store, error) {
	db, err := OpenSQLite(path, migrations.Files)
	if err != nil {
		return nil, err
	}

	s := &Store{db: db, path: path, logger: logger.Named("storage")}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// OpenSQLite opens a sqlite database in WAL mode with foreign keys enabled
// and brings its schema up to date with the migrations in files.
func OpenSQLite(path string, files fs.FS) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", filepath.ToSlash(path))
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := runMigrations(db, files); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func runMigrations(db *sql.DB, files fs.FS) error {
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	src, err := iofs.New(files, ".")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Path is the database file.
func (s *Store) Path() string { return s.path }

// DB exposes the handle for read-only callers such as the web layer.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error {
	return s.db.Close()
}

// IsBusy reports whether err is a transient sqlite lock error.
func IsBusy(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
	}
	return false
}

// Retry runs fn until it succeeds, fails with an error other than a busy
// database, or runs out of attempts.
func Retry(ctx context.Context, logger *zap.Logger, op string, fn func() error) error {
	return retry.Do(
		fn,
		retry.Context(ctx),
		retry.Attempts(txAttempts),
		retry.Delay(txDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(IsBusy),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn("retrying database operation",
				zap.String("op", op),
				zap.Uint("attempt", n+1),
				zap.Error(err),
			)
		}),
	)
}

// withTx runs fn in a transaction, retrying the whole transaction while the
// database is busy.
func (s *Store) withTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	return Retry(ctx, s.logger, op, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback()

		if err := fn(tx); err != nil {
			return err
		}
		return tx.Commit()
	})
}

func (s *Store) SetMetadata(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO metadata (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)",
		key, value,
	)
	return err
}

// GetMetadata returns ErrNotFound for a missing key.
func (s *Store) GetMetadata(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return value, err
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return formatTime(t)
}

// querier is satisfied by *sql.DB, *sql.Tx and *sql.Conn.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryStrings(ctx context.Context, q querier, query string, args ...any) ([]string, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
