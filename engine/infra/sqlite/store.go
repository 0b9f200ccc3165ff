package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	// Register modernc SQLite driver with database/sql.
	_ "modernc.org/sqlite"
)

// Store wraps a pooled SQLite handle.
type Store struct {
	db   *sql.DB
	path string
}

// buildDSN assembles the modernc DSN. File databases run in WAL mode with
// foreign keys on and a busy timeout so concurrent CLI invocations line up
// instead of failing; in-memory databases share cache across the pool.
func buildDSN(path string) string {
	if path == ":memory:" {
		return "file::memory:?cache=shared&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)"
	}
	return "file:" + path +
		"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)"
}

// buildReadOnlyDSN opens an immutable database (the bundled node catalog).
func buildReadOnlyDSN(path string) string {
	return "file:" + path + "?mode=ro&_pragma=busy_timeout(5000)&_pragma=query_only(ON)"
}

// NewStore opens (creating if needed) a writable database at path, or an
// in-memory database for ":memory:".
func NewStore(ctx context.Context, path string) (*Store, error) {
	return open(ctx, path, buildDSN(path))
}

// NewReadOnlyStore opens an existing database without write access.
func NewReadOnlyStore(ctx context.Context, path string) (*Store, error) {
	return open(ctx, path, buildReadOnlyDSN(path))
}

func open(ctx context.Context, path, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	// SQLite allows one writer; a small pool avoids lock churn while still
	// letting reads overlap.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping %s: %w", path, err)
	}
	return &Store{db: db, path: path}, nil
}

// DB exposes the underlying handle for repositories.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Path returns the database location the store was opened with.
func (s *Store) Path() string {
	return s.path
}

// Close releases the pool.
func (s *Store) Close(_ context.Context) error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("sqlite: close %s: %w", s.path, err)
	}
	return nil
}

// HasFTS5 probes the connection for FTS5 support by creating and dropping a
// temporary virtual table. Callers cache the result per process.
func (s *Store) HasFTS5(ctx context.Context) bool {
	const probe = `CREATE VIRTUAL TABLE temp.fts5_probe USING fts5(x)`
	if _, err := s.db.ExecContext(ctx, probe); err != nil {
		return false
	}
	_, _ = s.db.ExecContext(ctx, `DROP TABLE temp.fts5_probe`)
	return true
}

// ToJSONText marshals v for storage in a TEXT column.
func ToJSONText(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("sqlite: marshal json text: %w", err)
	}
	return b, nil
}

// FromJSONText unmarshals a TEXT column into v. Empty text is treated as
// absent and leaves v untouched.
func FromJSONText(b []byte, v any) error {
	if len(b) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("sqlite: unmarshal json text: %w", err)
	}
	return nil
}
