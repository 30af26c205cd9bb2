// Package store is the relational backend: it owns the SQLite connection,
// the core schema, lazy per-namespace table provisioning, and all SQL
// executed on behalf of the entity store and query planner.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// statements slower than this are logged at Info instead of Debug.
const slowStatement = 10 * time.Millisecond

// Store provides durable storage for the datastore engine.
// Uses SQLite with WAL mode for concurrent read access.
type Store struct {
	db *sql.DB

	namespaces namespaceSet
}

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and the core schema automatically.
//
// The database is configured with:
//   - WAL mode, so open query cursors do not block writers
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//
// This function is idempotent - safe to call multiple times.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to execute schema: %w", err)
	}

	s := &Store{db: db}
	if err := s.loadNamespaces(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Query executes a query and returns the resulting rows. Used by the engine
// to run planned query SQL; callers are responsible for closing the rows.
func (s *Store) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	start := time.Now()
	rows, err := s.db.QueryContext(ctx, query, args...)
	logStatement(query, start, err)
	return rows, err
}

// exec runs a statement with timing, logging slow statements.
func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	start := time.Now()
	res, err := s.db.ExecContext(ctx, query, args...)
	logStatement(query, start, err)
	return res, err
}

func logStatement(query string, start time.Time, err error) {
	elapsed := time.Since(start)
	level := slog.LevelDebug
	if elapsed > slowStatement {
		level = slog.LevelInfo
	}
	slog.Log(context.Background(), level, "sql statement",
		"query", query,
		"elapsed", elapsed,
		"err", err)
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// DropAll removes every table and reapplies the core schema. Used by the
// engine's Reset operation.
func (s *Store) DropAll(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'`)
	if err != nil {
		return fmt.Errorf("list tables: %w", err)
	}
	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return fmt.Errorf("scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("iterate tables: %w", err)
	}
	rows.Close()

	for _, table := range tables {
		if _, err := s.exec(ctx, fmt.Sprintf("DROP TABLE %q", table)); err != nil {
			return fmt.Errorf("drop table %s: %w", table, err)
		}
	}

	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("reapply schema: %w", err)
	}

	s.namespaces.clear()
	return nil
}
