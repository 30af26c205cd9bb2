package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// namespaceSet is the process-scoped cache of provisioned namespaces,
// guarded by its own narrow lock so namespace lookups never serialize
// behind unrelated statements.
type namespaceSet struct {
	mu    sync.Mutex
	known map[[2]string]string // (app, namespace) -> table prefix
}

func (n *namespaceSet) clear() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.known = nil
}

// namespaceDDL provisions the namespace's primary and property-index
// tables. Every statement is idempotent: concurrent first-touch from
// multiple callers must not fail fatally.
var namespaceDDL = []string{
	`CREATE TABLE IF NOT EXISTS %[1]s_entities (
		path   BLOB NOT NULL PRIMARY KEY,
		kind   TEXT NOT NULL,
		entity BLOB NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS %[1]s_props (
		kind        TEXT NOT NULL,
		name        TEXT NOT NULL,
		value       BLOB,
		path        BLOB NOT NULL,
		fingerprint TEXT NOT NULL PRIMARY KEY
	)`,
	`CREATE INDEX IF NOT EXISTS %[1]s_props_value ON %[1]s_props (value)`,
	`CREATE INDEX IF NOT EXISTS %[1]s_props_kind_name ON %[1]s_props (kind, name)`,
	`CREATE INDEX IF NOT EXISTS %[1]s_props_path ON %[1]s_props (path)`,
}

// EnsureNamespace returns the table prefix for (app, namespace),
// provisioning the namespace's tables on first touch. Subsequent calls are
// pure cache lookups.
func (s *Store) EnsureNamespace(ctx context.Context, app, namespace string) (string, error) {
	key := [2]string{app, namespace}

	s.namespaces.mu.Lock()
	defer s.namespaces.mu.Unlock()
	if prefix, ok := s.namespaces.known[key]; ok {
		return prefix, nil
	}

	prefix := TablePrefix(app, namespace)
	if err := s.provisionNamespace(ctx, prefix, app, namespace); err != nil {
		return "", err
	}
	if s.namespaces.known == nil {
		s.namespaces.known = make(map[[2]string]string)
	}
	s.namespaces.known[key] = prefix
	return prefix, nil
}

func (s *Store) provisionNamespace(ctx context.Context, prefix, app, namespace string) error {
	for _, stmt := range namespaceDDL {
		if _, err := s.exec(ctx, fmt.Sprintf(stmt, prefix)); err != nil {
			// Duplicate-create from a concurrent first-touch is tolerated.
			if isAlreadyExists(err) {
				slog.Warn("namespace table already exists", "prefix", prefix, "err", err)
				continue
			}
			return fmt.Errorf("provision namespace %s: %w", prefix, err)
		}
	}

	registration := []struct {
		stmt string
		args []any
	}{
		{`INSERT OR IGNORE INTO apps (app_id) VALUES (?)`, []any{app}},
		{`INSERT OR IGNORE INTO namespaces (app_id, name_space) VALUES (?, ?)`, []any{app, namespace}},
		{`INSERT OR IGNORE INTO id_seq (prefix, next_id) VALUES (?, 1)`, []any{prefix}},
	}
	for _, reg := range registration {
		if _, err := s.exec(ctx, reg.stmt, reg.args...); err != nil {
			return fmt.Errorf("register namespace %s: %w", prefix, err)
		}
	}
	return nil
}

// loadNamespaces primes the namespace cache from the namespaces table so a
// reopened store skips provisioning for known namespaces.
func (s *Store) loadNamespaces(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT app_id, name_space FROM namespaces`)
	if err != nil {
		return fmt.Errorf("load namespaces: %w", err)
	}
	defer rows.Close()

	s.namespaces.mu.Lock()
	defer s.namespaces.mu.Unlock()
	for rows.Next() {
		var app, namespace string
		if err := rows.Scan(&app, &namespace); err != nil {
			return fmt.Errorf("scan namespace: %w", err)
		}
		if s.namespaces.known == nil {
			s.namespaces.known = make(map[[2]string]string)
		}
		s.namespaces.known[[2]string{app, namespace}] = TablePrefix(app, namespace)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate namespaces: %w", err)
	}
	return nil
}

// TablePrefix derives the deterministic table prefix for an app/namespace
// pair, stripping characters that are not valid in table names.
func TablePrefix(app, namespace string) string {
	raw := app + "_" + namespace
	var b strings.Builder
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isAlreadyExists(err error) bool {
	return err != nil && strings.Contains(err.Error(), "already exists")
}
