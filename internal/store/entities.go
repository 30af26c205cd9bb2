package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// EntityRow is one primary-table row ready for storage: the encoded path,
// the entity's kind tag, and the serialized entity blob.
type EntityRow struct {
	Path []byte
	Kind string
	Data []byte
}

// IndexRow is one property-index row: one per (entity, indexed property,
// value occurrence). The fingerprint deduplicates exact repeats.
type IndexRow struct {
	Kind        string
	Name        string
	Value       []byte
	Path        []byte
	Fingerprint string
}

// PutEntities replaces the given entities within a single SQL transaction:
// stale index rows are deleted, primary rows replaced, and fresh index rows
// inserted. The batch either fully succeeds or fails atomically.
func (s *Store) PutEntities(ctx context.Context, prefix string, entities []EntityRow, indexRows []IndexRow) error {
	if len(entities) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("put entities: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	paths := make([][]byte, len(entities))
	for i, e := range entities {
		paths[i] = e.Path
	}
	if err := deleteRows(ctx, tx, prefix+"_props", paths); err != nil {
		return fmt.Errorf("put entities: clear index rows: %w", err)
	}

	for _, e := range entities {
		_, err := tx.ExecContext(ctx,
			fmt.Sprintf(`INSERT OR REPLACE INTO %s_entities (path, kind, entity) VALUES (?, ?, ?)`, prefix),
			e.Path, e.Kind, e.Data)
		if err != nil {
			return fmt.Errorf("put entities: replace primary row: %w", err)
		}
	}

	for _, r := range indexRows {
		_, err := tx.ExecContext(ctx,
			fmt.Sprintf(`INSERT OR IGNORE INTO %s_props (kind, name, value, path, fingerprint)
				VALUES (?, ?, ?, ?, ?)`, prefix),
			r.Kind, r.Name, r.Value, r.Path, r.Fingerprint)
		if err != nil {
			return fmt.Errorf("put entities: insert index row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("put entities: commit: %w", err)
	}
	return nil
}

// GetEntity fetches the serialized entity stored under the encoded path.
// Returns (nil, nil) when the path is absent: a missing row is an explicit
// not-found result, not a failure.
func (s *Store) GetEntity(ctx context.Context, prefix string, path []byte) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT entity FROM %s_entities WHERE path = ?`, prefix),
		path).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get entity: %w", err)
	}
	return data, nil
}

// DeleteEntities removes index rows then primary rows for the given paths
// within a single SQL transaction. Deleting an absent path is a no-op.
func (s *Store) DeleteEntities(ctx context.Context, prefix string, paths [][]byte) error {
	if len(paths) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete entities: begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := deleteRows(ctx, tx, prefix+"_props", paths); err != nil {
		return fmt.Errorf("delete entities: index rows: %w", err)
	}
	if err := deleteRows(ctx, tx, prefix+"_entities", paths); err != nil {
		return fmt.Errorf("delete entities: primary rows: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("delete entities: commit: %w", err)
	}
	return nil
}

func deleteRows(ctx context.Context, tx *sql.Tx, table string, paths [][]byte) error {
	args := make([]any, len(paths))
	for i, p := range paths {
		args[i] = p
	}
	stmt := fmt.Sprintf(`DELETE FROM %s WHERE path IN (%s)`, table, paramList(len(paths)))
	_, err := tx.ExecContext(ctx, stmt, args...)
	return err
}

// paramList returns a comma separated list of n placeholders.
func paramList(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
