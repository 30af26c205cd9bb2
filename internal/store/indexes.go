package store

import (
	"context"
	"fmt"
)

// SaveIndexes persists an app's serialized composite-index definitions on
// its apps row. The app row exists once any of its namespaces has been
// provisioned; saving for an unknown app registers the row.
func (s *Store) SaveIndexes(ctx context.Context, app string, blob []byte) error {
	if _, err := s.exec(ctx,
		`INSERT OR IGNORE INTO apps (app_id) VALUES (?)`, app); err != nil {
		return fmt.Errorf("save indexes: register app: %w", err)
	}
	if _, err := s.exec(ctx,
		`UPDATE apps SET indexes = ? WHERE app_id = ?`, blob, app); err != nil {
		return fmt.Errorf("save indexes: %w", err)
	}
	return nil
}

// LoadIndexes returns the serialized composite-index definitions for every
// app that has any stored.
func (s *Store) LoadIndexes(ctx context.Context) (map[string][]byte, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT app_id, indexes FROM apps WHERE indexes IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("load indexes: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]byte)
	for rows.Next() {
		var app string
		var blob []byte
		if err := rows.Scan(&app, &blob); err != nil {
			return nil, fmt.Errorf("scan indexes: %w", err)
		}
		out[app] = blob
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate indexes: %w", err)
	}
	return out, nil
}
