package store

import (
	"context"
	"fmt"
	"strings"
)

// SchemaProperty is one observed (kind, property, encoded value) shape from
// the property-index table, grouped by value tag so each property reports
// one representative per value kind.
type SchemaProperty struct {
	Kind  string
	Name  string
	Value []byte
}

// SchemaKinds returns the distinct kinds in the primary table, optionally
// restricted to [startKind, endKind].
func (s *Store) SchemaKinds(ctx context.Context, prefix, startKind, endKind string) ([]string, error) {
	where, args := kindRange(startKind, endKind)
	rows, err := s.Query(ctx,
		fmt.Sprintf(`SELECT kind FROM %s_entities %s GROUP BY kind ORDER BY kind`, prefix, where),
		args...)
	if err != nil {
		return nil, fmt.Errorf("schema kinds: %w", err)
	}
	defer rows.Close()

	var kinds []string
	for rows.Next() {
		var kind string
		if err := rows.Scan(&kind); err != nil {
			return nil, fmt.Errorf("scan kind: %w", err)
		}
		kinds = append(kinds, kind)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate kinds: %w", err)
	}
	return kinds, nil
}

// SchemaProperties returns one representative encoded value per
// (kind, property, value tag) triple, ordered by kind then property name.
func (s *Store) SchemaProperties(ctx context.Context, prefix, startKind, endKind string) ([]SchemaProperty, error) {
	where, args := kindRange(startKind, endKind)
	rows, err := s.Query(ctx,
		fmt.Sprintf(`SELECT kind, name, value FROM %s_props %s
			GROUP BY kind, name, substr(value, 1, 1) ORDER BY kind, name`, prefix, where),
		args...)
	if err != nil {
		return nil, fmt.Errorf("schema properties: %w", err)
	}
	defer rows.Close()

	var props []SchemaProperty
	for rows.Next() {
		var p SchemaProperty
		if err := rows.Scan(&p.Kind, &p.Name, &p.Value); err != nil {
			return nil, fmt.Errorf("scan property: %w", err)
		}
		props = append(props, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate properties: %w", err)
	}
	return props, nil
}

func kindRange(startKind, endKind string) (string, []any) {
	var clauses []string
	var args []any
	if startKind != "" {
		clauses = append(clauses, "kind >= ?")
		args = append(args, startKind)
	}
	if endKind != "" {
		clauses = append(clauses, "kind <= ?")
		args = append(args, endKind)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}
