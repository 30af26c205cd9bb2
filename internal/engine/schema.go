package engine

import (
	"context"

	"github.com/roach88/stratum/internal/dserr"
	"github.com/roach88/stratum/internal/entity"
	"github.com/roach88/stratum/internal/sortkey"
)

// GetSchema describes the kinds stored in a namespace, optionally
// restricted to [startKind, endKind]. Each kind comes back as a pseudo
// entity whose properties carry zero exemplar values: one per value kind
// observed in the index rows, never real data. Kinds with no indexed
// properties come back with an empty property list.
func (e *Engine) GetSchema(ctx context.Context, app, namespace, startKind, endKind string) ([]entity.Entity, error) {
	if err := e.validateApp(app); err != nil {
		return nil, err
	}
	prefix, err := e.store.EnsureNamespace(ctx, app, namespace)
	if err != nil {
		return nil, err
	}

	kinds, err := e.store.SchemaKinds(ctx, prefix, startKind, endKind)
	if err != nil {
		return nil, err
	}
	props, err := e.store.SchemaProperties(ctx, prefix, startKind, endKind)
	if err != nil {
		return nil, err
	}

	byKind := make(map[string][]entity.Property)
	for _, sp := range props {
		if len(sp.Value) == 0 {
			continue
		}
		rep, ok := sortkey.RepresentativeValue(sp.Value[0])
		if !ok {
			continue
		}
		byKind[sp.Kind] = append(byKind[sp.Kind], entity.Property{
			Name:    sp.Name,
			Value:   rep,
			Indexed: true,
		})
	}

	schema := make([]entity.Entity, 0, len(kinds))
	for _, kind := range kinds {
		schema = append(schema, entity.Entity{
			Key: entity.Key{
				App:       app,
				Namespace: namespace,
				Path:      []entity.PathElement{{Kind: kind, ID: 1}},
			},
			Properties: byKind[kind],
		})
	}
	return schema, nil
}

// AllocateIDs reserves size consecutive ids for a namespace and returns
// the inclusive [start, end] range. Reserved ids are never handed out by
// later automatic key completion.
func (e *Engine) AllocateIDs(ctx context.Context, app, namespace string, size int64) (int64, int64, error) {
	if err := e.validateApp(app); err != nil {
		return 0, 0, err
	}
	if size <= 0 {
		return 0, 0, dserr.New(dserr.CodeBadRequest, "allocation size must be positive")
	}
	prefix, err := e.store.EnsureNamespace(ctx, app, namespace)
	if err != nil {
		return 0, 0, err
	}
	start, err := e.alloc.Allocate(ctx, prefix, size)
	if err != nil {
		return 0, 0, err
	}
	return start, start + size - 1, nil
}
