package engine

import (
	"context"

	"github.com/roach88/stratum/internal/index"
)

// CreateIndex registers a composite index definition and persists the
// app's index set. New definitions start in the write-only state.
func (e *Engine) CreateIndex(ctx context.Context, def index.Definition) (int64, error) {
	if err := e.validateApp(def.App); err != nil {
		return 0, err
	}
	id, err := e.registry.Create(def)
	if err != nil {
		return 0, err
	}
	if err := e.persistIndexes(ctx, def.App); err != nil {
		return 0, err
	}
	e.log.Info("index created", "app", def.App, "id", id, "index", def.String())
	return id, nil
}

// UpdateIndex moves an index definition to a new lifecycle state.
func (e *Engine) UpdateIndex(ctx context.Context, def index.Definition) error {
	if err := e.validateApp(def.App); err != nil {
		return err
	}
	if err := e.registry.Update(def); err != nil {
		return err
	}
	if err := e.persistIndexes(ctx, def.App); err != nil {
		return err
	}
	e.log.Info("index updated", "app", def.App, "state", string(def.State), "index", def.String())
	return nil
}

// DeleteIndex removes an index definition.
func (e *Engine) DeleteIndex(ctx context.Context, def index.Definition) error {
	if err := e.validateApp(def.App); err != nil {
		return err
	}
	if err := e.registry.Delete(def); err != nil {
		return err
	}
	if err := e.persistIndexes(ctx, def.App); err != nil {
		return err
	}
	e.log.Info("index deleted", "app", def.App, "index", def.String())
	return nil
}

// GetIndices returns an app's composite index definitions.
func (e *Engine) GetIndices(app string) ([]index.Definition, error) {
	if err := e.validateApp(app); err != nil {
		return nil, err
	}
	return e.registry.ByApp(app), nil
}

func (e *Engine) persistIndexes(ctx context.Context, app string) error {
	blob, err := e.registry.Snapshot(app)
	if err != nil {
		return err
	}
	return e.store.SaveIndexes(ctx, app, blob)
}
