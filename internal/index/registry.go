package index

import (
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/roach88/stratum/internal/dserr"
)

// Registry holds the composite index definitions for every app. It is
// safe for concurrent use; persistence is the caller's concern via
// Snapshot and LoadSnapshot.
type Registry struct {
	mu    sync.Mutex
	byApp map[string][]*Definition
}

func NewRegistry() *Registry {
	return &Registry{byApp: make(map[string][]*Definition)}
}

// Create registers a new definition and returns its assigned id. The
// incoming definition must carry id 0; duplicates of an existing
// definition are rejected.
func (r *Registry) Create(def Definition) (int64, error) {
	if def.ID != 0 {
		return 0, dserr.New(dserr.CodeBadRequest, "new index id must be 0")
	}
	if def.Kind == "" {
		return 0, dserr.New(dserr.CodeBadRequest, "index kind is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var maxID int64
	for _, existing := range r.byApp[def.App] {
		if existing.SameDefinition(def) {
			return 0, dserr.New(dserr.CodeBadRequest, "index already exists")
		}
		if existing.ID > maxID {
			maxID = existing.ID
		}
	}
	def.ID = maxID + 1
	if def.State == "" {
		def.State = StateWriteOnly
	}
	r.byApp[def.App] = append(r.byApp[def.App], &def)
	return def.ID, nil
}

// Update moves an existing definition to a new state. The definition is
// matched structurally, not by id, and the transition must be legal.
func (r *Registry) Update(def Definition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing := r.findLocked(def)
	if existing == nil {
		return dserr.New(dserr.CodeBadRequest, "index does not exist")
	}
	if !CanTransition(existing.State, def.State) {
		return dserr.Newf(dserr.CodeBadRequest,
			"cannot move index from state %s to %s", existing.State, def.State)
	}
	existing.State = def.State
	return nil
}

// Delete removes a definition from the registry.
func (r *Registry) Delete(def Definition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	defs := r.byApp[def.App]
	for i, existing := range defs {
		if existing.SameDefinition(def) {
			r.byApp[def.App] = append(defs[:i], defs[i+1:]...)
			return nil
		}
	}
	return dserr.New(dserr.CodeBadRequest, "index does not exist")
}

// ByApp returns copies of every definition registered for an app.
func (r *Registry) ByApp(app string) []Definition {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Definition, 0, len(r.byApp[app]))
	for _, def := range r.byApp[app] {
		out = append(out, *def)
	}
	return out
}

// FindForQuery looks for a servable definition matching a query shape:
// the kind and ancestor flag must match exactly, the index's leading
// properties must cover the equality set in any order, and the remainder
// must equal the sort properties in order.
func (r *Registry) FindForQuery(app, kind string, ancestor bool, equalities []string, orders []SortProperty) *Definition {
	r.mu.Lock()
	defer r.mu.Unlock()

	eq := make(map[string]bool, len(equalities))
	for _, name := range equalities {
		eq[name] = true
	}
	for _, def := range r.byApp[app] {
		if def.Kind != kind || def.Ancestor != ancestor || def.State != StateReadWrite {
			continue
		}
		if len(def.Properties) != len(eq)+len(orders) {
			continue
		}
		prefix := def.Properties[:len(eq)]
		covered := true
		for _, p := range prefix {
			if !eq[p.Name] {
				covered = false
				break
			}
		}
		if !covered {
			continue
		}
		rest := def.Properties[len(eq):]
		match := true
		for i, p := range rest {
			if p != orders[i] {
				match = false
				break
			}
		}
		if match {
			return def
		}
	}
	return nil
}

// Reset drops every definition for every app.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byApp = make(map[string][]*Definition)
}

// Apps returns every app with at least one definition.
func (r *Registry) Apps() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	apps := make([]string, 0, len(r.byApp))
	for app := range r.byApp {
		apps = append(apps, app)
	}
	return apps
}

// Snapshot serializes an app's definitions for persistence.
func (r *Registry) Snapshot(app string) ([]byte, error) {
	defs := r.ByApp(app)
	blob, err := msgpack.Marshal(defs)
	if err != nil {
		return nil, dserr.Newf(dserr.CodeInternal, "encoding indexes for %s: %v", app, err)
	}
	return blob, nil
}

// LoadSnapshot replaces an app's definitions with a persisted snapshot.
func (r *Registry) LoadSnapshot(app string, blob []byte) error {
	var defs []Definition
	if err := msgpack.Unmarshal(blob, &defs); err != nil {
		return dserr.Newf(dserr.CodeInternal, "decoding indexes for %s: %v", app, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	loaded := make([]*Definition, len(defs))
	for i := range defs {
		loaded[i] = &defs[i]
	}
	r.byApp[app] = loaded
	return nil
}

func (r *Registry) findLocked(def Definition) *Definition {
	for _, existing := range r.byApp[def.App] {
		if existing.SameDefinition(def) {
			return existing
		}
	}
	return nil
}
