// Package engine implements the datastore operations: entity CRUD,
// queries with resumable cursors, entity-group transactions, id
// allocation, schema discovery and composite index management.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/stratum/internal/dserr"
	"github.com/roach88/stratum/internal/eglock"
	"github.com/roach88/stratum/internal/idalloc"
	"github.com/roach88/stratum/internal/index"
	"github.com/roach88/stratum/internal/store"
)

const (
	// MaxResults caps how many results any single query can return.
	MaxResults = 1000

	// DefaultBatchSize is the cursor batch size when the caller does not
	// ask for a specific count.
	DefaultBatchSize = 20

	// MaxActionsPerTxn caps the actions attachable to one transaction.
	MaxActionsPerTxn = 5

	// DefaultCursorTTL is how long an untouched cursor survives before
	// it is reaped.
	DefaultCursorTTL = time.Hour
)

// Clock abstracts wall time so cursor reaping is testable.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Dispatcher delivers transactional actions after a successful commit.
// Delivery is best effort; failures are logged, never surfaced.
type Dispatcher interface {
	Dispatch(ctx context.Context, actions [][]byte) error
}

// Config carries engine-level settings.
type Config struct {
	// AppID is the application this engine serves. Requests for other
	// apps are rejected unless Trusted is set.
	AppID string

	// RequireIndexes makes last resort queries fail with NeedsIndex
	// unless a servable composite index is registered.
	RequireIndexes bool

	// Trusted allows operating on apps other than AppID.
	Trusted bool

	// BatchSize overrides DefaultBatchSize when positive.
	BatchSize int

	// CursorTTL overrides DefaultCursorTTL when positive.
	CursorTTL time.Duration
}

// Engine is the datastore front end over one Store.
type Engine struct {
	store      *store.Store
	cfg        Config
	log        *slog.Logger
	registry   *index.Registry
	alloc      *idalloc.Allocator
	locks      *eglock.Table
	clock      Clock
	dispatcher Dispatcher

	mu      sync.Mutex
	cursors map[string]*liveCursor
	txns    map[int64]*txState
	nextTxn int64
	history map[string]int
}

// Option configures optional engine collaborators.
type Option func(*Engine)

// WithClock substitutes the wall clock, for tests.
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithDispatcher installs a post-commit action dispatcher.
func WithDispatcher(d Dispatcher) Option {
	return func(e *Engine) { e.dispatcher = d }
}

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// New builds an engine over an opened store and restores any persisted
// composite index definitions.
func New(ctx context.Context, st *store.Store, cfg Config, opts ...Option) (*Engine, error) {
	if cfg.AppID == "" {
		return nil, dserr.New(dserr.CodeBadRequest, "app id is required")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.CursorTTL <= 0 {
		cfg.CursorTTL = DefaultCursorTTL
	}

	e := &Engine{
		store:    st,
		cfg:      cfg,
		log:      slog.Default(),
		registry: index.NewRegistry(),
		alloc:    idalloc.New(st),
		locks:    eglock.NewTable(),
		clock:    systemClock{},
		cursors:  make(map[string]*liveCursor),
		txns:     make(map[int64]*txState),
		history:  make(map[string]int),
	}
	for _, opt := range opts {
		opt(e)
	}

	snapshots, err := st.LoadIndexes(ctx)
	if err != nil {
		return nil, err
	}
	for app, blob := range snapshots {
		if len(blob) == 0 {
			continue
		}
		if err := e.registry.LoadSnapshot(app, blob); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// validateApp checks that a request's app matches the engine's, unless
// the engine is trusted.
func (e *Engine) validateApp(app string) error {
	if app == "" {
		return dserr.New(dserr.CodeBadRequest, "app id is required")
	}
	if !e.cfg.Trusted && app != e.cfg.AppID {
		return dserr.Newf(dserr.CodeBadRequest,
			"app %q does not match %q", app, e.cfg.AppID)
	}
	return nil
}

// Reset drops all stored data and every piece of in-memory state: open
// cursors, live transactions, cached id blocks, locks, indexes and the
// query history.
func (e *Engine) Reset(ctx context.Context) error {
	e.mu.Lock()
	for id, lc := range e.cursors {
		lc.cur.Close()
		delete(e.cursors, id)
	}
	e.txns = make(map[int64]*txState)
	e.history = make(map[string]int)
	e.mu.Unlock()

	e.locks.Clear()
	e.alloc.Reset()
	e.registry.Reset()
	if err := e.store.DropAll(ctx); err != nil {
		return err
	}
	e.log.Info("engine reset")
	return nil
}

// QueryHistory returns a copy of the per-shape query counters recorded
// since startup or the last Reset.
func (e *Engine) QueryHistory() map[string]int {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]int, len(e.history))
	for shape, n := range e.history {
		out[shape] = n
	}
	return out
}

// lockName scopes an entity-group lock to one app and namespace.
func lockName(app, namespace, group string) string {
	return app + "\x00" + namespace + "\x00" + group
}
