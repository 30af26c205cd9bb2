package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/stratum/internal/cursor"
	"github.com/roach88/stratum/internal/dserr"
	"github.com/roach88/stratum/internal/entity"
	"github.com/roach88/stratum/internal/query"
)

// liveCursor is a registered open cursor awaiting Next calls. The app that
// opened the query is recorded so no other app can drain it.
type liveCursor struct {
	app       string
	cur       *cursor.Cursor
	remaining int
	keysOnly  bool
	lastUsed  time.Time
}

// QueryResult is the engine's answer to RunQuery and Next.
type QueryResult struct {
	// Cursor is the handle to fetch further batches with Next. Empty
	// once the query is exhausted.
	Cursor string
	// Compiled is the resumable position marker for the last delivered
	// result, usable as a StartCursor or EndCursor in a later query.
	Compiled string
	// Results holds this batch; RunQuery delivers the first batch itself.
	// Keys-only queries carry bare keys.
	Results []entity.Entity
	// More reports whether another Next call can return results.
	More bool
	// Skipped is how many results the query offset discarded.
	Skipped int
}

// RunQuery plans and executes a query, registers a cursor for it, applies
// the query offset, and delivers the first batch of results. The batch
// holds the query limit when one is set, the default batch size otherwise;
// later batches come from Next.
//
// Inside a transaction the query must be an ancestor query; it takes the
// ancestor's entity-group lock and reads committed state.
func (e *Engine) RunQuery(ctx context.Context, txn *Transaction, q query.Query) (*QueryResult, error) {
	cur, plan, err := e.openCursor(ctx, txn, q)
	if err != nil {
		return nil, err
	}

	skipped, err := cur.Skip(q.Offset)
	if err != nil {
		cur.Close()
		return nil, err
	}

	limit := q.Limit
	if limit <= 0 || limit > MaxResults {
		limit = MaxResults
	}
	count := e.cfg.BatchSize
	if q.Limit > 0 {
		count = limit
	}

	id := uuid.NewString()
	now := e.clock.Now()
	lc := &liveCursor{
		app:       q.App,
		cur:       cur,
		remaining: limit,
		keysOnly:  q.KeysOnly,
		lastUsed:  now,
	}
	e.mu.Lock()
	e.reapIdleLocked(now)
	e.cursors[id] = lc
	e.history[queryShape(q, plan.Strategy)]++
	e.mu.Unlock()

	e.log.Debug("query started",
		"strategy", string(plan.Strategy), "kind", q.Kind, "cursor", id)
	out, err := e.fetchBatch(id, lc, count)
	if err != nil {
		return nil, err
	}
	out.Skipped = skipped
	return out, nil
}

// Next fetches the next batch from an open cursor. The app must match the
// one that opened the query. A non-positive count asks for the default
// batch size. The cursor is closed and forgotten once exhausted.
func (e *Engine) Next(ctx context.Context, app, cursorID string, count int) (*QueryResult, error) {
	if err := e.validateApp(app); err != nil {
		return nil, err
	}
	now := e.clock.Now()
	e.mu.Lock()
	lc, ok := e.cursors[cursorID]
	if !ok {
		e.mu.Unlock()
		return nil, dserr.Newf(dserr.CodeNotFound, "no such cursor %s", cursorID)
	}
	lc.lastUsed = now
	e.reapIdleLocked(now)
	e.mu.Unlock()

	if lc.app != app {
		return nil, dserr.Newf(dserr.CodeBadRequest,
			"cursor %s belongs to a different app", cursorID)
	}
	if count <= 0 {
		count = e.cfg.BatchSize
	}
	return e.fetchBatch(cursorID, lc, count)
}

// fetchBatch drains up to count results from a live cursor. The cursor is
// closed and deregistered once exhausted, and on a row error so a broken
// cursor never lingers until the TTL reaper finds it.
func (e *Engine) fetchBatch(cursorID string, lc *liveCursor, count int) (*QueryResult, error) {
	if count > lc.remaining {
		count = lc.remaining
	}

	results := make([]entity.Entity, 0, count)
	exhausted := false
	for len(results) < count {
		res, ok, err := lc.cur.Next()
		if err != nil {
			e.dropCursor(cursorID, lc)
			return nil, err
		}
		if !ok {
			exhausted = true
			break
		}
		if lc.keysOnly {
			results = append(results, entity.Entity{Key: res.Entity.Key})
		} else {
			results = append(results, res.Entity)
		}
	}
	lc.remaining -= len(results)

	out := &QueryResult{
		Cursor:   cursorID,
		Compiled: lc.cur.Marker().Encode(),
		Results:  results,
		More:     !exhausted && lc.remaining > 0,
	}
	if !out.More {
		e.dropCursor(cursorID, lc)
		out.Cursor = ""
	}
	return out, nil
}

func (e *Engine) dropCursor(cursorID string, lc *liveCursor) {
	lc.cur.Close()
	e.mu.Lock()
	delete(e.cursors, cursorID)
	e.mu.Unlock()
}

// Count plans and executes a query and counts its raw index rows, capped
// at MaxResults. Multi-valued properties count once per matching value.
func (e *Engine) Count(ctx context.Context, txn *Transaction, q query.Query) (int64, error) {
	cur, plan, err := e.openCursor(ctx, txn, q)
	if err != nil {
		return 0, err
	}
	defer cur.Close()

	e.mu.Lock()
	e.history[queryShape(q, plan.Strategy)]++
	e.mu.Unlock()

	limit := q.Limit
	if limit <= 0 || limit > MaxResults {
		limit = MaxResults
	}
	var n int64
	for n < int64(limit) {
		ok, err := cur.NextRow()
		if err != nil {
			return 0, err
		}
		if !ok {
			break
		}
		n++
	}
	return n, nil
}

// openCursor validates transaction constraints, plans the query, runs
// the SQL and wires up start and end cursors.
func (e *Engine) openCursor(ctx context.Context, txn *Transaction, q query.Query) (*cursor.Cursor, *query.Plan, error) {
	if err := e.validateApp(q.App); err != nil {
		return nil, nil, err
	}
	if txn != nil {
		st, err := e.txnState(txn)
		if err != nil {
			return nil, nil, err
		}
		if q.Ancestor == nil {
			return nil, nil, dserr.New(dserr.CodeBadRequest,
				"queries inside transactions must have an ancestor")
		}
		if err := e.lockTxnGroup(st, q.Namespace, *q.Ancestor); err != nil {
			return nil, nil, err
		}
	}

	prefix, err := e.store.EnsureNamespace(ctx, q.App, q.Namespace)
	if err != nil {
		return nil, nil, err
	}
	planner := &query.Planner{
		Prefix:         prefix,
		Registry:       e.registry,
		RequireIndexes: e.cfg.RequireIndexes,
	}
	plan, err := planner.Plan(q)
	if err != nil {
		return nil, nil, err
	}

	rows, err := e.store.Query(ctx, plan.SQL, plan.Params...)
	if err != nil {
		return nil, nil, err
	}
	cur := cursor.New(rows, plan.OrderCols, plan.Descending)
	if q.StartCursor != "" {
		mark, err := cursor.ParseMarker(q.StartCursor)
		if err != nil {
			cur.Close()
			return nil, nil, err
		}
		if err := cur.ResumeFrom(mark); err != nil {
			cur.Close()
			return nil, nil, err
		}
	}
	if q.EndCursor != "" {
		mark, err := cursor.ParseMarker(q.EndCursor)
		if err != nil {
			cur.Close()
			return nil, nil, err
		}
		cur.EndAt(mark)
	}
	return cur, plan, nil
}

// reapIdleLocked closes cursors idle past the TTL. Caller holds e.mu.
func (e *Engine) reapIdleLocked(now time.Time) {
	for id, lc := range e.cursors {
		if now.Sub(lc.lastUsed) > e.cfg.CursorTTL {
			lc.cur.Close()
			delete(e.cursors, id)
			e.log.Debug("cursor reaped", "cursor", id)
		}
	}
}

// queryShape fingerprints a query's structure, ignoring filter values,
// for the query history counters.
func queryShape(q query.Query, strategy query.Strategy) string {
	var sb strings.Builder
	sb.WriteString(string(strategy))
	sb.WriteString(" kind=")
	sb.WriteString(q.Kind)
	if q.Ancestor != nil {
		sb.WriteString(" ancestor")
	}
	for _, f := range q.Filters {
		fmt.Fprintf(&sb, " filter:%s%s", f.Property, f.Op)
	}
	for _, o := range q.Orders {
		fmt.Fprintf(&sb, " order:%s", o.Property)
		if o.Direction == query.Descending {
			sb.WriteString("-desc")
		}
	}
	return sb.String()
}
