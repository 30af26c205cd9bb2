package engine

import (
	"context"

	"github.com/roach88/stratum/internal/dserr"
	"github.com/roach88/stratum/internal/eglock"
	"github.com/roach88/stratum/internal/entity"
	"github.com/roach88/stratum/internal/store"
)

// Transaction is an opaque handle to a live transaction.
type Transaction struct {
	Handle int64
	App    string
}

// pendingOp is a buffered write keyed by entity. A nil put is a delete.
type pendingOp struct {
	namespace string
	path      []byte
	put       *entity.Entity
}

// txState is the engine-side record of one live transaction: the
// entity-group locks it holds, its buffered writes in arrival order
// (later writes to the same entity replace earlier ones), and any
// attached actions.
type txState struct {
	handle  int64
	app     string
	locked  []string
	lockSet map[string]struct{}
	ops     map[string]*pendingOp
	order   []string
	actions [][]byte
}

func (st *txState) stage(namespace string, path []byte, put *entity.Entity) {
	key := namespace + "\x00" + string(path)
	if _, exists := st.ops[key]; !exists {
		st.order = append(st.order, key)
	}
	st.ops[key] = &pendingOp{namespace: namespace, path: path, put: put}
}

// Begin starts a transaction. Only one transaction may be live at a
// time; a second Begin fails with Contention immediately instead of
// waiting for the first to finish.
func (e *Engine) Begin(ctx context.Context, app string) (*Transaction, error) {
	if err := e.validateApp(app); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.txns) > 0 {
		return nil, dserr.New(dserr.CodeContention, "transaction already in progress")
	}
	e.nextTxn++
	handle := e.nextTxn
	e.txns[handle] = &txState{
		handle:  handle,
		app:     app,
		lockSet: make(map[string]struct{}),
		ops:     make(map[string]*pendingOp),
	}
	e.log.Debug("transaction started", "handle", handle)
	return &Transaction{Handle: handle, App: app}, nil
}

// AddActions attaches actions to a transaction for post-commit delivery.
func (e *Engine) AddActions(txn *Transaction, actions [][]byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, err := e.txnStateLocked(txn)
	if err != nil {
		return err
	}
	if len(st.actions)+len(actions) > MaxActionsPerTxn {
		return dserr.Newf(dserr.CodeBadRequest,
			"too many actions per transaction (max %d)", MaxActionsPerTxn)
	}
	st.actions = append(st.actions, actions...)
	return nil
}

// Commit applies a transaction's buffered writes and releases its locks.
// Locks and transaction state are released on every exit path.
func (e *Engine) Commit(ctx context.Context, txn *Transaction) error {
	st, err := e.takeTxn(txn)
	if err != nil {
		return err
	}
	defer e.releaseLocks(st)

	type nsWrites struct {
		puts    []store.EntityRow
		indexes []store.IndexRow
		deletes [][]byte
	}
	byNS := make(map[string]*nsWrites)
	var nsOrder []string
	for _, opKey := range st.order {
		op := st.ops[opKey]
		w := byNS[op.namespace]
		if w == nil {
			w = &nsWrites{}
			byNS[op.namespace] = w
			nsOrder = append(nsOrder, op.namespace)
		}
		if op.put == nil {
			w.deletes = append(w.deletes, op.path)
			continue
		}
		blob, err := entity.Marshal(*op.put)
		if err != nil {
			return err
		}
		w.puts = append(w.puts, store.EntityRow{
			Path: op.path,
			Kind: op.put.Key.Kind(),
			Data: blob,
		})
		rows, err := indexRowsFor(*op.put, op.path)
		if err != nil {
			return err
		}
		w.indexes = append(w.indexes, rows...)
	}

	for _, ns := range nsOrder {
		prefix, err := e.store.EnsureNamespace(ctx, st.app, ns)
		if err != nil {
			return err
		}
		w := byNS[ns]
		if len(w.puts) > 0 {
			if err := e.store.PutEntities(ctx, prefix, w.puts, w.indexes); err != nil {
				return err
			}
		}
		if len(w.deletes) > 0 {
			if err := e.store.DeleteEntities(ctx, prefix, w.deletes); err != nil {
				return err
			}
		}
	}

	e.dispatchActions(ctx, st)
	e.log.Debug("transaction committed", "handle", st.handle, "writes", len(st.order))
	return nil
}

// Rollback discards a transaction's buffered writes and actions.
func (e *Engine) Rollback(txn *Transaction) error {
	st, err := e.takeTxn(txn)
	if err != nil {
		return err
	}
	e.releaseLocks(st)
	e.log.Debug("transaction rolled back", "handle", st.handle)
	return nil
}

// dispatchActions delivers attached actions after commit. Failures are
// logged and swallowed; actions are best effort.
func (e *Engine) dispatchActions(ctx context.Context, st *txState) {
	if e.dispatcher == nil || len(st.actions) == 0 {
		return
	}
	if err := e.dispatcher.Dispatch(ctx, st.actions); err != nil {
		e.log.Warn("action dispatch failed",
			"handle", st.handle, "actions", len(st.actions), "error", err)
	}
}

// takeTxn removes and returns a transaction's state.
func (e *Engine) takeTxn(txn *Transaction) (*txState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, err := e.txnStateLocked(txn)
	if err != nil {
		return nil, err
	}
	delete(e.txns, txn.Handle)
	return st, nil
}

func (e *Engine) txnState(txn *Transaction) (*txState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.txnStateLocked(txn)
}

func (e *Engine) txnStateLocked(txn *Transaction) (*txState, error) {
	if txn == nil {
		return nil, dserr.New(dserr.CodeNotFound, "no such transaction")
	}
	st, ok := e.txns[txn.Handle]
	if !ok {
		return nil, dserr.Newf(dserr.CodeNotFound, "no such transaction %d", txn.Handle)
	}
	return st, nil
}

// lockTxnGroup takes the entity-group lock for a key on behalf of a
// transaction, once per group.
func (e *Engine) lockTxnGroup(st *txState, namespace string, key entity.Key) error {
	name := lockName(st.app, namespace, key.GroupString())
	if _, held := st.lockSet[name]; held {
		return nil
	}
	if err := e.locks.Acquire(name, eglock.DefaultTimeout); err != nil {
		return err
	}
	st.lockSet[name] = struct{}{}
	st.locked = append(st.locked, name)
	return nil
}

func (e *Engine) releaseLocks(st *txState) {
	for _, name := range st.locked {
		e.locks.Release(name)
	}
	st.locked = nil
	st.lockSet = make(map[string]struct{})
}
