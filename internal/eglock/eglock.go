// Package eglock provides named mutual-exclusion locks with a bounded
// acquire timeout. The engine keys them by app and entity group to get
// single-writer-per-entity-group semantics; SQLite has no named advisory
// locks, so the table lives in process memory with the same
// acquire-with-timeout/release-on-exit contract.
package eglock

import (
	"sync"
	"time"

	"github.com/roach88/stratum/internal/dserr"
)

// DefaultTimeout bounds how long Acquire waits before reporting contention.
const DefaultTimeout = 30 * time.Second

// Table is a process-scoped set of named locks.
type Table struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

// NewTable creates an empty lock table.
func NewTable() *Table {
	return &Table{locks: make(map[string]chan struct{})}
}

// Acquire takes the named lock, waiting up to timeout. On timeout it
// returns a retryable Contention error; the caller must not proceed.
func (t *Table) Acquire(name string, timeout time.Duration) error {
	ch := t.lock(name)

	select {
	case ch <- struct{}{}:
		return nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case ch <- struct{}{}:
		return nil
	case <-timer.C:
		return dserr.Newf(dserr.CodeContention,
			"timed out after %s waiting for lock %q", timeout, name)
	}
}

// Release frees the named lock. Releasing a lock that is not held panics;
// that is a caller bug, not a runtime condition.
func (t *Table) Release(name string) {
	ch := t.lock(name)
	select {
	case <-ch:
	default:
		panic("eglock: release of unheld lock " + name)
	}
}

// Clear drops all lock entries. Only safe when no locks are held; used by
// the engine's Reset.
func (t *Table) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.locks = make(map[string]chan struct{})
}

func (t *Table) lock(name string) chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch, ok := t.locks[name]
	if !ok {
		ch = make(chan struct{}, 1)
		t.locks[name] = ch
	}
	return ch
}
