// Package idalloc issues unique entity ids from block-cached ranges,
// refilled from the durable per-prefix counter in chunks to amortize
// counter contention.
package idalloc

import (
	"context"
	"sync"

	"github.com/roach88/stratum/internal/store"
)

// minBlock is the smallest chunk taken from the durable counter per refill.
const minBlock = 1000

type block struct {
	next      int64
	remaining int64
}

// Allocator hands out contiguous id ranges per table prefix. A single
// allocator-wide lock serializes access; simple and sufficient at the
// expected concurrency scale.
type Allocator struct {
	mu     sync.Mutex
	store  *store.Store
	blocks map[string]block
}

// New creates an Allocator backed by the store's durable id_seq counter.
func New(st *store.Store) *Allocator {
	return &Allocator{store: st, blocks: make(map[string]block)}
}

// Allocate returns the start of a contiguous range of count ids unique for
// the prefix, strictly increasing across calls. When the cached block
// cannot cover the request, the durable counter advances by
// max(minBlock, count) and the cache is reset from the fresh block.
func (a *Allocator) Allocate(ctx context.Context, prefix string, count int64) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	b := a.blocks[prefix]
	if b.remaining < count {
		size := count
		if size < minBlock {
			size = minBlock
		}
		start, err := a.store.AllocateBlock(ctx, prefix, size)
		if err != nil {
			return 0, err
		}
		b = block{next: start, remaining: size}
	}

	start := b.next
	b.next += count
	b.remaining -= count
	a.blocks[prefix] = b
	return start, nil
}

// Reset discards all cached blocks. Ids already handed out stay burned;
// the durable counter is not rewound.
func (a *Allocator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.blocks = make(map[string]block)
}
