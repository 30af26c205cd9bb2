package idalloc

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stratum/internal/store"
)

func newAllocator(t *testing.T) (*Allocator, string) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	prefix, err := st.EnsureNamespace(context.Background(), "demo", "")
	require.NoError(t, err)
	return New(st), prefix
}

func TestAllocate_ServesFromCache(t *testing.T) {
	a, prefix := newAllocator(t)
	ctx := context.Background()

	first, err := a.Allocate(ctx, prefix, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), first)

	// Subsequent small allocations come from the cached block without
	// touching the durable counter again.
	for want := int64(2); want <= 10; want++ {
		got, err := a.Allocate(ctx, prefix, 1)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestAllocate_StrictlyIncreasing(t *testing.T) {
	a, prefix := newAllocator(t)
	ctx := context.Background()

	var last int64
	for i := 0; i < 50; i++ {
		got, err := a.Allocate(ctx, prefix, 7)
		require.NoError(t, err)
		assert.Greater(t, got, last)
		last = got
	}
}

// A request larger than the cached remainder refills from the durable
// counter; the returned range starts above every previously issued id and
// spans exactly the requested size.
func TestAllocate_LargeRequestAfterManySmall(t *testing.T) {
	a, prefix := newAllocator(t)
	ctx := context.Background()

	var highest int64
	for i := 0; i < 1000; i++ {
		got, err := a.Allocate(ctx, prefix, 1)
		require.NoError(t, err)
		highest = got
	}

	start, err := a.Allocate(ctx, prefix, 2000)
	require.NoError(t, err)
	assert.Greater(t, start, highest)

	next, err := a.Allocate(ctx, prefix, 1)
	require.NoError(t, err)
	assert.Equal(t, start+2000, next, "range must span exactly 2000 ids")
}

func TestAllocate_IndependentPrefixes(t *testing.T) {
	a, prefix := newAllocator(t)
	ctx := context.Background()

	st := a.store
	other, err := st.EnsureNamespace(ctx, "demo", "other")
	require.NoError(t, err)

	got1, err := a.Allocate(ctx, prefix, 5)
	require.NoError(t, err)
	got2, err := a.Allocate(ctx, other, 5)
	require.NoError(t, err)

	assert.Equal(t, int64(1), got1)
	assert.Equal(t, int64(1), got2, "prefixes have independent counters")
}

func TestAllocate_MissingPrefixIsInternal(t *testing.T) {
	a, _ := newAllocator(t)

	_, err := a.Allocate(context.Background(), "unprovisioned", 1)
	require.Error(t, err)
}

func TestReset_DiscardsCache(t *testing.T) {
	a, prefix := newAllocator(t)
	ctx := context.Background()

	first, err := a.Allocate(ctx, prefix, 1)
	require.NoError(t, err)

	a.Reset()

	// After reset the next allocation refills; ids from the discarded
	// block are burned, never reissued.
	next, err := a.Allocate(ctx, prefix, 1)
	require.NoError(t, err)
	assert.Greater(t, next, first)
}
