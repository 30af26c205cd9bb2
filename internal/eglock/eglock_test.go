package eglock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stratum/internal/dserr"
)

func TestAcquireRelease(t *testing.T) {
	table := NewTable()

	require.NoError(t, table.Acquire("demo|Author:marktwain", time.Second))
	table.Release("demo|Author:marktwain")
	require.NoError(t, table.Acquire("demo|Author:marktwain", time.Second))
	table.Release("demo|Author:marktwain")
}

func TestAcquire_SecondHolderTimesOut(t *testing.T) {
	table := NewTable()

	require.NoError(t, table.Acquire("demo|g", time.Second))

	err := table.Acquire("demo|g", 20*time.Millisecond)
	require.Error(t, err)
	assert.True(t, dserr.IsContention(err), "timeout must surface as retryable contention")

	table.Release("demo|g")
}

func TestAcquire_IndependentNames(t *testing.T) {
	table := NewTable()

	require.NoError(t, table.Acquire("demo|a", time.Second))
	require.NoError(t, table.Acquire("demo|b", time.Second))
	table.Release("demo|a")
	table.Release("demo|b")
}

// Two goroutines contending for one entity group: the second acquires only
// after the first releases, and they never both hold the lock.
func TestAcquire_MutualExclusion(t *testing.T) {
	table := NewTable()
	require.NoError(t, table.Acquire("demo|g", time.Second))

	acquired := make(chan struct{})
	go func() {
		if err := table.Acquire("demo|g", 5*time.Second); err == nil {
			close(acquired)
		}
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire succeeded while lock held")
	case <-time.After(50 * time.Millisecond):
	}

	table.Release("demo|g")

	select {
	case <-acquired:
	case <-time.After(5 * time.Second):
		t.Fatal("second acquire never completed after release")
	}
	table.Release("demo|g")
}

func TestRelease_UnheldPanics(t *testing.T) {
	table := NewTable()
	assert.Panics(t, func() { table.Release("demo|g") })
}
