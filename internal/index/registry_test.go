package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stratum/internal/dserr"
)

func bookIndex(app string, state State) Definition {
	return Definition{
		App:      app,
		Kind:     "Book",
		Ancestor: true,
		Properties: []SortProperty{
			{Name: "author"},
			{Name: "published", Descending: true},
		},
		State: state,
	}
}

func TestCreateAssignsIDs(t *testing.T) {
	r := NewRegistry()

	id1, err := r.Create(bookIndex("app", ""))
	require.NoError(t, err)
	assert.Equal(t, int64(1), id1)

	other := bookIndex("app", "")
	other.Kind = "Author"
	id2, err := r.Create(other)
	require.NoError(t, err)
	assert.Equal(t, int64(2), id2)

	defs := r.ByApp("app")
	require.Len(t, defs, 2)
	assert.Equal(t, StateWriteOnly, defs[0].State)
}

func TestCreateRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	_, err := r.Create(bookIndex("app", ""))
	require.NoError(t, err)

	_, err = r.Create(bookIndex("app", ""))
	assert.True(t, dserr.IsBadRequest(err))

	// Same shape under a different app is distinct.
	_, err = r.Create(bookIndex("other", ""))
	assert.NoError(t, err)
}

func TestCreateRejectsPresetID(t *testing.T) {
	r := NewRegistry()
	def := bookIndex("app", "")
	def.ID = 7
	_, err := r.Create(def)
	assert.True(t, dserr.IsBadRequest(err))
}

func TestUpdateTransitions(t *testing.T) {
	tests := []struct {
		from, to State
		ok       bool
	}{
		{StateWriteOnly, StateReadWrite, true},
		{StateWriteOnly, StateDeleted, true},
		{StateWriteOnly, StateError, true},
		{StateReadWrite, StateDeleted, true},
		{StateReadWrite, StateWriteOnly, false},
		{StateReadWrite, StateError, false},
		{StateError, StateDeleted, true},
		{StateError, StateReadWrite, false},
		{StateDeleted, StateError, true},
		{StateDeleted, StateReadWrite, false},
		{StateReadWrite, StateReadWrite, true},
	}
	for _, tc := range tests {
		t.Run(string(tc.from)+"_to_"+string(tc.to), func(t *testing.T) {
			r := NewRegistry()
			_, err := r.Create(bookIndex("app", tc.from))
			require.NoError(t, err)

			err = r.Update(bookIndex("app", tc.to))
			if tc.ok {
				require.NoError(t, err)
				assert.Equal(t, tc.to, r.ByApp("app")[0].State)
			} else {
				assert.True(t, dserr.IsBadRequest(err))
			}
		})
	}
}

func TestUpdateMissingIndex(t *testing.T) {
	r := NewRegistry()
	err := r.Update(bookIndex("app", StateReadWrite))
	assert.True(t, dserr.IsBadRequest(err))
}

func TestDelete(t *testing.T) {
	r := NewRegistry()
	_, err := r.Create(bookIndex("app", ""))
	require.NoError(t, err)

	require.NoError(t, r.Delete(bookIndex("app", "")))
	assert.Empty(t, r.ByApp("app"))

	err = r.Delete(bookIndex("app", ""))
	assert.True(t, dserr.IsBadRequest(err))
}

func TestFindForQuery(t *testing.T) {
	r := NewRegistry()
	_, err := r.Create(Definition{
		App:  "app",
		Kind: "Book",
		Properties: []SortProperty{
			{Name: "author"},
			{Name: "genre"},
			{Name: "published", Descending: true},
		},
		State: StateReadWrite,
	})
	require.NoError(t, err)

	// Equality prefix matches in any order.
	def := r.FindForQuery("app", "Book", false,
		[]string{"genre", "author"},
		[]SortProperty{{Name: "published", Descending: true}})
	require.NotNil(t, def)
	assert.Equal(t, int64(1), def.ID)

	// Wrong sort direction does not match.
	assert.Nil(t, r.FindForQuery("app", "Book", false,
		[]string{"genre", "author"},
		[]SortProperty{{Name: "published"}}))

	// Ancestor flag must match.
	assert.Nil(t, r.FindForQuery("app", "Book", true,
		[]string{"genre", "author"},
		[]SortProperty{{Name: "published", Descending: true}}))
}

func TestFindForQuerySkipsUnservable(t *testing.T) {
	r := NewRegistry()
	_, err := r.Create(Definition{
		App:        "app",
		Kind:       "Book",
		Properties: []SortProperty{{Name: "author"}},
		State:      StateWriteOnly,
	})
	require.NoError(t, err)

	assert.Nil(t, r.FindForQuery("app", "Book", false, nil,
		[]SortProperty{{Name: "author"}}))

	require.NoError(t, r.Update(Definition{
		App:        "app",
		Kind:       "Book",
		Properties: []SortProperty{{Name: "author"}},
		State:      StateReadWrite,
	}))
	assert.NotNil(t, r.FindForQuery("app", "Book", false, nil,
		[]SortProperty{{Name: "author"}}))
}

func TestSnapshotRoundTrip(t *testing.T) {
	r := NewRegistry()
	_, err := r.Create(bookIndex("app", StateReadWrite))
	require.NoError(t, err)

	blob, err := r.Snapshot("app")
	require.NoError(t, err)

	restored := NewRegistry()
	require.NoError(t, restored.LoadSnapshot("app", blob))
	assert.Equal(t, r.ByApp("app"), restored.ByApp("app"))
}

func TestReset(t *testing.T) {
	r := NewRegistry()
	_, err := r.Create(bookIndex("app", ""))
	require.NoError(t, err)

	r.Reset()
	assert.Empty(t, r.ByApp("app"))
	assert.Empty(t, r.Apps())
}
