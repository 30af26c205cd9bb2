package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stratum/internal/dserr"
)

func TestKey_Validate(t *testing.T) {
	tests := []struct {
		name    string
		key     Key
		wantErr bool
	}{
		{
			name: "complete name key",
			key:  Key{App: "demo", Path: []PathElement{{Kind: "Author", Name: "marktwain"}}},
		},
		{
			name: "complete id key",
			key:  Key{App: "demo", Path: []PathElement{{Kind: "Book", ID: 42}}},
		},
		{
			name: "incomplete final element is allowed",
			key: Key{App: "demo", Path: []PathElement{
				{Kind: "Author", Name: "marktwain"},
				{Kind: "Book"},
			}},
		},
		{
			name: "both id and name",
			key: Key{App: "demo", Path: []PathElement{
				{Kind: "Book", ID: 1, Name: "tom"},
			}},
			wantErr: true,
		},
		{
			name: "incomplete ancestor element",
			key: Key{App: "demo", Path: []PathElement{
				{Kind: "Author"},
				{Kind: "Book", ID: 1},
			}},
			wantErr: true,
		},
		{
			name:    "missing app",
			key:     Key{Path: []PathElement{{Kind: "Book", ID: 1}}},
			wantErr: true,
		},
		{
			name:    "empty path",
			key:     Key{App: "demo"},
			wantErr: true,
		},
		{
			name: "separator in name",
			key:  Key{App: "demo", Path: []PathElement{{Kind: "Book", Name: "a!b"}}},
			wantErr: true,
		},
		{
			name: "separator in kind",
			key:  Key{App: "demo", Path: []PathElement{{Kind: "Bo:ok", ID: 1}}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.key.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dserr.IsBadRequest(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestKey_KindAndGroup(t *testing.T) {
	k := Key{App: "demo", Path: []PathElement{
		{Kind: "Author", Name: "marktwain"},
		{Kind: "Book", ID: 7},
	}}

	assert.Equal(t, "Book", k.Kind())
	assert.Equal(t, PathElement{Kind: "Author", Name: "marktwain"}, k.Root())
	assert.Equal(t, "Author:marktwain", k.GroupString())
	assert.Equal(t, "Author:marktwain/Book:7", k.String())
	assert.False(t, k.Incomplete())
}

func TestKey_Incomplete(t *testing.T) {
	k := Key{App: "demo", Path: []PathElement{{Kind: "Book"}}}
	assert.True(t, k.Incomplete())
}
