package index

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stratum/internal/dserr"
)

const sampleIndexYAML = `
indexes:
  - kind: Book
    ancestor: true
    properties:
      - name: author
      - name: published
        direction: desc
  - kind: Author
    properties:
      - name: name
        direction: asc
`

func TestParseDefinitions(t *testing.T) {
	defs, err := ParseDefinitions([]byte(sampleIndexYAML), "app")
	require.NoError(t, err)
	require.Len(t, defs, 2)

	assert.Equal(t, Definition{
		App:      "app",
		Kind:     "Book",
		Ancestor: true,
		Properties: []SortProperty{
			{Name: "author"},
			{Name: "published", Descending: true},
		},
	}, defs[0])
	assert.Equal(t, Definition{
		App:        "app",
		Kind:       "Author",
		Properties: []SortProperty{{Name: "name"}},
	}, defs[1])
}

func TestParseDefinitionsRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"not yaml", ":\n  - ["},
		{"missing kind", "indexes:\n  - properties:\n      - name: author\n"},
		{"empty kind", "indexes:\n  - kind: \"\"\n    properties: []\n"},
		{"bad direction", "indexes:\n  - kind: Book\n    properties:\n      - name: author\n        direction: sideways\n"},
		{"empty property name", "indexes:\n  - kind: Book\n    properties:\n      - name: \"\"\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseDefinitions([]byte(tc.yaml), "app")
			assert.True(t, dserr.IsBadRequest(err), "got %v", err)
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleIndexYAML), 0o644))

	defs, err := LoadFile(path, "app")
	require.NoError(t, err)
	assert.Len(t, defs, 2)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"), "app")
	assert.True(t, dserr.IsBadRequest(err))
}
