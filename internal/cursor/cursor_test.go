package cursor

import (
	"database/sql"
	"fmt"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stratum/internal/dserr"
	"github.com/roach88/stratum/internal/entity"
)

type testRow struct {
	path string
	key  string
}

func entityBlob(t *testing.T, path string) []byte {
	t.Helper()
	ent := entity.Entity{
		Key: entity.Key{
			App:  "app",
			Path: []entity.PathElement{{Kind: "Book", Name: path}},
		},
		Group:      []entity.PathElement{{Kind: "Book", Name: path}},
		Properties: []entity.Property{{Name: "title", Value: entity.String(path), Indexed: true}},
	}
	blob, err := entity.Marshal(ent)
	require.NoError(t, err)
	return blob
}

// openRows materializes test rows in insertion order, shaped like a plan
// with one order-key column.
func openRows(t *testing.T, rows []testRow) *sql.Rows {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec("CREATE TABLE results (path BLOB, entity BLOB, k BLOB)")
	require.NoError(t, err)
	for _, r := range rows {
		_, err = db.Exec("INSERT INTO results (path, entity, k) VALUES (?, ?, ?)",
			[]byte(r.path), entityBlob(t, r.path), []byte(r.key))
		require.NoError(t, err)
	}

	sqlRows, err := db.Query("SELECT path, entity, k FROM results ORDER BY rowid")
	require.NoError(t, err)
	return sqlRows
}

func drain(t *testing.T, c *Cursor) []string {
	t.Helper()
	var paths []string
	for {
		res, ok, err := c.Next()
		require.NoError(t, err)
		if !ok {
			return paths
		}
		paths = append(paths, string(res.Path))
	}
}

func TestNextDeduplicatesPaths(t *testing.T) {
	// A multi-valued property yields the same entity under two positions.
	c := New(openRows(t, []testRow{
		{"a", "1"},
		{"b", "2"},
		{"a", "3"},
		{"c", "4"},
	}), 1, false)
	defer c.Close()

	assert.Equal(t, []string{"a", "b", "c"}, drain(t, c))
}

func TestNextRowCountsDuplicates(t *testing.T) {
	c := New(openRows(t, []testRow{
		{"a", "1"},
		{"a", "2"},
		{"b", "3"},
	}), 1, false)
	defer c.Close()

	n := 0
	for {
		ok, err := c.NextRow()
		require.NoError(t, err)
		if !ok {
			break
		}
		n++
	}
	assert.Equal(t, 3, n)
}

func TestNextDecodesEntities(t *testing.T) {
	c := New(openRows(t, []testRow{{"a", "1"}}), 1, false)
	defer c.Close()

	res, ok, err := c.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Book", res.Entity.Key.Kind())
	assert.Equal(t, entity.String("a"), res.Entity.Properties[0].Value)
}

func TestSkip(t *testing.T) {
	rows := []testRow{{"a", "1"}, {"b", "2"}, {"c", "3"}}

	c := New(openRows(t, rows), 1, false)
	defer c.Close()
	skipped, err := c.Skip(2)
	require.NoError(t, err)
	assert.Equal(t, 2, skipped)
	assert.Equal(t, []string{"c"}, drain(t, c))

	// Skipping past the end reports how far it got.
	c2 := New(openRows(t, rows), 1, false)
	defer c2.Close()
	skipped, err = c2.Skip(10)
	require.NoError(t, err)
	assert.Equal(t, 3, skipped)
}

func TestMarkerResume(t *testing.T) {
	rows := []testRow{{"a", "1"}, {"b", "2"}, {"c", "3"}, {"d", "4"}, {"e", "5"}}

	c := New(openRows(t, rows), 1, false)
	defer c.Close()
	_, ok, err := c.Next()
	require.NoError(t, err)
	require.True(t, ok)
	_, ok, err = c.Next()
	require.NoError(t, err)
	require.True(t, ok)

	mark := c.Marker()
	assert.Equal(t, []byte("2"), mark.OrderKey)
	assert.Equal(t, 2, mark.Offset)

	resumed := New(openRows(t, rows), 1, false)
	defer resumed.Close()
	require.NoError(t, resumed.ResumeFrom(mark))
	assert.Equal(t, []string{"c", "d", "e"}, drain(t, resumed))
	assert.Equal(t, 5, resumed.Marker().Offset)
}

func TestMarkerResumeDescending(t *testing.T) {
	rows := []testRow{{"e", "5"}, {"d", "4"}, {"c", "3"}, {"b", "2"}, {"a", "1"}}

	c := New(openRows(t, rows), 1, true)
	defer c.Close()
	_, _, err := c.Next()
	require.NoError(t, err)
	mark := c.Marker()

	resumed := New(openRows(t, rows), 1, true)
	defer resumed.Close()
	require.NoError(t, resumed.ResumeFrom(mark))
	assert.Equal(t, []string{"d", "c", "b", "a"}, drain(t, resumed))
}

func TestResumePastEnd(t *testing.T) {
	rows := []testRow{{"a", "1"}, {"b", "2"}}

	c := New(openRows(t, rows), 1, false)
	defer c.Close()
	require.NoError(t, c.ResumeFrom(Marker{OrderKey: []byte("9"), Offset: 2}))
	assert.Empty(t, drain(t, c))
}

func TestEndAt(t *testing.T) {
	rows := []testRow{{"a", "1"}, {"b", "2"}, {"c", "3"}, {"d", "4"}}

	c := New(openRows(t, rows), 1, false)
	defer c.Close()
	c.EndAt(Marker{OrderKey: []byte("3")})
	assert.Equal(t, []string{"a", "b", "c"}, drain(t, c))
}

func TestResumeBeyondEndIsExhausted(t *testing.T) {
	rows := []testRow{{"a", "1"}, {"b", "2"}, {"c", "3"}, {"d", "4"}}

	c := New(openRows(t, rows), 1, false)
	defer c.Close()
	require.NoError(t, c.ResumeFrom(Marker{OrderKey: []byte("3"), Offset: 3}))
	c.EndAt(Marker{OrderKey: []byte("2")})
	assert.Empty(t, drain(t, c))

	// Raw-row iteration honors the same bound.
	c2 := New(openRows(t, rows), 1, false)
	defer c2.Close()
	require.NoError(t, c2.ResumeFrom(Marker{OrderKey: []byte("3"), Offset: 3}))
	c2.EndAt(Marker{OrderKey: []byte("2")})
	ok, err := c2.NextRow()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMarkerEncodeRoundTrip(t *testing.T) {
	mark := Marker{OrderKey: []byte("position"), Offset: 42}
	encoded := mark.Encode()
	assert.Equal(t, fmt.Sprintf("c1:%x!%010d", "position", 42), encoded)

	parsed, err := ParseMarker(encoded)
	require.NoError(t, err)
	assert.Equal(t, mark, parsed)
}

func TestParseMarkerRejectsMalformed(t *testing.T) {
	tests := []string{
		"",
		"c1",
		"c2:00!0000000001",
		"c1:zz!0000000001",
		"c1:00",
		"c1:00!3",
		"c1:00!-000000001",
	}
	for _, s := range tests {
		t.Run(s, func(t *testing.T) {
			_, err := ParseMarker(s)
			assert.True(t, dserr.IsBadRequest(err))
		})
	}
}
