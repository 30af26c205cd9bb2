package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const authorsYAML = `
entities:
  - kind: Author
    id: 1
    properties:
      - name: name
        type: string
        value: twain
      - name: age
        type: int
        value: 74
  - kind: Author
    id: 2
    properties:
      - name: name
        type: string
        value: verne
      - name: age
        type: int
        value: 77
`

func TestPutGetDeleteRoundTrip(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "test.db")
	entities := writeFile(t, dir, "authors.yaml", authorsYAML)

	out, err := runCommand(t, "--db", db, "put", entities)
	require.NoError(t, err)
	assert.Contains(t, out, "Author:1")
	assert.Contains(t, out, "Author:2")

	out, err = runCommand(t, "--db", db, "get", "Author:1")
	require.NoError(t, err)
	assert.Contains(t, out, "name = twain")
	assert.Contains(t, out, "age = 74")

	_, err = runCommand(t, "--db", db, "delete", "Author:1")
	require.NoError(t, err)

	_, err = runCommand(t, "--db", db, "get", "Author:1")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestPutAssignsIDs(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "test.db")
	entities := writeFile(t, dir, "auto.yaml", `
entities:
  - kind: Author
    properties:
      - name: name
        type: string
        value: wells
`)

	out, err := runCommand(t, "--db", db, "put", entities)
	require.NoError(t, err)
	assert.Contains(t, out, "Author:")
	assert.NotContains(t, out, "Author:0")
}

func TestQueryCommand(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "test.db")
	entities := writeFile(t, dir, "authors.yaml", authorsYAML)
	_, err := runCommand(t, "--db", db, "put", entities)
	require.NoError(t, err)

	out, err := runCommand(t, "--db", db, "query", "--kind", "Author", "--filter", "age>=75")
	require.NoError(t, err)
	assert.Contains(t, out, "verne")
	assert.NotContains(t, out, "twain")
	assert.Contains(t, out, "1 result(s)")

	out, err = runCommand(t, "--db", db, "query", "--kind", "Author", "--order=-age", "--keys-only")
	require.NoError(t, err)
	assert.Contains(t, out, "Author:2")
	assert.NotContains(t, out, "verne")

	out, err = runCommand(t, "--db", db, "query", "--kind", "Author", "--count")
	require.NoError(t, err)
	assert.Contains(t, out, "2")
}

func TestQueryRejectsMalformedFilter(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "test.db")

	_, err := runCommand(t, "--db", db, "query", "--kind", "Author", "--filter", "nonsense")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestSchemaCommand(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "test.db")
	entities := writeFile(t, dir, "authors.yaml", authorsYAML)
	_, err := runCommand(t, "--db", db, "put", entities)
	require.NoError(t, err)

	out, err := runCommand(t, "--db", db, "schema")
	require.NoError(t, err)
	assert.Contains(t, out, "Author")
	assert.Contains(t, out, "age")
	// Exemplars, not stored data.
	assert.NotContains(t, out, "twain")
}

func TestIndexLifecycleCommands(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "test.db")
	indexes := writeFile(t, dir, "indexes.yaml", `
indexes:
  - kind: Author
    properties:
      - name: name
      - name: age
        direction: desc
`)

	out, err := runCommand(t, "--db", db, "index", "create", indexes)
	require.NoError(t, err)
	assert.Contains(t, out, "created index 1")

	out, err = runCommand(t, "--db", db, "index", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "WRITE_ONLY")

	_, err = runCommand(t, "--db", db, "index", "activate", indexes)
	require.NoError(t, err)
	out, err = runCommand(t, "--db", db, "index", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "READ_WRITE")

	_, err = runCommand(t, "--db", db, "index", "delete", indexes)
	require.NoError(t, err)
	out, err = runCommand(t, "--db", db, "index", "list")
	require.NoError(t, err)
	assert.NotContains(t, out, "Author")
}

func TestAllocCommand(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "test.db")

	out, err := runCommand(t, "--db", db, "alloc-ids", "--size", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "1-5")
}

func TestResetNeedsConfirmation(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "test.db")
	entities := writeFile(t, dir, "authors.yaml", authorsYAML)
	_, err := runCommand(t, "--db", db, "put", entities)
	require.NoError(t, err)

	_, err = runCommand(t, "--db", db, "reset")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = runCommand(t, "--db", db, "reset", "--yes")
	require.NoError(t, err)
	_, err = runCommand(t, "--db", db, "get", "Author:1")
	require.Error(t, err)
}

func TestInvalidFormatRejected(t *testing.T) {
	_, err := runCommand(t, "--format", "xml", "alloc-ids")
	require.Error(t, err)
}
