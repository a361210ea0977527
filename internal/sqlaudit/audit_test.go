package sqlaudit

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestLintFlagsMissingMarker(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "q/q.go", "package q\n\nconst QGood = `--sql 4a35a2eb-90d2-4be2-a876-b4d4c74289b0\nSELECT 1`\n\nconst QBad = `SELECT 2`\n\nconst label = \"hello\"\n")

	vs, err := Lint(dir, "", DefaultExclude)
	require.NoError(t, err)
	require.Len(t, vs, 1)
	assert.Equal(t, "QBad", vs[0].Name)
	assert.Equal(t, 6, vs[0].Line)
}

func TestLintFlagsDuplicateMarker(t *testing.T) {
	dir := t.TempDir()
	marker := "--sql 18f5cb69-5fc4-419d-b058-b15d42bd27cb"
	writeFile(t, dir, "a.go", "package q\n\nconst QA = `"+marker+"\nSELECT 1`\n")
	writeFile(t, dir, "b.go", "package q\n\nconst QB = `"+marker+"\nDELETE FROM t`\n")

	vs, err := Lint(dir, "", nil)
	require.NoError(t, err)
	require.Len(t, vs, 1)
	assert.Equal(t, "QB", vs[0].Name)
	assert.Contains(t, vs[0].Message, "first used by QA")
}

func TestLintSkipsExcluded(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "q_test.go", "package q\n\nconst QBad = `SELECT 2`\n")

	vs, err := Lint(dir, "", DefaultExclude)
	require.NoError(t, err)
	assert.Empty(t, vs)
}

func TestRepositoryQueriesAreMarked(t *testing.T) {
	vs, err := Lint(filepath.Join("..", "sqlinline"), "", DefaultExclude)
	require.NoError(t, err)
	assert.Empty(t, vs)
}
