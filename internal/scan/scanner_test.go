package scan

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func TestScanFindsMarkdownAndSkipsOthers(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.md", "# A")
	writeFile(t, root, "notes/b.md", "# B")
	writeFile(t, root, "image.png", "binary")

	s, err := New(Options{})
	require.NoError(t, err)

	files, err := s.Scan(context.Background(), root)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "a.md", files[0].RelativePath)
	assert.Equal(t, "notes/b.md", files[1].RelativePath)
}

func TestScanRejectsDotComponents(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".obsidian/workspace.md", "x")
	writeFile(t, root, ".hidden.md", "x")
	writeFile(t, root, "visible.md", "x")

	s, err := New(Options{})
	require.NoError(t, err)
	files, err := s.Scan(context.Background(), root)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "visible.md", files[0].RelativePath)
}

func TestScanAppliesDefaultIgnoreSet(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "node_modules/pkg/readme.md", "x")
	writeFile(t, root, "kept.md", "x")

	s, err := New(Options{})
	require.NoError(t, err)
	files, err := s.Scan(context.Background(), root)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "kept.md", files[0].RelativePath)
}

func TestScanSortsByFolderThenFilename(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "z.md", "x")
	writeFile(t, root, "a/b.md", "x")
	writeFile(t, root, "a/a.md", "x")

	s, err := New(Options{})
	require.NoError(t, err)
	files, err := s.Scan(context.Background(), root)
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, "a/a.md", files[0].RelativePath)
	assert.Equal(t, "a/b.md", files[1].RelativePath)
	assert.Equal(t, "z.md", files[2].RelativePath)
}

func TestScanIncludePathsWhitelist(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "projects/x.md", "x")
	writeFile(t, root, "journal/y.md", "x")

	s, err := New(Options{IncludePaths: []string{"projects"}})
	require.NoError(t, err)
	files, err := s.Scan(context.Background(), root)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "projects/x.md", files[0].RelativePath)
}

func TestScanRejectsInvalidIgnorePattern(t *testing.T) {
	_, err := New(Options{IgnorePatterns: []string{"["}})
	assert.Error(t, err)
}

func TestScanFolderPathEmptyAtRoot(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "root.md", "x")

	s, err := New(Options{})
	require.NoError(t, err)
	files, err := s.Scan(context.Background(), root)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "", files[0].FolderPath)
	assert.Equal(t, "root.md", files[0].Filename)
}
