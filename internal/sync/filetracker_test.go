package sync

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetFileStateHashesContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "note.md")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	tracker := NewFileTracker()
	fs, err := tracker.GetFileState(path, "note.md")
	require.NoError(t, err)
	assert.Equal(t, "note.md", fs.RelativePath)
	assert.Equal(t, "5d41402abc4b2a76b9719d911017c592", fs.ContentHash) // md5("hello")
	assert.Greater(t, fs.Mtime, 0.0)
}

func TestDetectChangesClassifiesAllFourCategories(t *testing.T) {
	tracker := NewFileTracker()

	registry := map[string]RegistryEntry{
		"deleted.md":   {ContentHash: "h1", Mtime: 100},
		"unchanged.md": {ContentHash: "h2", Mtime: 200},
		"touched.md":   {ContentHash: "h3", Mtime: 300},
		"modified.md":  {ContentHash: "h4", Mtime: 400},
	}

	current := []FileState{
		{RelativePath: "unchanged.md", ContentHash: "h2", Mtime: 200},
		{RelativePath: "touched.md", ContentHash: "h3", Mtime: 999}, // mtime moved, hash same
		{RelativePath: "modified.md", ContentHash: "different", Mtime: 401},
		{RelativePath: "new.md", ContentHash: "h5", Mtime: 500},
	}

	set := tracker.DetectChanges(current, registry)
	assert.ElementsMatch(t, []string{"deleted.md"}, set.Deleted)
	assert.ElementsMatch(t, []string{"new.md"}, set.Added)
	assert.ElementsMatch(t, []string{"modified.md"}, set.Modified)
	assert.ElementsMatch(t, []string{"unchanged.md", "touched.md"}, set.Unchanged)
}

func TestDetectChangesFastPathAvoidsHashCompare(t *testing.T) {
	tracker := NewFileTracker()
	registry := map[string]RegistryEntry{
		"a.md": {ContentHash: "stale-looking-hash", Mtime: 123},
	}
	current := []FileState{
		{RelativePath: "a.md", ContentHash: "totally-different-but-mtime-matches", Mtime: 123},
	}
	set := tracker.DetectChanges(current, registry)
	assert.ElementsMatch(t, []string{"a.md"}, set.Unchanged)
	assert.Empty(t, set.Modified)
}

func TestGetFileStateMissingFileErrors(t *testing.T) {
	tracker := NewFileTracker()
	_, err := tracker.GetFileState(filepath.Join(t.TempDir(), "nope.md"), "nope.md")
	assert.Error(t, err)
}
