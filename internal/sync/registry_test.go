package sync

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRegistryMissingFileReturnsEmpty(t *testing.T) {
	r, err := LoadRegistry(filepath.Join(t.TempDir(), "registry.json"))
	require.NoError(t, err)
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, "", r.GetVaultPath())
}

func TestLoadRegistryCorruptedJSONReturnsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	require.NoError(t, os.WriteFile(path, []byte("{not valid json"), 0o644))

	r, err := LoadRegistry(path)
	require.NoError(t, err)
	assert.Equal(t, 0, r.Len())
}

func TestRegistrySaveAndReloadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	r := NewRegistry(path)
	r.SetVaultPath("/vault")
	r.UpdateFileInfo("a.md", RegistryEntry{ContentHash: "h1", Mtime: 100, ChunkCount: 3, LastSynced: time.Now()})
	require.NoError(t, r.Save())

	reloaded, err := LoadRegistry(path)
	require.NoError(t, err)
	assert.Equal(t, "/vault", reloaded.GetVaultPath())
	entry, ok := reloaded.Entry("a.md")
	require.True(t, ok)
	assert.Equal(t, "h1", entry.ContentHash)
	assert.Equal(t, 3, entry.ChunkCount)
}

func TestRegistryClearPreservesVaultPath(t *testing.T) {
	r := NewRegistry(filepath.Join(t.TempDir(), "registry.json"))
	r.SetVaultPath("/vault")
	r.UpdateFileInfo("a.md", RegistryEntry{ContentHash: "h1"})
	r.Clear()

	assert.Equal(t, "/vault", r.GetVaultPath())
	assert.Equal(t, 0, r.Len())
}

func TestRegistryRemoveFileInfo(t *testing.T) {
	r := NewRegistry(filepath.Join(t.TempDir(), "registry.json"))
	r.UpdateFileInfo("a.md", RegistryEntry{ContentHash: "h1"})
	r.RemoveFileInfo("a.md")
	_, ok := r.Entry("a.md")
	assert.False(t, ok)
}
