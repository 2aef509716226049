package sync

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultrag/vaultrag/internal/chunk"
	"github.com/vaultrag/vaultrag/internal/scan"
	"github.com/vaultrag/vaultrag/internal/store"
)

// fakeVectorStore is an in-memory store.VectorStore for Syncer tests.
type fakeVectorStore struct {
	rows map[string]store.QueryResult // id -> row
}

func newFakeVectorStore() *fakeVectorStore {
	return &fakeVectorStore{rows: make(map[string]store.QueryResult)}
}

func (f *fakeVectorStore) UpsertChunks(ctx context.Context, chunks []store.ChunkInput, relativePath string) (int, error) {
	for i, c := range chunks {
		id := store.ChunkID(relativePath, i)
		f.rows[id] = store.QueryResult{ID: id, Text: c.Text, Metadata: store.NormalizeMetadata(c.Metadata)}
	}
	return len(chunks), nil
}

func (f *fakeVectorStore) Query(ctx context.Context, queryText string, nResults int, where map[string]string, whereDocument string) ([]store.QueryResult, error) {
	var out []store.QueryResult
	for _, row := range f.rows {
		match := true
		for k, v := range where {
			if row.Metadata[k] != v {
				match = false
				break
			}
		}
		if match && (whereDocument == "" || strings.Contains(row.Text, whereDocument)) {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > nResults {
		out = out[:nResults]
	}
	return out, nil
}

func (f *fakeVectorStore) DeleteByRelativePath(ctx context.Context, rp string) error {
	for id, row := range f.rows {
		if row.Metadata["relative_path"] == rp {
			delete(f.rows, id)
		}
	}
	return nil
}

func (f *fakeVectorStore) DeleteChunksByPrefix(ctx context.Context, rp string, fromIndex int) error {
	for k := fromIndex; k < fromIndex+store.MaxPrefixDeleteSpan; k++ {
		delete(f.rows, store.ChunkID(rp, k))
	}
	return nil
}

func (f *fakeVectorStore) Clear(ctx context.Context) error {
	f.rows = make(map[string]store.QueryResult)
	return nil
}
func (f *fakeVectorStore) Count() int             { return len(f.rows) }
func (f *fakeVectorStore) Save(path string) error { return nil }
func (f *fakeVectorStore) Load(path string) error { return nil }
func (f *fakeVectorStore) Close() error           { return nil }

var _ store.VectorStore = (*fakeVectorStore)(nil)

// fakeBM25Index is an in-memory store.BM25Index for Syncer tests.
type fakeBM25Index struct {
	docs map[string]string
}

func newFakeBM25Index() *fakeBM25Index {
	return &fakeBM25Index{docs: make(map[string]string)}
}

func (f *fakeBM25Index) Index(ctx context.Context, docs []*store.Document) error {
	for _, d := range docs {
		f.docs[d.ID] = d.Content
	}
	return nil
}
func (f *fakeBM25Index) Search(ctx context.Context, query string, limit int) ([]*store.BM25Result, error) {
	return nil, nil
}
func (f *fakeBM25Index) Delete(ctx context.Context, docIDs []string) error {
	for _, id := range docIDs {
		delete(f.docs, id)
	}
	return nil
}
func (f *fakeBM25Index) AllIDs() ([]string, error) {
	ids := make([]string, 0, len(f.docs))
	for id := range f.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
func (f *fakeBM25Index) Stats() *store.IndexStats {
	return &store.IndexStats{DocumentCount: len(f.docs)}
}
func (f *fakeBM25Index) Close() error { return nil }

var _ store.BM25Index = (*fakeBM25Index)(nil)

// lineChunker splits file content into one chunk per non-empty line, just
// enough structure for Syncer tests to exercise multi-chunk files.
type lineChunker struct{}

func (lineChunker) Chunk(ctx context.Context, file *chunk.FileInput) ([]*chunk.Chunk, error) {
	var chunks []*chunk.Chunk
	for _, line := range strings.Split(string(file.Content), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		chunks = append(chunks, &chunk.Chunk{
			Text: line,
			Metadata: chunk.Metadata{
				Source:       file.Source,
				RelativePath: file.RelativePath,
			},
		})
	}
	return chunks, nil
}

func newTestSyncer(t *testing.T, root string) (*Syncer, *fakeVectorStore, *fakeBM25Index, *Registry) {
	t.Helper()
	scanner, err := scan.New(scan.Options{})
	require.NoError(t, err)

	vectors := newFakeVectorStore()
	keywords := newFakeBM25Index()
	registry := NewRegistry(filepath.Join(root, ".vaultrag", "registry.json"))

	syncer := NewSyncer(root, filepath.Join(root, ".vaultrag"), scanner, lineChunker{}, vectors, keywords, registry)
	return syncer, vectors, keywords, registry
}

func TestSyncIndexesNewFiles(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.md"), []byte("line one\nline two"), 0o644))

	syncer, vectors, keywords, registry := newTestSyncer(t, root)
	result, err := syncer.Sync(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Added)
	assert.Equal(t, 2, vectors.Count())
	entry, ok := registry.Entry("a.md")
	require.True(t, ok)
	assert.Equal(t, 2, entry.ChunkCount)
	ids, _ := keywords.AllIDs()
	assert.ElementsMatch(t, []string{"a.md::chunk_0", "a.md::chunk_1"}, ids)
}

func TestSyncRemovesDeletedFiles(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "a.md")
	require.NoError(t, os.WriteFile(path, []byte("line one"), 0o644))

	syncer, vectors, _, registry := newTestSyncer(t, root)
	_, err := syncer.Sync(context.Background())
	require.NoError(t, err)

	require.NoError(t, os.Remove(path))
	result, err := syncer.Sync(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Deleted)
	assert.Equal(t, 0, vectors.Count())
	_, ok := registry.Entry("a.md")
	assert.False(t, ok)
}

func TestSyncEvictsStragglerChunksWhenFileShrinks(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "a.md")
	require.NoError(t, os.WriteFile(path, []byte("one\ntwo\nthree"), 0o644))

	syncer, vectors, _, _ := newTestSyncer(t, root)
	_, err := syncer.Sync(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, vectors.Count())

	// Shrink the file and bump mtime so DetectChanges sees a modification.
	require.NoError(t, os.WriteFile(path, []byte("one"), 0o644))
	result, err := syncer.Sync(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Modified)
	assert.Equal(t, 1, vectors.Count())
}

func TestSyncSkipsUnchangedFiles(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.md"), []byte("stable"), 0o644))

	syncer, _, _, _ := newTestSyncer(t, root)
	_, err := syncer.Sync(context.Background())
	require.NoError(t, err)

	result, err := syncer.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Unchanged)
	assert.Equal(t, 0, result.Added)
	assert.Equal(t, 0, result.Modified)
}

func TestFullSyncClearsRegistryAndStoreFirst(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.md"), []byte("one\ntwo"), 0o644))

	syncer, vectors, _, registry := newTestSyncer(t, root)
	_, err := syncer.Sync(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, vectors.Count())

	result, err := syncer.FullSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Added)
	assert.Equal(t, 2, vectors.Count())
	assert.Equal(t, 1, registry.Len())
}

func TestShouldFullSyncDetectsVaultPathChange(t *testing.T) {
	root := t.TempDir()
	syncer, _, _, registry := newTestSyncer(t, root)
	registry.SetVaultPath("/somewhere/else")
	assert.True(t, syncer.ShouldFullSync())
}

func TestShouldFullSyncDetectsMissingSampledFiles(t *testing.T) {
	root := t.TempDir()
	syncer, _, _, registry := newTestSyncer(t, root)
	registry.SetVaultPath(root)
	registry.UpdateFileInfo("gone.md", RegistryEntry{ContentHash: "h"})
	assert.True(t, syncer.ShouldFullSync())
}

func TestShouldFullSyncFalseWhenConsistent(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.md"), []byte("x"), 0o644))

	syncer, _, _, registry := newTestSyncer(t, root)
	registry.SetVaultPath(root)
	registry.UpdateFileInfo("a.md", RegistryEntry{ContentHash: "h"})
	assert.False(t, syncer.ShouldFullSync())
}

func TestConcurrentSyncIsRejectedByLock(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.md"), []byte("x"), 0o644))

	syncer, _, _, _ := newTestSyncer(t, root)
	lock, err := syncer.acquireLock()
	require.NoError(t, err)
	defer lock.Unlock()

	_, err = syncer.Sync(context.Background())
	assert.Error(t, err)
}
