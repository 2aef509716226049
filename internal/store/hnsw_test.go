package store

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmbedder struct {
	dim int
}

// Embed returns a deterministic vector that sums each rune's code point into
// slot j%dim, just distinct enough for nearest-neighbor tests to be meaningful.
func (f fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, f.dim)
		for j, r := range t {
			v[j%f.dim] += float32(r)
		}
		var norm float64
		for _, x := range v {
			norm += float64(x) * float64(x)
		}
		if norm == 0 {
			v[0] = 1
		}
		out[i] = v
	}
	return out, nil
}

func newTestStore(t *testing.T) *ChunkStore {
	t.Helper()
	s, err := NewChunkStore(DefaultVectorStoreConfig(8), fakeEmbedder{dim: 8})
	require.NoError(t, err)
	return s
}

func TestUpsertChunksAssignsDeterministicIDs(t *testing.T) {
	s := newTestStore(t)
	n, err := s.UpsertChunks(context.Background(), []ChunkInput{
		{Text: "alpha", Metadata: map[string]any{"relative_path": "a.md"}},
		{Text: "beta", Metadata: map[string]any{"relative_path": "a.md"}},
	}, "a.md")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, s.Count())

	res, err := s.Query(context.Background(), "alpha", 1, nil, "")
	require.NoError(t, err)
	require.NotEmpty(t, res)
	assert.Equal(t, "a.md::chunk_0", res[0].ID)
}

func TestUpsertNormalizesMetadata(t *testing.T) {
	s := newTestStore(t)
	_, err := s.UpsertChunks(context.Background(), []ChunkInput{
		{Text: "x", Metadata: map[string]any{
			"relative_path": "f.md",
			"headers":       []string{"A", "B"},
			"level":         2,
			"extra":         nil,
		}},
	}, "f.md")
	require.NoError(t, err)

	res, err := s.Query(context.Background(), "x", 1, nil, "")
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "f.md", res[0].Metadata["relative_path"])
	assert.Equal(t, "2", res[0].Metadata["level"])
	assert.Equal(t, `["A","B"]`, res[0].Metadata["headers"])
	assert.Equal(t, "", res[0].Metadata["extra"])
}

func TestQueryFiltersByWhereAndWhereDocument(t *testing.T) {
	s := newTestStore(t)
	_, err := s.UpsertChunks(context.Background(), []ChunkInput{
		{Text: "cats are great", Metadata: map[string]any{"relative_path": "pets.md"}},
		{Text: "dogs are great", Metadata: map[string]any{"relative_path": "pets.md"}},
	}, "pets.md")
	require.NoError(t, err)

	res, err := s.Query(context.Background(), "great", 10, nil, "cats")
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Contains(t, res[0].Text, "cats")
}

func TestDeleteByRelativePathRemovesAllItsChunks(t *testing.T) {
	s := newTestStore(t)
	_, err := s.UpsertChunks(context.Background(), []ChunkInput{
		{Text: "one", Metadata: map[string]any{"relative_path": "a.md"}},
		{Text: "two", Metadata: map[string]any{"relative_path": "a.md"}},
	}, "a.md")
	require.NoError(t, err)
	_, err = s.UpsertChunks(context.Background(), []ChunkInput{
		{Text: "three", Metadata: map[string]any{"relative_path": "b.md"}},
	}, "b.md")
	require.NoError(t, err)

	require.NoError(t, s.DeleteByRelativePath(context.Background(), "a.md"))
	assert.Equal(t, 1, s.Count())
}

func TestDeleteChunksByPrefixEvictsStragglersAndIgnoresMissing(t *testing.T) {
	s := newTestStore(t)
	_, err := s.UpsertChunks(context.Background(), []ChunkInput{
		{Text: "0", Metadata: map[string]any{"relative_path": "a.md"}},
		{Text: "1", Metadata: map[string]any{"relative_path": "a.md"}},
		{Text: "2", Metadata: map[string]any{"relative_path": "a.md"}},
	}, "a.md")
	require.NoError(t, err)

	require.NoError(t, s.DeleteChunksByPrefix(context.Background(), "a.md", 1))
	assert.Equal(t, 1, s.Count())
}

func TestClearPreservesEmbedderBinding(t *testing.T) {
	s := newTestStore(t)
	_, err := s.UpsertChunks(context.Background(), []ChunkInput{{Text: "x", Metadata: nil}}, "a.md")
	require.NoError(t, err)

	require.NoError(t, s.Clear(context.Background()))
	assert.Equal(t, 0, s.Count())

	n, err := s.UpsertChunks(context.Background(), []ChunkInput{{Text: "y", Metadata: nil}}, "b.md")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestUpsertRejectsDimensionMismatch(t *testing.T) {
	s, err := NewChunkStore(DefaultVectorStoreConfig(4), fakeEmbedder{dim: 8})
	require.NoError(t, err)
	_, err = s.UpsertChunks(context.Background(), []ChunkInput{{Text: "x"}}, "a.md")
	assert.Error(t, err)
}

func TestSaveLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vectors.hnsw")

	s := newTestStore(t)
	_, err := s.UpsertChunks(context.Background(), []ChunkInput{
		{Text: "persisted chunk", Metadata: map[string]any{"relative_path": "a.md"}},
	}, "a.md")
	require.NoError(t, err)
	require.NoError(t, s.Save(path))

	loaded, err := NewChunkStore(DefaultVectorStoreConfig(8), fakeEmbedder{dim: 8})
	require.NoError(t, err)
	require.NoError(t, loaded.Load(path))
	assert.Equal(t, 1, loaded.Count())

	res, err := loaded.Query(context.Background(), "persisted chunk", 1, nil, "")
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "a.md::chunk_0", res[0].ID)
}

func TestNormalizeVectorInPlaceHandlesZeroVector(t *testing.T) {
	v := make([]float32, 4)
	normalizeVectorInPlace(v)
	for _, x := range v {
		assert.False(t, math.IsNaN(float64(x)))
	}
}
