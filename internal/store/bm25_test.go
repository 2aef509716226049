package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBleveIndexAndSearch(t *testing.T) {
	idx, err := NewBleveBM25Index("")
	require.NoError(t, err)
	defer idx.Close()

	err = idx.Index(context.Background(), []*Document{
		{ID: "a.md::chunk_0", Content: "The quick brown fox jumps"},
		{ID: "a.md::chunk_1", Content: "over the lazy dog"},
	})
	require.NoError(t, err)

	results, err := idx.Search(context.Background(), "fox", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a.md::chunk_0", results[0].DocID)
}

func TestBleveSearchIsCaseInsensitiveDueToLowercaseAnalyzer(t *testing.T) {
	idx, err := NewBleveBM25Index("")
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, idx.Index(context.Background(), []*Document{
		{ID: "x", Content: "Hello World"},
	}))

	results, err := idx.Search(context.Background(), "HELLO", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestBleveSearchEmptyQueryReturnsNil(t *testing.T) {
	idx, err := NewBleveBM25Index("")
	require.NoError(t, err)
	defer idx.Close()

	results, err := idx.Search(context.Background(), "   ", 10)
	require.NoError(t, err)
	assert.Nil(t, results)
}

func TestBleveDeleteRemovesDocuments(t *testing.T) {
	idx, err := NewBleveBM25Index("")
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, idx.Index(context.Background(), []*Document{
		{ID: "a", Content: "alpha"},
		{ID: "b", Content: "beta"},
	}))
	require.NoError(t, idx.Delete(context.Background(), []string{"a"}))

	ids, err := idx.AllIDs()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"b"}, ids)
}

func TestBleveStatsReflectsDocCount(t *testing.T) {
	idx, err := NewBleveBM25Index("")
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, idx.Index(context.Background(), []*Document{
		{ID: "a", Content: "alpha"},
		{ID: "b", Content: "beta"},
	}))

	stats := idx.Stats()
	assert.Equal(t, 2, stats.DocumentCount)
}

func TestBleveOperationsFailAfterClose(t *testing.T) {
	idx, err := NewBleveBM25Index("")
	require.NoError(t, err)
	require.NoError(t, idx.Close())
	require.NoError(t, idx.Close()) // idempotent

	err = idx.Index(context.Background(), []*Document{{ID: "a", Content: "x"}})
	assert.Error(t, err)

	_, err = idx.Search(context.Background(), "x", 10)
	assert.Error(t, err)
}

func TestBlevePersistsAndReopensOnDisk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bm25")

	idx, err := NewBleveBM25Index(path)
	require.NoError(t, err)
	require.NoError(t, idx.Index(context.Background(), []*Document{
		{ID: "a", Content: "persisted content"},
	}))
	require.NoError(t, idx.Close())

	reopened, err := NewBleveBM25Index(path)
	require.NoError(t, err)
	defer reopened.Close()

	results, err := reopened.Search(context.Background(), "persisted", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].DocID)
}

func TestBleveRecreatesCorruptedIndex(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bm25")
	require.NoError(t, os.MkdirAll(path, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(path, "index_meta.json"), []byte(""), 0o644))

	idx, err := NewBleveBM25Index(path)
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, idx.Index(context.Background(), []*Document{{ID: "a", Content: "fresh"}}))
	results, err := idx.Search(context.Background(), "fresh", 10)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestIsCorruptionErrorRecognizesKnownPatterns(t *testing.T) {
	assert.False(t, isCorruptionError(nil))
	assert.True(t, isCorruptionError(assertError("unexpected end of JSON input")))
	assert.True(t, isCorruptionError(assertError("error opening bolt database")))
	assert.False(t, isCorruptionError(assertError("some unrelated error")))
}

type testErr string

func (e testErr) Error() string { return string(e) }

func assertError(s string) error { return testErr(s) }
