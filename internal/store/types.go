// Package store persists chunk vectors (HNSW) and a keyword index (BM25)
// for a vault collection.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
)

// ChunkInput is one chunk handed to VectorStore.UpsertChunks. Metadata
// values are normalized to strings before storage: scalars pass through in
// their string form, nil becomes "", slices/maps are JSON-encoded,
// everything else is stringified.
type ChunkInput struct {
	Text     string
	Metadata map[string]any
}

// NormalizeMetadata applies the scalar-or-stringify normalization rule
// ChunkInput documents above.
func NormalizeMetadata(meta map[string]any) map[string]string {
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return fmt.Sprintf("%v", t)
	default:
		switch reflect.ValueOf(v).Kind() {
		case reflect.Slice, reflect.Array, reflect.Map:
			if b, err := json.Marshal(v); err == nil {
				return string(b)
			}
		}
		return fmt.Sprintf("%v", v)
	}
}

// QueryResult is one row returned by VectorStore.Query.
type QueryResult struct {
	ID       string
	Text     string
	Metadata map[string]string
	Distance float32
}

// Embedder turns text into vectors for VectorStore's write-through path.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// MaxPrefixDeleteSpan is the safe upper bound N in delete_chunks_by_prefix's
// `rp::chunk_k for k in [from_index, from_index+N)` sweep: large enough to cover any file the Chunker
// will ever emit (bounded at 1000 chunks/file), small enough to keep the
// delete sweep cheap.
const MaxPrefixDeleteSpan = 1000

// VectorStore is the dense semantic index contract. It owns
// the embedding function binding: UpsertChunks and Query both embed text
// internally ("writes through the embedding function").
type VectorStore interface {
	UpsertChunks(ctx context.Context, chunks []ChunkInput, relativePath string) (int, error)
	Query(ctx context.Context, queryText string, nResults int, where map[string]string, whereDocument string) ([]QueryResult, error)
	DeleteByRelativePath(ctx context.Context, relativePath string) error
	DeleteChunksByPrefix(ctx context.Context, relativePath string, fromIndex int) error
	Clear(ctx context.Context) error
	Count() int
	Save(path string) error
	Load(path string) error
	Close() error
}

// VectorStoreConfig configures the HNSW-backed VectorStore.
type VectorStoreConfig struct {
	Dimensions     int
	Metric         string // "cos" or "l2"
	M              int
	EfConstruction int
	EfSearch       int
}

// DefaultVectorStoreConfig returns sensible HNSW defaults.
func DefaultVectorStoreConfig(dimensions int) VectorStoreConfig {
	return VectorStoreConfig{
		Dimensions:     dimensions,
		Metric:         "cos",
		M:              16,
		EfConstruction: 128,
		EfSearch:       64,
	}
}

// ErrDimensionMismatch indicates an embedding's dimension doesn't match the
// store's configured dimensionality.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}

// Document is one entry in the BM25 index.
type Document struct {
	ID      string
	Content string
}

// BM25Result is one BM25 search hit.
type BM25Result struct {
	DocID string
	Score float64
}

// IndexStats summarizes a BM25 index.
type IndexStats struct {
	DocumentCount int
}

// BM25Index is the sparse keyword index contract.
type BM25Index interface {
	Index(ctx context.Context, docs []*Document) error
	Search(ctx context.Context, query string, limit int) ([]*BM25Result, error)
	Delete(ctx context.Context, docIDs []string) error
	AllIDs() ([]string, error)
	Stats() *IndexStats
	Close() error
}

// MaxBM25Score returns the maximum score across results, or 0 when empty,
// used by HybridSearcher to normalize sparse scores.
func MaxBM25Score(results []*BM25Result) float64 {
	max := 0.0
	for _, r := range results {
		if r.Score > max {
			max = r.Score
		}
	}
	return max
}

// SortResultsByScoreDesc sorts BM25 results by score descending, ties
// broken by DocID for reproducibility.
func SortResultsByScoreDesc(results []*BM25Result) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].DocID < results[j].DocID
	})
}
