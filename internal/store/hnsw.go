package store

import (
	"bufio"
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/coder/hnsw"
	"github.com/vmihailenco/msgpack/v5"
)

// ChunkStore implements VectorStore over coder/hnsw, with chunk text and
// normalized metadata kept in a companion map so Query can return full
// QueryResult rows, not just ids.
type ChunkStore struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config VectorStoreConfig
	embed  Embedder
	closed bool

	idMap   map[string]uint64 // chunk id -> internal key
	keyMap  map[uint64]string
	nextKey uint64
	records map[string]chunkRecord // chunk id -> text/metadata
}

type chunkRecord struct {
	Text     string
	Metadata map[string]string
}

// sidecar is the msgpack-serialized companion file persisted next to the
// HNSW graph export: the id<->key mapping and per-chunk text/metadata the
// graph itself doesn't carry.
type sidecar struct {
	IDMap   map[string]uint64
	NextKey uint64
	Config  VectorStoreConfig
	Records map[string]chunkRecord
}

// NewChunkStore creates an empty ChunkStore. embed is used to compute
// vectors for both UpsertChunks and Query.
func NewChunkStore(cfg VectorStoreConfig, embed Embedder) (*ChunkStore, error) {
	if cfg.Metric == "" {
		cfg.Metric = "cos"
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 64
	}

	graph := hnsw.NewGraph[uint64]()
	switch cfg.Metric {
	case "l2":
		graph.Distance = hnsw.EuclideanDistance
	default:
		graph.Distance = hnsw.CosineDistance
	}
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	return &ChunkStore{
		graph:   graph,
		config:  cfg,
		embed:   embed,
		idMap:   make(map[string]uint64),
		keyMap:  make(map[uint64]string),
		records: make(map[string]chunkRecord),
	}, nil
}

// UpsertChunks assigns deterministic ids "<relativePath>::chunk_<i>",
// normalizes metadata, embeds the text, and writes the vectors.
func (s *ChunkStore) UpsertChunks(ctx context.Context, chunks []ChunkInput, relativePath string) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}

	texts := make([]string, len(chunks))
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
		ids[i] = ChunkID(relativePath, i)
	}

	vectors, err := s.embed.Embed(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed chunks for %s: %w", relativePath, err)
	}
	if len(vectors) != len(chunks) {
		return 0, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, fmt.Errorf("store is closed")
	}

	for i, id := range ids {
		vec := vectors[i]
		if len(vec) != s.config.Dimensions {
			return 0, ErrDimensionMismatch{Expected: s.config.Dimensions, Got: len(vec)}
		}
		s.putLocked(id, vec, chunks[i].Text, NormalizeMetadata(chunks[i].Metadata))
	}

	return len(ids), nil
}

// ChunkID is the deterministic `relativePath::chunk_N` id used as both the
// dense and sparse index key, so a resync can overwrite a chunk in place.
func ChunkID(relativePath string, index int) string {
	return relativePath + "::chunk_" + strconv.Itoa(index)
}

func (s *ChunkStore) putLocked(id string, vec []float32, text string, metadata map[string]string) {
	if existingKey, exists := s.idMap[id]; exists {
		delete(s.keyMap, existingKey)
		delete(s.idMap, id)
	}

	key := s.nextKey
	s.nextKey++

	normalized := make([]float32, len(vec))
	copy(normalized, vec)
	if s.config.Metric == "cos" {
		normalizeVectorInPlace(normalized)
	}

	s.graph.Add(hnsw.MakeNode(key, normalized))
	s.idMap[id] = key
	s.keyMap[key] = id
	s.records[id] = chunkRecord{Text: text, Metadata: metadata}
}

// Query embeds queryText and returns the nResults nearest chunks, filtered
// by an exact-match metadata predicate (where) and/or a substring match
// against stored text (whereDocument).
func (s *ChunkStore) Query(ctx context.Context, queryText string, nResults int, where map[string]string, whereDocument string) ([]QueryResult, error) {
	vecs, err := s.embed.Embed(ctx, []string{queryText})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for 1 query", len(vecs))
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}
	if s.graph.Len() == 0 {
		return nil, nil
	}

	query := make([]float32, len(vecs[0]))
	copy(query, vecs[0])
	if s.config.Metric == "cos" {
		normalizeVectorInPlace(query)
	}

	// Over-fetch to survive post-filtering by where/whereDocument.
	fetch := nResults * 4
	if fetch < nResults {
		fetch = nResults
	}
	nodes := s.graph.Search(query, fetch)

	var results []QueryResult
	for _, node := range nodes {
		id, ok := s.keyMap[node.Key]
		if !ok {
			continue
		}
		rec, ok := s.records[id]
		if !ok {
			continue
		}
		if !matchesWhere(rec.Metadata, where) {
			continue
		}
		if whereDocument != "" && !strings.Contains(rec.Text, whereDocument) {
			continue
		}

		distance := s.graph.Distance(query, node.Value)
		results = append(results, QueryResult{
			ID:       id,
			Text:     rec.Text,
			Metadata: rec.Metadata,
			Distance: distance,
		})
		if len(results) >= nResults {
			break
		}
	}

	return results, nil
}

func matchesWhere(metadata map[string]string, where map[string]string) bool {
	for k, v := range where {
		if metadata[k] != v {
			return false
		}
	}
	return true
}

// DeleteByRelativePath removes every chunk whose metadata["relative_path"]
// equals rp.
func (s *ChunkStore) DeleteByRelativePath(ctx context.Context, rp string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}

	for id, rec := range s.records {
		if rec.Metadata["relative_path"] == rp {
			s.deleteLocked(id)
		}
	}
	return nil
}

// DeleteChunksByPrefix deletes ids "rp::chunk_k" for k in
// [fromIndex, fromIndex+MaxPrefixDeleteSpan), silently ignoring ids that
// don't exist.
func (s *ChunkStore) DeleteChunksByPrefix(ctx context.Context, rp string, fromIndex int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}

	for k := fromIndex; k < fromIndex+MaxPrefixDeleteSpan; k++ {
		id := ChunkID(rp, k)
		if _, exists := s.idMap[id]; exists {
			s.deleteLocked(id)
		}
	}
	return nil
}

func (s *ChunkStore) deleteLocked(id string) {
	if key, exists := s.idMap[id]; exists {
		delete(s.keyMap, key)
		delete(s.idMap, id)
	}
	delete(s.records, id)
}

// Clear drops every chunk but keeps the embedding function binding.
func (s *ChunkStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = s.graph.Distance
	graph.M = s.config.M
	graph.EfSearch = s.config.EfSearch
	graph.Ml = 0.25
	s.graph = graph
	s.idMap = make(map[string]uint64)
	s.keyMap = make(map[uint64]string)
	s.records = make(map[string]chunkRecord)
	s.nextKey = 0
	return nil
}

// Count returns the number of live (non-lazy-deleted) chunks.
func (s *ChunkStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.idMap)
}

// Save persists the HNSW graph and its msgpack sidecar atomically
// (tempfile + rename).
func (s *ChunkStore) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}

	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	if err := s.graph.Export(f); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("export graph: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close index file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename index file: %w", err)
	}

	return s.saveSidecar(path + ".meta")
}

func (s *ChunkStore) saveSidecar(path string) error {
	side := sidecar{IDMap: s.idMap, NextKey: s.nextKey, Config: s.config, Records: s.records}
	b, err := msgpack.Marshal(side)
	if err != nil {
		return fmt.Errorf("marshal sidecar: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, b, 0o644); err != nil {
		return fmt.Errorf("write sidecar: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename sidecar: %w", err)
	}
	return nil
}

// Load loads the graph and sidecar from disk.
func (s *ChunkStore) Load(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("store is closed")
	}

	if err := s.loadSidecar(path + ".meta"); err != nil {
		return fmt.Errorf("load sidecar: %w", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()

	reader := bufio.NewReader(f)
	if err := s.graph.Import(reader); err != nil {
		return fmt.Errorf("import graph: %w", err)
	}
	return nil
}

func (s *ChunkStore) loadSidecar(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var side sidecar
	if err := msgpack.Unmarshal(b, &side); err != nil {
		return fmt.Errorf("unmarshal sidecar: %w", err)
	}

	s.idMap = side.IDMap
	s.nextKey = side.NextKey
	s.config = side.Config
	s.records = side.Records
	s.keyMap = make(map[uint64]string, len(s.idMap))
	for id, key := range s.idMap {
		s.keyMap[key] = id
	}
	return nil
}

// Close releases resources.
func (s *ChunkStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.graph = nil
	return nil
}

var _ VectorStore = (*ChunkStore)(nil)

func normalizeVectorInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}
