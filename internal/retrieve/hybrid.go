package retrieve

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/vaultrag/vaultrag/internal/store"
)

// weightTolerance is the slack allowed on dense_weight + sparse_weight == 1.0.
const weightTolerance = 0.01

// Weights configures HybridSearcher's score fusion. DenseWeight and
// SparseWeight must each lie in [0,1] and sum to 1.0 within weightTolerance.
type Weights struct {
	Dense  float64
	Sparse float64
}

func (w Weights) validate() error {
	if w.Dense < 0 || w.Dense > 1 || w.Sparse < 0 || w.Sparse > 1 {
		return &ConfigError{Reason: "weights must each lie in [0, 1]"}
	}
	if math.Abs(w.Dense+w.Sparse-1.0) > weightTolerance {
		return &ConfigError{Reason: fmt.Sprintf("dense_weight + sparse_weight must sum to 1.0 (+/- %.2f), got %.4f", weightTolerance, w.Dense+w.Sparse)}
	}
	return nil
}

// ScoredChunk is one HybridSearcher result with both component scores
// exposed alongside the fused score.
type ScoredChunk struct {
	RetrievedChunk
	DenseScore  float64
	SparseScore float64
}

// HybridSearcher fuses a VectorStore's dense candidates with a BM25Index's
// sparse candidates. Construction fails if weights don't sum
// to 1.0 within tolerance, rather than silently clamping or renormalizing.
type HybridSearcher struct {
	vectors  store.VectorStore
	keywords store.BM25Index
	weights  Weights
}

// NewHybridSearcher constructs a searcher over vectors and keywords with
// the given fusion weights.
func NewHybridSearcher(vectors store.VectorStore, keywords store.BM25Index, weights Weights) (*HybridSearcher, error) {
	if err := weights.validate(); err != nil {
		return nil, err
	}
	return &HybridSearcher{vectors: vectors, keywords: keywords, weights: weights}, nil
}

// Retrieve fetches dense candidates (top_k*2) and sparse candidates
// concurrently, fuses them by id, and returns the top_k by fused score.
func (h *HybridSearcher) Retrieve(ctx context.Context, query string, topK int) (*RetrievalResult, error) {
	scored, err := h.Search(ctx, query, topK)
	if err != nil {
		return nil, err
	}
	chunks := make([]RetrievedChunk, len(scored))
	for i, s := range scored {
		chunks[i] = s.RetrievedChunk
	}
	return &RetrievalResult{Query: query, Chunks: chunks}, nil
}

// Search is Retrieve but returns the component dense/sparse scores
// alongside the fused score, for callers (status/debugging) that want them.
func (h *HybridSearcher) Search(ctx context.Context, query string, topK int) ([]ScoredChunk, error) {
	if topK <= 0 {
		topK = 10
	}

	var denseRows []store.QueryResult
	var sparseRows []*store.BM25Result

	// BM25 hits are capped at max(topK*10, 500) rather than the whole corpus.
	sparseLimit := topK * 10
	if sparseLimit < 500 {
		sparseLimit = 500
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := h.vectors.Query(gctx, query, topK*2, nil, "")
		if err != nil {
			return fmt.Errorf("hybrid: dense query: %w", err)
		}
		denseRows = rows
		return nil
	})
	g.Go(func() error {
		rows, err := h.keywords.Search(gctx, query, sparseLimit)
		if err != nil {
			return fmt.Errorf("hybrid: sparse query: %w", err)
		}
		sparseRows = rows
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if len(sparseRows) >= sparseLimit {
		slog.Warn("hybrid: BM25 result cap reached", slog.Int("cap", sparseLimit))
	}

	maxSparse := store.MaxBM25Score(sparseRows)
	if maxSparse == 0 {
		maxSparse = 1
	}

	byID := make(map[string]*ScoredChunk, len(denseRows)+len(sparseRows))
	for _, row := range denseRows {
		byID[row.ID] = &ScoredChunk{
			RetrievedChunk: RetrievedChunk{ID: row.ID, Text: row.Text, Metadata: row.Metadata},
			DenseScore:     distanceToScore(row.Distance),
		}
	}
	for _, hit := range sparseRows {
		sc, ok := byID[hit.DocID]
		if !ok {
			sc = &ScoredChunk{RetrievedChunk: RetrievedChunk{ID: hit.DocID}}
			byID[hit.DocID] = sc
		}
		sc.SparseScore = hit.Score / maxSparse
	}

	out := make([]ScoredChunk, 0, len(byID))
	for _, sc := range byID {
		sc.Score = h.weights.Dense*sc.DenseScore + h.weights.Sparse*sc.SparseScore
		out = append(out, *sc)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

var _ Source = (*HybridSearcher)(nil)
