package rerank

import (
	"context"
	"fmt"
	"sort"
)

// Reranker orders documents by a CrossEncoder's relevance score.
type Reranker struct {
	encoder CrossEncoder
}

// NewReranker wraps encoder.
func NewReranker(encoder CrossEncoder) *Reranker {
	return &Reranker{encoder: encoder}
}

// Rerank scores query against each of documents and returns the topK
// highest-scoring ones, sorted descending with OriginalIndex preserved for
// ties and for callers that need to re-associate metadata.
func (r *Reranker) Rerank(ctx context.Context, query string, documents []string, topK int) ([]RankedDocument, error) {
	if len(documents) == 0 {
		return nil, nil
	}

	scores, err := r.encoder.Score(ctx, query, documents)
	if err != nil {
		return nil, fmt.Errorf("rerank: score: %w", err)
	}
	if len(scores) != len(documents) {
		return nil, fmt.Errorf("rerank: encoder returned %d scores for %d documents", len(scores), len(documents))
	}

	ranked := make([]RankedDocument, len(documents))
	for i, doc := range documents {
		ranked[i] = RankedDocument{Text: doc, Score: scores[i], OriginalIndex: i}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].OriginalIndex < ranked[j].OriginalIndex
	})

	if topK > 0 && topK < len(ranked) {
		ranked = ranked[:topK]
	}
	return ranked, nil
}
