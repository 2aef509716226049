package rerank

import (
	"context"
	"fmt"

	"github.com/vaultrag/vaultrag/internal/retrieve"
)

// RerankedRetriever fetches a wider initialK candidate set from a base
// retrieve.Source, then narrows it to topK with a cross-encoder. The cross-encoder score replaces the base Source's score in the
// returned chunks.
type RerankedRetriever struct {
	base     retrieve.Source
	reranker *Reranker
	initialK int
}

// NewRerankedRetriever wraps base, reranking its top initialK candidates.
// initialK <= 0 falls back to 40.
func NewRerankedRetriever(base retrieve.Source, reranker *Reranker, initialK int) (*RerankedRetriever, error) {
	if base == nil {
		return nil, &ConfigError{Reason: "base retrieval source is required"}
	}
	if reranker == nil {
		return nil, &ConfigError{Reason: "reranker is required"}
	}
	if initialK <= 0 {
		initialK = 40
	}
	return &RerankedRetriever{base: base, reranker: reranker, initialK: initialK}, nil
}

// Retrieve fetches initialK candidates from base, reranks them, and returns
// up to topK with Score set to the cross-encoder's relevance logit.
func (r *RerankedRetriever) Retrieve(ctx context.Context, query string, topK int) (*retrieve.RetrievalResult, error) {
	candidates, err := r.base.Retrieve(ctx, query, r.initialK)
	if err != nil {
		return nil, fmt.Errorf("rerank: base retrieve: %w", err)
	}
	if len(candidates.Chunks) == 0 {
		return &retrieve.RetrievalResult{Query: query, Chunks: nil}, nil
	}

	docs := make([]string, len(candidates.Chunks))
	for i, c := range candidates.Chunks {
		docs[i] = c.Text
	}

	ranked, err := r.reranker.Rerank(ctx, query, docs, topK)
	if err != nil {
		return nil, err
	}

	chunks := make([]retrieve.RetrievedChunk, len(ranked))
	for i, rd := range ranked {
		chunk := candidates.Chunks[rd.OriginalIndex]
		chunk.Score = rd.Score
		chunks[i] = chunk
	}
	return &retrieve.RetrievalResult{Query: query, Chunks: chunks}, nil
}

var _ retrieve.Source = (*RerankedRetriever)(nil)
