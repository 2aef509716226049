// Package rerank reorders retrieved chunks with a cross-encoder that scores
// (query, document) pairs jointly, trading retrieval recall for precision at
// the top of the result list.
package rerank

import (
	"context"
	"fmt"
)

// RankedDocument is one reranked result. OriginalIndex preserves the
// document's position in the slice handed to CrossEncoder.Score, so callers
// can recover whatever metadata they keyed off that position.
type RankedDocument struct {
	Text          string
	Score         float64
	OriginalIndex int
}

// CrossEncoder scores a query against each of documents, returning one
// relevance logit per document in the same order as documents.
type CrossEncoder interface {
	Score(ctx context.Context, query string, documents []string) ([]float64, error)
	Close() error
}

// ConfigError indicates a Reranker was misconfigured at construction time.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string { return fmt.Sprintf("rerank: config error: %s", e.Reason) }
