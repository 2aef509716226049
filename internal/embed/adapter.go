package embed

import (
	"context"

	"github.com/vaultrag/vaultrag/internal/store"
)

// StoreAdapter adapts an Embedder to the VectorStore's write-through
// Embed(ctx, texts) contract.
type StoreAdapter struct {
	Embedder
}

// NewStoreAdapter wraps e so it satisfies store.Embedder.
func NewStoreAdapter(e Embedder) *StoreAdapter {
	return &StoreAdapter{Embedder: e}
}

// Embed delegates to the wrapped Embedder's batch path.
func (a *StoreAdapter) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return a.EmbedBatch(ctx, texts)
}

var _ store.Embedder = (*StoreAdapter)(nil)
