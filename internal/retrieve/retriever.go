package retrieve

import (
	"context"
	"fmt"
	"strings"

	"github.com/vaultrag/vaultrag/internal/store"
)

// ContextFormat selects how RetrieveWithContext joins chunk text.
type ContextFormat string

const (
	// FormatNumbered produces "[i] Source: <source>\n<text>" blocks
	// joined by blank lines.
	FormatNumbered ContextFormat = "numbered"
	// FormatSimple concatenates chunk texts with a "---" delimiter.
	FormatSimple ContextFormat = "simple"
)

// Retriever answers queries against a single VectorStore.
type Retriever struct {
	vectors store.VectorStore
}

// NewRetriever wraps vectors.
func NewRetriever(vectors store.VectorStore) *Retriever {
	return &Retriever{vectors: vectors}
}

// Retrieve maps each VectorStore row to a RetrievedChunk, scoring
// score = 1/(1+distance) (score=0 when distance is unavailable).
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int) (*RetrievalResult, error) {
	return r.RetrieveFiltered(ctx, query, topK, nil, "")
}

// RetrieveFiltered is Retrieve with VectorStore's metadata/document filters.
func (r *Retriever) RetrieveFiltered(ctx context.Context, query string, topK int, where map[string]string, whereDocument string) (*RetrievalResult, error) {
	rows, err := r.vectors.Query(ctx, query, topK, where, whereDocument)
	if err != nil {
		return nil, fmt.Errorf("retrieve: query: %w", err)
	}

	chunks := make([]RetrievedChunk, 0, len(rows))
	for _, row := range rows {
		chunks = append(chunks, RetrievedChunk{
			ID:       row.ID,
			Text:     row.Text,
			Metadata: row.Metadata,
			Score:    distanceToScore(row.Distance),
		})
	}

	return &RetrievalResult{Query: query, Chunks: chunks}, nil
}

func distanceToScore(distance float32) float64 {
	if distance < 0 {
		return 0
	}
	return 1 / (1 + float64(distance))
}

// RetrieveWithContext retrieves topK chunks and renders them per format.
func (r *Retriever) RetrieveWithContext(ctx context.Context, query string, topK int, format ContextFormat) (string, *RetrievalResult, error) {
	result, err := r.Retrieve(ctx, query, topK)
	if err != nil {
		return "", nil, err
	}
	return FormatContext(result.Chunks, format), result, nil
}

// FormatContext renders chunks per format, shared by Retriever and
// RerankedRetriever so both produce identical prompt context shapes.
func FormatContext(chunks []RetrievedChunk, format ContextFormat) string {
	if len(chunks) == 0 {
		return ""
	}

	if format == FormatSimple {
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Text
		}
		return strings.Join(texts, "\n---\n")
	}

	blocks := make([]string, len(chunks))
	for i, c := range chunks {
		source := c.Metadata["relative_path"]
		if source == "" {
			source = c.Metadata["source"]
		}
		if source == "" {
			source = "unknown"
		}
		blocks[i] = fmt.Sprintf("[%d] Source: %s\n%s", i+1, source, c.Text)
	}
	return strings.Join(blocks, "\n\n")
}

var _ Source = (*Retriever)(nil)
