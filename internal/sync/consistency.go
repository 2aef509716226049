package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/vaultrag/vaultrag/internal/store"
)

// InconsistencyType categorizes a detected registry/store mismatch.
type InconsistencyType int

const (
	// InconsistencyOrphanKeyword indicates a BM25 entry with no matching
	// registry-expected chunk id.
	InconsistencyOrphanKeyword InconsistencyType = iota
	// InconsistencyMissingVector indicates a vector store row whose id has
	// no registry-expected counterpart.
	InconsistencyMissingVector
	// InconsistencyChunkCountMismatch indicates the vector store holds a
	// different number of live chunks for a path than the registry records.
	InconsistencyChunkCountMismatch
)

func (t InconsistencyType) String() string {
	switch t {
	case InconsistencyOrphanKeyword:
		return "orphan_keyword"
	case InconsistencyMissingVector:
		return "missing_vector"
	case InconsistencyChunkCountMismatch:
		return "chunk_count_mismatch"
	default:
		return "unknown"
	}
}

// Inconsistency is one detected cross-store issue.
type Inconsistency struct {
	Type         InconsistencyType
	RelativePath string
	Details      string
}

// CheckResult is the outcome of a consistency check.
type CheckResult struct {
	Checked         int
	Inconsistencies []Inconsistency
	Duration        time.Duration
}

// ConsistencyChecker validates that a Registry's chunk_count bookkeeping
// agrees with what the vector store and keyword index actually hold,
// catching orphaned or missing chunks without a separate SQL metadata
// store to cross-reference against.
type ConsistencyChecker struct {
	registry *Registry
	vectors  store.VectorStore
	keywords store.BM25Index // optional
}

// NewConsistencyChecker creates a checker over registry and the stores it
// should agree with.
func NewConsistencyChecker(registry *Registry, vectors store.VectorStore, keywords store.BM25Index) *ConsistencyChecker {
	return &ConsistencyChecker{registry: registry, vectors: vectors, keywords: keywords}
}

// Check scans the registry and, for each tracked path, confirms the vector
// store reports exactly chunk_count live rows for it, and that the keyword index carries no id outside what the registry
// expects.
func (c *ConsistencyChecker) Check(ctx context.Context) (*CheckResult, error) {
	start := time.Now()
	result := &CheckResult{}

	files := c.registry.Files()
	expected := make(map[string]struct{})

	for rp, entry := range files {
		result.Checked++
		for i := 0; i < entry.ChunkCount; i++ {
			expected[store.ChunkID(rp, i)] = struct{}{}
		}

		rows, err := c.vectors.Query(ctx, rp, entry.ChunkCount+sampleSize, map[string]string{"relative_path": rp}, "")
		if err != nil {
			return nil, fmt.Errorf("query vectors for %s: %w", rp, err)
		}
		if len(rows) != entry.ChunkCount {
			result.Inconsistencies = append(result.Inconsistencies, Inconsistency{
				Type:         InconsistencyChunkCountMismatch,
				RelativePath: rp,
				Details:      fmt.Sprintf("registry chunk_count=%d, vector store has %d", entry.ChunkCount, len(rows)),
			})
		}
		for _, row := range rows {
			if _, ok := expected[row.ID]; !ok {
				result.Inconsistencies = append(result.Inconsistencies, Inconsistency{
					Type:         InconsistencyMissingVector,
					RelativePath: rp,
					Details:      fmt.Sprintf("unexpected vector id %s", row.ID),
				})
			}
		}
	}

	if c.keywords != nil {
		ids, err := c.keywords.AllIDs()
		if err != nil {
			return nil, fmt.Errorf("list keyword ids: %w", err)
		}
		for _, id := range ids {
			if _, ok := expected[id]; !ok {
				result.Inconsistencies = append(result.Inconsistencies, Inconsistency{
					Type:    InconsistencyOrphanKeyword,
					Details: fmt.Sprintf("keyword id %s has no registry-expected counterpart", id),
				})
			}
		}
	}

	result.Duration = time.Since(start)
	return result, nil
}
