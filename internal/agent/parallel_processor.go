package agent

import (
	"context"
	"log/slog"
	"sort"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/vaultrag/vaultrag/internal/retrieve"
)

// AggregatedResult is the de-duplicated, score-sorted union of several
// per-query RetrievalResults.
type AggregatedResult struct {
	Queries      []string
	Chunks       []retrieve.RetrievedChunk
	TotalCount   int
	QueryResults map[string]*retrieve.RetrievalResult
}

// ParallelQueryProcessor fans a set of queries out across a bounded worker
// pool, dropping individual query failures rather than failing the whole
// batch.
type ParallelQueryProcessor struct {
	source     retrieve.Source
	maxWorkers int
}

// NewParallelQueryProcessor wraps source. maxWorkers <= 0 defaults to 3.
func NewParallelQueryProcessor(source retrieve.Source, maxWorkers int) *ParallelQueryProcessor {
	if maxWorkers <= 0 {
		maxWorkers = 3
	}
	return &ParallelQueryProcessor{source: source, maxWorkers: maxWorkers}
}

// ProcessQueries retrieves each query concurrently, bounded by maxWorkers.
// A single query failing does not fail the batch; its result is simply
// omitted.
func (p *ParallelQueryProcessor) ProcessQueries(ctx context.Context, queries []string, topK int) []*retrieve.RetrievalResult {
	if len(queries) == 0 {
		return nil
	}
	if len(queries) == 1 {
		result, err := p.source.Retrieve(ctx, queries[0], topK)
		if err != nil {
			return nil
		}
		return []*retrieve.RetrievalResult{result}
	}

	results := make([]*retrieve.RetrievalResult, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.maxWorkers)

	for i, q := range queries {
		i, q := i, q
		taskID := uuid.NewString()
		g.Go(func() error {
			slog.Debug("parallel_query_task_start", slog.String("task_id", taskID), slog.String("query", q))
			result, err := p.source.Retrieve(gctx, q, topK)
			if err != nil {
				slog.Debug("parallel_query_task_failed", slog.String("task_id", taskID), slog.String("error", err.Error()))
				return nil // dropped, not propagated: one bad query shouldn't sink the batch
			}
			results[i] = result
			return nil
		})
	}
	_ = g.Wait()

	out := make([]*retrieve.RetrievalResult, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

// AggregateResults unions the chunks of results, de-duplicating by id
// (keeping the first occurrence), sorting by score descending, and
// truncating to topK.
func (p *ParallelQueryProcessor) AggregateResults(results []*retrieve.RetrievalResult, topK int, dedup bool) *AggregatedResult {
	if len(results) == 0 {
		return &AggregatedResult{}
	}

	agg := &AggregatedResult{QueryResults: make(map[string]*retrieve.RetrievalResult, len(results))}
	seen := make(map[string]bool)

	for _, result := range results {
		agg.Queries = append(agg.Queries, result.Query)
		agg.QueryResults[result.Query] = result

		for _, chunk := range result.Chunks {
			if dedup && seen[chunk.ID] {
				continue
			}
			agg.Chunks = append(agg.Chunks, chunk)
			if dedup {
				seen[chunk.ID] = true
			}
		}
	}

	sort.SliceStable(agg.Chunks, func(i, j int) bool {
		return agg.Chunks[i].Score > agg.Chunks[j].Score
	})

	agg.TotalCount = len(agg.Chunks)
	if topK > 0 && topK < len(agg.Chunks) {
		agg.Chunks = agg.Chunks[:topK]
	}
	return agg
}

// ProcessAndAggregate is ProcessQueries followed by AggregateResults.
func (p *ParallelQueryProcessor) ProcessAndAggregate(ctx context.Context, queries []string, topKPerQuery, topKFinal int, dedup bool) *AggregatedResult {
	results := p.ProcessQueries(ctx, queries, topKPerQuery)
	return p.AggregateResults(results, topKFinal, dedup)
}
