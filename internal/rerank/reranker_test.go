package rerank

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultrag/vaultrag/internal/retrieve"
)

type fakeCrossEncoder struct {
	scores map[string]float64
	err    error
}

func (f *fakeCrossEncoder) Score(ctx context.Context, query string, documents []string) ([]float64, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]float64, len(documents))
	for i, d := range documents {
		out[i] = f.scores[d]
	}
	return out, nil
}

func (f *fakeCrossEncoder) Close() error { return nil }

var _ CrossEncoder = (*fakeCrossEncoder)(nil)

func TestRerankerSortsDescendingByScore(t *testing.T) {
	enc := &fakeCrossEncoder{scores: map[string]float64{
		"low":  0.1,
		"high": 0.9,
		"mid":  0.5,
	}}
	r := NewReranker(enc)

	ranked, err := r.Rerank(context.Background(), "q", []string{"low", "high", "mid"}, 10)
	require.NoError(t, err)
	require.Len(t, ranked, 3)
	assert.Equal(t, "high", ranked[0].Text)
	assert.Equal(t, "mid", ranked[1].Text)
	assert.Equal(t, "low", ranked[2].Text)
	assert.Equal(t, 1, ranked[0].OriginalIndex)
}

func TestRerankerTruncatesToTopK(t *testing.T) {
	enc := &fakeCrossEncoder{scores: map[string]float64{"a": 1, "b": 2, "c": 3}}
	r := NewReranker(enc)

	ranked, err := r.Rerank(context.Background(), "q", []string{"a", "b", "c"}, 2)
	require.NoError(t, err)
	assert.Len(t, ranked, 2)
	assert.Equal(t, "c", ranked[0].Text)
	assert.Equal(t, "b", ranked[1].Text)
}

func TestRerankerPropagatesEncoderError(t *testing.T) {
	enc := &fakeCrossEncoder{err: assert.AnError}
	r := NewReranker(enc)

	_, err := r.Rerank(context.Background(), "q", []string{"a"}, 10)
	require.Error(t, err)
}

type fakeSource struct {
	result *retrieve.RetrievalResult
}

func (f *fakeSource) Retrieve(ctx context.Context, query string, topK int) (*retrieve.RetrievalResult, error) {
	return f.result, nil
}

var _ retrieve.Source = (*fakeSource)(nil)

func TestRerankedRetrieverAppliesCrossEncoderScore(t *testing.T) {
	base := &fakeSource{result: &retrieve.RetrievalResult{
		Chunks: []retrieve.RetrievedChunk{
			{ID: "1", Text: "alpha", Score: 0.9},
			{ID: "2", Text: "beta", Score: 0.1},
		},
	}}
	enc := &fakeCrossEncoder{scores: map[string]float64{"alpha": 0.2, "beta": 0.8}}
	reranker := NewReranker(enc)

	rr, err := NewRerankedRetriever(base, reranker, 40)
	require.NoError(t, err)

	result, err := rr.Retrieve(context.Background(), "q", 2)
	require.NoError(t, err)
	require.Len(t, result.Chunks, 2)
	assert.Equal(t, "2", result.Chunks[0].ID)
	assert.InDelta(t, 0.8, result.Chunks[0].Score, 1e-9)
	assert.Equal(t, "1", result.Chunks[1].ID)
}

func TestNewRerankedRetrieverRejectsNilDeps(t *testing.T) {
	_, err := NewRerankedRetriever(nil, NewReranker(&fakeCrossEncoder{}), 10)
	require.Error(t, err)

	_, err = NewRerankedRetriever(&fakeSource{result: &retrieve.RetrievalResult{}}, nil, 10)
	require.Error(t, err)
}
