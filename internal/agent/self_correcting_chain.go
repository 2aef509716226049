package agent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/vaultrag/vaultrag/internal/llm"
	"github.com/vaultrag/vaultrag/internal/retrieve"
)

const answerPromptTemplate = `Based on the following context, answer the question.
If the context doesn't contain enough information, say so honestly.

Context:
%s

Question: %s

Answer:`

const noContextAnswer = "I couldn't find relevant information to answer your question."

// CorrectionResult is the outcome of one SelfCorrectingRAGChain.Query call.
type CorrectionResult struct {
	Answer           string
	Attempts         int
	FinalQuery       string
	RetrievalQuality float64
	AllQueries       []string
	RetrievalResult  *retrieve.RetrievalResult
}

// SelfCorrectingRAGChain retrieves, scores retrieval quality as the mean
// score of the top 3 chunks, and — while quality stays below threshold and
// retries remain — broadens the query at temperature 0.3 and retries before
// generating a final answer.
type SelfCorrectingRAGChain struct {
	source           retrieve.Source
	llm              llm.LLM
	qualityThreshold float64
	maxRetries       int
}

// NewSelfCorrectingRAGChain wraps source and model. qualityThreshold <= 0
// defaults to 0.5, maxRetries < 0 defaults to 2.
func NewSelfCorrectingRAGChain(source retrieve.Source, model llm.LLM, qualityThreshold float64, maxRetries int) *SelfCorrectingRAGChain {
	if qualityThreshold <= 0 {
		qualityThreshold = 0.5
	}
	if maxRetries < 0 {
		maxRetries = 2
	}
	return &SelfCorrectingRAGChain{source: source, llm: model, qualityThreshold: qualityThreshold, maxRetries: maxRetries}
}

// Query runs the retrieve-evaluate-broaden loop and generates a final
// answer from whichever retrieval satisfied the quality threshold, or from
// the last attempt if retries were exhausted.
func (c *SelfCorrectingRAGChain) Query(ctx context.Context, question string, topK int, temperature float64) (*CorrectionResult, error) {
	correlationID := uuid.NewString()
	currentQuery := question
	attempts := 0
	allQueries := []string{question}
	var result *retrieve.RetrievalResult
	quality := 0.0

	for attempts <= c.maxRetries {
		attempts++
		slog.Debug("self_correcting_retry", slog.String("correlation_id", correlationID),
			slog.Int("attempt", attempts), slog.String("query", currentQuery))

		var err error
		result, err = c.source.Retrieve(ctx, currentQuery, topK)
		if err != nil {
			return nil, fmt.Errorf("agent: retrieve: %w", err)
		}
		quality = evaluateQuality(result)

		if quality >= c.qualityThreshold {
			answer, err := c.generateAnswer(ctx, question, result, temperature)
			if err != nil {
				return nil, err
			}
			return &CorrectionResult{
				Answer: answer, Attempts: attempts, FinalQuery: currentQuery,
				RetrievalQuality: quality, AllQueries: allQueries, RetrievalResult: result,
			}, nil
		}

		if attempts <= c.maxRetries {
			broadened, err := broadenQuery(ctx, c.llm, currentQuery)
			if err != nil {
				return nil, err
			}
			currentQuery = broadened
			allQueries = append(allQueries, currentQuery)
		}
	}

	answer, err := c.generateAnswer(ctx, question, result, temperature)
	if err != nil {
		return nil, err
	}
	return &CorrectionResult{
		Answer: answer, Attempts: attempts, FinalQuery: currentQuery,
		RetrievalQuality: quality, AllQueries: allQueries, RetrievalResult: result,
	}, nil
}

func evaluateQuality(result *retrieve.RetrievalResult) float64 {
	if result == nil || len(result.Chunks) == 0 {
		return 0
	}
	n := len(result.Chunks)
	if n > 3 {
		n = 3
	}
	sum := 0.0
	for _, c := range result.Chunks[:n] {
		sum += c.Score
	}
	return sum / float64(n)
}

func (c *SelfCorrectingRAGChain) generateAnswer(ctx context.Context, question string, result *retrieve.RetrievalResult, temperature float64) (string, error) {
	if result == nil || len(result.Chunks) == 0 {
		return noContextAnswer, nil
	}

	chunks := result.Chunks
	if len(chunks) > 5 {
		chunks = chunks[:5]
	}
	contextText := retrieve.FormatContext(chunks, retrieve.FormatNumbered)

	prompt := fmt.Sprintf(answerPromptTemplate, contextText, question)
	resp, err := c.llm.Generate(ctx, []llm.Message{{Role: "user", Content: prompt}}, llm.GenerateOptions{Temperature: temperature, MaxTokens: 1024})
	if err != nil {
		return "", fmt.Errorf("agent: generate answer: %w", err)
	}
	return resp.Content, nil
}
