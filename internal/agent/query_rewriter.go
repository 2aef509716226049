package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/vaultrag/vaultrag/internal/llm"
)

const rewritePromptTemplate = `You are a query analysis expert.

Given the conversation history and current question, analyze and rewrite the query if needed.

Conversation History:
%s

Current Question:
%s

Rules:
1. If the question contains ambiguous references (e.g., "it", "that", "this"), resolve them using conversation history
2. If the question is complex, split it into up to 3 sub-questions
3. If the question is already clear and simple, return it as-is
4. Always respond in the SAME LANGUAGE as the original question

Response Format (JSON only, no markdown):
{
    "is_clear": true/false,
    "rewritten_queries": ["query1", "query2", ...],
    "clarification_needed": "what clarification is needed, or null if not needed"
}`

const broadenPromptTemplate = `The following search query did not find good results.
Please rewrite it to be broader and more likely to find relevant documents.
Keep the core meaning but use more general terms or synonyms.
Respond with ONLY the rewritten query, nothing else.

Original query: %s

Rewritten query:`

// RewriteResult is QueryRewriter's analysis of a single question.
type RewriteResult struct {
	IsClear             bool
	RewrittenQueries    []string
	ClarificationNeeded string
	OriginalQuery       string
}

// QueryRewriter resolves ambiguous references and splits compound questions
// using an LLM, with a deterministic fallback when the LLM's response isn't
// parseable JSON.
type QueryRewriter struct {
	llm llm.LLM
}

// NewQueryRewriter wraps model.
func NewQueryRewriter(model llm.LLM) *QueryRewriter {
	return &QueryRewriter{llm: model}
}

var codeFence = regexp.MustCompile("```(?:json)?\\s*")

// ambiguousPatterns is the pronoun/deictic check used by ResolveReferences
// to skip a rewrite round-trip when a query plainly doesn't need one. It
// matches English pronouns and the Korean demonstratives 그것/이것 (matched
// without word boundaries, since \b only recognizes ASCII word characters).
var ambiguousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(it|this|that|these|those)\b`),
	regexp.MustCompile(`(?i)\b(the same)\b`),
	regexp.MustCompile(`(그것|이것)`),
}

// Rewrite asks the LLM to analyze query against history and returns its
// parsed decision, falling back to {IsClear: true, [query]} if the
// response can't be parsed as JSON.
func (r *QueryRewriter) Rewrite(ctx context.Context, query string, history []Message) (*RewriteResult, error) {
	prompt := fmt.Sprintf(rewritePromptTemplate, formatHistory(history), query)

	resp, err := r.llm.Generate(ctx, []llm.Message{{Role: "user", Content: prompt}}, llm.DefaultGenerateOptions())
	if err != nil {
		return nil, fmt.Errorf("agent: rewrite: %w", err)
	}

	parsed := parseRewriteResponse(resp.Content, query)
	parsed.OriginalQuery = query
	return parsed, nil
}

// ResolveReferences rewrites query only when it contains an ambiguous
// pronoun/deictic reference resolvable from history; otherwise it returns
// query unchanged, avoiding an LLM round-trip for the common case.
func (r *QueryRewriter) ResolveReferences(ctx context.Context, query string, history []Message) (string, error) {
	if len(history) == 0 {
		return query, nil
	}

	ambiguous := false
	for _, p := range ambiguousPatterns {
		if p.MatchString(query) {
			ambiguous = true
			break
		}
	}
	if !ambiguous {
		return query, nil
	}

	result, err := r.Rewrite(ctx, query, history)
	if err != nil {
		return query, err
	}
	if len(result.RewrittenQueries) > 0 {
		return result.RewrittenQueries[0], nil
	}
	return query, nil
}

func formatHistory(history []Message) string {
	if len(history) == 0 {
		return "(No previous conversation)"
	}

	start := 0
	if len(history) > 6 {
		start = len(history) - 6
	}

	var b strings.Builder
	for i, msg := range history[start:] {
		if i > 0 {
			b.WriteByte('\n')
		}
		content := msg.Content
		if len(content) > 200 {
			content = content[:200] + "..."
		}
		fmt.Fprintf(&b, "%s: %s", msg.Role, content)
	}
	return b.String()
}

type rewriteResponseJSON struct {
	IsClear             *bool    `json:"is_clear"`
	RewrittenQueries    []string `json:"rewritten_queries"`
	ClarificationNeeded *string  `json:"clarification_needed"`
}

// parseRewriteResponse is code-fence-tolerant: it strips a leading/trailing
// ``` or ```json fence, then falls back to scanning for the first {...}
// object if the whole trimmed string isn't valid JSON, and finally falls
// back to originalQuery as the single clear query.
func parseRewriteResponse(content, originalQuery string) *RewriteResult {
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = codeFence.ReplaceAllString(trimmed, "")
		trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
		trimmed = strings.TrimSpace(trimmed)
	}

	if parsed, ok := decodeRewriteJSON(trimmed); ok {
		return toRewriteResult(parsed, originalQuery)
	}

	if start := strings.IndexByte(trimmed, '{'); start >= 0 {
		if end := strings.LastIndexByte(trimmed, '}'); end > start {
			if parsed, ok := decodeRewriteJSON(trimmed[start : end+1]); ok {
				return toRewriteResult(parsed, originalQuery)
			}
		}
	}

	return &RewriteResult{IsClear: true, RewrittenQueries: []string{originalQuery}}
}

func decodeRewriteJSON(s string) (rewriteResponseJSON, bool) {
	var parsed rewriteResponseJSON
	if err := json.Unmarshal([]byte(s), &parsed); err != nil {
		return rewriteResponseJSON{}, false
	}
	return parsed, true
}

func toRewriteResult(parsed rewriteResponseJSON, originalQuery string) *RewriteResult {
	result := &RewriteResult{IsClear: true, RewrittenQueries: []string{originalQuery}}
	if parsed.IsClear != nil {
		result.IsClear = *parsed.IsClear
	}
	if len(parsed.RewrittenQueries) > 0 {
		result.RewrittenQueries = parsed.RewrittenQueries
	}
	if parsed.ClarificationNeeded != nil {
		result.ClarificationNeeded = *parsed.ClarificationNeeded
	}
	return result
}

// broadenQuery asks the LLM to rewrite query in broader terms, used by
// SelfCorrectingRAGChain when retrieval quality falls below threshold.
func broadenQuery(ctx context.Context, model llm.LLM, query string) (string, error) {
	prompt := fmt.Sprintf(broadenPromptTemplate, query)
	resp, err := model.Generate(ctx, []llm.Message{{Role: "user", Content: prompt}}, llm.GenerateOptions{Temperature: 0.3, MaxTokens: 256})
	if err != nil {
		return "", fmt.Errorf("agent: broaden query: %w", err)
	}
	return strings.TrimSpace(resp.Content), nil
}
