package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/vaultrag/vaultrag/internal/config"
	"github.com/vaultrag/vaultrag/internal/vaulterrors"
)

// Strategy tags which concrete LLM to build. Construction fails fast
// rather than falling back silently to a different provider.
type Strategy struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
}

// StrategyFromConfig adapts a config.LLMConfig into a Strategy.
func StrategyFromConfig(cfg config.LLMConfig) Strategy {
	return Strategy{
		Provider: cfg.Provider,
		Model:    cfg.Model,
		APIKey:   cfg.APIKey,
		BaseURL:  cfg.BaseURL,
	}
}

// New builds the LLM named by s.Provider, failing at construction time on
// any misconfiguration (missing key, malformed key prefix, unknown
// provider) rather than at first use.
func New(s Strategy) (LLM, error) {
	switch strings.ToLower(s.Provider) {
	case "anthropic":
		return NewAnthropicLLM(s.APIKey, s.Model, s.BaseURL)
	case "openai":
		return NewOpenAILLM(s.APIKey, s.Model, s.BaseURL)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, s.Provider)
	}
}

// CircuitBreakingLLM wraps an LLM with a circuit breaker so a flapping
// provider stops eating every caller's latency budget once it has failed
// repeatedly — the circuit opens after a run of failures and short-circuits
// subsequent calls with ErrCircuitOpen until the reset timeout elapses.
type CircuitBreakingLLM struct {
	inner   LLM
	breaker *vaulterrors.CircuitBreaker
}

// NewCircuitBreakingLLM wraps inner with a named circuit breaker.
func NewCircuitBreakingLLM(inner LLM) *CircuitBreakingLLM {
	return &CircuitBreakingLLM{
		inner:   inner,
		breaker: vaulterrors.NewCircuitBreaker("llm:" + inner.ModelName()),
	}
}

func (c *CircuitBreakingLLM) ModelName() string { return c.inner.ModelName() }

func (c *CircuitBreakingLLM) Generate(ctx context.Context, messages []Message, opts GenerateOptions) (*Response, error) {
	return vaulterrors.CircuitExecuteWithResult(c.breaker,
		func() (*Response, error) { return c.inner.Generate(ctx, messages, opts) },
		func() (*Response, error) { return nil, vaulterrors.ErrCircuitOpen },
	)
}

// StreamGenerate does not route through the breaker: a half-open trial
// request for a token stream would hold the circuit open for the whole
// stream duration, so streaming calls bypass breaker bookkeeping and rely
// on the caller's own context deadline for cancellation.
func (c *CircuitBreakingLLM) StreamGenerate(ctx context.Context, messages []Message, opts GenerateOptions) (func(yield func(string) bool), func() error) {
	return c.inner.StreamGenerate(ctx, messages, opts)
}

var _ LLM = (*CircuitBreakingLLM)(nil)
