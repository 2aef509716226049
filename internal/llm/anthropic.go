package llm

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicLLM implements LLM against the Messages API.
type AnthropicLLM struct {
	client anthropic.Client
	model  string
}

// NewAnthropicLLM constructs an AnthropicLLM. apiKey must be non-empty;
// baseURL overrides the default endpoint when set (local proxies, etc).
func NewAnthropicLLM(apiKey, model, baseURL string) (*AnthropicLLM, error) {
	if apiKey == "" {
		return nil, &ConfigError{Reason: "anthropic: api key is required"}
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if model == "" {
		model = "claude-sonnet-4-5"
	}
	return &AnthropicLLM{
		client: anthropic.NewClient(opts...),
		model:  model,
	}, nil
}

func (a *AnthropicLLM) ModelName() string { return a.model }

func toAnthropicParams(a *AnthropicLLM, messages []Message, opts GenerateOptions) anthropic.MessageNewParams {
	maxTokens := int64(opts.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	var system string
	var turns []anthropic.MessageParam
	for _, m := range messages {
		switch m.Role {
		case "system":
			system = m.Content
		case "assistant":
			turns = append(turns, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			turns = append(turns, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: maxTokens,
		Messages:  turns,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	return params
}

func (a *AnthropicLLM) Generate(ctx context.Context, messages []Message, opts GenerateOptions) (*Response, error) {
	params := toAnthropicParams(a, messages, opts)

	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic: generate: %w", err)
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	return &Response{
		Content: text,
		Model:   string(msg.Model),
		Usage: Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
	}, nil
}

func (a *AnthropicLLM) StreamGenerate(ctx context.Context, messages []Message, opts GenerateOptions) (func(yield func(string) bool), func() error) {
	params := toAnthropicParams(a, messages, opts)
	var streamErr error

	iterator := func(yield func(string) bool) {
		stream := a.client.Messages.NewStreaming(ctx, params)
		for stream.Next() {
			event := stream.Current()
			delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent)
			if !ok {
				continue
			}
			if delta.Delta.Text == "" {
				continue
			}
			if !yield(delta.Delta.Text) {
				return
			}
		}
		streamErr = stream.Err()
	}

	return iterator, func() error { return streamErr }
}

var _ LLM = (*AnthropicLLM)(nil)
