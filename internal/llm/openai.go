package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAILLM implements LLM against the Chat Completions API.
type OpenAILLM struct {
	client openai.Client
	model  string
}

// NewOpenAILLM constructs an OpenAILLM. OpenAI keys must start with "sk-";
// this is checked before any network call.
func NewOpenAILLM(apiKey, model, baseURL string) (*OpenAILLM, error) {
	if apiKey == "" {
		return nil, &ConfigError{Reason: "openai: api key is required"}
	}
	if !strings.HasPrefix(apiKey, "sk-") {
		return nil, &ConfigError{Reason: "openai: api key must start with \"sk-\""}
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if model == "" {
		model = openai.ChatModelGPT4oMini
	}
	return &OpenAILLM{
		client: openai.NewClient(opts...),
		model:  model,
	}, nil
}

func (o *OpenAILLM) ModelName() string { return o.model }

func toOpenAIParams(o *OpenAILLM, messages []Message, opts GenerateOptions) openai.ChatCompletionNewParams {
	var turns []openai.ChatCompletionMessageParamUnion
	for _, m := range messages {
		switch m.Role {
		case "system":
			turns = append(turns, openai.SystemMessage(m.Content))
		case "assistant":
			turns = append(turns, openai.AssistantMessage(m.Content))
		default:
			turns = append(turns, openai.UserMessage(m.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:       o.model,
		Messages:    turns,
		Temperature: openai.Float(opts.Temperature),
	}
	if opts.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(opts.MaxTokens))
	}
	return params
}

func (o *OpenAILLM) Generate(ctx context.Context, messages []Message, opts GenerateOptions) (*Response, error) {
	params := toOpenAIParams(o, messages, opts)

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai: generate: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai: empty choices in response")
	}

	return &Response{
		Content: resp.Choices[0].Message.Content,
		Model:   resp.Model,
		Usage: Usage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
		},
	}, nil
}

func (o *OpenAILLM) StreamGenerate(ctx context.Context, messages []Message, opts GenerateOptions) (func(yield func(string) bool), func() error) {
	params := toOpenAIParams(o, messages, opts)
	var streamErr error

	iterator := func(yield func(string) bool) {
		stream := o.client.Chat.Completions.NewStreaming(ctx, params)
		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			delta := chunk.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			if !yield(delta) {
				return
			}
		}
		streamErr = stream.Err()
	}

	return iterator, func() error { return streamErr }
}

var _ LLM = (*OpenAILLM)(nil)
