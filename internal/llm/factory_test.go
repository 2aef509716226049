package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsUnknownProvider(t *testing.T) {
	_, err := New(Strategy{Provider: "llama-farm", APIKey: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestNewOpenAIRejectsMalformedKeyPrefix(t *testing.T) {
	_, err := New(Strategy{Provider: "openai", APIKey: "not-sk-prefixed"})
	require.Error(t, err)
	var cfgErr *ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestNewAnthropicRejectsEmptyKey(t *testing.T) {
	_, err := New(Strategy{Provider: "anthropic"})
	require.Error(t, err)
	var cfgErr *ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestNewAnthropicAcceptsValidKey(t *testing.T) {
	got, err := New(Strategy{Provider: "anthropic", APIKey: "x", Model: "claude-sonnet-4-5"})
	require.NoError(t, err)
	assert.Equal(t, "claude-sonnet-4-5", got.ModelName())
}
