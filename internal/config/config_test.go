package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigWeightsSumToOne(t *testing.T) {
	cfg := NewConfig()
	assert.InDelta(t, 1.0, cfg.Search.BM25Weight+cfg.Search.SemanticWeight, 0.001)
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsUnbalancedWeights(t *testing.T) {
	cfg := NewConfig()
	cfg.Search.BM25Weight = 0.9
	cfg.Search.SemanticWeight = 0.9
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsMalformedOpenAIKey(t *testing.T) {
	cfg := NewConfig()
	cfg.LLM.Provider = "openai"
	cfg.LLM.APIKey = "not-a-key"
	assert.Error(t, cfg.Validate())
}

func TestValidateAcceptsWellFormedOpenAIKey(t *testing.T) {
	cfg := NewConfig()
	cfg.LLM.Provider = "openai"
	cfg.LLM.APIKey = "sk-abc123"
	assert.NoError(t, cfg.Validate())
}

func TestLoadMergesVaultYAMLOverDefaults(t *testing.T) {
	dir := t.TempDir()
	yamlContent := `
search:
  bm25_weight: 0.3
  semantic_weight: 0.7
embeddings:
  model: custom-model
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".vaultrag.yaml"), []byte(yamlContent), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 0.3, cfg.Search.BM25Weight)
	assert.Equal(t, 0.7, cfg.Search.SemanticWeight)
	assert.Equal(t, "custom-model", cfg.Embeddings.Model)
	assert.Equal(t, dir, cfg.Paths.VaultRoot)
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("VAULTRAG_EMBEDDINGS_MODEL", "from-env")
	t.Setenv("VAULTRAG_RRF_CONSTANT", "30")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Embeddings.Model)
	assert.Equal(t, 30, cfg.Search.RRFConstant)
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, NewConfig().Search.RRFConstant, cfg.Search.RRFConstant)
}

func TestWriteYAMLRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.yaml")
	cfg := NewConfig()
	require.NoError(t, cfg.WriteYAML(path))

	reloaded := NewConfig()
	require.NoError(t, reloaded.loadYAML(path))
	assert.Equal(t, cfg.Search.BM25Weight, reloaded.Search.BM25Weight)
}
