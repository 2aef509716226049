// Package config loads and validates vaultrag's configuration: hardcoded
// defaults, layered with an optional per-vault YAML file, layered with
// environment variable overrides (highest precedence).
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config is the complete vaultrag configuration, mirroring SPEC_FULL.md's
// ambient config-layer design.
type Config struct {
	Version     int               `yaml:"version" json:"version"`
	Paths       PathsConfig       `yaml:"paths" json:"paths"`
	Search      SearchConfig      `yaml:"search" json:"search"`
	Embeddings  EmbeddingsConfig  `yaml:"embeddings" json:"embeddings"`
	LLM         LLMConfig         `yaml:"llm" json:"llm"`
	Rerank      RerankConfig      `yaml:"rerank" json:"rerank"`
	Agentic     AgenticConfig     `yaml:"agentic" json:"agentic"`
	Sync        SyncConfig        `yaml:"sync" json:"sync"`
	Performance PerformanceConfig `yaml:"performance" json:"performance"`
}

// PathsConfig configures which vault paths are included and excluded.
type PathsConfig struct {
	VaultRoot string   `yaml:"vault_root" json:"vault_root" env:"VAULTRAG_VAULT_ROOT"`
	Include   []string `yaml:"include" json:"include"`
	Exclude   []string `yaml:"exclude" json:"exclude"`
}

// SearchConfig configures hybrid search fusion.
type SearchConfig struct {
	BM25Weight     float64 `yaml:"bm25_weight" json:"bm25_weight" env:"VAULTRAG_BM25_WEIGHT"`
	SemanticWeight float64 `yaml:"semantic_weight" json:"semantic_weight" env:"VAULTRAG_SEMANTIC_WEIGHT"`
	RRFConstant    int     `yaml:"rrf_constant" json:"rrf_constant" env:"VAULTRAG_RRF_CONSTANT"`
	ChunkSize      int     `yaml:"chunk_size" json:"chunk_size"`
	ChunkOverlap   int     `yaml:"chunk_overlap" json:"chunk_overlap"`
	MaxResults     int     `yaml:"max_results" json:"max_results"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	Provider   string `yaml:"provider" json:"provider" env:"VAULTRAG_EMBEDDER"`
	Model      string `yaml:"model" json:"model" env:"VAULTRAG_EMBEDDINGS_MODEL"`
	Dimensions int    `yaml:"dimensions" json:"dimensions"`
	BatchSize  int    `yaml:"batch_size" json:"batch_size"`

	OllamaHost      string        `yaml:"ollama_host" json:"ollama_host" env:"VAULTRAG_OLLAMA_HOST"`
	DownloadTimeout time.Duration `yaml:"download_timeout" json:"download_timeout"`
}

// LLMConfig configures the agentic layer's language model capability.
type LLMConfig struct {
	Provider string `yaml:"provider" json:"provider" env:"VAULTRAG_LLM_PROVIDER"`
	Model    string `yaml:"model" json:"model" env:"VAULTRAG_LLM_MODEL"`
	APIKey   string `yaml:"-" json:"-" env:"VAULTRAG_LLM_API_KEY"`
	BaseURL  string `yaml:"base_url" json:"base_url" env:"VAULTRAG_LLM_BASE_URL"`
}

// RerankConfig configures the cross-encoder reranker.
type RerankConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	ModelDir string `yaml:"model_dir" json:"model_dir" env:"VAULTRAG_RERANK_MODEL_DIR"`
	InitialK int    `yaml:"initial_k" json:"initial_k"`
}

// AgenticConfig configures query rewriting, the self-correcting chain, and
// bounded multi-query fan-out.
type AgenticConfig struct {
	QueryRewriteEnabled bool    `yaml:"query_rewrite_enabled" json:"query_rewrite_enabled"`
	QualityThreshold    float64 `yaml:"quality_threshold" json:"quality_threshold"`
	MaxRetries          int     `yaml:"max_retries" json:"max_retries"`
	MaxParallelQueries  int     `yaml:"max_parallel_queries" json:"max_parallel_queries"`
}

// SyncConfig configures the file-watch trigger for incremental sync.
type SyncConfig struct {
	Watch         bool   `yaml:"watch" json:"watch"`
	WatchDebounce string `yaml:"watch_debounce" json:"watch_debounce"`
}

// PerformanceConfig configures worker/cache tuning.
type PerformanceConfig struct {
	MaxFiles     int `yaml:"max_files" json:"max_files"`
	IndexWorkers int `yaml:"index_workers" json:"index_workers"`
	CacheSize    int `yaml:"cache_size" json:"cache_size"`
}

var defaultExcludePatterns = []string{
	"**/.git/**",
	"**/.obsidian/**",
	"**/.trash/**",
	"**/node_modules/**",
}

// NewConfig returns a Config populated with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			Include: []string{},
			Exclude: defaultExcludePatterns,
		},
		Search: SearchConfig{
			BM25Weight:     0.4,
			SemanticWeight: 0.6,
			RRFConstant:    60,
			ChunkSize:      512,
			ChunkOverlap:   64,
			MaxResults:     20,
		},
		Embeddings: EmbeddingsConfig{
			Provider:        "", // empty triggers auto-detection
			Model:           "nomic-embed-text",
			Dimensions:      0, // auto-detect from embedder
			BatchSize:       32,
			OllamaHost:      "",
			DownloadTimeout: 10 * time.Minute,
		},
		LLM: LLMConfig{
			Provider: "anthropic",
			Model:    "claude-sonnet-4-5",
		},
		Rerank: RerankConfig{
			Enabled:  false,
			InitialK: 40,
		},
		Agentic: AgenticConfig{
			QueryRewriteEnabled: true,
			QualityThreshold:    0.5,
			MaxRetries:          2,
			MaxParallelQueries:  3,
		},
		Sync: SyncConfig{
			Watch:         false,
			WatchDebounce: "500ms",
		},
		Performance: PerformanceConfig{
			MaxFiles:     100000,
			IndexWorkers: runtime.NumCPU(),
			CacheSize:    1000,
		},
	}
}

// Load builds a Config for vaultRoot in order of increasing precedence:
//  1. Hardcoded defaults
//  2. <vaultRoot>/.vaultrag.yaml
//  3. Environment variables (VAULTRAG_*)
func Load(vaultRoot string) (*Config, error) {
	cfg := NewConfig()
	cfg.Paths.VaultRoot = vaultRoot

	if err := cfg.loadFromFile(vaultRoot); err != nil {
		return nil, err
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFromFile(dir string) error {
	for _, name := range []string{".vaultrag.yaml", ".vaultrag.yml"} {
		path := filepath.Join(dir, name)
		if fileExists(path) {
			return c.loadYAML(path)
		}
	}
	return nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}
	if len(other.Paths.Include) > 0 {
		c.Paths.Include = other.Paths.Include
	}
	if len(other.Paths.Exclude) > 0 {
		c.Paths.Exclude = append(c.Paths.Exclude, other.Paths.Exclude...)
	}
	if other.Search.BM25Weight != 0 {
		c.Search.BM25Weight = other.Search.BM25Weight
	}
	if other.Search.SemanticWeight != 0 {
		c.Search.SemanticWeight = other.Search.SemanticWeight
	}
	if other.Search.RRFConstant != 0 {
		c.Search.RRFConstant = other.Search.RRFConstant
	}
	if other.Search.ChunkSize != 0 {
		c.Search.ChunkSize = other.Search.ChunkSize
	}
	if other.Search.ChunkOverlap != 0 {
		c.Search.ChunkOverlap = other.Search.ChunkOverlap
	}
	if other.Search.MaxResults != 0 {
		c.Search.MaxResults = other.Search.MaxResults
	}
	if other.Embeddings.Provider != "" {
		c.Embeddings.Provider = other.Embeddings.Provider
	}
	if other.Embeddings.Model != "" {
		c.Embeddings.Model = other.Embeddings.Model
	}
	if other.Embeddings.Dimensions != 0 {
		c.Embeddings.Dimensions = other.Embeddings.Dimensions
	}
	if other.Embeddings.BatchSize != 0 {
		c.Embeddings.BatchSize = other.Embeddings.BatchSize
	}
	if other.Embeddings.OllamaHost != "" {
		c.Embeddings.OllamaHost = other.Embeddings.OllamaHost
	}
	if other.LLM.Provider != "" {
		c.LLM.Provider = other.LLM.Provider
	}
	if other.LLM.Model != "" {
		c.LLM.Model = other.LLM.Model
	}
	if other.LLM.BaseURL != "" {
		c.LLM.BaseURL = other.LLM.BaseURL
	}
	if other.Rerank.ModelDir != "" {
		c.Rerank.ModelDir = other.Rerank.ModelDir
		c.Rerank.Enabled = true
	}
	if other.Rerank.InitialK != 0 {
		c.Rerank.InitialK = other.Rerank.InitialK
	}
	if other.Agentic.QualityThreshold != 0 {
		c.Agentic.QualityThreshold = other.Agentic.QualityThreshold
	}
	if other.Agentic.MaxRetries != 0 {
		c.Agentic.MaxRetries = other.Agentic.MaxRetries
	}
	if other.Agentic.MaxParallelQueries != 0 {
		c.Agentic.MaxParallelQueries = other.Agentic.MaxParallelQueries
	}
	if other.Sync.WatchDebounce != "" {
		c.Sync.WatchDebounce = other.Sync.WatchDebounce
	}
	if other.Sync.Watch {
		c.Sync.Watch = other.Sync.Watch
	}
	if other.Performance.MaxFiles != 0 {
		c.Performance.MaxFiles = other.Performance.MaxFiles
	}
	if other.Performance.IndexWorkers != 0 {
		c.Performance.IndexWorkers = other.Performance.IndexWorkers
	}
	if other.Performance.CacheSize != 0 {
		c.Performance.CacheSize = other.Performance.CacheSize
	}
}

// Validate checks configuration invariants the rest of the package relies
// on: the hybrid searcher's weight-sum tolerance (fail at construction,
// never silently renormalize) and the OpenAI API key prefix check.
func (c *Config) Validate() error {
	if c.Search.BM25Weight < 0 || c.Search.BM25Weight > 1 {
		return fmt.Errorf("bm25_weight must be between 0 and 1, got %f", c.Search.BM25Weight)
	}
	if c.Search.SemanticWeight < 0 || c.Search.SemanticWeight > 1 {
		return fmt.Errorf("semantic_weight must be between 0 and 1, got %f", c.Search.SemanticWeight)
	}
	if sum := c.Search.BM25Weight + c.Search.SemanticWeight; math.Abs(sum-1.0) > 0.01 {
		return fmt.Errorf("bm25_weight + semantic_weight must equal 1.0 (±0.01), got %.2f", sum)
	}
	if c.Search.MaxResults < 0 {
		return fmt.Errorf("max_results must be non-negative, got %d", c.Search.MaxResults)
	}
	if c.Search.ChunkSize < 0 {
		return fmt.Errorf("chunk_size must be non-negative, got %d", c.Search.ChunkSize)
	}

	if c.Embeddings.Provider != "" {
		valid := map[string]bool{"static": true, "ollama": true, "mlx": true}
		if !valid[strings.ToLower(c.Embeddings.Provider)] {
			return fmt.Errorf("embeddings.provider must be 'static', 'ollama', 'mlx', or empty (auto-detect), got %s", c.Embeddings.Provider)
		}
	}

	if strings.EqualFold(c.LLM.Provider, "openai") && c.LLM.APIKey != "" && !strings.HasPrefix(c.LLM.APIKey, "sk-") {
		return fmt.Errorf("openai API keys must start with 'sk-'")
	}

	return nil
}

// WriteYAML persists the configuration to path.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
