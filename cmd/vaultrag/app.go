package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/vaultrag/vaultrag/internal/chunk"
	"github.com/vaultrag/vaultrag/internal/config"
	"github.com/vaultrag/vaultrag/internal/embed"
	"github.com/vaultrag/vaultrag/internal/obslog"
	"github.com/vaultrag/vaultrag/internal/rerank"
	"github.com/vaultrag/vaultrag/internal/retrieve"
	"github.com/vaultrag/vaultrag/internal/scan"
	"github.com/vaultrag/vaultrag/internal/store"
	vsync "github.com/vaultrag/vaultrag/internal/sync"
	"github.com/vaultrag/vaultrag/internal/telemetry"
)

// dataDirName is the per-vault directory holding the registry, HNSW graph,
// BM25 index, and downloaded embedding models.
const dataDirName = ".vaultrag"

// app wires together one vault's config, stores, and the metrics registry
// shared across every subcommand invocation.
type app struct {
	cfg      *config.Config
	root     string
	dataDir  string
	log      *slog.Logger
	metrics  *telemetry.Metrics
	vectors  store.VectorStore
	keywords store.BM25Index
	embedder embed.Embedder
}

func newApp(vaultRoot string, debug bool) (*app, error) {
	root, err := filepath.Abs(vaultRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve vault root: %w", err)
	}

	cfg, err := config.Load(root)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logCfg := obslog.DefaultConfig()
	if debug {
		logCfg = obslog.DebugConfig()
	}
	logger, _, err := obslog.Setup(logCfg)
	if err != nil {
		return nil, fmt.Errorf("set up logging: %w", err)
	}

	dataDir := filepath.Join(root, dataDirName)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	ctx := context.Background()
	provider := embed.ParseProvider(cfg.Embeddings.Provider)
	embedder, err := embed.NewEmbedder(ctx, provider, cfg.Embeddings.Model)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}

	registry, err := embed.NewEmbedderRegistry(filepath.Join(dataDir, "models"))
	if err != nil {
		return nil, fmt.Errorf("create embedder registry: %w", err)
	}
	registry.MarkReady(embedder.ModelName())

	vectorCfg := store.DefaultVectorStoreConfig(embedder.Dimensions())
	vectors, err := store.NewChunkStore(vectorCfg, embed.NewStoreAdapter(embedder))
	if err != nil {
		return nil, fmt.Errorf("create vector store: %w", err)
	}
	vectorPath := filepath.Join(dataDir, "vectors.hnsw")
	if _, statErr := os.Stat(vectorPath); statErr == nil {
		if err := vectors.Load(vectorPath); err != nil {
			logger.Warn("vector store load failed, starting empty", "error", err)
		}
	}

	keywords, err := store.NewBleveBM25Index(filepath.Join(dataDir, "bm25"))
	if err != nil {
		return nil, fmt.Errorf("create keyword index: %w", err)
	}

	return &app{
		cfg:      cfg,
		root:     root,
		dataDir:  dataDir,
		log:      logger,
		metrics:  telemetry.New("vaultrag"),
		vectors:  vectors,
		keywords: keywords,
		embedder: embedder,
	}, nil
}

func (a *app) Close() error {
	if err := a.vectors.Save(filepath.Join(a.dataDir, "vectors.hnsw")); err != nil {
		a.log.Warn("vector store save failed", "error", err)
	}
	if err := a.vectors.Close(); err != nil {
		a.log.Warn("vector store close failed", "error", err)
	}
	return a.keywords.Close()
}

// newSyncer wires a Syncer over the app's open stores.
func (a *app) newSyncer() (*vsync.Syncer, error) {
	scanner, err := scan.New(scan.Options{
		IgnorePatterns: a.cfg.Paths.Exclude,
		IncludePaths:   a.cfg.Paths.Include,
	})
	if err != nil {
		return nil, fmt.Errorf("create scanner: %w", err)
	}

	registryPath := filepath.Join(a.dataDir, "registry.json")
	registry, err := vsync.LoadRegistry(registryPath)
	if err != nil {
		return nil, fmt.Errorf("load registry: %w", err)
	}

	chunker := chunk.NewMarkdownChunker()
	syncer := vsync.NewSyncer(a.root, a.dataDir, scanner, chunker, a.vectors, a.keywords, registry)
	syncer.RecordVaultPath()
	return syncer, nil
}

// newRetrievalSource builds the base retrieve.Source for the configured
// search mode, optionally wrapped by a cross-encoder reranker.
func (a *app) newRetrievalSource() (retrieve.Source, error) {
	var source retrieve.Source
	if a.cfg.Search.SemanticWeight > 0 && a.cfg.Search.BM25Weight > 0 {
		hybrid, err := retrieve.NewHybridSearcher(a.vectors, a.keywords, retrieve.Weights{
			Dense:  a.cfg.Search.SemanticWeight,
			Sparse: a.cfg.Search.BM25Weight,
		})
		if err != nil {
			return nil, fmt.Errorf("configure hybrid search: %w", err)
		}
		source = hybrid
	} else {
		source = retrieve.NewRetriever(a.vectors)
	}

	if !a.cfg.Rerank.Enabled {
		return source, nil
	}

	encoder, err := rerank.NewONNXCrossEncoder(a.cfg.Rerank.ModelDir, "", 0)
	if err != nil {
		return nil, fmt.Errorf("load cross-encoder: %w", err)
	}
	reranked, err := rerank.NewRerankedRetriever(source, rerank.NewReranker(encoder), a.cfg.Rerank.InitialK)
	if err != nil {
		return nil, fmt.Errorf("configure reranker: %w", err)
	}
	return reranked, nil
}
