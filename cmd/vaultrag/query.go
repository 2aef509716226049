package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vaultrag/vaultrag/internal/agent"
	"github.com/vaultrag/vaultrag/internal/llm"
	"github.com/vaultrag/vaultrag/internal/output"
)

func newQueryCmd() *cobra.Command {
	var topK int
	var agentic bool

	cmd := &cobra.Command{
		Use:   "query [question]",
		Short: "Retrieve relevant chunks, optionally answering with an LLM",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, args[0], topK, agentic)
		},
	}

	cmd.Flags().IntVar(&topK, "top-k", 5, "number of chunks to return")
	cmd.Flags().BoolVar(&agentic, "agentic", false, "answer with the self-correcting RAG chain instead of listing chunks")
	return cmd
}

func runQuery(cmd *cobra.Command, question string, topK int, agentic bool) error {
	w := output.New(cmd.OutOrStdout())

	a, err := newApp(flagVault, flagDebug)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	source, err := a.newRetrievalSource()
	if err != nil {
		return err
	}

	if !agentic {
		start := time.Now()
		result, err := source.Retrieve(cmd.Context(), question, topK)
		a.metrics.RecordHybridQuery(len(result.Chunks))
		_ = time.Since(start)
		if err != nil {
			return fmt.Errorf("retrieve: %w", err)
		}
		for i, c := range result.Chunks {
			w.Statusf("", "[%d] score=%.4f %s", i+1, c.Score, c.Text)
		}
		return nil
	}

	strategy := llm.StrategyFromConfig(a.cfg.LLM)
	model, err := llm.New(strategy)
	if err != nil {
		return fmt.Errorf("configure llm: %w", err)
	}
	breaker := llm.NewCircuitBreakingLLM(model)

	chain := agent.NewSelfCorrectingRAGChain(source, breaker, a.cfg.Agentic.QualityThreshold, a.cfg.Agentic.MaxRetries)

	start := time.Now()
	result, err := chain.Query(cmd.Context(), question, topK, 0.7)
	duration := time.Since(start)

	status := "ok"
	if err != nil {
		status = "error"
	}
	a.metrics.RecordLLMGeneration(strategy.Provider, status, duration)
	if err != nil {
		return fmt.Errorf("agentic query: %w", err)
	}

	w.Success(result.Answer)
	w.Statusf("", "attempts=%d quality=%.2f final_query=%q", result.Attempts, result.RetrievalQuality, result.FinalQuery)
	return nil
}
