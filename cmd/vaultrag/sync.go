package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vaultrag/vaultrag/internal/output"
	"github.com/vaultrag/vaultrag/internal/sync"
)

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Incrementally sync the vault into the index",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, false)
		},
	}
}

func newFullSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "full-sync",
		Short: "Clear the index and resync the entire vault",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, true)
		},
	}
}

func runSync(cmd *cobra.Command, full bool) error {
	w := output.New(cmd.OutOrStdout())

	a, err := newApp(flagVault, flagDebug)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	syncer, err := a.newSyncer()
	if err != nil {
		return err
	}

	if !full && syncer.ShouldFullSync() {
		w.Warning("vault path changed or registry looks stale, promoting to a full sync")
		full = true
	}

	kind := "incremental"
	if full {
		kind = "full"
	}

	start := time.Now()
	var result *sync.SyncResult
	if full {
		result, err = syncer.FullSync(cmd.Context())
	} else {
		result, err = syncer.Sync(cmd.Context())
	}
	duration := time.Since(start)

	status := "ok"
	if err != nil {
		status = "error"
	}
	a.metrics.RecordSync(kind, status, duration)
	if err != nil {
		return fmt.Errorf("%s sync: %w", kind, err)
	}

	a.metrics.SetVectorStoreSize(a.vectors.Count())

	w.Successf("%s sync complete in %s", kind, duration.Round(time.Millisecond))
	w.Statusf("", "added=%d modified=%d deleted=%d unchanged=%d chunks=%d",
		result.Added, result.Modified, result.Deleted, result.Unchanged, result.TotalChunks)
	for _, syncErr := range result.Errors {
		w.Warningf("%s: %v", syncErr.RelativePath, syncErr.Err)
	}
	return nil
}
