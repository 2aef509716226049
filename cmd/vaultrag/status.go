package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/vaultrag/vaultrag/internal/embed"
)

// statusReport is the JSON shape printed by `vaultrag status`.
type statusReport struct {
	Status string   `json:"status"`
	DB     dbStatus `json:"db"`
}

type dbStatus struct {
	Name        string `json:"name"`
	Count       int    `json:"count"`
	PersistPath string `json:"persist_path"`
	Embedder    string `json:"embedder"`
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report the index's current state",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(flagVault, flagDebug)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			report := statusReport{
				Status: "ok",
				DB: dbStatus{
					Name:        embed.CollectionName(filepath.Base(a.root), a.embedder.ModelName()),
					Count:       a.vectors.Count(),
					PersistPath: a.dataDir,
					Embedder:    a.embedder.ModelName(),
				},
			}

			data, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return fmt.Errorf("marshal status: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}
