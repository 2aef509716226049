package main

import (
	"github.com/spf13/cobra"

	"github.com/vaultrag/vaultrag/pkg/version"
)

var (
	flagVault string
	flagDebug bool
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "vaultrag",
		Short:   "Hybrid search and retrieval-augmented Q&A over a Markdown vault",
		Version: version.Short(),
	}

	root.PersistentFlags().StringVar(&flagVault, "vault", ".", "path to the vault root")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")

	root.AddCommand(newSyncCmd())
	root.AddCommand(newFullSyncCmd())
	root.AddCommand(newQueryCmd())
	root.AddCommand(newStatusCmd())

	return root
}
