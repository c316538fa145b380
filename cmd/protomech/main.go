package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "0.1.0-dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "protomech",
		Short: "Protein language model circuit explorer",
		Long: `protomech explores sparse-autoencoder features of a protein language model.

It aggregates virtual weights between features, aligns top activating
sequences on their activation peaks, and lets you build a circuit of
features that persists between invocations.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON (for agent consumption)")
	rootCmd.PersistentFlags().String("dataset", "", "Dataset directory (overrides dataset.dir)")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.protomech/config.yaml)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newInfoCmd(),
		newDatasetsCmd(),
		// Queries
		newInfluencesCmd(),
		newAlignCmd(),
		newRankCmd(),
		newWeightsCmd(),
		// Circuit
		newCircuitCmd(),
		newSaveCmd(),
		newRestoreCmd(),
		newListCmd(),
		newPruneCmd(),
		// Servers
		newServeCmd(),
		newMCPServerCmd(),
		newConfigCmd(),
	)

	return rootCmd
}
