package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nvandessel/protomech/internal/dataset"
	"github.com/nvandessel/protomech/internal/pathutil"
)

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Summarize the loaded dataset and circuit",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			e, err := openEnv(cmd, true)
			if err != nil {
				return err
			}
			defer e.Close()

			info := e.session.Info()
			if jsonOut {
				return writeJSON(cmd, info)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Dataset:      %s\n", pathutil.RedactPath(info.Dir))
			fmt.Fprintf(out, "Sequence:     %d residues\n", info.SequenceLength)
			fmt.Fprintf(out, "Layers:       %d %v\n", info.NumLayers, info.Layers)
			fmt.Fprintf(out, "Activations:  %d (%.3f to %.3f)\n", info.Activations, info.MinValue, info.MaxValue)
			if info.HasWeights {
				fmt.Fprintf(out, "Influences:   %d samples, %d feature pairs (default threshold %.1f%%)\n",
					info.Influences, info.AggregatedEdges, info.DefaultPercent)
			} else {
				fmt.Fprintf(out, "Influences:   none (no %s)\n", dataset.WeightsFile)
			}
			fmt.Fprintf(out, "Circuit:      %d nodes, %d edges (%s)\n", info.CircuitNodes, info.CircuitEdges, e.working)
			return nil
		},
	}
}

func newDatasetsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "datasets [catalog]",
		Short: "List the datasets in a catalog",
		Long: `List the example datasets described by a catalog CSV file
(id, name, path). Paths are relative to the catalog.

Examples:
  protomech datasets                  # ./examples.csv
  protomech datasets data/examples.csv`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			path := dataset.CatalogFile
			if len(args) == 1 {
				path = args[0]
			}

			entries, err := dataset.LoadCatalog(path)
			if err != nil {
				return err
			}

			if jsonOut {
				return writeJSON(cmd, map[string]interface{}{
					"catalog":  path,
					"datasets": entries,
					"count":    len(entries),
				})
			}

			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintf(out, "No datasets in %s\n", path)
				return nil
			}
			for _, entry := range entries {
				fmt.Fprintf(out, "  %-12s %-30s %s\n", entry.ID, entry.Name, filepath.ToSlash(entry.Path))
				if entry.Sequence != "" {
					fmt.Fprintf(out, "  %-12s %s\n", "", entry.Preview(40))
				}
			}
			fmt.Fprintf(out, "Total: %d datasets\n", len(entries))
			return nil
		},
	}
	return cmd
}
