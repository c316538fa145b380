package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nvandessel/protomech/internal/constants"
	"github.com/nvandessel/protomech/internal/sanitize"
)

func newInfluencesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "influences <layer> <latent>",
		Short: "Show the features a feature is connected to",
		Long: `Show features connected to (layer, latent) by aggregated virtual
weights, strongest first. Incoming looks at earlier layers, outgoing at
later layers. Layers and latents are zero-based.

Examples:
  protomech influences 3 120
  protomech influences 3 120 --direction outgoing --limit 5`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			direction, _ := cmd.Flags().GetString("direction")
			limit, _ := cmd.Flags().GetInt("limit")

			layer, latent, err := parseFeatureArgs(args)
			if err != nil {
				return err
			}

			e, err := openEnv(cmd, true)
			if err != nil {
				return err
			}
			defer e.Close()

			dir := constants.Direction(direction)
			edges, err := e.session.Influences(layer, latent, dir)
			if err != nil {
				return err
			}
			total := len(edges)
			if limit > 0 && len(edges) > limit {
				edges = edges[:limit]
			}

			if jsonOut {
				return writeJSON(cmd, map[string]interface{}{
					"layer":     layer,
					"latent":    latent,
					"direction": dir.String(),
					"edges":     edges,
					"count":     len(edges),
					"total":     total,
				})
			}

			out := cmd.OutOrStdout()
			if total == 0 {
				fmt.Fprintf(out, "No %s influences for %s\n", dir, featureLabel(layer, latent))
				return nil
			}
			fmt.Fprintf(out, "%s influences of %s (%d of %d):\n", dir, featureLabel(layer, latent), len(edges), total)
			for _, edge := range edges {
				fmt.Fprintf(out, "  %-10s avg %+.4f  sum %+.4f  n=%d\n",
					featureLabel(edge.Feature.Layer, edge.Feature.Latent), edge.AvgWeight, edge.SumWeight, edge.Count)
			}
			return nil
		},
	}

	cmd.Flags().String("direction", string(constants.DirectionIncoming), "incoming or outgoing")
	cmd.Flags().Int("limit", 20, "Maximum edges to show (0 for all)")
	return cmd
}

func newAlignCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "align <layer> <latent>",
		Short: "Align top activating sequences on their activation peaks",
		Long: `Align the wild type and the feature's top activating sequences so
that every activation peak lands in the same column.

Examples:
  protomech align 3 120
  protomech align 3 120 --json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			layer, latent, err := parseFeatureArgs(args)
			if err != nil {
				return err
			}

			e, err := openEnv(cmd, true)
			if err != nil {
				return err
			}
			defer e.Close()

			res := e.session.Alignment(layer, latent)
			if jsonOut {
				return writeJSON(cmd, res)
			}

			out := cmd.OutOrStdout()
			if len(res.Rows) == 0 {
				fmt.Fprintf(out, "Nothing to align for %s\n", featureLabel(layer, latent))
				return nil
			}

			names := make([]string, len(res.Rows))
			width := 0
			for i, row := range res.Rows {
				names[i] = sanitize.Text(row.Name)
				width = max(width, len(names[i]))
			}
			marker := strings.Repeat(" ", res.Center) + "v"
			fmt.Fprintf(out, "%-*s  %s\n", width, "", marker)
			for i, row := range res.Rows {
				fmt.Fprintf(out, "%-*s  %s", width, names[i], row.Padded(constants.GapChar))
				if !row.Reference {
					fmt.Fprintf(out, "  #%d %s %.3f", row.Rank, sanitize.Text(row.Entry), row.Score)
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}
}

func newRankCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rank",
		Short: "Rank latents or features",
	}
	cmd.AddCommand(newRankLayerCmd(), newRankFeaturesCmd())
	return cmd
}

func newRankLayerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "layer <layer>",
		Short: "Rank a layer's latents by peak activation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			limit, _ := cmd.Flags().GetInt("limit")

			layer, err := parseIndex("layer", args[0])
			if err != nil {
				return err
			}

			e, err := openEnv(cmd, true)
			if err != nil {
				return err
			}
			defer e.Close()

			peaks := e.session.RankLayer(layer, limit)
			if jsonOut {
				return writeJSON(cmd, map[string]interface{}{
					"layer":   layer,
					"latents": peaks,
					"count":   len(peaks),
				})
			}

			out := cmd.OutOrStdout()
			if len(peaks) == 0 {
				fmt.Fprintf(out, "No latents in layer %d\n", layer)
				return nil
			}
			seq := e.session.Info().Sequence
			for i, p := range peaks {
				residue := ""
				if p.Position < len(seq) {
					residue = seq[p.Position : p.Position+1]
				}
				fmt.Fprintf(out, "%3d. %-10s max %.4f at %d %s\n", i+1, featureLabel(layer, p.Latent), p.Max, p.Position, residue)
			}
			return nil
		},
	}
	cmd.Flags().Int("limit", 20, "Maximum latents to show (0 for all)")
	return cmd
}

func newRankFeaturesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "features",
		Short: "Rank features of the influence graph by PageRank",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			limit, _ := cmd.Flags().GetInt("limit")

			e, err := openEnv(cmd, true)
			if err != nil {
				return err
			}
			defer e.Close()

			scores := e.session.FeatureRanking(limit)
			if jsonOut {
				return writeJSON(cmd, map[string]interface{}{
					"features": scores,
					"count":    len(scores),
				})
			}

			out := cmd.OutOrStdout()
			if len(scores) == 0 {
				fmt.Fprintln(out, "No influence graph (dataset has no virtual weights)")
				return nil
			}
			for i, s := range scores {
				fmt.Fprintf(out, "%3d. %-10s pagerank %.4f  degree %d\n", i+1, featureLabel(s.Feature.Layer, s.Feature.Latent), s.PageRank, s.Degree)
			}
			return nil
		},
	}
	cmd.Flags().Int("limit", 20, "Maximum features to show (0 for all)")
	return cmd
}

func newWeightsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "weights",
		Short: "Show the strongest raw influence samples",
		Long: `Keep the strongest percent of raw influence samples by magnitude.
Without --percent the dataset's default threshold is used.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			percent, _ := cmd.Flags().GetFloat64("percent")
			limit, _ := cmd.Flags().GetInt("limit")

			e, err := openEnv(cmd, true)
			if err != nil {
				return err
			}
			defer e.Close()

			w := e.session.Weights(percent)
			if jsonOut {
				return writeJSON(cmd, w)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Top %.1f%%: %d of %d samples\n", w.Percent, w.Kept, w.Total)
			samples := w.Samples
			if limit > 0 && len(samples) > limit {
				samples = samples[:limit]
			}
			for _, s := range samples {
				fmt.Fprintf(out, "  %-10s @%-4d -> %-10s @%-4d %+.4f\n",
					featureLabel(s.SrcLayer, s.SrcLatent), s.SrcPosition,
					featureLabel(s.TgtLayer, s.TgtLatent), s.TgtPosition, s.Weight)
			}
			if len(samples) < len(w.Samples) {
				fmt.Fprintf(out, "  ... %d more (use --limit 0 or --json)\n", len(w.Samples)-len(samples))
			}
			return nil
		},
	}
	cmd.Flags().Float64("percent", 0, "Percent of samples to keep (default: dataset threshold)")
	cmd.Flags().Int("limit", 50, "Maximum samples to print (0 for all)")
	return cmd
}
