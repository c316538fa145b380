package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/nvandessel/protomech/internal/pathutil"
	"github.com/nvandessel/protomech/internal/visualization"
)

func newCircuitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "circuit",
		Short: "Build and inspect the feature circuit",
		Long: `Build a circuit of features. Edges between features that share
virtual weights are added automatically. The circuit is kept per dataset
between invocations.

Examples:
  protomech circuit add 3 120              # add at the feature's peak
  protomech circuit add 5 7 --position 42 --name "helix cap"
  protomech circuit link 0 1 --weight 0.5
  protomech circuit show
  protomech circuit export --format svg -o circuit.svg`,
	}

	cmd.AddCommand(
		newCircuitAddCmd(),
		newCircuitRemoveCmd(),
		newCircuitLinkCmd(),
		newCircuitShowCmd(),
		newCircuitExportCmd(),
		newCircuitClearCmd(),
	)
	return cmd
}

func newCircuitAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <layer> <latent>",
		Short: "Add a feature node",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			position, _ := cmd.Flags().GetInt("position")
			name, _ := cmd.Flags().GetString("name")

			layer, latent, err := parseFeatureArgs(args)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("position") {
				position = -1
			} else if position < 0 {
				return fmt.Errorf("invalid position %d: must be non-negative", position)
			}

			e, err := openEnv(cmd, true)
			if err != nil {
				return err
			}
			defer e.Close()

			ctx := cmd.Context()
			before := len(e.session.Circuit().Edges)
			node, created := e.session.AddNamedFeature(layer, latent, position, name)
			if err := e.persist(ctx); err != nil {
				return err
			}
			linked := len(e.session.Circuit().Edges) - before

			if jsonOut {
				return writeJSON(cmd, map[string]interface{}{
					"node":    node,
					"created": created,
					"linked":  linked,
				})
			}

			out := cmd.OutOrStdout()
			if !created {
				fmt.Fprintf(out, "%s is already node %d\n", featureLabel(layer, latent), node.ID)
				return nil
			}
			fmt.Fprintf(out, "Added %s as node %d at position %d (%s)\n", featureLabel(layer, latent), node.ID, node.Position, node.Residue)
			if linked > 0 {
				fmt.Fprintf(out, "Linked to %d existing nodes\n", linked)
			}
			return nil
		},
	}
	cmd.Flags().Int("position", 0, "Sequence position to pick the feature at (default: its peak)")
	cmd.Flags().String("name", "", "Display name for the node")
	return cmd
}

func newCircuitRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>...",
		Short: "Remove nodes and their edges",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			ids := make([]int, 0, len(args))
			for _, arg := range args {
				id, err := parseIndex("node id", arg)
				if err != nil {
					return err
				}
				ids = append(ids, id)
			}

			e, err := openEnv(cmd, true)
			if err != nil {
				return err
			}
			defer e.Close()

			removed := e.session.RemoveNodes(ids)
			if err := e.persist(cmd.Context()); err != nil {
				return err
			}

			if jsonOut {
				return writeJSON(cmd, map[string]interface{}{
					"removed":   removed,
					"requested": len(ids),
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d of %d nodes\n", removed, len(ids))
			return nil
		},
	}
}

func newCircuitLinkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "link <from> <to>",
		Short: "Connect two nodes with a user edge",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			from, err := parseIndex("node id", args[0])
			if err != nil {
				return err
			}
			to, err := parseIndex("node id", args[1])
			if err != nil {
				return err
			}
			var weight *float64
			if cmd.Flags().Changed("weight") {
				w, _ := cmd.Flags().GetFloat64("weight")
				weight = &w
			}

			e, err := openEnv(cmd, true)
			if err != nil {
				return err
			}
			defer e.Close()

			edge, created, ok := e.session.Link(from, to, weight)
			if !ok {
				return fmt.Errorf("cannot link %d and %d: both nodes must exist and differ", from, to)
			}
			if err := e.persist(cmd.Context()); err != nil {
				return err
			}

			if jsonOut {
				return writeJSON(cmd, map[string]interface{}{
					"edge":    edge,
					"created": created,
				})
			}
			if !created {
				fmt.Fprintf(cmd.OutOrStdout(), "Nodes %d and %d are already connected by edge %d\n", from, to, edge.ID)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Linked %d -- %d as edge %d\n", from, to, edge.ID)
			return nil
		},
	}
	cmd.Flags().Float64("weight", 0, "Edge weight (default: none)")
	return cmd
}

func newCircuitShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the circuit with node centrality",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			e, err := openEnv(cmd, true)
			if err != nil {
				return err
			}
			defer e.Close()

			c := e.session.Circuit()
			report := e.session.Analyze()
			if jsonOut {
				return writeJSON(cmd, visualization.RenderJSON(c.Nodes, c.Edges, &report))
			}

			out := cmd.OutOrStdout()
			if len(c.Nodes) == 0 {
				fmt.Fprintln(out, "The circuit is empty. Add features with 'protomech circuit add <layer> <latent>'.")
				return nil
			}

			pagerank := make(map[int]float64, len(report.Scores))
			for _, s := range report.Scores {
				pagerank[s.ID] = s.PageRank
			}
			fmt.Fprintf(out, "Circuit: %d nodes, %d edges, %d components\n\n", len(c.Nodes), len(c.Edges), len(report.Components))
			for _, n := range c.Nodes {
				label := visualization.NodeLabel(n)
				if sub := visualization.NodeSubtitle(n); sub != "" {
					label += " (" + sub + ")"
				}
				fmt.Fprintf(out, "  #%-3d %-30s pos %-4d %s  value %.3f  pagerank %.3f\n",
					n.ID, label, n.Position, n.Residue, n.Value, pagerank[n.ID])
			}
			if len(c.Edges) > 0 {
				fmt.Fprintln(out)
			}
			for _, edge := range c.Edges {
				weight := "-"
				if edge.Weight != nil {
					weight = strconv.FormatFloat(*edge.Weight, 'f', 3, 64)
				}
				kind := "user"
				if edge.Derived {
					kind = "derived"
				}
				fmt.Fprintf(out, "  e%-3d #%d -- #%d  %s  %s\n", edge.ID, edge.From, edge.To, weight, kind)
			}
			return nil
		},
	}
}

func newCircuitExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Render the circuit as DOT, JSON, SVG or HTML",
		Long: `Render the circuit. Without --output the result is written to
stdout; html is written to a temporary file and opened in a browser.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatName, _ := cmd.Flags().GetString("format")
			output, _ := cmd.Flags().GetString("output")
			noOpen, _ := cmd.Flags().GetBool("no-open")

			format, err := visualization.ParseFormat(formatName)
			if err != nil {
				return err
			}

			e, err := openEnv(cmd, true)
			if err != nil {
				return err
			}
			defer e.Close()

			c := e.session.Circuit()
			report := e.session.Analyze()
			title := "protomech: " + filepath.Base(e.session.Dir())
			data, err := visualization.Render(format, title, c.Nodes, c.Edges, &report)
			if err != nil {
				return fmt.Errorf("render %s: %w", format, err)
			}

			if output == "" && format == visualization.FormatHTML {
				output = filepath.Join(os.TempDir(), pathutil.SafeName(filepath.Base(e.session.Dir()))+"-circuit.html")
			}
			if output == "" {
				_, err := cmd.OutOrStdout().Write(data)
				return err
			}

			if err := os.WriteFile(output, data, 0644); err != nil {
				return fmt.Errorf("write %s: %w", format, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Circuit written to %s\n", output)

			if format == visualization.FormatHTML && !noOpen {
				if err := visualization.OpenBrowser(output); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "Could not open browser: %v\nOpen %s manually.\n", err, output)
				}
			}
			return nil
		},
	}
	cmd.Flags().String("format", "dot", "Output format: dot, json, svg, or html")
	cmd.Flags().StringP("output", "o", "", "Output file path")
	cmd.Flags().Bool("no-open", false, "Don't open a browser after writing HTML")
	return cmd
}

func newCircuitClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every node and edge",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd, true)
			if err != nil {
				return err
			}
			defer e.Close()

			n := len(e.session.Circuit().Nodes)
			e.session.ClearCircuit()
			if err := e.persist(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d nodes\n", n)
			return nil
		},
	}
}
