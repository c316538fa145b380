package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/nvandessel/protomech/internal/store"
)

func newSaveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "save <name>",
		Short: "Save the circuit under a name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			name := args[0]
			if err := store.ValidateName(name); err != nil {
				return err
			}

			e, err := openEnv(cmd, true)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.session.Save(cmd.Context(), name); err != nil {
				return err
			}
			c := e.session.Circuit()

			if jsonOut {
				return writeJSON(cmd, map[string]interface{}{
					"status":     "saved",
					"name":       name,
					"node_count": len(c.Nodes),
					"edge_count": len(c.Edges),
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %d nodes, %d edges as %q\n", len(c.Nodes), len(c.Edges), name)
			return nil
		},
	}
}

func newRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <name>",
		Short: "Replace the circuit with a saved one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			name := args[0]
			if err := store.ValidateName(name); err != nil {
				return err
			}

			e, err := openEnv(cmd, true)
			if err != nil {
				return err
			}
			defer e.Close()

			ctx := cmd.Context()
			if err := e.session.Restore(ctx, name); err != nil {
				return err
			}
			if err := e.persist(ctx); err != nil {
				return err
			}
			c := e.session.Circuit()

			if jsonOut {
				return writeJSON(cmd, map[string]interface{}{
					"status":     "restored",
					"name":       name,
					"node_count": len(c.Nodes),
					"edge_count": len(c.Edges),
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Restored %q: %d nodes, %d edges\n", name, len(c.Nodes), len(c.Edges))
			return nil
		},
	}
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved circuits",
		Long: `List saved circuits, newest first. Working circuits kept between
invocations are named current-<dataset>-<path hash>.

Examples:
  protomech list
  protomech list --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			ctx := cmd.Context()

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			st, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			infos, err := st.List(ctx)
			if err != nil {
				return fmt.Errorf("failed to list circuits: %w", err)
			}

			if jsonOut {
				if infos == nil {
					infos = []store.Info{}
				}
				return writeJSON(cmd, map[string]interface{}{
					"circuits":    infos,
					"total_count": len(infos),
					"backend":     cfg.Store.Backend,
				})
			}

			out := cmd.OutOrStdout()
			if len(infos) == 0 {
				fmt.Fprintln(out, "No saved circuits")
				return nil
			}
			var totalSize int64
			for _, info := range infos {
				totalSize += info.Size
				fmt.Fprintf(out, "  %-32s %s  %3d nodes  %3d edges  %8s  (%s)\n",
					info.Name,
					info.SavedAt.Format("2006-01-02 15:04"),
					info.NodeCount,
					info.EdgeCount,
					humanize.Bytes(uint64(max(info.Size, 0))),
					humanize.Time(info.SavedAt),
				)
			}
			fmt.Fprintf(out, "Total: %d circuits, %s\n", len(infos), humanize.Bytes(uint64(max(totalSize, 0))))
			return nil
		},
	}
}

func newPruneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete old saved circuits",
		Long: `Delete saved circuits beyond a retention policy. A circuit is kept
when any policy keeps it. Working circuits are always kept.

Examples:
  protomech prune --keep 10
  protomech prune --keep 5 --max-age 720h
  protomech prune --keep 10 --dry-run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			keep, _ := cmd.Flags().GetInt("keep")
			maxAge, _ := cmd.Flags().GetDuration("max-age")
			dryRun, _ := cmd.Flags().GetBool("dry-run")
			ctx := cmd.Context()

			if keep < 0 {
				return fmt.Errorf("--keep must be non-negative, got %d", keep)
			}

			policies := []store.RetentionPolicy{workingPolicy{}, &store.CountPolicy{MaxCount: keep}}
			if maxAge > 0 {
				policies = append(policies, &store.AgePolicy{MaxAge: maxAge})
			}
			policy := &store.CompositePolicy{Policies: policies}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			st, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			var removed []string
			if dryRun {
				infos, err := st.List(ctx)
				if err != nil {
					return fmt.Errorf("failed to list circuits: %w", err)
				}
				kept := make(map[string]bool)
				for _, info := range policy.Apply(infos) {
					kept[info.Name] = true
				}
				for _, info := range infos {
					if !kept[info.Name] {
						removed = append(removed, info.Name)
					}
				}
			} else {
				removed, err = store.Prune(ctx, st, policy)
				if err != nil {
					return fmt.Errorf("failed to prune circuits: %w", err)
				}
			}

			if jsonOut {
				if removed == nil {
					removed = []string{}
				}
				return writeJSON(cmd, map[string]interface{}{
					"removed": removed,
					"count":   len(removed),
					"dry_run": dryRun,
				})
			}

			out := cmd.OutOrStdout()
			verb := "Deleted"
			if dryRun {
				verb = "Would delete"
			}
			for _, name := range removed {
				fmt.Fprintf(out, "  %s\n", name)
			}
			fmt.Fprintf(out, "%s %d circuits\n", verb, len(removed))
			return nil
		},
	}
	cmd.Flags().Int("keep", 10, "Number of most recent circuits to keep")
	cmd.Flags().Duration("max-age", 0, "Also keep circuits saved within this duration (e.g. 720h)")
	cmd.Flags().Bool("dry-run", false, "Show what would be deleted without deleting")
	return cmd
}
