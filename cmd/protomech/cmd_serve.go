package main

import (
	"context"
	"fmt"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/nvandessel/protomech/internal/mcp"
	"github.com/nvandessel/protomech/internal/pathutil"
	"github.com/nvandessel/protomech/internal/store"
	"github.com/nvandessel/protomech/internal/visualization"
	"github.com/nvandessel/protomech/internal/watcher"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the explorer API and circuit page locally",
		Long: `Start a local HTTP server exposing the explorer API and a rendered
circuit page. The dataset is reloaded when its files change. The circuit
is saved as the working circuit on shutdown.

Examples:
  protomech serve --dataset data/gfp
  protomech serve --addr 127.0.0.1:8080 --open`,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, _ := cmd.Flags().GetString("addr")
			open, _ := cmd.Flags().GetBool("open")
			noWatch, _ := cmd.Flags().GetBool("no-watch")

			e, err := openEnv(cmd, false)
			if err != nil {
				return err
			}
			defer e.Close()

			if !cmd.Flags().Changed("addr") {
				addr = e.cfg.Server.Addr
			}
			if !cmd.Flags().Changed("open") {
				open = e.cfg.Server.OpenBrowser
			}
			return runServer(cmd, e, addr, open, e.cfg.Watch.Enabled && !noWatch)
		},
	}

	cmd.Flags().String("addr", visualization.DefaultAddr, "Listen address (default from server.addr)")
	cmd.Flags().Bool("open", false, "Open the circuit page in a browser")
	cmd.Flags().Bool("no-watch", false, "Don't reload the dataset when its files change")
	return cmd
}

// runServer starts the HTTP server and blocks until Ctrl-C or the command
// context ends.
func runServer(cmd *cobra.Command, e *env, addr string, open, watch bool) error {
	srv := visualization.NewServer(e.session, addr, e.logger)

	srvCtx, srvCancel := signal.NotifyContext(cmd.Context(), shutdownSignals...)
	defer srvCancel()

	if watch {
		w, err := watcher.New(e.session.Dir(), e.session.ReloadDir,
			watcher.WithDebounce(e.cfg.Watch.Debounce),
			watcher.WithLogger(e.logger))
		if err != nil {
			return fmt.Errorf("dataset watcher: %w", err)
		}
		go func() {
			if err := w.Run(srvCtx); err != nil {
				e.logger.Warn("dataset watcher stopped", "error", err)
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(srvCtx) }()

	// Wait for server to start
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if srv.Addr() != "" {
			break
		}
		select {
		case err := <-errCh:
			return fmt.Errorf("server error: %w", err)
		case <-time.After(10 * time.Millisecond):
		}
	}

	serverAddr := srv.Addr()
	if serverAddr == "" {
		return fmt.Errorf("server failed to start")
	}

	url := "http://" + serverAddr
	fmt.Fprintf(cmd.OutOrStdout(), "Server running at %s (dataset %s)\n", url, pathutil.RedactPath(e.session.Dir()))
	fmt.Fprintf(cmd.OutOrStdout(), "Press Ctrl-C to stop.\n")

	if open {
		if err := visualization.OpenBrowser(url); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Could not open browser: %v\nOpen %s manually.\n", err, url)
		}
	}

	// Block until server exits
	serveErr := <-errCh
	if err := e.persist(context.WithoutCancel(srvCtx)); err != nil {
		e.logger.Warn("working circuit not saved", "error", err)
	}
	if serveErr != nil {
		return fmt.Errorf("server error: %w", serveErr)
	}
	return nil
}

func newMCPServerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp-server",
		Short: "Run an MCP server over stdio",
		Long: `Expose the explorer as Model Context Protocol tools over stdio.

Tool calls are audited to ~/.protomech/audit.jsonl. Exports are limited
to ~/.protomech/exports and the dataset's exports directory.

Example client configuration:
  {"command": "protomech", "args": ["mcp-server", "--dataset", "/data/gfp"]}`,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv(cmd, false)
			if err != nil {
				return err
			}
			defer e.Close()

			stateDir, err := store.GlobalPath()
			if err != nil {
				return err
			}

			server, err := mcp.NewServer(&mcp.Config{
				Name:     "protomech",
				Version:  version,
				Session:  e.session,
				StateDir: stateDir,
				Logger:   e.logger,
			})
			if err != nil {
				return fmt.Errorf("failed to create MCP server: %w", err)
			}

			runErr := server.Run(cmd.Context())
			if err := e.persist(context.WithoutCancel(cmd.Context())); err != nil {
				e.logger.Warn("working circuit not saved", "error", err)
			}
			return runErr
		},
	}
}
