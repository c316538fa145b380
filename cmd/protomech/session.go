package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/nvandessel/protomech/internal/config"
	"github.com/nvandessel/protomech/internal/dataset"
	"github.com/nvandessel/protomech/internal/explorer"
	"github.com/nvandessel/protomech/internal/logging"
	"github.com/nvandessel/protomech/internal/pathutil"
	"github.com/nvandessel/protomech/internal/store"
)

// workingPrefix names the snapshot that carries a dataset's circuit from
// one invocation to the next.
const workingPrefix = "current-"

// env is everything a command needs to work on a dataset.
type env struct {
	cfg     *config.ProtomechConfig
	session *explorer.Session
	events  *logging.EventLogger
	logger  *slog.Logger
	working string
}

// Close releases the event log and the snapshot store.
func (e *env) Close() {
	e.events.Close()
	if err := e.session.Close(); err != nil {
		e.logger.Warn("closing snapshot store", "error", err)
	}
}

// persist saves the circuit as the dataset's working snapshot.
func (e *env) persist(ctx context.Context) error {
	if err := e.session.Save(ctx, e.working); err != nil {
		return fmt.Errorf("failed to save working circuit: %w", err)
	}
	return nil
}

// loadConfig reads the --config file, or the default one, and validates it.
func loadConfig(cmd *cobra.Command) (*config.ProtomechConfig, error) {
	path, _ := cmd.Flags().GetString("config")

	var (
		cfg *config.ProtomechConfig
		err error
	)
	if path != "" {
		cfg, err = config.LoadPath(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// datasetDir resolves the dataset directory: --dataset wins over config.
func datasetDir(cmd *cobra.Command, cfg *config.ProtomechConfig) (string, error) {
	dir, _ := cmd.Flags().GetString("dataset")
	if dir == "" {
		dir = cfg.Dataset.Dir
	}
	if dir == "" {
		return "", fmt.Errorf("%w: pass --dataset or run 'protomech config set dataset.dir <dir>'", dataset.ErrNoDataset)
	}
	return dir, nil
}

// commandLogger logs to stderr. One-shot commands stay quiet at info level.
func commandLogger(cmd *cobra.Command, level string, quiet bool) *slog.Logger {
	if quiet && logging.ParseLevel(level) >= slog.LevelInfo {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return logging.NewLogger(level, cmd.ErrOrStderr())
}

// openStore opens the configured snapshot store.
func openStore(ctx context.Context, cfg *config.ProtomechConfig) (store.SnapshotStore, error) {
	dir := cfg.Store.Dir
	if dir == "" && cfg.Store.Backend != store.BackendMemory {
		d, err := store.DefaultSnapshotDir()
		if err != nil {
			return nil, err
		}
		dir = d
	}
	st, err := store.Open(ctx, cfg.Store.Backend, dir, cfg.Store.Format)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot store: %w", err)
	}
	return st, nil
}

// openEnv loads the dataset into a session and restores its working
// circuit. The caller must Close the result.
func openEnv(cmd *cobra.Command, quiet bool) (*env, error) {
	ctx := cmd.Context()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	dir, err := datasetDir(cmd, cfg)
	if err != nil {
		return nil, err
	}
	logger := commandLogger(cmd, cfg.Logging.Level, quiet)

	d, err := dataset.Load(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to load dataset: %w", err)
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var events *logging.EventLogger
	if stateDir, err := store.GlobalPath(); err == nil {
		events = logging.NewEventLogger(stateDir, cfg.Logging.Level)
	}

	session, err := explorer.New(d, explorer.Options{
		TopRecords:         cfg.Dataset.TopRecords,
		AlignmentCacheSize: cfg.Cache.AlignmentEntries,
		MaxDefaultEdges:    cfg.Weights.MaxDefaultEdges,
		Layout:             &cfg.Layout,
		Store:              st,
		Logger:             logger,
		Events:             events,
	})
	if err != nil {
		events.Close()
		st.Close()
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}

	e := &env{cfg: cfg, session: session, events: events, logger: logger, working: workingName(dir)}
	if err := session.Restore(ctx, e.working); err != nil && !errors.Is(err, store.ErrNotFound) {
		logger.Warn("working circuit not restored", "name", e.working, "error", err)
	}
	return e, nil
}

// workingName derives the working snapshot name from the dataset folder:
// current-<folder>-<hash>, the hash taken over the absolute path so two
// folders with the same name never share a circuit.
func workingName(dir string) string {
	dir = dataset.AbsDir(dir)
	sum := sha256.Sum256([]byte(dir))
	suffix := "-" + hex.EncodeToString(sum[:4])

	base := pathutil.SafeName(filepath.Base(dir))
	if room := 64 - len(workingPrefix) - len(suffix); len(base) > room {
		base = base[:room]
	}
	return workingPrefix + base + suffix
}

// workingPolicy keeps every working snapshot.
type workingPolicy struct{}

func (workingPolicy) Apply(infos []store.Info) []store.Info {
	var keep []store.Info
	for _, info := range infos {
		if strings.HasPrefix(info.Name, workingPrefix) {
			keep = append(keep, info)
		}
	}
	return keep
}

// parseFeatureArgs reads "<layer> <latent>" arguments.
func parseFeatureArgs(args []string) (layer, latent int, err error) {
	layer, err = parseIndex("layer", args[0])
	if err != nil {
		return 0, 0, err
	}
	latent, err = parseIndex("latent", args[1])
	if err != nil {
		return 0, 0, err
	}
	return layer, latent, nil
}

func parseIndex(what, s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s %q: must be a non-negative integer", what, s)
	}
	return n, nil
}

// writeJSON encodes v indented to the command's stdout.
func writeJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// featureLabel is the one-based display label used by the canvas.
func featureLabel(layer, latent int) string {
	return fmt.Sprintf("L%d/%d", layer+1, latent+1)
}
