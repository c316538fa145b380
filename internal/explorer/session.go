// Package explorer composes the core indexes and the circuit graph around
// one loaded dataset. A Session is the single piece of state shared by the
// HTTP server, the MCP server and the dataset watcher.
package explorer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/nvandessel/protomech/internal/activation"
	"github.com/nvandessel/protomech/internal/alignment"
	"github.com/nvandessel/protomech/internal/circuit"
	"github.com/nvandessel/protomech/internal/constants"
	"github.com/nvandessel/protomech/internal/dataset"
	"github.com/nvandessel/protomech/internal/influence"
	"github.com/nvandessel/protomech/internal/logging"
	"github.com/nvandessel/protomech/internal/store"
)

// ErrNoStore is returned by persistence calls on a session without a store.
var ErrNoStore = errors.New("no snapshot store configured")

// Options configures a Session. Zero values fall back to defaults.
type Options struct {
	// TopRecords caps how many reference records are aligned next to the
	// wild type. Negative means all of them.
	TopRecords int

	// AlignmentCacheSize is the number of alignments kept in memory.
	AlignmentCacheSize int

	// MaxDefaultEdges caps the default weights threshold.
	MaxDefaultEdges int

	Layout *circuit.Layout
	Store  store.SnapshotStore
	Logger *slog.Logger
	Events *logging.EventLogger
}

type alignKey struct {
	layer, latent int
}

// Session owns one dataset, the indexes built from it and the circuit.
// Every method is safe for concurrent use; calls are serialized so each
// core operation runs to completion before the next starts.
type Session struct {
	mu sync.RWMutex

	data  *dataset.Dataset
	acts  *activation.Index
	infl  *influence.Index
	graph *circuit.Graph

	alignments *lru.Cache[alignKey, alignment.Result]

	topRecords int
	maxEdges   int
	layout     circuit.Layout
	store      store.SnapshotStore
	logger     *slog.Logger
	events     *logging.EventLogger
	reloads    int
}

// New builds a session around d.
func New(d *dataset.Dataset, opts Options) (*Session, error) {
	size := opts.AlignmentCacheSize
	if size <= 0 {
		size = constants.DefaultAlignmentCacheSize
	}
	cache, err := lru.New[alignKey, alignment.Result](size)
	if err != nil {
		return nil, fmt.Errorf("creating alignment cache: %w", err)
	}

	s := &Session{
		alignments: cache,
		topRecords: opts.TopRecords,
		maxEdges:   opts.MaxDefaultEdges,
		layout:     circuit.DefaultLayout(),
		store:      opts.Store,
		logger:     logging.OrDefault(opts.Logger),
		events:     opts.Events,
	}
	if s.topRecords == 0 {
		s.topRecords = constants.DefaultTopRecords
	}
	if s.maxEdges <= 0 {
		s.maxEdges = constants.DefaultMaxEdges
	}
	if opts.Layout != nil {
		s.layout = *opts.Layout
	}

	if err := s.Reload(d); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload replaces the dataset. The new indexes and a fresh circuit are
// built before anything is swapped in, so a failure leaves the session as
// it was. Node and edge counters restart with the new circuit. A saved
// circuit shipped with the dataset is restored into it.
func (s *Session) Reload(d *dataset.Dataset) error {
	if d == nil {
		return fmt.Errorf("reload: %w", dataset.ErrNoDataset)
	}

	acts, err := activation.NewIndex(d.Activations)
	if err != nil {
		return fmt.Errorf("indexing activations: %w", err)
	}
	var infl *influence.Index
	if d.HasWeights() {
		infl = influence.Build(d.Influences)
	}

	g := circuit.New(infl)
	g.SetLayout(s.layout)
	if d.CanvasState != nil {
		if err := g.Restore(*d.CanvasState); err != nil {
			return fmt.Errorf("restoring %s: %w", dataset.CanvasStateFile, err)
		}
	}
	g.OnChange(s.events.Circuit)

	s.mu.Lock()
	s.data, s.acts, s.infl, s.graph = d, acts, infl, g
	s.alignments.Purge()
	s.reloads++
	s.mu.Unlock()

	s.logger.Info("dataset loaded",
		"dir", d.Dir,
		"sequence_length", len(d.Sequence),
		"activations", acts.Len(),
		"influences", len(d.Influences),
		"edges", infl.Len(),
		"circuit_nodes", len(g.Nodes()))
	s.events.Log(map[string]any{
		"event":       "dataset.loaded",
		"dir":         d.Dir,
		"activations": acts.Len(),
		"influences":  len(d.Influences),
	})
	return nil
}

// ReloadDir loads the dataset in dir and swaps it in. Reloading the
// directory already loaded refreshes it and keeps the circuit.
func (s *Session) ReloadDir(ctx context.Context, dir string) error {
	d, err := dataset.Load(ctx, dir)
	if err != nil {
		return err
	}
	if dataset.AbsDir(d.Dir) == dataset.AbsDir(s.Dir()) {
		return s.Refresh(d)
	}
	return s.Reload(d)
}

// Refresh swaps in new data for the dataset already loaded. Unlike Reload
// the circuit is kept: user edges survive and derived edges are re-derived
// from the new weights.
func (s *Session) Refresh(d *dataset.Dataset) error {
	if d == nil {
		return fmt.Errorf("refresh: %w", dataset.ErrNoDataset)
	}

	acts, err := activation.NewIndex(d.Activations)
	if err != nil {
		return fmt.Errorf("indexing activations: %w", err)
	}
	var infl *influence.Index
	if d.HasWeights() {
		infl = influence.Build(d.Influences)
	}

	s.mu.Lock()
	s.data, s.acts, s.infl = d, acts, infl
	s.graph.SetIndex(infl)
	s.alignments.Purge()
	s.reloads++
	nodes, edges := len(s.graph.Nodes()), len(s.graph.Edges())
	s.mu.Unlock()

	s.logger.Info("dataset refreshed",
		"dir", d.Dir,
		"activations", acts.Len(),
		"edges", infl.Len(),
		"circuit_nodes", nodes,
		"circuit_edges", edges)
	return nil
}

// Info summarizes the loaded dataset.
type Info struct {
	Dir             string    `json:"dir"`
	Sequence        string    `json:"sequence"`
	SequenceLength  int       `json:"sequence_length"`
	Layers          []int     `json:"layers"`
	NumLayers       int       `json:"num_layers"`
	Activations     int       `json:"activations"`
	MinValue        float64   `json:"min_value"`
	MaxValue        float64   `json:"max_value"`
	HasWeights      bool      `json:"has_weights"`
	Influences      int       `json:"influences"`
	AggregatedEdges int       `json:"aggregated_edges"`
	DefaultPercent  float64   `json:"default_percent"`
	CircuitNodes    int       `json:"circuit_nodes"`
	CircuitEdges    int       `json:"circuit_edges"`
	LoadedAt        time.Time `json:"loaded_at"`
	Reloads         int       `json:"reloads"`
}

// Info returns a summary of the dataset and circuit.
func (s *Session) Info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lo, hi, _ := s.acts.ValueRange()
	return Info{
		Dir:             s.data.Dir,
		Sequence:        s.data.Sequence,
		SequenceLength:  len(s.data.Sequence),
		Layers:          s.acts.Layers(),
		NumLayers:       s.acts.NumLayers(),
		Activations:     s.acts.Len(),
		MinValue:        lo,
		MaxValue:        hi,
		HasWeights:      s.data.HasWeights(),
		Influences:      len(s.data.Influences),
		AggregatedEdges: s.infl.Len(),
		DefaultPercent:  influence.DefaultPercent(len(s.data.Influences), s.maxEdges),
		CircuitNodes:    len(s.graph.Nodes()),
		CircuitEdges:    len(s.graph.Edges()),
		LoadedAt:        s.data.LoadedAt,
		Reloads:         s.reloads,
	}
}

// Dir returns the directory of the loaded dataset.
func (s *Session) Dir() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Dir
}

// Close releases the store.
func (s *Session) Close() error {
	if s.store == nil {
		return nil
	}
	return s.store.Close()
}
