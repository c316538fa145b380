package explorer

import (
	"context"
	"fmt"

	"github.com/nvandessel/protomech/internal/circuit"
	"github.com/nvandessel/protomech/internal/ranking"
	"github.com/nvandessel/protomech/internal/sanitize"
	"github.com/nvandessel/protomech/internal/store"
)

// PickFeature builds the reference for (layer, latent) picked at position,
// reading the residue and activation value from the dataset. A negative
// position picks the feature's peak.
func (s *Session) PickFeature(layer, latent, position int) circuit.FeatureRef {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pick(layer, latent, position)
}

func (s *Session) pick(layer, latent, position int) circuit.FeatureRef {
	seq := s.data.Sequence
	if position < 0 {
		position = 0
		best := 0.0
		for pos, v := range s.acts.Profile(layer, latent, len(seq)) {
			if v > best {
				best, position = v, pos
			}
		}
	}

	ref := circuit.FeatureRef{Layer: layer, Latent: latent, Position: position}
	if position < len(seq) {
		ref.Residue = seq[position : position+1]
	}
	if v, ok := s.acts.Value(layer, latent, position); ok {
		ref.Value = v
	}
	return ref
}

// AddFeature adds the simple node for a feature picked at position (the
// peak when negative). created is false when the feature already had a
// node.
func (s *Session) AddFeature(layer, latent, position int) (node circuit.Node, created bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.graph.AddNode(s.pick(layer, latent, position))
}

// AddNamedFeature is AddFeature that names a newly created node. A feature
// already in the circuit comes back unchanged, name ignored. The returned
// node carries the name as stored.
func (s *Session) AddNamedFeature(layer, latent, position int, name string) (node circuit.Node, created bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	node, created = s.graph.AddNode(s.pick(layer, latent, position))
	if created && name != "" {
		s.graph.SetDisplayName(node.ID, sanitize.NodeName(name))
		node, _ = s.graph.Node(node.ID)
	}
	return node, created
}

// AddComposite groups feature references into one composite node.
func (s *Session) AddComposite(children []circuit.FeatureRef) circuit.Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.graph.AddCompositeNode(children)
}

// Link connects two nodes with a user edge.
func (s *Session) Link(from, to int, weight *float64) (edge circuit.Edge, created, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.graph.AddEdge(from, to, weight)
}

// AutoLink derives edges for one node again.
func (s *Session) AutoLink(id int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.graph.AutoLink(id)
}

// RemoveNodes removes nodes and their edges.
func (s *Session) RemoveNodes(ids []int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.graph.RemoveNodes(ids)
}

// RemoveFeature removes the simple node of a feature.
func (s *Session) RemoveFeature(layer, latent int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.graph.RemoveFeature(layer, latent)
}

// RemoveEdges removes edges by id.
func (s *Session) RemoveEdges(ids []int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.graph.RemoveEdges(ids)
}

// MoveNode sets a node's coordinates.
func (s *Session) MoveNode(id int, x, y float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.graph.MoveNode(id, x, y)
}

// Rename sets a node's display name, cleaned to a single plain line.
func (s *Session) Rename(id int, name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.graph.SetDisplayName(id, sanitize.NodeName(name))
}

// Select applies a click on a node or edge: exclusive, or toggling when
// additive (shift or ctrl held).
func (s *Session) Select(kind circuit.Kind, id int, additive bool) (circuit.Selection, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ok bool
	if additive {
		ok = s.graph.SelectToggle(kind, id)
	} else {
		ok = s.graph.SelectExclusive(kind, id)
	}
	return s.graph.Selection(), ok
}

// ClearSelection empties the selection.
func (s *Session) ClearSelection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.graph.ClearSelection()
}

// DeleteSelection removes every selected edge and node.
func (s *Session) DeleteSelection() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.graph.DeleteSelection()
}

// ClearCircuit removes every node and edge.
func (s *Session) ClearCircuit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.graph.Clear()
}

// Circuit is a consistent copy of the circuit state.
type Circuit struct {
	State     circuit.State     `json:"state"`
	Nodes     []circuit.Node    `json:"nodes"`
	Edges     []circuit.Edge    `json:"edges"`
	Selection circuit.Selection `json:"selection"`
}

// Circuit returns the current circuit.
func (s *Session) Circuit() Circuit {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Circuit{
		State:     s.graph.State(),
		Nodes:     s.graph.Nodes(),
		Edges:     s.graph.Edges(),
		Selection: s.graph.Selection(),
	}
}

// Analyze ranks the circuit's nodes.
func (s *Session) Analyze() ranking.Report {
	c := s.Circuit()
	return ranking.AnalyzeCircuit(c.Nodes, c.Edges, ranking.DefaultPageRankConfig())
}

// Snapshot serializes the circuit.
func (s *Session) Snapshot() circuit.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.graph.Serialize()
}

// RestoreSnapshot replaces the circuit. An invalid snapshot leaves it
// unchanged.
func (s *Session) RestoreSnapshot(snap circuit.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.graph.Restore(snap)
}

// Save stores the circuit under name.
func (s *Session) Save(ctx context.Context, name string) error {
	if s.store == nil {
		return ErrNoStore
	}
	snap := s.Snapshot()
	if err := s.store.Save(ctx, name, snap); err != nil {
		return fmt.Errorf("saving circuit %q: %w", name, err)
	}
	s.logger.Debug("circuit saved", "name", name, "nodes", len(snap.Nodes), "edges", len(snap.Edges))
	return nil
}

// Restore loads the circuit stored under name.
func (s *Session) Restore(ctx context.Context, name string) error {
	if s.store == nil {
		return ErrNoStore
	}
	snap, err := s.store.Load(ctx, name)
	if err != nil {
		return fmt.Errorf("loading circuit %q: %w", name, err)
	}
	if err := s.RestoreSnapshot(snap); err != nil {
		return fmt.Errorf("restoring circuit %q: %w", name, err)
	}
	s.logger.Debug("circuit restored", "name", name, "nodes", len(snap.Nodes))
	return nil
}

// Saved lists stored circuits, newest first.
func (s *Session) Saved(ctx context.Context) ([]store.Info, error) {
	if s.store == nil {
		return nil, ErrNoStore
	}
	return s.store.List(ctx)
}
