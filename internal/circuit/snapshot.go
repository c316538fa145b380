package circuit

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/nvandessel/protomech/internal/models"
)

// SnapshotVersion is the format version written by Serialize.
const SnapshotVersion = 1

// Snapshot is the persisted form of a graph. Derived edges are not stored;
// they are recomputed from the influence index on Restore.
type Snapshot struct {
	Version       int    `json:"version"`
	Timestamp     string `json:"timestamp,omitempty"`
	NodeIDCounter int    `json:"nodeIdCounter"`
	EdgeIDCounter int    `json:"edgeIdCounter"`
	Nodes         []Node `json:"nodes"`
	Edges         []Edge `json:"edges"`
}

// UnmarshalJSON also accepts the older "canvasNodes" key for nodes.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	type plain Snapshot
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	if p.Nodes == nil {
		var legacy struct {
			CanvasNodes []Node `json:"canvasNodes"`
		}
		if err := json.Unmarshal(data, &legacy); err != nil {
			return err
		}
		p.Nodes = legacy.CanvasNodes
	}
	*s = Snapshot(p)
	return nil
}

// MalformedSnapshotError reports a snapshot that cannot be restored.
// It unwraps to a *models.MalformedInputError.
type MalformedSnapshotError struct {
	Field  string
	Reason string
}

func (e *MalformedSnapshotError) Error() string {
	return fmt.Sprintf("malformed snapshot: %s: %s", e.Field, e.Reason)
}

func (e *MalformedSnapshotError) Unwrap() error {
	return models.Malformed("snapshot", e.Field, e.Reason)
}

// DecodeSnapshot parses and validates a snapshot document.
func DecodeSnapshot(data []byte) (Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return Snapshot{}, &MalformedSnapshotError{Field: "document", Reason: err.Error()}
	}
	if err := s.Validate(); err != nil {
		return Snapshot{}, err
	}
	return s, nil
}

// EncodeSnapshot renders a snapshot as indented JSON.
func EncodeSnapshot(s Snapshot) ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding snapshot: %w", err)
	}
	return data, nil
}

// Validate checks that a snapshot can be restored without breaking graph
// invariants: nodes and edges present, unique ids, one simple node per
// feature, edges between known nodes and at most one edge per node pair.
func (s Snapshot) Validate() error {
	if s.Nodes == nil {
		return &MalformedSnapshotError{Field: "nodes", Reason: "missing"}
	}
	if s.Edges == nil {
		return &MalformedSnapshotError{Field: "edges", Reason: "missing"}
	}

	nodeIDs := make(map[int]struct{}, len(s.Nodes))
	features := make(map[models.FeatureKey]int)
	for _, n := range s.Nodes {
		if _, dup := nodeIDs[n.ID]; dup {
			return &MalformedSnapshotError{Field: "nodes", Reason: fmt.Sprintf("duplicate node id %d", n.ID)}
		}
		nodeIDs[n.ID] = struct{}{}
		if n.Composite {
			continue
		}
		if other, dup := features[n.Feature()]; dup {
			return &MalformedSnapshotError{
				Field:  "nodes",
				Reason: fmt.Sprintf("nodes %d and %d both stand for %s", other, n.ID, n.Feature()),
			}
		}
		features[n.Feature()] = n.ID
	}

	edgeIDs := make(map[int]struct{}, len(s.Edges))
	pairs := make(map[[2]int]struct{}, len(s.Edges))
	for _, e := range s.Edges {
		if _, dup := edgeIDs[e.ID]; dup {
			return &MalformedSnapshotError{Field: "edges", Reason: fmt.Sprintf("duplicate edge id %d", e.ID)}
		}
		edgeIDs[e.ID] = struct{}{}

		_, okFrom := nodeIDs[e.From]
		_, okTo := nodeIDs[e.To]
		if !okFrom || !okTo {
			return &MalformedSnapshotError{Field: "edges", Reason: fmt.Sprintf("edge %d references an unknown node", e.ID)}
		}
		pair := [2]int{min(e.From, e.To), max(e.From, e.To)}
		if _, dup := pairs[pair]; dup {
			return &MalformedSnapshotError{Field: "edges", Reason: fmt.Sprintf("edge %d duplicates a connection", e.ID)}
		}
		pairs[pair] = struct{}{}
	}
	return nil
}

// Serialize captures the graph. Only user edges are included.
func (g *Graph) Serialize() Snapshot {
	s := Snapshot{
		Version:       SnapshotVersion,
		Timestamp:     g.now().UTC().Format(time.RFC3339Nano),
		NodeIDCounter: g.nextNx,
		EdgeIDCounter: g.nextEx,
		Nodes:         g.Nodes(),
		Edges:         make([]Edge, 0, len(g.edges)),
	}
	for _, e := range g.edges {
		if !e.Derived {
			s.Edges = append(s.Edges, cloneEdge(e))
		}
	}
	return s
}

// Restore replaces the graph with the snapshot's nodes and user edges, then
// derives edges again for every simple node in order. Derived edges in the
// snapshot are ignored. An invalid snapshot
// is rejected before anything changes. Counters below the highest stored id
// are raised so ids are never reused.
func (g *Graph) Restore(s Snapshot) error {
	if err := s.Validate(); err != nil {
		return err
	}

	nodes := make([]Node, len(s.Nodes))
	nextNx := s.NodeIDCounter
	for i, n := range s.Nodes {
		nodes[i] = cloneNode(n)
		nextNx = max(nextNx, n.ID+1)
	}
	edges := make([]Edge, 0, len(s.Edges))
	nextEx := s.EdgeIDCounter
	for _, e := range s.Edges {
		nextEx = max(nextEx, e.ID+1)
		if e.Derived {
			continue // re-derived from the index below
		}
		edges = append(edges, cloneEdge(e))
	}

	g.reset()
	g.nodes = nodes
	g.edges = edges
	g.nextNx = max(nextNx, 0)
	g.nextEx = max(nextEx, 0)

	var derived []int
	for _, n := range g.nodes {
		derived = append(derived, g.autoLink(n)...)
	}

	ids := make([]int, len(g.nodes))
	for i, n := range g.nodes {
		ids[i] = n.ID
	}
	g.emit(Event{Kind: EventRestored, NodeIDs: ids, EdgeIDs: derived})
	return nil
}
