package circuit

import (
	"strings"
	"time"

	"github.com/nvandessel/protomech/internal/constants"
	"github.com/nvandessel/protomech/internal/influence"
	"github.com/nvandessel/protomech/internal/models"
)

// Graph is the circuit under construction. Node and edge ids come from
// monotonic counters and are never reused, including across Clear.
type Graph struct {
	index  *influence.Index
	layout Layout

	nodes  []Node
	edges  []Edge
	nextNx int
	nextEx int

	selNodes map[int]struct{}
	selEdges map[int]struct{}

	observers []func(Event)
	now       func() time.Time
}

// New returns an empty graph that derives edges from index. index may be nil.
func New(index *influence.Index) *Graph {
	return &Graph{
		index:    index,
		layout:   DefaultLayout(),
		selNodes: make(map[int]struct{}),
		selEdges: make(map[int]struct{}),
		now:      time.Now,
	}
}

// SetLayout changes the grid used for nodes added from now on.
func (g *Graph) SetLayout(l Layout) {
	g.layout = l
}

// Index returns the influence index used for auto-linking.
func (g *Graph) Index() *influence.Index {
	return g.index
}

// State reports whether the graph has any nodes.
func (g *Graph) State() State {
	if len(g.nodes) == 0 {
		return StateEmpty
	}
	return StatePopulated
}

// Nodes returns a copy of the nodes in insertion order.
func (g *Graph) Nodes() []Node {
	out := make([]Node, len(g.nodes))
	for i, n := range g.nodes {
		out[i] = cloneNode(n)
	}
	return out
}

// Edges returns a copy of the edges in insertion order.
func (g *Graph) Edges() []Edge {
	out := make([]Edge, len(g.edges))
	for i, e := range g.edges {
		out[i] = cloneEdge(e)
	}
	return out
}

// Node returns the node with the given id.
func (g *Graph) Node(id int) (Node, bool) {
	if i := g.nodeIndex(id); i >= 0 {
		return cloneNode(g.nodes[i]), true
	}
	return Node{}, false
}

// Edge returns the edge with the given id.
func (g *Graph) Edge(id int) (Edge, bool) {
	for _, e := range g.edges {
		if e.ID == id {
			return cloneEdge(e), true
		}
	}
	return Edge{}, false
}

// Counters returns the next node and edge ids.
func (g *Graph) Counters() (nodeID, edgeID int) {
	return g.nextNx, g.nextEx
}

func (g *Graph) nodeIndex(id int) int {
	for i, n := range g.nodes {
		if n.ID == id {
			return i
		}
	}
	return -1
}

// FindFeature returns the simple node standing for (layer, latent).
func (g *Graph) FindFeature(layer, latent int) (Node, bool) {
	k := models.FeatureKey{Layer: layer, Latent: latent}
	for _, n := range g.nodes {
		if !n.Composite && n.Feature() == k {
			return cloneNode(n), true
		}
	}
	return Node{}, false
}

// AddNode adds a simple node for ref. If a simple node for the same feature
// already exists it is returned unchanged and created is false. New nodes
// are placed on the next grid cell and linked to every existing simple node
// the influence index connects them to.
func (g *Graph) AddNode(ref FeatureRef) (node Node, created bool) {
	if existing, ok := g.FindFeature(ref.Layer, ref.Latent); ok {
		return existing, false
	}

	n := g.place(Node{
		Latent:   ref.Latent,
		Layer:    ref.Layer,
		Position: ref.Position,
		Residue:  ref.Residue,
		Value:    ref.Value,
		Children: []FeatureRef{},
	})
	g.nodes = append(g.nodes, n)
	derived := g.autoLink(n)

	g.emit(Event{Kind: EventNodeAdded, NodeIDs: []int{n.ID}, EdgeIDs: derived})
	return cloneNode(n), true
}

// AddCompositeNode adds a node grouping children. Composite nodes are never
// de-duplicated and never auto-linked.
func (g *Graph) AddCompositeNode(children []FeatureRef) Node {
	n := Node{
		Composite: true,
		Children:  append([]FeatureRef{}, children...),
	}
	if len(children) > 0 {
		first := children[0]
		n.Layer, n.Latent, n.Position = first.Layer, first.Latent, first.Position
		n.Residue, n.Value = first.Residue, first.Value
	}
	n = g.place(n)
	g.nodes = append(g.nodes, n)

	g.emit(Event{Kind: EventCompositeAdded, NodeIDs: []int{n.ID}})
	return cloneNode(n)
}

func (g *Graph) place(n Node) Node {
	n.ID = g.nextNx
	g.nextNx++
	n.X, n.Y = g.layout.Place(len(g.nodes))
	return n
}

// AddEdge connects two existing nodes with a user edge. When the pair is
// already connected the existing edge is returned and created is false.
// Self loops and unknown endpoints are rejected with ok false.
func (g *Graph) AddEdge(from, to int, weight *float64) (edge Edge, created, ok bool) {
	if from == to || g.nodeIndex(from) < 0 || g.nodeIndex(to) < 0 {
		return Edge{}, false, false
	}
	if e, exists := g.connection(from, to); exists {
		return cloneEdge(e), false, true
	}

	e := Edge{ID: g.nextEx, From: from, To: to}
	if weight != nil {
		w := *weight
		e.Weight = &w
	}
	g.nextEx++
	g.edges = append(g.edges, e)

	g.emit(Event{Kind: EventEdgeAdded, EdgeIDs: []int{e.ID}})
	return cloneEdge(e), true, true
}

func (g *Graph) connection(a, b int) (Edge, bool) {
	for _, e := range g.edges {
		if e.Connects(a, b) {
			return e, true
		}
	}
	return Edge{}, false
}

// autoLink creates a derived edge between n and every other simple node
// whose feature pair has an aggregate, unless the pair is already connected.
// It returns the ids of the edges it created.
func (g *Graph) autoLink(n Node) []int {
	if n.Composite || g.index.Len() == 0 {
		return nil
	}

	var created []int
	for _, other := range g.nodes {
		if other.Composite || other.ID == n.ID {
			continue
		}
		agg, ok := g.index.Lookup(n.Feature(), other.Feature())
		if !ok {
			continue
		}
		if _, exists := g.connection(n.ID, other.ID); exists {
			continue
		}
		w := agg.AvgWeight
		e := Edge{ID: g.nextEx, From: n.ID, To: other.ID, Weight: &w, Derived: true}
		g.nextEx++
		g.edges = append(g.edges, e)
		created = append(created, e.ID)
	}
	return created
}

// AutoLink re-runs edge derivation for one node and returns the number of
// edges created.
func (g *Graph) AutoLink(id int) int {
	i := g.nodeIndex(id)
	if i < 0 {
		return 0
	}
	created := g.autoLink(g.nodes[i])
	if len(created) > 0 {
		g.emit(Event{Kind: EventEdgeAdded, EdgeIDs: created})
	}
	return len(created)
}

// RemoveNodes deletes the given nodes and every edge touching them in one
// step, and drops them from the selection. Unknown ids are ignored. It
// returns the number of nodes removed.
func (g *Graph) RemoveNodes(ids []int) int {
	doomed := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		if g.nodeIndex(id) >= 0 {
			doomed[id] = struct{}{}
		}
	}
	if len(doomed) == 0 {
		return 0
	}

	var removedEdges []int
	keptEdges := g.edges[:0:0]
	for _, e := range g.edges {
		_, from := doomed[e.From]
		_, to := doomed[e.To]
		if from || to {
			removedEdges = append(removedEdges, e.ID)
			delete(g.selEdges, e.ID)
			continue
		}
		keptEdges = append(keptEdges, e)
	}

	var removedNodes []int
	keptNodes := g.nodes[:0:0]
	for _, n := range g.nodes {
		if _, ok := doomed[n.ID]; ok {
			removedNodes = append(removedNodes, n.ID)
			delete(g.selNodes, n.ID)
			continue
		}
		keptNodes = append(keptNodes, n)
	}

	g.edges = keptEdges
	g.nodes = keptNodes

	g.emit(Event{Kind: EventNodesRemoved, NodeIDs: removedNodes, EdgeIDs: removedEdges})
	return len(removedNodes)
}

// RemoveFeature deletes the simple node for (layer, latent), if there is one.
func (g *Graph) RemoveFeature(layer, latent int) bool {
	n, ok := g.FindFeature(layer, latent)
	if !ok {
		return false
	}
	return g.RemoveNodes([]int{n.ID}) == 1
}

// RemoveEdges deletes edges by id and drops them from the selection.
// Unknown ids are ignored. It returns the number of edges removed.
func (g *Graph) RemoveEdges(ids []int) int {
	doomed := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		doomed[id] = struct{}{}
	}

	var removed []int
	kept := g.edges[:0:0]
	for _, e := range g.edges {
		if _, ok := doomed[e.ID]; ok {
			removed = append(removed, e.ID)
			delete(g.selEdges, e.ID)
			continue
		}
		kept = append(kept, e)
	}
	if len(removed) == 0 {
		return 0
	}
	g.edges = kept

	g.emit(Event{Kind: EventEdgesRemoved, EdgeIDs: removed})
	return len(removed)
}

// MoveNode sets a node's coordinates.
func (g *Graph) MoveNode(id int, x, y float64) bool {
	i := g.nodeIndex(id)
	if i < 0 {
		return false
	}
	g.nodes[i].X, g.nodes[i].Y = x, y
	g.emit(Event{Kind: EventNodeMoved, NodeIDs: []int{id}})
	return true
}

// SetDisplayName annotates a node. Surrounding whitespace is trimmed and
// long names are cut to constants.MaxNameLen runes; an empty name clears it.
func (g *Graph) SetDisplayName(id int, name string) bool {
	i := g.nodeIndex(id)
	if i < 0 {
		return false
	}
	name = strings.TrimSpace(name)
	if r := []rune(name); len(r) > constants.MaxNameLen {
		name = string(r[:constants.MaxNameLen])
	}
	g.nodes[i].Name = name
	g.emit(Event{Kind: EventNodeRenamed, NodeIDs: []int{id}})
	return true
}

// SetIndex swaps the influence index. Derived edges are dropped and derived
// again from the new index; user edges are kept.
func (g *Graph) SetIndex(index *influence.Index) {
	g.index = index

	kept := g.edges[:0:0]
	for _, e := range g.edges {
		if e.Derived {
			delete(g.selEdges, e.ID)
			continue
		}
		kept = append(kept, e)
	}
	g.edges = kept

	var derived []int
	for _, n := range g.nodes {
		derived = append(derived, g.autoLink(n)...)
	}
	g.emit(Event{Kind: EventIndexSwapped, EdgeIDs: derived})
}

// Clear removes every node, edge and selection. Counters keep counting.
func (g *Graph) Clear() {
	g.reset()
	g.emit(Event{Kind: EventCleared})
}

func (g *Graph) reset() {
	g.nodes = nil
	g.edges = nil
	clear(g.selNodes)
	clear(g.selEdges)
}
