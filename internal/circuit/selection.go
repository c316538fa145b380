package circuit

import "sort"

// Kind names what a selection targets.
type Kind string

const (
	KindNode Kind = "node"
	KindEdge Kind = "edge"
)

// Selection is a snapshot of the selected node and edge ids, ascending.
type Selection struct {
	Nodes []int `json:"nodes"`
	Edges []int `json:"edges"`
}

// Empty reports whether nothing is selected.
func (s Selection) Empty() bool {
	return len(s.Nodes) == 0 && len(s.Edges) == 0
}

func (g *Graph) exists(kind Kind, id int) bool {
	switch kind {
	case KindNode:
		return g.nodeIndex(id) >= 0
	case KindEdge:
		_, ok := g.Edge(id)
		return ok
	}
	return false
}

// SelectExclusive clears both selection sets and selects only id.
// Unknown targets leave the selection unchanged.
func (g *Graph) SelectExclusive(kind Kind, id int) bool {
	if !g.exists(kind, id) {
		return false
	}
	clear(g.selNodes)
	clear(g.selEdges)
	g.set(kind)[id] = struct{}{}
	return true
}

// SelectToggle flips membership of id in its set, leaving the other set
// alone.
func (g *Graph) SelectToggle(kind Kind, id int) bool {
	if !g.exists(kind, id) {
		return false
	}
	set := g.set(kind)
	if _, ok := set[id]; ok {
		delete(set, id)
	} else {
		set[id] = struct{}{}
	}
	return true
}

func (g *Graph) set(kind Kind) map[int]struct{} {
	if kind == KindEdge {
		return g.selEdges
	}
	return g.selNodes
}

// ClearSelection empties both selection sets.
func (g *Graph) ClearSelection() {
	clear(g.selNodes)
	clear(g.selEdges)
}

// Selection returns the current selection.
func (g *Graph) Selection() Selection {
	return Selection{Nodes: sortedIDs(g.selNodes), Edges: sortedIDs(g.selEdges)}
}

// DeleteSelection removes the selected edges, then the selected nodes with
// their edges, then clears the selection. It reports whether anything was
// selected.
func (g *Graph) DeleteSelection() bool {
	sel := g.Selection()
	if sel.Empty() {
		return false
	}
	g.RemoveEdges(sel.Edges)
	g.RemoveNodes(sel.Nodes)
	g.ClearSelection()
	return true
}

func sortedIDs(set map[int]struct{}) []int {
	out := make([]int, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}
