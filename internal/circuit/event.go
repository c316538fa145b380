package circuit

// EventKind names a completed graph mutation.
type EventKind string

const (
	EventNodeAdded      EventKind = "node_added"
	EventCompositeAdded EventKind = "composite_added"
	EventEdgeAdded      EventKind = "edge_added"
	EventNodesRemoved   EventKind = "nodes_removed"
	EventEdgesRemoved   EventKind = "edges_removed"
	EventNodeMoved      EventKind = "node_moved"
	EventNodeRenamed    EventKind = "node_renamed"
	EventIndexSwapped   EventKind = "index_swapped"
	EventRestored       EventKind = "restored"
	EventCleared        EventKind = "cleared"
)

// Event describes one mutation after it has fully applied.
type Event struct {
	Kind    EventKind `json:"kind"`
	NodeIDs []int     `json:"node_ids,omitempty"`
	EdgeIDs []int     `json:"edge_ids,omitempty"`
}

// OnChange registers fn to run after every mutation.
func (g *Graph) OnChange(fn func(Event)) {
	if fn != nil {
		g.observers = append(g.observers, fn)
	}
}

func (g *Graph) emit(ev Event) {
	for _, fn := range g.observers {
		fn(ev)
	}
}
