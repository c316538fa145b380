// Package circuit holds the user-built circuit: a small graph of feature
// nodes and the edges between them, with selection state and save/restore.
//
// Graph is not safe for concurrent use; callers that share one serialize
// access themselves.
package circuit

import "github.com/nvandessel/protomech/internal/models"

// FeatureRef describes one feature occurrence picked from the activation
// grid: the feature, the position it was picked at, the residue there and
// its activation value.
type FeatureRef struct {
	Layer    int     `json:"layer"`
	Latent   int     `json:"latentIdx"`
	Position int     `json:"pos"`
	Residue  string  `json:"aa"`
	Value    float64 `json:"value"`
}

// Feature returns the feature key of the reference.
func (r FeatureRef) Feature() models.FeatureKey {
	return models.FeatureKey{Layer: r.Layer, Latent: r.Latent}
}

// Node is a circuit node. Simple nodes stand for one feature; composite
// nodes group several feature references and have no feature identity.
type Node struct {
	ID        int          `json:"id"`
	X         float64      `json:"x"`
	Y         float64      `json:"y"`
	Latent    int          `json:"latentIdx"`
	Layer     int          `json:"layer"`
	Position  int          `json:"pos"`
	Residue   string       `json:"aa"`
	Value     float64      `json:"value"`
	Composite bool         `json:"isSuper"`
	Children  []FeatureRef `json:"children"`
	Name      string       `json:"name"`
}

// Feature returns the node's feature key. It is meaningless for composite
// nodes.
func (n Node) Feature() models.FeatureKey {
	return models.FeatureKey{Layer: n.Layer, Latent: n.Latent}
}

// Edge connects two nodes. Derived edges come from the influence index and
// carry its average weight; user edges may have no weight.
type Edge struct {
	ID      int      `json:"id"`
	From    int      `json:"from"`
	To      int      `json:"to"`
	Weight  *float64 `json:"weight,omitempty"`
	Derived bool     `json:"isVirtual"`
}

// Touches reports whether id is an endpoint of e.
func (e Edge) Touches(id int) bool {
	return e.From == id || e.To == id
}

// Connects reports whether e joins a and b in either direction.
func (e Edge) Connects(a, b int) bool {
	return (e.From == a && e.To == b) || (e.From == b && e.To == a)
}

// State is the coarse lifecycle state of a graph.
type State string

const (
	StateEmpty     State = "empty"
	StatePopulated State = "populated"
)

func cloneNode(n Node) Node {
	if n.Children != nil {
		n.Children = append([]FeatureRef{}, n.Children...)
	}
	return n
}

func cloneEdge(e Edge) Edge {
	if e.Weight != nil {
		w := *e.Weight
		e.Weight = &w
	}
	return e
}
