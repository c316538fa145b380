// Package ranking scores circuit nodes and influence features by graph
// centrality.
package ranking

import (
	"math"
	"sort"

	"github.com/nvandessel/protomech/internal/circuit"
	"github.com/nvandessel/protomech/internal/influence"
	"github.com/nvandessel/protomech/internal/models"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/network"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// PageRankConfig holds configuration for PageRank computation.
type PageRankConfig struct {
	// DampingFactor (d) is the probability of following an edge vs. teleporting.
	// Standard value: 0.85.
	DampingFactor float64

	// Tolerance is the convergence threshold. Default: 1e-6.
	Tolerance float64
}

// DefaultPageRankConfig returns the default PageRank configuration.
func DefaultPageRankConfig() PageRankConfig {
	return PageRankConfig{
		DampingFactor: 0.85,
		Tolerance:     1e-6,
	}
}

// NodeScore summarizes one circuit node.
type NodeScore struct {
	ID int `json:"id"`
	// PageRank is normalized so the highest-scoring node has 1.
	PageRank float64 `json:"pagerank"`
	Degree   int     `json:"degree"`
	// Strength is the sum of |weight| over the node's weighted edges.
	Strength  float64 `json:"strength"`
	Component int     `json:"component"`
}

// Report is the analysis of a circuit.
type Report struct {
	// Scores are ordered by PageRank descending, then by id.
	Scores []NodeScore `json:"scores"`
	// Components lists node ids per connected component, largest first.
	Components [][]int `json:"components"`
}

// AnalyzeCircuit ranks the nodes of a circuit. Edges count in both
// directions regardless of how they were drawn.
func AnalyzeCircuit(nodes []circuit.Node, edges []circuit.Edge, cfg PageRankConfig) Report {
	if len(nodes) == 0 {
		return Report{Scores: []NodeScore{}, Components: [][]int{}}
	}

	dg := simple.NewDirectedGraph()
	ug := simple.NewUndirectedGraph()
	for _, n := range nodes {
		dg.AddNode(simple.Node(n.ID))
		ug.AddNode(simple.Node(n.ID))
	}

	degree := make(map[int]int, len(nodes))
	strength := make(map[int]float64, len(nodes))
	for _, e := range edges {
		if dg.Node(int64(e.From)) == nil || dg.Node(int64(e.To)) == nil || e.From == e.To {
			continue
		}
		from, to := dg.Node(int64(e.From)), dg.Node(int64(e.To))
		dg.SetEdge(dg.NewEdge(from, to))
		dg.SetEdge(dg.NewEdge(to, from))
		ug.SetEdge(ug.NewEdge(ug.Node(int64(e.From)), ug.Node(int64(e.To))))

		degree[e.From]++
		degree[e.To]++
		if e.Weight != nil {
			strength[e.From] += math.Abs(*e.Weight)
			strength[e.To] += math.Abs(*e.Weight)
		}
	}

	ranks := normalize(network.PageRankSparse(dg, cfg.DampingFactor, cfg.Tolerance))

	components := componentIDs(topo.ConnectedComponents(ug))
	componentOf := make(map[int]int, len(nodes))
	for i, comp := range components {
		for _, id := range comp {
			componentOf[id] = i
		}
	}

	scores := make([]NodeScore, 0, len(nodes))
	for _, n := range nodes {
		scores = append(scores, NodeScore{
			ID:        n.ID,
			PageRank:  ranks[int64(n.ID)],
			Degree:    degree[n.ID],
			Strength:  strength[n.ID],
			Component: componentOf[n.ID],
		})
	}
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].PageRank != scores[j].PageRank {
			return scores[i].PageRank > scores[j].PageRank
		}
		return scores[i].ID < scores[j].ID
	})

	return Report{Scores: scores, Components: components}
}

// FeatureScore ranks one feature of the aggregated influence graph.
type FeatureScore struct {
	Feature  models.FeatureKey `json:"feature"`
	PageRank float64           `json:"pagerank"`
	Degree   int               `json:"degree"`
}

// RankFeatures runs PageRank over the whole aggregated influence graph and
// returns the top limit features (all when limit <= 0). Same-layer pairs
// count like any other pair.
func RankFeatures(ix *influence.Index, limit int, cfg PageRankConfig) []FeatureScore {
	aggs := ix.Edges()
	if len(aggs) == 0 {
		return []FeatureScore{}
	}

	ids := make(map[models.FeatureKey]int64)
	var keys []models.FeatureKey
	idOf := func(k models.FeatureKey) int64 {
		if id, ok := ids[k]; ok {
			return id
		}
		id := int64(len(keys))
		ids[k] = id
		keys = append(keys, k)
		return id
	}

	dg := simple.NewDirectedGraph()
	degree := make(map[int64]int)
	for _, agg := range aggs {
		if agg.Key.Lo == agg.Key.Hi {
			continue
		}
		a, b := idOf(agg.Key.Lo), idOf(agg.Key.Hi)
		for _, id := range []int64{a, b} {
			if dg.Node(id) == nil {
				dg.AddNode(simple.Node(id))
			}
		}
		dg.SetEdge(dg.NewEdge(dg.Node(a), dg.Node(b)))
		dg.SetEdge(dg.NewEdge(dg.Node(b), dg.Node(a)))
		degree[a]++
		degree[b]++
	}
	if len(keys) == 0 {
		return []FeatureScore{}
	}

	ranks := normalize(network.PageRankSparse(dg, cfg.DampingFactor, cfg.Tolerance))

	out := make([]FeatureScore, 0, len(keys))
	for id, k := range keys {
		out = append(out, FeatureScore{Feature: k, PageRank: ranks[int64(id)], Degree: degree[int64(id)]})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PageRank != out[j].PageRank {
			return out[i].PageRank > out[j].PageRank
		}
		return out[i].Feature.Less(out[j].Feature)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// normalize divides every score by the maximum so the top score is 1.
func normalize(scores map[int64]float64) map[int64]float64 {
	maxScore := 0.0
	for _, s := range scores {
		maxScore = math.Max(maxScore, s)
	}
	if maxScore > 0 {
		for id, s := range scores {
			scores[id] = s / maxScore
		}
	}
	return scores
}

// componentIDs converts gonum components to sorted id lists, largest
// component first and ties by smallest id.
func componentIDs(comps [][]graph.Node) [][]int {
	out := make([][]int, len(comps))
	for i, comp := range comps {
		ids := make([]int, len(comp))
		for j, n := range comp {
			ids[j] = int(n.ID())
		}
		sort.Ints(ids)
		out[i] = ids
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i]) != len(out[j]) {
			return len(out[i]) > len(out[j])
		}
		return out[i][0] < out[j][0]
	})
	return out
}
