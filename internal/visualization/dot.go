// Package visualization renders circuits in various output formats and
// serves the explorer over HTTP.
package visualization

import (
	"fmt"
	"strings"

	"github.com/nvandessel/protomech/internal/circuit"
	"github.com/nvandessel/protomech/internal/ranking"
)

// Format specifies the output format for circuit rendering.
type Format string

const (
	FormatDOT  Format = "dot"
	FormatJSON Format = "json"
	FormatSVG  Format = "svg"
	FormatHTML Format = "html"
)

// ParseFormat validates a format name. Empty means JSON.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case "":
		return FormatJSON, nil
	case FormatDOT, FormatJSON, FormatSVG, FormatHTML:
		return f, nil
	default:
		return "", fmt.Errorf("unknown format %q (want dot, json, svg or html)", s)
	}
}

// NodeLabel returns the first label line of a node: "L<layer>/<latent>"
// counted from one for simple nodes, the children's latents for composites.
func NodeLabel(n circuit.Node) string {
	if !n.Composite {
		return fmt.Sprintf("L%d/%d", n.Layer+1, n.Latent+1)
	}
	parts := make([]string, len(n.Children))
	for i, c := range n.Children {
		parts[i] = fmt.Sprintf("L%d", c.Latent+1)
	}
	return strings.Join(parts, ", ")
}

// NodeSubtitle returns the second label line: the display name, or a
// member count for unnamed composites.
func NodeSubtitle(n circuit.Node) string {
	if n.Name != "" {
		return n.Name
	}
	if n.Composite {
		return fmt.Sprintf("Super Node (%d)", len(n.Children))
	}
	return ""
}

// RenderDOT produces a Graphviz DOT representation of the circuit.
// Circuit edges are undirected.
func RenderDOT(nodes []circuit.Node, edges []circuit.Edge) string {
	var b strings.Builder
	b.WriteString("graph circuit {\n")
	b.WriteString("  rankdir=LR;\n")
	b.WriteString("  node [shape=box, style=\"rounded,filled\", fontname=\"Helvetica\"];\n")
	b.WriteString("  edge [fontname=\"Helvetica\", fontsize=10];\n\n")

	for _, n := range nodes {
		label := NodeLabel(n)
		if sub := NodeSubtitle(n); sub != "" {
			label += "\n" + truncate(sub, 40)
		}
		fill, border := nodeColors(n)
		b.WriteString(fmt.Sprintf("  n%d [label=%q, fillcolor=%q, color=%q, pos=\"%.0f,%.0f!\"];\n",
			n.ID, label, fill, border, n.X, -n.Y))
	}
	b.WriteString("\n")

	for _, e := range edges {
		style := "solid"
		if e.Derived {
			style = "dashed"
		}
		if e.Weight != nil {
			b.WriteString(fmt.Sprintf("  n%d -- n%d [label=%q, style=%s];\n",
				e.From, e.To, fmt.Sprintf("%.3f", *e.Weight), style))
			continue
		}
		b.WriteString(fmt.Sprintf("  n%d -- n%d [style=%s];\n", e.From, e.To, style))
	}

	b.WriteString("}\n")
	return b.String()
}

// RenderJSON produces a JSON-ready circuit representation with nodes and
// edges arrays. When report is non-nil its scores are attached to nodes.
func RenderJSON(nodes []circuit.Node, edges []circuit.Edge, report *ranking.Report) map[string]interface{} {
	scores := make(map[int]ranking.NodeScore)
	if report != nil {
		for _, s := range report.Scores {
			scores[s.ID] = s
		}
	}

	jsonNodes := make([]map[string]interface{}, 0, len(nodes))
	for _, n := range nodes {
		entry := map[string]interface{}{
			"id":        n.ID,
			"label":     NodeLabel(n),
			"name":      n.Name,
			"layer":     n.Layer,
			"latent":    n.Latent,
			"position":  n.Position,
			"residue":   n.Residue,
			"value":     n.Value,
			"composite": n.Composite,
			"x":         n.X,
			"y":         n.Y,
		}
		if n.Composite {
			entry["children"] = n.Children
		}
		if s, ok := scores[n.ID]; ok {
			entry["pagerank"] = s.PageRank
			entry["degree"] = s.Degree
			entry["component"] = s.Component
		}
		jsonNodes = append(jsonNodes, entry)
	}

	jsonEdges := make([]map[string]interface{}, 0, len(edges))
	for _, e := range edges {
		entry := map[string]interface{}{
			"id":      e.ID,
			"source":  e.From,
			"target":  e.To,
			"derived": e.Derived,
		}
		if e.Weight != nil {
			entry["weight"] = *e.Weight
		}
		jsonEdges = append(jsonEdges, entry)
	}

	return map[string]interface{}{
		"nodes":      jsonNodes,
		"edges":      jsonEdges,
		"node_count": len(jsonNodes),
		"edge_count": len(jsonEdges),
	}
}

// truncate shortens a string to maxLen runes, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
