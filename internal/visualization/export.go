package visualization

import (
	"bytes"

	"github.com/goccy/go-json"
	"github.com/nvandessel/protomech/internal/circuit"
	"github.com/nvandessel/protomech/internal/ranking"
)

// Ext returns the file extension for the format, including the dot.
func (f Format) Ext() string {
	switch f {
	case FormatDOT:
		return ".dot"
	case FormatSVG:
		return ".svg"
	case FormatHTML:
		return ".html"
	default:
		return ".json"
	}
}

// Render produces the complete document for a format. SVG fails with
// ErrEmptyCircuit on an empty circuit; the other formats render it.
func Render(format Format, title string, nodes []circuit.Node, edges []circuit.Edge, report *ranking.Report) ([]byte, error) {
	switch format {
	case FormatDOT:
		return []byte(RenderDOT(nodes, edges)), nil
	case FormatSVG:
		var buf bytes.Buffer
		if err := RenderSVG(&buf, nodes, edges); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case FormatHTML:
		return RenderHTML(title, nodes, edges, report)
	default:
		return json.MarshalIndent(RenderJSON(nodes, edges, report), "", "  ")
	}
}
