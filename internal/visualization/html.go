package visualization

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"strings"

	"github.com/goccy/go-json"

	"github.com/nvandessel/protomech/internal/circuit"
	"github.com/nvandessel/protomech/internal/ranking"
)

// htmlTemplateData holds data passed to the HTML template.
// SVG is produced by RenderSVG, which escapes all text content.
// GraphJSON is pre-sanitized JSON (via json.HTMLEscape) safe for inline <script>.
type htmlTemplateData struct {
	Title     string
	NodeCount int
	EdgeCount int
	SVG       template.HTML
	GraphJSON template.JS
}

// RenderHTML produces a self-contained HTML page with the circuit drawing
// and a node ranking table.
func RenderHTML(title string, nodes []circuit.Node, edges []circuit.Edge, report *ranking.Report) ([]byte, error) {
	var drawing bytes.Buffer
	if err := RenderSVG(&drawing, nodes, edges); err != nil && !errors.Is(err, ErrEmptyCircuit) {
		return nil, fmt.Errorf("render SVG: %w", err)
	}

	graphJSON, err := json.Marshal(RenderJSON(nodes, edges, report))
	if err != nil {
		return nil, fmt.Errorf("marshal circuit data: %w", err)
	}

	tmplBytes, err := templates.ReadFile("templates/circuit.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("read HTML template: %w", err)
	}
	tmpl, err := template.New("circuit").Parse(string(tmplBytes))
	if err != nil {
		return nil, fmt.Errorf("parse HTML template: %w", err)
	}

	// Inline SVG goes without the XML declaration.
	inline := drawing.String()
	if i := strings.Index(inline, "<svg"); i > 0 {
		inline = inline[i:]
	}

	var escaped bytes.Buffer
	json.HTMLEscape(&escaped, graphJSON)

	var buf bytes.Buffer
	data := htmlTemplateData{
		Title:     title,
		NodeCount: len(nodes),
		EdgeCount: len(edges),
		SVG:       template.HTML(inline),         // #nosec G203
		GraphJSON: template.JS(escaped.String()), // #nosec G203
	}
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("execute HTML template: %w", err)
	}
	return buf.Bytes(), nil
}
