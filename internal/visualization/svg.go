package visualization

import (
	"errors"
	"fmt"
	"io"
	"math"

	svg "github.com/ajstarks/svgo"
	"github.com/nvandessel/protomech/internal/circuit"
	"github.com/nvandessel/protomech/internal/constants"
)

// ErrEmptyCircuit is returned when exporting a circuit without nodes.
var ErrEmptyCircuit = errors.New("no nodes to export")

type rgb struct{ r, g, b int }

var (
	negLow  = rgb{248, 194, 145}
	negHigh = rgb{235, 47, 6}
	posLow  = rgb{130, 204, 221}
	posHigh = rgb{60, 99, 130}
)

const (
	colorBackground   = "#ffffff"
	colorEdgeDefault  = "#666666"
	colorEdgeLabel    = "#333333"
	colorSubtitle     = "#666666"
	colorSuperCaption = "#888888"
	fontFamily        = "Arial, sans-serif"
)

// nodeColors returns fill and border colors for a node.
func nodeColors(n circuit.Node) (fill, border string) {
	if n.Composite {
		return "#f0e8f8", "#7a5490"
	}
	return "#e8e8f0", "#3060a0"
}

func nodeTextColor(n circuit.Node) string {
	if n.Composite {
		return "#5a3470"
	}
	return "#1a1a2e"
}

// EdgeColor maps a weight onto the diverging palette: positive weights run
// light blue to dark blue, negative ones light orange to red, by magnitude
// relative to the largest |weight| in [minW, maxW].
func EdgeColor(weight, minW, maxW float64) string {
	if minW == maxW {
		lo, hi := posLow, posHigh
		if weight < 0 {
			lo, hi = negLow, negHigh
		}
		return fmt.Sprintf("rgb(%d, %d, %d)", roundHalf(lo.r, hi.r), roundHalf(lo.g, hi.g), roundHalf(lo.b, hi.b))
	}

	maxAbs := math.Max(math.Abs(minW), math.Abs(maxW))
	normalized := 0.0
	if maxAbs != 0 {
		normalized = weight / maxAbs
	}
	t := math.Abs(normalized)

	lo, hi := posLow, posHigh
	if normalized < 0 {
		lo, hi = negLow, negHigh
	}
	return fmt.Sprintf("rgb(%d, %d, %d)", lerp(lo.r, hi.r, t), lerp(lo.g, hi.g, t), lerp(lo.b, hi.b, t))
}

func lerp(a, b int, t float64) int {
	return int(math.Floor(float64(a) + t*float64(b-a) + 0.5))
}

func roundHalf(a, b int) int {
	return int(math.Floor(float64(a+b)/2 + 0.5))
}

// RenderSVG writes a standalone SVG image of the circuit to w. The canvas
// is cropped to the node bounding box plus padding.
func RenderSVG(w io.Writer, nodes []circuit.Node, edges []circuit.Edge) error {
	if len(nodes) == 0 {
		return ErrEmptyCircuit
	}

	const (
		nodeW   = constants.SVGNodeWidth
		nodeH   = constants.SVGNodeHeight
		padding = constants.SVGPadding
	)

	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	byID := make(map[int]circuit.Node, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
		minX = math.Min(minX, n.X)
		minY = math.Min(minY, n.Y)
		maxX = math.Max(maxX, n.X+nodeW)
		maxY = math.Max(maxY, n.Y+nodeH)
	}
	width := int(math.Round(maxX - minX + 2*padding))
	height := int(math.Round(maxY - minY + 2*padding))
	offX := -minX + padding
	offY := -minY + padding

	minW, maxW := math.Inf(1), math.Inf(-1)
	for _, e := range edges {
		if e.Weight != nil {
			minW = math.Min(minW, *e.Weight)
			maxW = math.Max(maxW, *e.Weight)
		}
	}
	if math.IsInf(minW, 0) {
		minW = 0
	}
	if math.IsInf(maxW, 0) {
		maxW = 0
	}
	maxAbs := math.Max(math.Abs(minW), math.Abs(maxW))

	center := func(n circuit.Node) (int, int) {
		return int(math.Round(n.X + offX + nodeW/2)), int(math.Round(n.Y + offY + nodeH/2))
	}

	canvas := svg.New(w)
	canvas.Start(width, height)
	canvas.Rect(0, 0, width, height, "fill:"+colorBackground)

	canvas.Gid("edges")
	for _, e := range edges {
		from, okFrom := byID[e.From]
		to, okTo := byID[e.To]
		if !okFrom || !okTo {
			continue
		}
		stroke, color := constants.SVGMinStroke, colorEdgeDefault
		if e.Weight != nil && maxAbs > 0 {
			stroke = constants.SVGMinStroke + math.Abs(*e.Weight)/maxAbs*constants.SVGStrokeRange
			color = EdgeColor(*e.Weight, minW, maxW)
		}
		x1, y1 := center(from)
		x2, y2 := center(to)
		canvas.Line(x1, y1, x2, y2, fmt.Sprintf("stroke:%s;stroke-width:%g;stroke-linecap:round", color, stroke))
	}
	canvas.Gend()

	canvas.Gid("edge-labels")
	for _, e := range edges {
		from, okFrom := byID[e.From]
		to, okTo := byID[e.To]
		if e.Weight == nil || !okFrom || !okTo {
			continue
		}
		mx := int(math.Round((from.X+to.X)/2 + offX + nodeW/2))
		my := int(math.Round((from.Y+to.Y)/2 + offY + nodeH/2))
		canvas.Text(mx, my-8, fmt.Sprintf("%.3f", *e.Weight),
			fmt.Sprintf("text-anchor:middle;font-size:10px;fill:%s;font-family:%s", colorEdgeLabel, fontFamily))
	}
	canvas.Gend()

	canvas.Gid("nodes")
	for _, n := range nodes {
		x := int(math.Round(n.X + offX))
		y := int(math.Round(n.Y + offY))
		fill, border := nodeColors(n)
		canvas.Roundrect(x, y, nodeW, nodeH, 6, 6, fmt.Sprintf("fill:%s;stroke:%s;stroke-width:2", fill, border))
		canvas.Text(x+nodeW/2, y+20, NodeLabel(n),
			fmt.Sprintf("text-anchor:middle;font-size:12px;font-weight:bold;fill:%s;font-family:%s", nodeTextColor(n), fontFamily))

		sub := NodeSubtitle(n)
		if sub == "" {
			continue
		}
		color := colorSubtitle
		if n.Name == "" {
			color = colorSuperCaption
		}
		canvas.Text(x+nodeW/2, y+35, sub,
			fmt.Sprintf("text-anchor:middle;font-size:10px;fill:%s;font-family:%s", color, fontFamily))
	}
	canvas.Gend()

	canvas.End()
	return nil
}
