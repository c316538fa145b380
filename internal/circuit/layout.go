package circuit

import "github.com/nvandessel/protomech/internal/constants"

// Layout places new nodes on a grid, filling rows left to right.
type Layout struct {
	PerRow   int     `json:"nodes_per_row" yaml:"nodes_per_row"`
	OriginX  float64 `json:"origin_x" yaml:"origin_x"`
	OriginY  float64 `json:"origin_y" yaml:"origin_y"`
	SpacingX float64 `json:"spacing_x" yaml:"spacing_x"`
	SpacingY float64 `json:"spacing_y" yaml:"spacing_y"`
}

// DefaultLayout returns the five-per-row grid used by the canvas.
func DefaultLayout() Layout {
	return Layout{
		PerRow:   constants.GridNodesPerRow,
		OriginX:  constants.GridOriginX,
		OriginY:  constants.GridOriginY,
		SpacingX: constants.GridSpacingX,
		SpacingY: constants.GridSpacingY,
	}
}

// Place returns the coordinates of the n-th grid cell.
func (l Layout) Place(n int) (x, y float64) {
	perRow := l.PerRow
	if perRow <= 0 {
		perRow = constants.GridNodesPerRow
	}
	x = l.OriginX + float64(n%perRow)*l.SpacingX
	y = l.OriginY + float64(n/perRow)*l.SpacingY
	return x, y
}
