// Package constants provides named constants used throughout protomech.
// This centralizes magic numbers shared by the CLI, the explorer session and
// the renderers.
package constants

// Circuit grid placement. New nodes fill rows left to right.
const (
	// GridNodesPerRow is the number of nodes placed on one grid row.
	GridNodesPerRow = 5

	// GridOriginX and GridOriginY are the coordinates of the first grid cell.
	GridOriginX = 20
	GridOriginY = 20

	// GridSpacingX is the horizontal distance between grid cells.
	GridSpacingX = 120

	// GridSpacingY is the vertical distance between grid rows.
	GridSpacingY = 80
)

// Influence threshold constants.
const (
	// DefaultMaxEdges caps the number of raw influence samples shown before
	// the user picks a threshold.
	DefaultMaxEdges = 1000

	// MinThresholdPercent is the smallest accepted threshold percentage.
	MinThresholdPercent = 0.01

	// MaxThresholdPercent keeps every sample.
	MaxThresholdPercent = 100.0
)

// MaxNameLen is the maximum length of a node display name, in runes.
const MaxNameLen = 80

// Alignment constants
const (
	// GapChar pads aligned sequences.
	GapChar = '-'

	// DefaultAlignmentCacheSize is the number of alignments kept per session.
	DefaultAlignmentCacheSize = 128

	// DefaultTopRecords limits how many top-activation records are aligned
	// next to the reference sequence.
	DefaultTopRecords = 10
)

// SVG export layout, in pixels.
const (
	SVGNodeWidth   = 100
	SVGNodeHeight  = 50
	SVGPadding     = 40
	SVGMinStroke   = 2.0
	SVGStrokeRange = 6.0
)
