// Package activation indexes per-position latent activations by layer and
// position and derives the per-feature views built on top of them.
package activation

import (
	"sort"

	"github.com/nvandessel/protomech/internal/models"
)

// Entry is one active latent at a (layer, position) cell.
type Entry struct {
	Latent int     `json:"latent"`
	Value  float64 `json:"value"`
}

type cell struct {
	layer    int
	position int
}

// Index maps (layer, position) to the latents active there, in input order.
// It is immutable after NewIndex and safe for concurrent reads.
type Index struct {
	cells   map[cell][]Entry
	byLayer map[int]map[int]struct{}
	layers  []int
	min     float64
	max     float64
	count   int
}

// NewIndex builds an Index from activation samples. A latent appearing twice
// at the same (layer, position) is a *models.MalformedInputError.
func NewIndex(samples []models.ActivationSample) (*Index, error) {
	ix := &Index{
		cells:   make(map[cell][]Entry),
		byLayer: make(map[int]map[int]struct{}),
	}

	for i, s := range samples {
		c := cell{layer: s.Layer, position: s.Position}
		for _, e := range ix.cells[c] {
			if e.Latent == s.Latent {
				return nil, models.MalformedAt("activations", "sample", i, "duplicate latent for layer and position")
			}
		}
		ix.cells[c] = append(ix.cells[c], Entry{Latent: s.Latent, Value: s.Value})

		latents, ok := ix.byLayer[s.Layer]
		if !ok {
			latents = make(map[int]struct{})
			ix.byLayer[s.Layer] = latents
			ix.layers = append(ix.layers, s.Layer)
		}
		latents[s.Latent] = struct{}{}

		if ix.count == 0 || s.Value < ix.min {
			ix.min = s.Value
		}
		if ix.count == 0 || s.Value > ix.max {
			ix.max = s.Value
		}
		ix.count++
	}

	sort.Ints(ix.layers)
	return ix, nil
}

// At returns the entries at (layer, position), or nil if none.
func (ix *Index) At(layer, position int) []Entry {
	if ix == nil {
		return nil
	}
	return ix.cells[cell{layer: layer, position: position}]
}

// Value returns the activation of one feature at a position.
func (ix *Index) Value(layer, latent, position int) (float64, bool) {
	for _, e := range ix.At(layer, position) {
		if e.Latent == latent {
			return e.Value, true
		}
	}
	return 0, false
}

// Len returns the number of samples indexed.
func (ix *Index) Len() int {
	if ix == nil {
		return 0
	}
	return ix.count
}

// Layers returns the layers that have at least one sample, ascending.
func (ix *Index) Layers() []int {
	if ix == nil {
		return nil
	}
	return append([]int(nil), ix.layers...)
}

// NumLayers returns one more than the highest layer seen, or 0 when empty.
func (ix *Index) NumLayers() int {
	if ix == nil || len(ix.layers) == 0 {
		return 0
	}
	return ix.layers[len(ix.layers)-1] + 1
}

// Latents returns the distinct latents seen in a layer, ascending.
func (ix *Index) Latents(layer int) []int {
	if ix == nil {
		return nil
	}
	set := ix.byLayer[layer]
	out := make([]int, 0, len(set))
	for l := range set {
		out = append(out, l)
	}
	sort.Ints(out)
	return out
}

// ValueRange returns the smallest and largest activation values. ok is
// false for an empty index.
func (ix *Index) ValueRange() (lo, hi float64, ok bool) {
	if ix == nil || ix.count == 0 {
		return 0, 0, false
	}
	return ix.min, ix.max, true
}

// MaxLatentsPerPosition returns, for each position below length, the largest
// number of latents active there in any layer.
func (ix *Index) MaxLatentsPerPosition(length int) []int {
	out := make([]int, max(length, 0))
	if ix == nil {
		return out
	}
	for c, entries := range ix.cells {
		if c.position < 0 || c.position >= length {
			continue
		}
		out[c.position] = max(out[c.position], len(entries))
	}
	return out
}
