package activation

import "sort"

// Profile returns the dense activation vector of one feature over positions
// [0, length). Positions where the latent is inactive are 0.
func (ix *Index) Profile(layer, latent, length int) []float64 {
	out := make([]float64, max(length, 0))
	for pos := range out {
		if v, ok := ix.Value(layer, latent, pos); ok {
			out[pos] = v
		}
	}
	return out
}

// LatentPeak summarizes one latent's strongest activation in a layer.
type LatentPeak struct {
	Latent   int     `json:"latent"`
	Max      float64 `json:"max"`
	Position int     `json:"position"`
}

// RankLatents ranks every latent of a layer by its largest activation over
// positions [0, length), strongest first. Only strictly positive values
// raise the peak, so a latent that never fires ranks with Max 0 at position
// 0. Equal maxima fall back to latent order.
func (ix *Index) RankLatents(layer, length int) []LatentPeak {
	latents := ix.Latents(layer)
	out := make([]LatentPeak, 0, len(latents))
	for _, latent := range latents {
		peak := LatentPeak{Latent: latent}
		for pos, v := range ix.Profile(layer, latent, length) {
			if v > peak.Max {
				peak.Max = v
				peak.Position = pos
			}
		}
		out = append(out, peak)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Max != out[j].Max {
			return out[i].Max > out[j].Max
		}
		return out[i].Latent < out[j].Latent
	})
	return out
}
