package influence

import (
	"math"
	"sort"

	"github.com/nvandessel/protomech/internal/constants"
	"github.com/nvandessel/protomech/internal/models"
)

// TopByMagnitude keeps the ceil(len*percent/100) raw samples with the
// largest |weight|, largest first. Equal magnitudes keep input order.
// percent is clamped with ClampPercent; 100 returns a copy of the input in
// input order.
func TopByMagnitude(samples []models.InfluenceSample, percent float64) []models.InfluenceSample {
	percent = ClampPercent(percent)
	if percent >= constants.MaxThresholdPercent {
		return append([]models.InfluenceSample(nil), samples...)
	}

	n := KeepCount(len(samples), percent)
	sorted := append([]models.InfluenceSample(nil), samples...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return math.Abs(sorted[i].Weight) > math.Abs(sorted[j].Weight)
	})
	return sorted[:n]
}

// keepEpsilon absorbs float error in total*percent/100 so a product that
// should be a whole number is not rounded up to the next one.
const keepEpsilon = 1e-9

// KeepCount returns how many of total samples a threshold of percent keeps.
func KeepCount(total int, percent float64) int {
	if total <= 0 {
		return 0
	}
	n := int(math.Ceil(float64(total)*percent/100 - keepEpsilon))
	if n > total {
		n = total
	}
	if n < 0 {
		n = 0
	}
	return n
}

// DefaultPercent picks the initial threshold so that at most maxEdges of
// total samples are kept. Small sets are shown whole.
func DefaultPercent(total, maxEdges int) float64 {
	if maxEdges <= 0 || total <= maxEdges {
		return constants.MaxThresholdPercent
	}
	return float64(maxEdges) / float64(total) * 100
}

// ClampPercent bounds a user-entered threshold to the accepted range.
// Non-positive and NaN inputs become the minimum.
func ClampPercent(p float64) float64 {
	if math.IsNaN(p) || p < constants.MinThresholdPercent {
		return constants.MinThresholdPercent
	}
	if p > constants.MaxThresholdPercent {
		return constants.MaxThresholdPercent
	}
	return p
}
