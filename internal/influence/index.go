// Package influence aggregates directed, position-specific influence samples
// into undirected edges between features and answers directional queries
// over them.
package influence

import (
	"math"
	"sort"

	"github.com/nvandessel/protomech/internal/models"
)

// Aggregate is the bucket of every sample sharing one canonical pair key.
type Aggregate struct {
	Key       models.PairKey `json:"key"`
	SumWeight float64        `json:"sum_weight"`
	Count     int            `json:"count"`
	AvgWeight float64        `json:"avg_weight"`
}

// Edge is an aggregated edge seen from one endpoint: Feature is the other end.
type Edge struct {
	Feature   models.FeatureKey `json:"feature"`
	AvgWeight float64           `json:"avg_weight"`
	SumWeight float64           `json:"sum_weight"`
	Count     int               `json:"count"`
}

// Index holds aggregated influence edges keyed by canonical pair.
// A nil *Index is valid and answers every query with empty results.
// Index is immutable after Build and safe for concurrent reads.
type Index struct {
	buckets   map[models.PairKey]*Aggregate
	adjacency map[models.FeatureKey][]models.PairKey
	samples   int
}

// Build aggregates samples into a new Index. Every sample lands in exactly
// one bucket; the result does not depend on sample order.
func Build(samples []models.InfluenceSample) *Index {
	ix := newIndex()
	for _, s := range samples {
		ix.add(s.Key(), s.Weight, 1)
	}
	ix.samples = len(samples)
	ix.finish()
	return ix
}

func newIndex() *Index {
	return &Index{
		buckets:   make(map[models.PairKey]*Aggregate),
		adjacency: make(map[models.FeatureKey][]models.PairKey),
	}
}

func (ix *Index) add(key models.PairKey, sum float64, count int) {
	b, ok := ix.buckets[key]
	if !ok {
		b = &Aggregate{Key: key}
		ix.buckets[key] = b
		ix.adjacency[key.Lo] = append(ix.adjacency[key.Lo], key)
		if key.Hi != key.Lo {
			ix.adjacency[key.Hi] = append(ix.adjacency[key.Hi], key)
		}
	}
	b.SumWeight += sum
	b.Count += count
}

// finish computes averages once all samples are in.
func (ix *Index) finish() {
	for _, b := range ix.buckets {
		if b.Count > 0 {
			b.AvgWeight = b.SumWeight / float64(b.Count)
		}
	}
}

// Merge returns a new Index holding the bucket-wise sum of ix and other.
// Building from two partitions and merging equals building from their union.
func (ix *Index) Merge(other *Index) *Index {
	out := newIndex()
	for _, src := range []*Index{ix, other} {
		if src == nil {
			continue
		}
		for _, b := range src.sortedBuckets() {
			out.add(b.Key, b.SumWeight, b.Count)
		}
		out.samples += src.samples
	}
	out.finish()
	return out
}

// Len returns the number of aggregated edges.
func (ix *Index) Len() int {
	if ix == nil {
		return 0
	}
	return len(ix.buckets)
}

// SampleCount returns the number of raw samples the index was built from.
func (ix *Index) SampleCount() int {
	if ix == nil {
		return 0
	}
	return ix.samples
}

// Lookup returns the aggregate for the unordered pair {a, b}.
func (ix *Index) Lookup(a, b models.FeatureKey) (Aggregate, bool) {
	if ix == nil {
		return Aggregate{}, false
	}
	bucket, ok := ix.buckets[models.NewPairKey(a, b)]
	if !ok {
		return Aggregate{}, false
	}
	return *bucket, true
}

// Edges returns every aggregate in canonical key order.
func (ix *Index) Edges() []Aggregate {
	if ix == nil {
		return nil
	}
	buckets := ix.sortedBuckets()
	out := make([]Aggregate, len(buckets))
	for i, b := range buckets {
		out[i] = *b
	}
	return out
}

func (ix *Index) sortedBuckets() []*Aggregate {
	out := make([]*Aggregate, 0, len(ix.buckets))
	for _, b := range ix.buckets {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.Less(out[j].Key) })
	return out
}

// IncomingTo returns edges from features in strictly earlier layers,
// strongest first.
func (ix *Index) IncomingTo(layer, latent int) []Edge {
	return ix.neighbors(models.FeatureKey{Layer: layer, Latent: latent}, func(other int) bool {
		return other < layer
	})
}

// OutgoingFrom returns edges to features in strictly later layers,
// strongest first.
func (ix *Index) OutgoingFrom(layer, latent int) []Edge {
	return ix.neighbors(models.FeatureKey{Layer: layer, Latent: latent}, func(other int) bool {
		return other > layer
	})
}

// SameLayer returns the edges IncomingTo and OutgoingFrom leave out: those
// whose other endpoint shares the feature's layer, including a self pair.
func (ix *Index) SameLayer(layer, latent int) []Edge {
	return ix.neighbors(models.FeatureKey{Layer: layer, Latent: latent}, func(other int) bool {
		return other == layer
	})
}

func (ix *Index) neighbors(k models.FeatureKey, keep func(otherLayer int) bool) []Edge {
	if ix == nil {
		return []Edge{}
	}

	out := make([]Edge, 0, len(ix.adjacency[k]))
	for _, key := range ix.adjacency[k] {
		other, _ := key.Other(k)
		if !keep(other.Layer) {
			continue
		}
		b := ix.buckets[key]
		out = append(out, Edge{
			Feature:   other,
			AvgWeight: b.AvgWeight,
			SumWeight: b.SumWeight,
			Count:     b.Count,
		})
	}

	// Ties on magnitude fall back to feature order so output is deterministic.
	sort.SliceStable(out, func(i, j int) bool {
		ai, aj := math.Abs(out[i].AvgWeight), math.Abs(out[j].AvgWeight)
		if ai != aj {
			return ai > aj
		}
		return out[i].Feature.Less(out[j].Feature)
	})
	return out
}
