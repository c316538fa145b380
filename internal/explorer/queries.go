package explorer

import (
	"fmt"

	"github.com/nvandessel/protomech/internal/activation"
	"github.com/nvandessel/protomech/internal/alignment"
	"github.com/nvandessel/protomech/internal/constants"
	"github.com/nvandessel/protomech/internal/dataset"
	"github.com/nvandessel/protomech/internal/influence"
	"github.com/nvandessel/protomech/internal/models"
	"github.com/nvandessel/protomech/internal/ranking"
)

// Wild-type row labels.
const (
	WildTypeName    = "Wild Type"
	WildTypeProtein = "Current Sequence"
)

// Feature is the per-position view of one feature on the reference
// sequence.
type Feature struct {
	Layer    int       `json:"layer"`
	Latent   int       `json:"latent"`
	Profile  []float64 `json:"profile"`
	Peak     int       `json:"peak"`
	PeakAA   string    `json:"peak_aa,omitempty"`
	MaxValue float64   `json:"max_value"`
	Active   int       `json:"active_positions"`
	HasTop   bool      `json:"has_top_activations"`
}

// Feature returns the profile of (layer, latent) over the reference sequence.
func (s *Session) Feature(layer, latent int) Feature {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seq := s.data.Sequence
	profile := s.acts.Profile(layer, latent, len(seq))
	peak := alignment.PeakIndex(profile)

	f := Feature{
		Layer:   layer,
		Latent:  latent,
		Profile: profile,
		Peak:    peak,
		HasTop:  len(s.data.Top.For(layer, latent)) > 0,
	}
	if peak < len(seq) {
		f.PeakAA = seq[peak : peak+1]
		f.MaxValue = profile[peak]
	}
	for _, v := range profile {
		if v != 0 {
			f.Active++
		}
	}
	return f
}

// Position lists the latents active at one (layer, position) cell.
func (s *Session) Position(layer, position int) []activation.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.acts.At(layer, position)
}

// Influences returns the aggregated edges of a feature on one side.
func (s *Session) Influences(layer, latent int, dir constants.Direction) ([]influence.Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch dir {
	case constants.DirectionIncoming:
		return s.infl.IncomingTo(layer, latent), nil
	case constants.DirectionOutgoing:
		return s.infl.OutgoingFrom(layer, latent), nil
	default:
		return nil, fmt.Errorf("invalid direction %q (want incoming or outgoing)", dir)
	}
}

// SameLayer returns the aggregated edges of a feature that stay inside its
// layer.
func (s *Session) SameLayer(layer, latent int) []influence.Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.infl.SameLayer(layer, latent)
}

// Alignment aligns the wild type and the feature's top-activating records
// on their peaks. Results are cached until the next reload.
func (s *Session) Alignment(layer, latent int) alignment.Result {
	key := alignKey{layer: layer, latent: latent}

	s.mu.RLock()
	if res, ok := s.alignments.Get(key); ok {
		s.mu.RUnlock()
		return res
	}
	records := s.alignmentRecords(layer, latent)
	gen := s.reloads
	s.mu.RUnlock()

	res := alignment.Align(records)

	s.mu.RLock()
	if s.reloads == gen {
		s.alignments.Add(key, res)
	}
	s.mu.RUnlock()
	return res
}

// alignmentRecords builds the rows to align: the wild type first, then the
// reference records in ranking order. Caller holds s.mu.
func (s *Session) alignmentRecords(layer, latent int) []alignment.Record {
	seq := s.data.Sequence
	records := []alignment.Record{{
		Name:        WildTypeName,
		ProteinName: WildTypeProtein,
		Sequence:    seq,
		Activations: s.acts.Profile(layer, latent, len(seq)),
		Reference:   true,
	}}
	if seq == "" {
		records = records[:0]
	}

	top := s.data.Top.For(layer, latent)
	if s.topRecords > 0 && len(top) > s.topRecords {
		top = top[:s.topRecords]
	}
	for i, rec := range top {
		records = append(records, topRecord(rec, i+1))
	}
	return records
}

func topRecord(rec dataset.TopRecord, rank int) alignment.Record {
	r := alignment.Record{
		Name:        rec.EntryName,
		Entry:       rec.Entry,
		ProteinName: rec.ProteinNames,
		Sequence:    rec.Sequence,
		Activations: rec.Activations,
		Score:       rec.Score,
		Rank:        rank,
	}
	if r.Name == "" {
		r.Name = "Unknown"
	}
	if r.Entry == "" {
		r.Entry = "N/A"
	}
	if r.ProteinName == "" {
		r.ProteinName = "Unknown protein"
	}
	return r
}

// RankLayer ranks every latent of a layer by its peak on the reference
// sequence. limit <= 0 returns all.
func (s *Session) RankLayer(layer, limit int) []activation.LatentPeak {
	s.mu.RLock()
	defer s.mu.RUnlock()

	peaks := s.acts.RankLatents(layer, len(s.data.Sequence))
	if limit > 0 && len(peaks) > limit {
		peaks = peaks[:limit]
	}
	return peaks
}

// Weights is a magnitude-thresholded view of the raw influence samples.
type Weights struct {
	Percent float64                  `json:"percent"`
	Total   int                      `json:"total"`
	Kept    int                      `json:"kept"`
	Samples []models.InfluenceSample `json:"samples"`
}

// Weights keeps the strongest percent of raw influence samples. A
// non-positive percent picks the default threshold for the dataset.
func (s *Session) Weights(percent float64) Weights {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := len(s.data.Influences)
	if percent <= 0 {
		percent = influence.DefaultPercent(total, s.maxEdges)
	}
	percent = influence.ClampPercent(percent)
	kept := influence.TopByMagnitude(s.data.Influences, percent)
	if kept == nil {
		kept = []models.InfluenceSample{}
	}
	return Weights{Percent: percent, Total: total, Kept: len(kept), Samples: kept}
}

// FeatureRanking ranks the features of the aggregated influence graph by
// PageRank.
func (s *Session) FeatureRanking(limit int) []ranking.FeatureScore {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ranking.RankFeatures(s.infl, limit, ranking.DefaultPageRankConfig())
}
