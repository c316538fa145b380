package models

// ActivationSample is one (layer, position, value, latent) observation.
type ActivationSample struct {
	Layer    int     `json:"layer"`
	Position int     `json:"position"`
	Value    float64 `json:"value"`
	Latent   int     `json:"latent"`
}

// Feature returns the feature the sample belongs to.
func (s ActivationSample) Feature() FeatureKey {
	return FeatureKey{Layer: s.Layer, Latent: s.Latent}
}

// InfluenceSample is one directed, position-specific influence of a source
// feature on a target feature.
type InfluenceSample struct {
	SrcPosition int     `json:"src_position"`
	SrcLayer    int     `json:"src_layer"`
	SrcLatent   int     `json:"src_latent"`
	TgtPosition int     `json:"tgt_position"`
	TgtLayer    int     `json:"tgt_layer"`
	TgtLatent   int     `json:"tgt_latent"`
	Weight      float64 `json:"weight"`
}

// Source returns the source feature.
func (s InfluenceSample) Source() FeatureKey {
	return FeatureKey{Layer: s.SrcLayer, Latent: s.SrcLatent}
}

// Target returns the target feature.
func (s InfluenceSample) Target() FeatureKey {
	return FeatureKey{Layer: s.TgtLayer, Latent: s.TgtLatent}
}

// Key returns the canonical undirected key of the sample's endpoints.
func (s InfluenceSample) Key() PairKey {
	return NewPairKey(s.Source(), s.Target())
}
