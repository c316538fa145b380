// Package models holds the vocabulary shared by every protomech package:
// feature identities, the raw activation and influence samples, and the
// input errors raised while decoding them.
package models

import "fmt"

// FeatureKey identifies a latent feature within one layer.
// Keys are totally ordered by layer, then latent.
type FeatureKey struct {
	Layer  int `json:"layer"`
	Latent int `json:"latent"`
}

// Less reports whether k sorts before o.
func (k FeatureKey) Less(o FeatureKey) bool {
	if k.Layer != o.Layer {
		return k.Layer < o.Layer
	}
	return k.Latent < o.Latent
}

// Compare returns -1, 0 or +1 following the layer-then-latent order.
func (k FeatureKey) Compare(o FeatureKey) int {
	switch {
	case k.Less(o):
		return -1
	case o.Less(k):
		return 1
	default:
		return 0
	}
}

// String renders the key as "L<layer>:<latent>".
func (k FeatureKey) String() string {
	return fmt.Sprintf("L%d:%d", k.Layer, k.Latent)
}

// PairKey is the canonical undirected key of two features.
// Lo never sorts after Hi, so (a, b) and (b, a) share one key.
type PairKey struct {
	Lo FeatureKey `json:"lo"`
	Hi FeatureKey `json:"hi"`
}

// NewPairKey builds the canonical key for an unordered pair of features.
func NewPairKey(a, b FeatureKey) PairKey {
	if b.Less(a) {
		a, b = b, a
	}
	return PairKey{Lo: a, Hi: b}
}

// Less orders pair keys by Lo, then Hi.
func (p PairKey) Less(o PairKey) bool {
	if p.Lo != o.Lo {
		return p.Lo.Less(o.Lo)
	}
	return p.Hi.Less(o.Hi)
}

// Other returns the endpoint of p opposite to k. The boolean is false when
// k is not an endpoint of p.
func (p PairKey) Other(k FeatureKey) (FeatureKey, bool) {
	switch k {
	case p.Lo:
		return p.Hi, true
	case p.Hi:
		return p.Lo, true
	}
	return FeatureKey{}, false
}

// SameLayer reports whether both endpoints live in one layer.
func (p PairKey) SameLayer() bool {
	return p.Lo.Layer == p.Hi.Layer
}

func (p PairKey) String() string {
	return p.Lo.String() + "-" + p.Hi.String()
}
