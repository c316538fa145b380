package influence

import (
	"math"
	"testing"

	"github.com/nvandessel/protomech/internal/models"
	"pgregory.net/rapid"
)

func weights(samples []models.InfluenceSample) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = s.Weight
	}
	return out
}

func TestTopByMagnitude(t *testing.T) {
	ten := make([]models.InfluenceSample, 10)
	for i := range ten {
		w := float64(i+1) / 10
		if i%2 == 1 {
			w = -w
		}
		ten[i] = sample(i, 0, i, i, 1, i, w)
	}

	tests := []struct {
		name    string
		percent float64
		want    []float64
	}{
		{name: "30 percent of 10 keeps 3", percent: 30, want: []float64{-1.0, 0.9, -0.8}},
		{name: "ceil rounds up", percent: 11, want: []float64{-1.0, 0.9}},
		{name: "tiny percent keeps one", percent: 0.01, want: []float64{-1.0}},
		{name: "below minimum is clamped", percent: -5, want: []float64{-1.0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := weights(TopByMagnitude(ten, tt.percent))
			if len(got) != len(tt.want) {
				t.Fatalf("TopByMagnitude() len = %d, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if math.Abs(got[i]-tt.want[i]) > eps {
					t.Errorf("TopByMagnitude()[%d] = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestTopByMagnitude_HundredIsIdentity(t *testing.T) {
	in := []models.InfluenceSample{
		sample(0, 0, 0, 0, 1, 0, 0.1),
		sample(0, 0, 1, 0, 1, 0, -0.9),
		sample(0, 0, 2, 0, 1, 0, 0.5),
	}
	got := TopByMagnitude(in, 100)
	for i := range in {
		if got[i] != in[i] {
			t.Errorf("TopByMagnitude(100)[%d] = %v, want %v", i, got[i], in[i])
		}
	}

	got[0].Weight = 42
	if in[0].Weight == 42 {
		t.Error("TopByMagnitude() must not alias its input")
	}
}

func TestTopByMagnitude_StableOnTies(t *testing.T) {
	in := []models.InfluenceSample{
		sample(1, 0, 0, 0, 1, 0, 0.5),
		sample(2, 0, 0, 0, 1, 0, -0.5),
		sample(3, 0, 0, 0, 1, 0, 0.5),
	}
	got := TopByMagnitude(in, 50)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].SrcPosition != 1 || got[1].SrcPosition != 2 {
		t.Errorf("tie order = %d, %d; want 1, 2", got[0].SrcPosition, got[1].SrcPosition)
	}
}

func TestTopByMagnitude_Empty(t *testing.T) {
	if got := TopByMagnitude(nil, 30); len(got) != 0 {
		t.Errorf("TopByMagnitude(nil) = %v, want empty", got)
	}
}

func TestProperty_TopByMagnitudeIsPrefix(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		samples := rapid.SliceOfN(genSample(), 0, 60).Draw(t, "samples")
		percent := rapid.Float64Range(0.01, 99.99).Draw(t, "percent")

		got := TopByMagnitude(samples, percent)
		if len(got) != KeepCount(len(samples), percent) {
			t.Fatalf("len = %d, want %d", len(got), KeepCount(len(samples), percent))
		}
		for i := 1; i < len(got); i++ {
			if math.Abs(got[i].Weight) > math.Abs(got[i-1].Weight) {
				t.Fatalf("not sorted by magnitude at %d", i)
			}
		}
	})
}

func TestDefaultPercent(t *testing.T) {
	tests := []struct {
		name     string
		total    int
		maxEdges int
		want     float64
	}{
		{name: "under cap shows all", total: 800, maxEdges: 1000, want: 100},
		{name: "at cap shows all", total: 1000, maxEdges: 1000, want: 100},
		{name: "over cap", total: 4000, maxEdges: 1000, want: 25},
		{name: "no cap", total: 4000, maxEdges: 0, want: 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DefaultPercent(tt.total, tt.maxEdges); math.Abs(got-tt.want) > eps {
				t.Errorf("DefaultPercent(%d, %d) = %v, want %v", tt.total, tt.maxEdges, got, tt.want)
			}
		})
	}
}

func TestDefaultPercent_KeepsAtMostMaxEdges(t *testing.T) {
	const maxEdges = 1000
	for total := maxEdges + 1; total <= 200_000; total++ {
		if got := KeepCount(total, DefaultPercent(total, maxEdges)); got != maxEdges {
			t.Fatalf("total %d: default threshold keeps %d, want %d", total, got, maxEdges)
		}
	}
}

func TestKeepCount(t *testing.T) {
	tests := []struct {
		total   int
		percent float64
		want    int
	}{
		{0, 50, 0},
		{10, 100, 10},
		{10, 25, 3},
		{3, 33.4, 2},
		{1003, 1000.0 / 1003 * 100, 1000},
		{10, 150, 10},
	}
	for _, tt := range tests {
		if got := KeepCount(tt.total, tt.percent); got != tt.want {
			t.Errorf("KeepCount(%d, %v) = %d, want %d", tt.total, tt.percent, got, tt.want)
		}
	}
}

func TestClampPercent(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{in: 50, want: 50},
		{in: 0, want: 0.01},
		{in: -1, want: 0.01},
		{in: 250, want: 100},
		{in: math.NaN(), want: 0.01},
	}

	for _, tt := range tests {
		if got := ClampPercent(tt.in); got != tt.want {
			t.Errorf("ClampPercent(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
