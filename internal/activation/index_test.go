package activation

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/nvandessel/protomech/internal/models"
)

func samples() []models.ActivationSample {
	return []models.ActivationSample{
		{Layer: 0, Position: 0, Value: 1.5, Latent: 3},
		{Layer: 0, Position: 0, Value: 0.5, Latent: 1},
		{Layer: 0, Position: 2, Value: 2.0, Latent: 3},
		{Layer: 2, Position: 1, Value: -0.25, Latent: 7},
		{Layer: 2, Position: 3, Value: 4.0, Latent: 1},
	}
}

func mustIndex(t *testing.T, s []models.ActivationSample) *Index {
	t.Helper()
	ix, err := NewIndex(s)
	if err != nil {
		t.Fatalf("NewIndex() error = %v", err)
	}
	return ix
}

func TestIndex_At(t *testing.T) {
	ix := mustIndex(t, samples())

	tests := []struct {
		name     string
		layer    int
		position int
		want     []Entry
	}{
		{
			name:  "keeps input order",
			layer: 0, position: 0,
			want: []Entry{{Latent: 3, Value: 1.5}, {Latent: 1, Value: 0.5}},
		},
		{
			name:  "single entry",
			layer: 2, position: 1,
			want: []Entry{{Latent: 7, Value: -0.25}},
		},
		{
			name:  "absent cell",
			layer: 1, position: 0,
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, ix.At(tt.layer, tt.position)); diff != "" {
				t.Errorf("At() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNewIndex_DuplicateLatent(t *testing.T) {
	_, err := NewIndex([]models.ActivationSample{
		{Layer: 1, Position: 4, Value: 1, Latent: 2},
		{Layer: 1, Position: 4, Value: 3, Latent: 2},
	})

	var mi *models.MalformedInputError
	if !errors.As(err, &mi) {
		t.Fatalf("NewIndex() error = %v, want MalformedInputError", err)
	}
	if mi.Index != 1 {
		t.Errorf("Index = %d, want 1", mi.Index)
	}
}

func TestIndex_LayersAndRange(t *testing.T) {
	ix := mustIndex(t, samples())

	if diff := cmp.Diff([]int{0, 2}, ix.Layers()); diff != "" {
		t.Errorf("Layers() mismatch (-want +got):\n%s", diff)
	}
	if got := ix.NumLayers(); got != 3 {
		t.Errorf("NumLayers() = %d, want 3", got)
	}
	if got := ix.Len(); got != 5 {
		t.Errorf("Len() = %d, want 5", got)
	}

	lo, hi, ok := ix.ValueRange()
	if !ok || lo != -0.25 || hi != 4.0 {
		t.Errorf("ValueRange() = %v, %v, %v; want -0.25, 4, true", lo, hi, ok)
	}

	empty := mustIndex(t, nil)
	if _, _, ok := empty.ValueRange(); ok {
		t.Error("empty ValueRange() ok = true, want false")
	}
	if empty.NumLayers() != 0 {
		t.Errorf("empty NumLayers() = %d, want 0", empty.NumLayers())
	}
}

func TestIndex_MaxLatentsPerPosition(t *testing.T) {
	ix := mustIndex(t, samples())
	want := []int{2, 1, 1, 1}
	if diff := cmp.Diff(want, ix.MaxLatentsPerPosition(4)); diff != "" {
		t.Errorf("MaxLatentsPerPosition() mismatch (-want +got):\n%s", diff)
	}
}

func TestIndex_NilIsEmpty(t *testing.T) {
	var ix *Index
	if ix.At(0, 0) != nil || ix.Len() != 0 || ix.Layers() != nil {
		t.Error("nil Index should answer empty")
	}
	if got := ix.Profile(0, 0, 3); len(got) != 3 {
		t.Errorf("nil Profile() len = %d, want 3", len(got))
	}
}
