package alignment

import (
	"strings"
	"testing"

	"pgregory.net/rapid"
)

func TestPeakIndex(t *testing.T) {
	tests := []struct {
		name    string
		profile []float64
		want    int
	}{
		{name: "single max", profile: []float64{0.1, 0.9, 0.3}, want: 1},
		{name: "first index wins ties", profile: []float64{0.2, 0.7, 0.7}, want: 1},
		{name: "all zero", profile: []float64{0, 0, 0}, want: 0},
		{name: "all negative", profile: []float64{-3, -1, -2}, want: 1},
		{name: "empty", profile: nil, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PeakIndex(tt.profile); got != tt.want {
				t.Errorf("PeakIndex(%v) = %d, want %d", tt.profile, got, tt.want)
			}
		})
	}
}

func TestAlign_Scenario(t *testing.T) {
	res := Align([]Record{
		{Name: "a", Sequence: "AC", Activations: []float64{0, 1}},
		{Name: "b", Sequence: "DEF", Activations: []float64{2, 0, 0}},
	})

	if res.Center != 1 {
		t.Errorf("Center = %d, want 1", res.Center)
	}
	if res.TotalLength != 3 {
		t.Errorf("TotalLength = %d, want 3", res.TotalLength)
	}

	tests := []struct {
		row          int
		left, right  int
		wantRendered string
	}{
		{row: 0, left: 0, right: 1, wantRendered: "AC-"},
		{row: 1, left: 1, right: 0, wantRendered: "-DEF"},
	}
	for _, tt := range tests {
		r := res.Rows[tt.row]
		if r.LeftPad != tt.left || r.RightPad != tt.right {
			t.Errorf("row %d pads = (%d, %d), want (%d, %d)", tt.row, r.LeftPad, r.RightPad, tt.left, tt.right)
		}
		if got := r.Padded('-'); got != tt.wantRendered {
			t.Errorf("row %d Padded() = %q, want %q", tt.row, got, tt.wantRendered)
		}
	}
}

func TestAlign_Empty(t *testing.T) {
	res := Align(nil)
	if len(res.Rows) != 0 || res.TotalLength != 0 || res.Center != 0 {
		t.Errorf("Align(nil) = %+v, want zero result", res)
	}
}

func TestAlign_DoesNotModifyInput(t *testing.T) {
	in := []Record{{Sequence: "MKV", Activations: []float64{0, 0, 3}}}
	_ = Align(in)
	if in[0].Sequence != "MKV" || in[0].Activations[2] != 3 {
		t.Errorf("Align() modified its input: %+v", in[0])
	}
}

func TestRow_ActivationAt(t *testing.T) {
	r := Row{Record: Record{Sequence: "ABCD", Activations: []float64{1, 2}}}
	if got := r.ActivationAt(1); got != 2 {
		t.Errorf("ActivationAt(1) = %v, want 2", got)
	}
	if got := r.ActivationAt(3); got != 0 {
		t.Errorf("ActivationAt(3) = %v, want 0", got)
	}
}

func genRecord() *rapid.Generator[Record] {
	return rapid.Custom(func(t *rapid.T) Record {
		n := rapid.IntRange(1, 30).Draw(t, "len")
		acts := rapid.SliceOfN(rapid.Float64Range(0.01, 5), n, n).Draw(t, "activations")
		return Record{
			Sequence:    strings.Repeat("A", n),
			Activations: acts,
		}
	})
}

func TestProperty_AlignInvariants(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		records := rapid.SliceOfN(genRecord(), 1, 8).Draw(t, "records")
		res := Align(records)

		for i, r := range res.Rows {
			if r.Column(r.Peak) != res.Center {
				t.Fatalf("row %d peak column = %d, want %d", i, r.Column(r.Peak), res.Center)
			}
			if r.LeftPad+len(r.Sequence)+r.RightPad != res.TotalLength {
				t.Fatalf("row %d width = %d, want %d", i, r.LeftPad+len(r.Sequence)+r.RightPad, res.TotalLength)
			}
			if r.LeftPad < 0 || r.RightPad < 0 {
				t.Fatalf("row %d has negative padding", i)
			}
		}
	})
}

func TestProperty_AlignIdempotent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		records := rapid.SliceOfN(genRecord(), 1, 8).Draw(t, "records")
		first := Align(records)
		second := Align(first.PaddedRecords('-'))

		if second.Center != first.Center || second.TotalLength != first.TotalLength {
			t.Fatalf("realign changed center/length: %d/%d -> %d/%d",
				first.Center, first.TotalLength, second.Center, second.TotalLength)
		}
		for i, r := range second.Rows {
			if r.LeftPad != 0 || r.RightPad != 0 {
				t.Fatalf("row %d realigned with pads (%d, %d), want (0, 0)", i, r.LeftPad, r.RightPad)
			}
		}
	})
}
