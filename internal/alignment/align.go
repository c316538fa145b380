// Package alignment aligns variable-length sequences on the position of their
// strongest activation.
package alignment

import (
	"math"
	"strings"
)

// Record is one sequence with its per-position activation profile.
type Record struct {
	Name        string    `json:"name"`
	Entry       string    `json:"entry,omitempty"`
	ProteinName string    `json:"protein_name,omitempty"`
	Sequence    string    `json:"sequence"`
	Activations []float64 `json:"activations"`
	Score       float64   `json:"score,omitempty"`
	Rank        int       `json:"rank,omitempty"`
	Reference   bool      `json:"reference,omitempty"`
}

// Row is a record placed in an alignment.
type Row struct {
	Record
	Peak          int `json:"peak"`
	LeftPad       int `json:"left_pad"`
	RightPad      int `json:"right_pad"`
	AlignedLength int `json:"aligned_length"`
}

// Result is an aligned set of records. Center is the column every peak
// lands on.
type Result struct {
	Rows        []Row `json:"rows"`
	TotalLength int   `json:"total_length"`
	Center      int   `json:"center"`
}

// PeakIndex returns the index of the largest value. The first index wins
// ties; an empty profile yields 0.
func PeakIndex(profile []float64) int {
	best := math.Inf(-1)
	idx := 0
	for i, v := range profile {
		if v > best {
			best = v
			idx = i
		}
	}
	return idx
}

// Align pads every record so that all peaks share one column. It does not
// modify its input.
func Align(records []Record) Result {
	if len(records) == 0 {
		return Result{Rows: []Row{}}
	}

	rows := make([]Row, len(records))
	offset := 0
	for i, rec := range records {
		rows[i] = Row{Record: rec, Peak: PeakIndex(rec.Activations)}
		offset = max(offset, rows[i].Peak)
	}

	total := 0
	for i := range rows {
		rows[i].LeftPad = offset - rows[i].Peak
		rows[i].AlignedLength = rows[i].LeftPad + len(rows[i].Sequence)
		total = max(total, rows[i].AlignedLength)
	}
	for i := range rows {
		rows[i].RightPad = total - rows[i].AlignedLength
	}

	return Result{Rows: rows, TotalLength: total, Center: offset}
}

// Column maps a sequence index of the row to its aligned column.
func (r Row) Column(i int) int {
	return r.LeftPad + i
}

// ActivationAt returns the activation at sequence index i, 0 when the
// profile does not cover it.
func (r Row) ActivationAt(i int) float64 {
	if i < 0 || i >= len(r.Activations) {
		return 0
	}
	return r.Activations[i]
}

// Padded renders the aligned row with gap characters on both sides.
func (r Row) Padded(gap rune) string {
	g := string(gap)
	var b strings.Builder
	b.Grow(r.LeftPad + len(r.Sequence) + r.RightPad)
	b.WriteString(strings.Repeat(g, r.LeftPad))
	b.WriteString(r.Sequence)
	b.WriteString(strings.Repeat(g, r.RightPad))
	return b.String()
}

// PaddedRecords returns the rows as records whose sequences carry the gap
// padding and whose profiles are zero-extended to match.
func (res Result) PaddedRecords(gap rune) []Record {
	out := make([]Record, len(res.Rows))
	for i, row := range res.Rows {
		rec := row.Record
		rec.Sequence = row.Padded(gap)
		acts := make([]float64, row.LeftPad+len(row.Sequence)+row.RightPad)
		for j := 0; j < len(row.Sequence); j++ {
			acts[row.Column(j)] = row.ActivationAt(j)
		}
		rec.Activations = acts
		out[i] = rec
	}
	return out
}
