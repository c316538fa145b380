package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// CatalogFile lists the example datasets shipped next to each other.
const CatalogFile = "examples.csv"

// CatalogEntry is one row of a catalog: id, display name and dataset path.
// Path is resolved against the catalog's directory.
type CatalogEntry struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Path     string `json:"path"`
	Sequence string `json:"sequence,omitempty"`
}

// Preview returns the first n characters of the sequence followed by "..."
// when it is longer.
func (e CatalogEntry) Preview(n int) string {
	if len(e.Sequence) <= n {
		return e.Sequence
	}
	return e.Sequence[:n] + "..."
}

// LoadCatalog reads a catalog file. The first row is a header. Rows with
// fewer than three fields are skipped. Each entry's sequence is read from
// its seq.txt when available.
func LoadCatalog(path string) ([]CatalogEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening catalog: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1

	base := filepath.Dir(path)
	var entries []CatalogEntry
	for row := 0; ; row++ {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parsing catalog: %w", err)
		}
		if row == 0 || len(rec) < 3 {
			continue
		}

		e := CatalogEntry{
			ID:   strings.TrimSpace(rec[0]),
			Name: strings.TrimSpace(rec[1]),
			Path: strings.TrimSpace(rec[2]),
		}
		if !filepath.IsAbs(e.Path) {
			e.Path = filepath.Join(base, e.Path)
		}
		if data, err := os.ReadFile(filepath.Join(e.Path, SequenceFile)); err == nil {
			e.Sequence = DecodeSequence(data)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
