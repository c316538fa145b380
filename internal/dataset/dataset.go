// Package dataset loads a protomech dataset directory: the activation
// tuples, the reference sequence, the top-activation reference set and,
// when present, the influence samples and a saved circuit.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/nvandessel/protomech/internal/circuit"
	"github.com/nvandessel/protomech/internal/models"
	"golang.org/x/sync/errgroup"
)

// File names inside a dataset directory.
const (
	ActivationsFile    = "activation_indices.json"
	SequenceFile       = "seq.txt"
	TopActivationsFile = "top_activations.json"
	WeightsFile        = "virtual_weights.json"
	CanvasStateFile    = "canvas-state.json"
)

// Files lists every file Load reads, required ones first.
var Files = []string{ActivationsFile, SequenceFile, TopActivationsFile, WeightsFile, CanvasStateFile}

// ErrNoDataset is returned when a required dataset file is missing.
var ErrNoDataset = errors.New("no dataset")

// TopRecord is one top-activating sequence for a latent.
type TopRecord struct {
	Sequence     string    `json:"Sequence"`
	Activations  []float64 `json:"Activations"`
	Score        float64   `json:"Score"`
	Entry        string    `json:"Entry"`
	EntryName    string    `json:"Entry Name"`
	ProteinNames string    `json:"Protein names"`
	SeqLen       int       `json:"seq_len"`
}

// TopActivations is the reference set keyed by layer then latent, both as
// decimal strings.
type TopActivations struct {
	Layers map[string]map[string][]TopRecord `json:"layers"`
}

// For returns the records of one latent. Safe on a nil receiver.
func (t *TopActivations) For(layer, latent int) []TopRecord {
	if t == nil || t.Layers == nil {
		return nil
	}
	return t.Layers[strconv.Itoa(layer)][strconv.Itoa(latent)]
}

// HasLayer reports whether the reference set has any entry for layer.
func (t *TopActivations) HasLayer(layer int) bool {
	if t == nil || t.Layers == nil {
		return false
	}
	_, ok := t.Layers[strconv.Itoa(layer)]
	return ok
}

// Dataset is a fully decoded dataset directory.
type Dataset struct {
	Dir         string
	Sequence    string
	Activations []models.ActivationSample
	// Influences is nil when the directory has no weights file.
	Influences []models.InfluenceSample
	Top        *TopActivations
	// CanvasState is nil when the directory has no saved circuit.
	CanvasState *circuit.Snapshot
	LoadedAt    time.Time
}

// AbsDir is dir made absolute and cleaned, or just cleaned when the
// working directory is unavailable.
func AbsDir(dir string) string {
	if abs, err := filepath.Abs(dir); err == nil {
		return abs
	}
	return filepath.Clean(dir)
}

// HasWeights reports whether influence samples were loaded.
func (d *Dataset) HasWeights() bool {
	return d != nil && d.Influences != nil
}

// Load reads every dataset file in dir concurrently, then decodes them.
// The activation, sequence and top-activation files are required.
// Dataset.Dir is the absolute form of dir.
func Load(ctx context.Context, dir string) (*Dataset, error) {
	dir = AbsDir(dir)
	raw := make([][]byte, len(Files))

	g, ctx := errgroup.WithContext(ctx)
	for i, name := range Files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(filepath.Join(dir, name))
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					if i < 3 {
						return fmt.Errorf("%w: %s missing in %s", ErrNoDataset, name, dir)
					}
					return nil
				}
				return fmt.Errorf("reading %s: %w", name, err)
			}
			raw[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return Decode(dir, raw[0], raw[1], raw[2], raw[3], raw[4])
}

// Decode builds a Dataset from file contents. weights and canvas may be nil.
func Decode(dir string, activations, sequence, top, weights, canvas []byte) (*Dataset, error) {
	acts, err := DecodeActivations(activations)
	if err != nil {
		return nil, err
	}
	topSet, err := DecodeTopActivations(top)
	if err != nil {
		return nil, err
	}

	d := &Dataset{
		Dir:         dir,
		Sequence:    DecodeSequence(sequence),
		Activations: acts,
		Top:         topSet,
		LoadedAt:    time.Now(),
	}

	if weights != nil {
		if d.Influences, err = DecodeInfluences(weights); err != nil {
			return nil, err
		}
	}
	if canvas != nil {
		s, err := circuit.DecodeSnapshot(canvas)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", CanvasStateFile, err)
		}
		d.CanvasState = &s
	}
	return d, nil
}

// DecodeSequence trims surrounding whitespace from the sequence file.
func DecodeSequence(data []byte) string {
	return strings.TrimSpace(string(data))
}

// DecodeActivations parses [layer, position, value, latent] tuples.
func DecodeActivations(data []byte) ([]models.ActivationSample, error) {
	tuples, err := decodeTuples(ActivationsFile, data, 4)
	if err != nil {
		return nil, err
	}

	out := make([]models.ActivationSample, len(tuples))
	for i, t := range tuples {
		ints, err := integers(ActivationsFile, i, t, map[int]string{0: "layer", 1: "position", 3: "latent"})
		if err != nil {
			return nil, err
		}
		out[i] = models.ActivationSample{Layer: ints[0], Position: ints[1], Value: t[2], Latent: ints[3]}
	}
	return out, nil
}

// DecodeInfluences parses [srcPos, srcLayer, srcLatent, tgtPos, tgtLayer,
// tgtLatent, weight] tuples.
func DecodeInfluences(data []byte) ([]models.InfluenceSample, error) {
	tuples, err := decodeTuples(WeightsFile, data, 7)
	if err != nil {
		return nil, err
	}

	out := make([]models.InfluenceSample, len(tuples))
	for i, t := range tuples {
		ints, err := integers(WeightsFile, i, t, map[int]string{
			0: "srcPosition", 1: "srcLayer", 2: "srcLatent",
			3: "tgtPosition", 4: "tgtLayer", 5: "tgtLatent",
		})
		if err != nil {
			return nil, err
		}
		out[i] = models.InfluenceSample{
			SrcPosition: ints[0], SrcLayer: ints[1], SrcLatent: ints[2],
			TgtPosition: ints[3], TgtLayer: ints[4], TgtLatent: ints[5],
			Weight: t[6],
		}
	}
	return out, nil
}

// DecodeTopActivations parses the top-activation reference set.
func DecodeTopActivations(data []byte) (*TopActivations, error) {
	var top TopActivations
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, models.Malformed(TopActivationsFile, "document", err.Error())
	}
	if top.Layers == nil {
		return nil, models.Malformed(TopActivationsFile, "layers", "missing")
	}
	return &top, nil
}

func decodeTuples(source string, data []byte, arity int) ([][]float64, error) {
	var tuples [][]float64
	if err := json.Unmarshal(data, &tuples); err != nil {
		return nil, models.Malformed(source, "document", err.Error())
	}
	if tuples == nil {
		return nil, models.Malformed(source, "document", "expected an array of tuples")
	}
	for i, t := range tuples {
		if len(t) != arity {
			return nil, models.MalformedAt(source, "tuple", i, fmt.Sprintf("want %d elements, got %d", arity, len(t)))
		}
	}
	return tuples, nil
}

// integers converts the named positions of t to non-negative ints.
func integers(source string, i int, t []float64, fields map[int]string) (map[int]int, error) {
	out := make(map[int]int, len(fields))
	for pos, field := range fields {
		v := t[pos]
		if v != math.Trunc(v) || v < 0 || v > math.MaxInt32 {
			return nil, models.MalformedAt(source, field, i, fmt.Sprintf("not a non-negative integer: %v", v))
		}
		out[pos] = int(v)
	}
	return out, nil
}
