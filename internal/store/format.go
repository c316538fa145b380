package store

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/nvandessel/protomech/internal/circuit"
)

// Format version constants.
const (
	FormatV1 = 1
	FormatV2 = 2
)

// MaxDecompressedSize is the maximum allowed size of a decompressed V2 payload (200MB).
const MaxDecompressedSize = 200 * 1024 * 1024

// Header is the plain-text first line of a V2 snapshot file.
type Header struct {
	Version    int       `json:"version"`
	CreatedAt  time.Time `json:"created_at"`
	Checksum   string    `json:"checksum"`
	NodeCount  int       `json:"node_count"`
	EdgeCount  int       `json:"edge_count"`
	Compressed bool      `json:"compressed"`
}

// DetectFormat reads the first line of a file to tell V1 from V2.
// V2 files start with a header line carrying "version":2. V1 files are a
// plain JSON snapshot starting with '{'.
func DetectFormat(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	line, err := bufio.NewReader(f).ReadString('\n')
	if err != nil && err != io.EOF {
		return 0, fmt.Errorf("reading first line: %w", err)
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return 0, fmt.Errorf("%w: file starts with an empty line", ErrUnknownFormat)
	}

	var h Header
	if err := json.Unmarshal([]byte(line), &h); err == nil && h.Version == FormatV2 {
		return FormatV2, nil
	}
	if line[0] == '{' {
		return FormatV1, nil
	}
	return 0, ErrUnknownFormat
}

// WriteV1 writes s as an indented JSON document.
func WriteV1(path string, s circuit.Snapshot) error {
	data, err := circuit.EncodeSnapshot(s)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0600); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	return nil
}

// WriteV2 writes s as a header line followed by the gzip-compressed JSON
// snapshot. The header checksum covers the compressed bytes.
func WriteV2(path string, s circuit.Snapshot, createdAt time.Time) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshaling payload: %w", err)
	}

	var compressed bytes.Buffer
	gzw, err := gzip.NewWriterLevel(&compressed, gzip.DefaultCompression)
	if err != nil {
		return fmt.Errorf("creating gzip writer: %w", err)
	}
	if _, err := gzw.Write(payload); err != nil {
		return fmt.Errorf("compressing payload: %w", err)
	}
	if err := gzw.Close(); err != nil {
		return fmt.Errorf("closing gzip writer: %w", err)
	}

	nodes, edges := counts(s)
	header := Header{
		Version:    FormatV2,
		CreatedAt:  createdAt.UTC(),
		Checksum:   checksum(compressed.Bytes()),
		NodeCount:  nodes,
		EdgeCount:  edges,
		Compressed: true,
	}
	headerBytes, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("marshaling header: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	w.Write(headerBytes)
	w.WriteByte('\n')
	w.Write(compressed.Bytes())
	if err := w.Flush(); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	return f.Close()
}

// ReadV2 reads a V2 file, verifies its checksum and decodes the payload.
func ReadV2(path string) (*Header, circuit.Snapshot, error) {
	header, compressed, err := readV2Parts(path)
	if err != nil {
		return nil, circuit.Snapshot{}, err
	}
	if actual := checksum(compressed); actual != header.Checksum {
		return nil, circuit.Snapshot{}, fmt.Errorf("%w: expected %s, got %s", ErrChecksumMismatch, header.Checksum, actual)
	}

	gzr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, circuit.Snapshot{}, fmt.Errorf("creating gzip reader: %w", err)
	}
	defer gzr.Close()

	decompressed, err := io.ReadAll(io.LimitReader(gzr, MaxDecompressedSize+1))
	if err != nil {
		return nil, circuit.Snapshot{}, fmt.Errorf("decompressing payload: %w", err)
	}
	if int64(len(decompressed)) > MaxDecompressedSize {
		return nil, circuit.Snapshot{}, fmt.Errorf("decompressed payload exceeds maximum size of %d bytes", MaxDecompressedSize)
	}

	s, err := circuit.DecodeSnapshot(decompressed)
	if err != nil {
		return nil, circuit.Snapshot{}, err
	}
	return header, s, nil
}

// ReadV2Header reads only the header line of a V2 file.
func ReadV2Header(path string) (*Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	return readHeader(bufio.NewReader(f))
}

// VerifyChecksum checks the integrity of a V2 file without decompressing it.
func VerifyChecksum(path string) error {
	header, compressed, err := readV2Parts(path)
	if err != nil {
		return err
	}
	if actual := checksum(compressed); actual != header.Checksum {
		return fmt.Errorf("%w: expected %s, got %s", ErrChecksumMismatch, header.Checksum, actual)
	}
	return nil
}

// ReadFile reads a snapshot file of either format.
func ReadFile(path string) (circuit.Snapshot, error) {
	version, err := DetectFormat(path)
	if err != nil {
		return circuit.Snapshot{}, err
	}
	if version == FormatV2 {
		_, s, err := ReadV2(path)
		return s, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return circuit.Snapshot{}, fmt.Errorf("reading snapshot: %w", err)
	}
	return circuit.DecodeSnapshot(data)
}

func readV2Parts(path string) (*Header, []byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	reader := bufio.NewReader(f)
	header, err := readHeader(reader)
	if err != nil {
		return nil, nil, err
	}
	compressed, err := io.ReadAll(reader)
	if err != nil {
		return nil, nil, fmt.Errorf("reading compressed payload: %w", err)
	}
	return header, compressed, nil
}

func readHeader(r *bufio.Reader) (*Header, error) {
	line, err := r.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("reading header line: %w", err)
	}
	var h Header
	if err := json.Unmarshal(bytes.TrimSpace(line), &h); err != nil {
		return nil, fmt.Errorf("parsing header: %w", err)
	}
	if h.Version != FormatV2 {
		return nil, fmt.Errorf("expected V2 format, got version %d", h.Version)
	}
	return &h, nil
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:])
}
