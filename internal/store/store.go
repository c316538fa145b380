// Package store persists named circuit snapshots.
//
// Three backends share the SnapshotStore interface: an in-memory store for
// tests and the HTTP session, a directory of snapshot files (V1 plain JSON or
// V2 header plus gzip payload) and a SQLite database.
package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/nvandessel/protomech/internal/circuit"
)

// Sentinel errors.
var (
	// ErrNotFound is returned when no snapshot has the requested name.
	ErrNotFound = errors.New("snapshot not found")

	// ErrUnknownFormat is returned for files that are neither V1 nor V2.
	ErrUnknownFormat = errors.New("unrecognized snapshot format")

	// ErrChecksumMismatch is returned when a V2 payload fails verification.
	ErrChecksumMismatch = errors.New("checksum mismatch")
)

// Info describes a stored snapshot without loading it.
type Info struct {
	Name      string    `json:"name"`
	SavedAt   time.Time `json:"saved_at"`
	NodeCount int       `json:"node_count"`
	EdgeCount int       `json:"edge_count"`
	Size      int64     `json:"size,omitempty"`
	Format    int       `json:"format,omitempty"`
}

// SnapshotStore saves and loads circuit snapshots by name.
type SnapshotStore interface {
	// Save stores s under name, replacing any previous snapshot of that name.
	Save(ctx context.Context, name string, s circuit.Snapshot) error

	// Load returns the snapshot stored under name, or ErrNotFound.
	Load(ctx context.Context, name string) (circuit.Snapshot, error)

	// List returns every stored snapshot, newest first.
	List(ctx context.Context) ([]Info, error)

	// Delete removes the snapshot stored under name, or returns ErrNotFound.
	Delete(ctx context.Context, name string) error

	Close() error
}

var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,63}$`)

// ValidateName checks that name is usable as a snapshot name on every
// backend: 1 to 64 characters from letters, digits, '.', '_' and '-', not
// starting with a separator.
func ValidateName(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("invalid snapshot name %q", name)
	}
	return nil
}

func counts(s circuit.Snapshot) (nodes, edges int) {
	return len(s.Nodes), len(s.Edges)
}
