package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/nvandessel/protomech/internal/circuit"
)

// SnapshotExt is the file extension used by FileStore.
const SnapshotExt = ".circuit"

// FileStore implements SnapshotStore as one file per snapshot in a
// directory. New files are written in the configured format; reads detect
// the format of each file.
type FileStore struct {
	mu     sync.RWMutex
	dir    string
	format int
	now    func() time.Time
}

// NewFileStore creates a store rooted at dir, creating the directory if
// needed. format is FormatV1 or FormatV2.
func NewFileStore(dir string, format int) (*FileStore, error) {
	if format != FormatV1 && format != FormatV2 {
		return nil, fmt.Errorf("unsupported snapshot format %d", format)
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	return &FileStore{dir: dir, format: format, now: time.Now}, nil
}

// Dir returns the directory holding the snapshot files.
func (f *FileStore) Dir() string {
	return f.dir
}

// Path returns the file path used for name.
func (f *FileStore) Path(name string) string {
	return filepath.Join(f.dir, name+SnapshotExt)
}

// Save writes s to the file for name.
func (f *FileStore) Save(ctx context.Context, name string, s circuit.Snapshot) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if err := s.Validate(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.format == FormatV2 {
		return WriteV2(f.Path(name), s, f.now())
	}
	return WriteV1(f.Path(name), s)
}

// Load reads the snapshot file for name.
func (f *FileStore) Load(ctx context.Context, name string) (circuit.Snapshot, error) {
	if err := ValidateName(name); err != nil {
		return circuit.Snapshot{}, err
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	path := f.Path(name)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return circuit.Snapshot{}, ErrNotFound
	}
	s, err := ReadFile(path)
	if err != nil {
		return circuit.Snapshot{}, fmt.Errorf("loading %s: %w", name, err)
	}
	return s, nil
}

// List describes every snapshot file, newest first. V2 files are described
// from their header; V1 files are decoded.
func (f *FileStore) List(ctx context.Context) ([]Info, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	entries, err := os.ReadDir(f.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading snapshot directory: %w", err)
	}

	var out []Info
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), SnapshotExt) {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		path := filepath.Join(f.dir, e.Name())
		info := Info{
			Name:    strings.TrimSuffix(e.Name(), SnapshotExt),
			SavedAt: fi.ModTime(),
			Size:    fi.Size(),
		}

		version, err := DetectFormat(path)
		if err != nil {
			continue
		}
		info.Format = version
		if version == FormatV2 {
			h, err := ReadV2Header(path)
			if err != nil {
				continue
			}
			info.SavedAt, info.NodeCount, info.EdgeCount = h.CreatedAt, h.NodeCount, h.EdgeCount
		} else if s, err := ReadFile(path); err == nil {
			info.NodeCount, info.EdgeCount = counts(s)
		}
		out = append(out, info)
	}

	sortNewestFirst(out)
	return out, nil
}

// Delete removes the file for name.
func (f *FileStore) Delete(ctx context.Context, name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.Path(name)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("removing snapshot: %w", err)
	}
	return nil
}

// Close is a no-op.
func (f *FileStore) Close() error {
	return nil
}
