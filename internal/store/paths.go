package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// GlobalPath returns the path to the per-user protomech directory.
// On Unix: ~/.protomech
// On Windows: %USERPROFILE%\.protomech
func GlobalPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".protomech"), nil
}

// DefaultSnapshotDir returns ~/.protomech/circuits.
func DefaultSnapshotDir() (string, error) {
	root, err := GlobalPath()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, "circuits"), nil
}

// Open creates the store for a backend name. dir is ignored by the memory
// backend; format only applies to the file backend.
func Open(ctx context.Context, backend, dir string, format int) (SnapshotStore, error) {
	switch backend {
	case BackendMemory:
		return NewInMemoryStore(), nil
	case BackendFile, "":
		return NewFileStore(dir, format)
	case BackendSQLite:
		return NewSQLiteStore(ctx, dir)
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}
