package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/nvandessel/protomech/internal/circuit"
	_ "modernc.org/sqlite" // SQLite driver
)

// DatabaseFile is the name of the SQLite database inside the store directory.
const DatabaseFile = "protomech.db"

// SQLiteStore implements SnapshotStore with one row per named circuit.
type SQLiteStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	dbPath string
	now    func() time.Time
}

// NewSQLiteStore opens (or creates) dir/protomech.db and initializes the
// schema.
func NewSQLiteStore(ctx context.Context, dir string) (*SQLiteStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	dbPath := filepath.Join(dir, DatabaseFile)

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite works best with single writer

	if err := InitSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db, dbPath: dbPath, now: time.Now}, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.dbPath
}

// Save upserts the snapshot under name.
func (s *SQLiteStore) Save(ctx context.Context, name string, snap circuit.Snapshot) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if err := snap.Validate(); err != nil {
		return err
	}
	payload, err := circuit.EncodeSnapshot(snap)
	if err != nil {
		return err
	}
	nodes, edges := counts(snap)

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO circuits (name, payload, node_count, edge_count, saved_at, checksum)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			payload = excluded.payload,
			node_count = excluded.node_count,
			edge_count = excluded.edge_count,
			saved_at = excluded.saved_at,
			checksum = excluded.checksum`,
		name, string(payload), nodes, edges, s.now().UTC().Format(time.RFC3339Nano), checksum(payload))
	if err != nil {
		return fmt.Errorf("failed to save circuit %s: %w", name, err)
	}
	return nil
}

// Load returns the snapshot stored under name. The stored checksum is
// verified before decoding.
func (s *SQLiteStore) Load(ctx context.Context, name string) (circuit.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var payload, sum string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload, checksum FROM circuits WHERE name = ?`, name).Scan(&payload, &sum)
	if errors.Is(err, sql.ErrNoRows) {
		return circuit.Snapshot{}, ErrNotFound
	}
	if err != nil {
		return circuit.Snapshot{}, fmt.Errorf("failed to load circuit %s: %w", name, err)
	}
	if sum != "" && sum != checksum([]byte(payload)) {
		return circuit.Snapshot{}, fmt.Errorf("circuit %s: %w", name, ErrChecksumMismatch)
	}
	return circuit.DecodeSnapshot([]byte(payload))
}

// List returns every stored circuit, newest first.
func (s *SQLiteStore) List(ctx context.Context) ([]Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT name, node_count, edge_count, saved_at, length(payload)
		FROM circuits ORDER BY saved_at DESC, name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list circuits: %w", err)
	}
	defer rows.Close()

	var out []Info
	for rows.Next() {
		var info Info
		var savedAt string
		if err := rows.Scan(&info.Name, &info.NodeCount, &info.EdgeCount, &savedAt, &info.Size); err != nil {
			return nil, fmt.Errorf("failed to scan circuit row: %w", err)
		}
		info.SavedAt, _ = time.Parse(time.RFC3339Nano, savedAt)
		info.Format = FormatV1
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortNewestFirst(out)
	return out, nil
}

// Delete removes the circuit stored under name.
func (s *SQLiteStore) Delete(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM circuits WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("failed to delete circuit %s: %w", name, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
