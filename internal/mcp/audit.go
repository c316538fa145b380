package mcp

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/nvandessel/protomech/internal/pathutil"
)

// AuditFile is the name of the tool audit log inside the state directory.
const AuditFile = "audit.jsonl"

// Outcome values for AuditEntry.Status.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// AuditEntry is one line of the audit log. Params never carries circuit
// names or file paths, only whether they were given.
type AuditEntry struct {
	Timestamp  time.Time         `json:"timestamp"`
	Tool       string            `json:"tool"`
	DurationMs int64             `json:"duration_ms"`
	Status     string            `json:"status"`
	Error      string            `json:"error,omitempty"`
	Params     map[string]string `json:"params,omitempty"`
}

// AuditLogger appends entries to <state>/audit.jsonl. A nil *AuditLogger
// drops everything, which is what NewAuditLogger returns when the file
// cannot be opened.
type AuditLogger struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
	path string
}

// NewAuditLogger opens the audit log under dir. Failure is reported on
// logger and disables auditing rather than the server.
func NewAuditLogger(dir string, logger *slog.Logger) *AuditLogger {
	if dir == "" {
		return nil
	}
	path := filepath.Join(dir, AuditFile)
	if err := os.MkdirAll(dir, 0700); err != nil {
		logger.Warn("audit log disabled", "path", pathutil.RedactPath(path), "error", err)
		return nil
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		logger.Warn("audit log disabled", "path", pathutil.RedactPath(path), "error", err)
		return nil
	}
	return &AuditLogger{file: f, enc: json.NewEncoder(f), path: path}
}

// Path is "" when auditing is off.
func (a *AuditLogger) Path() string {
	if a == nil {
		return ""
	}
	return a.path
}

// Log writes entry as one line. Write errors are ignored.
func (a *AuditLogger) Log(entry AuditEntry) {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file != nil {
		_ = a.enc.Encode(entry)
	}
}

// Close may be called more than once.
func (a *AuditLogger) Close() error {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return nil
	}
	err := a.file.Close()
	a.file, a.enc = nil, nil
	return err
}

// paramPolicy says how much of a tool argument reaches the audit log.
type paramPolicy int

const (
	dropParam    paramPolicy = iota // not logged
	presentParam                    // logged as "(set)"
	valueParam                      // logged verbatim
)

var auditPolicies = map[string]paramPolicy{
	"layer":       valueParam,
	"latent":      valueParam,
	"position":    valueParam,
	"direction":   valueParam,
	"limit":       valueParam,
	"count":       valueParam,
	"format":      valueParam,
	"name":        presentParam,
	"ids":         presentParam,
	"output_path": presentParam,
}

// auditParams are the raw arguments of one tool call.
type auditParams map[string]any

// redacted applies auditPolicies. "_param_count" always records how many
// arguments there were, dropped ones included.
func (p auditParams) redacted() map[string]string {
	if p == nil {
		return nil
	}
	out := map[string]string{"_param_count": fmt.Sprint(len(p))}
	for key, val := range p {
		switch auditPolicies[key] {
		case valueParam:
			out[key] = fmt.Sprint(val)
		case presentParam:
			out[key] = "(set)"
		}
	}
	return out
}

// auditTool records a finished tool call that began at start.
func (s *Server) auditTool(tool string, start time.Time, err error, params auditParams) {
	entry := AuditEntry{
		Timestamp:  start,
		Tool:       tool,
		DurationMs: time.Since(start).Milliseconds(),
		Status:     StatusSuccess,
		Params:     params.redacted(),
	}
	if err != nil {
		entry.Status = StatusError
		entry.Error = err.Error()
	}
	s.audit.Log(entry)
}
