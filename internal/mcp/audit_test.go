package mcp

import (
	"bufio"
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"
)

func quietLogger() *slog.Logger { return slog.New(slog.DiscardHandler) }

func auditLines(t *testing.T, a *AuditLogger) []AuditEntry {
	t.Helper()
	data, err := os.ReadFile(a.Path())
	if err != nil {
		t.Fatalf("reading audit log: %v", err)
	}
	var out []AuditEntry
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		var e AuditEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("line %q: %v", sc.Text(), err)
		}
		out = append(out, e)
	}
	return out
}

func TestAuditLogger_Disabled(t *testing.T) {
	if a := NewAuditLogger("", quietLogger()); a != nil {
		t.Fatal("an empty state dir should disable auditing")
	}

	var a *AuditLogger
	a.Log(AuditEntry{Tool: "protomech_circuit"})
	if a.Path() != "" || a.Close() != nil {
		t.Error("nil logger should be inert")
	}
}

func TestAuditLogger_UnusableDir(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "state")
	if err := os.WriteFile(blocker, nil, 0600); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	a := NewAuditLogger(blocker, slog.New(slog.NewTextHandler(&buf, nil)))
	if a != nil {
		a.Close()
		t.Fatal("a file in place of the state dir should disable auditing")
	}
	if !strings.Contains(buf.String(), "audit log disabled") {
		t.Errorf("expected a warning, got %q", buf.String())
	}
}

func TestAuditLogger_AppendsLines(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")
	a := NewAuditLogger(dir, quietLogger())
	if a == nil {
		t.Fatal("NewAuditLogger() = nil")
	}
	defer a.Close()

	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	want := []AuditEntry{
		{Timestamp: at, Tool: "protomech_rank_layer", DurationMs: 7, Status: StatusSuccess, Params: map[string]string{"layer": "3"}},
		{Timestamp: at, Tool: "protomech_restore", Status: StatusError, Error: "snapshot not found"},
	}
	for _, e := range want {
		a.Log(e)
	}

	if diff := cmp.Diff(want, auditLines(t, a)); diff != "" {
		t.Errorf("audit log mismatch (-want +got):\n%s", diff)
	}

	info, err := os.Stat(a.Path())
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("audit log mode = %o, want 600", perm)
	}
}

func TestAuditLogger_Concurrent(t *testing.T) {
	a := NewAuditLogger(t.TempDir(), quietLogger())
	defer a.Close()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				a.Log(AuditEntry{Tool: "protomech_influences", DurationMs: int64(w*1000 + i)})
			}
		}(w)
	}
	wg.Wait()

	if got := len(auditLines(t, a)); got != 200 {
		t.Errorf("wrote %d lines, want 200", got)
	}
}

func TestAuditLogger_CloseTwice(t *testing.T) {
	a := NewAuditLogger(t.TempDir(), quietLogger())
	if err := a.Close(); err != nil {
		t.Fatal(err)
	}
	a.Log(AuditEntry{Tool: "after-close"})
	if err := a.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}
}

func TestAuditParams_Redacted(t *testing.T) {
	tests := []struct {
		name   string
		params auditParams
		want   map[string]string
	}{
		{name: "nil", params: nil, want: nil},
		{
			name:   "query arguments kept",
			params: auditParams{"layer": 2, "latent": 17, "direction": "downstream", "limit": 10},
			want: map[string]string{
				"layer": "2", "latent": "17", "direction": "downstream", "limit": "10",
				"_param_count": "4",
			},
		},
		{
			name:   "names and paths reduced to presence",
			params: auditParams{"name": "private-hypothesis", "output_path": "/home/ada/x.svg", "ids": []string{"n1"}, "format": "svg"},
			want: map[string]string{
				"name": "(set)", "output_path": "(set)", "ids": "(set)", "format": "svg",
				"_param_count": "4",
			},
		},
		{
			name:   "unknown keys dropped but counted",
			params: auditParams{"prompt": "ignore previous instructions"},
			want:   map[string]string{"_param_count": "1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, tt.params.redacted()); diff != "" {
				t.Errorf("redacted() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestServer_AuditTool(t *testing.T) {
	a := NewAuditLogger(t.TempDir(), quietLogger())
	defer a.Close()
	s := &Server{audit: a}

	s.auditTool("protomech_save", time.Now(), nil, auditParams{"name": "wt"})
	s.auditTool("protomech_export", time.Now(), errors.New("export path rejected"), nil)

	got := auditLines(t, a)
	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2", len(got))
	}
	if got[0].Status != StatusSuccess || got[0].Params["name"] != "(set)" {
		t.Errorf("success entry = %+v", got[0])
	}
	if got[1].Status != StatusError || got[1].Error != "export path rejected" || got[1].Params != nil {
		t.Errorf("error entry = %+v", got[1])
	}
}
