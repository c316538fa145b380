package visualization

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestBrowserCommand(t *testing.T) {
	tests := []struct {
		goos     string
		wantName string
		wantArgs []string
		wantErr  bool
	}{
		{goos: "linux", wantName: "xdg-open", wantArgs: []string{"http://127.0.0.1:8080"}},
		{goos: "darwin", wantName: "open", wantArgs: []string{"http://127.0.0.1:8080"}},
		{goos: "windows", wantName: "cmd", wantArgs: []string{"/c", "start", "", "http://127.0.0.1:8080"}},
		{goos: "plan9", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.goos, func(t *testing.T) {
			name, args, err := browserCommand(tt.goos, "http://127.0.0.1:8080")
			if (err != nil) != tt.wantErr {
				t.Fatalf("browserCommand() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if name != tt.wantName {
				t.Errorf("name = %q, want %q", name, tt.wantName)
			}
			if diff := cmp.Diff(tt.wantArgs, args); diff != "" {
				t.Errorf("args mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBrowserTarget(t *testing.T) {
	for _, u := range []string{"http://localhost:1", "https://example.org/x", "file:///tmp/c.html"} {
		if got := browserTarget(u); got != u {
			t.Errorf("browserTarget(%q) = %q, want unchanged", u, got)
		}
	}

	path := filepath.Join(t.TempDir(), "gfp-circuit.html")
	got := browserTarget(path)
	if !strings.HasPrefix(got, "file://") || !strings.HasSuffix(got, "/gfp-circuit.html") {
		t.Errorf("browserTarget(%q) = %q, want a file URL", path, got)
	}
}
