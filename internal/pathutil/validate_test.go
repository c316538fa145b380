package pathutil

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

func TestExportDirs_Validate(t *testing.T) {
	exports := t.TempDir()
	other := t.TempDir()
	if err := os.MkdirAll(filepath.Join(exports, "gfp"), 0700); err != nil {
		t.Fatal(err)
	}
	sep := string(os.PathSeparator)

	tests := []struct {
		name    string
		dirs    ExportDirs
		path    string
		wantErr error
		anyErr  bool
	}{
		{name: "inside", dirs: ExportDirs{exports}, path: filepath.Join(exports, "circuit.svg")},
		{name: "subdirectory", dirs: ExportDirs{exports}, path: filepath.Join(exports, "gfp", "circuit.svg")},
		{name: "missing subdirectories", dirs: ExportDirs{exports}, path: filepath.Join(exports, "a", "b", "c.dot")},
		{name: "the directory itself", dirs: ExportDirs{exports}, path: exports},
		{name: "doubled separators", dirs: ExportDirs{exports}, path: exports + sep + sep + "circuit.svg"},
		{name: "second directory", dirs: ExportDirs{exports, other}, path: filepath.Join(other, "circuit.svg")},
		{name: "dot-dot escape", dirs: ExportDirs{exports}, path: filepath.Join(exports, "..", "seq.txt"), wantErr: ErrOutsideExportDirs},
		{name: "nested dot-dot escape", dirs: ExportDirs{exports}, path: exports + sep + "gfp" + sep + ".." + sep + ".." + sep + "x.svg", wantErr: ErrOutsideExportDirs},
		{name: "other directory", dirs: ExportDirs{exports}, path: filepath.Join(other, "circuit.svg"), wantErr: ErrOutsideExportDirs},
		{name: "sibling with shared prefix", dirs: ExportDirs{exports}, path: exports + "-evil" + sep + "c.svg", wantErr: ErrOutsideExportDirs},
		{name: "empty path", dirs: ExportDirs{exports}, path: "", wantErr: ErrEmptyPath},
		{name: "no directories", dirs: nil, path: filepath.Join(exports, "c.svg"), wantErr: ErrNoExportDirs},
		{name: "null byte", dirs: ExportDirs{exports}, path: filepath.Join(exports, "c\x00.svg"), anyErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.dirs.Validate(tt.path)
			switch {
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Validate(%q) error = %v, want %v", tt.path, err, tt.wantErr)
				}
			case tt.anyErr:
				if err == nil {
					t.Errorf("Validate(%q) should fail", tt.path)
				}
			default:
				if err != nil {
					t.Errorf("Validate(%q) error = %v", tt.path, err)
				}
			}
		})
	}
}

func TestExportDirs_ValidateSymlinks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on Windows")
	}

	exports := t.TempDir()
	outside := t.TempDir()
	real := filepath.Join(exports, "real")
	if err := os.MkdirAll(real, 0700); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(outside, filepath.Join(exports, "escape")); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(real, filepath.Join(exports, "link")); err != nil {
		t.Fatal(err)
	}
	dirs := ExportDirs{exports}

	if err := dirs.Validate(filepath.Join(exports, "escape", "c.svg")); !errors.Is(err, ErrOutsideExportDirs) {
		t.Errorf("symlink out of the export dir: error = %v, want ErrOutsideExportDirs", err)
	}
	if err := dirs.Validate(filepath.Join(exports, "link", "c.svg")); err != nil {
		t.Errorf("symlink staying inside: error = %v", err)
	}
}

func TestExportDirs_ValidateExport(t *testing.T) {
	exports := t.TempDir()
	dirs := ExportDirs{exports}

	if err := dirs.ValidateExport(filepath.Join(exports, "c.SVG"), ".svg"); err != nil {
		t.Errorf("matching extension (any case): error = %v", err)
	}
	if err := dirs.ValidateExport(filepath.Join(exports, "c.sh"), ".svg"); !errors.Is(err, ErrExtension) {
		t.Errorf("wrong extension: error = %v, want ErrExtension", err)
	}
	if err := dirs.ValidateExport(filepath.Join(t.TempDir(), "c.svg"), ".svg"); !errors.Is(err, ErrOutsideExportDirs) {
		t.Errorf("outside: error = %v, want ErrOutsideExportDirs", err)
	}
}

func TestExportDirs_Default(t *testing.T) {
	at := time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)
	dirs := ExportDirs{"/x/exports", "/y/exports"}

	got, err := dirs.Default("gfp wt", at, ".dot")
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	if want := filepath.Join("/x/exports", "gfp_wt-20240309-140507.dot"); got != want {
		t.Errorf("Default() = %q, want %q", got, want)
	}

	if _, err := ExportDirs(nil).Default("gfp", at, ".dot"); !errors.Is(err, ErrNoExportDirs) {
		t.Errorf("Default() without dirs error = %v, want ErrNoExportDirs", err)
	}
}

func TestDefaultExportDirs(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)

	dirs, err := DefaultExportDirs("")
	if err != nil {
		t.Fatalf("DefaultExportDirs() error = %v", err)
	}
	global := filepath.Join(home, ".protomech", "exports")
	if len(dirs) != 1 || dirs[0] != global {
		t.Errorf("DefaultExportDirs(\"\") = %v, want [%s]", dirs, global)
	}

	dataset := t.TempDir()
	dirs, err = DefaultExportDirs(dataset)
	if err != nil {
		t.Fatalf("DefaultExportDirs() error = %v", err)
	}
	if len(dirs) != 2 || dirs[1] != filepath.Join(dataset, "exports") {
		t.Fatalf("DefaultExportDirs(dataset) = %v", dirs)
	}
	if err := dirs.Validate(filepath.Join(dataset, "exports", "c.svg")); err != nil {
		t.Errorf("dataset export rejected: %v", err)
	}
	if err := dirs.Validate(filepath.Join(dataset, "seq.txt")); err == nil {
		t.Error("a dataset input file must not be writable")
	}
}

func TestRedactPath(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"", ""},
		{"/home/ada/.protomech/config.yaml", ".../.protomech/config.yaml"},
		{"/data/proteins/gfp/seq.txt", ".../gfp/seq.txt"},
		{"/seq.txt", "seq.txt"},
		{"gfp/seq.txt", ".../gfp/seq.txt"},
		{"seq.txt", "seq.txt"},
		{"/home/ada/.protomech/", ".../ada/.protomech"},
	}
	for _, tt := range tests {
		if got := RedactPath(tt.input); got != tt.want {
			t.Errorf("RedactPath(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestSafeName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"demo", "demo"},
		{"L3 / 12", "L3___12"},
		{"../../etc/passwd", "_.._etc_passwd"},
		{"...", "circuit"},
		{"", "circuit"},
		{"v1.2_final-b", "v1.2_final-b"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := SafeName(tt.in); got != tt.want {
				t.Errorf("SafeName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
