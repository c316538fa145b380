// Package pathutil confines file writes to known directories and keeps full
// paths out of messages.
package pathutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ExportDirName is the directory rendered circuits are written to, under
// the state directory and under a dataset.
const ExportDirName = "exports"

var (
	// ErrEmptyPath is returned for an empty target path.
	ErrEmptyPath = errors.New("path is empty")
	// ErrNoExportDirs is returned when no directory may be written to.
	ErrNoExportDirs = errors.New("no export directories configured")
	// ErrOutsideExportDirs is returned for a target outside every export directory.
	ErrOutsideExportDirs = errors.New("outside allowed directories")
	// ErrExtension is returned when a target's extension does not match its format.
	ErrExtension = errors.New("file extension does not match format")
)

// RedactPath shortens a path to .../<parent>/<base>, e.g.
// "/home/ada/.protomech/config.yaml" becomes ".../.protomech/config.yaml".
func RedactPath(path string) string {
	if path == "" {
		return ""
	}
	cleaned := filepath.Clean(path)
	base := filepath.Base(cleaned)
	parent := filepath.Base(filepath.Dir(cleaned))
	if parent == "." || parent == string(filepath.Separator) {
		return base
	}
	return ".../" + parent + "/" + base
}

// ExportDirs lists the directories rendered circuits may be written to.
type ExportDirs []string

// DefaultExportDirs is ~/.protomech/exports plus <datasetDir>/exports when
// a dataset directory is given.
func DefaultExportDirs(datasetDir string) (ExportDirs, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}
	dirs := ExportDirs{filepath.Join(home, ".protomech", ExportDirName)}
	if datasetDir != "" {
		dirs = append(dirs, filepath.Join(datasetDir, ExportDirName))
	}
	return dirs, nil
}

// Validate checks that path lies inside one of the directories once ".."
// segments and symlinks are resolved. The file itself need not exist.
func (d ExportDirs) Validate(path string) error {
	if path == "" {
		return ErrEmptyPath
	}
	if len(d) == 0 {
		return ErrNoExportDirs
	}
	if strings.ContainsRune(path, '\x00') {
		return fmt.Errorf("path contains null byte")
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", RedactPath(path), err)
	}
	// The parent is resolved rather than the file so a symlinked directory
	// inside an export dir cannot point elsewhere.
	parent, err := resolve(filepath.Dir(abs))
	if err != nil {
		return err
	}
	target := filepath.Join(parent, filepath.Base(abs))

	for _, dir := range d {
		root, err := filepath.Abs(dir)
		if err != nil {
			continue
		}
		if root, err = resolve(root); err != nil {
			continue
		}
		if within(target, root) {
			return nil
		}
	}
	return fmt.Errorf("%q is %w", RedactPath(abs), ErrOutsideExportDirs)
}

// ValidateExport is Validate plus a check that path ends in ext.
func (d ExportDirs) ValidateExport(path, ext string) error {
	if err := d.Validate(path); err != nil {
		return err
	}
	if got := filepath.Ext(path); ext != "" && !strings.EqualFold(got, ext) {
		return fmt.Errorf("%s for %q: %w", got, ext, ErrExtension)
	}
	return nil
}

// Default is a timestamped file in the first directory:
// <dir>/<label>-20060102-150405<ext>.
func (d ExportDirs) Default(label string, at time.Time, ext string) (string, error) {
	if len(d) == 0 {
		return "", ErrNoExportDirs
	}
	name := SafeName(label) + "-" + at.Format("20060102-150405") + ext
	return filepath.Join(d[0], name), nil
}

// resolve evaluates symlinks on the deepest existing ancestor of dir and
// appends the part that does not exist yet.
func resolve(dir string) (string, error) {
	if resolved, err := filepath.EvalSymlinks(dir); err == nil {
		return resolved, nil
	}
	up := filepath.Dir(dir)
	if up == dir {
		return "", fmt.Errorf("cannot resolve %s", RedactPath(dir))
	}
	resolved, err := resolve(up)
	if err != nil {
		return "", err
	}
	return filepath.Join(resolved, filepath.Base(dir)), nil
}

// within reports whether path is root or below it.
func within(path, root string) bool {
	if path == root {
		return true
	}
	return strings.HasPrefix(path, root+string(os.PathSeparator))
}

// SafeName reduces an arbitrary label to a file name component: letters,
// digits, '-', '_' and '.', everything else replaced by '_'. Leading dots
// are dropped so the result never names a hidden or parent entry.
func SafeName(label string) string {
	var b strings.Builder
	for _, r := range label {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := strings.TrimLeft(b.String(), ".")
	if out == "" {
		return "circuit"
	}
	return out
}
