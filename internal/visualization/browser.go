package visualization

import (
	"fmt"
	"net/url"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// browserCommand returns the launcher for target on goos.
func browserCommand(goos, target string) (name string, args []string, err error) {
	switch goos {
	case "linux", "freebsd", "openbsd":
		return "xdg-open", []string{target}, nil
	case "darwin":
		return "open", []string{target}, nil
	case "windows":
		// start treats its first quoted argument as a window title.
		return "cmd", []string{"/c", "start", "", target}, nil
	default:
		return "", nil, fmt.Errorf("unsupported platform: %s", goos)
	}
}

// browserTarget turns a local file path into a file URL. URLs pass through.
func browserTarget(target string) string {
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") || strings.HasPrefix(target, "file://") {
		return target
	}
	abs, err := filepath.Abs(target)
	if err != nil {
		return target
	}
	p := filepath.ToSlash(abs)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p // C:/x on windows
	}
	return (&url.URL{Scheme: "file", Path: p}).String()
}

// OpenBrowser opens a served circuit page or an exported HTML file in the
// default browser without waiting for it.
func OpenBrowser(target string) error {
	name, args, err := browserCommand(runtime.GOOS, browserTarget(target))
	if err != nil {
		return err
	}
	return exec.Command(name, args...).Start()
}
