//go:build windows

package mcp

import "os"

// SIGTERM is never delivered on Windows.
var shutdownSignals = []os.Signal{os.Interrupt}
