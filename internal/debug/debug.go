// Package debug provides gated diagnostic logging that stays silent on
// stdout/stderr whenever a stdio JSON-RPC transport is active.
package debug

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EnableDebug is a build flag, overridable at link time:
// go build -ldflags "-X github.com/standardbeagle/logsearch-mcp/internal/debug.EnableDebug=true"
var EnableDebug = "false"

// StdioMode tracks whether a stdio JSON-RPC transport owns stdout; when true
// all debug output is suppressed regardless of EnableDebug/DEBUG.
var StdioMode = false

var (
	debugOutput io.Writer
	debugFile   *os.File
	debugMutex  sync.Mutex
)

// SetStdioMode enables stdio mode, which suppresses all debug output to
// stdio so it never corrupts the JSON-RPC stream.
func SetStdioMode(enabled bool) {
	StdioMode = enabled
}

// SetDebugOutput sets a custom writer for debug output. Pass nil to disable.
func SetDebugOutput(w io.Writer) {
	debugMutex.Lock()
	defer debugMutex.Unlock()
	debugOutput = w
}

// InitDebugLogFile initializes debug logging to a timestamped file under
// os.TempDir() and returns its path.
func InitDebugLogFile() (string, error) {
	debugMutex.Lock()
	defer debugMutex.Unlock()

	logDir := filepath.Join(os.TempDir(), "logsearch-mcp-logs")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create debug log directory: %w", err)
	}

	timestamp := time.Now().Format("2006-01-02T150405")
	logPath := filepath.Join(logDir, fmt.Sprintf("debug-%s.log", timestamp))

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return "", fmt.Errorf("failed to create debug log file: %w", err)
	}

	debugFile = file
	debugOutput = file
	return logPath, nil
}

// CloseDebugLog closes the debug log file if one is open.
func CloseDebugLog() error {
	debugMutex.Lock()
	defer debugMutex.Unlock()

	if debugFile != nil {
		err := debugFile.Close()
		debugFile = nil
		debugOutput = nil
		return err
	}
	return nil
}

// IsDebugEnabled reports whether debug logging should produce output.
func IsDebugEnabled() bool {
	if StdioMode {
		return false
	}
	if EnableDebug == "true" {
		return true
	}
	if v := os.Getenv("DEBUG"); v == "1" || v == "true" {
		return true
	}
	return false
}

func getDebugWriter() io.Writer {
	debugMutex.Lock()
	defer debugMutex.Unlock()
	return debugOutput
}

// Log writes a component-tagged debug line.
func Log(component, format string, args ...interface{}) {
	if !IsDebugEnabled() {
		return
	}
	w := getDebugWriter()
	if w == nil {
		return
	}
	fmt.Fprintf(w, "[DEBUG:%s] "+format+"\n", append([]interface{}{component}, args...)...)
}

// LogScan logs scanner activity.
func LogScan(format string, args ...interface{}) { Log("SCAN", format, args...) }

// LogReader logs reader activity.
func LogReader(format string, args ...interface{}) { Log("READ", format, args...) }

// LogSearch logs engine/query activity.
func LogSearch(format string, args ...interface{}) { Log("SEARCH", format, args...) }

// LogRPC logs stdio/HTTP transport activity.
func LogRPC(format string, args ...interface{}) { Log("RPC", format, args...) }

// LogConfig logs config load/reload activity.
func LogConfig(format string, args ...interface{}) { Log("CONFIG", format, args...) }
