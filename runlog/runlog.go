// Package runlog builds per-run loggers. Each phase logs to stderr and
// appends the same records to a durable execution log under the run's
// agents directory, so a crashed run leaves a readable trail.
package runlog

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// ExecutionLogFilename is the per-phase durable log file.
const ExecutionLogFilename = "execution.log"

// New returns a logger writing to stderr and to
// <agents-dir>/<adw-id>/<phase>/execution.log. The returned closer
// owns the log file handle.
func New(agentsDir, adwID, phase string) (*slog.Logger, io.Closer, error) {
	logDir := filepath.Join(agentsDir, adwID, phase)
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	logFile := filepath.Join(logDir, ExecutionLogFilename)
	f, err := os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open execution log: %w", err)
	}

	handler := slog.NewTextHandler(io.MultiWriter(os.Stderr, f), &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})
	return slog.New(handler), f, nil
}

// Console returns a stderr-only logger for use before a run id exists.
func Console() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}
