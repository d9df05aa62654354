package agent

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
)

// CommandRunner is the process-execution port the gateway spawns the
// agent through. Tests substitute a fake so no real subprocess runs.
type CommandRunner interface {
	// Run executes name with args and the given environment, blocking
	// until exit. It returns captured stdout and stderr, the process
	// exit code, and a non-nil error only when the process could not be
	// started at all.
	Run(ctx context.Context, name string, args []string, env []string) (stdout, stderr []byte, exitCode int, err error)
}

// execRunner runs commands via os/exec in the configured directory.
type execRunner struct {
	dir string
}

func (r *execRunner) Run(ctx context.Context, name string, args []string, env []string) ([]byte, []byte, int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = r.dir
	if env != nil {
		cmd.Env = env
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return stdout.Bytes(), stderr.Bytes(), exitErr.ExitCode(), nil
		}
		return stdout.Bytes(), stderr.Bytes(), -1, err
	}
	return stdout.Bytes(), stderr.Bytes(), 0, nil
}
