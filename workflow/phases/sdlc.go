package phases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
)

// phaseSequences expands a composite workflow name into the ordered
// phase subcommands it runs.
var phaseSequences = map[string][]string{
	"adw_plan":                   {"plan"},
	"adw_build":                  {"build"},
	"adw_test":                   {"test"},
	"adw_review":                 {"review"},
	"adw_document":               {"document"},
	"adw_patch":                  {"patch"},
	"adw_plan_build":             {"plan", "build"},
	"adw_plan_build_test":        {"plan", "build", "test"},
	"adw_plan_build_test_review": {"plan", "build", "test", "review"},
	"adw_sdlc":                   {"plan", "build", "test", "review", "document"},
}

// PhaseSequence resolves a workflow name to its phase subcommands.
func PhaseSequence(workflowName string) ([]string, bool) {
	seq, ok := phaseSequences[workflowName]
	return seq, ok
}

// Sdlc runs a composite workflow by re-invoking this binary once per
// phase, so each phase keeps its own process lifecycle and log file.
// The run id is pinned up front so every child resumes the same state.
// The first failing phase aborts the sequence with its exit code.
func (r *Runtime) Sdlc(ctx context.Context, workflowName, issueNumber, adwID string) error {
	sequence, ok := PhaseSequence(workflowName)
	if !ok {
		return fmt.Errorf("unknown workflow: %s", workflowName)
	}

	adwID, err := r.Ops.EnsureADWID(issueNumber, adwID)
	if err != nil {
		return err
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("cannot locate own executable: %w", err)
	}

	for _, phase := range sequence {
		r.Logger.Info("Running phase", slog.String("phase", phase), slog.String("adw_id", adwID))
		cmd := exec.CommandContext(ctx, exe, phase, issueNumber, adwID)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Run(); err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				return fmt.Errorf("phase %s failed with exit code %d", phase, exitErr.ExitCode())
			}
			return fmt.Errorf("phase %s failed: %w", phase, err)
		}
	}
	r.Logger.Info("Workflow completed", slog.String("workflow", workflowName), slog.String("adw_id", adwID))
	return nil
}
