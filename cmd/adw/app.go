package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/c360studio/adw/agent"
	"github.com/c360studio/adw/config"
	"github.com/c360studio/adw/runlog"
	"github.com/c360studio/adw/state"
	"github.com/c360studio/adw/storage"
	"github.com/c360studio/adw/tools/git"
	"github.com/c360studio/adw/tools/github"
	"github.com/c360studio/adw/workflow"
	"github.com/c360studio/adw/workflow/phases"
)

// app bundles everything a phase subcommand needs.
type app struct {
	cfg     *config.Config
	runtime *phases.Runtime
	logFile io.Closer
}

func (a *app) close() {
	if a.logFile != nil {
		_ = a.logFile.Close()
	}
}

// checkEnv fails fast when required environment variables are missing.
func checkEnv() error {
	if missing := config.MissingEnv(); len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	return nil
}

// pipedState reads run state handed over on stdin by a chained phase.
// Only the run id is taken from it; phases reload the authoritative
// record from disk. Returns nil when stdin is a terminal or does not
// hold valid state.
func pipedState(agentsDir string) *state.State {
	info, err := os.Stdin.Stat()
	if err != nil || info.Mode()&os.ModeCharDevice != 0 {
		return nil
	}
	return state.FromReader(os.Stdin, agentsDir, runlog.Console())
}

// newApp assembles the runtime for one phase invocation. The adw id may
// be empty; piped state supplies it when a prior phase handed one over.
func newApp(phase, adwID string) (*app, string, error) {
	if err := checkEnv(); err != nil {
		return nil, "", err
	}

	cfg, err := config.NewLoader(runlog.Console()).Load()
	if err != nil {
		return nil, "", fmt.Errorf("load config: %w", err)
	}

	piped := pipedState(cfg.AgentsPath())
	if piped != nil && adwID == "" {
		adwID = piped.ADWID
	}

	logID := adwID
	if logID == "" {
		logID = "temp"
	}
	logger, logFile, err := runlog.New(cfg.AgentsPath(), logID, phase)
	if err != nil {
		return nil, "", err
	}

	env := config.SubprocessEnv()
	gitOps := git.NewOps(cfg.Repo.Path, logger)
	tracker := github.NewClient(gitOps, env, logger)
	gateway := agent.New(cfg, env, logger)
	uploader := storage.NewR2Uploader(context.Background(), env, logger)

	ops := workflow.NewOps(gateway, gitOps, cfg.AgentsPath(), cfg.Repo.SpecsDir, cfg.Repo.Path, logger)
	ops.BotID = cfg.Bot.Identifier

	a := &app{
		cfg:     cfg,
		runtime: phases.New(ops, tracker, gitOps, uploader, logger),
		logFile: logFile,
	}
	return a, adwID, nil
}

// emitState writes the run's final state to stdout so the next phase in
// a shell pipeline can pick it up.
func emitState(agentsDir, adwID string) {
	st, err := state.Load(agentsDir, adwID, runlog.Console())
	if err != nil {
		return
	}
	_ = st.WriteTo(os.Stdout)
}

func planCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plan <issue-number> [adw-id]",
		Short: "Classify an issue, create a branch and build a plan",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			adwID := ""
			if len(args) > 1 {
				adwID = args[1]
			}
			a, adwID, err := newApp("plan", adwID)
			if err != nil {
				return err
			}
			defer a.close()

			adwID, err = a.runtime.Ops.EnsureADWID(args[0], adwID)
			if err != nil {
				return err
			}
			if err := a.runtime.Plan(cmd.Context(), args[0], adwID); err != nil {
				return err
			}
			emitState(a.cfg.AgentsPath(), adwID)
			return nil
		},
	}
}

func buildCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "build <issue-number> [adw-id]",
		Short: "Implement the plan created by a prior plan run",
		Long: `Implement the plan created by a prior plan run.

The adw-id locates the plan file and state; it may be given as an
argument or piped in as state from a previous phase.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			adwID := ""
			if len(args) > 1 {
				adwID = args[1]
			}
			a, adwID, err := newApp("build", adwID)
			if err != nil {
				return err
			}
			defer a.close()
			if adwID == "" {
				return fmt.Errorf("adw-id is required to locate the plan file: pass it as an argument or pipe in state")
			}
			if err := a.runtime.Build(cmd.Context(), args[0], adwID); err != nil {
				return err
			}
			emitState(a.cfg.AgentsPath(), adwID)
			return nil
		},
	}
}

func testCmd() *cobra.Command {
	return simplePhaseCmd("test", "Run tests with one automatic resolution attempt",
		func(a *app, cmd *cobra.Command, issueNumber, adwID string) error {
			return a.runtime.Test(cmd.Context(), issueNumber, adwID)
		})
}

func reviewCmd() *cobra.Command {
	return simplePhaseCmd("review", "Review the implementation against the plan",
		func(a *app, cmd *cobra.Command, issueNumber, adwID string) error {
			return a.runtime.Review(cmd.Context(), issueNumber, adwID)
		})
}

func documentCmd() *cobra.Command {
	return simplePhaseCmd("document", "Update documentation for the change",
		func(a *app, cmd *cobra.Command, issueNumber, adwID string) error {
			return a.runtime.Document(cmd.Context(), issueNumber, adwID)
		})
}

// simplePhaseCmd covers the phases sharing the <issue-number> <adw-id>
// shape where the id is required (directly or via piped state).
func simplePhaseCmd(name, short string, run func(a *app, cmd *cobra.Command, issueNumber, adwID string) error) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <issue-number> [adw-id]",
		Short: short,
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			adwID := ""
			if len(args) > 1 {
				adwID = args[1]
			}
			a, adwID, err := newApp(name, adwID)
			if err != nil {
				return err
			}
			defer a.close()
			if adwID == "" {
				return fmt.Errorf("adw-id is required: pass it as an argument or pipe in state")
			}
			if err := run(a, cmd, args[0], adwID); err != nil {
				return err
			}
			emitState(a.cfg.AgentsPath(), adwID)
			return nil
		},
	}
}

func patchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "patch <issue-number> <adw-id> <change-request> [spec-path]",
		Short: "Plan and implement a review change request",
		Args:  cobra.RangeArgs(3, 4),
		RunE: func(cmd *cobra.Command, args []string) error {
			specPath := ""
			if len(args) > 3 {
				specPath = args[3]
			}
			a, adwID, err := newApp("patch", args[1])
			if err != nil {
				return err
			}
			defer a.close()
			if err := a.runtime.Patch(cmd.Context(), args[0], adwID, args[2], specPath); err != nil {
				return err
			}
			emitState(a.cfg.AgentsPath(), adwID)
			return nil
		},
	}
}

func sdlcCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sdlc <workflow> <issue-number> [adw-id]",
		Short: "Run a composite workflow",
		Long: `Run a composite workflow by executing its phases in sequence,
each as a child process sharing one run id.

Workflows: ` + strings.Join(workflow.AvailableWorkflows, ", "),
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			adwID := ""
			if len(args) > 2 {
				adwID = args[2]
			}
			a, adwID, err := newApp("sdlc", adwID)
			if err != nil {
				return err
			}
			defer a.close()
			return a.runtime.Sdlc(cmd.Context(), args[0], args[1], adwID)
		},
	}
}
