// Package phases contains the workflow orchestrators. Each phase drives
// the operations layer through a fixed step sequence, checkpointing run
// state and reporting progress on the tracking issue after every step.
package phases

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/c360studio/adw/state"
	"github.com/c360studio/adw/storage"
	"github.com/c360studio/adw/tools/git"
	"github.com/c360studio/adw/tools/github"
	"github.com/c360studio/adw/workflow"
)

// Tracker is the issue-tracker port the phases report through.
type Tracker interface {
	FetchIssue(ctx context.Context, issueNumber string) (*github.Issue, error)
	PostComment(ctx context.Context, issueNumber, body string) error
	MarkInProgress(ctx context.Context, issueNumber string)
	PRForBranch(ctx context.Context, branch string) (string, bool)
}

// Runtime bundles the collaborators every phase needs.
type Runtime struct {
	Ops      *workflow.Ops
	Tracker  Tracker
	Git      *git.Ops
	Uploader storage.Uploader
	Logger   *slog.Logger
}

// New assembles a phase runtime.
func New(ops *workflow.Ops, tracker Tracker, gitOps *git.Ops, uploader storage.Uploader, logger *slog.Logger) *Runtime {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runtime{Ops: ops, Tracker: tracker, Git: gitOps, Uploader: uploader, Logger: logger}
}

// comment posts a formatted progress comment. Delivery is best-effort;
// a tracker outage never aborts a phase.
func (r *Runtime) comment(ctx context.Context, issueNumber, adwID, agentName, message string) {
	body := r.Ops.FormatIssueMessage(adwID, agentName, message)
	if err := r.Tracker.PostComment(ctx, issueNumber, body); err != nil {
		r.Logger.Warn("Failed to post issue comment", slog.String("error", err.Error()))
	}
}

// commentState posts the current state snapshot as a fenced JSON block.
func (r *Runtime) commentState(ctx context.Context, issueNumber, header string, st *state.State) {
	var buf bytes.Buffer
	if err := st.WriteTo(&buf); err != nil {
		return
	}
	msg := fmt.Sprintf("%s\n```json\n%s```", header, buf.String())
	r.comment(ctx, issueNumber, st.ADWID, workflow.AgentOps, msg)
}

// fail logs the error, posts it to the issue and returns it so the
// command layer exits non-zero.
func (r *Runtime) fail(ctx context.Context, issueNumber, adwID, agentName, message string) error {
	r.Logger.Error(message)
	r.comment(ctx, issueNumber, adwID, agentName, "❌ "+message)
	return fmt.Errorf("%s", message)
}

// loadState resolves the state record for a resuming phase. Phases that
// need prior work fail hard when nothing is found.
func (r *Runtime) loadState(adwID string) (*state.State, error) {
	st, err := state.Load(r.Ops.AgentsDir, adwID, r.Logger)
	if err != nil {
		return nil, fmt.Errorf("no state found for ADW ID %s: %w", adwID, err)
	}
	return st, nil
}

// issueSummaryJSON reduces an issue to the summary form cached in
// state for the pull-request fallback.
func issueSummaryJSON(issue *github.Issue) (json.RawMessage, error) {
	return json.Marshal(issue.Summarize())
}

// finalizeGit pushes the working branch and ensures a pull request
// exists for it. Everything here is best-effort: a push or PR failure
// is logged and reported but never fails the phase.
func (r *Runtime) finalizeGit(ctx context.Context, st *state.State) {
	branch := st.BranchName
	if branch == "" {
		current, err := r.Git.CurrentBranch(ctx)
		if err != nil || current == "main" {
			r.Logger.Error("No branch name in state and current branch is main, skipping git finalization")
			return
		}
		r.Logger.Warn("No branch name in state, using current branch", slog.String("branch", current))
		branch = current
	}

	if err := r.Git.Push(ctx, branch); err != nil {
		r.Logger.Error("Failed to push branch", slog.String("branch", branch), slog.String("error", err.Error()))
		return
	}
	r.Logger.Info("Pushed branch", slog.String("branch", branch))

	if url, ok := r.Tracker.PRForBranch(ctx, branch); ok {
		r.Logger.Info("Found existing PR", slog.String("url", url))
		if st.IssueNumber != "" {
			r.comment(ctx, st.IssueNumber, st.ADWID, workflow.AgentOps, "✅ Pull request: "+url)
		}
		return
	}

	if st.IssueNumber == "" {
		r.Logger.Error("Cannot create PR: no issue number in state")
		return
	}

	// A dead tracker still leaves the cached summary in state.
	issue, err := r.Tracker.FetchIssue(ctx, st.IssueNumber)
	if err != nil {
		r.Logger.Warn("Could not re-fetch issue for PR, using cached summary", slog.String("error", err.Error()))
		issue = nil
	}

	url, err := r.Ops.CreatePullRequest(ctx, branch, issue, st)
	if err != nil {
		r.Logger.Error("Failed to create PR", slog.String("error", err.Error()))
		return
	}
	r.Logger.Info("Created PR", slog.String("url", url))
	r.comment(ctx, st.IssueNumber, st.ADWID, workflow.AgentOps, "✅ Pull request created: "+url)
}
