package phases

import (
	"context"
	"log/slog"

	"github.com/c360studio/adw/state"
	"github.com/c360studio/adw/tools/github"
	"github.com/c360studio/adw/workflow"
)

// Build implements the plan created by a prior planning run. It
// requires existing state carrying both the branch and the plan file;
// a run without them is a usage error, not something to recover from.
func (r *Runtime) Build(ctx context.Context, issueNumber, adwID string) error {
	st, err := r.loadState(adwID)
	if err != nil {
		r.Logger.Error("Run the plan phase first to create the plan and state",
			slog.String("adw_id", adwID))
		return err
	}
	if st.IssueNumber != "" {
		issueNumber = st.IssueNumber
	}

	r.Logger.Info("ADW Build starting", slog.String("adw_id", adwID), slog.String("issue", issueNumber))
	r.commentState(ctx, issueNumber, "🔍 Found existing state - resuming build", st)

	if st.BranchName == "" {
		return r.fail(ctx, issueNumber, adwID, workflow.AgentOps,
			"No branch name in state - run the plan phase first")
	}
	if st.PlanFile == "" {
		return r.fail(ctx, issueNumber, adwID, workflow.AgentOps,
			"No plan file in state - run the plan phase first")
	}

	if err := r.Git.Checkout(ctx, st.BranchName); err != nil {
		return r.fail(ctx, issueNumber, adwID, workflow.AgentOps,
			"Failed to checkout branch "+st.BranchName)
	}
	r.Logger.Info("Checked out branch", slog.String("branch", st.BranchName))
	r.Logger.Info("Using plan file", slog.String("path", st.PlanFile))

	r.comment(ctx, issueNumber, adwID, workflow.AgentOps, "✅ Starting implementation phase")
	r.Logger.Info("Implementing solution")
	r.comment(ctx, issueNumber, adwID, workflow.AgentImplementor, "✅ Implementing solution")

	implResp := r.Ops.ImplementPlan(ctx, st.PlanFile, adwID, "")
	if !implResp.Success {
		return r.fail(ctx, issueNumber, adwID, workflow.AgentImplementor,
			"Error implementing solution: "+implResp.Output)
	}
	r.Logger.Debug("Implementation response", slog.String("output", implResp.Output))
	r.comment(ctx, issueNumber, adwID, workflow.AgentImplementor, "✅ Solution implemented")

	r.Logger.Info("Fetching issue data for commit message")
	issue, err := r.Tracker.FetchIssue(ctx, issueNumber)
	if err != nil {
		r.Logger.Error("Error fetching issue", slog.String("issue", issueNumber), slog.String("error", err.Error()))
		issue = nil
	}

	class := r.resolveIssueClass(ctx, st, issue)

	r.Logger.Info("Creating implementation commit")
	commitMsg, err := r.Ops.CreateCommit(ctx, workflow.AgentImplementor, issue, class, adwID)
	if err != nil {
		return r.fail(ctx, issueNumber, adwID, workflow.AgentImplementor,
			"Error creating commit message: "+err.Error())
	}
	if err := r.Git.CommitAll(ctx, commitMsg); err != nil {
		return r.fail(ctx, issueNumber, adwID, workflow.AgentImplementor,
			"Error committing implementation: "+err.Error())
	}
	r.Logger.Info("Committed implementation", slog.String("message", commitMsg))
	r.comment(ctx, issueNumber, adwID, workflow.AgentImplementor, "✅ Implementation committed")

	r.finalizeGit(ctx, st)

	r.Logger.Info("Implementation phase completed successfully")
	r.comment(ctx, issueNumber, adwID, workflow.AgentOps, "✅ Implementation phase completed")
	return st.Save("build")
}

// resolveIssueClass prefers the classification cached in state and
// falls back to re-classifying, defaulting to /feature when even that
// fails. Commit-message generation should never be the step that kills
// a build.
func (r *Runtime) resolveIssueClass(ctx context.Context, st *state.State, issue *github.Issue) workflow.IssueClass {
	if st.IssueClass != "" {
		return workflow.IssueClass(st.IssueClass)
	}

	r.Logger.Info("No issue classification in state, classifying now")
	if issue == nil {
		r.Logger.Warn("Cannot classify without issue data, defaulting to /feature")
		return workflow.IssueClassFeature
	}

	class, err := r.Ops.ClassifyIssue(ctx, issue, st.ADWID)
	if err != nil {
		r.Logger.Warn("Classification failed, defaulting to /feature", slog.String("error", err.Error()))
		return workflow.IssueClassFeature
	}
	st.IssueClass = class.String()
	if err := st.Save("build"); err != nil {
		r.Logger.Warn("Failed to save classification", slog.String("error", err.Error()))
	}
	return class
}
