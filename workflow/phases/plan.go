package phases

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/c360studio/adw/state"
	"github.com/c360studio/adw/workflow"
)

// Plan classifies an issue, creates the working branch, has the agent
// produce a plan document, commits it and opens or updates the pull
// request. The run id may be empty; one is minted then.
func (r *Runtime) Plan(ctx context.Context, issueNumber, adwID string) error {
	adwID, err := r.Ops.EnsureADWID(issueNumber, adwID)
	if err != nil {
		return err
	}
	st, err := state.Load(r.Ops.AgentsDir, adwID, r.Logger)
	if err != nil {
		st, err = state.New(r.Ops.AgentsDir, adwID, r.Logger)
		if err != nil {
			return err
		}
		st.IssueNumber = issueNumber
	}

	r.Logger.Info("ADW Plan starting", slog.String("adw_id", adwID), slog.String("issue", issueNumber))

	issue, err := r.Tracker.FetchIssue(ctx, issueNumber)
	if err != nil {
		r.Logger.Error("Error fetching issue", slog.String("error", err.Error()))
		return err
	}
	if summary, err := issueSummaryJSON(issue); err == nil {
		st.Issue = summary
	}
	r.Tracker.MarkInProgress(ctx, issueNumber)

	r.comment(ctx, issueNumber, adwID, workflow.AgentOps, "✅ Starting planning phase")
	r.commentState(ctx, issueNumber, "🔍 Using state", st)

	class, err := r.Ops.ClassifyIssue(ctx, issue, adwID)
	if err != nil {
		return r.fail(ctx, issueNumber, adwID, workflow.AgentOps, "Error classifying issue: "+err.Error())
	}
	st.IssueClass = class.String()
	if err := st.Save("plan"); err != nil {
		return err
	}
	r.Logger.Info("Issue classified", slog.String("class", class.String()))
	r.comment(ctx, issueNumber, adwID, workflow.AgentOps, "✅ Issue classified as: "+class.String())

	branch, err := r.Ops.CreateOrFindBranch(ctx, issueNumber, issue, st)
	if err != nil {
		return r.fail(ctx, issueNumber, adwID, workflow.AgentOps, "Error resolving branch: "+err.Error())
	}
	r.Logger.Info("Working on branch", slog.String("branch", branch))
	r.comment(ctx, issueNumber, adwID, workflow.AgentOps, "✅ Working on branch: "+branch)

	r.Logger.Info("Building implementation plan")
	r.comment(ctx, issueNumber, adwID, workflow.AgentPlanner, "✅ Building implementation plan")
	planResp := r.Ops.BuildPlan(ctx, issue, class, adwID)
	if !planResp.Success {
		return r.fail(ctx, issueNumber, adwID, workflow.AgentPlanner, "Error building plan: "+planResp.Output)
	}

	planFile := strings.TrimSpace(planResp.Output)
	if planFile == "" {
		return r.fail(ctx, issueNumber, adwID, workflow.AgentOps, "Plan file does not exist: (empty output)")
	}
	planPath := planFile
	if !filepath.IsAbs(planPath) {
		planPath = filepath.Join(r.Ops.RepoRoot, planFile)
	}
	if _, err := os.Stat(planPath); err != nil {
		return r.fail(ctx, issueNumber, adwID, workflow.AgentOps, "Plan file does not exist: "+planFile)
	}
	st.PlanFile = planFile
	if err := st.Save("plan"); err != nil {
		return err
	}
	r.Logger.Info("Plan file created", slog.String("path", planFile))
	r.comment(ctx, issueNumber, adwID, workflow.AgentOps, "✅ Plan file created: "+planFile)

	commitMsg, err := r.Ops.CreateCommit(ctx, workflow.AgentPlanner, issue, class, adwID)
	if err != nil {
		return r.fail(ctx, issueNumber, adwID, workflow.AgentPlanner, "Error creating commit message: "+err.Error())
	}
	if err := r.Git.CommitAll(ctx, commitMsg); err != nil {
		return r.fail(ctx, issueNumber, adwID, workflow.AgentPlanner, "Error committing plan: "+err.Error())
	}
	r.Logger.Info("Committed plan", slog.String("message", commitMsg))
	r.comment(ctx, issueNumber, adwID, workflow.AgentPlanner, "✅ Plan committed")

	r.finalizeGit(ctx, st)

	r.Logger.Info("Planning phase completed successfully")
	r.comment(ctx, issueNumber, adwID, workflow.AgentOps, "✅ Planning phase completed")
	if err := st.Save("plan"); err != nil {
		return err
	}
	r.commentState(ctx, issueNumber, "📋 Final planning state:", st)
	return nil
}
