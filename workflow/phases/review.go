package phases

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/c360studio/adw/agent"
	"github.com/c360studio/adw/storage"
	"github.com/c360studio/adw/workflow"
)

const agentReviewer = "reviewer"

// Review runs the review agent against the plan. When the agent
// returns a structured result, findings are posted with their uploaded
// screenshots and any blocker fails the phase; unstructured output is
// posted as-is.
func (r *Runtime) Review(ctx context.Context, issueNumber, adwID string) error {
	adwID, err := r.Ops.EnsureADWID(issueNumber, adwID)
	if err != nil {
		return err
	}
	st, err := r.loadState(adwID)
	if err != nil {
		return err
	}
	if st.IssueNumber != "" {
		issueNumber = st.IssueNumber
	}

	r.Logger.Info("ADW Review starting", slog.String("adw_id", adwID), slog.String("issue", issueNumber))

	planFile, err := r.Ops.EnsurePlanExists(ctx, st, issueNumber)
	if err != nil {
		return r.fail(ctx, issueNumber, adwID, workflow.AgentOps, "No plan found: "+err.Error())
	}

	r.comment(ctx, issueNumber, adwID, workflow.AgentOps, "✅ Starting review phase")

	resp := r.Ops.Agent.InvokeTemplate(ctx, agent.TemplateRequest{
		AgentName: agentReviewer,
		Command:   "/review",
		Args:      []string{planFile},
		ADWID:     adwID,
	})
	if !resp.Success {
		return r.fail(ctx, issueNumber, adwID, agentReviewer, "Review failed: "+resp.Output)
	}

	var result workflow.ReviewResult
	if err := workflow.ParseJSONResponse(resp.Output, &result); err != nil {
		// Free-form review output is still a completed review.
		r.Logger.Warn("Review output is not structured JSON", slog.String("error", err.Error()))
		r.comment(ctx, issueNumber, adwID, agentReviewer, "✅ Review completed: "+resp.Output)
		return st.Save("review")
	}

	urls := storage.UploadScreenshots(ctx, r.Uploader, result.Screenshots, adwID, r.Logger)
	for i := range result.Issues {
		if url, ok := urls[result.Issues[i].ScreenshotPath]; ok {
			result.Issues[i].ScreenshotURL = url
		}
	}

	r.comment(ctx, issueNumber, adwID, agentReviewer, "✅ Review completed: "+result.Summary)
	for _, finding := range result.Issues {
		r.comment(ctx, issueNumber, adwID, agentReviewer, formatReviewFinding(finding))
	}

	if err := st.Save("review"); err != nil {
		return err
	}

	if blockers := result.Blockers(); len(blockers) > 0 {
		return r.fail(ctx, issueNumber, adwID, agentReviewer,
			fmt.Sprintf("Review found %d blocking issue(s)", len(blockers)))
	}
	return nil
}

func formatReviewFinding(finding workflow.ReviewIssue) string {
	var b strings.Builder
	icon := "⚠️"
	if finding.Severity == workflow.SeverityBlocker {
		icon = "❌"
	}
	fmt.Fprintf(&b, "%s Review issue #%d (%s): %s", icon, finding.Number, finding.Severity, finding.Description)
	if finding.Resolution != "" {
		fmt.Fprintf(&b, "\nProposed resolution: %s", finding.Resolution)
	}
	if finding.ScreenshotURL != "" {
		fmt.Fprintf(&b, "\n![screenshot](%s)", finding.ScreenshotURL)
	}
	return b.String()
}
