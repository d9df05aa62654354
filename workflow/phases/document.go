package phases

import (
	"context"
	"log/slog"

	"github.com/c360studio/adw/agent"
	"github.com/c360studio/adw/workflow"
)

const agentDocumenter = "documenter"

// Document runs the documentation agent against the plan and reports
// what it produced.
func (r *Runtime) Document(ctx context.Context, issueNumber, adwID string) error {
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

	r.Logger.Info("ADW Document starting", slog.String("adw_id", adwID), slog.String("issue", issueNumber))

	planFile, err := r.Ops.EnsurePlanExists(ctx, st, issueNumber)
	if err != nil {
		return r.fail(ctx, issueNumber, adwID, workflow.AgentOps, "No plan found: "+err.Error())
	}

	r.comment(ctx, issueNumber, adwID, workflow.AgentOps, "✅ Starting documentation phase")

	resp := r.Ops.Agent.InvokeTemplate(ctx, agent.TemplateRequest{
		AgentName: agentDocumenter,
		Command:   "/document",
		Args:      []string{planFile},
		ADWID:     adwID,
	})
	if !resp.Success {
		return r.fail(ctx, issueNumber, adwID, agentDocumenter, "Documentation failed: "+resp.Output)
	}

	var result workflow.DocumentationResult
	if err := workflow.ParseJSONResponse(resp.Output, &result); err != nil {
		r.comment(ctx, issueNumber, adwID, agentDocumenter, "✅ Documentation completed: "+resp.Output)
		return st.Save("document")
	}

	switch {
	case result.DocumentationCreated && result.DocumentationPath != "":
		r.comment(ctx, issueNumber, adwID, agentDocumenter, "✅ Documentation created: "+result.DocumentationPath)
	case result.Success:
		r.comment(ctx, issueNumber, adwID, agentDocumenter, "✅ Documentation completed, nothing new to document")
	default:
		return r.fail(ctx, issueNumber, adwID, agentDocumenter, "Documentation failed: "+result.ErrorMessage)
	}
	return st.Save("document")
}
