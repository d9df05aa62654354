package phases

import (
	"context"
	"log/slog"

	"github.com/c360studio/adw/workflow"
)

const (
	agentPatchPlanner     = "patch_planner"
	agentPatchImplementor = "patch_implementor"
)

// Patch creates a patch plan from a review change request and
// implements it in one pass. When no spec path is supplied the run's
// spec document is located from state, the diff or the branch name.
func (r *Runtime) Patch(ctx context.Context, issueNumber, adwID, changeRequest, specPath string) error {
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

	r.Logger.Info("ADW Patch starting", slog.String("adw_id", adwID), slog.String("issue", issueNumber))

	if specPath == "" {
		if found, ok := r.Ops.FindSpecFile(ctx, st); ok {
			specPath = found
		}
	}

	r.comment(ctx, issueNumber, adwID, workflow.AgentOps, "✅ Starting patch creation and implementation")

	patchPath, resp := r.Ops.CreateAndImplementPatch(ctx, adwID, changeRequest,
		agentPatchPlanner, agentPatchImplementor, specPath)
	if patchPath == "" || !resp.Success {
		return r.fail(ctx, issueNumber, adwID, workflow.AgentOps, "Patch failed: "+resp.Output)
	}

	r.comment(ctx, issueNumber, adwID, workflow.AgentOps, "✅ Patch created and implemented: "+patchPath)
	return st.Save("patch")
}
