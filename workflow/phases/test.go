package phases

import (
	"context"
	"log/slog"

	"github.com/c360studio/adw/agent"
	"github.com/c360studio/adw/workflow"
)

const agentTester = "tester"

// Test runs the test suite through the agent. A failing run gets
// exactly one resolution attempt followed by one rerun; a suite that
// still fails after that fails the phase.
func (r *Runtime) Test(ctx context.Context, issueNumber, adwID string) error {
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

	r.Logger.Info("ADW Test starting", slog.String("adw_id", adwID), slog.String("issue", issueNumber))

	planFile, err := r.Ops.EnsurePlanExists(ctx, st, issueNumber)
	if err != nil {
		return r.fail(ctx, issueNumber, adwID, workflow.AgentOps, "No plan found: "+err.Error())
	}

	r.comment(ctx, issueNumber, adwID, workflow.AgentOps, "✅ Starting test phase")

	runTests := func() agent.Response {
		return r.Ops.Agent.InvokeTemplate(ctx, agent.TemplateRequest{
			AgentName: agentTester,
			Command:   "/test",
			Args:      []string{planFile},
			ADWID:     adwID,
		})
	}

	resp := runTests()
	if resp.Success {
		r.comment(ctx, issueNumber, adwID, agentTester, "✅ Tests completed: "+resp.Output)
		return st.Save("test")
	}

	r.Logger.Error("Tests failed", slog.String("output", resp.Output))
	r.comment(ctx, issueNumber, adwID, agentTester, "❌ Tests failed: "+resp.Output)

	resolve := r.Ops.Agent.InvokeTemplate(ctx, agent.TemplateRequest{
		AgentName: agentTester,
		Command:   "/resolve_failed_test",
		Args:      []string{resp.Output},
		ADWID:     adwID,
	})
	if !resolve.Success {
		return r.fail(ctx, issueNumber, adwID, agentTester, "Failed to resolve tests: "+resolve.Output)
	}
	r.comment(ctx, issueNumber, adwID, agentTester, "✅ Resolved failed tests, re-running tests")

	rerun := runTests()
	if !rerun.Success {
		return r.fail(ctx, issueNumber, adwID, agentTester, "Tests still failing: "+rerun.Output)
	}
	r.comment(ctx, issueNumber, adwID, agentTester, "✅ Tests passed: "+rerun.Output)
	return st.Save("test")
}
