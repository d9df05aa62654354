package phases

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/adw/agent"
	"github.com/c360studio/adw/state"
	"github.com/c360studio/adw/storage"
	"github.com/c360studio/adw/tools/git"
	"github.com/c360studio/adw/tools/github"
	"github.com/c360studio/adw/workflow"
)

// scriptedInvoker returns queued responses per slash command, in order.
type scriptedInvoker struct {
	queues map[string][]agent.Response
}

func (s *scriptedInvoker) Invoke(ctx context.Context, req agent.PromptRequest) agent.Response {
	return agent.Response{Success: true}
}

func (s *scriptedInvoker) InvokeTemplate(ctx context.Context, req agent.TemplateRequest) agent.Response {
	queue := s.queues[req.Command]
	if len(queue) == 0 {
		return agent.Response{Output: "unexpected call to " + req.Command, Success: false}
	}
	resp := queue[0]
	s.queues[req.Command] = queue[1:]
	return resp
}

func (s *scriptedInvoker) CheckInstalled(ctx context.Context) error { return nil }

// fakeTracker records comments and serves a canned issue.
type fakeTracker struct {
	issue    *github.Issue
	issueErr error
	comments []string
	prURL    string
}

func (f *fakeTracker) FetchIssue(ctx context.Context, issueNumber string) (*github.Issue, error) {
	if f.issueErr != nil {
		return nil, f.issueErr
	}
	return f.issue, nil
}

func (f *fakeTracker) PostComment(ctx context.Context, issueNumber, body string) error {
	f.comments = append(f.comments, body)
	return nil
}

func (f *fakeTracker) MarkInProgress(ctx context.Context, issueNumber string) {}

func (f *fakeTracker) PRForBranch(ctx context.Context, branch string) (string, bool) {
	return f.prURL, f.prURL != ""
}

func (f *fakeTracker) hasComment(substr string) bool {
	for _, c := range f.comments {
		if strings.Contains(c, substr) {
			return true
		}
	}
	return false
}

func testRuntime(t *testing.T, invoker workflow.Invoker, tracker *fakeTracker) *Runtime {
	t.Helper()
	repoRoot := t.TempDir()
	gitOps := git.NewOps(repoRoot, nil)
	ops := workflow.NewOps(invoker, gitOps, t.TempDir(), "specs", repoRoot, nil)
	return New(ops, tracker, gitOps, &storage.R2Uploader{}, nil)
}

// setupTestRepo creates a temporary git repository for phases that
// touch real branches.
func setupTestRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for _, args := range [][]string{
		{"init", "-b", "main"},
		{"config", "user.email", "test@example.com"},
		{"config", "user.name", "Test User"},
		{"commit", "--allow-empty", "-m", "initial"},
	} {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		if err := cmd.Run(); err != nil {
			t.Fatalf("git %v failed: %v", args, err)
		}
	}
	return dir
}

// testRuntimeWithRepo backs the runtime with a real repository so
// branch creation and commits go through git.
func testRuntimeWithRepo(t *testing.T, invoker workflow.Invoker, tracker *fakeTracker) (*Runtime, string) {
	t.Helper()
	repo := setupTestRepo(t)
	gitOps := git.NewOps(repo, nil)
	ops := workflow.NewOps(invoker, gitOps, t.TempDir(), "specs", repo, nil)
	return New(ops, tracker, gitOps, &storage.R2Uploader{}, nil), repo
}

// seedState persists run state carrying a plan so phases skip plan
// discovery.
func seedState(t *testing.T, r *Runtime, adwID string) *state.State {
	t.Helper()
	st, err := state.New(r.Ops.AgentsDir, adwID, nil)
	require.NoError(t, err)
	st.IssueNumber = "42"
	st.PlanFile = "specs/issue-42-adw-" + adwID + "-widget.md"
	require.NoError(t, st.Save("seed"))
	return st
}

func TestPlanPhase(t *testing.T) {
	invoker := &scriptedInvoker{queues: map[string][]agent.Response{
		"/classify_issue":       {{Output: "/feature", Success: true}},
		"/generate_branch_name": {{Output: "feat-issue-42-adw-run00001-widget", Success: true}},
		"/feature":              {{Output: "specs/issue-42-adw-run00001-widget.md", Success: true}},
		"/commit":               {{Output: "feat: plan the widget", Success: true}},
	}}
	tracker := &fakeTracker{issue: &github.Issue{Number: 42, Title: "Add widget", Body: "We need a widget"}}
	r, repo := testRuntimeWithRepo(t, invoker, tracker)

	// The planner reports a repo-relative plan path; it has to exist.
	require.NoError(t, os.MkdirAll(filepath.Join(repo, "specs"), 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(repo, "specs", "issue-42-adw-run00001-widget.md"), []byte("# Plan\n"), 0o644))

	err := r.Plan(context.Background(), "42", "run00001")
	require.NoError(t, err)

	st, err := state.Load(r.Ops.AgentsDir, "run00001", nil)
	require.NoError(t, err)
	assert.Equal(t, "42", st.IssueNumber)
	assert.Equal(t, "/feature", st.IssueClass)
	assert.Equal(t, "feat-issue-42-adw-run00001-widget", st.BranchName)
	assert.Equal(t, "specs/issue-42-adw-run00001-widget.md", st.PlanFile)

	current, err := r.Git.CurrentBranch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "feat-issue-42-adw-run00001-widget", current)

	assert.True(t, tracker.hasComment("✅ Issue classified as: /feature"))
	assert.True(t, tracker.hasComment("✅ Plan file created: specs/issue-42-adw-run00001-widget.md"))
	assert.True(t, tracker.hasComment("✅ Planning phase completed"))
	assert.False(t, tracker.hasComment("❌"))
}

func TestBuildPhase(t *testing.T) {
	invoker := &scriptedInvoker{queues: map[string][]agent.Response{
		"/implement": {{Output: "implemented the widget", Success: true}},
		"/commit":    {{Output: "feat: implement the widget", Success: true}},
	}}
	tracker := &fakeTracker{issue: &github.Issue{Number: 42, Title: "Add widget", Body: "We need a widget"}}
	r, _ := testRuntimeWithRepo(t, invoker, tracker)

	require.NoError(t, r.Git.CreateBranch(context.Background(), "feat-issue-42-adw-run00001-widget"))
	require.NoError(t, r.Git.Checkout(context.Background(), "main"))

	st, err := state.New(r.Ops.AgentsDir, "run00001", nil)
	require.NoError(t, err)
	st.IssueNumber = "42"
	st.IssueClass = "/feature"
	st.BranchName = "feat-issue-42-adw-run00001-widget"
	st.PlanFile = "specs/issue-42-adw-run00001-widget.md"
	require.NoError(t, st.Save("seed"))

	err = r.Build(context.Background(), "42", "run00001")
	require.NoError(t, err)

	current, err := r.Git.CurrentBranch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "feat-issue-42-adw-run00001-widget", current)

	assert.True(t, tracker.hasComment("✅ Solution implemented"))
	assert.True(t, tracker.hasComment("✅ Implementation committed"))
	assert.True(t, tracker.hasComment("✅ Implementation phase completed"))
	assert.False(t, tracker.hasComment("❌"))
}

func TestTestPhasePassesFirstTry(t *testing.T) {
	invoker := &scriptedInvoker{queues: map[string][]agent.Response{
		"/test": {{Output: "all 12 tests passed", Success: true}},
	}}
	tracker := &fakeTracker{}
	r := testRuntime(t, invoker, tracker)
	seedState(t, r, "run00001")

	err := r.Test(context.Background(), "42", "run00001")
	require.NoError(t, err)
	assert.True(t, tracker.hasComment("✅ Tests completed"))
	assert.False(t, tracker.hasComment("❌"))
}

func TestTestPhaseResolvesThenPasses(t *testing.T) {
	invoker := &scriptedInvoker{queues: map[string][]agent.Response{
		"/test": {
			{Output: "2 tests failed", Success: false},
			{Output: "all tests passed", Success: true},
		},
		"/resolve_failed_test": {{Output: "fixed the tests", Success: true}},
	}}
	tracker := &fakeTracker{}
	r := testRuntime(t, invoker, tracker)
	seedState(t, r, "run00001")

	err := r.Test(context.Background(), "42", "run00001")
	require.NoError(t, err)
	assert.True(t, tracker.hasComment("❌ Tests failed"))
	assert.True(t, tracker.hasComment("✅ Resolved failed tests"))
	assert.True(t, tracker.hasComment("✅ Tests passed"))
}

func TestTestPhaseResolutionFails(t *testing.T) {
	invoker := &scriptedInvoker{queues: map[string][]agent.Response{
		"/test":                {{Output: "2 tests failed", Success: false}},
		"/resolve_failed_test": {{Output: "could not fix", Success: false}},
	}}
	tracker := &fakeTracker{}
	r := testRuntime(t, invoker, tracker)
	seedState(t, r, "run00001")

	err := r.Test(context.Background(), "42", "run00001")
	require.Error(t, err)
	assert.True(t, tracker.hasComment("❌ Failed to resolve tests"))
}

func TestTestPhaseStillFailingAfterResolve(t *testing.T) {
	invoker := &scriptedInvoker{queues: map[string][]agent.Response{
		"/test": {
			{Output: "2 tests failed", Success: false},
			{Output: "1 test still failing", Success: false},
		},
		"/resolve_failed_test": {{Output: "attempted a fix", Success: true}},
	}}
	tracker := &fakeTracker{}
	r := testRuntime(t, invoker, tracker)
	seedState(t, r, "run00001")

	err := r.Test(context.Background(), "42", "run00001")
	require.Error(t, err)
	assert.True(t, tracker.hasComment("❌ Tests still failing"))
	// Exactly one resolution attempt: the /test queue is fully drained
	// and no second /resolve_failed_test was requested.
	assert.Empty(t, invoker.queues["/test"])
	assert.Empty(t, invoker.queues["/resolve_failed_test"])
}

func TestReviewPhaseBlockerFails(t *testing.T) {
	reviewJSON := `{"success": true, "review_summary": "found problems",
		"review_issues": [
			{"review_issue_number": 1, "issue_description": "minor nit", "issue_severity": "skippable"},
			{"review_issue_number": 2, "issue_description": "data loss on save", "issue_resolution": "guard the write", "issue_severity": "blocker"}
		]}`
	invoker := &scriptedInvoker{queues: map[string][]agent.Response{
		"/review": {{Output: reviewJSON, Success: true}},
	}}
	tracker := &fakeTracker{}
	r := testRuntime(t, invoker, tracker)
	seedState(t, r, "run00001")

	err := r.Review(context.Background(), "42", "run00001")
	require.Error(t, err)
	assert.True(t, tracker.hasComment("✅ Review completed: found problems"))
	assert.True(t, tracker.hasComment("data loss on save"))
	assert.True(t, tracker.hasComment("1 blocking issue"))
}

func TestReviewPhaseNonBlockingFindings(t *testing.T) {
	reviewJSON := `{"success": true, "review_summary": "mostly fine",
		"review_issues": [{"review_issue_number": 1, "issue_description": "nit", "issue_severity": "tech_debt"}]}`
	invoker := &scriptedInvoker{queues: map[string][]agent.Response{
		"/review": {{Output: reviewJSON, Success: true}},
	}}
	tracker := &fakeTracker{}
	r := testRuntime(t, invoker, tracker)
	seedState(t, r, "run00001")

	err := r.Review(context.Background(), "42", "run00001")
	require.NoError(t, err)
	assert.True(t, tracker.hasComment("mostly fine"))
}

func TestReviewPhaseUnstructuredOutput(t *testing.T) {
	invoker := &scriptedInvoker{queues: map[string][]agent.Response{
		"/review": {{Output: "Everything looks great, ship it.", Success: true}},
	}}
	tracker := &fakeTracker{}
	r := testRuntime(t, invoker, tracker)
	seedState(t, r, "run00001")

	err := r.Review(context.Background(), "42", "run00001")
	require.NoError(t, err)
	assert.True(t, tracker.hasComment("✅ Review completed: Everything looks great"))
}

func TestDocumentPhase(t *testing.T) {
	t.Run("documentation created", func(t *testing.T) {
		invoker := &scriptedInvoker{queues: map[string][]agent.Response{
			"/document": {{Output: `{"success": true, "documentation_created": true, "documentation_path": "docs/widget.md"}`, Success: true}},
		}}
		tracker := &fakeTracker{}
		r := testRuntime(t, invoker, tracker)
		seedState(t, r, "run00001")

		require.NoError(t, r.Document(context.Background(), "42", "run00001"))
		assert.True(t, tracker.hasComment("✅ Documentation created: docs/widget.md"))
	})

	t.Run("nothing to document", func(t *testing.T) {
		invoker := &scriptedInvoker{queues: map[string][]agent.Response{
			"/document": {{Output: `{"success": true, "documentation_created": false}`, Success: true}},
		}}
		tracker := &fakeTracker{}
		r := testRuntime(t, invoker, tracker)
		seedState(t, r, "run00001")

		require.NoError(t, r.Document(context.Background(), "42", "run00001"))
		assert.True(t, tracker.hasComment("nothing new to document"))
	})

	t.Run("structured failure", func(t *testing.T) {
		invoker := &scriptedInvoker{queues: map[string][]agent.Response{
			"/document": {{Output: `{"success": false, "error_message": "docs dir missing"}`, Success: true}},
		}}
		tracker := &fakeTracker{}
		r := testRuntime(t, invoker, tracker)
		seedState(t, r, "run00001")

		err := r.Document(context.Background(), "42", "run00001")
		require.Error(t, err)
		assert.True(t, tracker.hasComment("docs dir missing"))
	})
}

func TestPatchPhase(t *testing.T) {
	invoker := &scriptedInvoker{queues: map[string][]agent.Response{
		"/patch":     {{Output: "specs/patch/fix-save.md", Success: true}},
		"/implement": {{Output: "patched", Success: true}},
	}}
	tracker := &fakeTracker{}
	r := testRuntime(t, invoker, tracker)
	seedState(t, r, "run00001")

	err := r.Patch(context.Background(), "42", "run00001", "guard the write", "specs/issue-42.md")
	require.NoError(t, err)
	assert.True(t, tracker.hasComment("✅ Patch created and implemented: specs/patch/fix-save.md"))
}

func TestPhaseRequiresState(t *testing.T) {
	invoker := &scriptedInvoker{queues: map[string][]agent.Response{}}
	r := testRuntime(t, invoker, &fakeTracker{})

	err := r.Build(context.Background(), "42", "missing01")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no state found")
}

func TestBuildPhaseRequiresBranchAndPlan(t *testing.T) {
	invoker := &scriptedInvoker{queues: map[string][]agent.Response{}}
	tracker := &fakeTracker{}
	r := testRuntime(t, invoker, tracker)

	st, err := state.New(r.Ops.AgentsDir, "run00001", nil)
	require.NoError(t, err)
	st.IssueNumber = "42"
	require.NoError(t, st.Save("seed"))

	err = r.Build(context.Background(), "42", "run00001")
	require.Error(t, err)
	assert.True(t, tracker.hasComment("No branch name in state"))
}

func TestPhaseSequence(t *testing.T) {
	tests := []struct {
		workflow string
		want     []string
	}{
		{"adw_plan", []string{"plan"}},
		{"adw_plan_build", []string{"plan", "build"}},
		{"adw_sdlc", []string{"plan", "build", "test", "review", "document"}},
	}
	for _, tt := range tests {
		seq, ok := PhaseSequence(tt.workflow)
		require.True(t, ok, tt.workflow)
		assert.Equal(t, tt.want, seq)
	}

	_, ok := PhaseSequence("adw_destroy")
	assert.False(t, ok)

	// Every advertised workflow has a sequence.
	for _, name := range workflow.AvailableWorkflows {
		if _, ok := PhaseSequence(name); !ok {
			t.Errorf("workflow %s has no phase sequence", name)
		}
	}
}
