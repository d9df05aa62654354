package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"

	"github.com/c360studio/adw/agent"
	"github.com/c360studio/adw/state"
	"github.com/c360studio/adw/tools/git"
	"github.com/c360studio/adw/tools/github"
)

// Agent role names used for logging, prompt files and state isolation.
const (
	AgentPlanner         = "sdlc_planner"
	AgentImplementor     = "sdlc_implementor"
	AgentClassifier      = "issue_classifier"
	AgentBranchGenerator = "branch_generator"
	AgentPRCreator       = "pr_creator"
	AgentOps             = "ops"
)

// Sentinel errors for workflow operations.
var (
	ErrClassificationRejected = errors.New("no command selected")
	ErrClassificationInvalid  = errors.New("invalid command selected")
	ErrNoPlanFound            = errors.New("no plan found")
	ErrInvalidPatchPath       = errors.New("invalid patch plan path")
)

// Invoker is the agent-gateway port the operations layer composes.
type Invoker interface {
	Invoke(ctx context.Context, req agent.PromptRequest) agent.Response
	InvokeTemplate(ctx context.Context, req agent.TemplateRequest) agent.Response
	CheckInstalled(ctx context.Context) error
}

// Ops turns gateway calls into semantic workflow actions and interprets
// the agent's textual output into typed results.
type Ops struct {
	Agent     Invoker
	Git       *git.Ops
	AgentsDir string
	SpecsDir  string
	RepoRoot  string
	BotID     string
	Logger    *slog.Logger
}

// NewOps wires an operations layer over its collaborators.
func NewOps(invoker Invoker, gitOps *git.Ops, agentsDir, specsDir, repoRoot string, logger *slog.Logger) *Ops {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ops{
		Agent:     invoker,
		Git:       gitOps,
		AgentsDir: agentsDir,
		SpecsDir:  specsDir,
		RepoRoot:  repoRoot,
		BotID:     github.BotIdentifier,
		Logger:    logger,
	}
}

// FormatIssueMessage builds a bot-attributable progress comment:
// [ADW-BOT] {adw_id}_{agent}: message
func (o *Ops) FormatIssueMessage(adwID, agentName, message string) string {
	return fmt.Sprintf("%s %s_%s: %s", o.BotID, adwID, agentName, message)
}

// FormatIssueMessageWithSession additionally attributes the agent
// session that produced the message.
func (o *Ops) FormatIssueMessageWithSession(adwID, agentName, sessionID, message string) string {
	if sessionID == "" {
		return o.FormatIssueMessage(adwID, agentName, message)
	}
	return fmt.Sprintf("%s %s_%s_%s: %s", o.BotID, adwID, agentName, sessionID, message)
}

// minimalIssueJSON reduces an issue to the fields the agent templates
// need. A nil issue renders as an empty object.
func minimalIssueJSON(issue *github.Issue) string {
	if issue == nil {
		return "{}"
	}
	data, err := json.Marshal(issue.Summarize())
	if err != nil {
		return "{}"
	}
	return string(data)
}

var classificationToken = regexp.MustCompile(`(/chore|/bug|/feature|0)`)

// ClassifyIssue asks the classifier template to sort the issue into
// the closed class set. The sentinel "0" means the agent declined;
// anything else outside the set is an invalid classification.
func (o *Ops) ClassifyIssue(ctx context.Context, issue *github.Issue, adwID string) (IssueClass, error) {
	o.Logger.Debug("Classifying issue", slog.String("title", issue.Title))

	response := o.Agent.InvokeTemplate(ctx, agent.TemplateRequest{
		AgentName: AgentClassifier,
		Command:   "/classify_issue",
		Args:      []string{minimalIssueJSON(issue)},
		ADWID:     adwID,
	})
	if !response.Success {
		return "", errors.New(response.Output)
	}

	output := strings.TrimSpace(response.Output)
	token := output
	if m := classificationToken.FindString(output); m != "" {
		token = m
	}
	if token == classificationReject {
		return "", fmt.Errorf("%w: %s", ErrClassificationRejected, response.Output)
	}
	class := IssueClass(token)
	if !class.IsValid() {
		return "", fmt.Errorf("%w: %s", ErrClassificationInvalid, response.Output)
	}
	return class, nil
}

// GenerateBranchName asks the agent for a branch name following the
// issue-and-run naming convention. The shape is left to git to reject.
func (o *Ops) GenerateBranchName(ctx context.Context, issue *github.Issue, class IssueClass, adwID string) (string, error) {
	response := o.Agent.InvokeTemplate(ctx, agent.TemplateRequest{
		AgentName: AgentBranchGenerator,
		Command:   "/generate_branch_name",
		Args:      []string{class.Slug(), adwID, minimalIssueJSON(issue)},
		ADWID:     adwID,
	})
	if !response.Success {
		return "", errors.New(response.Output)
	}
	return strings.TrimSpace(response.Output), nil
}

// BuildPlan runs the planning template matching the issue class. By
// convention the successful output is the path of the generated plan
// document; the phase validates that.
func (o *Ops) BuildPlan(ctx context.Context, issue *github.Issue, class IssueClass, adwID string) agent.Response {
	return o.Agent.InvokeTemplate(ctx, agent.TemplateRequest{
		AgentName: AgentPlanner,
		Command:   class.String(),
		Args:      []string{fmt.Sprintf("%d", issue.Number), adwID, minimalIssueJSON(issue)},
		ADWID:     adwID,
	})
}

// ImplementPlan runs the implementation template against a plan file.
func (o *Ops) ImplementPlan(ctx context.Context, planFile, adwID, agentName string) agent.Response {
	if agentName == "" {
		agentName = AgentImplementor
	}
	return o.Agent.InvokeTemplate(ctx, agent.TemplateRequest{
		AgentName: agentName,
		Command:   "/implement",
		Args:      []string{planFile},
		ADWID:     adwID,
	})
}

// CreateCommit asks the agent for a commit message describing the work
// the named agent just did.
func (o *Ops) CreateCommit(ctx context.Context, agentName string, issue *github.Issue, class IssueClass, adwID string) (string, error) {
	response := o.Agent.InvokeTemplate(ctx, agent.TemplateRequest{
		AgentName: agentName + "_committer",
		Command:   "/commit",
		Args:      []string{agentName, class.Slug(), minimalIssueJSON(issue)},
		ADWID:     adwID,
	})
	if !response.Success {
		return "", errors.New(response.Output)
	}
	return strings.TrimSpace(response.Output), nil
}

// CreatePullRequest asks the agent to open a pull request for the
// branch. When no live issue is supplied the summary cached in state
// is used instead.
func (o *Ops) CreatePullRequest(ctx context.Context, branch string, issue *github.Issue, st *state.State) (string, error) {
	planFile := st.PlanFile
	if planFile == "" {
		planFile = "No plan file (test run)"
	}

	issueJSON := "{}"
	if issue != nil {
		issueJSON = minimalIssueJSON(issue)
	} else if len(st.Issue) > 0 {
		issueJSON = string(st.Issue)
	}

	response := o.Agent.InvokeTemplate(ctx, agent.TemplateRequest{
		AgentName: AgentPRCreator,
		Command:   "/pull_request",
		Args:      []string{branch, issueJSON, planFile, st.ADWID},
		ADWID:     st.ADWID,
	})
	if !response.Success {
		return "", errors.New(response.Output)
	}
	return strings.TrimSpace(response.Output), nil
}

// CreateAndImplementPatch requests a patch plan for a review change
// request and immediately implements it. The returned plan path must
// lie under the patch-plans directory with the conventional extension;
// anything else is rejected as invalid output.
func (o *Ops) CreateAndImplementPatch(ctx context.Context, adwID, changeRequest, plannerName, implementorName, specPath string) (string, agent.Response) {
	args := []string{adwID, changeRequest, specPath, plannerName}
	response := o.Agent.InvokeTemplate(ctx, agent.TemplateRequest{
		AgentName: plannerName,
		Command:   "/patch",
		Args:      args,
		ADWID:     adwID,
	})
	if !response.Success {
		return "", agent.Response{
			Output:    fmt.Sprintf("Failed to create patch plan: %s", response.Output),
			Success:   false,
			SessionID: response.SessionID,
		}
	}

	patchPath := strings.TrimSpace(response.Output)
	patchPrefix := o.SpecsDir + "/patch/"
	if !strings.HasPrefix(patchPath, patchPrefix) || !strings.HasSuffix(patchPath, ".md") {
		return "", agent.Response{
			Output:    fmt.Sprintf("%v: %s", ErrInvalidPatchPath, patchPath),
			Success:   false,
			SessionID: response.SessionID,
		}
	}

	return patchPath, o.ImplementPlan(ctx, patchPath, adwID, implementorName)
}

// ExtractADWInfo classifies free text (usually an issue comment) into
// a workflow name and optional run id. Unrecognized output yields
// empty values, never an error.
func (o *Ops) ExtractADWInfo(ctx context.Context, text, tempADWID string) (string, string) {
	response := o.Agent.InvokeTemplate(ctx, agent.TemplateRequest{
		AgentName: "adw_classifier",
		Command:   "/classify_adw",
		Args:      []string{text},
		ADWID:     tempADWID,
	})
	if !response.Success {
		return "", ""
	}

	var payload struct {
		ADWSlashCommand string `json:"adw_slash_command"`
		ADWID           string `json:"adw_id"`
	}
	if err := ParseJSONResponse(response.Output, &payload); err != nil {
		return "", ""
	}

	workflowName := strings.TrimPrefix(payload.ADWSlashCommand, "/")
	for _, known := range AvailableWorkflows {
		if workflowName == known {
			return workflowName, payload.ADWID
		}
	}
	return "", ""
}

// MintADWID generates a fresh opaque run identifier.
func MintADWID() string {
	return uuid.New().String()[:8]
}

// EnsureADWID resolves the run id for a phase invocation: reuse an
// existing run when state for the supplied id is found, otherwise
// create fresh state (under the supplied id, or a newly minted one).
// Idempotent: two calls with the same explicit id share one record.
func (o *Ops) EnsureADWID(issueNumber, adwID string) (string, error) {
	if adwID != "" {
		if _, err := state.Load(o.AgentsDir, adwID, o.Logger); err == nil {
			o.Logger.Info("Found existing state", slog.String("adw_id", adwID))
			return adwID, nil
		}
		st, err := state.New(o.AgentsDir, adwID, o.Logger)
		if err != nil {
			return "", err
		}
		st.IssueNumber = issueNumber
		if err := st.Save("ensure_adw_id"); err != nil {
			return "", err
		}
		return adwID, nil
	}

	newID := MintADWID()
	st, err := state.New(o.AgentsDir, newID, o.Logger)
	if err != nil {
		return "", err
	}
	st.IssueNumber = issueNumber
	if err := st.Save("ensure_adw_id"); err != nil {
		return "", err
	}
	o.Logger.Info("Created new ADW ID and state", slog.String("adw_id", newID))
	return newID, nil
}

// EnsurePlanExists returns the plan document for a run, preferring the
// path cached in state and falling back to inference from the branch
// naming convention plus a glob under the specs directory. Phases that
// need a plan must treat an error here as fatal.
func (o *Ops) EnsurePlanExists(ctx context.Context, st *state.State, issueNumber string) (string, error) {
	if st.PlanFile != "" {
		return st.PlanFile, nil
	}

	branch, err := o.Git.CurrentBranch(ctx)
	if err == nil && strings.Contains(branch, "-"+issueNumber+"-") {
		pattern := filepath.Join(o.RepoRoot, o.SpecsDir, "*"+issueNumber+"*.md")
		if plans, err := doublestar.FilepathGlob(pattern); err == nil && len(plans) > 0 {
			return plans[0], nil
		}
	}

	return "", fmt.Errorf("%w for issue %s: run adw_plan first", ErrNoPlanFound, issueNumber)
}

// CreateOrFindBranch resolves the working branch for a run. Resolution
// order: the branch cached in state (checked out only when not already
// current, recovering via the remote-tracking ref when a local
// checkout fails), then an existing branch matching the naming
// convention, then a freshly generated one. Each tier persists state
// on success.
func (o *Ops) CreateOrFindBranch(ctx context.Context, issueNumber string, issue *github.Issue, st *state.State) (string, error) {
	if st.BranchName != "" {
		o.Logger.Info("Found branch in state", slog.String("branch", st.BranchName))
		current, err := o.Git.CurrentBranch(ctx)
		if err != nil {
			return "", err
		}
		if current != st.BranchName {
			if err := o.Git.Checkout(ctx, st.BranchName); err != nil {
				if err := o.Git.CheckoutTracking(ctx, st.BranchName); err != nil {
					return "", fmt.Errorf("failed to checkout branch %s: %w", st.BranchName, err)
				}
			}
		}
		return st.BranchName, nil
	}

	if existing, ok := o.Git.FindExistingBranch(ctx, issueNumber, st.ADWID); ok {
		o.Logger.Info("Found existing branch", slog.String("branch", existing))
		if err := o.Git.Checkout(ctx, existing); err != nil {
			return "", fmt.Errorf("failed to checkout branch %s: %w", existing, err)
		}
		st.BranchName = existing
		if err := st.Save("create_or_find_branch"); err != nil {
			return "", err
		}
		return existing, nil
	}

	o.Logger.Info("No existing branch found, creating new one")
	class := IssueClass(st.IssueClass)
	if !class.IsValid() {
		var err error
		class, err = o.ClassifyIssue(ctx, issue, st.ADWID)
		if err != nil {
			return "", fmt.Errorf("failed to classify issue: %w", err)
		}
		st.IssueClass = class.String()
	}

	name, err := o.GenerateBranchName(ctx, issue, class, st.ADWID)
	if err != nil {
		return "", fmt.Errorf("failed to generate branch name: %w", err)
	}
	if err := o.Git.CreateBranch(ctx, name); err != nil {
		return "", fmt.Errorf("failed to create branch: %w", err)
	}

	st.BranchName = name
	if err := st.Save("create_or_find_branch"); err != nil {
		return "", err
	}
	o.Logger.Info("Created and checked out new branch", slog.String("branch", name))
	return name, nil
}

var issueBranchPattern = regexp.MustCompile(`issue-(\d+)`)

// FindSpecFile locates the spec document a patch should extend: the
// plan cached in state when it still exists, then the diff against
// origin/main, then a glob derived from the branch name.
func (o *Ops) FindSpecFile(ctx context.Context, st *state.State) (string, bool) {
	if st.PlanFile != "" {
		planPath := st.PlanFile
		if !filepath.IsAbs(planPath) {
			planPath = filepath.Join(o.RepoRoot, st.PlanFile)
		}
		if _, err := os.Stat(planPath); err == nil {
			o.Logger.Info("Using spec file from state", slog.String("path", st.PlanFile))
			return st.PlanFile, true
		}
	}

	o.Logger.Info("Looking for spec file in git diff")
	if files, err := o.Git.DiffNameOnly(ctx, "origin/main"); err == nil {
		for _, f := range files {
			if strings.HasPrefix(f, o.SpecsDir+"/") && strings.HasSuffix(f, ".md") {
				o.Logger.Info("Found spec file", slog.String("path", f))
				return f, true
			}
		}
	}

	if m := issueBranchPattern.FindStringSubmatch(st.BranchName); m != nil {
		pattern := filepath.Join(o.RepoRoot, o.SpecsDir,
			fmt.Sprintf("issue-%s-adw-%s*.md", m[1], st.ADWID))
		if files, err := doublestar.FilepathGlob(pattern); err == nil && len(files) > 0 {
			return files[0], true
		}
	}

	o.Logger.Warn("No spec file found")
	return "", false
}
