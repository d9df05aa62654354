// Package github wraps the gh CLI for the issue-tracker operations the
// workflow pipeline reports through.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"sort"
	"strings"

	"github.com/c360studio/adw/config"
	"github.com/c360studio/adw/tools/git"
)

// BotIdentifier prefixes every automated issue comment so bot comments
// are distinguishable from human ones.
const BotIdentifier = "[ADW-BOT]"

// User is a GitHub user reference.
type User struct {
	ID    string `json:"id,omitempty"`
	Login string `json:"login"`
	Name  string `json:"name,omitempty"`
	IsBot bool   `json:"is_bot,omitempty"`
}

// Label is an issue label.
type Label struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Color       string `json:"color"`
	Description string `json:"description,omitempty"`
}

// Milestone is an issue milestone.
type Milestone struct {
	ID          string `json:"id"`
	Number      int    `json:"number"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	State       string `json:"state"`
}

// Comment is one issue comment.
type Comment struct {
	ID        string `json:"id"`
	Author    User   `json:"author"`
	Body      string `json:"body"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

// Issue is a fully hydrated GitHub issue.
type Issue struct {
	Number    int        `json:"number"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	State     string     `json:"state"`
	Author    User       `json:"author"`
	Assignees []User     `json:"assignees"`
	Labels    []Label    `json:"labels"`
	Milestone *Milestone `json:"milestone,omitempty"`
	Comments  []Comment  `json:"comments"`
	CreatedAt string     `json:"createdAt"`
	UpdatedAt string     `json:"updatedAt"`
	ClosedAt  string     `json:"closedAt,omitempty"`
	URL       string     `json:"url"`
}

// ListItem is the reduced shape returned by issue listings.
type ListItem struct {
	Number    int     `json:"number"`
	Title     string  `json:"title"`
	Body      string  `json:"body"`
	Labels    []Label `json:"labels"`
	CreatedAt string  `json:"createdAt"`
	UpdatedAt string  `json:"updatedAt"`
}

// Summary is the minimal issue form forwarded to the agent and cached
// in run state.
type Summary struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	Body   string `json:"body"`
}

// Summarize reduces an issue to the minimal form.
func (i *Issue) Summarize() Summary {
	return Summary{Number: i.Number, Title: i.Title, Body: i.Body}
}

// runFunc is the subprocess seam; tests replace it.
type runFunc func(ctx context.Context, env []string, args ...string) (string, error)

// Client executes gh commands against the repository's origin remote.
type Client struct {
	git    *git.Ops
	env    config.EnvironmentConfig
	logger *slog.Logger
	run    runFunc

	repoPath string
}

// NewClient creates a gh adapter. The environment snapshot supplies
// GH_TOKEN; when absent the gh CLI's own authentication is used.
func NewClient(gitOps *git.Ops, env config.EnvironmentConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{git: gitOps, env: env, logger: logger}
	c.run = c.runGH
	return c
}

// WithRunner overrides the subprocess seam. Used by tests.
func (c *Client) WithRunner(run func(ctx context.Context, env []string, args ...string) (string, error)) *Client {
	c.run = run
	return c
}

// ghEnv builds the restricted environment for gh invocations. Only the
// token and PATH are forwarded; nil means inherit (no token captured).
func (c *Client) ghEnv() []string {
	token := c.env.Get("GH_TOKEN")
	if token == "" {
		return nil
	}
	return []string{"GH_TOKEN=" + token, "PATH=" + c.env.Get("PATH")}
}

func (c *Client) runGH(ctx context.Context, env []string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "gh", args...)
	if env != nil {
		cmd.Env = env
	}
	output, err := cmd.CombinedOutput()
	if err != nil {
		return string(output), fmt.Errorf("%w: %s", err, strings.TrimSpace(string(output)))
	}
	return string(output), nil
}

// RepoPath resolves and caches the owner/repo slug from the origin
// remote.
func (c *Client) RepoPath(ctx context.Context) (string, error) {
	if c.repoPath != "" {
		return c.repoPath, nil
	}
	remoteURL, err := c.git.RemoteURL(ctx)
	if err != nil {
		return "", err
	}
	c.repoPath = git.ExtractRepoPath(remoteURL)
	return c.repoPath, nil
}

const issueViewFields = "number,title,body,state,author,assignees,labels,milestone,comments,createdAt,updatedAt,closedAt,url"

// FetchIssue retrieves the full issue record.
func (c *Client) FetchIssue(ctx context.Context, issueNumber string) (*Issue, error) {
	repoPath, err := c.RepoPath(ctx)
	if err != nil {
		return nil, err
	}

	out, err := c.run(ctx, c.ghEnv(), "issue", "view", issueNumber, "-R", repoPath, "--json", issueViewFields)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch issue %s: %w", issueNumber, err)
	}

	var issue Issue
	if err := json.Unmarshal([]byte(out), &issue); err != nil {
		return nil, fmt.Errorf("failed to decode issue %s: %w", issueNumber, err)
	}
	return &issue, nil
}

// PostComment posts a progress comment on the issue. Callers treat
// delivery as fire-and-forget; a failure never rolls back state.
func (c *Client) PostComment(ctx context.Context, issueNumber, body string) error {
	repoPath, err := c.RepoPath(ctx)
	if err != nil {
		return err
	}
	_, err = c.run(ctx, c.ghEnv(), "issue", "comment", issueNumber, "-R", repoPath, "--body", body)
	if err != nil {
		return fmt.Errorf("failed to comment on issue %s: %w", issueNumber, err)
	}
	return nil
}

// MarkInProgress labels the issue and assigns it to the bot account.
// Both operations are best-effort.
func (c *Client) MarkInProgress(ctx context.Context, issueNumber string) {
	repoPath, err := c.RepoPath(ctx)
	if err != nil {
		c.logger.Warn("Cannot mark issue in progress", slog.String("error", err.Error()))
		return
	}
	if _, err := c.run(ctx, c.ghEnv(), "issue", "edit", issueNumber, "-R", repoPath, "--add-label", "in_progress"); err != nil {
		c.logger.Warn("Failed to add in_progress label", slog.String("issue", issueNumber), slog.String("error", err.Error()))
	}
	if _, err := c.run(ctx, c.ghEnv(), "issue", "edit", issueNumber, "-R", repoPath, "--add-assignee", "@me"); err != nil {
		c.logger.Warn("Failed to self-assign issue", slog.String("issue", issueNumber), slog.String("error", err.Error()))
	}
}

// FetchOpenIssues lists open issues. Failures degrade to an empty list.
func (c *Client) FetchOpenIssues(ctx context.Context) []ListItem {
	repoPath, err := c.RepoPath(ctx)
	if err != nil {
		return nil
	}
	out, err := c.run(ctx, c.ghEnv(), "issue", "list", "--repo", repoPath,
		"--state", "open", "--json", "number,title,body,labels,createdAt,updatedAt", "--limit", "1000")
	if err != nil {
		return nil
	}
	var items []ListItem
	if err := json.Unmarshal([]byte(out), &items); err != nil {
		return nil
	}
	return items
}

// FetchIssueComments returns an issue's comments sorted oldest-first.
// Failures degrade to an empty list.
func (c *Client) FetchIssueComments(ctx context.Context, issueNumber string) []Comment {
	repoPath, err := c.RepoPath(ctx)
	if err != nil {
		return nil
	}
	out, err := c.run(ctx, c.ghEnv(), "issue", "view", issueNumber, "--repo", repoPath, "--json", "comments")
	if err != nil {
		return nil
	}
	var payload struct {
		Comments []Comment `json:"comments"`
	}
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		return nil
	}
	sort.Slice(payload.Comments, func(i, j int) bool {
		return payload.Comments[i].CreatedAt < payload.Comments[j].CreatedAt
	})
	return payload.Comments
}

// FindKeywordComment returns the newest human comment containing the
// keyword. Bot comments are skipped so the pipeline never reacts to
// its own output.
func FindKeywordComment(keyword string, issue *Issue) *Comment {
	comments := make([]Comment, len(issue.Comments))
	copy(comments, issue.Comments)
	sort.Slice(comments, func(i, j int) bool {
		return comments[i].CreatedAt > comments[j].CreatedAt
	})
	for i := range comments {
		if strings.Contains(comments[i].Body, BotIdentifier) {
			continue
		}
		if strings.Contains(comments[i].Body, keyword) {
			return &comments[i]
		}
	}
	return nil
}

// PRForBranch returns the URL of an open pull request for the branch,
// if one exists.
func (c *Client) PRForBranch(ctx context.Context, branch string) (string, bool) {
	repoPath, err := c.RepoPath(ctx)
	if err != nil {
		return "", false
	}
	out, err := c.run(ctx, c.ghEnv(), "pr", "list", "--repo", repoPath, "--head", branch, "--json", "url")
	if err != nil {
		return "", false
	}
	var prs []struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal([]byte(out), &prs); err != nil || len(prs) == 0 {
		return "", false
	}
	return prs[0].URL, true
}
