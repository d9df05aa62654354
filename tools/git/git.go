// Package git provides the version-control operations the workflow
// pipeline depends on, as thin wrappers over the git CLI.
package git

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// runFunc is the subprocess seam; tests replace it.
type runFunc func(ctx context.Context, args ...string) (string, error)

// Ops executes git commands against a single repository working tree.
// Orchestrators assume exclusive use of the working tree for their
// duration; there is no locking.
type Ops struct {
	repoRoot string
	logger   *slog.Logger
	run      runFunc
}

// NewOps creates a git adapter rooted at the given repository.
func NewOps(repoRoot string, logger *slog.Logger) *Ops {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Ops{repoRoot: repoRoot, logger: logger}
	o.run = o.runGit
	return o
}

// WithRunner overrides the subprocess seam. Used by tests.
func (o *Ops) WithRunner(run func(ctx context.Context, args ...string) (string, error)) *Ops {
	o.run = run
	return o
}

// runGit executes a git command in the repo directory.
func (o *Ops) runGit(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = o.repoRoot

	output, err := cmd.CombinedOutput()
	if err != nil {
		return string(output), fmt.Errorf("%w: %s", err, strings.TrimSpace(string(output)))
	}
	return string(output), nil
}

// IsRepo reports whether the root is inside a git repository.
func (o *Ops) IsRepo() bool {
	cmd := exec.Command("git", "rev-parse", "--git-dir")
	cmd.Dir = o.repoRoot
	return cmd.Run() == nil
}

// CurrentBranch returns the checked-out branch name.
func (o *Ops) CurrentBranch(ctx context.Context) (string, error) {
	out, err := o.run(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// Checkout switches to an existing local branch.
func (o *Ops) Checkout(ctx context.Context, name string) error {
	_, err := o.run(ctx, "checkout", name)
	return err
}

// CheckoutTracking creates a local branch tracking origin/<name>. Used
// to recover a branch recorded in state that only exists remotely.
func (o *Ops) CheckoutTracking(ctx context.Context, name string) error {
	_, err := o.run(ctx, "checkout", "-b", name, "origin/"+name)
	return err
}

// CreateBranch creates and checks out a branch. If the branch already
// exists it is checked out instead.
func (o *Ops) CreateBranch(ctx context.Context, name string) error {
	out, err := o.run(ctx, "checkout", "-b", name)
	if err != nil {
		if strings.Contains(out, "already exists") {
			return o.Checkout(ctx, name)
		}
		return err
	}
	return nil
}

// CommitAll stages everything and commits with the given message. A
// clean working tree is a successful no-op.
func (o *Ops) CommitAll(ctx context.Context, message string) error {
	status, err := o.run(ctx, "status", "--porcelain")
	if err != nil {
		return err
	}
	if strings.TrimSpace(status) == "" {
		return nil
	}
	if _, err := o.run(ctx, "add", "-A"); err != nil {
		return err
	}
	_, err = o.run(ctx, "commit", "-m", message)
	return err
}

// Push pushes the branch to origin, setting the upstream.
func (o *Ops) Push(ctx context.Context, branch string) error {
	_, err := o.run(ctx, "push", "-u", "origin", branch)
	return err
}

// FindExistingBranch scans local and remote branches for one matching
// the issue-and-run naming convention. When adwID is given only a
// branch carrying that run id matches.
func (o *Ops) FindExistingBranch(ctx context.Context, issueNumber, adwID string) (string, bool) {
	out, err := o.run(ctx, "branch", "-a")
	if err != nil {
		return "", false
	}
	for _, line := range strings.Split(out, "\n") {
		branch := strings.TrimSpace(line)
		branch = strings.TrimPrefix(branch, "* ")
		branch = strings.TrimPrefix(branch, "remotes/origin/")
		if branch == "" || !strings.Contains(branch, "-issue-"+issueNumber+"-") {
			continue
		}
		if adwID != "" && !strings.Contains(branch, "-adw-"+adwID+"-") {
			continue
		}
		return branch, true
	}
	return "", false
}

// RemoteURL returns the origin remote URL.
func (o *Ops) RemoteURL(ctx context.Context) (string, error) {
	out, err := o.run(ctx, "remote", "get-url", "origin")
	if err != nil {
		return "", fmt.Errorf("no git remote 'origin' found: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// DiffNameOnly lists files changed relative to the given base ref.
func (o *Ops) DiffNameOnly(ctx context.Context, base string) ([]string, error) {
	out, err := o.run(ctx, "diff", base, "--name-only")
	if err != nil {
		return nil, err
	}
	var files []string
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line != "" {
			files = append(files, line)
		}
	}
	return files, nil
}

// ExtractRepoPath reduces a GitHub remote URL to its owner/repo form.
func ExtractRepoPath(remoteURL string) string {
	path := strings.TrimSpace(remoteURL)
	path = strings.TrimPrefix(path, "https://github.com/")
	if strings.HasPrefix(path, "git@github.com:") {
		path = strings.TrimPrefix(path, "git@github.com:")
	}
	return strings.TrimSuffix(path, ".git")
}
