// Package git provides an interface for git operations.
package git

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Draidel/ClaudeMix/internal/exec"
)

// ExecRunner implements Runner on top of an exec.CommandRunner.
type ExecRunner struct {
	dir string
	cmd exec.CommandRunner
}

// NewRunner creates a new git runner for the repository at the given path.
func NewRunner(repoPath string) *ExecRunner {
	return NewRunnerWith(repoPath, exec.NewRunner())
}

// NewRunnerWith creates a git runner that executes through cmd.
func NewRunnerWith(repoPath string, cmd exec.CommandRunner) *ExecRunner {
	return &ExecRunner{dir: repoPath, cmd: cmd}
}

// run executes a git command and returns its trimmed output.
func (r *ExecRunner) run(ctx context.Context, args ...string) (string, error) {
	out, err := r.cmd.Run(ctx, r.dir, "git", args...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), ctxErr)
		}
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return strings.TrimSpace(string(out)), nil
}

// runSilent executes a git command and ignores output.
func (r *ExecRunner) runSilent(ctx context.Context, args ...string) error {
	_, err := r.run(ctx, args...)
	return err
}

// Run executes an arbitrary git command with the given arguments.
func (r *ExecRunner) Run(ctx context.Context, args ...string) (string, error) {
	return r.run(ctx, args...)
}

// Dir returns the directory commands run in.
func (r *ExecRunner) Dir() string {
	return r.dir
}

// In returns a runner for another directory sharing the same command runner.
func (r *ExecRunner) In(dir string) Runner {
	return &ExecRunner{dir: dir, cmd: r.cmd}
}

// CurrentBranch returns the name of the current branch.
func (r *ExecRunner) CurrentBranch(ctx context.Context) (string, error) {
	return r.run(ctx, "rev-parse", "--abbrev-ref", "HEAD")
}

// BranchExists returns true if the branch exists.
func (r *ExecRunner) BranchExists(ctx context.Context, name string) (bool, error) {
	out, err := r.cmd.Run(ctx, r.dir, "git", "show-ref", "--verify", "--quiet", "refs/heads/"+name)
	if err != nil {
		// Exit code 1 means branch doesn't exist (not an error)
		if exec.ExitCode(err) == 1 {
			return false, nil
		}
		return false, fmt.Errorf("check branch exists: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return true, nil
}

// CreateBranch creates a new branch with the given name.
func (r *ExecRunner) CreateBranch(ctx context.Context, name, startPoint string) error {
	args := []string{"branch", name}
	if startPoint != "" {
		args = append(args, startPoint)
	}
	return r.runSilent(ctx, args...)
}

// DeleteBranch deletes the specified branch.
func (r *ExecRunner) DeleteBranch(ctx context.Context, name string) error {
	return r.runSilent(ctx, "branch", "-D", name)
}

// TopLevel returns the root of the working tree.
func (r *ExecRunner) TopLevel(ctx context.Context) (string, error) {
	return r.run(ctx, "rev-parse", "--show-toplevel")
}

// HooksDir returns the directory git reads hooks from, honoring
// core.hooksPath and shared by all worktrees.
func (r *ExecRunner) HooksDir(ctx context.Context) (string, error) {
	out, err := r.run(ctx, "rev-parse", "--git-path", "hooks")
	if err != nil {
		return "", err
	}
	if !filepath.IsAbs(out) {
		out = filepath.Join(r.dir, out)
	}
	return out, nil
}

// MergeNoFFMessage merges the specified branch with --no-ff and a custom message.
func (r *ExecRunner) MergeNoFFMessage(ctx context.Context, branch, message string) error {
	return r.runSilent(ctx, "merge", "--no-ff", "-m", message, branch)
}

// MergeFFOnly fast-forwards the current branch.
func (r *ExecRunner) MergeFFOnly(ctx context.Context, branch string) error {
	return r.runSilent(ctx, "merge", "--ff-only", branch)
}

// MergeAbort aborts an in-progress merge.
func (r *ExecRunner) MergeAbort(ctx context.Context) error {
	return r.runSilent(ctx, "merge", "--abort")
}

// IsAncestor reports whether ancestor is reachable from descendant.
func (r *ExecRunner) IsAncestor(ctx context.Context, ancestor, descendant string) (bool, error) {
	out, err := r.cmd.Run(ctx, r.dir, "git", "merge-base", "--is-ancestor", ancestor, descendant)
	if err != nil {
		if exec.ExitCode(err) == 1 {
			return false, nil
		}
		return false, fmt.Errorf("git merge-base --is-ancestor: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return true, nil
}

// Rebase rebases the current branch onto the specified base.
func (r *ExecRunner) Rebase(ctx context.Context, base string) error {
	return r.runSilent(ctx, "rebase", base)
}

// RebaseAbort aborts an in-progress rebase.
func (r *ExecRunner) RebaseAbort(ctx context.Context) error {
	return r.runSilent(ctx, "rebase", "--abort")
}

// ConflictedFiles returns a list of files with unmerged changes.
func (r *ExecRunner) ConflictedFiles(ctx context.Context) ([]string, error) {
	out, err := r.run(ctx, "diff", "--name-only", "--diff-filter=U")
	if err != nil {
		// If there are no conflicts, git may exit with code 0 but empty output
		return nil, nil
	}
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// WorktreeAdd creates a new worktree at the given path for the branch.
func (r *ExecRunner) WorktreeAdd(ctx context.Context, path, branch string) error {
	return r.runSilent(ctx, "worktree", "add", path, branch)
}

// WorktreeAddNewBranch creates a new worktree with a new branch (git worktree add -b).
func (r *ExecRunner) WorktreeAddNewBranch(ctx context.Context, path, branch, startPoint string) error {
	args := []string{"worktree", "add", "-b", branch, path}
	if startPoint != "" {
		args = append(args, startPoint)
	}
	return r.runSilent(ctx, args...)
}

// WorktreeRemove removes the worktree, optionally with force.
func (r *ExecRunner) WorktreeRemove(ctx context.Context, path string, force bool) error {
	args := []string{"worktree", "remove"}
	if force {
		args = append(args, "--force")
	}
	args = append(args, path)
	return r.runSilent(ctx, args...)
}

// WorktreeListPorcelain returns the raw porcelain output for detailed parsing.
func (r *ExecRunner) WorktreeListPorcelain(ctx context.Context) (string, error) {
	return r.run(ctx, "worktree", "list", "--porcelain")
}

// WorktreePrune removes stale worktree entries.
func (r *ExecRunner) WorktreePrune(ctx context.Context) error {
	return r.runSilent(ctx, "worktree", "prune")
}

// Push pushes a branch to origin and sets its upstream.
func (r *ExecRunner) Push(ctx context.Context, branch string) error {
	return r.runSilent(ctx, "push", "-u", "origin", branch)
}

// RemoteURL returns the URL of the named remote.
func (r *ExecRunner) RemoteURL(ctx context.Context, remote string) (string, error) {
	return r.run(ctx, "remote", "get-url", remote)
}

// Verify ExecRunner implements Runner at compile time.
var _ Runner = (*ExecRunner)(nil)
