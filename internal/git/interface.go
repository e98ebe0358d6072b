// Package git provides an interface for git operations.
package git

import "context"

// BranchOperations defines the interface for git branch operations.
type BranchOperations interface {
	// CurrentBranch returns the name of the current branch.
	CurrentBranch(ctx context.Context) (string, error)
	// BranchExists returns true if the local branch exists.
	BranchExists(ctx context.Context, name string) (bool, error)
	// CreateBranch creates a new branch at the given start point (HEAD if empty).
	CreateBranch(ctx context.Context, name, startPoint string) error
	// DeleteBranch deletes the specified branch (force delete).
	DeleteBranch(ctx context.Context, name string) error
	// TopLevel returns the root of the working tree containing the runner's directory.
	TopLevel(ctx context.Context) (string, error)
	// HooksDir returns the absolute directory git runs hooks from.
	HooksDir(ctx context.Context) (string, error)
}

// MergeOperations defines the interface for git merge and rebase operations.
type MergeOperations interface {
	// MergeNoFFMessage merges the specified branch with --no-ff and a custom message.
	MergeNoFFMessage(ctx context.Context, branch, message string) error
	// MergeFFOnly fast-forwards the current branch to the specified ref.
	MergeFFOnly(ctx context.Context, branch string) error
	// MergeAbort aborts an in-progress merge.
	MergeAbort(ctx context.Context) error
	// IsAncestor reports whether ancestor is reachable from descendant.
	IsAncestor(ctx context.Context, ancestor, descendant string) (bool, error)
	// Rebase rebases the current branch onto the specified base.
	Rebase(ctx context.Context, base string) error
	// RebaseAbort aborts an in-progress rebase.
	RebaseAbort(ctx context.Context) error
	// ConflictedFiles returns a list of files with unmerged changes.
	ConflictedFiles(ctx context.Context) ([]string, error)
}

// WorktreeOperations defines the interface for git worktree operations.
type WorktreeOperations interface {
	// WorktreeAdd creates a new worktree at the given path for an existing branch.
	WorktreeAdd(ctx context.Context, path, branch string) error
	// WorktreeAddNewBranch creates a new worktree with a new branch (git worktree add -b).
	WorktreeAddNewBranch(ctx context.Context, path, branch, startPoint string) error
	// WorktreeRemove removes the worktree at the given path, optionally with force.
	WorktreeRemove(ctx context.Context, path string, force bool) error
	// WorktreeListPorcelain returns the raw porcelain output for detailed parsing.
	WorktreeListPorcelain(ctx context.Context) (string, error)
	// WorktreePrune removes stale worktree entries.
	WorktreePrune(ctx context.Context) error
}

// RemoteOperations defines the interface for git remote operations.
type RemoteOperations interface {
	// Push pushes a branch to origin and sets its upstream.
	Push(ctx context.Context, branch string) error
	// RemoteURL returns the URL of the named remote.
	RemoteURL(ctx context.Context, remote string) (string, error)
}

// Runner defines the complete interface for git operations.
// This interface embeds all focused interfaces for full functionality.
// Consumers should prefer using focused interfaces when possible.
type Runner interface {
	BranchOperations
	MergeOperations
	WorktreeOperations
	RemoteOperations
	// Run executes an arbitrary git command with the given arguments.
	// Returns the trimmed command output and an error if the command fails.
	Run(ctx context.Context, args ...string) (string, error)
	// Dir returns the directory commands run in.
	Dir() string
	// In returns a runner that executes in another directory of the same repository,
	// typically a linked worktree.
	In(dir string) Runner
}
