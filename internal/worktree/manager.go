// Package worktree allocates and releases the isolated git working
// directories that back each session.
package worktree

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	cmerrors "github.com/Draidel/ClaudeMix/internal/errors"
	"github.com/Draidel/ClaudeMix/internal/git"
	"github.com/Draidel/ClaudeMix/internal/logging"
	"github.com/Draidel/ClaudeMix/internal/state"
)

// Worktree is one entry of `git worktree list --porcelain`.
type Worktree struct {
	Path     string // Absolute path to the worktree directory
	Branch   string // Short branch name, empty when detached
	Head     string // Commit checked out
	Bare     bool
	Detached bool
	Locked   bool
	Prunable bool
}

// Provider defines the worktree operations the session engine and merge
// executor depend on. This interface allows mocking worktree operations in tests.
type Provider interface {
	// PathFor returns the deterministic directory for a branch.
	PathFor(branch string) string
	// Acquire checks out branch at PathFor(branch), creating the branch from
	// startPoint when it does not exist yet.
	Acquire(ctx context.Context, branch, startPoint string) (string, error)
	// Release removes the worktree. Failures are recorded for a later retry.
	Release(ctx context.Context, path string) error
	// Find returns the worktree that has branch checked out, or nil.
	Find(ctx context.Context, branch string) (*Worktree, error)
	// Exists reports whether path is a registered worktree directory on disk.
	Exists(ctx context.Context, path string) (bool, error)
}

// Verify Manager implements Provider at compile time.
var _ Provider = (*Manager)(nil)

// Manager handles git worktree operations for session isolation.
type Manager struct {
	baseDir string             // Directory holding every managed worktree
	git     git.Runner
	pending state.CleanupStore // Optional; nil disables deferred cleanup
	mu      sync.Mutex
}

// DefaultBaseDir returns the worktree directory used when none is configured.
func DefaultBaseDir(repoPath string) string {
	return filepath.Join(repoPath, ".claudemix", "worktrees")
}

// NewManager creates a new Manager.
// baseDir defaults to <repo>/.claudemix/worktrees.
func NewManager(baseDir, repoPath string, runner git.Runner, pending state.CleanupStore) (*Manager, error) {
	if baseDir == "" {
		baseDir = DefaultBaseDir(repoPath)
	}
	if !filepath.IsAbs(baseDir) {
		baseDir = filepath.Join(repoPath, baseDir)
	}

	// Ensure base directory exists
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("create worktree base directory: %w", err)
	}

	return &Manager{
		baseDir: baseDir,
		git:     runner,
		pending: pending,
	}, nil
}

// BaseDir returns the base directory where worktrees are created.
func (m *Manager) BaseDir() string {
	return m.baseDir
}

// DirName turns a branch name into a single path element.
func DirName(branch string) string {
	return strings.ReplaceAll(branch, "/", "-")
}

// PathFor returns the deterministic worktree directory for a branch.
func (m *Manager) PathFor(branch string) string {
	return filepath.Join(m.baseDir, DirName(branch))
}

// Acquire checks out branch in its worktree directory.
// If the branch is already checked out at that directory it is reused;
// checked out anywhere else yields a WorktreeConflict error.
func (m *Manager) Acquire(ctx context.Context, branch, startPoint string) (string, error) {
	const op cmerrors.Op = "worktree.Acquire"

	m.mu.Lock()
	defer m.mu.Unlock()

	path := m.PathFor(branch)

	worktrees, err := m.listUnlocked(ctx)
	if err != nil {
		return "", cmerrors.GitFailed(op, err)
	}
	for _, wt := range worktrees {
		if wt.Branch != branch {
			if samePath(wt.Path, path) {
				return "", cmerrors.E(op, cmerrors.KindWorktreeConflict,
					fmt.Sprintf("%s already holds branch %q", path, wt.Branch))
			}
			continue
		}
		if samePath(wt.Path, path) {
			logging.Component("worktree").Debug("reusing worktree", "branch", branch, "path", path)
			return path, nil
		}
		return "", cmerrors.WorktreeConflict(branch, wt.Path)
	}

	// A leftover directory that git does not track blocks `worktree add`.
	if _, err := os.Stat(path); err == nil {
		if err := os.RemoveAll(path); err != nil {
			return "", cmerrors.E(op, cmerrors.KindGit, fmt.Sprintf("stale directory %s", path), err)
		}
	}

	exists, err := m.git.BranchExists(ctx, branch)
	if err != nil {
		return "", cmerrors.GitFailed(op, err)
	}
	if exists {
		err = m.git.WorktreeAdd(ctx, path, branch)
	} else {
		err = m.git.WorktreeAddNewBranch(ctx, path, branch, startPoint)
	}
	if err != nil {
		return "", cmerrors.GitFailed(op, fmt.Errorf("create worktree: %w", err))
	}

	logging.Component("worktree").Info("worktree created", "branch", branch, "path", path, "new_branch", !exists)
	return path, nil
}

// Release removes the worktree at path.
// A directory that cannot be removed is recorded for a later retry and
// logged; the release itself still succeeds.
func (m *Manager) Release(ctx context.Context, path string) error {
	if path == "" {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	return m.releaseUnlocked(ctx, path)
}

func (m *Manager) releaseUnlocked(ctx context.Context, path string) error {
	log := logging.Component("worktree")

	removeErr := m.git.WorktreeRemove(ctx, path, true)
	if removeErr != nil {
		// Git worktree remove failed, try direct removal
		if err := os.RemoveAll(path); err != nil {
			removeErr = err
		}
		_ = m.git.WorktreePrune(ctx)
	}

	if _, err := os.Stat(path); err == nil {
		reason := "directory still present"
		if removeErr != nil {
			reason = removeErr.Error()
		}
		log.Warn("worktree removal failed, deferring cleanup", "path", path, "error", reason)
		if m.pending != nil {
			if err := m.pending.AddPendingCleanup(path, reason); err != nil {
				log.Error("record pending cleanup", "path", path, "error", err)
			}
		}
		return nil
	}

	if m.pending != nil {
		_ = m.pending.DeletePendingCleanup(path)
	}
	log.Info("worktree removed", "path", path)
	return nil
}

// RetryPending retries every recorded cleanup and returns how many paths are now gone.
func (m *Manager) RetryPending(ctx context.Context) (int, error) {
	if m.pending == nil {
		return 0, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	pending, err := m.pending.ListPendingCleanup()
	if err != nil {
		return 0, err
	}

	cleaned := 0
	for _, p := range pending {
		if err := ctx.Err(); err != nil {
			return cleaned, err
		}
		if _, err := os.Stat(p.Path); os.IsNotExist(err) {
			_ = m.pending.DeletePendingCleanup(p.Path)
			cleaned++
			continue
		}
		_ = m.releaseUnlocked(ctx, p.Path)
		if _, err := os.Stat(p.Path); os.IsNotExist(err) {
			cleaned++
		}
	}
	return cleaned, nil
}

// List returns all worktrees of the repository.
func (m *Manager) List(ctx context.Context) ([]*Worktree, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.listUnlocked(ctx)
}

func (m *Manager) listUnlocked(ctx context.Context) ([]*Worktree, error) {
	output, err := m.git.WorktreeListPorcelain(ctx)
	if err != nil {
		return nil, fmt.Errorf("list worktrees: %w", err)
	}
	return ParsePorcelain(output)
}

// Find returns the worktree that has branch checked out, or nil if none does.
func (m *Manager) Find(ctx context.Context, branch string) (*Worktree, error) {
	worktrees, err := m.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, wt := range worktrees {
		if wt.Branch == branch {
			return wt, nil
		}
	}
	return nil, nil
}

// Exists reports whether path is both registered with git and present on disk.
func (m *Manager) Exists(ctx context.Context, path string) (bool, error) {
	if path == "" {
		return false, nil
	}
	if _, err := os.Stat(path); err != nil {
		return false, nil
	}
	worktrees, err := m.List(ctx)
	if err != nil {
		return false, err
	}
	for _, wt := range worktrees {
		if samePath(wt.Path, path) {
			return true, nil
		}
	}
	return false, nil
}

// Orphans returns managed worktrees (those under the base directory) whose
// path is not in owned.
func (m *Manager) Orphans(ctx context.Context, owned []string) ([]*Worktree, error) {
	worktrees, err := m.List(ctx)
	if err != nil {
		return nil, err
	}

	ownedSet := make(map[string]bool, len(owned))
	for _, p := range owned {
		ownedSet[canonical(p)] = true
	}

	var orphans []*Worktree
	for _, wt := range worktrees {
		if wt.Bare || !m.managed(wt.Path) {
			continue
		}
		if ownedSet[canonical(wt.Path)] {
			continue
		}
		orphans = append(orphans, wt)
	}
	return orphans, nil
}

// Prune removes references to worktrees that no longer exist on disk.
func (m *Manager) Prune(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.git.WorktreePrune(ctx); err != nil {
		return fmt.Errorf("prune worktrees: %w", err)
	}
	return nil
}

// managed reports whether path lies inside the base directory.
func (m *Manager) managed(path string) bool {
	rel, err := filepath.Rel(canonical(m.baseDir), canonical(path))
	if err != nil {
		return false
	}
	return rel != "." && !strings.HasPrefix(rel, "..")
}

// ParsePorcelain parses the output of 'git worktree list --porcelain'.
func ParsePorcelain(output string) ([]*Worktree, error) {
	var worktrees []*Worktree
	var current *Worktree

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()

		if line == "" {
			if current != nil {
				worktrees = append(worktrees, current)
				current = nil
			}
			continue
		}

		switch {
		case strings.HasPrefix(line, "worktree "):
			if current != nil {
				worktrees = append(worktrees, current)
			}
			current = &Worktree{Path: strings.TrimPrefix(line, "worktree ")}
		case current == nil:
			continue
		case strings.HasPrefix(line, "HEAD "):
			current.Head = strings.TrimPrefix(line, "HEAD ")
		case strings.HasPrefix(line, "branch "):
			// Format: branch refs/heads/<name>
			current.Branch = strings.TrimPrefix(strings.TrimPrefix(line, "branch "), "refs/heads/")
		case line == "bare":
			current.Bare = true
		case line == "detached":
			current.Detached = true
		case line == "locked" || strings.HasPrefix(line, "locked "):
			current.Locked = true
		case line == "prunable" || strings.HasPrefix(line, "prunable "):
			current.Prunable = true
		}
	}

	// Don't forget the last worktree if output doesn't end with blank line
	if current != nil {
		worktrees = append(worktrees, current)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("parse worktree list: %w", err)
	}

	return worktrees, nil
}

// canonical resolves symlinks where possible so /tmp and /private/tmp compare equal.
func canonical(p string) string {
	if resolved, err := filepath.EvalSymlinks(p); err == nil {
		return resolved
	}
	// The leaf may be gone; resolve the parent instead.
	if dir, err := filepath.EvalSymlinks(filepath.Dir(p)); err == nil {
		return filepath.Join(dir, filepath.Base(p))
	}
	return filepath.Clean(p)
}

func samePath(a, b string) bool {
	return canonical(a) == canonical(b)
}
