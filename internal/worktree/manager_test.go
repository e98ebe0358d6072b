package worktree

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	cmerrors "github.com/Draidel/ClaudeMix/internal/errors"
	"github.com/Draidel/ClaudeMix/internal/git"
	"github.com/Draidel/ClaudeMix/internal/state"
	"github.com/Draidel/ClaudeMix/internal/testutil"
)

// memCleanup is an in-memory state.CleanupStore.
type memCleanup struct {
	mu    sync.Mutex
	paths map[string]string
}

func newMemCleanup() *memCleanup { return &memCleanup{paths: map[string]string{}} }

func (c *memCleanup) AddPendingCleanup(path, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paths[path] = reason
	return nil
}

func (c *memCleanup) ListPendingCleanup() ([]state.PendingCleanup, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []state.PendingCleanup
	for p, r := range c.paths {
		out = append(out, state.PendingCleanup{Path: p, Reason: r, Attempts: 1})
	}
	return out, nil
}

func (c *memCleanup) DeletePendingCleanup(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.paths, path)
	return nil
}

func newTestManager(t *testing.T) (*Manager, string, *memCleanup) {
	t.Helper()
	repo := testutil.InitRepo(t)
	pending := newMemCleanup()
	m, err := NewManager("", repo, git.NewRunner(repo), pending)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	return m, repo, pending
}

func TestParsePorcelain(t *testing.T) {
	output := `worktree /home/user/project
HEAD 1111111111111111111111111111111111111111
branch refs/heads/main

worktree /home/user/project/.claudemix/worktrees/feature-login
HEAD 2222222222222222222222222222222222222222
branch refs/heads/feature/login
locked

worktree /home/user/project/.claudemix/worktrees/detached
HEAD 3333333333333333333333333333333333333333
detached
prunable gitdir file points to non-existent location`

	worktrees, err := ParsePorcelain(output)
	if err != nil {
		t.Fatalf("ParsePorcelain() error = %v", err)
	}
	if len(worktrees) != 3 {
		t.Fatalf("got %d worktrees, want 3", len(worktrees))
	}

	if worktrees[0].Branch != "main" || worktrees[0].Head != "1111111111111111111111111111111111111111" {
		t.Errorf("worktrees[0] = %+v", worktrees[0])
	}
	if worktrees[1].Branch != "feature/login" || !worktrees[1].Locked {
		t.Errorf("worktrees[1] = %+v, want locked feature/login", worktrees[1])
	}
	if !worktrees[2].Detached || !worktrees[2].Prunable || worktrees[2].Branch != "" {
		t.Errorf("worktrees[2] = %+v, want detached prunable", worktrees[2])
	}
}

func TestDirName(t *testing.T) {
	tests := map[string]string{
		"feature":       "feature",
		"feature/login": "feature-login",
		"a/b/c":         "a-b-c",
	}
	for in, want := range tests {
		if got := DirName(in); got != want {
			t.Errorf("DirName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestAcquire_NewAndExistingBranch(t *testing.T) {
	m, repo, _ := newTestManager(t)
	ctx := context.Background()

	path, err := m.Acquire(ctx, "feature/new", "main")
	if err != nil {
		t.Fatalf("Acquire(new branch) error = %v", err)
	}
	if path != m.PathFor("feature/new") {
		t.Errorf("path = %q, want %q", path, m.PathFor("feature/new"))
	}
	if _, err := os.Stat(filepath.Join(path, "README.md")); err != nil {
		t.Errorf("worktree missing checkout: %v", err)
	}

	// Acquiring again reuses the same worktree.
	again, err := m.Acquire(ctx, "feature/new", "main")
	if err != nil {
		t.Fatalf("Acquire(reuse) error = %v", err)
	}
	if again != path {
		t.Errorf("reuse path = %q, want %q", again, path)
	}

	// An existing branch that is not checked out gets a worktree too.
	testutil.Git(t, repo, "branch", "existing")
	if _, err := m.Acquire(ctx, "existing", ""); err != nil {
		t.Fatalf("Acquire(existing branch) error = %v", err)
	}

	wt, err := m.Find(ctx, "existing")
	if err != nil || wt == nil {
		t.Fatalf("Find(existing) = %v, %v", wt, err)
	}
}

func TestAcquire_BranchCheckedOutElsewhere(t *testing.T) {
	m, _, _ := newTestManager(t)

	// main is checked out in the primary repository directory.
	_, err := m.Acquire(context.Background(), "main", "")
	if !errors.Is(err, cmerrors.ErrWorktreeConflict) {
		t.Fatalf("Acquire(main) error = %v, want worktree conflict", err)
	}
}

func TestRelease(t *testing.T) {
	m, _, pending := newTestManager(t)
	ctx := context.Background()

	path, err := m.Acquire(ctx, "to-release", "main")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if err := m.Release(ctx, path); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("worktree directory still exists after Release")
	}
	if ok, _ := m.Exists(ctx, path); ok {
		t.Error("Exists() = true after Release")
	}
	if len(pending.paths) != 0 {
		t.Errorf("pending cleanups = %v, want none", pending.paths)
	}

	// Releasing an unknown path is not an error.
	if err := m.Release(ctx, filepath.Join(m.BaseDir(), "never-existed")); err != nil {
		t.Errorf("Release(unknown) error = %v", err)
	}
}

func TestRetryPending(t *testing.T) {
	m, _, pending := newTestManager(t)
	ctx := context.Background()

	gone := filepath.Join(m.BaseDir(), "already-gone")
	stale := filepath.Join(m.BaseDir(), "stale")
	if err := os.MkdirAll(stale, 0o755); err != nil {
		t.Fatal(err)
	}
	_ = pending.AddPendingCleanup(gone, "busy")
	_ = pending.AddPendingCleanup(stale, "busy")

	n, err := m.RetryPending(ctx)
	if err != nil {
		t.Fatalf("RetryPending() error = %v", err)
	}
	if n != 2 {
		t.Errorf("RetryPending() cleaned %d, want 2", n)
	}
	if len(pending.paths) != 0 {
		t.Errorf("pending cleanups = %v, want none", pending.paths)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale directory was not removed")
	}
}

func TestOrphans(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	owned, err := m.Acquire(ctx, "owned", "main")
	if err != nil {
		t.Fatalf("Acquire(owned) error = %v", err)
	}
	stray, err := m.Acquire(ctx, "stray", "main")
	if err != nil {
		t.Fatalf("Acquire(stray) error = %v", err)
	}

	orphans, err := m.Orphans(ctx, []string{owned})
	if err != nil {
		t.Fatalf("Orphans() error = %v", err)
	}
	if len(orphans) != 1 {
		t.Fatalf("Orphans() = %d entries, want 1", len(orphans))
	}
	if orphans[0].Branch != "stray" || !samePath(orphans[0].Path, stray) {
		t.Errorf("orphan = %+v, want stray at %s", orphans[0], stray)
	}
}
