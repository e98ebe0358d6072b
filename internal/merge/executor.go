package merge

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	cmerrors "github.com/Draidel/ClaudeMix/internal/errors"
	"github.com/Draidel/ClaudeMix/internal/forge"
	"github.com/Draidel/ClaudeMix/internal/git"
	"github.com/Draidel/ClaudeMix/internal/logging"
	"github.com/Draidel/ClaudeMix/internal/worktree"
	"github.com/Draidel/ClaudeMix/pkg/models"
)

// Strategy selects how a finished branch reaches its target.
type Strategy string

const (
	// StrategyLocal merges with `git merge --no-ff` in the repository.
	StrategyLocal Strategy = "local"
	// StrategyPR pushes the branch and opens a pull request on the forge.
	StrategyPR Strategy = "pr"
)

// DefaultTimeout bounds the version-control work of one merge.
const DefaultTimeout = 5 * time.Minute

// Worktrees locates checkouts of target branches.
type Worktrees interface {
	Find(ctx context.Context, branch string) (*worktree.Worktree, error)
	BaseDir() string
}

// ExecutorConfig controls the git executor.
type ExecutorConfig struct {
	Strategy Strategy
	// Timeout is the ceiling for one merge; exceeding it yields MergeTimeout.
	Timeout time.Duration
	// Rebase rebases the source onto the target first when the merge would
	// not be a fast-forward.
	Rebase bool
	// DeleteBranch deletes the source branch after a local merge.
	DeleteBranch bool
}

// GitExecutor merges branches with the git CLI.
type GitExecutor struct {
	git       git.Runner
	worktrees Worktrees
	forge     forge.Forge
	cfg       ExecutorConfig
}

// NewGitExecutor creates an executor for the repository behind runner.
// f may be nil when the strategy is local.
func NewGitExecutor(runner git.Runner, worktrees Worktrees, f forge.Forge, cfg ExecutorConfig) *GitExecutor {
	if cfg.Strategy == "" {
		cfg.Strategy = StrategyLocal
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &GitExecutor{git: runner, worktrees: worktrees, forge: f, cfg: cfg}
}

// Execute merges req.SourceBranch into req.TargetBranch. Conflicts abort
// the merge and return MergeConflict; nothing is retried.
func (x *GitExecutor) Execute(ctx context.Context, req models.MergeRequest) error {
	ctx, cancel := context.WithTimeout(ctx, x.cfg.Timeout)
	defer cancel()

	var err error
	switch x.cfg.Strategy {
	case StrategyPR:
		err = x.openPR(ctx, req)
	default:
		err = x.mergeLocal(ctx, req)
	}
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return cmerrors.MergeTimeout(req.SourceBranch, req.TargetBranch, err)
	}
	return err
}

// Finalize deletes the merged source branch when configured to.
func (x *GitExecutor) Finalize(ctx context.Context, req models.MergeRequest) {
	if x.cfg.Strategy != StrategyLocal || !x.cfg.DeleteBranch {
		return
	}
	if err := x.git.DeleteBranch(ctx, req.SourceBranch); err != nil {
		logging.Component("merge").Warn("delete merged branch", "branch", req.SourceBranch, "error", err)
	}
}

func (x *GitExecutor) mergeLocal(ctx context.Context, req models.MergeRequest) error {
	const op cmerrors.Op = "merge.Execute"
	log := logging.Component("merge")
	source, target := req.SourceBranch, req.TargetBranch

	ff, err := x.git.IsAncestor(ctx, target, source)
	if err != nil {
		return cmerrors.GitFailed(op, err)
	}
	if !ff && x.cfg.Rebase && req.WorktreePath != "" {
		src := x.git.In(req.WorktreePath)
		if err := src.Rebase(ctx, target); err != nil {
			// Leave the branch as it was; the merge below reports the conflict.
			_ = src.RebaseAbort(context.WithoutCancel(ctx))
			log.Info("rebase onto target failed, merging without it", "source", source, "target", target, "error", err)
		} else {
			log.Debug("rebased source onto target", "source", source, "target", target)
		}
	}

	dir, cleanup, err := x.targetDir(ctx, target)
	if err != nil {
		return err
	}
	defer cleanup()

	dst := x.git.In(dir)
	msg := fmt.Sprintf("Merge branch '%s' into %s", source, target)
	if err := dst.MergeNoFFMessage(ctx, source, msg); err != nil {
		files, _ := dst.ConflictedFiles(context.WithoutCancel(ctx))
		if abortErr := dst.MergeAbort(context.WithoutCancel(ctx)); abortErr != nil && len(files) > 0 {
			log.Error("abort conflicted merge", "dir", dir, "error", abortErr)
		}
		if len(files) > 0 {
			return cmerrors.MergeConflict(source, target, files)
		}
		return cmerrors.GitFailed(op, err)
	}
	return nil
}

// targetDir returns a working directory with target checked out. When no
// worktree holds target, a temporary one is added and removed by cleanup.
func (x *GitExecutor) targetDir(ctx context.Context, target string) (string, func(), error) {
	const op cmerrors.Op = "merge.Execute"

	wt, err := x.worktrees.Find(ctx, target)
	if err != nil {
		return "", nil, cmerrors.GitFailed(op, err)
	}
	if wt != nil {
		return wt.Path, func() {}, nil
	}

	path := filepath.Join(x.worktrees.BaseDir(), "_merge", worktree.DirName(target))
	if err := x.git.WorktreeAdd(ctx, path, target); err != nil {
		return "", nil, cmerrors.GitFailed(op, fmt.Errorf("check out %s for merging: %w", target, err))
	}
	cleanup := func() {
		if err := x.git.WorktreeRemove(context.WithoutCancel(ctx), path, true); err != nil {
			logging.Component("merge").Warn("remove merge worktree", "path", path, "error", err)
		}
	}
	return path, cleanup, nil
}

func (x *GitExecutor) openPR(ctx context.Context, req models.MergeRequest) error {
	const op cmerrors.Op = "merge.OpenPR"

	if x.forge == nil {
		return cmerrors.E(op, cmerrors.KindConfig, "merge strategy pr needs a GitHub or GitLab origin remote")
	}
	dir := req.WorktreePath
	if dir == "" {
		dir = x.git.Dir()
	}
	if err := x.git.In(dir).Push(ctx, req.SourceBranch); err != nil {
		return cmerrors.GitFailed(op, err)
	}
	url, err := x.forge.CreatePR(ctx, dir, forge.CreateOpts{
		Title:      req.SourceBranch,
		Body:       fmt.Sprintf("Opened by claudemix for session %s.", req.Session),
		HeadBranch: req.SourceBranch,
		BaseBranch: req.TargetBranch,
	})
	if err != nil {
		return cmerrors.E(op, err)
	}
	logging.Component("merge").Info("pull request opened", "session", req.Session, "forge", x.forge.Kind(), "url", url)
	return nil
}

var _ Executor = (*GitExecutor)(nil)
