package orchestrator

import (
	"context"
	"fmt"
	"time"

	cmerrors "github.com/Draidel/ClaudeMix/internal/errors"
	"github.com/Draidel/ClaudeMix/internal/hooks"
	"github.com/Draidel/ClaudeMix/internal/merge"
	"github.com/Draidel/ClaudeMix/internal/session"
	"github.com/Draidel/ClaudeMix/pkg/models"
)

// StartOptions tunes Start.
type StartOptions struct {
	// Branch overrides the branch derived from the session name.
	Branch string
	// From is the ref a new branch starts from; defaults to the merge target.
	From      string
	NoPersist bool
}

// Start creates a session. The name is sanitized; the branch defaults to
// the configured prefix followed by the name.
func (o *Orchestrator) Start(ctx context.Context, name string, opts StartOptions) (models.Session, error) {
	name = session.SanitizeName(name)
	branch := opts.Branch
	if branch == "" {
		branch = session.BranchFor(o.cfg.Worktree.BranchPrefix, name)
	}
	s, err := o.sessions.Start(ctx, name, branch, session.StartOptions{
		NoPersist:  opts.NoPersist,
		StartPoint: opts.From,
	})
	if err != nil {
		return s, err
	}
	o.events.Emit(Event{Type: EventSessionStarted, Session: s.Name, Message: s.Branch})
	return s, nil
}

// StartOrAttach resumes the named session when it exists and starts it
// otherwise. Orphaned sessions are refused until adopted or discarded.
func (o *Orchestrator) StartOrAttach(ctx context.Context, name string, opts StartOptions) (*session.Attachment, error) {
	const op cmerrors.Op = "orchestrator.StartOrAttach"

	name = session.SanitizeName(name)
	if s, ok := o.sessions.Get(name); ok && !s.State.Terminal() {
		switch s.State {
		case models.SessionActive, models.SessionPaused:
			return o.Resume(ctx, name)
		case models.SessionOrphaned:
			return nil, cmerrors.E(op, cmerrors.KindOrphaned,
				fmt.Sprintf("session %q is orphaned: adopt or discard it first", name))
		default:
			return nil, cmerrors.InvalidTransition(op, name, s.State, models.SessionActive)
		}
	}
	if _, err := o.Start(ctx, name, opts); err != nil {
		return nil, err
	}
	return o.Resume(ctx, name)
}

// Pause detaches the session.
func (o *Orchestrator) Pause(ctx context.Context, name string) (models.Session, error) {
	s, err := o.sessions.Pause(ctx, name)
	if err == nil {
		o.events.Emit(Event{Type: EventSessionPaused, Session: name})
	}
	return s, err
}

// Resume reattaches the session. A foreground Attachment comes back
// together with a PersistenceUnavailable error.
func (o *Orchestrator) Resume(ctx context.Context, name string) (*session.Attachment, error) {
	att, err := o.sessions.Resume(ctx, name)
	if att != nil {
		o.events.Emit(Event{Type: EventSessionResumed, Session: name, Error: err})
	}
	return att, err
}

// Ready runs the pre-merge hook and marks the session ready to merge.
func (o *Orchestrator) Ready(ctx context.Context, name, target string) (models.Session, error) {
	if target == "" {
		target = o.cfg.Merge.Target
	}
	s, err := o.sessions.MarkReady(ctx, name, target)
	if err == nil {
		o.events.Emit(Event{Type: EventSessionReady, Session: name, Target: target})
	}
	return s, err
}

// Merge enqueues the session for merging into target, marking it ready
// first when it is still Active or Paused. The ticket reports the outcome
// once a worker has processed the request.
func (o *Orchestrator) Merge(ctx context.Context, name, target string) (*merge.Ticket, error) {
	const op cmerrors.Op = "orchestrator.Merge"

	if target == "" {
		target = o.cfg.Merge.Target
	}
	s, ok := o.sessions.Get(name)
	if !ok {
		return nil, cmerrors.SessionNotFound(op, name)
	}
	if s.Branch == target {
		return nil, cmerrors.E(op, cmerrors.KindInvalidTransition,
			fmt.Sprintf("session %q works on %s itself", name, target))
	}
	switch s.State {
	case models.SessionActive, models.SessionPaused:
		var err error
		if s, err = o.Ready(ctx, name, target); err != nil {
			return nil, err
		}
	case models.SessionReadyToMerge:
	default:
		return nil, cmerrors.InvalidTransition(op, name, s.State, models.SessionMerging)
	}

	ticket, err := o.queue.Enqueue(s, target)
	if err != nil {
		return nil, err
	}
	o.events.Emit(Event{Type: EventMergeQueued, Session: name, Target: target})
	return ticket, nil
}

// Withdraw removes the session's queued merge request.
func (o *Orchestrator) Withdraw(name string) error {
	req, _ := o.queue.Get(name)
	if err := o.queue.Withdraw(name); err != nil {
		return err
	}
	o.events.Emit(Event{Type: EventMergeWithdrawn, Session: name, Target: req.TargetBranch})
	return nil
}

// Close closes the session, withdrawing its queued merge request first.
// Without force a session being merged is refused with SessionBusy.
func (o *Orchestrator) Close(ctx context.Context, name string, force bool) error {
	if req, ok := o.queue.Get(name); ok && req.State == models.MergeQueued {
		if err := o.Withdraw(name); err != nil && !cmerrors.Is(err, cmerrors.KindSessionBusy) {
			return err
		}
	}
	if err := o.sessions.Close(ctx, name, force); err != nil {
		return err
	}
	o.events.Emit(Event{Type: EventSessionClosed, Session: name})
	return nil
}

// Get returns the named session.
func (o *Orchestrator) Get(name string) (models.Session, bool) {
	return o.sessions.Get(name)
}

// Sessions lists every registered session, oldest first.
func (o *Orchestrator) Sessions() []models.Session {
	return o.sessions.List()
}

// Pending returns the outstanding merge requests, grouped by target.
func (o *Orchestrator) Pending() []models.MergeRequest {
	return o.queue.Pending()
}

// QueueStats returns the merge statistics of this process.
func (o *Orchestrator) QueueStats() merge.Stats {
	return o.queue.Stats()
}

// QueueRunning reports whether this process runs the merge workers.
func (o *Orchestrator) QueueRunning() bool {
	return o.queue.Running()
}

// MergeHistory returns recent finished merge requests, newest first.
func (o *Orchestrator) MergeHistory(limit int) ([]models.MergeRequest, error) {
	all, err := o.db.ListMergeRequests(nil)
	if err != nil {
		return nil, err
	}
	var done []models.MergeRequest
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].State.Outstanding() {
			continue
		}
		done = append(done, all[i])
		if limit > 0 && len(done) == limit {
			break
		}
	}
	return done, nil
}

// Orphans returns the sessions awaiting an adopt or discard decision.
func (o *Orchestrator) Orphans() []models.Session {
	return o.sessions.Orphans()
}

// Adopt resumes an orphaned session as new.
func (o *Orchestrator) Adopt(ctx context.Context, name string) (models.Session, error) {
	s, err := o.sessions.Adopt(ctx, name)
	if err == nil {
		o.events.Emit(Event{Type: EventSessionAdopted, Session: name})
	}
	return s, err
}

// Discard removes an orphaned session and releases its worktree.
func (o *Orchestrator) Discard(ctx context.Context, name string) error {
	if err := o.sessions.Discard(ctx, name); err != nil {
		return err
	}
	o.events.Emit(Event{Type: EventSessionDiscarded, Session: name})
	return nil
}

// RunHook runs the hook for phase in the named session's context.
func (o *Orchestrator) RunHook(ctx context.Context, phase hooks.Phase, name string) (hooks.Result, error) {
	hc, err := o.sessions.HookContext(name, o.cfg.Merge.Target)
	if err != nil {
		return hooks.Result{}, err
	}
	return o.hooks.Run(ctx, phase, hc), nil
}

// InstallGitHooks writes the git hook shims that call exe back into this
// repository.
func (o *Orchestrator) InstallGitHooks(ctx context.Context, exe string, force bool) ([]string, error) {
	dir, err := o.git.HooksDir(ctx)
	if err != nil {
		return nil, cmerrors.GitFailed("orchestrator.InstallGitHooks", err)
	}
	return hooks.Install(dir, exe, o.repo, force)
}

// CleanupOptions tunes Cleanup.
type CleanupOptions struct {
	// RemoveStray removes managed worktrees no session owns.
	RemoveStray bool
	// HistoryAge purges finished merge requests older than this; zero keeps them.
	HistoryAge time.Duration
}

// CleanupReport summarizes a Cleanup.
type CleanupReport struct {
	Retried int
	Stray   []string
	Removed []string
	Purged  int64
}

// Cleanup retries deferred worktree removals, prunes stale worktree
// references and reports (optionally removes) worktrees no session owns.
func (o *Orchestrator) Cleanup(ctx context.Context, opts CleanupOptions) (CleanupReport, error) {
	const op cmerrors.Op = "orchestrator.Cleanup"
	var report CleanupReport

	n, err := o.worktrees.RetryPending(ctx)
	if err != nil {
		return report, cmerrors.E(op, err)
	}
	report.Retried = n
	if err := o.worktrees.Prune(ctx); err != nil {
		return report, cmerrors.E(op, err)
	}

	var owned []string
	for _, s := range o.sessions.List() {
		if !s.State.Terminal() && s.WorktreePath != "" {
			owned = append(owned, s.WorktreePath)
		}
	}
	stray, err := o.worktrees.Orphans(ctx, owned)
	if err != nil {
		return report, cmerrors.E(op, err)
	}
	for _, wt := range stray {
		report.Stray = append(report.Stray, wt.Path)
		if !opts.RemoveStray {
			continue
		}
		if err := o.worktrees.Release(ctx, wt.Path); err != nil {
			return report, cmerrors.E(op, err)
		}
		report.Removed = append(report.Removed, wt.Path)
	}

	if opts.HistoryAge > 0 {
		if report.Purged, err = o.db.PurgeMergeHistory(opts.HistoryAge); err != nil {
			return report, cmerrors.E(op, err)
		}
	}
	return report, nil
}
