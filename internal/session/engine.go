// Package session owns the session state machine and the registry of live
// sessions. Every transition goes through the Engine's single lock; external
// work (hooks, git, tmux) runs with the lock released while the session is
// marked busy, and the durable record is written before a transition is
// reported to the caller.
package session

import (
	"context"
	"fmt"
	"os/exec"
	"sort"
	"sync"
	"time"

	cmerrors "github.com/Draidel/ClaudeMix/internal/errors"
	"github.com/Draidel/ClaudeMix/internal/hooks"
	"github.com/Draidel/ClaudeMix/internal/logging"
	"github.com/Draidel/ClaudeMix/internal/persist"
	"github.com/Draidel/ClaudeMix/pkg/models"
)

// Store is the durable registry.
type Store interface {
	SaveSession(s *models.Session) error
	ListSessions() ([]models.Session, error)
	DeleteSession(name string) error
}

// Worktrees allocates session working directories.
type Worktrees interface {
	PathFor(branch string) string
	Acquire(ctx context.Context, branch, startPoint string) (string, error)
	Release(ctx context.Context, path string) error
	Exists(ctx context.Context, path string) (bool, error)
}

// Config holds the engine settings derived from the user configuration.
type Config struct {
	// RepoPath is the repository all sessions work against.
	RepoPath string
	// Target is the default merge target; new branches start from it.
	Target string
}

// StartOptions tunes a single start.
type StartOptions struct {
	// NoPersist runs the session in the foreground even when a backend is available.
	NoPersist bool
	// StartPoint is the ref a new branch is created from (defaults to Config.Target).
	StartPoint string
}

// Attachment tells the caller how to connect a terminal to a session.
type Attachment struct {
	Session models.Session
	// Command attaches to the persistence handle; nil in foreground mode.
	Command *exec.Cmd
	// Foreground is set when no live handle exists and the caller must run
	// the agent itself in Dir.
	Foreground bool
	Dir        string
}

type entry struct {
	s models.Session
	// busy names the off-lock operation in flight, empty when idle.
	busy string
}

// Engine is the session state machine and registry.
type Engine struct {
	mu       sync.Mutex
	sessions map[string]*entry

	store     Store
	worktrees Worktrees
	backend   persist.Backend
	hooks     hooks.Runner
	cfg       Config

	// Now is the clock, replaceable in tests.
	Now func() time.Time
}

// New creates an engine. A nil backend is treated as unavailable.
func New(cfg Config, store Store, worktrees Worktrees, backend persist.Backend, hookRunner hooks.Runner) *Engine {
	if backend == nil {
		backend = persist.Unavailable{}
	}
	if cfg.Target == "" {
		cfg.Target = "main"
	}
	return &Engine{
		sessions:  make(map[string]*entry),
		store:     store,
		worktrees: worktrees,
		backend:   backend,
		hooks:     hookRunner,
		cfg:       cfg,
		Now:       time.Now,
	}
}

// Backend returns the persistence backend chosen at startup.
func (e *Engine) Backend() persist.Backend {
	return e.backend
}

// hookContext builds the hook environment for s.
func (e *Engine) hookContext(s models.Session, target string) hooks.Context {
	if target == "" {
		target = e.cfg.Target
	}
	return hooks.Context{
		Session:  s.Name,
		Branch:   s.Branch,
		Target:   target,
		Worktree: s.WorktreePath,
		Repo:     e.cfg.RepoPath,
	}
}

// HookContext returns the hook environment for a registered session.
func (e *Engine) HookContext(name, target string) (hooks.Context, error) {
	s, ok := e.Get(name)
	if !ok {
		return hooks.Context{}, cmerrors.SessionNotFound("session.HookContext", name)
	}
	return e.hookContext(s, target), nil
}

// save persists the entry. Caller holds e.mu.
func (e *Engine) save(en *entry) error {
	en.s.LastActivity = e.Now()
	return e.store.SaveSession(&en.s)
}

// lookup returns the idle entry for name. Caller holds e.mu.
func (e *Engine) lookup(op cmerrors.Op, name string) (*entry, error) {
	en, ok := e.sessions[name]
	if !ok {
		return nil, cmerrors.SessionNotFound(op, name)
	}
	if en.busy != "" {
		return nil, cmerrors.SessionBusy(op, name, en.busy)
	}
	return en, nil
}

// finish clears the busy flag and applies fn under the lock, then persists.
// If en was force closed or replaced while the operation ran, nothing is
// applied and a NotFound error is returned.
func (e *Engine) finish(en *entry, fn func(s *models.Session)) (models.Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	name := en.s.Name
	if cur, ok := e.sessions[name]; !ok || cur != en || en.s.State == models.SessionClosed {
		return models.Session{}, cmerrors.E(cmerrors.Op("session.finish"), cmerrors.KindNotFound,
			fmt.Sprintf("session %q was closed while the operation ran", name))
	}
	en.busy = ""
	if fn != nil {
		fn(&en.s)
	}
	return en.s, e.save(en)
}

// Start creates a session bound to branch and brings it to Active.
func (e *Engine) Start(ctx context.Context, name, branch string, opts StartOptions) (models.Session, error) {
	const op cmerrors.Op = "session.Start"
	log := logging.Component("session")

	if name == "" || branch == "" {
		return models.Session{}, cmerrors.E(op, cmerrors.KindInvalidTransition, "session name and branch are required")
	}

	e.mu.Lock()
	for _, other := range e.sessions {
		if other.s.State.Terminal() {
			continue
		}
		if other.s.Name == name || other.s.Branch == branch {
			e.mu.Unlock()
			return models.Session{}, cmerrors.DuplicateSession(op, name, other.s.Name)
		}
	}
	now := e.Now()
	en := &entry{
		s: models.Session{
			Name:         name,
			RepoPath:     e.cfg.RepoPath,
			WorktreePath: e.worktrees.PathFor(branch),
			Branch:       branch,
			State:        models.SessionInitializing,
			CreatedAt:    now,
		},
		busy: "starting",
	}
	// A terminal entry with the same name is replaced.
	e.sessions[name] = en
	if err := e.save(en); err != nil {
		delete(e.sessions, name)
		e.mu.Unlock()
		return models.Session{}, cmerrors.E(op, err)
	}
	snapshot := en.s
	e.mu.Unlock()

	log.Info("starting session", "session", name, "branch", branch)

	if err := e.hooks.Check(ctx, hooks.PreStart, e.hookContext(snapshot, "")); err != nil {
		e.fail(en, err)
		return models.Session{}, err
	}

	startPoint := opts.StartPoint
	if startPoint == "" {
		startPoint = e.cfg.Target
	}
	path, err := e.worktrees.Acquire(ctx, branch, startPoint)
	if err != nil {
		e.fail(en, err)
		return models.Session{}, err
	}

	handle := ""
	if !opts.NoPersist && e.backend.Available() {
		h, err := e.backend.Attach(ctx, name, path)
		if err != nil {
			log.Warn("persistence attach failed, running in foreground", "session", name, "error", err)
		} else {
			handle = h
		}
	}

	s, err := e.finish(en, func(s *models.Session) {
		s.WorktreePath = path
		s.Handle = handle
		s.State = models.SessionActive
	})
	if cmerrors.Is(err, cmerrors.KindNotFound) {
		// Closed mid-start: the close ran before these resources existed.
		if handle != "" {
			_ = e.backend.Kill(ctx, handle)
		}
		if err := e.worktrees.Release(ctx, path); err != nil {
			log.Warn("release worktree of closed session", "session", name, "path", path, "error", err)
		}
		return models.Session{}, cmerrors.E(op, err)
	}
	if err != nil {
		return s, cmerrors.E(op, err)
	}
	log.Info("session active", "session", name, "worktree", path, "handle", handle)

	_ = e.hooks.Check(ctx, hooks.PostStart, e.hookContext(s, ""))
	return s, nil
}

// fail moves a session that could not be set up to Failed. The worktree
// was never acquired, so the recorded path is dropped.
func (e *Engine) fail(en *entry, cause error) {
	name := en.s.Name
	s, err := e.finish(en, func(s *models.Session) {
		s.State = models.SessionFailed
		s.LastError = cause.Error()
		s.WorktreePath = ""
	})
	logging.Component("session").Warn("session failed", "session", s.Name, "error", cause)
	if err != nil {
		logging.Component("session").Error("persist failed session", "session", name, "error", err)
	}
}

// Pause detaches any terminal from the session and keeps its resources.
func (e *Engine) Pause(ctx context.Context, name string) (models.Session, error) {
	const op cmerrors.Op = "session.Pause"

	e.mu.Lock()
	en, err := e.lookup(op, name)
	if err != nil {
		e.mu.Unlock()
		return models.Session{}, err
	}
	if en.s.State != models.SessionActive && en.s.State != models.SessionPaused {
		e.mu.Unlock()
		return models.Session{}, cmerrors.InvalidTransition(op, name, en.s.State, models.SessionPaused)
	}
	en.busy = "pausing"
	handle := en.s.Handle
	e.mu.Unlock()

	if handle != "" && e.backend.Available() {
		if err := e.backend.Detach(ctx, handle); err != nil {
			logging.Component("session").Warn("detach failed", "session", name, "error", err)
		}
	}

	return e.finish(en, func(s *models.Session) {
		s.State = models.SessionPaused
	})
}

// Resume reattaches to the session's persistence handle. Without a live
// handle it returns a foreground Attachment together with a
// PersistenceUnavailable error; the session is Active either way.
func (e *Engine) Resume(ctx context.Context, name string) (*Attachment, error) {
	const op cmerrors.Op = "session.Resume"

	e.mu.Lock()
	en, err := e.lookup(op, name)
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}
	if en.s.State != models.SessionActive && en.s.State != models.SessionPaused {
		e.mu.Unlock()
		return nil, cmerrors.InvalidTransition(op, name, en.s.State, models.SessionActive)
	}
	en.busy = "resuming"
	handle := en.s.Handle
	e.mu.Unlock()

	var cause error
	if handle == "" || !e.backend.Available() {
		cause = cmerrors.PersistenceUnavailable(op, nil)
	} else if alive, err := e.backend.IsAlive(ctx, handle); err != nil || !alive {
		if err == nil {
			err = cmerrors.E(op, "persistence handle "+handle+" is gone")
		}
		cause = cmerrors.PersistenceUnavailable(op, err)
		handle = ""
	}

	s, err := e.finish(en, func(s *models.Session) {
		s.State = models.SessionActive
		s.Handle = handle
	})
	if err != nil {
		return nil, cmerrors.E(op, err)
	}

	if cause != nil {
		logging.Component("session").Info("resuming in foreground", "session", name, "reason", cause)
		return &Attachment{Session: s, Foreground: true, Dir: s.WorktreePath}, cause
	}
	return &Attachment{Session: s, Command: e.backend.AttachCommand(handle), Dir: s.WorktreePath}, nil
}

// MarkReady runs the pre-merge hook and moves the session to ReadyToMerge.
// A rejected hook leaves the state unchanged and returns HookRejected.
func (e *Engine) MarkReady(ctx context.Context, name, target string) (models.Session, error) {
	const op cmerrors.Op = "session.MarkReady"

	e.mu.Lock()
	en, err := e.lookup(op, name)
	if err != nil {
		e.mu.Unlock()
		return models.Session{}, err
	}
	switch en.s.State {
	case models.SessionReadyToMerge:
		s := en.s
		e.mu.Unlock()
		return s, nil
	case models.SessionActive, models.SessionPaused:
	default:
		e.mu.Unlock()
		return models.Session{}, cmerrors.InvalidTransition(op, name, en.s.State, models.SessionReadyToMerge)
	}
	en.busy = "running pre-merge hook"
	snapshot := en.s
	e.mu.Unlock()

	hookErr := e.hooks.Check(ctx, hooks.PreMerge, e.hookContext(snapshot, target))

	s, err := e.finish(en, func(s *models.Session) {
		if hookErr != nil {
			s.LastError = hookErr.Error()
			return
		}
		s.State = models.SessionReadyToMerge
		s.PreMergeDone = true
		s.LastError = ""
	})
	if err != nil {
		return s, cmerrors.E(op, err)
	}
	if hookErr != nil {
		return s, hookErr
	}
	logging.Component("session").Info("session ready to merge", "session", name)
	return s, nil
}

// Close moves the session to Closed, releases its worktree and persistence
// handle and removes it from the registry. Without force a Merging session,
// or one with an operation in flight, is refused with SessionBusy. With
// force the in-flight operation's result is discarded.
func (e *Engine) Close(ctx context.Context, name string, force bool) error {
	const op cmerrors.Op = "session.Close"
	log := logging.Component("session")

	e.mu.Lock()
	en, ok := e.sessions[name]
	if !ok {
		e.mu.Unlock()
		return cmerrors.SessionNotFound(op, name)
	}
	if en.busy != "" && (!force || en.busy == "closing") {
		busy := en.busy
		e.mu.Unlock()
		return cmerrors.SessionBusy(op, name, busy)
	}
	if en.s.State == models.SessionMerging && !force {
		e.mu.Unlock()
		return cmerrors.SessionBusy(op, name, "merge in progress")
	}
	if en.busy != "" {
		log.Warn("force closing a busy session", "session", name, "busy", en.busy)
	} else if en.s.State == models.SessionMerging {
		log.Warn("force closing a merging session", "session", name)
	}
	return e.closeLocked(ctx, en)
}

// closeLocked persists Closed, then releases resources off the lock.
// Caller holds e.mu; it is released on return.
func (e *Engine) closeLocked(ctx context.Context, en *entry) error {
	name := en.s.Name
	prev := en.s.State
	en.s.State = models.SessionClosed
	if err := e.save(en); err != nil {
		en.s.State = prev
		e.mu.Unlock()
		return cmerrors.E(cmerrors.Op("session.Close"), err)
	}
	en.busy = "closing"
	snapshot := en.s
	e.mu.Unlock()

	e.release(ctx, snapshot)

	e.mu.Lock()
	defer e.mu.Unlock()
	if cur, ok := e.sessions[name]; ok && cur == en {
		delete(e.sessions, name)
	}
	if err := e.store.DeleteSession(name); err != nil {
		return cmerrors.E(cmerrors.Op("session.Close"), err)
	}
	logging.Component("session").Info("session closed", "session", name)
	return nil
}

// release runs the close hook and frees the session's external resources.
// Every step runs even if an earlier one fails.
func (e *Engine) release(ctx context.Context, s models.Session) {
	log := logging.Component("session")

	_ = e.hooks.Check(ctx, hooks.SessionClose, e.hookContext(s, ""))

	if s.Handle != "" {
		if err := e.backend.Kill(ctx, s.Handle); err != nil {
			log.Warn("kill persistence handle", "session", s.Name, "handle", s.Handle, "error", err)
		}
	}
	if s.WorktreePath != "" {
		if err := e.worktrees.Release(ctx, s.WorktreePath); err != nil {
			log.Warn("release worktree", "session", s.Name, "path", s.WorktreePath, "error", err)
		}
	}
}

// Get returns a copy of the named session.
func (e *Engine) Get(name string) (models.Session, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	en, ok := e.sessions[name]
	if !ok {
		return models.Session{}, false
	}
	return en.s, true
}

// List returns all registered sessions, oldest first.
func (e *Engine) List() []models.Session {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]models.Session, 0, len(e.sessions))
	for _, en := range e.sessions {
		out = append(out, en.s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Name < out[j].Name
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Orphans returns the sessions awaiting an adopt or discard decision.
func (e *Engine) Orphans() []models.Session {
	var out []models.Session
	for _, s := range e.List() {
		if s.State == models.SessionOrphaned {
			out = append(out, s)
		}
	}
	return out
}

// Owner returns the non-terminal session owning branch, if any.
func (e *Engine) Owner(branch string) (models.Session, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, en := range e.sessions {
		if !en.s.State.Terminal() && en.s.Branch == branch {
			return en.s, true
		}
	}
	return models.Session{}, false
}

// Flush writes every registered session to the store.
func (e *Engine) Flush() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, en := range e.sessions {
		if err := e.store.SaveSession(&en.s); err != nil {
			return err
		}
	}
	return nil
}
