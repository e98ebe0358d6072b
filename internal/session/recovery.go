package session

import (
	"context"
	"fmt"

	cmerrors "github.com/Draidel/ClaudeMix/internal/errors"
	"github.com/Draidel/ClaudeMix/internal/logging"
	"github.com/Draidel/ClaudeMix/internal/persist"
	"github.com/Draidel/ClaudeMix/pkg/models"
)

// ReconcileReport summarizes a Load.
type ReconcileReport struct {
	// Restored sessions kept their persisted state.
	Restored []string
	// Orphaned sessions lost their process or worktree.
	Orphaned []string
	// Requeued sessions were interrupted mid-merge and are ready again.
	Requeued []string
	// Purged sessions were already closed and have been cleaned up.
	Purged []string
}

// Load rebuilds the registry from the store and reconciles each entry
// against the persistence backend and the worktrees on disk. Sessions whose
// backing process is gone are marked Orphaned, never dropped.
func (e *Engine) Load(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport
	log := logging.Component("session")

	persisted, err := e.store.ListSessions()
	if err != nil {
		return report, cmerrors.E(cmerrors.Op("session.Load"), err)
	}

	var live map[string]bool
	if lister, ok := e.backend.(persist.Lister); ok && e.backend.Available() {
		if live, err = lister.LiveHandles(ctx); err != nil {
			log.Warn("listing persistence handles failed, checking one by one", "error", err)
			live = nil
		}
	}

	for _, s := range persisted {
		if s.State == models.SessionClosed {
			// Crashed between the durable close and the cleanup.
			e.release(ctx, s)
			if err := e.store.DeleteSession(s.Name); err != nil {
				log.Error("delete closed session", "session", s.Name, "error", err)
			}
			report.Purged = append(report.Purged, s.Name)
			continue
		}

		before := s.State
		reason := e.classify(ctx, &s, live)

		if s.State != before {
			s.LastError = reason
		}

		e.mu.Lock()
		en := &entry{s: s}
		e.sessions[s.Name] = en
		if s.State != before {
			if err := e.save(en); err != nil {
				e.mu.Unlock()
				return report, cmerrors.E(cmerrors.Op("session.Load"), err)
			}
		}
		e.mu.Unlock()

		switch {
		case s.State == models.SessionOrphaned && before != models.SessionOrphaned:
			log.Warn("session orphaned", "session", s.Name, "was", before, "reason", reason)
			report.Orphaned = append(report.Orphaned, s.Name)
		case before == models.SessionMerging:
			log.Warn("merge interrupted", "session", s.Name)
			report.Requeued = append(report.Requeued, s.Name)
		default:
			report.Restored = append(report.Restored, s.Name)
		}
	}

	log.Info("registry loaded",
		"restored", len(report.Restored), "orphaned", len(report.Orphaned),
		"requeued", len(report.Requeued), "purged", len(report.Purged))
	return report, nil
}

// classify updates s.State for a restart and returns the reason for any
// change. live, when non-nil, holds every handle the backend still runs.
func (e *Engine) classify(ctx context.Context, s *models.Session, live map[string]bool) string {
	switch s.State {
	case models.SessionInitializing:
		s.State = models.SessionOrphaned
		return "interrupted while starting"

	case models.SessionMerging:
		s.State = models.SessionReadyToMerge
		s.PreMergeDone = false
		return "merge interrupted"

	case models.SessionActive, models.SessionPaused:
		if ok, _ := e.worktrees.Exists(ctx, s.WorktreePath); !ok {
			s.State = models.SessionOrphaned
			return fmt.Sprintf("worktree %s is missing", s.WorktreePath)
		}
		if s.Handle == "" {
			// Foreground session: the worktree is all it owns.
			return ""
		}
		if !e.backend.Available() {
			s.State = models.SessionOrphaned
			return "persistence backend unavailable"
		}
		alive := live[s.Handle]
		if live == nil {
			ok, err := e.backend.IsAlive(ctx, s.Handle)
			alive = err == nil && ok
		}
		if !alive {
			s.State = models.SessionOrphaned
			s.Handle = ""
			return "persistence handle gone"
		}
	}
	return ""
}

// Adopt resumes an orphaned session as new: its worktree is re-acquired,
// a fresh persistence handle is created when possible, and it becomes Active.
func (e *Engine) Adopt(ctx context.Context, name string) (models.Session, error) {
	const op cmerrors.Op = "session.Adopt"

	e.mu.Lock()
	en, err := e.lookup(op, name)
	if err != nil {
		e.mu.Unlock()
		return models.Session{}, err
	}
	if en.s.State != models.SessionOrphaned {
		e.mu.Unlock()
		return models.Session{}, cmerrors.InvalidTransition(op, name, en.s.State, models.SessionActive)
	}
	en.busy = "adopting"
	snapshot := en.s
	e.mu.Unlock()

	path, err := e.worktrees.Acquire(ctx, snapshot.Branch, e.cfg.Target)
	if err != nil {
		_, _ = e.finish(en, func(s *models.Session) { s.LastError = err.Error() })
		return models.Session{}, err
	}

	if snapshot.Handle != "" {
		_ = e.backend.Kill(ctx, snapshot.Handle)
	}
	handle := ""
	if e.backend.Available() {
		if h, err := e.backend.Attach(ctx, name, path); err == nil {
			handle = h
		} else {
			logging.Component("session").Warn("persistence attach failed on adopt", "session", name, "error", err)
		}
	}

	s, err := e.finish(en, func(s *models.Session) {
		s.WorktreePath = path
		s.Handle = handle
		s.State = models.SessionActive
		s.LastError = ""
	})
	if err != nil {
		return s, cmerrors.E(op, err)
	}
	logging.Component("session").Info("orphan adopted", "session", name)
	return s, nil
}

// Discard releases an orphaned session's resources and removes it.
func (e *Engine) Discard(ctx context.Context, name string) error {
	const op cmerrors.Op = "session.Discard"

	e.mu.Lock()
	en, err := e.lookup(op, name)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	if en.s.State != models.SessionOrphaned {
		e.mu.Unlock()
		return cmerrors.InvalidTransition(op, name, en.s.State, models.SessionClosed)
	}
	return e.closeLocked(ctx, en)
}
