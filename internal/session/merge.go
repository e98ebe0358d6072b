package session

import (
	"context"

	cmerrors "github.com/Draidel/ClaudeMix/internal/errors"
	"github.com/Draidel/ClaudeMix/internal/logging"
	"github.com/Draidel/ClaudeMix/pkg/models"
)

// BeginMerge moves a ReadyToMerge session to Merging. The merge queue calls
// it right before touching the repository.
func (e *Engine) BeginMerge(ctx context.Context, name string) error {
	const op cmerrors.Op = "session.BeginMerge"

	e.mu.Lock()
	defer e.mu.Unlock()

	en, err := e.lookup(op, name)
	if err != nil {
		return err
	}
	if en.s.State != models.SessionReadyToMerge {
		return cmerrors.InvalidTransition(op, name, en.s.State, models.SessionMerging)
	}
	en.s.State = models.SessionMerging
	en.s.LastError = ""
	if err := e.save(en); err != nil {
		en.s.State = models.SessionReadyToMerge
		return cmerrors.E(op, err)
	}
	logging.Component("session").Info("session merging", "session", name)
	return nil
}

// FinishMerge records a merge outcome. Success closes the session and
// releases its resources; any failure returns it to ReadyToMerge with the
// error recorded, so the user can fix things and enqueue it again.
func (e *Engine) FinishMerge(ctx context.Context, name string, mergeErr error) error {
	const op cmerrors.Op = "session.FinishMerge"
	log := logging.Component("session")

	e.mu.Lock()
	en, ok := e.sessions[name]
	if !ok {
		e.mu.Unlock()
		log.Warn("merge finished for unknown session", "session", name, "merge_error", mergeErr)
		return cmerrors.SessionNotFound(op, name)
	}
	if en.s.State != models.SessionMerging {
		state := en.s.State
		e.mu.Unlock()
		log.Warn("merge finished for session not merging", "session", name, "state", state)
		return cmerrors.InvalidTransition(op, name, state, models.SessionClosed)
	}

	if mergeErr != nil {
		en.s.State = models.SessionReadyToMerge
		en.s.LastError = mergeErr.Error()
		en.s.PreMergeDone = false
		err := e.save(en)
		e.mu.Unlock()
		log.Warn("merge failed, session back to ready", "session", name, "error", mergeErr)
		if err != nil {
			return cmerrors.E(op, err)
		}
		return nil
	}

	return e.closeLocked(ctx, en)
}

// RejectMerge records a pre-merge hook rejection from the queue. The
// session keeps its state; the hook runs again on the next enqueue.
func (e *Engine) RejectMerge(ctx context.Context, name string, hookErr error) error {
	const op cmerrors.Op = "session.RejectMerge"

	e.mu.Lock()
	defer e.mu.Unlock()

	en, ok := e.sessions[name]
	if !ok || en.s.State.Terminal() {
		return cmerrors.SessionNotFound(op, name)
	}
	en.s.LastError = hookErr.Error()
	en.s.PreMergeDone = false
	if err := e.save(en); err != nil {
		return cmerrors.E(op, err)
	}
	logging.Component("session").Warn("merge rejected by pre-merge hook", "session", name, "error", hookErr)
	return nil
}
