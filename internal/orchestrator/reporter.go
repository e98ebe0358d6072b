package orchestrator

import (
	"context"

	"github.com/Draidel/ClaudeMix/internal/merge"
	"github.com/Draidel/ClaudeMix/internal/session"
)

// reporter forwards merge transitions to the session engine and emits
// the matching events.
type reporter struct {
	engine *session.Engine
	events *EventEmitter
}

var _ merge.Reporter = (*reporter)(nil)

func (r *reporter) BeginMerge(ctx context.Context, name string) error {
	if err := r.engine.BeginMerge(ctx, name); err != nil {
		return err
	}
	r.events.Emit(Event{Type: EventMergeStarted, Session: name})
	return nil
}

func (r *reporter) FinishMerge(ctx context.Context, name string, mergeErr error) error {
	err := r.engine.FinishMerge(ctx, name, mergeErr)
	if mergeErr != nil {
		r.events.Emit(Event{Type: EventMergeFailed, Session: name, Error: mergeErr})
	} else {
		r.events.Emit(Event{Type: EventMergeSucceeded, Session: name})
	}
	return err
}

func (r *reporter) RejectMerge(ctx context.Context, name string, hookErr error) error {
	err := r.engine.RejectMerge(ctx, name, hookErr)
	r.events.Emit(Event{Type: EventMergeFailed, Session: name, Error: hookErr})
	return err
}
