package orchestrator

import (
	"time"
)

// EventType represents the type of orchestrator event.
type EventType string

const (
	// EventSessionStarted indicates a session reached Active.
	EventSessionStarted EventType = "session_started"
	// EventSessionPaused indicates a session was detached.
	EventSessionPaused EventType = "session_paused"
	// EventSessionResumed indicates a session was reattached, possibly in the foreground.
	EventSessionResumed EventType = "session_resumed"
	// EventSessionReady indicates a session passed its pre-merge hook.
	EventSessionReady EventType = "session_ready"
	// EventSessionClosed indicates a session was closed and its resources released.
	EventSessionClosed EventType = "session_closed"
	// EventSessionAdopted indicates an orphaned session was resumed as new.
	EventSessionAdopted EventType = "session_adopted"
	// EventSessionDiscarded indicates an orphaned session was removed.
	EventSessionDiscarded EventType = "session_discarded"
	// EventMergeQueued indicates a merge request entered its target's FIFO.
	EventMergeQueued EventType = "merge_queued"
	// EventMergeWithdrawn indicates a queued request was removed before it ran.
	EventMergeWithdrawn EventType = "merge_withdrawn"
	// EventMergeStarted indicates a worker began merging a session.
	EventMergeStarted EventType = "merge_started"
	// EventMergeSucceeded indicates a merge (or pull request) completed.
	EventMergeSucceeded EventType = "merge_succeeded"
	// EventMergeFailed indicates a merge failed; the session is ready again.
	EventMergeFailed EventType = "merge_failed"
	// EventConfigReloaded indicates the hook table was replaced.
	EventConfigReloaded EventType = "config_reloaded"
)

// Event represents an event emitted by the orchestrator.
// serve prints them as they happen.
type Event struct {
	// Type is the kind of event.
	Type EventType
	// Session is the name of the related session, if applicable.
	Session string
	// Target is the merge target branch for merge events.
	Target string
	// Message provides additional context about the event.
	Message string
	// Error contains error details for failure events.
	Error error
	// Timestamp is when the event occurred.
	Timestamp time.Time
}
