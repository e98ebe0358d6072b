package models

import "time"

// SessionState represents the lifecycle state of a session.
type SessionState string

const (
	// SessionInitializing indicates the session is being set up (worktree, persistence).
	SessionInitializing SessionState = "initializing"
	// SessionActive indicates the session is running and owns its worktree.
	SessionActive SessionState = "active"
	// SessionPaused indicates the session is detached but its resources are kept.
	SessionPaused SessionState = "paused"
	// SessionReadyToMerge indicates the work is finished and passed the pre-merge hook.
	SessionReadyToMerge SessionState = "ready_to_merge"
	// SessionMerging indicates a merge queue worker is merging the session branch.
	SessionMerging SessionState = "merging"
	// SessionClosed indicates the session was closed and its resources released.
	SessionClosed SessionState = "closed"
	// SessionFailed indicates the session could not be set up.
	SessionFailed SessionState = "failed"
	// SessionOrphaned indicates the persisted session lost its backing process.
	SessionOrphaned SessionState = "orphaned"
)

// Valid returns true if the state is a known value.
func (s SessionState) Valid() bool {
	switch s {
	case SessionInitializing, SessionActive, SessionPaused, SessionReadyToMerge,
		SessionMerging, SessionClosed, SessionFailed, SessionOrphaned:
		return true
	default:
		return false
	}
}

// Terminal returns true for states a session never leaves.
// Terminal sessions no longer own their branch.
func (s SessionState) Terminal() bool {
	return s == SessionClosed || s == SessionFailed
}

// Session is one concurrent coding session bound to a branch and worktree.
type Session struct {
	// Name is the unique session identifier, derived from the branch name.
	Name string `json:"name"`
	// RepoPath is the path to the target repository.
	RepoPath string `json:"repo_path"`
	// WorktreePath is the isolated working directory of this session.
	WorktreePath string `json:"worktree_path,omitempty"`
	// Branch is the branch checked out in the worktree.
	Branch string `json:"branch"`
	// Handle references the persistence backend session, empty in foreground mode.
	Handle string `json:"handle,omitempty"`
	// State is the current lifecycle state.
	State SessionState `json:"state"`
	// CreatedAt is when the session was started.
	CreatedAt time.Time `json:"created_at"`
	// LastActivity is updated on every transition and attach.
	LastActivity time.Time `json:"last_activity"`
	// LastError holds the most recent failure message, if any.
	LastError string `json:"last_error,omitempty"`
	// PreMergeDone records that the pre-merge hook passed for the current ready cycle.
	PreMergeDone bool `json:"pre_merge_done,omitempty"`
}

// Persistent returns true if the session is backed by a persistence handle.
func (s *Session) Persistent() bool {
	return s.Handle != ""
}
