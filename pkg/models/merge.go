package models

import "time"

// MergeState represents the state of a merge request.
type MergeState string

const (
	// MergeQueued indicates the request waits in its target branch FIFO.
	MergeQueued MergeState = "queued"
	// MergeRunning indicates a worker is executing the request.
	MergeRunning MergeState = "merging"
	// MergeSucceeded indicates the source branch was merged (or a PR was opened).
	MergeSucceeded MergeState = "succeeded"
	// MergeFailed indicates the request failed; the session stays ready for another attempt.
	MergeFailed MergeState = "failed"
	// MergeWithdrawn indicates the request was removed before it started.
	MergeWithdrawn MergeState = "withdrawn"
)

// Valid returns true if the state is a known value.
func (s MergeState) Valid() bool {
	switch s {
	case MergeQueued, MergeRunning, MergeSucceeded, MergeFailed, MergeWithdrawn:
		return true
	default:
		return false
	}
}

// Outstanding returns true while the request still occupies the queue.
func (s MergeState) Outstanding() bool {
	return s == MergeQueued || s == MergeRunning
}

// MergeRequest is a request to merge a session branch into a target branch.
type MergeRequest struct {
	// ID uniquely identifies the request.
	ID string `json:"id"`
	// Session is the name of the session being merged.
	Session string `json:"session"`
	// SourceBranch is the session branch.
	SourceBranch string `json:"source_branch"`
	// TargetBranch is the branch being merged into.
	TargetBranch string `json:"target_branch"`
	// WorktreePath is where the source branch is checked out.
	WorktreePath string `json:"worktree_path,omitempty"`
	// State is the current request state.
	State MergeState `json:"state"`
	// LastError holds the failure message when State is MergeFailed.
	LastError string `json:"last_error,omitempty"`
	// PreMergeDone skips the pre-merge hook when the session already ran it.
	PreMergeDone bool `json:"pre_merge_done,omitempty"`
	// EnqueuedAt is when the request entered the queue.
	EnqueuedAt time.Time `json:"enqueued_at"`
	// UpdatedAt is when the request last changed state.
	UpdatedAt time.Time `json:"updated_at"`
}
