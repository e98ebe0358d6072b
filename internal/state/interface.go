// Package state provides SQLite-based state management for ClaudeMix.
package state

import (
	"io"

	"github.com/Draidel/ClaudeMix/pkg/models"
)

// SessionStore handles session persistence.
type SessionStore interface {
	// SaveSession inserts or replaces the session record.
	SaveSession(s *models.Session) error
	ListSessions() ([]models.Session, error)
	DeleteSession(name string) error
}

// MergeStore handles merge request persistence.
type MergeStore interface {
	// SaveMergeRequest inserts or replaces the request record.
	SaveMergeRequest(r *models.MergeRequest) error
	// ListMergeRequests returns requests in enqueue order, optionally filtered by state.
	// SaveMergeRequests saves several requests atomically.
	SaveMergeRequests(rs []models.MergeRequest) error
	ListMergeRequests(state *models.MergeState) ([]models.MergeRequest, error)
}

// CleanupStore records worktree paths whose removal failed and must be retried.
type CleanupStore interface {
	AddPendingCleanup(path, reason string) error
	ListPendingCleanup() ([]PendingCleanup, error)
	DeletePendingCleanup(path string) error
}

// Migrator handles database schema migrations.
// Separating this allows clients to depend only on migration functionality.
type Migrator interface {
	// Migrate applies all pending schema migrations.
	Migrate() error
}

// StateStore defines the interface for state persistence.
// It composes focused sub-interfaces so the session engine, merge queue and
// worktree manager each depend only on what they use.
type StateStore interface {
	io.Closer
	Migrator
	SessionStore
	MergeStore
	CleanupStore
}

// Compile-time verification that DB implements all interfaces.
var (
	_ StateStore   = (*DB)(nil)
	_ Migrator     = (*DB)(nil)
	_ SessionStore = (*DB)(nil)
	_ MergeStore   = (*DB)(nil)
	_ CleanupStore = (*DB)(nil)
)
