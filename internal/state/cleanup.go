package state

import (
	"fmt"
	"time"
)

// PendingCleanup is a worktree directory whose removal failed.
type PendingCleanup struct {
	Path        string
	Reason      string
	Attempts    int
	CreatedAt   time.Time
	LastAttempt time.Time
}

// AddPendingCleanup records a failed removal, bumping the attempt count
// when the path is already recorded.
func (db *DB) AddPendingCleanup(path, reason string) error {
	now := formatTime(time.Now())
	_, err := db.Exec(`
		INSERT INTO pending_cleanup (path, reason, attempts, created_at, last_attempt)
		VALUES (?, ?, 1, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			reason = excluded.reason,
			attempts = pending_cleanup.attempts + 1,
			last_attempt = excluded.last_attempt
	`, path, reason, now, now)
	if err != nil {
		return fmt.Errorf("add pending cleanup: %w", err)
	}
	return nil
}

// ListPendingCleanup returns all recorded paths, oldest first.
func (db *DB) ListPendingCleanup() ([]PendingCleanup, error) {
	rows, err := db.Query(`
		SELECT path, reason, attempts, created_at, last_attempt
		FROM pending_cleanup ORDER BY created_at, path
	`)
	if err != nil {
		return nil, fmt.Errorf("list pending cleanup: %w", err)
	}
	defer rows.Close()

	var pending []PendingCleanup
	for rows.Next() {
		var p PendingCleanup
		var createdAt, lastAttempt string
		var reason *string
		if err := rows.Scan(&p.Path, &reason, &p.Attempts, &createdAt, &lastAttempt); err != nil {
			return nil, fmt.Errorf("scan pending cleanup: %w", err)
		}
		if reason != nil {
			p.Reason = *reason
		}
		p.CreatedAt, _ = parseTime(createdAt)
		p.LastAttempt, _ = parseTime(lastAttempt)
		pending = append(pending, p)
	}
	return pending, rows.Err()
}

// DeletePendingCleanup removes a path once its directory is gone.
func (db *DB) DeletePendingCleanup(path string) error {
	_, err := db.Exec("DELETE FROM pending_cleanup WHERE path = ?", path)
	if err != nil {
		return fmt.Errorf("delete pending cleanup: %w", err)
	}
	return nil
}
