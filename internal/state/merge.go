package state

import (
	"database/sql"
	"fmt"

	"github.com/Draidel/ClaudeMix/pkg/models"
)

const mergeColumns = `id, session, source_branch, target_branch, worktree_path, state,
	last_error, pre_merge_done, enqueued_at, updated_at`

// execer is satisfied by *DB and *sql.Tx.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func saveMergeRequest(ex execer, r *models.MergeRequest) error {
	_, err := ex.Exec(`
		INSERT INTO merge_requests (`+mergeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			last_error = excluded.last_error,
			pre_merge_done = excluded.pre_merge_done,
			worktree_path = excluded.worktree_path,
			updated_at = excluded.updated_at
	`, r.ID, r.Session, r.SourceBranch, r.TargetBranch, r.WorktreePath, string(r.State),
		r.LastError, boolInt(r.PreMergeDone), formatTime(r.EnqueuedAt), formatTime(r.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save merge request %s: %w", r.ID, err)
	}
	return nil
}

// SaveMergeRequest inserts the request or replaces the existing record.
// Replacing keeps the original rowid, so enqueue order survives state updates.
func (db *DB) SaveMergeRequest(r *models.MergeRequest) error {
	return saveMergeRequest(db, r)
}

// SaveMergeRequests saves all requests in one transaction.
func (db *DB) SaveMergeRequests(rs []models.MergeRequest) error {
	return db.Transaction(func(tx *sql.Tx) error {
		for i := range rs {
			if err := saveMergeRequest(tx, &rs[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListMergeRequests lists requests in enqueue order, optionally filtered by state.
func (db *DB) ListMergeRequests(state *models.MergeState) ([]models.MergeRequest, error) {
	var rows *sql.Rows
	var err error

	if state != nil {
		rows, err = db.Query(`
			SELECT `+mergeColumns+` FROM merge_requests
			WHERE state = ? ORDER BY enqueued_at, rowid
		`, string(*state))
	} else {
		rows, err = db.Query(`
			SELECT ` + mergeColumns + ` FROM merge_requests
			ORDER BY enqueued_at, rowid
		`)
	}
	if err != nil {
		return nil, fmt.Errorf("list merge requests: %w", err)
	}
	defer rows.Close()

	var requests []models.MergeRequest
	for rows.Next() {
		var r models.MergeRequest
		var worktreePath, lastError sql.NullString
		var enqueuedAt, updatedAt string
		var preMergeDone int
		if err := rows.Scan(&r.ID, &r.Session, &r.SourceBranch, &r.TargetBranch, &worktreePath, &r.State,
			&lastError, &preMergeDone, &enqueuedAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan merge request: %w", err)
		}
		r.WorktreePath = worktreePath.String
		r.LastError = lastError.String
		r.PreMergeDone = preMergeDone != 0
		r.EnqueuedAt, _ = parseTime(enqueuedAt)
		r.UpdatedAt, _ = parseTime(updatedAt)
		requests = append(requests, r)
	}
	return requests, rows.Err()
}
