package state

import (
	"database/sql"
	"fmt"

	"github.com/Draidel/ClaudeMix/pkg/models"
)

const sessionColumns = `name, repo_path, worktree_path, branch, handle, state,
	created_at, last_activity, last_error, pre_merge_done`

// SaveSession inserts the session or replaces the existing record.
func (db *DB) SaveSession(s *models.Session) error {
	_, err := db.Exec(`
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			repo_path = excluded.repo_path,
			worktree_path = excluded.worktree_path,
			branch = excluded.branch,
			handle = excluded.handle,
			state = excluded.state,
			created_at = excluded.created_at,
			last_activity = excluded.last_activity,
			last_error = excluded.last_error,
			pre_merge_done = excluded.pre_merge_done
	`, s.Name, s.RepoPath, s.WorktreePath, s.Branch, s.Handle, string(s.State),
		formatTime(s.CreatedAt), formatTime(s.LastActivity), s.LastError, boolInt(s.PreMergeDone))
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// ListSessions lists all sessions, oldest first.
func (db *DB) ListSessions() ([]models.Session, error) {
	rows, err := db.Query(`SELECT ` + sessionColumns + ` FROM sessions ORDER BY created_at, name`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

// DeleteSession deletes a session by name.
func (db *DB) DeleteSession(name string) error {
	_, err := db.Exec("DELETE FROM sessions WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*models.Session, error) {
	var s models.Session
	var worktreePath, handle, lastError sql.NullString
	var createdAt, lastActivity string
	var preMergeDone int
	if err := row.Scan(&s.Name, &s.RepoPath, &worktreePath, &s.Branch, &handle, &s.State,
		&createdAt, &lastActivity, &lastError, &preMergeDone); err != nil {
		return nil, err
	}
	s.WorktreePath = worktreePath.String
	s.Handle = handle.String
	s.LastError = lastError.String
	s.PreMergeDone = preMergeDone != 0
	s.CreatedAt, _ = parseTime(createdAt)
	s.LastActivity, _ = parseTime(lastActivity)
	return &s, nil
}
