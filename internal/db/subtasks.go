package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/harper/dispatch/internal/models"
)

func (db *DB) scanSubtaskRow(id string) (*models.Subtask, error) {
	var s models.Subtask
	var done int

	err := db.conn.QueryRow(`
		SELECT id, task_id, title, done, position, created_at, updated_at
		FROM subtasks WHERE id = ?
	`, id).Scan(&s.ID, &s.TaskID, &s.Title, &done, &s.Position, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("subtask not found: %s", id)
	}
	if err != nil {
		return nil, err
	}
	s.Done = done == 1
	return &s, nil
}

// GetSubtask retrieves a subtask by ID. Accepts bare IDs without the st- prefix.
func (db *DB) GetSubtask(id string) (*models.Subtask, error) {
	return db.scanSubtaskRow(normalizeID(subtaskIDPrefix, id))
}

// ListSubtasks returns the checklist for a task ordered by position.
func (db *DB) ListSubtasks(taskID string) ([]models.Subtask, error) {
	rows, err := db.conn.Query(`
		SELECT id, task_id, title, done, position, created_at, updated_at
		FROM subtasks WHERE task_id = ?
		ORDER BY position ASC, created_at ASC`, NormalizeTaskID(taskID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subtasks []models.Subtask
	for rows.Next() {
		var s models.Subtask
		var done int
		if err := rows.Scan(&s.ID, &s.TaskID, &s.Title, &done, &s.Position, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		s.Done = done == 1
		subtasks = append(subtasks, s)
	}
	return subtasks, rows.Err()
}

// CreateSubtaskLogged appends a subtask to a task's checklist and logs the action.
// Position defaults to the end of the list.
func (db *DB) CreateSubtaskLogged(s *models.Subtask, sessionID string) error {
	s.TaskID = NormalizeTaskID(s.TaskID)
	return db.withWriteLock(func() error {
		// Parent must exist; subtasks are meaningless off a task.
		if _, err := db.scanTaskRow(s.TaskID); err != nil {
			return err
		}

		if s.Position == 0 {
			var maxPos sql.NullInt64
			if err := db.conn.QueryRow(`SELECT MAX(position) FROM subtasks WHERE task_id = ?`, s.TaskID).Scan(&maxPos); err != nil {
				return err
			}
			s.Position = int(maxPos.Int64) + 1
		}

		now := time.Now()
		s.CreatedAt = now
		s.UpdatedAt = now

		id, err := generateEntityID(subtaskIDPrefix)
		if err != nil {
			return err
		}
		s.ID = id

		_, err = db.conn.Exec(`
			INSERT INTO subtasks (id, task_id, title, done, position, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, s.ID, s.TaskID, s.Title, boolToInt(s.Done), s.Position, s.CreatedAt, s.UpdatedAt)
		if err != nil {
			return err
		}

		return db.logAction(sessionID, models.ActionCreate, "subtask", s.ID, "", marshalEntity(s), now)
	})
}

// UpdateSubtaskLogged updates a subtask and logs the action atomically.
func (db *DB) UpdateSubtaskLogged(s *models.Subtask, sessionID string) error {
	return db.withWriteLock(func() error {
		prev, err := db.scanSubtaskRow(s.ID)
		if err != nil {
			return err
		}
		previousData := marshalEntity(prev)

		s.UpdatedAt = time.Now()
		_, err = db.conn.Exec(`
			UPDATE subtasks SET title = ?, done = ?, position = ?, updated_at = ? WHERE id = ?
		`, s.Title, boolToInt(s.Done), s.Position, s.UpdatedAt, s.ID)
		if err != nil {
			return err
		}

		return db.logAction(sessionID, models.ActionUpdate, "subtask", s.ID, previousData, marshalEntity(s), s.UpdatedAt)
	})
}

// DeleteSubtaskLogged hard-deletes a subtask and logs the action atomically.
// Subtasks are the one entity without soft delete.
func (db *DB) DeleteSubtaskLogged(subtaskID, sessionID string) error {
	subtaskID = normalizeID(subtaskIDPrefix, subtaskID)
	return db.withWriteLock(func() error {
		prev, err := db.scanSubtaskRow(subtaskID)
		if err != nil {
			return err
		}
		previousData := marshalEntity(prev)

		now := time.Now()
		if _, err := db.conn.Exec(`DELETE FROM subtasks WHERE id = ?`, subtaskID); err != nil {
			return err
		}

		return db.logAction(sessionID, models.ActionDelete, "subtask", subtaskID, previousData, "", now)
	})
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
