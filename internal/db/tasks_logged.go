package db

import (
	"fmt"
	"strings"
	"time"

	"github.com/harper/dispatch/internal/models"
)

// CreateTaskLogged creates a task and logs the action atomically within a single withWriteLock call.
func (db *DB) CreateTaskLogged(task *models.Task, sessionID string) error {
	return db.withWriteLock(func() error {
		if task.Status == "" {
			task.Status = models.TaskOpen
		}
		if task.Priority == "" {
			task.Priority = models.PriorityP2
		}

		now := time.Now()
		task.CreatedAt = now
		task.UpdatedAt = now

		tags := strings.Join(task.Tags, ",")

		const maxRetries = 3
		for attempt := range maxRetries {
			id, err := generateEntityID(taskIDPrefix)
			if err != nil {
				return err
			}
			task.ID = id

			_, err = db.conn.Exec(`
				INSERT INTO tasks (id, title, description, status, priority, assignee_id, listing_id, tags, due_at, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, task.ID, task.Title, task.Description, task.Status, task.Priority, task.AssigneeID, task.ListingID, tags, task.DueAt, task.CreatedAt, task.UpdatedAt)

			if err == nil {
				break
			}
			if !strings.Contains(err.Error(), "UNIQUE constraint") {
				return err
			}
			if attempt == maxRetries-1 {
				return fmt.Errorf("failed to generate unique task ID after %d attempts", maxRetries)
			}
		}

		return db.logAction(sessionID, models.ActionCreate, "task", task.ID, "", marshalEntity(task), now)
	})
}

// updateTaskAndLog updates a task and logs the action WITHOUT acquiring withWriteLock.
// Caller MUST already hold the write lock.
func (db *DB) updateTaskAndLog(task *models.Task, sessionID string, actionType models.ActionType) error {
	// Read current state for PreviousData
	prev, err := db.scanTaskRow(task.ID)
	if err != nil {
		return err
	}
	previousData := marshalEntity(prev)

	// Apply update
	task.UpdatedAt = time.Now()
	tags := strings.Join(task.Tags, ",")

	_, err = db.conn.Exec(`
		UPDATE tasks SET title = ?, description = ?, status = ?, priority = ?,
		                 assignee_id = ?, listing_id = ?, tags = ?, due_at = ?,
		                 completed_at = ?, updated_at = ?, deleted_at = ?
		WHERE id = ?
	`, task.Title, task.Description, task.Status, task.Priority,
		task.AssigneeID, task.ListingID, tags, task.DueAt,
		task.CompletedAt, task.UpdatedAt, task.DeletedAt, task.ID)
	if err != nil {
		return err
	}

	return db.logAction(sessionID, actionType, "task", task.ID, previousData, marshalEntity(task), task.UpdatedAt)
}

// UpdateTaskLogged updates a task and logs the action atomically within a single withWriteLock call.
// It reads the current DB state for PreviousData before applying the update.
func (db *DB) UpdateTaskLogged(task *models.Task, sessionID string) error {
	return db.withWriteLock(func() error {
		return db.updateTaskAndLog(task, sessionID, models.ActionUpdate)
	})
}

// DeleteTaskLogged soft-deletes a task and logs the action atomically within a single withWriteLock call.
func (db *DB) DeleteTaskLogged(taskID, sessionID string) error {
	taskID = NormalizeTaskID(taskID)
	return db.withWriteLock(func() error {
		// Read current state for PreviousData
		prev, err := db.scanTaskRow(taskID)
		if err != nil {
			return err
		}
		previousData := marshalEntity(prev)

		// Soft delete
		now := time.Now()
		_, err = db.conn.Exec(`UPDATE tasks SET deleted_at = ?, updated_at = ? WHERE id = ?`, now, now, taskID)
		if err != nil {
			return err
		}

		return db.logAction(sessionID, models.ActionDelete, "task", taskID, previousData, "", now)
	})
}

// RestoreTaskLogged restores a soft-deleted task and logs the action atomically.
func (db *DB) RestoreTaskLogged(taskID, sessionID string) error {
	taskID = NormalizeTaskID(taskID)
	return db.withWriteLock(func() error {
		// Read current state for PreviousData
		prev, err := db.scanTaskRow(taskID)
		if err != nil {
			return err
		}
		previousData := marshalEntity(prev)

		// Restore (clear deleted_at)
		now := time.Now()
		_, err = db.conn.Exec(`UPDATE tasks SET deleted_at = NULL, updated_at = ? WHERE id = ?`, now, taskID)
		if err != nil {
			return err
		}

		// Read new state for NewData
		restored, err := db.scanTaskRow(taskID)
		if err != nil {
			return err
		}

		return db.logAction(sessionID, models.ActionRestore, "task", taskID, previousData, marshalEntity(restored), now)
	})
}
