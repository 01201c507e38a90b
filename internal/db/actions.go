package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/harper/dispatch/internal/models"
)

// marshalEntity returns a JSON representation of an entity for action_log storage.
func marshalEntity(v interface{}) string {
	data, _ := json.Marshal(v)
	return string(data)
}

// logAction inserts an action_log row WITHOUT acquiring withWriteLock.
// Caller MUST already hold the write lock. Every logged mutation in this
// package funnels through here so the outbox stays consistent.
func (db *DB) logAction(sessionID string, actionType models.ActionType, entityType, entityID, previousData, newData string, ts time.Time) error {
	actionID, err := generateActionID()
	if err != nil {
		return fmt.Errorf("generate action ID: %w", err)
	}
	_, err = db.conn.Exec(`INSERT INTO action_log (id, session_id, action_type, entity_type, entity_id, previous_data, new_data, timestamp, undone) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0)`,
		actionID, sessionID, string(actionType), entityType, entityID, previousData, newData, ts)
	if err != nil {
		return fmt.Errorf("log action: %w", err)
	}
	return nil
}

// LogAction records an action for undo support
func (db *DB) LogAction(action *models.ActionLog) error {
	return db.withWriteLock(func() error {
		action.Timestamp = time.Now()

		id, err := generateActionID()
		if err != nil {
			return fmt.Errorf("generate ID: %w", err)
		}
		action.ID = id

		_, err = db.conn.Exec(`
			INSERT INTO action_log (id, session_id, action_type, entity_type, entity_id, previous_data, new_data, timestamp, undone)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0)
		`, action.ID, action.SessionID, action.ActionType, action.EntityType, action.EntityID, action.PreviousData, action.NewData, action.Timestamp)
		if err != nil {
			return err
		}

		return nil
	})
}

// GetLastAction returns the most recent undoable action for a session.
// Actions that already reached the server are excluded; undoing those
// would diverge from teammates.
func (db *DB) GetLastAction(sessionID string) (*models.ActionLog, error) {
	var action models.ActionLog
	var undone int

	err := db.conn.QueryRow(`
		SELECT id, session_id, action_type, entity_type, entity_id, previous_data, new_data, timestamp, undone
		FROM action_log
		WHERE session_id = ? AND undone = 0 AND synced_at IS NULL
		ORDER BY timestamp DESC LIMIT 1
	`, sessionID).Scan(
		&action.ID, &action.SessionID, &action.ActionType, &action.EntityType,
		&action.EntityID, &action.PreviousData, &action.NewData, &action.Timestamp, &undone,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	action.Undone = undone == 1
	return &action, nil
}

// MarkActionUndone marks an action as undone
func (db *DB) MarkActionUndone(actionID string) error {
	return db.withWriteLock(func() error {
		_, err := db.conn.Exec(`UPDATE action_log SET undone = 1 WHERE id = ?`, actionID)
		return err
	})
}

// GetRecentActions returns recent actions for a session
func (db *DB) GetRecentActions(sessionID string, limit int) ([]models.ActionLog, error) {
	query := `
		SELECT id, session_id, action_type, entity_type, entity_id, previous_data, new_data, timestamp, undone
		FROM action_log
		WHERE session_id = ?
		ORDER BY timestamp DESC`
	args := []interface{}{sessionID}

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanActions(rows)
}

// GetRecentActionsAll returns recent action_log entries across all sessions
func (db *DB) GetRecentActionsAll(limit int) ([]models.ActionLog, error) {
	query := `
		SELECT id, session_id, action_type, entity_type, entity_id, previous_data, new_data, timestamp, undone
		FROM action_log
		ORDER BY timestamp DESC`
	args := []interface{}{}

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanActions(rows)
}

func scanActions(rows *sql.Rows) ([]models.ActionLog, error) {
	var actions []models.ActionLog
	for rows.Next() {
		var action models.ActionLog
		var undone int
		err := rows.Scan(
			&action.ID, &action.SessionID, &action.ActionType, &action.EntityType,
			&action.EntityID, &action.PreviousData, &action.NewData, &action.Timestamp, &undone,
		)
		if err != nil {
			return nil, err
		}
		action.Undone = undone == 1
		actions = append(actions, action)
	}
	return actions, rows.Err()
}
