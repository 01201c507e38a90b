package db

import (
	"database/sql"
	"time"
)

// SyncState holds the sync cursor positions for a linked team.
type SyncState struct {
	TeamID              string
	LastPushedActionID  int64
	LastPulledServerSeq int64
	LastSyncAt          *time.Time
	SyncDisabled        bool
}

// GetSyncState returns the current sync state, or nil if no team is linked.
func (db *DB) GetSyncState() (*SyncState, error) {
	var s SyncState
	var lastSync sql.NullTime
	var disabled int

	err := db.conn.QueryRow(`
		SELECT team_id, last_pushed_action_id, last_pulled_server_seq, last_sync_at, sync_disabled
		FROM sync_state LIMIT 1
	`).Scan(&s.TeamID, &s.LastPushedActionID, &s.LastPulledServerSeq, &lastSync, &disabled)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if lastSync.Valid {
		s.LastSyncAt = &lastSync.Time
	}
	s.SyncDisabled = disabled != 0
	return &s, nil
}

// SetSyncState creates or replaces the sync state for a team (used for link).
func (db *DB) SetSyncState(teamID string) error {
	return db.withWriteLock(func() error {
		_, err := db.conn.Exec(`
			INSERT OR REPLACE INTO sync_state (team_id, last_pushed_action_id, last_pulled_server_seq, sync_disabled)
			VALUES (?, 0, 0, 0)
		`, teamID)
		return err
	})
}

// UpdateSyncPushed updates the last pushed action ID and sync time.
func (db *DB) UpdateSyncPushed(lastActionID int64) error {
	return db.withWriteLock(func() error {
		_, err := db.conn.Exec(`
			UPDATE sync_state SET last_pushed_action_id = ?, last_sync_at = CURRENT_TIMESTAMP
		`, lastActionID)
		return err
	})
}

// UpdateSyncPulled updates the last pulled server sequence and sync time.
func (db *DB) UpdateSyncPulled(lastServerSeq int64) error {
	return db.withWriteLock(func() error {
		_, err := db.conn.Exec(`
			UPDATE sync_state SET last_pulled_server_seq = ?, last_sync_at = CURRENT_TIMESTAMP
		`, lastServerSeq)
		return err
	})
}

// ClearSyncState removes the sync state (used for unlink).
func (db *DB) ClearSyncState() error {
	return db.withWriteLock(func() error {
		_, err := db.conn.Exec(`DELETE FROM sync_state`)
		return err
	})
}

// CountPendingEvents returns the number of unsynced, non-quarantined action_log entries.
func (db *DB) CountPendingEvents() (int64, error) {
	var count int64
	err := db.conn.QueryRow(`
		SELECT COUNT(*) FROM action_log
		WHERE synced_at IS NULL AND undone = 0 AND failed_at IS NULL
	`).Scan(&count)
	return count, err
}

// CountFailedEvents returns the number of quarantined action_log entries.
func (db *DB) CountFailedEvents() (int64, error) {
	var count int64
	err := db.conn.QueryRow(`SELECT COUNT(*) FROM action_log WHERE failed_at IS NOT NULL AND undone = 0`).Scan(&count)
	return count, err
}

// CountSyncedEvents returns the number of action_log entries with synced_at set.
func (db *DB) CountSyncedEvents() (int64, error) {
	var count int64
	err := db.conn.QueryRow(`SELECT COUNT(*) FROM action_log WHERE synced_at IS NOT NULL`).Scan(&count)
	return count, err
}

// ClearActionLogSyncState sets synced_at and server_seq to NULL on all action_log
// entries, allowing them to be re-pushed to a new server. Returns the number of
// rows affected.
func (db *DB) ClearActionLogSyncState() (int64, error) {
	var affected int64
	err := db.withWriteLock(func() error {
		result, err := db.conn.Exec(`UPDATE action_log SET synced_at = NULL, server_seq = NULL WHERE synced_at IS NOT NULL`)
		if err != nil {
			return err
		}
		affected, _ = result.RowsAffected()
		return nil
	})
	return affected, err
}

// GetLatestActionForEntity returns the most recent action_log row for an entity,
// including sync bookkeeping columns. Returns nil when the entity has never
// been mutated locally.
func (db *DB) GetLatestActionForEntity(entityType, entityID string) (*EntityActionState, error) {
	var s EntityActionState
	var syncedAt, nextRetryAt, failedAt sql.NullTime
	var serverSeq sql.NullInt64

	err := db.conn.QueryRow(`
		SELECT id, action_type, synced_at, server_seq, attempts, next_retry_at, last_error, failed_at
		FROM action_log
		WHERE entity_type = ? AND entity_id = ? AND undone = 0
		ORDER BY rowid DESC LIMIT 1
	`, entityType, entityID).Scan(&s.ActionID, &s.ActionType, &syncedAt, &serverSeq,
		&s.Attempts, &nextRetryAt, &s.LastError, &failedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if syncedAt.Valid {
		s.SyncedAt = &syncedAt.Time
	}
	if serverSeq.Valid {
		s.ServerSeq = serverSeq.Int64
	}
	if nextRetryAt.Valid {
		s.NextRetryAt = &nextRetryAt.Time
	}
	if failedAt.Valid {
		s.FailedAt = &failedAt.Time
	}
	return &s, nil
}

// EntityActionState is the sync bookkeeping of an entity's latest action_log row.
type EntityActionState struct {
	ActionID    string
	ActionType  string
	SyncedAt    *time.Time
	ServerSeq   int64
	Attempts    int
	NextRetryAt *time.Time
	LastError   string
	FailedAt    *time.Time
}
