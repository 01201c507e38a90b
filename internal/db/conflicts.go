package db

import (
	"database/sql"
	"time"
)

// SyncConflict represents a row from the sync_conflicts table: a remote event
// that overwrote a row modified locally since the last sync.
type SyncConflict struct {
	ID            int64
	EntityType    string
	EntityID      string
	ServerSeq     int64
	LocalData     string
	RemoteData    string
	OverwrittenAt time.Time
	ResolvedAt    *time.Time
}

// GetConflicts returns recorded sync conflicts, most recent first.
// When unresolvedOnly is set, conflicts already marked resolved are skipped.
func (db *DB) GetConflicts(limit int, unresolvedOnly bool) ([]SyncConflict, error) {
	query := `
		SELECT id, entity_type, entity_id, server_seq,
		       COALESCE(local_data,'null'), COALESCE(remote_data,'null'),
		       overwritten_at, resolved_at
		FROM sync_conflicts`
	if unresolvedOnly {
		query += " WHERE resolved_at IS NULL"
	}
	query += " ORDER BY overwritten_at DESC LIMIT ?"

	rows, err := db.conn.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conflicts []SyncConflict
	for rows.Next() {
		var c SyncConflict
		var overwritten string
		var resolved sql.NullTime
		if err := rows.Scan(&c.ID, &c.EntityType, &c.EntityID, &c.ServerSeq, &c.LocalData, &c.RemoteData, &overwritten, &resolved); err != nil {
			return nil, err
		}
		ts, parseErr := parseTimestamp(overwritten)
		if parseErr != nil {
			return nil, parseErr
		}
		c.OverwrittenAt = ts
		if resolved.Valid {
			c.ResolvedAt = &resolved.Time
		}
		conflicts = append(conflicts, c)
	}
	return conflicts, rows.Err()
}

// ResolveConflict marks a conflict as reviewed. The remote version has already
// been applied; resolution is an acknowledgement, not a data change.
func (db *DB) ResolveConflict(id int64) error {
	return db.withWriteLock(func() error {
		res, err := db.conn.Exec(`UPDATE sync_conflicts SET resolved_at = CURRENT_TIMESTAMP WHERE id = ? AND resolved_at IS NULL`, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return sql.ErrNoRows
		}
		return nil
	})
}

// CountUnresolvedConflicts returns the number of conflicts awaiting review.
func (db *DB) CountUnresolvedConflicts() (int64, error) {
	var count int64
	err := db.conn.QueryRow(`SELECT COUNT(*) FROM sync_conflicts WHERE resolved_at IS NULL`).Scan(&count)
	return count, err
}
