package serverdb

import (
	"database/sql"
	"fmt"
	"time"
)

// SyncCursor tracks a client's sync position in a team.
type SyncCursor struct {
	TeamID      string
	ClientID    string
	LastEventID int64
	LastSyncAt  *time.Time
}

// UpsertSyncCursor creates or updates a sync cursor for a team/client pair.
func (db *ServerDB) UpsertSyncCursor(teamID, clientID string, lastEventID int64) error {
	now := time.Now().UTC()
	_, err := db.conn.Exec(`
		INSERT INTO sync_cursors (team_id, client_id, last_event_id, last_sync_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(team_id, client_id)
		DO UPDATE SET last_event_id = excluded.last_event_id, last_sync_at = excluded.last_sync_at
	`, teamID, clientID, lastEventID, now)
	if err != nil {
		return fmt.Errorf("upsert sync cursor: %w", err)
	}
	return nil
}

// GetSyncCursor returns the sync cursor for a team/client pair, or nil if not found.
func (db *ServerDB) GetSyncCursor(teamID, clientID string) (*SyncCursor, error) {
	c := &SyncCursor{}
	err := db.conn.QueryRow(
		`SELECT team_id, client_id, last_event_id, last_sync_at FROM sync_cursors WHERE team_id = ? AND client_id = ?`,
		teamID, clientID,
	).Scan(&c.TeamID, &c.ClientID, &c.LastEventID, &c.LastSyncAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get sync cursor: %w", err)
	}
	return c, nil
}

// ListSyncCursors returns every client cursor for a team, most recently
// synced first. Used by the sync status endpoint.
func (db *ServerDB) ListSyncCursors(teamID string) ([]*SyncCursor, error) {
	rows, err := db.conn.Query(
		`SELECT team_id, client_id, last_event_id, last_sync_at FROM sync_cursors WHERE team_id = ? ORDER BY last_sync_at DESC`,
		teamID,
	)
	if err != nil {
		return nil, fmt.Errorf("list sync cursors: %w", err)
	}
	defer rows.Close()

	var cursors []*SyncCursor
	for rows.Next() {
		c := &SyncCursor{}
		if err := rows.Scan(&c.TeamID, &c.ClientID, &c.LastEventID, &c.LastSyncAt); err != nil {
			return nil, fmt.Errorf("scan sync cursor: %w", err)
		}
		cursors = append(cursors, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sync cursors: iterate: %w", err)
	}
	return cursors, nil
}
