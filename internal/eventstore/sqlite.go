package eventstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/harper/dispatch/internal/sync"
)

// SQLite is the embedded event log backend used by `dispatchd` in local and
// dev environments.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the event log database at path.
// Use ":memory:" for tests.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	// The log is written from HTTP handlers; serialize through one
	// connection the way SQLite wants.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA journal_mode = WAL; PRAGMA busy_timeout = 5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure event log: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS events (
			server_seq        INTEGER PRIMARY KEY AUTOINCREMENT,
			team_id           TEXT NOT NULL,
			device_id         TEXT NOT NULL,
			session_id        TEXT NOT NULL,
			client_action_id  INTEGER NOT NULL,
			action_type       TEXT NOT NULL,
			entity_type       TEXT NOT NULL,
			entity_id         TEXT NOT NULL,
			payload           JSON NOT NULL,
			client_timestamp  DATETIME NOT NULL,
			server_timestamp  DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(team_id, device_id, session_id, client_action_id)
		);
		CREATE INDEX IF NOT EXISTS idx_events_team_seq ON events(team_id, server_seq);
		CREATE INDEX IF NOT EXISTS idx_events_entity ON events(team_id, entity_type, entity_id);
	`)
	if err != nil {
		return fmt.Errorf("init event log: %w", err)
	}
	return nil
}

func (s *SQLite) Append(ctx context.Context, teamID string, events []sync.Event) (sync.PushResult, error) {
	var result sync.PushResult

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, ev := range events {
		if reason := validateEvent(ev); reason != "" {
			result.Rejected = append(result.Rejected, sync.Rejection{
				ClientActionID: ev.ClientActionID,
				Reason:         reason,
			})
			continue
		}

		res, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO events (team_id, device_id, session_id, client_action_id, action_type, entity_type, entity_id, payload, client_timestamp)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			teamID, ev.DeviceID, ev.SessionID, ev.ClientActionID,
			ev.ActionType, ev.EntityType, ev.EntityID,
			ev.Payload, ev.ClientTimestamp,
		)
		if err != nil {
			return result, fmt.Errorf("insert event %d: %w", ev.ClientActionID, err)
		}

		rows, err := res.RowsAffected()
		if err != nil {
			return result, fmt.Errorf("rows affected: %w", err)
		}

		if rows == 0 {
			// Duplicate: look up existing server_seq so the client can mark
			// the row synced anyway.
			var existingSeq int64
			err := tx.QueryRowContext(ctx,
				`SELECT server_seq FROM events WHERE team_id=? AND device_id=? AND session_id=? AND client_action_id=?`,
				teamID, ev.DeviceID, ev.SessionID, ev.ClientActionID,
			).Scan(&existingSeq)
			if err != nil {
				slog.Warn("duplicate lookup failed", "aid", ev.ClientActionID, "err", err)
			}
			result.Rejected = append(result.Rejected, sync.Rejection{
				ClientActionID: ev.ClientActionID,
				Reason:         "duplicate",
				ServerSeq:      existingSeq,
			})
			continue
		}

		seq, err := res.LastInsertId()
		if err != nil {
			return result, fmt.Errorf("last insert id: %w", err)
		}

		result.Accepted++
		result.Acks = append(result.Acks, sync.Ack{
			ClientActionID: ev.ClientActionID,
			ServerSeq:      seq,
		})
	}

	if err := tx.Commit(); err != nil {
		return result, fmt.Errorf("commit: %w", err)
	}
	return result, nil
}

func (s *SQLite) EventsSince(ctx context.Context, teamID string, afterSeq int64, limit int, excludeDevice string) (sync.PullResult, error) {
	var result sync.PullResult
	result.LastServerSeq = afterSeq

	query := `SELECT server_seq, device_id, session_id, client_action_id, action_type, entity_type, entity_id, payload, client_timestamp
		 FROM events WHERE team_id = ? AND server_seq > ?`
	args := []any{teamID, afterSeq}
	if excludeDevice != "" {
		query += ` AND device_id != ?`
		args = append(args, excludeDevice)
	}
	query += ` ORDER BY server_seq ASC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return result, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ev sync.Event
		var clientTS string
		err := rows.Scan(&ev.ServerSeq, &ev.DeviceID, &ev.SessionID, &ev.ClientActionID,
			&ev.ActionType, &ev.EntityType, &ev.EntityID, &ev.Payload, &clientTS)
		if err != nil {
			return result, fmt.Errorf("scan event: %w", err)
		}

		ev.ClientTimestamp, err = parseTimestamp(clientTS)
		if err != nil {
			return result, fmt.Errorf("parse timestamp seq=%d: %w", ev.ServerSeq, err)
		}

		result.Events = append(result.Events, ev)
		result.LastServerSeq = ev.ServerSeq
	}
	if err := rows.Err(); err != nil {
		return result, fmt.Errorf("rows iteration: %w", err)
	}

	result.HasMore = len(result.Events) == limit
	return result, nil
}

func (s *SQLite) Status(ctx context.Context, teamID string) (Status, error) {
	var st Status
	var lastTime sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(MAX(server_seq), 0), MAX(server_timestamp) FROM events WHERE team_id = ?`,
		teamID,
	).Scan(&st.EventCount, &st.LastServerSeq, &lastTime)
	if err != nil {
		return st, fmt.Errorf("event log status: %w", err)
	}
	st.LastEventTime = lastTime.String
	return st, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

// parseTimestamp tries common SQLite timestamp formats.
func parseTimestamp(s string) (time.Time, error) {
	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05Z",
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05.999999999Z07:00",
		"2006-01-02 15:04:05.999999999",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05.999999999-07:00",
		"2006-01-02T15:04:05.999999999Z07:00",
		"2006-01-02T15:04:05.999999999",
		"2006-01-02 15:04:05 -0700 -0700", // Go time.Time.String() with numeric tz
		"2006-01-02 15:04:05 -0700 MST",   // Go time.Time.String() standard
	}
	for _, f := range formats {
		if t, err := time.Parse(f, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp format: %q", s)
}
