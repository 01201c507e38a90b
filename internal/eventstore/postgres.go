package eventstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/harper/dispatch/internal/sync"
)

// Postgres is the production event log backend.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects a pool to the given DSN and pings it.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect event log: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping event log: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// NewPostgres wraps an existing pool (tests).
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) Init(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS events (
			server_seq        BIGSERIAL PRIMARY KEY,
			team_id           TEXT NOT NULL,
			device_id         TEXT NOT NULL,
			session_id        TEXT NOT NULL,
			client_action_id  BIGINT NOT NULL,
			action_type       TEXT NOT NULL,
			entity_type       TEXT NOT NULL,
			entity_id         TEXT NOT NULL,
			payload           JSONB NOT NULL,
			client_timestamp  TIMESTAMPTZ NOT NULL,
			server_timestamp  TIMESTAMPTZ NOT NULL DEFAULT now(),
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

func (p *Postgres) Append(ctx context.Context, teamID string, events []sync.Event) (sync.PushResult, error) {
	var result sync.PushResult

	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return result, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, ev := range events {
		if reason := validateEvent(ev); reason != "" {
			result.Rejected = append(result.Rejected, sync.Rejection{
				ClientActionID: ev.ClientActionID,
				Reason:         reason,
			})
			continue
		}

		var seq int64
		err := tx.QueryRow(ctx,
			`INSERT INTO events (team_id, device_id, session_id, client_action_id, action_type, entity_type, entity_id, payload, client_timestamp)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			 ON CONFLICT (team_id, device_id, session_id, client_action_id) DO NOTHING
			 RETURNING server_seq`,
			teamID, ev.DeviceID, ev.SessionID, ev.ClientActionID,
			ev.ActionType, ev.EntityType, ev.EntityID,
			string(ev.Payload), ev.ClientTimestamp,
		).Scan(&seq)

		if errors.Is(err, pgx.ErrNoRows) {
			// Duplicate: fetch the existing seq for the idempotent ack path.
			var existingSeq int64
			lookupErr := tx.QueryRow(ctx,
				`SELECT server_seq FROM events WHERE team_id=$1 AND device_id=$2 AND session_id=$3 AND client_action_id=$4`,
				teamID, ev.DeviceID, ev.SessionID, ev.ClientActionID,
			).Scan(&existingSeq)
			if lookupErr != nil {
				return result, fmt.Errorf("duplicate lookup %d: %w", ev.ClientActionID, lookupErr)
			}
			result.Rejected = append(result.Rejected, sync.Rejection{
				ClientActionID: ev.ClientActionID,
				Reason:         "duplicate",
				ServerSeq:      existingSeq,
			})
			continue
		}
		if err != nil {
			return result, fmt.Errorf("insert event %d: %w", ev.ClientActionID, err)
		}

		result.Accepted++
		result.Acks = append(result.Acks, sync.Ack{
			ClientActionID: ev.ClientActionID,
			ServerSeq:      seq,
		})
	}

	if err := tx.Commit(ctx); err != nil {
		return result, fmt.Errorf("commit: %w", err)
	}
	return result, nil
}

func (p *Postgres) EventsSince(ctx context.Context, teamID string, afterSeq int64, limit int, excludeDevice string) (sync.PullResult, error) {
	var result sync.PullResult
	result.LastServerSeq = afterSeq

	query := `SELECT server_seq, device_id, session_id, client_action_id, action_type, entity_type, entity_id, payload, client_timestamp
		 FROM events WHERE team_id = $1 AND server_seq > $2`
	args := []any{teamID, afterSeq}
	if excludeDevice != "" {
		query += ` AND device_id != $3 ORDER BY server_seq ASC LIMIT $4`
		args = append(args, excludeDevice, limit)
	} else {
		query += ` ORDER BY server_seq ASC LIMIT $3`
		args = append(args, limit)
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return result, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ev sync.Event
		var payload []byte
		err := rows.Scan(&ev.ServerSeq, &ev.DeviceID, &ev.SessionID, &ev.ClientActionID,
			&ev.ActionType, &ev.EntityType, &ev.EntityID, &payload, &ev.ClientTimestamp)
		if err != nil {
			return result, fmt.Errorf("scan event: %w", err)
		}
		ev.Payload = payload
		result.Events = append(result.Events, ev)
		result.LastServerSeq = ev.ServerSeq
	}
	if err := rows.Err(); err != nil {
		return result, fmt.Errorf("rows iteration: %w", err)
	}

	result.HasMore = len(result.Events) == limit
	return result, nil
}

func (p *Postgres) Status(ctx context.Context, teamID string) (Status, error) {
	var st Status
	var lastTime *string
	err := p.pool.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(MAX(server_seq), 0), to_char(MAX(server_timestamp), 'YYYY-MM-DD"T"HH24:MI:SSZ') FROM events WHERE team_id = $1`,
		teamID,
	).Scan(&st.EventCount, &st.LastServerSeq, &lastTime)
	if err != nil {
		return st, fmt.Errorf("event log status: %w", err)
	}
	if lastTime != nil {
		st.LastEventTime = *lastTime
	}
	return st, nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
