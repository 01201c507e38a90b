// Package eventstore persists the per-team sync event log behind a backend
// interface. SQLite serves local and dev deployments, Postgres serves
// production.
package eventstore

import (
	"context"

	"github.com/harper/dispatch/internal/sync"
)

// Status summarises one team's event log.
type Status struct {
	EventCount    int64
	LastServerSeq int64
	LastEventTime string
}

// Store is the server event log. Append assigns server_seq in commit order
// and rejects duplicates idempotently; EventsSince pages the log in seq
// order.
type Store interface {
	// Init creates the schema if it doesn't exist.
	Init(ctx context.Context) error

	// Append inserts events for a team. Duplicate (device, session, action)
	// triples are rejected with reason "duplicate" and the existing seq.
	Append(ctx context.Context, teamID string, events []sync.Event) (sync.PushResult, error)

	// EventsSince returns up to limit events with server_seq > afterSeq,
	// oldest first. A non-empty excludeDevice filters that device's own
	// events out.
	EventsSince(ctx context.Context, teamID string, afterSeq int64, limit int, excludeDevice string) (sync.PullResult, error)

	// Status reports the team's event count and latest seq.
	Status(ctx context.Context, teamID string) (Status, error)

	Close() error
}

// validateEvent checks the fields the log cannot store a row without.
// Returns an empty string when the event is valid.
func validateEvent(ev sync.Event) string {
	switch {
	case ev.DeviceID == "":
		return "empty device_id"
	case ev.SessionID == "":
		return "empty session_id"
	case ev.EntityID == "":
		return "empty entity_id"
	case ev.EntityType == "":
		return "empty entity_type"
	case ev.ActionType == "":
		return "empty action_type"
	}
	return ""
}
