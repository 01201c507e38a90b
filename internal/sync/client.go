package sync

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// hardDeleteEntities are synced tables whose rows are removed outright.
// Everything else soft-deletes via deleted_at.
var hardDeleteEntities = map[string]bool{
	"subtasks": true,
}

// mapActionType converts action_log action types to sync event action types.
// Deletes become soft deletes unless the entity hard-deletes.
func mapActionType(localAction, entityType string) string {
	switch localAction {
	case "create":
		return "create"
	case "delete", "soft_delete":
		if hardDeleteEntities[entityType] {
			return "delete"
		}
		return "soft_delete"
	default:
		// update, restore, and anything future land as full-state updates
		return "update"
	}
}

// normalizeEntityType maps action_log entity types to canonical table names.
// Returns false when the entity type is not supported by the sync engine.
func normalizeEntityType(entityType string) (string, bool) {
	switch entityType {
	case "task", "tasks":
		return "tasks", true
	case "subtask", "subtasks":
		return "subtasks", true
	case "listing", "listings":
		return "listings", true
	case "property", "properties":
		return "properties", true
	case "activity", "activities":
		return "activities", true
	case "note", "notes":
		return "notes", true
	case "status_change", "status_changes":
		return "status_changes", true
	case "showing", "showings":
		return "showings", true
	case "user", "users":
		return "users", true
	case "realtor", "realtors":
		return "realtors", true
	case "contact", "contacts":
		return "contacts", true
	default:
		return "", false
	}
}

// GetPendingEvents reads unsynced, non-undone action_log rows and returns them
// as Events, oldest first. Rows are skipped while quarantined (failed_at set)
// or while their retry backoff has not elapsed (next_retry_at in the future).
// It uses rowid for ordering and as ClientActionID.
//
// Before querying, it backfills synthetic "create" entries for any entities
// that exist in syncable tables but have no action_log row (pre-sync data).
func GetPendingEvents(tx *sql.Tx, deviceID, sessionID string, now time.Time) ([]Event, error) {
	if n, err := BackfillOrphanEntities(tx, sessionID); err != nil {
		slog.Warn("backfill orphans", "err", err)
	} else if n > 0 {
		slog.Info("backfilled orphan entities", "count", n)
	}

	rows, err := tx.Query(`
		SELECT rowid, id, action_type, entity_type, entity_id, new_data, previous_data, timestamp
		FROM action_log
		WHERE synced_at IS NULL AND undone = 0 AND failed_at IS NULL
		  AND (next_retry_at IS NULL OR next_retry_at <= ?)
		ORDER BY rowid ASC`, now)
	if err != nil {
		return nil, fmt.Errorf("query pending events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			rowid                                   int64
			id                                      sql.NullString
			actionType, entityType, entityID, tsStr string
			newDataStr, prevDataStr                 sql.NullString
		)
		if err := rows.Scan(&rowid, &id, &actionType, &entityType, &entityID, &newDataStr, &prevDataStr, &tsStr); err != nil {
			return nil, fmt.Errorf("scan action_log row: %w", err)
		}
		if !id.Valid || id.String == "" {
			slog.Warn("sync: skipping action_log with NULL/empty id", "rowid", rowid)
			continue
		}

		clientTS, err := parseTimestamp(tsStr)
		if err != nil {
			return nil, fmt.Errorf("parse timestamp rowid=%d: %w", rowid, err)
		}

		canonicalType, ok := normalizeEntityType(entityType)
		if !ok {
			slog.Warn("sync: skipping unsupported entity type", "entity_type", entityType, "action_id", id.String)
			continue
		}

		// Build payload wrapper with schema_version, new_data, previous_data
		newData := json.RawMessage("{}")
		if newDataStr.Valid && newDataStr.String != "" {
			newData = json.RawMessage(newDataStr.String)
		}
		prevData := json.RawMessage("{}")
		if prevDataStr.Valid && prevDataStr.String != "" {
			prevData = json.RawMessage(prevDataStr.String)
		}

		payload := map[string]any{
			"schema_version": 1,
			"new_data":       newData,
			"previous_data":  prevData,
		}
		payloadBytes, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal payload rowid=%d: %w", rowid, err)
		}

		events = append(events, Event{
			ClientActionID:  rowid,
			DeviceID:        deviceID,
			SessionID:       sessionID,
			ActionType:      mapActionType(actionType, canonicalType),
			EntityType:      canonicalType,
			EntityID:        entityID,
			Payload:         payloadBytes,
			ClientTimestamp: clientTS,
			ServerSeq:       0,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return events, nil
}

// ApplyRemoteEvents applies a batch of remote events to the local database.
// Events originating from myDeviceID are skipped; pass empty to replay the
// full log, own events included.
// Events that fail to apply are collected in the Failed list without aborting
// the batch: one poison event must not block the tail behind it.
// lastSyncAt gates conflict detection: overwrites are only flagged as conflicts
// when the local row was modified after lastSyncAt. Pass nil to skip conflict recording.
func ApplyRemoteEvents(tx *sql.Tx, events []Event, myDeviceID string, validator EntityValidator, lastSyncAt *time.Time) (ApplyResult, error) {
	var result ApplyResult

	for _, ev := range events {
		// The server excludes the caller's own device on pull, but a bootstrap
		// replay or a relayed feed can still hand our events back. Reapplying
		// them would clobber local edits made since, so advance past them.
		if myDeviceID != "" && ev.DeviceID == myDeviceID {
			result.LastAppliedSeq = ev.ServerSeq
			continue
		}

		// Extract new_data and previous_data from the payload wrapper
		var wrapper struct {
			NewData      json.RawMessage `json:"new_data"`
			PreviousData json.RawMessage `json:"previous_data"`
		}
		if err := json.Unmarshal(ev.Payload, &wrapper); err != nil {
			slog.Warn("apply remote: unmarshal payload", "seq", ev.ServerSeq, "err", err)
			result.Failed = append(result.Failed, FailedEvent{ServerSeq: ev.ServerSeq, Error: err})
			continue
		}

		// Build event with raw new_data as payload for the resolver
		applyEv := Event{
			ClientActionID:  ev.ClientActionID,
			DeviceID:        ev.DeviceID,
			SessionID:       ev.SessionID,
			ActionType:      ev.ActionType,
			EntityType:      ev.EntityType,
			EntityID:        ev.EntityID,
			Payload:         wrapper.NewData,
			ClientTimestamp: ev.ClientTimestamp,
			ServerSeq:       ev.ServerSeq,
		}

		res, err := applyEventWithPrevious(tx, applyEv, validator, wrapper.PreviousData)
		if err != nil {
			slog.Warn("apply remote: apply event", "seq", ev.ServerSeq, "err", err)
			result.Failed = append(result.Failed, FailedEvent{ServerSeq: ev.ServerSeq, Error: err})
			continue
		}
		if res.Overwritten && localModifiedSinceSync(res.OldData, lastSyncAt) {
			result.Overwrites++
			result.Conflicts = append(result.Conflicts, ConflictRecord{
				EntityType:    ev.EntityType,
				EntityID:      ev.EntityID,
				ServerSeq:     ev.ServerSeq,
				LocalData:     res.OldData,
				RemoteData:    wrapper.NewData,
				OverwrittenAt: time.Now().UTC(),
			})
		}

		result.Applied++
		result.LastAppliedSeq = ev.ServerSeq
	}

	return result, nil
}

// localModifiedSinceSync checks if the old row data has a timestamp field
// (updated_at, timestamp, or created_at) that is after lastSyncAt.
// Detection is conservative: unparseable or timestamp-free rows count as modified.
func localModifiedSinceSync(oldData json.RawMessage, lastSyncAt *time.Time) bool {
	if lastSyncAt == nil {
		return false // first sync / bootstrap, nothing to flag
	}
	if len(oldData) == 0 {
		return false
	}

	var fields map[string]any
	if err := json.Unmarshal(oldData, &fields); err != nil {
		return true
	}

	for _, key := range []string{"updated_at", "timestamp", "created_at"} {
		if val, ok := fields[key]; ok && val != nil {
			tsStr, ok := val.(string)
			if !ok {
				continue
			}
			ts, err := parseTimestamp(tsStr)
			if err != nil {
				continue
			}
			return ts.After(*lastSyncAt)
		}
	}

	return true
}

// MarkEventsSynced updates action_log rows with their server-assigned sequence
// numbers and clears any retry bookkeeping left from earlier failed attempts.
func MarkEventsSynced(tx *sql.Tx, acks []Ack) error {
	for _, ack := range acks {
		_, err := tx.Exec(
			`UPDATE action_log
			 SET synced_at = CURRENT_TIMESTAMP, server_seq = ?,
			     attempts = 0, next_retry_at = NULL, last_error = '', failed_at = NULL
			 WHERE rowid = ?`,
			ack.ServerSeq, ack.ClientActionID,
		)
		if err != nil {
			return fmt.Errorf("mark synced rowid=%d: %w", ack.ClientActionID, err)
		}
	}
	return nil
}

// MarkEventsFailed records a failed push attempt for each row: the attempt
// counter is bumped and the next retry scheduled per the backoff policy.
// A row that exhausts its attempts is quarantined (failed_at set) and excluded
// from future pushes until RequeueFailed.
func MarkEventsFailed(tx *sql.Tx, failures []FailedPush, policy RetryPolicy, now time.Time) error {
	for _, f := range failures {
		var attempts int
		err := tx.QueryRow(`SELECT attempts FROM action_log WHERE rowid = ?`, f.ClientActionID).Scan(&attempts)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return fmt.Errorf("read attempts rowid=%d: %w", f.ClientActionID, err)
		}

		attempts++
		if attempts >= policy.MaxAttempts {
			_, err = tx.Exec(
				`UPDATE action_log SET attempts = ?, next_retry_at = NULL, last_error = ?, failed_at = ? WHERE rowid = ?`,
				attempts, f.Reason, now, f.ClientActionID,
			)
		} else {
			_, err = tx.Exec(
				`UPDATE action_log SET attempts = ?, next_retry_at = ?, last_error = ? WHERE rowid = ?`,
				attempts, now.Add(policy.Delay(attempts)), f.Reason, f.ClientActionID,
			)
		}
		if err != nil {
			return fmt.Errorf("mark failed rowid=%d: %w", f.ClientActionID, err)
		}
	}
	return nil
}

// RequeueFailed clears failure state on quarantined rows so they become
// pending again. Explicit operator action; nothing requeues automatically.
// Returns the number of rows requeued.
func RequeueFailed(tx *sql.Tx) (int64, error) {
	res, err := tx.Exec(`
		UPDATE action_log
		SET attempts = 0, next_retry_at = NULL, last_error = '', failed_at = NULL
		WHERE failed_at IS NOT NULL`)
	if err != nil {
		return 0, fmt.Errorf("requeue failed events: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
