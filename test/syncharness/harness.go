// Package syncharness drives multi-device convergence tests against the real
// sync engine and event log, with no HTTP in between. Each simulated device
// gets a full workspace database; the team event log is an in-memory
// eventstore.SQLite.
package syncharness

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	gosync "sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/harper/dispatch/internal/db"
	"github.com/harper/dispatch/internal/eventstore"
	dispatchsync "github.com/harper/dispatch/internal/sync"
)

// team is the team id every harness run syncs under.
const team = "tm-harness"

// entityTables lists the tables that hold team data (not action_log or
// sync bookkeeping).
var entityTables = []string{
	"users", "realtors", "contacts", "properties", "listings",
	"tasks", "subtasks", "activities", "notes", "status_changes", "showings",
}

// validEntities is the set of entity types accepted by the validator.
var validEntities = map[string]bool{
	"users":          true,
	"realtors":       true,
	"contacts":       true,
	"properties":     true,
	"listings":       true,
	"tasks":          true,
	"subtasks":       true,
	"activities":     true,
	"notes":          true,
	"status_changes": true,
	"showings":       true,
}

// softDeleteTables lists tables with a deleted_at column. Deletes on these
// propagate as soft_delete events; subtasks hard-delete, and the append-only
// tables (activities, status_changes) are never deleted.
var softDeleteTables = map[string]bool{
	"users":      true,
	"realtors":   true,
	"contacts":   true,
	"properties": true,
	"listings":   true,
	"tasks":      true,
	"notes":      true,
	"showings":   true,
}

// SimulatedClient is one device with its own workspace database.
type SimulatedClient struct {
	DeviceID      string
	SessionID     string
	DB            *db.DB
	LastPulledSeq int64
}

// Harness orchestrates multi-client sync testing.
type Harness struct {
	t          *testing.T
	Store      *eventstore.SQLite
	Clients    map[string]*SimulatedClient
	clientKeys []string
	Validator  dispatchsync.EntityValidator
	actionSeq  atomic.Int64
	storeMu    gosync.Mutex // the event log is a single SQLite writer
}

// NewHarness creates a harness with numClients devices and one team event log.
func NewHarness(t *testing.T, numClients int) *Harness {
	t.Helper()

	h := &Harness{
		t:         t,
		Clients:   make(map[string]*SimulatedClient),
		Validator: func(entityType string) bool { return validEntities[entityType] },
	}

	store, err := eventstore.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open event log: %v", err)
	}
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("init event log: %v", err)
	}
	h.Store = store
	t.Cleanup(func() { store.Close() })

	for i := 0; i < numClients; i++ {
		letter := string(rune('A' + i))
		clientID := "client-" + letter
		deviceID := fmt.Sprintf("device-%s-0000-0000-0000-%012d", letter, i+1)
		sessionID := fmt.Sprintf("ses_%s%04d", strings.ToLower(letter), i+1)

		database, err := db.Initialize(t.TempDir())
		if err != nil {
			t.Fatalf("init client %s db: %v", clientID, err)
		}
		t.Cleanup(func() { database.Close() })

		h.Clients[clientID] = &SimulatedClient{
			DeviceID:  deviceID,
			SessionID: sessionID,
			DB:        database,
		}
		h.clientKeys = append(h.clientKeys, clientID)
	}

	return h
}

// Mutate performs a local mutation on a client's database and records it in
// action_log, mirroring what the logged db helpers do. A "delete" action uses
// soft-delete on tables with a deleted_at column and hard delete elsewhere.
func (h *Harness) Mutate(clientID, actionType, entityType, entityID string, data map[string]any) error {
	c, ok := h.Clients[clientID]
	if !ok {
		return fmt.Errorf("unknown client: %s", clientID)
	}

	tx, err := c.DB.Conn().Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	prevData := readEntity(tx, entityType, entityID)

	effectiveAction := actionType
	if actionType == "delete" && softDeleteTables[entityType] {
		effectiveAction = "soft_delete"
	}

	switch effectiveAction {
	case "create":
		if err := upsertLocal(tx, entityType, entityID, data); err != nil {
			return fmt.Errorf("upsert: %w", err)
		}
	case "update":
		// Partial update: merge onto the existing row so INSERT OR REPLACE
		// does not zero untouched columns.
		merged := make(map[string]any, len(prevData)+len(data))
		for k, v := range prevData {
			merged[k] = v
		}
		for k, v := range data {
			merged[k] = v
		}
		if err := upsertLocal(tx, entityType, entityID, merged); err != nil {
			return fmt.Errorf("upsert: %w", err)
		}
	case "delete":
		if _, err := tx.Exec(fmt.Sprintf("DELETE FROM %s WHERE id = ?", entityType), entityID); err != nil {
			return fmt.Errorf("delete: %w", err)
		}
	case "soft_delete":
		if _, err := tx.Exec(fmt.Sprintf("UPDATE %s SET deleted_at = CURRENT_TIMESTAMP WHERE id = ?", entityType), entityID); err != nil {
			return fmt.Errorf("soft_delete: %w", err)
		}
	default:
		return fmt.Errorf("unknown action type: %s", actionType)
	}

	// new_data is the full row snapshot after the mutation, matching the
	// logged helpers in internal/db.
	prevJSON, _ := json.Marshal(prevData)
	var newJSON []byte
	if actionType == "create" || actionType == "update" {
		postData := readEntity(tx, entityType, entityID)
		if postData != nil {
			newJSON, _ = json.Marshal(postData)
		} else if data != nil {
			newJSON, _ = json.Marshal(data)
		} else {
			newJSON = []byte("{}")
		}
	} else if data != nil {
		newJSON, _ = json.Marshal(data)
	} else {
		newJSON = []byte("{}")
	}

	seq := h.actionSeq.Add(1)
	alID := fmt.Sprintf("al-%08d", seq)

	_, err = tx.Exec(
		`INSERT INTO action_log (id, session_id, action_type, entity_type, entity_id, new_data, previous_data, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)`,
		alID, c.SessionID, actionType, entityType, entityID, string(newJSON), string(prevJSON),
	)
	if err != nil {
		return fmt.Errorf("insert action_log: %w", err)
	}

	return tx.Commit()
}

// UndoLastAction reverses the client's most recent non-undone mutation the way
// the undo command does: the original action_log row is marked undone so it
// never pushes, the local row is reverted, and a compensating action is logged
// so teammates who already saw the original converge on the reverted state.
func (h *Harness) UndoLastAction(clientID string) error {
	c, ok := h.Clients[clientID]
	if !ok {
		return fmt.Errorf("unknown client: %s", clientID)
	}

	tx, err := c.DB.Conn().Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// Harness rows use decimal IDs; the GLOB keeps backfill-generated rows
	// (hex suffixes) out of the undo window.
	var (
		actionID   string
		actionType string
		entityType string
		entityID   string
		prevData   sql.NullString
		newData    sql.NullString
	)
	err = tx.QueryRow(`
		SELECT id, action_type, entity_type, entity_id, previous_data, new_data
		FROM action_log
		WHERE session_id = ? AND undone = 0
		  AND id GLOB 'al-[0-9][0-9][0-9][0-9][0-9][0-9][0-9][0-9]'
		ORDER BY rowid DESC
		LIMIT 1
	`, c.SessionID).Scan(&actionID, &actionType, &entityType, &entityID, &prevData, &newData)
	if err == sql.ErrNoRows {
		return fmt.Errorf("no actions to undo for session %s", c.SessionID)
	}
	if err != nil {
		return fmt.Errorf("query last action: %w", err)
	}

	if _, err := tx.Exec(`UPDATE action_log SET undone = 1 WHERE id = ?`, actionID); err != nil {
		return fmt.Errorf("mark undone: %w", err)
	}

	var compAction string
	var compNew, compPrev string

	switch actionType {
	case "create":
		compAction = "soft_delete"
		if softDeleteTables[entityType] {
			if _, err := tx.Exec(fmt.Sprintf("UPDATE %s SET deleted_at = CURRENT_TIMESTAMP WHERE id = ?", entityType), entityID); err != nil {
				return fmt.Errorf("soft_delete entity: %w", err)
			}
		} else {
			compAction = "delete"
			if _, err := tx.Exec(fmt.Sprintf("DELETE FROM %s WHERE id = ?", entityType), entityID); err != nil {
				return fmt.Errorf("delete entity: %w", err)
			}
		}
		compNew = "{}"
		compPrev = orEmptyObject(newData)

	case "delete", "soft_delete":
		compAction = "restore"
		if softDeleteTables[entityType] {
			if _, err := tx.Exec(fmt.Sprintf("UPDATE %s SET deleted_at = NULL WHERE id = ?", entityType), entityID); err != nil {
				return fmt.Errorf("restore entity: %w", err)
			}
		} else if prevData.Valid && prevData.String != "" {
			var fields map[string]any
			if err := json.Unmarshal([]byte(prevData.String), &fields); err != nil {
				return fmt.Errorf("unmarshal previous_data: %w", err)
			}
			if err := upsertLocal(tx, entityType, entityID, fields); err != nil {
				return fmt.Errorf("recreate entity: %w", err)
			}
		}
		restored := readEntity(tx, entityType, entityID)
		if restored != nil {
			b, _ := json.Marshal(restored)
			compNew = string(b)
		} else {
			compNew = "{}"
		}
		compPrev = orEmptyObject(prevData)

	case "update":
		compAction = "update"
		if prevData.Valid && prevData.String != "" {
			var fields map[string]any
			if err := json.Unmarshal([]byte(prevData.String), &fields); err != nil {
				return fmt.Errorf("unmarshal previous_data: %w", err)
			}
			if err := upsertLocal(tx, entityType, entityID, fields); err != nil {
				return fmt.Errorf("restore previous state: %w", err)
			}
			compNew = prevData.String
		} else {
			compNew = "{}"
		}
		compPrev = orEmptyObject(newData)

	default:
		return fmt.Errorf("cannot undo action type: %s", actionType)
	}

	seq := h.actionSeq.Add(1)
	alID := fmt.Sprintf("al-%08d", seq)
	_, err = tx.Exec(
		`INSERT INTO action_log (id, session_id, action_type, entity_type, entity_id, new_data, previous_data, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)`,
		alID, c.SessionID, compAction, entityType, entityID, compNew, compPrev,
	)
	if err != nil {
		return fmt.Errorf("insert compensating action: %w", err)
	}

	return tx.Commit()
}

func orEmptyObject(s sql.NullString) string {
	if s.Valid && s.String != "" {
		return s.String
	}
	return "{}"
}

// readEntity reads all columns for a given entity, returning a map.
func readEntity(tx *sql.Tx, entityType, entityID string) map[string]any {
	return readEntityFiltered(tx, entityType, entityID, false)
}

func readEntityFiltered(tx *sql.Tx, entityType, entityID string, filterSoftDeleted bool) map[string]any {
	query := fmt.Sprintf("SELECT * FROM %s WHERE id = ?", entityType)
	if filterSoftDeleted {
		query += " AND deleted_at IS NULL"
	}
	row, err := tx.Query(query, entityID)
	if err != nil {
		return nil
	}
	defer row.Close()

	if !row.Next() {
		return nil
	}

	cols, err := row.Columns()
	if err != nil {
		return nil
	}

	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := row.Scan(ptrs...); err != nil {
		return nil
	}

	result := make(map[string]any, len(cols))
	for i, col := range cols {
		result[col] = vals[i]
	}
	return result
}

// upsertLocal inserts or replaces a row in the entity table.
func upsertLocal(tx *sql.Tx, entityType, entityID string, data map[string]any) error {
	fields := make(map[string]any, len(data)+1)
	for k, v := range data {
		fields[k] = v
	}
	fields["id"] = entityID

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	placeholders := make([]string, len(keys))
	vals := make([]any, len(keys))
	for i, k := range keys {
		placeholders[i] = "?"
		vals[i] = fields[k]
	}

	query := fmt.Sprintf("INSERT OR REPLACE INTO %s (%s) VALUES (%s)",
		entityType, strings.Join(keys, ", "), strings.Join(placeholders, ", "))

	_, err := tx.Exec(query, vals...)
	return err
}

// Push sends pending events from a client to the team event log.
func (h *Harness) Push(clientID string) (dispatchsync.PushResult, error) {
	c, ok := h.Clients[clientID]
	if !ok {
		return dispatchsync.PushResult{}, fmt.Errorf("unknown client: %s", clientID)
	}

	clientTx, err := c.DB.Conn().Begin()
	if err != nil {
		return dispatchsync.PushResult{}, fmt.Errorf("begin client tx: %w", err)
	}

	events, err := dispatchsync.GetPendingEvents(clientTx, c.DeviceID, c.SessionID, time.Now().UTC())
	if err != nil {
		clientTx.Rollback()
		return dispatchsync.PushResult{}, fmt.Errorf("get pending: %w", err)
	}

	if len(events) == 0 {
		clientTx.Rollback()
		return dispatchsync.PushResult{}, nil
	}

	h.storeMu.Lock()
	result, err := h.Store.Append(context.Background(), team, events)
	h.storeMu.Unlock()
	if err != nil {
		clientTx.Rollback()
		return dispatchsync.PushResult{}, fmt.Errorf("append events: %w", err)
	}

	// Duplicates carry the seq of the original row; treat them as acks so a
	// replayed push settles instead of retrying forever.
	acks := result.Acks
	for _, rej := range result.Rejected {
		if rej.Reason == "duplicate" {
			acks = append(acks, dispatchsync.Ack{ClientActionID: rej.ClientActionID, ServerSeq: rej.ServerSeq})
		}
	}

	if err := dispatchsync.MarkEventsSynced(clientTx, acks); err != nil {
		clientTx.Rollback()
		return dispatchsync.PushResult{}, fmt.Errorf("mark synced: %w", err)
	}

	if err := clientTx.Commit(); err != nil {
		return dispatchsync.PushResult{}, fmt.Errorf("commit client tx: %w", err)
	}

	return result, nil
}

// PushWithoutMark sends pending events to the event log but never records the
// acks, simulating a crash between the server accepting and the client
// committing.
func (h *Harness) PushWithoutMark(clientID string) (dispatchsync.PushResult, error) {
	c, ok := h.Clients[clientID]
	if !ok {
		return dispatchsync.PushResult{}, fmt.Errorf("unknown client: %s", clientID)
	}

	clientTx, err := c.DB.Conn().Begin()
	if err != nil {
		return dispatchsync.PushResult{}, fmt.Errorf("begin client tx: %w", err)
	}

	events, err := dispatchsync.GetPendingEvents(clientTx, c.DeviceID, c.SessionID, time.Now().UTC())
	if err != nil {
		clientTx.Rollback()
		return dispatchsync.PushResult{}, fmt.Errorf("get pending: %w", err)
	}
	clientTx.Rollback() // read-only, don't mark anything

	if len(events) == 0 {
		return dispatchsync.PushResult{}, nil
	}

	h.storeMu.Lock()
	result, err := h.Store.Append(context.Background(), team, events)
	h.storeMu.Unlock()
	if err != nil {
		return dispatchsync.PushResult{}, fmt.Errorf("append events: %w", err)
	}

	return result, nil
}

// Pull fetches new events from the event log and applies them to the client.
func (h *Harness) Pull(clientID string) (dispatchsync.PullResult, error) {
	return h.pull(clientID, true)
}

// PullAll fetches all new events including the client's own, replaying the
// log in server-seq order.
func (h *Harness) PullAll(clientID string) (dispatchsync.PullResult, error) {
	return h.pull(clientID, false)
}

func (h *Harness) pull(clientID string, excludeOwn bool) (dispatchsync.PullResult, error) {
	c, ok := h.Clients[clientID]
	if !ok {
		return dispatchsync.PullResult{}, fmt.Errorf("unknown client: %s", clientID)
	}

	// PullAll replays the full log in server-seq order, own events included,
	// so the apply side must not filter by device either.
	exclude := ""
	myDevice := ""
	if excludeOwn {
		exclude = c.DeviceID
		myDevice = c.DeviceID
	}
	pullResult, err := h.Store.EventsSince(context.Background(), team, c.LastPulledSeq, 10000, exclude)
	if err != nil {
		return dispatchsync.PullResult{}, fmt.Errorf("events since: %w", err)
	}

	if len(pullResult.Events) == 0 {
		if pullResult.LastServerSeq > c.LastPulledSeq {
			c.LastPulledSeq = pullResult.LastServerSeq
		}
		return pullResult, nil
	}

	clientTx, err := c.DB.Conn().Begin()
	if err != nil {
		return dispatchsync.PullResult{}, fmt.Errorf("begin client tx: %w", err)
	}

	applyResult, err := dispatchsync.ApplyRemoteEvents(clientTx, pullResult.Events, myDevice, h.Validator, nil)
	if err != nil {
		clientTx.Rollback()
		return dispatchsync.PullResult{}, fmt.Errorf("apply remote events: %w", err)
	}

	if err := clientTx.Commit(); err != nil {
		return dispatchsync.PullResult{}, fmt.Errorf("commit client tx: %w", err)
	}

	if applyResult.LastAppliedSeq > c.LastPulledSeq {
		c.LastPulledSeq = applyResult.LastAppliedSeq
	}
	if pullResult.LastServerSeq > c.LastPulledSeq {
		c.LastPulledSeq = pullResult.LastServerSeq
	}

	// Record the cursor so orphan backfill knows these rows came from the
	// server and must not be re-pushed as synthetic creates.
	_, err = c.DB.Conn().Exec(
		`INSERT OR REPLACE INTO sync_state (team_id, last_pulled_server_seq) VALUES (?, ?)`,
		team, c.LastPulledSeq,
	)
	if err != nil {
		return pullResult, fmt.Errorf("record cursor: %w", err)
	}

	return pullResult, nil
}

// Sync pushes then pulls for a client.
func (h *Harness) Sync(clientID string) error {
	if _, err := h.Push(clientID); err != nil {
		return fmt.Errorf("push: %w", err)
	}
	if _, err := h.Pull(clientID); err != nil {
		return fmt.Errorf("pull: %w", err)
	}
	return nil
}

// SyncAll runs two push+pull rounds across every client so late pushes reach
// everyone.
func (h *Harness) SyncAll() {
	h.t.Helper()
	for round := 0; round < 2; round++ {
		for _, clientID := range h.clientKeys {
			if err := h.Sync(clientID); err != nil {
				h.t.Fatalf("sync %s (round %d): %v", clientID, round+1, err)
			}
		}
	}
}

// AssertConverged verifies all clients hold identical entity data.
func (h *Harness) AssertConverged() {
	h.t.Helper()

	if len(h.clientKeys) < 2 {
		return
	}

	for _, table := range entityTables {
		var refRows, refClient string
		for i, clientID := range h.clientKeys {
			rows := dumpTable(h.Clients[clientID].DB.Conn(), table)
			if i == 0 {
				refRows = rows
				refClient = clientID
				continue
			}
			if rows != refRows {
				h.t.Fatalf("DIVERGENCE in table %q between %s and %s:\n--- %s ---\n%s\n--- %s ---\n%s",
					table, refClient, clientID, refClient, refRows, clientID, rows)
			}
		}
	}
}

// timestampCols are excluded from convergence checks because CURRENT_TIMESTAMP
// defaults fire independently on each client.
var timestampCols = map[string]bool{
	"created_at": true, "updated_at": true, "deleted_at": true,
	"completed_at": true, "listed_at": true, "closed_at": true,
	"occurred_at": true, "scheduled_at": true, "due_at": true,
	"timestamp": true,
}

// dumpTable returns a deterministic string representation of live rows in a
// table, with timestamp columns excluded.
func dumpTable(conn *sql.DB, table string) string {
	query := fmt.Sprintf("SELECT * FROM %s", table)
	if softDeleteTables[table] {
		query += " WHERE deleted_at IS NULL"
	}
	query += " ORDER BY id"
	rows, err := conn.Query(query)
	if err != nil {
		return fmt.Sprintf("ERROR: %v", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return fmt.Sprintf("ERROR: %v", err)
	}

	var sb strings.Builder
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			sb.WriteString(fmt.Sprintf("SCAN ERROR: %v\n", err))
			continue
		}

		var parts []string
		for i, col := range cols {
			if timestampCols[col] {
				continue
			}
			parts = append(parts, fmt.Sprintf("%s=%v", col, vals[i]))
		}
		sb.WriteString(strings.Join(parts, " | "))
		sb.WriteString("\n")
	}
	return sb.String()
}

// QueryEntity reads a single entity from a client's DB, returning nil when it
// is missing or soft-deleted.
func (h *Harness) QueryEntity(clientID, entityType, entityID string) map[string]any {
	h.t.Helper()
	c, ok := h.Clients[clientID]
	if !ok {
		h.t.Fatalf("unknown client: %s", clientID)
	}

	tx, err := c.DB.Conn().Begin()
	if err != nil {
		h.t.Fatalf("begin tx: %v", err)
	}
	defer tx.Rollback()

	return readEntityFiltered(tx, entityType, entityID, softDeleteTables[entityType])
}

// QueryEntityRaw reads a single entity without soft-delete filtering, for
// verifying that deleted_at landed.
func (h *Harness) QueryEntityRaw(clientID, entityType, entityID string) map[string]any {
	h.t.Helper()
	c, ok := h.Clients[clientID]
	if !ok {
		h.t.Fatalf("unknown client: %s", clientID)
	}

	tx, err := c.DB.Conn().Begin()
	if err != nil {
		h.t.Fatalf("begin tx: %v", err)
	}
	defer tx.Rollback()

	return readEntityFiltered(tx, entityType, entityID, false)
}

// CountEntities returns the number of rows in an entity table for a client.
func (h *Harness) CountEntities(clientID, entityType string) int {
	h.t.Helper()
	c, ok := h.Clients[clientID]
	if !ok {
		h.t.Fatalf("unknown client: %s", clientID)
	}

	var count int
	err := c.DB.Conn().QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", entityType)).Scan(&count)
	if err != nil {
		h.t.Fatalf("count %s: %v", entityType, err)
	}
	return count
}
