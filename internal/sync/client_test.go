package sync

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const clientTestSchema = `
CREATE TABLE tasks (
    id TEXT PRIMARY KEY,
    title TEXT,
    status TEXT,
    priority TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    deleted_at DATETIME
);
CREATE TABLE subtasks (
    id TEXT PRIMARY KEY,
    task_id TEXT,
    title TEXT,
    done INTEGER DEFAULT 0,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE listings (
    id TEXT PRIMARY KEY,
    property_id TEXT,
    status TEXT,
    list_price REAL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    deleted_at DATETIME
);
CREATE TABLE action_log (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    action_type TEXT NOT NULL,
    entity_type TEXT NOT NULL,
    entity_id TEXT NOT NULL,
    previous_data TEXT DEFAULT '',
    new_data TEXT DEFAULT '',
    timestamp DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    undone INTEGER DEFAULT 0,
    synced_at DATETIME,
    server_seq INTEGER,
    attempts INTEGER DEFAULT 0,
    next_retry_at DATETIME,
    last_error TEXT DEFAULT '',
    failed_at DATETIME
);
CREATE TABLE sync_state (
    team_id TEXT PRIMARY KEY,
    last_pushed_action_id INTEGER DEFAULT 0,
    last_pulled_server_seq INTEGER DEFAULT 0,
    last_sync_at DATETIME,
    sync_disabled INTEGER DEFAULT 0
);
`

func setupClientDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if _, err := db.Exec(clientTestSchema); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func insertActionLog(t *testing.T, db *sql.DB, id, sessionID, actionType, entityType, entityID, newData, prevData string, undone int, syncedAt string) {
	t.Helper()
	var syncedAtVal any
	if syncedAt != "" {
		syncedAtVal = syncedAt
	}
	_, err := db.Exec(
		`INSERT INTO action_log (id, session_id, action_type, entity_type, entity_id, new_data, previous_data, timestamp, undone, synced_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, sessionID, actionType, entityType, entityID, newData, prevData,
		time.Now().UTC().Format("2006-01-02 15:04:05"), undone, syncedAtVal,
	)
	if err != nil {
		t.Fatalf("insert action_log: %v", err)
	}
}

func pendingEvents(t *testing.T, db *sql.DB, now time.Time) []Event {
	t.Helper()
	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback()
	events, err := GetPendingEvents(tx, "dev-1", "ses-1", now)
	if err != nil {
		t.Fatalf("get pending events: %v", err)
	}
	return events
}

func TestGetPendingEvents_Basic(t *testing.T) {
	db := setupClientDB(t)

	insertActionLog(t, db, "al-00000001", "ses-1", "create", "tasks", "tk-1",
		`{"id":"tk-1","title":"Order sign","status":"open"}`, "", 0, "")
	insertActionLog(t, db, "al-00000002", "ses-1", "update", "tasks", "tk-1",
		`{"id":"tk-1","title":"Order sign","status":"done"}`, `{"id":"tk-1","title":"Order sign","status":"open"}`, 0, "")
	insertActionLog(t, db, "al-00000003", "ses-1", "delete", "tasks", "tk-2",
		"", `{"id":"tk-2"}`, 0, "")

	events := pendingEvents(t, db, time.Now())
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}

	ev := events[0]
	if ev.ClientActionID != 1 {
		t.Errorf("ClientActionID: got %d, want 1", ev.ClientActionID)
	}
	if ev.DeviceID != "dev-1" || ev.SessionID != "ses-1" {
		t.Errorf("identity: got %q/%q", ev.DeviceID, ev.SessionID)
	}
	if ev.EntityType != "tasks" {
		t.Errorf("EntityType: got %q, want tasks", ev.EntityType)
	}
	if ev.ActionType != "create" {
		t.Errorf("ActionType: got %q, want create", ev.ActionType)
	}

	// Payload wrapper carries schema_version plus both data halves.
	var wrapper struct {
		SchemaVersion int             `json:"schema_version"`
		NewData       json.RawMessage `json:"new_data"`
		PreviousData  json.RawMessage `json:"previous_data"`
	}
	if err := json.Unmarshal(events[1].Payload, &wrapper); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if wrapper.SchemaVersion != 1 {
		t.Errorf("schema_version: got %d, want 1", wrapper.SchemaVersion)
	}
	if !strings.Contains(string(wrapper.NewData), `"done"`) {
		t.Errorf("new_data missing updated status: %s", wrapper.NewData)
	}
	if !strings.Contains(string(wrapper.PreviousData), `"open"`) {
		t.Errorf("previous_data missing baseline: %s", wrapper.PreviousData)
	}

	// Deletes on soft-delete tables go out as soft_delete.
	if events[2].ActionType != "soft_delete" {
		t.Errorf("delete mapping: got %q, want soft_delete", events[2].ActionType)
	}
}

func TestGetPendingEvents_SkipsUndone(t *testing.T) {
	db := setupClientDB(t)

	insertActionLog(t, db, "al-00000001", "ses-1", "create", "tasks", "tk-1", `{"id":"tk-1"}`, "", 0, "")
	insertActionLog(t, db, "al-00000002", "ses-1", "create", "tasks", "tk-2", `{"id":"tk-2"}`, "", 1, "")

	events := pendingEvents(t, db, time.Now())
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].EntityID != "tk-1" {
		t.Errorf("entity: got %q, want tk-1", events[0].EntityID)
	}
}

func TestGetPendingEvents_SkipsSynced(t *testing.T) {
	db := setupClientDB(t)

	insertActionLog(t, db, "al-00000001", "ses-1", "create", "tasks", "tk-1", `{"id":"tk-1"}`, "", 0, "2026-01-01 00:00:00")
	insertActionLog(t, db, "al-00000002", "ses-1", "create", "tasks", "tk-2", `{"id":"tk-2"}`, "", 0, "")

	events := pendingEvents(t, db, time.Now())
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].EntityID != "tk-2" {
		t.Errorf("entity: got %q, want tk-2", events[0].EntityID)
	}
}

func TestGetPendingEvents_RetryFiltering(t *testing.T) {
	db := setupClientDB(t)
	now := time.Now().UTC()

	insertActionLog(t, db, "al-00000001", "ses-1", "create", "tasks", "tk-1", `{"id":"tk-1"}`, "", 0, "")
	insertActionLog(t, db, "al-00000002", "ses-1", "create", "tasks", "tk-2", `{"id":"tk-2"}`, "", 0, "")
	insertActionLog(t, db, "al-00000003", "ses-1", "create", "tasks", "tk-3", `{"id":"tk-3"}`, "", 0, "")

	// tk-2 is backing off into the future; tk-3 is quarantined.
	if _, err := db.Exec(`UPDATE action_log SET next_retry_at = ? WHERE entity_id = 'tk-2'`,
		now.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(`UPDATE action_log SET failed_at = ? WHERE entity_id = 'tk-3'`, now); err != nil {
		t.Fatal(err)
	}

	events := pendingEvents(t, db, now)
	if len(events) != 1 || events[0].EntityID != "tk-1" {
		t.Fatalf("got %+v, want only tk-1", events)
	}

	// Once the backoff elapses, tk-2 is pending again; tk-3 stays quarantined.
	events = pendingEvents(t, db, now.Add(2*time.Hour))
	if len(events) != 2 {
		t.Fatalf("after backoff: got %d events, want 2", len(events))
	}
}

func TestGetPendingEvents_ActionTypeMapping(t *testing.T) {
	db := setupClientDB(t)

	cases := []struct {
		id         string
		entityType string
		local      string
		want       string
	}{
		{"al-00000001", "tasks", "create", "create"},
		{"al-00000002", "tasks", "update", "update"},
		{"al-00000003", "tasks", "delete", "soft_delete"},
		{"al-00000004", "subtasks", "delete", "delete"},
		{"al-00000005", "tasks", "restore", "update"},
	}
	for _, tc := range cases {
		insertActionLog(t, db, tc.id, "ses-1", tc.local, tc.entityType, "e1", `{"id":"e1"}`, "", 0, "")
	}

	events := pendingEvents(t, db, time.Now())
	if len(events) != len(cases) {
		t.Fatalf("got %d events, want %d", len(events), len(cases))
	}
	for i, tc := range cases {
		if events[i].ActionType != tc.want {
			t.Errorf("%s/%s: got %q, want %q", tc.entityType, tc.local, events[i].ActionType, tc.want)
		}
	}
}

func TestGetPendingEvents_EntityTypeNormalization(t *testing.T) {
	db := setupClientDB(t)

	insertActionLog(t, db, "al-00000001", "ses-1", "create", "task", "tk-1", `{"id":"tk-1"}`, "", 0, "")
	insertActionLog(t, db, "al-00000002", "ses-1", "create", "listing", "ls-1", `{"id":"ls-1"}`, "", 0, "")
	insertActionLog(t, db, "al-00000003", "ses-1", "create", "widgets", "w-1", `{"id":"w-1"}`, "", 0, "")

	events := pendingEvents(t, db, time.Now())
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2 (unsupported type skipped)", len(events))
	}
	if events[0].EntityType != "tasks" {
		t.Errorf("singular normalize: got %q, want tasks", events[0].EntityType)
	}
	if events[1].EntityType != "listings" {
		t.Errorf("singular normalize: got %q, want listings", events[1].EntityType)
	}
}

func wrapPayload(t *testing.T, newData, prevData string) json.RawMessage {
	t.Helper()
	if prevData == "" {
		prevData = "{}"
	}
	if newData == "" {
		newData = "{}"
	}
	payload := fmt.Sprintf(`{"schema_version":1,"new_data":%s,"previous_data":%s}`, newData, prevData)
	return json.RawMessage(payload)
}

func validatorForTests(entityType string) bool {
	switch entityType {
	case "tasks", "subtasks", "listings":
		return true
	}
	return false
}

func TestApplyRemoteEvents_Basic(t *testing.T) {
	db := setupClientDB(t)

	events := []Event{
		{
			ServerSeq:  1,
			DeviceID:   "dev-remote",
			ActionType: "create",
			EntityType: "tasks",
			EntityID:   "tk-1",
			Payload:    wrapPayload(t, `{"id":"tk-1","title":"Stage kitchen","status":"open"}`, ""),
		},
		{
			ServerSeq:  2,
			DeviceID:   "dev-remote",
			ActionType: "update",
			EntityType: "tasks",
			EntityID:   "tk-1",
			Payload: wrapPayload(t,
				`{"id":"tk-1","title":"Stage kitchen","status":"done"}`,
				`{"id":"tk-1","title":"Stage kitchen","status":"open"}`),
		},
	}

	tx, _ := db.Begin()
	result, err := ApplyRemoteEvents(tx, events, "dev-1", validatorForTests, nil)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	tx.Commit()

	if result.Applied != 2 || len(result.Failed) != 0 {
		t.Fatalf("result: %+v", result)
	}
	if result.LastAppliedSeq != 2 {
		t.Errorf("LastAppliedSeq: got %d, want 2", result.LastAppliedSeq)
	}

	var status string
	if err := db.QueryRow(`SELECT status FROM tasks WHERE id = 'tk-1'`).Scan(&status); err != nil {
		t.Fatalf("read task: %v", err)
	}
	if status != "done" {
		t.Errorf("status: got %q, want done", status)
	}
}

func TestApplyRemoteEvents_SkipsOwnDeviceEvents(t *testing.T) {
	db := setupClientDB(t)

	// Local row already reflects a newer edit than the echoed event.
	if _, err := db.Exec(`INSERT INTO tasks (id, title, status) VALUES ('tk-1', 'Newer local title', 'open')`); err != nil {
		t.Fatal(err)
	}

	events := []Event{
		{
			ServerSeq:  1,
			DeviceID:   "dev-1",
			ActionType: "update",
			EntityType: "tasks",
			EntityID:   "tk-1",
			Payload:    wrapPayload(t, `{"id":"tk-1","title":"Stale echo","status":"open"}`, ""),
		},
		{
			ServerSeq:  2,
			DeviceID:   "dev-remote",
			ActionType: "create",
			EntityType: "tasks",
			EntityID:   "tk-2",
			Payload:    wrapPayload(t, `{"id":"tk-2","title":"From teammate","status":"open"}`, ""),
		},
	}

	tx, _ := db.Begin()
	result, err := ApplyRemoteEvents(tx, events, "dev-1", validatorForTests, nil)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	tx.Commit()

	if result.Applied != 1 {
		t.Errorf("Applied: got %d, want 1", result.Applied)
	}
	// The cursor still advances past the skipped event.
	if result.LastAppliedSeq != 2 {
		t.Errorf("LastAppliedSeq: got %d, want 2", result.LastAppliedSeq)
	}

	var title string
	if err := db.QueryRow(`SELECT title FROM tasks WHERE id = 'tk-1'`).Scan(&title); err != nil {
		t.Fatalf("read task: %v", err)
	}
	if title != "Newer local title" {
		t.Errorf("own event reapplied: title = %q", title)
	}

	var count int
	db.QueryRow(`SELECT COUNT(*) FROM tasks WHERE id = 'tk-2'`).Scan(&count)
	if count != 1 {
		t.Error("teammate event was not applied")
	}
}

func TestApplyRemoteEvents_PartialFailure(t *testing.T) {
	db := setupClientDB(t)

	events := []Event{
		{ServerSeq: 1, ActionType: "create", EntityType: "tasks", EntityID: "tk-1",
			Payload: wrapPayload(t, `{"id":"tk-1","title":"First"}`, "")},
		{ServerSeq: 2, ActionType: "create", EntityType: "widgets", EntityID: "w-1",
			Payload: wrapPayload(t, `{"id":"w-1"}`, "")},
		{ServerSeq: 3, ActionType: "create", EntityType: "tasks", EntityID: "tk-3",
			Payload: wrapPayload(t, `{"id":"tk-3","title":"Third"}`, "")},
	}

	tx, _ := db.Begin()
	result, err := ApplyRemoteEvents(tx, events, "dev-1", validatorForTests, nil)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	tx.Commit()

	// One poison event must not block the tail behind it.
	if result.Applied != 2 {
		t.Errorf("applied: got %d, want 2", result.Applied)
	}
	if len(result.Failed) != 1 || result.Failed[0].ServerSeq != 2 {
		t.Fatalf("failed: %+v", result.Failed)
	}
	if result.LastAppliedSeq != 3 {
		t.Errorf("LastAppliedSeq: got %d, want 3", result.LastAppliedSeq)
	}

	var count int
	db.QueryRow(`SELECT COUNT(*) FROM tasks`).Scan(&count)
	if count != 2 {
		t.Errorf("tasks: got %d, want 2", count)
	}
}

func TestApplyRemoteEvents_ConflictTracking(t *testing.T) {
	db := setupClientDB(t)

	// Local row edited after the last sync.
	recent := time.Now().UTC().Add(-time.Minute).Format("2006-01-02 15:04:05")
	if _, err := db.Exec(
		`INSERT INTO tasks (id, title, status, updated_at) VALUES ('tk-1', 'Local title', 'open', ?)`, recent,
	); err != nil {
		t.Fatal(err)
	}
	lastSync := time.Now().UTC().Add(-time.Hour)

	events := []Event{
		{ServerSeq: 5, ActionType: "update", EntityType: "tasks", EntityID: "tk-1",
			Payload: wrapPayload(t,
				`{"id":"tk-1","title":"Remote title","status":"open"}`,
				`{"id":"tk-1","title":"Old title","status":"open"}`)},
	}

	tx, _ := db.Begin()
	result, err := ApplyRemoteEvents(tx, events, "dev-1", validatorForTests, &lastSync)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	tx.Commit()

	if result.Overwrites != 1 || len(result.Conflicts) != 1 {
		t.Fatalf("expected one conflict, got %+v", result)
	}
	c := result.Conflicts[0]
	if c.EntityType != "tasks" || c.EntityID != "tk-1" || c.ServerSeq != 5 {
		t.Errorf("conflict identity: %+v", c)
	}
	if !strings.Contains(string(c.LocalData), "Local title") {
		t.Errorf("local data: %s", c.LocalData)
	}
	if !strings.Contains(string(c.RemoteData), "Remote title") {
		t.Errorf("remote data: %s", c.RemoteData)
	}
}

func TestApplyRemoteEvents_NoConflictWhenLocalUntouched(t *testing.T) {
	db := setupClientDB(t)

	// Local row last edited before the last sync: the overwrite is clean.
	stale := time.Now().UTC().Add(-2 * time.Hour).Format("2006-01-02 15:04:05")
	if _, err := db.Exec(
		`INSERT INTO tasks (id, title, status, updated_at) VALUES ('tk-1', 'Old', 'open', ?)`, stale,
	); err != nil {
		t.Fatal(err)
	}
	lastSync := time.Now().UTC().Add(-time.Hour)

	events := []Event{
		{ServerSeq: 7, ActionType: "update", EntityType: "tasks", EntityID: "tk-1",
			Payload: wrapPayload(t, `{"id":"tk-1","title":"New","status":"open"}`, `{"id":"tk-1","title":"Old","status":"open"}`)},
	}

	tx, _ := db.Begin()
	result, err := ApplyRemoteEvents(tx, events, "dev-1", validatorForTests, &lastSync)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	tx.Commit()

	if result.Overwrites != 0 || len(result.Conflicts) != 0 {
		t.Fatalf("expected clean overwrite, got %+v", result)
	}
}

func TestApplyRemoteEvents_DeleteDoesNotProduceConflict(t *testing.T) {
	db := setupClientDB(t)

	if _, err := db.Exec(`INSERT INTO tasks (id, title) VALUES ('tk-1', 'Doomed')`); err != nil {
		t.Fatal(err)
	}
	lastSync := time.Now().UTC().Add(-time.Hour)

	events := []Event{
		{ServerSeq: 9, ActionType: "soft_delete", EntityType: "tasks", EntityID: "tk-1",
			ClientTimestamp: time.Now().UTC(),
			Payload:         wrapPayload(t, "", `{"id":"tk-1"}`)},
	}

	tx, _ := db.Begin()
	result, err := ApplyRemoteEvents(tx, events, "dev-1", validatorForTests, &lastSync)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	tx.Commit()

	if len(result.Conflicts) != 0 {
		t.Fatalf("deletes should not record conflicts: %+v", result.Conflicts)
	}
	var deletedAt sql.NullString
	db.QueryRow(`SELECT deleted_at FROM tasks WHERE id = 'tk-1'`).Scan(&deletedAt)
	if !deletedAt.Valid {
		t.Error("deleted_at not set")
	}
}

func TestMarkEventsSynced(t *testing.T) {
	db := setupClientDB(t)

	insertActionLog(t, db, "al-00000001", "ses-1", "create", "tasks", "tk-1", `{"id":"tk-1"}`, "", 0, "")
	insertActionLog(t, db, "al-00000002", "ses-1", "create", "tasks", "tk-2", `{"id":"tk-2"}`, "", 0, "")
	// Row 1 carries stale retry state from an earlier failed push.
	if _, err := db.Exec(
		`UPDATE action_log SET attempts = 2, next_retry_at = CURRENT_TIMESTAMP, last_error = 'boom' WHERE rowid = 1`,
	); err != nil {
		t.Fatal(err)
	}

	tx, _ := db.Begin()
	err := MarkEventsSynced(tx, []Ack{
		{ClientActionID: 1, ServerSeq: 100},
		{ClientActionID: 2, ServerSeq: 101},
	})
	if err != nil {
		t.Fatalf("mark synced: %v", err)
	}
	tx.Commit()

	var seq int64
	var syncedAt sql.NullString
	var attempts int
	var lastError string
	err = db.QueryRow(
		`SELECT server_seq, synced_at, attempts, last_error FROM action_log WHERE rowid = 1`,
	).Scan(&seq, &syncedAt, &attempts, &lastError)
	if err != nil {
		t.Fatalf("read row: %v", err)
	}
	if seq != 100 || !syncedAt.Valid {
		t.Errorf("row 1: seq=%d synced=%v", seq, syncedAt.Valid)
	}
	if attempts != 0 || lastError != "" {
		t.Errorf("retry state not cleared: attempts=%d lastError=%q", attempts, lastError)
	}
}

func TestMarkEventsFailed_BackoffThenQuarantine(t *testing.T) {
	db := setupClientDB(t)
	now := time.Now().UTC()
	policy := RetryPolicy{BaseDelay: time.Second, MaxDelay: 30 * time.Second, MaxAttempts: 3}

	insertActionLog(t, db, "al-00000001", "ses-1", "create", "tasks", "tk-1", `{"id":"tk-1"}`, "", 0, "")

	fail := func() {
		t.Helper()
		tx, _ := db.Begin()
		if err := MarkEventsFailed(tx, []FailedPush{{ClientActionID: 1, Reason: "server error"}}, policy, now); err != nil {
			t.Fatalf("mark failed: %v", err)
		}
		tx.Commit()
	}

	fail()
	var attempts int
	var nextRetry, failedAt sql.NullString
	db.QueryRow(`SELECT attempts, next_retry_at, failed_at FROM action_log WHERE rowid = 1`).
		Scan(&attempts, &nextRetry, &failedAt)
	if attempts != 1 || !nextRetry.Valid || failedAt.Valid {
		t.Fatalf("after 1 failure: attempts=%d nextRetry=%v failed=%v", attempts, nextRetry.Valid, failedAt.Valid)
	}

	fail()
	fail()
	db.QueryRow(`SELECT attempts, next_retry_at, failed_at FROM action_log WHERE rowid = 1`).
		Scan(&attempts, &nextRetry, &failedAt)
	if attempts != 3 || nextRetry.Valid || !failedAt.Valid {
		t.Fatalf("after exhausting attempts: attempts=%d nextRetry=%v failed=%v", attempts, nextRetry.Valid, failedAt.Valid)
	}
	var lastError string
	db.QueryRow(`SELECT last_error FROM action_log WHERE rowid = 1`).Scan(&lastError)
	if lastError != "server error" {
		t.Errorf("last_error: got %q", lastError)
	}
}

func TestRequeueFailed(t *testing.T) {
	db := setupClientDB(t)
	now := time.Now().UTC()

	insertActionLog(t, db, "al-00000001", "ses-1", "create", "tasks", "tk-1", `{"id":"tk-1"}`, "", 0, "")
	insertActionLog(t, db, "al-00000002", "ses-1", "create", "tasks", "tk-2", `{"id":"tk-2"}`, "", 0, "")
	if _, err := db.Exec(
		`UPDATE action_log SET attempts = 5, failed_at = ?, last_error = 'gone' WHERE rowid = 1`, now,
	); err != nil {
		t.Fatal(err)
	}

	tx, _ := db.Begin()
	n, err := RequeueFailed(tx)
	if err != nil {
		t.Fatalf("requeue: %v", err)
	}
	tx.Commit()

	if n != 1 {
		t.Fatalf("requeued %d rows, want 1", n)
	}

	events := pendingEvents(t, db, now)
	if len(events) != 2 {
		t.Fatalf("got %d pending, want 2", len(events))
	}
}
