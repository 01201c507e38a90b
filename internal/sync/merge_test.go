package sync

import (
	"database/sql"
	"encoding/json"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func applyWithPrev(t *testing.T, db *sql.DB, ev Event, prev string) applyResult {
	t.Helper()
	tx := beginTx(t, db)
	res, err := applyEventWithPrevious(tx, ev, testValidator, json.RawMessage(prev))
	if err != nil {
		tx.Rollback()
		t.Fatalf("apply with previous: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	return res
}

func readTask(t *testing.T, db *sql.DB, id string) (title, status, priority string) {
	t.Helper()
	var pt, ps, pp sql.NullString
	err := db.QueryRow(`SELECT title, status, priority FROM tasks WHERE id = ?`, id).Scan(&pt, &ps, &pp)
	if err != nil {
		t.Fatalf("read task %s: %v", id, err)
	}
	return pt.String, ps.String, pp.String
}

func TestMerge_DifferentFieldEditsBothSurvive(t *testing.T) {
	db := setupDB(t)

	// Shared baseline on this device.
	tx := beginTx(t, db)
	upsertEntity(tx, "tasks", "tk-1", json.RawMessage(`{"title":"Baseline","status":"open","priority":"low"}`))
	tx.Commit()

	// Local edit: title changed.
	if _, err := db.Exec(`UPDATE tasks SET title = 'Local title' WHERE id = 'tk-1'`); err != nil {
		t.Fatal(err)
	}

	// Remote edit from the same baseline changed only status. The merge must
	// write just the status field and leave the local title intact.
	applyWithPrev(t, db, Event{
		ActionType: "update",
		EntityType: "tasks",
		EntityID:   "tk-1",
		Payload:    json.RawMessage(`{"id":"tk-1","title":"Baseline","status":"done","priority":"low"}`),
	}, `{"id":"tk-1","title":"Baseline","status":"open","priority":"low"}`)

	title, status, priority := readTask(t, db, "tk-1")
	if title != "Local title" {
		t.Errorf("local title lost: got %q", title)
	}
	if status != "done" {
		t.Errorf("remote status not applied: got %q", status)
	}
	if priority != "low" {
		t.Errorf("untouched field changed: got %q", priority)
	}
}

func TestMerge_SameFieldLastWriterWins(t *testing.T) {
	db := setupDB(t)

	tx := beginTx(t, db)
	upsertEntity(tx, "tasks", "tk-1", json.RawMessage(`{"title":"Baseline","status":"open"}`))
	tx.Commit()

	// Two remote updates to the same field, replayed in sequence order.
	applyWithPrev(t, db, Event{
		ActionType: "update", EntityType: "tasks", EntityID: "tk-1", ServerSeq: 1,
		Payload: json.RawMessage(`{"id":"tk-1","title":"Baseline","status":"in_progress"}`),
	}, `{"id":"tk-1","title":"Baseline","status":"open"}`)

	applyWithPrev(t, db, Event{
		ActionType: "update", EntityType: "tasks", EntityID: "tk-1", ServerSeq: 2,
		Payload: json.RawMessage(`{"id":"tk-1","title":"Baseline","status":"done"}`),
	}, `{"id":"tk-1","title":"Baseline","status":"open"}`)

	_, status, _ := readTask(t, db, "tk-1")
	if status != "done" {
		t.Errorf("last writer should win: got %q", status)
	}
}

func TestMerge_EmptyDiffIsNoOp(t *testing.T) {
	db := setupDB(t)

	tx := beginTx(t, db)
	upsertEntity(tx, "tasks", "tk-1", json.RawMessage(`{"title":"Local edit","status":"open"}`))
	tx.Commit()

	// new_data identical to previous_data: nothing to write, no overwrite.
	res := applyWithPrev(t, db, Event{
		ActionType: "update", EntityType: "tasks", EntityID: "tk-1",
		Payload: json.RawMessage(`{"id":"tk-1","title":"Stale","status":"open"}`),
	}, `{"id":"tk-1","title":"Stale","status":"open"}`)

	if res.Overwritten {
		t.Error("no-op update reported as overwrite")
	}
	title, _, _ := readTask(t, db, "tk-1")
	if title != "Local edit" {
		t.Errorf("no-op update changed the row: %q", title)
	}
}

func TestMerge_UpdateDoesNotResurrectMissingRow(t *testing.T) {
	db := setupDB(t)

	applyWithPrev(t, db, Event{
		ActionType: "update", EntityType: "tasks", EntityID: "tk-gone",
		Payload: json.RawMessage(`{"id":"tk-gone","title":"Ghost","status":"open"}`),
	}, `{"id":"tk-gone","title":"Old ghost","status":"open"}`)

	var count int
	db.QueryRow(`SELECT COUNT(*) FROM tasks WHERE id = 'tk-gone'`).Scan(&count)
	if count != 0 {
		t.Error("update resurrected a missing row")
	}
}

func TestMerge_NoBaselineFallsBackToFullUpdate(t *testing.T) {
	db := setupDB(t)

	tx := beginTx(t, db)
	upsertEntity(tx, "tasks", "tk-1", json.RawMessage(`{"title":"Local","status":"open","priority":"high"}`))
	tx.Commit()

	// Empty previous_data: full-state update of the existing row.
	res := applyWithPrev(t, db, Event{
		ActionType: "update", EntityType: "tasks", EntityID: "tk-1",
		Payload: json.RawMessage(`{"id":"tk-1","title":"Remote","status":"done"}`),
	}, `{}`)

	if !res.Overwritten {
		t.Error("full-state update should report overwrite")
	}
	title, status, _ := readTask(t, db, "tk-1")
	if title != "Remote" || status != "done" {
		t.Errorf("row: %q/%q", title, status)
	}
}

func TestMerge_OverwriteCarriesOldData(t *testing.T) {
	db := setupDB(t)

	tx := beginTx(t, db)
	upsertEntity(tx, "tasks", "tk-1", json.RawMessage(`{"title":"Before","status":"open"}`))
	tx.Commit()

	res := applyWithPrev(t, db, Event{
		ActionType: "update", EntityType: "tasks", EntityID: "tk-1",
		Payload: json.RawMessage(`{"id":"tk-1","title":"After","status":"open"}`),
	}, `{"id":"tk-1","title":"Before","status":"open"}`)

	if !res.Overwritten {
		t.Fatal("merged update should report overwrite")
	}
	var old map[string]any
	if err := json.Unmarshal(res.OldData, &old); err != nil {
		t.Fatalf("old data not JSON: %v", err)
	}
	if old["title"] != "Before" {
		t.Errorf("old data: %v", old)
	}
}

func TestMerge_NonUpdateActionsDelegate(t *testing.T) {
	db := setupDB(t)

	// create with previous_data present still behaves as a create.
	applyWithPrev(t, db, Event{
		ActionType: "create", EntityType: "tasks", EntityID: "tk-1",
		Payload: json.RawMessage(`{"id":"tk-1","title":"Created"}`),
	}, `{"id":"tk-1"}`)

	title, _, _ := readTask(t, db, "tk-1")
	if title != "Created" {
		t.Errorf("create not applied: %q", title)
	}
}

func TestDiffFields(t *testing.T) {
	prev := map[string]any{"id": "tk-1", "title": "a", "status": "open", "priority": "low"}
	next := map[string]any{"id": "tk-2", "title": "a", "status": "done", "assignee_id": "us-1"}

	diff := diffFields(prev, next)
	if _, ok := diff["id"]; ok {
		t.Error("id must never diff")
	}
	if _, ok := diff["title"]; ok {
		t.Error("unchanged field in diff")
	}
	if diff["status"] != "done" {
		t.Errorf("changed field missing: %v", diff)
	}
	if diff["assignee_id"] != "us-1" {
		t.Errorf("new field missing: %v", diff)
	}
	if len(diff) != 2 {
		t.Errorf("diff: %v", diff)
	}
}
