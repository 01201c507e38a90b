package syncharness

import (
	"testing"
)

// seedTask creates a task on client-A and syncs every client so each starts
// from the same baseline.
func seedTask(t *testing.T, h *Harness, id string) {
	t.Helper()
	err := h.Mutate("client-A", "create", "tasks", id, map[string]any{
		"title":       "Stage the kitchen",
		"status":      "open",
		"priority":    "P2",
		"assignee_id": "",
		"description": "",
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	h.SyncAll()
}

// TestDisjointFieldMergeConverges checks that concurrent edits to different
// fields of the same row both survive on every device.
func TestDisjointFieldMergeConverges(t *testing.T) {
	h := NewHarness(t, 2)
	seedTask(t, h, "tk-stage1")

	// Offline edits: A bumps priority, B assigns the task.
	if err := h.Mutate("client-A", "update", "tasks", "tk-stage1", map[string]any{
		"priority": "P0",
	}); err != nil {
		t.Fatalf("A update: %v", err)
	}
	if err := h.Mutate("client-B", "update", "tasks", "tk-stage1", map[string]any{
		"assignee_id": "us-harper",
	}); err != nil {
		t.Fatalf("B update: %v", err)
	}

	h.SyncAll()
	h.AssertConverged()

	for _, cid := range []string{"client-A", "client-B"} {
		ent := h.QueryEntity(cid, "tasks", "tk-stage1")
		if ent == nil {
			t.Fatalf("%s: task missing", cid)
		}
		if ent["priority"] != "P0" {
			t.Errorf("%s: priority = %v, want P0 (A's edit lost)", cid, ent["priority"])
		}
		if ent["assignee_id"] != "us-harper" {
			t.Errorf("%s: assignee_id = %v, want us-harper (B's edit lost)", cid, ent["assignee_id"])
		}
		if ent["title"] != "Stage the kitchen" {
			t.Errorf("%s: title = %v, untouched field changed", cid, ent["title"])
		}
	}
}

// TestSameFieldLastWriterWins replays the full log in server-seq order on both
// devices; the edit that reached the server last must win everywhere.
func TestSameFieldLastWriterWins(t *testing.T) {
	h := NewHarness(t, 2)
	seedTask(t, h, "tk-price1")

	if err := h.Mutate("client-A", "update", "tasks", "tk-price1", map[string]any{
		"title": "Reprice before open house",
	}); err != nil {
		t.Fatalf("A update: %v", err)
	}
	if err := h.Mutate("client-B", "update", "tasks", "tk-price1", map[string]any{
		"title": "Hold price until Monday",
	}); err != nil {
		t.Fatalf("B update: %v", err)
	}

	// A reaches the server first, B second.
	if _, err := h.Push("client-A"); err != nil {
		t.Fatalf("push A: %v", err)
	}
	if _, err := h.Push("client-B"); err != nil {
		t.Fatalf("push B: %v", err)
	}
	if _, err := h.PullAll("client-A"); err != nil {
		t.Fatalf("pull A: %v", err)
	}
	if _, err := h.PullAll("client-B"); err != nil {
		t.Fatalf("pull B: %v", err)
	}

	h.AssertConverged()
	for _, cid := range []string{"client-A", "client-B"} {
		ent := h.QueryEntity(cid, "tasks", "tk-price1")
		if ent["title"] != "Hold price until Monday" {
			t.Errorf("%s: title = %v, want B's later edit", cid, ent["title"])
		}
	}
}

// TestUpdateDoesNotResurrectDeletedRow: an offline edit racing a soft delete
// must not bring the row back to life.
func TestUpdateDoesNotResurrectDeletedRow(t *testing.T) {
	h := NewHarness(t, 2)
	seedTask(t, h, "tk-dead01")

	if err := h.Mutate("client-A", "delete", "tasks", "tk-dead01", nil); err != nil {
		t.Fatalf("A delete: %v", err)
	}
	if err := h.Mutate("client-B", "update", "tasks", "tk-dead01", map[string]any{
		"priority": "P0",
	}); err != nil {
		t.Fatalf("B update: %v", err)
	}

	h.SyncAll()
	h.AssertConverged()

	for _, cid := range []string{"client-A", "client-B"} {
		if h.QueryEntity(cid, "tasks", "tk-dead01") != nil {
			t.Errorf("%s: deleted task resurrected", cid)
		}
		raw := h.QueryEntityRaw(cid, "tasks", "tk-dead01")
		if raw == nil || raw["deleted_at"] == nil {
			t.Errorf("%s: soft delete did not stick", cid)
		}
	}
}

// TestMergePreservesLocalPendingEdit: a field edited locally but not yet
// pushed survives pulling someone else's edit to a different field.
func TestMergePreservesLocalPendingEdit(t *testing.T) {
	h := NewHarness(t, 2)
	seedTask(t, h, "tk-hold01")

	if err := h.Mutate("client-B", "update", "tasks", "tk-hold01", map[string]any{
		"description": "Seller prefers weekday evenings",
	}); err != nil {
		t.Fatalf("B update: %v", err)
	}
	if _, err := h.Push("client-B"); err != nil {
		t.Fatalf("push B: %v", err)
	}

	// A edits status offline, then pulls B's change before pushing.
	if err := h.Mutate("client-A", "update", "tasks", "tk-hold01", map[string]any{
		"status": "in_progress",
	}); err != nil {
		t.Fatalf("A update: %v", err)
	}
	if _, err := h.Pull("client-A"); err != nil {
		t.Fatalf("pull A: %v", err)
	}

	ent := h.QueryEntity("client-A", "tasks", "tk-hold01")
	if ent["status"] != "in_progress" {
		t.Errorf("A: pending local status edit lost, status = %v", ent["status"])
	}
	if ent["description"] != "Seller prefers weekday evenings" {
		t.Errorf("A: remote description edit missing, description = %v", ent["description"])
	}

	h.SyncAll()
	h.AssertConverged()
}
