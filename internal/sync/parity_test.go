package sync

import (
	"database/sql"
	"fmt"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// TestTwoDeviceParity seeds one device with pre-sync data, drains its outbox
// (which exercises the orphan backfill), replays the events onto a second
// device, and checks both end up with identical task status counts. This
// catches backfill and event application bugs that lose rows.
func TestTwoDeviceParity(t *testing.T) {
	bob := setupClientDB(t)
	alice := setupClientDB(t)

	// Bob has local data created before sync was enabled, plus a couple of
	// logged mutations on top.
	statuses := []string{"open", "open", "open", "in_progress", "done"}
	for i, status := range statuses {
		id := fmt.Sprintf("tk-%03d", i)
		if _, err := bob.Exec(
			`INSERT INTO tasks (id, title, status) VALUES (?, ?, ?)`, id, "Task "+id, status,
		); err != nil {
			t.Fatalf("seed bob: %v", err)
		}
	}
	insertActionLog(t, bob, "al-00000001", "ses-bob", "update", "tasks", "tk-000",
		`{"id":"tk-000","title":"Task tk-000","status":"done"}`,
		`{"id":"tk-000","title":"Task tk-000","status":"open"}`, 0, "")
	if _, err := bob.Exec(`UPDATE tasks SET status = 'done' WHERE id = 'tk-000'`); err != nil {
		t.Fatal(err)
	}

	tx, err := bob.Begin()
	if err != nil {
		t.Fatalf("begin bob: %v", err)
	}
	events, err := GetPendingEvents(tx, "dev-bob", "ses-bob", time.Now())
	if err != nil {
		t.Fatalf("get pending: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit bob: %v", err)
	}

	// 5 backfilled creates + 1 logged update.
	if len(events) != 6 {
		t.Fatalf("got %d events, want 6", len(events))
	}

	// Stamp server sequence numbers the way the server would.
	for i := range events {
		events[i].ServerSeq = int64(i + 1)
	}

	aliceTx, err := alice.Begin()
	if err != nil {
		t.Fatalf("begin alice: %v", err)
	}
	result, err := ApplyRemoteEvents(aliceTx, events, "dev-alice", validatorForTests, nil)
	if err != nil {
		t.Fatalf("apply to alice: %v", err)
	}
	if err := aliceTx.Commit(); err != nil {
		t.Fatalf("commit alice: %v", err)
	}
	if len(result.Failed) != 0 {
		t.Fatalf("failed events: %+v", result.Failed)
	}

	bobCounts := taskStatusCounts(t, bob)
	aliceCounts := taskStatusCounts(t, alice)
	for status, want := range bobCounts {
		if got := aliceCounts[status]; got != want {
			t.Errorf("status %q: bob=%d alice=%d", status, want, got)
		}
	}
	if len(aliceCounts) != len(bobCounts) {
		t.Errorf("status sets differ: bob=%v alice=%v", bobCounts, aliceCounts)
	}
}

func taskStatusCounts(t *testing.T, db *sql.DB) map[string]int {
	t.Helper()
	rows, err := db.Query(`SELECT status, COUNT(*) FROM tasks GROUP BY status`)
	if err != nil {
		t.Fatalf("query status counts: %v", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			t.Fatalf("scan status count: %v", err)
		}
		counts[status] = count
	}
	return counts
}
