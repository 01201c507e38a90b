package eventstore

import (
	"context"
	"testing"
	"time"

	"github.com/harper/dispatch/internal/sync"
)

func setupSQLite(t *testing.T) *SQLite {
	t.Helper()
	store, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("init store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func makeEvent(deviceID, sessionID string, actionID int64, entityID string) sync.Event {
	return sync.Event{
		DeviceID:        deviceID,
		SessionID:       sessionID,
		ClientActionID:  actionID,
		ActionType:      "create",
		EntityType:      "tasks",
		EntityID:        entityID,
		Payload:         []byte(`{"title":"test"}`),
		ClientTimestamp: time.Now().UTC().Truncate(time.Second),
	}
}

func TestAppend_Basic(t *testing.T) {
	store := setupSQLite(t)
	ctx := context.Background()

	events := []sync.Event{
		makeEvent("d1", "s1", 1, "tk-1"),
		makeEvent("d1", "s1", 2, "tk-2"),
		makeEvent("d1", "s1", 3, "tk-3"),
	}

	result, err := store.Append(ctx, "tm-1", events)
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	if result.Accepted != 3 {
		t.Fatalf("accepted: got %d, want 3", result.Accepted)
	}
	if len(result.Acks) != 3 {
		t.Fatalf("acks: got %d, want 3", len(result.Acks))
	}
	if len(result.Rejected) != 0 {
		t.Fatalf("rejected: got %d, want 0", len(result.Rejected))
	}

	// Verify sequential server_seqs and correct client_action_ids
	for i, ack := range result.Acks {
		wantAID := int64(i + 1)
		if ack.ClientActionID != wantAID {
			t.Errorf("ack[%d] client_action_id: got %d, want %d", i, ack.ClientActionID, wantAID)
		}
		if ack.ServerSeq <= 0 {
			t.Errorf("ack[%d] server_seq should be positive, got %d", i, ack.ServerSeq)
		}
		if i > 0 && ack.ServerSeq <= result.Acks[i-1].ServerSeq {
			t.Errorf("ack[%d] server_seq %d not greater than ack[%d] %d", i, ack.ServerSeq, i-1, result.Acks[i-1].ServerSeq)
		}
	}
}

func TestAppend_Dedup(t *testing.T) {
	store := setupSQLite(t)
	ctx := context.Background()

	events := []sync.Event{
		makeEvent("d1", "s1", 1, "tk-1"),
		makeEvent("d1", "s1", 2, "tk-2"),
		makeEvent("d1", "s1", 3, "tk-3"),
	}

	r1, err := store.Append(ctx, "tm-1", events)
	if err != nil {
		t.Fatalf("first append: %v", err)
	}
	if r1.Accepted != 3 {
		t.Fatalf("first: accepted=%d, want 3", r1.Accepted)
	}

	// Same events again
	r2, err := store.Append(ctx, "tm-1", events)
	if err != nil {
		t.Fatalf("second append: %v", err)
	}

	if r2.Accepted != 0 {
		t.Fatalf("second: accepted=%d, want 0", r2.Accepted)
	}
	if len(r2.Rejected) != 3 {
		t.Fatalf("second: rejected=%d, want 3", len(r2.Rejected))
	}
	for i, rej := range r2.Rejected {
		if rej.Reason != "duplicate" {
			t.Errorf("rejection reason: got %q, want 'duplicate'", rej.Reason)
		}
		// Duplicate rejections should include the original server_seq
		if rej.ServerSeq != r1.Acks[i].ServerSeq {
			t.Errorf("rej[%d] ServerSeq: got %d, want %d (original)", i, rej.ServerSeq, r1.Acks[i].ServerSeq)
		}
	}

	st, err := store.Status(ctx, "tm-1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.EventCount != 3 {
		t.Fatalf("total events: got %d, want 3", st.EventCount)
	}
}

func TestAppend_TeamIsolation(t *testing.T) {
	store := setupSQLite(t)
	ctx := context.Background()

	// The same (device, session, action) triple is distinct per team.
	ev := makeEvent("d1", "s1", 1, "tk-1")
	if _, err := store.Append(ctx, "tm-1", []sync.Event{ev}); err != nil {
		t.Fatalf("append tm-1: %v", err)
	}
	r, err := store.Append(ctx, "tm-2", []sync.Event{ev})
	if err != nil {
		t.Fatalf("append tm-2: %v", err)
	}
	if r.Accepted != 1 {
		t.Fatalf("cross-team accepted: got %d, want 1", r.Accepted)
	}

	result, err := store.EventsSince(ctx, "tm-2", 0, 100, "")
	if err != nil {
		t.Fatalf("events since: %v", err)
	}
	if len(result.Events) != 1 {
		t.Fatalf("tm-2 events: got %d, want 1", len(result.Events))
	}
}

func TestAppend_ValidationReject(t *testing.T) {
	store := setupSQLite(t)

	events := []sync.Event{
		{
			DeviceID:        "",
			SessionID:       "s1",
			ClientActionID:  1,
			ActionType:      "create",
			EntityType:      "tasks",
			EntityID:        "tk-1",
			Payload:         []byte(`{"title":"test"}`),
			ClientTimestamp: time.Now().UTC(),
		},
	}

	result, err := store.Append(context.Background(), "tm-1", events)
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	if result.Accepted != 0 {
		t.Fatalf("accepted: got %d, want 0", result.Accepted)
	}
	if len(result.Rejected) != 1 {
		t.Fatalf("rejected: got %d, want 1", len(result.Rejected))
	}
	if r := result.Rejected[0].Reason; r != "empty device_id" {
		t.Fatalf("reason: got %q, want 'empty device_id'", r)
	}
}

func TestParseTimestamp_GoTimeStringDoubleTZ(t *testing.T) {
	ts := "2025-01-02 03:04:05 -0700 -0700"
	parsed, err := parseTimestamp(ts)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := time.Date(2025, 1, 2, 3, 4, 5, 0, time.FixedZone("", -7*3600))
	if !parsed.Equal(want) {
		t.Fatalf("parsed=%v, want %v", parsed, want)
	}
}

func TestEventsSince_All(t *testing.T) {
	store := setupSQLite(t)
	ctx := context.Background()

	var events []sync.Event
	for i := 1; i <= 5; i++ {
		events = append(events, makeEvent("d1", "s1", int64(i), "tk-"+string(rune('0'+i))))
	}
	if _, err := store.Append(ctx, "tm-1", events); err != nil {
		t.Fatalf("append: %v", err)
	}

	result, err := store.EventsSince(ctx, "tm-1", 0, 100, "")
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	if len(result.Events) != 5 {
		t.Fatalf("events: got %d, want 5", len(result.Events))
	}
	if result.HasMore {
		t.Fatal("HasMore should be false")
	}
	if result.LastServerSeq != result.Events[4].ServerSeq {
		t.Fatalf("LastServerSeq: got %d, want %d", result.LastServerSeq, result.Events[4].ServerSeq)
	}
}

func TestEventsSince_Partial(t *testing.T) {
	store := setupSQLite(t)
	ctx := context.Background()

	var events []sync.Event
	for i := 1; i <= 5; i++ {
		events = append(events, makeEvent("d1", "s1", int64(i), "tk-"+string(rune('0'+i))))
	}
	if _, err := store.Append(ctx, "tm-1", events); err != nil {
		t.Fatalf("append: %v", err)
	}

	result, err := store.EventsSince(ctx, "tm-1", 3, 100, "")
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	if len(result.Events) != 2 {
		t.Fatalf("events: got %d, want 2", len(result.Events))
	}
	if result.Events[0].ServerSeq != 4 {
		t.Fatalf("first event seq: got %d, want 4", result.Events[0].ServerSeq)
	}
	if result.Events[1].ServerSeq != 5 {
		t.Fatalf("second event seq: got %d, want 5", result.Events[1].ServerSeq)
	}
}

func TestEventsSince_Limit(t *testing.T) {
	store := setupSQLite(t)
	ctx := context.Background()

	var events []sync.Event
	for i := 1; i <= 10; i++ {
		events = append(events, makeEvent("d1", "s1", int64(i), "tk-"+string(rune('0'+i))))
	}
	if _, err := store.Append(ctx, "tm-1", events); err != nil {
		t.Fatalf("append: %v", err)
	}

	result, err := store.EventsSince(ctx, "tm-1", 0, 3, "")
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	if len(result.Events) != 3 {
		t.Fatalf("events: got %d, want 3", len(result.Events))
	}
	if !result.HasMore {
		t.Fatal("HasMore should be true")
	}
}

func TestEventsSince_ExcludeDevice(t *testing.T) {
	store := setupSQLite(t)
	ctx := context.Background()

	events := []sync.Event{
		makeEvent("d1", "s1", 1, "tk-1"),
		makeEvent("d1", "s1", 2, "tk-2"),
		makeEvent("d2", "s1", 1, "tk-3"),
		makeEvent("d2", "s1", 2, "tk-4"),
	}
	if _, err := store.Append(ctx, "tm-1", events); err != nil {
		t.Fatalf("append: %v", err)
	}

	result, err := store.EventsSince(ctx, "tm-1", 0, 100, "d1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	if len(result.Events) != 2 {
		t.Fatalf("events: got %d, want 2", len(result.Events))
	}
	for _, ev := range result.Events {
		if ev.DeviceID != "d2" {
			t.Fatalf("expected device d2, got %q", ev.DeviceID)
		}
	}
}

func TestEventsSince_Empty(t *testing.T) {
	store := setupSQLite(t)

	result, err := store.EventsSince(context.Background(), "tm-1", 42, 100, "")
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	if len(result.Events) != 0 {
		t.Fatalf("events: got %d, want 0", len(result.Events))
	}
	if result.LastServerSeq != 42 {
		t.Fatalf("LastServerSeq: got %d, want 42", result.LastServerSeq)
	}
	if result.HasMore {
		t.Fatal("HasMore should be false")
	}
}
