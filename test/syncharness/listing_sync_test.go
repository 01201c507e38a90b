package syncharness

import (
	"testing"
)

// TestListingTransitionSync mimics a status transition: the listing row is
// updated and a status_changes row plus an activity land in the same push.
func TestListingTransitionSync(t *testing.T) {
	h := NewHarness(t, 2)

	if err := h.Mutate("client-A", "create", "properties", "pr-elm220", map[string]any{
		"address": "220 Elm Ave", "city": "Austin", "property_type": "condo",
	}); err != nil {
		t.Fatalf("create property: %v", err)
	}
	if err := h.Mutate("client-A", "create", "listings", "ls-elm220", map[string]any{
		"property_id": "pr-elm220",
		"status":      "draft",
		"list_price":  42500000,
	}); err != nil {
		t.Fatalf("create listing: %v", err)
	}
	h.SyncAll()

	// B runs the transition.
	if err := h.Mutate("client-B", "update", "listings", "ls-elm220", map[string]any{
		"status": "active",
	}); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if err := h.Mutate("client-B", "create", "status_changes", "sc-elm001", map[string]any{
		"listing_id":  "ls-elm220",
		"from_status": "draft",
		"to_status":   "active",
		"changed_by":  "us-harper",
		"reason":      "MLS approved",
	}); err != nil {
		t.Fatalf("status change: %v", err)
	}
	if err := h.Mutate("client-B", "create", "activities", "ac-elm001", map[string]any{
		"kind":       "status_change",
		"body":       "Listing went active",
		"actor_id":   "us-harper",
		"listing_id": "ls-elm220",
	}); err != nil {
		t.Fatalf("activity: %v", err)
	}

	h.SyncAll()
	h.AssertConverged()

	for _, cid := range []string{"client-A", "client-B"} {
		listing := h.QueryEntity(cid, "listings", "ls-elm220")
		if listing == nil {
			t.Fatalf("%s: listing missing", cid)
		}
		if listing["status"] != "active" {
			t.Errorf("%s: status = %v, want active", cid, listing["status"])
		}

		sc := h.QueryEntity(cid, "status_changes", "sc-elm001")
		if sc == nil {
			t.Fatalf("%s: status change missing", cid)
		}
		if sc["from_status"] != "draft" || sc["to_status"] != "active" {
			t.Errorf("%s: transition = %v -> %v", cid, sc["from_status"], sc["to_status"])
		}

		if h.QueryEntity(cid, "activities", "ac-elm001") == nil {
			t.Errorf("%s: activity missing", cid)
		}
	}
}

// TestAppendOnlyFeedsMergeFromBothDevices: activities logged on two devices
// while offline all appear everywhere after sync.
func TestAppendOnlyFeedsMergeFromBothDevices(t *testing.T) {
	h := NewHarness(t, 2)

	if err := h.Mutate("client-A", "create", "activities", "ac-call01", map[string]any{
		"kind": "call", "body": "Called the inspector", "actor_id": "us-harper",
	}); err != nil {
		t.Fatalf("A activity: %v", err)
	}
	if err := h.Mutate("client-B", "create", "activities", "ac-email1", map[string]any{
		"kind": "email", "body": "Sent disclosures", "actor_id": "us-jordan",
	}); err != nil {
		t.Fatalf("B activity: %v", err)
	}

	h.SyncAll()
	h.AssertConverged()

	for _, cid := range []string{"client-A", "client-B"} {
		if n := h.CountEntities(cid, "activities"); n != 2 {
			t.Errorf("%s: %d activities, want 2", cid, n)
		}
	}
}

// TestNoteSyncOnSharedListing: notes created against the same parent on both
// devices converge without clobbering each other.
func TestNoteSyncOnSharedListing(t *testing.T) {
	h := NewHarness(t, 2)

	if err := h.Mutate("client-A", "create", "notes", "nt-lock01", map[string]any{
		"parent_type": "listings", "parent_id": "ls-elm220",
		"body": "Lockbox code is 4417", "author_id": "us-harper", "pinned": 1,
	}); err != nil {
		t.Fatalf("A note: %v", err)
	}
	if err := h.Mutate("client-B", "create", "notes", "nt-pets01", map[string]any{
		"parent_type": "listings", "parent_id": "ls-elm220",
		"body": "Cat in the primary bedroom, keep the door shut", "author_id": "us-jordan",
	}); err != nil {
		t.Fatalf("B note: %v", err)
	}

	h.SyncAll()
	h.AssertConverged()

	for _, cid := range []string{"client-A", "client-B"} {
		if h.QueryEntity(cid, "notes", "nt-lock01") == nil {
			t.Errorf("%s: pinned note missing", cid)
		}
		if h.QueryEntity(cid, "notes", "nt-pets01") == nil {
			t.Errorf("%s: second note missing", cid)
		}
	}
}
