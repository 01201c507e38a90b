// Package e2e drives the full sync stack over real HTTP: CLI-side managers
// talking to a dispatchd server backed by a SQLite event log.
package e2e

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/harper/dispatch/internal/api"
	"github.com/harper/dispatch/internal/db"
	"github.com/harper/dispatch/internal/eventstore"
	"github.com/harper/dispatch/internal/models"
	"github.com/harper/dispatch/internal/serverdb"
	dispatchsync "github.com/harper/dispatch/internal/sync"
	"github.com/harper/dispatch/internal/syncclient"
)

const (
	testTeam   = "tm-e2e0001"
	testSecret = "e2e-test-secret"
)

var validator dispatchsync.EntityValidator = func(entityType string) bool {
	switch entityType {
	case "users", "realtors", "contacts", "properties", "listings",
		"tasks", "subtasks", "activities", "notes", "status_changes", "showings":
		return true
	}
	return false
}

// testServer boots an in-process dispatchd with a SQLite event log and
// returns its base URL plus a long-lived anon token for testTeam.
func testServer(t *testing.T) (string, string) {
	t.Helper()

	dataDir := t.TempDir()
	store, err := serverdb.Open(dataDir + "/server.db")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	events, err := eventstore.OpenSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, events.Init(context.Background()))
	t.Cleanup(func() { events.Close() })

	cfg := api.Config{
		DataDir:        dataDir,
		JWTSecret:      testSecret,
		RateLimitPush:  1000,
		RateLimitPull:  1000,
		RateLimitOther: 1000,
	}
	srv, err := api.NewServer(cfg, store, events)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	token, err := api.MintTeamToken(testSecret, testTeam, serverdb.TokenRoleAnon, 0)
	require.NoError(t, err)

	return ts.URL, token
}

type client struct {
	db      *db.DB
	manager *dispatchsync.Manager
	session string
}

// newClient opens a fresh workspace linked to testTeam and wires a sync
// manager at it over the given server.
func newClient(t *testing.T, baseURL, token, deviceID string) *client {
	t.Helper()

	database, err := db.Initialize(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, database.SetSyncState(testTeam))

	sessionID := "ses_" + deviceID
	transport := syncclient.New(baseURL, token, deviceID)
	manager := dispatchsync.NewManager(database, transport, dispatchsync.Config{
		TeamID:    testTeam,
		DeviceID:  deviceID,
		SessionID: sessionID,
	}, validator, nil)

	return &client{db: database, manager: manager, session: sessionID}
}

func TestPushPullPropagatesContact(t *testing.T) {
	url, token := testServer(t)
	alice := newClient(t, url, token, "device-alice")
	bob := newClient(t, url, token, "device-bob")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	contact := &models.Contact{
		Name:  "Dana Whitfield",
		Kind:  models.ContactBuyer,
		Phone: "555-0142",
	}
	require.NoError(t, alice.db.CreateContactLogged(contact, alice.session))

	pushStats, err := alice.manager.Push(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, pushStats.Pushed)

	pullStats, err := bob.manager.Pull(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, pullStats.Applied)

	got, err := bob.db.GetContact(contact.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "Dana Whitfield", got.Name)
	require.Equal(t, models.ContactBuyer, got.Kind)
}

func TestBidirectionalSyncConverges(t *testing.T) {
	url, token := testServer(t)
	alice := newClient(t, url, token, "device-alice")
	bob := newClient(t, url, token, "device-bob")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	prop := &models.Property{Address: "12 Harbor Ln", City: "Medford"}
	require.NoError(t, alice.db.CreatePropertyLogged(prop, alice.session))
	listing := &models.Listing{PropertyID: prop.ID, ListPrice: 749000}
	require.NoError(t, alice.db.CreateListingLogged(listing, alice.session))

	contact := &models.Contact{Name: "Theo Marsh", Kind: models.ContactSeller}
	require.NoError(t, bob.db.CreateContactLogged(contact, bob.session))

	// Two rounds so each side picks up what the other pushed first.
	for range 2 {
		_, _, err := alice.manager.Sync(ctx)
		require.NoError(t, err)
		_, _, err = bob.manager.Sync(ctx)
		require.NoError(t, err)
	}

	gotListing, err := bob.db.GetListing(listing.ID)
	require.NoError(t, err)
	require.NotNil(t, gotListing)
	require.Equal(t, int64(749000), gotListing.ListPrice)

	gotContact, err := alice.db.GetContact(contact.ID)
	require.NoError(t, err)
	require.NotNil(t, gotContact)
	require.Equal(t, "Theo Marsh", gotContact.Name)
}

func TestRepushAfterLostAckIsDeduplicated(t *testing.T) {
	url, token := testServer(t)
	alice := newClient(t, url, token, "device-alice")
	bob := newClient(t, url, token, "device-bob")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	task := &models.Task{Title: "Schedule photographer", Priority: models.PriorityP1}
	require.NoError(t, alice.db.CreateTaskLogged(task, alice.session))

	_, err := alice.manager.Push(ctx)
	require.NoError(t, err)

	// Simulate a crash after the server committed but before the ack landed:
	// clear the synced marker and push the identical event again.
	_, err = alice.db.Conn().Exec(`UPDATE action_log SET synced_at = NULL, server_seq = NULL`)
	require.NoError(t, err)

	stats, err := alice.manager.Push(ctx)
	require.NoError(t, err)
	require.Zero(t, stats.Failed)

	_, err = bob.manager.Pull(ctx)
	require.NoError(t, err)

	var count int
	require.NoError(t, bob.db.Conn().QueryRow(`SELECT COUNT(*) FROM tasks`).Scan(&count))
	require.Equal(t, 1, count, "replayed push must not duplicate the task")
}

func TestStatusReflectsCursorAfterSync(t *testing.T) {
	url, token := testServer(t)
	alice := newClient(t, url, token, "device-alice")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	note := &models.Task{Title: "Confirm inspection window"}
	require.NoError(t, alice.db.CreateTaskLogged(note, alice.session))

	_, _, err := alice.manager.Sync(ctx)
	require.NoError(t, err)

	status, err := alice.manager.Status(ctx)
	require.NoError(t, err)
	require.Equal(t, testTeam, status.TeamID)
	require.Zero(t, status.Pending)
	require.Equal(t, int64(1), status.Synced)
	require.NotNil(t, status.LastSyncAt)
}

func TestRejectsForeignTeamToken(t *testing.T) {
	url, _ := testServer(t)

	otherToken, err := api.MintTeamToken(testSecret, "tm-other", serverdb.TokenRoleAnon, 0)
	require.NoError(t, err)
	mallory := newClient(t, url, otherToken, "device-mallory")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	task := &models.Task{Title: "Should not land"}
	require.NoError(t, mallory.db.CreateTaskLogged(task, mallory.session))

	_, err = mallory.manager.Push(ctx)
	require.Error(t, err)
}

func TestRejectsGarbageToken(t *testing.T) {
	url, _ := testServer(t)
	mallory := newClient(t, url, "not-a-jwt", "device-mallory")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	task := &models.Task{Title: "Should not land"}
	require.NoError(t, mallory.db.CreateTaskLogged(task, mallory.session))

	_, err := mallory.manager.Push(ctx)
	require.Error(t, err)
}
