package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/harper/dispatch/internal/serverdb"
)

const testSecret = "test-secret"

// harness bundles a running httptest server with its backing stores.
type harness struct {
	url    string
	server *Server
	store  *serverdb.ServerDB
	teamID string
	token  string
}

// newHarness boots a sqlite-backed server with one team and a valid anon
// token. Overrides tweak the config before the server is built.
func newHarness(t *testing.T, overrides func(*Config)) *harness {
	t.Helper()

	dir := t.TempDir()
	store, err := serverdb.Open(filepath.Join(dir, "server.db"))
	if err != nil {
		t.Fatalf("open server db: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	team, err := store.CreateTeam("Harper Group", "", "owner@harper.test")
	if err != nil {
		t.Fatalf("create team: %v", err)
	}

	cfg := Config{
		ListenAddr:              "127.0.0.1:0",
		DataDir:                 dir,
		JWTSecret:               testSecret,
		ShutdownTimeout:         5 * time.Second,
		RateLimitPush:           1000,
		RateLimitPull:           1000,
		RateLimitOther:          1000,
		RateLimitEventRetention: 24 * time.Hour,
	}
	if overrides != nil {
		overrides(&cfg)
	}

	events := NewTeamStorePool(dir)
	srv, err := NewServer(cfg, store, events)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		events.Close()
	})

	token, err := MintTeamToken(testSecret, team.ID, serverdb.TokenRoleAnon, time.Hour)
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}

	return &harness{url: ts.URL, server: srv, store: store, teamID: team.ID, token: token}
}

// doJSON issues a request with the harness token and decodes the JSON body
// into out (when out is non-nil). Returns the response status code.
func (h *harness) doJSON(t *testing.T, method, path string, body, out any) int {
	t.Helper()
	return h.doJSONToken(t, method, path, h.token, body, out)
}

func (h *harness) doJSONToken(t *testing.T, method, path, token string, body, out any) int {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, h.url+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			t.Fatalf("unmarshal %s %s response %q: %v", method, path, data, err)
		}
	}
	return resp.StatusCode
}

// pushEvents pushes a batch for the given device and returns the response.
func (h *harness) pushEvents(t *testing.T, deviceID string, events []EventInput) PushResponse {
	t.Helper()

	var resp PushResponse
	status := h.doJSON(t, "POST", "/v1/teams/"+h.teamID+"/sync/push", PushRequest{
		DeviceID:  deviceID,
		SessionID: "ses-1",
		Events:    events,
	}, &resp)
	if status != http.StatusOK {
		t.Fatalf("push returned status %d", status)
	}
	return resp
}

// taskCreate builds a create event for a task with the action log wrapper.
func taskCreate(actionID int64, taskID, title string) EventInput {
	payload := fmt.Sprintf(`{"schema_version":1,"new_data":{"id":%q,"title":%q,"status":"open"},"previous_data":{}}`, taskID, title)
	return EventInput{
		ClientActionID:  actionID,
		ActionType:      "create",
		EntityType:      "tasks",
		EntityID:        taskID,
		Payload:         json.RawMessage(payload),
		ClientTimestamp: time.Now().UTC().Format(time.RFC3339),
	}
}
