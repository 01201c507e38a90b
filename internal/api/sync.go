package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/harper/dispatch/internal/db"
	dispatchsync "github.com/harper/dispatch/internal/sync"
)

// Allowed entity types for validation.
var allowedEntityTypes = map[string]bool{
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

func isValidEntityType(et string) bool {
	return allowedEntityTypes[et]
}

// PushRequest is the JSON body for POST /v1/teams/{team}/sync/push.
type PushRequest struct {
	DeviceID  string       `json:"device_id"`
	SessionID string       `json:"session_id"`
	Events    []EventInput `json:"events"`
}

// EventInput represents a single event in a push request.
type EventInput struct {
	ClientActionID  int64           `json:"client_action_id"`
	ActionType      string          `json:"action_type"`
	EntityType      string          `json:"entity_type"`
	EntityID        string          `json:"entity_id"`
	Payload         json.RawMessage `json:"payload"`
	ClientTimestamp string          `json:"client_timestamp"`
}

const (
	maxPushBatch = 1000
	maxPullLimit = 1000
	defPullLimit = 500
)

// PushResponse is the JSON response for a push request.
type PushResponse struct {
	Accepted int              `json:"accepted"`
	Acks     []AckResponse    `json:"acks"`
	Rejected []RejectResponse `json:"rejected,omitempty"`
}

// AckResponse is a single acknowledged event.
type AckResponse struct {
	ClientActionID int64 `json:"client_action_id"`
	ServerSeq      int64 `json:"server_seq"`
}

// RejectResponse is a single rejected event.
type RejectResponse struct {
	ClientActionID int64  `json:"client_action_id"`
	Reason         string `json:"reason"`
	ServerSeq      int64  `json:"server_seq,omitempty"`
}

// PullResponse is the JSON response for a pull request.
type PullResponse struct {
	Events        []PullEvent `json:"events"`
	LastServerSeq int64       `json:"last_server_seq"`
	HasMore       bool        `json:"has_more"`
}

// PullEvent is a single event in a pull response.
type PullEvent struct {
	ServerSeq       int64           `json:"server_seq"`
	DeviceID        string          `json:"device_id"`
	SessionID       string          `json:"session_id"`
	ClientActionID  int64           `json:"client_action_id"`
	ActionType      string          `json:"action_type"`
	EntityType      string          `json:"entity_type"`
	EntityID        string          `json:"entity_id"`
	Payload         json.RawMessage `json:"payload"`
	ClientTimestamp string          `json:"client_timestamp"`
}

// SyncStatusResponse is the JSON response for GET /v1/teams/{team}/sync/status.
type SyncStatusResponse struct {
	EventCount    int64  `json:"event_count"`
	LastServerSeq int64  `json:"last_server_seq"`
	LastEventTime string `json:"last_event_time,omitempty"`
}

// handleSyncPush handles POST /v1/teams/{team}/sync/push.
func (s *Server) handleSyncPush(w http.ResponseWriter, r *http.Request) {
	teamID := r.PathValue("team")

	var req PushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid json body")
		return
	}

	if req.DeviceID == "" {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "device_id is required")
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "session_id is required")
		return
	}
	if len(req.Events) == 0 {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "events array is empty")
		return
	}
	if len(req.Events) > maxPushBatch {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, fmt.Sprintf("batch size %d exceeds max %d", len(req.Events), maxPushBatch))
		return
	}

	// Validate entity types
	for _, ev := range req.Events {
		if !isValidEntityType(ev.EntityType) {
			writeError(w, http.StatusBadRequest, ErrCodeBadRequest, fmt.Sprintf("invalid entity_type: %s", ev.EntityType))
			return
		}
	}

	// Convert to sync.Event
	events := make([]dispatchsync.Event, len(req.Events))
	for i, ev := range req.Events {
		ts, err := time.Parse(time.RFC3339, ev.ClientTimestamp)
		if err != nil {
			ts, err = time.Parse(time.RFC3339Nano, ev.ClientTimestamp)
			if err != nil {
				writeError(w, http.StatusBadRequest, ErrCodeBadRequest, fmt.Sprintf("invalid timestamp for action %d", ev.ClientActionID))
				return
			}
		}
		events[i] = dispatchsync.Event{
			ClientActionID:  ev.ClientActionID,
			DeviceID:        req.DeviceID,
			SessionID:       req.SessionID,
			ActionType:      ev.ActionType,
			EntityType:      ev.EntityType,
			EntityID:        ev.EntityID,
			Payload:         ev.Payload,
			ClientTimestamp: ts,
		}
	}

	result, err := s.events.Append(r.Context(), teamID, events)
	if err != nil {
		logFor(r.Context()).Error("append events", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to store events")
		return
	}

	s.metrics.RecordPushEvents(int64(result.Accepted))

	resp := PushResponse{Accepted: result.Accepted}
	var maxSeq int64
	for _, a := range result.Acks {
		resp.Acks = append(resp.Acks, AckResponse{
			ClientActionID: a.ClientActionID,
			ServerSeq:      a.ServerSeq,
		})
		if a.ServerSeq > maxSeq {
			maxSeq = a.ServerSeq
		}
	}
	for _, rej := range result.Rejected {
		resp.Rejected = append(resp.Rejected, RejectResponse{
			ClientActionID: rej.ClientActionID,
			Reason:         rej.Reason,
			ServerSeq:      rej.ServerSeq,
		})
	}

	if result.Accepted > 0 {
		s.hub.Notify(teamID, maxSeq)
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleSyncPull handles GET /v1/teams/{team}/sync/pull.
func (s *Server) handleSyncPull(w http.ResponseWriter, r *http.Request) {
	s.metrics.RecordPullRequest()
	teamID := r.PathValue("team")

	afterSeq := int64(0)
	if v := r.URL.Query().Get("after_server_seq"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid after_server_seq")
			return
		}
		afterSeq = n
	}

	limit := defPullLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid limit")
			return
		}
		if n > maxPullLimit {
			n = maxPullLimit
		}
		limit = n
	}

	excludeClient := r.URL.Query().Get("exclude_client")
	result, err := s.events.EventsSince(r.Context(), teamID, afterSeq, limit, excludeClient)
	if err != nil {
		logFor(r.Context()).Error("get events", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to query events")
		return
	}

	// The excluding client is a device pulling for itself; remember how far
	// it has read so operators can see per-device lag.
	if excludeClient != "" && result.LastServerSeq > afterSeq {
		if err := s.store.UpsertSyncCursor(teamID, excludeClient, result.LastServerSeq); err != nil {
			logFor(r.Context()).Warn("upsert sync cursor", "err", err)
		}
	}

	resp := PullResponse{
		LastServerSeq: result.LastServerSeq,
		HasMore:       result.HasMore,
		Events:        make([]PullEvent, len(result.Events)),
	}
	for i, ev := range result.Events {
		resp.Events[i] = PullEvent{
			ServerSeq:       ev.ServerSeq,
			DeviceID:        ev.DeviceID,
			SessionID:       ev.SessionID,
			ClientActionID:  ev.ClientActionID,
			ActionType:      ev.ActionType,
			EntityType:      ev.EntityType,
			EntityID:        ev.EntityID,
			Payload:         ev.Payload,
			ClientTimestamp: ev.ClientTimestamp.Format(time.RFC3339Nano),
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleSyncStatus handles GET /v1/teams/{team}/sync/status.
func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	teamID := r.PathValue("team")

	st, err := s.events.Status(r.Context(), teamID)
	if err != nil {
		logFor(r.Context()).Error("event log status", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "database error")
		return
	}

	writeJSON(w, http.StatusOK, SyncStatusResponse{
		EventCount:    st.EventCount,
		LastServerSeq: st.LastServerSeq,
		LastEventTime: st.LastEventTime,
	})
}

// handleSyncStream handles GET /v1/teams/{team}/sync/stream (SSE).
// Emits an "event: sync" frame per committed push and a comment heartbeat
// every 25 seconds.
func (s *Server) handleSyncStream(w http.ResponseWriter, r *http.Request) {
	teamID := r.PathValue("team")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	notify, cancel := s.hub.Subscribe(teamID)
	defer cancel()
	s.metrics.SubscriberConnected()
	defer s.metrics.SubscriberDisconnected()

	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	heartbeat := time.NewTicker(25 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": hb\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case seq := <-notify:
			if _, err := fmt.Fprintf(w, "event: sync\ndata: {\"server_seq\":%d}\n\n", seq); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// handleSyncSnapshot handles GET /v1/teams/{team}/sync/snapshot.
// Builds a client-schema database by replaying the team's event log, then
// streams it with the last applied seq in X-Snapshot-Seq.
func (s *Server) handleSyncSnapshot(w http.ResponseWriter, r *http.Request) {
	teamID := r.PathValue("team")

	st, err := s.events.Status(r.Context(), teamID)
	if err != nil {
		logFor(r.Context()).Error("event log status", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "database error")
		return
	}
	if st.LastServerSeq == 0 {
		writeError(w, http.StatusNotFound, ErrCodeNoEvents, "no events to snapshot")
		return
	}

	tmpDir, err := os.MkdirTemp("", "dispatch-snapshot-*")
	if err != nil {
		logFor(r.Context()).Error("create temp dir", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to create snapshot")
		return
	}
	defer os.RemoveAll(tmpDir)

	snapPath, err := s.buildSnapshot(r, teamID, tmpDir, st.LastServerSeq)
	if err != nil {
		logFor(r.Context()).Error("build snapshot", "team", teamID, "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to build snapshot")
		return
	}

	f, err := os.Open(snapPath)
	if err != nil {
		logFor(r.Context()).Error("open snapshot", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to read snapshot")
		return
	}
	defer f.Close()

	stat, _ := f.Stat()
	w.Header().Set("Content-Type", "application/x-sqlite3")
	w.Header().Set("X-Snapshot-Seq", strconv.FormatInt(st.LastServerSeq, 10))
	w.Header().Set("Content-Length", strconv.FormatInt(stat.Size(), 10))
	w.WriteHeader(http.StatusOK)
	io.Copy(w, f)
}

// buildSnapshot replays the team's events into a fresh client database under
// tmpDir and returns the database file path.
func (s *Server) buildSnapshot(r *http.Request, teamID, tmpDir string, upToSeq int64) (string, error) {
	snapDB, err := db.Initialize(tmpDir)
	if err != nil {
		return "", fmt.Errorf("init snapshot db: %w", err)
	}
	defer snapDB.Close()

	validator := func(t string) bool { return allowedEntityTypes[t] }
	afterSeq := int64(0)
	batchSize := 1000

	for {
		result, err := s.events.EventsSince(r.Context(), teamID, afterSeq, batchSize, "")
		if err != nil {
			return "", fmt.Errorf("get events after %d: %w", afterSeq, err)
		}
		if len(result.Events) == 0 {
			break
		}

		var batch []dispatchsync.Event
		for _, ev := range result.Events {
			if ev.ServerSeq > upToSeq {
				break
			}
			batch = append(batch, ev)
		}

		if len(batch) > 0 {
			tx, err := snapDB.Conn().Begin()
			if err != nil {
				return "", fmt.Errorf("begin snapshot tx: %w", err)
			}
			if _, err := dispatchsync.ApplyRemoteEvents(tx, batch, "", validator, nil); err != nil {
				tx.Rollback()
				return "", fmt.Errorf("apply events: %w", err)
			}
			if err := tx.Commit(); err != nil {
				return "", fmt.Errorf("commit snapshot: %w", err)
			}
		}

		afterSeq = result.LastServerSeq
		if !result.HasMore || afterSeq >= upToSeq {
			break
		}
	}

	// Fold the WAL back into the main file so the streamed bytes are a
	// complete database.
	if _, err := snapDB.Conn().Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return "", fmt.Errorf("checkpoint snapshot: %w", err)
	}

	return filepath.Join(tmpDir, ".dispatch", "dispatch.db"), nil
}
