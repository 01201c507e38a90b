package sync

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/harper/dispatch/internal/clock"
	"github.com/harper/dispatch/internal/db"
	"github.com/harper/dispatch/internal/syncclient"
)

const pushBatchSize = 500

// maxSyncHistoryRows bounds the sync_history table; older rows are pruned
// opportunistically during pull.
const maxSyncHistoryRows = 2000

// errBootstrapNotNeeded signals that the server event count is below the snapshot threshold.
var errBootstrapNotNeeded = errors.New("bootstrap not needed")

// Transport is the server API surface the manager depends on.
// *syncclient.Client implements it; tests substitute fakes.
type Transport interface {
	Push(teamID string, req *syncclient.PushRequest) (*syncclient.PushResponse, error)
	Pull(teamID string, afterSeq int64, limit int, excludeDeviceID string) (*syncclient.PullResponse, error)
	SyncStatus(teamID string) (*syncclient.SyncStatusResponse, error)
	GetSnapshot(teamID string) (*syncclient.SnapshotResponse, error)
	UploadAvatar(teamID, userID string, data []byte, contentType string) (string, error)
}

// Config carries the identity a Manager syncs under.
type Config struct {
	TeamID    string
	DeviceID  string
	SessionID string

	// SnapshotThreshold is the server event count above which a fresh client
	// bootstraps from a snapshot instead of pulling the whole log. Zero
	// disables bootstrap.
	SnapshotThreshold int
}

// Manager orchestrates a team's sync lifecycle over a local DB and a
// transport client: push (avatars first, batched events with individual
// fallback), pull (paged apply with conflict recording), bootstrap, status.
//
// One breaker guards every server call the manager makes. An in-memory
// in-flight set keeps overlapping Push calls from double-sending rows.
type Manager struct {
	cfg       Config
	database  *db.DB
	client    Transport
	validator EntityValidator
	clk       clock.Clock
	policy    RetryPolicy
	breaker   *CircuitBreaker
	logger    *slog.Logger

	cycleMu sync.Mutex // serialises Sync and Bootstrap

	inflightMu sync.Mutex
	inflight   map[int64]struct{}
}

// NewManager builds a Manager with the default retry policy and a fresh breaker.
func NewManager(database *db.DB, client Transport, cfg Config, validator EntityValidator, clk clock.Clock) *Manager {
	if clk == nil {
		clk = clock.Real()
	}
	return &Manager{
		cfg:       cfg,
		database:  database,
		client:    client,
		validator: validator,
		clk:       clk,
		policy:    DefaultRetryPolicy,
		breaker:   NewCircuitBreaker(clk),
		logger:    slog.Default().With("team", cfg.TeamID),
		inflight:  make(map[int64]struct{}),
	}
}

// SetRetryPolicy overrides the default backoff schedule (tests).
func (m *Manager) SetRetryPolicy(p RetryPolicy) { m.policy = p }

// Breaker exposes the manager's circuit breaker; the realtime channel
// consults it before resubscribing.
func (m *Manager) Breaker() *CircuitBreaker { return m.breaker }

// DB returns the manager's current database handle. Bootstrap may replace it.
func (m *Manager) DB() *db.DB { return m.database }

// PushStats summarises one push cycle.
type PushStats struct {
	Uploaded int // avatar files uploaded
	Pushed   int // events accepted by the server (incl. duplicates)
	Failed   int // events marked failed this cycle
	Skipped  int // events withheld (in-flight or awaiting avatar upload)
}

// PullStats summarises one pull cycle.
type PullStats struct {
	Pulled     int
	Applied    int
	Overwrites int
	Failed     int
	LastSeq    int64
}

// callServer routes one transport call through the breaker and the transient
// retry schedule.
func (m *Manager) callServer(ctx context.Context, fn func() error) error {
	return retryTransient(ctx, m.clk, m.policy, func() error {
		if err := m.breaker.Allow(); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn()
		if err != nil {
			m.breaker.RecordFailure()
			return err
		}
		m.breaker.RecordSuccess()
		return nil
	})
}

// Push uploads staged avatars, then drains the outbox in batches.
//
// Per-event rejections are handled individually: duplicates count as acks,
// validation rejections quarantine only the offending rows. A batch that
// fails permanently with no per-event detail degrades to pushing its events
// one at a time so a single poison event cannot block the outbox.
func (m *Manager) Push(ctx context.Context) (*PushStats, error) {
	stats := &PushStats{}

	skipUsers, err := m.processUploads(ctx, stats)
	if err != nil {
		return stats, err
	}

	conn := m.database.Conn()
	tx, err := conn.Begin()
	if err != nil {
		return stats, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	events, err := GetPendingEvents(tx, m.cfg.DeviceID, m.cfg.SessionID, m.clk.Now())
	if err != nil {
		return stats, fmt.Errorf("get pending events: %w", err)
	}
	events = m.filterPushable(events, skipUsers, stats)
	if len(events) == 0 {
		return stats, tx.Commit() // commit: backfill may have written rows
	}

	held := m.holdInFlight(events)
	defer m.releaseInFlight(held)

	var allAcks []Ack
	var allFailures []FailedPush
	var maxActionID int64
	var history []db.SyncHistoryEntry

	for i := 0; i < len(events); i += pushBatchSize {
		end := min(i+pushBatchSize, len(events))
		batch := events[i:end]

		resp, err := m.pushBatch(ctx, batch)
		if err != nil {
			if errors.Is(err, syncclient.ErrUnauthorized) || errors.Is(err, syncclient.ErrForbidden) {
				return stats, fmt.Errorf("push: %w", err)
			}
			if IsTransient(err) || errors.Is(err, ErrCircuitOpen) || errors.Is(err, context.Canceled) {
				// Server unreachable. Schedule a retry for this batch and
				// stop the cycle; later batches would fail the same way.
				for _, ev := range batch {
					allFailures = append(allFailures, FailedPush{ClientActionID: ev.ClientActionID, Reason: errString(err)})
				}
				break
			}
			// Permanent batch failure without per-event detail: fall back to
			// individual pushes so only the poison row fails.
			m.logger.Warn("batch push failed, falling back to individual events", "err", err)
			acks, failures := m.pushIndividually(ctx, batch)
			allAcks = append(allAcks, acks...)
			allFailures = append(allFailures, failures...)
			continue
		}

		acks, failures := splitPushResponse(batch, resp)
		allAcks = append(allAcks, acks...)
		allFailures = append(allFailures, failures...)
	}

	ackedSeqs := make(map[int64]int64, len(allAcks))
	for _, a := range allAcks {
		ackedSeqs[a.ClientActionID] = a.ServerSeq
		if a.ClientActionID > maxActionID {
			maxActionID = a.ClientActionID
		}
	}
	for _, ev := range events {
		if seq, ok := ackedSeqs[ev.ClientActionID]; ok {
			history = append(history, db.SyncHistoryEntry{
				Direction:  "push",
				ActionType: ev.ActionType,
				EntityType: ev.EntityType,
				EntityID:   ev.EntityID,
				ServerSeq:  seq,
				DeviceID:   m.cfg.DeviceID,
				Timestamp:  m.clk.Now(),
			})
		}
	}

	if err := MarkEventsSynced(tx, allAcks); err != nil {
		return stats, err
	}
	if err := MarkEventsFailed(tx, allFailures, m.policy, m.clk.Now()); err != nil {
		return stats, err
	}
	if maxActionID > 0 {
		if _, err := tx.Exec(`UPDATE sync_state SET last_pushed_action_id = ?, last_sync_at = CURRENT_TIMESTAMP`, maxActionID); err != nil {
			return stats, fmt.Errorf("update sync state: %w", err)
		}
	}
	if err := db.RecordSyncHistoryTx(tx, history); err != nil {
		m.logger.Debug("record push history", "err", err)
	}
	if err := tx.Commit(); err != nil {
		return stats, fmt.Errorf("commit: %w", err)
	}

	stats.Pushed = len(allAcks)
	stats.Failed = len(allFailures)
	return stats, nil
}

// pushBatch sends one batch through the breaker/retry path.
func (m *Manager) pushBatch(ctx context.Context, batch []Event) (*syncclient.PushResponse, error) {
	req := &syncclient.PushRequest{
		DeviceID:  m.cfg.DeviceID,
		SessionID: m.cfg.SessionID,
	}
	for _, ev := range batch {
		req.Events = append(req.Events, syncclient.EventInput{
			ClientActionID:  ev.ClientActionID,
			ActionType:      ev.ActionType,
			EntityType:      ev.EntityType,
			EntityID:        ev.EntityID,
			Payload:         ev.Payload,
			ClientTimestamp: ev.ClientTimestamp.Format(time.RFC3339),
		})
	}

	var resp *syncclient.PushResponse
	err := m.callServer(ctx, func() error {
		var err error
		resp, err = m.client.Push(m.cfg.TeamID, req)
		return err
	})
	return resp, err
}

// pushIndividually retries a failed batch one event at a time.
func (m *Manager) pushIndividually(ctx context.Context, batch []Event) (acks []Ack, failures []FailedPush) {
	for _, ev := range batch {
		resp, err := m.pushBatch(ctx, []Event{ev})
		if err != nil {
			failures = append(failures, FailedPush{ClientActionID: ev.ClientActionID, Reason: errString(err)})
			continue
		}
		a, f := splitPushResponse([]Event{ev}, resp)
		acks = append(acks, a...)
		failures = append(failures, f...)
	}
	return acks, failures
}

// splitPushResponse converts a server response into acks and failures.
// Duplicate rejections are idempotent success and count as acks.
func splitPushResponse(batch []Event, resp *syncclient.PushResponse) (acks []Ack, failures []FailedPush) {
	for _, a := range resp.Acks {
		acks = append(acks, Ack{ClientActionID: a.ClientActionID, ServerSeq: a.ServerSeq})
	}
	for _, r := range resp.Rejected {
		if r.Reason == "duplicate" && r.ServerSeq > 0 {
			acks = append(acks, Ack{ClientActionID: r.ClientActionID, ServerSeq: r.ServerSeq})
			continue
		}
		failures = append(failures, FailedPush{ClientActionID: r.ClientActionID, Reason: r.Reason})
	}
	return acks, failures
}

// filterPushable drops events the validator rejects, events already in
// flight, and user upserts whose avatar upload failed this cycle.
func (m *Manager) filterPushable(events []Event, skipUsers map[string]bool, stats *PushStats) []Event {
	m.inflightMu.Lock()
	defer m.inflightMu.Unlock()

	filtered := events[:0]
	for _, ev := range events {
		if m.validator != nil && !m.validator(ev.EntityType) {
			continue
		}
		if _, held := m.inflight[ev.ClientActionID]; held {
			stats.Skipped++
			continue
		}
		if ev.EntityType == "users" && skipUsers[ev.EntityID] {
			// Never push a user upsert ahead of its avatar.
			stats.Skipped++
			continue
		}
		filtered = append(filtered, ev)
	}
	return filtered
}

func (m *Manager) holdInFlight(events []Event) []int64 {
	m.inflightMu.Lock()
	defer m.inflightMu.Unlock()
	held := make([]int64, 0, len(events))
	for _, ev := range events {
		m.inflight[ev.ClientActionID] = struct{}{}
		held = append(held, ev.ClientActionID)
	}
	return held
}

func (m *Manager) releaseInFlight(ids []int64) {
	m.inflightMu.Lock()
	defer m.inflightMu.Unlock()
	for _, id := range ids {
		delete(m.inflight, id)
	}
}

// InFlight returns the number of action rows inside an active push.
func (m *Manager) InFlight() int {
	m.inflightMu.Lock()
	defer m.inflightMu.Unlock()
	return len(m.inflight)
}

// processUploads pushes staged avatar files before any events. A successful
// upload patches the user's pending payloads with the returned avatar URL; a
// failed upload is recorded for backoff and the user's ID returned so every
// users event for them is withheld this cycle.
func (m *Manager) processUploads(ctx context.Context, stats *PushStats) (map[string]bool, error) {
	uploads, err := m.database.GetPendingUploads()
	if err != nil {
		return nil, fmt.Errorf("get pending uploads: %w", err)
	}
	if len(uploads) == 0 {
		return nil, nil
	}

	skip := make(map[string]bool)
	for _, u := range uploads {
		data, err := os.ReadFile(u.FilePath)
		if err != nil {
			m.logger.Warn("avatar file unreadable", "user", u.UserID, "path", u.FilePath, "err", err)
			if err := m.database.MarkUploadFailed(u.ID, err.Error()); err != nil {
				m.logger.Debug("mark upload failed", "err", err)
			}
			skip[u.UserID] = true
			continue
		}

		var avatarURL string
		err = m.callServer(ctx, func() error {
			var err error
			avatarURL, err = m.client.UploadAvatar(m.cfg.TeamID, u.UserID, data, u.ContentType)
			return err
		})
		if err != nil {
			m.logger.Warn("avatar upload failed", "user", u.UserID, "err", err)
			if err := m.database.MarkUploadFailed(u.ID, errString(err)); err != nil {
				m.logger.Debug("mark upload failed", "err", err)
			}
			skip[u.UserID] = true
			continue
		}

		if err := m.patchAvatarURL(u.UserID, avatarURL); err != nil {
			return skip, fmt.Errorf("patch avatar url: %w", err)
		}
		if err := m.database.RemovePendingUpload(u.ID); err != nil {
			m.logger.Debug("remove pending upload", "err", err)
		}
		stats.Uploaded++
	}
	return skip, nil
}

// patchAvatarURL rewrites the user's row and their unsynced action_log
// payloads so the upsert that reaches the server carries the served URL.
func (m *Manager) patchAvatarURL(userID, avatarURL string) error {
	conn := m.database.Conn()
	tx, err := conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := m.clk.Now()
	if _, err := tx.Exec(`UPDATE users SET avatar_url = ?, avatar_updated_at = ? WHERE id = ?`, avatarURL, now, userID); err != nil {
		return err
	}

	rows, err := tx.Query(`
		SELECT rowid, new_data FROM action_log
		WHERE entity_type IN ('user','users') AND entity_id = ? AND synced_at IS NULL AND undone = 0 AND new_data != ''
	`, userID)
	if err != nil {
		return err
	}

	type patch struct {
		rowid int64
		data  string
	}
	var patches []patch
	for rows.Next() {
		var rowid int64
		var newData string
		if err := rows.Scan(&rowid, &newData); err != nil {
			rows.Close()
			return err
		}
		var fields map[string]any
		if err := json.Unmarshal([]byte(newData), &fields); err != nil {
			continue
		}
		fields["avatar_url"] = avatarURL
		fields["avatar_updated_at"] = now.UTC().Format(time.RFC3339)
		patched, err := json.Marshal(fields)
		if err != nil {
			continue
		}
		patches = append(patches, patch{rowid: rowid, data: string(patched)})
	}
	rows.Close()

	for _, p := range patches {
		if _, err := tx.Exec(`UPDATE action_log SET new_data = ? WHERE rowid = ?`, p.data, p.rowid); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Pull pages remote events after the local cursor until the server reports no
// more, applying each page in one transaction and recording conflicts.
func (m *Manager) Pull(ctx context.Context) (*PullStats, error) {
	stats := &PullStats{}

	state, err := m.database.GetSyncState()
	if err != nil {
		return stats, fmt.Errorf("get sync state: %w", err)
	}
	if state == nil {
		return stats, fmt.Errorf("team not linked")
	}

	lastSeq := state.LastPulledServerSeq
	for {
		var resp *syncclient.PullResponse
		err := m.callServer(ctx, func() error {
			var err error
			resp, err = m.client.Pull(m.cfg.TeamID, lastSeq, 1000, m.cfg.DeviceID)
			return err
		})
		if err != nil {
			return stats, fmt.Errorf("pull: %w", err)
		}

		if len(resp.Events) == 0 {
			break
		}

		events := make([]Event, len(resp.Events))
		for i, pe := range resp.Events {
			clientTS, _ := time.Parse(time.RFC3339, pe.ClientTimestamp)
			events[i] = Event{
				ServerSeq:       pe.ServerSeq,
				DeviceID:        pe.DeviceID,
				SessionID:       pe.SessionID,
				ClientActionID:  pe.ClientActionID,
				ActionType:      pe.ActionType,
				EntityType:      pe.EntityType,
				EntityID:        pe.EntityID,
				Payload:         pe.Payload,
				ClientTimestamp: clientTS,
			}
		}

		conn := m.database.Conn()
		tx, err := conn.Begin()
		if err != nil {
			return stats, fmt.Errorf("begin tx: %w", err)
		}

		result, err := ApplyRemoteEvents(tx, events, m.cfg.DeviceID, m.validator, state.LastSyncAt)
		if err != nil {
			tx.Rollback()
			return stats, fmt.Errorf("apply events: %w", err)
		}

		if err := storeConflicts(tx, result.Conflicts); err != nil {
			tx.Rollback()
			return stats, fmt.Errorf("store conflicts: %w", err)
		}

		if _, err := tx.Exec(`UPDATE sync_state SET last_pulled_server_seq = ?, last_sync_at = CURRENT_TIMESTAMP`, resp.LastServerSeq); err != nil {
			tx.Rollback()
			return stats, fmt.Errorf("update sync state: %w", err)
		}

		var history []db.SyncHistoryEntry
		for _, ev := range events {
			history = append(history, db.SyncHistoryEntry{
				Direction:  "pull",
				ActionType: ev.ActionType,
				EntityType: ev.EntityType,
				EntityID:   ev.EntityID,
				ServerSeq:  ev.ServerSeq,
				DeviceID:   ev.DeviceID,
				Timestamp:  m.clk.Now(),
			})
		}
		if err := db.RecordSyncHistoryTx(tx, history); err != nil {
			m.logger.Debug("record pull history", "err", err)
		}
		if err := db.PruneSyncHistory(tx, maxSyncHistoryRows); err != nil {
			m.logger.Debug("prune sync history", "err", err)
		}

		if err := tx.Commit(); err != nil {
			return stats, fmt.Errorf("commit: %w", err)
		}

		stats.Pulled += len(resp.Events)
		stats.Applied += result.Applied
		stats.Overwrites += result.Overwrites
		stats.Failed += len(result.Failed)
		lastSeq = resp.LastServerSeq
		stats.LastSeq = lastSeq

		if !resp.HasMore {
			break
		}
	}

	return stats, nil
}

// Sync runs push then pull as one serialized cycle. A fresh client (cursor at
// zero) first attempts a snapshot bootstrap.
func (m *Manager) Sync(ctx context.Context) (*PushStats, *PullStats, error) {
	m.cycleMu.Lock()
	defer m.cycleMu.Unlock()

	state, err := m.database.GetSyncState()
	if err != nil {
		return nil, nil, fmt.Errorf("get sync state: %w", err)
	}
	if state == nil {
		return nil, nil, fmt.Errorf("team not linked")
	}

	bootstrapped := false
	if state.LastPulledServerSeq == 0 {
		err := m.bootstrap(ctx, state)
		switch {
		case err == nil:
			bootstrapped = true
		case errors.Is(err, errBootstrapNotNeeded):
		default:
			m.logger.Warn("bootstrap failed, falling back to normal pull", "err", err)
		}
	}

	pushStats, err := m.Push(ctx)
	if err != nil {
		return pushStats, nil, err
	}

	if bootstrapped {
		return pushStats, &PullStats{}, nil
	}
	pullStats, err := m.Pull(ctx)
	return pushStats, pullStats, err
}

// Bootstrap explicitly runs the snapshot bootstrap path.
func (m *Manager) Bootstrap(ctx context.Context) error {
	m.cycleMu.Lock()
	defer m.cycleMu.Unlock()

	state, err := m.database.GetSyncState()
	if err != nil {
		return fmt.Errorf("get sync state: %w", err)
	}
	if state == nil {
		return fmt.Errorf("team not linked")
	}
	return m.bootstrap(ctx, state)
}

// bootstrap downloads a server snapshot and swaps it in for the local DB:
// validate the SQLite header, back the current file up, write the snapshot,
// reopen, set the cursor from the snapshot seq. Every failure path restores
// the backup.
func (m *Manager) bootstrap(ctx context.Context, state *db.SyncState) error {
	if m.cfg.SnapshotThreshold <= 0 {
		return errBootstrapNotNeeded
	}

	pending, err := m.database.CountPendingEvents()
	if err == nil && pending > 0 {
		// Local changes would be lost under the snapshot.
		return errBootstrapNotNeeded
	}

	var serverStatus *syncclient.SyncStatusResponse
	err = m.callServer(ctx, func() error {
		var err error
		serverStatus, err = m.client.SyncStatus(m.cfg.TeamID)
		return err
	})
	if err != nil {
		return fmt.Errorf("check server status: %w", err)
	}

	if serverStatus.EventCount-state.LastPulledServerSeq < int64(m.cfg.SnapshotThreshold) {
		return errBootstrapNotNeeded
	}

	m.logger.Info("bootstrapping from snapshot", "server_events", serverStatus.EventCount)

	var snapshot *syncclient.SnapshotResponse
	err = m.callServer(ctx, func() error {
		var err error
		snapshot, err = m.client.GetSnapshot(m.cfg.TeamID)
		return err
	})
	if err != nil {
		return fmt.Errorf("download snapshot: %w", err)
	}
	if snapshot == nil {
		return errBootstrapNotNeeded
	}

	if len(snapshot.Data) < 16 || string(snapshot.Data[:16]) != "SQLite format 3\x00" {
		return fmt.Errorf("invalid snapshot: not a SQLite database")
	}

	baseDir := m.database.BaseDir()
	dbPath := filepath.Join(baseDir, ".dispatch", "dispatch.db")
	backupPath := dbPath + ".pre-snapshot-backup"

	m.database.Close()

	restore := func() {
		os.Rename(backupPath, dbPath)
		if reopened, err := db.Open(baseDir); err == nil {
			m.database = reopened
		}
	}

	if err := copyFile(dbPath, backupPath); err != nil {
		if reopened, reopenErr := db.Open(baseDir); reopenErr == nil {
			m.database = reopened
		}
		return fmt.Errorf("backup db: %w", err)
	}

	if err := os.WriteFile(dbPath, snapshot.Data, 0644); err != nil {
		restore()
		return fmt.Errorf("write snapshot: %w", err)
	}

	reopened, err := db.Open(baseDir)
	if err != nil {
		restore()
		return fmt.Errorf("reopen after bootstrap: %w", err)
	}

	// The snapshot DB may not carry a sync_state row.
	_, err = reopened.Conn().Exec(
		`INSERT OR REPLACE INTO sync_state (team_id, last_pulled_server_seq, last_pushed_action_id, last_sync_at, sync_disabled)
		 VALUES (?, ?, 0, CURRENT_TIMESTAMP, 0)`,
		state.TeamID, snapshot.SnapshotSeq,
	)
	if err != nil {
		reopened.Close()
		restore()
		return fmt.Errorf("update sync_state: %w", err)
	}

	m.database = reopened
	m.logger.Info("bootstrap complete", "seq", snapshot.SnapshotSeq)
	return nil
}

// Status reports the manager's view of the sync pipeline.
type Status struct {
	TeamID        string
	Pending       int64
	Failed        int64
	Synced        int64
	Conflicts     int64
	LastPushedID  int64
	LastPulledSeq int64
	LastSyncAt    *time.Time
	Breaker       BreakerState
	InFlight      int
}

// Status gathers local counts, cursor positions, and breaker state.
func (m *Manager) Status(ctx context.Context) (*Status, error) {
	state, err := m.database.GetSyncState()
	if err != nil {
		return nil, fmt.Errorf("get sync state: %w", err)
	}
	if state == nil {
		return nil, fmt.Errorf("team not linked")
	}

	s := &Status{
		TeamID:        state.TeamID,
		LastPushedID:  state.LastPushedActionID,
		LastPulledSeq: state.LastPulledServerSeq,
		LastSyncAt:    state.LastSyncAt,
		Breaker:       m.breaker.State(),
		InFlight:      m.InFlight(),
	}
	if s.Pending, err = m.database.CountPendingEvents(); err != nil {
		return nil, err
	}
	if s.Failed, err = m.database.CountFailedEvents(); err != nil {
		return nil, err
	}
	if s.Synced, err = m.database.CountSyncedEvents(); err != nil {
		return nil, err
	}
	if s.Conflicts, err = m.database.CountUnresolvedConflicts(); err != nil {
		return nil, err
	}
	return s, nil
}

// RetryFailed requeues quarantined action_log rows; they become pending on
// the next push.
func (m *Manager) RetryFailed(ctx context.Context) (int64, error) {
	conn := m.database.Conn()
	tx, err := conn.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	n, err := RequeueFailed(tx)
	if err != nil {
		return 0, err
	}
	return n, tx.Commit()
}

// storeConflicts inserts conflict records into the sync_conflicts table.
func storeConflicts(tx *sql.Tx, conflicts []ConflictRecord) error {
	if len(conflicts) == 0 {
		return nil
	}
	stmt, err := tx.Prepare(`INSERT INTO sync_conflicts (entity_type, entity_id, server_seq, local_data, remote_data, overwritten_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare conflict insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range conflicts {
		localJSON := "null"
		if c.LocalData != nil {
			localJSON = string(c.LocalData)
		}
		remoteJSON := "null"
		if c.RemoteData != nil {
			remoteJSON = string(c.RemoteData)
		}
		if _, err := stmt.Exec(c.EntityType, c.EntityID, c.ServerSeq, localJSON, remoteJSON, c.OverwrittenAt); err != nil {
			return fmt.Errorf("insert conflict %s/%s: %w", c.EntityType, c.EntityID, err)
		}
	}
	return nil
}

// copyFile copies src to dst, creating dst if it doesn't exist.
func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // nothing to back up
		}
		return err
	}
	return os.WriteFile(dst, data, 0644)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
