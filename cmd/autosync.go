package cmd

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/harper/dispatch/internal/db"
	"github.com/harper/dispatch/internal/session"
	dispatchsync "github.com/harper/dispatch/internal/sync"
	"github.com/harper/dispatch/internal/syncclient"
	"github.com/harper/dispatch/internal/syncconfig"
	"github.com/spf13/cobra"
)

// autoSyncStampFile records when the last auto-push ran, for debouncing.
const autoSyncStampFile = ".dispatch/autosync-stamp"

// triggerAutoSync runs a quick push after a mutating command completes.
// Runs synchronously but with a short timeout. Errors are logged, not returned,
// so a flaky network never fails the local mutation.
func triggerAutoSync(cmd *cobra.Command) {
	if !syncconfig.GetAutoSyncEnabled() {
		return
	}
	if !syncconfig.IsAuthenticated() {
		return
	}

	dir := getBaseDir()
	if dir == "" {
		return
	}
	if withinDebounce(dir) {
		return
	}

	database, err := db.Open(dir)
	if err != nil {
		slog.Debug("autosync: open db", "err", err)
		return
	}

	state, err := database.GetSyncState()
	if err != nil || state == nil || state.SyncDisabled {
		database.Close()
		return // not linked, or sync turned off for this workspace
	}

	sess, err := session.GetOrCreate(dir)
	if err != nil {
		database.Close()
		return
	}

	deviceID, err := persistentDeviceID()
	if err != nil {
		database.Close()
		return
	}

	client := syncclient.New(syncconfig.GetServerURL(), syncconfig.GetAnonKey(), deviceID)
	client.HTTP.Timeout = 5 * time.Second // short timeout for auto-sync

	manager := dispatchsync.NewManager(database, client, dispatchsync.Config{
		TeamID:            state.TeamID,
		DeviceID:          deviceID,
		SessionID:         sess.ID,
		SnapshotThreshold: syncconfig.GetSnapshotThreshold(),
	}, syncEntityValidator, nil)
	defer manager.DB().Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Push only. Pull happens on the next explicit sync or watch tick.
	if _, err := manager.Push(ctx); err != nil {
		slog.Debug("autosync: push", "cmd", cmd.Name(), "err", err)
		return
	}
	touchDebounce(dir)
}

// withinDebounce reports whether an auto-push ran more recently than the
// configured debounce window.
func withinDebounce(dir string) bool {
	debounce := syncconfig.GetAutoSyncDebounce()
	if debounce <= 0 {
		return false
	}
	info, err := os.Stat(filepath.Join(dir, autoSyncStampFile))
	if err != nil {
		return false
	}
	return time.Since(info.ModTime()) < debounce
}

func touchDebounce(dir string) {
	path := filepath.Join(dir, autoSyncStampFile)
	now := time.Now()
	if err := os.Chtimes(path, now, now); err != nil {
		_ = os.WriteFile(path, nil, 0o644)
	}
}
