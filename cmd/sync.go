package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/harper/dispatch/internal/db"
	"github.com/harper/dispatch/internal/output"
	"github.com/harper/dispatch/internal/session"
	dispatchsync "github.com/harper/dispatch/internal/sync"
	"github.com/harper/dispatch/internal/syncclient"
	"github.com/harper/dispatch/internal/syncconfig"
	"github.com/spf13/cobra"
)

// syncableEntities are the entity types eligible for sync.
var syncableEntities = map[string]bool{
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

// syncEntityValidator validates inbound and outbound sync entities.
var syncEntityValidator dispatchsync.EntityValidator = func(entityType string) bool {
	return syncableEntities[entityType]
}

// newSyncManager builds a sync manager for the linked team, opening the
// workspace database and resolving credentials. The returned cleanup closes
// whatever database handle the manager currently holds (bootstrap may swap
// it), so callers must not close the database themselves.
func newSyncManager() (*dispatchsync.Manager, func(), error) {
	if !syncconfig.IsAuthenticated() {
		output.Error("not logged in (run: dispatch login)")
		return nil, nil, fmt.Errorf("not authenticated")
	}

	dir := getBaseDir()
	database, err := db.Open(dir)
	if err != nil {
		output.Error("open database: %v", err)
		return nil, nil, err
	}

	sess, err := session.GetOrCreate(dir)
	if err != nil {
		database.Close()
		output.Error("get session: %v", err)
		return nil, nil, err
	}

	deviceID, err := persistentDeviceID()
	if err != nil {
		database.Close()
		output.Error("get device id: %v", err)
		return nil, nil, err
	}

	state, err := database.GetSyncState()
	if err != nil {
		database.Close()
		output.Error("get sync state: %v", err)
		return nil, nil, err
	}
	if state == nil {
		// First sync: link the workspace to the credential's team.
		creds, err := syncconfig.LoadAuth()
		teamID := ""
		if err == nil && creds != nil {
			teamID = creds.TeamID
		}
		if teamID == "" {
			teamID = "local"
		}
		if err := database.SetSyncState(teamID); err != nil {
			database.Close()
			output.Error("link team: %v", err)
			return nil, nil, err
		}
		state, err = database.GetSyncState()
		if err != nil {
			database.Close()
			output.Error("get sync state: %v", err)
			return nil, nil, err
		}
	}

	client := syncclient.New(syncconfig.GetServerURL(), syncconfig.GetAnonKey(), deviceID)

	manager := dispatchsync.NewManager(database, client, dispatchsync.Config{
		TeamID:            state.TeamID,
		DeviceID:          deviceID,
		SessionID:         sess.ID,
		SnapshotThreshold: syncconfig.GetSnapshotThreshold(),
	}, syncEntityValidator, nil)

	cleanup := func() { manager.DB().Close() }
	return manager, cleanup, nil
}

// persistentDeviceID resolves the device ID, persisting a freshly generated
// one so it survives across commands. The device ID is part of event
// identity; rotating it would break server-side dedup.
func persistentDeviceID() (string, error) {
	creds, err := syncconfig.LoadAuth()
	if err != nil {
		return "", err
	}
	if creds != nil && creds.DeviceID != "" {
		return creds.DeviceID, nil
	}

	id, err := syncconfig.GenerateDeviceID()
	if err != nil {
		return "", err
	}
	if creds == nil {
		creds = &syncconfig.AuthCredentials{}
	}
	creds.DeviceID = id
	if err := syncconfig.SaveAuth(creds); err != nil {
		return "", err
	}
	return id, nil
}

var syncCmd = &cobra.Command{
	Use:     "sync",
	Short:   "Sync local data with the team server",
	GroupID: "sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		pushOnly, _ := cmd.Flags().GetBool("push")
		pullOnly, _ := cmd.Flags().GetBool("pull")

		manager, cleanup, err := newSyncManager()
		if err != nil {
			return err
		}
		defer cleanup()

		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
		defer cancel()

		switch {
		case pushOnly:
			stats, err := manager.Push(ctx)
			if err != nil {
				output.Error("push: %v", err)
				return err
			}
			printPushStats(stats)
		case pullOnly:
			stats, err := manager.Pull(ctx)
			if err != nil {
				output.Error("pull: %v", err)
				return err
			}
			printPullStats(stats)
		default:
			pushStats, pullStats, err := manager.Sync(ctx)
			if pushStats != nil {
				printPushStats(pushStats)
			}
			if pullStats != nil {
				printPullStats(pullStats)
			}
			if err != nil {
				output.Error("sync: %v", err)
				return err
			}
		}
		return nil
	},
}

func printPushStats(stats *dispatchsync.PushStats) {
	if stats.Uploaded > 0 {
		fmt.Printf("Uploaded %d avatar(s).\n", stats.Uploaded)
	}
	if stats.Pushed == 0 && stats.Failed == 0 && stats.Skipped == 0 {
		fmt.Println("Nothing to push.")
		return
	}
	fmt.Printf("Pushed %d events.\n", stats.Pushed)
	if stats.Failed > 0 {
		output.Warning("%d events failed (run: dispatch sync retry)", stats.Failed)
	}
	if stats.Skipped > 0 {
		fmt.Printf("Held back %d events.\n", stats.Skipped)
	}
}

func printPullStats(stats *dispatchsync.PullStats) {
	if stats.Pulled == 0 {
		fmt.Println("Nothing to pull.")
		return
	}
	fmt.Printf("Pulled %d events (%d applied).\n", stats.Pulled, stats.Applied)
	if stats.Overwrites > 0 {
		output.Warning("%d local records overwritten by remote changes (run: dispatch sync conflicts)", stats.Overwrites)
	}
	if stats.Failed > 0 {
		output.Warning("%d events could not be applied", stats.Failed)
	}
}

var syncStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sync status",
	RunE: func(cmd *cobra.Command, args []string) error {
		manager, cleanup, err := newSyncManager()
		if err != nil {
			return err
		}
		defer cleanup()

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		status, err := manager.Status(ctx)
		if err != nil {
			output.Error("status: %v", err)
			return err
		}

		jsonOutput, _ := cmd.Flags().GetBool("json")
		if jsonOutput {
			return output.JSON(status)
		}

		fmt.Printf("Team:        %s\n", status.TeamID)
		fmt.Printf("Pending:     %d events\n", status.Pending)
		if status.Failed > 0 {
			fmt.Printf("Failed:      %d events\n", status.Failed)
		}
		fmt.Printf("Synced:      %d events\n", status.Synced)
		if status.Conflicts > 0 {
			fmt.Printf("Conflicts:   %d unresolved\n", status.Conflicts)
		}
		fmt.Printf("Last pushed: action %d\n", status.LastPushedID)
		fmt.Printf("Last pulled: seq %d\n", status.LastPulledSeq)
		if status.LastSyncAt != nil {
			fmt.Printf("Last sync:   %s\n", status.LastSyncAt.Format(time.RFC3339))
		}
		fmt.Printf("Breaker:     %s\n", status.Breaker)
		return nil
	},
}

var syncBootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Replace the local database with a server snapshot",
	Long: `Download a snapshot of the team's state and swap it in as the local
database. Refuses to run while local changes are pending push.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		manager, cleanup, err := newSyncManager()
		if err != nil {
			return err
		}
		defer cleanup()

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Minute)
		defer cancel()

		if err := manager.Bootstrap(ctx); err != nil {
			output.Error("bootstrap: %v", err)
			return err
		}

		output.Success("Bootstrap complete.")
		return nil
	},
}

var syncRetryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Requeue failed events and push",
	RunE: func(cmd *cobra.Command, args []string) error {
		manager, cleanup, err := newSyncManager()
		if err != nil {
			return err
		}
		defer cleanup()

		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
		defer cancel()

		requeued, err := manager.RetryFailed(ctx)
		if err != nil {
			output.Error("retry: %v", err)
			return err
		}
		if requeued == 0 {
			fmt.Println("No failed events.")
			return nil
		}

		fmt.Printf("Requeued %d events.\n", requeued)
		stats, err := manager.Push(ctx)
		if err != nil {
			output.Error("push: %v", err)
			return err
		}
		printPushStats(stats)
		return nil
	},
}

func init() {
	syncCmd.Flags().Bool("push", false, "Push only")
	syncCmd.Flags().Bool("pull", false, "Pull only")
	syncStatusCmd.Flags().Bool("json", false, "JSON output")

	syncCmd.AddCommand(syncStatusCmd, syncBootstrapCmd, syncRetryCmd)
	rootCmd.AddCommand(syncCmd)
}
