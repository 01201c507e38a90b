package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/harper/dispatch/internal/output"
	"github.com/harper/dispatch/internal/realtime"
	"github.com/harper/dispatch/internal/syncconfig"
	"github.com/spf13/cobra"
)

var syncWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stay connected and sync continuously",
	Long: `Subscribe to the team's realtime stream and pull whenever another
device pushes. Local changes are pushed on a periodic timer.

The connection self-heals: dropped streams reconnect with backoff, and the
circuit breaker pauses reconnect attempts when the server is down.

Examples:
  dispatch sync watch                 # Watch until Ctrl+C
  dispatch sync watch --interval 10s  # Push local changes every 10s`,
	RunE: func(cmd *cobra.Command, args []string) error {
		interval, _ := cmd.Flags().GetDuration("interval")
		if interval <= 0 {
			interval = syncconfig.GetAutoSyncInterval()
		}

		manager, cleanup, err := newSyncManager()
		if err != nil {
			return err
		}
		defer cleanup()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)

		// Initial catch-up in both directions.
		if _, _, err := manager.Sync(ctx); err != nil {
			output.Warning("initial sync: %v", err)
		}

		// pullCh coalesces stream events: a burst of frames wakes the
		// loop once instead of queueing a pull per frame.
		pullCh := make(chan struct{}, 1)

		deviceID, err := persistentDeviceID()
		if err != nil {
			output.Error("get device id: %v", err)
			return err
		}

		state, err := manager.DB().GetSyncState()
		if err != nil || state == nil {
			output.Error("workspace is not linked to a team")
			return fmt.Errorf("no sync state")
		}

		channel := realtime.NewChannel(realtime.Config{
			BaseURL:  syncconfig.GetServerURL(),
			Token:    syncconfig.GetAnonKey(),
			TeamID:   state.TeamID,
			DeviceID: deviceID,
			OnEvent: func(serverSeq int64) {
				select {
				case pullCh <- struct{}{}:
				default:
				}
			},
			OnStatus: func(state realtime.State, err error) {
				switch state {
				case realtime.StateSubscribed:
					fmt.Printf("%s connected\n", time.Now().Format("15:04:05"))
				case realtime.StateBackoff:
					if err != nil {
						fmt.Printf("%s disconnected: %v\n", time.Now().Format("15:04:05"), err)
					}
				}
			},
			Breaker: manager.Breaker(),
		}, nil)
		channel.Start(ctx)
		defer channel.Close()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		fmt.Printf("Watching team %s (push every %s, Ctrl+C to stop)\n", state.TeamID, interval)

		for {
			select {
			case <-sigCh:
				fmt.Println("\nStopped.")
				return nil
			case <-pullCh:
				stats, err := manager.Pull(ctx)
				if err != nil {
					fmt.Printf("%s pull failed: %v\n", time.Now().Format("15:04:05"), err)
					continue
				}
				if stats.Applied > 0 || stats.Overwrites > 0 {
					fmt.Printf("%s pulled %d change(s)", time.Now().Format("15:04:05"), stats.Applied)
					if stats.Overwrites > 0 {
						fmt.Printf(", %d conflict(s) recorded", stats.Overwrites)
					}
					fmt.Println()
				}
			case <-ticker.C:
				stats, err := manager.Push(ctx)
				if err != nil {
					fmt.Printf("%s push failed: %v\n", time.Now().Format("15:04:05"), err)
					continue
				}
				if stats.Pushed > 0 {
					fmt.Printf("%s pushed %d change(s)\n", time.Now().Format("15:04:05"), stats.Pushed)
				}
			}
		}
	},
}

func init() {
	syncWatchCmd.Flags().Duration("interval", 0, "Push interval (default from config)")
	syncCmd.AddCommand(syncWatchCmd)
}
