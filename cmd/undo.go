package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/harper/dispatch/internal/db"
	"github.com/harper/dispatch/internal/models"
	"github.com/harper/dispatch/internal/output"
	"github.com/spf13/cobra"
)

var undoCmd = &cobra.Command{
	Use:   "undo",
	Short: "Undo the last local action",
	Long: `Undo the most recent action from this session that has not yet
reached the server.

Undoing a create soft-deletes the record, undoing a delete restores it,
and undoing an update reverts the record to its previous state. The undo
is itself a logged mutation, so teammates converge on the reverted state
on the next sync.

Actions that already synced cannot be undone. Activity entries and
listing status history are append-only and stay as recorded.

Use 'dispatch undo --list' to see recent actions.`,
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		database, sess, err := openWorkspace()
		if err != nil {
			return err
		}
		defer database.Close()

		if list, _ := cmd.Flags().GetBool("list"); list {
			var actions []models.ActionLog
			if all, _ := cmd.Flags().GetBool("all"); all {
				actions, err = database.GetRecentActionsAll(10)
			} else {
				actions, err = database.GetRecentActions(sess.ID, 10)
			}
			if err != nil {
				output.Error("list actions: %v", err)
				return err
			}

			if len(actions) == 0 {
				fmt.Println("No actions to undo")
				return nil
			}

			fmt.Println("RECENT ACTIONS:")
			for _, action := range actions {
				status := ""
				if action.Undone {
					status = " [undone]"
				}
				ago := output.FormatTimeAgo(action.Timestamp)
				fmt.Printf("  %s %s %s (%s)%s\n",
					action.ActionType, action.EntityType, action.EntityID, ago, status)
			}
			return nil
		}

		action, err := database.GetLastAction(sess.ID)
		if err != nil {
			output.Error("get last action: %v", err)
			return err
		}

		if action == nil {
			fmt.Printf("No unsynced actions to undo in current session (%s)\n", sess.ID)
			return nil
		}

		if err := performUndo(database, action, sess.ID); err != nil {
			output.Error("undo: %v", err)
			return err
		}

		if err := database.MarkActionUndone(action.ID); err != nil {
			output.Error("mark action undone: %v", err)
			return err
		}

		triggerAutoSync(cmd)
		fmt.Printf("UNDONE: %s %s %s\n", action.ActionType, action.EntityType, action.EntityID)
		return nil
	},
}

func performUndo(database *db.DB, action *models.ActionLog, sessionID string) error {
	switch action.ActionType {
	case models.ActionCreate:
		return undoCreate(database, action, sessionID)
	case models.ActionDelete, models.ActionSoftDelete:
		return undoDelete(database, action, sessionID)
	case models.ActionUpdate, models.ActionRestore:
		return revertToPrevious(database, action, sessionID)
	default:
		return fmt.Errorf("cannot undo action type: %s", action.ActionType)
	}
}

// undoCreate compensates a create by deleting the record it made.
func undoCreate(database *db.DB, action *models.ActionLog, sessionID string) error {
	switch action.EntityType {
	case "task":
		return database.DeleteTaskLogged(action.EntityID, sessionID)
	case "subtask":
		return database.DeleteSubtaskLogged(action.EntityID, sessionID)
	case "listing":
		return database.DeleteListingLogged(action.EntityID, sessionID)
	case "property":
		return database.DeletePropertyLogged(action.EntityID, sessionID)
	case "contact":
		return database.DeleteContactLogged(action.EntityID, sessionID)
	case "realtor":
		return database.DeleteRealtorLogged(action.EntityID, sessionID)
	case "user":
		return database.DeleteUserLogged(action.EntityID, sessionID)
	case "note":
		return database.DeleteNoteLogged(action.EntityID, sessionID)
	case "showing":
		return database.DeleteShowingLogged(action.EntityID, sessionID)
	case "activity", "status_change":
		return fmt.Errorf("undo not supported for %s", action.EntityType)
	default:
		return fmt.Errorf("unknown entity type: %s", action.EntityType)
	}
}

// undoDelete compensates a delete by bringing the record back.
func undoDelete(database *db.DB, action *models.ActionLog, sessionID string) error {
	switch action.EntityType {
	case "task":
		return database.RestoreTaskLogged(action.EntityID, sessionID)
	case "subtask":
		// Subtasks are hard-deleted, the row is gone. Recreate the
		// checklist item from the recorded state under a fresh ID.
		if action.PreviousData == "" {
			return fmt.Errorf("no previous state recorded for subtask %s", action.EntityID)
		}
		var s models.Subtask
		if err := json.Unmarshal([]byte(action.PreviousData), &s); err != nil {
			return fmt.Errorf("parse previous state: %w", err)
		}
		return database.CreateSubtaskLogged(&s, sessionID)
	default:
		// Soft-deleted entities carry their pre-delete state in the
		// action log. Reapplying it clears deleted_at.
		return revertToPrevious(database, action, sessionID)
	}
}

// revertToPrevious reapplies the state an action overwrote, as a fresh
// logged update.
func revertToPrevious(database *db.DB, action *models.ActionLog, sessionID string) error {
	if action.PreviousData == "" {
		return fmt.Errorf("no previous state recorded for %s %s", action.EntityType, action.EntityID)
	}

	switch action.EntityType {
	case "task":
		var t models.Task
		if err := json.Unmarshal([]byte(action.PreviousData), &t); err != nil {
			return fmt.Errorf("parse previous state: %w", err)
		}
		return database.UpdateTaskLogged(&t, sessionID)
	case "subtask":
		var s models.Subtask
		if err := json.Unmarshal([]byte(action.PreviousData), &s); err != nil {
			return fmt.Errorf("parse previous state: %w", err)
		}
		return database.UpdateSubtaskLogged(&s, sessionID)
	case "listing":
		var l models.Listing
		if err := json.Unmarshal([]byte(action.PreviousData), &l); err != nil {
			return fmt.Errorf("parse previous state: %w", err)
		}
		return database.UpdateListingLogged(&l, sessionID)
	case "property":
		var p models.Property
		if err := json.Unmarshal([]byte(action.PreviousData), &p); err != nil {
			return fmt.Errorf("parse previous state: %w", err)
		}
		return database.UpdatePropertyLogged(&p, sessionID)
	case "contact":
		var c models.Contact
		if err := json.Unmarshal([]byte(action.PreviousData), &c); err != nil {
			return fmt.Errorf("parse previous state: %w", err)
		}
		return database.UpdateContactLogged(&c, sessionID)
	case "realtor":
		var r models.Realtor
		if err := json.Unmarshal([]byte(action.PreviousData), &r); err != nil {
			return fmt.Errorf("parse previous state: %w", err)
		}
		return database.UpdateRealtorLogged(&r, sessionID)
	case "user":
		var u models.User
		if err := json.Unmarshal([]byte(action.PreviousData), &u); err != nil {
			return fmt.Errorf("parse previous state: %w", err)
		}
		return database.UpdateUserLogged(&u, sessionID)
	case "note":
		var n models.Note
		if err := json.Unmarshal([]byte(action.PreviousData), &n); err != nil {
			return fmt.Errorf("parse previous state: %w", err)
		}
		return database.UpdateNoteLogged(&n, sessionID)
	case "showing":
		var s models.Showing
		if err := json.Unmarshal([]byte(action.PreviousData), &s); err != nil {
			return fmt.Errorf("parse previous state: %w", err)
		}
		return database.UpdateShowingLogged(&s, sessionID)
	case "activity", "status_change":
		return fmt.Errorf("undo not supported for %s", action.EntityType)
	default:
		return fmt.Errorf("unknown entity type: %s", action.EntityType)
	}
}

func init() {
	undoCmd.Flags().Bool("list", false, "Show recent actions for this session")
	undoCmd.Flags().Bool("all", false, "With --list, show actions from all sessions")
	rootCmd.AddCommand(undoCmd)
}
