package cmd

import (
	"fmt"

	"github.com/harper/dispatch/internal/db"
	"github.com/harper/dispatch/internal/models"
	"github.com/harper/dispatch/internal/output"
	"github.com/spf13/cobra"
)

var subtaskCmd = &cobra.Command{
	Use:     "subtask",
	Short:   "Manage task checklists",
	GroupID: "work",
}

var subtaskAddCmd = &cobra.Command{
	Use:   "add <task-id> <title>",
	Short: "Add a checklist item to a task",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		database, sess, err := openWorkspace()
		if err != nil {
			return err
		}
		defer database.Close()

		taskID := db.NormalizeTaskID(args[0])
		task, err := database.GetTask(taskID)
		if err != nil {
			output.Error("get task: %v", err)
			return err
		}
		if task == nil {
			output.Error("task not found: %s", taskID)
			return fmt.Errorf("not found")
		}

		existing, err := database.ListSubtasks(taskID)
		if err != nil {
			output.Error("list subtasks: %v", err)
			return err
		}

		sub := &models.Subtask{
			TaskID:   taskID,
			Title:    args[1],
			Position: len(existing) + 1,
		}
		if err := database.CreateSubtaskLogged(sub, sess.ID); err != nil {
			output.Error("create subtask: %v", err)
			return err
		}

		triggerAutoSync(cmd)
		fmt.Printf("%s  %s\n", sub.ID, sub.Title)
		return nil
	},
}

var subtaskDoneCmd = &cobra.Command{
	Use:   "done <id>",
	Short: "Check off a checklist item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		database, sess, err := openWorkspace()
		if err != nil {
			return err
		}
		defer database.Close()

		id := db.NormalizeEntityID("subtask", args[0])
		sub, err := database.GetSubtask(id)
		if err != nil {
			output.Error("get subtask: %v", err)
			return err
		}
		if sub == nil {
			output.Error("subtask not found: %s", id)
			return fmt.Errorf("not found")
		}

		sub.Done = true
		if err := database.UpdateSubtaskLogged(sub, sess.ID); err != nil {
			output.Error("update subtask: %v", err)
			return err
		}

		triggerAutoSync(cmd)
		output.Success("✓ %s", sub.Title)
		return nil
	},
}

func init() {
	subtaskCmd.AddCommand(subtaskAddCmd, subtaskDoneCmd)
	rootCmd.AddCommand(subtaskCmd)
}
