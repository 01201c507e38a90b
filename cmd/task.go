package cmd

import (
	"fmt"
	"time"

	"github.com/harper/dispatch/internal/dateparse"
	"github.com/harper/dispatch/internal/db"
	"github.com/harper/dispatch/internal/input"
	"github.com/harper/dispatch/internal/models"
	"github.com/harper/dispatch/internal/output"
	"github.com/spf13/cobra"
)

var taskCmd = &cobra.Command{
	Use:     "task",
	Short:   "Manage tasks",
	GroupID: "work",
}

var taskAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Add a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		database, sess, err := openWorkspace()
		if err != nil {
			return err
		}
		defer database.Close()

		priority, _ := cmd.Flags().GetString("priority")
		assignee, _ := cmd.Flags().GetString("assignee")
		listingID, _ := cmd.Flags().GetString("listing")
		description, _ := cmd.Flags().GetString("description")
		tags, _ := cmd.Flags().GetStringSlice("tag")
		dueStr, _ := cmd.Flags().GetString("due")

		if description != "" {
			description, err = input.ExpandText(description)
			if err != nil {
				output.Error("read description: %v", err)
				return err
			}
		}

		task := &models.Task{
			Title:       args[0],
			Description: description,
			Priority:    models.NormalizePriority(priority),
			AssigneeID:  assignee,
			Tags:        tags,
		}
		if listingID != "" {
			task.ListingID = db.NormalizeListingID(listingID)
		}
		if dueStr != "" {
			iso, err := dateparse.ParseDate(dueStr)
			if err != nil {
				output.Error("invalid due date %q (want YYYY-MM-DD, +7d, friday, ...)", dueStr)
				return err
			}
			due, _ := time.Parse("2006-01-02", iso)
			task.DueAt = &due
		}

		if err := database.CreateTaskLogged(task, sess.ID); err != nil {
			output.Error("create task: %v", err)
			return err
		}

		triggerAutoSync(cmd)

		jsonOutput, _ := cmd.Flags().GetBool("json")
		if jsonOutput {
			return output.JSON(task)
		}
		fmt.Println(output.FormatTaskShort(task))
		return nil
	},
}

var taskListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List tasks",
	RunE: func(cmd *cobra.Command, args []string) error {
		database, _, err := openWorkspace()
		if err != nil {
			return err
		}
		defer database.Close()

		statusStr, _ := cmd.Flags().GetString("status")
		assignee, _ := cmd.Flags().GetString("assignee")
		listingID, _ := cmd.Flags().GetString("listing")
		all, _ := cmd.Flags().GetBool("all")
		limit, _ := cmd.Flags().GetInt("limit")

		opts := db.ListTasksOptions{
			AssigneeID: assignee,
			ListingID:  listingID,
			Limit:      limit,
		}
		if statusStr != "" {
			status := models.TaskStatus(statusStr)
			if !models.IsValidTaskStatus(status) {
				output.Error("invalid status %q", statusStr)
				return fmt.Errorf("invalid status: %s", statusStr)
			}
			opts.Status = []models.TaskStatus{status}
		} else if !all {
			opts.Status = []models.TaskStatus{models.TaskOpen, models.TaskInProgress}
		}

		tasks, err := database.ListTasks(opts)
		if err != nil {
			output.Error("list tasks: %v", err)
			return err
		}

		jsonOutput, _ := cmd.Flags().GetBool("json")
		if jsonOutput {
			return output.JSON(tasks)
		}

		if len(tasks) == 0 {
			fmt.Println("No tasks.")
			return nil
		}
		for i := range tasks {
			fmt.Println(output.FormatTaskShort(&tasks[i]))
		}
		return nil
	},
}

var taskDoneCmd = &cobra.Command{
	Use:   "done <id>",
	Short: "Mark a task done",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		database, sess, err := openWorkspace()
		if err != nil {
			return err
		}
		defer database.Close()

		id := db.NormalizeTaskID(args[0])
		task, err := database.GetTask(id)
		if err != nil {
			output.Error("get task: %v", err)
			return err
		}
		if task == nil {
			output.Error("task not found: %s", id)
			return fmt.Errorf("not found")
		}

		now := time.Now()
		task.Status = models.TaskDone
		task.CompletedAt = &now

		if err := database.UpdateTaskLogged(task, sess.ID); err != nil {
			output.Error("update task: %v", err)
			return err
		}

		triggerAutoSync(cmd)
		output.Success("✓ %s done", task.ID)
		return nil
	},
}

var taskAssignCmd = &cobra.Command{
	Use:   "assign <id> <user>",
	Short: "Assign a task to a team member",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		database, sess, err := openWorkspace()
		if err != nil {
			return err
		}
		defer database.Close()

		id := db.NormalizeTaskID(args[0])
		task, err := database.GetTask(id)
		if err != nil {
			output.Error("get task: %v", err)
			return err
		}
		if task == nil {
			output.Error("task not found: %s", id)
			return fmt.Errorf("not found")
		}

		task.AssigneeID = db.NormalizeEntityID("user", args[1])

		if err := database.UpdateTaskLogged(task, sess.ID); err != nil {
			output.Error("update task: %v", err)
			return err
		}

		triggerAutoSync(cmd)
		fmt.Printf("%s assigned to %s\n", task.ID, task.AssigneeID)
		return nil
	},
}

func init() {
	taskAddCmd.Flags().StringP("priority", "p", "P2", "Priority (P0-P3)")
	taskAddCmd.Flags().StringP("assignee", "a", "", "Assignee user ID")
	taskAddCmd.Flags().StringP("listing", "l", "", "Listing this task belongs to")
	taskAddCmd.Flags().StringP("description", "d", "", "Task description")
	taskAddCmd.Flags().StringSlice("tag", nil, "Tags (repeatable)")
	taskAddCmd.Flags().String("due", "", "Due date (YYYY-MM-DD, +7d, +2w, friday, tomorrow)")
	taskAddCmd.Flags().Bool("json", false, "JSON output")

	taskListCmd.Flags().StringP("status", "s", "", "Filter by status")
	taskListCmd.Flags().StringP("assignee", "a", "", "Filter by assignee")
	taskListCmd.Flags().StringP("listing", "l", "", "Filter by listing")
	taskListCmd.Flags().Bool("all", false, "Include done and cancelled tasks")
	taskListCmd.Flags().IntP("limit", "n", 0, "Max tasks to show")
	taskListCmd.Flags().Bool("json", false, "JSON output")

	taskCmd.AddCommand(taskAddCmd, taskListCmd, taskDoneCmd, taskAssignCmd)
	rootCmd.AddCommand(taskCmd)
}
