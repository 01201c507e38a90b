package cmd

import (
	"fmt"
	"time"

	"github.com/harper/dispatch/internal/db"
	"github.com/harper/dispatch/internal/models"
	"github.com/harper/dispatch/internal/output"
	"github.com/spf13/cobra"
)

var activityCmd = &cobra.Command{
	Use:     "activity",
	Short:   "Record and browse the team activity feed",
	GroupID: "work",
}

var activityLogCmd = &cobra.Command{
	Use:   "log <kind> <body>",
	Short: "Record an activity (call, email, meeting, showing, note)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		database, sess, err := openWorkspace()
		if err != nil {
			return err
		}
		defer database.Close()

		kind := models.ActivityKind(args[0])
		if !models.IsValidActivityKind(kind) {
			output.Error("invalid activity kind %q", args[0])
			return fmt.Errorf("invalid kind: %s", args[0])
		}

		actor, _ := cmd.Flags().GetString("actor")
		taskID, _ := cmd.Flags().GetString("task")
		listingID, _ := cmd.Flags().GetString("listing")
		contactID, _ := cmd.Flags().GetString("contact")

		act := &models.Activity{
			Kind:       kind,
			Body:       args[1],
			ActorID:    actor,
			OccurredAt: time.Now(),
		}
		if taskID != "" {
			act.TaskID = db.NormalizeTaskID(taskID)
		}
		if listingID != "" {
			act.ListingID = db.NormalizeListingID(listingID)
		}
		if contactID != "" {
			act.ContactID = db.NormalizeEntityID("contact", contactID)
		}

		if err := database.CreateActivityLogged(act, sess.ID); err != nil {
			output.Error("record activity: %v", err)
			return err
		}

		triggerAutoSync(cmd)
		fmt.Printf("%s  [%s] %s\n", act.ID, act.Kind, act.Body)
		return nil
	},
}

var activityFeedCmd = &cobra.Command{
	Use:   "feed",
	Short: "Show the activity feed, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		database, _, err := openWorkspace()
		if err != nil {
			return err
		}
		defer database.Close()

		kindStr, _ := cmd.Flags().GetString("kind")
		listingID, _ := cmd.Flags().GetString("listing")
		taskID, _ := cmd.Flags().GetString("task")
		sinceStr, _ := cmd.Flags().GetString("since")
		limit, _ := cmd.Flags().GetInt("limit")

		opts := db.ListActivitiesOptions{Limit: limit}
		if kindStr != "" {
			opts.Kind = models.ActivityKind(kindStr)
		}
		if listingID != "" {
			opts.ListingID = db.NormalizeListingID(listingID)
		}
		if taskID != "" {
			opts.TaskID = db.NormalizeTaskID(taskID)
		}
		if sinceStr != "" {
			d, err := time.ParseDuration(sinceStr)
			if err != nil {
				output.Error("invalid duration %q: %v", sinceStr, err)
				return err
			}
			opts.Since = time.Now().Add(-d)
		}

		activities, err := database.ListActivities(opts)
		if err != nil {
			output.Error("list activities: %v", err)
			return err
		}

		jsonOutput, _ := cmd.Flags().GetBool("json")
		if jsonOutput {
			return output.JSON(activities)
		}

		if len(activities) == 0 {
			fmt.Println("No activity.")
			return nil
		}
		for _, a := range activities {
			line := fmt.Sprintf("%s  [%-7s] %s", output.FormatTimeAgo(a.OccurredAt), a.Kind, a.Body)
			if a.ActorID != "" {
				line += "  by " + a.ActorID
			}
			fmt.Println(line)
		}
		return nil
	},
}

func init() {
	activityLogCmd.Flags().String("actor", "", "Acting user ID")
	activityLogCmd.Flags().StringP("task", "t", "", "Related task")
	activityLogCmd.Flags().StringP("listing", "l", "", "Related listing")
	activityLogCmd.Flags().StringP("contact", "c", "", "Related contact")

	activityFeedCmd.Flags().StringP("kind", "k", "", "Filter by kind")
	activityFeedCmd.Flags().StringP("listing", "l", "", "Filter by listing")
	activityFeedCmd.Flags().StringP("task", "t", "", "Filter by task")
	activityFeedCmd.Flags().String("since", "", "Only show activity from the last duration (e.g. 24h)")
	activityFeedCmd.Flags().IntP("limit", "n", 50, "Max entries to show")
	activityFeedCmd.Flags().Bool("json", false, "JSON output")

	activityCmd.AddCommand(activityLogCmd, activityFeedCmd)
	rootCmd.AddCommand(activityCmd)
}
