package cmd

import (
	"fmt"
	"time"

	"github.com/harper/dispatch/internal/db"
	"github.com/harper/dispatch/internal/models"
	"github.com/harper/dispatch/internal/output"
	"github.com/spf13/cobra"
)

var showingCmd = &cobra.Command{
	Use:     "showing",
	Short:   "Schedule and track property showings",
	GroupID: "listings",
}

var showingScheduleCmd = &cobra.Command{
	Use:   "schedule <listing-id> <when>",
	Short: "Schedule a showing",
	Long: `Schedule a showing for a listing. <when> accepts "2006-01-02 15:04"
or RFC3339.

Examples:
  dispatch showing schedule ls-abc1 "2026-09-04 14:30" --contact ct-42
  dispatch showing schedule ls-abc1 2026-09-04T14:30:00Z --duration 45`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		database, sess, err := openWorkspace()
		if err != nil {
			return err
		}
		defer database.Close()

		listingID := db.NormalizeListingID(args[0])
		listing, err := database.GetListing(listingID)
		if err != nil {
			output.Error("get listing: %v", err)
			return err
		}
		if listing == nil {
			output.Error("listing not found: %s", listingID)
			return fmt.Errorf("not found")
		}

		when, err := parseShowingTime(args[1])
		if err != nil {
			output.Error("invalid time %q: %v", args[1], err)
			return err
		}

		contactID, _ := cmd.Flags().GetString("contact")
		realtorID, _ := cmd.Flags().GetString("realtor")
		duration, _ := cmd.Flags().GetInt("duration")

		showing := &models.Showing{
			ListingID:   listingID,
			ScheduledAt: when,
			DurationMin: duration,
			Status:      models.ShowingScheduled,
		}
		if contactID != "" {
			showing.ContactID = db.NormalizeEntityID("contact", contactID)
		}
		if realtorID != "" {
			showing.RealtorID = db.NormalizeEntityID("realtor", realtorID)
		}

		if err := database.CreateShowingLogged(showing, sess.ID); err != nil {
			output.Error("create showing: %v", err)
			return err
		}

		triggerAutoSync(cmd)
		fmt.Println(output.FormatShowingShort(showing))
		return nil
	},
}

var showingCompleteCmd = &cobra.Command{
	Use:   "complete <id>",
	Short: "Mark a showing completed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		database, sess, err := openWorkspace()
		if err != nil {
			return err
		}
		defer database.Close()

		id := db.NormalizeEntityID("showing", args[0])
		showing, err := database.GetShowing(id)
		if err != nil {
			output.Error("get showing: %v", err)
			return err
		}
		if showing == nil {
			output.Error("showing not found: %s", id)
			return fmt.Errorf("not found")
		}

		feedback, _ := cmd.Flags().GetString("feedback")
		noShow, _ := cmd.Flags().GetBool("no-show")

		if noShow {
			showing.Status = models.ShowingNoShow
		} else {
			showing.Status = models.ShowingCompleted
		}
		if feedback != "" {
			showing.Feedback = feedback
		}

		if err := database.UpdateShowingLogged(showing, sess.ID); err != nil {
			output.Error("update showing: %v", err)
			return err
		}

		triggerAutoSync(cmd)
		output.Success("✓ showing %s %s", showing.ID, showing.Status)
		return nil
	},
}

var showingListCmd = &cobra.Command{
	Use:     "list [listing-id]",
	Aliases: []string{"ls"},
	Short:   "List showings",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		database, _, err := openWorkspace()
		if err != nil {
			return err
		}
		defer database.Close()

		var listingID string
		if len(args) == 1 {
			listingID = db.NormalizeListingID(args[0])
		}

		statusStr, _ := cmd.Flags().GetString("status")
		var status models.ShowingStatus
		if statusStr != "" {
			status = models.ShowingStatus(statusStr)
			if !models.IsValidShowingStatus(status) {
				output.Error("invalid showing status %q", statusStr)
				return fmt.Errorf("invalid status: %s", statusStr)
			}
		}

		showings, err := database.ListShowings(listingID, status)
		if err != nil {
			output.Error("list showings: %v", err)
			return err
		}

		jsonOutput, _ := cmd.Flags().GetBool("json")
		if jsonOutput {
			return output.JSON(showings)
		}

		if len(showings) == 0 {
			fmt.Println("No showings.")
			return nil
		}
		for i := range showings {
			fmt.Println(output.FormatShowingShort(&showings[i]))
		}
		return nil
	},
}

func parseShowingTime(s string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02 15:04", time.RFC3339} {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("want \"2006-01-02 15:04\" or RFC3339")
}

func init() {
	showingScheduleCmd.Flags().StringP("contact", "c", "", "Contact attending the showing")
	showingScheduleCmd.Flags().StringP("realtor", "r", "", "Agent leading the showing")
	showingScheduleCmd.Flags().Int("duration", 30, "Duration in minutes")

	showingCompleteCmd.Flags().String("feedback", "", "Showing feedback")
	showingCompleteCmd.Flags().Bool("no-show", false, "Mark as a no-show instead")

	showingListCmd.Flags().StringP("status", "s", "", "Filter by status")
	showingListCmd.Flags().Bool("json", false, "JSON output")

	showingCmd.AddCommand(showingScheduleCmd, showingCompleteCmd, showingListCmd)
	rootCmd.AddCommand(showingCmd)
}
