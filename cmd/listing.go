package cmd

import (
	"fmt"

	"github.com/harper/dispatch/internal/db"
	"github.com/harper/dispatch/internal/models"
	"github.com/harper/dispatch/internal/output"
	"github.com/spf13/cobra"
)

var listingCmd = &cobra.Command{
	Use:     "listing",
	Short:   "Manage listings",
	GroupID: "listings",
}

var listingAddCmd = &cobra.Command{
	Use:   "add <property-id>",
	Short: "Create a listing for a property",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		database, sess, err := openWorkspace()
		if err != nil {
			return err
		}
		defer database.Close()

		propertyID := db.NormalizeEntityID("property", args[0])
		prop, err := database.GetProperty(propertyID)
		if err != nil {
			output.Error("get property: %v", err)
			return err
		}
		if prop == nil {
			output.Error("property not found: %s", propertyID)
			return fmt.Errorf("not found")
		}

		realtorID, _ := cmd.Flags().GetString("realtor")
		price, _ := cmd.Flags().GetInt64("price")
		commission, _ := cmd.Flags().GetFloat64("commission")
		mls, _ := cmd.Flags().GetString("mls")

		listing := &models.Listing{
			PropertyID:    propertyID,
			Status:        models.ListingDraft,
			ListPrice:     price * 100, // stored in cents
			CommissionPct: commission,
			MLSNumber:     mls,
		}
		if realtorID != "" {
			listing.RealtorID = db.NormalizeEntityID("realtor", realtorID)
		}

		if err := database.CreateListingLogged(listing, sess.ID); err != nil {
			output.Error("create listing: %v", err)
			return err
		}

		triggerAutoSync(cmd)

		jsonOutput, _ := cmd.Flags().GetBool("json")
		if jsonOutput {
			return output.JSON(listing)
		}
		fmt.Println(output.FormatListingShort(listing))
		return nil
	},
}

var listingListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List listings",
	RunE: func(cmd *cobra.Command, args []string) error {
		database, _, err := openWorkspace()
		if err != nil {
			return err
		}
		defer database.Close()

		statusStr, _ := cmd.Flags().GetString("status")
		realtorID, _ := cmd.Flags().GetString("realtor")
		limit, _ := cmd.Flags().GetInt("limit")

		opts := db.ListListingsOptions{
			RealtorID: realtorID,
			Limit:     limit,
		}
		if statusStr != "" {
			status := models.NormalizeListingStatus(statusStr)
			if !models.IsValidListingStatus(status) {
				output.Error("invalid status %q", statusStr)
				return fmt.Errorf("invalid status: %s", statusStr)
			}
			opts.Status = []models.ListingStatus{status}
		}

		listings, err := database.ListListings(opts)
		if err != nil {
			output.Error("list listings: %v", err)
			return err
		}

		jsonOutput, _ := cmd.Flags().GetBool("json")
		if jsonOutput {
			return output.JSON(listings)
		}

		if len(listings) == 0 {
			fmt.Println("No listings.")
			return nil
		}
		for i := range listings {
			fmt.Println(output.FormatListingShort(&listings[i]))
		}
		return nil
	},
}

var listingStatusCmd = &cobra.Command{
	Use:   "status <id> <status>",
	Short: "Move a listing through its lifecycle",
	Long: `Transition a listing to a new status. Valid transitions:
  draft -> active | withdrawn
  active -> pending | withdrawn
  pending -> sold | active
  withdrawn -> active

Each transition records a status history row and an activity feed entry.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		database, sess, err := openWorkspace()
		if err != nil {
			return err
		}
		defer database.Close()

		to := models.NormalizeListingStatus(args[1])
		if !models.IsValidListingStatus(to) {
			output.Error("invalid status %q", args[1])
			return fmt.Errorf("invalid status: %s", args[1])
		}

		reason, _ := cmd.Flags().GetString("reason")
		by, _ := cmd.Flags().GetString("by")

		change, err := database.TransitionListingLogged(args[0], to, by, reason, sess.ID)
		if err != nil {
			output.Error("%v", err)
			return err
		}

		triggerAutoSync(cmd)
		fmt.Printf("%s: %s -> %s\n", change.ListingID,
			output.FormatListingStatus(change.FromStatus),
			output.FormatListingStatus(change.ToStatus))
		return nil
	},
}

var listingHistoryCmd = &cobra.Command{
	Use:   "history <id>",
	Short: "Show a listing's status history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		database, _, err := openWorkspace()
		if err != nil {
			return err
		}
		defer database.Close()

		id := db.NormalizeListingID(args[0])
		changes, err := database.GetStatusChanges(id)
		if err != nil {
			output.Error("get status history: %v", err)
			return err
		}

		if len(changes) == 0 {
			fmt.Println("No status changes.")
			return nil
		}
		for _, c := range changes {
			line := fmt.Sprintf("%s  %s -> %s",
				c.OccurredAt.Format("2006-01-02 15:04"), c.FromStatus, c.ToStatus)
			if c.ChangedBy != "" {
				line += "  by " + c.ChangedBy
			}
			if c.Reason != "" {
				line += "  (" + c.Reason + ")"
			}
			fmt.Println(line)
		}
		return nil
	},
}

func init() {
	listingAddCmd.Flags().StringP("realtor", "r", "", "Listing agent")
	listingAddCmd.Flags().Int64P("price", "p", 0, "List price in dollars")
	listingAddCmd.Flags().Float64P("commission", "c", 0, "Commission percentage")
	listingAddCmd.Flags().String("mls", "", "MLS number")
	listingAddCmd.Flags().Bool("json", false, "JSON output")

	listingListCmd.Flags().StringP("status", "s", "", "Filter by status")
	listingListCmd.Flags().StringP("realtor", "r", "", "Filter by listing agent")
	listingListCmd.Flags().IntP("limit", "n", 0, "Max listings to show")
	listingListCmd.Flags().Bool("json", false, "JSON output")

	listingStatusCmd.Flags().String("reason", "", "Reason for the transition")
	listingStatusCmd.Flags().String("by", "", "User making the change")

	listingCmd.AddCommand(listingAddCmd, listingListCmd, listingStatusCmd, listingHistoryCmd)
	rootCmd.AddCommand(listingCmd)
}
