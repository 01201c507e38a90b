package cmd

import (
	"fmt"

	"github.com/harper/dispatch/internal/models"
	"github.com/harper/dispatch/internal/output"
	"github.com/spf13/cobra"
)

var realtorCmd = &cobra.Command{
	Use:     "realtor",
	Short:   "Manage the agent directory",
	GroupID: "people",
}

var realtorAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add an agent to the directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		database, sess, err := openWorkspace()
		if err != nil {
			return err
		}
		defer database.Close()

		license, _ := cmd.Flags().GetString("license")
		phone, _ := cmd.Flags().GetString("phone")
		email, _ := cmd.Flags().GetString("email")
		brokerage, _ := cmd.Flags().GetString("brokerage")
		userID, _ := cmd.Flags().GetString("user")

		realtor := &models.Realtor{
			Name:      args[0],
			UserID:    userID,
			LicenseNo: license,
			Phone:     phone,
			Email:     email,
			Brokerage: brokerage,
		}

		if err := database.CreateRealtorLogged(realtor, sess.ID); err != nil {
			output.Error("create realtor: %v", err)
			return err
		}

		triggerAutoSync(cmd)
		fmt.Printf("%s  %s\n", realtor.ID, realtor.Name)
		return nil
	},
}

var realtorListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List agents",
	RunE: func(cmd *cobra.Command, args []string) error {
		database, _, err := openWorkspace()
		if err != nil {
			return err
		}
		defer database.Close()

		realtors, err := database.ListRealtors()
		if err != nil {
			output.Error("list realtors: %v", err)
			return err
		}

		jsonOutput, _ := cmd.Flags().GetBool("json")
		if jsonOutput {
			return output.JSON(realtors)
		}

		if len(realtors) == 0 {
			fmt.Println("No realtors.")
			return nil
		}
		for _, r := range realtors {
			line := fmt.Sprintf("%s  %s", r.ID, r.Name)
			if r.Brokerage != "" {
				line += "  (" + r.Brokerage + ")"
			}
			if r.Phone != "" {
				line += "  " + r.Phone
			}
			fmt.Println(line)
		}
		return nil
	},
}

func init() {
	realtorAddCmd.Flags().String("license", "", "License number")
	realtorAddCmd.Flags().String("phone", "", "Phone number")
	realtorAddCmd.Flags().String("email", "", "Email address")
	realtorAddCmd.Flags().String("brokerage", "", "Brokerage name")
	realtorAddCmd.Flags().String("user", "", "Linked user account ID")

	realtorListCmd.Flags().Bool("json", false, "JSON output")

	realtorCmd.AddCommand(realtorAddCmd, realtorListCmd)
	rootCmd.AddCommand(realtorCmd)
}
