package cmd

import (
	"fmt"

	"github.com/harper/dispatch/internal/models"
	"github.com/harper/dispatch/internal/output"
	"github.com/spf13/cobra"
)

var contactCmd = &cobra.Command{
	Use:     "contact",
	Short:   "Manage buyers, sellers, and vendors",
	GroupID: "people",
}

var contactAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Add a contact",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		database, sess, err := openWorkspace()
		if err != nil {
			return err
		}
		defer database.Close()

		kindStr, _ := cmd.Flags().GetString("kind")
		kind := models.ContactKind(kindStr)
		if !models.IsValidContactKind(kind) {
			output.Error("invalid contact kind %q (buyer, seller, vendor, other)", kindStr)
			return fmt.Errorf("invalid kind: %s", kindStr)
		}

		phone, _ := cmd.Flags().GetString("phone")
		email, _ := cmd.Flags().GetString("email")
		notes, _ := cmd.Flags().GetString("notes")

		contact := &models.Contact{
			Name:  args[0],
			Kind:  kind,
			Phone: phone,
			Email: email,
			Notes: notes,
		}

		if err := database.CreateContactLogged(contact, sess.ID); err != nil {
			output.Error("create contact: %v", err)
			return err
		}

		triggerAutoSync(cmd)
		fmt.Printf("%s  %s [%s]\n", contact.ID, contact.Name, contact.Kind)
		return nil
	},
}

var contactListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List contacts",
	RunE: func(cmd *cobra.Command, args []string) error {
		database, _, err := openWorkspace()
		if err != nil {
			return err
		}
		defer database.Close()

		kindStr, _ := cmd.Flags().GetString("kind")
		var kind models.ContactKind
		if kindStr != "" {
			kind = models.ContactKind(kindStr)
			if !models.IsValidContactKind(kind) {
				output.Error("invalid contact kind %q", kindStr)
				return fmt.Errorf("invalid kind: %s", kindStr)
			}
		}

		contacts, err := database.ListContacts(kind)
		if err != nil {
			output.Error("list contacts: %v", err)
			return err
		}

		jsonOutput, _ := cmd.Flags().GetBool("json")
		if jsonOutput {
			return output.JSON(contacts)
		}

		if len(contacts) == 0 {
			fmt.Println("No contacts.")
			return nil
		}
		for _, c := range contacts {
			line := fmt.Sprintf("%s  %-24s [%s]", c.ID, c.Name, c.Kind)
			if c.Phone != "" {
				line += "  " + c.Phone
			}
			if c.Email != "" {
				line += "  " + c.Email
			}
			fmt.Println(line)
		}
		return nil
	},
}

func init() {
	contactAddCmd.Flags().StringP("kind", "k", "buyer", "Contact kind (buyer, seller, vendor, other)")
	contactAddCmd.Flags().String("phone", "", "Phone number")
	contactAddCmd.Flags().String("email", "", "Email address")
	contactAddCmd.Flags().String("notes", "", "Free-form notes")

	contactListCmd.Flags().StringP("kind", "k", "", "Filter by kind")
	contactListCmd.Flags().Bool("json", false, "JSON output")

	contactCmd.AddCommand(contactAddCmd, contactListCmd)
	rootCmd.AddCommand(contactCmd)
}
