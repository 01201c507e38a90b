package cmd

import (
	"fmt"

	"github.com/harper/dispatch/internal/db"
	"github.com/harper/dispatch/internal/models"
	"github.com/harper/dispatch/internal/output"
	"github.com/spf13/cobra"
)

var propertyCmd = &cobra.Command{
	Use:     "property",
	Short:   "Manage properties",
	GroupID: "listings",
}

var propertyAddCmd = &cobra.Command{
	Use:   "add <address>",
	Short: "Add a property",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		database, sess, err := openWorkspace()
		if err != nil {
			return err
		}
		defer database.Close()

		typeStr, _ := cmd.Flags().GetString("type")
		propType := models.PropertyType(typeStr)
		if !models.IsValidPropertyType(propType) {
			output.Error("invalid property type %q (house, condo, townhouse, land, multi_family)", typeStr)
			return fmt.Errorf("invalid type: %s", typeStr)
		}

		city, _ := cmd.Flags().GetString("city")
		state, _ := cmd.Flags().GetString("state")
		postal, _ := cmd.Flags().GetString("postal")
		unit, _ := cmd.Flags().GetString("unit")
		beds, _ := cmd.Flags().GetInt("beds")
		baths, _ := cmd.Flags().GetFloat64("baths")
		sqft, _ := cmd.Flags().GetInt("sqft")
		year, _ := cmd.Flags().GetInt("year")

		prop := &models.Property{
			Address:      args[0],
			Unit:         unit,
			City:         city,
			State:        state,
			PostalCode:   postal,
			PropertyType: propType,
			Beds:         beds,
			Baths:        baths,
			Sqft:         sqft,
			YearBuilt:    year,
		}

		if err := database.CreatePropertyLogged(prop, sess.ID); err != nil {
			output.Error("create property: %v", err)
			return err
		}

		triggerAutoSync(cmd)

		jsonOutput, _ := cmd.Flags().GetBool("json")
		if jsonOutput {
			return output.JSON(prop)
		}
		fmt.Printf("%s  %s\n", prop.ID, prop.Address)
		return nil
	},
}

var propertyListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List properties",
	RunE: func(cmd *cobra.Command, args []string) error {
		database, _, err := openWorkspace()
		if err != nil {
			return err
		}
		defer database.Close()

		city, _ := cmd.Flags().GetString("city")
		typeStr, _ := cmd.Flags().GetString("type")
		search, _ := cmd.Flags().GetString("search")
		limit, _ := cmd.Flags().GetInt("limit")

		opts := db.ListPropertiesOptions{
			City:   city,
			Search: search,
			Limit:  limit,
		}
		if typeStr != "" {
			opts.PropertyType = models.PropertyType(typeStr)
		}

		props, err := database.ListProperties(opts)
		if err != nil {
			output.Error("list properties: %v", err)
			return err
		}

		jsonOutput, _ := cmd.Flags().GetBool("json")
		if jsonOutput {
			return output.JSON(props)
		}

		if len(props) == 0 {
			fmt.Println("No properties.")
			return nil
		}
		for _, p := range props {
			line := fmt.Sprintf("%s  %s", p.ID, p.Address)
			if p.Unit != "" {
				line += " #" + p.Unit
			}
			if p.City != "" {
				line += ", " + p.City
			}
			line += fmt.Sprintf("  [%s]", p.PropertyType)
			if p.Beds > 0 {
				line += fmt.Sprintf("  %dbd/%.1fba", p.Beds, p.Baths)
			}
			fmt.Println(line)
		}
		return nil
	},
}

func init() {
	propertyAddCmd.Flags().StringP("type", "t", "house", "Property type")
	propertyAddCmd.Flags().String("city", "", "City")
	propertyAddCmd.Flags().String("state", "", "State")
	propertyAddCmd.Flags().String("postal", "", "Postal code")
	propertyAddCmd.Flags().String("unit", "", "Unit number")
	propertyAddCmd.Flags().Int("beds", 0, "Bedrooms")
	propertyAddCmd.Flags().Float64("baths", 0, "Bathrooms")
	propertyAddCmd.Flags().Int("sqft", 0, "Square footage")
	propertyAddCmd.Flags().Int("year", 0, "Year built")
	propertyAddCmd.Flags().Bool("json", false, "JSON output")

	propertyListCmd.Flags().String("city", "", "Filter by city")
	propertyListCmd.Flags().StringP("type", "t", "", "Filter by property type")
	propertyListCmd.Flags().String("search", "", "Search address")
	propertyListCmd.Flags().IntP("limit", "n", 0, "Max properties to show")
	propertyListCmd.Flags().Bool("json", false, "JSON output")

	propertyCmd.AddCommand(propertyAddCmd, propertyListCmd)
	rootCmd.AddCommand(propertyCmd)
}
