package cmd

import (
	"fmt"
	"strconv"

	"github.com/harper/dispatch/internal/output"
	"github.com/spf13/cobra"
)

var syncConflictsCmd = &cobra.Command{
	Use:   "conflicts",
	Short: "Show sync conflicts",
	Long: `Show records where a remote change overwrote concurrent local edits.
Both versions are retained; resolve marks a conflict as reviewed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		if limit <= 0 || limit > 1000 {
			output.Error("limit must be between 1 and 1000")
			return fmt.Errorf("invalid limit: %d", limit)
		}
		all, _ := cmd.Flags().GetBool("all")

		database, _, err := openWorkspace()
		if err != nil {
			return err
		}
		defer database.Close()

		conflicts, err := database.GetConflicts(limit, !all)
		if err != nil {
			output.Error("query conflicts: %v", err)
			return err
		}

		jsonOutput, _ := cmd.Flags().GetBool("json")
		if jsonOutput {
			return output.JSON(conflicts)
		}

		if len(conflicts) == 0 {
			fmt.Println("No sync conflicts.")
			return nil
		}

		fmt.Printf("  %-6s %-21s %-15s %-12s %s\n", "ID", "TIME", "TYPE", "ENTITY", "SEQ")
		for _, c := range conflicts {
			marker := " "
			if c.ResolvedAt != nil {
				marker = "✓"
			}
			fmt.Printf("%s %-6d %-21s %-15s %-12s %d\n",
				marker, c.ID,
				c.OverwrittenAt.Format("2006-01-02 15:04:05"),
				c.EntityType,
				c.EntityID,
				c.ServerSeq,
			)
		}
		return nil
	},
}

var syncConflictsResolveCmd = &cobra.Command{
	Use:   "resolve <id>",
	Short: "Mark a conflict as reviewed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			output.Error("invalid conflict id %q", args[0])
			return err
		}

		database, _, err := openWorkspace()
		if err != nil {
			return err
		}
		defer database.Close()

		if err := database.ResolveConflict(id); err != nil {
			output.Error("resolve conflict: %v", err)
			return err
		}

		output.Success("Conflict %d resolved.", id)
		return nil
	},
}

func init() {
	syncConflictsCmd.Flags().Int("limit", 20, "Max conflicts to show")
	syncConflictsCmd.Flags().Bool("all", false, "Include resolved conflicts")
	syncConflictsCmd.Flags().Bool("json", false, "JSON output")

	syncConflictsCmd.AddCommand(syncConflictsResolveCmd)
	syncCmd.AddCommand(syncConflictsCmd)
}
