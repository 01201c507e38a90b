package cmd

import (
	"fmt"

	versionpkg "github.com/harper/dispatch/internal/version"
	"github.com/spf13/cobra"
)

var versionCheckFlag bool

var versionCmd = &cobra.Command{
	Use:     "version",
	Short:   "Show the dispatch version",
	GroupID: "system",
	Long: `Prints the running version. With --check, queries GitHub for a newer
release (results are cached for a few hours).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("dispatch %s\n", version)
		if !versionCheckFlag {
			return nil
		}

		result := versionpkg.CheckCached(version)
		if result.Error != nil {
			fmt.Printf("update check failed: %v\n", result.Error)
			return nil
		}
		if result.HasUpdate {
			fmt.Printf("update available: %s\n", result.LatestVersion)
			fmt.Printf("  %s\n", versionpkg.UpdateCommand(result.LatestVersion))
		} else {
			fmt.Println("up to date")
		}
		return nil
	},
}

func init() {
	versionCmd.Flags().BoolVar(&versionCheckFlag, "check", false, "Check GitHub for a newer release")
	rootCmd.AddCommand(versionCmd)
}
