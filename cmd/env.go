package cmd

import (
	"fmt"

	"github.com/harper/dispatch/internal/output"
	"github.com/harper/dispatch/internal/syncconfig"
	"github.com/spf13/cobra"
)

var envCmd = &cobra.Command{
	Use:     "env [local|production]",
	Short:   "Show or switch the sync environment",
	GroupID: "sync",
	Long: `Without arguments, shows the active environment and endpoints.
With an argument, switches the config file's environment.

"local" targets the Docker dev stack at http://127.0.0.1:54321 with a
baked-in dev token. "production" uses the URL and token from login.

DISPATCH_ENV, DISPATCH_SYNC_URL, and DISPATCH_ANON_KEY override the config.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			env := syncconfig.GetEnvironment()
			fmt.Printf("Environment: %s\n", env)
			fmt.Printf("Server URL:  %s\n", syncconfig.GetServerURL())
			if syncconfig.IsAuthenticated() {
				fmt.Println("Token:       configured")
			} else {
				fmt.Println("Token:       not configured (run: dispatch login)")
			}
			return nil
		}

		env := args[0]
		if env != syncconfig.EnvLocal && env != syncconfig.EnvProduction {
			output.Error("invalid environment %q (local, production)", env)
			return fmt.Errorf("invalid environment: %s", env)
		}

		cfg, err := syncconfig.LoadConfig()
		if err != nil {
			output.Error("load config: %v", err)
			return err
		}
		cfg.Sync.Environment = env
		if err := syncconfig.SaveConfig(cfg); err != nil {
			output.Error("save config: %v", err)
			return err
		}

		output.Success("Environment set to %s", env)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(envCmd)
}
