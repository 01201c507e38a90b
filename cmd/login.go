package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/harper/dispatch/internal/output"
	"github.com/harper/dispatch/internal/syncconfig"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var loginCmd = &cobra.Command{
	Use:     "login",
	Short:   "Store team credentials for sync",
	GroupID: "sync",
	Long: `Store the team bearer token dispatch uses to talk to the sync server.
The token is read with a hidden prompt and written to
~/.config/dispatch/auth.json with 0600 permissions.

In the local environment the dev token is baked in and login is optional.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		reader := bufio.NewReader(os.Stdin)

		teamID, _ := cmd.Flags().GetString("team")
		if teamID == "" {
			fmt.Print("Team ID: ")
			line, _ := reader.ReadString('\n')
			teamID = strings.TrimSpace(line)
		}
		if teamID == "" {
			output.Error("team ID is required")
			return fmt.Errorf("missing team")
		}

		email, _ := cmd.Flags().GetString("email")
		if email == "" {
			fmt.Print("Email (optional): ")
			line, _ := reader.ReadString('\n')
			email = strings.TrimSpace(line)
		}

		serverURL, _ := cmd.Flags().GetString("server")
		if serverURL == "" && syncconfig.GetEnvironment() == syncconfig.EnvProduction {
			fmt.Print("Server URL: ")
			line, _ := reader.ReadString('\n')
			serverURL = strings.TrimSpace(line)
		}

		fmt.Print("Team token: ")
		keyBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			output.Error("read token: %v", err)
			return err
		}
		anonKey := strings.TrimSpace(string(keyBytes))
		if anonKey == "" {
			output.Error("token is required")
			return fmt.Errorf("missing token")
		}

		deviceID, err := syncconfig.GetDeviceID()
		if err != nil {
			output.Error("device id: %v", err)
			return err
		}

		creds := &syncconfig.AuthCredentials{
			AnonKey:   anonKey,
			TeamID:    teamID,
			Email:     email,
			ServerURL: serverURL,
			DeviceID:  deviceID,
		}
		if err := syncconfig.SaveAuth(creds); err != nil {
			output.Error("save credentials: %v", err)
			return err
		}

		output.Success("Logged in to team %s (device %s)", teamID, deviceID)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:     "logout",
	Short:   "Remove stored team credentials",
	GroupID: "sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := syncconfig.ClearAuth(); err != nil {
			output.Error("clear credentials: %v", err)
			return err
		}
		fmt.Println("Logged out.")
		return nil
	},
}

func init() {
	loginCmd.Flags().String("team", "", "Team ID")
	loginCmd.Flags().String("email", "", "Your email address")
	loginCmd.Flags().String("server", "", "Server URL (production)")

	rootCmd.AddCommand(loginCmd, logoutCmd)
}
