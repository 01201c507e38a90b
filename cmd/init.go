package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/harper/dispatch/internal/db"
	"github.com/harper/dispatch/internal/git"
	"github.com/harper/dispatch/internal/output"
	"github.com/harper/dispatch/internal/session"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:     "init",
	Short:   "Initialize a dispatch workspace",
	Long:    `Creates the local .dispatch directory and SQLite database.`,
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		baseDir := getBaseDir()

		if _, err := os.Stat(filepath.Join(baseDir, ".dispatch")); err == nil {
			output.Warning(".dispatch/ already exists")
			return nil
		}

		database, err := db.Initialize(baseDir)
		if err != nil {
			output.Error("failed to initialize database: %v", err)
			return err
		}
		defer database.Close()

		fmt.Println("INITIALIZED .dispatch/")

		if git.IsRepo() {
			root, err := git.GetRootDir()
			if err != nil {
				root = baseDir
			}
			addToGitignore(filepath.Join(root, ".gitignore"))
		}

		sess, err := session.GetOrCreate(baseDir)
		if err != nil {
			output.Error("failed to create session: %v", err)
			return err
		}

		fmt.Printf("Session: %s\n", sess.ID)
		fmt.Println("\nNext: dispatch login, then dispatch sync to link this workspace to your team.")

		return nil
	},
}

func addToGitignore(path string) {
	content, _ := os.ReadFile(path)
	contentStr := string(content)

	if strings.Contains(contentStr, ".dispatch/") {
		return
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	defer f.Close()

	if len(contentStr) > 0 && !strings.HasSuffix(contentStr, "\n") {
		f.WriteString("\n")
	}

	f.WriteString(".dispatch/\n")
	fmt.Println("Added .dispatch/ to .gitignore")
}

func init() {
	rootCmd.AddCommand(initCmd)
}
