package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/harper/dispatch/internal/db"
	"github.com/harper/dispatch/internal/output"
	"github.com/spf13/cobra"
)

var profileCmd = &cobra.Command{
	Use:     "profile",
	Short:   "Manage your team profile",
	GroupID: "people",
}

// avatarContentTypes maps file extensions to upload content types.
var avatarContentTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
}

var profileAvatarCmd = &cobra.Command{
	Use:   "avatar <user-id> <file>",
	Short: "Stage a profile photo for upload on next sync",
	Long: `Stage an avatar image for a team member. The file is uploaded on the
next push; until the upload succeeds, pending changes to that user are held
back so the server never sees an avatar URL that doesn't resolve.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		database, sess, err := openWorkspace()
		if err != nil {
			return err
		}
		defer database.Close()

		userID := db.NormalizeEntityID("user", args[0])
		user, err := database.GetUser(userID)
		if err != nil {
			output.Error("get user: %v", err)
			return err
		}
		if user == nil {
			output.Error("user not found: %s", userID)
			return fmt.Errorf("not found")
		}

		filePath, err := filepath.Abs(args[1])
		if err != nil {
			output.Error("resolve path: %v", err)
			return err
		}
		info, err := os.Stat(filePath)
		if err != nil {
			output.Error("read avatar file: %v", err)
			return err
		}
		if info.IsDir() {
			output.Error("%s is a directory", filePath)
			return fmt.Errorf("not a file")
		}

		ext := strings.ToLower(filepath.Ext(filePath))
		contentType, ok := avatarContentTypes[ext]
		if !ok {
			output.Error("unsupported image type %q (png, jpg, gif, webp)", ext)
			return fmt.Errorf("unsupported type: %s", ext)
		}

		if err := database.StagePendingUpload(userID, filePath, contentType); err != nil {
			output.Error("stage upload: %v", err)
			return err
		}

		// Touch the user so an update event exists for the URL patch to land
		// on; the push pipeline fills avatar_url once the upload succeeds.
		if err := database.UpdateUserLogged(user, sess.ID); err != nil {
			output.Error("update user: %v", err)
			return err
		}

		triggerAutoSync(cmd)
		fmt.Printf("Avatar staged for %s (%s). It uploads on the next sync.\n", userID, contentType)
		return nil
	},
}

func init() {
	profileCmd.AddCommand(profileAvatarCmd)
	rootCmd.AddCommand(profileCmd)
}
