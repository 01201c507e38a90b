package cmd

import (
	"fmt"
	"strings"

	"github.com/harper/dispatch/internal/db"
	"github.com/harper/dispatch/internal/input"
	"github.com/harper/dispatch/internal/models"
	"github.com/harper/dispatch/internal/output"
	"github.com/spf13/cobra"
)

// noteParentTypes are the entities a note may attach to.
var noteParentTypes = map[string]bool{
	"tasks":      true,
	"listings":   true,
	"properties": true,
	"contacts":   true,
}

// noteParentEntity maps a plural parent type to the entity name used for ID
// normalization.
var noteParentEntity = map[string]string{
	"tasks":      "task",
	"listings":   "listing",
	"properties": "property",
	"contacts":   "contact",
}

var noteCmd = &cobra.Command{
	Use:     "note",
	Short:   "Attach notes to tasks, listings, properties, or contacts",
	GroupID: "work",
}

var noteAddCmd = &cobra.Command{
	Use:   "add <parent-type> <parent-id> <body>",
	Short: "Add a note to an entity",
	Long: `Attach a free-form note to a parent entity. The body may be given
inline, as "-" to read stdin, or as "@file" to read a file.

Examples:
  dispatch note add listings ls-abc1 "Seller prefers showings after 5pm"
  dispatch note add contacts ct-42 "Pre-approved up to 800k" --pin
  dispatch note add tasks tk-9 @walkthrough-notes.txt`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		parentType := strings.ToLower(args[0])
		if !noteParentTypes[parentType] {
			output.Error("invalid parent type %q (tasks, listings, properties, contacts)", args[0])
			return fmt.Errorf("invalid parent type: %s", args[0])
		}

		database, sess, err := openWorkspace()
		if err != nil {
			return err
		}
		defer database.Close()

		author, _ := cmd.Flags().GetString("author")
		pinned, _ := cmd.Flags().GetBool("pin")

		body, err := input.ExpandText(args[2])
		if err != nil {
			output.Error("read note body: %v", err)
			return err
		}

		note := &models.Note{
			ParentType: parentType,
			ParentID:   db.NormalizeEntityID(noteParentEntity[parentType], args[1]),
			Body:       body,
			AuthorID:   author,
			Pinned:     pinned,
		}

		if err := database.CreateNoteLogged(note, sess.ID); err != nil {
			output.Error("create note: %v", err)
			return err
		}

		triggerAutoSync(cmd)
		fmt.Printf("%s  %s\n", note.ID, note.Body)
		return nil
	},
}

var noteListCmd = &cobra.Command{
	Use:     "list <parent-type> <parent-id>",
	Aliases: []string{"ls"},
	Short:   "List notes on an entity",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		parentType := strings.ToLower(args[0])
		if !noteParentTypes[parentType] {
			output.Error("invalid parent type %q (tasks, listings, properties, contacts)", args[0])
			return fmt.Errorf("invalid parent type: %s", args[0])
		}

		database, _, err := openWorkspace()
		if err != nil {
			return err
		}
		defer database.Close()

		parentID := db.NormalizeEntityID(noteParentEntity[parentType], args[1])
		notes, err := database.ListNotes(parentType, parentID)
		if err != nil {
			output.Error("list notes: %v", err)
			return err
		}

		jsonOutput, _ := cmd.Flags().GetBool("json")
		if jsonOutput {
			return output.JSON(notes)
		}

		if len(notes) == 0 {
			fmt.Println("No notes.")
			return nil
		}
		for _, n := range notes {
			pin := "  "
			if n.Pinned {
				pin = "📌 "
			}
			line := fmt.Sprintf("%s%s  %s", pin, output.FormatTimeAgo(n.CreatedAt), n.Body)
			if n.AuthorID != "" {
				line += "  by " + n.AuthorID
			}
			fmt.Println(line)
		}
		return nil
	},
}

func init() {
	noteAddCmd.Flags().String("author", "", "Note author user ID")
	noteAddCmd.Flags().Bool("pin", false, "Pin the note")

	noteListCmd.Flags().Bool("json", false, "JSON output")

	noteCmd.AddCommand(noteAddCmd, noteListCmd)
	rootCmd.AddCommand(noteCmd)
}
