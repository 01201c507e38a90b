package cmd

import (
	"strings"
	"testing"
	"time"

	"github.com/harper/dispatch/internal/db"
	"github.com/harper/dispatch/internal/models"
)

// TestTaskDoneFlow walks the create-then-complete path the CLI drives.
func TestTaskDoneFlow(t *testing.T) {
	dir := t.TempDir()
	database, err := db.Initialize(dir)
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer database.Close()

	task := &models.Task{
		Title:    "Order yard sign",
		Priority: models.PriorityP1,
	}
	if err := database.CreateTaskLogged(task, "ses_test"); err != nil {
		t.Fatalf("CreateTaskLogged failed: %v", err)
	}
	if !strings.HasPrefix(task.ID, "tk-") {
		t.Errorf("task id %q missing tk- prefix", task.ID)
	}
	if task.Status != models.TaskOpen {
		t.Errorf("new task status = %q, want open", task.Status)
	}

	now := time.Now().UTC()
	task.Status = models.TaskDone
	task.CompletedAt = &now
	if err := database.UpdateTaskLogged(task, "ses_test"); err != nil {
		t.Fatalf("UpdateTaskLogged failed: %v", err)
	}

	got, err := database.GetTask(task.ID)
	if err != nil {
		t.Fatalf("GetTask failed: %v", err)
	}
	if got == nil {
		t.Fatal("task not found after update")
	}
	if got.Status != models.TaskDone {
		t.Errorf("status = %q, want done", got.Status)
	}
	if got.CompletedAt == nil {
		t.Error("CompletedAt not persisted")
	}
}
