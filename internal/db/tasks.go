package db

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/harper/dispatch/internal/models"
)

// scanTaskRow reads a full task row from the DB.
// Uses the same column set as GetTask.
func (db *DB) scanTaskRow(id string) (*models.Task, error) {
	var task models.Task
	var tags string
	var dueAt, completedAt, deletedAt sql.NullTime

	err := db.conn.QueryRow(`
		SELECT id, title, description, status, priority, assignee_id, listing_id, tags,
		       due_at, completed_at, created_at, updated_at, deleted_at
		FROM tasks WHERE id = ?
	`, id).Scan(
		&task.ID, &task.Title, &task.Description, &task.Status, &task.Priority,
		&task.AssigneeID, &task.ListingID, &tags,
		&dueAt, &completedAt, &task.CreatedAt, &task.UpdatedAt, &deletedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("task not found: %s", id)
	}
	if err != nil {
		return nil, err
	}

	if tags != "" {
		task.Tags = strings.Split(tags, ",")
	}
	if dueAt.Valid {
		task.DueAt = &dueAt.Time
	}
	if completedAt.Valid {
		task.CompletedAt = &completedAt.Time
	}
	if deletedAt.Valid {
		task.DeletedAt = &deletedAt.Time
	}

	return &task, nil
}

// GetTask retrieves a task by ID
// Accepts bare IDs without the tk- prefix (e.g., "abc123" becomes "tk-abc123")
func (db *DB) GetTask(id string) (*models.Task, error) {
	return db.scanTaskRow(NormalizeTaskID(id))
}

// ListTasksOptions contains filter options for listing tasks
type ListTasksOptions struct {
	Status         []models.TaskStatus
	Priority       string
	AssigneeID     string
	ListingID      string
	Tags           []string
	Search         string
	DueBefore      time.Time
	IncludeDeleted bool
	OnlyDeleted    bool
	SortBy         string
	SortDesc       bool
	Limit          int
}

// ListTasks returns tasks matching the filter
func (db *DB) ListTasks(opts ListTasksOptions) ([]models.Task, error) {
	query := `SELECT id, title, description, status, priority, assignee_id, listing_id, tags,
	                 due_at, completed_at, created_at, updated_at, deleted_at
	          FROM tasks WHERE 1=1`
	var args []interface{}

	// Handle deleted filter
	if opts.OnlyDeleted {
		query += " AND deleted_at IS NOT NULL"
	} else if !opts.IncludeDeleted {
		query += " AND deleted_at IS NULL"
	}

	// Status filter
	if len(opts.Status) > 0 {
		placeholders := make([]string, len(opts.Status))
		for i, s := range opts.Status {
			placeholders[i] = "?"
			args = append(args, s)
		}
		query += fmt.Sprintf(" AND status IN (%s)", strings.Join(placeholders, ","))
	}

	// Priority filter
	if opts.Priority != "" {
		if strings.HasPrefix(opts.Priority, "<=") {
			prio := strings.TrimPrefix(opts.Priority, "<=")
			query += " AND priority <= ?"
			args = append(args, prio)
		} else if strings.HasPrefix(opts.Priority, ">=") {
			prio := strings.TrimPrefix(opts.Priority, ">=")
			query += " AND priority >= ?"
			args = append(args, prio)
		} else {
			query += " AND priority = ?"
			args = append(args, opts.Priority)
		}
	}

	// Assignee filter
	if opts.AssigneeID != "" {
		query += " AND assignee_id = ?"
		args = append(args, opts.AssigneeID)
	}

	// Listing filter
	if opts.ListingID != "" {
		query += " AND listing_id = ?"
		args = append(args, NormalizeListingID(opts.ListingID))
	}

	// Tags filter
	if len(opts.Tags) > 0 {
		for _, tag := range opts.Tags {
			query += " AND (tags LIKE ? OR tags LIKE ? OR tags LIKE ? OR tags = ?)"
			args = append(args, tag+",%", "%,"+tag+",%", "%,"+tag, tag)
		}
	}

	// Search filter
	if opts.Search != "" {
		query += " AND (id LIKE ? OR title LIKE ? OR description LIKE ?)"
		searchPattern := "%" + opts.Search + "%"
		args = append(args, searchPattern, searchPattern, searchPattern)
	}

	// Due date filter
	if !opts.DueBefore.IsZero() {
		query += " AND due_at IS NOT NULL AND due_at <= ?"
		args = append(args, opts.DueBefore)
	}

	// Sorting - validate column name to prevent SQL injection
	allowedSortCols := map[string]bool{
		"id": true, "title": true, "status": true, "priority": true,
		"due_at": true, "created_at": true, "updated_at": true,
	}
	sortCol := "priority"
	if opts.SortBy != "" && allowedSortCols[opts.SortBy] {
		sortCol = opts.SortBy
	}
	sortDir := "ASC"
	if opts.SortDesc {
		sortDir = "DESC"
	}
	query += fmt.Sprintf(" ORDER BY %s %s", sortCol, sortDir)

	// Limit
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []models.Task
	for rows.Next() {
		var task models.Task
		var tags string
		var dueAt, completedAt, deletedAt sql.NullTime

		err := rows.Scan(
			&task.ID, &task.Title, &task.Description, &task.Status, &task.Priority,
			&task.AssigneeID, &task.ListingID, &tags,
			&dueAt, &completedAt, &task.CreatedAt, &task.UpdatedAt, &deletedAt,
		)
		if err != nil {
			return nil, err
		}

		if tags != "" {
			task.Tags = strings.Split(tags, ",")
		}
		if dueAt.Valid {
			task.DueAt = &dueAt.Time
		}
		if completedAt.Valid {
			task.CompletedAt = &completedAt.Time
		}
		if deletedAt.Valid {
			task.DeletedAt = &deletedAt.Time
		}

		tasks = append(tasks, task)
	}

	return tasks, rows.Err()
}
