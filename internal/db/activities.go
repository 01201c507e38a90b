package db

import (
	"fmt"
	"time"

	"github.com/harper/dispatch/internal/models"
)

// insertActivityAndLog inserts an activity WITHOUT acquiring withWriteLock.
// Caller MUST already hold the write lock. Activities are append-only; there
// is no update or delete path.
func (db *DB) insertActivityAndLog(a *models.Activity, sessionID string) error {
	if a.Kind == "" {
		a.Kind = models.ActivityNote
	}

	now := time.Now()
	if a.OccurredAt.IsZero() {
		a.OccurredAt = now
	}
	a.CreatedAt = now

	id, err := generateEntityID(activityIDPrefix)
	if err != nil {
		return err
	}
	a.ID = id

	_, err = db.conn.Exec(`
		INSERT INTO activities (id, kind, body, actor_id, task_id, listing_id, contact_id, occurred_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.Kind, a.Body, a.ActorID, a.TaskID, a.ListingID, a.ContactID, a.OccurredAt, a.CreatedAt)
	if err != nil {
		return err
	}

	return db.logAction(sessionID, models.ActionCreate, "activity", a.ID, "", marshalEntity(a), now)
}

// CreateActivityLogged records an activity feed entry and logs the action atomically.
func (db *DB) CreateActivityLogged(a *models.Activity, sessionID string) error {
	return db.withWriteLock(func() error {
		return db.insertActivityAndLog(a, sessionID)
	})
}

// ListActivitiesOptions contains filter options for the activity feed.
type ListActivitiesOptions struct {
	Kind      models.ActivityKind
	ActorID   string
	TaskID    string
	ListingID string
	ContactID string
	Since     time.Time
	Limit     int
}

// ListActivities returns the activity feed, newest first.
func (db *DB) ListActivities(opts ListActivitiesOptions) ([]models.Activity, error) {
	query := `SELECT id, kind, body, actor_id, task_id, listing_id, contact_id, occurred_at, created_at
	          FROM activities WHERE 1=1`
	var args []interface{}

	if opts.Kind != "" {
		query += " AND kind = ?"
		args = append(args, opts.Kind)
	}
	if opts.ActorID != "" {
		query += " AND actor_id = ?"
		args = append(args, opts.ActorID)
	}
	if opts.TaskID != "" {
		query += " AND task_id = ?"
		args = append(args, NormalizeTaskID(opts.TaskID))
	}
	if opts.ListingID != "" {
		query += " AND listing_id = ?"
		args = append(args, NormalizeListingID(opts.ListingID))
	}
	if opts.ContactID != "" {
		query += " AND contact_id = ?"
		args = append(args, normalizeID(contactIDPrefix, opts.ContactID))
	}
	if !opts.Since.IsZero() {
		query += " AND occurred_at >= ?"
		args = append(args, opts.Since)
	}
	query += " ORDER BY occurred_at DESC"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var activities []models.Activity
	for rows.Next() {
		var a models.Activity
		if err := rows.Scan(&a.ID, &a.Kind, &a.Body, &a.ActorID, &a.TaskID, &a.ListingID, &a.ContactID,
			&a.OccurredAt, &a.CreatedAt); err != nil {
			return nil, err
		}
		activities = append(activities, a)
	}
	return activities, rows.Err()
}

// GetActivity retrieves a single activity by ID.
func (db *DB) GetActivity(id string) (*models.Activity, error) {
	id = normalizeID(activityIDPrefix, id)
	var a models.Activity
	err := db.conn.QueryRow(`
		SELECT id, kind, body, actor_id, task_id, listing_id, contact_id, occurred_at, created_at
		FROM activities WHERE id = ?
	`, id).Scan(&a.ID, &a.Kind, &a.Body, &a.ActorID, &a.TaskID, &a.ListingID, &a.ContactID,
		&a.OccurredAt, &a.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("activity not found: %s", id)
	}
	return &a, nil
}
