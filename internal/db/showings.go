package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/harper/dispatch/internal/models"
)

func (db *DB) scanShowingRow(id string) (*models.Showing, error) {
	var s models.Showing
	var deletedAt sql.NullTime

	err := db.conn.QueryRow(`
		SELECT id, listing_id, contact_id, realtor_id, scheduled_at, duration_min, status, feedback,
		       created_at, updated_at, deleted_at
		FROM showings WHERE id = ?
	`, id).Scan(&s.ID, &s.ListingID, &s.ContactID, &s.RealtorID, &s.ScheduledAt, &s.DurationMin,
		&s.Status, &s.Feedback, &s.CreatedAt, &s.UpdatedAt, &deletedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("showing not found: %s", id)
	}
	if err != nil {
		return nil, err
	}
	if deletedAt.Valid {
		s.DeletedAt = &deletedAt.Time
	}
	return &s, nil
}

// GetShowing retrieves a showing by ID. Accepts bare IDs without the sh- prefix.
func (db *DB) GetShowing(id string) (*models.Showing, error) {
	return db.scanShowingRow(normalizeID(showingIDPrefix, id))
}

// ListShowings returns showings for a listing (or all when listingID is empty),
// soonest first.
func (db *DB) ListShowings(listingID string, status models.ShowingStatus) ([]models.Showing, error) {
	query := `SELECT id, listing_id, contact_id, realtor_id, scheduled_at, duration_min, status, feedback,
	                 created_at, updated_at, deleted_at
	          FROM showings WHERE deleted_at IS NULL`
	var args []interface{}
	if listingID != "" {
		query += " AND listing_id = ?"
		args = append(args, NormalizeListingID(listingID))
	}
	if status != "" {
		query += " AND status = ?"
		args = append(args, status)
	}
	query += " ORDER BY scheduled_at ASC"

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var showings []models.Showing
	for rows.Next() {
		var s models.Showing
		var deletedAt sql.NullTime
		if err := rows.Scan(&s.ID, &s.ListingID, &s.ContactID, &s.RealtorID, &s.ScheduledAt, &s.DurationMin,
			&s.Status, &s.Feedback, &s.CreatedAt, &s.UpdatedAt, &deletedAt); err != nil {
			return nil, err
		}
		if deletedAt.Valid {
			s.DeletedAt = &deletedAt.Time
		}
		showings = append(showings, s)
	}
	return showings, rows.Err()
}

// CreateShowingLogged schedules a showing and logs the action atomically.
func (db *DB) CreateShowingLogged(s *models.Showing, sessionID string) error {
	s.ListingID = NormalizeListingID(s.ListingID)
	return db.withWriteLock(func() error {
		if s.Status == "" {
			s.Status = models.ShowingScheduled
		}

		now := time.Now()
		s.CreatedAt = now
		s.UpdatedAt = now

		id, err := generateEntityID(showingIDPrefix)
		if err != nil {
			return err
		}
		s.ID = id

		_, err = db.conn.Exec(`
			INSERT INTO showings (id, listing_id, contact_id, realtor_id, scheduled_at, duration_min, status, feedback, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, s.ID, s.ListingID, s.ContactID, s.RealtorID, s.ScheduledAt, s.DurationMin, s.Status, s.Feedback, s.CreatedAt, s.UpdatedAt)
		if err != nil {
			return err
		}

		return db.logAction(sessionID, models.ActionCreate, "showing", s.ID, "", marshalEntity(s), now)
	})
}

// UpdateShowingLogged updates a showing and logs the action atomically.
func (db *DB) UpdateShowingLogged(s *models.Showing, sessionID string) error {
	return db.withWriteLock(func() error {
		prev, err := db.scanShowingRow(s.ID)
		if err != nil {
			return err
		}
		previousData := marshalEntity(prev)

		s.UpdatedAt = time.Now()
		_, err = db.conn.Exec(`
			UPDATE showings SET contact_id = ?, realtor_id = ?, scheduled_at = ?, duration_min = ?,
			                    status = ?, feedback = ?, updated_at = ?, deleted_at = ?
			WHERE id = ?
		`, s.ContactID, s.RealtorID, s.ScheduledAt, s.DurationMin,
			s.Status, s.Feedback, s.UpdatedAt, s.DeletedAt, s.ID)
		if err != nil {
			return err
		}

		return db.logAction(sessionID, models.ActionUpdate, "showing", s.ID, previousData, marshalEntity(s), s.UpdatedAt)
	})
}

// DeleteShowingLogged soft-deletes a showing and logs the action atomically.
func (db *DB) DeleteShowingLogged(showingID, sessionID string) error {
	showingID = normalizeID(showingIDPrefix, showingID)
	return db.withWriteLock(func() error {
		prev, err := db.scanShowingRow(showingID)
		if err != nil {
			return err
		}
		previousData := marshalEntity(prev)

		now := time.Now()
		_, err = db.conn.Exec(`UPDATE showings SET deleted_at = ?, updated_at = ? WHERE id = ?`, now, now, showingID)
		if err != nil {
			return err
		}

		return db.logAction(sessionID, models.ActionDelete, "showing", showingID, previousData, "", now)
	})
}
