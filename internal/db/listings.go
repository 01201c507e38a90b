package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/harper/dispatch/internal/models"
)

func (db *DB) scanListingRow(id string) (*models.Listing, error) {
	var l models.Listing
	var photos string
	var listedAt, closedAt, deletedAt sql.NullTime

	err := db.conn.QueryRow(`
		SELECT id, property_id, realtor_id, status, list_price, commission_pct, mls_number,
		       photos, listed_at, closed_at, created_at, updated_at, deleted_at
		FROM listings WHERE id = ?
	`, id).Scan(
		&l.ID, &l.PropertyID, &l.RealtorID, &l.Status, &l.ListPrice, &l.CommissionPct, &l.MLSNumber,
		&photos, &listedAt, &closedAt, &l.CreatedAt, &l.UpdatedAt, &deletedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("listing not found: %s", id)
	}
	if err != nil {
		return nil, err
	}

	if photos != "" && photos != "[]" {
		if err := json.Unmarshal([]byte(photos), &l.Photos); err != nil {
			return nil, fmt.Errorf("listing %s: parse photos: %w", id, err)
		}
	}
	if listedAt.Valid {
		l.ListedAt = &listedAt.Time
	}
	if closedAt.Valid {
		l.ClosedAt = &closedAt.Time
	}
	if deletedAt.Valid {
		l.DeletedAt = &deletedAt.Time
	}
	return &l, nil
}

// GetListing retrieves a listing by ID. Accepts bare IDs without the ls- prefix.
func (db *DB) GetListing(id string) (*models.Listing, error) {
	return db.scanListingRow(NormalizeListingID(id))
}

// ListListingsOptions contains filter options for listing listings.
type ListListingsOptions struct {
	Status     []models.ListingStatus
	RealtorID  string
	PropertyID string
	Limit      int
}

// ListListings returns listings matching the filter.
func (db *DB) ListListings(opts ListListingsOptions) ([]models.Listing, error) {
	query := `SELECT id, property_id, realtor_id, status, list_price, commission_pct, mls_number,
	                 photos, listed_at, closed_at, created_at, updated_at, deleted_at
	          FROM listings WHERE deleted_at IS NULL`
	var args []interface{}

	if len(opts.Status) > 0 {
		placeholders := make([]string, len(opts.Status))
		for i, s := range opts.Status {
			placeholders[i] = "?"
			args = append(args, s)
		}
		query += fmt.Sprintf(" AND status IN (%s)", strings.Join(placeholders, ","))
	}
	if opts.RealtorID != "" {
		query += " AND realtor_id = ?"
		args = append(args, normalizeID(realtorIDPrefix, opts.RealtorID))
	}
	if opts.PropertyID != "" {
		query += " AND property_id = ?"
		args = append(args, normalizeID(propertyIDPrefix, opts.PropertyID))
	}
	query += " ORDER BY created_at DESC"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var listings []models.Listing
	for rows.Next() {
		var l models.Listing
		var photos string
		var listedAt, closedAt, deletedAt sql.NullTime
		if err := rows.Scan(&l.ID, &l.PropertyID, &l.RealtorID, &l.Status, &l.ListPrice, &l.CommissionPct, &l.MLSNumber,
			&photos, &listedAt, &closedAt, &l.CreatedAt, &l.UpdatedAt, &deletedAt); err != nil {
			return nil, err
		}
		if photos != "" && photos != "[]" {
			json.Unmarshal([]byte(photos), &l.Photos)
		}
		if listedAt.Valid {
			l.ListedAt = &listedAt.Time
		}
		if closedAt.Valid {
			l.ClosedAt = &closedAt.Time
		}
		if deletedAt.Valid {
			l.DeletedAt = &deletedAt.Time
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

func marshalPhotos(photos []string) string {
	if len(photos) == 0 {
		return "[]"
	}
	data, _ := json.Marshal(photos)
	return string(data)
}

// CreateListingLogged creates a listing and logs the action atomically.
func (db *DB) CreateListingLogged(l *models.Listing, sessionID string) error {
	return db.withWriteLock(func() error {
		if l.Status == "" {
			l.Status = models.ListingDraft
		}

		now := time.Now()
		l.CreatedAt = now
		l.UpdatedAt = now

		const maxRetries = 3
		for attempt := range maxRetries {
			id, err := generateEntityID(listingIDPrefix)
			if err != nil {
				return err
			}
			l.ID = id

			_, err = db.conn.Exec(`
				INSERT INTO listings (id, property_id, realtor_id, status, list_price, commission_pct,
				                      mls_number, photos, listed_at, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, l.ID, l.PropertyID, l.RealtorID, l.Status, l.ListPrice, l.CommissionPct,
				l.MLSNumber, marshalPhotos(l.Photos), l.ListedAt, l.CreatedAt, l.UpdatedAt)

			if err == nil {
				break
			}
			if !strings.Contains(err.Error(), "UNIQUE constraint") {
				return err
			}
			if attempt == maxRetries-1 {
				return fmt.Errorf("failed to generate unique listing ID after %d attempts", maxRetries)
			}
		}

		return db.logAction(sessionID, models.ActionCreate, "listing", l.ID, "", marshalEntity(l), now)
	})
}

// updateListingAndLog updates a listing and logs the action WITHOUT acquiring withWriteLock.
// Caller MUST already hold the write lock.
func (db *DB) updateListingAndLog(l *models.Listing, sessionID string) error {
	prev, err := db.scanListingRow(l.ID)
	if err != nil {
		return err
	}
	previousData := marshalEntity(prev)

	l.UpdatedAt = time.Now()
	_, err = db.conn.Exec(`
		UPDATE listings SET property_id = ?, realtor_id = ?, status = ?, list_price = ?,
		                    commission_pct = ?, mls_number = ?, photos = ?, listed_at = ?,
		                    closed_at = ?, updated_at = ?, deleted_at = ?
		WHERE id = ?
	`, l.PropertyID, l.RealtorID, l.Status, l.ListPrice,
		l.CommissionPct, l.MLSNumber, marshalPhotos(l.Photos), l.ListedAt,
		l.ClosedAt, l.UpdatedAt, l.DeletedAt, l.ID)
	if err != nil {
		return err
	}

	return db.logAction(sessionID, models.ActionUpdate, "listing", l.ID, previousData, marshalEntity(l), l.UpdatedAt)
}

// UpdateListingLogged updates a listing and logs the action atomically.
func (db *DB) UpdateListingLogged(l *models.Listing, sessionID string) error {
	return db.withWriteLock(func() error {
		return db.updateListingAndLog(l, sessionID)
	})
}

// DeleteListingLogged soft-deletes a listing and logs the action atomically.
func (db *DB) DeleteListingLogged(listingID, sessionID string) error {
	listingID = NormalizeListingID(listingID)
	return db.withWriteLock(func() error {
		prev, err := db.scanListingRow(listingID)
		if err != nil {
			return err
		}
		previousData := marshalEntity(prev)

		now := time.Now()
		_, err = db.conn.Exec(`UPDATE listings SET deleted_at = ?, updated_at = ? WHERE id = ?`, now, now, listingID)
		if err != nil {
			return err
		}

		return db.logAction(sessionID, models.ActionDelete, "listing", listingID, previousData, "", now)
	})
}

// TransitionListingLogged moves a listing to a new status, recording the
// status_changes row and an activity feed entry alongside the listing update.
// All three mutations land in the action log in one write-lock scope so a
// partial transition can never be pushed.
func (db *DB) TransitionListingLogged(listingID string, to models.ListingStatus, changedBy, reason, sessionID string) (*models.StatusChange, error) {
	listingID = NormalizeListingID(listingID)
	var change *models.StatusChange

	err := db.withWriteLock(func() error {
		l, err := db.scanListingRow(listingID)
		if err != nil {
			return err
		}

		from := l.Status
		if !models.CanTransitionListing(from, to) {
			return fmt.Errorf("invalid listing transition: %s -> %s", from, to)
		}

		now := time.Now()
		l.Status = to
		switch to {
		case models.ListingActive:
			if l.ListedAt == nil {
				l.ListedAt = &now
			}
		case models.ListingSold:
			l.ClosedAt = &now
		}
		if err := db.updateListingAndLog(l, sessionID); err != nil {
			return err
		}

		scID, err := generateEntityID(statusChangeIDPrefix)
		if err != nil {
			return err
		}
		sc := &models.StatusChange{
			ID:         scID,
			ListingID:  listingID,
			FromStatus: from,
			ToStatus:   to,
			ChangedBy:  changedBy,
			Reason:     reason,
			OccurredAt: now,
			CreatedAt:  now,
		}
		_, err = db.conn.Exec(`
			INSERT INTO status_changes (id, listing_id, from_status, to_status, changed_by, reason, occurred_at, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, sc.ID, sc.ListingID, sc.FromStatus, sc.ToStatus, sc.ChangedBy, sc.Reason, sc.OccurredAt, sc.CreatedAt)
		if err != nil {
			return err
		}
		if err := db.logAction(sessionID, models.ActionCreate, "status_change", sc.ID, "", marshalEntity(sc), now); err != nil {
			return err
		}

		body := fmt.Sprintf("listing %s: %s -> %s", listingID, from, to)
		if reason != "" {
			body += " (" + reason + ")"
		}
		if err := db.insertActivityAndLog(&models.Activity{
			Kind:       models.ActivityStatus,
			Body:       body,
			ActorID:    changedBy,
			ListingID:  listingID,
			OccurredAt: now,
		}, sessionID); err != nil {
			return err
		}

		change = sc
		return nil
	})
	return change, err
}

// GetStatusChanges returns the status transition history for a listing, oldest first.
func (db *DB) GetStatusChanges(listingID string) ([]models.StatusChange, error) {
	rows, err := db.conn.Query(`
		SELECT id, listing_id, from_status, to_status, changed_by, reason, occurred_at, created_at
		FROM status_changes WHERE listing_id = ?
		ORDER BY occurred_at ASC`, NormalizeListingID(listingID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var changes []models.StatusChange
	for rows.Next() {
		var sc models.StatusChange
		if err := rows.Scan(&sc.ID, &sc.ListingID, &sc.FromStatus, &sc.ToStatus, &sc.ChangedBy, &sc.Reason, &sc.OccurredAt, &sc.CreatedAt); err != nil {
			return nil, err
		}
		changes = append(changes, sc)
	}
	return changes, rows.Err()
}
