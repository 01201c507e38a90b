package db

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/harper/dispatch/internal/models"
)

func (db *DB) scanRealtorRow(id string) (*models.Realtor, error) {
	var r models.Realtor
	var deletedAt sql.NullTime

	err := db.conn.QueryRow(`
		SELECT id, user_id, name, license_no, phone, email, brokerage,
		       created_at, updated_at, deleted_at
		FROM realtors WHERE id = ?
	`, id).Scan(
		&r.ID, &r.UserID, &r.Name, &r.LicenseNo, &r.Phone, &r.Email, &r.Brokerage,
		&r.CreatedAt, &r.UpdatedAt, &deletedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("realtor not found: %s", id)
	}
	if err != nil {
		return nil, err
	}
	if deletedAt.Valid {
		r.DeletedAt = &deletedAt.Time
	}
	return &r, nil
}

// GetRealtor retrieves a realtor by ID. Accepts bare IDs without the rl- prefix.
func (db *DB) GetRealtor(id string) (*models.Realtor, error) {
	return db.scanRealtorRow(normalizeID(realtorIDPrefix, id))
}

// ListRealtors returns all realtors, excluding soft-deleted rows.
func (db *DB) ListRealtors() ([]models.Realtor, error) {
	rows, err := db.conn.Query(`
		SELECT id, user_id, name, license_no, phone, email, brokerage,
		       created_at, updated_at, deleted_at
		FROM realtors WHERE deleted_at IS NULL
		ORDER BY name COLLATE NOCASE ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var realtors []models.Realtor
	for rows.Next() {
		var r models.Realtor
		var deletedAt sql.NullTime
		if err := rows.Scan(&r.ID, &r.UserID, &r.Name, &r.LicenseNo, &r.Phone, &r.Email, &r.Brokerage,
			&r.CreatedAt, &r.UpdatedAt, &deletedAt); err != nil {
			return nil, err
		}
		if deletedAt.Valid {
			r.DeletedAt = &deletedAt.Time
		}
		realtors = append(realtors, r)
	}
	return realtors, rows.Err()
}

// CreateRealtorLogged creates a realtor and logs the action atomically.
func (db *DB) CreateRealtorLogged(r *models.Realtor, sessionID string) error {
	return db.withWriteLock(func() error {
		now := time.Now()
		r.CreatedAt = now
		r.UpdatedAt = now

		const maxRetries = 3
		for attempt := range maxRetries {
			id, err := generateEntityID(realtorIDPrefix)
			if err != nil {
				return err
			}
			r.ID = id

			_, err = db.conn.Exec(`
				INSERT INTO realtors (id, user_id, name, license_no, phone, email, brokerage, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, r.ID, r.UserID, r.Name, r.LicenseNo, r.Phone, r.Email, r.Brokerage, r.CreatedAt, r.UpdatedAt)

			if err == nil {
				break
			}
			if !strings.Contains(err.Error(), "UNIQUE constraint") {
				return err
			}
			if attempt == maxRetries-1 {
				return fmt.Errorf("failed to generate unique realtor ID after %d attempts", maxRetries)
			}
		}

		return db.logAction(sessionID, models.ActionCreate, "realtor", r.ID, "", marshalEntity(r), now)
	})
}

// UpdateRealtorLogged updates a realtor and logs the action atomically.
func (db *DB) UpdateRealtorLogged(r *models.Realtor, sessionID string) error {
	return db.withWriteLock(func() error {
		prev, err := db.scanRealtorRow(r.ID)
		if err != nil {
			return err
		}
		previousData := marshalEntity(prev)

		r.UpdatedAt = time.Now()
		_, err = db.conn.Exec(`
			UPDATE realtors SET user_id = ?, name = ?, license_no = ?, phone = ?,
			                    email = ?, brokerage = ?, updated_at = ?, deleted_at = ?
			WHERE id = ?
		`, r.UserID, r.Name, r.LicenseNo, r.Phone, r.Email, r.Brokerage, r.UpdatedAt, r.DeletedAt, r.ID)
		if err != nil {
			return err
		}

		return db.logAction(sessionID, models.ActionUpdate, "realtor", r.ID, previousData, marshalEntity(r), r.UpdatedAt)
	})
}

// DeleteRealtorLogged soft-deletes a realtor and logs the action atomically.
func (db *DB) DeleteRealtorLogged(realtorID, sessionID string) error {
	realtorID = normalizeID(realtorIDPrefix, realtorID)
	return db.withWriteLock(func() error {
		prev, err := db.scanRealtorRow(realtorID)
		if err != nil {
			return err
		}
		previousData := marshalEntity(prev)

		now := time.Now()
		_, err = db.conn.Exec(`UPDATE realtors SET deleted_at = ?, updated_at = ? WHERE id = ?`, now, now, realtorID)
		if err != nil {
			return err
		}

		return db.logAction(sessionID, models.ActionDelete, "realtor", realtorID, previousData, "", now)
	})
}
