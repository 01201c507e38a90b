package db

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/harper/dispatch/internal/models"
)

func (db *DB) scanContactRow(id string) (*models.Contact, error) {
	var c models.Contact
	var deletedAt sql.NullTime

	err := db.conn.QueryRow(`
		SELECT id, name, kind, phone, email, notes, created_at, updated_at, deleted_at
		FROM contacts WHERE id = ?
	`, id).Scan(
		&c.ID, &c.Name, &c.Kind, &c.Phone, &c.Email, &c.Notes,
		&c.CreatedAt, &c.UpdatedAt, &deletedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("contact not found: %s", id)
	}
	if err != nil {
		return nil, err
	}
	if deletedAt.Valid {
		c.DeletedAt = &deletedAt.Time
	}
	return &c, nil
}

// GetContact retrieves a contact by ID. Accepts bare IDs without the ct- prefix.
func (db *DB) GetContact(id string) (*models.Contact, error) {
	return db.scanContactRow(normalizeID(contactIDPrefix, id))
}

// ListContacts returns contacts, optionally filtered by kind.
func (db *DB) ListContacts(kind models.ContactKind) ([]models.Contact, error) {
	query := `SELECT id, name, kind, phone, email, notes, created_at, updated_at, deleted_at
	          FROM contacts WHERE deleted_at IS NULL`
	var args []interface{}
	if kind != "" {
		query += " AND kind = ?"
		args = append(args, kind)
	}
	query += " ORDER BY name COLLATE NOCASE ASC"

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contacts []models.Contact
	for rows.Next() {
		var c models.Contact
		var deletedAt sql.NullTime
		if err := rows.Scan(&c.ID, &c.Name, &c.Kind, &c.Phone, &c.Email, &c.Notes,
			&c.CreatedAt, &c.UpdatedAt, &deletedAt); err != nil {
			return nil, err
		}
		if deletedAt.Valid {
			c.DeletedAt = &deletedAt.Time
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

// CreateContactLogged creates a contact and logs the action atomically.
func (db *DB) CreateContactLogged(c *models.Contact, sessionID string) error {
	return db.withWriteLock(func() error {
		if c.Kind == "" {
			c.Kind = models.ContactOther
		}

		now := time.Now()
		c.CreatedAt = now
		c.UpdatedAt = now

		const maxRetries = 3
		for attempt := range maxRetries {
			id, err := generateEntityID(contactIDPrefix)
			if err != nil {
				return err
			}
			c.ID = id

			_, err = db.conn.Exec(`
				INSERT INTO contacts (id, name, kind, phone, email, notes, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			`, c.ID, c.Name, c.Kind, c.Phone, c.Email, c.Notes, c.CreatedAt, c.UpdatedAt)

			if err == nil {
				break
			}
			if !strings.Contains(err.Error(), "UNIQUE constraint") {
				return err
			}
			if attempt == maxRetries-1 {
				return fmt.Errorf("failed to generate unique contact ID after %d attempts", maxRetries)
			}
		}

		return db.logAction(sessionID, models.ActionCreate, "contact", c.ID, "", marshalEntity(c), now)
	})
}

// UpdateContactLogged updates a contact and logs the action atomically.
func (db *DB) UpdateContactLogged(c *models.Contact, sessionID string) error {
	return db.withWriteLock(func() error {
		prev, err := db.scanContactRow(c.ID)
		if err != nil {
			return err
		}
		previousData := marshalEntity(prev)

		c.UpdatedAt = time.Now()
		_, err = db.conn.Exec(`
			UPDATE contacts SET name = ?, kind = ?, phone = ?, email = ?, notes = ?,
			                    updated_at = ?, deleted_at = ?
			WHERE id = ?
		`, c.Name, c.Kind, c.Phone, c.Email, c.Notes, c.UpdatedAt, c.DeletedAt, c.ID)
		if err != nil {
			return err
		}

		return db.logAction(sessionID, models.ActionUpdate, "contact", c.ID, previousData, marshalEntity(c), c.UpdatedAt)
	})
}

// DeleteContactLogged soft-deletes a contact and logs the action atomically.
func (db *DB) DeleteContactLogged(contactID, sessionID string) error {
	contactID = normalizeID(contactIDPrefix, contactID)
	return db.withWriteLock(func() error {
		prev, err := db.scanContactRow(contactID)
		if err != nil {
			return err
		}
		previousData := marshalEntity(prev)

		now := time.Now()
		_, err = db.conn.Exec(`UPDATE contacts SET deleted_at = ?, updated_at = ? WHERE id = ?`, now, now, contactID)
		if err != nil {
			return err
		}

		return db.logAction(sessionID, models.ActionDelete, "contact", contactID, previousData, "", now)
	})
}
