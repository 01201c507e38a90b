package db

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/harper/dispatch/internal/models"
)

func (db *DB) scanPropertyRow(id string) (*models.Property, error) {
	var p models.Property
	var deletedAt sql.NullTime

	err := db.conn.QueryRow(`
		SELECT id, address, unit, city, state, postal_code, property_type,
		       beds, baths, sqft, year_built, created_at, updated_at, deleted_at
		FROM properties WHERE id = ?
	`, id).Scan(
		&p.ID, &p.Address, &p.Unit, &p.City, &p.State, &p.PostalCode, &p.PropertyType,
		&p.Beds, &p.Baths, &p.Sqft, &p.YearBuilt, &p.CreatedAt, &p.UpdatedAt, &deletedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("property not found: %s", id)
	}
	if err != nil {
		return nil, err
	}
	if deletedAt.Valid {
		p.DeletedAt = &deletedAt.Time
	}
	return &p, nil
}

// GetProperty retrieves a property by ID. Accepts bare IDs without the pr- prefix.
func (db *DB) GetProperty(id string) (*models.Property, error) {
	return db.scanPropertyRow(normalizeID(propertyIDPrefix, id))
}

// ListPropertiesOptions contains filter options for listing properties.
type ListPropertiesOptions struct {
	City         string
	PropertyType models.PropertyType
	Search       string
	Limit        int
}

// ListProperties returns properties matching the filter.
func (db *DB) ListProperties(opts ListPropertiesOptions) ([]models.Property, error) {
	query := `SELECT id, address, unit, city, state, postal_code, property_type,
	                 beds, baths, sqft, year_built, created_at, updated_at, deleted_at
	          FROM properties WHERE deleted_at IS NULL`
	var args []interface{}

	if opts.City != "" {
		query += " AND city = ?"
		args = append(args, opts.City)
	}
	if opts.PropertyType != "" {
		query += " AND property_type = ?"
		args = append(args, opts.PropertyType)
	}
	if opts.Search != "" {
		query += " AND (id LIKE ? OR address LIKE ? OR city LIKE ?)"
		pattern := "%" + opts.Search + "%"
		args = append(args, pattern, pattern, pattern)
	}
	query += " ORDER BY address COLLATE NOCASE ASC"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var properties []models.Property
	for rows.Next() {
		var p models.Property
		var deletedAt sql.NullTime
		if err := rows.Scan(&p.ID, &p.Address, &p.Unit, &p.City, &p.State, &p.PostalCode, &p.PropertyType,
			&p.Beds, &p.Baths, &p.Sqft, &p.YearBuilt, &p.CreatedAt, &p.UpdatedAt, &deletedAt); err != nil {
			return nil, err
		}
		if deletedAt.Valid {
			p.DeletedAt = &deletedAt.Time
		}
		properties = append(properties, p)
	}
	return properties, rows.Err()
}

// CreatePropertyLogged creates a property and logs the action atomically.
func (db *DB) CreatePropertyLogged(p *models.Property, sessionID string) error {
	return db.withWriteLock(func() error {
		if p.PropertyType == "" {
			p.PropertyType = models.PropertyHouse
		}

		now := time.Now()
		p.CreatedAt = now
		p.UpdatedAt = now

		const maxRetries = 3
		for attempt := range maxRetries {
			id, err := generateEntityID(propertyIDPrefix)
			if err != nil {
				return err
			}
			p.ID = id

			_, err = db.conn.Exec(`
				INSERT INTO properties (id, address, unit, city, state, postal_code, property_type,
				                        beds, baths, sqft, year_built, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, p.ID, p.Address, p.Unit, p.City, p.State, p.PostalCode, p.PropertyType,
				p.Beds, p.Baths, p.Sqft, p.YearBuilt, p.CreatedAt, p.UpdatedAt)

			if err == nil {
				break
			}
			if !strings.Contains(err.Error(), "UNIQUE constraint") {
				return err
			}
			if attempt == maxRetries-1 {
				return fmt.Errorf("failed to generate unique property ID after %d attempts", maxRetries)
			}
		}

		return db.logAction(sessionID, models.ActionCreate, "property", p.ID, "", marshalEntity(p), now)
	})
}

// UpdatePropertyLogged updates a property and logs the action atomically.
func (db *DB) UpdatePropertyLogged(p *models.Property, sessionID string) error {
	return db.withWriteLock(func() error {
		prev, err := db.scanPropertyRow(p.ID)
		if err != nil {
			return err
		}
		previousData := marshalEntity(prev)

		p.UpdatedAt = time.Now()
		_, err = db.conn.Exec(`
			UPDATE properties SET address = ?, unit = ?, city = ?, state = ?, postal_code = ?,
			                      property_type = ?, beds = ?, baths = ?, sqft = ?, year_built = ?,
			                      updated_at = ?, deleted_at = ?
			WHERE id = ?
		`, p.Address, p.Unit, p.City, p.State, p.PostalCode,
			p.PropertyType, p.Beds, p.Baths, p.Sqft, p.YearBuilt,
			p.UpdatedAt, p.DeletedAt, p.ID)
		if err != nil {
			return err
		}

		return db.logAction(sessionID, models.ActionUpdate, "property", p.ID, previousData, marshalEntity(p), p.UpdatedAt)
	})
}

// DeletePropertyLogged soft-deletes a property and logs the action atomically.
func (db *DB) DeletePropertyLogged(propertyID, sessionID string) error {
	propertyID = normalizeID(propertyIDPrefix, propertyID)
	return db.withWriteLock(func() error {
		prev, err := db.scanPropertyRow(propertyID)
		if err != nil {
			return err
		}
		previousData := marshalEntity(prev)

		now := time.Now()
		_, err = db.conn.Exec(`UPDATE properties SET deleted_at = ?, updated_at = ? WHERE id = ?`, now, now, propertyID)
		if err != nil {
			return err
		}

		return db.logAction(sessionID, models.ActionDelete, "property", propertyID, previousData, "", now)
	})
}
