package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/harper/dispatch/internal/models"
)

// noteParentTypes are the entity types a note may attach to.
var noteParentTypes = map[string]bool{
	"tasks":      true,
	"listings":   true,
	"properties": true,
	"contacts":   true,
}

func (db *DB) scanNoteRow(id string) (*models.Note, error) {
	var n models.Note
	var pinned int
	var deletedAt sql.NullTime

	err := db.conn.QueryRow(`
		SELECT id, parent_type, parent_id, body, author_id, pinned, created_at, updated_at, deleted_at
		FROM notes WHERE id = ?
	`, id).Scan(&n.ID, &n.ParentType, &n.ParentID, &n.Body, &n.AuthorID, &pinned,
		&n.CreatedAt, &n.UpdatedAt, &deletedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("note not found: %s", id)
	}
	if err != nil {
		return nil, err
	}
	n.Pinned = pinned == 1
	if deletedAt.Valid {
		n.DeletedAt = &deletedAt.Time
	}
	return &n, nil
}

// GetNote retrieves a note by ID. Accepts bare IDs without the nt- prefix.
func (db *DB) GetNote(id string) (*models.Note, error) {
	return db.scanNoteRow(normalizeID(noteIDPrefix, id))
}

// ListNotes returns notes for a parent, pinned first then newest first.
func (db *DB) ListNotes(parentType, parentID string) ([]models.Note, error) {
	rows, err := db.conn.Query(`
		SELECT id, parent_type, parent_id, body, author_id, pinned, created_at, updated_at, deleted_at
		FROM notes WHERE parent_type = ? AND parent_id = ? AND deleted_at IS NULL
		ORDER BY pinned DESC, created_at DESC`, parentType, parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notes []models.Note
	for rows.Next() {
		var n models.Note
		var pinned int
		var deletedAt sql.NullTime
		if err := rows.Scan(&n.ID, &n.ParentType, &n.ParentID, &n.Body, &n.AuthorID, &pinned,
			&n.CreatedAt, &n.UpdatedAt, &deletedAt); err != nil {
			return nil, err
		}
		n.Pinned = pinned == 1
		if deletedAt.Valid {
			n.DeletedAt = &deletedAt.Time
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

// CreateNoteLogged creates a note and logs the action atomically.
func (db *DB) CreateNoteLogged(n *models.Note, sessionID string) error {
	if !noteParentTypes[n.ParentType] {
		return fmt.Errorf("invalid note parent type: %q", n.ParentType)
	}
	return db.withWriteLock(func() error {
		now := time.Now()
		n.CreatedAt = now
		n.UpdatedAt = now

		id, err := generateEntityID(noteIDPrefix)
		if err != nil {
			return err
		}
		n.ID = id

		_, err = db.conn.Exec(`
			INSERT INTO notes (id, parent_type, parent_id, body, author_id, pinned, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, n.ID, n.ParentType, n.ParentID, n.Body, n.AuthorID, boolToInt(n.Pinned), n.CreatedAt, n.UpdatedAt)
		if err != nil {
			return err
		}

		return db.logAction(sessionID, models.ActionCreate, "note", n.ID, "", marshalEntity(n), now)
	})
}

// UpdateNoteLogged updates a note and logs the action atomically.
func (db *DB) UpdateNoteLogged(n *models.Note, sessionID string) error {
	return db.withWriteLock(func() error {
		prev, err := db.scanNoteRow(n.ID)
		if err != nil {
			return err
		}
		previousData := marshalEntity(prev)

		n.UpdatedAt = time.Now()
		_, err = db.conn.Exec(`
			UPDATE notes SET body = ?, pinned = ?, updated_at = ?, deleted_at = ? WHERE id = ?
		`, n.Body, boolToInt(n.Pinned), n.UpdatedAt, n.DeletedAt, n.ID)
		if err != nil {
			return err
		}

		return db.logAction(sessionID, models.ActionUpdate, "note", n.ID, previousData, marshalEntity(n), n.UpdatedAt)
	})
}

// DeleteNoteLogged soft-deletes a note and logs the action atomically.
func (db *DB) DeleteNoteLogged(noteID, sessionID string) error {
	noteID = normalizeID(noteIDPrefix, noteID)
	return db.withWriteLock(func() error {
		prev, err := db.scanNoteRow(noteID)
		if err != nil {
			return err
		}
		previousData := marshalEntity(prev)

		now := time.Now()
		_, err = db.conn.Exec(`UPDATE notes SET deleted_at = ?, updated_at = ? WHERE id = ?`, now, now, noteID)
		if err != nil {
			return err
		}

		return db.logAction(sessionID, models.ActionDelete, "note", noteID, previousData, "", now)
	})
}
