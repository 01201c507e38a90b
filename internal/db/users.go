package db

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/harper/dispatch/internal/models"
)

// scanUserRow reads a full user row from the DB.
func (db *DB) scanUserRow(id string) (*models.User, error) {
	var u models.User
	var avatarUpdatedAt, deletedAt sql.NullTime

	err := db.conn.QueryRow(`
		SELECT id, email, display_name, role, avatar_url, avatar_updated_at,
		       created_at, updated_at, deleted_at
		FROM users WHERE id = ?
	`, id).Scan(
		&u.ID, &u.Email, &u.DisplayName, &u.Role, &u.AvatarURL, &avatarUpdatedAt,
		&u.CreatedAt, &u.UpdatedAt, &deletedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user not found: %s", id)
	}
	if err != nil {
		return nil, err
	}

	if avatarUpdatedAt.Valid {
		u.AvatarUpdatedAt = &avatarUpdatedAt.Time
	}
	if deletedAt.Valid {
		u.DeletedAt = &deletedAt.Time
	}
	return &u, nil
}

// GetUser retrieves a user by ID. Accepts bare IDs without the us- prefix.
func (db *DB) GetUser(id string) (*models.User, error) {
	return db.scanUserRow(normalizeID(userIDPrefix, id))
}

// GetUserByEmail retrieves a user by email address.
func (db *DB) GetUserByEmail(email string) (*models.User, error) {
	var id string
	err := db.conn.QueryRow(`SELECT id FROM users WHERE email = ? AND deleted_at IS NULL`, email).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return db.scanUserRow(id)
}

// ListUsers returns all users, excluding soft-deleted rows unless includeDeleted is set.
func (db *DB) ListUsers(includeDeleted bool) ([]models.User, error) {
	query := `SELECT id, email, display_name, role, avatar_url, avatar_updated_at,
	                 created_at, updated_at, deleted_at
	          FROM users`
	if !includeDeleted {
		query += " WHERE deleted_at IS NULL"
	}
	query += " ORDER BY display_name COLLATE NOCASE ASC"

	rows, err := db.conn.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		var avatarUpdatedAt, deletedAt sql.NullTime
		if err := rows.Scan(&u.ID, &u.Email, &u.DisplayName, &u.Role, &u.AvatarURL, &avatarUpdatedAt,
			&u.CreatedAt, &u.UpdatedAt, &deletedAt); err != nil {
			return nil, err
		}
		if avatarUpdatedAt.Valid {
			u.AvatarUpdatedAt = &avatarUpdatedAt.Time
		}
		if deletedAt.Valid {
			u.DeletedAt = &deletedAt.Time
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// CreateUserLogged creates a user and logs the action atomically.
func (db *DB) CreateUserLogged(user *models.User, sessionID string) error {
	return db.withWriteLock(func() error {
		now := time.Now()
		user.CreatedAt = now
		user.UpdatedAt = now

		const maxRetries = 3
		for attempt := range maxRetries {
			id, err := generateEntityID(userIDPrefix)
			if err != nil {
				return err
			}
			user.ID = id

			_, err = db.conn.Exec(`
				INSERT INTO users (id, email, display_name, role, avatar_url, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`, user.ID, user.Email, user.DisplayName, user.Role, user.AvatarURL, user.CreatedAt, user.UpdatedAt)

			if err == nil {
				break
			}
			if !strings.Contains(err.Error(), "UNIQUE constraint") {
				return err
			}
			if attempt == maxRetries-1 {
				return fmt.Errorf("failed to generate unique user ID after %d attempts", maxRetries)
			}
		}

		return db.logAction(sessionID, models.ActionCreate, "user", user.ID, "", marshalEntity(user), now)
	})
}

// UpdateUserLogged updates a user and logs the action atomically.
func (db *DB) UpdateUserLogged(user *models.User, sessionID string) error {
	return db.withWriteLock(func() error {
		prev, err := db.scanUserRow(user.ID)
		if err != nil {
			return err
		}
		previousData := marshalEntity(prev)

		user.UpdatedAt = time.Now()
		_, err = db.conn.Exec(`
			UPDATE users SET email = ?, display_name = ?, role = ?, avatar_url = ?,
			                 avatar_updated_at = ?, updated_at = ?, deleted_at = ?
			WHERE id = ?
		`, user.Email, user.DisplayName, user.Role, user.AvatarURL,
			user.AvatarUpdatedAt, user.UpdatedAt, user.DeletedAt, user.ID)
		if err != nil {
			return err
		}

		return db.logAction(sessionID, models.ActionUpdate, "user", user.ID, previousData, marshalEntity(user), user.UpdatedAt)
	})
}

// DeleteUserLogged soft-deletes a user and logs the action atomically.
func (db *DB) DeleteUserLogged(userID, sessionID string) error {
	userID = normalizeID(userIDPrefix, userID)
	return db.withWriteLock(func() error {
		prev, err := db.scanUserRow(userID)
		if err != nil {
			return err
		}
		previousData := marshalEntity(prev)

		now := time.Now()
		_, err = db.conn.Exec(`UPDATE users SET deleted_at = ?, updated_at = ? WHERE id = ?`, now, now, userID)
		if err != nil {
			return err
		}

		return db.logAction(sessionID, models.ActionDelete, "user", userID, previousData, "", now)
	})
}
