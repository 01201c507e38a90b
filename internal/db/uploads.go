package db

import (
	"database/sql"
	"time"
)

// PendingUpload is a staged avatar file awaiting upload to the server.
// One row per user; restaging replaces the previous file.
type PendingUpload struct {
	ID          int64
	UserID      string
	FilePath    string
	ContentType string
	CreatedAt   time.Time
	Attempts    int
	LastError   string
}

// StagePendingUpload records (or replaces) the staged avatar for a user.
func (db *DB) StagePendingUpload(userID, filePath, contentType string) error {
	return db.withWriteLock(func() error {
		_, err := db.conn.Exec(`
			INSERT INTO pending_uploads (user_id, file_path, content_type)
			VALUES (?, ?, ?)
			ON CONFLICT(user_id) DO UPDATE SET
				file_path = excluded.file_path,
				content_type = excluded.content_type,
				attempts = 0,
				last_error = ''
		`, userID, filePath, contentType)
		return err
	})
}

// GetPendingUploads returns all staged uploads, oldest first.
func (db *DB) GetPendingUploads() ([]PendingUpload, error) {
	rows, err := db.conn.Query(`
		SELECT id, user_id, file_path, content_type, created_at, attempts, last_error
		FROM pending_uploads
		ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var uploads []PendingUpload
	for rows.Next() {
		var u PendingUpload
		if err := rows.Scan(&u.ID, &u.UserID, &u.FilePath, &u.ContentType, &u.CreatedAt, &u.Attempts, &u.LastError); err != nil {
			return nil, err
		}
		uploads = append(uploads, u)
	}
	return uploads, rows.Err()
}

// GetPendingUpload returns the staged upload for a user, or nil when none exists.
func (db *DB) GetPendingUpload(userID string) (*PendingUpload, error) {
	var u PendingUpload
	err := db.conn.QueryRow(`
		SELECT id, user_id, file_path, content_type, created_at, attempts, last_error
		FROM pending_uploads WHERE user_id = ?
	`, userID).Scan(&u.ID, &u.UserID, &u.FilePath, &u.ContentType, &u.CreatedAt, &u.Attempts, &u.LastError)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// RemovePendingUpload deletes a staged upload after a successful push.
func (db *DB) RemovePendingUpload(id int64) error {
	return db.withWriteLock(func() error {
		_, err := db.conn.Exec(`DELETE FROM pending_uploads WHERE id = ?`, id)
		return err
	})
}

// MarkUploadFailed bumps the attempt counter and records the failure.
func (db *DB) MarkUploadFailed(id int64, errMsg string) error {
	return db.withWriteLock(func() error {
		_, err := db.conn.Exec(`UPDATE pending_uploads SET attempts = attempts + 1, last_error = ? WHERE id = ?`, errMsg, id)
		return err
	})
}
