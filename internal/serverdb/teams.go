package serverdb

import (
	"database/sql"
	"fmt"
	"time"
)

// Team represents a sync team.
type Team struct {
	ID          string
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   *time.Time
}

// CreateTeam creates a new team and adds the owner to its roster in a single
// transaction.
func (db *ServerDB) CreateTeam(name, description, ownerEmail string) (*Team, error) {
	if name == "" {
		return nil, fmt.Errorf("team name is required")
	}
	if ownerEmail == "" {
		return nil, fmt.Errorf("owner email is required")
	}

	id, err := generateID("tm-")
	if err != nil {
		return nil, fmt.Errorf("generate team id: %w", err)
	}

	now := time.Now().UTC()

	tx, err := db.conn.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO teams (id, name, description, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, name, description, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert team: %w", err)
	}

	_, err = tx.Exec(
		`INSERT INTO memberships (team_id, email, role, invited_by, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, ownerEmail, RoleOwner, "", now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert owner membership: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return &Team{ID: id, Name: name, Description: description, CreatedAt: now, UpdatedAt: now}, nil
}

// GetTeam returns a team by ID. If includeSoftDeleted is false, soft-deleted
// teams are excluded.
func (db *ServerDB) GetTeam(id string, includeSoftDeleted bool) (*Team, error) {
	query := `SELECT id, name, description, created_at, updated_at, deleted_at FROM teams WHERE id = ?`
	if !includeSoftDeleted {
		query += ` AND deleted_at IS NULL`
	}

	t := &Team{}
	err := db.conn.QueryRow(query, id).Scan(&t.ID, &t.Name, &t.Description, &t.CreatedAt, &t.UpdatedAt, &t.DeletedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get team: %w", err)
	}
	return t, nil
}

// ListTeams returns all non-deleted teams.
func (db *ServerDB) ListTeams() ([]*Team, error) {
	rows, err := db.conn.Query(`
		SELECT id, name, description, created_at, updated_at, deleted_at
		FROM teams WHERE deleted_at IS NULL ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	defer rows.Close()

	var teams []*Team
	for rows.Next() {
		t := &Team{}
		if err := rows.Scan(&t.ID, &t.Name, &t.Description, &t.CreatedAt, &t.UpdatedAt, &t.DeletedAt); err != nil {
			return nil, fmt.Errorf("scan team: %w", err)
		}
		teams = append(teams, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list teams: iterate: %w", err)
	}
	return teams, nil
}

// UpdateTeam updates a team's name and description.
func (db *ServerDB) UpdateTeam(id, name, description string) (*Team, error) {
	now := time.Now().UTC()
	res, err := db.conn.Exec(
		`UPDATE teams SET name = ?, description = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		name, description, now, id,
	)
	if err != nil {
		return nil, fmt.Errorf("update team: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return nil, fmt.Errorf("team not found: %s", id)
	}
	return db.GetTeam(id, false)
}

// SoftDeleteTeam marks a team as deleted and revokes all its tokens.
func (db *ServerDB) SoftDeleteTeam(id string) error {
	now := time.Now().UTC()

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`UPDATE teams SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		now, now, id,
	)
	if err != nil {
		return fmt.Errorf("soft delete team: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("team not found: %s", id)
	}

	if _, err := tx.Exec(
		`UPDATE team_tokens SET revoked_at = ? WHERE team_id = ? AND revoked_at IS NULL`,
		now, id,
	); err != nil {
		return fmt.Errorf("revoke team tokens: %w", err)
	}

	return tx.Commit()
}
