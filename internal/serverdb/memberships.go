package serverdb

import (
	"database/sql"
	"fmt"
	"time"
)

// Membership represents a person's role on a team roster.
type Membership struct {
	TeamID    string
	Email     string
	Role      string
	InvitedBy string
	CreatedAt time.Time
}

// AddMember adds a person to a team roster with the given role.
func (db *ServerDB) AddMember(teamID, email, role, invitedByEmail string) (*Membership, error) {
	if !isValidRole(role) {
		return nil, fmt.Errorf("invalid role: %s", role)
	}
	if email == "" {
		return nil, fmt.Errorf("email is required")
	}

	// Validate team exists
	var exists int
	if err := db.conn.QueryRow(`SELECT 1 FROM teams WHERE id = ? AND deleted_at IS NULL`, teamID).Scan(&exists); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("team not found: %s", teamID)
		}
		return nil, fmt.Errorf("check team: %w", err)
	}

	now := time.Now().UTC()
	_, err := db.conn.Exec(
		`INSERT INTO memberships (team_id, email, role, invited_by, created_at) VALUES (?, ?, ?, ?, ?)`,
		teamID, email, role, invitedByEmail, now,
	)
	if err != nil {
		return nil, fmt.Errorf("add member: %w", err)
	}

	return &Membership{
		TeamID:    teamID,
		Email:     email,
		Role:      role,
		InvitedBy: invitedByEmail,
		CreatedAt: now,
	}, nil
}

// GetMembership returns a person's membership on a team, or nil if not found.
func (db *ServerDB) GetMembership(teamID, email string) (*Membership, error) {
	m := &Membership{}
	err := db.conn.QueryRow(
		`SELECT team_id, email, role, invited_by, created_at FROM memberships WHERE team_id = ? AND email = ?`,
		teamID, email,
	).Scan(&m.TeamID, &m.Email, &m.Role, &m.InvitedBy, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get membership: %w", err)
	}
	return m, nil
}

// ListMembers returns all members of a team.
func (db *ServerDB) ListMembers(teamID string) ([]*Membership, error) {
	rows, err := db.conn.Query(
		`SELECT team_id, email, role, invited_by, created_at FROM memberships WHERE team_id = ? ORDER BY created_at`,
		teamID,
	)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var members []*Membership
	for rows.Next() {
		m := &Membership{}
		if err := rows.Scan(&m.TeamID, &m.Email, &m.Role, &m.InvitedBy, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list members: iterate: %w", err)
	}
	return members, nil
}

// UpdateMemberRole changes a member's role.
func (db *ServerDB) UpdateMemberRole(teamID, email, newRole string) error {
	if !isValidRole(newRole) {
		return fmt.Errorf("invalid role: %s", newRole)
	}

	res, err := db.conn.Exec(
		`UPDATE memberships SET role = ? WHERE team_id = ? AND email = ?`,
		newRole, teamID, email,
	)
	if err != nil {
		return fmt.Errorf("update member role: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("membership not found")
	}
	return nil
}

// RemoveMember removes a person from a team roster.
// Fails if removing them would leave the team with no owners.
func (db *ServerDB) RemoveMember(teamID, email string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Check current membership within tx
	var role string
	err = tx.QueryRow(
		`SELECT role FROM memberships WHERE team_id = ? AND email = ?`,
		teamID, email,
	).Scan(&role)
	if err == sql.ErrNoRows {
		return fmt.Errorf("membership not found")
	}
	if err != nil {
		return fmt.Errorf("get membership: %w", err)
	}

	// If removing an owner, ensure at least one other owner remains
	if role == RoleOwner {
		var ownerCount int
		err := tx.QueryRow(
			`SELECT COUNT(*) FROM memberships WHERE team_id = ? AND role = 'owner'`,
			teamID,
		).Scan(&ownerCount)
		if err != nil {
			return fmt.Errorf("count owners: %w", err)
		}
		if ownerCount <= 1 {
			return fmt.Errorf("cannot remove last owner from team")
		}
	}

	_, err = tx.Exec(
		`DELETE FROM memberships WHERE team_id = ? AND email = ?`,
		teamID, email,
	)
	if err != nil {
		return fmt.Errorf("remove member: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func isValidRole(role string) bool {
	return role == RoleOwner || role == RoleAgent || role == RoleViewer
}
