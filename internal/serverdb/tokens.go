package serverdb

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"
)

// Token roles. "anon" tokens may only push events for their own device;
// "service" tokens may push for any device and mint snapshots.
const (
	TokenRoleAnon    = "anon"
	TokenRoleService = "service"
)

// TeamToken is the stored record of a minted bearer token. The token itself
// is a JWT handed to the client once; only its hash persists here.
type TeamToken struct {
	ID          string
	TeamID      string
	TokenPrefix string
	Name        string
	Role        string
	LastUsedAt  *time.Time
	RevokedAt   *time.Time
	CreatedAt   time.Time
}

// HashToken returns the hex SHA-256 of a bearer token, the form stored in
// team_tokens.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func tokenPrefix(token string) string {
	if len(token) > 12 {
		return token[:12]
	}
	return token
}

// RecordToken stores the hash of a freshly minted token.
func (db *ServerDB) RecordToken(teamID, token, name, role string) (*TeamToken, error) {
	if role != TokenRoleAnon && role != TokenRoleService {
		return nil, fmt.Errorf("invalid token role: %s", role)
	}

	id, err := generateID("tok-")
	if err != nil {
		return nil, fmt.Errorf("generate token id: %w", err)
	}

	now := time.Now().UTC()
	_, err = db.conn.Exec(
		`INSERT INTO team_tokens (id, team_id, token_hash, token_prefix, name, role, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, teamID, HashToken(token), tokenPrefix(token), name, role, now,
	)
	if err != nil {
		return nil, fmt.Errorf("record token: %w", err)
	}

	return &TeamToken{
		ID:          id,
		TeamID:      teamID,
		TokenPrefix: tokenPrefix(token),
		Name:        name,
		Role:        role,
		CreatedAt:   now,
	}, nil
}

// LookupToken finds the record for a presented bearer token. Returns nil if
// unknown; revoked tokens are returned with RevokedAt set so callers can
// reject them with a precise reason.
func (db *ServerDB) LookupToken(token string) (*TeamToken, error) {
	t := &TeamToken{}
	err := db.conn.QueryRow(
		`SELECT id, team_id, token_prefix, name, role, last_used_at, revoked_at, created_at
		 FROM team_tokens WHERE token_hash = ?`,
		HashToken(token),
	).Scan(&t.ID, &t.TeamID, &t.TokenPrefix, &t.Name, &t.Role, &t.LastUsedAt, &t.RevokedAt, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup token: %w", err)
	}
	return t, nil
}

// TouchToken updates a token's last_used_at. Best effort.
func (db *ServerDB) TouchToken(tokenID string) error {
	_, err := db.conn.Exec(
		`UPDATE team_tokens SET last_used_at = ? WHERE id = ?`,
		time.Now().UTC(), tokenID,
	)
	if err != nil {
		return fmt.Errorf("touch token: %w", err)
	}
	return nil
}

// RevokeToken marks a token revoked. Revoking a revoked token is an error so
// operators notice typos.
func (db *ServerDB) RevokeToken(tokenID string) error {
	res, err := db.conn.Exec(
		`UPDATE team_tokens SET revoked_at = ? WHERE id = ? AND revoked_at IS NULL`,
		time.Now().UTC(), tokenID,
	)
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("token not found or already revoked: %s", tokenID)
	}
	return nil
}

// ListTokens returns all tokens minted for a team, newest first.
func (db *ServerDB) ListTokens(teamID string) ([]*TeamToken, error) {
	rows, err := db.conn.Query(
		`SELECT id, team_id, token_prefix, name, role, last_used_at, revoked_at, created_at
		 FROM team_tokens WHERE team_id = ? ORDER BY created_at DESC`,
		teamID,
	)
	if err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	defer rows.Close()

	var tokens []*TeamToken
	for rows.Next() {
		t := &TeamToken{}
		if err := rows.Scan(&t.ID, &t.TeamID, &t.TokenPrefix, &t.Name, &t.Role, &t.LastUsedAt, &t.RevokedAt, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan token: %w", err)
		}
		tokens = append(tokens, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tokens: iterate: %w", err)
	}
	return tokens, nil
}
