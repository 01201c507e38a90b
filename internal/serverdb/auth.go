package serverdb

import "fmt"

// Roster role constants
const (
	RoleOwner  = "owner"
	RoleAgent  = "agent"
	RoleViewer = "viewer"
)

// roleLevel returns the numeric level for a role (higher = more permissions).
func roleLevel(role string) int {
	switch role {
	case RoleOwner:
		return 3
	case RoleAgent:
		return 2
	case RoleViewer:
		return 1
	default:
		return 0
	}
}

// Authorize checks that the person has at least the required role on the team.
func (db *ServerDB) Authorize(teamID, email, requiredRole string) error {
	m, err := db.GetMembership(teamID, email)
	if err != nil {
		return fmt.Errorf("check membership: %w", err)
	}
	if m == nil {
		return fmt.Errorf("not a member of team %s", teamID)
	}

	if roleLevel(m.Role) < roleLevel(requiredRole) {
		return fmt.Errorf("insufficient permissions: have %s, need %s", m.Role, requiredRole)
	}
	return nil
}

// CanManageMembers checks if the person can manage the roster (requires owner role).
func (db *ServerDB) CanManageMembers(teamID, email string) error {
	return db.Authorize(teamID, email, RoleOwner)
}

// CanManageTokens checks if the person can mint or revoke team tokens (requires owner role).
func (db *ServerDB) CanManageTokens(teamID, email string) error {
	return db.Authorize(teamID, email, RoleOwner)
}

// CanViewTeam checks if the person can view team details (requires viewer role).
func (db *ServerDB) CanViewTeam(teamID, email string) error {
	return db.Authorize(teamID, email, RoleViewer)
}

// CanDeleteTeam checks if the person can delete the team (requires owner role).
func (db *ServerDB) CanDeleteTeam(teamID, email string) error {
	return db.Authorize(teamID, email, RoleOwner)
}
