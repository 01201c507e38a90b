package db

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

const (
	taskIDPrefix         = "tk-"
	subtaskIDPrefix      = "st-"
	listingIDPrefix      = "ls-"
	propertyIDPrefix     = "pr-"
	activityIDPrefix     = "ac-"
	noteIDPrefix         = "nt-"
	statusChangeIDPrefix = "sc-"
	showingIDPrefix      = "sh-"
	userIDPrefix         = "us-"
	realtorIDPrefix      = "rl-"
	contactIDPrefix      = "ct-"
	actionIDPrefix       = "al-"
)

// entityIDPrefixes maps sync entity type names to their ID prefixes.
var entityIDPrefixes = map[string]string{
	"task":          taskIDPrefix,
	"subtask":       subtaskIDPrefix,
	"listing":       listingIDPrefix,
	"property":      propertyIDPrefix,
	"activity":      activityIDPrefix,
	"note":          noteIDPrefix,
	"status_change": statusChangeIDPrefix,
	"showing":       showingIDPrefix,
	"user":          userIDPrefix,
	"realtor":       realtorIDPrefix,
	"contact":       contactIDPrefix,
}

// NormalizeTaskID ensures a task ID has the tk- prefix
// Accepts bare hex IDs like "abc123" and returns "tk-abc123"
func NormalizeTaskID(id string) string {
	return normalizeID(taskIDPrefix, id)
}

// NormalizeListingID ensures a listing ID has the ls- prefix
func NormalizeListingID(id string) string {
	return normalizeID(listingIDPrefix, id)
}

// NormalizeEntityID ensures an ID carries the prefix for its entity type.
// Unknown entity types return the ID unchanged.
func NormalizeEntityID(entityType, id string) string {
	prefix, ok := entityIDPrefixes[entityType]
	if !ok {
		return id
	}
	return normalizeID(prefix, id)
}

func normalizeID(prefix, id string) string {
	if id == "" {
		return id
	}
	if !strings.HasPrefix(id, prefix) {
		return prefix + id
	}
	return id
}

// generateEntityID creates a prefixed ID with 4 random bytes (8 hex chars)
func generateEntityID(prefix string) (string, error) {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return prefix + hex.EncodeToString(b), nil
}

// generateActionID generates a unique action_log entry ID
func generateActionID() (string, error) {
	return generateEntityID(actionIDPrefix)
}
