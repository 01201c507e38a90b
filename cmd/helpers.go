package cmd

import (
	"github.com/harper/dispatch/internal/db"
	"github.com/harper/dispatch/internal/output"
	"github.com/harper/dispatch/internal/session"
)

// openWorkspace opens the local database and resolves the current session.
// Every mutating command goes through here so its action log rows carry a
// session ID.
func openWorkspace() (*db.DB, *session.Session, error) {
	dir := getBaseDir()
	database, err := db.Open(dir)
	if err != nil {
		output.Error("open database: %v", err)
		return nil, nil, err
	}

	sess, err := session.GetOrCreate(dir)
	if err != nil {
		database.Close()
		output.Error("get session: %v", err)
		return nil, nil, err
	}

	return database, sess, nil
}
