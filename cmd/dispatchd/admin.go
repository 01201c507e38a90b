package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/harper/dispatch/internal/api"
	"github.com/harper/dispatch/internal/serverdb"
)

func runAdmin(args []string) {
	if len(args) < 2 {
		printAdminUsage()
		os.Exit(1)
	}

	switch args[0] + " " + args[1] {
	case "team create":
		runAdminTeamCreate(args[2:])
	case "team list":
		runAdminTeamList(args[2:])
	case "token create":
		runAdminTokenCreate(args[2:])
	case "token list":
		runAdminTokenList(args[2:])
	case "token revoke":
		runAdminTokenRevoke(args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown admin command: %s %s\n", args[0], args[1])
		printAdminUsage()
		os.Exit(1)
	}
}

func printAdminUsage() {
	fmt.Fprintln(os.Stderr, `Usage: dispatchd admin <command> [flags]

Commands:
  team create   Create a team
  team list     List teams
  token create  Mint a bearer token for a team
  token list    List a team's tokens
  token revoke  Revoke a token ahead of its expiry`)
}

func openStore(dbPath string) *serverdb.ServerDB {
	if dbPath == "" {
		cfg := api.LoadConfig()
		dbPath = filepath.Join(cfg.DataDir, "server.db")
	}
	store, err := serverdb.Open(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: open database: %v\n", err)
		os.Exit(1)
	}
	return store
}

func runAdminTeamCreate(args []string) {
	fs := flag.NewFlagSet("admin team create", flag.ExitOnError)
	name := fs.String("name", "", "team name")
	description := fs.String("description", "", "team description")
	owner := fs.String("owner", "", "owner email address")
	dbPath := fs.String("db", "", "path to server.db (default: from DISPATCHD_DATA_DIR)")
	fs.Parse(args)

	if *name == "" {
		fmt.Fprintln(os.Stderr, "error: --name is required")
		fs.Usage()
		os.Exit(1)
	}
	if *owner == "" {
		fmt.Fprintln(os.Stderr, "error: --owner is required")
		fs.Usage()
		os.Exit(1)
	}

	store := openStore(*dbPath)
	defer store.Close()

	team, err := store.CreateTeam(*name, *description, *owner)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("created team %s\n", team.ID)
	fmt.Printf("  name:  %s\n", team.Name)
	fmt.Printf("  owner: %s\n", *owner)
}

func runAdminTeamList(args []string) {
	fs := flag.NewFlagSet("admin team list", flag.ExitOnError)
	dbPath := fs.String("db", "", "path to server.db (default: from DISPATCHD_DATA_DIR)")
	fs.Parse(args)

	store := openStore(*dbPath)
	defer store.Close()

	teams, err := store.ListTeams()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if len(teams) == 0 {
		fmt.Println("no teams")
		return
	}
	for _, t := range teams {
		fmt.Printf("%s  %-24s created %s\n", t.ID, t.Name, t.CreatedAt.Format("2006-01-02"))
	}
}

func runAdminTokenCreate(args []string) {
	fs := flag.NewFlagSet("admin token create", flag.ExitOnError)
	teamID := fs.String("team", "", "team id")
	name := fs.String("name", "", "token name (e.g. harper-laptop)")
	role := fs.String("role", serverdb.TokenRoleAnon, "token role: anon or service")
	ttl := fs.Duration("ttl", 0, "token lifetime (0 = no expiry)")
	dbPath := fs.String("db", "", "path to server.db (default: from DISPATCHD_DATA_DIR)")
	fs.Parse(args)

	if *teamID == "" {
		fmt.Fprintln(os.Stderr, "error: --team is required")
		fs.Usage()
		os.Exit(1)
	}
	if *name == "" {
		fmt.Fprintln(os.Stderr, "error: --name is required")
		fs.Usage()
		os.Exit(1)
	}

	cfg := api.LoadConfig()
	if cfg.JWTSecret == "" {
		fmt.Fprintln(os.Stderr, "error: DISPATCHD_JWT_SECRET must be set to mint tokens")
		os.Exit(1)
	}

	store := openStore(*dbPath)
	defer store.Close()

	team, err := store.GetTeam(*teamID, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if team == nil {
		fmt.Fprintf(os.Stderr, "error: team not found: %s\n", *teamID)
		os.Exit(1)
	}

	token, err := api.MintTeamToken(cfg.JWTSecret, *teamID, *role, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	rec, err := store.RecordToken(*teamID, token, *name, *role)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("created token for team %s\n", team.Name)
	fmt.Printf("  id:    %s\n", rec.ID)
	fmt.Printf("  name:  %s\n", rec.Name)
	fmt.Printf("  role:  %s\n", rec.Role)
	fmt.Printf("  token: %s\n", token)
	fmt.Println("\nSave this token now -- it will not be shown again.")
}

func runAdminTokenList(args []string) {
	fs := flag.NewFlagSet("admin token list", flag.ExitOnError)
	teamID := fs.String("team", "", "team id")
	dbPath := fs.String("db", "", "path to server.db (default: from DISPATCHD_DATA_DIR)")
	fs.Parse(args)

	if *teamID == "" {
		fmt.Fprintln(os.Stderr, "error: --team is required")
		fs.Usage()
		os.Exit(1)
	}

	store := openStore(*dbPath)
	defer store.Close()

	tokens, err := store.ListTokens(*teamID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if len(tokens) == 0 {
		fmt.Println("no tokens")
		return
	}
	for _, t := range tokens {
		status := "active"
		if t.RevokedAt != nil {
			status = "revoked"
		}
		lastUsed := "never"
		if t.LastUsedAt != nil {
			lastUsed = t.LastUsedAt.Format("2006-01-02 15:04")
		}
		fmt.Printf("%s  %-20s %-7s %-8s last used %s\n", t.ID, t.Name, t.Role, status, lastUsed)
	}
}

func runAdminTokenRevoke(args []string) {
	fs := flag.NewFlagSet("admin token revoke", flag.ExitOnError)
	tokenID := fs.String("id", "", "token id")
	dbPath := fs.String("db", "", "path to server.db (default: from DISPATCHD_DATA_DIR)")
	fs.Parse(args)

	if *tokenID == "" {
		fmt.Fprintln(os.Stderr, "error: --id is required")
		fs.Usage()
		os.Exit(1)
	}

	store := openStore(*dbPath)
	defer store.Close()

	if err := store.RevokeToken(*tokenID); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("revoked token %s\n", *tokenID)
}
