package api

import (
	"testing"
	"time"

	"github.com/harper/dispatch/internal/serverdb"
)

func TestMintAndVerifyTeamToken(t *testing.T) {
	token, err := MintTeamToken("secret", "tm-1", serverdb.TokenRoleAnon, time.Hour)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	claims, err := verifyTeamToken("secret", token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.TeamID != "tm-1" {
		t.Errorf("team = %q", claims.TeamID)
	}
	if claims.Role != serverdb.TokenRoleAnon {
		t.Errorf("role = %q", claims.Role)
	}
	if claims.ExpiresAt == nil {
		t.Error("expected an expiry")
	}
}

func TestMintTeamTokenZeroTTLHasNoExpiry(t *testing.T) {
	token, err := MintTeamToken("secret", "tm-1", serverdb.TokenRoleService, 0)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	claims, err := verifyTeamToken("secret", token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.ExpiresAt != nil {
		t.Errorf("expiry = %v, want none", claims.ExpiresAt)
	}
}

func TestMintTeamTokenRejectsUnknownRole(t *testing.T) {
	if _, err := MintTeamToken("secret", "tm-1", "admin", time.Hour); err == nil {
		t.Fatal("expected error for unknown role")
	}
}

func TestVerifyTeamTokenFailures(t *testing.T) {
	good, err := MintTeamToken("secret", "tm-1", serverdb.TokenRoleAnon, time.Hour)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	if _, err := verifyTeamToken("wrong-secret", good); err == nil {
		t.Error("wrong secret accepted")
	}
	if _, err := verifyTeamToken("secret", "definitely.not.ajwt"); err == nil {
		t.Error("garbage token accepted")
	}

	expired, err := MintTeamToken("secret", "tm-1", serverdb.TokenRoleAnon, -time.Minute)
	if err != nil {
		t.Fatalf("mint expired: %v", err)
	}
	if _, err := verifyTeamToken("secret", expired); err == nil {
		t.Error("expired token accepted")
	}
}
