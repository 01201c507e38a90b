package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/harper/dispatch/internal/serverdb"
)

// TokenClaims are the claims carried by a team bearer token.
type TokenClaims struct {
	TeamID string `json:"team_id"`
	Role   string `json:"role"` // anon | service
	jwt.RegisteredClaims
}

// AuthToken is the verified identity attached to a request.
type AuthToken struct {
	TeamID  string
	Role    string
	TokenID string // set when the token is recorded in the control plane
}

// MintTeamToken signs an HS256 team token. A zero ttl produces a token
// without an expiry (suitable for long-lived anon keys).
func MintTeamToken(secret, teamID, role string, ttl time.Duration) (string, error) {
	if role != serverdb.TokenRoleAnon && role != serverdb.TokenRoleService {
		return "", fmt.Errorf("invalid token role: %s", role)
	}
	claims := TokenClaims{
		TeamID: teamID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(time.Now().UTC()),
		},
	}
	// Only a zero ttl means no expiry. A negative ttl mints an
	// already-expired token rather than an eternal one.
	if ttl != 0 {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().UTC().Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// verifyTeamToken parses and validates an HS256 team token.
func verifyTeamToken(secret, token string) (*TokenClaims, error) {
	claims := &TokenClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return nil, err
	}
	if claims.TeamID == "" {
		return nil, fmt.Errorf("token missing team_id claim")
	}
	if claims.Role != serverdb.TokenRoleAnon && claims.Role != serverdb.TokenRoleService {
		return nil, fmt.Errorf("token has invalid role claim: %q", claims.Role)
	}
	return claims, nil
}

// requireTeamAuth verifies the Bearer token, checks it against the control
// plane's revocation list, and rejects tokens scoped to a different team
// than the {team} path value. The verified AuthToken lands in the context.
func (s *Server) requireTeamAuth(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "missing authorization header")
			return
		}
		if !strings.HasPrefix(authHeader, "Bearer ") {
			writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "invalid authorization format")
			return
		}
		raw := strings.TrimPrefix(authHeader, "Bearer ")

		// Local dev stacks run without minted tokens: the baked anon key
		// grants anon access to whichever team the path names.
		if s.config.DevAnonKey != "" && raw == s.config.DevAnonKey {
			at := &AuthToken{TeamID: r.PathValue("team"), Role: serverdb.TokenRoleAnon}
			ctx := context.WithValue(r.Context(), ctxKeyAuthToken, at)
			ctx = context.WithValue(ctx, ctxKeyLogger, logFor(ctx).With("team", at.TeamID))
			handler(w, r.WithContext(ctx))
			return
		}

		claims, err := verifyTeamToken(s.config.JWTSecret, raw)
		if err != nil {
			writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "invalid or expired token")
			return
		}

		at := &AuthToken{TeamID: claims.TeamID, Role: claims.Role}

		// Tokens minted through `dispatchd admin token` are recorded by hash
		// so they can be revoked ahead of their expiry.
		rec, err := s.store.LookupToken(raw)
		if err != nil {
			logFor(r.Context()).Error("look up token", "err", err)
			writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to verify token")
			return
		}
		if rec != nil {
			if rec.RevokedAt != nil {
				writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "token has been revoked")
				return
			}
			at.TokenID = rec.ID
			if err := s.store.TouchToken(rec.ID); err != nil {
				slog.Warn("touch token", "err", err)
			}
		}

		if team := r.PathValue("team"); team != "" && team != at.TeamID {
			writeError(w, http.StatusForbidden, ErrCodeForbidden, "token is not valid for this team")
			return
		}

		ctx := context.WithValue(r.Context(), ctxKeyAuthToken, at)
		ctx = context.WithValue(ctx, ctxKeyLogger, logFor(ctx).With("team", at.TeamID))
		handler(w, r.WithContext(ctx))
	}
}
