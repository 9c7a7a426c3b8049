package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/clinicdesk/inbox-platform/internal/tenancy"
)

type contextKey string

const agentIdentityKey contextKey = "agentIdentity"

// AgentClaims is the token payload issued to inbox agents. Subject carries
// the agent's user id; TenantID pins the token to one tenant.
type AgentClaims struct {
	TenantID string `json:"tenant_id"`
	jwt.RegisteredClaims
}

// AgentIdentity is the authenticated caller extracted from a valid token.
type AgentIdentity struct {
	UserID   uuid.UUID
	TenantID uuid.UUID
}

// AgentJWT enforces an HMAC-signed JWT for agent-facing API endpoints. The
// parsed identity is placed on the request context for the guard layer, and
// the token's tenant is stamped into the tenancy context for everything
// downstream.
func AgentJWT(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				http.Error(w, "agent auth disabled", http.StatusUnauthorized)
				return
			}
			auth := r.Header.Get("Authorization")
			if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
				http.Error(w, "missing authorization header", http.StatusUnauthorized)
				return
			}
			tokenString := strings.TrimPrefix(auth, "Bearer ")
			claims := AgentClaims{}
			token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			userID, err := uuid.Parse(claims.Subject)
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			tenantID, err := uuid.Parse(claims.TenantID)
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			identity := AgentIdentity{UserID: userID, TenantID: tenantID}
			ctx := context.WithValue(r.Context(), agentIdentityKey, identity)
			ctx = tenancy.WithTenant(ctx, tenantID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AgentFromContext returns the authenticated agent identity if present.
func AgentFromContext(ctx context.Context) (AgentIdentity, bool) {
	identity, ok := ctx.Value(agentIdentityKey).(AgentIdentity)
	return identity, ok
}
