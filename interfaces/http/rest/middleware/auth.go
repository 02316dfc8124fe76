// Package middleware holds the HTTP middleware for the REST surface.
// Authentication itself lives in an external collaborator; this layer only
// verifies the token signature and extracts tenant claims.
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"opsbrain/pkg/common"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const (
	tenantIDKey contextKey = "tenantID"
	subjectKey  contextKey = "subject"
)

// Claims are the token claims this service consumes
type Claims struct {
	TenantID string `json:"tenant_id"`
	jwt.RegisteredClaims
}

// Auth verifies the bearer token and stores tenant identity on the request
// context. An empty secret disables verification for local development.
func Auth(secret, issuer string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				// Development mode: trust the header-supplied tenant
				tenantID := r.Header.Get("X-Tenant-ID")
				if tenantID == "" {
					tenantID = "dev"
				}
				next.ServeHTTP(w, r.WithContext(withTenant(r.Context(), tenantID, "dev")))
				return
			}

			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				common.RespondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token")
				return
			}

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(strings.TrimPrefix(header, "Bearer "), claims,
				func(t *jwt.Token) (interface{}, error) {
					if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
						return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
					}
					return []byte(secret), nil
				},
				jwt.WithIssuer(issuer),
			)
			if err != nil || !token.Valid {
				common.RespondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid token")
				return
			}
			if claims.TenantID == "" {
				common.RespondError(w, http.StatusForbidden, "FORBIDDEN", "token carries no tenant")
				return
			}

			next.ServeHTTP(w, r.WithContext(withTenant(r.Context(), claims.TenantID, claims.Subject)))
		})
	}
}

func withTenant(ctx context.Context, tenantID, subject string) context.Context {
	ctx = context.WithValue(ctx, tenantIDKey, tenantID)
	return context.WithValue(ctx, subjectKey, subject)
}

// TenantID returns the authenticated tenant from the request context
func TenantID(ctx context.Context) string {
	tenantID, _ := ctx.Value(tenantIDKey).(string)
	return tenantID
}

// Subject returns the authenticated principal from the request context
func Subject(ctx context.Context) string {
	subject, _ := ctx.Value(subjectKey).(string)
	return subject
}
