// Package auth validates bearer tokens and gates the correction editor role.
package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"simba/internal/correction/models"
	"simba/pkg/platform/httputil"
)

// EditorRole is the claim value required for mutating correction endpoints.
const EditorRole = "address_editor"

// Claims are the token claims the service cares about.
type Claims struct {
	UserID string   `json:"user_id"`
	Roles  []string `json:"roles"`
	jwt.RegisteredClaims
}

// HasRole reports whether the token carries a role.
func (c *Claims) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

type contextKey struct{}

// WithClaims stores validated claims on a context.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, contextKey{}, claims)
}

// ClaimsFrom extracts the validated claims placed by the middleware, nil when
// the request was not authenticated.
func ClaimsFrom(ctx context.Context) *Claims {
	claims, _ := ctx.Value(contextKey{}).(*Claims)
	return claims
}

// Verifier parses and validates bearer tokens.
type Verifier struct {
	signingKey []byte
}

// NewVerifier constructs a token verifier for a shared HMAC key.
func NewVerifier(signingKey string) *Verifier {
	return &Verifier{signingKey: []byte(signingKey)}
}

// Validate parses a raw token and returns its claims.
func (v *Verifier) Validate(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return v.signingKey, nil
	})
	if err != nil || !parsed.Valid {
		return nil, models.ErrNotAuthorized
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		return nil, models.ErrNotAuthorized
	}
	return claims, nil
}

// Middleware validates the Authorization header and stores the claims on the
// request context. Requests without a valid token are rejected.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, found := strings.CutPrefix(header, "Bearer ")
		if !found || token == "" {
			httputil.WriteError(w, models.ErrNotAuthorized)
			return
		}
		claims, err := v.Validate(token)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

// RequireEditor rejects requests whose token lacks the editor role. Mount it
// inside Middleware on the mutating routes.
func RequireEditor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := ClaimsFrom(r.Context())
		if claims == nil || !claims.HasRole(EditorRole) {
			httputil.WriteError(w, models.ErrNotAuthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// UserID returns the authenticated user id, empty when absent.
func UserID(ctx context.Context) string {
	if claims := ClaimsFrom(ctx); claims != nil {
		return claims.UserID
	}
	return ""
}
