package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/ladderline/ladder-server/internal/domain"
)

// TokenVerifier turns a bearer token into a principal.
type TokenVerifier interface {
	Verify(token string) (*domain.Principal, error)
}

// ctxKey is the type for context keys to avoid collisions.
type ctxKey string

// principalKey is the context key for the authenticated principal.
const principalKey ctxKey = "principal"

// PrincipalFrom returns the authenticated principal, or nil for anonymous
// requests.
func PrincipalFrom(ctx context.Context) *domain.Principal {
	p, _ := ctx.Value(principalKey).(*domain.Principal)
	return p
}

// WithPrincipal stores the principal in context.
func WithPrincipal(ctx context.Context, p *domain.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// Identify is the hub's view of PrincipalFrom.
func Identify(r *http.Request) *domain.Principal {
	return PrincipalFrom(r.Context())
}

// bearerToken extracts the token of an "Authorization: Bearer" header.
func bearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(authHeader, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// authMiddleware verifies Bearer tokens and stores the principal in context.
// Missing or invalid tokens continue anonymously; operations that need a
// principal reject the request themselves.
func authMiddleware(verifier TokenVerifier, logger interface {
	Debug(msg string, args ...any)
}) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" || verifier == nil {
				next.ServeHTTP(w, r)
				return
			}

			p, err := verifier.Verify(token)
			if err != nil {
				logger.Debug("Ignoring invalid bearer token", "path", r.URL.Path, "error", err)
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}
