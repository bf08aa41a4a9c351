package auth

import (
	"context"
	"net/http"
	"slices"
	"strings"

	"github.com/clientledger/clientledger/server/internal/store"
)

// Validator resolves a bearer token to the caller. *Service implements it.
type Validator interface {
	Validate(ctx context.Context, token string) (Principal, error)
}

// FailFunc writes the response for a request rejected with err.
type FailFunc func(w http.ResponseWriter, r *http.Request, err error)

type principalKey struct{}

// NewContext returns a copy of ctx carrying p.
func NewContext(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the Principal stored by Authenticate.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
// Browsers cannot set headers on WebSocket handshakes, so the access_token
// query parameter is accepted as a fallback.
func BearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if tok, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(tok)
		}
		return ""
	}
	return r.URL.Query().Get("access_token")
}

// Authenticate rejects requests without a valid token and stores the caller
// in the request context.
func Authenticate(v Validator, fail FailFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok := BearerToken(r)
			if tok == "" {
				fail(w, r, ErrUnauthenticated)
				return
			}
			p, err := v.Validate(r.Context(), tok)
			if err != nil {
				fail(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), p)))
		})
	}
}

// RequireRole rejects authenticated callers whose role is not in roles.
// It must run inside Authenticate.
func RequireRole(fail FailFunc, roles ...store.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := FromContext(r.Context())
			if !ok {
				fail(w, r, ErrUnauthenticated)
				return
			}
			if !slices.Contains(roles, p.Role) {
				fail(w, r, ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
