package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/clientledger/clientledger/server/internal/store"
)

// recordFail writes 401 for token problems and 403 for ErrForbidden.
func recordFail(w http.ResponseWriter, _ *http.Request, err error) {
	if errors.Is(err, ErrForbidden) {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	w.WriteHeader(http.StatusUnauthorized)
}

var whoami = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	p, _ := FromContext(r.Context())
	_, _ = w.Write([]byte(p.Email))
})

func TestAuthenticate(t *testing.T) {
	h := Authenticate(stubValidator{token: "good"}, recordFail)(whoami)

	tests := []struct {
		name   string
		target string
		header string
		code   int
	}{
		{"bearer header", "/x", "Bearer good", http.StatusOK},
		{"query token", "/ws?access_token=good", "", http.StatusOK},
		{"no token", "/x", "", http.StatusUnauthorized},
		{"wrong scheme", "/x?access_token=good", "Basic good", http.StatusUnauthorized},
		{"bad token", "/x", "Bearer bad", http.StatusUnauthorized},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, tc.target, nil)
			if tc.header != "" {
				r.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)
			if w.Code != tc.code {
				t.Fatalf("status: got %d, want %d", w.Code, tc.code)
			}
			if tc.code == http.StatusOK && w.Body.String() != "ops@example.com" {
				t.Errorf("principal: got %q", w.Body.String())
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	adminOnly := RequireRole(recordFail, store.RoleAdmin)(whoami)

	r := httptest.NewRequest(http.MethodGet, "/x", nil)
	w := httptest.NewRecorder()
	adminOnly.ServeHTTP(w, r)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no principal: got %d, want 401", w.Code)
	}

	for _, tc := range []struct {
		role store.Role
		code int
	}{
		{store.RoleAdmin, http.StatusOK},
		{store.RoleUser, http.StatusForbidden},
	} {
		r := httptest.NewRequest(http.MethodGet, "/x", nil)
		r = r.WithContext(NewContext(r.Context(), Principal{Email: "p@example.com", Role: tc.role}))
		w := httptest.NewRecorder()
		adminOnly.ServeHTTP(w, r)
		if w.Code != tc.code {
			t.Errorf("role %s: got %d, want %d", tc.role, w.Code, tc.code)
		}
	}
}
