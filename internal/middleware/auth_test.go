package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mmeshcher/event-booking/internal/model"
)

func TestAuthMiddleware_WithValidToken(t *testing.T) {
	m := NewAuthMiddleware("test-secret")

	token, err := m.IssueToken(model.Principal{ID: "user-42", Role: model.RoleOrganizer}, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken error: %v", err)
	}

	nextCalled := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nextCalled = true
		p, ok := GetPrincipalFromContext(r.Context())
		if !ok {
			t.Fatalf("principal not in context")
		}
		if p.ID != "user-42" || p.Role != model.RoleOrganizer {
			t.Fatalf("principal from context = %+v", p)
		}
	})

	r := httptest.NewRequest(http.MethodGet, "/protected", nil)
	r.Header.Set("Authorization", "Bearer "+token)

	m.Middleware(next).ServeHTTP(httptest.NewRecorder(), r)

	if !nextCalled {
		t.Fatalf("next handler was not called")
	}
}

func TestAuthMiddleware_Rejects(t *testing.T) {
	m := NewAuthMiddleware("test-secret")
	foreign := NewAuthMiddleware("other-secret")

	valid := func(p model.Principal, ttl time.Duration, signer *AuthMiddleware) string {
		token, err := signer.IssueToken(p, ttl)
		if err != nil {
			t.Fatalf("IssueToken error: %v", err)
		}
		return "Bearer " + token
	}

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		Role:             model.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{Subject: "root"},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none token: %v", err)
	}

	tests := []struct {
		name   string
		header string
	}{
		{name: "no header", header: ""},
		{name: "not bearer", header: "Basic dXNlcjpwYXNz"},
		{name: "garbage", header: "Bearer not-a-token"},
		{name: "wrong secret", header: valid(model.Principal{ID: "u", Role: model.RoleClient}, time.Hour, foreign)},
		{name: "expired", header: valid(model.Principal{ID: "u", Role: model.RoleClient}, -time.Minute, m)},
		{name: "unknown role", header: valid(model.Principal{ID: "u", Role: "ROOT"}, time.Hour, m)},
		{name: "no subject", header: valid(model.Principal{Role: model.RoleClient}, time.Hour, m)},
		{name: "unsigned", header: "Bearer " + none},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatalf("next handler should not be called")
			})

			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}

			m.Middleware(next).ServeHTTP(w, r)

			if w.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
			}
		})
	}
}
