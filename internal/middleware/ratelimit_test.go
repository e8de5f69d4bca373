package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mmeshcher/event-booking/internal/model"
)

func TestRateLimiter_PerUserBurst(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, 2)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("alice"))
	assert.True(t, rl.Allow("alice"))
	assert.False(t, rl.Allow("alice"))
	assert.True(t, rl.Allow("bob"), "limits are per user")

	now = now.Add(time.Second)
	assert.True(t, rl.Allow("alice"))
}

func TestRateLimiter_ForgetsIdleVisitors(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, 1)
	rl.now = func() time.Time { return now }

	rl.Allow("alice")
	now = now.Add(time.Hour)
	rl.Allow("bob")

	rl.mu.Lock()
	defer rl.mu.Unlock()
	_, ok := rl.visitors["alice"]
	assert.False(t, ok)
}

func TestRateLimiter_Limit(t *testing.T) {
	rl := NewRateLimiter(0.001, 1)
	h := rl.Limit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	call := func() int {
		r := httptest.NewRequest(http.MethodPost, "/api/bookings", nil)
		r = r.WithContext(WithPrincipal(r.Context(), model.Principal{ID: "u1", Role: model.RoleClient}))
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		return w.Code
	}

	assert.Equal(t, http.StatusCreated, call())
	assert.Equal(t, http.StatusTooManyRequests, call())
}
