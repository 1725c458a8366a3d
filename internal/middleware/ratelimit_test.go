package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// RateLimiter Tests
// =============================================================================

func TestRateLimiter_Allow(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute, discardLogger())

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("user:a"), "request %d", i+1)
	}
	assert.False(t, rl.Allow("user:a"))
	assert.True(t, rl.Allow("user:b"), "keys are independent")
}

func TestRateLimiter_WindowExpiry(t *testing.T) {
	rl := NewRateLimiter(1, 50*time.Millisecond, discardLogger())

	require.True(t, rl.Allow("k"))
	require.False(t, rl.Allow("k"))

	time.Sleep(60 * time.Millisecond)
	assert.True(t, rl.Allow("k"))
}

func TestRateLimiter_Reset(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute, discardLogger())

	rl.Allow("k")
	require.False(t, rl.Allow("k"))
	assert.Greater(t, rl.TimeUntilReset("k"), time.Duration(0))

	rl.Reset("k")
	assert.Equal(t, time.Duration(0), rl.TimeUntilReset("k"))
	assert.True(t, rl.Allow("k"))
}

// =============================================================================
// Rate Limit Middleware Tests
// =============================================================================

func TestRateLimitMiddleware_BlocksAfterLimit(t *testing.T) {
	mw := NewRateLimitMiddleware(NewRateLimiter(2, time.Minute, discardLogger()), discardLogger())
	h := mw.Limit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(userID string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("POST", "/api/messages", nil)
		req.Header.Set(UserIDHeader, userID)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, send("u1").Code)
	assert.Equal(t, http.StatusOK, send("u1").Code)

	rec := send("u1")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	retry, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, retry, 1)

	var body map[string]map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "rate_limited", body["error"]["code"])

	assert.Equal(t, http.StatusOK, send("u2").Code, "other users are unaffected")
}

func TestRateLimitKey(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"user header", map[string]string{UserIDHeader: "abc"}, "10.0.0.1:1234", "user:abc"},
		{"remote addr", nil, "10.0.0.1:1234", "ip:10.0.0.1"},
		{"x-forwarded-for", map[string]string{"X-Forwarded-For": "203.0.113.5, 10.0.0.1"}, "10.0.0.1:1234", "ip:203.0.113.5"},
		{"x-real-ip", map[string]string{"X-Real-IP": "203.0.113.9"}, "10.0.0.1:1234", "ip:203.0.113.9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, rateLimitKey(req))
		})
	}
}
