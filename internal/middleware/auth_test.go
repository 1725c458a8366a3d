package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DukeRupert/kinship/internal/auth"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithUser(t *testing.T) {
	id := uuid.New()

	tests := []struct {
		name   string
		header string
		wantOK bool
	}{
		{"no header", "", false},
		{"malformed header", "not-a-uuid", false},
		{"valid header", id.String(), true},
		{"padded header", "  " + id.String() + " ", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mw := NewAuthMiddleware(discardLogger())

			var (
				got    uuid.UUID
				gotOK  bool
				called bool
			)
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				got, gotOK = auth.UserID(r.Context())
			})

			req := httptest.NewRequest("GET", "/api/subscription", nil)
			if tt.header != "" {
				req.Header.Set(UserIDHeader, tt.header)
			}
			mw.WithUser(next).ServeHTTP(httptest.NewRecorder(), req)

			require.True(t, called, "WithUser always continues")
			assert.Equal(t, tt.wantOK, gotOK)
			if tt.wantOK {
				assert.Equal(t, id, got)
			}
		})
	}
}

func TestRequireUser(t *testing.T) {
	mw := NewAuthMiddleware(discardLogger())
	stack := Stack(mw.WithUser, mw.RequireUser)

	called := false
	h := stack(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("anonymous gets 401", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/connections", nil))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.False(t, called)

		var body struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "unauthorized", body.Error.Code)
	})

	t.Run("authenticated continues", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/connections", nil)
		req.Header.Set(UserIDHeader, uuid.NewString())
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, called)
	})
}

func TestStack_Order(t *testing.T) {
	var order []string
	mark := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Stack(mark("outer"), mark("inner"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

	assert.Equal(t, []string{"outer", "inner", "handler"}, order)
}
