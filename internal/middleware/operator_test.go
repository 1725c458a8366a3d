package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DukeRupert/kinship/internal/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newOperatorMiddleware(t *testing.T, password string) *OperatorAuthMiddleware {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return NewOperatorAuthMiddleware("ops", string(hash), "kinship-admin", discardLogger())
}

func TestOperatorAuthMiddleware(t *testing.T) {
	mw := newOperatorMiddleware(t, "s3cret")

	tests := []struct {
		name       string
		setAuth    bool
		user, pass string
		wantStatus int
	}{
		{"valid credentials", true, "ops", "s3cret", http.StatusOK},
		{"no credentials", false, "", "", http.StatusUnauthorized},
		{"wrong username", true, "admin", "s3cret", http.StatusUnauthorized},
		{"wrong password", true, "ops", "guess", http.StatusUnauthorized},
		{"empty credentials", true, "", "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var operator string
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				operator = auth.Operator(r.Context())
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest("POST", "/admin/reconcile", nil)
			if tt.setAuth {
				req.SetBasicAuth(tt.user, tt.pass)
			}
			rec := httptest.NewRecorder()
			mw.Handler(next).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, "ops", operator)
			} else {
				assert.Equal(t, `Basic realm="kinship-admin"`, rec.Header().Get("WWW-Authenticate"))
			}
		})
	}
}

func TestOperatorAuthMiddleware_NoHashRejectsAll(t *testing.T) {
	mw := NewOperatorAuthMiddleware("ops", "", "kinship-admin", discardLogger())

	req := httptest.NewRequest("GET", "/metrics", nil)
	req.SetBasicAuth("ops", "")
	rec := httptest.NewRecorder()
	mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	})).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestOperatorAuthMiddleware_MalformedHeader(t *testing.T) {
	mw := newOperatorMiddleware(t, "s3cret")

	req := httptest.NewRequest("GET", "/admin/usage", nil)
	req.Header.Set("Authorization", "Basic !!!not-base64")
	rec := httptest.NewRecorder()
	mw.Handler(http.NotFoundHandler()).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
