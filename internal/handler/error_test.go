package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DukeRupert/kinship/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func serveError(t *testing.T, err error) (*httptest.ResponseRecorder, ErrorBody) {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/connections", nil)
	ErrorResponse(rec, req, discardLogger(), err)

	var body ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestErrorResponse_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"invalid", domain.Invalid("op", "bad"), http.StatusBadRequest, domain.EINVALID},
		{"validation", domain.NewValidationError("op", "body", "required"), http.StatusBadRequest, domain.EINVALID},
		{"unauthorized", domain.Unauthorized("op", "who"), http.StatusUnauthorized, domain.EUNAUTHORIZED},
		{"inactive", domain.SubscriptionInactive("op", domain.SubscriptionStatusExpired), http.StatusPaymentRequired, domain.EPAYMENT},
		{"not found", domain.NotFound("op", "connection", "x"), http.StatusNotFound, domain.ENOTFOUND},
		{"duplicate", domain.ConnectionAlreadyExists("op"), http.StatusConflict, domain.ECONFLICT},
		{"state", domain.ConnectionStateInvalid("op", "no"), http.StatusConflict, domain.EINVALIDSTATE},
		{"quota", domain.QuotaExceeded("op", domain.ResourceConnectionRequest, domain.PlanTierFree, 3, 3), http.StatusTooManyRequests, domain.EQUOTA},
		{"unavailable", domain.Unavailable(errors.New("lock"), "op", "busy"), http.StatusServiceUnavailable, domain.EUNAVAILABLE},
		{"raw", errors.New("boom"), http.StatusInternalServerError, domain.EINTERNAL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := serveError(t, tt.err)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, body.Error.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		})
	}
}

func TestErrorResponse_QuotaBody(t *testing.T) {
	err := domain.QuotaExceeded("connection.request", domain.ResourceConnectionRequest, domain.PlanTierFree, 3, 3)
	_, body := serveError(t, err)

	assert.Equal(t, string(domain.ResourceConnectionRequest), body.Error.Resource)
	assert.Equal(t, string(domain.PlanTierFree), body.Error.Tier)
	require.NotNil(t, body.Error.Limit)
	require.NotNil(t, body.Error.Used)
	assert.Equal(t, 3, *body.Error.Limit)
	assert.Equal(t, 3, *body.Error.Used)
	assert.Contains(t, body.Error.Message, "Upgrade your plan")
}

func TestErrorResponse_UnavailableSetsRetryAfter(t *testing.T) {
	rec, _ := serveError(t, domain.Unavailable(errors.New("lock timeout"), "op", "busy"))
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestErrorResponse_ValidationFields(t *testing.T) {
	_, body := serveError(t, domain.NewValidationError("message.send", "body", "Message body is required"))
	assert.Equal(t, map[string]string{"body": "Message body is required"}, body.Error.Fields)
}

func TestErrorResponse_InternalErrorHidesDetails(t *testing.T) {
	dbErr := errors.New("connection to 192.168.1.100:5432 refused")
	rec, body := serveError(t, domain.Internal(dbErr, "DB.Connect", "Failed to connect"))

	assert.NotContains(t, rec.Body.String(), "192.168")
	assert.NotContains(t, rec.Body.String(), "DB.Connect")
	assert.Contains(t, body.Error.Message, "internal error")
}

func TestErrorResponse_UnwrappedErrorReturnsGeneric(t *testing.T) {
	rec, _ := serveError(t, errors.New(`FATAL: password authentication failed for user "postgres"`))

	assert.NotContains(t, rec.Body.String(), "FATAL")
	assert.NotContains(t, rec.Body.String(), "postgres")
}
