package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/DukeRupert/kinship/internal/auth"
	"golang.org/x/crypto/bcrypt"
)

// OperatorAuthMiddleware guards the operator routes and the metrics endpoint
// with HTTP basic auth. The password is checked against a bcrypt hash.
type OperatorAuthMiddleware struct {
	username     string
	passwordHash []byte
	realm        string
	logger       *slog.Logger
}

// NewOperatorAuthMiddleware creates a new operator auth middleware. An empty
// hash rejects every request.
func NewOperatorAuthMiddleware(username, passwordHash, realm string, logger *slog.Logger) *OperatorAuthMiddleware {
	return &OperatorAuthMiddleware{
		username:     username,
		passwordHash: []byte(passwordHash),
		realm:        realm,
		logger:       logger,
	}
}

// Handler returns middleware that requires operator credentials.
func (m *OperatorAuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || !m.valid(user, pass) {
			if ok {
				m.logger.Warn("operator authentication failed",
					"ip", getClientIP(r),
					"path", r.URL.Path,
				)
			}
			m.unauthorized(w)
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.SetOperator(r.Context(), user)))
	})
}

func (m *OperatorAuthMiddleware) valid(user, pass string) bool {
	if m.username == "" || len(m.passwordHash) == 0 {
		return false
	}
	// Both checks always run so a wrong username costs the same as a wrong password.
	userMatch := subtle.ConstantTimeCompare([]byte(user), []byte(m.username)) == 1
	passMatch := bcrypt.CompareHashAndPassword(m.passwordHash, []byte(pass)) == nil
	return userMatch && passMatch
}

// unauthorized sends a 401 response with WWW-Authenticate header.
func (m *OperatorAuthMiddleware) unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="`+m.realm+`"`)
	http.Error(w, "Unauthorized", http.StatusUnauthorized)
}
