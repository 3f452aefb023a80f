package core

import (
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"reportnotify/internal/types"
)

// AdminKeyHeader carries the operator key for /v1 routes.
const AdminKeyHeader = "X-Admin-Key"

// AdminAuthMiddleware compares the X-Admin-Key header against the configured
// bcrypt hash. Missing keys get auth_token_missing, wrong keys
// auth_token_invalid, both 401.
func (s *Server) AdminAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(AdminKeyHeader)
		if key == "" {
			Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, AdminKeyHeader+" header is required", nil))
			return
		}

		if err := bcrypt.CompareHashAndPassword(s.adminKeyHash, []byte(key)); err != nil {
			s.Logger.WarnContext(r.Context(), "admin key rejected",
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
			)
			Error(w, r, types.NewAppError(types.ErrCodeAuthTokenInvalid, "invalid admin key", nil))
			return
		}

		next.ServeHTTP(w, r)
	})
}
