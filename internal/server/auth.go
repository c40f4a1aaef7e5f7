package server

import (
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// requireAPIKey rejects requests whose bearer token does not match the
// configured bcrypt hash. With no hash configured every request passes.
func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	if len(s.apiKeyHash) == 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			w.Header().Set("WWW-Authenticate", `Bearer realm="syllabus"`)
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		if err := bcrypt.CompareHashAndPassword(s.apiKeyHash, []byte(token)); err != nil {
			writeError(w, http.StatusUnauthorized, "invalid api key")
			return
		}
		next.ServeHTTP(w, r)
	})
}
