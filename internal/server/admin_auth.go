package server

import (
	"fmt"
	"net/http"

	"sitrep/internal/auth"
)

// withAdminAuth guards mutating and admin routes when an admin token hash is
// configured. Without one the routes stay open.
func (s *Server) withAdminAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.adminTokenHash == "" {
			next(w, r)
			return
		}
		token := auth.BearerToken(r)
		if token == "" {
			s.writeServiceError(w, r, unauthorized(fmt.Errorf("admin token required")))
			return
		}
		if !auth.VerifyToken(s.adminTokenHash, token) {
			s.writeServiceError(w, r, unauthorized(fmt.Errorf("invalid admin token")))
			return
		}
		next(w, r)
	}
}
