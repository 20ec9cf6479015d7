package handlers

import (
	"net/http"

	"github.com/BradenHooton/loginguard/internal/auth"
	pkghttp "github.com/BradenHooton/loginguard/pkg/http"
)

// AdminHandler serves the admin-only probe used to check that a token
// carries the admin role.
type AdminHandler struct{}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler() *AdminHandler {
	return &AdminHandler{}
}

// Ping handles GET /admin/ping. Requires AuthMiddleware and RequireRole.
func (h *AdminHandler) Ping(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]any{
		"ok":   true,
		"sub":  claims.Subject,
		"role": claims.Role,
	})
}
