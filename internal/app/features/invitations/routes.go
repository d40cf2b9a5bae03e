// internal/app/features/invitations/routes.go
package invitations

import (
	"github.com/dalemusser/spendhub/internal/app/system/auth"
	"github.com/go-chi/chi/v5"
)

// Routes mounts the invitation endpoints under /invitations.
func Routes(h *Handler, sm *auth.SessionManager) chi.Router {
	r := chi.NewRouter()
	r.Get("/{token}", h.ServeInvitation)

	r.Group(func(pr chi.Router) {
		pr.Use(sm.RequireSignedIn)
		pr.Post("/{token}/accept", h.HandleAccept)
		pr.Post("/{token}/reject", h.HandleReject)
	})
	return r
}
