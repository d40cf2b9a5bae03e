// internal/app/features/account/routes.go
package account

import (
	"github.com/go-chi/chi/v5"
)

// Routes mounts the account endpoints under /account. All of them require
// a signed-in user.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Group(func(pr chi.Router) {
		pr.Use(h.Sessions.RequireSignedIn)
		pr.Post("/deactivate", h.HandleDeactivate)
		pr.Get("/notifications", h.ServeNotifications)
		pr.Post("/notifications/{id}/read", h.HandleMarkRead)
	})
	return r
}
