// internal/app/features/groups/routes.go
package groups

import (
	"github.com/dalemusser/spendhub/internal/app/system/auth"
	"github.com/dalemusser/spendhub/internal/app/system/ratelimit"
	"github.com/go-chi/chi/v5"
)

// Routes mounts the group endpoints. limiter guards the join and invite
// routes per signed-in user; nil disables it.
func Routes(h *Handler, sm *auth.SessionManager, limiter *ratelimit.Limiter) chi.Router {
	r := chi.NewRouter()

	r.Group(func(pr chi.Router) {
		pr.Use(sm.RequireSignedIn)

		pr.Get("/", h.ServeMyGroups)
		pr.Post("/", h.HandleCreateGroup)
		pr.Patch("/{id}", h.HandleUpdateGroup)

		// MEMBERS
		pr.Get("/{id}/members", h.ServeMembers)
		pr.Delete("/{id}/members/{userID}", h.HandleRemove)
		pr.Post("/{id}/members/{userID}/promote", h.HandlePromote)
		pr.Post("/{id}/members/{userID}/demote", h.HandleDemote)
		pr.Post("/{id}/members/{userID}/transfer", h.HandleTransfer)
		pr.Post("/{id}/leave", h.HandleLeave)

		// JOIN REQUESTS
		pr.Get("/{id}/requests", h.ServeRequests)
		pr.Post("/{id}/requests/{userID}/approve", h.HandleApprove)
		pr.Post("/{id}/requests/{userID}/reject", h.HandleReject)

		pr.Delete("/{id}/invitations", h.HandleCancelInvite)

		pr.Group(func(lr chi.Router) {
			if limiter != nil {
				lr.Use(limiter.Middleware(ActorKey, h.Log))
			}
			lr.Post("/join", h.HandleJoin)
			lr.Post("/{id}/invitations", h.HandleInvite)
		})
	})

	return r
}
