// internal/app/features/groups/handler.go
package groups

import (
	"net/http"

	apierrors "github.com/dalemusser/spendhub/internal/app/features/errors"
	"github.com/dalemusser/spendhub/internal/app/services/membership"
	"github.com/dalemusser/spendhub/internal/app/system/auth"
	"github.com/dalemusser/spendhub/internal/app/system/timeouts"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Handler is the shared dependency container for the groups feature.
// Every route resolves the signed-in actor from the session and passes it
// to the membership service explicitly.
type Handler struct {
	Svc  *membership.Service
	Resp *apierrors.Responder
	Log  *zap.Logger
}

// NewHandler constructs a new groups Handler. It is typically called from
// the bootstrap BuildHandler function.
func NewHandler(svc *membership.Service, resp *apierrors.Responder, logger *zap.Logger) *Handler {
	return &Handler{
		Svc:  svc,
		Resp: resp,
		Log:  logger,
	}
}

// urlID parses a hex ObjectID route parameter, writing a 400 on failure.
func (h *Handler) urlID(w http.ResponseWriter, r *http.Request, name string) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, name))
	if err != nil {
		h.Resp.BadRequest(w, "invalid "+name)
		return primitive.NilObjectID, false
	}
	return id, true
}

// ActorKey keys rate limits by the signed-in user.
func ActorKey(r *http.Request) string {
	if a, ok := auth.CurrentActor(r); ok {
		return a.ID.Hex()
	}
	return ""
}

// ServeMyGroups handles GET /groups.
func (h *Handler) ServeMyGroups(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "list my groups")
	defer cancel()

	groups, err := h.Svc.ListMyGroups(ctx, auth.ActorOrAnonymous(r))
	if err != nil {
		h.Resp.Error(w, r, err)
		return
	}
	apierrors.JSON(w, http.StatusOK, map[string]any{"groups": groups})
}

// HandleCreateGroup handles POST /groups.
func (h *Handler) HandleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var req membership.CreateGroupInput
	if err := apierrors.Decode(w, r, &req); err != nil {
		h.Resp.BadRequest(w, "request body must be JSON with name, avatar_url and requires_approval")
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "create group")
	defer cancel()

	view, err := h.Svc.CreateGroup(ctx, auth.ActorOrAnonymous(r), req)
	if err != nil {
		h.Resp.Error(w, r, err)
		return
	}
	apierrors.JSON(w, http.StatusCreated, view)
}

// HandleUpdateGroup handles PATCH /groups/{id}.
func (h *Handler) HandleUpdateGroup(w http.ResponseWriter, r *http.Request) {
	groupID, ok := h.urlID(w, r, "id")
	if !ok {
		return
	}
	var req membership.UpdateGroupInput
	if err := apierrors.Decode(w, r, &req); err != nil {
		h.Resp.BadRequest(w, "request body must be JSON")
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "update group")
	defer cancel()

	g, err := h.Svc.UpdateGroupInfo(ctx, auth.ActorOrAnonymous(r), groupID, req)
	if err != nil {
		h.Resp.Error(w, r, err)
		return
	}
	apierrors.JSON(w, http.StatusOK, g)
}

type joinRequest struct {
	InviteCode string `json:"invite_code"`
}

// HandleJoin handles POST /groups/join.
func (h *Handler) HandleJoin(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := apierrors.Decode(w, r, &req); err != nil {
		h.Resp.BadRequest(w, "request body must be JSON with invite_code")
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "join group")
	defer cancel()

	res, err := h.Svc.RequestToJoin(ctx, auth.ActorOrAnonymous(r), req.InviteCode)
	if err != nil {
		h.Resp.Error(w, r, err)
		return
	}
	status := http.StatusCreated
	if res.Pending {
		status = http.StatusAccepted
	}
	apierrors.JSON(w, status, res)
}

// ServeMembers handles GET /groups/{id}/members.
func (h *Handler) ServeMembers(w http.ResponseWriter, r *http.Request) {
	groupID, ok := h.urlID(w, r, "id")
	if !ok {
		return
	}
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "list members")
	defer cancel()

	members, err := h.Svc.ListMembers(ctx, auth.ActorOrAnonymous(r), groupID)
	if err != nil {
		h.Resp.Error(w, r, err)
		return
	}
	apierrors.JSON(w, http.StatusOK, map[string]any{"members": members})
}

// ServeRequests handles GET /groups/{id}/requests.
func (h *Handler) ServeRequests(w http.ResponseWriter, r *http.Request) {
	groupID, ok := h.urlID(w, r, "id")
	if !ok {
		return
	}
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "list requests")
	defer cancel()

	reqs, err := h.Svc.ListPendingRequests(ctx, auth.ActorOrAnonymous(r), groupID)
	if err != nil {
		h.Resp.Error(w, r, err)
		return
	}
	apierrors.JSON(w, http.StatusOK, map[string]any{"requests": reqs})
}
