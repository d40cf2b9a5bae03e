// internal/app/features/groups/manage.go
package groups

import (
	"context"
	"net/http"

	apierrors "github.com/dalemusser/spendhub/internal/app/features/errors"
	"github.com/dalemusser/spendhub/internal/app/system/auth"
	"github.com/dalemusser/spendhub/internal/app/system/timeouts"
	"github.com/dalemusser/spendhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// memberAction runs op for the {id}/{userID} pair in the URL.
func (h *Handler) memberAction(w http.ResponseWriter, r *http.Request, name string, op func(ctx context.Context, actor models.Actor, groupID, userID primitive.ObjectID) (any, error)) {
	groupID, ok := h.urlID(w, r, "id")
	if !ok {
		return
	}
	userID, ok := h.urlID(w, r, "userID")
	if !ok {
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, name)
	defer cancel()

	out, err := op(ctx, auth.ActorOrAnonymous(r), groupID, userID)
	if err != nil {
		h.Resp.Error(w, r, err)
		return
	}
	if out == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	apierrors.JSON(w, http.StatusOK, out)
}

// HandleApprove handles POST /groups/{id}/requests/{userID}/approve.
func (h *Handler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	h.memberAction(w, r, "approve request", func(ctx context.Context, a models.Actor, g, u primitive.ObjectID) (any, error) {
		res, err := h.Svc.ApproveRequest(ctx, a, g, u)
		return res, err
	})
}

// HandleReject handles POST /groups/{id}/requests/{userID}/reject.
func (h *Handler) HandleReject(w http.ResponseWriter, r *http.Request) {
	h.memberAction(w, r, "reject request", func(ctx context.Context, a models.Actor, g, u primitive.ObjectID) (any, error) {
		return nil, h.Svc.RejectRequest(ctx, a, g, u)
	})
}

// HandlePromote handles POST /groups/{id}/members/{userID}/promote.
func (h *Handler) HandlePromote(w http.ResponseWriter, r *http.Request) {
	h.memberAction(w, r, "promote admin", func(ctx context.Context, a models.Actor, g, u primitive.ObjectID) (any, error) {
		m, err := h.Svc.PromoteToAdmin(ctx, a, g, u)
		return m, err
	})
}

// HandleDemote handles POST /groups/{id}/members/{userID}/demote.
func (h *Handler) HandleDemote(w http.ResponseWriter, r *http.Request) {
	h.memberAction(w, r, "demote admin", func(ctx context.Context, a models.Actor, g, u primitive.ObjectID) (any, error) {
		m, err := h.Svc.DemoteAdmin(ctx, a, g, u)
		return m, err
	})
}

// HandleRemove handles DELETE /groups/{id}/members/{userID}.
func (h *Handler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	h.memberAction(w, r, "remove member", func(ctx context.Context, a models.Actor, g, u primitive.ObjectID) (any, error) {
		res, err := h.Svc.RemoveMember(ctx, a, g, u)
		return res, err
	})
}

// HandleTransfer handles POST /groups/{id}/members/{userID}/transfer.
func (h *Handler) HandleTransfer(w http.ResponseWriter, r *http.Request) {
	h.memberAction(w, r, "transfer ownership", func(ctx context.Context, a models.Actor, g, u primitive.ObjectID) (any, error) {
		return nil, h.Svc.TransferOwnership(ctx, a, g, u)
	})
}

// HandleLeave handles POST /groups/{id}/leave.
func (h *Handler) HandleLeave(w http.ResponseWriter, r *http.Request) {
	groupID, ok := h.urlID(w, r, "id")
	if !ok {
		return
	}
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "leave group")
	defer cancel()

	res, err := h.Svc.Leave(ctx, auth.ActorOrAnonymous(r), groupID)
	if err != nil {
		h.Resp.Error(w, r, err)
		return
	}
	apierrors.JSON(w, http.StatusOK, res)
}

type inviteRequest struct {
	Email string `json:"email"`
}

// HandleInvite handles POST /groups/{id}/invitations.
func (h *Handler) HandleInvite(w http.ResponseWriter, r *http.Request) {
	groupID, ok := h.urlID(w, r, "id")
	if !ok {
		return
	}
	var req inviteRequest
	if err := apierrors.Decode(w, r, &req); err != nil {
		h.Resp.BadRequest(w, "request body must be JSON with email")
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Long(), h.Log, "send invitation")
	defer cancel()

	res, err := h.Svc.SendInvitation(ctx, auth.ActorOrAnonymous(r), groupID, req.Email)
	if err != nil {
		h.Resp.Error(w, r, err)
		return
	}
	apierrors.JSON(w, http.StatusCreated, res)
}

// HandleCancelInvite handles DELETE /groups/{id}/invitations?email=.
func (h *Handler) HandleCancelInvite(w http.ResponseWriter, r *http.Request) {
	groupID, ok := h.urlID(w, r, "id")
	if !ok {
		return
	}
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "cancel invitation")
	defer cancel()

	if err := h.Svc.CancelInvitation(ctx, auth.ActorOrAnonymous(r), groupID, r.URL.Query().Get("email")); err != nil {
		h.Resp.Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
