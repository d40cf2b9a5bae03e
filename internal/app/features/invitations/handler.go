// internal/app/features/invitations/handler.go
package invitations

import (
	"net/http"
	"strings"

	apierrors "github.com/dalemusser/spendhub/internal/app/features/errors"
	"github.com/dalemusser/spendhub/internal/app/services/membership"
	"github.com/dalemusser/spendhub/internal/app/system/auth"
	"github.com/dalemusser/spendhub/internal/app/system/timeouts"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Handler serves the invitee side of invitations: viewing, accepting and
// rejecting by token.
type Handler struct {
	Svc  *membership.Service
	Resp *apierrors.Responder
	Log  *zap.Logger
}

// NewHandler constructs an invitations Handler.
func NewHandler(svc *membership.Service, resp *apierrors.Responder, logger *zap.Logger) *Handler {
	return &Handler{
		Svc:  svc,
		Resp: resp,
		Log:  logger,
	}
}

func token(r *http.Request) string {
	return strings.TrimSpace(chi.URLParam(r, "token"))
}

// ServeInvitation handles GET /invitations/{token}. The token is the
// credential, so the preview is available before sign-in.
func (h *Handler) ServeInvitation(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "get invitation")
	defer cancel()

	view, err := h.Svc.GetInvitation(ctx, token(r))
	if err != nil {
		h.Resp.Error(w, r, err)
		return
	}
	apierrors.JSON(w, http.StatusOK, view)
}

// HandleAccept handles POST /invitations/{token}/accept.
func (h *Handler) HandleAccept(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "accept invitation")
	defer cancel()

	res, err := h.Svc.AcceptInvitation(ctx, auth.ActorOrAnonymous(r), token(r))
	if err != nil {
		h.Resp.Error(w, r, err)
		return
	}
	apierrors.JSON(w, http.StatusOK, res)
}

// HandleReject handles POST /invitations/{token}/reject.
func (h *Handler) HandleReject(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "reject invitation")
	defer cancel()

	if err := h.Svc.RejectInvitation(ctx, auth.ActorOrAnonymous(r), token(r)); err != nil {
		h.Resp.Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
