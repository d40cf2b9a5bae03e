// internal/app/features/account/handler.go
package account

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	apierrors "github.com/dalemusser/spendhub/internal/app/features/errors"
	"github.com/dalemusser/spendhub/internal/app/services/continuity"
	notificationstore "github.com/dalemusser/spendhub/internal/app/store/notifications"
	"github.com/dalemusser/spendhub/internal/app/system/apperr"
	"github.com/dalemusser/spendhub/internal/app/system/auth"
	"github.com/dalemusser/spendhub/internal/app/system/timeouts"
	"github.com/dalemusser/spendhub/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// maxListLimit caps ?limit= on the notification list.
const maxListLimit = 200

// Deactivator closes an account and resolves group continuity.
type Deactivator interface {
	DeactivateAccount(ctx context.Context, userID primitive.ObjectID) (continuity.Report, error)
}

// Notifications is the inbox store.
type Notifications interface {
	ListForRecipient(ctx context.Context, recipientID primitive.ObjectID, unreadOnly bool, limit int64) ([]models.Notification, error)
	CountUnread(ctx context.Context, recipientID primitive.ObjectID) (int64, error)
	MarkRead(ctx context.Context, recipientID, id primitive.ObjectID) error
}

// Handler serves the signed-in user's own account endpoints.
type Handler struct {
	Accounts Deactivator
	Inbox    Notifications
	Sessions *auth.SessionManager
	Resp     *apierrors.Responder
	Log      *zap.Logger
}

// NewHandler constructs an account Handler.
func NewHandler(accounts Deactivator, inbox Notifications, sm *auth.SessionManager, resp *apierrors.Responder, logger *zap.Logger) *Handler {
	return &Handler{
		Accounts: accounts,
		Inbox:    inbox,
		Sessions: sm,
		Resp:     resp,
		Log:      logger,
	}
}

// HandleDeactivate handles POST /account/deactivate. Every group the user
// led gets a successor before the session is cleared.
func (h *Handler) HandleDeactivate(w http.ResponseWriter, r *http.Request) {
	actor := auth.ActorOrAnonymous(r)

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Long(), h.Log, "deactivate account")
	defer cancel()

	rep, err := h.Accounts.DeactivateAccount(ctx, actor.ID)
	if err != nil {
		h.Resp.Error(w, r, err)
		return
	}
	if err := h.Sessions.SignOut(w, r); err != nil {
		h.Log.Warn("failed to clear session after deactivation",
			zap.String("user_id", actor.ID.Hex()), zap.Error(err))
	}
	apierrors.JSON(w, http.StatusOK, rep)
}

type notificationList struct {
	Notifications []models.Notification `json:"notifications"`
	Unread        int64                 `json:"unread"`
}

// ServeNotifications handles GET /account/notifications?unread=true&limit=n.
func (h *Handler) ServeNotifications(w http.ResponseWriter, r *http.Request) {
	actor := auth.ActorOrAnonymous(r)
	q := r.URL.Query()

	unreadOnly := false
	if v := q.Get("unread"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			h.Resp.BadRequest(w, "unread must be true or false")
			return
		}
		unreadOnly = b
	}
	var limit int64
	if v := q.Get("limit"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 1 {
			h.Resp.BadRequest(w, "limit must be a positive integer")
			return
		}
		limit = min(n, maxListLimit)
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "list notifications")
	defer cancel()

	items, err := h.Inbox.ListForRecipient(ctx, actor.ID, unreadOnly, limit)
	if err != nil {
		h.Resp.Error(w, r, err)
		return
	}
	unread, err := h.Inbox.CountUnread(ctx, actor.ID)
	if err != nil {
		h.Resp.Error(w, r, err)
		return
	}
	if items == nil {
		items = []models.Notification{}
	}
	apierrors.JSON(w, http.StatusOK, notificationList{Notifications: items, Unread: unread})
}

// HandleMarkRead handles POST /account/notifications/{id}/read.
func (h *Handler) HandleMarkRead(w http.ResponseWriter, r *http.Request) {
	id, err := primitive.ObjectIDFromHex(chi.URLParam(r, "id"))
	if err != nil {
		h.Resp.BadRequest(w, "invalid notification id")
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.Log, "mark notification read")
	defer cancel()

	if err := h.Inbox.MarkRead(ctx, auth.ActorOrAnonymous(r).ID, id); err != nil {
		if errors.Is(err, notificationstore.ErrNotFound) {
			err = fmt.Errorf("%w: notification not found", apperr.ErrNotFound)
		}
		h.Resp.Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
