// internal/app/features/logout/handler.go
package logout

import (
	"net/http"

	"github.com/dalemusser/spendhub/internal/app/system/auth"
	"go.uber.org/zap"
)

type Handler struct {
	Log        *zap.Logger
	SessionMgr *auth.SessionManager
}

func NewHandler(sessionMgr *auth.SessionManager, logger *zap.Logger) *Handler {
	return &Handler{
		Log:        logger,
		SessionMgr: sessionMgr,
	}
}

// HandleLogout handles POST /logout. The session cookie is cleared even when
// the request carries no valid session.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if a, ok := auth.CurrentActor(r); ok {
		h.Log.Info("user signed out", zap.String("user_id", a.ID.Hex()))
	}
	if err := h.SessionMgr.SignOut(w, r); err != nil {
		h.Log.Error("logout: save session", zap.Error(err))
	}
	w.WriteHeader(http.StatusNoContent)
}
