package health

import (
	"context"
	"net/http"

	apierrors "github.com/dalemusser/spendhub/internal/app/features/errors"
	"github.com/dalemusser/spendhub/internal/app/system/cache"
	"github.com/dalemusser/spendhub/internal/app/system/timeouts"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// Pinger is a backing service that can report whether it is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type mongoPinger struct {
	client *mongo.Client
}

func (p mongoPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx, readpref.Primary())
}

// MongoPinger pings the primary of client.
func MongoPinger(client *mongo.Client) Pinger {
	return mongoPinger{client: client}
}

// Handler holds dependencies needed for health checks.
type Handler struct {
	DB    Pinger
	Cache cache.Cache
	Log   *zap.Logger
}

// NewHandler constructs a health Handler. The cache is the invitation token
// store; a nil cache is reported as "disabled".
func NewHandler(db Pinger, c cache.Cache, logger *zap.Logger) *Handler {
	return &Handler{
		DB:    db,
		Cache: c,
		Log:   logger,
	}
}

// healthResponse is the JSON structure for the health check response.
type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Cache    string `json:"cache"`
	Message  string `json:"message,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Serve handles GET /health.
//
// On success: 200 and
//
//	{ "status":"ok", "database":"connected", "cache":"connected" }
//
// When either backend fails: 503 and
//
//	{ "status":"error", "database":"…", "cache":"…", "message":"…", "error":"…" }
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Ping())
	defer cancel()

	resp := healthResponse{
		Status:   "ok",
		Database: "connected",
		Cache:    "connected",
	}

	if err := h.DB.Ping(ctx); err != nil {
		h.Log.Error("health-check: mongo ping failed", zap.Error(err))
		resp.Status = "error"
		resp.Database = "disconnected"
		resp.Message = "Database unavailable"
		resp.Error = err.Error()
		apierrors.JSON(w, http.StatusServiceUnavailable, resp)
		return
	}

	if h.Cache == nil {
		resp.Cache = "disabled"
	} else if err := h.Cache.Ping(ctx); err != nil {
		// Invitations cannot be issued or redeemed without the token store.
		h.Log.Error("health-check: cache ping failed", zap.Error(err))
		resp.Status = "error"
		resp.Cache = "disconnected"
		resp.Message = "Invitation token store unavailable"
		resp.Error = err.Error()
		apierrors.JSON(w, http.StatusServiceUnavailable, resp)
		return
	}

	apierrors.JSON(w, http.StatusOK, resp)
}
