// internal/app/features/auditlog/handler.go
package auditlog

import (
	"context"

	apierrors "github.com/dalemusser/spendhub/internal/app/features/errors"
	"github.com/dalemusser/spendhub/internal/app/store/audit"
	"github.com/dalemusser/spendhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Authorizer checks the actor's role in a group.
type Authorizer interface {
	Authorize(ctx context.Context, actor models.Actor, groupID primitive.ObjectID, allowed func(models.Role) bool) (models.GroupMember, error)
}

// Events reads stored audit events.
type Events interface {
	Query(ctx context.Context, filter audit.QueryFilter) ([]audit.Event, error)
	CountByFilter(ctx context.Context, filter audit.QueryFilter) (int64, error)
}

// Users resolves display names for actors and targets.
type Users interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (models.User, error)
}

type Handler struct {
	Auth   Authorizer
	Events Events
	Users  Users
	Resp   *apierrors.Responder
	Log    *zap.Logger
}

// NewHandler constructs the group history handler.
func NewHandler(auth Authorizer, events Events, users Users, resp *apierrors.Responder, logger *zap.Logger) *Handler {
	return &Handler{
		Auth:   auth,
		Events: events,
		Users:  users,
		Resp:   resp,
		Log:    logger,
	}
}
