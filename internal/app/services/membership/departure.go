package membership

import (
	"context"
	"errors"
	"fmt"

	"github.com/dalemusser/spendhub/internal/app/policy/grouppolicy"
	"github.com/dalemusser/spendhub/internal/app/services/continuity"
	membershipstore "github.com/dalemusser/spendhub/internal/app/store/memberships"
	"github.com/dalemusser/spendhub/internal/app/system/apperr"
	"github.com/dalemusser/spendhub/internal/app/system/notify"
	"github.com/dalemusser/spendhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// depart ends m. For a departing leader the continuity resolver runs first,
// while m is still ACTIVE, so a failed resolution leaves the membership in
// place and the call can be retried. ResolveGroup already ignores m.UserID.
func (s *Service) depart(ctx context.Context, m models.GroupMember) (DepartureResult, error) {
	var resolution *continuity.Resolution
	if m.Role.IsLeader() && s.continuity != nil {
		r, err := s.continuity.ResolveGroup(ctx, m.GroupID, m.UserID, m.Role)
		if err != nil {
			return DepartureResult{Membership: m}, fmt.Errorf("resolve leadership: %w", err)
		}
		resolution = &r
	}

	if err := s.members.UpdateStatus(ctx, m.ID, models.StatusActive, models.StatusLeft); err != nil {
		if errors.Is(err, membershipstore.ErrNotFound) {
			return DepartureResult{}, fmt.Errorf("%w: membership already ended", apperr.ErrNotFound)
		}
		return DepartureResult{}, err
	}
	if err := s.tokens.RemoveByUserAndGroup(ctx, m.UserID, m.GroupID); err != nil {
		s.log.Warn("failed to remove invitation for departing member",
			zap.String("group_id", m.GroupID.Hex()),
			zap.String("user_id", m.UserID.Hex()),
			zap.Error(err))
	}
	m.Status = models.StatusLeft
	return DepartureResult{Membership: m, Continuity: resolution}, nil
}

// RemoveMember removes another member from the group.
func (s *Service) RemoveMember(ctx context.Context, actor models.Actor, groupID, userID primitive.ObjectID) (res DepartureResult, err error) {
	defer func() { s.metrics.Operation("remove_member", err) }()

	if err := requireActor(actor); err != nil {
		return DepartureResult{}, err
	}
	if userID == actor.ID {
		return DepartureResult{}, fmt.Errorf("%w: use leave to remove yourself", apperr.ErrInvalidArgument)
	}
	g, err := s.activeGroup(ctx, groupID)
	if err != nil {
		return DepartureResult{}, err
	}
	am, err := s.actorMembership(ctx, groupID, actor.ID)
	if err != nil {
		return DepartureResult{}, err
	}
	target, err := s.targetMembership(ctx, groupID, userID)
	if err != nil {
		return DepartureResult{}, err
	}
	if !grouppolicy.CanRemoveMember(am.Role, target.Role) {
		return DepartureResult{}, fmt.Errorf("%w: %s cannot remove %s", apperr.ErrForbidden, am.Role, target.Role)
	}

	res, err = s.depart(ctx, target)
	if err != nil {
		return res, err
	}

	s.audit.MemberRemoved(ctx, actor.ID, userID, groupID, target.Role)
	s.publish(notify.Event{
		GroupID:   groupID,
		ActorID:   actor.ID,
		ActorName: displayName(actor),
		Type:      notify.MemberRemoved,
		Title:     "Member removed",
		Message:   fmt.Sprintf("%s removed a member from %s.", displayName(actor), g.Name),
		Link:      s.groupLink(groupID),
	})
	return res, nil
}

// Leave ends the actor's own membership.
func (s *Service) Leave(ctx context.Context, actor models.Actor, groupID primitive.ObjectID) (res DepartureResult, err error) {
	defer func() { s.metrics.Operation("leave", err) }()

	if err := requireActor(actor); err != nil {
		return DepartureResult{}, err
	}
	g, err := s.activeGroup(ctx, groupID)
	if err != nil {
		return DepartureResult{}, err
	}
	am, err := s.actorMembership(ctx, groupID, actor.ID)
	if err != nil {
		return DepartureResult{}, err
	}

	res, err = s.depart(ctx, am)
	if err != nil {
		return res, err
	}

	s.audit.MemberLeft(ctx, actor.ID, groupID, am.Role)
	s.publish(notify.Event{
		GroupID:   groupID,
		ActorID:   actor.ID,
		ActorName: displayName(actor),
		Type:      notify.MemberLeft,
		Title:     "Member left",
		Message:   fmt.Sprintf("%s left %s.", displayName(actor), g.Name),
		Link:      s.groupLink(groupID),
	})
	return res, nil
}
