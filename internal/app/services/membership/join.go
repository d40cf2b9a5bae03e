package membership

import (
	"context"
	"errors"
	"fmt"

	"github.com/dalemusser/spendhub/internal/app/policy/grouppolicy"
	groupstore "github.com/dalemusser/spendhub/internal/app/store/groups"
	membershipstore "github.com/dalemusser/spendhub/internal/app/store/memberships"
	"github.com/dalemusser/spendhub/internal/app/system/apperr"
	"github.com/dalemusser/spendhub/internal/app/system/normalize"
	"github.com/dalemusser/spendhub/internal/app/system/notify"
	"github.com/dalemusser/spendhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// JoinResult is the membership produced by a join, approval or acceptance.
type JoinResult struct {
	Membership models.GroupMember `json:"membership"`
	// Pending is true when the group requires approval and the request is
	// waiting for a leader.
	Pending bool `json:"pending"`
}

// RequestToJoin joins the group identified by inviteCode. Groups that
// require approval get a PENDING_APPROVAL row; others admit the actor as an
// ACTIVE MEMBER immediately.
func (s *Service) RequestToJoin(ctx context.Context, actor models.Actor, inviteCode string) (res JoinResult, err error) {
	defer func() { s.metrics.Operation("request_to_join", err) }()

	if err := requireActor(actor); err != nil {
		return JoinResult{}, err
	}
	code := normalize.InviteCode(inviteCode)
	if code == "" {
		return JoinResult{}, fmt.Errorf("%w: invite code is required", apperr.ErrInvalidArgument)
	}
	g, err := s.groups.GetByInviteCode(ctx, code)
	if err != nil {
		if errors.Is(err, groupstore.ErrNotFound) {
			return JoinResult{}, fmt.Errorf("%w: no group uses that invite code", apperr.ErrNotFound)
		}
		return JoinResult{}, err
	}
	if !g.Active {
		return JoinResult{}, fmt.Errorf("%w: group %s is inactive", apperr.ErrNotFound, g.ID.Hex())
	}

	if err := s.capacity.ValidateUserCanJoinGroup(ctx, actor.ID, g.ID); err != nil {
		return JoinResult{}, err
	}
	open, err := s.members.GetOpen(ctx, g.ID, actor.ID)
	switch {
	case err == nil:
		return JoinResult{}, fmt.Errorf("%w: membership is already %s", apperr.ErrDuplicateInvitation, open.Status)
	case !errors.Is(err, membershipstore.ErrNotFound):
		return JoinResult{}, err
	}

	row := models.GroupMember{
		GroupID: g.ID,
		UserID:  actor.ID,
		Role:    models.RoleMember,
		Status:  models.StatusActive,
	}
	if g.RequiresApproval {
		row.Status = models.StatusPendingApproval
	} else {
		row.JoinedAt = s.now()
	}
	m, err := s.members.Insert(ctx, row)
	if err != nil {
		if errors.Is(err, membershipstore.ErrDuplicateMembership) {
			return JoinResult{}, fmt.Errorf("%w: a membership was created concurrently", apperr.ErrDuplicateInvitation)
		}
		return JoinResult{}, err
	}

	name := displayName(actor)
	if g.RequiresApproval {
		s.audit.JoinRequested(ctx, actor.ID, g.ID)
		s.publish(notify.Event{
			GroupID:   g.ID,
			ActorID:   actor.ID,
			ActorName: name,
			Type:      notify.JoinRequestCreated,
			Title:     "New join request",
			Message:   fmt.Sprintf("%s asked to join %s.", name, g.Name),
			Link:      s.groupLink(g.ID) + "/requests",
		})
	} else {
		s.audit.MemberJoined(ctx, actor.ID, g.ID, "invite_code")
		s.publish(notify.Event{
			GroupID:   g.ID,
			ActorID:   actor.ID,
			ActorName: name,
			Type:      notify.MemberJoined,
			Title:     "New member",
			Message:   fmt.Sprintf("%s joined %s.", name, g.Name),
			Link:      s.groupLink(g.ID),
		})
	}
	s.log.Info("join requested",
		zap.String("group_id", g.ID.Hex()),
		zap.String("user_id", actor.ID.Hex()),
		zap.String("status", m.Status.String()))
	return JoinResult{Membership: m, Pending: g.RequiresApproval}, nil
}

// pendingRequest loads the decision context shared by approve and reject.
func (s *Service) pendingRequest(ctx context.Context, actor models.Actor, groupID, userID primitive.ObjectID) (models.Group, models.GroupMember, error) {
	if err := requireActor(actor); err != nil {
		return models.Group{}, models.GroupMember{}, err
	}
	g, err := s.activeGroup(ctx, groupID)
	if err != nil {
		return models.Group{}, models.GroupMember{}, err
	}
	if err := requireID(userID, "user"); err != nil {
		return models.Group{}, models.GroupMember{}, err
	}
	am, err := s.actorMembership(ctx, groupID, actor.ID)
	if err != nil {
		return models.Group{}, models.GroupMember{}, err
	}
	if !grouppolicy.CanApproveRequests(am.Role) {
		return models.Group{}, models.GroupMember{}, fmt.Errorf("%w: only leaders can decide join requests", apperr.ErrForbidden)
	}
	req, err := s.members.GetOpen(ctx, groupID, userID)
	if err != nil {
		if errors.Is(err, membershipstore.ErrNotFound) {
			return models.Group{}, models.GroupMember{}, fmt.Errorf("%w: no pending request for user %s", apperr.ErrNotFound, userID.Hex())
		}
		return models.Group{}, models.GroupMember{}, err
	}
	if req.Status != models.StatusPendingApproval {
		return models.Group{}, models.GroupMember{}, fmt.Errorf("%w: no pending request for user %s", apperr.ErrNotFound, userID.Hex())
	}
	return g, req, nil
}

// ApproveRequest admits a PENDING_APPROVAL user as an ACTIVE MEMBER.
// Capacity is checked again at this point; on failure the request stays
// pending.
func (s *Service) ApproveRequest(ctx context.Context, actor models.Actor, groupID, userID primitive.ObjectID) (res JoinResult, err error) {
	defer func() { s.metrics.Operation("approve_request", err) }()

	g, req, err := s.pendingRequest(ctx, actor, groupID, userID)
	if err != nil {
		return JoinResult{}, err
	}
	if err := s.capacity.ValidateUserCanJoinMoreGroups(ctx, userID); err != nil {
		return JoinResult{}, err
	}
	if err := s.capacity.ValidateGroupCanAcceptMoreMembers(ctx, groupID); err != nil {
		return JoinResult{}, err
	}

	joinedAt := s.now()
	if err := s.members.Activate(ctx, req.ID, models.StatusPendingApproval, models.RoleMember, joinedAt); err != nil {
		if errors.Is(err, membershipstore.ErrNotFound) {
			return JoinResult{}, fmt.Errorf("%w: request was already decided", apperr.ErrNotFound)
		}
		return JoinResult{}, err
	}
	req.Status = models.StatusActive
	req.Role = models.RoleMember
	req.JoinedAt = joinedAt

	s.audit.RequestDecided(ctx, actor.ID, userID, groupID, true)
	s.publish(notify.Event{
		GroupID:   groupID,
		ActorID:   actor.ID,
		ActorName: displayName(actor),
		Type:      notify.RequestApproved,
		Title:     "Join request approved",
		Message:   fmt.Sprintf("%s approved a request to join %s.", displayName(actor), g.Name),
		Link:      s.groupLink(groupID),
	})
	return JoinResult{Membership: req}, nil
}

// RejectRequest declines a PENDING_APPROVAL request.
func (s *Service) RejectRequest(ctx context.Context, actor models.Actor, groupID, userID primitive.ObjectID) (err error) {
	defer func() { s.metrics.Operation("reject_request", err) }()

	g, req, err := s.pendingRequest(ctx, actor, groupID, userID)
	if err != nil {
		return err
	}
	if err := s.members.UpdateStatus(ctx, req.ID, models.StatusPendingApproval, models.StatusRejected); err != nil {
		if errors.Is(err, membershipstore.ErrNotFound) {
			return fmt.Errorf("%w: request was already decided", apperr.ErrNotFound)
		}
		return err
	}

	s.audit.RequestDecided(ctx, actor.ID, userID, groupID, false)
	s.publish(notify.Event{
		GroupID:   groupID,
		ActorID:   actor.ID,
		ActorName: displayName(actor),
		Type:      notify.RequestRejected,
		Title:     "Join request declined",
		Message:   fmt.Sprintf("%s declined a request to join %s.", displayName(actor), g.Name),
		Link:      s.groupLink(groupID),
	})
	return nil
}
