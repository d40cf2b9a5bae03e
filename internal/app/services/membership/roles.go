package membership

import (
	"context"
	"fmt"

	"github.com/dalemusser/spendhub/internal/app/policy/grouppolicy"
	"github.com/dalemusser/spendhub/internal/app/system/apperr"
	"github.com/dalemusser/spendhub/internal/app/system/notify"
	"github.com/dalemusser/spendhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// roleChange loads the actor's and target's ACTIVE memberships and applies
// the policy check.
func (s *Service) roleChange(ctx context.Context, actor models.Actor, groupID, userID primitive.ObjectID, allowed func(models.Role) bool) (models.Group, models.GroupMember, error) {
	if err := requireActor(actor); err != nil {
		return models.Group{}, models.GroupMember{}, err
	}
	g, err := s.activeGroup(ctx, groupID)
	if err != nil {
		return models.Group{}, models.GroupMember{}, err
	}
	am, err := s.actorMembership(ctx, groupID, actor.ID)
	if err != nil {
		return models.Group{}, models.GroupMember{}, err
	}
	if !allowed(am.Role) {
		return models.Group{}, models.GroupMember{}, fmt.Errorf("%w: only the owner can change roles", apperr.ErrForbidden)
	}
	target, err := s.targetMembership(ctx, groupID, userID)
	if err != nil {
		return models.Group{}, models.GroupMember{}, err
	}
	return g, target, nil
}

func (s *Service) setRole(ctx context.Context, actor models.Actor, g models.Group, target models.GroupMember, to models.Role) (models.GroupMember, error) {
	if err := s.members.UpdateRole(ctx, target.ID, target.Role, to); err != nil {
		return models.GroupMember{}, lostRace(err, "membership role")
	}
	from := target.Role
	target.Role = to

	s.audit.RoleChanged(ctx, actor.ID, target.UserID, g.ID, from, to)
	s.publish(notify.Event{
		GroupID:   g.ID,
		ActorID:   actor.ID,
		ActorName: displayName(actor),
		Type:      notify.RoleChanged,
		Title:     "Role changed",
		Message:   fmt.Sprintf("%s changed a member of %s from %s to %s.", displayName(actor), g.Name, from, to),
		Link:      s.groupLink(g.ID),
	})
	return target, nil
}

// PromoteToAdmin makes an ACTIVE MEMBER an ADMIN.
func (s *Service) PromoteToAdmin(ctx context.Context, actor models.Actor, groupID, userID primitive.ObjectID) (m models.GroupMember, err error) {
	defer func() { s.metrics.Operation("promote_admin", err) }()

	g, target, err := s.roleChange(ctx, actor, groupID, userID, grouppolicy.CanPromoteToAdmin)
	if err != nil {
		return models.GroupMember{}, err
	}
	if target.Role != models.RoleMember {
		return models.GroupMember{}, fmt.Errorf("%w: only members can be promoted, user is %s", apperr.ErrInvalidArgument, target.Role)
	}
	return s.setRole(ctx, actor, g, target, models.RoleAdmin)
}

// DemoteAdmin makes an ADMIN a MEMBER again, provided the group keeps a
// leader afterwards.
func (s *Service) DemoteAdmin(ctx context.Context, actor models.Actor, groupID, userID primitive.ObjectID) (m models.GroupMember, err error) {
	defer func() { s.metrics.Operation("demote_admin", err) }()

	g, target, err := s.roleChange(ctx, actor, groupID, userID, grouppolicy.CanDemoteAdmin)
	if err != nil {
		return models.GroupMember{}, err
	}
	if target.Role != models.RoleAdmin {
		return models.GroupMember{}, fmt.Errorf("%w: user is %s, not ADMIN", apperr.ErrInvalidArgument, target.Role)
	}

	owners, err := s.members.CountActiveByGroupAndRole(ctx, groupID, models.RoleOwner)
	if err != nil {
		return models.GroupMember{}, err
	}
	admins, err := s.members.CountActiveByGroupAndRole(ctx, groupID, models.RoleAdmin)
	if err != nil {
		return models.GroupMember{}, err
	}
	am, err := s.actorMembership(ctx, groupID, actor.ID)
	if err != nil {
		return models.GroupMember{}, err
	}
	if !grouppolicy.CanRemoveLastAdmin(am.Role, owners > 0, admins) {
		return models.GroupMember{}, fmt.Errorf("%w: the group would be left without a leader", apperr.ErrForbidden)
	}
	return s.setRole(ctx, actor, g, target, models.RoleMember)
}

// TransferOwnership hands the OWNER role to another ACTIVE member. The
// previous owner becomes ADMIN. Both role changes are applied together.
func (s *Service) TransferOwnership(ctx context.Context, actor models.Actor, groupID, userID primitive.ObjectID) (err error) {
	defer func() { s.metrics.Operation("transfer_ownership", err) }()

	if err := requireActor(actor); err != nil {
		return err
	}
	if userID == actor.ID {
		return fmt.Errorf("%w: you already own this group", apperr.ErrInvalidArgument)
	}
	g, err := s.activeGroup(ctx, groupID)
	if err != nil {
		return err
	}
	am, err := s.actorMembership(ctx, groupID, actor.ID)
	if err != nil {
		return err
	}
	if !grouppolicy.CanTransferOwnership(am.Role) {
		return fmt.Errorf("%w: only the owner can transfer ownership", apperr.ErrForbidden)
	}
	target, err := s.targetMembership(ctx, groupID, userID)
	if err != nil {
		return err
	}

	if err := s.members.SwapRoles(ctx, am.ID, target.ID, target.Role); err != nil {
		return lostRace(err, "ownership")
	}

	s.audit.OwnershipTransferred(ctx, actor.ID, userID, groupID)
	s.publish(notify.Event{
		GroupID:   groupID,
		ActorID:   actor.ID,
		ActorName: displayName(actor),
		Type:      notify.OwnershipTransferred,
		Title:     "Ownership transferred",
		Message:   fmt.Sprintf("%s transferred ownership of %s.", displayName(actor), g.Name),
		Link:      s.groupLink(groupID),
	})
	return nil
}
