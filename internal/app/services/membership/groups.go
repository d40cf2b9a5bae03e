package membership

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/dalemusser/spendhub/internal/app/policy/grouppolicy"
	groupstore "github.com/dalemusser/spendhub/internal/app/store/groups"
	userstore "github.com/dalemusser/spendhub/internal/app/store/users"
	"github.com/dalemusser/spendhub/internal/app/system/apperr"
	"github.com/dalemusser/spendhub/internal/app/system/htmlsanitize"
	"github.com/dalemusser/spendhub/internal/app/system/normalize"
	"github.com/dalemusser/spendhub/internal/domain/models"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// inviteCodeAttempts bounds retries when a generated code collides.
const inviteCodeAttempts = 3

// CreateGroupInput holds the fields of a new group.
type CreateGroupInput struct {
	Name             string `json:"name"`
	AvatarURL        string `json:"avatar_url"`
	RequiresApproval bool   `json:"requires_approval"`
}

// UpdateGroupInput holds group fields to change. Nil fields are left alone.
type UpdateGroupInput struct {
	Name             *string `json:"name"`
	AvatarURL        *string `json:"avatar_url"`
	RequiresApproval *bool   `json:"requires_approval"`
}

func cleanGroupName(raw string) (string, error) {
	name := normalize.Name(htmlsanitize.PlainText(raw))
	if name == "" {
		return "", fmt.Errorf("%w: group name is required", apperr.ErrInvalidArgument)
	}
	if utf8.RuneCountInString(name) > models.MaxGroupNameLength {
		return "", fmt.Errorf("%w: group name must be at most %d characters", apperr.ErrInvalidArgument, models.MaxGroupNameLength)
	}
	return name, nil
}

func cleanAvatarURL(raw string) (string, error) {
	u, ok := htmlsanitize.AvatarURL(raw)
	if !ok {
		return "", fmt.Errorf("%w: avatar must be an http(s) URL", apperr.ErrInvalidArgument)
	}
	return u, nil
}

func newInviteCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:8]
}

// CreateGroup creates a group with the actor as its ACTIVE OWNER. If the
// owner membership cannot be written the group is deleted again.
func (s *Service) CreateGroup(ctx context.Context, actor models.Actor, in CreateGroupInput) (view GroupView, err error) {
	defer func() { s.metrics.Operation("create_group", err) }()

	if err := requireActor(actor); err != nil {
		return GroupView{}, err
	}
	name, err := cleanGroupName(in.Name)
	if err != nil {
		return GroupView{}, err
	}
	avatar, err := cleanAvatarURL(in.AvatarURL)
	if err != nil {
		return GroupView{}, err
	}
	if err := s.capacity.ValidateUserCanJoinMoreGroups(ctx, actor.ID); err != nil {
		return GroupView{}, err
	}

	var g models.Group
	for attempt := 0; attempt < inviteCodeAttempts; attempt++ {
		g, err = s.groups.Create(ctx, models.Group{
			Name:             name,
			AvatarURL:        avatar,
			RequiresApproval: in.RequiresApproval,
			InviteCode:       newInviteCode(),
			CreatedBy:        actor.ID,
		})
		if !errors.Is(err, groupstore.ErrDuplicateInviteCode) {
			break
		}
	}
	if err != nil {
		return GroupView{}, fmt.Errorf("create group: %w", err)
	}

	owner, err := s.members.Insert(ctx, models.GroupMember{
		GroupID:  g.ID,
		UserID:   actor.ID,
		Role:     models.RoleOwner,
		Status:   models.StatusActive,
		JoinedAt: s.now(),
	})
	if err != nil {
		if _, delErr := s.groups.Delete(ctx, g.ID); delErr != nil {
			s.log.Error("failed to delete group after owner insert failed",
				zap.String("group_id", g.ID.Hex()),
				zap.Error(delErr))
		}
		return GroupView{}, fmt.Errorf("create owner membership: %w", err)
	}

	s.audit.GroupCreated(ctx, actor.ID, g.ID, g.Name)
	s.log.Info("group created",
		zap.String("group_id", g.ID.Hex()),
		zap.String("owner_id", owner.UserID.Hex()))
	return GroupView{Group: g, Role: models.RoleOwner, MemberCount: 1}, nil
}

// UpdateGroupInfo changes a group's name, avatar or approval setting.
// Name and avatar are OWNER-only; the approval setting is open to leaders.
func (s *Service) UpdateGroupInfo(ctx context.Context, actor models.Actor, groupID primitive.ObjectID, in UpdateGroupInput) (g models.Group, err error) {
	defer func() { s.metrics.Operation("update_group", err) }()

	if err := requireActor(actor); err != nil {
		return models.Group{}, err
	}
	if in.Name == nil && in.AvatarURL == nil && in.RequiresApproval == nil {
		return models.Group{}, fmt.Errorf("%w: nothing to update", apperr.ErrInvalidArgument)
	}
	if _, err := s.activeGroup(ctx, groupID); err != nil {
		return models.Group{}, err
	}
	am, err := s.actorMembership(ctx, groupID, actor.ID)
	if err != nil {
		return models.Group{}, err
	}
	if (in.Name != nil || in.AvatarURL != nil) && !grouppolicy.CanUpdateGroupInfo(am.Role) {
		return models.Group{}, fmt.Errorf("%w: only the owner can edit group details", apperr.ErrForbidden)
	}
	if in.RequiresApproval != nil && !grouppolicy.CanManageGroupSettings(am.Role) {
		return models.Group{}, fmt.Errorf("%w: only leaders can change group settings", apperr.ErrForbidden)
	}

	var info groupstore.GroupInfo
	var changed []string
	if in.Name != nil {
		name, err := cleanGroupName(*in.Name)
		if err != nil {
			return models.Group{}, err
		}
		info.Name = &name
		changed = append(changed, "name")
	}
	if in.AvatarURL != nil {
		avatar, err := cleanAvatarURL(*in.AvatarURL)
		if err != nil {
			return models.Group{}, err
		}
		info.AvatarURL = &avatar
		changed = append(changed, "avatar_url")
	}
	if in.RequiresApproval != nil {
		info.RequiresApproval = in.RequiresApproval
		changed = append(changed, "requires_approval")
	}

	if err := s.groups.UpdateInfo(ctx, groupID, info); err != nil {
		if errors.Is(err, groupstore.ErrNotFound) {
			return models.Group{}, fmt.Errorf("%w: group %s", apperr.ErrNotFound, groupID.Hex())
		}
		return models.Group{}, err
	}
	s.audit.GroupUpdated(ctx, actor.ID, groupID, strings.Join(changed, ","))
	return s.groups.GetByID(ctx, groupID)
}

// ListMyGroups returns the active groups the actor is an ACTIVE member of.
func (s *Service) ListMyGroups(ctx context.Context, actor models.Actor) ([]GroupView, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	mine, err := s.members.ListByUserAndStatus(ctx, actor.ID, models.StatusActive)
	if err != nil {
		return nil, err
	}
	if len(mine) == 0 {
		return []GroupView{}, nil
	}

	roles := make(map[primitive.ObjectID]models.Role, len(mine))
	ids := make([]primitive.ObjectID, 0, len(mine))
	for _, m := range mine {
		roles[m.GroupID] = m.Role
		ids = append(ids, m.GroupID)
	}
	groups, err := s.groups.ListByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[primitive.ObjectID]models.Group, len(groups))
	for _, g := range groups {
		byID[g.ID] = g
	}

	out := make([]GroupView, 0, len(ids))
	for _, id := range ids {
		g, ok := byID[id]
		if !ok || !g.Active {
			continue
		}
		n, err := s.capacity.GroupActiveMemberCount(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, GroupView{Group: g, Role: roles[id], MemberCount: n})
	}
	return out, nil
}

// ListMembers returns the group's ACTIVE members, earliest joined first.
func (s *Service) ListMembers(ctx context.Context, actor models.Actor, groupID primitive.ObjectID) ([]MemberView, error) {
	return s.listByStatus(ctx, actor, groupID, models.StatusActive, grouppolicy.CanViewGroupMembers)
}

// ListPendingRequests returns the group's open join requests.
func (s *Service) ListPendingRequests(ctx context.Context, actor models.Actor, groupID primitive.ObjectID) ([]MemberView, error) {
	return s.listByStatus(ctx, actor, groupID, models.StatusPendingApproval, grouppolicy.CanApproveRequests)
}

func (s *Service) listByStatus(ctx context.Context, actor models.Actor, groupID primitive.ObjectID, status models.MemberStatus, allowed func(models.Role) bool) ([]MemberView, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if _, err := s.activeGroup(ctx, groupID); err != nil {
		return nil, err
	}
	am, err := s.actorMembership(ctx, groupID, actor.ID)
	if err != nil {
		return nil, err
	}
	if !allowed(am.Role) {
		return nil, apperr.ErrForbidden
	}

	rows, err := s.members.ListByGroupAndStatus(ctx, groupID, status)
	if err != nil {
		return nil, err
	}
	out := make([]MemberView, 0, len(rows))
	for _, m := range rows {
		v := MemberView{
			MembershipID: m.ID,
			UserID:       m.UserID,
			Role:         m.Role,
			Status:       m.Status,
			JoinedAt:     m.JoinedAt,
		}
		u, err := s.users.GetByID(ctx, m.UserID)
		switch {
		case err == nil:
			v.FullName = u.FullName
			v.Email = u.Email
		case errors.Is(err, userstore.ErrNotFound):
			s.log.Warn("membership references missing user",
				zap.String("group_id", groupID.Hex()),
				zap.String("user_id", m.UserID.Hex()))
		default:
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
