// Package continuity keeps every active group led after a leader departs.
//
// ResolveGroup runs synchronously when an OWNER or ADMIN leaves or is
// removed. DeactivateAccount disables a user and walks that user's ACTIVE
// memberships one group at a time.
package continuity

import (
	"context"
	"errors"
	"fmt"

	groupstore "github.com/dalemusser/spendhub/internal/app/store/groups"
	membershipstore "github.com/dalemusser/spendhub/internal/app/store/memberships"
	userstore "github.com/dalemusser/spendhub/internal/app/store/users"
	"github.com/dalemusser/spendhub/internal/app/system/apperr"
	"github.com/dalemusser/spendhub/internal/app/system/auditlog"
	"github.com/dalemusser/spendhub/internal/app/system/metrics"
	"github.com/dalemusser/spendhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Outcome is what ResolveGroup did to a group.
type Outcome string

const (
	// OutcomeSkipped: the group was already inactive.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeIntact: a qualifying leader remains; nothing changed.
	OutcomeIntact Outcome = "intact"
	// OutcomeElevated: the OWNER seat was vacated and the earliest remaining
	// ADMIN became OWNER.
	OutcomeElevated Outcome = "elevated"
	// OutcomePromoted: no leader remained and the earliest remaining member
	// took the vacated role.
	OutcomePromoted Outcome = "promoted"
	// OutcomeDeactivated: nobody remained and the group was deactivated.
	OutcomeDeactivated Outcome = "deactivated"
)

// Groups is the group persistence the resolver needs.
type Groups interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (models.Group, error)
	Deactivate(ctx context.Context, id primitive.ObjectID) (bool, error)
}

// Members is the membership persistence the resolver needs.
type Members interface {
	ListByGroupAndStatus(ctx context.Context, groupID primitive.ObjectID, status models.MemberStatus) ([]models.GroupMember, error)
	ListByUserAndStatus(ctx context.Context, userID primitive.ObjectID, status models.MemberStatus) ([]models.GroupMember, error)
	UpdateRole(ctx context.Context, id primitive.ObjectID, from, to models.Role) error
	UpdateStatus(ctx context.Context, id primitive.ObjectID, from, to models.MemberStatus) error
}

// Users is the account persistence the resolver needs.
type Users interface {
	Deactivate(ctx context.Context, id primitive.ObjectID) (bool, error)
}

// Tokens drops cached invitations whose membership rows were closed.
type Tokens interface {
	RemoveByUserAndGroup(ctx context.Context, userID, groupID primitive.ObjectID) error
}

// Resolver implements leadership continuity.
type Resolver struct {
	groups  Groups
	members Members
	users   Users
	tokens  Tokens
	audit   *auditlog.Logger
	metrics *metrics.Metrics
	log     *zap.Logger
}

// New creates a Resolver. tokens, audit and m may be nil; a nil logger
// discards output.
func New(groups Groups, members Members, users Users, tokens Tokens, audit *auditlog.Logger, m *metrics.Metrics, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		groups:  groups,
		members: members,
		users:   users,
		tokens:  tokens,
		audit:   audit,
		metrics: m,
		log:     logger,
	}
}

// Resolution describes the result for one group.
type Resolution struct {
	GroupID     primitive.ObjectID  `json:"group_id"`
	VacatedRole models.Role         `json:"vacated_role"`
	Outcome     Outcome             `json:"outcome"`
	SuccessorID *primitive.ObjectID `json:"successor_id,omitempty"`
}

// ResolveGroup makes sure groupID still has a leader once departingUserID
// is gone. vacatedRole is the role the departing user held. Running it again
// for the same departure is a no-op.
func (r *Resolver) ResolveGroup(ctx context.Context, groupID, departingUserID primitive.ObjectID, vacatedRole models.Role) (Resolution, error) {
	res := Resolution{GroupID: groupID, VacatedRole: vacatedRole}
	if groupID.IsZero() || departingUserID.IsZero() {
		return res, fmt.Errorf("%w: group and user ids are required", apperr.ErrInvalidArgument)
	}

	g, err := r.groups.GetByID(ctx, groupID)
	if err != nil {
		if errors.Is(err, groupstore.ErrNotFound) {
			return res, fmt.Errorf("%w: group %s", apperr.ErrNotFound, groupID.Hex())
		}
		return res, err
	}
	if !g.Active {
		res.Outcome = OutcomeSkipped
		r.record(res)
		return res, nil
	}

	active, err := r.members.ListByGroupAndStatus(ctx, groupID, models.StatusActive)
	if err != nil {
		return res, err
	}

	// active is ordered by JoinedAt then id, so the first match is the
	// earliest-joined candidate.
	var remaining []models.GroupMember
	var hasOwner bool
	var firstAdmin *models.GroupMember
	for _, m := range active {
		if m.UserID == departingUserID {
			continue
		}
		switch m.Role {
		case models.RoleOwner:
			hasOwner = true
		case models.RoleAdmin:
			if firstAdmin == nil {
				m := m
				firstAdmin = &m
			}
		case models.RoleMember:
		default:
			r.log.Error("active membership without a known role",
				zap.String("group_id", groupID.Hex()),
				zap.String("membership_id", m.ID.Hex()),
				zap.String("role", string(m.Role)))
			return res, fmt.Errorf("%w: membership %s has role %q", apperr.ErrInconsistentState, m.ID.Hex(), m.Role)
		}
		remaining = append(remaining, m)
	}

	switch {
	case hasOwner:
		res.Outcome = OutcomeIntact
	case firstAdmin != nil && vacatedRole != models.RoleOwner:
		res.Outcome = OutcomeIntact
	case firstAdmin != nil:
		if err := r.promote(ctx, groupID, departingUserID, *firstAdmin, models.RoleOwner); err != nil {
			return res, err
		}
		res.Outcome = OutcomeElevated
		res.SuccessorID = &firstAdmin.UserID
	case len(remaining) > 0:
		successor := remaining[0]
		role := vacatedRole
		if !role.IsLeader() {
			role = models.RoleAdmin
		}
		if err := r.promote(ctx, groupID, departingUserID, successor, role); err != nil {
			return res, err
		}
		res.Outcome = OutcomePromoted
		res.SuccessorID = &successor.UserID
	default:
		if _, err := r.groups.Deactivate(ctx, groupID); err != nil {
			return res, err
		}
		res.Outcome = OutcomeDeactivated
		r.audit.GroupDeactivated(ctx, departingUserID, groupID)
		r.log.Info("group deactivated, no members remain",
			zap.String("group_id", groupID.Hex()),
			zap.String("departing_user_id", departingUserID.Hex()))
	}

	r.record(res)
	return res, nil
}

func (r *Resolver) promote(ctx context.Context, groupID, departingUserID primitive.ObjectID, m models.GroupMember, to models.Role) error {
	if err := r.members.UpdateRole(ctx, m.ID, m.Role, to); err != nil {
		if errors.Is(err, membershipstore.ErrNotFound) {
			return fmt.Errorf("%w: successor %s changed while promoting", apperr.ErrInconsistentState, m.UserID.Hex())
		}
		return err
	}
	r.audit.SuccessorPromoted(ctx, departingUserID, m.UserID, groupID, to)
	r.log.Info("successor promoted",
		zap.String("group_id", groupID.Hex()),
		zap.String("successor_id", m.UserID.Hex()),
		zap.String("from_role", m.Role.String()),
		zap.String("to_role", to.String()))
	return nil
}

func (r *Resolver) record(res Resolution) {
	r.metrics.Continuity(string(res.Outcome))
}

// Report summarizes an account deactivation.
type Report struct {
	UserID          primitive.ObjectID `json:"user_id"`
	UserDeactivated bool               `json:"user_deactivated"`
	Resolutions     []Resolution       `json:"resolutions"`
	MembershipsLeft int                `json:"memberships_left"`
	PendingClosed   int                `json:"pending_closed"`
}

// DeactivateAccount disables userID, resolves continuity for every group
// where the user leads, marks all of the user's ACTIVE memberships LEFT and
// closes pending invitations and requests. It is idempotent.
func (r *Resolver) DeactivateAccount(ctx context.Context, userID primitive.ObjectID) (Report, error) {
	rep := Report{UserID: userID}
	if userID.IsZero() {
		return rep, fmt.Errorf("%w: user id is required", apperr.ErrInvalidArgument)
	}

	changed, err := r.users.Deactivate(ctx, userID)
	if err != nil {
		if errors.Is(err, userstore.ErrNotFound) {
			return rep, fmt.Errorf("%w: user %s", apperr.ErrNotFound, userID.Hex())
		}
		return rep, err
	}
	rep.UserDeactivated = changed

	active, err := r.members.ListByUserAndStatus(ctx, userID, models.StatusActive)
	if err != nil {
		return rep, err
	}

	for _, m := range active {
		if m.Role.IsLeader() {
			res, err := r.ResolveGroup(ctx, m.GroupID, userID, m.Role)
			if err != nil {
				return rep, fmt.Errorf("resolve group %s: %w", m.GroupID.Hex(), err)
			}
			rep.Resolutions = append(rep.Resolutions, res)
		}
		if err := r.members.UpdateStatus(ctx, m.ID, models.StatusActive, models.StatusLeft); err != nil {
			if errors.Is(err, membershipstore.ErrNotFound) {
				// Left concurrently.
				continue
			}
			return rep, err
		}
		rep.MembershipsLeft++
		r.audit.MemberLeft(ctx, userID, m.GroupID, m.Role)
	}

	for _, status := range []models.MemberStatus{models.StatusInvited, models.StatusPendingApproval} {
		pending, err := r.members.ListByUserAndStatus(ctx, userID, status)
		if err != nil {
			return rep, err
		}
		for _, m := range pending {
			if err := r.members.UpdateStatus(ctx, m.ID, status, models.StatusRejected); err != nil {
				if errors.Is(err, membershipstore.ErrNotFound) {
					continue
				}
				return rep, err
			}
			rep.PendingClosed++
			if status == models.StatusInvited {
				r.dropInvitation(ctx, m)
			}
		}
	}

	if rep.UserDeactivated {
		r.audit.AccountDeactivated(ctx, userID, rep.MembershipsLeft)
	}
	r.log.Info("account deactivated",
		zap.String("user_id", userID.Hex()),
		zap.Bool("changed", rep.UserDeactivated),
		zap.Int("memberships_left", rep.MembershipsLeft),
		zap.Int("groups_resolved", len(rep.Resolutions)))
	return rep, nil
}

// dropInvitation removes the cached token for a closed INVITED row. The row
// is authoritative, so a failure here is only logged.
func (r *Resolver) dropInvitation(ctx context.Context, m models.GroupMember) {
	if r.tokens == nil {
		return
	}
	if err := r.tokens.RemoveByUserAndGroup(ctx, m.UserID, m.GroupID); err != nil {
		r.log.Warn("failed to remove invitation for deactivated account",
			zap.String("group_id", m.GroupID.Hex()),
			zap.String("user_id", m.UserID.Hex()),
			zap.Error(err))
	}
}
