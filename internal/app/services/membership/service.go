// Package membership implements the group membership lifecycle: creating
// groups, joining by code or invitation, approving requests, changing roles
// and leaving.
//
// Every operation takes the acting user as an explicit models.Actor. Checks
// run before any write, and operations with a human decision in between
// (accepting an invitation, approving a request) re-check capacity when the
// decision is committed. MongoDB is authoritative; the invitation cache is
// only trusted after the membership rows agree with it.
package membership

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dalemusser/spendhub/internal/app/policy/capacitypolicy"
	"github.com/dalemusser/spendhub/internal/app/services/continuity"
	groupstore "github.com/dalemusser/spendhub/internal/app/store/groups"
	membershipstore "github.com/dalemusser/spendhub/internal/app/store/memberships"
	"github.com/dalemusser/spendhub/internal/app/system/apperr"
	"github.com/dalemusser/spendhub/internal/app/system/auditlog"
	"github.com/dalemusser/spendhub/internal/app/system/mailer"
	"github.com/dalemusser/spendhub/internal/app/system/metrics"
	"github.com/dalemusser/spendhub/internal/app/system/notify"
	"github.com/dalemusser/spendhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Groups is the group persistence the service needs.
type Groups interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (models.Group, error)
	GetByInviteCode(ctx context.Context, code string) (models.Group, error)
	Create(ctx context.Context, g models.Group) (models.Group, error)
	UpdateInfo(ctx context.Context, id primitive.ObjectID, info groupstore.GroupInfo) error
	Delete(ctx context.Context, id primitive.ObjectID) (int64, error)
	ListByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.Group, error)
}

// Members is the membership persistence the service needs.
type Members interface {
	capacitypolicy.Counter
	Insert(ctx context.Context, m models.GroupMember) (models.GroupMember, error)
	GetOpen(ctx context.Context, groupID, userID primitive.ObjectID) (models.GroupMember, error)
	CountActiveByGroupAndRole(ctx context.Context, groupID primitive.ObjectID, role models.Role) (int64, error)
	ListByGroupAndStatus(ctx context.Context, groupID primitive.ObjectID, status models.MemberStatus) ([]models.GroupMember, error)
	ListByUserAndStatus(ctx context.Context, userID primitive.ObjectID, status models.MemberStatus) ([]models.GroupMember, error)
	UpdateStatus(ctx context.Context, id primitive.ObjectID, from, to models.MemberStatus) error
	Activate(ctx context.Context, id primitive.ObjectID, from models.MemberStatus, role models.Role, joinedAt time.Time) error
	UpdateRole(ctx context.Context, id primitive.ObjectID, from, to models.Role) error
	SwapRoles(ctx context.Context, ownerID, targetID primitive.ObjectID, targetRole models.Role) error
}

// Users is the account lookup the service needs.
type Users interface {
	GetByID(ctx context.Context, id primitive.ObjectID) (models.User, error)
	GetByEmail(ctx context.Context, email string) (models.User, error)
}

// Tokens is the invitation token store.
type Tokens interface {
	Create(ctx context.Context, data models.InvitationToken) (models.InvitationToken, error)
	Get(ctx context.Context, token string) (models.InvitationToken, bool, error)
	LookupByUserAndGroup(ctx context.Context, userID, groupID primitive.ObjectID) (models.InvitationToken, bool, error)
	LookupByEmailAndGroup(ctx context.Context, email string, groupID primitive.ObjectID) (models.InvitationToken, bool, error)
	Remove(ctx context.Context, token string) error
	RemoveByUserAndGroup(ctx context.Context, userID, groupID primitive.ObjectID) error
	RemoveByEmailAndGroup(ctx context.Context, email string, groupID primitive.ObjectID) error
	TTL() time.Duration
}

// Continuity restores leadership after an OWNER or ADMIN departs.
type Continuity interface {
	ResolveGroup(ctx context.Context, groupID, departingUserID primitive.ObjectID, vacatedRole models.Role) (continuity.Resolution, error)
}

// Deps holds the collaborators of a Service. Mail, Notify, Audit and
// Metrics are optional.
type Deps struct {
	Groups     Groups
	Members    Members
	Users      Users
	Tokens     Tokens
	Capacity   *capacitypolicy.Validator
	Continuity Continuity
	Mail       mailer.Sender
	Notify     notify.Publisher
	Audit      *auditlog.Logger
	Metrics    *metrics.Metrics
	Log        *zap.Logger

	// SiteName and BaseURL are used in invitation emails.
	SiteName string
	BaseURL  string

	// Now overrides the clock for join timestamps.
	Now func() time.Time
}

// Service is the membership lifecycle manager.
type Service struct {
	groups     Groups
	members    Members
	users      Users
	tokens     Tokens
	capacity   *capacitypolicy.Validator
	continuity Continuity
	mail       mailer.Sender
	notify     notify.Publisher
	audit      *auditlog.Logger
	metrics    *metrics.Metrics
	log        *zap.Logger
	siteName   string
	baseURL    string
	now        func() time.Time
}

// New creates a Service from d.
func New(d Deps) *Service {
	s := &Service{
		groups:     d.Groups,
		members:    d.Members,
		users:      d.Users,
		tokens:     d.Tokens,
		capacity:   d.Capacity,
		continuity: d.Continuity,
		mail:       d.Mail,
		notify:     d.Notify,
		audit:      d.Audit,
		metrics:    d.Metrics,
		log:        d.Log,
		siteName:   d.SiteName,
		baseURL:    strings.TrimRight(d.BaseURL, "/"),
		now:        d.Now,
	}
	if s.capacity == nil {
		s.capacity = capacitypolicy.New(d.Members, 0, 0)
	}
	if s.notify == nil {
		s.notify = notify.Discard{}
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.siteName == "" {
		s.siteName = "SpendHub"
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s
}

// GroupView is a group as seen by one of its members.
type GroupView struct {
	Group       models.Group `json:"group"`
	Role        models.Role  `json:"role"`
	MemberCount int64        `json:"member_count"`
}

// MemberView is a membership joined with the member's account details.
type MemberView struct {
	MembershipID primitive.ObjectID  `json:"membership_id"`
	UserID       primitive.ObjectID  `json:"user_id"`
	FullName     string              `json:"full_name"`
	Email        string              `json:"email"`
	Role         models.Role         `json:"role"`
	Status       models.MemberStatus `json:"status"`
	JoinedAt     time.Time           `json:"joined_at"`
}

// DepartureResult describes a removal or a voluntary leave.
type DepartureResult struct {
	Membership models.GroupMember     `json:"membership"`
	Continuity *continuity.Resolution `json:"continuity,omitempty"`
}

// --- shared checks ---

func requireActor(actor models.Actor) error {
	if !actor.Authenticated() {
		return apperr.ErrUnauthenticated
	}
	return nil
}

func requireID(id primitive.ObjectID, what string) error {
	if id.IsZero() {
		return fmt.Errorf("%w: %s id is required", apperr.ErrInvalidArgument, what)
	}
	return nil
}

// activeGroup loads a group that accepts membership changes.
func (s *Service) activeGroup(ctx context.Context, id primitive.ObjectID) (models.Group, error) {
	if err := requireID(id, "group"); err != nil {
		return models.Group{}, err
	}
	g, err := s.groups.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, groupstore.ErrNotFound) {
			return models.Group{}, fmt.Errorf("%w: group %s", apperr.ErrNotFound, id.Hex())
		}
		return models.Group{}, err
	}
	if !g.Active {
		return models.Group{}, fmt.Errorf("%w: group %s is inactive", apperr.ErrNotFound, id.Hex())
	}
	return g, nil
}

// Authorize checks that actor holds an ACTIVE membership in an active group
// with a role allowed accepts. It returns the actor's membership.
func (s *Service) Authorize(ctx context.Context, actor models.Actor, groupID primitive.ObjectID, allowed func(models.Role) bool) (models.GroupMember, error) {
	if err := requireActor(actor); err != nil {
		return models.GroupMember{}, err
	}
	if _, err := s.activeGroup(ctx, groupID); err != nil {
		return models.GroupMember{}, err
	}
	m, err := s.actorMembership(ctx, groupID, actor.ID)
	if err != nil {
		return models.GroupMember{}, err
	}
	if !allowed(m.Role) {
		return models.GroupMember{}, fmt.Errorf("%w: %s may not do this", apperr.ErrForbidden, m.Role)
	}
	return m, nil
}

// actorMembership returns the actor's ACTIVE membership or ErrNotMember.
func (s *Service) actorMembership(ctx context.Context, groupID, userID primitive.ObjectID) (models.GroupMember, error) {
	m, err := s.members.GetOpen(ctx, groupID, userID)
	if err != nil {
		if errors.Is(err, membershipstore.ErrNotFound) {
			return models.GroupMember{}, apperr.ErrNotMember
		}
		return models.GroupMember{}, err
	}
	if m.Status != models.StatusActive {
		return models.GroupMember{}, apperr.ErrNotMember
	}
	return m, nil
}

// targetMembership returns another user's ACTIVE membership or ErrNotFound.
func (s *Service) targetMembership(ctx context.Context, groupID, userID primitive.ObjectID) (models.GroupMember, error) {
	if err := requireID(userID, "user"); err != nil {
		return models.GroupMember{}, err
	}
	m, err := s.members.GetOpen(ctx, groupID, userID)
	if err != nil {
		if errors.Is(err, membershipstore.ErrNotFound) {
			return models.GroupMember{}, fmt.Errorf("%w: user %s is not an active member", apperr.ErrNotFound, userID.Hex())
		}
		return models.GroupMember{}, err
	}
	if m.Status != models.StatusActive {
		return models.GroupMember{}, fmt.Errorf("%w: user %s is not an active member", apperr.ErrNotFound, userID.Hex())
	}
	return m, nil
}

// lostRace converts a conditional-update miss into InconsistentState.
func lostRace(err error, what string) error {
	if errors.Is(err, membershipstore.ErrNotFound) {
		return fmt.Errorf("%w: %s changed concurrently", apperr.ErrInconsistentState, what)
	}
	return err
}

func (s *Service) publish(e notify.Event) {
	s.notify.Publish(e)
}

func (s *Service) groupLink(groupID primitive.ObjectID) string {
	return s.baseURL + "/groups/" + groupID.Hex()
}

func displayName(actor models.Actor) string {
	if actor.Name != "" {
		return actor.Name
	}
	if actor.Email != "" {
		return actor.Email
	}
	return "Someone"
}
