// Package memrepo provides in-memory groups, memberships and users with the
// same semantics and sentinel errors as the MongoDB stores, for service tests
// that should not need a database.
package memrepo

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	groupstore "github.com/dalemusser/spendhub/internal/app/store/groups"
	membershipstore "github.com/dalemusser/spendhub/internal/app/store/memberships"
	userstore "github.com/dalemusser/spendhub/internal/app/store/users"
	"github.com/dalemusser/spendhub/internal/app/system/normalize"
	"github.com/dalemusser/spendhub/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Repo holds all three collections behind one lock.
type Repo struct {
	mu       sync.Mutex
	groups   map[primitive.ObjectID]models.Group
	members  map[primitive.ObjectID]models.GroupMember
	users    map[primitive.ObjectID]models.User
	failures map[string]error
	now      func() time.Time
}

// New returns an empty repository.
func New() *Repo {
	return &Repo{
		groups:   map[primitive.ObjectID]models.Group{},
		members:  map[primitive.ObjectID]models.GroupMember{},
		users:    map[primitive.ObjectID]models.User{},
		failures: map[string]error{},
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time used for timestamps.
func (r *Repo) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// FailOn makes the named operation (e.g. "members.Insert") return err until
// cleared with a nil err.
func (r *Repo) FailOn(op string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		delete(r.failures, op)
		return
	}
	r.failures[op] = err
}

func (r *Repo) fail(op string) error {
	return r.failures[op]
}

// Groups returns the groups view.
func (r *Repo) Groups() *Groups { return &Groups{r: r} }

// Members returns the memberships view.
func (r *Repo) Members() *Members { return &Members{r: r} }

// Users returns the users view.
func (r *Repo) Users() *Users { return &Users{r: r} }

// --- seeding helpers ---

// AddUser stores an active user.
func (r *Repo) AddUser(fullName, email string) models.User {
	u, _ := r.Users().Create(context.Background(), models.User{FullName: fullName, Email: email})
	return u
}

// AddGroup stores an active group with a generated invite code.
func (r *Repo) AddGroup(name string, requiresApproval bool, createdBy primitive.ObjectID) models.Group {
	g, _ := r.Groups().Create(context.Background(), models.Group{
		Name:             name,
		RequiresApproval: requiresApproval,
		InviteCode:       strings.ToUpper(primitive.NewObjectID().Hex()[16:]),
		CreatedBy:        createdBy,
	})
	return g
}

// AddMember stores a membership row as given, bypassing the open-row check.
func (r *Repo) AddMember(groupID, userID primitive.ObjectID, role models.Role, status models.MemberStatus, joinedAt time.Time) models.GroupMember {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	m := models.GroupMember{
		ID:        primitive.NewObjectID(),
		GroupID:   groupID,
		UserID:    userID,
		Role:      role,
		Status:    status,
		JoinedAt:  joinedAt.UTC(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.members[m.ID] = m
	return m
}

// Group returns a stored group by id.
func (r *Repo) Group(id primitive.ObjectID) models.Group {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.groups[id]
}

// Membership returns a stored membership by id.
func (r *Repo) Membership(id primitive.ObjectID) models.GroupMember {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.members[id]
}

// User returns a stored user by id.
func (r *Repo) User(id primitive.ObjectID) models.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.users[id]
}

// MembershipsOf returns every row for the user in the group, oldest first.
func (r *Repo) MembershipsOf(groupID, userID primitive.ObjectID) []models.GroupMember {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.filter(func(m models.GroupMember) bool {
		return m.GroupID == groupID && m.UserID == userID
	})
}

func (r *Repo) filter(keep func(models.GroupMember) bool) []models.GroupMember {
	var out []models.GroupMember
	for _, m := range r.members {
		if keep(m) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedBefore(out[j]) })
	return out
}

// --- groups ---

// Groups mirrors groupstore.Store.
type Groups struct{ r *Repo }

func (g *Groups) GetByID(_ context.Context, id primitive.ObjectID) (models.Group, error) {
	g.r.mu.Lock()
	defer g.r.mu.Unlock()
	if err := g.r.fail("groups.GetByID"); err != nil {
		return models.Group{}, err
	}
	grp, ok := g.r.groups[id]
	if !ok {
		return models.Group{}, groupstore.ErrNotFound
	}
	return grp, nil
}

func (g *Groups) GetByInviteCode(_ context.Context, code string) (models.Group, error) {
	g.r.mu.Lock()
	defer g.r.mu.Unlock()
	for _, grp := range g.r.groups {
		if grp.InviteCode == code {
			return grp, nil
		}
	}
	return models.Group{}, groupstore.ErrNotFound
}

func (g *Groups) Create(_ context.Context, grp models.Group) (models.Group, error) {
	g.r.mu.Lock()
	defer g.r.mu.Unlock()
	if err := g.r.fail("groups.Create"); err != nil {
		return models.Group{}, err
	}
	for _, existing := range g.r.groups {
		if grp.InviteCode != "" && existing.InviteCode == grp.InviteCode {
			return models.Group{}, groupstore.ErrDuplicateInviteCode
		}
	}
	now := g.r.now()
	grp.ID = primitive.NewObjectID()
	grp.NameCI = text.Fold(grp.Name)
	grp.Active = true
	grp.CreatedAt = now
	grp.UpdatedAt = now
	grp.DeactivatedAt = nil
	g.r.groups[grp.ID] = grp
	return grp, nil
}

func (g *Groups) UpdateInfo(_ context.Context, id primitive.ObjectID, info groupstore.GroupInfo) error {
	g.r.mu.Lock()
	defer g.r.mu.Unlock()
	grp, ok := g.r.groups[id]
	if !ok {
		return groupstore.ErrNotFound
	}
	if info.Name != nil {
		grp.Name = *info.Name
		grp.NameCI = text.Fold(*info.Name)
	}
	if info.AvatarURL != nil {
		grp.AvatarURL = *info.AvatarURL
	}
	if info.RequiresApproval != nil {
		grp.RequiresApproval = *info.RequiresApproval
	}
	grp.UpdatedAt = g.r.now()
	g.r.groups[id] = grp
	return nil
}

func (g *Groups) Deactivate(_ context.Context, id primitive.ObjectID) (bool, error) {
	g.r.mu.Lock()
	defer g.r.mu.Unlock()
	if err := g.r.fail("groups.Deactivate"); err != nil {
		return false, err
	}
	grp, ok := g.r.groups[id]
	if !ok || !grp.Active {
		return false, nil
	}
	now := g.r.now()
	grp.Active = false
	grp.DeactivatedAt = &now
	grp.UpdatedAt = now
	g.r.groups[id] = grp
	return true, nil
}

func (g *Groups) Delete(_ context.Context, id primitive.ObjectID) (int64, error) {
	g.r.mu.Lock()
	defer g.r.mu.Unlock()
	if _, ok := g.r.groups[id]; !ok {
		return 0, nil
	}
	delete(g.r.groups, id)
	return 1, nil
}

func (g *Groups) ListByIDs(_ context.Context, ids []primitive.ObjectID) ([]models.Group, error) {
	g.r.mu.Lock()
	defer g.r.mu.Unlock()
	var out []models.Group
	for _, id := range ids {
		if grp, ok := g.r.groups[id]; ok {
			out = append(out, grp)
		}
	}
	return out, nil
}

// Count returns the number of stored groups.
func (g *Groups) Count() int {
	g.r.mu.Lock()
	defer g.r.mu.Unlock()
	return len(g.r.groups)
}

// --- memberships ---

// Members mirrors membershipstore.Store.
type Members struct{ r *Repo }

func open(m models.GroupMember) bool { return !m.Status.Terminal() }

func (s *Members) Insert(_ context.Context, m models.GroupMember) (models.GroupMember, error) {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	if err := s.r.fail("members.Insert"); err != nil {
		return models.GroupMember{}, err
	}
	if open(m) {
		for _, existing := range s.r.members {
			if existing.GroupID == m.GroupID && existing.UserID == m.UserID && open(existing) {
				return models.GroupMember{}, membershipstore.ErrDuplicateMembership
			}
		}
	}
	now := s.r.now()
	m.ID = primitive.NewObjectID()
	m.CreatedAt = now
	m.UpdatedAt = now
	if m.Status == models.StatusActive && m.JoinedAt.IsZero() {
		m.JoinedAt = now
	}
	s.r.members[m.ID] = m
	return m, nil
}

func (s *Members) GetOpen(_ context.Context, groupID, userID primitive.ObjectID) (models.GroupMember, error) {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	if err := s.r.fail("members.GetOpen"); err != nil {
		return models.GroupMember{}, err
	}
	for _, m := range s.r.members {
		if m.GroupID == groupID && m.UserID == userID && open(m) {
			return m, nil
		}
	}
	return models.GroupMember{}, membershipstore.ErrNotFound
}

func (s *Members) ExistsWithStatus(_ context.Context, userID, groupID primitive.ObjectID, status models.MemberStatus) (bool, error) {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	for _, m := range s.r.members {
		if m.GroupID == groupID && m.UserID == userID && m.Status == status {
			return true, nil
		}
	}
	return false, nil
}

func (s *Members) CountByUserAndStatus(_ context.Context, userID primitive.ObjectID, status models.MemberStatus) (int64, error) {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	return int64(len(s.r.filter(func(m models.GroupMember) bool {
		return m.UserID == userID && m.Status == status
	}))), nil
}

func (s *Members) CountByGroupAndStatus(_ context.Context, groupID primitive.ObjectID, status models.MemberStatus) (int64, error) {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	return int64(len(s.r.filter(func(m models.GroupMember) bool {
		return m.GroupID == groupID && m.Status == status
	}))), nil
}

func (s *Members) CountActiveByGroupAndRole(_ context.Context, groupID primitive.ObjectID, role models.Role) (int64, error) {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	return int64(len(s.r.filter(func(m models.GroupMember) bool {
		return m.GroupID == groupID && m.Status == models.StatusActive && m.Role == role
	}))), nil
}

func (s *Members) ListByGroupAndStatus(_ context.Context, groupID primitive.ObjectID, status models.MemberStatus) ([]models.GroupMember, error) {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	if err := s.r.fail("members.ListByGroupAndStatus"); err != nil {
		return nil, err
	}
	return s.r.filter(func(m models.GroupMember) bool {
		return m.GroupID == groupID && m.Status == status
	}), nil
}

func (s *Members) ListByUserAndStatus(_ context.Context, userID primitive.ObjectID, status models.MemberStatus) ([]models.GroupMember, error) {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	return s.r.filter(func(m models.GroupMember) bool {
		return m.UserID == userID && m.Status == status
	}), nil
}

func (s *Members) UpdateStatus(_ context.Context, id primitive.ObjectID, from, to models.MemberStatus) error {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	if err := s.r.fail("members.UpdateStatus"); err != nil {
		return err
	}
	m, ok := s.r.members[id]
	if !ok || m.Status != from {
		return membershipstore.ErrNotFound
	}
	m.Status = to
	m.UpdatedAt = s.r.now()
	s.r.members[id] = m
	return nil
}

func (s *Members) Activate(_ context.Context, id primitive.ObjectID, from models.MemberStatus, role models.Role, joinedAt time.Time) error {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	if err := s.r.fail("members.Activate"); err != nil {
		return err
	}
	m, ok := s.r.members[id]
	if !ok || m.Status != from {
		return membershipstore.ErrNotFound
	}
	m.Status = models.StatusActive
	m.Role = role
	m.JoinedAt = joinedAt.UTC()
	m.UpdatedAt = s.r.now()
	s.r.members[id] = m
	return nil
}

func (s *Members) UpdateRole(_ context.Context, id primitive.ObjectID, from, to models.Role) error {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	if err := s.r.fail("members.UpdateRole"); err != nil {
		return err
	}
	return s.updateRoleLocked(id, from, to)
}

func (s *Members) updateRoleLocked(id primitive.ObjectID, from, to models.Role) error {
	m, ok := s.r.members[id]
	if !ok || m.Status != models.StatusActive || m.Role != from {
		return membershipstore.ErrNotFound
	}
	m.Role = to
	m.UpdatedAt = s.r.now()
	s.r.members[id] = m
	return nil
}

// SwapRoles applies both role changes or neither.
func (s *Members) SwapRoles(_ context.Context, ownerID, targetID primitive.ObjectID, targetRole models.Role) error {
	s.r.mu.Lock()
	defer s.r.mu.Unlock()
	if err := s.r.fail("members.SwapRoles"); err != nil {
		return err
	}
	owner, ok := s.r.members[ownerID]
	if !ok || owner.Status != models.StatusActive || owner.Role != models.RoleOwner {
		return membershipstore.ErrNotFound
	}
	target, ok := s.r.members[targetID]
	if !ok || target.Status != models.StatusActive || target.Role != targetRole {
		return membershipstore.ErrNotFound
	}
	_ = s.updateRoleLocked(ownerID, models.RoleOwner, models.RoleAdmin)
	_ = s.updateRoleLocked(targetID, targetRole, models.RoleOwner)
	return nil
}

// --- users ---

// Users mirrors userstore.Store.
type Users struct{ r *Repo }

func (u *Users) GetByID(_ context.Context, id primitive.ObjectID) (models.User, error) {
	u.r.mu.Lock()
	defer u.r.mu.Unlock()
	usr, ok := u.r.users[id]
	if !ok {
		return models.User{}, userstore.ErrNotFound
	}
	return usr, nil
}

func (u *Users) GetByEmail(_ context.Context, email string) (models.User, error) {
	u.r.mu.Lock()
	defer u.r.mu.Unlock()
	key := text.Fold(normalize.Email(email))
	for _, usr := range u.r.users {
		if usr.EmailCI == key {
			return usr, nil
		}
	}
	return models.User{}, userstore.ErrNotFound
}

func (u *Users) Create(_ context.Context, usr models.User) (models.User, error) {
	u.r.mu.Lock()
	defer u.r.mu.Unlock()
	usr.Email = normalize.Email(usr.Email)
	usr.EmailCI = text.Fold(usr.Email)
	usr.FullName = normalize.Name(usr.FullName)
	for _, existing := range u.r.users {
		if existing.EmailCI == usr.EmailCI {
			return models.User{}, userstore.ErrDuplicateEmail
		}
	}
	now := u.r.now()
	usr.ID = primitive.NewObjectID()
	if usr.Status == "" {
		usr.Status = models.UserStatusActive
	}
	usr.CreatedAt = now
	usr.UpdatedAt = now
	u.r.users[usr.ID] = usr
	return usr, nil
}

func (u *Users) Deactivate(_ context.Context, id primitive.ObjectID) (bool, error) {
	u.r.mu.Lock()
	defer u.r.mu.Unlock()
	usr, ok := u.r.users[id]
	if !ok {
		return false, userstore.ErrNotFound
	}
	if usr.Status == models.UserStatusDisabled {
		return false, nil
	}
	now := u.r.now()
	usr.Status = models.UserStatusDisabled
	usr.DeactivatedAt = &now
	usr.UpdatedAt = now
	u.r.users[id] = usr
	return true, nil
}
