// internal/domain/models/groupmember.go
package models

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Role is a member's authority inside a group. The zero value is "no role"
// and is never granted anything by the group policy.
type Role string

const (
	RoleOwner  Role = "OWNER"
	RoleAdmin  Role = "ADMIN"
	RoleMember Role = "MEMBER"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleMember:
		return true
	}
	return false
}

// IsLeader reports whether r carries leadership (OWNER or ADMIN).
func (r Role) IsLeader() bool {
	return r == RoleOwner || r == RoleAdmin
}

func (r Role) String() string { return string(r) }

// ParseRole converts user input into a Role. Matching is case-insensitive.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	return r, r.Valid()
}

// MemberStatus is the lifecycle state of a membership record.
type MemberStatus string

const (
	StatusPendingApproval MemberStatus = "PENDING_APPROVAL"
	StatusInvited         MemberStatus = "INVITED"
	StatusActive          MemberStatus = "ACTIVE"
	StatusRejected        MemberStatus = "REJECTED"
	StatusLeft            MemberStatus = "LEFT"
)

// Valid reports whether s is one of the known statuses.
func (s MemberStatus) Valid() bool {
	switch s {
	case StatusPendingApproval, StatusInvited, StatusActive, StatusRejected, StatusLeft:
		return true
	}
	return false
}

// Terminal reports whether s is a final state. Terminal records are kept
// for history and are never transitioned again.
func (s MemberStatus) Terminal() bool {
	return s == StatusRejected || s == StatusLeft
}

func (s MemberStatus) String() string { return string(s) }

// NonTerminalStatuses lists the statuses that occupy the single open slot a
// user may hold in a group.
var NonTerminalStatuses = []MemberStatus{StatusActive, StatusPendingApproval, StatusInvited}

// GroupMember is the authoritative join between users and groups.
// At most one non-terminal document exists per (user_id, group_id).
// Role is only meaningful while Status is ACTIVE; on other statuses it is
// the last known role.
type GroupMember struct {
	ID        primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	GroupID   primitive.ObjectID  `bson:"group_id" json:"group_id"`
	UserID    primitive.ObjectID  `bson:"user_id" json:"user_id"`
	Role      Role                `bson:"role" json:"role"`
	Status    MemberStatus        `bson:"status" json:"status"`
	InvitedBy *primitive.ObjectID `bson:"invited_by,omitempty" json:"invited_by,omitempty"`
	JoinedAt  time.Time           `bson:"joined_at" json:"joined_at"`
	CreatedAt time.Time           `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time           `bson:"updated_at" json:"updated_at"`
}

// IsActive reports whether the membership counts toward capacity and authority.
func (m GroupMember) IsActive() bool {
	return m.Status == StatusActive
}

// JoinedBefore orders memberships by join time, oldest first, breaking ties
// by membership id.
func (m GroupMember) JoinedBefore(o GroupMember) bool {
	if !m.JoinedAt.Equal(o.JoinedAt) {
		return m.JoinedAt.Before(o.JoinedAt)
	}
	return m.ID.Hex() < o.ID.Hex()
}
