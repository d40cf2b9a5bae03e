// Package capacitypolicy enforces how many groups a user may belong to and
// how many members a group may hold. Only ACTIVE memberships count.
package capacitypolicy

import (
	"context"
	"fmt"

	"github.com/dalemusser/spendhub/internal/app/system/apperr"
	"github.com/dalemusser/spendhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	// DefaultMaxGroupsPerUser is the default ceiling on a user's ACTIVE memberships.
	DefaultMaxGroupsPerUser = 10
	// DefaultMaxMembersPerGroup is the default ceiling on a group's ACTIVE members.
	DefaultMaxMembersPerGroup = 20
)

// Counter is the slice of the membership store the validator needs.
type Counter interface {
	CountByUserAndStatus(ctx context.Context, userID primitive.ObjectID, status models.MemberStatus) (int64, error)
	CountByGroupAndStatus(ctx context.Context, groupID primitive.ObjectID, status models.MemberStatus) (int64, error)
	ExistsWithStatus(ctx context.Context, userID, groupID primitive.ObjectID, status models.MemberStatus) (bool, error)
}

// Validator checks capacity before a membership becomes ACTIVE.
type Validator struct {
	members            Counter
	maxGroupsPerUser   int64
	maxMembersPerGroup int64
}

// New creates a Validator. Non-positive limits fall back to the defaults.
func New(members Counter, maxGroupsPerUser, maxMembersPerGroup int) *Validator {
	if maxGroupsPerUser <= 0 {
		maxGroupsPerUser = DefaultMaxGroupsPerUser
	}
	if maxMembersPerGroup <= 0 {
		maxMembersPerGroup = DefaultMaxMembersPerGroup
	}
	return &Validator{
		members:            members,
		maxGroupsPerUser:   int64(maxGroupsPerUser),
		maxMembersPerGroup: int64(maxMembersPerGroup),
	}
}

// MaxGroupsPerUser returns the configured per-user ceiling.
func (v *Validator) MaxGroupsPerUser() int64 { return v.maxGroupsPerUser }

// MaxMembersPerGroup returns the configured per-group ceiling.
func (v *Validator) MaxMembersPerGroup() int64 { return v.maxMembersPerGroup }

// UserActiveGroupCount returns how many groups the user is ACTIVE in.
// A zero id yields 0 rather than an error.
func (v *Validator) UserActiveGroupCount(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	if userID.IsZero() {
		return 0, nil
	}
	n, err := v.members.CountByUserAndStatus(ctx, userID, models.StatusActive)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, nil
	}
	return n, nil
}

// GroupActiveMemberCount returns how many ACTIVE members the group has.
// A zero id yields 0 rather than an error.
func (v *Validator) GroupActiveMemberCount(ctx context.Context, groupID primitive.ObjectID) (int64, error) {
	if groupID.IsZero() {
		return 0, nil
	}
	n, err := v.members.CountByGroupAndStatus(ctx, groupID, models.StatusActive)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, nil
	}
	return n, nil
}

// ValidateUserCanJoinMoreGroups fails with ErrCapacityExceeded when the user
// already holds the maximum number of ACTIVE memberships.
func (v *Validator) ValidateUserCanJoinMoreGroups(ctx context.Context, userID primitive.ObjectID) error {
	if userID.IsZero() {
		return fmt.Errorf("%w: user id is required", apperr.ErrInvalidArgument)
	}
	n, err := v.UserActiveGroupCount(ctx, userID)
	if err != nil {
		return err
	}
	if n >= v.maxGroupsPerUser {
		return fmt.Errorf("%w: user already belongs to %d groups (max %d)", apperr.ErrCapacityExceeded, n, v.maxGroupsPerUser)
	}
	return nil
}

// ValidateGroupCanAcceptMoreMembers fails with ErrCapacityExceeded when the
// group is full.
func (v *Validator) ValidateGroupCanAcceptMoreMembers(ctx context.Context, groupID primitive.ObjectID) error {
	if groupID.IsZero() {
		return fmt.Errorf("%w: group id is required", apperr.ErrInvalidArgument)
	}
	n, err := v.GroupActiveMemberCount(ctx, groupID)
	if err != nil {
		return err
	}
	if n >= v.maxMembersPerGroup {
		return fmt.Errorf("%w: group already has %d members (max %d)", apperr.ErrCapacityExceeded, n, v.maxMembersPerGroup)
	}
	return nil
}

// ValidateUserCanJoinGroup checks, in order: the user is not already ACTIVE
// in the group, the user has room for another group, the group has room for
// another member.
func (v *Validator) ValidateUserCanJoinGroup(ctx context.Context, userID, groupID primitive.ObjectID) error {
	if userID.IsZero() || groupID.IsZero() {
		return fmt.Errorf("%w: user id and group id are required", apperr.ErrInvalidArgument)
	}
	active, err := v.members.ExistsWithStatus(ctx, userID, groupID, models.StatusActive)
	if err != nil {
		return err
	}
	if active {
		return apperr.ErrAlreadyMember
	}
	if err := v.ValidateUserCanJoinMoreGroups(ctx, userID); err != nil {
		return err
	}
	return v.ValidateGroupCanAcceptMoreMembers(ctx, groupID)
}
