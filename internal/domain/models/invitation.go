// internal/domain/models/invitation.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// InvitationStatus is the state of a cache-resident invitation token.
type InvitationStatus string

const (
	InvitationInvited  InvitationStatus = "INVITED"
	InvitationAccepted InvitationStatus = "ACCEPTED"
	InvitationRejected InvitationStatus = "REJECTED"
	InvitationExpired  InvitationStatus = "EXPIRED"
)

// InvitationToken is an email invitation held in the cache, not in Mongo.
// GroupName and InviterName are denormalized so the invitee can be shown
// the invitation without further lookups.
type InvitationToken struct {
	Token            string              `json:"token"`
	GroupID          primitive.ObjectID  `json:"groupId"`
	InviterID        primitive.ObjectID  `json:"inviterId"`
	InvitedUserID    *primitive.ObjectID `json:"invitedUserId,omitempty"`
	InvitedUserEmail string              `json:"invitedUserEmail"`
	Status           InvitationStatus    `json:"status"`
	CreatedAt        time.Time           `json:"createdAt"`
	ExpiresAt        time.Time           `json:"expiresAt"`
	GroupName        string              `json:"groupName"`
	InviterName      string              `json:"inviterName"`
}

// ExpiredAt reports whether the token is past its expiry at the given time.
func (t InvitationToken) ExpiredAt(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
