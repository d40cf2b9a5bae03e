// internal/domain/models/user.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User account statuses.
const (
	UserStatusActive   = "active"
	UserStatusDisabled = "disabled"
)

// User is an account that can own, administer or belong to groups.
//
// NOTE:
//   - Group membership is not embedded on User.
//     Use the group_members collection to discover a user's groups.
type User struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	FullName      string             `bson:"full_name" json:"full_name"`
	Email         string             `bson:"email" json:"email"`
	EmailCI       string             `bson:"email_ci" json:"-"` // lowercase, diacritics-stripped
	Status        string             `bson:"status" json:"status"`
	DeactivatedAt *time.Time         `bson:"deactivated_at,omitempty" json:"deactivated_at,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// Actor is the principal performing a lifecycle operation. It is always
// passed explicitly by the caller; a zero ID means nobody is signed in.
type Actor struct {
	ID    primitive.ObjectID
	Name  string
	Email string
}

// Authenticated reports whether the actor identifies a user.
func (a Actor) Authenticated() bool {
	return !a.ID.IsZero()
}
