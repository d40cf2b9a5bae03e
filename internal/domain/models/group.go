// internal/domain/models/group.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MaxGroupNameLength is the maximum length of a group name, in runes.
const MaxGroupNameLength = 100

// Group is a shared-finance group that users join through memberships.
//
// NOTE:
//   - Members are not embedded on Group. All membership is stored in the
//     group_members collection.
//   - Groups are soft-deactivated (Active=false) when their last leader
//     leaves with no successor; they are never hard-deleted.
type Group struct {
	ID        primitive.ObjectID `bson:"_id" json:"id"`
	Name      string             `bson:"name" json:"name"`
	NameCI    string             `bson:"name_ci" json:"-"`
	AvatarURL string             `bson:"avatar_url,omitempty" json:"avatar_url,omitempty"`

	Active           bool   `bson:"active" json:"active"`
	RequiresApproval bool   `bson:"requires_approval" json:"requires_approval"`
	InviteCode       string `bson:"invite_code" json:"invite_code,omitempty"`

	CreatedBy     primitive.ObjectID `bson:"created_by" json:"created_by"`
	CreatedAt     time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time          `bson:"updated_at" json:"updated_at"`
	DeactivatedAt *time.Time         `bson:"deactivated_at,omitempty" json:"deactivated_at,omitempty"`
}
