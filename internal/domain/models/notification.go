// internal/domain/models/notification.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Notification is an in-app notification delivered to one group leader.
type Notification struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	RecipientID primitive.ObjectID `bson:"recipient_id" json:"recipient_id"`
	GroupID     primitive.ObjectID `bson:"group_id" json:"group_id"`
	ActorID     primitive.ObjectID `bson:"actor_id" json:"actor_id"`
	ActorName   string             `bson:"actor_name" json:"actor_name"`
	Type        string             `bson:"type" json:"type"`
	Title       string             `bson:"title" json:"title"`
	Message     string             `bson:"message" json:"message"`
	Link        string             `bson:"link,omitempty" json:"link,omitempty"`
	Read        bool               `bson:"read" json:"read"`
	CreatedAt   time.Time          `bson:"created_at" json:"created_at"`
}
