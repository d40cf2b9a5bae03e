package notify

import (
	"context"

	"github.com/dalemusser/spendhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Notifier delivers one event to one recipient.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, recipientID primitive.ObjectID, e Event) error
}

// NotificationWriter persists in-app notifications.
type NotificationWriter interface {
	Insert(ctx context.Context, n models.Notification) (models.Notification, error)
}

// InApp stores a notification document per recipient.
type InApp struct {
	store NotificationWriter
}

// NewInApp returns a notifier backed by the notifications collection.
func NewInApp(store NotificationWriter) *InApp {
	return &InApp{store: store}
}

func (n *InApp) Name() string { return "in_app" }

func (n *InApp) Notify(ctx context.Context, recipientID primitive.ObjectID, e Event) error {
	_, err := n.store.Insert(ctx, models.Notification{
		RecipientID: recipientID,
		GroupID:     e.GroupID,
		ActorID:     e.ActorID,
		ActorName:   e.ActorName,
		Type:        string(e.Type),
		Title:       e.Title,
		Message:     e.Message,
		Link:        e.Link,
		CreatedAt:   e.OccurredAt,
	})
	return err
}

// Push hands events to the mobile push collaborator. Delivery to devices is
// owned by that service; this side only records the topic message it would
// send.
type Push struct {
	projectID string
	topic     string
	log       *zap.Logger
}

// NewPush returns a push notifier for the given project and topic prefix.
func NewPush(projectID, topic string, logger *zap.Logger) *Push {
	return &Push{projectID: projectID, topic: topic, log: logger}
}

func (n *Push) Name() string { return "push" }

func (n *Push) Notify(_ context.Context, recipientID primitive.ObjectID, e Event) error {
	n.log.Info("push notification queued",
		zap.String("project_id", n.projectID),
		zap.String("topic", n.topic+"-"+recipientID.Hex()),
		zap.String("type", string(e.Type)),
		zap.String("title", e.Title),
	)
	return nil
}

// Log writes each delivery as a debug log line.
type Log struct {
	log *zap.Logger
}

// NewLog returns a notifier that only logs.
func NewLog(logger *zap.Logger) *Log {
	return &Log{log: logger}
}

func (n *Log) Name() string { return "log" }

func (n *Log) Notify(_ context.Context, recipientID primitive.ObjectID, e Event) error {
	n.log.Debug("notification",
		zap.String("recipient_id", recipientID.Hex()),
		zap.String("group_id", e.GroupID.Hex()),
		zap.String("type", string(e.Type)),
		zap.String("message", e.Message),
	)
	return nil
}
