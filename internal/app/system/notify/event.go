// Package notify fans membership lifecycle events out to group leaders.
//
// Lifecycle operations call Publish, which never blocks. Delivery runs on a
// fixed pool of workers so a slow notifier cannot hold up the mutation that
// produced the event.
package notify

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// EventType identifies what happened in a group.
type EventType string

const (
	JoinRequestCreated   EventType = "JOIN_REQUEST_CREATED"
	InvitationSent       EventType = "INVITATION_SENT"
	RequestApproved      EventType = "REQUEST_APPROVED"
	RequestRejected      EventType = "REQUEST_REJECTED"
	MemberRemoved        EventType = "MEMBER_REMOVED"
	RoleChanged          EventType = "ROLE_CHANGED"
	MemberJoined         EventType = "MEMBER_JOINED"
	MemberLeft           EventType = "MEMBER_LEFT"
	OwnershipTransferred EventType = "OWNERSHIP_TRANSFERRED"
)

// Event is the payload handed to every notifier.
type Event struct {
	GroupID    primitive.ObjectID
	ActorID    primitive.ObjectID
	ActorName  string
	Type       EventType
	Title      string
	Message    string
	Link       string
	OccurredAt time.Time
}

// Publisher accepts events for asynchronous delivery.
type Publisher interface {
	Publish(e Event)
}

// Discard is a Publisher that drops every event.
type Discard struct{}

func (Discard) Publish(Event) {}

// Recorder is a Publisher that keeps events in memory. Tests use it to
// assert what a lifecycle operation emitted.
type Recorder struct {
	Events []Event
}

func (r *Recorder) Publish(e Event) { r.Events = append(r.Events, e) }

// Types returns the recorded event types in publish order.
func (r *Recorder) Types() []EventType {
	out := make([]EventType, len(r.Events))
	for i, e := range r.Events {
		out[i] = e.Type
	}
	return out
}
