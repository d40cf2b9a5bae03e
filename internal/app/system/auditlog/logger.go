// internal/app/system/auditlog/logger.go
package auditlog

import (
	"context"
	"strconv"

	"github.com/dalemusser/spendhub/internal/app/store/audit"
	"github.com/dalemusser/spendhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Config holds audit logging configuration.
type Config struct {
	// Membership controls logging for group and membership lifecycle events.
	// Values: "all" (MongoDB + zap), "db" (MongoDB only), "log" (zap only), "off" (disabled)
	Membership string
	// Account controls logging for account deactivation events.
	// Values: "all", "db", "log", "off"
	Account string
}

// Logger provides convenience methods for logging audit events.
// It logs to both MongoDB (via audit.Store) and structured logs (via zap).
type Logger struct {
	store  *audit.Store
	zapLog *zap.Logger
	config Config
}

// New creates a new audit Logger. store may be nil, in which case "db"
// destinations are skipped.
func New(store *audit.Store, zapLog *zap.Logger, config Config) *Logger {
	return &Logger{
		store:  store,
		zapLog: zapLog,
		config: config,
	}
}

// logToZap logs the event to zap with consistent structure.
func (l *Logger) logToZap(event audit.Event) {
	fields := []zap.Field{
		zap.Bool("audit", true),
		zap.String("category", event.Category),
		zap.String("event_type", event.EventType),
		zap.Bool("success", event.Success),
	}

	if event.GroupID != nil {
		fields = append(fields, zap.String("group_id", event.GroupID.Hex()))
	}
	if event.UserID != nil {
		fields = append(fields, zap.String("user_id", event.UserID.Hex()))
	}
	if event.ActorID != nil {
		fields = append(fields, zap.String("actor_id", event.ActorID.Hex()))
	}
	if event.FailureReason != "" {
		fields = append(fields, zap.String("failure_reason", event.FailureReason))
	}
	for k, v := range event.Details {
		fields = append(fields, zap.String("detail_"+k, v))
	}

	if event.Success {
		l.zapLog.Info("audit event", fields...)
	} else {
		l.zapLog.Warn("audit event", fields...)
	}
}

// Log records an audit event based on configuration.
// If the logger is nil, this is a no-op (allows tests to use nil audit logger).
func (l *Logger) Log(ctx context.Context, event audit.Event) {
	if l == nil {
		return
	}

	var setting string
	switch event.Category {
	case audit.CategoryMembership:
		setting = l.config.Membership
	case audit.CategoryAccount:
		setting = l.config.Account
	default:
		setting = "all"
	}
	if setting == "" {
		setting = "all"
	}

	if setting == "off" {
		return
	}

	if setting == "all" || setting == "log" {
		l.logToZap(event)
	}

	if (setting == "all" || setting == "db") && l.store != nil {
		if err := l.store.Log(ctx, event); err != nil {
			l.zapLog.Error("failed to store audit event",
				zap.Error(err),
				zap.String("event_type", event.EventType),
			)
		}
	}
}

func (l *Logger) membership(ctx context.Context, eventType string, actorID, userID, groupID primitive.ObjectID, details map[string]string) {
	e := audit.Event{
		Category:  audit.CategoryMembership,
		EventType: eventType,
		GroupID:   oidPtr(groupID),
		UserID:    oidPtr(userID),
		ActorID:   oidPtr(actorID),
		Success:   true,
		Details:   details,
	}
	l.Log(ctx, e)
}

// --- Group Events ---

// GroupCreated logs creation of a group by its owner.
func (l *Logger) GroupCreated(ctx context.Context, actorID, groupID primitive.ObjectID, groupName string) {
	l.membership(ctx, audit.EventGroupCreated, actorID, actorID, groupID, map[string]string{
		"group_name": groupName,
	})
}

// GroupUpdated logs a change to a group's name, avatar or settings.
func (l *Logger) GroupUpdated(ctx context.Context, actorID, groupID primitive.ObjectID, fieldsChanged string) {
	l.membership(ctx, audit.EventGroupUpdated, actorID, primitive.NilObjectID, groupID, map[string]string{
		"fields_changed": fieldsChanged,
	})
}

// GroupDeactivated logs a soft deactivation of a group with no remaining members.
func (l *Logger) GroupDeactivated(ctx context.Context, departingUserID, groupID primitive.ObjectID) {
	l.membership(ctx, audit.EventGroupDeactivated, primitive.NilObjectID, departingUserID, groupID, nil)
}

// --- Membership Events ---

// MemberJoined logs a direct join (no approval required) or an accepted invitation.
func (l *Logger) MemberJoined(ctx context.Context, userID, groupID primitive.ObjectID, via string) {
	l.membership(ctx, audit.EventMemberJoined, userID, userID, groupID, map[string]string{
		"via": via,
	})
}

// JoinRequested logs a self-service join request awaiting approval.
func (l *Logger) JoinRequested(ctx context.Context, userID, groupID primitive.ObjectID) {
	l.membership(ctx, audit.EventJoinRequested, userID, userID, groupID, nil)
}

// RequestDecided logs an approval or rejection of a pending join request.
func (l *Logger) RequestDecided(ctx context.Context, actorID, userID, groupID primitive.ObjectID, approved bool) {
	et := audit.EventRequestRejected
	if approved {
		et = audit.EventRequestApproved
	}
	l.membership(ctx, et, actorID, userID, groupID, nil)
}

// InvitationSent logs an email invitation. userID is zero for unregistered invitees.
func (l *Logger) InvitationSent(ctx context.Context, actorID, userID, groupID primitive.ObjectID, email string, emailSent bool) {
	l.membership(ctx, audit.EventInvitationSent, actorID, userID, groupID, map[string]string{
		"email":      email,
		"email_sent": boolToString(emailSent),
	})
}

// InvitationAnswered logs the invitee accepting or rejecting an invitation.
func (l *Logger) InvitationAnswered(ctx context.Context, userID, groupID primitive.ObjectID, accepted bool) {
	et := audit.EventInvitationRejected
	if accepted {
		et = audit.EventInvitationAccepted
	}
	l.membership(ctx, et, userID, userID, groupID, nil)
}

// InvitationCancelled logs an inviter withdrawing an invitation.
func (l *Logger) InvitationCancelled(ctx context.Context, actorID, groupID primitive.ObjectID, email string) {
	l.membership(ctx, audit.EventInvitationCancelled, actorID, primitive.NilObjectID, groupID, map[string]string{
		"email": email,
	})
}

// MemberRemoved logs a leader removing a member.
func (l *Logger) MemberRemoved(ctx context.Context, actorID, userID, groupID primitive.ObjectID, role models.Role) {
	l.membership(ctx, audit.EventMemberRemoved, actorID, userID, groupID, map[string]string{
		"member_role": role.String(),
	})
}

// MemberLeft logs a voluntary departure.
func (l *Logger) MemberLeft(ctx context.Context, userID, groupID primitive.ObjectID, role models.Role) {
	l.membership(ctx, audit.EventMemberLeft, userID, userID, groupID, map[string]string{
		"member_role": role.String(),
	})
}

// RoleChanged logs a promotion or demotion.
func (l *Logger) RoleChanged(ctx context.Context, actorID, userID, groupID primitive.ObjectID, from, to models.Role) {
	l.membership(ctx, audit.EventRoleChanged, actorID, userID, groupID, map[string]string{
		"from_role": from.String(),
		"to_role":   to.String(),
	})
}

// OwnershipTransferred logs an owner handing the group to another member.
func (l *Logger) OwnershipTransferred(ctx context.Context, actorID, newOwnerID, groupID primitive.ObjectID) {
	l.membership(ctx, audit.EventOwnershipTransferred, actorID, newOwnerID, groupID, nil)
}

// SuccessorPromoted logs the continuity resolver promoting a member after a
// leader departed.
func (l *Logger) SuccessorPromoted(ctx context.Context, departingUserID, successorID, groupID primitive.ObjectID, role models.Role) {
	l.membership(ctx, audit.EventSuccessorPromoted, departingUserID, successorID, groupID, map[string]string{
		"to_role": role.String(),
	})
}

// --- Account Events ---

// AccountDeactivated logs an account deactivation and how many groups it touched.
func (l *Logger) AccountDeactivated(ctx context.Context, userID primitive.ObjectID, groupsLeft int) {
	l.Log(ctx, audit.Event{
		Category:  audit.CategoryAccount,
		EventType: audit.EventAccountDeactivated,
		UserID:    &userID,
		ActorID:   &userID,
		Success:   true,
		Details: map[string]string{
			"groups_left": intToString(groupsLeft),
		},
	})
}

// --- Helper functions ---

func oidPtr(id primitive.ObjectID) *primitive.ObjectID {
	if id.IsZero() {
		return nil
	}
	return &id
}

func boolToString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func intToString(i int) string {
	return strconv.Itoa(i)
}
