package auditlog_test

import (
	"testing"

	"github.com/dalemusser/spendhub/internal/app/store/audit"
	"github.com/dalemusser/spendhub/internal/app/system/auditlog"
	"github.com/dalemusser/spendhub/internal/domain/models"
	"github.com/dalemusser/spendhub/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogger_NilLogger(t *testing.T) {
	var logger *auditlog.Logger
	ctx, cancel := testutil.TestContext()
	defer cancel()

	logger.Log(ctx, audit.Event{EventType: "test"})
	logger.GroupCreated(ctx, primitive.NewObjectID(), primitive.NewObjectID(), "Trip")
	logger.AccountDeactivated(ctx, primitive.NewObjectID(), 2)
}

func TestLogger_LogOnly(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := auditlog.New(nil, zap.New(core), auditlog.Config{Membership: "log", Account: "off"})
	ctx, cancel := testutil.TestContext()
	defer cancel()

	actor := primitive.NewObjectID()
	target := primitive.NewObjectID()
	group := primitive.NewObjectID()
	logger.RoleChanged(ctx, actor, target, group, models.RoleMember, models.RoleAdmin)
	logger.AccountDeactivated(ctx, target, 1)

	entries := logs.FilterMessage("audit event").All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 audit entry (account off), got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["event_type"] != audit.EventRoleChanged {
		t.Errorf("event_type = %v", fields["event_type"])
	}
	if fields["group_id"] != group.Hex() || fields["actor_id"] != actor.Hex() || fields["user_id"] != target.Hex() {
		t.Errorf("unexpected ids in %v", fields)
	}
	if fields["detail_from_role"] != "MEMBER" || fields["detail_to_role"] != "ADMIN" {
		t.Errorf("unexpected role details in %v", fields)
	}
}

func TestLogger_ZeroIDsOmitted(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := auditlog.New(nil, zap.New(core), auditlog.Config{Membership: "log"})
	ctx, cancel := testutil.TestContext()
	defer cancel()

	logger.InvitationSent(ctx, primitive.NewObjectID(), primitive.NilObjectID, primitive.NewObjectID(), "new@example.com", false)

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if _, ok := fields["user_id"]; ok {
		t.Error("user_id should be omitted for an unregistered invitee")
	}
	if fields["detail_email_sent"] != "false" {
		t.Errorf("detail_email_sent = %v", fields["detail_email_sent"])
	}
}

func TestLogger_ConfigDB(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := audit.New(db)
	core, logs := observer.New(zapcore.InfoLevel)
	logger := auditlog.New(store, zap.New(core), auditlog.Config{Membership: "db", Account: "db"})
	ctx, cancel := testutil.TestContext()
	defer cancel()

	userID := primitive.NewObjectID()
	groupID := primitive.NewObjectID()
	logger.MemberLeft(ctx, userID, groupID, models.RoleAdmin)

	events, err := store.GetByGroup(ctx, groupID, 10)
	if err != nil {
		t.Fatalf("GetByGroup failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].EventType != audit.EventMemberLeft {
		t.Errorf("EventType = %q", events[0].EventType)
	}
	if logs.Len() != 0 {
		t.Errorf("db-only config should not write zap entries, got %d", logs.Len())
	}
}

func TestLogger_ConfigAll_DefaultsWhenEmpty(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := audit.New(db)
	core, logs := observer.New(zapcore.InfoLevel)
	logger := auditlog.New(store, zap.New(core), auditlog.Config{})
	ctx, cancel := testutil.TestContext()
	defer cancel()

	userID := primitive.NewObjectID()
	logger.AccountDeactivated(ctx, userID, 3)

	events, err := store.GetByUser(ctx, userID, 10)
	if err != nil {
		t.Fatalf("GetByUser failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 stored event, got %d", len(events))
	}
	if events[0].Details["groups_left"] != "3" {
		t.Errorf("groups_left = %q", events[0].Details["groups_left"])
	}
	if logs.Len() != 1 {
		t.Errorf("expected 1 zap entry, got %d", logs.Len())
	}
}
