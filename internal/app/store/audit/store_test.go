package audit_test

import (
	"testing"
	"time"

	"github.com/dalemusser/spendhub/internal/app/store/audit"
	"github.com/dalemusser/spendhub/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestStore_Log(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := audit.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	userID := primitive.NewObjectID()
	groupID := primitive.NewObjectID()
	err := store.Log(ctx, audit.Event{
		Category:  audit.CategoryMembership,
		EventType: audit.EventMemberJoined,
		UserID:    &userID,
		GroupID:   &groupID,
		Success:   true,
		Details:   map[string]string{"role": "MEMBER"},
	})
	if err != nil {
		t.Fatalf("Log failed: %v", err)
	}

	events, err := store.GetByUser(ctx, userID, 10)
	if err != nil {
		t.Fatalf("GetByUser failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	e := events[0]
	if e.ID.IsZero() {
		t.Error("expected ID to be generated")
	}
	if e.Timestamp.IsZero() {
		t.Error("expected Timestamp to be set")
	}
	if e.Details["role"] != "MEMBER" {
		t.Errorf("details role = %q, want MEMBER", e.Details["role"])
	}
}

func TestStore_GetByGroup_NewestFirst(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := audit.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	groupID := primitive.NewObjectID()
	other := primitive.NewObjectID()
	base := time.Now().UTC().Add(-time.Hour).Truncate(time.Millisecond)
	for i, et := range []string{audit.EventGroupCreated, audit.EventInvitationSent, audit.EventMemberLeft} {
		if err := store.Log(ctx, audit.Event{
			Category:  audit.CategoryMembership,
			EventType: et,
			GroupID:   &groupID,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Success:   true,
		}); err != nil {
			t.Fatalf("Log failed: %v", err)
		}
	}
	if err := store.Log(ctx, audit.Event{Category: audit.CategoryMembership, EventType: audit.EventGroupCreated, GroupID: &other}); err != nil {
		t.Fatalf("Log failed: %v", err)
	}

	events, err := store.GetByGroup(ctx, groupID, 10)
	if err != nil {
		t.Fatalf("GetByGroup failed: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	if events[0].EventType != audit.EventMemberLeft || events[2].EventType != audit.EventGroupCreated {
		t.Errorf("unexpected order: %s ... %s", events[0].EventType, events[2].EventType)
	}
}

func TestStore_Query_Filters(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := audit.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	now := time.Now().UTC()
	old := now.Add(-48 * time.Hour)
	for _, e := range []audit.Event{
		{Category: audit.CategoryMembership, EventType: audit.EventRoleChanged, Timestamp: now},
		{Category: audit.CategoryMembership, EventType: audit.EventRoleChanged, Timestamp: old},
		{Category: audit.CategoryAccount, EventType: audit.EventAccountDeactivated, Timestamp: now},
	} {
		if err := store.Log(ctx, e); err != nil {
			t.Fatalf("Log failed: %v", err)
		}
	}

	tests := []struct {
		name   string
		filter audit.QueryFilter
		want   int64
	}{
		{"category", audit.QueryFilter{Category: audit.CategoryAccount}, 1},
		{"event type", audit.QueryFilter{EventType: audit.EventRoleChanged}, 2},
		{"since", audit.QueryFilter{StartTime: timePtr(now.Add(-time.Hour))}, 2},
		{"until", audit.QueryFilter{EndTime: timePtr(now.Add(-time.Hour))}, 1},
		{"all", audit.QueryFilter{}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := store.CountByFilter(ctx, tt.filter)
			if err != nil {
				t.Fatalf("CountByFilter failed: %v", err)
			}
			if n != tt.want {
				t.Errorf("count = %d, want %d", n, tt.want)
			}
			events, err := store.Query(ctx, tt.filter)
			if err != nil {
				t.Fatalf("Query failed: %v", err)
			}
			if int64(len(events)) != tt.want {
				t.Errorf("len = %d, want %d", len(events), tt.want)
			}
		})
	}
}

func TestStore_Query_LimitAndOffset(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := audit.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	for i := 0; i < 5; i++ {
		if err := store.Log(ctx, audit.Event{Category: audit.CategoryMembership, EventType: audit.EventMemberJoined}); err != nil {
			t.Fatalf("Log failed: %v", err)
		}
	}
	page, err := store.Query(ctx, audit.QueryFilter{Limit: 2, Offset: 4})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(page) != 1 {
		t.Errorf("expected 1 event on last page, got %d", len(page))
	}
}

func TestStore_EnsureIndexes(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := audit.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := store.EnsureIndexes(ctx); err != nil {
		t.Fatalf("EnsureIndexes failed: %v", err)
	}
	if err := store.EnsureIndexes(ctx); err != nil {
		t.Fatalf("EnsureIndexes should be idempotent: %v", err)
	}
}

func timePtr(t time.Time) *time.Time { return &t }
