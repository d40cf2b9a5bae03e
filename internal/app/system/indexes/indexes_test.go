package indexes_test

import (
	"context"
	"testing"

	"github.com/dalemusser/spendhub/internal/app/system/indexes"
	"github.com/dalemusser/spendhub/internal/testutil"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

func indexNames(t *testing.T, ctx context.Context, c *mongo.Collection) map[string]bool {
	t.Helper()
	cur, err := c.Indexes().List(ctx)
	if err != nil {
		t.Fatalf("List indexes failed: %v", err)
	}
	defer cur.Close(ctx)

	names := make(map[string]bool)
	for cur.Next(ctx) {
		var idx bson.M
		if err := cur.Decode(&idx); err != nil {
			continue
		}
		if name, ok := idx["name"].(string); ok {
			names[name] = true
		}
	}
	return names
}

func TestEnsureAll_Idempotent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := indexes.EnsureAll(ctx, db); err != nil {
		t.Fatalf("First EnsureAll failed: %v", err)
	}
	if err := indexes.EnsureAll(ctx, db); err != nil {
		t.Fatalf("Second EnsureAll failed: %v", err)
	}
}

func TestEnsureAll_CreatesIndexes(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := indexes.EnsureAll(ctx, db); err != nil {
		t.Fatalf("EnsureAll failed: %v", err)
	}

	expected := map[string][]string{
		"users":         {"uniq_users_emailci"},
		"groups":        {"uniq_groups_invitecode"},
		"group_members": {"uniq_gm_user_group_open", "idx_gm_group_status_joined", "idx_gm_user_status"},
		"notifications": {"idx_notifications_recipient_read_created"},
	}
	for coll, want := range expected {
		names := indexNames(t, ctx, db.Collection(coll))
		for _, name := range want {
			if !names[name] {
				t.Errorf("expected index %q to exist on %s collection", name, coll)
			}
		}
	}
}

func TestEnsureAll_OneOpenMembershipPerUserAndGroup(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := indexes.EnsureAll(ctx, db); err != nil {
		t.Fatalf("EnsureAll failed: %v", err)
	}
	c := db.Collection("group_members")
	uid, gid := primitive.NewObjectID(), primitive.NewObjectID()

	// History rows may repeat.
	for i := 0; i < 2; i++ {
		if _, err := c.InsertOne(ctx, bson.M{"user_id": uid, "group_id": gid, "status": "LEFT"}); err != nil {
			t.Fatalf("insert LEFT row %d: %v", i, err)
		}
	}
	if _, err := c.InsertOne(ctx, bson.M{"user_id": uid, "group_id": gid, "status": "INVITED"}); err != nil {
		t.Fatalf("insert INVITED row: %v", err)
	}
	if _, err := c.InsertOne(ctx, bson.M{"user_id": uid, "group_id": gid, "status": "ACTIVE"}); err == nil {
		t.Error("expected duplicate key error for a second open membership")
	}
}
