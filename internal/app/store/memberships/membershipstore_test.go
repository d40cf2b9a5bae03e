package membershipstore_test

import (
	"errors"
	"testing"
	"time"

	membershipstore "github.com/dalemusser/spendhub/internal/app/store/memberships"
	"github.com/dalemusser/spendhub/internal/app/system/indexes"
	"github.com/dalemusser/spendhub/internal/domain/models"
	"github.com/dalemusser/spendhub/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

func TestStore_InsertAndGetOpen(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := membershipstore.New(db, zap.NewNop())
	ctx, cancel := testutil.TestContext()
	defer cancel()

	gid, uid := primitive.NewObjectID(), primitive.NewObjectID()
	m, err := store.Insert(ctx, models.GroupMember{GroupID: gid, UserID: uid, Role: models.RoleOwner, Status: models.StatusActive})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if m.ID.IsZero() || m.JoinedAt.IsZero() {
		t.Errorf("expected id and joined_at, got %+v", m)
	}

	got, err := store.GetOpen(ctx, gid, uid)
	if err != nil {
		t.Fatalf("GetOpen failed: %v", err)
	}
	if got.ID != m.ID || got.Role != models.RoleOwner {
		t.Errorf("GetOpen = %+v", got)
	}

	if _, err := store.GetOpen(ctx, gid, primitive.NewObjectID()); !errors.Is(err, membershipstore.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_GetOpen_IgnoresHistory(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := membershipstore.New(db, zap.NewNop())
	fx := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	gid, uid := primitive.NewObjectID(), primitive.NewObjectID()
	fx.CreateMember(ctx, gid, uid, models.RoleMember, models.StatusLeft, time.Now())
	fx.CreateMember(ctx, gid, uid, models.RoleMember, models.StatusRejected, time.Now())

	if _, err := store.GetOpen(ctx, gid, uid); !errors.Is(err, membershipstore.ErrNotFound) {
		t.Errorf("terminal rows must not count as open, got %v", err)
	}
}

func TestStore_Insert_DuplicateOpen(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	if err := indexes.EnsureAll(ctx, db); err != nil {
		t.Fatalf("EnsureAll: %v", err)
	}
	store := membershipstore.New(db, zap.NewNop())

	gid, uid := primitive.NewObjectID(), primitive.NewObjectID()
	if _, err := store.Insert(ctx, models.GroupMember{GroupID: gid, UserID: uid, Role: models.RoleMember, Status: models.StatusInvited}); err != nil {
		t.Fatalf("first Insert: %v", err)
	}
	_, err := store.Insert(ctx, models.GroupMember{GroupID: gid, UserID: uid, Role: models.RoleMember, Status: models.StatusPendingApproval})
	if !errors.Is(err, membershipstore.ErrDuplicateMembership) {
		t.Errorf("expected ErrDuplicateMembership, got %v", err)
	}
}

func TestStore_Counts(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := membershipstore.New(db, zap.NewNop())
	fx := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	gid, uid := primitive.NewObjectID(), primitive.NewObjectID()
	now := time.Now()
	fx.CreateMember(ctx, gid, uid, models.RoleOwner, models.StatusActive, now)
	fx.CreateMember(ctx, gid, primitive.NewObjectID(), models.RoleAdmin, models.StatusActive, now)
	fx.CreateMember(ctx, gid, primitive.NewObjectID(), models.RoleAdmin, models.StatusLeft, now)
	fx.CreateMember(ctx, gid, primitive.NewObjectID(), models.RoleMember, models.StatusInvited, now)
	fx.CreateMember(ctx, primitive.NewObjectID(), uid, models.RoleMember, models.StatusActive, now)

	if n, _ := store.CountByGroupAndStatus(ctx, gid, models.StatusActive); n != 2 {
		t.Errorf("CountByGroupAndStatus(ACTIVE) = %d, want 2", n)
	}
	if n, _ := store.CountByUserAndStatus(ctx, uid, models.StatusActive); n != 2 {
		t.Errorf("CountByUserAndStatus(ACTIVE) = %d, want 2", n)
	}
	if n, _ := store.CountActiveByGroupAndRole(ctx, gid, models.RoleAdmin); n != 1 {
		t.Errorf("CountActiveByGroupAndRole(ADMIN) = %d, want 1", n)
	}
	ok, err := store.ExistsWithStatus(ctx, uid, gid, models.StatusActive)
	if err != nil || !ok {
		t.Errorf("ExistsWithStatus = %v, %v", ok, err)
	}
	ok, _ = store.ExistsWithStatus(ctx, uid, gid, models.StatusInvited)
	if ok {
		t.Error("ExistsWithStatus(INVITED) should be false")
	}
}

func TestStore_ListByGroupAndStatus_OrderedByJoin(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := membershipstore.New(db, zap.NewNop())
	fx := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	gid := primitive.NewObjectID()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := fx.CreateMember(ctx, gid, primitive.NewObjectID(), models.RoleMember, models.StatusActive, base.Add(2*time.Hour))
	a := fx.CreateMember(ctx, gid, primitive.NewObjectID(), models.RoleOwner, models.StatusActive, base)
	b := fx.CreateMember(ctx, gid, primitive.NewObjectID(), models.RoleMember, models.StatusActive, base.Add(time.Hour))
	fx.CreateMember(ctx, gid, primitive.NewObjectID(), models.RoleMember, models.StatusLeft, base.Add(-time.Hour))

	list, err := store.ListByGroupAndStatus(ctx, gid, models.StatusActive)
	if err != nil {
		t.Fatalf("ListByGroupAndStatus: %v", err)
	}
	want := []primitive.ObjectID{a.ID, b.ID, c.ID}
	if len(list) != len(want) {
		t.Fatalf("got %d members, want %d", len(list), len(want))
	}
	for i := range want {
		if list[i].ID != want[i] {
			t.Errorf("position %d: got %s, want %s", i, list[i].ID.Hex(), want[i].Hex())
		}
	}

	byUser, err := store.ListByUserAndStatus(ctx, a.UserID, models.StatusActive)
	if err != nil || len(byUser) != 1 || byUser[0].GroupID != gid {
		t.Errorf("ListByUserAndStatus = %+v, %v", byUser, err)
	}
}

func TestStore_Transitions(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := membershipstore.New(db, zap.NewNop())
	fx := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	gid, uid := primitive.NewObjectID(), primitive.NewObjectID()
	m := fx.CreateMember(ctx, gid, uid, models.RoleMember, models.StatusInvited, time.Time{})

	joined := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	if err := store.Activate(ctx, m.ID, models.StatusInvited, models.RoleMember, joined); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	// The row is no longer INVITED, so a second activation loses.
	if err := store.Activate(ctx, m.ID, models.StatusInvited, models.RoleMember, joined); !errors.Is(err, membershipstore.ErrNotFound) {
		t.Errorf("second Activate = %v, want ErrNotFound", err)
	}

	got, _ := store.GetOpen(ctx, gid, uid)
	if got.Status != models.StatusActive || !got.JoinedAt.Equal(joined) {
		t.Errorf("after Activate: %+v", got)
	}

	if err := store.UpdateRole(ctx, m.ID, models.RoleMember, models.RoleAdmin); err != nil {
		t.Fatalf("UpdateRole: %v", err)
	}
	if err := store.UpdateRole(ctx, m.ID, models.RoleMember, models.RoleAdmin); !errors.Is(err, membershipstore.ErrNotFound) {
		t.Errorf("stale UpdateRole = %v, want ErrNotFound", err)
	}

	if err := store.UpdateStatus(ctx, m.ID, models.StatusActive, models.StatusLeft); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if _, err := store.GetOpen(ctx, gid, uid); !errors.Is(err, membershipstore.ErrNotFound) {
		t.Errorf("LEFT membership should not be open, got %v", err)
	}
}

func TestStore_SwapRoles(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := membershipstore.New(db, zap.NewNop())
	fx := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	gid := primitive.NewObjectID()
	owner := fx.CreateMember(ctx, gid, primitive.NewObjectID(), models.RoleOwner, models.StatusActive, time.Now())
	target := fx.CreateMember(ctx, gid, primitive.NewObjectID(), models.RoleMember, models.StatusActive, time.Now())

	if err := store.SwapRoles(ctx, owner.ID, target.ID, models.RoleMember); err != nil {
		t.Fatalf("SwapRoles: %v", err)
	}

	gotOwner, _ := store.GetOpen(ctx, gid, owner.UserID)
	gotTarget, _ := store.GetOpen(ctx, gid, target.UserID)
	if gotOwner.Role != models.RoleAdmin || gotTarget.Role != models.RoleOwner {
		t.Errorf("roles after swap: old owner %s, target %s", gotOwner.Role, gotTarget.Role)
	}
}

func TestStore_SwapRoles_StaleTargetLeavesOwner(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := membershipstore.New(db, zap.NewNop())
	fx := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	gid := primitive.NewObjectID()
	owner := fx.CreateMember(ctx, gid, primitive.NewObjectID(), models.RoleOwner, models.StatusActive, time.Now())
	target := fx.CreateMember(ctx, gid, primitive.NewObjectID(), models.RoleMember, models.StatusLeft, time.Now())

	if err := store.SwapRoles(ctx, owner.ID, target.ID, models.RoleMember); !errors.Is(err, membershipstore.ErrNotFound) {
		t.Fatalf("SwapRoles = %v, want ErrNotFound", err)
	}
	gotOwner, _ := store.GetOpen(ctx, gid, owner.UserID)
	if gotOwner.Role != models.RoleOwner {
		t.Errorf("owner role = %s, want OWNER", gotOwner.Role)
	}
}
