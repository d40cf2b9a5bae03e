package userstore_test

import (
	"errors"
	"testing"

	userstore "github.com/dalemusser/spendhub/internal/app/store/users"
	"github.com/dalemusser/spendhub/internal/app/system/indexes"
	"github.com/dalemusser/spendhub/internal/domain/models"
	"github.com/dalemusser/spendhub/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestStore_CreateAndGet(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := userstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	created, err := store.Create(ctx, models.User{FullName: "  Alice   Smith ", Email: " Alice@Example.COM "})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if created.FullName != "Alice Smith" {
		t.Errorf("FullName = %q", created.FullName)
	}
	if created.Email != "alice@example.com" {
		t.Errorf("Email = %q", created.Email)
	}
	if created.Status != models.UserStatusActive {
		t.Errorf("Status = %q", created.Status)
	}

	byID, err := store.GetByID(ctx, created.ID)
	if err != nil || byID.Email != created.Email {
		t.Errorf("GetByID = %+v, %v", byID, err)
	}
	byEmail, err := store.GetByEmail(ctx, "ALICE@example.com")
	if err != nil || byEmail.ID != created.ID {
		t.Errorf("GetByEmail = %+v, %v", byEmail, err)
	}
	if _, err := store.GetByEmail(ctx, "nobody@example.com"); !errors.Is(err, userstore.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_Create_DuplicateEmail(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	if err := indexes.EnsureAll(ctx, db); err != nil {
		t.Fatalf("EnsureAll: %v", err)
	}
	store := userstore.New(db)

	if _, err := store.Create(ctx, models.User{FullName: "A", Email: "dup@example.com"}); err != nil {
		t.Fatalf("first Create: %v", err)
	}
	if _, err := store.Create(ctx, models.User{FullName: "B", Email: "DUP@example.com"}); !errors.Is(err, userstore.ErrDuplicateEmail) {
		t.Errorf("expected ErrDuplicateEmail, got %v", err)
	}
}

func TestStore_Deactivate(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := userstore.New(db)
	fx := testutil.NewFixtures(t, db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	u := fx.CreateUser(ctx, "Bob", "bob@example.com")

	changed, err := store.Deactivate(ctx, u.ID)
	if err != nil || !changed {
		t.Fatalf("first Deactivate = %v, %v", changed, err)
	}
	changed, err = store.Deactivate(ctx, u.ID)
	if err != nil || changed {
		t.Errorf("second Deactivate = %v, %v; want no change", changed, err)
	}
	got, _ := store.GetByID(ctx, u.ID)
	if got.Status != models.UserStatusDisabled || got.DeactivatedAt == nil {
		t.Errorf("user not disabled: %+v", got)
	}

	if _, err := store.Deactivate(ctx, primitive.NewObjectID()); !errors.Is(err, userstore.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown user, got %v", err)
	}
}
