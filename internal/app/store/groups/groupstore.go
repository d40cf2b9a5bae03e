// internal/app/store/groups/groupstore.go
package groupstore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/spendhub/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

type Store struct {
	c *mongo.Collection
}

var (
	// ErrNotFound is returned when no group matches.
	ErrNotFound = errors.New("group not found")
	// ErrDuplicateInviteCode is returned when a generated invite code collides.
	ErrDuplicateInviteCode = errors.New("invite code already in use")
)

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("groups")}
}

// GetByID loads a group. Returns ErrNotFound if it does not exist.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (models.Group, error) {
	var g models.Group
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&g); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Group{}, ErrNotFound
		}
		return models.Group{}, err
	}
	return g, nil
}

// GetByInviteCode loads a group by its normalized invite code.
func (s *Store) GetByInviteCode(ctx context.Context, code string) (models.Group, error) {
	var g models.Group
	if err := s.c.FindOne(ctx, bson.M{"invite_code": code}).Decode(&g); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Group{}, ErrNotFound
		}
		return models.Group{}, err
	}
	return g, nil
}

// Create inserts a new active group. ID and timestamps are assigned here.
func (s *Store) Create(ctx context.Context, g models.Group) (models.Group, error) {
	now := time.Now().UTC()
	g.ID = primitive.NewObjectID()
	g.NameCI = text.Fold(g.Name)
	g.Active = true
	g.CreatedAt = now
	g.UpdatedAt = now
	g.DeactivatedAt = nil
	if _, err := s.c.InsertOne(ctx, g); err != nil {
		if wafflemongo.IsDup(err) {
			return models.Group{}, ErrDuplicateInviteCode
		}
		return models.Group{}, err
	}
	return g, nil
}

// GroupInfo holds the editable group fields. Nil fields are left unchanged.
type GroupInfo struct {
	Name             *string
	AvatarURL        *string
	RequiresApproval *bool
}

// UpdateInfo applies the non-nil fields of info.
func (s *Store) UpdateInfo(ctx context.Context, id primitive.ObjectID, info GroupInfo) error {
	set := bson.M{"updated_at": time.Now().UTC()}
	if info.Name != nil {
		set["name"] = *info.Name
		set["name_ci"] = text.Fold(*info.Name)
	}
	if info.AvatarURL != nil {
		set["avatar_url"] = *info.AvatarURL
	}
	if info.RequiresApproval != nil {
		set["requires_approval"] = *info.RequiresApproval
	}
	res, err := s.c.UpdateByID(ctx, id, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Deactivate soft-deactivates an active group. It reports whether this call
// changed the group; deactivating an inactive group is a no-op.
func (s *Store) Deactivate(ctx context.Context, id primitive.ObjectID) (bool, error) {
	now := time.Now().UTC()
	res, err := s.c.UpdateOne(ctx,
		bson.M{"_id": id, "active": true},
		bson.M{"$set": bson.M{"active": false, "deactivated_at": now, "updated_at": now}},
	)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount > 0, nil
}

// Delete removes a group by ID. It exists only to compensate a group
// creation whose owner membership could not be written.
func (s *Store) Delete(ctx context.Context, id primitive.ObjectID) (int64, error) {
	res, err := s.c.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// ListByIDs returns the groups with the given ids, in no particular order.
func (s *Store) ListByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.Group, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cur, err := s.c.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var groups []models.Group
	if err := cur.All(ctx, &groups); err != nil {
		return nil, err
	}
	return groups, nil
}
