// internal/app/store/memberships/membershipstore.go
package membershipstore

// Every write that moves a membership between states is conditional on the
// state the caller read, so two concurrent requests cannot both apply a
// transition. A lost race surfaces as ErrNotFound.

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/spendhub/internal/app/system/txn"
	"github.com/dalemusser/spendhub/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

type Store struct {
	db  *mongo.Database
	c   *mongo.Collection
	log *zap.Logger
}

func New(db *mongo.Database, logger *zap.Logger) *Store {
	return &Store{db: db, c: db.Collection("group_members"), log: logger}
}

var (
	// ErrDuplicateMembership is returned when the user already holds an open
	// membership (ACTIVE, PENDING_APPROVAL or INVITED) in the group.
	ErrDuplicateMembership = errors.New("user already has an open membership in this group")
	// ErrNotFound is returned when no membership matches, including when a
	// conditional transition finds the row in a different state.
	ErrNotFound = errors.New("membership not found")
)

func openStatuses() bson.A {
	a := make(bson.A, 0, len(models.NonTerminalStatuses))
	for _, s := range models.NonTerminalStatuses {
		a = append(a, s)
	}
	return a
}

// Insert creates a membership. ID and timestamps are assigned here;
// JoinedAt defaults to now for ACTIVE rows.
func (s *Store) Insert(ctx context.Context, m models.GroupMember) (models.GroupMember, error) {
	now := time.Now().UTC()
	m.ID = primitive.NewObjectID()
	m.CreatedAt = now
	m.UpdatedAt = now
	if m.Status == models.StatusActive && m.JoinedAt.IsZero() {
		m.JoinedAt = now
	}
	if _, err := s.c.InsertOne(ctx, m); err != nil {
		if wafflemongo.IsDup(err) {
			return models.GroupMember{}, ErrDuplicateMembership
		}
		return models.GroupMember{}, err
	}
	return m, nil
}

// GetOpen returns the user's non-terminal membership in the group.
func (s *Store) GetOpen(ctx context.Context, groupID, userID primitive.ObjectID) (models.GroupMember, error) {
	var m models.GroupMember
	err := s.c.FindOne(ctx, bson.M{
		"group_id": groupID,
		"user_id":  userID,
		"status":   bson.M{"$in": openStatuses()},
	}).Decode(&m)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.GroupMember{}, ErrNotFound
		}
		return models.GroupMember{}, err
	}
	return m, nil
}

// ExistsWithStatus reports whether the user has a membership in the group
// with the given status.
func (s *Store) ExistsWithStatus(ctx context.Context, userID, groupID primitive.ObjectID, status models.MemberStatus) (bool, error) {
	err := s.c.FindOne(ctx, bson.M{
		"group_id": groupID,
		"user_id":  userID,
		"status":   status,
	}, options.FindOne().SetProjection(bson.M{"_id": 1})).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CountByUserAndStatus counts the user's memberships in a status.
func (s *Store) CountByUserAndStatus(ctx context.Context, userID primitive.ObjectID, status models.MemberStatus) (int64, error) {
	return s.c.CountDocuments(ctx, bson.M{"user_id": userID, "status": status})
}

// CountByGroupAndStatus counts the group's memberships in a status.
func (s *Store) CountByGroupAndStatus(ctx context.Context, groupID primitive.ObjectID, status models.MemberStatus) (int64, error) {
	return s.c.CountDocuments(ctx, bson.M{"group_id": groupID, "status": status})
}

// CountActiveByGroupAndRole counts ACTIVE members holding role.
func (s *Store) CountActiveByGroupAndRole(ctx context.Context, groupID primitive.ObjectID, role models.Role) (int64, error) {
	return s.c.CountDocuments(ctx, bson.M{"group_id": groupID, "status": models.StatusActive, "role": role})
}

// ListByGroupAndStatus returns the group's memberships in a status, oldest
// join first with ties broken by id.
func (s *Store) ListByGroupAndStatus(ctx context.Context, groupID primitive.ObjectID, status models.MemberStatus) ([]models.GroupMember, error) {
	opts := options.Find().SetSort(bson.D{{Key: "joined_at", Value: 1}, {Key: "_id", Value: 1}})
	return s.find(ctx, bson.M{"group_id": groupID, "status": status}, opts)
}

// ListByUserAndStatus returns the user's memberships in a status.
func (s *Store) ListByUserAndStatus(ctx context.Context, userID primitive.ObjectID, status models.MemberStatus) ([]models.GroupMember, error) {
	opts := options.Find().SetSort(bson.D{{Key: "joined_at", Value: 1}, {Key: "_id", Value: 1}})
	return s.find(ctx, bson.M{"user_id": userID, "status": status}, opts)
}

func (s *Store) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]models.GroupMember, error) {
	cur, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.GroupMember
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateStatus moves a membership from one status to another. Moving to
// ACTIVE should use Activate instead so JoinedAt and Role are set.
func (s *Store) UpdateStatus(ctx context.Context, id primitive.ObjectID, from, to models.MemberStatus) error {
	return s.updateOne(ctx,
		bson.M{"_id": id, "status": from},
		bson.M{"$set": bson.M{"status": to, "updated_at": time.Now().UTC()}},
	)
}

// Activate moves an INVITED or PENDING_APPROVAL membership to ACTIVE with
// the given role, stamping JoinedAt.
func (s *Store) Activate(ctx context.Context, id primitive.ObjectID, from models.MemberStatus, role models.Role, joinedAt time.Time) error {
	return s.updateOne(ctx,
		bson.M{"_id": id, "status": from},
		bson.M{"$set": bson.M{
			"status":     models.StatusActive,
			"role":       role,
			"joined_at":  joinedAt.UTC(),
			"updated_at": time.Now().UTC(),
		}},
	)
}

// UpdateRole changes the role of an ACTIVE membership currently holding from.
func (s *Store) UpdateRole(ctx context.Context, id primitive.ObjectID, from, to models.Role) error {
	return s.updateOne(ctx,
		bson.M{"_id": id, "status": models.StatusActive, "role": from},
		bson.M{"$set": bson.M{"role": to, "updated_at": time.Now().UTC()}},
	)
}

// SwapRoles makes target the OWNER and demotes the current owner to ADMIN.
// Both writes run in one transaction where the deployment supports it;
// otherwise the owner is demoted first and restored if promoting the target
// fails, so the group never ends up with two owners.
func (s *Store) SwapRoles(ctx context.Context, ownerID, targetID primitive.ObjectID, targetRole models.Role) error {
	return txn.Run(ctx, s.db, s.log, func(ctx context.Context) error {
		inTxn := mongo.SessionFromContext(ctx) != nil
		if err := s.UpdateRole(ctx, ownerID, models.RoleOwner, models.RoleAdmin); err != nil {
			return err
		}
		if err := s.UpdateRole(ctx, targetID, targetRole, models.RoleOwner); err != nil {
			if !inTxn {
				if rbErr := s.UpdateRole(ctx, ownerID, models.RoleAdmin, models.RoleOwner); rbErr != nil {
					s.log.Error("failed to restore owner after aborted transfer",
						zap.String("membership_id", ownerID.Hex()),
						zap.Error(rbErr))
				}
			}
			return err
		}
		return nil
	})
}

func (s *Store) updateOne(ctx context.Context, filter, update bson.M) error {
	res, err := s.c.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
