// internal/app/store/invitations/invitationstore.go
package invitationstore

// Invitation tokens live only in the cache. Each token is stored under its
// token key and indexed by a reverse key so a pending invitation can be
// found or revoked without knowing the token string. Registered invitees are
// indexed by user id; unregistered ones by their folded email address.

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dalemusser/spendhub/internal/app/system/apperr"
	"github.com/dalemusser/spendhub/internal/app/system/cache"
	"github.com/dalemusser/spendhub/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/text"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// DefaultTTL is how long an invitation stays valid.
const DefaultTTL = 30 * 24 * time.Hour

const keyPrefix = "group_invitation:"

// TokenKey returns the cache key holding the token payload.
func TokenKey(token string) string {
	return keyPrefix + "token:" + token
}

// UserGroupKey returns the reverse-index key for a registered invitee.
func UserGroupKey(userID, groupID primitive.ObjectID) string {
	return keyPrefix + "user:" + userID.Hex() + ":group:" + groupID.Hex()
}

// EmailGroupKey returns the reverse-index key for an invitee identified only
// by email address. The address is case-folded.
func EmailGroupKey(email string, groupID primitive.ObjectID) string {
	return keyPrefix + "email:" + text.Fold(email) + ":group:" + groupID.Hex()
}

// ReverseKey returns the reverse-index key for the invitation.
func ReverseKey(t models.InvitationToken) string {
	if t.InvitedUserID != nil && !t.InvitedUserID.IsZero() {
		return UserGroupKey(*t.InvitedUserID, t.GroupID)
	}
	return EmailGroupKey(t.InvitedUserEmail, t.GroupID)
}

// Store manages invitation tokens in a cache.
type Store struct {
	c   cache.Cache
	log *zap.Logger
	ttl time.Duration
	now func() time.Time
}

// New creates a Store with the default 30 day expiry.
func New(c cache.Cache, logger *zap.Logger) *Store {
	return &Store{c: c, log: logger, ttl: DefaultTTL, now: time.Now}
}

// WithTTL overrides the invitation lifetime. Non-positive values are ignored.
func (s *Store) WithTTL(ttl time.Duration) *Store {
	if ttl > 0 {
		s.ttl = ttl
	}
	return s
}

// WithClock overrides the clock. Intended for tests.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// TTL returns the configured invitation lifetime.
func (s *Store) TTL() time.Duration { return s.ttl }

// Create stores a new invitation and its reverse index. The token, status
// and timestamps on data are assigned here. If either write fails the token
// is not usable and ErrTokenPersistence is returned.
func (s *Store) Create(ctx context.Context, data models.InvitationToken) (models.InvitationToken, error) {
	if data.GroupID.IsZero() {
		return models.InvitationToken{}, fmt.Errorf("%w: group id is required", apperr.ErrInvalidArgument)
	}
	if data.InvitedUserID == nil && data.InvitedUserEmail == "" {
		return models.InvitationToken{}, fmt.Errorf("%w: invitee is required", apperr.ErrInvalidArgument)
	}

	now := s.now().UTC()
	data.Token = uuid.NewString()
	data.Status = models.InvitationInvited
	data.CreatedAt = now
	data.ExpiresAt = now.Add(s.ttl)

	payload, err := json.Marshal(data)
	if err != nil {
		return models.InvitationToken{}, fmt.Errorf("%w: encode: %v", apperr.ErrTokenPersistence, err)
	}

	tokenKey := TokenKey(data.Token)
	if err := s.c.Set(ctx, tokenKey, payload, s.ttl); err != nil {
		return models.InvitationToken{}, fmt.Errorf("%w: write token: %v", apperr.ErrTokenPersistence, err)
	}
	if err := s.c.Set(ctx, ReverseKey(data), []byte(data.Token), s.ttl); err != nil {
		if delErr := s.c.Delete(ctx, tokenKey); delErr != nil {
			s.log.Warn("failed to roll back invitation token",
				zap.String("group_id", data.GroupID.Hex()),
				zap.Error(delErr))
		}
		return models.InvitationToken{}, fmt.Errorf("%w: write index: %v", apperr.ErrTokenPersistence, err)
	}
	return data, nil
}

// Get loads a token. Missing, expired or undecodable tokens are reported as
// not found; err is non-nil only when the cache itself fails.
func (s *Store) Get(ctx context.Context, token string) (models.InvitationToken, bool, error) {
	if token == "" {
		return models.InvitationToken{}, false, nil
	}
	raw, found, err := s.c.Get(ctx, TokenKey(token))
	if err != nil {
		return models.InvitationToken{}, false, err
	}
	if !found {
		return models.InvitationToken{}, false, nil
	}

	var data models.InvitationToken
	if err := json.Unmarshal(raw, &data); err != nil {
		s.log.Warn("discarding undecodable invitation token", zap.Error(err))
		return models.InvitationToken{}, false, nil
	}

	if data.ExpiredAt(s.now()) {
		if err := s.removeKeys(ctx, data); err != nil {
			s.log.Debug("failed to remove expired invitation token", zap.Error(err))
		}
		return models.InvitationToken{}, false, nil
	}
	return data, true, nil
}

// LookupByUserAndGroup returns the live invitation for a registered invitee.
func (s *Store) LookupByUserAndGroup(ctx context.Context, userID, groupID primitive.ObjectID) (models.InvitationToken, bool, error) {
	return s.lookup(ctx, UserGroupKey(userID, groupID))
}

// LookupByEmailAndGroup returns the live invitation for an invitee known by email.
func (s *Store) LookupByEmailAndGroup(ctx context.Context, email string, groupID primitive.ObjectID) (models.InvitationToken, bool, error) {
	return s.lookup(ctx, EmailGroupKey(email, groupID))
}

func (s *Store) lookup(ctx context.Context, reverseKey string) (models.InvitationToken, bool, error) {
	raw, found, err := s.c.Get(ctx, reverseKey)
	if err != nil || !found {
		return models.InvitationToken{}, false, err
	}
	data, ok, err := s.Get(ctx, string(raw))
	if err != nil {
		return models.InvitationToken{}, false, err
	}
	if !ok {
		// Index points at a token that is gone.
		_ = s.c.Delete(ctx, reverseKey)
		return models.InvitationToken{}, false, nil
	}
	return data, true, nil
}

// UpdateStatus rewrites the token with a new status. The remaining lifetime
// is derived from the original expiry and never extended. It reports false
// if the token is missing, expired, or could not be written.
func (s *Store) UpdateStatus(ctx context.Context, token string, status models.InvitationStatus) bool {
	data, ok, err := s.Get(ctx, token)
	if err != nil || !ok {
		return false
	}
	remaining := data.ExpiresAt.Sub(s.now())
	if remaining <= 0 {
		return false
	}
	data.Status = status
	payload, err := json.Marshal(data)
	if err != nil {
		return false
	}
	if err := s.c.Set(ctx, TokenKey(token), payload, remaining); err != nil {
		s.log.Warn("failed to update invitation token status",
			zap.String("status", string(status)),
			zap.Error(err))
		return false
	}
	return true
}

// Remove deletes a token and its reverse index. Removing an unknown token is
// not an error.
func (s *Store) Remove(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	raw, found, err := s.c.Get(ctx, TokenKey(token))
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	var data models.InvitationToken
	if err := json.Unmarshal(raw, &data); err != nil {
		return s.c.Delete(ctx, TokenKey(token))
	}
	data.Token = token
	return s.removeKeys(ctx, data)
}

// RemoveByUserAndGroup revokes the pending invitation of a registered invitee.
func (s *Store) RemoveByUserAndGroup(ctx context.Context, userID, groupID primitive.ObjectID) error {
	return s.removeByReverseKey(ctx, UserGroupKey(userID, groupID))
}

// RemoveByEmailAndGroup revokes the pending invitation of an invitee known by email.
func (s *Store) RemoveByEmailAndGroup(ctx context.Context, email string, groupID primitive.ObjectID) error {
	return s.removeByReverseKey(ctx, EmailGroupKey(email, groupID))
}

func (s *Store) removeByReverseKey(ctx context.Context, reverseKey string) error {
	raw, found, err := s.c.Get(ctx, reverseKey)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	if err := s.Remove(ctx, string(raw)); err != nil {
		return err
	}
	// The token may already have expired; make sure the index goes too.
	if err := s.c.Delete(ctx, reverseKey); err != nil {
		s.log.Debug("failed to delete invitation index", zap.Error(err))
	}
	return nil
}

// removeKeys deletes the reverse index (best effort) and then the token key.
func (s *Store) removeKeys(ctx context.Context, data models.InvitationToken) error {
	if err := s.c.Delete(ctx, ReverseKey(data)); err != nil {
		s.log.Warn("failed to delete invitation index",
			zap.String("group_id", data.GroupID.Hex()),
			zap.Error(err))
	}
	if err := s.c.Delete(ctx, TokenKey(data.Token)); err != nil {
		return fmt.Errorf("delete invitation token: %w", err)
	}
	return nil
}
