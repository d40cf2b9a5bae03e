// Package auth resolves the signed-in user from a cookie session and hands
// it to handlers as an explicit models.Actor. Issuing the session (login)
// belongs to the identity service that shares the session key; this package
// only reads it, plus SignIn/SignOut for that service and for tests.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dalemusser/spendhub/internal/domain/models"
	"github.com/gorilla/sessions"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const (
	isAuthKey = "is_authenticated"
	userIDKey = "user_id"
	userName  = "user_name"
	userEmail = "user_email"
)

// SessionManager owns the cookie store and the middleware built on it.
type SessionManager struct {
	store *sessions.CookieStore
	name  string
	log   *zap.Logger
}

// NewSessionManager creates a cookie-backed session manager.
//
// In production (secure=true) cookies are Secure + SameSite=None so the
// identity service on a sibling host can share them. In local development
// over http://localhost use secure=false.
func NewSessionManager(sessionKey, name, domain string, maxAge time.Duration, secure bool, logger *zap.Logger) (*SessionManager, error) {
	if sessionKey == "" {
		return nil, errors.New("session key is empty; provide ≥32 random chars")
	}
	if len(sessionKey) < 32 {
		logger.Warn("session key is short; 32+ chars recommended",
			zap.Int("length", len(sessionKey)))
	}
	if name == "" {
		return nil, errors.New("session name is empty")
	}

	store := sessions.NewCookieStore([]byte(sessionKey))
	opts := &sessions.Options{
		Domain:   domain,
		Path:     "/",
		Secure:   secure,
		HttpOnly: true,
	}
	if secure {
		opts.SameSite = http.SameSiteNoneMode
	} else {
		opts.SameSite = http.SameSiteLaxMode
	}
	store.Options = opts
	if maxAge > 0 {
		store.MaxAge(int(maxAge.Seconds()))
	}

	logger.Info("session store initialized",
		zap.String("name", name),
		zap.Bool("secure", secure),
		zap.String("domain", domain))

	return &SessionManager{store: store, name: name, log: logger}, nil
}

type ctxKey string

const currentActorKey ctxKey = "currentActor"

// CurrentActor returns the actor injected by LoadSessionUser.
func CurrentActor(r *http.Request) (models.Actor, bool) {
	a, ok := r.Context().Value(currentActorKey).(models.Actor)
	if !ok || !a.Authenticated() {
		return models.Actor{}, false
	}
	return a, true
}

// ActorOrAnonymous returns the signed-in actor or the zero Actor. Services
// reject the zero Actor as unauthenticated.
func ActorOrAnonymous(r *http.Request) models.Actor {
	a, _ := CurrentActor(r)
	return a
}

// WithTestUser injects an actor directly, bypassing the session.
func WithTestUser(r *http.Request, a models.Actor) *http.Request {
	return withActor(r, a)
}

// LoadSessionUser injects the actor into the request context when the
// session is authenticated. Invalid or missing sessions are ignored.
func (sm *SessionManager) LoadSessionUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := sm.store.Get(r, sm.name)
		if err != nil {
			sm.log.Debug("ignoring unreadable session", zap.Error(err))
			next.ServeHTTP(w, r)
			return
		}
		if isAuth, _ := sess.Values[isAuthKey].(bool); isAuth {
			id, err := primitive.ObjectIDFromHex(getString(sess, userIDKey))
			if err == nil {
				r = withActor(r, models.Actor{
					ID:    id,
					Name:  getString(sess, userName),
					Email: getString(sess, userEmail),
				})
			}
		}
		next.ServeHTTP(w, r)
	})
}

// RequireSignedIn rejects requests without an actor with a JSON 401.
func (sm *SessionManager) RequireSignedIn(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := CurrentActor(r); ok {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error":   "unauthenticated",
			"message": "sign in required",
		})
	})
}

// SignIn writes an authenticated session for the given user.
func (sm *SessionManager) SignIn(w http.ResponseWriter, r *http.Request, u models.User) error {
	sess, _ := sm.store.Get(r, sm.name)
	sess.Values[isAuthKey] = true
	sess.Values[userIDKey] = u.ID.Hex()
	sess.Values[userName] = u.FullName
	sess.Values[userEmail] = u.Email
	if err := sess.Save(r, w); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// SignOut clears the session cookie.
func (sm *SessionManager) SignOut(w http.ResponseWriter, r *http.Request) error {
	sess, _ := sm.store.Get(r, sm.name)
	sess.Values = map[interface{}]interface{}{}
	sess.Options.MaxAge = -1
	return sess.Save(r, w)
}

func withActor(r *http.Request, a models.Actor) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), currentActorKey, a))
}

func getString(s *sessions.Session, key string) string {
	if v, ok := s.Values[key].(string); ok {
		return v
	}
	return ""
}
