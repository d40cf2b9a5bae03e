// Package apptest wires the membership service stack over the in-memory
// repository for HTTP handler tests.
package apptest

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	apierrors "github.com/dalemusser/spendhub/internal/app/features/errors"
	"github.com/dalemusser/spendhub/internal/app/policy/capacitypolicy"
	"github.com/dalemusser/spendhub/internal/app/services/continuity"
	"github.com/dalemusser/spendhub/internal/app/services/membership"
	invitationstore "github.com/dalemusser/spendhub/internal/app/store/invitations"
	"github.com/dalemusser/spendhub/internal/app/system/auth"
	"github.com/dalemusser/spendhub/internal/app/system/cache"
	"github.com/dalemusser/spendhub/internal/app/system/mailer"
	"github.com/dalemusser/spendhub/internal/app/system/notify"
	"github.com/dalemusser/spendhub/internal/domain/models"
	"github.com/dalemusser/spendhub/internal/testutil/memrepo"
	"go.uber.org/zap"
)

// Mailer records sent emails.
type Mailer struct {
	Sent []mailer.Email
}

// Send records msg.
func (m *Mailer) Send(_ context.Context, msg mailer.Email) error {
	m.Sent = append(m.Sent, msg)
	return nil
}

// Env is a fully wired service stack.
type Env struct {
	Repo     *memrepo.Repo
	Tokens   *invitationstore.Store
	Events   *notify.Recorder
	Mail     *Mailer
	Resolver *continuity.Resolver
	Svc      *membership.Service
	Resp     *apierrors.Responder
	Sessions *auth.SessionManager

	seq int
}

// New builds an Env with capacity limits of 10 groups per user and 20
// members per group.
func New(t *testing.T) *Env {
	t.Helper()
	logger := zap.NewNop()
	repo := memrepo.New()
	sm, err := auth.NewSessionManager(strings.Repeat("k", 32), "spendhub-test", "", time.Hour, false, logger)
	if err != nil {
		t.Fatalf("NewSessionManager: %v", err)
	}
	e := &Env{
		Repo:     repo,
		Tokens:   invitationstore.New(cache.NewMemory(), logger),
		Events:   &notify.Recorder{},
		Mail:     &Mailer{},
		Resp:     apierrors.NewResponder(logger, nil),
		Sessions: sm,
	}
	e.Resolver = continuity.New(repo.Groups(), repo.Members(), repo.Users(), e.Tokens, nil, nil, logger)
	e.Svc = membership.New(membership.Deps{
		Groups:     repo.Groups(),
		Members:    repo.Members(),
		Users:      repo.Users(),
		Tokens:     e.Tokens,
		Capacity:   capacitypolicy.New(repo.Members(), 10, 20),
		Continuity: e.Resolver,
		Mail:       e.Mail,
		Notify:     e.Events,
		Log:        logger,
		BaseURL:    "https://spendhub.test",
	})
	return e
}

// User registers a user with a unique email.
func (e *Env) User(name string) models.User {
	e.seq++
	return e.Repo.AddUser(name, fmt.Sprintf("%s%d@example.com", strings.ToLower(name), e.seq))
}

// Group creates an active group owned by a new user.
func (e *Env) Group(requiresApproval bool) (models.Group, models.User) {
	owner := e.User("Owner")
	g := e.Repo.AddGroup("Flat", requiresApproval, owner.ID)
	e.Repo.AddMember(g.ID, owner.ID, models.RoleOwner, models.StatusActive, time.Now().Add(-48*time.Hour))
	return g, owner
}

// Join adds a new ACTIVE user with role to g.
func (e *Env) Join(g models.Group, role models.Role) models.User {
	u := e.User("Member")
	e.Repo.AddMember(g.ID, u.ID, role, models.StatusActive, time.Now().Add(-time.Hour))
	return u
}

// Actor converts u to a signed-in actor.
func Actor(u models.User) models.Actor {
	return models.Actor{ID: u.ID, Name: u.FullName, Email: u.Email}
}
