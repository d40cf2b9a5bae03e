package invitations_test

import (
	"net/http"
	"testing"

	"github.com/dalemusser/spendhub/internal/app/features/invitations"
	"github.com/dalemusser/spendhub/internal/app/services/membership"
	"github.com/dalemusser/spendhub/internal/app/system/auth"
	"github.com/dalemusser/spendhub/internal/domain/models"
	"github.com/dalemusser/spendhub/internal/testutil"
	"github.com/dalemusser/spendhub/internal/testutil/apptest"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type fixture struct {
	env     *apptest.Env
	router  chi.Router
	group   models.Group
	invitee models.User
	token   string
}

func setup(t *testing.T) fixture {
	t.Helper()
	env := apptest.New(t)
	g, owner := env.Group(false)
	invitee := env.User("Dana")

	ctx, cancel := testutil.TestContext()
	defer cancel()
	res, err := env.Svc.SendInvitation(ctx, apptest.Actor(owner), g.ID, invitee.Email)
	if err != nil {
		t.Fatalf("SendInvitation failed: %v", err)
	}

	h := invitations.NewHandler(env.Svc, env.Resp, zap.NewNop())
	return fixture{
		env:     env,
		router:  invitations.Routes(h, env.Sessions),
		group:   g,
		invitee: invitee,
		token:   res.Token,
	}
}

func (f fixture) do(req *http.Request, u *models.User) *testutil.ResponseRecorder {
	if u != nil {
		req = auth.WithTestUser(req, apptest.Actor(*u))
	}
	rec := testutil.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestServeInvitation_Public(t *testing.T) {
	f := setup(t)

	rec := f.do(testutil.NewRequest(http.MethodGet, "/"+f.token), nil)
	rec.AssertStatus(t, http.StatusOK)

	var view membership.InvitationView
	rec.DecodeJSON(t, &view)
	if view.GroupID != f.group.ID {
		t.Errorf("group = %s, want %s", view.GroupID.Hex(), f.group.ID.Hex())
	}
	if view.Status != models.InvitationInvited {
		t.Errorf("status = %q, want %q", view.Status, models.InvitationInvited)
	}

	rec = f.do(testutil.NewRequest(http.MethodGet, "/unknown-token"), nil)
	rec.AssertStatus(t, http.StatusNotFound)
}

func TestAccept(t *testing.T) {
	f := setup(t)

	rec := f.do(testutil.NewRequest(http.MethodPost, "/"+f.token+"/accept"), nil)
	rec.AssertStatus(t, http.StatusUnauthorized)

	other := f.env.User("Mallory")
	rec = f.do(testutil.NewRequest(http.MethodPost, "/"+f.token+"/accept"), &other)
	rec.AssertStatus(t, http.StatusForbidden)

	rec = f.do(testutil.NewRequest(http.MethodPost, "/"+f.token+"/accept"), &f.invitee)
	rec.AssertStatus(t, http.StatusOK)
	var res membership.JoinResult
	rec.DecodeJSON(t, &res)
	if res.Membership.Status != models.StatusActive || res.Membership.Role != models.RoleMember {
		t.Errorf("membership = %+v, want ACTIVE MEMBER", res.Membership)
	}

	// The token is consumed.
	rec = f.do(testutil.NewRequest(http.MethodPost, "/"+f.token+"/accept"), &f.invitee)
	rec.AssertStatus(t, http.StatusNotFound)
}

func TestReject(t *testing.T) {
	f := setup(t)

	rec := f.do(testutil.NewRequest(http.MethodPost, "/"+f.token+"/reject"), &f.invitee)
	rec.AssertStatus(t, http.StatusNoContent)

	rows := f.env.Repo.MembershipsOf(f.group.ID, f.invitee.ID)
	if len(rows) != 1 || rows[0].Status != models.StatusRejected {
		t.Fatalf("rows = %+v, want one REJECTED row", rows)
	}

	rec = f.do(testutil.NewRequest(http.MethodGet, "/"+f.token), nil)
	rec.AssertStatus(t, http.StatusNotFound)
}
