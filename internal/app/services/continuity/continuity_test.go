package continuity_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dalemusser/spendhub/internal/app/services/continuity"
	"github.com/dalemusser/spendhub/internal/app/system/apperr"
	"github.com/dalemusser/spendhub/internal/app/system/auditlog"
	"github.com/dalemusser/spendhub/internal/app/system/metrics"
	"github.com/dalemusser/spendhub/internal/domain/models"
	"github.com/dalemusser/spendhub/internal/testutil"
	"github.com/dalemusser/spendhub/internal/testutil/memrepo"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var day1 = time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

func newResolver(repo *memrepo.Repo) *continuity.Resolver {
	return continuity.New(repo.Groups(), repo.Members(), repo.Users(), nil, nil, nil, zap.NewNop())
}

// seedOwnerWithMembers builds G with OWNER=A, MEMBER=B (day 1), MEMBER=C (day 2).
func seedOwnerWithMembers(repo *memrepo.Repo) (g models.Group, a, b, c models.GroupMember) {
	ua := repo.AddUser("Alice", "alice@example.com")
	ub := repo.AddUser("Bob", "bob@example.com")
	uc := repo.AddUser("Carol", "carol@example.com")
	g = repo.AddGroup("Flat", false, ua.ID)
	a = repo.AddMember(g.ID, ua.ID, models.RoleOwner, models.StatusActive, day1.Add(-24*time.Hour))
	b = repo.AddMember(g.ID, ub.ID, models.RoleMember, models.StatusActive, day1)
	c = repo.AddMember(g.ID, uc.ID, models.RoleMember, models.StatusActive, day1.Add(24*time.Hour))
	return g, a, b, c
}

func TestDeactivateAccount_PromotesEarliestMember(t *testing.T) {
	repo := memrepo.New()
	r := newResolver(repo)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	g, a, b, c := seedOwnerWithMembers(repo)

	rep, err := r.DeactivateAccount(ctx, a.UserID)
	if err != nil {
		t.Fatalf("DeactivateAccount failed: %v", err)
	}
	if !rep.UserDeactivated {
		t.Error("expected user to be deactivated")
	}
	if len(rep.Resolutions) != 1 || rep.Resolutions[0].Outcome != continuity.OutcomePromoted {
		t.Fatalf("resolutions = %+v, want one promoted", rep.Resolutions)
	}
	if got := rep.Resolutions[0].SuccessorID; got == nil || *got != b.UserID {
		t.Errorf("successor = %v, want %s", got, b.UserID.Hex())
	}
	if rep.MembershipsLeft != 1 {
		t.Errorf("MembershipsLeft = %d, want 1", rep.MembershipsLeft)
	}

	if got := repo.Membership(b.ID); got.Role != models.RoleOwner || got.Status != models.StatusActive {
		t.Errorf("B = %s/%s, want OWNER/ACTIVE", got.Role, got.Status)
	}
	if got := repo.Membership(c.ID); got.Role != models.RoleMember {
		t.Errorf("C role = %s, want MEMBER", got.Role)
	}
	if got := repo.Membership(a.ID); got.Status != models.StatusLeft {
		t.Errorf("A status = %s, want LEFT", got.Status)
	}
	if !repo.Group(g.ID).Active {
		t.Error("group should remain active")
	}
	if got := repo.User(a.UserID).Status; got != models.UserStatusDisabled {
		t.Errorf("user status = %q, want disabled", got)
	}
}

func TestDeactivateAccount_NoSuccessorDeactivatesGroup(t *testing.T) {
	repo := memrepo.New()
	r := newResolver(repo)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	ua := repo.AddUser("Alice", "alice@example.com")
	g := repo.AddGroup("Solo", false, ua.ID)
	a := repo.AddMember(g.ID, ua.ID, models.RoleOwner, models.StatusActive, day1)

	rep, err := r.DeactivateAccount(ctx, ua.ID)
	if err != nil {
		t.Fatalf("DeactivateAccount failed: %v", err)
	}
	if len(rep.Resolutions) != 1 || rep.Resolutions[0].Outcome != continuity.OutcomeDeactivated {
		t.Fatalf("resolutions = %+v, want one deactivated", rep.Resolutions)
	}
	if rep.Resolutions[0].SuccessorID != nil {
		t.Error("no successor expected")
	}
	grp := repo.Group(g.ID)
	if grp.Active {
		t.Error("group should be inactive")
	}
	if grp.DeactivatedAt == nil {
		t.Error("DeactivatedAt should be set")
	}
	if got := repo.Membership(a.ID).Status; got != models.StatusLeft {
		t.Errorf("A status = %s, want LEFT", got)
	}
}

func TestDeactivateAccount_Idempotent(t *testing.T) {
	repo := memrepo.New()
	r := newResolver(repo)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	g, a, b, c := seedOwnerWithMembers(repo)

	if _, err := r.DeactivateAccount(ctx, a.UserID); err != nil {
		t.Fatalf("first DeactivateAccount failed: %v", err)
	}
	rep, err := r.DeactivateAccount(ctx, a.UserID)
	if err != nil {
		t.Fatalf("second DeactivateAccount failed: %v", err)
	}
	if rep.UserDeactivated {
		t.Error("second run should not report a state change")
	}
	if len(rep.Resolutions) != 0 || rep.MembershipsLeft != 0 {
		t.Errorf("second run did work: %+v", rep)
	}
	if got := repo.Membership(b.ID).Role; got != models.RoleOwner {
		t.Errorf("B role = %s, want OWNER", got)
	}
	if got := repo.Membership(c.ID).Role; got != models.RoleMember {
		t.Errorf("C role = %s, want MEMBER (no double promotion)", got)
	}
	if !repo.Group(g.ID).Active {
		t.Error("group should remain active")
	}
}

func TestResolveGroup_RunTwiceIsNoop(t *testing.T) {
	repo := memrepo.New()
	r := newResolver(repo)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	g, a, _, c := seedOwnerWithMembers(repo)

	first, err := r.ResolveGroup(ctx, g.ID, a.UserID, models.RoleOwner)
	if err != nil {
		t.Fatalf("first ResolveGroup failed: %v", err)
	}
	if first.Outcome != continuity.OutcomePromoted {
		t.Fatalf("first outcome = %s, want promoted", first.Outcome)
	}
	second, err := r.ResolveGroup(ctx, g.ID, a.UserID, models.RoleOwner)
	if err != nil {
		t.Fatalf("second ResolveGroup failed: %v", err)
	}
	if second.Outcome != continuity.OutcomeIntact {
		t.Errorf("second outcome = %s, want intact", second.Outcome)
	}
	if got := repo.Membership(c.ID).Role; got != models.RoleMember {
		t.Errorf("C role = %s, want MEMBER", got)
	}
}

func TestResolveGroup_Outcomes(t *testing.T) {
	tests := []struct {
		name        string
		vacated     models.Role
		others      []models.Role
		want        continuity.Outcome
		wantPromote int // index into others, -1 for none
		wantRole    models.Role
	}{
		{"owner leaves admin remains", models.RoleOwner, []models.Role{models.RoleMember, models.RoleAdmin, models.RoleAdmin}, continuity.OutcomeElevated, 1, models.RoleOwner},
		{"admin leaves owner remains", models.RoleAdmin, []models.Role{models.RoleOwner, models.RoleMember}, continuity.OutcomeIntact, -1, ""},
		{"admin leaves other admin remains", models.RoleAdmin, []models.Role{models.RoleMember, models.RoleAdmin}, continuity.OutcomeIntact, -1, ""},
		{"admin leaves only members", models.RoleAdmin, []models.Role{models.RoleMember, models.RoleMember}, continuity.OutcomePromoted, 0, models.RoleAdmin},
		{"owner leaves only members", models.RoleOwner, []models.Role{models.RoleMember}, continuity.OutcomePromoted, 0, models.RoleOwner},
		{"nobody left", models.RoleOwner, nil, continuity.OutcomeDeactivated, -1, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := memrepo.New()
			r := newResolver(repo)
			ctx, cancel := testutil.TestContext()
			defer cancel()

			departing := repo.AddUser("Dee", "dee@example.com")
			g := repo.AddGroup("G", false, departing.ID)
			repo.AddMember(g.ID, departing.ID, tt.vacated, models.StatusLeft, day1.Add(-time.Hour))

			var rows []models.GroupMember
			for i, role := range tt.others {
				u := repo.AddUser("U", primitive.NewObjectID().Hex()+"@example.com")
				rows = append(rows, repo.AddMember(g.ID, u.ID, role, models.StatusActive, day1.Add(time.Duration(i)*time.Hour)))
			}

			res, err := r.ResolveGroup(ctx, g.ID, departing.ID, tt.vacated)
			if err != nil {
				t.Fatalf("ResolveGroup failed: %v", err)
			}
			if res.Outcome != tt.want {
				t.Fatalf("outcome = %s, want %s", res.Outcome, tt.want)
			}
			for i, row := range rows {
				got := repo.Membership(row.ID).Role
				if i == tt.wantPromote {
					if got != tt.wantRole {
						t.Errorf("successor role = %s, want %s", got, tt.wantRole)
					}
					if res.SuccessorID == nil || *res.SuccessorID != row.UserID {
						t.Errorf("SuccessorID = %v, want %s", res.SuccessorID, row.UserID.Hex())
					}
					continue
				}
				if got != row.Role {
					t.Errorf("row %d role changed from %s to %s", i, row.Role, got)
				}
			}
			if active := repo.Group(g.ID).Active; active != (tt.want != continuity.OutcomeDeactivated) {
				t.Errorf("group active = %v", active)
			}
		})
	}
}

func TestResolveGroup_TieBreakByMembershipID(t *testing.T) {
	repo := memrepo.New()
	r := newResolver(repo)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	owner := repo.AddUser("Owner", "owner@example.com")
	g := repo.AddGroup("G", false, owner.ID)
	u1 := repo.AddUser("One", "one@example.com")
	u2 := repo.AddUser("Two", "two@example.com")
	m1 := repo.AddMember(g.ID, u1.ID, models.RoleMember, models.StatusActive, day1)
	m2 := repo.AddMember(g.ID, u2.ID, models.RoleMember, models.StatusActive, day1)

	first := m1
	if m2.ID.Hex() < m1.ID.Hex() {
		first = m2
	}

	res, err := r.ResolveGroup(ctx, g.ID, owner.ID, models.RoleOwner)
	if err != nil {
		t.Fatalf("ResolveGroup failed: %v", err)
	}
	if res.SuccessorID == nil || *res.SuccessorID != first.UserID {
		t.Errorf("successor = %v, want lower membership id %s", res.SuccessorID, first.UserID.Hex())
	}
}

func TestResolveGroup_SkipsInactiveGroup(t *testing.T) {
	repo := memrepo.New()
	r := newResolver(repo)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	g, a, b, _ := seedOwnerWithMembers(repo)
	if _, err := repo.Groups().Deactivate(ctx, g.ID); err != nil {
		t.Fatalf("Deactivate failed: %v", err)
	}

	res, err := r.ResolveGroup(ctx, g.ID, a.UserID, models.RoleOwner)
	if err != nil {
		t.Fatalf("ResolveGroup failed: %v", err)
	}
	if res.Outcome != continuity.OutcomeSkipped {
		t.Errorf("outcome = %s, want skipped", res.Outcome)
	}
	if got := repo.Membership(b.ID).Role; got != models.RoleMember {
		t.Errorf("B role = %s, want MEMBER", got)
	}
}

func TestResolveGroup_Errors(t *testing.T) {
	repo := memrepo.New()
	r := newResolver(repo)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	_, err := r.ResolveGroup(ctx, primitive.NilObjectID, primitive.NewObjectID(), models.RoleOwner)
	if !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Errorf("zero group id: got %v, want InvalidArgument", err)
	}
	_, err = r.ResolveGroup(ctx, primitive.NewObjectID(), primitive.NewObjectID(), models.RoleOwner)
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing group: got %v, want NotFound", err)
	}

	g, a, _, _ := seedOwnerWithMembers(repo)
	repo.AddMember(g.ID, primitive.NewObjectID(), models.Role("GUEST"), models.StatusActive, day1)
	_, err = r.ResolveGroup(ctx, g.ID, a.UserID, models.RoleOwner)
	if !errors.Is(err, apperr.ErrInconsistentState) {
		t.Errorf("unknown role: got %v, want InconsistentState", err)
	}
}

func TestDeactivateAccount_Errors(t *testing.T) {
	repo := memrepo.New()
	r := newResolver(repo)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if _, err := r.DeactivateAccount(ctx, primitive.NilObjectID); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Errorf("zero id: got %v, want InvalidArgument", err)
	}
	if _, err := r.DeactivateAccount(ctx, primitive.NewObjectID()); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("unknown user: got %v, want NotFound", err)
	}
}

func TestDeactivateAccount_ClosesPendingRows(t *testing.T) {
	repo := memrepo.New()
	r := newResolver(repo)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	owner := repo.AddUser("Owner", "owner@example.com")
	u := repo.AddUser("Pat", "pat@example.com")
	g1 := repo.AddGroup("One", true, owner.ID)
	g2 := repo.AddGroup("Two", false, owner.ID)
	p := repo.AddMember(g1.ID, u.ID, models.RoleMember, models.StatusPendingApproval, day1)
	i := repo.AddMember(g2.ID, u.ID, models.RoleMember, models.StatusInvited, day1)

	rep, err := r.DeactivateAccount(ctx, u.ID)
	if err != nil {
		t.Fatalf("DeactivateAccount failed: %v", err)
	}
	if rep.PendingClosed != 2 {
		t.Errorf("PendingClosed = %d, want 2", rep.PendingClosed)
	}
	for _, m := range []models.GroupMember{p, i} {
		if got := repo.Membership(m.ID).Status; got != models.StatusRejected {
			t.Errorf("membership %s status = %s, want REJECTED", m.ID.Hex(), got)
		}
	}
}

type removedPair struct{ user, group primitive.ObjectID }

type fakeTokens struct {
	removed []removedPair
	err     error
}

func (f *fakeTokens) RemoveByUserAndGroup(_ context.Context, userID, groupID primitive.ObjectID) error {
	f.removed = append(f.removed, removedPair{userID, groupID})
	return f.err
}

func TestDeactivateAccount_DropsInvitationTokens(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"removed", nil},
		{"removal failure is not fatal", errors.New("cache down")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := memrepo.New()
			tokens := &fakeTokens{err: tt.err}
			r := continuity.New(repo.Groups(), repo.Members(), repo.Users(), tokens, nil, nil, nil)
			ctx, cancel := testutil.TestContext()
			defer cancel()

			owner := repo.AddUser("Owner", "owner@example.com")
			u := repo.AddUser("Pat", "pat@example.com")
			g1 := repo.AddGroup("One", true, owner.ID)
			g2 := repo.AddGroup("Two", false, owner.ID)
			repo.AddMember(g1.ID, u.ID, models.RoleMember, models.StatusPendingApproval, day1)
			repo.AddMember(g2.ID, u.ID, models.RoleMember, models.StatusInvited, day1)

			if _, err := r.DeactivateAccount(ctx, u.ID); err != nil {
				t.Fatalf("DeactivateAccount failed: %v", err)
			}
			if len(tokens.removed) != 1 {
				t.Fatalf("removed %d tokens, want 1 (INVITED rows only)", len(tokens.removed))
			}
			if got := tokens.removed[0]; got.user != u.ID || got.group != g2.ID {
				t.Errorf("removed %+v, want user %s group %s", got, u.ID.Hex(), g2.ID.Hex())
			}
		})
	}
}

func TestResolver_RecordsAuditAndMetrics(t *testing.T) {
	repo := memrepo.New()
	core, logs := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)
	m := metrics.New()
	audit := auditlog.New(nil, logger, auditlog.Config{Membership: "log", Account: "log"})
	r := continuity.New(repo.Groups(), repo.Members(), repo.Users(), nil, audit, m, logger)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	_, a, _, _ := seedOwnerWithMembers(repo)
	if _, err := r.DeactivateAccount(ctx, a.UserID); err != nil {
		t.Fatalf("DeactivateAccount failed: %v", err)
	}

	if n := logs.FilterMessage("successor promoted").Len(); n != 1 {
		t.Errorf("successor promoted logs = %d, want 1", n)
	}
	if n := logs.FilterMessage("audit event").Len(); n == 0 {
		t.Error("expected audit events")
	}

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	var found bool
	for _, f := range families {
		if f.GetName() != "spendhub_continuity_resolutions_total" {
			continue
		}
		for _, metric := range f.GetMetric() {
			for _, l := range metric.GetLabel() {
				if l.GetName() == "outcome" && l.GetValue() == string(continuity.OutcomePromoted) && metric.GetCounter().GetValue() == 1 {
					found = true
				}
			}
		}
	}
	if !found {
		t.Error("expected one promoted continuity resolution to be counted")
	}
}
