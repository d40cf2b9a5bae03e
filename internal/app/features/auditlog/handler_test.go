package auditlog_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/dalemusser/spendhub/internal/app/features/auditlog"
	"github.com/dalemusser/spendhub/internal/app/store/audit"
	"github.com/dalemusser/spendhub/internal/app/system/auth"
	"github.com/dalemusser/spendhub/internal/domain/models"
	"github.com/dalemusser/spendhub/internal/testutil"
	"github.com/dalemusser/spendhub/internal/testutil/apptest"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type fakeEvents struct {
	events []audit.Event
	last   audit.QueryFilter
}

func (f *fakeEvents) Query(_ context.Context, filter audit.QueryFilter) ([]audit.Event, error) {
	f.last = filter
	var out []audit.Event
	for _, e := range f.events {
		if filter.GroupID != nil && (e.GroupID == nil || *e.GroupID != *filter.GroupID) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (f *fakeEvents) CountByFilter(ctx context.Context, filter audit.QueryFilter) (int64, error) {
	out, _ := f.Query(ctx, filter)
	return int64(len(out)), nil
}

type listResponse struct {
	Items []struct {
		EventType  string `json:"event_type"`
		ActorName  string `json:"actor_name"`
		TargetName string `json:"target_name"`
	} `json:"items"`
	Page  int   `json:"page"`
	Total int64 `json:"total"`
}

func setup(t *testing.T) (*apptest.Env, *fakeEvents, http.Handler) {
	t.Helper()
	env := apptest.New(t)
	events := &fakeEvents{}
	h := auditlog.NewHandler(env.Svc, events, env.Repo.Users(), env.Resp, zap.NewNop())
	return env, events, auditlog.Routes(h, env.Sessions)
}

func get(router http.Handler, path string, u models.User) *testutil.ResponseRecorder {
	req := auth.WithTestUser(testutil.NewRequest(http.MethodGet, path), apptest.Actor(u))
	rec := testutil.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestServeGroupLog(t *testing.T) {
	env, events, router := setup(t)
	g, owner := env.Group(false)
	bob := env.Join(g, models.RoleMember)
	other := primitive.NewObjectID()

	events.events = []audit.Event{
		{ID: primitive.NewObjectID(), Timestamp: time.Now(), GroupID: &g.ID, Category: audit.CategoryMembership,
			EventType: audit.EventMemberJoined, ActorID: &bob.ID, UserID: &bob.ID, Success: true},
		{ID: primitive.NewObjectID(), Timestamp: time.Now(), GroupID: &g.ID, Category: audit.CategoryMembership,
			EventType: audit.EventRoleChanged, ActorID: &owner.ID, UserID: &bob.ID, Success: true},
		{ID: primitive.NewObjectID(), Timestamp: time.Now(), GroupID: &other, Category: audit.CategoryMembership,
			EventType: audit.EventMemberLeft, Success: true},
	}

	rec := get(router, "/groups/"+g.ID.Hex()+"?event_type=role_changed&page=2&start_date=2026-01-01&end_date=2026-01-31", owner)
	rec.AssertStatus(t, http.StatusOK)

	var out listResponse
	rec.DecodeJSON(t, &out)
	if out.Total != 2 || len(out.Items) != 2 {
		t.Fatalf("total = %d items = %d, want 2 and 2", out.Total, len(out.Items))
	}
	if out.Items[1].ActorName != "Owner" || out.Items[1].TargetName != "Member" {
		t.Errorf("names = %q/%q, want Owner/Member", out.Items[1].ActorName, out.Items[1].TargetName)
	}
	if out.Page != 2 {
		t.Errorf("page = %d, want 2", out.Page)
	}

	f := events.last
	if f.EventType != audit.EventRoleChanged || f.Offset != 50 || f.Limit != 50 {
		t.Errorf("filter = %+v", f)
	}
	if f.StartTime == nil || f.EndTime == nil || !f.EndTime.After(*f.StartTime) {
		t.Errorf("date range not applied: %+v", f)
	}
}

func TestServeGroupLog_Access(t *testing.T) {
	env, _, router := setup(t)
	g, _ := env.Group(false)
	member := env.Join(g, models.RoleMember)
	admin := env.Join(g, models.RoleAdmin)
	stranger := env.User("Stranger")

	tests := []struct {
		name string
		path string
		user models.User
		want int
	}{
		{"admin", "/groups/" + g.ID.Hex(), admin, http.StatusOK},
		{"member", "/groups/" + g.ID.Hex(), member, http.StatusForbidden},
		{"stranger", "/groups/" + g.ID.Hex(), stranger, http.StatusForbidden},
		{"unknown group", "/groups/" + primitive.NewObjectID().Hex(), admin, http.StatusNotFound},
		{"bad id", "/groups/xyz", admin, http.StatusBadRequest},
		{"bad date", "/groups/" + g.ID.Hex() + "?start_date=01/02/2026", admin, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			get(router, tt.path, tt.user).AssertStatus(t, tt.want)
		})
	}
}
