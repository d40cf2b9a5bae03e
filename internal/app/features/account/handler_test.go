package account_test

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/dalemusser/spendhub/internal/app/features/account"
	"github.com/dalemusser/spendhub/internal/app/services/continuity"
	notificationstore "github.com/dalemusser/spendhub/internal/app/store/notifications"
	"github.com/dalemusser/spendhub/internal/app/system/auth"
	"github.com/dalemusser/spendhub/internal/domain/models"
	"github.com/dalemusser/spendhub/internal/testutil"
	"github.com/dalemusser/spendhub/internal/testutil/apptest"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type fakeInbox struct {
	items []models.Notification
}

func (f *fakeInbox) ListForRecipient(_ context.Context, recipientID primitive.ObjectID, unreadOnly bool, limit int64) ([]models.Notification, error) {
	var out []models.Notification
	for _, n := range f.items {
		if n.RecipientID != recipientID || (unreadOnly && n.Read) {
			continue
		}
		out = append(out, n)
		if limit > 0 && int64(len(out)) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeInbox) CountUnread(_ context.Context, recipientID primitive.ObjectID) (int64, error) {
	var n int64
	for _, it := range f.items {
		if it.RecipientID == recipientID && !it.Read {
			n++
		}
	}
	return n, nil
}

func (f *fakeInbox) MarkRead(_ context.Context, recipientID, id primitive.ObjectID) error {
	for i := range f.items {
		if f.items[i].ID == id && f.items[i].RecipientID == recipientID {
			f.items[i].Read = true
			return nil
		}
	}
	return notificationstore.ErrNotFound
}

func (f *fakeInbox) add(recipient primitive.ObjectID, read bool) models.Notification {
	n := models.Notification{
		ID:          primitive.NewObjectID(),
		RecipientID: recipient,
		Type:        "member_joined",
		Title:       "New member",
		Read:        read,
		CreatedAt:   time.Now(),
	}
	f.items = append(f.items, n)
	return n
}

func newHandler(t *testing.T) (*apptest.Env, *fakeInbox, http.Handler) {
	t.Helper()
	env := apptest.New(t)
	inbox := &fakeInbox{}
	h := account.NewHandler(env.Resolver, inbox, env.Sessions, env.Resp, zap.NewNop())
	return env, inbox, account.Routes(h)
}

func serve(router http.Handler, req *http.Request, u *models.User) *testutil.ResponseRecorder {
	if u != nil {
		req = auth.WithTestUser(req, apptest.Actor(*u))
	}
	rec := testutil.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestDeactivate(t *testing.T) {
	env, _, router := newHandler(t)
	g, owner := env.Group(false)
	bob := env.Join(g, models.RoleMember)

	rec := serve(router, testutil.NewRequest(http.MethodPost, "/deactivate"), nil)
	rec.AssertStatus(t, http.StatusUnauthorized)

	rec = serve(router, testutil.NewRequest(http.MethodPost, "/deactivate"), &owner)
	rec.AssertStatus(t, http.StatusOK)

	var rep continuity.Report
	rec.DecodeJSON(t, &rep)
	if !rep.UserDeactivated || rep.MembershipsLeft != 1 {
		t.Errorf("report = %+v", rep)
	}
	if len(rep.Resolutions) != 1 || rep.Resolutions[0].Outcome != continuity.OutcomePromoted {
		t.Fatalf("resolutions = %+v, want one promotion", rep.Resolutions)
	}
	if got := env.Repo.MembershipsOf(g.ID, bob.ID); got[len(got)-1].Role != models.RoleOwner {
		t.Errorf("bob role = %q, want OWNER", got[len(got)-1].Role)
	}
	if env.Repo.User(owner.ID).Status != models.UserStatusDisabled {
		t.Error("owner should be disabled")
	}
	if cookie := rec.Header().Get("Set-Cookie"); !strings.Contains(cookie, "spendhub-test=") {
		t.Errorf("expected the session cookie to be cleared, got %q", cookie)
	}
}

func TestServeNotifications(t *testing.T) {
	env, inbox, router := newHandler(t)
	alice := env.User("Alice")
	other := env.User("Other")
	inbox.add(alice.ID, false)
	inbox.add(alice.ID, true)
	inbox.add(other.ID, false)

	tests := []struct {
		name      string
		query     string
		wantCode  int
		wantItems int
	}{
		{"all", "", http.StatusOK, 2},
		{"unread only", "?unread=true", http.StatusOK, 1},
		{"limited", "?limit=1", http.StatusOK, 1},
		{"bad unread", "?unread=maybe", http.StatusBadRequest, 0},
		{"bad limit", "?limit=0", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(router, testutil.NewRequest(http.MethodGet, "/notifications"+tt.query), &alice)
			rec.AssertStatus(t, tt.wantCode)
			if tt.wantCode != http.StatusOK {
				return
			}
			var out struct {
				Notifications []models.Notification `json:"notifications"`
				Unread        int64                 `json:"unread"`
			}
			rec.DecodeJSON(t, &out)
			if len(out.Notifications) != tt.wantItems {
				t.Errorf("got %d notifications, want %d", len(out.Notifications), tt.wantItems)
			}
			if out.Unread != 1 {
				t.Errorf("unread = %d, want 1", out.Unread)
			}
		})
	}
}

func TestMarkRead(t *testing.T) {
	env, inbox, router := newHandler(t)
	alice := env.User("Alice")
	mallory := env.User("Mallory")
	n := inbox.add(alice.ID, false)

	rec := serve(router, testutil.NewRequest(http.MethodPost, "/notifications/"+n.ID.Hex()+"/read"), &mallory)
	rec.AssertStatus(t, http.StatusNotFound)

	rec = serve(router, testutil.NewRequest(http.MethodPost, "/notifications/"+n.ID.Hex()+"/read"), &alice)
	rec.AssertStatus(t, http.StatusNoContent)
	if !inbox.items[0].Read {
		t.Error("notification should be read")
	}

	rec = serve(router, testutil.NewRequest(http.MethodPost, "/notifications/zzz/read"), &alice)
	rec.AssertStatus(t, http.StatusBadRequest)
}
