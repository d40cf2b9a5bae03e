package bootstrap

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dalemusser/spendhub/internal/app/system/cache"
	"github.com/dalemusser/spendhub/internal/app/system/metrics"
	"github.com/dalemusser/spendhub/internal/app/system/ratelimit"
	"github.com/dalemusser/spendhub/internal/testutil/apptest"
	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

func testLogger() *zap.Logger {
	return zap.NewNop()
}

func validConfig() AppConfig {
	return AppConfig{
		MongoURI:            "mongodb://localhost:27017",
		MongoDatabase:       "spendhub_test",
		CacheBackend:        "redis",
		RedisAddr:           "localhost:6379",
		SessionKey:          strings.Repeat("s", 32),
		SessionName:         "spendhub-session",
		MailBackend:         "log",
		MaxGroupsPerUser:    10,
		MaxMembersPerGroup:  20,
		InvitationTTL:       7 * 24 * time.Hour,
		InviteRatePerMinute: 10,
		InviteBurst:         5,
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		env     string
		mutate  func(*AppConfig)
		wantErr string
	}{
		{"valid", "dev", func(*AppConfig) {}, ""},
		{"memory cache", "dev", func(c *AppConfig) { c.CacheBackend = "memory" }, ""},
		{"bad mongo uri", "dev", func(c *AppConfig) { c.MongoURI = "postgres://x" }, "MongoDB URI"},
		{"unknown cache", "dev", func(c *AppConfig) { c.CacheBackend = "memcached" }, "cache_backend"},
		{"redis without addr", "dev", func(c *AppConfig) { c.RedisAddr = "" }, "redis_addr"},
		{"unknown mail backend", "dev", func(c *AppConfig) { c.MailBackend = "pigeon" }, "mail_backend"},
		{"short key in prod", "prod", func(c *AppConfig) { c.SessionKey = "short" }, "session_key"},
		{"short key in dev", "dev", func(c *AppConfig) { c.SessionKey = "short" }, ""},
		{"zero group limit", "dev", func(c *AppConfig) { c.MaxGroupsPerUser = 0 }, "max_groups_per_user"},
		{"zero ttl", "dev", func(c *AppConfig) { c.InvitationTTL = 0 }, "invitation_ttl"},
		{"zero invite rate", "dev", func(c *AppConfig) { c.InviteRatePerMinute = 0 }, "invite_rate_per_minute"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := ValidateConfig(&config.CoreConfig{Env: tt.env}, cfg, testLogger())
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("got error %v, want one mentioning %q", err, tt.wantErr)
			}
		})
	}
}

func TestParseFloat(t *testing.T) {
	if f, err := parseFloat("k", " 2.5 "); err != nil || f != 2.5 {
		t.Errorf("parseFloat = %v, %v; want 2.5", f, err)
	}
	if _, err := parseFloat("k", "fast"); err == nil || !strings.Contains(err.Error(), "k") {
		t.Errorf("expected an error naming the key, got %v", err)
	}
}

func TestBuildHandler_RequiresStartup(t *testing.T) {
	_, err := BuildHandler(&config.CoreConfig{Env: "dev"}, validConfig(), DBDeps{}, testLogger())
	if err == nil {
		t.Fatal("expected an error without a runtime")
	}
}

func TestBuildHandler_Routes(t *testing.T) {
	env := apptest.New(t)
	deps := DBDeps{
		Cache: cache.NewMemory(),
		Runtime: &Runtime{
			Metrics:    metrics.New(),
			Resolver:   env.Resolver,
			Membership: env.Svc,
			Limiter:    ratelimit.New(60, 10, time.Minute),
		},
	}
	h, err := BuildHandler(&config.CoreConfig{Env: "dev"}, validConfig(), deps, testLogger())
	if err != nil {
		t.Fatalf("BuildHandler failed: %v", err)
	}

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/groups/", http.StatusUnauthorized},
		{http.MethodPost, "/account/deactivate", http.StatusUnauthorized},
		{http.MethodPost, "/invitations/abc/accept", http.StatusUnauthorized},
		{http.MethodGet, "/invitations/abc", http.StatusNotFound},
		{http.MethodGet, "/metrics/", http.StatusOK},
		{http.MethodGet, "/audit/groups/abc", http.StatusUnauthorized},
		{http.MethodPost, "/logout/", http.StatusNoContent},
		{http.MethodGet, "/nowhere", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}
