// internal/app/bootstrap/config.go
package bootstrap

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	invitationstore "github.com/dalemusser/spendhub/internal/app/store/invitations"
	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/gorilla/securecookie"
	"go.uber.org/zap"
)

// appConfigKeys defines the configuration keys for SpendHub.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, session_name, etc.
//   - Environment variables: SPENDHUB_MONGO_URI, SPENDHUB_SESSION_NAME, etc.
//   - Command-line flags: --mongo_uri, --session_name, etc.
var appConfigKeys = []config.AppKey{
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "spendhub", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 100, Desc: "MongoDB max connection pool size (default: 100)"},
	{Name: "mongo_min_pool_size", Default: 10, Desc: "MongoDB min connection pool size (default: 10)"},

	// Invitation token store
	{Name: "cache_backend", Default: "redis", Desc: "Invitation token store: 'redis' or 'memory' (single instance only)"},
	{Name: "redis_addr", Default: "localhost:6379", Desc: "Redis address"},
	{Name: "redis_password", Default: "", Desc: "Redis password"},
	{Name: "redis_db", Default: 0, Desc: "Redis database number"},

	{Name: "session_key", Default: "", Desc: "Session signing key, 32+ chars (required in prod; random per process otherwise)"},
	{Name: "session_name", Default: "spendhub-session", Desc: "Session cookie name"},
	{Name: "session_domain", Default: "", Desc: "Session cookie domain (blank means current host)"},
	{Name: "session_max_age", Default: "720h", Desc: "Session cookie lifetime"},

	// Email configuration
	{Name: "mail_backend", Default: "log", Desc: "Email backend: 'smtp', 'ses' or 'log'"},
	{Name: "mail_smtp_host", Default: "localhost", Desc: "SMTP server host"},
	{Name: "mail_smtp_port", Default: 1025, Desc: "SMTP server port"},
	{Name: "mail_smtp_user", Default: "", Desc: "SMTP username"},
	{Name: "mail_smtp_pass", Default: "", Desc: "SMTP password"},
	{Name: "mail_from", Default: "noreply@spendhub.app", Desc: "From email address"},
	{Name: "mail_from_name", Default: "SpendHub", Desc: "From display name"},
	{Name: "ses_region", Default: "", Desc: "AWS region for SES (blank uses the SDK default chain)"},

	// Links
	{Name: "base_url", Default: "http://localhost:3000", Desc: "Base URL for invitation links"},
	{Name: "site_name", Default: "SpendHub", Desc: "Product name used in emails"},

	// Push notifications
	{Name: "push_project_id", Default: "", Desc: "Push project id (blank disables push)"},
	{Name: "push_topic", Default: "groups", Desc: "Push topic prefix"},

	// Membership limits
	{Name: "max_groups_per_user", Default: 10, Desc: "Maximum ACTIVE groups per user"},
	{Name: "max_members_per_group", Default: 20, Desc: "Maximum ACTIVE members per group"},
	{Name: "invitation_ttl", Default: "720h", Desc: "Invitation token lifetime (30 days)"},

	// Notification fan-out
	{Name: "notify_workers", Default: 4, Desc: "Notification delivery workers"},
	{Name: "notify_queue_size", Default: 256, Desc: "Notification queue capacity; events beyond it are dropped"},
	{Name: "notify_rate_per_sec", Default: "50", Desc: "Notification delivery rate across workers (negative disables pacing)"},
	{Name: "notify_retention", Default: "720h", Desc: "How long read notifications are kept"},
	{Name: "notify_prune_interval", Default: "1h", Desc: "How often read notifications are pruned"},

	// Abuse limits
	{Name: "invite_rate_per_minute", Default: "10", Desc: "Invite and join requests per user per minute"},
	{Name: "invite_burst", Default: 5, Desc: "Invite and join burst per user"},

	// Audit logging settings
	{Name: "audit_log_membership", Default: "all", Desc: "Membership event logging: 'all' (db+log), 'db', 'log', or 'off'"},
	{Name: "audit_log_account", Default: "all", Desc: "Account event logging: 'all' (db+log), 'db', 'log', or 'off'"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// WAFFLE's config.LoadWithAppConfig handles:
//   - Loading from .env files
//   - Loading from config.yaml/json/toml files
//   - Reading environment variables (WAFFLE_* for core, SPENDHUB_* for app)
//   - Parsing command-line flags
//   - Merging with precedence: flags > env > files > defaults
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, "SPENDHUB", appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	notifyRate, err := parseFloat("notify_rate_per_sec", appValues.String("notify_rate_per_sec"))
	if err != nil {
		return nil, AppConfig{}, err
	}
	inviteRate, err := parseFloat("invite_rate_per_minute", appValues.String("invite_rate_per_minute"))
	if err != nil {
		return nil, AppConfig{}, err
	}

	appCfg := AppConfig{
		MongoURI:         appValues.String("mongo_uri"),
		MongoDatabase:    appValues.String("mongo_database"),
		MongoMaxPoolSize: uint64(appValues.Int("mongo_max_pool_size")),
		MongoMinPoolSize: uint64(appValues.Int("mongo_min_pool_size")),

		CacheBackend:  strings.ToLower(appValues.String("cache_backend")),
		RedisAddr:     appValues.String("redis_addr"),
		RedisPassword: appValues.String("redis_password"),
		RedisDB:       appValues.Int("redis_db"),

		SessionKey:    appValues.String("session_key"),
		SessionName:   appValues.String("session_name"),
		SessionDomain: appValues.String("session_domain"),
		SessionMaxAge: appValues.Duration("session_max_age", 30*24*time.Hour),

		MailBackend:  strings.ToLower(appValues.String("mail_backend")),
		MailSMTPHost: appValues.String("mail_smtp_host"),
		MailSMTPPort: appValues.Int("mail_smtp_port"),
		MailSMTPUser: appValues.String("mail_smtp_user"),
		MailSMTPPass: appValues.String("mail_smtp_pass"),
		MailFrom:     appValues.String("mail_from"),
		MailFromName: appValues.String("mail_from_name"),
		SESRegion:    appValues.String("ses_region"),

		BaseURL:  appValues.String("base_url"),
		SiteName: appValues.String("site_name"),

		PushProjectID: appValues.String("push_project_id"),
		PushTopic:     appValues.String("push_topic"),

		MaxGroupsPerUser:   appValues.Int("max_groups_per_user"),
		MaxMembersPerGroup: appValues.Int("max_members_per_group"),
		InvitationTTL:      appValues.Duration("invitation_ttl", invitationstore.DefaultTTL),

		NotifyWorkers:       appValues.Int("notify_workers"),
		NotifyQueueSize:     appValues.Int("notify_queue_size"),
		NotifyRatePerSec:    notifyRate,
		NotifyRetention:     appValues.Duration("notify_retention", 30*24*time.Hour),
		NotifyPruneInterval: appValues.Duration("notify_prune_interval", time.Hour),

		InviteRatePerMinute: inviteRate,
		InviteBurst:         appValues.Int("invite_burst"),

		AuditLogMembership: appValues.String("audit_log_membership"),
		AuditLogAccount:    appValues.String("audit_log_account"),
	}

	// Outside prod a missing key gets a random one, so sessions do not
	// survive a restart.
	if appCfg.SessionKey == "" && coreCfg.Env != "prod" {
		appCfg.SessionKey = hex.EncodeToString(securecookie.GenerateRandomKey(32))
		logger.Warn("session_key not set; using a random per-process key")
	}

	return coreCfg, appCfg, nil
}

func parseFloat(key, raw string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not a number", key, raw)
	}
	return f, nil
}

// ValidateConfig performs app-specific config validation.
//
// Return nil to accept the loaded config, or an error to abort startup.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
		logger.Error("invalid MongoDB URI", zap.Error(err))
		return fmt.Errorf("invalid MongoDB URI: %w", err)
	}

	switch appCfg.CacheBackend {
	case "redis":
		if appCfg.RedisAddr == "" {
			return fmt.Errorf("cache_backend redis requires redis_addr")
		}
	case "memory":
		if coreCfg.Env == "prod" {
			logger.Warn("memory cache backend in prod; invitations are lost on restart and not shared between instances")
		}
	default:
		return fmt.Errorf("cache_backend must be 'redis' or 'memory', got %q", appCfg.CacheBackend)
	}

	switch appCfg.MailBackend {
	case "smtp", "ses", "log":
	default:
		return fmt.Errorf("mail_backend must be 'smtp', 'ses' or 'log', got %q", appCfg.MailBackend)
	}

	if coreCfg.Env == "prod" && len(appCfg.SessionKey) < 32 {
		return fmt.Errorf("session_key must be at least 32 characters in prod")
	}
	if appCfg.MaxGroupsPerUser < 1 || appCfg.MaxMembersPerGroup < 2 {
		return fmt.Errorf("max_groups_per_user must be >= 1 and max_members_per_group >= 2")
	}
	if appCfg.InvitationTTL <= 0 {
		return fmt.Errorf("invitation_ttl must be positive")
	}
	if appCfg.InviteRatePerMinute <= 0 || appCfg.InviteBurst < 1 {
		return fmt.Errorf("invite_rate_per_minute must be positive and invite_burst >= 1")
	}
	return nil
}
