// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// These values come from environment variables, configuration files, or
// command-line flags (loaded in LoadConfig). They represent *app-level*
// configuration, not WAFFLE core configuration; ports, TLS, logging level
// and CORS live in WAFFLE's CoreConfig.
type AppConfig struct {
	// MongoDB connection configuration
	MongoURI         string // MongoDB connection string (e.g., mongodb://localhost:27017)
	MongoDatabase    string // Database name within MongoDB
	MongoMaxPoolSize uint64
	MongoMinPoolSize uint64

	// Invitation token store
	CacheBackend  string // "redis" or "memory"
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Session management configuration
	SessionKey    string // Secret key for signing session cookies (must be strong in production)
	SessionName   string // Cookie name for sessions (default: spendhub-session)
	SessionDomain string // Cookie domain (blank means current host)
	SessionMaxAge time.Duration

	// Email configuration
	MailBackend  string // "smtp", "ses" or "log"
	MailSMTPHost string // SMTP server host (e.g., localhost for Mailpit)
	MailSMTPPort int    // SMTP server port (e.g., 1025 for Mailpit, 587 for SES SMTP)
	MailSMTPUser string
	MailSMTPPass string
	MailFrom     string // From email address (e.g., noreply@spendhub.app)
	MailFromName string // From display name (e.g., SpendHub)
	SESRegion    string // AWS region for the SES API backend

	// Base URL for invitation links
	BaseURL  string // e.g., "https://spendhub.app" or "http://localhost:3000"
	SiteName string

	// Push notifications (topic fan-out)
	PushProjectID string
	PushTopic     string

	// Membership limits
	MaxGroupsPerUser   int
	MaxMembersPerGroup int
	InvitationTTL      time.Duration

	// Notification fan-out
	NotifyWorkers       int
	NotifyQueueSize     int
	NotifyRatePerSec    float64
	NotifyRetention     time.Duration
	NotifyPruneInterval time.Duration

	// Per-user limits on invite and join requests
	InviteRatePerMinute float64
	InviteBurst         int

	// Audit logging: "all", "db", "log" or "off"
	AuditLogMembership string
	AuditLogAccount    string
}
