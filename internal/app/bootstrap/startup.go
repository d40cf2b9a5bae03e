// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"
	"time"

	"github.com/dalemusser/spendhub/internal/app/policy/capacitypolicy"
	"github.com/dalemusser/spendhub/internal/app/services/continuity"
	"github.com/dalemusser/spendhub/internal/app/services/membership"
	auditstore "github.com/dalemusser/spendhub/internal/app/store/audit"
	groupstore "github.com/dalemusser/spendhub/internal/app/store/groups"
	invitationstore "github.com/dalemusser/spendhub/internal/app/store/invitations"
	membershipstore "github.com/dalemusser/spendhub/internal/app/store/memberships"
	notificationstore "github.com/dalemusser/spendhub/internal/app/store/notifications"
	userstore "github.com/dalemusser/spendhub/internal/app/store/users"
	"github.com/dalemusser/spendhub/internal/app/system/auditlog"
	"github.com/dalemusser/spendhub/internal/app/system/mailer"
	"github.com/dalemusser/spendhub/internal/app/system/metrics"
	"github.com/dalemusser/spendhub/internal/app/system/notify"
	"github.com/dalemusser/spendhub/internal/app/system/ratelimit"
	"github.com/dalemusser/spendhub/internal/app/system/workers"
	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// limiterIdle is how long an idle per-user bucket is kept.
const limiterIdle = 30 * time.Minute

// Runtime holds the services and background workers built at startup.
type Runtime struct {
	Metrics       *metrics.Metrics
	Audit         *auditlog.Logger
	AuditEvents   *auditstore.Store
	Users         *userstore.Store
	Notifications *notificationstore.Store
	Dispatcher    *notify.Dispatcher
	Resolver      *continuity.Resolver
	Membership    *membership.Service
	Limiter       *ratelimit.Limiter
	Prune         *workers.NotificationPrune
}

// Startup builds the stores and services and starts the background workers.
// It runs after DB connections and schema setup are complete, but before the
// HTTP handler is built.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	rt := deps.Runtime
	db := deps.MongoDatabase

	rt.Metrics = metrics.New()
	rt.AuditEvents = auditstore.New(db)
	rt.Audit = auditlog.New(rt.AuditEvents, logger, auditlog.Config{
		Membership: appCfg.AuditLogMembership,
		Account:    appCfg.AuditLogAccount,
	})

	groups := groupstore.New(db)
	members := membershipstore.New(db, logger)
	users := userstore.New(db)
	rt.Users = users
	tokens := invitationstore.New(deps.Cache, logger).WithTTL(appCfg.InvitationTTL)
	rt.Notifications = notificationstore.New(db)

	mail, err := mailer.New(ctx, mailer.Config{
		Backend:   appCfg.MailBackend,
		From:      appCfg.MailFrom,
		FromName:  appCfg.MailFromName,
		SMTPHost:  appCfg.MailSMTPHost,
		SMTPPort:  appCfg.MailSMTPPort,
		SMTPUser:  appCfg.MailSMTPUser,
		SMTPPass:  appCfg.MailSMTPPass,
		SESRegion: appCfg.SESRegion,
	}, logger)
	if err != nil {
		logger.Error("mailer init failed", zap.Error(err))
		return err
	}

	notifiers := []notify.Notifier{notify.NewInApp(rt.Notifications), notify.NewLog(logger)}
	if appCfg.PushProjectID != "" {
		notifiers = append(notifiers, notify.NewPush(appCfg.PushProjectID, appCfg.PushTopic, logger))
	}
	rt.Dispatcher = notify.NewDispatcher(members, logger, rt.Metrics, notify.Options{
		Workers:    appCfg.NotifyWorkers,
		QueueSize:  appCfg.NotifyQueueSize,
		RatePerSec: appCfg.NotifyRatePerSec,
	}, notifiers...)
	rt.Dispatcher.Start()

	rt.Resolver = continuity.New(groups, members, users, tokens, rt.Audit, rt.Metrics, logger)
	rt.Membership = membership.New(membership.Deps{
		Groups:     groups,
		Members:    members,
		Users:      users,
		Tokens:     tokens,
		Capacity:   capacitypolicy.New(members, appCfg.MaxGroupsPerUser, appCfg.MaxMembersPerGroup),
		Continuity: rt.Resolver,
		Mail:       mail,
		Notify:     rt.Dispatcher,
		Audit:      rt.Audit,
		Metrics:    rt.Metrics,
		Log:        logger,
		SiteName:   appCfg.SiteName,
		BaseURL:    appCfg.BaseURL,
	})

	rt.Limiter = ratelimit.New(appCfg.InviteRatePerMinute, appCfg.InviteBurst, limiterIdle)
	rt.Limiter.StartCleanup(limiterIdle / 2)

	rt.Prune = workers.NewNotificationPrune(rt.Notifications, logger, appCfg.NotifyPruneInterval, appCfg.NotifyRetention)
	rt.Prune.Start()

	logger.Info("spendhub services started",
		zap.Int("max_groups_per_user", appCfg.MaxGroupsPerUser),
		zap.Int("max_members_per_group", appCfg.MaxMembersPerGroup),
		zap.Duration("invitation_ttl", appCfg.InvitationTTL))
	return nil
}
