// internal/app/bootstrap/routes.go
package bootstrap

import (
	"errors"
	"net/http"

	accountfeature "github.com/dalemusser/spendhub/internal/app/features/account"
	auditlogfeature "github.com/dalemusser/spendhub/internal/app/features/auditlog"
	apierrors "github.com/dalemusser/spendhub/internal/app/features/errors"
	groupsfeature "github.com/dalemusser/spendhub/internal/app/features/groups"
	healthfeature "github.com/dalemusser/spendhub/internal/app/features/health"
	invitationsfeature "github.com/dalemusser/spendhub/internal/app/features/invitations"
	logoutfeature "github.com/dalemusser/spendhub/internal/app/features/logout"
	"github.com/dalemusser/spendhub/internal/app/system/auth"
	"github.com/dalemusser/waffle/config"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// BuildHandler constructs the root HTTP handler (router) for this WAFFLE app.
//
// WAFFLE calls this after configuration, DB connections, schema setup, and
// the Startup hook have completed, so deps.Runtime holds the services.
//
// SpendHub serves JSON only. The session middleware loads the signed-in
// actor for every request; feature routers decide which routes require it.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	rt := deps.Runtime
	if rt == nil || rt.Membership == nil {
		return nil, errors.New("services not initialized; Startup must run before BuildHandler")
	}

	// Secure cookies are enabled in production mode.
	secure := coreCfg.Env == "prod"
	sessionMgr, err := auth.NewSessionManager(appCfg.SessionKey, appCfg.SessionName, appCfg.SessionDomain, appCfg.SessionMaxAge, secure, logger)
	if err != nil {
		logger.Error("session manager init failed", zap.Error(err))
		return nil, err
	}

	resp := apierrors.NewResponder(logger, rt.Metrics)

	r := chi.NewRouter()
	r.NotFound(apierrors.NotFound)
	r.MethodNotAllowed(apierrors.MethodNotAllowed)

	// Global auth middleware: loads the actor into context if signed in.
	r.Use(sessionMgr.LoadSessionUser)

	// Health check endpoint for load balancers and orchestrators
	healthHandler := healthfeature.NewHandler(healthfeature.MongoPinger(deps.MongoClient), deps.Cache, logger)
	r.Mount("/health", healthfeature.Routes(healthHandler))
	r.Mount("/metrics", healthfeature.MetricsRoutes(rt.Metrics.Handler()))

	// Groups, membership and sending invitations
	groupsHandler := groupsfeature.NewHandler(rt.Membership, resp, logger)
	r.Mount("/groups", groupsfeature.Routes(groupsHandler, sessionMgr, rt.Limiter))

	// Invitee side of invitations
	invitationsHandler := invitationsfeature.NewHandler(rt.Membership, resp, logger)
	r.Mount("/invitations", invitationsfeature.Routes(invitationsHandler, sessionMgr))

	// The signed-in user's account and notification inbox
	accountHandler := accountfeature.NewHandler(rt.Resolver, rt.Notifications, sessionMgr, resp, logger)
	r.Mount("/account", accountfeature.Routes(accountHandler))

	// Group membership history for leaders
	auditHandler := auditlogfeature.NewHandler(rt.Membership, rt.AuditEvents, rt.Users, resp, logger)
	r.Mount("/audit", auditlogfeature.Routes(auditHandler, sessionMgr))

	// Sessions are issued by the identity service; SpendHub only clears them.
	logoutHandler := logoutfeature.NewHandler(sessionMgr, logger)
	r.Mount("/logout", logoutfeature.Routes(logoutHandler))

	return r, nil
}
