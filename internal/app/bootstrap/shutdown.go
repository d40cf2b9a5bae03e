// internal/app/bootstrap/shutdown.go
package bootstrap

import (
	"context"

	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// Shutdown stops background workers, drains queued notifications and closes
// the backends.
func Shutdown(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	if rt := deps.Runtime; rt != nil {
		if rt.Prune != nil {
			rt.Prune.Stop()
		}
		if rt.Limiter != nil {
			rt.Limiter.Stop()
		}
		if rt.Dispatcher != nil {
			logger.Info("draining notification queue")
			rt.Dispatcher.Stop()
		}
	}

	if deps.Cache != nil {
		if err := deps.Cache.Close(); err != nil {
			logger.Warn("cache close failed", zap.Error(err))
		}
	}

	if deps.MongoClient != nil {
		logger.Info("disconnecting MongoDB client")
		if err := deps.MongoClient.Disconnect(ctx); err != nil {
			logger.Error("MongoDB disconnect failed", zap.Error(err))
			return err
		}
	}
	return nil
}
