// internal/app/system/txn/txn.go
package txn

import (
	"context"
	"errors"
	"strings"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Run executes fn inside a MongoDB transaction. On deployments without
// transaction support (standalone mongod) it logs once per call and runs fn
// directly, so callers must still order writes so a partial failure can be
// compensated.
func Run(ctx context.Context, db *mongo.Database, log *zap.Logger, fn func(ctx context.Context) error) error {
	err := db.Client().UseSession(ctx, func(sc mongo.SessionContext) error {
		_, err := sc.WithTransaction(sc, func(sc mongo.SessionContext) (interface{}, error) {
			return nil, fn(sc)
		})
		return err
	})
	if err == nil || !IsNotSupported(err) {
		return err
	}
	if log != nil {
		log.Warn("transactions not supported; running without transaction", zap.Error(err))
	}
	return fn(ctx)
}

// IsNotSupported reports whether err indicates that the server cannot run
// multi-document transactions.
func IsNotSupported(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) {
		switch ce.Code {
		case 20, 51, 263:
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	has := func(s string) bool { return strings.Contains(msg, s) }
	if has("session") && has("not supported") {
		return true
	}
	return has("transaction") && (has("replica set") || has("session") || has("illegal operation"))
}
