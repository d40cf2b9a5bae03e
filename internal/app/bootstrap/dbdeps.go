// internal/app/bootstrap/dbdeps.go
package bootstrap

import (
	"github.com/dalemusser/spendhub/internal/app/system/cache"
	"go.mongodb.org/mongo-driver/mongo"
)

// DBDeps holds database/back-end dependencies for the app.
type DBDeps struct {
	MongoClient   *mongo.Client
	MongoDatabase *mongo.Database

	// Cache holds invitation tokens and their reverse index.
	Cache cache.Cache

	// Runtime is allocated by ConnectDB, filled in by Startup and stopped
	// by Shutdown.
	Runtime *Runtime
}
