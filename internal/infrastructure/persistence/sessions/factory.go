package sessions

import (
	"context"
	"fmt"

	"github.com/AtRiskMedia/leaddesk-go/internal/domain/session"
	"github.com/AtRiskMedia/leaddesk-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/leaddesk-go/internal/infrastructure/persistence/database"
	"github.com/AtRiskMedia/leaddesk-go/pkg/config"
	"github.com/redis/go-redis/v9"
)

// Open builds the storage driver selected by config.SessionStorage.
func Open(ctx context.Context, logger *logging.ChanneledLogger) (session.Storage, error) {
	switch config.SessionStorage {
	case config.StorageMemory:
		logger.Storage().Warn("Using in-memory session storage; sessions will not survive a restart")
		return NewMemoryStorage(), nil

	case config.StorageRedis:
		return NewRedisStorage(ctx, &redis.Options{
			Addr:     config.RedisAddr,
			Password: config.RedisPassword,
			DB:       config.RedisDB,
		}, config.SessionRecordTTL, logger)

	case config.StorageLibSQL:
		if config.TursoDatabaseURL == "" {
			return nil, fmt.Errorf("TURSO_DATABASE_URL is required for libsql session storage")
		}
		db, err := database.NewConnectionWithLogger(ctx, database.DriverLibSQL,
			database.LibSQLDSN(config.TursoDatabaseURL, config.TursoAuthToken), logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to libsql: %w", err)
		}
		if err := database.TestConnectionWithLogger(ctx, db, logger); err != nil {
			db.Close()
			return nil, err
		}
		return NewSQLStorage(ctx, db, logger)

	case config.StorageSQLite:
		dsn, err := database.SQLiteDSN(config.SQLitePath)
		if err != nil {
			return nil, err
		}
		db, err := database.NewConnectionWithLogger(ctx, database.DriverSQLite, dsn, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		return NewSQLStorage(ctx, db, logger)

	default:
		return nil, fmt.Errorf("unknown SESSION_STORAGE %q", config.SessionStorage)
	}
}
