// Package database provides the core functionality for creating and managing
// database connections in a clean, isolated manner.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/AtRiskMedia/leaddesk-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/leaddesk-go/pkg/config"
	_ "github.com/mattn/go-sqlite3"
	_ "github.com/tursodatabase/libsql-client-go/libsql"
)

// Driver names registered by the imported SQL drivers.
const (
	DriverSQLite = "sqlite3"
	DriverLibSQL = "libsql"
)

// DB represents a wrapper around the standard SQL database connection.
type DB struct {
	*sql.DB
	Driver string
}

// NewConnectionWithLogger establishes a new database connection for the specified driver with logging.
func NewConnectionWithLogger(ctx context.Context, driverName, dataSourceName string, logger *logging.ChanneledLogger) (*DB, error) {
	start := time.Now()
	logger.Storage().Debug("Creating new database connection", "driverName", driverName)

	db, err := sql.Open(driverName, dataSourceName)
	if err != nil {
		logger.Storage().Error("Failed to open database connection", "error", err.Error(), "driverName", driverName)
		return nil, err
	}

	if err = db.PingContext(ctx); err != nil {
		db.Close()
		logger.Storage().Error("Database ping failed", "error", err.Error(), "driverName", driverName)
		return nil, err
	}

	db.SetMaxOpenConns(config.DBMaxOpenConns)
	db.SetMaxIdleConns(config.DBMaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(config.DBConnMaxLifetimeMinutes) * time.Minute)
	db.SetConnMaxIdleTime(time.Duration(config.DBConnMaxIdleMinutes) * time.Minute)
	if driverName == DriverSQLite {
		// sqlite serializes writers; one connection avoids SQLITE_BUSY under load
		db.SetMaxOpenConns(1)
	}

	duration := time.Since(start)
	logger.Storage().Info("Database connection established", "driverName", driverName, "duration", duration)
	if duration > config.SlowQueryThreshold {
		logger.Storage().Warn("Slow database connection", "driverName", driverName, "duration", duration)
	}

	return &DB{DB: db, Driver: driverName}, nil
}

// SQLiteDSN prepares the directory for a file-backed sqlite database and
// returns its data source name.
func SQLiteDSN(path string) (string, error) {
	if path == ":memory:" {
		return "file::memory:?cache=shared", nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path), nil
}

// LibSQLDSN builds the Turso/libsql data source name.
func LibSQLDSN(databaseURL, authToken string) string {
	if authToken == "" {
		return databaseURL
	}
	return fmt.Sprintf("%s?authToken=%s", databaseURL, authToken)
}

// TestConnectionWithLogger runs a trivial query to verify connectivity
func TestConnectionWithLogger(ctx context.Context, db *DB, logger *logging.ChanneledLogger) error {
	start := time.Now()

	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		logger.Storage().Error("Connection test query failed", "error", err.Error(), "driverName", db.Driver)
		return fmt.Errorf("connection test query failed: %w", err)
	}
	if result != 1 {
		logger.Storage().Error("Unexpected connection test result", "result", result, "expected", 1)
		return fmt.Errorf("unexpected query result: %d", result)
	}

	logger.Storage().Info("Connection test successful", "driverName", db.Driver, "duration", time.Since(start))
	return nil
}
