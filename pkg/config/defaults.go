// Package config provides centralized default values for leaddesk
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

var envLoaded sync.Once

// loadEnvFile applies .env overrides without clobbering variables already
// set in the process environment.
func loadEnvFile() {
	envLoaded.Do(func() {
		if _, err := os.Stat(".env"); err != nil {
			return
		}
		log.Println("Loading configuration overrides from .env file...")
		if err := godotenv.Load(".env"); err != nil {
			log.Printf("Failed to load .env file: %v", err)
		}
	})
}

func getEnvInt(key string, defaultValue int) int {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := strconv.Atoi(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%d (default: %d)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

func getEnvString(key string, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		if val != defaultValue {
			log.Printf("Config override: %s=%s (default: %s)", key, val, defaultValue)
		}
		return val
	}
	return defaultValue
}

// getEnvSecret reads a value that must never be echoed to the log.
func getEnvSecret(key string) string {
	if val := os.Getenv(key); val != "" {
		log.Printf("Config override: %s=<redacted>", key)
		return val
	}
	return ""
}

func getEnvBool(key string, defaultValue bool) bool {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := strconv.ParseBool(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%t (default: %t)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := time.ParseDuration(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%s (default: %s)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	valStr := os.Getenv(key)
	if valStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	log.Printf("Config override: %s=%s", key, strings.Join(out, ","))
	return out
}

// Storage drivers accepted by SESSION_STORAGE.
const (
	StorageSQLite = "sqlite"
	StorageLibSQL = "libsql"
	StorageRedis  = "redis"
	StorageMemory = "memory"
)

var (
	// Server Configuration
	Port               string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	ServerIdleTimeout  time.Duration
	CORSOrigins        []string
	CookieSecure       bool
	SessionCookieName  string

	// Upstream CRM backend
	BackendBaseURL      string
	BackendTimeout      time.Duration
	OTPSendTimeout      time.Duration
	TokenResolveTimeout time.Duration
	OTPSecret           string
	DefaultCountry      string

	// Session storage
	SessionStorage   string
	SQLitePath       string
	TursoDatabaseURL string
	TursoAuthToken   string
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	SessionRecordTTL time.Duration

	// Database Pool
	DBMaxOpenConns           int
	DBMaxIdleConns           int
	DBConnMaxLifetimeMinutes int
	DBConnMaxIdleMinutes     int
	SlowQueryThreshold       time.Duration

	// Console sessions
	SessionIdleTTL         time.Duration
	SessionCleanupInterval time.Duration

	// SSE Configuration
	SSEHeartbeatIntervalSeconds int
	MaxStreamsPerSession        int

	// Operator monitor
	MonitorInterval time.Duration

	// Logging
	LogFormat    string
	LogLevel     string
	LogDirectory string
	LogToFile    bool
)

func init() {
	loadEnvFile()

	// Server Configuration
	Port = getEnvString("PORT", "8080")
	ServerReadTimeout = getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second)
	ServerWriteTimeout = getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second)
	ServerIdleTimeout = getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second)
	CORSOrigins = getEnvList("CORS_ORIGINS", []string{"http://localhost:5173"})
	CookieSecure = getEnvBool("COOKIE_SECURE", false)
	SessionCookieName = getEnvString("SESSION_COOKIE_NAME", "leaddesk_session")

	// Upstream CRM backend
	BackendBaseURL = strings.TrimRight(getEnvString("BACKEND_BASE_URL", "http://localhost:3000"), "/")
	BackendTimeout = getEnvDuration("BACKEND_TIMEOUT", 20*time.Second)
	OTPSendTimeout = getEnvDuration("OTP_SEND_TIMEOUT", 15*time.Second)
	TokenResolveTimeout = getEnvDuration("TOKEN_RESOLVE_TIMEOUT", 10*time.Second)
	OTPSecret = getEnvSecret("OTP_SECRET")
	DefaultCountry = getEnvString("DEFAULT_COUNTRY", "IN")

	// Session storage
	SessionStorage = strings.ToLower(getEnvString("SESSION_STORAGE", StorageSQLite))
	SQLitePath = getEnvString("SQLITE_PATH", "db/leaddesk.db")
	TursoDatabaseURL = getEnvString("TURSO_DATABASE_URL", "")
	TursoAuthToken = getEnvSecret("TURSO_AUTH_TOKEN")
	RedisAddr = getEnvString("REDIS_ADDR", "localhost:6379")
	RedisPassword = getEnvSecret("REDIS_PASSWORD")
	RedisDB = getEnvInt("REDIS_DB", 0)
	SessionRecordTTL = getEnvDuration("SESSION_RECORD_TTL", 30*24*time.Hour)

	// Database Pool
	DBMaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", 10)
	DBMaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", 3)
	DBConnMaxLifetimeMinutes = getEnvInt("DB_CONN_MAX_LIFETIME_MINUTES", 30)
	DBConnMaxIdleMinutes = getEnvInt("DB_CONN_MAX_IDLE_MINUTES", 3)
	SlowQueryThreshold = getEnvDuration("SLOW_QUERY_THRESHOLD", 100*time.Millisecond)

	// Console sessions
	SessionIdleTTL = getEnvDuration("SESSION_IDLE_TTL", 2*time.Hour)
	SessionCleanupInterval = getEnvDuration("SESSION_CLEANUP_INTERVAL", 5*time.Minute)

	// SSE Configuration
	SSEHeartbeatIntervalSeconds = getEnvInt("SSE_HEARTBEAT_INTERVAL_SECONDS", 30)
	MaxStreamsPerSession = getEnvInt("MAX_STREAMS_PER_SESSION", 3)

	// Operator monitor
	MonitorInterval = getEnvDuration("MONITOR_INTERVAL", 20*time.Second)

	// Logging
	LogFormat = getEnvString("LOG_FORMAT", "json")
	LogLevel = strings.ToLower(getEnvString("LOG_LEVEL", "info"))
	LogDirectory = getEnvString("LOG_DIRECTORY", "logs")
	LogToFile = getEnvBool("LOG_TO_FILE", false)
}
