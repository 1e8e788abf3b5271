// Package startup prepares the application server
package startup

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AtRiskMedia/leaddesk-go/internal/application/container"
	"github.com/AtRiskMedia/leaddesk-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/leaddesk-go/internal/presentation/http/server"
	"github.com/AtRiskMedia/leaddesk-go/pkg/config"
	"github.com/gin-gonic/gin"
)

// Options override configuration for a single run.
type Options struct {
	Port     string
	LogLevel string
}

// Initialize performs the startup sequence and blocks until SIGINT or
// SIGTERM, then shuts down gracefully.
func Initialize(opts Options) error {
	setupLogging()

	start := time.Now().UTC()

	ctx, cancelBackgroundTasks := context.WithCancel(context.Background())
	defer cancelBackgroundTasks()

	log.Println("\033[32m" + `
  leaddesk ` + "\033[97m" + `lead console gateway` + "\033[0m")

	// Step 1: Channeled logging
	logger, err := newLogger(opts.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer logger.Close()
	logger.Startup().Info("Channeled logging initialized", "format", config.LogFormat, "toFile", config.LogToFile)

	// Step 2: Dependency injection container
	phaseStart := time.Now()
	appContainer, err := container.NewContainer(ctx, logger)
	if err != nil {
		logger.LogStartupPhase("container", time.Since(phaseStart), false, map[string]any{"error": err.Error()})
		return err
	}
	logger.LogStartupPhase("container", time.Since(phaseStart), true, map[string]any{
		"storage": config.SessionStorage,
		"backend": config.BackendBaseURL,
	})

	// Step 3: Background workers
	go appContainer.Registry.StartCleanup(ctx, config.SessionCleanupInterval)
	go appContainer.Monitor.Run(ctx.Done())
	logger.Startup().Info("Background workers started",
		"cleanupInterval", config.SessionCleanupInterval,
		"monitorInterval", config.MonitorInterval)

	// Step 4: HTTP server
	port := config.Port
	if opts.Port != "" {
		port = opts.Port
	}
	httpServer := server.New(port, appContainer)

	gracefulShutdown := make(chan os.Signal, 1)
	signal.Notify(gracefulShutdown, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- httpServer.Start()
	}()

	logger.Startup().Info("Application startup complete",
		"totalDuration", time.Since(start),
		"port", port)

	// Wait for shutdown signal or a listener failure
	select {
	case <-gracefulShutdown:
		logger.Shutdown().Info("Shutdown signal received, starting graceful shutdown...")
	case err := <-serverErr:
		if err != nil {
			logger.System().Error("HTTP server failed", "error", err.Error())
			cancelBackgroundTasks()
			_ = appContainer.Close()
			return err
		}
	}

	shutdownStart := time.Now()

	// Cancel background tasks
	cancelBackgroundTasks()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Shutdown().Error("Error during server shutdown", "error", err.Error())
	} else {
		logger.Shutdown().Info("HTTP server stopped successfully")
	}

	if err := appContainer.Close(); err != nil {
		logger.Shutdown().Error("Error closing session storage", "error", err.Error())
	} else {
		logger.Shutdown().Info("Session storage closed successfully")
	}

	logger.Shutdown().Info("Application shutdown complete",
		"totalUptime", time.Since(start),
		"shutdownDuration", time.Since(shutdownStart))

	return nil
}

func newLogger(level string) (*logging.ChanneledLogger, error) {
	cfg := logging.DefaultLoggerConfig()
	cfg.JSONFormat = config.LogFormat != "text"
	cfg.OutputToFile = config.LogToFile
	cfg.LogDirectory = config.LogDirectory
	if level == "" {
		level = config.LogLevel
	}
	cfg.DefaultLevel = logging.ParseLevel(level)
	return logging.NewChanneledLogger(cfg)
}

// setupLogging configures application logging
func setupLogging() {
	if os.Getenv("GIN_MODE") == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}
