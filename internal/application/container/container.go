// Package container provides dependency injection for all singleton services
package container

import (
	"context"
	"fmt"

	"github.com/AtRiskMedia/leaddesk-go/internal/application/services"
	"github.com/AtRiskMedia/leaddesk-go/internal/domain/session"
	"github.com/AtRiskMedia/leaddesk-go/internal/infrastructure/backend"
	"github.com/AtRiskMedia/leaddesk-go/internal/infrastructure/messaging"
	"github.com/AtRiskMedia/leaddesk-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/leaddesk-go/internal/infrastructure/observability/performance"
	"github.com/AtRiskMedia/leaddesk-go/internal/infrastructure/persistence/sessions"
	"github.com/AtRiskMedia/leaddesk-go/internal/infrastructure/security"
	"github.com/AtRiskMedia/leaddesk-go/pkg/config"
)

// Container holds all singleton services and infrastructure dependencies
type Container struct {
	// Application Services
	OTPController *services.OTPController
	Registry      *services.SessionRegistry
	LeadService   *services.LeadService

	// Infrastructure Dependencies
	Storage     session.Storage
	Backend     *backend.Client
	Broadcaster *messaging.SSEBroadcaster
	Monitor     *messaging.MonitorBroadcaster

	// Observability
	Logger      *logging.ChanneledLogger
	PerfTracker *performance.Tracker
}

// NewContainer creates and wires all singleton services. It fails when the
// OTP secret is missing or the session storage cannot be opened.
func NewContainer(ctx context.Context, logger *logging.ChanneledLogger) (*Container, error) {
	if config.OTPSecret == "" {
		return nil, fmt.Errorf("OTP_SECRET must be set")
	}

	perfTracker := performance.NewTracker(performance.DefaultTrackerConfig(), logger.Perf())

	storage, err := sessions.Open(ctx, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open session storage: %w", err)
	}

	client := backend.NewClient(config.BackendBaseURL, config.BackendTimeout, logger, perfTracker)
	broadcaster := messaging.NewSSEBroadcaster(config.MaxStreamsPerSession, logger)

	otp := services.NewOTPController(
		client,
		security.NewOTPCipher(config.OTPSecret),
		config.OTPSendTimeout,
		broadcaster,
		logger,
		perfTracker,
	)

	registry := services.NewSessionRegistry(services.RegistryConfig{
		Storage:        storage,
		Auth:           client,
		Leads:          client,
		OTP:            otp,
		Notifier:       broadcaster,
		Region:         config.DefaultCountry,
		ResolveTimeout: config.TokenResolveTimeout,
		IdleTTL:        config.SessionIdleTTL,
		RecordTTL:      config.SessionRecordTTL,
	}, logger, perfTracker)

	return &Container{
		OTPController: otp,
		Registry:      registry,
		LeadService:   services.NewLeadService(client, logger, perfTracker),

		Storage:     storage,
		Backend:     client,
		Broadcaster: broadcaster,
		Monitor:     messaging.NewMonitorBroadcaster(registry, perfTracker, config.MonitorInterval, logger),

		Logger:      logger,
		PerfTracker: perfTracker,
	}, nil
}

// Close releases the session storage.
func (c *Container) Close() error {
	return c.Storage.Close()
}
