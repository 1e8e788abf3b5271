package handlers

import (
	"net/http"
	"time"

	"github.com/AtRiskMedia/leaddesk-go/internal/application/services"
	"github.com/AtRiskMedia/leaddesk-go/internal/domain/apperrors"
	"github.com/AtRiskMedia/leaddesk-go/internal/infrastructure/messaging"
	"github.com/AtRiskMedia/leaddesk-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/leaddesk-go/internal/infrastructure/observability/performance"
	"github.com/AtRiskMedia/leaddesk-go/pkg/config"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// SystemHandlers serves health, performance and the operator monitor
type SystemHandlers struct {
	registry    *services.SessionRegistry
	monitor     *messaging.MonitorBroadcaster
	upgrader    websocket.Upgrader
	logger      *logging.ChanneledLogger
	perfTracker *performance.Tracker
}

// NewSystemHandlers creates system handlers. Monitor websockets are only
// accepted from the configured CORS origins.
func NewSystemHandlers(registry *services.SessionRegistry, monitor *messaging.MonitorBroadcaster, logger *logging.ChanneledLogger, perfTracker *performance.Tracker) *SystemHandlers {
	allowed := make(map[string]bool, len(config.CORSOrigins))
	for _, origin := range config.CORSOrigins {
		allowed[origin] = true
	}
	return &SystemHandlers{
		registry: registry,
		monitor:  monitor,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowed[origin]
			},
		},
		logger:      logger,
		perfTracker: perfTracker,
	}
}

// GetHealth handles GET /api/v1/health
func (h *SystemHandlers) GetHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"storage":   config.SessionStorage,
		"sessions":  h.registry.Len(),
		"health":    h.perfTracker.Snapshot().Health,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// GetPerf handles GET /api/v1/system/perf
func (h *SystemHandlers) GetPerf(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"sessions":    h.registry.ConsoleStats(),
		"performance": h.perfTracker.Snapshot(),
	})
}

// GetMonitor handles GET /api/v1/system/monitor - upgrades to a websocket
// that receives session counts and performance stats on every tick
func (h *SystemHandlers) GetMonitor(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the error response.
		h.logger.Notify().Warn("Monitor websocket upgrade failed", "error", err.Error())
		return
	}

	client := messaging.NewMonitorClient(conn)
	h.monitor.Register(client)
	h.logger.Notify().Info("Monitor client connected", "remote", c.ClientIP())

	go client.WritePump()
	client.ReadPump()

	h.monitor.Unregister(client)
	h.logger.Notify().Info("Monitor client disconnected", "remote", c.ClientIP())
}

// GetLogLevels handles GET /api/v1/system/log-levels
func (h *SystemHandlers) GetLogLevels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"levels": h.logger.GetChannelLevels()})
}

type logLevelRequest struct {
	Level string `json:"level" binding:"required"`
}

// PutLogLevel handles PUT /api/v1/system/log-levels/:channel
func (h *SystemHandlers) PutLogLevel(c *gin.Context) {
	var req logLevelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "level is required", "code": apperrors.CodeInvalidInput})
		return
	}

	channel := logging.Channel(c.Param("channel"))
	level := logging.ParseLevel(req.Level)
	if err := h.logger.SetChannelLevel(channel, level); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error(), "code": apperrors.CodeNotFound})
		return
	}
	h.logger.System().Info("Log level changed", "channel", string(channel), "level", level.String())
	c.JSON(http.StatusOK, gin.H{"channel": channel, "level": level.String()})
}
